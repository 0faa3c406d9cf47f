package ratel

import (
	"io"

	"github.com/dgraph-io/badger/v4"
	"github.com/fxamacker/cbor/v2"
	"github.com/pkg/errors"

	"arbor.lol/context"
	"arbor.lol/ratel/keys/serial"
	"arbor.lol/ratel/prefixes"
	"arbor.lol/store"
)

// Export writes every record of the database to w as a CBOR sequence, in key
// order.
func (r *T) Export(c context.T, w io.Writer) (count int, err error) {
	enc := cbor.NewEncoder(w)
	err = r.DB.View(func(txn *badger.Txn) (err error) {
		prf := prefixes.Record.Key()
		it := txn.NewIterator(badger.IteratorOptions{Prefix: prf, PrefetchValues: true})
		defer it.Close()
		for it.Rewind(); it.ValidForPrefix(prf); it.Next() {
			if err = c.Err(); err != nil {
				return
			}
			item := it.Item()
			var b []byte
			if b, err = item.ValueCopy(nil); chk.E(err) {
				return
			}
			var rec *store.Record
			if rec, err = store.Unmarshal(b); chk.E(err) {
				return
			}
			rec.Key = store.Key(serial.FromKey(item.Key()).Uint64())
			if err = enc.Encode(rec); chk.E(err) {
				return
			}
			count++
			if count%1000 == 0 {
				log.I.F("exported %d records", count)
			}
		}
		return
	})
	if err != nil {
		return count, errors.Wrap(err, "exporting")
	}
	log.I.F("exported %d records", count)
	return
}
