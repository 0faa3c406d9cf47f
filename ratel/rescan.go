package ratel

import (
	"github.com/dgraph-io/badger/v4"

	"arbor.lol/context"
	"arbor.lol/ratel/keys/serial"
	"arbor.lol/ratel/prefixes"
	"arbor.lol/store"
)

// Rescan drops every index and regenerates them from the stored records with
// the schemas registered now, which is how a changed schema is applied to an
// existing database. Records of unregistered kinds are left unindexed.
func (r *T) Rescan(c context.T) (err error) {
	if err = r.DB.DropPrefix(prefixes.IndexPrefixes...); chk.E(err) {
		return
	}
	var recKeys []store.Key
	err = r.DB.View(func(txn *badger.Txn) (err error) {
		prf := prefixes.Record.Key()
		it := txn.NewIterator(badger.IteratorOptions{Prefix: prf})
		defer it.Close()
		for it.Rewind(); it.ValidForPrefix(prf); it.Next() {
			recKeys = append(recKeys, store.Key(serial.FromKey(it.Item().Key()).Uint64()))
		}
		return
	})
	if chk.E(err) {
		return
	}
	var i int
	for i = range recKeys {
		if err = r.Update(c, func(stx store.Tx) (err error) {
			t := stx.(*tx)
			var rec *store.Record
			if rec, err = t.Get(recKeys[i]); err != nil {
				return
			}
			var s *store.Schema
			if s, err = r.schemas.Get(rec.Kind); err != nil {
				log.W.F("record %d has unregistered kind %s", rec.Key, rec.Kind)
				return nil
			}
			return t.writeIndexes(s, rec)
		}); chk.E(err) {
			return
		}
		if i%1000 == 0 {
			log.I.F("rescanned %d records", i)
		}
	}
	log.I.F("completed rescanning %d records", len(recKeys))
	return
}
