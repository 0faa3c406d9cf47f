package ratel

import (
	"bytes"

	"github.com/dgraph-io/badger/v4"

	"arbor.lol/ratel/keys/hash"
	"arbor.lol/ratel/keys/serial"
	"arbor.lol/ratel/prefixes"
	"arbor.lol/store"
)

// reorderBatch is how many range entries one migration transaction rewrites.
const reorderBatch = 1000

// reorderRanges recomputes the ordinal of every range index entry from its
// record. The field of an entry is found by matching the hash of the record's
// field names, so no schema needs to be registered yet.
func (r *T) reorderRanges() (err error) {
	var ks [][]byte
	prf := []byte{prefixes.Range.B()}
	if err = r.DB.View(func(txn *badger.Txn) (err error) {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: prf})
		defer it.Close()
		for it.Rewind(); it.ValidForPrefix(prf); it.Next() {
			ks = append(ks, it.Item().KeyCopy(nil))
		}
		return
	}); chk.E(err) {
		return
	}
	log.I.F("recomputing %d range index entries", len(ks))
	var moved int
	for len(ks) > 0 {
		batch := ks[:min(reorderBatch, len(ks))]
		ks = ks[len(batch):]
		if err = r.DB.Update(func(txn *badger.Txn) (err error) {
			for _, k := range batch {
				var nk []byte
				if nk, err = reorder(txn, k); err != nil {
					return
				}
				if nk == nil || bytes.Equal(nk, k) {
					continue
				}
				if err = txn.Delete(k); err != nil {
					return
				}
				if err = txn.Set(nk, nil); err != nil {
					return
				}
				moved++
			}
			return
		}); chk.E(err) {
			return
		}
	}
	log.I.F("moved %d range index entries", moved)
	return
}

// reorder returns the range key k should have, or nil if its record or field
// is gone, in which case the entry is left for a rescan.
func reorder(txn *badger.Txn, k []byte) (nk []byte, err error) {
	const kindAt, fieldAt = 1, 1 + hash.Len
	key := store.Key(serial.FromKey(k).Uint64())
	var item *badger.Item
	if item, err = txn.Get(recordKey(key)); err == badger.ErrKeyNotFound {
		return nil, nil
	} else if err != nil {
		return
	}
	var b []byte
	if b, err = item.ValueCopy(nil); err != nil {
		return
	}
	var rec *store.Record
	if rec, err = store.Unmarshal(b); err != nil {
		return
	}
	if !bytes.Equal(hash.New(rec.Kind).Val, k[kindAt:fieldAt]) {
		return
	}
	for name, v := range rec.Fields {
		if !bytes.Equal(hash.New(name).Val, k[fieldAt:fieldAt+hash.Len]) {
			continue
		}
		o, ok := v.Ordinal()
		if !ok {
			return
		}
		return rangeKey(rec.Kind, name, o, key), nil
	}
	return
}
