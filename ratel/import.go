package ratel

import (
	"errors"
	"io"

	"github.com/fxamacker/cbor/v2"

	"arbor.lol/context"
	"arbor.lol/fault"
	"arbor.lol/store"
)

// Import reads a CBOR sequence written by Export and stores every record
// under its original key, so that references between records survive. The
// kinds must be registered first. Afterwards the sequence is advanced past the
// largest imported key.
func (r *T) Import(c context.T, rd io.Reader) (count int, err error) {
	dec := cbor.NewDecoder(rd)
	var last store.Key
	for {
		rec := &store.Record{}
		if err = dec.Decode(rec); err != nil {
			if errors.Is(err, io.EOF) {
				err = nil
				break
			}
			return count, fault.Wrap(fault.ErrInvalidArgument, err, "record %d of import", count)
		}
		if rec.Key.IsZero() {
			log.W.F("skipping %s record without a key", rec.Kind)
			continue
		}
		if err = r.Update(c, func(tx store.Tx) (err error) {
			_, err = tx.Put(rec)
			return
		}); chk.E(err) {
			return
		}
		last = max(last, rec.Key)
		count++
		if count%1000 == 0 {
			log.I.F("imported %d records", count)
			chk.T(r.Sync())
		}
	}
	if err = r.advance(last); err != nil {
		return
	}
	log.I.F("imported %d records", count)
	return
}

// advance draws serials until the sequence has passed k.
func (r *T) advance(k store.Key) (err error) {
	var ser uint64
	for ser <= uint64(k) && k > 0 {
		if ser, err = r.Serial(); err != nil {
			return
		}
	}
	return
}
