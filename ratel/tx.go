package ratel

import (
	"github.com/dgraph-io/badger/v4"
	"github.com/pkg/errors"

	"arbor.lol/context"
	"arbor.lol/fault"
	"arbor.lol/ratel/keys"
	"arbor.lol/ratel/keys/hash"
	"arbor.lol/ratel/keys/index"
	"arbor.lol/ratel/keys/ordinal"
	"arbor.lol/ratel/keys/serial"
	"arbor.lol/ratel/prefixes"
	"arbor.lol/store"
)

// tx is a store.Tx on a badger transaction. badger allows only one iterator
// on a read-write transaction, so every scan collects serials and closes its
// iterator before records are fetched.
type tx struct {
	r     *T
	c     context.T
	txn   *badger.Txn
	write bool
}

func recordKey(k store.Key) []byte { return prefixes.Record.Key(serial.FromUint64(uint64(k))) }

func equalKey(kind, field string, v store.Value, k store.Key) []byte {
	return prefixes.Equal.Key(hash.New(kind), hash.New(field), hash.New(v.Canonical()),
		serial.FromUint64(uint64(k)))
}

func rangeKey(kind, field string, o float64, k store.Key) []byte {
	return prefixes.Range.Key(hash.New(kind), hash.New(field), ordinal.New(o),
		serial.FromUint64(uint64(k)))
}

func uniqueKey(kind, field string, v store.Value) []byte {
	return prefixes.Unique.Key(hash.New(kind), hash.New(field), hash.New(v.Canonical()))
}

func kindKey(kind string, k store.Key) []byte {
	return prefixes.Kind.Key(hash.New(kind), serial.FromUint64(uint64(k)))
}

func (t *tx) schema(kind string) (s *store.Schema, err error) {
	if err = t.c.Err(); err != nil {
		return
	}
	return t.r.schemas.Get(kind)
}

func (t *tx) writable() (err error) {
	if !t.write {
		err = fault.New(fault.ErrInvalidOperation, "write in a read-only transaction")
	}
	return
}

func (t *tx) Get(key store.Key) (r *store.Record, err error) {
	if err = t.c.Err(); err != nil {
		return
	}
	var item *badger.Item
	if item, err = t.txn.Get(recordKey(key)); err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, fault.New(fault.ErrNotFound, "no record %d", key)
		}
		return nil, errors.Wrapf(err, "getting record %d", key)
	}
	var b []byte
	if b, err = item.ValueCopy(nil); chk.E(err) {
		return nil, errors.Wrapf(err, "reading record %d", key)
	}
	if r, err = store.Unmarshal(b); chk.E(err) {
		return nil, errors.Wrapf(err, "decoding record %d", key)
	}
	r.Key = key
	return
}

// lookup is Get that returns nil for a missing record.
func (t *tx) lookup(key store.Key) (r *store.Record, err error) {
	if r, err = t.Get(key); errors.Is(err, fault.ErrNotFound) {
		return nil, nil
	}
	return
}

func (t *tx) AllocateKey(kind string) (key store.Key, err error) {
	if _, err = t.schema(kind); err != nil {
		return
	}
	var ser uint64
	if ser, err = t.r.Serial(); err != nil {
		return
	}
	return store.Key(ser), nil
}

func (t *tx) Put(r *store.Record) (key store.Key, err error) {
	if err = t.writable(); err != nil {
		return
	}
	var s *store.Schema
	if s, err = t.schema(r.Kind); err != nil {
		return
	}
	if r.Key.IsZero() {
		if r.Key, err = t.AllocateKey(r.Kind); err != nil {
			return
		}
	}
	var old *store.Record
	if old, err = t.lookup(r.Key); err != nil {
		return
	}
	if old != nil && old.Kind != r.Kind {
		err = fault.New(fault.ErrInvalidArgument, "record %d is a %s, not a %s",
			r.Key, old.Kind, r.Kind)
		return
	}
	_, _, unique := s.Entries(r)
	for _, e := range unique {
		if err = t.checkUnique(r, e); err != nil {
			return
		}
	}
	if old != nil {
		if err = t.deleteIndexes(s, old); err != nil {
			return
		}
	}
	var b []byte
	if b, err = r.Marshal(); chk.E(err) {
		return 0, errors.Wrap(err, "encoding record")
	}
	if err = t.txn.Set(recordKey(r.Key), b); err != nil {
		return 0, errors.Wrapf(err, "writing record %d", r.Key)
	}
	if err = t.writeIndexes(s, r); err != nil {
		return
	}
	log.D.F("put %s %d %v", r.Kind, r.Key, r.Fields)
	return r.Key, nil
}

// checkUnique fails if the unique marker for e belongs to another record that
// still holds the value. Reading the marker puts it in the transaction's read
// set, so two racing inserts of the same value conflict on commit.
func (t *tx) checkUnique(r *store.Record, e store.Entry) (err error) {
	var item *badger.Item
	if item, err = t.txn.Get(uniqueKey(r.Kind, e.Field, e.Value)); err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		return errors.Wrap(err, "reading unique index")
	}
	var v []byte
	if v, err = item.ValueCopy(nil); err != nil {
		return errors.Wrap(err, "reading unique index")
	}
	holder := store.Key(serial.New(v).Uint64())
	if holder == r.Key {
		return
	}
	var other *store.Record
	if other, err = t.lookup(holder); err != nil {
		return
	}
	if other != nil && other.Get(e.Field).Equal(e.Value) {
		log.W.F("unique %s.%s = %s is held by %d", r.Kind, e.Field, e.Value, holder)
		return store.Duplicate(r.Kind, e.Field, e.Value)
	}
	return
}

func (t *tx) writeIndexes(s *store.Schema, r *store.Record) (err error) {
	equal, rng, unique := s.Entries(r)
	set := func(k, v []byte) {
		if err == nil {
			log.T.F("index %x", k)
			err = t.txn.Set(k, v)
		}
	}
	for _, e := range equal {
		set(equalKey(r.Kind, e.Field, e.Value, r.Key), nil)
	}
	for _, e := range rng {
		o, _ := e.Value.Ordinal()
		set(rangeKey(r.Kind, e.Field, o, r.Key), nil)
	}
	for _, e := range unique {
		set(uniqueKey(r.Kind, e.Field, e.Value), serial.FromUint64(uint64(r.Key)).Val)
	}
	set(kindKey(r.Kind, r.Key), nil)
	return errors.Wrap(err, "writing index")
}

func (t *tx) deleteIndexes(s *store.Schema, r *store.Record) (err error) {
	equal, rng, unique := s.Entries(r)
	del := func(k []byte) {
		if err == nil {
			err = t.txn.Delete(k)
		}
	}
	for _, e := range equal {
		del(equalKey(r.Kind, e.Field, e.Value, r.Key))
	}
	for _, e := range rng {
		o, _ := e.Value.Ordinal()
		del(rangeKey(r.Kind, e.Field, o, r.Key))
	}
	for _, e := range unique {
		var item *badger.Item
		uk := uniqueKey(r.Kind, e.Field, e.Value)
		if item, err = t.txn.Get(uk); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				err = nil
				continue
			}
			return errors.Wrap(err, "reading unique index")
		}
		var v []byte
		if v, err = item.ValueCopy(nil); err != nil {
			return errors.Wrap(err, "reading unique index")
		}
		if equals(v, serial.FromUint64(uint64(r.Key)).Val) {
			del(uk)
		}
	}
	del(kindKey(r.Kind, r.Key))
	return errors.Wrap(err, "deleting index")
}

func (t *tx) Delete(key store.Key) (err error) {
	if err = t.writable(); err != nil {
		return
	}
	var old *store.Record
	if old, err = t.lookup(key); err != nil || old == nil {
		return
	}
	var s *store.Schema
	if s, err = t.schema(old.Kind); err != nil {
		return
	}
	if err = t.deleteIndexes(s, old); err != nil {
		return
	}
	if err = t.txn.Delete(recordKey(key)); err != nil {
		return errors.Wrapf(err, "deleting record %d", key)
	}
	log.D.F("deleted %s %d", old.Kind, key)
	return
}

// serials collects the serials at the end of every key under prefix, starting
// at seek, until stop returns true for a key.
func (t *tx) serials(prefix, seek []byte, stop func(k []byte) bool) (sers []store.Key) {
	it := t.txn.NewIterator(badger.IteratorOptions{Prefix: prefix})
	defer it.Close()
	for it.Seek(seek); it.ValidForPrefix(prefix); it.Next() {
		k := it.Item().Key()
		if stop != nil && stop(k) {
			break
		}
		sers = append(sers, store.Key(serial.FromKey(k).Uint64()))
	}
	return
}

// fetch loads the records of the kind with the given keys, keeping those
// match accepts.
func (t *tx) fetch(kind string, sers []store.Key,
	match func(r *store.Record) bool) (rs []*store.Record, err error) {

	for _, k := range sers {
		var r *store.Record
		if r, err = t.lookup(k); err != nil {
			return
		}
		if r == nil || r.Kind != kind || (match != nil && !match(r)) {
			// stale entry or a truncated hash collision
			continue
		}
		rs = append(rs, r)
	}
	return
}

func (t *tx) QueryEqual(kind, field string, value store.Value,
	orderBy string) (rs []*store.Record, err error) {

	var s *store.Schema
	if s, err = t.schema(kind); err != nil {
		return
	}
	if !s.HasEqual(field) {
		err = fault.New(fault.ErrInvalidArgument, "%s.%s has no equality index", kind, field)
		return
	}
	prefix := prefixes.Equal.Key(hash.New(kind), hash.New(field), hash.New(value.Canonical()))
	sers := t.serials(prefix, prefix, nil)
	if rs, err = t.fetch(kind, sers, func(r *store.Record) bool {
		return r.Get(field).Equal(value)
	}); err != nil {
		return
	}
	store.SortBy(rs, orderBy)
	return
}

func (t *tx) QueryRange(kind, field string, low, high store.Value,
	orderBy string) (rs []*store.Record, err error) {

	var s *store.Schema
	if s, err = t.schema(kind); err != nil {
		return
	}
	if !s.HasRange(field) {
		err = fault.New(fault.ErrInvalidArgument, "%s.%s has no range index", kind, field)
		return
	}
	lo, lok := low.Ordinal()
	hi, hok := high.Ordinal()
	if !lok || !hok || low.Type != high.Type {
		err = fault.New(fault.ErrInvalidArgument, "cannot range %s.%s over %s and %s",
			kind, field, low, high)
		return
	}
	// the float ordinals only narrow the scan; rounding can put values on the
	// bounds, so the bounds are inclusive here and exact below
	prefix := prefixes.Range.Key(hash.New(kind), hash.New(field))
	seek := keys.Write(index.New(prefixes.Range), hash.New(kind), hash.New(field),
		ordinal.New(lo))
	stop := func(k []byte) bool {
		o := ordinal.New()
		if !keys.Read(k, index.Empty(), hash.Empty(), hash.Empty(), o) {
			return true
		}
		return o.Val > hi
	}
	sers := t.serials(prefix, seek, stop)
	if rs, err = t.fetch(kind, sers, func(r *store.Record) bool {
		v := r.Get(field)
		return v.Type == low.Type &&
			store.Compare(low, v) < 0 && store.Compare(v, high) < 0
	}); err != nil {
		return
	}
	if orderBy == "" {
		orderBy = field
	}
	store.SortBy(rs, orderBy)
	return
}

func (t *tx) GetUnique(kind, field string, value store.Value) (r *store.Record, err error) {
	var s *store.Schema
	if s, err = t.schema(kind); err != nil {
		return
	}
	if !s.HasUnique(field) {
		err = fault.New(fault.ErrInvalidArgument, "%s.%s has no unique index", kind, field)
		return
	}
	var item *badger.Item
	if item, err = t.txn.Get(uniqueKey(kind, field, value)); err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, fault.New(fault.ErrNotFound, "no %s with %s = %s", kind, field, value)
		}
		return nil, errors.Wrap(err, "reading unique index")
	}
	var v []byte
	if v, err = item.ValueCopy(nil); err != nil {
		return nil, errors.Wrap(err, "reading unique index")
	}
	if r, err = t.lookup(store.Key(serial.New(v).Uint64())); err != nil {
		return
	}
	if r == nil || r.Kind != kind || !r.Get(field).Equal(value) {
		return nil, fault.New(fault.ErrNotFound, "no %s with %s = %s", kind, field, value)
	}
	return
}

func (t *tx) Scan(kind string) (rs []*store.Record, err error) {
	if _, err = t.schema(kind); err != nil {
		return
	}
	prefix := prefixes.Kind.Key(hash.New(kind))
	return t.fetch(kind, t.serials(prefix, prefix, nil), nil)
}
