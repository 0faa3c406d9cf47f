package rediskv

import (
	"errors"
	"strconv"

	"github.com/go-redis/redis/v8"
	pkgerrors "github.com/pkg/errors"

	"arbor.lol/context"
	"arbor.lol/fault"
	"arbor.lol/store"
)

// tx reads through cmd, and in an update watches every key it reads through
// rtx and keeps its writes in an overlay that later reads consult first.
type tx struct {
	r   *T
	c   context.T
	cmd redis.Cmdable
	rtx *redis.Tx

	recs  map[store.Key]*store.Record // nil is a deletion
	strs  map[string]*string          // nil is a deletion
	sets  map[string]map[string]bool  // false is a removal
	zsets map[string]map[string]*float64
}

func newTx(r *T, c context.T, cmd redis.Cmdable, rtx *redis.Tx) *tx {
	return &tx{
		r: r, c: c, cmd: cmd, rtx: rtx,
		recs:  make(map[store.Key]*store.Record),
		strs:  make(map[string]*string),
		sets:  make(map[string]map[string]bool),
		zsets: make(map[string]map[string]*float64),
	}
}

func (t *tx) recordKey(k store.Key) string { return t.r.params.Prefix + "rec:" + k.String() }

func (t *tx) equalKey(kind, field string, v store.Value) string {
	return t.r.params.Prefix + "eq:" + kind + "\x00" + field + "\x00" + v.Canonical()
}

func (t *tx) rangeKey(kind, field string) string {
	return t.r.params.Prefix + "rg:" + kind + "\x00" + field
}

func (t *tx) uniqueKey(kind, field string, v store.Value) string {
	return t.r.params.Prefix + "uq:" + kind + "\x00" + field + "\x00" + v.Canonical()
}

func (t *tx) kindKey(kind string) string { return t.r.params.Prefix + "kind:" + kind }

func (t *tx) seqKey() string { return t.r.params.Prefix + "seq" }

func member(k store.Key) string { return k.String() }

func (t *tx) watch(key string) (err error) {
	if err = t.c.Err(); err != nil || t.rtx == nil {
		return
	}
	if err = t.rtx.Watch(t.c, key).Err(); err != nil {
		return pkgerrors.Wrapf(err, "watching %q", key)
	}
	return
}

func (t *tx) writable() (err error) {
	if t.rtx == nil {
		err = fault.New(fault.ErrInvalidOperation, "write in a read-only transaction")
	}
	return
}

func (t *tx) schema(kind string) (s *store.Schema, err error) {
	if err = t.c.Err(); err != nil {
		return
	}
	return t.r.schemas.Get(kind)
}

func (t *tx) Get(key store.Key) (r *store.Record, err error) {
	if rec, ok := t.recs[key]; ok {
		if rec == nil {
			return nil, fault.New(fault.ErrNotFound, "no record %d", key)
		}
		return rec.Clone(), nil
	}
	rk := t.recordKey(key)
	if err = t.watch(rk); err != nil {
		return
	}
	var b []byte
	if b, err = t.cmd.Get(t.c, rk).Bytes(); err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fault.New(fault.ErrNotFound, "no record %d", key)
		}
		return nil, pkgerrors.Wrapf(err, "getting record %d", key)
	}
	if r, err = store.Unmarshal(b); chk.E(err) {
		return nil, pkgerrors.Wrapf(err, "decoding record %d", key)
	}
	r.Key = key
	return
}

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
	// INCR runs outside the transaction so that a retried transaction does not
	// reuse a key
	var n int64
	if n, err = t.r.client.Incr(t.c, t.seqKey()).Result(); err != nil {
		return 0, pkgerrors.Wrap(err, "allocating key")
	}
	return store.Key(n), nil
}

func (t *tx) getString(key string) (v string, ok bool, err error) {
	if s, found := t.strs[key]; found {
		if s == nil {
			return "", false, nil
		}
		return *s, true, nil
	}
	if err = t.watch(key); err != nil {
		return
	}
	if v, err = t.cmd.Get(t.c, key).Result(); err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, pkgerrors.Wrapf(err, "reading %q", key)
	}
	return v, true, nil
}

func (t *tx) setMember(key, m string, add bool) {
	if t.sets[key] == nil {
		t.sets[key] = make(map[string]bool)
	}
	t.sets[key][m] = add
}

func (t *tx) zsetMember(key, m string, score *float64) {
	if t.zsets[key] == nil {
		t.zsets[key] = make(map[string]*float64)
	}
	t.zsets[key][m] = score
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
		var v string
		var ok bool
		if v, ok, err = t.getString(t.uniqueKey(r.Kind, e.Field, e.Value)); err != nil {
			return
		}
		if !ok || v == member(r.Key) {
			continue
		}
		var holder store.Key
		if holder, err = store.ParseKey(v); err != nil {
			return 0, pkgerrors.Wrap(err, "reading unique index")
		}
		var other *store.Record
		if other, err = t.lookup(holder); err != nil {
			return
		}
		if other != nil && other.Get(e.Field).Equal(e.Value) {
			return 0, store.Duplicate(r.Kind, e.Field, e.Value)
		}
	}
	if old != nil {
		t.unindex(s, old)
	}
	t.index(s, r)
	t.recs[r.Key] = r.Clone()
	log.D.F("put %s %d %v", r.Kind, r.Key, r.Fields)
	return r.Key, nil
}

func (t *tx) index(s *store.Schema, r *store.Record) {
	equal, rng, unique := s.Entries(r)
	m := member(r.Key)
	for _, e := range equal {
		t.setMember(t.equalKey(r.Kind, e.Field, e.Value), m, true)
	}
	for _, e := range rng {
		o, _ := e.Value.Ordinal()
		t.zsetMember(t.rangeKey(r.Kind, e.Field), m, &o)
	}
	for _, e := range unique {
		t.strs[t.uniqueKey(r.Kind, e.Field, e.Value)] = &m
	}
	t.setMember(t.kindKey(r.Kind), m, true)
}

func (t *tx) unindex(s *store.Schema, r *store.Record) {
	equal, rng, unique := s.Entries(r)
	m := member(r.Key)
	for _, e := range equal {
		t.setMember(t.equalKey(r.Kind, e.Field, e.Value), m, false)
	}
	for _, e := range rng {
		t.zsetMember(t.rangeKey(r.Kind, e.Field), m, nil)
	}
	for _, e := range unique {
		uk := t.uniqueKey(r.Kind, e.Field, e.Value)
		if v, ok, err := t.getString(uk); err == nil && ok && v == m {
			t.strs[uk] = nil
		}
	}
	t.setMember(t.kindKey(r.Kind), m, false)
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
	t.unindex(s, old)
	t.recs[key] = nil
	log.D.F("deleted %s %d", old.Kind, key)
	return
}

// members reads a set with the overlay applied.
func (t *tx) members(key string) (keys []store.Key, err error) {
	if err = t.watch(key); err != nil {
		return
	}
	var ms []string
	if ms, err = t.cmd.SMembers(t.c, key).Result(); err != nil {
		return nil, pkgerrors.Wrapf(err, "reading set %q", key)
	}
	return t.merge(ms, t.sets[key])
}

func (t *tx) merge(ms []string, overlay map[string]bool) (keys []store.Key, err error) {
	seen := make(map[string]bool)
	for _, m := range ms {
		if add, ok := overlay[m]; ok && !add {
			continue
		}
		seen[m] = true
	}
	for m, add := range overlay {
		if add {
			seen[m] = true
		}
	}
	for m := range seen {
		var k store.Key
		if k, err = store.ParseKey(m); err != nil {
			return nil, pkgerrors.Wrapf(err, "bad member %q", m)
		}
		keys = append(keys, k)
	}
	return
}

func (t *tx) fetch(kind string, keys []store.Key,
	match func(r *store.Record) bool) (rs []*store.Record, err error) {

	for _, k := range keys {
		var r *store.Record
		if r, err = t.lookup(k); err != nil {
			return
		}
		if r == nil || r.Kind != kind || (match != nil && !match(r)) {
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
	var keys []store.Key
	if keys, err = t.members(t.equalKey(kind, field, value)); err != nil {
		return
	}
	if rs, err = t.fetch(kind, keys, func(r *store.Record) bool {
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
	zk := t.rangeKey(kind, field)
	if err = t.watch(zk); err != nil {
		return
	}
	// inclusive float bounds, the exact comparison below excludes the ends
	var ms []string
	if ms, err = t.cmd.ZRangeByScore(t.c, zk, &redis.ZRangeBy{
		Min: strconv.FormatFloat(lo, 'g', -1, 64),
		Max: strconv.FormatFloat(hi, 'g', -1, 64),
	}).Result(); err != nil {
		return nil, pkgerrors.Wrapf(err, "reading range %q", zk)
	}
	overlay := make(map[string]bool)
	for m, score := range t.zsets[zk] {
		overlay[m] = score != nil && *score >= lo && *score <= hi
	}
	var keys []store.Key
	if keys, err = t.merge(ms, overlay); err != nil {
		return
	}
	if rs, err = t.fetch(kind, keys, func(r *store.Record) bool {
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
	var v string
	var ok bool
	if v, ok, err = t.getString(t.uniqueKey(kind, field, value)); err != nil {
		return
	}
	if ok {
		var k store.Key
		if k, err = store.ParseKey(v); err != nil {
			return nil, pkgerrors.Wrap(err, "reading unique index")
		}
		if r, err = t.lookup(k); err != nil {
			return
		}
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
	var keys []store.Key
	if keys, err = t.members(t.kindKey(kind)); err != nil {
		return
	}
	if rs, err = t.fetch(kind, keys, nil); err != nil {
		return
	}
	store.SortBy(rs, "")
	return
}

// commit sends the buffered writes in one MULTI/EXEC.
func (t *tx) commit() (err error) {
	if len(t.recs) == 0 && len(t.strs) == 0 && len(t.sets) == 0 && len(t.zsets) == 0 {
		return
	}
	_, err = t.rtx.TxPipelined(t.c, func(pipe redis.Pipeliner) (err error) {
		for k, r := range t.recs {
			if r == nil {
				pipe.Del(t.c, t.recordKey(k))
				continue
			}
			var b []byte
			if b, err = r.Marshal(); err != nil {
				return pkgerrors.Wrap(err, "encoding record")
			}
			pipe.Set(t.c, t.recordKey(k), b, 0)
		}
		for k, v := range t.strs {
			if v == nil {
				pipe.Del(t.c, k)
			} else {
				pipe.Set(t.c, k, *v, 0)
			}
		}
		for k, ms := range t.sets {
			for m, add := range ms {
				if add {
					pipe.SAdd(t.c, k, m)
				} else {
					pipe.SRem(t.c, k, m)
				}
			}
		}
		for k, ms := range t.zsets {
			for m, score := range ms {
				if score != nil {
					pipe.ZAdd(t.c, k, &redis.Z{Score: *score, Member: m})
				} else {
					pipe.ZRem(t.c, k, m)
				}
			}
		}
		return
	})
	return
}
