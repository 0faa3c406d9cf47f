package rediskv

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"lukechampine.com/frand"

	"arbor.lol/context"
	"arbor.lol/fault"
	"arbor.lol/fraction"
	"arbor.lol/store"
)

var testSchema = store.Schema{
	Kind:   "Category",
	Equal:  []string{"parent", "name"},
	Range:  []string{"node"},
	Unique: []string{"code"},
}

func newStore(t *testing.T) (r *T, srv *miniredis.Miniredis) {
	t.Helper()
	srv = miniredis.RunT(t)
	r = New(Params{Prefix: "test:"})
	require.NoError(t, r.Init(srv.Addr()))
	require.NoError(t, r.Register(testSchema))
	t.Cleanup(func() { chk.E(r.Close()) })
	return
}

func category(name string, parent store.Key, node fraction.T) *store.Record {
	return store.NewRecord("Category").
		Set("name", store.String(name)).
		Set("parent", store.Ref(parent)).
		Set("node", store.Frac(node))
}

func put(t *testing.T, r *T, recs ...*store.Record) (ks []store.Key) {
	t.Helper()
	require.NoError(t, r.Update(context.Bg(), func(tx store.Tx) (err error) {
		for _, rec := range recs {
			var k store.Key
			if k, err = tx.Put(rec); err != nil {
				return
			}
			ks = append(ks, k)
		}
		return
	}))
	return
}

func TestPutGetDelete(t *testing.T) {
	r, _ := newStore(t)
	ks := put(t, r,
		category("Beverages", 0, fraction.T{Num: 5, Den: 2}),
		category("Food", 0, fraction.T{Num: 8, Den: 3}))
	require.Len(t, ks, 2)
	require.NoError(t, r.View(context.Bg(), func(tx store.Tx) (err error) {
		var rec *store.Record
		if rec, err = tx.Get(ks[0]); err != nil {
			return
		}
		assert.Equal(t, "Beverages", rec.String("name"))
		_, err = tx.Get(ks[1] + 100)
		assert.ErrorIs(t, err, fault.ErrNotFound)
		err = tx.Delete(ks[0])
		assert.ErrorIs(t, err, fault.ErrInvalidOperation)
		var rs []*store.Record
		if rs, err = tx.QueryEqual("Category", "parent", store.Ref(0), "name"); err != nil {
			return
		}
		require.Len(t, rs, 2)
		assert.Equal(t, "Food", rs[1].String("name"))
		return
	}))
	require.NoError(t, r.Update(context.Bg(), func(tx store.Tx) (err error) {
		if err = tx.Delete(ks[0]); err != nil {
			return
		}
		// the transaction sees its own deletion
		_, err = tx.Get(ks[0])
		assert.ErrorIs(t, err, fault.ErrNotFound)
		var rs []*store.Record
		if rs, err = tx.Scan("Category"); err != nil {
			return
		}
		assert.Len(t, rs, 1)
		return nil
	}))
}

func TestQueryRangeExact(t *testing.T) {
	r, _ := newStore(t)
	var (
		a = fraction.T{Num: 1 << 60, Den: 1<<60 + 1}
		b = fraction.T{Num: 1<<60 - 1, Den: 1 << 60}
	)
	put(t, r, category("a", 0, a), category("b", 0, b),
		category("c", 0, fraction.T{Num: 1, Den: 2}))
	require.NoError(t, r.View(context.Bg(), func(tx store.Tx) (err error) {
		var rs []*store.Record
		if rs, err = tx.QueryRange("Category", "node",
			store.Frac(b), store.Frac(fraction.T{Num: 1, Den: 1}), ""); err != nil {
			return
		}
		require.Len(t, rs, 1)
		assert.Equal(t, "a", rs[0].String("name"))
		_, err = tx.QueryRange("Category", "name", store.Int(0), store.Int(1), "")
		assert.ErrorIs(t, err, fault.ErrInvalidArgument)
		return nil
	}))
}

func TestUnique(t *testing.T) {
	r, _ := newStore(t)
	put(t, r, category("a", 0, fraction.RootNode).Set("code", store.String("A")))
	err := r.Update(context.Bg(), func(tx store.Tx) (err error) {
		_, err = tx.Put(category("b", 0, fraction.RootNode).Set("code", store.String("A")))
		return
	})
	assert.True(t, store.IsDuplicate(err))
	assert.ErrorIs(t, err, fault.ErrConcurrentModification)
	require.NoError(t, r.View(context.Bg(), func(tx store.Tx) (err error) {
		var rec *store.Record
		if rec, err = tx.GetUnique("Category", "code", store.String("A")); err != nil {
			return
		}
		assert.Equal(t, "a", rec.String("name"))
		_, err = tx.GetUnique("Category", "code", store.String("B"))
		assert.ErrorIs(t, err, fault.ErrNotFound)
		return nil
	}))
}

func TestConflict(t *testing.T) {
	r, srv := newStore(t)
	ks := put(t, r, category("a", 0, fraction.RootNode))
	err := r.Update(context.Bg(), func(tx store.Tx) (err error) {
		var rec *store.Record
		if rec, err = tx.Get(ks[0]); err != nil {
			return
		}
		if _, err = tx.Put(rec.Set("name", store.String("b"))); err != nil {
			return
		}
		// another client rewrites the watched record before the commit
		return srv.Set("test:rec:"+ks[0].String(), "x")
	})
	assert.ErrorIs(t, err, fault.ErrConcurrentModification)
	assert.False(t, store.IsDuplicate(err))
}

func TestNuke(t *testing.T) {
	r, srv := newStore(t)
	put(t, r, category("a", 0, fraction.RootNode))
	require.NoError(t, srv.Set("other", "kept"))
	require.NoError(t, r.Nuke())
	assert.Equal(t, []string{"other"}, srv.Keys())
}

// TestQueryRangeDeep stores the intervals of a random path grown until the
// fractions overflow, and checks every range query against exact comparison.
func TestQueryRangeDeep(t *testing.T) {
	r, _ := newStore(t)
	type interval struct{ node, sibling fraction.T }
	var path []interval
	var recs []*store.Record
	pn, ps := fraction.RootNode, fraction.RootSibling
	for {
		n, s, err := fraction.NextChild(pn, ps, frand.Intn(4))
		if err != nil {
			require.ErrorIs(t, err, fault.ErrOverflow)
			break
		}
		path = append(path, interval{n, s})
		recs = append(recs, category(n.String(), 0, n))
		pn, ps = n, s
	}
	put(t, r, recs...)
	for _, a := range path {
		var want []string
		for _, b := range path {
			if fraction.Between(b.node, a.node, a.sibling) {
				want = append(want, b.node.String())
			}
		}
		var rs []*store.Record
		require.NoError(t, r.View(context.Bg(), func(tx store.Tx) (err error) {
			rs, err = tx.QueryRange("Category", "node", store.Frac(a.node), store.Frac(a.sibling), "")
			return
		}))
		var got []string
		for _, rec := range rs {
			got = append(got, rec.String("name"))
		}
		require.ElementsMatch(t, want, got, "inside [%s, %s)", a.node, a.sibling)
	}
}
