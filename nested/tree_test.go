package nested

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
	"lukechampine.com/frand"

	"arbor.lol/context"
	"arbor.lol/fault"
	"arbor.lol/fraction"
	"arbor.lol/ratel"
	"arbor.lol/store"
)

func newTree(t *testing.T, opts Options, kinds ...string) *Tree {
	t.Helper()
	db := ratel.New(ratel.BackendParams{})
	require.NoError(t, db.Init(""))
	t.Cleanup(func() { chk.E(db.Close()) })
	tr, err := New(db, opts)
	require.NoError(t, err)
	for _, k := range kinds {
		require.NoError(t, tr.Register(k))
	}
	return tr
}

func collect(t *testing.T, tr *Tree, a Hierarchical) (names []string) {
	t.Helper()
	for n, err := range tr.FindDescendants(context.Bg(), a) {
		require.NoError(t, err)
		names = append(names, n.Name())
	}
	return
}

func TestRoot(t *testing.T) {
	tr := newTree(t, Options{}, "Category")
	c := context.Bg()
	_, err := tr.Root(c, "Category")
	require.ErrorIs(t, err, fault.ErrNotFound)
	roots := make([]*Root, 16)
	var g errgroup.Group
	for i := range roots {
		g.Go(func() (err error) {
			roots[i], err = tr.GetOrCreateRoot(c, "Category")
			return
		})
	}
	require.NoError(t, g.Wait())
	for _, r := range roots {
		assert.Equal(t, roots[0].Key(), r.Key())
	}
	r := roots[0]
	assert.Equal(t, "Category", r.Kind())
	assert.Equal(t, fraction.RootNode, r.NodeFraction())
	assert.Equal(t, fraction.RootSibling, r.SiblingFraction())
	assert.Equal(t, int64(0), r.NodeIndex())
	assert.ErrorIs(t, tr.SetNodeIndex(r, 3), fault.ErrInvalidOperation)
	_, err = tr.GetOrCreateRoot(c, "Unregistered")
	assert.ErrorIs(t, err, fault.ErrInvalidArgument)
}

func TestBeverages(t *testing.T) {
	tr := newTree(t, Options{}, "Category")
	c := context.Bg()
	bev, err := tr.InsertChild(c, "Category", 0, "Beverages")
	require.NoError(t, err)
	beer, err := tr.InsertChild(c, "Category", bev.Key(), "Beer")
	require.NoError(t, err)
	lager, err := tr.InsertChild(c, "Category", beer.Key(), "Lager")
	require.NoError(t, err)
	food, err := tr.InsertChild(c, "Category", 0, "Food")
	require.NoError(t, err)

	for _, x := range []struct {
		n       *Node
		node    fraction.T
		sibling fraction.T
		index   int64
	}{
		{bev, fraction.T{Num: 5, Den: 2}, fraction.T{Num: 8, Den: 3}, 1},
		{beer, fraction.T{Num: 13, Den: 5}, fraction.T{Num: 21, Den: 8}, 1},
		{lager, fraction.T{Num: 34, Den: 13}, fraction.T{Num: 55, Den: 21}, 1},
		{food, fraction.T{Num: 8, Den: 3}, fraction.T{Num: 11, Den: 4}, 2},
	} {
		assert.Equal(t, x.node, x.n.NodeFraction(), x.n.Name())
		assert.Equal(t, x.sibling, x.n.SiblingFraction(), x.n.Name())
		assert.Equal(t, x.index, x.n.NodeIndex(), x.n.Name())
	}

	ok, err := tr.IsAncestorOf(bev, lager)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = tr.IsAncestorOf(lager, bev)
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = tr.IsAncestorOf(food, lager)
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = tr.IsAncestorOf(bev, bev)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.Equal(t, []string{"Beer", "Lager"}, collect(t, tr, bev))
	assert.Empty(t, collect(t, tr, food))
	root, err := tr.Root(c, "Category")
	require.NoError(t, err)
	assert.Equal(t, []string{"Beverages", "Beer", "Lager", "Food"}, collect(t, tr, root))
	assert.Equal(t, int64(2), mustRoot(t, tr).ChildCounter())

	// the sequence runs a fresh query every time it is iterated
	seq := tr.FindDescendants(c, bev)
	_, err = tr.InsertChild(c, "Category", bev.Key(), "Wine")
	require.NoError(t, err)
	var names []string
	for n, err := range seq {
		require.NoError(t, err)
		names = append(names, n.Name())
	}
	assert.Equal(t, []string{"Beer", "Lager", "Wine"}, names)

	as, err := tr.Ancestors(c, lager)
	require.NoError(t, err)
	require.Len(t, as, 2)
	assert.Equal(t, "Beverages", as[0].Name())
	assert.Equal(t, "Beer", as[1].Name())

	kids, err := tr.Children(c, bev)
	require.NoError(t, err)
	require.Len(t, kids, 2)
	assert.Equal(t, "Beer", kids[0].Name())
	assert.Equal(t, "Wine", kids[1].Name())
	top, err := tr.TopLevel(c, "Category")
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, "Beverages", top[0].Name())
	n, err := tr.ChildCount(c, bev, false)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	n, err = tr.ChildCount(c, root, true)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	p, err := tr.Parent(c, beer)
	require.NoError(t, err)
	assert.Equal(t, bev.Key(), p.Key())
	p, err = tr.Parent(c, bev)
	require.NoError(t, err)
	assert.Nil(t, p)
}

func mustRoot(t *testing.T, tr *Tree) *Root {
	r, err := tr.Root(context.Bg(), "Category")
	require.NoError(t, err)
	return r
}

func TestInsertErrors(t *testing.T) {
	tr := newTree(t, Options{MaxDepth: 2}, "Category", "Layer")
	c := context.Bg()
	_, err := tr.InsertChild(c, "Category", 12345, "x")
	assert.ErrorIs(t, err, fault.ErrNotFound)
	_, err = tr.InsertChild(c, "Category", 0, "  ")
	assert.ErrorIs(t, err, fault.ErrInvalidArgument)
	_, err = tr.InsertChild(c, "Nope", 0, "x")
	assert.ErrorIs(t, err, fault.ErrInvalidArgument)
	_, err = tr.InsertChild(c, RootKind, 0, "x")
	assert.ErrorIs(t, err, fault.ErrInvalidArgument)
	a, err := tr.InsertChild(c, "Category", 0, "a")
	require.NoError(t, err)
	_, err = tr.InsertChild(c, "Layer", a.Key(), "x")
	assert.ErrorIs(t, err, fault.ErrNotFound)
	b, err := tr.InsertChild(c, "Category", a.Key(), "b")
	require.NoError(t, err)
	assert.Equal(t, int64(2), b.Depth())
	_, err = tr.InsertChild(c, "Category", b.Key(), "too deep")
	assert.ErrorIs(t, err, fault.ErrInvalidOperation)
	// nothing was written by the refused insert
	n, err := tr.Get(c, b.Key())
	require.NoError(t, err)
	assert.Equal(t, int64(0), n.ChildCounter())

	l, err := tr.InsertChild(c, "Layer", 0, "l")
	require.NoError(t, err)
	_, err = tr.IsAncestorOf(a, l)
	assert.ErrorIs(t, err, fault.ErrInvalidArgument)
	_, err = tr.IsAncestorOf(nil, l)
	assert.ErrorIs(t, err, fault.ErrInvalidArgument)
	var none *Node
	_, err = tr.IsAncestorOf(a, none)
	assert.ErrorIs(t, err, fault.ErrInvalidArgument)
	_, err = tr.Get(c, mustRoot(t, tr).Key())
	assert.ErrorIs(t, err, fault.ErrNotFound)
}

func TestConcurrentInserts(t *testing.T) {
	tr := newTree(t, Options{}, "Category")
	c := context.Bg()
	parent, err := tr.InsertChild(c, "Category", 0, "parent")
	require.NoError(t, err)
	const count = 40
	nodes := make([]*Node, count)
	var g errgroup.Group
	for i := range nodes {
		g.Go(func() (err error) {
			nodes[i], err = tr.InsertChild(c, "Category", parent.Key(), "child")
			return
		})
	}
	require.NoError(t, g.Wait())
	seen := make(map[int64]bool)
	for _, n := range nodes {
		assert.False(t, seen[n.NodeIndex()], "index %d issued twice", n.NodeIndex())
		seen[n.NodeIndex()] = true
		ok, err := tr.IsAncestorOf(parent, n)
		require.NoError(t, err)
		assert.True(t, ok)
	}
	p, err := tr.Get(c, parent.Key())
	require.NoError(t, err)
	assert.Equal(t, int64(count), p.ChildCounter())
	kids, err := tr.Children(c, p)
	require.NoError(t, err)
	require.Len(t, kids, count)
	for i := 1; i < count; i++ {
		assert.True(t, fraction.Less(kids[i-1].NodeFraction(), kids[i].NodeFraction()))
		assert.Equal(t, kids[i-1].SiblingFraction(), kids[i].NodeFraction())
	}
}

// TestLockTableDrains inserts under many parents at once and checks no lock
// entries are left once the inserts return.
func TestLockTableDrains(t *testing.T) {
	tr := newTree(t, Options{}, "Category")
	c := context.Bg()
	var parents []store.Key
	for i := range 8 {
		p, err := tr.InsertChild(c, "Category", 0, fmt.Sprint("parent ", i))
		require.NoError(t, err)
		parents = append(parents, p.Key())
	}
	var g errgroup.Group
	for range 64 {
		g.Go(func() (err error) {
			_, err = tr.InsertChild(c, "Category", parents[frand.Intn(len(parents))], "child")
			return
		})
	}
	require.NoError(t, g.Wait())
	assert.Zero(t, tr.locks.Size())
	var held int
	release := tr.lock("node:1")
	g.Go(func() error {
		defer tr.lock("node:1")()
		held++
		return nil
	})
	assert.Equal(t, 1, tr.locks.Size())
	held++
	release()
	require.NoError(t, g.Wait())
	assert.Equal(t, 2, held)
	assert.Zero(t, tr.locks.Size())
}

// TestRandomTree checks fraction ancestry and range queries against the
// parent links of a randomly shaped tree.
func TestRandomTree(t *testing.T) {
	tr := newTree(t, Options{}, "Category")
	c := context.Bg()
	var nodes []*Node
	parents := make(map[store.Key]store.Key)
	for i := range 120 {
		var parent store.Key
		if len(nodes) > 0 && frand.Intn(5) > 0 {
			parent = nodes[frand.Intn(len(nodes))].Key()
		}
		n, err := tr.InsertChild(c, "Category", parent, "n")
		require.NoError(t, err, "node %d", i)
		nodes = append(nodes, n)
		parents[n.Key()] = parent
	}
	isAncestor := func(a, b store.Key) bool {
		for p := parents[b]; !p.IsZero(); p = parents[p] {
			if p == a {
				return true
			}
		}
		return false
	}
	for _, a := range nodes {
		var want []store.Key
		for _, b := range nodes {
			ok, err := tr.IsAncestorOf(a, b)
			require.NoError(t, err)
			require.Equal(t, isAncestor(a.Key(), b.Key()), ok, "%s / %s", a, b)
			if ok {
				want = append(want, b.Key())
			}
		}
		ds, err := tr.Descendants(c, a)
		require.NoError(t, err)
		var got []store.Key
		for i, d := range ds {
			got = append(got, d.Key())
			if i > 0 {
				require.True(t, fraction.Less(ds[i-1].NodeFraction(), d.NodeFraction()))
			}
		}
		assert.ElementsMatch(t, want, got)
	}
}

// TestDeepPaths grows random paths until the fractions overflow, where the
// index ordinals are far past float64 precision, and checks that every
// subtree query returns exactly the nodes inside the interval.
func TestDeepPaths(t *testing.T) {
	c := context.Bg()
	for trial := range 5 {
		tr := newTree(t, Options{}, "Category")
		var nodes []*Node
		var parent store.Key
	grow:
		for {
			var kids []*Node
			for range 1 + frand.Intn(4) {
				n, err := tr.InsertChild(c, "Category", parent, "n")
				if err != nil {
					require.ErrorIs(t, err, fault.ErrOverflow, "trial %d", trial)
					break grow
				}
				kids = append(kids, n)
				nodes = append(nodes, n)
			}
			parent = kids[frand.Intn(len(kids))].Key()
		}
		require.Greater(t, len(nodes), 20)
		for _, a := range nodes {
			var want []store.Key
			for _, b := range nodes {
				ok, err := IsAncestorOf(a, b)
				require.NoError(t, err)
				if ok {
					want = append(want, b.Key())
				}
			}
			ds, err := tr.Descendants(c, a)
			require.NoError(t, err)
			var got []store.Key
			for _, d := range ds {
				got = append(got, d.Key())
			}
			require.ElementsMatch(t, want, got, "trial %d, descendants of %s", trial, a)
		}
	}
}

func TestSetParentAndRename(t *testing.T) {
	tr := newTree(t, Options{}, "Category")
	c := context.Bg()
	bev, err := tr.InsertChild(c, "Category", 0, "Beverages")
	require.NoError(t, err)
	beer, err := tr.InsertChild(c, "Category", bev.Key(), "Beer")
	require.NoError(t, err)
	lager, err := tr.InsertChild(c, "Category", beer.Key(), "Lager")
	require.NoError(t, err)
	food, err := tr.InsertChild(c, "Category", 0, "Food")
	require.NoError(t, err)

	assert.ErrorIs(t, tr.SetParent(c, beer, beer.Key()), fault.ErrCyclic)
	assert.ErrorIs(t, tr.SetParent(c, bev, lager.Key()), fault.ErrCyclic)
	assert.NoError(t, tr.SetParent(c, beer, bev.Key()))
	assert.ErrorIs(t, tr.SetParent(c, beer, food.Key()), fault.ErrInvalidOperation)
	assert.ErrorIs(t, tr.SetNodeIndex(beer, 7), fault.ErrInvalidOperation)

	require.NoError(t, tr.Rename(c, beer, "Beers"))
	assert.Equal(t, "Beers", beer.Name())
	got, err := tr.Get(c, beer.Key())
	require.NoError(t, err)
	assert.Equal(t, "Beers", got.Name())
	assert.Equal(t, beer.NodeFraction(), got.NodeFraction())
	assert.ErrorIs(t, tr.Rename(c, beer, ""), fault.ErrInvalidArgument)
	found, err := tr.Find(c, "Category", "Beers")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, beer.Key(), found[0].Key())
}
