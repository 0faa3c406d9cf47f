package order

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arbor.lol/context"
	"arbor.lol/fault"
	"arbor.lol/store"
)

type obj struct {
	key    store.Key
	parent store.Key
	name   string
}

func (o *obj) Key() store.Key { return o.key }
func (o *obj) Name() string   { return o.name }
func (o *obj) IsNil() bool    { return o == nil }

type objects map[store.Key]*obj

func (m objects) ParentOf(c context.T, key store.Key) (Named, error) {
	o, ok := m[key]
	if !ok {
		return nil, fault.New(fault.ErrNotFound, "no %d", key)
	}
	if o.parent == 0 {
		return nil, nil
	}
	p, ok := m[o.parent]
	if !ok {
		return nil, fault.New(fault.ErrNotFound, "no %d", o.parent)
	}
	return p, nil
}

func catalog() objects {
	m := objects{}
	for _, o := range []*obj{
		{1, 0, "Food"},
		{2, 0, "Beverages"},
		{3, 2, "Beer"},
		{4, 3, "Lager"},
		{5, 2, "Wine"},
		{6, 3, "Ale"},
	} {
		m[o.key] = o
	}
	return m
}

func TestCompare(t *testing.T) {
	m := catalog()
	c := context.Bg()
	cmp := func(a, b store.Key) int {
		v, err := Compare(c, m, m[a], m[b])
		require.NoError(t, err)
		return v
	}
	assert.Equal(t, -1, cmp(2, 1))
	assert.Equal(t, 1, cmp(3, 2))
	assert.Equal(t, -1, cmp(3, 5))
	assert.Equal(t, -1, cmp(6, 4))
	assert.Equal(t, 0, cmp(4, 4))
	v, err := Compare(c, m, nil, m[1])
	require.NoError(t, err)
	assert.Equal(t, -1, v)
	var none *obj
	v, err = Compare(c, m, m[1], none)
	require.NoError(t, err)
	assert.Equal(t, 1, v)
}

func TestSort(t *testing.T) {
	m := catalog()
	ns := []*obj{m[4], m[1], m[5], m[3], m[2], m[6]}
	require.NoError(t, Sort(context.Bg(), m, ns))
	var names []string
	for _, n := range ns {
		names = append(names, n.name)
	}
	// parents at the same level compare before names, so every child of
	// Beverages follows the top-level objects
	assert.Equal(t, []string{"Beverages", "Food", "Beer", "Wine", "Ale", "Lager"}, names)
}

func TestCheckParent(t *testing.T) {
	m := catalog()
	c := context.Bg()
	assert.NoError(t, CheckParent(c, m, m[4], 5))
	assert.NoError(t, CheckParent(c, m, m[3], 0))
	assert.ErrorIs(t, CheckParent(c, m, m[3], 3), fault.ErrCyclic)
	assert.ErrorIs(t, CheckParent(c, m, m[2], 4), fault.ErrCyclic)
	assert.ErrorIs(t, CheckParent(c, m, m[2], 99), fault.ErrNotFound)
	// a loop in stored data that does not involve n
	m[7] = &obj{7, 8, "x"}
	m[8] = &obj{8, 7, "y"}
	assert.ErrorIs(t, CheckParent(c, m, m[1], 7), fault.ErrCyclic)
	_, err := Compare(c, m, m[7], m[8])
	assert.ErrorIs(t, err, fault.ErrCyclic)
}
