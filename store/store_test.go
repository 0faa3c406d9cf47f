package store

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arbor.lol/fault"
	"arbor.lol/fraction"
)

func TestRecordCodec(t *testing.T) {
	r := NewRecord("Category").
		Set("name", String("Lager")).
		Set("node", Frac(fraction.T{Num: 13, Den: 5})).
		Set("index", Int(2)).
		Set("parent", Ref(7)).
		Set("none", Ref(0))
	r.Key = 42
	b, err := r.Marshal()
	require.NoError(t, err)
	r2, err := Unmarshal(b)
	require.NoError(t, err)
	assert.Equal(t, r.Key, r2.Key)
	assert.Equal(t, r.Kind, r2.Kind)
	for f, v := range r.Fields {
		assert.True(t, v.Equal(r2.Get(f)), "field %s: %#v != %#v", f, v, r2.Get(f))
	}
	assert.True(t, r2.Get("none").IsNull())
	assert.Equal(t, Key(7), r2.Ref("parent"))
	assert.Equal(t, "Lager", r2.String("name"))
	// canonical encoding is stable
	b2, err := r2.Marshal()
	require.NoError(t, err)
	assert.Equal(t, b, b2)
}

func TestValueCompare(t *testing.T) {
	assert.Equal(t, 0, Compare(Frac(fraction.T{Num: 1, Den: 2}), Frac(fraction.T{Num: 2, Den: 4})))
	assert.Equal(t, -1, Compare(Frac(fraction.T{Num: 5, Den: 2}), Frac(fraction.T{Num: 8, Den: 3})))
	assert.Equal(t, 1, Compare(String("b"), String("a")))
	assert.Equal(t, -1, Compare(Value{}, String("")))
	assert.Equal(t, -1, Compare(Int(-3), Int(3)))
	assert.Equal(t, Frac(fraction.T{Num: 1, Den: 2}).Canonical(),
		Frac(fraction.T{Num: 3, Den: 6}).Canonical())
	assert.NotEqual(t, String("1").Canonical(), Int(1).Canonical())
	_, ok := String("x").Ordinal()
	assert.False(t, ok)
	o, ok := Frac(fraction.T{Num: 5, Den: 2}).Ordinal()
	assert.True(t, ok)
	assert.Equal(t, 2.5, o)
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(Schema{Kind: "B", Equal: []string{"parent"}}))
	require.NoError(t, r.Register(Schema{Kind: "A", Range: []string{"node"}}))
	assert.Equal(t, []string{"A", "B"}, r.Kinds())
	s, err := r.Get("A")
	require.NoError(t, err)
	assert.True(t, s.HasRange("node"))
	assert.False(t, s.HasEqual("node"))
	_, err = r.Get("C")
	assert.ErrorIs(t, err, fault.ErrInvalidArgument)
	assert.ErrorIs(t, r.Register(Schema{}), fault.ErrInvalidArgument)
	assert.ErrorIs(t, r.Register(Schema{Kind: "X", Unique: []string{""}}), fault.ErrInvalidArgument)
}

func TestEntries(t *testing.T) {
	s := Schema{
		Kind:   "Node",
		Equal:  []string{"parent", "name"},
		Range:  []string{"node", "name"},
		Unique: []string{"root", "parent"},
	}
	r := NewRecord("Node").Set("name", String("x")).Set("node", Frac(fraction.RootNode))
	eq, rng, uq := s.Entries(r)
	require.Len(t, eq, 2)
	assert.True(t, eq[0].Value.IsNull())
	require.Len(t, rng, 1)
	assert.Equal(t, "node", rng[0].Field)
	assert.Empty(t, uq)
}

func TestDuplicate(t *testing.T) {
	err := Duplicate("Root", "rootClassName", String("Category"))
	assert.True(t, IsDuplicate(err))
	assert.ErrorIs(t, err, fault.ErrConcurrentModification)
	assert.False(t, errors.Is(err, fault.ErrStorage))
	assert.Equal(t, fault.ErrConcurrentModification, fault.KindOf(err))
}

func TestSortBy(t *testing.T) {
	rs := []*Record{
		{Key: 3, Fields: map[string]Value{"i": Int(1)}},
		{Key: 1, Fields: map[string]Value{"i": Int(2)}},
		{Key: 2, Fields: map[string]Value{"i": Int(1)}},
	}
	SortBy(rs, "i")
	assert.Equal(t, []Key{2, 3, 1}, []Key{rs[0].Key, rs[1].Key, rs[2].Key})
	SortBy(rs, "")
	assert.Equal(t, []Key{1, 2, 3}, []Key{rs[0].Key, rs[1].Key, rs[2].Key})
}

func TestParseKey(t *testing.T) {
	k, err := ParseKey("1234")
	require.NoError(t, err)
	assert.Equal(t, Key(1234), k)
	assert.Equal(t, "1234", k.String())
	_, err = ParseKey("-1")
	assert.Error(t, err)
}
