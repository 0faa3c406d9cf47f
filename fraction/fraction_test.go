package fraction

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"lukechampine.com/frand"

	"arbor.lol/fault"
)

type node struct {
	n, s     T
	children []*node
}

// grow builds a complete tree of the given depth and fan-out under n.
func grow(t *testing.T, n *node, depth, fanout int) {
	if depth == 0 {
		return
	}
	for k := 0; k < fanout; k++ {
		cn, cs, err := NextChild(n.n, n.s, k)
		require.NoError(t, err)
		c := &node{n: cn, s: cs}
		n.children = append(n.children, c)
		grow(t, c, depth-1, fanout)
	}
}

// check verifies ordering, nesting and adjacency of every child interval.
func check(t *testing.T, n *node) {
	prev := n.n
	for i, c := range n.children {
		require.True(t, Less(prev, c.n), "child %d %s not after %s", i, c.n, prev)
		require.True(t, Between(c.n, n.n, n.s), "%s outside [%s, %s)", c.n, n.n, n.s)
		require.True(t, Less(c.s, n.s), "sibling %s not below parent sibling %s", c.s, n.s)
		d, ok := Determinant(c.n, c.s)
		require.True(t, ok)
		require.Equal(t, int64(-1), d, "%s and %s are not farey neighbours", c.n, c.s)
		if i+1 < len(n.children) {
			require.True(t, Equal(c.s, n.children[i+1].n))
		}
		prev = c.n
		check(t, c)
	}
}

func TestNextChildExhaustive(t *testing.T) {
	root := &node{n: RootNode, s: RootSibling}
	grow(t, root, 5, 6)
	check(t, root)
}

func TestNextChildFirstIsMediant(t *testing.T) {
	n, s, err := NextChild(RootNode, RootSibling, 0)
	require.NoError(t, err)
	m, err := Mediant(RootNode, RootSibling)
	require.NoError(t, err)
	assert.Equal(t, T{5, 2}, n)
	assert.Equal(t, m, n)
	assert.Equal(t, T{8, 3}, s)
	n, s, err = NextChild(RootNode, RootSibling, 1)
	require.NoError(t, err)
	assert.Equal(t, T{8, 3}, n)
	assert.Equal(t, T{11, 4}, s)
	// the second child is the mediant of the first and the parent sibling
	m, err = Mediant(T{5, 2}, RootSibling)
	require.NoError(t, err)
	assert.Equal(t, m, n)
}

func TestNextChildRandomPaths(t *testing.T) {
	for range 200 {
		pn, ps := RootNode, RootSibling
		depth := frand.Intn(12) + 1
		for range depth {
			k := frand.Intn(20)
			cn, cs, err := NextChild(pn, ps, k)
			require.NoError(t, err)
			require.True(t, Between(cn, pn, ps))
			require.True(t, Less(cs, ps) || Equal(cs, ps))
			require.True(t, Less(cn, cs))
			pn, ps = cn, cs
		}
	}
}

func TestNextChildInvalid(t *testing.T) {
	_, _, err := NextChild(T{}, RootSibling, 0)
	assert.ErrorIs(t, err, fault.ErrInvalidArgument)
	_, _, err = NextChild(RootSibling, RootNode, 0)
	assert.ErrorIs(t, err, fault.ErrInvalidArgument)
	_, _, err = NextChild(RootNode, RootSibling, -2)
	assert.ErrorIs(t, err, fault.ErrInvalidArgument)
}

func TestOverflow(t *testing.T) {
	big := T{math.MaxInt64 / 2, math.MaxInt64/2 - 1}
	_, err := Mediant(big, T{math.MaxInt64/2 + 2, math.MaxInt64/2 - 2})
	assert.ErrorIs(t, err, fault.ErrOverflow)
	_, _, err = NextChild(T{1 << 40, 1 << 39}, T{1<<40 + 1, 1 << 39}, 1<<30)
	assert.ErrorIs(t, err, fault.ErrOverflow)
	// repeatedly descending into the last child overflows eventually, and
	// always reports it rather than wrapping around
	pn, ps := RootNode, RootSibling
	var err2 error
	for range 200 {
		var cn, cs T
		if cn, cs, err2 = NextChild(pn, ps, 1000); err2 != nil {
			break
		}
		require.True(t, Between(cn, pn, ps))
		pn, ps = cn, cs
	}
	assert.ErrorIs(t, err2, fault.ErrOverflow)
}

func TestCompareIsExact(t *testing.T) {
	a := T{1<<53 + 1, 1 << 53}
	b := T{1, 1}
	require.Equal(t, a.Float(), b.Float())
	assert.Equal(t, 1, Compare(a, b))
	assert.Equal(t, -1, Compare(b, a))
	assert.True(t, Equal(T{2, 4}, T{1, 2}))
	assert.Equal(t, 0, Compare(T{math.MaxInt64, 3}, T{math.MaxInt64, 3}))
	assert.Equal(t, -1, Compare(T{math.MaxInt64 - 1, math.MaxInt64}, T{1, 1}))
}

func TestFloatIsMonotone(t *testing.T) {
	// an adjacent pair whose quotient of separately rounded operands inverts
	node := T{80632328576242366, 28966429195747753}
	sibling := T{130447561731731235, 46862097714160019}
	require.True(t, Less(node, sibling))
	assert.LessOrEqual(t, node.Float(), sibling.Float())
	for range 10000 {
		// neighbours a few ulps apart, far beyond 53 bits
		d := randPositive()/2 + 1
		x := randPositive() / 2
		a, b := T{x, d}, T{x + 1, d}
		require.LessOrEqual(t, a.Float(), b.Float(), "%s %s", a, b)
	}
}

// TestFloatDeepPaths walks random paths down to overflow and checks that the
// floats of every interval stay inside the floats of its parent.
func TestFloatDeepPaths(t *testing.T) {
	for range 200 {
		pn, ps := RootNode, RootSibling
		for {
			cn, cs, err := NextChild(pn, ps, frand.Intn(4))
			if err != nil {
				require.ErrorIs(t, err, fault.ErrOverflow)
				break
			}
			require.LessOrEqual(t, pn.Float(), cn.Float(), "%s under %s", cn, pn)
			require.LessOrEqual(t, cn.Float(), cs.Float(), "%s before %s", cn, cs)
			require.LessOrEqual(t, cs.Float(), ps.Float(), "%s inside %s", cs, ps)
			pn, ps = cn, cs
		}
	}
}

func TestString(t *testing.T) {
	assert.Equal(t, "2/1", RootNode.String())
	assert.True(t, T{}.IsZero())
	assert.False(t, T{}.Valid())
}

func randPositive() int64 { return int64(frand.Uint64n(math.MaxInt64-1)) + 1 }
