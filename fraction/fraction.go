// Package fraction implements the exact rational arithmetic behind the nested
// interval tree encoding.
//
// Every node of a tree owns the half-open interval [Node, Sibling) of the
// rational line. A child with the 1-based index c under a parent p with
// sibling fraction s gets
//
//	node    = (p.Num + c*s.Num) / (p.Den + c*s.Den)
//	sibling = (p.Num + (c+1)*s.Num) / (p.Den + (c+1)*s.Den)
//
// so the first child is the mediant of p and s, each child's sibling fraction
// is the node fraction of the next child, and every interval nests strictly
// inside its parent's. Because the two seed fractions 2/1 and 3/1 are Farey
// neighbours, every generated pair is too, which keeps all fractions in lowest
// terms.
//
// See "Using rational numbers to key nested sets", Dan Hazel,
// http://arxiv.org/abs/0806.3115
package fraction

import (
	"fmt"
	"math"
	"math/big"
	"math/bits"

	"arbor.lol/fault"
)

// T is a positive rational number kept as an unreduced numerator and
// denominator pair.
type T struct {
	Num int64 `cbor:"1,keyasint"`
	Den int64 `cbor:"2,keyasint"`
}

var (
	// RootNode is the node fraction of every tree root.
	RootNode = T{2, 1}
	// RootSibling is the sibling fraction of every tree root.
	RootSibling = T{3, 1}
)

// New returns the fraction num/den.
func New(num, den int64) T { return T{num, den} }

// Valid reports whether the fraction is positive with a positive denominator,
// the only kind the tree encoding produces.
func (f T) Valid() bool { return f.Num > 0 && f.Den > 0 }

// IsZero reports whether the fraction is unset.
func (f T) IsZero() bool { return f.Num == 0 && f.Den == 0 }

func (f T) String() string { return fmt.Sprintf("%d/%d", f.Num, f.Den) }

// Float returns the float64 nearest to the exact value of f. Rounding is
// correct, so a <= b implies a.Float() <= b.Float(), which is what index
// ordinals need. Distinct fractions can share a float, so ordering and
// containment must always be decided with Compare.
func (f T) Float() float64 {
	if f.Den == 0 || (exactFloat(f.Num) && exactFloat(f.Den)) {
		// both operands convert exactly, so the division rounds once
		return float64(f.Num) / float64(f.Den)
	}
	v, _ := new(big.Rat).SetFrac64(f.Num, f.Den).Float64()
	return v
}

// maxExact is the largest magnitude below which every int64 is a float64.
const maxExact = 1 << 53

func exactFloat(i int64) bool { return i >= -maxExact && i <= maxExact }

// Compare returns -1, 0 or 1 as a is less than, equal to or greater than b.
// The cross products are computed in 128 bits so the comparison is exact for
// every pair of valid fractions.
func Compare(a, b T) int {
	ahi, alo := bits.Mul64(uint64(a.Num), uint64(b.Den))
	bhi, blo := bits.Mul64(uint64(b.Num), uint64(a.Den))
	switch {
	case ahi < bhi:
		return -1
	case ahi > bhi:
		return 1
	case alo < blo:
		return -1
	case alo > blo:
		return 1
	}
	return 0
}

// Less reports whether a < b.
func Less(a, b T) bool { return Compare(a, b) < 0 }

// Equal reports whether a and b denote the same rational number, regardless of
// whether they are in lowest terms.
func Equal(a, b T) bool { return Compare(a, b) == 0 }

// Between reports whether lo < x < hi.
func Between(x, lo, hi T) bool { return Less(lo, x) && Less(x, hi) }

// Determinant returns a.Num*b.Den - b.Num*a.Den, which is -1 for every pair of
// adjacent fractions produced by the encoding. The second value is false if
// the result does not fit in 64 bits.
func Determinant(a, b T) (d int64, ok bool) {
	var l, r int64
	if l, ok = mul(a.Num, b.Den); !ok {
		return
	}
	if r, ok = mul(b.Num, a.Den); !ok {
		return
	}
	return l - r, true
}

// Mediant returns (a.Num+b.Num)/(a.Den+b.Den), which lies strictly between a
// and b when a != b.
func Mediant(a, b T) (m T, err error) {
	var ok bool
	if m.Num, ok = add(a.Num, b.Num); !ok {
		return T{}, fault.New(fault.ErrOverflow, "mediant numerator of %s and %s", a, b)
	}
	if m.Den, ok = add(a.Den, b.Den); !ok {
		return T{}, fault.New(fault.ErrOverflow, "mediant denominator of %s and %s", a, b)
	}
	return
}

// At returns the fraction (p.Num + c*s.Num) / (p.Den + c*s.Den).
func At(p, s T, c int64) (f T, err error) {
	if c < 0 {
		return T{}, fault.New(fault.ErrInvalidArgument, "negative child position %d", c)
	}
	var ok bool
	if f.Num, ok = muladd(p.Num, c, s.Num); !ok {
		return T{}, fault.New(fault.ErrOverflow,
			"numerator of child %d between %s and %s", c, p, s)
	}
	if f.Den, ok = muladd(p.Den, c, s.Den); !ok {
		return T{}, fault.New(fault.ErrOverflow,
			"denominator of child %d between %s and %s", c, p, s)
	}
	return
}

// NextChild computes the node and sibling fractions of a new child of the node
// with the given node and sibling fractions. childIndex is the 0-based number
// of children issued before this one, so for every childIndex >= 0
//
//	parentNode < node(0) < node(1) < ... < parentSibling
//
// and sibling(k) == node(k+1).
func NextChild(parentNode, parentSibling T, childIndex int) (node, sibling T, err error) {
	if !parentNode.Valid() || !parentSibling.Valid() {
		err = fault.New(fault.ErrInvalidArgument,
			"invalid parent interval [%s, %s)", parentNode, parentSibling)
		return
	}
	if !Less(parentNode, parentSibling) {
		err = fault.New(fault.ErrInvalidArgument,
			"empty parent interval [%s, %s)", parentNode, parentSibling)
		return
	}
	c := int64(childIndex) + 1
	if node, err = At(parentNode, parentSibling, c); err != nil {
		return
	}
	if c == math.MaxInt64 {
		err = fault.New(fault.ErrOverflow, "child index %d", childIndex)
		return
	}
	sibling, err = At(parentNode, parentSibling, c+1)
	return
}

func add(a, b int64) (int64, bool) {
	s := a + b
	// overflow iff both operands have the same sign and the sum's sign differs
	if (a >= 0) == (b >= 0) && (s >= 0) != (a >= 0) {
		return 0, false
	}
	return s, true
}

func mul(a, b int64) (int64, bool) {
	if a == 0 || b == 0 {
		return 0, true
	}
	p := a * b
	if p/b != a || (a == -1 && b == math.MinInt64) || (b == -1 && a == math.MinInt64) {
		return 0, false
	}
	return p, true
}

// muladd returns a + c*b.
func muladd(a, c, b int64) (int64, bool) {
	p, ok := mul(c, b)
	if !ok {
		return 0, false
	}
	return add(a, p)
}
