// Package order sorts hierarchical objects by their parent chain and then by
// name, and guards parent assignments against cycles.
package order

import (
	"slices"
	"strings"

	"arbor.lol/context"
	"arbor.lol/fault"
	"arbor.lol/lol"
	"arbor.lol/store"
)

var log = lol.Main.Log

// Named is an object with a key and a display name that has a parent
// resolvable by key.
type Named interface {
	Key() store.Key
	Name() string
}

// Resolver finds the parent of the object with a key. A top-level object has
// a nil parent.
type Resolver interface {
	ParentOf(c context.T, key store.Key) (parent Named, err error)
}

// MaxChain bounds every walk up a parent chain; a longer chain can only be a
// loop in stored data.
const MaxChain = 1 << 16

// isNil reports whether n is nil or wraps a nil pointer.
func isNil(n Named) bool {
	if n == nil {
		return true
	}
	type nilable interface{ IsNil() bool }
	if v, ok := n.(nilable); ok {
		return v.IsNil()
	}
	return false
}

// Compare orders a and b by their parents, recursively, and then by name. nil
// sorts before anything else, and two objects with the same key are equal. So
// top-level objects sort by name, and children follow their parent.
func Compare(c context.T, r Resolver, a, b Named) (int, error) {
	return compare(c, r, a, b, 0)
}

func compare(c context.T, r Resolver, a, b Named, depth int) (cmp int, err error) {
	an, bn := isNil(a), isNil(b)
	switch {
	case an && bn:
		return 0, nil
	case an:
		return -1, nil
	case bn:
		return 1, nil
	case a.Key() == b.Key():
		return 0, nil
	case depth > MaxChain:
		return 0, fault.New(fault.ErrCyclic, "parent chain of %d is a loop", a.Key())
	}
	var ap, bp Named
	if ap, err = r.ParentOf(c, a.Key()); err != nil {
		return
	}
	if bp, err = r.ParentOf(c, b.Key()); err != nil {
		return
	}
	if cmp, err = compare(c, r, ap, bp, depth+1); err != nil || cmp != 0 {
		return
	}
	return strings.Compare(a.Name(), b.Name()), nil
}

// Sort sorts ns stably with Compare. Parents are looked up once each.
func Sort[N Named](c context.T, r Resolver, ns []N) (err error) {
	cr := &cached{r: r, m: make(map[store.Key]Named)}
	slices.SortStableFunc(ns, func(a, b N) int {
		if err != nil {
			return 0
		}
		var cmp int
		cmp, err = Compare(c, cr, a, b)
		return cmp
	})
	return
}

type cached struct {
	r Resolver
	m map[store.Key]Named
}

func (cr *cached) ParentOf(c context.T, key store.Key) (p Named, err error) {
	var ok bool
	if p, ok = cr.m[key]; ok {
		return
	}
	if p, err = cr.r.ParentOf(c, key); err != nil {
		return
	}
	cr.m[key] = p
	return
}

// CheckParent fails with fault.ErrCyclic if making candidate the parent of n
// would put n in its own parent chain: candidate is n, or n is an ancestor of
// candidate. A zero candidate (top level) is always allowed.
func CheckParent(c context.T, r Resolver, n Named, candidate store.Key) (err error) {
	if isNil(n) {
		return fault.New(fault.ErrInvalidArgument, "nil object")
	}
	seen := make(map[store.Key]struct{})
	for cur := candidate; !cur.IsZero(); {
		if cur == n.Key() {
			log.W.F("%d cannot be set as the parent of %d (%s), it would be a cycle",
				candidate, n.Key(), n.Name())
			return fault.New(fault.ErrCyclic,
				"%d cannot be set as the parent of %q", candidate, n.Name())
		}
		if _, ok := seen[cur]; ok || len(seen) > MaxChain {
			return fault.New(fault.ErrCyclic, "parent chain of %d is a loop", candidate)
		}
		seen[cur] = struct{}{}
		if err = c.Err(); err != nil {
			return
		}
		var p Named
		if p, err = r.ParentOf(c, cur); err != nil {
			return
		}
		if isNil(p) {
			break
		}
		cur = p.Key()
	}
	return
}
