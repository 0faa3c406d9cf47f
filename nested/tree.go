// Package nested stores trees as rational nested sets: every node holds an
// exact fraction interval inside its parent's, so that ancestry is a
// comparison of two fractions and a whole subtree is one range query.
//
// Intervals are issued from the parent's child counter when a node is
// inserted and never change afterwards, which is why nodes cannot be moved.
package nested

import (
	"errors"
	"iter"
	"slices"
	"strings"
	"sync"

	"github.com/puzpuzpuz/xsync/v3"
	"golang.org/x/sync/singleflight"

	"arbor.lol/context"
	"arbor.lol/fault"
	"arbor.lol/fraction"
	"arbor.lol/lol"
	"arbor.lol/order"
	"arbor.lol/store"
)

var log, chk = lol.Main.Log, lol.Main.Check

// Options configure a Tree.
type Options struct {
	// MaxDepth refuses inserts that would put a node deeper than this. Zero
	// is unlimited.
	MaxDepth int
}

// Tree is the nested set engine on a store.
type Tree struct {
	db    store.I
	opts  Options
	locks *xsync.MapOf[string, *lockEntry]
	roots singleflight.Group
}

var _ order.Resolver = (*Tree)(nil)

// New creates a Tree on db and registers the root schema.
func New(db store.I, opts Options) (t *Tree, err error) {
	if err = db.Register(RootSchema()); err != nil {
		return
	}
	t = &Tree{
		db:    db,
		opts:  opts,
		locks: xsync.NewMapOf[string, *lockEntry](),
	}
	return
}

// Store returns the store the tree is kept in.
func (t *Tree) Store() store.I { return t.db }

// Register declares a node kind. The schemas in extra add indexes for fields
// that a package layered on the tree stores on its nodes.
func (t *Tree) Register(kind string, extra ...store.Schema) (err error) {
	if kind == "" || kind == RootKind {
		return fault.New(fault.ErrInvalidArgument, "cannot use %q as a node kind", kind)
	}
	s := Schema(kind)
	for _, e := range extra {
		s.Equal = append(s.Equal, e.Equal...)
		s.Range = append(s.Range, e.Range...)
		s.Unique = append(s.Unique, e.Unique...)
	}
	return t.db.Register(s)
}

func (t *Tree) registered(kind string) (err error) {
	if kind == RootKind {
		return fault.New(fault.ErrInvalidArgument, "%s is not a node kind", kind)
	}
	_, err = t.db.Schemas().Get(kind)
	return
}

// lockEntry is a parent's insert lock and the number of callers holding or
// waiting on it. refs only changes inside a Compute on the entry's key.
type lockEntry struct {
	sync.Mutex
	refs int
}

// lock serialises inserts under one parent in this process. The entry is
// dropped when the last caller releases it, so the table only holds parents
// with inserts in flight.
func (t *Tree) lock(id string) func() {
	e, _ := t.locks.Compute(id, func(e *lockEntry, loaded bool) (*lockEntry, bool) {
		if !loaded {
			e = &lockEntry{}
		}
		e.refs++
		return e, false
	})
	e.Lock()
	return func() {
		e.Unlock()
		t.locks.Compute(id, func(e *lockEntry, _ bool) (*lockEntry, bool) {
			e.refs--
			return e, e.refs == 0
		})
	}
}

func rootLock(kind string) string   { return "root:" + kind }
func nodeLock(k store.Key) string   { return "node:" + k.String() }
func cycleError(k store.Key) error  { return fault.New(fault.ErrCyclic, "parent chain of %d is a loop", k) }
func notNode(k store.Key) error     { return fault.New(fault.ErrNotFound, "record %d is not a tree node", k) }
func rootMissing(kind string) error { return fault.New(fault.ErrNotFound, "no root for %s", kind) }

// GetOrCreateRoot returns the root of the kind's tree, creating it if there
// is none. Concurrent calls, in this process or others, all get the same root.
func (t *Tree) GetOrCreateRoot(c context.T, kind string) (r *Root, err error) {
	if err = t.registered(kind); err != nil {
		return
	}
	v, err, shared := t.roots.Do(kind, func() (any, error) { return t.getOrCreateRoot(c, kind) })
	if err != nil {
		return
	}
	if shared {
		log.T.F("shared root lookup for %s", kind)
	}
	return v.(*Root), nil
}

func (t *Tree) getOrCreateRoot(c context.T, kind string) (r *Root, err error) {
	if r, err = t.Root(c, kind); err == nil || !errors.Is(err, fault.ErrNotFound) {
		return
	}
	err = t.db.Update(c, func(tx store.Tx) (err error) {
		var rec *store.Record
		if rec, err = tx.GetUnique(RootKind, FieldRootClass, store.String(kind)); err == nil {
			r = rootOf(rec)
			return
		} else if !errors.Is(err, fault.ErrNotFound) {
			return
		}
		rec = store.NewRecord(RootKind).
			Set(FieldRootClass, store.String(kind)).
			Set(FieldCounter, store.Int(0))
		if _, err = tx.Put(rec); err != nil {
			return
		}
		r = rootOf(rec)
		return
	})
	if errors.Is(err, fault.ErrConcurrentModification) {
		// another process created it first
		log.D.F("lost the race to create the %s root, reading the winner's", kind)
		return t.Root(c, kind)
	}
	if err == nil {
		log.I.F("created root %s", r)
	}
	return
}

// Root returns the root of the kind's tree, or fault.ErrNotFound.
func (t *Tree) Root(c context.T, kind string) (r *Root, err error) {
	err = t.db.View(c, func(tx store.Tx) (err error) {
		var rec *store.Record
		if rec, err = tx.GetUnique(RootKind, FieldRootClass, store.String(kind)); err != nil {
			if errors.Is(err, fault.ErrNotFound) {
				err = rootMissing(kind)
			}
			return
		}
		r = rootOf(rec)
		return
	})
	return
}

// InsertChild creates a node of the kind named name under parent, or at the
// top level of the kind's tree if parent is zero. The node takes the next
// interval from its parent's counter, and the node and the parent's counter
// are written in one transaction.
func (t *Tree) InsertChild(c context.T, kind string, parent store.Key,
	name string) (n *Node, err error) {

	return t.insert(c, kind, parent, name, nil)
}

// InsertChildRecord is InsertChild for a node that carries extra fields, which
// are copied from extra. The tree's own fields in extra are ignored.
func (t *Tree) InsertChildRecord(c context.T, kind string, parent store.Key, name string,
	extra map[string]store.Value) (n *Node, err error) {

	return t.insert(c, kind, parent, name, extra)
}

func (t *Tree) insert(c context.T, kind string, parent store.Key, name string,
	extra map[string]store.Value) (n *Node, err error) {

	if strings.TrimSpace(name) == "" {
		return nil, fault.New(fault.ErrInvalidArgument, "a %s needs a name", kind)
	}
	if err = t.registered(kind); err != nil {
		return
	}
	id := nodeLock(parent)
	if parent.IsZero() {
		if _, err = t.GetOrCreateRoot(c, kind); err != nil {
			return
		}
		id = rootLock(kind)
	}
	defer t.lock(id)()
	err = t.db.Update(c, func(tx store.Tx) (err error) {
		var prec *store.Record
		var p Hierarchical
		if parent.IsZero() {
			if prec, err = tx.GetUnique(RootKind, FieldRootClass, store.String(kind)); err != nil {
				return
			}
			p = rootOf(prec)
		} else {
			if prec, err = tx.Get(parent); err != nil {
				return
			}
			if prec.Kind != kind {
				return fault.New(fault.ErrNotFound, "no %s %d, it is a %s", kind, parent, prec.Kind)
			}
			p = nodeOf(prec)
		}
		depth := depthOf(p) + 1
		if t.opts.MaxDepth > 0 && depth > int64(t.opts.MaxDepth) {
			log.W.F("refusing %s %q at depth %d", kind, name, depth)
			return fault.New(fault.ErrInvalidOperation, "%s %q would be at depth %d, the limit is %d",
				kind, name, depth, t.opts.MaxDepth)
		}
		counter := p.ChildCounter()
		var node, sibling fraction.T
		if node, sibling, err = fraction.NextChild(p.NodeFraction(), p.SiblingFraction(),
			int(counter)); err != nil {
			return
		}
		rec := store.NewRecord(kind)
		for f, v := range extra {
			rec.Set(f, v)
		}
		rec.Set(FieldParent, store.Ref(parent)).
			Set(FieldName, store.String(name)).
			Set(FieldNode, store.Frac(node)).
			Set(FieldSibling, store.Frac(sibling)).
			Set(FieldIndex, store.Int(counter+1)).
			Set(FieldCounter, store.Int(0)).
			Set(FieldDepth, store.Int(depth))
		if _, err = tx.Put(rec); err != nil {
			return
		}
		prec.Set(FieldCounter, store.Int(counter+1))
		if _, err = tx.Put(prec); err != nil {
			return
		}
		n = nodeOf(rec)
		return
	})
	if err != nil {
		return nil, err
	}
	log.D.F("inserted %s", n)
	return
}

// Get returns the node with the key.
func (t *Tree) Get(c context.T, key store.Key) (n *Node, err error) {
	err = t.db.View(c, func(tx store.Tx) (err error) {
		n, err = getNode(tx, key)
		return
	})
	return
}

func getNode(tx store.Tx, key store.Key) (n *Node, err error) {
	var rec *store.Record
	if rec, err = tx.Get(key); err != nil {
		return
	}
	if rec.Kind == RootKind || rec.Get(FieldNode).Type != store.FractionType {
		return nil, notNode(key)
	}
	return nodeOf(rec), nil
}

// Parent returns the parent of n, or nil if n is top-level.
func (t *Tree) Parent(c context.T, n *Node) (p *Node, err error) {
	if n == nil {
		return nil, fault.New(fault.ErrInvalidArgument, "nil node")
	}
	if n.ParentKey().IsZero() {
		return
	}
	return t.Get(c, n.ParentKey())
}

// ParentOf returns the parent of the node with the key, for order.
func (t *Tree) ParentOf(c context.T, key store.Key) (p order.Named, err error) {
	var n, pn *Node
	if n, err = t.Get(c, key); err != nil {
		return
	}
	if pn, err = t.Parent(c, n); err != nil || pn == nil {
		return
	}
	return pn, nil
}

// Ancestors returns the chain of parents of n, top-level first.
func (t *Tree) Ancestors(c context.T, n *Node) (as []*Node, err error) {
	if n == nil {
		return nil, fault.New(fault.ErrInvalidArgument, "nil node")
	}
	err = t.db.View(c, func(tx store.Tx) (err error) {
		seen := map[store.Key]struct{}{n.Key(): {}}
		for k := n.ParentKey(); !k.IsZero(); {
			if _, ok := seen[k]; ok {
				return cycleError(n.Key())
			}
			seen[k] = struct{}{}
			var p *Node
			if p, err = getNode(tx, k); err != nil {
				return
			}
			as = append(as, p)
			k = p.ParentKey()
		}
		return
	})
	slices.Reverse(as)
	return
}

// IsAncestorOf reports whether b lies strictly inside a's interval, comparing
// the fractions exactly. a may be a Root, which is the ancestor of every node
// of its kind.
func (t *Tree) IsAncestorOf(a, b Hierarchical) (ok bool, err error) {
	return IsAncestorOf(a, b)
}

// IsAncestorOf reports whether b lies strictly inside a's interval.
func IsAncestorOf(a, b Hierarchical) (ok bool, err error) {
	if isNil(a) || isNil(b) {
		return false, fault.New(fault.ErrInvalidArgument, "nil node")
	}
	if a.Kind() != b.Kind() {
		return false, fault.New(fault.ErrInvalidArgument,
			"%s and %s are in different trees", a.Kind(), b.Kind())
	}
	return fraction.Between(b.NodeFraction(), a.NodeFraction(), a.SiblingFraction()), nil
}

// FindDescendants yields every node in a's subtree, in ascending order of
// node fraction, which is depth-first pre-order. The query runs when the
// sequence is iterated, so each iteration sees the current tree.
func (t *Tree) FindDescendants(c context.T, a Hierarchical) iter.Seq2[*Node, error] {
	return func(yield func(*Node, error) bool) {
		ns, err := t.descendants(c, a)
		if err != nil {
			yield(nil, err)
			return
		}
		for _, n := range ns {
			if !yield(n, nil) {
				return
			}
		}
	}
}

// Descendants is FindDescendants collected into a slice.
func (t *Tree) Descendants(c context.T, a Hierarchical) (ns []*Node, err error) {
	return t.descendants(c, a)
}

func (t *Tree) descendants(c context.T, a Hierarchical) (ns []*Node, err error) {
	if isNil(a) {
		return nil, fault.New(fault.ErrInvalidArgument, "nil node")
	}
	err = t.db.View(c, func(tx store.Tx) (err error) {
		var rs []*store.Record
		if rs, err = tx.QueryRange(a.Kind(), FieldNode, store.Frac(a.NodeFraction()),
			store.Frac(a.SiblingFraction()), FieldNode); err != nil {
			return
		}
		for _, r := range rs {
			ns = append(ns, nodeOf(r))
		}
		return
	})
	return
}

// Children returns the immediate children of n, a Node or a Root, in the
// order they were inserted.
func (t *Tree) Children(c context.T, n Hierarchical) (ns []*Node, err error) {
	if isNil(n) {
		return nil, fault.New(fault.ErrInvalidArgument, "nil node")
	}
	var parent store.Key
	if _, ok := n.(*Root); !ok {
		parent = n.Key()
	}
	return t.children(c, n.Kind(), parent)
}

// TopLevel returns the nodes of the kind that have no parent.
func (t *Tree) TopLevel(c context.T, kind string) (ns []*Node, err error) {
	return t.children(c, kind, 0)
}

func (t *Tree) children(c context.T, kind string, parent store.Key) (ns []*Node, err error) {
	err = t.db.View(c, func(tx store.Tx) (err error) {
		var rs []*store.Record
		if rs, err = tx.QueryEqual(kind, FieldParent, store.Ref(parent), FieldIndex); err != nil {
			return
		}
		for _, r := range rs {
			ns = append(ns, nodeOf(r))
		}
		return
	})
	return
}

// ChildCount counts the children of n, or with recursive all its descendants.
func (t *Tree) ChildCount(c context.T, n Hierarchical, recursive bool) (count int, err error) {
	var ns []*Node
	if recursive {
		ns, err = t.descendants(c, n)
	} else {
		ns, err = t.Children(c, n)
	}
	return len(ns), err
}

// SetNodeIndex always fails: a root's index is fixed at 0, and a node's index
// determines its interval, which cannot change once it has been issued.
func (t *Tree) SetNodeIndex(n Hierarchical, idx int) (err error) {
	if isNil(n) {
		return fault.New(fault.ErrInvalidArgument, "nil node")
	}
	log.W.F("refusing to set the index of %v to %d", n, idx)
	if _, ok := n.(*Root); ok {
		return fault.New(fault.ErrInvalidOperation, "the index of a root is always 0")
	}
	return fault.New(fault.ErrInvalidOperation, "the index of %d is fixed at %d",
		n.Key(), n.NodeIndex())
}

// SetParent checks that parent would not make a cycle, then accepts it only
// if it is the current parent: a node's interval is fixed inside its
// parent's, so it cannot be moved.
func (t *Tree) SetParent(c context.T, n *Node, parent store.Key) (err error) {
	if n == nil {
		return fault.New(fault.ErrInvalidArgument, "nil node")
	}
	if err = order.CheckParent(c, t, n, parent); err != nil {
		return
	}
	if parent == n.ParentKey() {
		return
	}
	log.W.F("refusing to move %s under %d", n, parent)
	return fault.New(fault.ErrInvalidOperation, "%d cannot be moved, its interval is fixed", n.Key())
}

// Rename changes the display name of n.
func (t *Tree) Rename(c context.T, n *Node, name string) (err error) {
	if n == nil {
		return fault.New(fault.ErrInvalidArgument, "nil node")
	}
	if strings.TrimSpace(name) == "" {
		return fault.New(fault.ErrInvalidArgument, "empty name")
	}
	return t.Update(c, n, func(rec *store.Record) { rec.Set(FieldName, store.String(name)) })
}

// Update applies fn to the stored record of n and writes it back, then
// refreshes n. The tree's own fields keep their stored values whatever fn
// does to them.
func (t *Tree) Update(c context.T, n *Node, fn func(rec *store.Record)) (err error) {
	var rec *store.Record
	if err = t.db.Update(c, func(tx store.Tx) (err error) {
		var cur *Node
		if cur, err = getNode(tx, n.Key()); err != nil {
			return
		}
		rec = cur.rec.Clone()
		fn(rec)
		for _, f := range []string{FieldParent, FieldNode, FieldSibling, FieldIndex,
			FieldCounter, FieldDepth} {
			rec.Set(f, cur.rec.Get(f))
		}
		_, err = tx.Put(rec)
		return
	}); chk.E(err) {
		return
	}
	n.rec = rec
	return
}

// Find returns the nodes of the kind with the name, in key order.
func (t *Tree) Find(c context.T, kind, name string) (ns []*Node, err error) {
	err = t.db.View(c, func(tx store.Tx) (err error) {
		var rs []*store.Record
		if rs, err = tx.QueryEqual(kind, FieldName, store.String(name), ""); err != nil {
			return
		}
		for _, r := range rs {
			ns = append(ns, nodeOf(r))
		}
		return
	})
	return
}

// Walk returns every node of the kind, ordered by node fraction.
func (t *Tree) Walk(c context.T, kind string) (ns []*Node, err error) {
	var r *Root
	if r, err = t.Root(c, kind); err != nil {
		if errors.Is(err, fault.ErrNotFound) {
			err = nil
		}
		return
	}
	return t.descendants(c, r)
}
