package nested

import (
	"fmt"

	"arbor.lol/fraction"
	"arbor.lol/store"
)

// Record fields of tree nodes and roots.
const (
	FieldParent    = "parent"
	FieldName      = "name"
	FieldNode      = "node"
	FieldSibling   = "sibling"
	FieldIndex     = "index"
	FieldCounter   = "counter"
	FieldDepth     = "depth"
	FieldRootClass = "rootClassName"
)

// RootKind is the record kind roots are stored as.
const RootKind = "NestedRoot"

// Hierarchical is anything that occupies an interval in a tree: a Node or a
// Root.
type Hierarchical interface {
	Key() store.Key
	Kind() string
	ParentKey() store.Key
	NodeFraction() fraction.T
	SiblingFraction() fraction.T
	NodeIndex() int64
	ChildCounter() int64
}

// Node is a stored tree node. Its interval [NodeFraction, SiblingFraction)
// holds the node fractions of all its descendants and nothing else.
type Node struct {
	rec *store.Record
}

var _ Hierarchical = (*Node)(nil)

func nodeOf(rec *store.Record) *Node { return &Node{rec: rec} }

func (n *Node) Key() store.Key              { return n.rec.Key }
func (n *Node) Kind() string                { return n.rec.Kind }
func (n *Node) ParentKey() store.Key        { return n.rec.Ref(FieldParent) }
func (n *Node) Name() string                { return n.rec.String(FieldName) }
func (n *Node) NodeFraction() fraction.T    { return n.rec.Fraction(FieldNode) }
func (n *Node) SiblingFraction() fraction.T { return n.rec.Fraction(FieldSibling) }

// NodeIndex is the 1-based position among siblings the node was created at.
func (n *Node) NodeIndex() int64 { return n.rec.Int(FieldIndex) }

// ChildCounter is the number of children ever issued under the node.
func (n *Node) ChildCounter() int64 { return n.rec.Int(FieldCounter) }

// Depth is 1 for a top-level node.
func (n *Node) Depth() int64 { return n.rec.Int(FieldDepth) }

// IsNil lets a nil *Node inside an interface be recognised.
func (n *Node) IsNil() bool { return n == nil }

// Field returns an extra field stored on the node by a package layered on the
// tree.
func (n *Node) Field(name string) store.Value { return n.rec.Get(name) }

// Record returns a copy of the node's record.
func (n *Node) Record() *store.Record { return n.rec.Clone() }

func (n *Node) String() string {
	return fmt.Sprintf("%s#%d %q [%s, %s)", n.Kind(), n.Key(), n.Name(),
		n.NodeFraction(), n.SiblingFraction())
}

// Root is the single seed of a tree of one kind. Its interval is the whole
// tree: [2/1, 3/1).
type Root struct {
	rec *store.Record
}

var _ Hierarchical = (*Root)(nil)

func rootOf(rec *store.Record) *Root { return &Root{rec: rec} }

func (r *Root) Key() store.Key              { return r.rec.Key }
func (r *Root) Kind() string                { return r.rec.String(FieldRootClass) }
func (r *Root) ParentKey() store.Key        { return 0 }
func (r *Root) NodeFraction() fraction.T    { return fraction.RootNode }
func (r *Root) SiblingFraction() fraction.T { return fraction.RootSibling }
func (r *Root) NodeIndex() int64            { return 0 }
func (r *Root) ChildCounter() int64         { return r.rec.Int(FieldCounter) }
func (r *Root) Depth() int64                { return 0 }

func (r *Root) String() string {
	return fmt.Sprintf("root %s#%d [%s, %s)", r.Kind(), r.Key(), r.NodeFraction(),
		r.SiblingFraction())
}

// depthOf is the depth of a parent, 0 for a root.
func depthOf(h Hierarchical) int64 {
	if d, ok := h.(interface{ Depth() int64 }); ok {
		return d.Depth()
	}
	return 0
}

func isNil(h Hierarchical) bool {
	switch v := h.(type) {
	case nil:
		return true
	case *Node:
		return v == nil || v.rec == nil
	case *Root:
		return v == nil || v.rec == nil
	}
	return false
}

// Schema is the store schema of a node kind: children are found by parent,
// layers and categories by name, and descendants by a range over the node
// fraction.
func Schema(kind string) store.Schema {
	return store.Schema{
		Kind:  kind,
		Equal: []string{FieldParent, FieldName},
		Range: []string{FieldNode},
	}
}

// RootSchema is the store schema of roots, unique by the kind they seed.
func RootSchema() store.Schema {
	return store.Schema{
		Kind:   RootKind,
		Unique: []string{FieldRootClass},
	}
}
