package attr

import (
	"errors"
	"fmt"

	"arbor.lol/context"
	"arbor.lol/fault"
	"arbor.lol/nested"
	"arbor.lol/store"
)

// LayerKind is the node kind of layers.
const LayerKind = "Layer"

// Fields layers carry on top of the tree's.
const (
	FieldDescription = "description"
	FieldBaseRef     = "baseRef"
	FieldBaseRefKind = "baseRefKind"
)

// LayerPrefix starts the name of the layer made for an object.
const LayerPrefix = "Layer for: "

// Layer is a node of the layer tree. Attribute values set at a layer
// override the values of its ancestors and of the base definition.
type Layer struct {
	*nested.Node
}

// Description of the layer.
func (l *Layer) Description() string { return l.Field(FieldDescription).Str }

// BaseRef is the key of the object the layer was made for, or zero.
func (l *Layer) BaseRef() store.Key { return l.Field(FieldBaseRef).Ref }

// BaseRefKind is the kind of the object the layer was made for.
func (l *Layer) BaseRefKind() string { return l.Field(FieldBaseRefKind).Str }

// AttributeBearing is an object that attributes can be attached to, and that
// can have a layer of its own.
type AttributeBearing interface {
	Key() store.Key
	Kind() string
	DisplayName() string
	Description() string
}

// Object is a plain AttributeBearing.
type Object struct {
	ID    store.Key
	Type  string
	Name  string
	About string
}

// IsNil reports a nil *Object held in an AttributeBearing.
func (o *Object) IsNil() bool { return o == nil }

func (o *Object) Key() store.Key      { return o.ID }
func (o *Object) Kind() string        { return o.Type }
func (o *Object) DisplayName() string { return o.Name }
func (o *Object) Description() string { return o.About }

// NodeObject makes a tree node an AttributeBearing, described by its
// description field if it has one.
func NodeObject(n *nested.Node) AttributeBearing {
	return &Object{ID: n.Key(), Type: n.Kind(), Name: n.Name(),
		About: n.Field(FieldDescription).Str}
}

func layerSchema() store.Schema {
	return store.Schema{Kind: LayerKind, Unique: []string{FieldBaseRef}}
}

// GetOrCreateLayerForObject returns the layer made for owner, creating it if
// there is none. The layer is a top-level node of the layer tree named after
// the owner. An owner that has not been stored yet has no key to refer to and
// fails with fault.ErrPrecondition.
func (r *Resolver) GetOrCreateLayerForObject(c context.T, owner AttributeBearing) (l *Layer, err error) {
	if isNil(owner) || owner.Key().IsZero() {
		return nil, fault.New(fault.ErrPrecondition, "the object must be stored before it has a layer")
	}
	v, err, _ := r.layers.Do(owner.Key().String(), func() (any, error) {
		return r.getOrCreateLayer(c, owner)
	})
	if err != nil {
		return
	}
	return v.(*Layer), nil
}

// isNil is true for a nil owner, and for a nil pointer in an owner that can
// report it.
func isNil(owner AttributeBearing) bool {
	if owner == nil {
		return true
	}
	type nilable interface{ IsNil() bool }
	if v, ok := owner.(nilable); ok {
		return v.IsNil()
	}
	return false
}

func (r *Resolver) getOrCreateLayer(c context.T, owner AttributeBearing) (l *Layer, err error) {
	if l, err = r.layerFor(c, owner.Key()); err == nil || !errors.Is(err, fault.ErrNotFound) {
		return
	}
	var n *nested.Node
	n, err = r.tree.InsertChildRecord(c, LayerKind, 0, LayerPrefix+owner.DisplayName(),
		map[string]store.Value{
			FieldDescription: store.String(owner.Description()),
			FieldBaseRef:     store.Ref(owner.Key()),
			FieldBaseRefKind: store.String(owner.Kind()),
		})
	if errors.Is(err, fault.ErrConcurrentModification) {
		log.D.F("layer for %d was created concurrently, reading it", owner.Key())
		return r.layerFor(c, owner.Key())
	}
	if err != nil {
		return
	}
	log.I.F("created layer %s for %s %d", n, owner.Kind(), owner.Key())
	return &Layer{n}, nil
}

func (r *Resolver) layerFor(c context.T, key store.Key) (l *Layer, err error) {
	var rec *store.Record
	if err = r.db.View(c, func(tx store.Tx) (err error) {
		rec, err = tx.GetUnique(LayerKind, FieldBaseRef, store.Ref(key))
		return
	}); err != nil {
		return
	}
	return r.layerOf(c, rec.Key)
}

func (r *Resolver) layerOf(c context.T, key store.Key) (l *Layer, err error) {
	var n *nested.Node
	if n, err = r.tree.Get(c, key); err != nil {
		return
	}
	if n.Kind() != LayerKind {
		return nil, fault.New(fault.ErrNotFound, "%d is a %s, not a layer", key, n.Kind())
	}
	return &Layer{n}, nil
}

// LayersFor returns the layer of every owner, creating those that are
// missing.
func (r *Resolver) LayersFor(c context.T, owners ...AttributeBearing) (ls []*Layer, err error) {
	for _, o := range owners {
		var l *Layer
		if l, err = r.GetOrCreateLayerForObject(c, o); err != nil {
			return
		}
		ls = append(ls, l)
	}
	return
}

// CreateLayer makes a named layer under parent, or at the top of the layer
// tree if parent is zero.
func (r *Resolver) CreateLayer(c context.T, name string, parent store.Key) (l *Layer, err error) {
	var n *nested.Node
	if n, err = r.tree.InsertChildRecord(c, LayerKind, parent, name,
		map[string]store.Value{FieldDescription: store.String("")}); err != nil {
		return
	}
	return &Layer{n}, nil
}

// FindLayer returns the first layer created with the name.
func (r *Resolver) FindLayer(c context.T, name string) (l *Layer, err error) {
	var ns []*nested.Node
	if ns, err = r.tree.Find(c, LayerKind, name); err != nil {
		return
	}
	if len(ns) == 0 {
		return nil, fault.New(fault.ErrNotFound, "no layer %q", name)
	}
	return &Layer{ns[0]}, nil
}

// Layer returns the layer with the key.
func (r *Resolver) Layer(c context.T, key store.Key) (l *Layer, err error) {
	return r.layerOf(c, key)
}

// Layers returns the whole layer tree in depth first order.
func (r *Resolver) Layers(c context.T) (ls []*Layer, err error) {
	var ns []*nested.Node
	if ns, err = r.tree.Walk(c, LayerKind); err != nil {
		return
	}
	for _, n := range ns {
		ls = append(ls, &Layer{n})
	}
	return
}

func (l *Layer) String() string {
	return fmt.Sprintf("layer %d %q", l.Key(), l.Name())
}
