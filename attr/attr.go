// Package attr keeps named string attributes of objects, with values that can
// be overridden per layer. A value is looked up at a layer, then at each
// ancestor of the layer in the layer tree, and finally in the base definition
// that belongs to no layer.
//
// Attribute names are matched without regard to case, and keep the case they
// were first written with.
package attr

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"golang.org/x/sync/singleflight"

	"arbor.lol/context"
	"arbor.lol/fault"
	"arbor.lol/lol"
	"arbor.lol/nested"
	"arbor.lol/store"
)

var log = lol.Main.Log

// Kind is the record kind of attributes.
const Kind = "Attribute"

// Record fields of attributes.
const (
	FieldNamespace = "ns"
	FieldOwner     = "owner"
	FieldName      = "name"
	FieldLayer     = "layer"
	FieldValue     = "value"
	// FieldTuple is the unique (namespace, owner, lower-case name, layer).
	FieldTuple = "tuple"
	// FieldScope is (namespace, owner), for listing an owner's attributes.
	FieldScope = "scope"
	// FieldNameScope is (namespace, owner, lower-case name), for finding every
	// layer's value of one attribute.
	FieldNameScope = "nameScope"
)

// retries is how many times a write that lost a race is run again, so that
// the last writer wins.
const retries = 3

// Attribute is one stored value: the base definition if Layer is zero, or a
// customisation at Layer.
type Attribute struct {
	Key         store.Key
	Namespace   string
	Owner       store.Key
	Name        string
	Layer       store.Key
	Value       string
	Description string
}

func (a *Attribute) String() string {
	return fmt.Sprintf("%s/%d/%s@%d = %q", a.Namespace, a.Owner, a.Name, a.Layer, a.Value)
}

func attributeOf(rec *store.Record) *Attribute {
	return &Attribute{
		Key:         rec.Key,
		Namespace:   rec.String(FieldNamespace),
		Owner:       rec.Ref(FieldOwner),
		Name:        rec.String(FieldName),
		Layer:       rec.Ref(FieldLayer),
		Value:       rec.String(FieldValue),
		Description: rec.String(FieldDescription),
	}
}

func scope(ns string, owner store.Key) string {
	return ns + "\x00" + owner.String()
}

func nameScope(ns string, owner store.Key, name string) string {
	return scope(ns, owner) + "\x00" + strings.ToLower(name)
}

func tuple(ns string, owner store.Key, name string, layer store.Key) string {
	return nameScope(ns, owner, name) + "\x00" + layer.String()
}

// Schema is the store schema of attributes.
func Schema() store.Schema {
	return store.Schema{
		Kind:   Kind,
		Equal:  []string{FieldScope, FieldNameScope, FieldLayer},
		Unique: []string{FieldTuple},
	}
}

// Options configure a Resolver.
type Options struct {
	// RequireBase refuses to customise an attribute at a layer unless it has a
	// base definition.
	RequireBase bool
}

// Resolver reads and writes layered attributes.
type Resolver struct {
	db     store.I
	tree   *nested.Tree
	opts   Options
	layers singleflight.Group
}

// New creates a Resolver keeping attributes in db and layers in tree, and
// registers both kinds.
func New(db store.I, tree *nested.Tree, opts Options) (r *Resolver, err error) {
	if err = db.Register(Schema()); err != nil {
		return
	}
	if err = tree.Register(LayerKind, layerSchema()); err != nil {
		return
	}
	return &Resolver{db: db, tree: tree, opts: opts}, nil
}

// Tree returns the tree layers are kept in.
func (r *Resolver) Tree() *nested.Tree { return r.tree }

func validate(ns, name string) (err error) {
	if ns == "" {
		return fault.New(fault.ErrInvalidArgument, "empty namespace")
	}
	if strings.TrimSpace(name) == "" {
		return fault.New(fault.ErrInvalidArgument, "empty attribute name")
	}
	return
}

func find(tx store.Tx, ns string, owner store.Key, name string,
	layer store.Key) (rec *store.Record, err error) {

	if rec, err = tx.GetUnique(Kind, FieldTuple,
		store.String(tuple(ns, owner, name, layer))); errors.Is(err, fault.ErrNotFound) {
		return nil, nil
	}
	return
}

// Get returns the value of the attribute at layer: the value set at the layer
// itself, else at its nearest ancestor that has one, else the base value. ok
// is false if there is no value anywhere.
func (r *Resolver) Get(c context.T, ns string, owner store.Key, name string,
	layer store.Key) (value string, ok bool, err error) {

	var a *Attribute
	if a, err = r.Lookup(c, ns, owner, name, layer); err != nil || a == nil {
		return
	}
	return a.Value, true, nil
}

// Lookup is Get that returns the attribute the value came from, or nil.
func (r *Resolver) Lookup(c context.T, ns string, owner store.Key, name string,
	layer store.Key) (a *Attribute, err error) {

	if err = validate(ns, name); err != nil {
		return
	}
	err = r.db.View(c, func(tx store.Tx) (err error) {
		seen := make(map[store.Key]struct{})
		for cur := layer; ; {
			var rec *store.Record
			if rec, err = find(tx, ns, owner, name, cur); err != nil {
				return
			}
			if rec != nil {
				a = attributeOf(rec)
				log.T.F("resolved %s at layer %d", a, cur)
				return
			}
			if cur.IsZero() {
				return
			}
			if _, ok := seen[cur]; ok {
				return fault.New(fault.ErrCyclic, "layer %d is its own ancestor", cur)
			}
			seen[cur] = struct{}{}
			var l *store.Record
			if l, err = tx.Get(cur); err != nil {
				return
			}
			if l.Kind != LayerKind {
				return fault.New(fault.ErrNotFound, "%d is a %s, not a layer", cur, l.Kind)
			}
			cur = l.Ref(nested.FieldParent)
		}
	})
	return
}

// Set writes the value of the attribute at layer, keeping the description of
// an existing value.
func (r *Resolver) Set(c context.T, ns string, owner store.Key, name, value string,
	layer store.Key) (err error) {

	return r.set(c, ns, owner, name, value, nil, layer)
}

// SetWithDescription writes the value and description of the attribute at
// layer.
func (r *Resolver) SetWithDescription(c context.T, ns string, owner store.Key, name,
	value, description string, layer store.Key) (err error) {

	return r.set(c, ns, owner, name, value, &description, layer)
}

func (r *Resolver) set(c context.T, ns string, owner store.Key, name, value string,
	description *string, layer store.Key) (err error) {

	if err = validate(ns, name); err != nil {
		return
	}
	for range retries {
		err = r.db.Update(c, func(tx store.Tx) (err error) {
			if !layer.IsZero() {
				var l *store.Record
				if l, err = tx.Get(layer); err != nil {
					return
				}
				if l.Kind != LayerKind {
					return fault.New(fault.ErrNotFound, "%d is a %s, not a layer", layer, l.Kind)
				}
				if r.opts.RequireBase {
					var base *store.Record
					if base, err = find(tx, ns, owner, name, 0); err != nil {
						return
					}
					if base == nil {
						log.W.F("refusing to customise %s/%d/%s at layer %d without a base value",
							ns, owner, name, layer)
						return fault.New(fault.ErrPrecondition,
							"%q has no base value to customise", name)
					}
				}
			}
			var rec *store.Record
			if rec, err = find(tx, ns, owner, name, layer); err != nil {
				return
			}
			if rec == nil {
				rec = store.NewRecord(Kind).
					Set(FieldNamespace, store.String(ns)).
					Set(FieldOwner, store.Ref(owner)).
					Set(FieldName, store.String(name)).
					Set(FieldLayer, store.Ref(layer)).
					Set(FieldTuple, store.String(tuple(ns, owner, name, layer))).
					Set(FieldScope, store.String(scope(ns, owner))).
					Set(FieldNameScope, store.String(nameScope(ns, owner, name)))
			}
			rec.Set(FieldValue, store.String(value))
			if description != nil {
				rec.Set(FieldDescription, store.String(*description))
			}
			_, err = tx.Put(rec)
			return
		})
		if !errors.Is(err, fault.ErrConcurrentModification) {
			return
		}
		log.D.F("retrying write of %s/%d/%s: %v", ns, owner, name, err)
	}
	return
}

// Remove deletes the attribute at layer. Removing the base definition also
// removes every layer's customisation of it. Removing an absent attribute does
// nothing.
func (r *Resolver) Remove(c context.T, ns string, owner store.Key, name string,
	layer store.Key) (err error) {

	if err = validate(ns, name); err != nil {
		return
	}
	return r.db.Update(c, func(tx store.Tx) (err error) {
		if !layer.IsZero() {
			var rec *store.Record
			if rec, err = find(tx, ns, owner, name, layer); err != nil || rec == nil {
				return
			}
			return tx.Delete(rec.Key)
		}
		var rs []*store.Record
		if rs, err = tx.QueryEqual(Kind, FieldNameScope,
			store.String(nameScope(ns, owner, name)), ""); err != nil {
			return
		}
		for _, rec := range rs {
			if err = tx.Delete(rec.Key); err != nil {
				return
			}
		}
		if len(rs) > 0 {
			log.D.F("removed %s/%d/%s from %d layers", ns, owner, name, len(rs))
		}
		return
	})
}

// IsCustomized reports whether the attribute has a value at exactly layer.
func (r *Resolver) IsCustomized(c context.T, ns string, owner store.Key, name string,
	layer store.Key) (ok bool, err error) {

	if err = validate(ns, name); err != nil {
		return
	}
	err = r.db.View(c, func(tx store.Tx) (err error) {
		var rec *store.Record
		rec, err = find(tx, ns, owner, name, layer)
		ok = rec != nil
		return
	})
	return
}

// IsDefined reports whether the attribute has a base value.
func (r *Resolver) IsDefined(c context.T, ns string, owner store.Key,
	name string) (ok bool, err error) {

	return r.IsCustomized(c, ns, owner, name, 0)
}

// List returns the attributes of owner set at exactly layer, ordered by name.
func (r *Resolver) List(c context.T, ns string, owner store.Key,
	layer store.Key) (as []*Attribute, err error) {

	err = r.db.View(c, func(tx store.Tx) (err error) {
		var rs []*store.Record
		if rs, err = tx.QueryEqual(Kind, FieldScope, store.String(scope(ns, owner)),
			FieldNameScope); err != nil {
			return
		}
		for _, rec := range rs {
			if rec.Ref(FieldLayer) == layer {
				as = append(as, attributeOf(rec))
			}
		}
		return
	})
	return
}

// Names returns the names of the base attributes of owner, ordered without
// regard to case.
func (r *Resolver) Names(c context.T, ns string, owner store.Key) (names []string, err error) {
	var as []*Attribute
	if as, err = r.List(c, ns, owner, 0); err != nil {
		return
	}
	for _, a := range as {
		names = append(names, a.Name)
	}
	return
}

// Count is the number of base attributes of owner.
func (r *Resolver) Count(c context.T, ns string, owner store.Key) (n int, err error) {
	var names []string
	names, err = r.Names(c, ns, owner)
	return len(names), err
}

// Namespaces returns every namespace that holds an attribute, sorted.
func (r *Resolver) Namespaces(c context.T) (nss []string, err error) {
	err = r.db.View(c, func(tx store.Tx) (err error) {
		var rs []*store.Record
		if rs, err = tx.Scan(Kind); err != nil {
			return
		}
		for _, rec := range rs {
			nss = append(nss, rec.String(FieldNamespace))
		}
		return
	})
	slices.Sort(nss)
	return slices.Compact(nss), err
}
