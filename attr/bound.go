package attr

import (
	"arbor.lol/context"
	"arbor.lol/store"
)

// Bound is a Resolver fixed to the attributes of one owner in one namespace.
type Bound struct {
	r     *Resolver
	owner AttributeBearing
	ns    string
}

// Bound returns the attributes of owner in the namespace ns.
func (r *Resolver) Bound(owner AttributeBearing, ns string) *Bound {
	return &Bound{r: r, owner: owner, ns: ns}
}

func (b *Bound) key() store.Key {
	if b.owner == nil {
		return 0
	}
	return b.owner.Key()
}

func (b *Bound) Get(c context.T, name string, layer store.Key) (value string, ok bool, err error) {
	return b.r.Get(c, b.ns, b.key(), name, layer)
}

func (b *Bound) Set(c context.T, name, value string, layer store.Key) error {
	return b.r.Set(c, b.ns, b.key(), name, value, layer)
}

func (b *Bound) SetWithDescription(c context.T, name, value, description string,
	layer store.Key) error {

	return b.r.SetWithDescription(c, b.ns, b.key(), name, value, description, layer)
}

func (b *Bound) Remove(c context.T, name string, layer store.Key) error {
	return b.r.Remove(c, b.ns, b.key(), name, layer)
}

func (b *Bound) IsCustomized(c context.T, name string, layer store.Key) (bool, error) {
	return b.r.IsCustomized(c, b.ns, b.key(), name, layer)
}

func (b *Bound) IsDefined(c context.T, name string) (bool, error) {
	return b.r.IsDefined(c, b.ns, b.key(), name)
}

func (b *Bound) Names(c context.T) ([]string, error) { return b.r.Names(c, b.ns, b.key()) }

func (b *Bound) Count(c context.T) (int, error) { return b.r.Count(c, b.ns, b.key()) }

// Layer returns the owner's own layer, creating it if needed.
func (b *Bound) Layer(c context.T) (*Layer, error) {
	return b.r.GetOrCreateLayerForObject(c, b.owner)
}
