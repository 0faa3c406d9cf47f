package store

import (
	"errors"
	"slices"
	"sync"

	"arbor.lol/fault"
)

// ErrDuplicate is matched by the error Put returns when a unique index
// already holds the value for another record. It also matches
// fault.ErrConcurrentModification, since a racing insert is the usual cause.
var ErrDuplicate = &duplicate{}

type duplicate struct{}

func (d *duplicate) Error() string { return "duplicate value in unique index" }

func (d *duplicate) Is(target error) bool {
	return target == fault.ErrConcurrentModification
}

// Duplicate builds the error for a unique index violation.
func Duplicate(kind, field string, v Value) error {
	return fault.Wrap(fault.ErrConcurrentModification, ErrDuplicate,
		"%s.%s already holds %s", kind, field, v)
}

// Schema declares the indexes kept for a kind of record.
type Schema struct {
	Kind string
	// Equal fields can be queried with Tx.QueryEqual.
	Equal []string
	// Range fields can be queried with Tx.QueryRange.
	Range []string
	// Unique fields hold at most one record per value; null values are not
	// indexed.
	Unique []string
}

// HasEqual reports whether field has an equality index.
func (s *Schema) HasEqual(field string) bool { return slices.Contains(s.Equal, field) }

// HasRange reports whether field has a range index.
func (s *Schema) HasRange(field string) bool { return slices.Contains(s.Range, field) }

// HasUnique reports whether field has a unique index.
func (s *Schema) HasUnique(field string) bool { return slices.Contains(s.Unique, field) }

// Validate rejects a schema with an empty kind or field name.
func (s *Schema) Validate() (err error) {
	if s.Kind == "" {
		return fault.New(fault.ErrInvalidArgument, "schema has no kind")
	}
	for _, f := range slices.Concat(s.Equal, s.Range, s.Unique) {
		if f == "" {
			return fault.New(fault.ErrInvalidArgument, "schema %s has an empty field name", s.Kind)
		}
	}
	return
}

// Registry holds the schemas a backend has been given.
type Registry struct {
	mx    sync.RWMutex
	kinds map[string]*Schema
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry { return &Registry{kinds: make(map[string]*Schema)} }

// Register adds or replaces the schema of a kind. Registering the same
// declaration twice is harmless.
func (r *Registry) Register(s Schema) (err error) {
	if err = s.Validate(); err != nil {
		return
	}
	r.mx.Lock()
	defer r.mx.Unlock()
	r.kinds[s.Kind] = &s
	return
}

// Get returns the schema of a kind, or fault.ErrInvalidArgument if the kind
// was never registered.
func (r *Registry) Get(kind string) (s *Schema, err error) {
	r.mx.RLock()
	defer r.mx.RUnlock()
	var ok bool
	if s, ok = r.kinds[kind]; !ok {
		return nil, fault.New(fault.ErrInvalidArgument, "unregistered kind %q", kind)
	}
	return
}

// Kinds returns the registered kinds, sorted.
func (r *Registry) Kinds() (kinds []string) {
	r.mx.RLock()
	defer r.mx.RUnlock()
	for k := range r.kinds {
		kinds = append(kinds, k)
	}
	slices.Sort(kinds)
	return
}

// Entry is one index entry derived from a record.
type Entry struct {
	Field string
	Value Value
}

// Entries lists the equality, range and unique index entries of a record
// under its schema. Range entries are only produced for values that have an
// ordinal and unique entries only for non-null values.
func (s *Schema) Entries(r *Record) (equal, rng, unique []Entry) {
	for _, f := range s.Equal {
		equal = append(equal, Entry{f, r.Get(f)})
	}
	for _, f := range s.Range {
		v := r.Get(f)
		if _, ok := v.Ordinal(); ok {
			rng = append(rng, Entry{f, v})
		}
	}
	for _, f := range s.Unique {
		if v := r.Get(f); !v.IsNull() {
			unique = append(unique, Entry{f, v})
		}
	}
	return
}

// SortBy sorts records by a field, breaking ties by key. An empty field sorts
// by key alone.
func SortBy(rs []*Record, field string) {
	slices.SortStableFunc(rs, func(a, b *Record) int {
		if field != "" {
			if c := Compare(a.Get(field), b.Get(field)); c != 0 {
				return c
			}
		}
		return cmpInt(a.Key, b.Key)
	})
}

// IsDuplicate reports whether err is a unique index violation.
func IsDuplicate(err error) bool { return errors.Is(err, ErrDuplicate) }
