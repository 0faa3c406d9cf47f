package store

import (
	"github.com/fxamacker/cbor/v2"

	"arbor.lol/fraction"
)

// Record is one stored object: a key, the kind of object, and named fields.
type Record struct {
	Key    Key              `cbor:"1,keyasint"`
	Kind   string           `cbor:"2,keyasint"`
	Fields map[string]Value `cbor:"3,keyasint"`
}

// NewRecord creates an empty record of a kind.
func NewRecord(kind string) *Record {
	return &Record{Kind: kind, Fields: make(map[string]Value)}
}

// Set a field, returning the record so calls can be chained.
func (r *Record) Set(field string, v Value) *Record {
	if r.Fields == nil {
		r.Fields = make(map[string]Value)
	}
	r.Fields[field] = v
	return r
}

// Get a field; a missing field is null.
func (r *Record) Get(field string) Value { return r.Fields[field] }

// String returns a string field, or "" if it is not a string.
func (r *Record) String(field string) string { return r.Fields[field].Str }

// Int returns an integer field, or 0 if it is not an integer.
func (r *Record) Int(field string) int64 { return r.Fields[field].Int }

// Fraction returns a fraction field.
func (r *Record) Fraction(field string) fraction.T { return r.Fields[field].Frac }

// Ref returns a reference field, or the zero Key if it is null.
func (r *Record) Ref(field string) Key { return r.Fields[field].Ref }

// Clone returns a deep copy of the record.
func (r *Record) Clone() *Record {
	c := &Record{Key: r.Key, Kind: r.Kind, Fields: make(map[string]Value, len(r.Fields))}
	for k, v := range r.Fields {
		c.Fields[k] = v
	}
	return c
}

var encMode, _ = cbor.CanonicalEncOptions().EncMode()

// Marshal encodes the record as canonical CBOR.
func (r *Record) Marshal() (b []byte, err error) { return encMode.Marshal(r) }

// Unmarshal decodes a record encoded by Marshal.
func Unmarshal(b []byte) (r *Record, err error) {
	r = &Record{}
	if err = cbor.Unmarshal(b, r); err != nil {
		return nil, err
	}
	if r.Fields == nil {
		r.Fields = make(map[string]Value)
	}
	return
}
