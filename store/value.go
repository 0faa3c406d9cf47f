package store

import (
	"fmt"
	"strconv"
	"strings"

	"arbor.lol/fraction"
)

// Type is the type of a field Value.
type Type uint8

const (
	Null Type = iota
	StringType
	IntType
	FractionType
	RefType
)

var typeNames = []string{"null", "string", "int", "fraction", "ref"}

func (t Type) String() string {
	if int(t) < len(typeNames) {
		return typeNames[t]
	}
	return "type(" + strconv.Itoa(int(t)) + ")"
}

// Value is a field of a Record: a string, an integer, an exact fraction, a
// reference to another record, or null.
type Value struct {
	Type Type       `cbor:"1,keyasint"`
	Str  string     `cbor:"2,keyasint,omitempty"`
	Int  int64      `cbor:"3,keyasint,omitempty"`
	Frac fraction.T `cbor:"4,keyasint"`
	Ref  Key        `cbor:"5,keyasint,omitempty"`
}

// String makes a string Value.
func String(s string) Value { return Value{Type: StringType, Str: s} }

// Int makes an integer Value.
func Int(i int64) Value { return Value{Type: IntType, Int: i} }

// Frac makes a fraction Value.
func Frac(f fraction.T) Value { return Value{Type: FractionType, Frac: f} }

// Ref makes a reference Value. The zero key makes a null Value, so that "no
// parent" and "no layer" index the same way whichever way they were written.
func Ref(k Key) Value {
	if k.IsZero() {
		return Value{}
	}
	return Value{Type: RefType, Ref: k}
}

// IsNull reports whether the value is null.
func (v Value) IsNull() bool { return v.Type == Null }

// Equal reports whether two values are of the same type and equal. Fractions
// are compared as rational numbers.
func (v Value) Equal(o Value) bool {
	if v.Type != o.Type {
		return false
	}
	switch v.Type {
	case StringType:
		return v.Str == o.Str
	case IntType:
		return v.Int == o.Int
	case FractionType:
		return fraction.Equal(v.Frac, o.Frac)
	case RefType:
		return v.Ref == o.Ref
	}
	return true
}

// Compare orders two values: first by type, then by value. Strings compare
// bytewise and fractions exactly.
func Compare(a, b Value) int {
	if a.Type != b.Type {
		if a.Type < b.Type {
			return -1
		}
		return 1
	}
	switch a.Type {
	case StringType:
		return strings.Compare(a.Str, b.Str)
	case IntType:
		return cmpInt(a.Int, b.Int)
	case FractionType:
		return fraction.Compare(a.Frac, b.Frac)
	case RefType:
		return cmpInt(a.Ref, b.Ref)
	}
	return 0
}

func cmpInt[V int64 | Key](a, b V) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// Ordinal returns the float64 position of a value in a range index. Only
// integers, fractions and references have one.
func (v Value) Ordinal() (o float64, ok bool) {
	switch v.Type {
	case IntType:
		return float64(v.Int), true
	case FractionType:
		return v.Frac.Float(), true
	case RefType:
		return float64(v.Ref), true
	}
	return
}

// Canonical is the representation of a value that equality and unique index
// keys are derived from. Equal values have equal canonical forms.
func (v Value) Canonical() string {
	switch v.Type {
	case StringType:
		return "s:" + v.Str
	case IntType:
		return "i:" + strconv.FormatInt(v.Int, 10)
	case FractionType:
		r := reduce(v.Frac)
		return "f:" + r.String()
	case RefType:
		return "r:" + v.Ref.String()
	}
	return "n:"
}

func (v Value) String() string {
	switch v.Type {
	case StringType:
		return strconv.Quote(v.Str)
	case IntType:
		return strconv.FormatInt(v.Int, 10)
	case FractionType:
		return v.Frac.String()
	case RefType:
		return "#" + v.Ref.String()
	}
	return "null"
}

// GoString makes %#v print something readable in test failures.
func (v Value) GoString() string { return fmt.Sprintf("store.Value(%s)", v) }

func reduce(f fraction.T) fraction.T {
	a, b := f.Num, f.Den
	if a < 0 {
		a = -a
	}
	for b != 0 {
		a, b = b, a%b
	}
	if a <= 1 {
		return f
	}
	return fraction.T{Num: f.Num / a, Den: f.Den / a}
}
