package prefixes

import (
	"arbor.lol/ratel/keys/hash"
	"arbor.lol/ratel/keys/index"
	"arbor.lol/ratel/keys/ordinal"
	"arbor.lol/ratel/keys/serial"
)

const (
	// Version is the key that stores the layout version, the value is a 32-bit
	// integer.
	//
	//   [ 255 ] : value: [ 4 bytes version ]
	Version index.P = 255
)

const (
	// Record is the prefix used with a Serial counter value provided by badgerDB
	// to provide conflict-free 8 byte 64-bit unique keys for records, which
	// follows the prefix. The value is the CBOR encoded record.
	//
	//   [ 0 ][ 8 bytes Serial ]
	Record index.P = iota

	// Equal is an equality index entry: the hash of the kind, the field name and
	// the canonical value, then the serial of the record.
	//
	//   [ 1 ][ 8 bytes kind hash ][ 8 bytes field hash ][ 8 bytes value hash ][ 8 bytes Serial ]
	Equal

	// Range is a range index entry with the value's order preserving ordinal.
	//
	//   [ 2 ][ 8 bytes kind hash ][ 8 bytes field hash ][ 8 bytes ordinal ][ 8 bytes Serial ]
	Range

	// Unique is a unique index marker, the value is the 8 byte Serial of the
	// record holding the field value.
	//
	//   [ 3 ][ 8 bytes kind hash ][ 8 bytes field hash ][ 8 bytes value hash ]
	Unique

	// Kind lists the records of a kind.
	//
	//   [ 4 ][ 8 bytes kind hash ][ 8 bytes Serial ]
	Kind
)

// IndexPrefixes are the prefixes of every table derived from records, that a
// rebuild drops and regenerates.
var IndexPrefixes = [][]byte{
	{Equal.B()},
	{Range.B()},
	{Unique.B()},
	{Kind.B()},
}

// KeySizes are the byte size of keys of each type of key prefix. int(P) or call
// the P.I() method corresponds to the index 1:1.
var KeySizes = []int{
	// Record
	1 + serial.Len,
	// Equal
	1 + hash.Len + hash.Len + hash.Len + serial.Len,
	// Range
	1 + hash.Len + hash.Len + ordinal.Len + serial.Len,
	// Unique
	1 + hash.Len + hash.Len + hash.Len,
	// Kind
	1 + hash.Len + serial.Len,
}
