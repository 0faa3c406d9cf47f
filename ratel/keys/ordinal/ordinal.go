// Package ordinal is a key element that encodes a float64 so that the byte
// order of the encoding matches the numeric order of the values, which lets an
// iterator walk an index in ascending numeric order.
package ordinal

import (
	"encoding/binary"
	"io"
	"math"

	"arbor.lol/chk"
	"arbor.lol/ratel/keys"
)

const Len = 8

// T is an order preserving float64.
type T struct {
	Val float64
}

var _ keys.Element = &T{}

// New creates an ordinal for a value.
func New(val ...float64) (m *T) {
	if len(val) == 0 {
		return new(T)
	}
	return &T{val[0]}
}

// Encode returns the order preserving bit pattern of f: positive values get
// the sign bit set, negative values have every bit flipped.
func Encode(f float64) uint64 {
	if f == 0 {
		// fold -0 into +0
		f = 0
	}
	b := math.Float64bits(f)
	if b&(1<<63) != 0 {
		return ^b
	}
	return b | 1<<63
}

// Decode reverses Encode.
func Decode(u uint64) float64 {
	if u&(1<<63) != 0 {
		return math.Float64frombits(u &^ (1 << 63))
	}
	return math.Float64frombits(^u)
}

func (s *T) Write(buf io.Writer) {
	v := make([]byte, Len)
	binary.BigEndian.PutUint64(v, Encode(s.Val))
	_, _ = buf.Write(v)
}

func (s *T) Read(buf io.Reader) (el keys.Element) {
	v := make([]byte, Len)
	if n, err := buf.Read(v); chk.T(err) || n != Len {
		return nil
	}
	s.Val = Decode(binary.BigEndian.Uint64(v))
	return s
}

func (s *T) Len() int { return Len }
