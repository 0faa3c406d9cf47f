// Package integer is a 32 bit unsigned integer value element, used for the
// store's format version stamp.
package integer

import (
	"bytes"
	"encoding/binary"
	"io"

	"golang.org/x/exp/constraints"

	"arbor.lol/chk"
	"arbor.lol/ratel/keys"
)

const Len = 4

// T is a 32-bit integer number value.
type T struct {
	Val uint32
}

var _ keys.Element = &T{}

func New[V constraints.Integer](val ...V) (m *T) {
	if len(val) == 0 {
		m = new(T)
		return
	}
	m = &T{uint32(val[0])}
	return
}

func NewFrom(b []byte) (s *T) {
	buf := bytes.NewBuffer(b)
	s = &T{}
	if s.Read(buf) == nil {
		return nil
	}
	return
}

func (s *T) Write(buf io.Writer) {
	v := make([]byte, Len)
	binary.BigEndian.PutUint32(v, s.Val)
	_, _ = buf.Write(v)
}

func (s *T) Read(buf io.Reader) (el keys.Element) {
	v := make([]byte, Len)
	if n, err := buf.Read(v); chk.T(err) || n != Len {
		return nil
	}
	s.Val = binary.BigEndian.Uint32(v)
	return s
}

func (s *T) Len() int { return Len }
