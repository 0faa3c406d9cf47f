// Package serial is the 64 bit record serial element of keys. Serials are
// written big-endian so that keys sort in allocation order.
package serial

import (
	"encoding/binary"
	"io"

	"arbor.lol/chk"
	"arbor.lol/ratel/keys"
)

const Len = 8

// T is a record serial.
type T struct {
	Val []byte
}

var _ keys.Element = &T{}

// New creates a serial from its raw bytes, or an empty one to be Read into.
func New(ser []byte) (p *T) {
	switch {
	case len(ser) == 0:
		// allowed, this is just an empty serial to be Read into
	case len(ser) != Len:
		panic("serial must be 8 bytes")
	}
	return &T{Val: ser}
}

// FromUint64 creates a serial from its integer value.
func FromUint64(u uint64) (p *T) {
	p = &T{Val: make([]byte, Len)}
	binary.BigEndian.PutUint64(p.Val, u)
	return
}

// FromKey takes the serial from the end of a key.
func FromKey(k []byte) (p *T) {
	if len(k) < Len {
		panic("cannot get a serial without at least 8 bytes")
	}
	key := make([]byte, Len)
	copy(key, k[len(k)-Len:])
	return &T{Val: key}
}

func (p *T) Write(buf io.Writer) {
	if len(p.Val) != Len {
		panic("must use New or initialize Val with len 8")
	}
	_, _ = buf.Write(p.Val)
}

func (p *T) Read(buf io.Reader) (el keys.Element) {
	p.Val = make([]byte, Len)
	if n, err := buf.Read(p.Val); chk.T(err) || n != Len {
		return nil
	}
	return p
}

func (p *T) Len() int { return Len }

// Uint64 returns the integer value of the serial.
func (p *T) Uint64() (u uint64) {
	if len(p.Val) != Len {
		return 0
	}
	return binary.BigEndian.Uint64(p.Val)
}
