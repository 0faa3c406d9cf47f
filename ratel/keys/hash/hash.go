// Package hash is a fixed size key element holding the first 8 bytes of the
// sha256 hash of a string, used to place names and values of arbitrary length
// into index keys. Readers of an index must confirm the full value, as two
// values can share a truncated hash.
package hash

import (
	"io"

	"github.com/minio/sha256-simd"

	"arbor.lol/chk"
	"arbor.lol/ratel/keys"
)

const Len = 8

// T is a truncated sha256 hash.
type T struct {
	Val []byte
}

var _ keys.Element = &T{}

// New hashes a string.
func New(s string) (p *T) {
	h := sha256.Sum256([]byte(s))
	return &T{Val: h[:Len]}
}

// Empty returns a hash to Read into.
func Empty() *T { return &T{} }

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
