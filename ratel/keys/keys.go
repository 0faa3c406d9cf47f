// Package keys is a composable framework for constructing badger keys from
// fields of a record, each a fixed size element so that prefixes of a key
// can be seeked and later elements decoded positionally.
package keys

import (
	"bytes"
	"io"
)

// Element is an abstract interface for a key field.
type Element interface {
	// Write the binary form of the field into the given bytes.Buffer.
	Write(buf io.Writer)
	// Read accepts a bytes.Buffer and decodes a field from it. It returns nil if
	// the buffer did not hold a whole field.
	Read(buf io.Reader) Element
	// Len gives the length of the bytes output by the type.
	Len() int
}

// Write the contents of each Element to a byte slice.
func Write(elems ...Element) []byte {
	// get the length of the buffer required
	var length int
	for _, el := range elems {
		length += el.Len()
	}
	buf := bytes.NewBuffer(make([]byte, 0, length))
	// write out the data from each element
	for _, el := range elems {
		el.Write(buf)
	}
	return buf.Bytes()
}

// Read the contents of a byte slice into the provided list of Element types.
// It returns false if the key was too short to fill every element.
func Read(b []byte, elems ...Element) (ok bool) {
	buf := bytes.NewBuffer(b)
	for _, el := range elems {
		if el.Read(buf) == nil {
			log.T.F("short key %x", b)
			return false
		}
	}
	return true
}

// Len returns the total length of a list of Element types.
func Len(elems ...Element) (l int) {
	for _, el := range elems {
		l += el.Len()
	}
	return
}
