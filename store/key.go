package store

import (
	"strconv"
)

// Key is the persistent identity of a record, a serial allocated by the
// backend. The zero Key is no key.
type Key uint64

// IsZero reports whether the key is unset.
func (k Key) IsZero() bool { return k == 0 }

func (k Key) String() string { return strconv.FormatUint(uint64(k), 10) }

// ParseKey reads a key printed by Key.String.
func ParseKey(s string) (k Key, err error) {
	var u uint64
	if u, err = strconv.ParseUint(s, 10, 64); err != nil {
		return
	}
	return Key(u), nil
}
