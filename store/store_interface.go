// Package store is the contract between the hierarchy and attribute engines
// and the key/value database that persists their records. A backend offers
// get/put/delete by key, equality and range queries over declared indexes,
// unique lookups, and key allocation, all inside transactions.
package store

import (
	"io"

	"arbor.lol/context"
)

// I is the interface of a persistence backend.
type I interface {
	Initializer
	Pather
	// Closer must be called after you're done using the store, to free up
	// resources and so on.
	io.Closer
	Nukener
	Registrar
	Transactor
}

type Initializer interface {
	// Init opens the backend's resources. For file backed stores path is the
	// directory of the database, an empty path means an in-memory database
	// where the backend supports one.
	Init(path string) (err error)
}

type Pather interface {
	// Path returns the directory of the database.
	Path() (s string)
}

type Nukener interface {
	// Nuke deletes everything in the database.
	Nuke() (err error)
}

type Registrar interface {
	// Register declares the indexes of a kind of record. Records of
	// unregistered kinds cannot be stored.
	Register(s Schema) (err error)
	// Schemas returns the registry of declared kinds.
	Schemas() *Registry
}

type Transactor interface {
	// View runs fn in a read-only transaction.
	View(c context.T, fn func(tx Tx) error) (err error)
	// Update runs fn in a read-write transaction, which is committed if fn
	// returns nil. A conflicting concurrent commit fails the transaction with
	// fault.ErrConcurrentModification.
	Update(c context.T, fn func(tx Tx) error) (err error)
}

// Tx is a transaction. Reads see the transaction's own writes.
type Tx interface {
	// Get returns the record with the key, or fault.ErrNotFound.
	Get(key Key) (r *Record, err error)
	// Put stores a record and maintains its indexes, allocating a key first if
	// the record has none. A unique index violation fails with an error that
	// matches ErrDuplicate and fault.ErrConcurrentModification.
	Put(r *Record) (key Key, err error)
	// Delete removes a record and its index entries. Deleting an absent key is
	// not an error.
	Delete(key Key) (err error)
	// AllocateKey reserves a new key for a record of the kind.
	AllocateKey(kind string) (key Key, err error)
	// QueryEqual returns the records of the kind whose field equals value,
	// sorted by orderBy (key order if empty).
	QueryEqual(kind, field string, value Value, orderBy string) (rs []*Record, err error)
	// QueryRange returns the records of the kind whose field lies strictly
	// between low and high, sorted by orderBy (the range field if empty). The
	// field must be declared in the kind's Range index.
	QueryRange(kind, field string, low, high Value, orderBy string) (rs []*Record, err error)
	// GetUnique returns the record of the kind whose unique field equals value,
	// or fault.ErrNotFound.
	GetUnique(kind, field string, value Value) (r *Record, err error)
	// Scan returns every record of the kind in key order.
	Scan(kind string) (rs []*Record, err error)
}
