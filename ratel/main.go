// Package ratel is a badger DB based record store. Records are stored under
// a serial key, and every field a kind's schema declares gets equality, range
// or unique index keys built from fixed size key elements, so that queries are
// prefix scans.
package ratel

import (
	"sync"

	"github.com/dgraph-io/badger/v4"

	"arbor.lol/context"
	"arbor.lol/fault"
	"arbor.lol/lol"
	"arbor.lol/store"
)

func init() { fault.RegisterConflict(badger.ErrConflict) }

// DefaultSequenceBandwidth is how many serials the sequence leases at a time.
const DefaultSequenceBandwidth = 1000

// T is a badger record store.
type T struct {
	Ctx            context.T
	WG             *sync.WaitGroup
	dataDir        string
	BlockCacheSize int
	InitLogLevel   int
	// Compression is one of none, snappy or zstd.
	Compression       string
	SequenceBandwidth uint64
	Logger            *logger
	// DB is the badger db
	*badger.DB
	// seq is the monotonic collision free source of record serials.
	seq     *badger.Sequence
	schemas *store.Registry
}

var _ store.I = (*T)(nil)

// BackendParams is the configurations used in creating a new ratel.T.
type BackendParams struct {
	Ctx                      context.T
	WG                       *sync.WaitGroup
	BlockCacheSize, LogLevel int
	Compression              string
	SequenceBandwidth        uint64
}

// New configures a new ratel.T record store. Call Init to open it.
func New(p BackendParams) *T {
	if p.Ctx == nil {
		p.Ctx = context.Bg()
	}
	if p.WG == nil {
		p.WG = &sync.WaitGroup{}
	}
	if p.SequenceBandwidth == 0 {
		p.SequenceBandwidth = DefaultSequenceBandwidth
	}
	return &T{
		Ctx:               p.Ctx,
		WG:                p.WG,
		BlockCacheSize:    p.BlockCacheSize,
		InitLogLevel:      p.LogLevel,
		Compression:       p.Compression,
		SequenceBandwidth: p.SequenceBandwidth,
		schemas:           store.NewRegistry(),
	}
}

// Path returns the path where the database files are stored.
func (r *T) Path() string { return r.dataDir }

// SetLogLevel changes the level badger's own log messages are printed at.
func (r *T) SetLogLevel(level string) {
	log.I.F("setting db log level %s", level)
	r.Logger.SetLogLevel(lol.GetLogLevel(level))
}

// Register declares the indexes of a kind of record.
func (r *T) Register(s store.Schema) (err error) { return r.schemas.Register(s) }

// Schemas returns the registry of declared kinds.
func (r *T) Schemas() *store.Registry { return r.schemas }

// Serial returns the next monotonic conflict free unique serial on the database.
func (r *T) Serial() (ser uint64, err error) {
	// the sequence starts at 0, which is the nil key
	for ser == 0 {
		if ser, err = r.seq.Next(); chk.E(err) {
			return 0, fault.Storage(err)
		}
	}
	return
}

// View runs fn in a read-only badger transaction.
func (r *T) View(c context.T, fn func(tx store.Tx) error) (err error) {
	if err = c.Err(); err != nil {
		return
	}
	err = r.DB.View(func(txn *badger.Txn) error {
		return fn(&tx{r: r, c: c, txn: txn})
	})
	return fault.Storage(err)
}

// Update runs fn in a read-write badger transaction, committed if fn returns
// nil. badger.ErrConflict surfaces as fault.ErrConcurrentModification.
func (r *T) Update(c context.T, fn func(tx store.Tx) error) (err error) {
	if err = c.Err(); err != nil {
		return
	}
	r.WG.Add(1)
	defer r.WG.Done()
	err = r.DB.Update(func(txn *badger.Txn) error {
		return fn(&tx{r: r, c: c, txn: txn, write: true})
	})
	if err != nil {
		log.D.F("transaction failed: %v", err)
	}
	return fault.Storage(err)
}
