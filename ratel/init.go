package ratel

import (
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/pkg/errors"

	"arbor.lol/fault"
	"arbor.lol/ratel/keys"
	"arbor.lol/ratel/keys/integer"
	"arbor.lol/ratel/prefixes"
	"arbor.lol/units"
)

// Init opens the database at path, or an in-memory database if path is empty.
func (r *T) Init(path string) (err error) {
	r.dataDir = path
	var opts badger.Options
	if path == "" {
		log.I.Ln("opening in-memory ratel record store")
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		log.I.Ln("opening ratel record store at", r.Path())
		opts = badger.DefaultOptions(r.dataDir)
		opts.CompactL0OnClose = true
		opts.LmaxCompaction = true
	}
	if r.BlockCacheSize > 0 {
		opts.BlockCacheSize = int64(r.BlockCacheSize)
	}
	opts.BlockSize = units.Mb
	if opts.Compression, err = compression(r.Compression); chk.E(err) {
		return
	}
	r.Logger = NewLogger(r.InitLogLevel, r.dataDir)
	opts.Logger = r.Logger
	if r.DB, err = badger.Open(opts); chk.E(err) {
		return fault.Storage(errors.Wrap(err, "opening badger"))
	}
	log.T.Ln("getting record store sequence", r.dataDir)
	if r.seq, err = r.DB.GetSequence([]byte("records"), r.SequenceBandwidth); chk.E(err) {
		return fault.Storage(errors.Wrap(err, "getting sequence"))
	}
	log.T.Ln("running migrations", r.dataDir)
	if err = r.runMigrations(); chk.E(err) {
		return log.E.Err("error running migrations: %w; %s", err, r.dataDir)
	}
	return nil
}

func compression(name string) (c options.CompressionType, err error) {
	switch strings.ToLower(name) {
	case "", "none":
		return options.None, nil
	case "snappy":
		return options.Snappy, nil
	case "zstd":
		return options.ZSTD, nil
	}
	err = fault.New(fault.ErrInvalidArgument, "unknown compression %q, use none, snappy or zstd", name)
	return
}

// Version is the layout version of the keys written by this package. Version
// 1 range ordinals of fractions with terms past 53 bits were not correctly
// rounded, and are rewritten when a version 1 database is opened.
const Version = 2

func (r *T) runMigrations() (err error) {
	var version uint32
	if version, err = r.version(); chk.E(err) {
		return
	}
	switch {
	case version > Version:
		return fault.New(fault.ErrStorage,
			"database is at version %d, this build only reads up to version %d",
			version, Version)
	case version == Version:
		return
	case version == 0:
		var empty bool
		if empty, err = r.empty(); chk.E(err) {
			return
		}
		if !empty {
			return fault.New(fault.ErrStorage,
				"database has records but no version stamp; export it with an older "+
					"build and import it into a fresh database")
		}
	case version == 1:
		if err = r.reorderRanges(); chk.E(err) {
			return
		}
	}
	log.D.F("stamping database with version %d", Version)
	return r.stamp(Version)
}

func (r *T) version() (version uint32, err error) {
	err = r.DB.View(func(txn *badger.Txn) (err error) {
		var item *badger.Item
		if item, err = txn.Get(prefixes.Version.Key()); errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		} else if err != nil {
			return
		}
		return item.Value(func(val []byte) (err error) {
			if v := integer.NewFrom(val); v != nil {
				version = v.Val
			}
			return
		})
	})
	return
}

func (r *T) empty() (empty bool, err error) {
	err = r.DB.View(func(txn *badger.Txn) (err error) {
		prefix := prefixes.Record.Key()
		it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix})
		defer it.Close()
		it.Seek(prefix)
		empty = !it.ValidForPrefix(prefix)
		return
	})
	return
}

// stamp writes the layout version.
func (r *T) stamp(version uint32) (err error) {
	if err = r.DB.Update(func(txn *badger.Txn) error {
		return r.bumpVersion(txn, version)
	}); chk.E(err) {
		return fault.Storage(errors.Wrap(err, "writing version stamp"))
	}
	return
}

func (r *T) bumpVersion(txn *badger.Txn, version uint32) error {
	return txn.Set(prefixes.Version.Key(), keys.Write(integer.New(version)))
}
