// Package rediskv is a record store on a redis server. Records are CBOR
// strings, equality indexes are sets, range indexes are sorted sets scored by
// the value's ordinal and unique indexes are strings holding the record key.
//
// A transaction WATCHes every key it reads and buffers its writes, which are
// sent in one MULTI/EXEC when it ends; if another client changed a watched key
// in between, the transaction fails with fault.ErrConcurrentModification.
package rediskv

import (
	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"

	"arbor.lol/context"
	"arbor.lol/fault"
	"arbor.lol/lol"
	"arbor.lol/store"
)

var log, chk = lol.Main.Log, lol.Main.Check

func init() { fault.RegisterConflict(redis.TxFailedErr) }

// DefaultPrefix starts every key the store writes.
const DefaultPrefix = "arbor:"

// Params configure a T.
type Params struct {
	Addr     string
	Password string
	DB       int
	// Prefix of every key, DefaultPrefix if empty. Two stores with different
	// prefixes can share a server.
	Prefix string
}

// T is a redis record store.
type T struct {
	params  Params
	client  *redis.Client
	schemas *store.Registry
}

var _ store.I = (*T)(nil)

// New configures a store. Call Init to connect.
func New(p Params) *T {
	if p.Prefix == "" {
		p.Prefix = DefaultPrefix
	}
	return &T{params: p, schemas: store.NewRegistry()}
}

// Init connects to the server at addr, or at the configured address if addr
// is empty.
func (r *T) Init(addr string) (err error) {
	if addr != "" {
		r.params.Addr = addr
	}
	log.I.F("connecting to redis at %s", r.params.Addr)
	r.client = redis.NewClient(&redis.Options{
		Addr:     r.params.Addr,
		Password: r.params.Password,
		DB:       r.params.DB,
	})
	if err = r.client.Ping(context.Bg()).Err(); chk.E(err) {
		return fault.Storage(errors.Wrapf(err, "connecting to %s", r.params.Addr))
	}
	return
}

// Path returns the server address.
func (r *T) Path() string { return r.params.Addr }

func (r *T) Close() (err error) {
	log.I.F("closing redis connection to %s", r.params.Addr)
	return r.client.Close()
}

// Nuke deletes every key under the store's prefix, including the sequence.
func (r *T) Nuke() (err error) {
	log.W.F("nuking %s* on %s", r.params.Prefix, r.params.Addr)
	c := context.Bg()
	var cursor uint64
	for {
		var ks []string
		if ks, cursor, err = r.client.Scan(c, cursor, r.params.Prefix+"*", 500).Result(); chk.E(err) {
			return fault.Storage(errors.Wrap(err, "scanning keys"))
		}
		if len(ks) > 0 {
			if err = r.client.Del(c, ks...).Err(); chk.E(err) {
				return fault.Storage(errors.Wrap(err, "deleting keys"))
			}
		}
		if cursor == 0 {
			return
		}
	}
}

// Register declares the indexes of a kind of record.
func (r *T) Register(s store.Schema) (err error) { return r.schemas.Register(s) }

// Schemas returns the registry of declared kinds.
func (r *T) Schemas() *store.Registry { return r.schemas }

// View runs fn on reads straight from the server.
func (r *T) View(c context.T, fn func(tx store.Tx) error) (err error) {
	if err = c.Err(); err != nil {
		return
	}
	return fault.Storage(fn(newTx(r, c, r.client, nil)))
}

// Update runs fn in an optimistic transaction: reads are watched, writes are
// committed together if fn returns nil.
func (r *T) Update(c context.T, fn func(tx store.Tx) error) (err error) {
	if err = c.Err(); err != nil {
		return
	}
	err = r.client.Watch(c, func(rtx *redis.Tx) (err error) {
		t := newTx(r, c, rtx, rtx)
		if err = fn(t); err != nil {
			return
		}
		return t.commit()
	})
	if err != nil {
		log.D.F("transaction failed: %v", err)
	}
	return fault.Storage(err)
}
