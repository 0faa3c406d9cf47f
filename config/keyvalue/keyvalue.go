// Package keyvalue converts go-simpler/env tagged configuration structs into
// a sortable slice of key/values, and renders them as a .env file.
package keyvalue

import (
	"fmt"
	"io"
	"reflect"
	"sort"
	"strings"
	"time"
)

// KV is a key/value pair.
type KV struct{ Key, Value string }

// KVSlice is a collection of key/value pairs.
type KVSlice []KV

func (kv KVSlice) Len() int           { return len(kv) }
func (kv KVSlice) Less(i, j int) bool { return kv[i].Key < kv[j].Key }
func (kv KVSlice) Swap(i, j int)      { kv[i], kv[j] = kv[j], kv[i] }

// Composit merges two KVSlice together, replacing the values of earlier keys
// with same named KV items later in the slice.
func (kv KVSlice) Composit(kv2 KVSlice) (out KVSlice) {
	out = append(out, kv...)
out:
	for i, p := range kv2 {
		for j, q := range out {
			if p.Key == q.Key {
				out[j].Value = kv2[i].Value
				continue out
			}
		}
		out = append(out, p)
	}
	return
}

// EnvKV turns a struct with `env` keys (used with go-simpler/env) into a list
// of key/value pairs sorted by key. Note you must dereference a pointer type to
// use this.
func EnvKV(cfg any) (m KVSlice) {
	t := reflect.TypeOf(cfg)
	for i := 0; i < t.NumField(); i++ {
		k := t.Field(i).Tag.Get("env")
		// this can happen with embedded structs
		if k == "" {
			continue
		}
		v := reflect.ValueOf(cfg).Field(i).Interface()
		var val string
		switch v := v.(type) {
		case string:
			val = v
		case int, int64, int32, uint64, uint32, bool, time.Duration:
			val = fmt.Sprint(v)
		case []string:
			val = strings.Join(v, ",")
		}
		m = append(m, KV{k, val})
	}
	sort.Sort(m)
	return
}

// PrintEnv renders the key/values of a config struct to a provided io.Writer.
func PrintEnv(cfg any, printer io.Writer) {
	for _, v := range EnvKV(cfg) {
		_, _ = fmt.Fprintf(printer, "%s=%s\n", v.Key, v.Value)
	}
}
