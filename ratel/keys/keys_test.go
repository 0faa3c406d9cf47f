// package keys_test needs to be a different package name or the implementation
// types imports will circular
package keys_test

import (
	"bytes"
	"math"
	"sort"
	"testing"

	"lukechampine.com/frand"

	"arbor.lol/ratel/keys"
	"arbor.lol/ratel/keys/hash"
	"arbor.lol/ratel/keys/index"
	"arbor.lol/ratel/keys/ordinal"
	"arbor.lol/ratel/keys/serial"
)

func TestElement(t *testing.T) {
	for range 10000 {
		// construct a typical range index key
		vp := index.New(2)
		vk := hash.New("Category")
		vf := hash.New("node")
		vo := ordinal.New(frand.Float64() * 1000)
		vs := serial.FromUint64(frand.Uint64n(math.MaxUint64))
		b := keys.Write(vp, vk, vf, vo, vs)
		if len(b) != keys.Len(vp, vk, vf, vo, vs) {
			t.Fatalf("key length %d", len(b))
		}
		vp2, vk2, vf2, vo2, vs2 := index.Empty(), hash.Empty(), hash.Empty(),
			ordinal.New(), serial.New(nil)
		if !keys.Read(b, vp2, vk2, vf2, vo2, vs2) {
			t.Fatal("failed to read key")
		}
		switch {
		case !bytes.Equal(vp.Val, vp2.Val):
			t.Fatalf("prefix got %v expected %v", vp2.Val, vp.Val)
		case !bytes.Equal(vk.Val, vk2.Val):
			t.Fatalf("kind got %v expected %v", vk2.Val, vk.Val)
		case !bytes.Equal(vf.Val, vf2.Val):
			t.Fatalf("field got %v expected %v", vf2.Val, vf.Val)
		case vo.Val != vo2.Val:
			t.Fatalf("ordinal got %v expected %v", vo2.Val, vo.Val)
		case vs.Uint64() != vs2.Uint64():
			t.Fatalf("serial got %d expected %d", vs2.Uint64(), vs.Uint64())
		case serial.FromKey(b).Uint64() != vs.Uint64():
			t.Fatalf("serial from key got %d expected %d",
				serial.FromKey(b).Uint64(), vs.Uint64())
		}
	}
}

func TestShortKey(t *testing.T) {
	if keys.Read([]byte{2, 1, 2}, index.Empty(), hash.Empty()) {
		t.Fatal("short key decoded")
	}
}

func TestOrdinalOrder(t *testing.T) {
	vals := []float64{math.Inf(-1), -1e300, -2.5, -1, -1e-300, 0, 1e-300, 1,
		2, 2.5, 8.0 / 3, 3, 1e300, math.Inf(1)}
	for range 1000 {
		vals = append(vals, (frand.Float64()-0.5)*1e6)
	}
	enc := make([][]byte, len(vals))
	for i, v := range vals {
		enc[i] = keys.Write(ordinal.New(v))
	}
	sort.Slice(enc, func(i, j int) bool { return bytes.Compare(enc[i], enc[j]) < 0 })
	sort.Float64s(vals)
	for i := range enc {
		o := ordinal.New()
		keys.Read(enc[i], o)
		if o.Val != vals[i] {
			t.Fatalf("position %d: got %v expected %v", i, o.Val, vals[i])
		}
	}
	if ordinal.Encode(math.Copysign(0, -1)) != ordinal.Encode(0) {
		t.Fatal("negative zero must encode as zero")
	}
}

func TestHash(t *testing.T) {
	if !bytes.Equal(hash.New("theme").Val, hash.New("theme").Val) {
		t.Fatal("hash is not deterministic")
	}
	if bytes.Equal(hash.New("theme").Val, hash.New("Theme").Val) {
		t.Fatal("hash is case insensitive")
	}
}
