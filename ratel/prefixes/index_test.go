package prefixes

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arbor.lol/ratel/keys"
	"arbor.lol/ratel/keys/hash"
	"arbor.lol/ratel/keys/index"
	"arbor.lol/ratel/keys/ordinal"
	"arbor.lol/ratel/keys/serial"
)

func TestVersion(t *testing.T) {
	v := Version.Key()
	buf2 := bytes.NewBuffer(v)
	v2 := index.New(0)
	el := v2.Read(buf2).(*index.T)
	assert.Equal(t, v[0], el.Val[0])
}

func TestKeySizes(t *testing.T) {
	k, f, vh := hash.New("Category"), hash.New("parent"), hash.New("r:7")
	ser := serial.FromUint64(99)
	keyset := map[index.P][]byte{
		Record: Record.Key(ser),
		Equal:  Equal.Key(k, f, vh, ser),
		Range:  Range.Key(k, f, ordinal.New(2.5), ser),
		Unique: Unique.Key(k, f, vh),
		Kind:   Kind.Key(k, ser),
	}
	for p, key := range keyset {
		require.Len(t, key, KeySizes[p.I()], "prefix %d", p)
		assert.Equal(t, p.B(), key[0])
	}
	s2 := serial.New(nil)
	require.True(t, keys.Read(keyset[Kind], index.Empty(), hash.Empty(), s2))
	assert.Equal(t, uint64(99), s2.Uint64())
}
