package eappx

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKeyTextRequiresHeader(t *testing.T) {
	_, err := ParseKeyText("not a key file")
	require.Error(t, err)
	var decErr *DecodeError
	assert.ErrorAs(t, err, &decErr)
}

func TestParseKeyTextGUIDPair(t *testing.T) {
	var low, high [16]byte
	for i := range low {
		low[i] = byte(i)
	}
	for i := range high {
		high[i] = byte(i + 0x40)
	}
	idBytes := append(append([]byte{}, low[:]...), high[:]...)
	idB64 := base64.StdEncoding.EncodeToString(idBytes)

	keyMaterial := make([]byte, 32)
	for i := range keyMaterial {
		keyMaterial[i] = byte(0xAA)
	}
	keyB64 := base64.StdEncoding.EncodeToString(keyMaterial)

	text := "[Keys]\n\"" + idB64 + "\" \"" + keyB64 + "\"\n"

	reg, err := ParseKeyText(text)
	require.NoError(t, err)
	assert.Len(t, reg.keys, 1)

	expected := GUIDKeyId(guidFromBytesLE(low), guidFromBytesLE(high))
	got, ok := reg.Get(expected)
	require.True(t, ok)
	assert.Equal(t, keyMaterial, got)
}

func TestParseKeyTextShortGUIDWidened(t *testing.T) {
	var short [16]byte
	for i := range short {
		short[i] = byte(0x10 + i)
	}
	idB64 := base64.StdEncoding.EncodeToString(short[:])
	keyMaterial := make([]byte, 32)
	keyB64 := base64.StdEncoding.EncodeToString(keyMaterial)

	text := "[Keys]\n\"" + idB64 + "\" \"" + keyB64 + "\"\n"

	reg, err := ParseKeyText(text)
	require.NoError(t, err)

	expected := GUIDKeyId(shortKeyGUIDPrefix, guidFromBytesLE(short))
	_, ok := reg.Get(expected)
	assert.True(t, ok, "short 16-byte key id must be widened with the fixed prefix GUID")
}

func TestParseKeyTextNumeric(t *testing.T) {
	keyMaterial := make([]byte, 32)
	keyB64 := base64.StdEncoding.EncodeToString(keyMaterial)
	text := "[Keys]\n\"42\" \"" + keyB64 + "\"\n"

	reg, err := ParseKeyText(text)
	require.NoError(t, err)

	_, ok := reg.Get(NumericKeyId(42))
	assert.True(t, ok)
}

func TestParseKeyTextAmbiguousLineIgnored(t *testing.T) {
	keyMaterial := make([]byte, 32)
	keyB64 := base64.StdEncoding.EncodeToString(keyMaterial)
	// "not-base64-or-numeric" is neither valid base64 of 16/32 bytes
	// nor a base-10 uint16; the line should be silently skipped.
	text := "[Keys]\n\"not-base64-or-numeric!!\" \"" + keyB64 + "\"\n"

	reg, err := ParseKeyText(text)
	require.NoError(t, err)
	assert.Empty(t, reg.keys)
}

func TestKeyRegistryHasAll(t *testing.T) {
	reg := NewKeyRegistry()
	a := NumericKeyId(1)
	b := NumericKeyId(2)
	reg.Add(a, []byte("x"))

	assert.False(t, reg.HasAll([]KeyId{a, b}))
	reg.Add(b, []byte("y"))
	assert.True(t, reg.HasAll([]KeyId{a, b}))
}

func TestKeyRegistryExtendLaterWins(t *testing.T) {
	base := NewKeyRegistry()
	id := NumericKeyId(7)
	base.Add(id, []byte("old"))

	other := NewKeyRegistry()
	other.Add(id, []byte("new"))

	base.Extend(other)
	got, ok := base.Get(id)
	require.True(t, ok)
	assert.Equal(t, []byte("new"), got)
}

func TestKeyIDBinaryRoundTrip(t *testing.T) {
	var low, high [16]byte
	for i := range low {
		low[i] = byte(i * 3)
		high[i] = byte(i*3 + 1)
	}
	id := GUIDKeyId(guidFromBytesLE(low), guidFromBytesLE(high))

	packed, err := writeKeyID(id)
	require.NoError(t, err)
	require.Len(t, packed, 32)

	unpacked, err := readKeyID(packed)
	require.NoError(t, err)
	assert.Equal(t, id, unpacked)
}

func TestKeyIDNumericHasNoBinaryForm(t *testing.T) {
	_, err := writeKeyID(NumericKeyId(5))
	require.Error(t, err)
}
