package eappx

import (
	"encoding/base64"
	"encoding/hex"
	"strconv"
	"strings"
)

// guid128 holds a 16-byte GUID in standard (RFC 4122 / big-endian
// field) byte order: {u32, u16, u16, 8 bytes}, each multi-byte field
// stored most-significant-byte first. Use guidFromBytesLE to build one
// from the wire's mixed-endian encoding.
type guid128 [16]byte

// guidFromBytesLE decodes the "GUID little-endian" convention used by
// both the container header and the text key file: the first three
// fields (u32, u16, u16) are stored little-endian and byteswapped into
// standard order; the last 8 bytes are copied verbatim.
func guidFromBytesLE(b [16]byte) guid128 {
	var g guid128
	g[0], g[1], g[2], g[3] = b[3], b[2], b[1], b[0]
	g[4], g[5] = b[5], b[4]
	g[6], g[7] = b[7], b[6]
	copy(g[8:], b[8:])
	return g
}

// toBytesLE is the inverse of guidFromBytesLE.
func (g guid128) toBytesLE() [16]byte {
	var b [16]byte
	b[3], b[2], b[1], b[0] = g[0], g[1], g[2], g[3]
	b[5], b[4] = g[4], g[5]
	b[7], b[6] = g[6], g[7]
	copy(b[8:], g[8:])
	return b
}

// shortKeyGUIDPrefix is prepended to any 16-byte ("short") KeyId GUID
// found in a text key file: it becomes the first GUID of the pair
// (GUIDKeyId's low argument) and the short GUID the second.
var shortKeyGUIDPrefix = guid128{
	0xBB, 0x17, 0x55, 0xDB, 0x50, 0x52, 0x4B, 0x10,
	0xB2, 0xAB, 0xF3, 0xAB, 0xF5, 0xCA, 0x5B, 0x41,
}

// KeyId is a tagged value: either a numeric key tag or a pair of
// GUIDs. Only the GUID form appears in binary container headers;
// Numeric only ever arises from a text key file.
type KeyId struct {
	isGUID  bool
	numeric uint16
	guids   [2]guid128
}

// parseGUIDString decodes a canonical "xxxxxxxx-xxxx-xxxx-xxxx-xxxxxxxxxxxx"
// GUID string into standard byte order (no mixed-endian byteswap —
// that convention only applies to binary wire/keyfile encodings).
func parseGUIDString(s string) (guid128, error) {
	hexOnly := strings.ReplaceAll(s, "-", "")
	raw, err := hex.DecodeString(hexOnly)
	if err != nil {
		return guid128{}, newDecodeError("invalid GUID %q: %v", s, err)
	}
	if len(raw) != 16 {
		return guid128{}, newDecodeError("invalid GUID %q: expected 16 bytes, got %d", s, len(raw))
	}
	var g guid128
	copy(g[:], raw)
	return g, nil
}

// TestKeyID builds the GUID-pair KeyId for two canonical GUID
// strings, used by the CLI's well-known test-key injection.
func TestKeyID(low, high string) (KeyId, error) {
	lowGUID, err := parseGUIDString(low)
	if err != nil {
		return KeyId{}, err
	}
	highGUID, err := parseGUIDString(high)
	if err != nil {
		return KeyId{}, err
	}
	return GUIDKeyId(lowGUID, highGUID), nil
}

// NumericKeyId builds a numeric-tagged KeyId.
func NumericKeyId(n uint16) KeyId {
	return KeyId{isGUID: false, numeric: n}
}

// GUIDKeyId builds a paired-GUID KeyId.
func GUIDKeyId(low, high guid128) KeyId {
	return KeyId{isGUID: true, guids: [2]guid128{low, high}}
}

func (k KeyId) String() string {
	if !k.isGUID {
		return strconv.FormatUint(uint64(k.numeric), 10)
	}
	return guidString(k.guids[0]) + "/" + guidString(k.guids[1])
}

func guidString(g guid128) string {
	return strings.ToLower(
		hexEnc(g[0:4]) + "-" + hexEnc(g[4:6]) + "-" + hexEnc(g[6:8]) + "-" +
			hexEnc(g[8:10]) + "-" + hexEnc(g[10:16]),
	)
}

func hexEnc(b []byte) string {
	const hexdigits = "0123456789abcdef"
	out := make([]byte, len(b)*2)
	for i, c := range b {
		out[i*2] = hexdigits[c>>4]
		out[i*2+1] = hexdigits[c&0xf]
	}
	return string(out)
}

// readKeyID parses one 32-byte binary KeyId record (two little-endian
// mixed-endian GUIDs back to back).
func readKeyID(b []byte) (KeyId, error) {
	if len(b) != 32 {
		return KeyId{}, newDecodeError("key id record must be 32 bytes, got %d", len(b))
	}
	var lowRaw, highRaw [16]byte
	copy(lowRaw[:], b[:16])
	copy(highRaw[:], b[16:])
	return GUIDKeyId(guidFromBytesLE(lowRaw), guidFromBytesLE(highRaw)), nil
}

// writeKeyID serializes a paired-GUID KeyId back into its 32-byte wire
// form. A Numeric KeyId has no binary representation; callers must not
// attempt to serialize one.
func writeKeyID(k KeyId) ([]byte, error) {
	if !k.isGUID {
		return nil, newDecodeError("cannot serialize a numeric key id into binary form")
	}
	out := make([]byte, 32)
	lowBytes := k.guids[0].toBytesLE()
	highBytes := k.guids[1].toBytesLE()
	copy(out[:16], lowBytes[:])
	copy(out[16:], highBytes[:])
	return out, nil
}

// KeyRegistry maps a KeyId to its 32-byte key material.
type KeyRegistry struct {
	keys map[KeyId][]byte
}

// NewKeyRegistry returns an empty registry.
func NewKeyRegistry() *KeyRegistry {
	return &KeyRegistry{keys: make(map[KeyId][]byte)}
}

// Add inserts or overwrites the key material for id.
func (r *KeyRegistry) Add(id KeyId, key []byte) {
	r.keys[id] = key
}

// Extend merges another registry's entries into r; later (other's)
// values win on key collision.
func (r *KeyRegistry) Extend(other *KeyRegistry) {
	for id, key := range other.keys {
		r.keys[id] = key
	}
}

// Get returns the key material for id, if resident.
func (r *KeyRegistry) Get(id KeyId) ([]byte, bool) {
	key, ok := r.keys[id]
	return key, ok
}

// HasAll reports whether every id in required is present in r.
func (r *KeyRegistry) HasAll(required []KeyId) bool {
	for _, id := range required {
		if _, ok := r.keys[id]; !ok {
			return false
		}
	}
	return true
}

// ParseKeyText parses the text key-file format:
//
//	[Keys]
//	"<base64 key id>" "<base64 key material>"
//
// The first non-whitespace line must be literally "[Keys]". Lines that
// do not begin with a double quote are skipped. On a quoted line the
// first token is tried as base64 (16 bytes -> short GUID widened by
// prepending shortKeyGUIDPrefix, 32 bytes -> explicit GUID pair), then
// as a base-10 uint16 Numeric tag. A line whose first token matches
// neither is silently skipped.
func ParseKeyText(text string) (*KeyRegistry, error) {
	data := strings.TrimSpace(text)
	if !strings.HasPrefix(data, "[Keys]") {
		return nil, newDecodeError("key file must begin with [Keys]")
	}

	reg := NewKeyRegistry()
	for _, line := range strings.Split(data, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || !strings.HasPrefix(line, `"`) {
			continue
		}

		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		idToken := strings.Trim(fields[0], `"`)
		keyToken := strings.Trim(fields[1], `"`)

		keyBytes, err := base64.StdEncoding.DecodeString(keyToken)
		if err != nil {
			return nil, newDecodeError("key file: bad base64 key material: %v", err)
		}

		keyID, ok := parseKeyIDToken(idToken)
		if !ok {
			continue
		}
		reg.Add(keyID, keyBytes)
	}

	return reg, nil
}

func parseKeyIDToken(token string) (KeyId, bool) {
	if idBytes, err := base64.StdEncoding.DecodeString(token); err == nil {
		switch len(idBytes) {
		case 16:
			var short [16]byte
			copy(short[:], idBytes)
			return GUIDKeyId(shortKeyGUIDPrefix, guidFromBytesLE(short)), true
		case 32:
			var low, high [16]byte
			copy(low[:], idBytes[:16])
			copy(high[:], idBytes[16:])
			return GUIDKeyId(guidFromBytesLE(low), guidFromBytesLE(high)), true
		}
	}

	if n, err := strconv.ParseUint(token, 10, 16); err == nil {
		return NumericKeyId(uint16(n)), true
	}

	return KeyId{}, false
}
