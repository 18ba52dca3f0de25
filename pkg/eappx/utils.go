package eappx

import (
	"crypto/sha256"
	"fmt"
	"strings"
	"unicode/utf16"
)

// crockfordAlphabet is the Crockford-base32-ish alphabet used to render
// a publisher id. Note this is not literally Crockford base32: there is
// no check-digit handling and the input is always exactly 65 bits.
const crockfordAlphabet = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"

// alignToSector rounds n up to the next multiple of SectorSize.
// Undefined for n == 0; callers must not invoke it with zero.
func alignToSector(n int) int {
	return ((n-1)/SectorSize + 1) * SectorSize
}

// strToUTF16Bytes encodes s as UTF-16LE code units with no BOM and no
// null terminator.
func strToUTF16Bytes(s string) []byte {
	units := utf16.Encode([]rune(s))
	out := make([]byte, 0, len(units)*2)
	for _, u := range units {
		out = append(out, byte(u), byte(u>>8))
	}
	return out
}

// utf16BytesToString decodes a UTF-16LE byte slice (even length) back
// to a string.
func utf16BytesToString(b []byte) (string, error) {
	if len(b)%2 != 0 {
		return "", newDecodeError("UTF-16LE byte slice has odd length %d", len(b))
	}
	units := make([]uint16, len(b)/2)
	for i := range units {
		units[i] = uint16(b[2*i]) | uint16(b[2*i+1])<<8
	}
	return string(utf16.Decode(units)), nil
}

// generatePublisherID derives the 13-character publisher id from a
// publisher distinguished name, matching the Windows package family
// name algorithm: UTF-16LE encode, SHA-256, take the first 8 bytes,
// pad the 64-bit binary string to 65 bits, and map 5-bit groups
// through a Crockford-style alphabet.
func generatePublisherID(publisherDN string) string {
	h := sha256.Sum256(strToUTF16Bytes(publisherDN))
	first8 := h[:8]

	var bits strings.Builder
	for _, b := range first8 {
		fmt.Fprintf(&bits, "%08b", b)
	}
	// Right-pad the 64-bit binary string with a single '0' to 65 bits.
	binStr := bits.String() + "0"

	var out strings.Builder
	for i := 0; i < len(binStr); i += 5 {
		chunk := binStr[i : i+5]
		idx := 0
		for _, c := range chunk {
			idx = idx<<1 | int(c-'0')
		}
		out.WriteByte(crockfordAlphabet[idx])
	}

	return strings.ToLower(out.String())
}

// generatePFN builds the package full name "{app}_{publisherId}".
func generatePFN(app, publisherDN string) string {
	return app + "_" + generatePublisherID(publisherDN)
}

// humanFilesize renders bytes using the largest non-zero unit among
// B, KB, MB, GB (display-only, matches the original's integer
// divide-by-1024 ladder — not IEC rounding).
func humanFilesize(size uint64) string {
	kb := size / 1024
	mb := kb / 1024
	gb := mb / 1024

	switch {
	case gb > 0:
		return fmt.Sprintf("%d GB", gb)
	case mb > 0:
		return fmt.Sprintf("%d MB", mb)
	case kb > 0:
		return fmt.Sprintf("%d KB", kb)
	default:
		return fmt.Sprintf("%d B", size)
	}
}
