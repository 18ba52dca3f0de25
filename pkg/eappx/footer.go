package eappx

import (
	"encoding/binary"
	"io"
)

// FileFooter is the fixed 48-byte per-file trailer record.
type FileFooter struct {
	Magic              uint16
	FooterSize         uint16
	KeyIDIndex         uint16
	CompressionType    uint16
	FileID             uint64
	OffsetToFile       uint64
	UncompressedLength uint64
	CompressedLength   uint64
}

// IsEncrypted reports whether this footer's key index points at a
// real key-id slot. Bundle sub-packages override this at the call
// site per component E's from_bundle rule.
func (f *FileFooter) IsEncrypted() bool {
	return f.KeyIDIndex != NoKeyIndex
}

// IsCompressed reports whether this footer's payload is DEFLATE.
func (f *FileFooter) IsCompressed() bool {
	return f.CompressionType == CompressionDeflate
}

// readFooters reads count consecutive 48-byte FileFooter records from
// r, validating each record's magic.
func readFooters(r io.Reader, count int) ([]FileFooter, error) {
	out := make([]FileFooter, 0, count)
	buf := make([]byte, FooterSize)

	for i := 0; i < count; i++ {
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, newDecodeError("truncated footer record %d: %v", i, err)
		}
		// Bytes 40..48 are reserved padding; the live fields occupy
		// the first 40 bytes.

		f := FileFooter{
			Magic:              binary.LittleEndian.Uint16(buf[0:2]),
			FooterSize:         binary.LittleEndian.Uint16(buf[2:4]),
			KeyIDIndex:         binary.LittleEndian.Uint16(buf[4:6]),
			CompressionType:    binary.LittleEndian.Uint16(buf[6:8]),
			FileID:             binary.LittleEndian.Uint64(buf[8:16]),
			OffsetToFile:       binary.LittleEndian.Uint64(buf[16:24]),
			UncompressedLength: binary.LittleEndian.Uint64(buf[24:32]),
			CompressedLength:   binary.LittleEndian.Uint64(buf[32:40]),
		}
		if f.Magic != FooterMagic {
			return nil, newDecodeError("footer record %d has bad magic 0x%04x", i, f.Magic)
		}
		out = append(out, f)
	}

	return out, nil
}

// footerByFileID finds the footer whose FileID matches id.
func footerByFileID(footers []FileFooter, id uint64) (*FileFooter, bool) {
	for i := range footers {
		if footers[i].FileID == id {
			return &footers[i], true
		}
	}
	return nil, false
}
