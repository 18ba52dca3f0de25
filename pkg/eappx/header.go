package eappx

import (
	"encoding/binary"
	"io"
	"strings"
)

// ContainerHeader is the strictly little-endian fixed-plus-variable
// record at the start of every container stream.
type ContainerHeader struct {
	Magic      ContainerKind
	HeaderSize uint16
	Version    uint64

	FooterOffset uint64
	FooterLength uint64

	FileCount uint64

	SignatureOffset               uint64
	SignatureCompressionType      uint16
	SignatureUncompressedLength   uint32
	SignatureLength               uint32

	CodeIntegrityOffset             uint64
	CodeIntegrityCompressionType    uint16
	CodeIntegrityUncompressedLength uint32
	CodeIntegrityLength             uint32

	BlockMapFileID uint64

	KeyLength uint32
	KeyIDs    []KeyId

	PackageFullName   string
	CryptoAlgo        string
	DiffusionEnabled  uint16
	BlockMapHashAlgo  string
	BlockMapHashBytes []byte
}

// readHeader parses a ContainerHeader from the start of r, per the
// fixed layout defined alongside the footer format. Any short read or
// unrecognized magic is reported as a DecodeError.
func readHeader(r io.Reader) (*ContainerHeader, error) {
	br := &byteReader{r: r}

	magic := ContainerKind(br.u32())
	if !magic.valid() {
		return nil, newDecodeError("unrecognized container magic 0x%08x", uint32(magic))
	}

	h := &ContainerHeader{Magic: magic}
	h.HeaderSize = br.u16()
	h.Version = br.u64()

	h.FooterOffset = br.u64()
	h.FooterLength = br.u64()

	h.FileCount = br.u64()

	h.SignatureOffset = br.u64()
	h.SignatureCompressionType = br.u16()
	h.SignatureUncompressedLength = br.u32()
	h.SignatureLength = br.u32()

	h.CodeIntegrityOffset = br.u64()
	h.CodeIntegrityCompressionType = br.u16()
	h.CodeIntegrityUncompressedLength = br.u32()
	h.CodeIntegrityLength = br.u32()

	h.BlockMapFileID = br.u64()

	h.KeyLength = br.u32()

	keyIDCount := br.u16()
	h.KeyIDs = make([]KeyId, 0, keyIDCount)
	for i := uint16(0); i < keyIDCount; i++ {
		rec := br.bytes(32)
		if br.err != nil {
			break
		}
		keyID, err := readKeyID(rec)
		if err != nil {
			return nil, err
		}
		h.KeyIDs = append(h.KeyIDs, keyID)
	}

	_ = br.u16() // package_full_name_str_len: redundant with byte_len/2, not used
	pfnByteLen := br.u16()
	h.PackageFullName = br.utf16(int(pfnByteLen))

	cryptoByteLen := br.u16()
	h.CryptoAlgo = br.utf16(int(cryptoByteLen))

	h.DiffusionEnabled = br.u16()

	hashAlgoByteLen := br.u16()
	h.BlockMapHashAlgo = br.utf16(int(hashAlgoByteLen))

	hashLen := br.u16()
	h.BlockMapHashBytes = br.bytes(int(hashLen))

	if br.err != nil {
		return nil, newDecodeError("truncated container header: %v", br.err)
	}

	return h, nil
}

// AppName returns the first "_"-delimited segment of PackageFullName.
func (h *ContainerHeader) AppName() string {
	parts := strings.Split(h.PackageFullName, "_")
	return parts[0]
}

// PublisherID returns the last "_"-delimited segment of
// PackageFullName.
func (h *ContainerHeader) PublisherID() string {
	parts := strings.Split(h.PackageFullName, "_")
	return parts[len(parts)-1]
}

// byteReader is a small little-endian cursor over an io.Reader that
// latches the first error it sees so call sites can chain reads
// without checking every one individually.
type byteReader struct {
	r   io.Reader
	err error
}

func (b *byteReader) bytes(n int) []byte {
	if b.err != nil || n < 0 {
		return nil
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(b.r, buf); err != nil {
		b.err = err
		return nil
	}
	return buf
}

func (b *byteReader) u16() uint16 {
	buf := b.bytes(2)
	if buf == nil {
		return 0
	}
	return binary.LittleEndian.Uint16(buf)
}

func (b *byteReader) u32() uint32 {
	buf := b.bytes(4)
	if buf == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(buf)
}

func (b *byteReader) u64() uint64 {
	buf := b.bytes(8)
	if buf == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(buf)
}

func (b *byteReader) utf16(byteLen int) string {
	buf := b.bytes(byteLen)
	if buf == nil {
		return ""
	}
	s, err := utf16BytesToString(buf)
	if err != nil {
		b.err = err
		return ""
	}
	return s
}
