package eappx

import (
	"io"
	"os"

	"github.com/hashicorp/go-hclog"
)

// Container is an opened EAPPX/MSIX-style container: the parsed
// header, footer array, and the underlying seekable stream. It owns
// the file handle exclusively for the duration of its lifetime — no
// concurrent extraction from the same Container is supported.
type Container struct {
	path    string
	file    *os.File
	fileLen int64

	Header  *ContainerHeader
	Footers []FileFooter

	keys   *KeyRegistry
	logger hclog.Logger
}

// Open reads the header and footer array of the container at path.
// keys may be nil, in which case encrypted files cannot be extracted
// (but footprint/block-map introspection still works).
func Open(path string, keys *KeyRegistry, logger hclog.Logger) (*Container, error) {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	if keys == nil {
		keys = NewKeyRegistry()
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}

	header, err := readHeader(f)
	if err != nil {
		f.Close()
		return nil, err
	}

	logger.Debug("parsed container header",
		"kind", header.Magic.String(),
		"package_full_name", header.PackageFullName,
		"file_count", header.FileCount,
	)

	if _, err := f.Seek(int64(header.FooterOffset), io.SeekStart); err != nil {
		f.Close()
		return nil, err
	}

	footerCount := int(header.FooterLength / FooterSize)
	footers, err := readFooters(f, footerCount)
	if err != nil {
		f.Close()
		return nil, err
	}

	return &Container{
		path:    path,
		file:    f,
		fileLen: info.Size(),
		Header:  header,
		Footers: footers,
		keys:    keys,
		logger:  logger,
	}, nil
}

// Close releases the underlying file handle.
func (c *Container) Close() error {
	return c.file.Close()
}

// footerForFileID resolves a block-map file's numeric id against the
// footer array.
func (c *Container) footerForFileID(id uint64) (*FileFooter, bool) {
	return footerByFileID(c.Footers, id)
}

// cipherForKeyIndex implements get_cipher_for_key_index: 0xFFFF means
// "not encrypted"; an index with no corresponding registry entry
// means "key unavailable".
func (c *Container) cipherForKeyIndex(index uint16) ([]byte, bool) {
	if index == NoKeyIndex {
		return nil, false
	}
	if int(index) >= len(c.Header.KeyIDs) {
		return nil, false
	}
	return c.keys.Get(c.Header.KeyIDs[index])
}

// cryptoContextForFile builds the per-file AES-XTS context for a
// footer whose key_id_index names a resident key, or nil if the file
// is not encrypted or the key is missing.
func (c *Container) cryptoContextForFile(footer *FileFooter, logicalPath string) (*cryptoFileContext, error) {
	keyBytes, ok := c.cipherForKeyIndex(footer.KeyIDIndex)
	if !ok {
		c.logger.Warn("no key available for encrypted file", "path", logicalPath, "key_id_index", footer.KeyIDIndex)
		return nil, nil
	}
	if len(keyBytes) != 32 {
		return nil, newDecodeError("key material for index %d must be 32 bytes, got %d", footer.KeyIDIndex, len(keyBytes))
	}

	var key [32]byte
	copy(key[:], keyBytes)
	cipher, err := createCipher(key)
	if err != nil {
		return nil, err
	}

	// The tweak's PFN is app_name + "_" + publisher_id recombined
	// verbatim, not re-derived through generatePFN: publisher_id here
	// is already the package's stored, hashed publisher id, not a raw
	// distinguished name, so re-hashing it would double-hash.
	pfn := c.Header.AppName() + "_" + c.Header.PublisherID()
	tweak := tweakForPath(logicalPath, pfn)

	c.logger.Trace("built AES-XTS context", "path", logicalPath, "pfn", pfn, "key_id_index", footer.KeyIDIndex)

	return &cryptoFileContext{cipher: cipher, tweak: tweak}, nil
}

// sectionReader returns a bounded reader over the container stream
// starting at offset.
func (c *Container) sectionReader(offset int64) *io.SectionReader {
	return io.NewSectionReader(c.file, offset, c.fileLen-offset)
}
