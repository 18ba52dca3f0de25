package eappx

import (
	"encoding/base64"
	"encoding/xml"
	"strconv"
)

// AppxBlockMap is the root of AppxBlockmap.xml: a hashing method and
// the sequence of files the package's block-map covers.
type AppxBlockMap struct {
	XMLName    xml.Name       `xml:"BlockMap"`
	HashMethod string         `xml:"HashMethod,attr"`
	Files      []BlockMapFile `xml:"File"`
}

// BlockMapFile describes one file's block-map entry.
type BlockMapFile struct {
	Name      string           `xml:"Name,attr"`
	ID        string           `xml:"Id,attr"`
	Size      uint64           `xml:"Size,attr"`
	Encrypted string           `xml:"Encrypted,attr"`
	Blocks    []BlockMapBlock  `xml:"Block"`
	FileHash  *BlockMapHashRef `xml:"FileHash"`
}

// BlockMapBlock is a single 64 KiB hashed chunk of a file.
type BlockMapBlock struct {
	Hash string `xml:"Hash,attr"`
	Size *int   `xml:"Size,attr"`
}

// BlockMapHashRef holds the base64 SHA-256 of an entire file.
type BlockMapHashRef struct {
	Hash string `xml:"Hash,attr"`
}

// parseBlockMap decodes AppxBlockmap.xml.
func parseBlockMap(data []byte) (*AppxBlockMap, error) {
	var bm AppxBlockMap
	if err := xml.Unmarshal(data, &bm); err != nil {
		return nil, newDecodeError("bad block-map xml: %v", err)
	}
	return &bm, nil
}

// ID64 parses the file's hex-string Id attribute as an unsigned 64-bit
// integer, the join key against FileFooter.FileID.
func (f *BlockMapFile) ID64() (uint64, error) {
	v, err := strconv.ParseUint(f.ID, 16, 64)
	if err != nil {
		return 0, newDecodeError("block-map file id %q is not valid hex: %v", f.ID, err)
	}
	return v, nil
}

// IsEncrypted reports the block-map's own Encrypted attribute, used
// only informationally — the engine's authoritative encryption
// decision always comes from the matching FileFooter.
func (f *BlockMapFile) IsEncrypted() bool {
	return f.Encrypted == "true"
}

// FileHashBytes decodes the whole-file hash, if present.
func (f *BlockMapFile) FileHashBytes() ([]byte, bool, error) {
	if f.FileHash == nil {
		return nil, false, nil
	}
	b, err := base64.StdEncoding.DecodeString(f.FileHash.Hash)
	if err != nil {
		return nil, false, newDecodeError("bad file hash base64 for %q: %v", f.Name, err)
	}
	return b, true, nil
}

// BlockHashes decodes every block's hash in order.
func (f *BlockMapFile) BlockHashes() ([][]byte, error) {
	out := make([][]byte, len(f.Blocks))
	for i, b := range f.Blocks {
		decoded, err := base64.StdEncoding.DecodeString(b.Hash)
		if err != nil {
			return nil, newDecodeError("bad block hash base64 for %q block %d: %v", f.Name, i, err)
		}
		out[i] = decoded
	}
	return out, nil
}
