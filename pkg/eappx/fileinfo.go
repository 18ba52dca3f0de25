package eappx

// FileInfo is the derived, in-memory view the extraction engine
// pipeline operates against: footer fields merged with whatever the
// block-map contributed for this file.
type FileInfo struct {
	LogicalName        string
	Footer             FileFooter
	FileHash           []byte // whole-file SHA-256, nil if absent
	BlockHashes        [][]byte
}

func newFileInfo(name string, footer FileFooter) *FileInfo {
	return &FileInfo{LogicalName: name, Footer: footer}
}
