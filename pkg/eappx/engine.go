package eappx

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// pipelineMode selects whether runPipeline writes decrypted plaintext
// to an output sink (extract) or only re-derives hashes (verify).
type pipelineMode int

const (
	modeExtract pipelineMode = iota
	modeVerify
)

// runPipeline drives the per-file read loop described by the
// extraction engine: seek to the footer's offset, build the layered
// reader, and walk the file in BlockSize chunks, checking block
// hashes as they come available and (in extract mode) writing
// plaintext to dest and accumulating the whole-file hash.
func (c *Container) runPipeline(fi *FileInfo, fromBundle bool, ctx *cryptoFileContext, mode pipelineMode, doChecksumCheck bool, dest io.Writer) error {
	footer := fi.Footer
	isEncrypted := footer.KeyIDIndex != NoKeyIndex && !fromBundle
	isCompressed := footer.CompressionType == CompressionDeflate

	raw := c.sectionReader(int64(footer.OffsetToFile))

	c.logger.Trace("running pipeline",
		"path", fi.LogicalName,
		"encrypted", isEncrypted,
		"compressed", isCompressed,
		"mode", mode,
	)

	// Block hash verification is only meaningful without a key when it
	// runs over the raw on-disk bytes, so verify mode never engages the
	// decrypt layer — only extract mode does, and only when a key is
	// actually available.
	var source io.Reader
	switch {
	case mode == modeVerify && isEncrypted:
		source = raw
	default:
		source = buildPipeline(raw, isCompressed, mode == modeExtract && isEncrypted, ctx)
	}

	checkHashes := doChecksumCheck && len(fi.BlockHashes) > 0 && (mode == modeVerify || !isEncrypted)

	var pos uint64
	blockIdx := 0
	hasher := sha256.New()

	for pos < footer.UncompressedLength {
		remaining := footer.UncompressedLength - pos
		chunk := remaining
		if chunk > BlockSize {
			chunk = BlockSize
		}

		readLen := chunk
		if mode == modeVerify && isEncrypted {
			readLen = uint64(alignToSector(int(chunk)))
		}

		buf := make([]byte, readLen)
		if _, err := io.ReadFull(source, buf); err != nil {
			return fmt.Errorf("reading %q at block %d: %w", fi.LogicalName, blockIdx, err)
		}
		payload := buf[:chunk]

		if checkHashes && blockIdx < len(fi.BlockHashes) {
			sum := sha256.Sum256(buf)
			if !bytes.Equal(sum[:], fi.BlockHashes[blockIdx]) {
				c.logger.Warn("block hash mismatch", "path", fi.LogicalName, "block", blockIdx)
				return newVerifyError("block hash mismatch for %q block %d", fi.LogicalName, blockIdx)
			}
		}

		if mode == modeExtract {
			if dest != nil {
				if _, err := dest.Write(payload); err != nil {
					return err
				}
			}
			hasher.Write(payload)
		}

		pos += chunk
		blockIdx++
	}

	if pos != footer.UncompressedLength {
		return newDataError("invalid filesize for %q: consumed %d, expected %d", fi.LogicalName, pos, footer.UncompressedLength)
	}

	if mode == modeExtract && fi.FileHash != nil {
		sum := hasher.Sum(nil)
		if !bytes.Equal(sum, fi.FileHash) {
			c.logger.Warn("whole-file hash mismatch", "path", fi.LogicalName)
			return newVerifyError("whole-file hash mismatch for %q", fi.LogicalName)
		}
	}

	return nil
}

// extractFootprintFile writes one of the always-present footprint
// blobs (block-map, signature, code-integrity cat) to outputDir,
// joining its footer by position rather than file_id. fileHash, when
// non-nil, is checked against the whole-file SHA-256 as it's written.
func (c *Container) extractFootprintFile(footerIndex int, name, outputDir string, fileHash []byte) error {
	if footerIndex < 0 || footerIndex >= len(c.Footers) {
		return newDataError("footprint file %q: footer index %d out of range", name, footerIndex)
	}
	footer := c.Footers[footerIndex]
	fi := newFileInfo(name, footer)
	fi.FileHash = fileHash

	dest := filepath.Join(outputDir, name)
	return c.writeExtractedFile(fi, false, nil, true, dest, nil)
}

// writeExtractedFile extracts fi to destPath. If tee is non-nil, the
// plaintext is also copied there as it's written (used in phase 2 to
// capture the bundle manifest's bytes so phase 3 needs no second disk
// read).
func (c *Container) writeExtractedFile(fi *FileInfo, fromBundle bool, ctx *cryptoFileContext, doChecksumCheck bool, destPath string, tee io.Writer) error {
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return err
	}
	out, err := os.Create(destPath)
	if err != nil {
		return err
	}
	defer out.Close()

	var dest io.Writer = out
	if tee != nil {
		dest = io.MultiWriter(out, tee)
	}

	return c.runPipeline(fi, fromBundle, ctx, modeExtract, doChecksumCheck, dest)
}

// logicalToHostPath converts a block-map's backslash-separated
// logical path to the host's native separators.
func logicalToHostPath(logical string) string {
	return filepath.FromSlash(strings.ReplaceAll(logical, `\`, "/"))
}

// lastSegment returns the portion of a backslash-separated logical
// path after the final separator.
func lastSegment(logical string) string {
	idx := strings.LastIndex(logical, `\`)
	if idx < 0 {
		return logical
	}
	return logical[idx+1:]
}

// loadBlockMapBytes extracts the block-map footprint file into
// memory without touching disk, using the header's block_map_file_id
// as a positional footer index.
func (c *Container) loadBlockMapBytes() ([]byte, error) {
	idx := int(c.Header.BlockMapFileID)
	if idx < 0 || idx >= len(c.Footers) {
		return nil, newDataError("block_map_file_id %d out of range", idx)
	}
	footer := c.Footers[idx]
	fi := newFileInfo(BlockMapFileName, footer)
	if len(c.Header.BlockMapHashBytes) > 0 {
		fi.FileHash = c.Header.BlockMapHashBytes
	}

	var buf bytes.Buffer
	if err := c.runPipeline(fi, false, nil, modeExtract, true, &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// LoadBlockMap parses the container's block-map footprint file.
func (c *Container) LoadBlockMap() (*AppxBlockMap, error) {
	data, err := c.loadBlockMapBytes()
	if err != nil {
		return nil, err
	}
	return parseBlockMap(data)
}

// fileInfoForBlockMapEntry resolves a block-map File against the
// footer array by file_id and assembles the derived FileInfo.
func (c *Container) fileInfoForBlockMapEntry(f *BlockMapFile) (*FileInfo, *FileFooter, error) {
	id, err := f.ID64()
	if err != nil {
		return nil, nil, err
	}
	footer, ok := c.footerForFileID(id)
	if !ok {
		return nil, nil, newDataError("no footer for block-map file %q (id %s)", f.Name, f.ID)
	}
	if f.Size != footer.UncompressedLength {
		return nil, nil, newDataError("block-map size %d disagrees with footer uncompressed_length %d for %q", f.Size, footer.UncompressedLength, f.Name)
	}

	fi := newFileInfo(f.Name, *footer)
	if hash, ok, err := f.FileHashBytes(); err != nil {
		return nil, nil, err
	} else if ok {
		fi.FileHash = hash
	}
	blockHashes, err := f.BlockHashes()
	if err != nil {
		return nil, nil, err
	}
	fi.BlockHashes = blockHashes

	return fi, footer, nil
}

// ExtractOptions configures one call to Container.Extract.
type ExtractOptions struct {
	OutputDir      string
	DoChecksumCheck bool
}

// Extract performs the full three-phase extraction: footprint files,
// block-map files, and (for bundles) sub-packages.
func (c *Container) Extract(opts ExtractOptions) error {
	if err := os.MkdirAll(opts.OutputDir, 0o755); err != nil {
		return err
	}

	// Phase 1: footprint files.
	c.logger.Debug("extract: phase 1 footprint files", "output_dir", opts.OutputDir)
	if err := c.extractFootprintFile(int(c.Header.BlockMapFileID), BlockMapFileName, opts.OutputDir, c.Header.BlockMapHashBytes); err != nil {
		return err
	}
	if c.Header.SignatureOffset > 0 && c.Header.SignatureOffset < uint64(c.fileLen) {
		if idx := c.footerIndexByOffset(c.Header.SignatureOffset); idx >= 0 {
			if err := c.extractFootprintFile(idx, SignatureFileName, opts.OutputDir, nil); err != nil {
				return err
			}
		} else {
			c.logger.Warn("signature offset set but no matching footer found", "offset", c.Header.SignatureOffset)
		}
	}
	if c.Header.CodeIntegrityOffset > 0 && c.Header.CodeIntegrityOffset < uint64(c.fileLen) {
		if idx := c.footerIndexByOffset(c.Header.CodeIntegrityOffset); idx >= 0 {
			if err := c.extractFootprintFile(idx, CodeIntegrityFileName, opts.OutputDir, nil); err != nil {
				return err
			}
		} else {
			c.logger.Warn("code integrity offset set but no matching footer found", "offset", c.Header.CodeIntegrityOffset)
		}
	}

	blockMap, err := c.LoadBlockMap()
	if err != nil {
		return err
	}
	c.logger.Debug("extract: phase 2 block-map files", "file_count", len(blockMap.Files))
	if len(blockMap.Files) == 0 {
		return newDataError("block-map has no entries")
	}

	first := &blockMap.Files[0]
	firstName := lastSegment(first.Name)
	isBundle := c.Header.Magic == KindBundle
	switch firstName {
	case ManifestFileName:
		if isBundle {
			return newDataError("bundle container's first block-map entry must be %s, got %s", BundleManifestFileName, firstName)
		}
	case BundleManifestFileName:
		if !isBundle {
			return newDataError("single-package container's first block-map entry must be %s, got %s", ManifestFileName, firstName)
		}
	default:
		return newDataError("first block-map entry %q is neither %s nor %s", first.Name, ManifestFileName, BundleManifestFileName)
	}

	// Phase 2: block-map files. The first entry is also the bundle
	// manifest in bundle containers; its plaintext is captured in
	// memory as it's written so phase 3 doesn't need to re-read it
	// back off disk.
	var manifestBytes bytes.Buffer
	for i := range blockMap.Files {
		f := &blockMap.Files[i]
		fi, footer, err := c.fileInfoForBlockMapEntry(f)
		if err != nil {
			return err
		}

		var ctx *cryptoFileContext
		if footer.KeyIDIndex != NoKeyIndex {
			ctx, err = c.cryptoContextForFile(footer, f.Name)
			if err != nil {
				return err
			}
			if ctx == nil {
				return newDataError("no key available for encrypted file %q (key_id_index %d)", f.Name, footer.KeyIDIndex)
			}
		}

		dest := filepath.Join(opts.OutputDir, logicalToHostPath(f.Name))
		var tee io.Writer
		if isBundle && i == 0 {
			tee = &manifestBytes
		}
		if err := c.writeExtractedFile(fi, false, ctx, opts.DoChecksumCheck, dest, tee); err != nil {
			return err
		}
	}

	// Phase 3: bundle sub-packages.
	if isBundle {
		manifest, err := parseBundleManifest(manifestBytes.Bytes())
		if err != nil {
			return err
		}
		c.logger.Debug("extract: phase 3 bundle sub-packages", "package_count", len(manifest.Packages.Package))

		for i, pkg := range manifest.Packages.Package {
			if i >= len(c.Footers) {
				return newDataError("bundle package ordinal %d has no matching footer", i)
			}
			footer := c.Footers[i]
			if pkg.Offset != footer.OffsetToFile {
				return newDataError("bundle package %q offset %d disagrees with footer offset_to_file %d", pkg.FileName, pkg.Offset, footer.OffsetToFile)
			}
			if pkg.Size != footer.UncompressedLength {
				return newDataError("bundle package %q size %d disagrees with footer uncompressed_length %d", pkg.FileName, pkg.Size, footer.UncompressedLength)
			}

			fi := newFileInfo(pkg.FileName, footer)
			dest := filepath.Join(opts.OutputDir, logicalToHostPath(pkg.FileName))
			if err := c.writeExtractedFile(fi, true, nil, opts.DoChecksumCheck, dest, nil); err != nil {
				return err
			}
		}
	}

	return nil
}

// footerIndexByOffset finds the footer whose OffsetToFile matches
// offset; used to resolve the signature and code-integrity blobs,
// which the header references by absolute file offset rather than by
// footer position or file_id.
func (c *Container) footerIndexByOffset(offset uint64) int {
	for i := range c.Footers {
		if c.Footers[i].OffsetToFile == offset {
			return i
		}
	}
	return -1
}

// Verify re-derives every file's block hashes without writing output,
// matching the "info" CLI mode: encrypted files are checked against
// their on-disk (still-encrypted) bytes, so no key is required.
func (c *Container) Verify() error {
	blockMap, err := c.LoadBlockMap()
	if err != nil {
		return err
	}
	c.logger.Debug("verify: re-deriving hashes", "file_count", len(blockMap.Files))

	for i := range blockMap.Files {
		f := &blockMap.Files[i]
		fi, _, err := c.fileInfoForBlockMapEntry(f)
		if err != nil {
			return err
		}
		if err := c.runPipeline(fi, false, nil, modeVerify, true, nil); err != nil {
			return err
		}
	}

	return nil
}
