package eappx

import (
	"bytes"
	"crypto/sha256"
	"os"
	"path/filepath"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/klauspost/compress/flate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestContainer builds a Container directly around a temp file
// holding raw bytes, without going through the full header/footer
// parser — used to exercise runPipeline in isolation.
func newTestContainer(t *testing.T, raw []byte) *Container {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "payload.bin")
	require.NoError(t, os.WriteFile(path, raw, 0o644))

	f, err := os.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })

	info, err := f.Stat()
	require.NoError(t, err)

	return &Container{
		file:    f,
		fileLen: info.Size(),
		keys:    NewKeyRegistry(),
		logger:  hclog.NewNullLogger(),
	}
}

func TestRunPipelineStoredUnencrypted(t *testing.T) {
	payload := bytes.Repeat([]byte("hello world "), 100)
	c := newTestContainer(t, payload)

	blockHash := sha256.Sum256(payload)
	fileHash := sha256.Sum256(payload)

	footer := FileFooter{
		KeyIDIndex:         NoKeyIndex,
		CompressionType:    CompressionStored,
		OffsetToFile:       0,
		UncompressedLength: uint64(len(payload)),
	}
	fi := newFileInfo("AppxManifest.xml", footer)
	fi.BlockHashes = [][]byte{blockHash[:]}
	fi.FileHash = fileHash[:]

	var out bytes.Buffer
	err := c.runPipeline(fi, false, nil, modeExtract, true, &out)
	require.NoError(t, err)
	assert.Equal(t, payload, out.Bytes())
}

func TestRunPipelineCompressedUnencrypted(t *testing.T) {
	plain := bytes.Repeat([]byte("compress me please "), 500)

	var compressed bytes.Buffer
	w, err := flate.NewWriter(&compressed, flate.DefaultCompression)
	require.NoError(t, err)
	_, err = w.Write(plain)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	c := newTestContainer(t, compressed.Bytes())

	footer := FileFooter{
		KeyIDIndex:         NoKeyIndex,
		CompressionType:    CompressionDeflate,
		OffsetToFile:       0,
		UncompressedLength: uint64(len(plain)),
	}
	fi := newFileInfo("data.bin", footer)

	var out bytes.Buffer
	err = c.runPipeline(fi, false, nil, modeExtract, true, &out)
	require.NoError(t, err)
	assert.Equal(t, plain, out.Bytes())
}

func TestRunPipelineEncrypted(t *testing.T) {
	plain := bytes.Repeat([]byte("secret sector payload!!"), 50)[:SectorSize*2]

	var key [32]byte
	for i := range key {
		key[i] = byte(i)
	}
	cipher, err := createCipher(key)
	require.NoError(t, err)

	ctx := &cryptoFileContext{cipher: cipher, tweak: 0x2A7D4F58F4A696A3}

	ciphertext := make([]byte, len(plain))
	copy(ciphertext, plain)
	for sector := 0; sector*SectorSize < len(ciphertext); sector++ {
		tweak := ctx.tweakForSector(uint64(sector))
		xtsEncryptSector(cipher, ciphertext[sector*SectorSize:(sector+1)*SectorSize], tweak)
	}

	c := newTestContainer(t, ciphertext)
	footer := FileFooter{
		KeyIDIndex:         0,
		CompressionType:    CompressionStored,
		OffsetToFile:       0,
		UncompressedLength: uint64(len(plain)),
	}
	fi := newFileInfo("secret.bin", footer)

	var out bytes.Buffer
	err = c.runPipeline(fi, false, ctx, modeExtract, true, &out)
	require.NoError(t, err)
	assert.Equal(t, plain, out.Bytes())
}

func TestRunPipelineInvalidFilesize(t *testing.T) {
	payload := []byte("short")
	c := newTestContainer(t, payload)

	footer := FileFooter{
		KeyIDIndex:         NoKeyIndex,
		CompressionType:    CompressionStored,
		OffsetToFile:       0,
		UncompressedLength: 9999,
	}
	fi := newFileInfo("broken.bin", footer)

	var out bytes.Buffer
	err := c.runPipeline(fi, false, nil, modeExtract, true, &out)
	require.Error(t, err)
}

func TestRunPipelineBlockHashMismatch(t *testing.T) {
	payload := []byte("some data that does not match its hash")
	c := newTestContainer(t, payload)

	footer := FileFooter{
		KeyIDIndex:         NoKeyIndex,
		CompressionType:    CompressionStored,
		OffsetToFile:       0,
		UncompressedLength: uint64(len(payload)),
	}
	fi := newFileInfo("bad.bin", footer)
	fi.BlockHashes = [][]byte{make([]byte, 32)}

	var out bytes.Buffer
	err := c.runPipeline(fi, false, nil, modeExtract, true, &out)
	require.Error(t, err)
	var verifyErr *VerifyError
	assert.ErrorAs(t, err, &verifyErr)
}
