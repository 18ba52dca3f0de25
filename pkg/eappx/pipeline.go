package eappx

import (
	"io"

	"github.com/klauspost/compress/flate"
)

// buildPipeline constructs the layered reader for one logical file's
// payload bytes: the stream is wrapped DEFLATE-first (if compressed),
// then AES-XTS-decrypt-second (if encrypted) — preserving the exact
// wrap order of the reference implementation even though it reads as
// architecturally inverted from how the bytes were produced. See
// SPEC_FULL.md §4.5 for why this order is load-bearing.
//
// Panics if encrypted is true and ctx is nil: an encrypted file with
// no crypto context is a programmer error, not a data error.
func buildPipeline(raw io.Reader, compressed, encrypted bool, ctx *cryptoFileContext) io.Reader {
	var reader io.Reader = raw

	if compressed {
		reader = flate.NewReader(reader)
	}

	if encrypted {
		if ctx == nil {
			panic("eappx: file is encrypted but no crypto context was supplied")
		}
		reader = newXTSDecryptReader(reader, ctx)
	}

	return reader
}
