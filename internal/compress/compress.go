// Package compress implements the Compression capability the codec
// consumes: raw DEFLATE with a zlib wrapper, the scheme Minecraft's wire
// protocol has used since compression was introduced. This mirrors the
// teacher repository's own choice of compress/zlib in its proxy/record
// example (examples/proxyrec/main.go) rather than reaching for a
// third-party DEFLATE implementation; see DESIGN.md for why the standard
// library is the idiomatic choice here.
package compress

import (
	"bytes"
	"compress/zlib"
	"fmt"
	"io"
)

// Compress deflates data with a zlib wrapper.
func Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		_ = zw.Close()
		return nil, fmt.Errorf("compress: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("compress: %w", err)
	}
	return buf.Bytes(), nil
}

// Decompress inflates a zlib-wrapped block. expectedSize, when positive, is
// used only to preallocate the output buffer; a mismatch is not an error by
// itself (some encoders are imprecise), callers that care should check
// len(out) against expectedSize themselves.
func Decompress(data []byte, expectedSize int) ([]byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decompress: open: %w", err)
	}
	defer zr.Close()

	var out bytes.Buffer
	if expectedSize > 0 {
		out.Grow(expectedSize)
	}
	if _, err := io.Copy(&out, zr); err != nil {
		return nil, fmt.Errorf("decompress: inflate: %w", err)
	}
	return out.Bytes(), nil
}
