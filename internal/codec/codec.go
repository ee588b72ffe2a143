// Package codec implements framing and message (de)serialization: applying
// or stripping the compression layer, reading and writing VarInt length
// and id prefixes, and handing packet bodies to the protocol.Factory.
package codec

import (
	"bufio"
	"bytes"
	"fmt"

	"github.com/cobaltcraft/mc-sniffproxy/internal/compress"
	"github.com/cobaltcraft/mc-sniffproxy/internal/protocol"
	"github.com/cobaltcraft/mc-sniffproxy/internal/varint"
)

// Uncompressed is the CompressionThreshold sentinel meaning "compression
// disabled; packets are framed as length|id|payload".
const Uncompressed int32 = -1

// Result is what Decode produces for one frame: the typed message (a
// RawMessage fallback when the factory does not recognize the id), plus
// enough raw information for the caller to still log and forward the
// packet even when decoding fails partway through.
type Result struct {
	ID      int
	Message protocol.Message
	Known   bool
	// ParseErr is set when the id was recognized but Read failed partway
	// through the body (a malformed or truncated field). Message is still
	// populated with whatever state Read reached, per the spec's
	// "PARSING EXCEPTION... still log" policy; Dispatch must NOT be
	// invoked by the caller when ParseErr is non-nil, matching the
	// original implementation's try/catch which skips Dispatch on error.
	ParseErr error
}

// Decode strips the compression layer (if enabled) from a frame body
// (the bytes after the outer length prefix, as produced by frame.Buffer),
// reads the VarInt packet id, and asks factory for a typed message in the
// given (origin, state). The caller is responsible for invoking
// Result.Message.Dispatch when ParseErr is nil.
func Decode(body []byte, origin protocol.Origin, state protocol.State, threshold int32, factory protocol.Factory) (Result, error) {
	payload := body

	if threshold >= 0 {
		r := bufio.NewReader(bytes.NewReader(body))
		dataLength, n, err := varint.Read(r)
		if err != nil {
			return Result{}, fmt.Errorf("codec: data length prefix: %w", err)
		}
		remainder, err := readRemainder(body, n)
		if err != nil {
			return Result{}, fmt.Errorf("codec: locating payload after data length: %w", err)
		}

		if dataLength == 0 {
			payload = remainder
		} else {
			decompressed, err := compress.Decompress(remainder, int(dataLength))
			if err != nil {
				return Result{}, fmt.Errorf("codec: decompress: %w", err)
			}
			payload = decompressed
		}
	}

	pr := bufio.NewReader(bytes.NewReader(payload))
	id32, n, err := varint.Read(pr)
	if err != nil {
		return Result{}, fmt.Errorf("codec: packet id: %w", err)
	}
	id := int(id32)
	remainingBytes := len(payload) - n

	msg, known := factory.Create(origin, id, state)

	res := Result{ID: id, Message: msg, Known: known}
	if readErr := msg.Read(pr, remainingBytes); readErr != nil {
		res.ParseErr = fmt.Errorf("%s: %w", msg.Name(), readErr)
	}
	return res, nil
}

// readRemainder returns the slice of body after its first consumed bytes,
// the count a varint.Read over the front of body reported.
func readRemainder(body []byte, consumed int) ([]byte, error) {
	if consumed > len(body) {
		return nil, fmt.Errorf("inconsistent consumed length")
	}
	return body[consumed:], nil
}

// Encode serializes msg and reframes it for the wire under the given
// compression threshold, returning the complete frame (length prefix
// included) ready to enqueue for a write. This is the corrected version of
// the known source bug (see DESIGN.md / SPEC_FULL.md §4.3 and §9): the
// uncompressed body length is varint-encoded as the data-length prefix
// *before* the compressed block is appended, not after the body buffer has
// already been cleared.
func Encode(msg protocol.Message, threshold int32) ([]byte, error) {
	var content bytes.Buffer
	content.Write(varint.Encode(int32(msg.ID())))
	if err := msg.Write(&content); err != nil {
		return nil, fmt.Errorf("codec: encode %s: %w", msg.Name(), err)
	}

	var framedContent bytes.Buffer
	if threshold == Uncompressed {
		framedContent = content
	} else if int32(content.Len()) < threshold {
		framedContent.WriteByte(0x00)
		framedContent.Write(content.Bytes())
	} else {
		bodyLen := int32(content.Len())
		compressed, err := compress.Compress(content.Bytes())
		if err != nil {
			return nil, fmt.Errorf("codec: compress %s: %w", msg.Name(), err)
		}
		framedContent.Write(varint.Encode(bodyLen))
		framedContent.Write(compressed)
	}

	var out bytes.Buffer
	out.Write(varint.Encode(int32(framedContent.Len())))
	out.Write(framedContent.Bytes())
	return out.Bytes(), nil
}
