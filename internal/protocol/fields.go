package protocol

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/cobaltcraft/mc-sniffproxy/internal/varint"
)

// readVarInt reads a VarInt field from a bufio.Reader positioned inside a
// packet body, returning a descriptive error on truncation rather than the
// raw varint.ErrNeedMoreData sentinel (the whole frame is already buffered
// by the time a Message.Read is called, so running out of bytes here means
// the packet itself is malformed, not merely incomplete).
func readVarInt(r *bufio.Reader) (int32, error) {
	v, _, err := varint.Read(r)
	if err != nil {
		return 0, fmt.Errorf("truncated varint: %w", err)
	}
	return v, nil
}

func writeVarInt(out *bytes.Buffer, v int32) {
	out.Write(varint.Encode(v))
}

func readString(r *bufio.Reader) (string, error) {
	n, err := readVarInt(r)
	if err != nil {
		return "", fmt.Errorf("string length: %w", err)
	}
	if n < 0 || n > 32767*4 {
		return "", fmt.Errorf("string length out of range: %d", n)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", fmt.Errorf("string body: %w", err)
	}
	return string(buf), nil
}

func writeString(out *bytes.Buffer, s string) {
	writeVarInt(out, int32(len(s)))
	out.WriteString(s)
}

func readUint16(r *bufio.Reader) (uint16, error) {
	var buf [2]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, fmt.Errorf("uint16: %w", err)
	}
	return binary.BigEndian.Uint16(buf[:]), nil
}

func writeUint16(out *bytes.Buffer, v uint16) {
	var buf [2]byte
	binary.BigEndian.PutUint16(buf[:], v)
	out.Write(buf[:])
}

func readBytes(r *bufio.Reader, n int) ([]byte, error) {
	if n < 0 {
		return nil, fmt.Errorf("negative byte count: %d", n)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("byte block: %w", err)
	}
	return buf, nil
}

func readPrefixedBytes(r *bufio.Reader) ([]byte, error) {
	n, err := readVarInt(r)
	if err != nil {
		return nil, fmt.Errorf("byte block length: %w", err)
	}
	return readBytes(r, int(n))
}

func writePrefixedBytes(out *bytes.Buffer, b []byte) {
	writeVarInt(out, int32(len(b)))
	out.Write(b)
}

func readRemaining(r *bufio.Reader, remaining int) ([]byte, error) {
	if remaining <= 0 {
		return nil, nil
	}
	return readBytes(r, remaining)
}
