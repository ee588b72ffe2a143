// Package frame extracts length-prefixed Minecraft protocol packets from a
// growing byte stream.
package frame

import (
	"errors"
	"fmt"

	"github.com/cobaltcraft/mc-sniffproxy/internal/varint"
)

// ErrNegativeLength is returned when a decoded length prefix is negative,
// which can only happen from a corrupt or adversarial stream since VarInts
// themselves decode to non-negative 32-bit patterns only when the high bit
// of the top byte is clear; a length that decodes negative is a parse
// error that should close the session, not a "need more data" signal.
var ErrNegativeLength = errors.New("frame: negative packet length")

// Buffer is an append-only, front-consumable byte queue for one direction
// of one session. It owns no synchronization: each session direction has
// exactly one owning goroutine.
type Buffer struct {
	data []byte
}

// Append adds newly read bytes to the end of the buffer.
func (b *Buffer) Append(p []byte) {
	b.data = append(b.data, p...)
}

// Len reports how many unconsumed bytes remain.
func (b *Buffer) Len() int { return len(b.data) }

// Next attempts to slice one complete frame (length-prefix included) off
// the front of the buffer. It returns ok=false, err=nil when there is not
// yet enough data to know whether a frame is complete - the caller should
// simply wait for more bytes from the socket. A non-nil error means the
// stream itself is malformed and the session should be closed.
func (b *Buffer) Next() (framed []byte, ok bool, err error) {
	length, n, verr := varint.ReadFrom(b.data)
	if verr != nil {
		if errors.Is(verr, varint.ErrNeedMoreData) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("frame: length prefix: %w", verr)
	}
	if length < 0 {
		return nil, false, ErrNegativeLength
	}
	total := n + int(length)
	if len(b.data) < total {
		return nil, false, nil
	}

	framed = make([]byte, total)
	copy(framed, b.data[:total])
	b.data = b.data[total:]
	return framed, true, nil
}

// DrainAll repeatedly calls Next until it can produce no further frame,
// returning every complete frame currently buffered in arrival order.
func (b *Buffer) DrainAll() ([][]byte, error) {
	var frames [][]byte
	for {
		f, ok, err := b.Next()
		if err != nil {
			return frames, err
		}
		if !ok {
			return frames, nil
		}
		frames = append(frames, f)
	}
}
