package varint

import (
	"bufio"
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := []int32{0, 1, 2, 127, 128, 255, 2097151, 2147483647, -1}
	for _, v := range cases {
		encoded := Encode(v)
		assert.LessOrEqual(t, len(encoded), MaxBytes)

		decoded, n, err := Read(bufio.NewReader(bytes.NewReader(encoded)))
		require.NoError(t, err)
		assert.Equal(t, v, decoded)
		assert.Equal(t, len(encoded), n)
	}
}

func TestKnownEncodings(t *testing.T) {
	// Reference values from the Minecraft protocol documentation.
	cases := map[int32][]byte{
		0:          {0x00},
		1:          {0x01},
		127:        {0x7f},
		128:        {0x80, 0x01},
		255:        {0xff, 0x01},
		2147483647: {0xff, 0xff, 0xff, 0xff, 0x07},
		-1:         {0xff, 0xff, 0xff, 0xff, 0x0f},
	}
	for v, want := range cases {
		assert.Equal(t, want, Encode(v))
	}
}

func TestReadNeedsMoreData(t *testing.T) {
	// A continuation byte with nothing following cannot be decoded yet.
	_, _, err := Read(bufio.NewReader(bytes.NewReader([]byte{0x80})))
	assert.ErrorIs(t, err, ErrNeedMoreData)
}

func TestReadTooLong(t *testing.T) {
	_, _, err := Read(bufio.NewReader(bytes.NewReader([]byte{0x80, 0x80, 0x80, 0x80, 0x80, 0x01})))
	assert.ErrorIs(t, err, ErrTooLong)
}

func TestReadFromPartialBuffer(t *testing.T) {
	_, _, err := ReadFrom([]byte{0x80, 0x80})
	assert.ErrorIs(t, err, ErrNeedMoreData)
}

func TestReadFromConsumesOnlyItsOwnBytes(t *testing.T) {
	buf := append(Encode(300), []byte{0xAA, 0xBB}...)
	v, n, err := ReadFrom(buf)
	require.NoError(t, err)
	assert.EqualValues(t, 300, v)
	assert.Equal(t, buf[:n], Encode(300))
	assert.Equal(t, []byte{0xAA, 0xBB}, buf[n:])
}
