package codec

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cobaltcraft/mc-sniffproxy/internal/protocol"
	"github.com/cobaltcraft/mc-sniffproxy/internal/varint"
)

func stripOuterLength(t *testing.T, framed []byte) []byte {
	t.Helper()
	_, n, err := varint.ReadFrom(framed)
	require.NoError(t, err)
	return framed[n:]
}

func TestEncodeDecodeRoundTripUncompressed(t *testing.T) {
	msg := &protocol.Handshake{
		ProtocolVersion: 47,
		ServerAddress:   "play.example.com",
		ServerPort:      25565,
		NextState:       2,
	}

	framed, err := Encode(msg, Uncompressed)
	require.NoError(t, err)

	body := stripOuterLength(t, framed)
	result, err := Decode(body, protocol.Client, protocol.StateHandshake, Uncompressed, protocol.Factory{})
	require.NoError(t, err)
	require.True(t, result.Known)
	require.NoError(t, result.ParseErr)

	decoded := result.Message.(*protocol.Handshake)
	assert.Equal(t, msg, decoded)
}

func TestEncodeBelowThresholdIsUncompressed(t *testing.T) {
	msg := &protocol.SetCompression{Threshold: 5}
	framed, err := Encode(msg, 256)
	require.NoError(t, err)

	body := stripOuterLength(t, framed)
	// data_length byte must be 0x00 (uncompressed path) since the encoded
	// body (id + 1 varint byte) is well under the 256 threshold.
	assert.Equal(t, byte(0x00), body[0])

	result, err := Decode(body, protocol.Server, protocol.Login, 256, protocol.Factory{})
	require.NoError(t, err)
	require.True(t, result.Known)
	require.NoError(t, result.ParseErr)
	assert.Equal(t, int32(5), result.Message.(*protocol.SetCompression).Threshold)
}

func TestEncodeAboveThresholdIsCompressed(t *testing.T) {
	msg := &protocol.EncryptionRequest{
		ServerID:    "",
		PublicKey:   bytes.Repeat([]byte{0xAB}, 512),
		VerifyToken: bytes.Repeat([]byte{0xCD}, 16),
	}
	framed, err := Encode(msg, 64)
	require.NoError(t, err)
	body := stripOuterLength(t, framed)

	result, err := Decode(body, protocol.Server, protocol.Login, 64, protocol.Factory{})
	require.NoError(t, err)
	require.True(t, result.Known)
	require.NoError(t, result.ParseErr)

	decoded := result.Message.(*protocol.EncryptionRequest)
	assert.Equal(t, msg.PublicKey, decoded.PublicKey)
	assert.Equal(t, msg.VerifyToken, decoded.VerifyToken)
}

func TestDecodeUnknownIDFallsBackToRawMessage(t *testing.T) {
	// Login-state clientbound id 0x7F is not one of the four control
	// messages the minimal factory knows about.
	var body bytes.Buffer
	body.Write(varint.Encode(0x7F))
	body.Write([]byte{0x01, 0x02, 0x03})

	result, err := Decode(body.Bytes(), protocol.Server, protocol.Login, Uncompressed, protocol.Factory{})
	require.NoError(t, err)
	assert.False(t, result.Known)
	assert.True(t, strings.Contains(result.Message.Name(), "Unknown"))
	assert.Equal(t, []byte{0x01, 0x02, 0x03}, result.Message.(*protocol.RawMessage).Payload)
}

func TestDecodeTruncatedFieldProducesParseErrNotFatal(t *testing.T) {
	// A Handshake with only the protocol version present, missing the
	// address/port/next_state fields.
	var body bytes.Buffer
	body.Write(varint.Encode(0x00))
	body.Write(varint.Encode(47))

	result, err := Decode(body.Bytes(), protocol.Client, protocol.StateHandshake, Uncompressed, protocol.Factory{})
	require.NoError(t, err) // malformed *field*, not a malformed *frame*
	require.True(t, result.Known)
	require.Error(t, result.ParseErr)
}

func TestZeroDataLengthMeansUncompressedInnerPayload(t *testing.T) {
	var body bytes.Buffer
	body.Write([]byte{0x00}) // data_length = 0
	body.Write(varint.Encode(0x03))
	body.Write(varint.Encode(10))

	result, err := Decode(body.Bytes(), protocol.Server, protocol.Login, 256, protocol.Factory{})
	require.NoError(t, err)
	require.True(t, result.Known)
	assert.Equal(t, int32(10), result.Message.(*protocol.SetCompression).Threshold)
}
