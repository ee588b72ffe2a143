package session

import (
	"net"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cobaltcraft/mc-sniffproxy/internal/codec"
	"github.com/cobaltcraft/mc-sniffproxy/internal/protocol"
	"github.com/cobaltcraft/mc-sniffproxy/internal/varint"
)

// chdirTemp isolates the Session's domain Logger, which creates its log
// file relative to the working directory, from the repository tree.
func chdirTemp(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	orig, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(orig) })
}

// fakeServer accepts exactly one connection and hands it to the test.
func fakeServer(t *testing.T) (addr string, accept func() net.Conn, cleanup func()) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	connCh := make(chan net.Conn, 1)
	go func() {
		c, err := ln.Accept()
		if err == nil {
			connCh <- c
		}
	}()

	return ln.Addr().String(), func() net.Conn {
		select {
		case c := <-connCh:
			return c
		case <-time.After(2 * time.Second):
			t.Fatal("server never accepted a connection")
			return nil
		}
	}, func() { _ = ln.Close() }
}

func readFrame(t *testing.T, conn net.Conn) []byte {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	lenByte := make([]byte, 1)
	var raw []byte
	for {
		_, err := conn.Read(lenByte)
		require.NoError(t, err)
		raw = append(raw, lenByte[0])
		if lenByte[0]&0x80 == 0 {
			break
		}
	}
	length, _, err := varint.ReadFrom(raw)
	require.NoError(t, err)
	body := make([]byte, length)
	total := 0
	for total < len(body) {
		n, err := conn.Read(body[total:])
		total += n
		require.NoError(t, err)
	}
	return append(raw, body...)
}

// TestHandshakeRewrite verifies S1: the proxy rewrites the client's
// Handshake server-address/port to its own configured remote before
// forwarding, and transitions state to Login.
func TestHandshakeRewrite(t *testing.T) {
	chdirTemp(t)
	remoteAddr, acceptServer, cleanup := fakeServer(t)
	defer cleanup()

	clientSide, proxySideOfClient := net.Pipe()
	defer clientSide.Close()

	host, portStr, err := net.SplitHostPort(remoteAddr)
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	sess := New("test-session", proxySideOfClient, Remote{Host: host, Port: uint16(port)}, "", zap.NewNop())
	require.NoError(t, sess.Start())
	defer sess.Close()

	serverConn := acceptServer()
	defer serverConn.Close()

	handshake := &protocol.Handshake{
		ProtocolVersion: 47,
		ServerAddress:   "proxy.local",
		ServerPort:      25565,
		NextState:       2,
	}
	framed, err := codec.Encode(handshake, codec.Uncompressed)
	require.NoError(t, err)

	go func() {
		_, _ = clientSide.Write(framed)
	}()

	got := readFrame(t, serverConn)
	_, n, err := varint.ReadFrom(got)
	require.NoError(t, err)
	body := got[n:]

	result, err := codec.Decode(body, protocol.Client, protocol.StateHandshake, codec.Uncompressed, protocol.Factory{})
	require.NoError(t, err)
	require.True(t, result.Known)
	decoded := result.Message.(*protocol.Handshake)

	assert.Equal(t, host, decoded.ServerAddress)
	assert.Equal(t, uint16(port), decoded.ServerPort)
	assert.Equal(t, int32(47), decoded.ProtocolVersion)
	assert.Equal(t, int32(2), decoded.NextState)

	require.Eventually(t, func() bool {
		return sess.shared.State() == protocol.Login
	}, time.Second, 10*time.Millisecond)
}

// fakeRecorder is an in-memory stand-in for mcpr/recorder.Recorder.
type fakeRecorder struct {
	selfID   int
	recorded []int32
}

func (f *fakeRecorder) RecordNow(id int32, payload []byte) error {
	f.recorded = append(f.recorded, id)
	return nil
}

func (f *fakeRecorder) SetSelfID(id int) { f.selfID = id }

// TestRecorderCapturesUnknownPlayStatePackets verifies that a Play-state
// session, where nearly every id is unrecognized by the minimal factory,
// still has its clientbound stream captured by the Recorder - not just
// the handful of known control messages.
func TestRecorderCapturesUnknownPlayStatePackets(t *testing.T) {
	chdirTemp(t)
	sess := New("rec-test", nil, Remote{}, "", zap.NewNop())
	defer sess.domain.Close()
	sess.shared.SetState(protocol.Play)
	rec := &fakeRecorder{}
	sess.SetRecorder(rec)

	outQueue := NewOutboundQueue()

	// An arbitrary, unrecognized Play-state clientbound id.
	raw := protocol.NewRawMessage(0x20)
	raw.Payload = []byte{0xAA, 0xBB, 0xCC}
	framed, err := codec.Encode(raw, codec.Uncompressed)
	require.NoError(t, err)

	sess.handleFrame(protocol.Server, framed, outQueue)

	require.Len(t, rec.recorded, 1)
	assert.EqualValues(t, 0x20, rec.recorded[0])
}

// TestJoinGameSetsRecorderSelfID verifies that a recognized JoinGame
// message updates the Recorder's self entity id.
func TestJoinGameSetsRecorderSelfID(t *testing.T) {
	chdirTemp(t)
	sess := New("rec-test-2", nil, Remote{}, "", zap.NewNop())
	defer sess.domain.Close()
	sess.shared.SetState(protocol.Play)
	rec := &fakeRecorder{}
	sess.SetRecorder(rec)

	outQueue := NewOutboundQueue()
	joinGame := &protocol.JoinGame{EntityID: 42, Rest: []byte{0x01}}
	framed, err := codec.Encode(joinGame, codec.Uncompressed)
	require.NoError(t, err)

	sess.handleFrame(protocol.Server, framed, outQueue)

	assert.Equal(t, 42, rec.selfID)
	require.Len(t, rec.recorded, 1)
	assert.EqualValues(t, 0x01, rec.recorded[0])
}
