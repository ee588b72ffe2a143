package listener

import (
	"archive/zip"
	"context"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cobaltcraft/mc-sniffproxy/internal/codec"
	"github.com/cobaltcraft/mc-sniffproxy/internal/protocol"
	"github.com/cobaltcraft/mc-sniffproxy/internal/session"
)

// chdirTemp isolates each spawned Session's domain Logger, which creates its
// log file relative to the working directory, from the repository tree.
func chdirTemp(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	orig, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(orig) })
}

// fakeRemote accepts exactly one connection on a loopback port and hands it
// to the test, the same role _examples/absmach-mproxy's own tests give a
// stand-in upstream.
func fakeRemote(t *testing.T) (remote session.Remote, accept func() net.Conn, cleanup func()) {
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

	host, portStr, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	return session.Remote{Host: host, Port: uint16(port)},
		func() net.Conn {
			select {
			case c := <-connCh:
				return c
			case <-time.After(2 * time.Second):
				t.Fatal("remote never accepted a connection")
				return nil
			}
		},
		func() { _ = ln.Close() }
}

// TestListenAcceptsAndShutdownDrains verifies the accept loop spawns a
// session per connection and that Shutdown closes every active session and
// returns once their goroutines have finished, within its timeout.
func TestListenAcceptsAndShutdownDrains(t *testing.T) {
	chdirTemp(t)
	remote, acceptRemote, cleanupRemote := fakeRemote(t)
	defer cleanupRemote()

	l := New(Config{
		ListenAddr:      "127.0.0.1:0",
		Remote:          remote,
		ShutdownTimeout: time.Second,
		Logger:          zap.NewNop(),
	})

	// Reserve a free loopback port for Listen to bind, then probe it with a
	// dial-retry loop until the listener is accepting.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())
	l.cfg.ListenAddr = addr

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- l.Listen(ctx) }()

	require.Eventually(t, func() bool {
		conn, err := net.Dial("tcp", addr)
		if err != nil {
			return false
		}
		_ = conn.Close()
		return true
	}, 2*time.Second, 10*time.Millisecond, "listener never started accepting")

	client, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer client.Close()

	remoteConn := acceptRemote()
	defer remoteConn.Close()

	require.Eventually(t, func() bool {
		l.mu.Lock()
		defer l.mu.Unlock()
		return len(l.sessions) == 1
	}, time.Second, 10*time.Millisecond, "spawn never registered the session")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer shutdownCancel()
	require.NoError(t, l.Shutdown(shutdownCtx))

	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Listen never returned after Shutdown")
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	assert.Empty(t, l.sessions, "Shutdown should have drained every session")
}

// TestSpawnWithRecordWiresRecorder verifies the regression class from the
// Session recording fix at the listener-integration level: with Record
// enabled, a connection accepted by the listener ends up with a working
// Recorder attached to its Session, and the clientbound stream it carries is
// captured into a valid .mcpr file once the session closes.
func TestSpawnWithRecordWiresRecorder(t *testing.T) {
	chdirTemp(t)
	remote, acceptRemote, cleanupRemote := fakeRemote(t)
	defer cleanupRemote()

	recordDir := t.TempDir()

	l := New(Config{
		Remote:    remote,
		Record:    true,
		RecordDir: recordDir,
		Protocol:  754,
		Logger:    zap.NewNop(),
	})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())
	l.cfg.ListenAddr = addr

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = l.Listen(ctx) }()

	// The first successful dial is kept as the test's client, so the
	// listener spawns exactly one session (and one recording file).
	var client net.Conn
	require.Eventually(t, func() bool {
		conn, err := net.Dial("tcp", addr)
		if err != nil {
			return false
		}
		client = conn
		return true
	}, 2*time.Second, 10*time.Millisecond, "listener never started accepting")
	require.NotNil(t, client)
	defer client.Close()

	remoteConn := acceptRemote()
	defer remoteConn.Close()

	// The "remote" sends an arbitrary clientbound frame, unrecognized in the
	// Handshake state the fresh session starts in; it still must be
	// recorded (that is the whole point of the fix this test guards).
	raw := protocol.NewRawMessage(0x20)
	raw.Payload = []byte{0x01, 0x02, 0x03}
	framed, err := codec.Encode(raw, codec.Uncompressed)
	require.NoError(t, err)
	_, err = remoteConn.Write(framed)
	require.NoError(t, err)

	// The listener creates the recording file when it spawns the session;
	// wait for it to appear before tearing everything down.
	require.Eventually(t, func() bool {
		entries, err := os.ReadDir(recordDir)
		return err == nil && len(entries) == 1
	}, 2*time.Second, 10*time.Millisecond, "no recording file appeared")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer shutdownCancel()
	require.NoError(t, l.Shutdown(shutdownCtx))

	entries, err := os.ReadDir(recordDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].Name(), ".mcpr")
	path := filepath.Join(recordDir, entries[0].Name())

	// Shutdown only waits on the session's own goroutine; the recorder is
	// finalized by a separate goroutine reacting to sess.Done(), so the zip's
	// central directory may not be written yet the instant Shutdown returns.
	var zr *zip.ReadCloser
	require.Eventually(t, func() bool {
		r, err := zip.OpenReader(path)
		if err != nil {
			return false
		}
		zr = r
		return true
	}, 2*time.Second, 10*time.Millisecond, "recording never finalized into a valid zip")
	defer zr.Close()

	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	assert.Contains(t, names, "recording.tmcpr")
	assert.Contains(t, names, "metaData.json")
}
