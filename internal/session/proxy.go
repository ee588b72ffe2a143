// Package session implements the ProtocolProxy: the per-connection
// orchestrator that owns both sockets, the connection state machine, and
// the read/write pipelines described in SPEC_FULL.md §4.2/§4.6.
package session

import (
	"bytes"
	"fmt"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/cobaltcraft/mc-sniffproxy/internal/codec"
	"github.com/cobaltcraft/mc-sniffproxy/internal/frame"
	"github.com/cobaltcraft/mc-sniffproxy/internal/logging"
	"github.com/cobaltcraft/mc-sniffproxy/internal/protocol"
	"github.com/cobaltcraft/mc-sniffproxy/internal/varint"
)

// Recorder is the optional replay-recording capability a Session may be
// given (SPEC_FULL.md §10). It is satisfied by mcpr/recorder.Recorder;
// accepting an interface here keeps this package decoupled from the
// archive/zip-based replay format entirely.
type Recorder interface {
	RecordNow(id int32, payload []byte) error
	SetSelfID(id int)
}

// Remote identifies the real server a Session connects to, and the
// address the client thinks it is talking to is irrelevant here - only
// the rewritten Handshake (HandleHandshake) needs to know it.
type Remote struct {
	Host string
	Port uint16
}

// Session is the ProtocolProxy: it owns both sockets, drives their
// read/write pipelines, and is the Handler dispatch target for control
// messages (SPEC_FULL.md §4.2).
type Session struct {
	protocol.BaseHandler

	ID     string
	remote Remote
	log    *zap.Logger
	start  time.Time

	factory protocol.Factory
	shared  *Shared
	domain  *logging.Logger
	rec     Recorder

	clientConn net.Conn
	serverConn net.Conn

	clientBuf frame.Buffer
	serverBuf frame.Buffer

	clientOut *OutboundQueue
	serverOut *OutboundQueue

	pendingMu          sync.Mutex
	pendingReplacement []byte

	closeOnce sync.Once
	done      chan struct{}
}

// New constructs a Session around an already-accepted client connection. It
// does not dial the remote server or start any pipelines; call Start for that.
//
// The session's own start time is captured once, here, and shared with its
// domain Logger; StartTime exposes the same value so an optional Recorder
// attached via SetRecorder can be timestamped against it too, keeping a
// replay recording and the rendered log of the same session in agreement
// about what "time zero" means (SPEC_FULL.md §10).
func New(id string, clientConn net.Conn, remote Remote, configPath string, log *zap.Logger) *Session {
	start := time.Now()
	return &Session{
		ID:         id,
		remote:     remote,
		log:        log,
		start:      start,
		factory:    protocol.Factory{},
		shared:     NewShared(),
		domain:     logging.New(configPath, start),
		clientConn: clientConn,
		clientOut:  NewOutboundQueue(),
		serverOut:  NewOutboundQueue(),
		done:       make(chan struct{}),
	}
}

// StartTime returns the time the session was constructed, shared with its
// domain Logger so any other collaborator timestamping against the same
// session (an optional Recorder) agrees with it on an origin.
func (s *Session) StartTime() time.Time { return s.start }

// SetRecorder attaches an optional replay recorder; every clientbound
// packet successfully decoded from then on is also fed to it.
func (s *Session) SetRecorder(r Recorder) { s.rec = r }

// Start dials the remote server and, once connected, launches the read
// pumps for both directions and the write loops for both outbound queues.
// On dial failure it closes the session and returns the error.
func (s *Session) Start() error {
	conn, err := net.Dial("tcp", fmt.Sprintf("%s:%d", s.remote.Host, s.remote.Port))
	if err != nil {
		s.Close()
		return fmt.Errorf("session %s: dial remote: %w", s.ID, err)
	}
	s.serverConn = conn

	go s.writeLoop(s.clientConn, s.clientOut)
	go s.writeLoop(s.serverConn, s.serverOut)
	go s.readPump(protocol.Client, s.clientConn, &s.clientBuf, s.serverOut)
	go s.readPump(protocol.Server, s.serverConn, &s.serverBuf, s.clientOut)
	return nil
}

// Done returns a channel closed once the session has fully torn down.
func (s *Session) Done() <-chan struct{} { return s.done }

// Close idempotently tears the session down: both sockets are closed, both
// outbound queues are closed (releasing their write loops), and the domain
// Logger is closed (blocking until its queue drains).
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		if s.clientConn != nil {
			_ = s.clientConn.Close()
		}
		if s.serverConn != nil {
			_ = s.serverConn.Close()
		}
		s.clientOut.Close()
		s.serverOut.Close()
		s.domain.Close()
		close(s.done)
	})
}

func (s *Session) writeLoop(conn net.Conn, queue *OutboundQueue) {
	for {
		data, ok := queue.Next()
		if !ok {
			return
		}
		_, err := conn.Write(data)
		queue.Done()
		if err != nil {
			// Absorbed: Close() may already be in flight from the other
			// direction, in which case this is just the socket noticing.
			s.Close()
			return
		}
	}
}

func (s *Session) readPump(origin protocol.Origin, conn net.Conn, buf *frame.Buffer, outQueue *OutboundQueue) {
	readBuf := make([]byte, 32*1024)
	for {
		n, err := conn.Read(readBuf)
		if n > 0 {
			buf.Append(readBuf[:n])
			s.drain(origin, buf, outQueue)
		}
		if err != nil {
			s.Close()
			return
		}
	}
}

func (s *Session) drain(origin protocol.Origin, buf *frame.Buffer, outQueue *OutboundQueue) {
	for {
		framed, ok, err := buf.Next()
		if err != nil {
			s.log.Warn("malformed frame, closing session", zap.String("session", s.ID), zap.Error(err))
			s.Close()
			return
		}
		if !ok {
			return
		}
		s.handleFrame(origin, framed, outQueue)
	}
}

func (s *Session) handleFrame(origin protocol.Origin, framed []byte, outQueue *OutboundQueue) {
	_, prefixLen, err := varint.ReadFrom(framed)
	if err != nil {
		// buf.Next already validated the prefix; this can only happen on
		// a logic error, not a malformed stream.
		s.log.Error("internal: re-reading validated frame prefix failed", zap.Error(err))
		return
	}
	body := framed[prefixLen:]

	state := s.shared.State()
	threshold := s.shared.Threshold()

	s.pendingMu.Lock()
	s.pendingReplacement = nil
	s.pendingMu.Unlock()

	result, err := codec.Decode(body, origin, state, threshold, s.factory)
	if err != nil {
		s.log.Warn("unable to decode frame", zap.String("session", s.ID), zap.Stringer("origin", originStringer(origin)), zap.Error(err))
		s.domain.Log(nil, state, origin)
		s.forward(origin, framed, outQueue)
		return
	}

	switch {
	case !result.Known:
		s.log.Warn("NULL MESSAGE WITH ID", zap.Int("id", result.ID), zap.Stringer("origin", originStringer(origin)))
		s.domain.Log(nil, state, origin)
	case result.ParseErr != nil:
		s.log.Warn("PARSING EXCEPTION", zap.String("message", result.Message.Name()), zap.Error(result.ParseErr))
		s.domain.Log(result.Message, state, origin)
	default:
		result.Message.Dispatch(s)
		s.domain.Log(result.Message, state, origin)
	}

	// Recording captures the clientbound stream regardless of whether the
	// message was recognized by name: RawMessage.Write round-trips an
	// unknown payload exactly as read, so an unrecognized id (the common
	// case once a session reaches Play) is still a valid, replayable
	// packet even though it was never decoded into named fields. A
	// PARSING EXCEPTION is excluded: Write on a partially-populated known
	// message would not reproduce the original bytes, so that frame is
	// logged but not recorded.
	if origin == protocol.Server && s.rec != nil && result.Message != nil && result.ParseErr == nil {
		var payload bytes.Buffer
		_ = result.Message.Write(&payload)
		if err := s.rec.RecordNow(int32(result.ID), payload.Bytes()); err != nil {
			s.log.Warn("replay recording write failed, recording stopped for this session", zap.String("session", s.ID), zap.Error(err))
			s.rec = nil
		}
	}

	s.pendingMu.Lock()
	replacement := s.pendingReplacement
	s.pendingMu.Unlock()

	out := framed
	if len(replacement) > 0 {
		out = replacement
	}
	s.forward(origin, out, outQueue)
}

func (s *Session) forward(origin protocol.Origin, data []byte, outQueue *OutboundQueue) {
	outQueue.Push(data)
}

type originStringer protocol.Origin

func (o originStringer) String() string { return protocol.Origin(o).String() }

// --- Handler overrides (SPEC_FULL.md §4.2) ---

// HandleHandshake transitions state per NextState and schedules a
// replacement frame that rewrites the server address/port to the proxy's
// configured remote, so the real server sees its own hostname.
func (s *Session) HandleHandshake(m *protocol.Handshake) {
	s.shared.SetState(protocol.State(m.NextState))

	replacement := &protocol.Handshake{
		ProtocolVersion: m.ProtocolVersion,
		ServerAddress:   s.remote.Host,
		ServerPort:      s.remote.Port,
		NextState:       m.NextState,
	}
	// Compression is never enabled this early (it only turns on via
	// SetCompression in Login, strictly after the single Handshake packet
	// of a session), so threshold here is always -1.
	encoded, err := codec.Encode(replacement, s.shared.Threshold())
	if err != nil {
		s.log.Error("failed to encode rewritten handshake", zap.Error(err))
		return
	}
	s.pendingMu.Lock()
	s.pendingReplacement = encoded
	s.pendingMu.Unlock()
}

// HandleLoginSuccess drives the Login->Play transition.
func (s *Session) HandleLoginSuccess(m *protocol.LoginSuccess) {
	s.shared.SetState(protocol.Play)
}

// HandleSetCompression adopts the new compression threshold for all
// subsequent frames in both directions.
func (s *Session) HandleSetCompression(m *protocol.SetCompression) {
	s.shared.SetThreshold(m.Threshold)
}

// HandleEncryptionRequest is the hard stop: the proxy warns and continues
// forwarding raw bytes, but cannot decode anything further.
func (s *Session) HandleEncryptionRequest(m *protocol.EncryptionRequest) {
	s.log.Warn("server requested encryption; this proxy does not support encrypted sessions, inspection ends here", zap.String("session", s.ID))
}

// HandleJoinGame annotates the optional Recorder with the player's own
// entity id, when one is attached. This is the only thing the proxy does
// with JoinGame; recording of the packet itself happens the same way as
// any other clientbound message (handleFrame).
func (s *Session) HandleJoinGame(m *protocol.JoinGame) {
	if s.rec != nil {
		s.rec.SetSelfID(int(m.EntityID))
	}
}
