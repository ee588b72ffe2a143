// Package listener implements the ambient accept loop: for each accepted
// client connection it dials the configured remote server, wires up a
// session.Session, and tracks it for graceful shutdown. This is outside
// the core spec's scope (SPEC_FULL.md §1 lists the core as framing+codec,
// state machine and logging only) but is necessary for a runnable service,
// grounded on _examples/absmach-mproxy/pkg/server/tcp/server.go's
// Server.Listen(ctx)/Shutdown(ctx) shape.
package listener

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cobaltcraft/mc-sniffproxy/internal/session"
	"github.com/cobaltcraft/mc-sniffproxy/mcpr"
	"github.com/cobaltcraft/mc-sniffproxy/mcpr/recorder"
)

// Config configures the listener and every session it spawns.
type Config struct {
	ListenAddr string
	Remote     session.Remote
	ConfigPath string

	// Recording, when enabled, makes every session write a ReplayMod
	// (.mcpr) file named "<session id>.mcpr" in RecordDir, capturing its
	// clientbound stream (SPEC_FULL.md §10). RecordDir defaults to the
	// working directory.
	Record    bool
	RecordDir string
	Protocol  int

	ShutdownTimeout time.Duration
	Logger          *zap.Logger
}

// Listener accepts client connections and spawns a session.Session for
// each, tracking active sessions for Shutdown.
type Listener struct {
	cfg Config
	ln  net.Listener

	mu       sync.Mutex
	sessions map[string]*session.Session
	wg       sync.WaitGroup
}

// New prepares a Listener with the given configuration. Call Listen to
// start accepting.
func New(cfg Config) *Listener {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
	if cfg.RecordDir == "" {
		cfg.RecordDir = "."
	}
	return &Listener{cfg: cfg, sessions: make(map[string]*session.Session)}
}

// Listen opens the listening socket and blocks, accepting connections
// until ctx is cancelled or Shutdown is called, at which point it stops
// accepting and returns nil.
func (l *Listener) Listen(ctx context.Context) error {
	ln, err := net.Listen("tcp", l.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("listener: listen on %s: %w", l.cfg.ListenAddr, err)
	}
	l.ln = ln
	l.cfg.Logger.Info("proxy listening",
		zap.String("address", l.cfg.ListenAddr),
		zap.String("remote", fmt.Sprintf("%s:%d", l.cfg.Remote.Host, l.cfg.Remote.Port)),
	)

	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			l.cfg.Logger.Warn("accept error", zap.Error(err))
			continue
		}
		l.spawn(conn)
	}
}

func (l *Listener) spawn(conn net.Conn) {
	id := uuid.NewString()
	log := l.cfg.Logger.With(zap.String("session", id), zap.String("client", conn.RemoteAddr().String()))

	sess := session.New(id, conn, l.cfg.Remote, l.cfg.ConfigPath, log)

	if l.cfg.Record {
		path := fmt.Sprintf("%s/%s.mcpr", l.cfg.RecordDir, id)
		meta := mcpr.Meta{
			Protocol:   l.cfg.Protocol,
			ServerName: fmt.Sprintf("%s:%d", l.cfg.Remote.Host, l.cfg.Remote.Port),
			Generator:  "mc-sniffproxy",
		}
		rec, err := recorder.NewFile(path, meta, sess.StartTime())
		if err != nil {
			log.Warn("failed to open replay recording, continuing without it", zap.Error(err))
		} else {
			sess.SetRecorder(rec)
			go func() {
				<-sess.Done()
				if cerr := rec.Close(); cerr != nil {
					log.Warn("failed to finalize replay recording", zap.Error(cerr))
				}
			}()
		}
	}

	l.mu.Lock()
	l.sessions[id] = sess
	l.mu.Unlock()
	l.wg.Add(1)

	go func() {
		defer l.wg.Done()
		defer func() {
			l.mu.Lock()
			delete(l.sessions, id)
			l.mu.Unlock()
		}()
		if err := sess.Start(); err != nil {
			log.Warn("session failed to start", zap.Error(err))
			return
		}
		log.Info("session started")
		<-sess.Done()
		log.Info("session closed")
	}()
}

// Shutdown stops accepting new connections, closes every active session,
// and waits (bounded by ctx) for their goroutines to finish.
func (l *Listener) Shutdown(ctx context.Context) error {
	if l.ln != nil {
		_ = l.ln.Close()
	}

	l.mu.Lock()
	for _, sess := range l.sessions {
		sess.Close()
	}
	l.mu.Unlock()

	done := make(chan struct{})
	go func() {
		l.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("listener: shutdown timed out with sessions still draining")
	}
}
