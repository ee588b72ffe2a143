package session

import (
	"sync"

	"github.com/cobaltcraft/mc-sniffproxy/internal/protocol"
)

// Shared holds the two pieces of mutable session state both direction
// goroutines need to read on every decode: the current ConnectionState and
// CompressionThreshold. A single RWMutex is enough since both are written
// rarely (a handful of times per session) and read on every packet.
type Shared struct {
	mu        sync.RWMutex
	state     protocol.State
	threshold int32
}

// NewShared returns session state initialized to Handshake / compression
// disabled, the mandatory starting point for every session.
func NewShared() *Shared {
	return &Shared{state: protocol.StateHandshake, threshold: -1}
}

func (s *Shared) State() protocol.State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Shared) SetState(state protocol.State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

func (s *Shared) Threshold() int32 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.threshold
}

func (s *Shared) SetThreshold(threshold int32) {
	s.mu.Lock()
	s.threshold = threshold
	s.mu.Unlock()
}
