package manager

import (
	"sync"
	"time"

	"github.com/signalhub/hub/pkg/model"
)

// Conn is the minimal transport the Session Actor needs. It is satisfied
// by a *websocket.Conn wrapper in pkg/wsserver; tests use an in-memory
// fake so the actor's logic runs with no real socket (spec.md §4.5).
type Conn interface {
	// ReadMessage blocks for the next text frame and returns its raw
	// bytes, undecoded — the caller decides how to unmarshal it (the
	// Session Actor sniffs "type" before picking a concrete struct).
	ReadMessage() ([]byte, error)
	// WriteMessage writes a pre-encoded text frame.
	WriteMessage(data []byte) error
	// Close closes the underlying connection with the given close code.
	Close(code int, reason string) error
}

// State is the Session Actor's lifecycle state (spec.md §4.5).
type State int

const (
	StateAccepted State = iota
	StateAuthenticated
	StateRegistered
	StateDisconnecting
	StateClosed
)

// Session is the ephemeral, in-memory record of one live WebSocket
// connection. It is created on accept and destroyed on teardown; see
// spec.md §3.
//
// LastPongAt is owned by the Session itself, not by a separate global map,
// so the heartbeat watcher never reads a stale entry after teardown —
// spec.md §9.
type Session struct {
	ConnectionID string
	PeerID       string
	AgentID      string
	UserID       int64
	Email        string
	OrgID        int64
	Subnet       string
	VirtualIP    string

	PublicIP   string
	PublicPort int
	RelayIP    string
	RelayPort  int

	conn Conn

	mu         sync.Mutex
	state      State
	lastPongAt time.Time // zero value means "unset"
}

func newSession(connectionID string, userID int64, email string, conn Conn) *Session {
	return &Session{
		ConnectionID: connectionID,
		UserID:       userID,
		Email:        email,
		conn:         conn,
		state:        StateAccepted,
	}
}

// send writes a pre-encoded frame to the session's connection.
func (s *Session) send(msg []byte) error {
	return s.conn.WriteMessage(msg)
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// LastPongAt returns the last recorded pong time, or the zero Time if no
// pong has ever been recorded (and no ping has seeded it yet).
func (s *Session) LastPongAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastPongAt
}

// MarkPong records a pong at the given time unless a later mark has
// already landed. Seeding on the first ping is done by SeedPongIfUnset.
func (s *Session) MarkPong(at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if at.After(s.lastPongAt) {
		s.lastPongAt = at
	}
}

// SeedPongIfUnset seeds lastPongAt to `at` only if it has never been set,
// giving a freshly registered client one full ping interval before the
// pong watcher can time it out.
func (s *Session) SeedPongIfUnset(at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastPongAt.IsZero() {
		s.lastPongAt = at
	}
}

func (s *Session) PeerInfo() model.PeerInfo {
	return model.PeerInfo{
		PeerID:     s.PeerID,
		UserID:     s.UserID,
		Email:      s.Email,
		AgentID:    s.AgentID,
		PublicIP:   s.PublicIP,
		PublicPort: s.PublicPort,
		RelayIP:    s.RelayIP,
		RelayPort:  s.RelayPort,
		VirtualIP:  s.VirtualIP,
	}
}
