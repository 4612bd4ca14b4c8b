// Package session provides per-connection identity tracking and the
// message dispatcher that routes decoded client messages to room
// mutations and relay broadcasts.
package session

import (
	"sync"

	"github.com/google/uuid"
)

// Conn is the transport-level handle the dispatcher needs. The websocket
// layer implements it. Push and Ping are fire-and-forget: a failure marks
// the peer dead but is never retried.
type Conn interface {
	// Push sends one outbound message.
	Push(data []byte) error
	// Ping sends a liveness probe control frame.
	Ping() error
	// Alive reports whether the peer answered the previous probe.
	Alive() bool
	// SetAlive resets the liveness flag before a new probe.
	SetAlive(alive bool)
	// RemoteAddr describes the peer, for logging.
	RemoteAddr() string
	// Close terminates the transport session.
	Close() error
}

// Session is the identity record for one live connection: a stable uid
// for logging plus the (roomID, playerID) pair attached once join
// succeeds. The zero identity means the connection has not joined.
type Session struct {
	uid  string
	conn Conn

	mu       sync.Mutex
	roomID   string
	playerID int
}

// newSession wraps a connection with a fresh uid and no room identity.
func newSession(conn Conn) *Session {
	return &Session{
		uid:  uuid.NewString(),
		conn: conn,
	}
}

// UID returns the connection's stable identifier.
func (s *Session) UID() string { return s.uid }

// Conn returns the underlying transport handle.
func (s *Session) Conn() Conn { return s.conn }

// Identity returns the attached (roomID, playerID) pair. playerID is 0
// when the connection has not completed a join.
func (s *Session) Identity() (roomID string, playerID int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.roomID, s.playerID
}

// setIdentity attaches the room/player pair after a successful join.
func (s *Session) setIdentity(roomID string, playerID int) {
	s.mu.Lock()
	s.roomID = roomID
	s.playerID = playerID
	s.mu.Unlock()
}

// clearIdentity detaches the room/player pair on disconnect.
func (s *Session) clearIdentity() {
	s.mu.Lock()
	s.roomID = ""
	s.playerID = 0
	s.mu.Unlock()
}

// Push forwards data to the underlying connection, satisfying
// room.Occupant so a session can be registered as a room occupant.
func (s *Session) Push(data []byte) error {
	return s.conn.Push(data)
}

// Close terminates the underlying connection.
func (s *Session) Close() error {
	return s.conn.Close()
}
