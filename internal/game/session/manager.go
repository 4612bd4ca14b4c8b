package session

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/outpost-games/relay/internal/game/room"
	"github.com/outpost-games/relay/internal/protocol"
)

// Manager dispatches decoded client messages against the room registry
// and computes the relay set for each resulting broadcast. It also tracks
// every open session (joined or not) for the liveness monitor and for
// shutdown notification.
//
// Error recovery happens at the single-message boundary: a failing
// message is answered with a private error envelope (or dropped, for
// decode failures) and never affects other connections or rooms.
type Manager struct {
	registry *room.Registry
	logger   *zap.Logger
	endGrace time.Duration

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager creates a dispatcher over the given registry.
//
// Precondition: registry and logger must be non-nil; endGrace is the
// delay between a gameEnd broadcast and room deletion (<= 0 defaults
// to 5s).
func NewManager(registry *room.Registry, endGrace time.Duration, logger *zap.Logger) *Manager {
	if endGrace <= 0 {
		endGrace = 5 * time.Second
	}
	return &Manager{
		registry: registry,
		logger:   logger,
		endGrace: endGrace,
		sessions: make(map[string]*Session),
	}
}

// Register wraps a freshly-accepted connection in a Session and tracks it.
//
// Postcondition: The session is visible to Sessions() until Disconnect.
func (m *Manager) Register(conn Conn) *Session {
	sess := newSession(conn)
	conn.SetAlive(true)

	m.mu.Lock()
	m.sessions[sess.uid] = sess
	m.mu.Unlock()

	m.logger.Debug("session registered",
		zap.String("uid", sess.uid),
		zap.String("remote_addr", conn.RemoteAddr()),
	)
	return sess
}

// Sessions returns a snapshot of every open session.
func (m *Manager) Sessions() []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	return out
}

// SessionCount returns the number of open sessions.
func (m *Manager) SessionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Dispatch routes one decoded message. Malformed payloads are dropped
// silently; they never crash the dispatcher or affect other connections.
func (m *Manager) Dispatch(sess *Session, data []byte) {
	msg, err := protocol.Decode(data)
	if err != nil {
		m.logger.Debug("dropping undecodable message",
			zap.String("uid", sess.uid),
			zap.Error(err),
		)
		return
	}

	switch msg.Type {
	case protocol.TypeGetRooms:
		m.handleGetRooms(sess)
	case protocol.TypeCreateRoom:
		m.handleCreateRoom(sess, msg)
	case protocol.TypeJoin:
		m.handleJoin(sess, msg)
	case protocol.TypeSelectSlot:
		m.handleSelectSlot(sess, msg)
	case protocol.TypeToggleReady:
		m.handleToggleReady(sess, msg)
	case protocol.TypeStartGame:
		m.handleStartGame(sess, msg)
	case protocol.TypeSetupComplete:
		m.handleSetupComplete(sess, msg)
	case protocol.TypeDeploymentUpdate:
		m.relay(sess, msg, protocol.TypeOpponentDeployment, true)
	case protocol.TypeMove:
		m.relay(sess, msg, protocol.TypeMove, true)
	case protocol.TypeGameEnd:
		m.handleGameEnd(sess, msg)
	case protocol.TypeUpdateName:
		m.handleUpdateName(sess, msg)
	default:
		m.logger.Debug("dropping message of unknown type",
			zap.String("uid", sess.uid),
			zap.String("type", msg.Type),
		)
	}
}

// Disconnect tears down a session: room cleanup with host migration, a
// playerLeft broadcast to the remaining occupants, and immediate room
// deletion when the occupant set becomes empty. Disconnect before a
// successful join only untracks the session.
func (m *Manager) Disconnect(sess *Session) {
	m.mu.Lock()
	delete(m.sessions, sess.uid)
	m.mu.Unlock()

	roomID, playerID := sess.Identity()
	if playerID == 0 {
		return
	}
	sess.clearIdentity()
	m.leaveRoom(roomID, playerID)
}

// leaveRoom runs the departure path for one (room, player) pair: state
// cleanup with host migration, a playerLeft broadcast to the remaining
// occupants, and immediate deletion when the occupant set becomes empty.
// Shared between disconnect and room switching so a departing player is
// fully erased from the old room either way.
func (m *Manager) leaveRoom(roomID string, playerID int) {
	r, ok := m.registry.Get(roomID)
	if !ok {
		return
	}

	if empty := r.Leave(playerID); empty {
		m.registry.Delete(roomID)
		m.logger.Info("room deleted, last occupant left",
			zap.String("room", roomID),
		)
		return
	}

	st := r.Snapshot()
	m.broadcast(r.Recipients(), protocol.Marshal(protocol.PlayerLeft{
		Type:        protocol.TypePlayerLeft,
		PlayerID:    playerID,
		HostID:      st.HostID,
		Slots:       st.Seats,
		ReadyStates: st.Ready,
		PlayerNames: st.Names,
	}))
	m.logger.Info("player left room",
		zap.String("room", roomID),
		zap.Int("player", playerID),
		zap.Int("host", st.HostID),
	)
}

// Shutdown notifies every open session that the process is stopping,
// then closes all connections.
func (m *Manager) Shutdown(reason string) {
	notice := protocol.Marshal(protocol.ServerClosing{
		Type:   protocol.TypeServerClosing,
		Reason: reason,
	})
	for _, sess := range m.Sessions() {
		if err := sess.Push(notice); err != nil {
			m.logger.Debug("shutdown notice failed",
				zap.String("uid", sess.uid),
				zap.Error(err),
			)
		}
		_ = sess.Close()
	}
}

func (m *Manager) handleGetRooms(sess *Session) {
	summaries := m.registry.Summaries()
	rooms := make([]protocol.RoomSummary, 0, len(summaries))
	for _, s := range summaries {
		rooms = append(rooms, protocol.RoomSummary{
			ID:          s.ID,
			Occupants:   s.Occupants,
			Capacity:    s.Capacity,
			RoomType:    string(s.RoomType),
			GameStarted: s.GameStarted,
		})
	}
	m.send(sess, protocol.Marshal(protocol.RoomList{
		Type:  protocol.TypeRoomList,
		Rooms: rooms,
	}))
}

func (m *Manager) handleCreateRoom(sess *Session, msg *protocol.Inbound) {
	roomType := room.Type(msg.RoomType)
	if !roomType.Valid() {
		roomType = room.TypeDuo
	}
	r := m.registry.Create(roomType)

	m.logger.Info("room created",
		zap.String("room", r.ID()),
		zap.String("room_type", string(roomType)),
	)
	m.send(sess, protocol.Marshal(protocol.RoomCreated{
		Type:     protocol.TypeRoomCreated,
		RoomID:   r.ID(),
		RoomType: string(roomType),
	}))
}

func (m *Manager) handleJoin(sess *Session, msg *protocol.Inbound) {
	r, ok := m.registry.Get(msg.RoomID)
	if !ok {
		m.sendError(sess, room.ErrRoomNotFound)
		return
	}

	// Reconnection: the session already holds an identity for this exact
	// room and the room still tracks the player id. Re-confirm with a
	// fresh snapshot; no new id, no broadcast.
	if roomID, playerID := sess.Identity(); roomID == msg.RoomID && playerID != 0 && r.Has(playerID) {
		r.Touch()
		m.sendSnapshot(sess, r, playerID)
		return
	}

	// Room switching: a session still holding an identity for another
	// room leaves it first, so the old room sees the same departure it
	// would on disconnect and never keeps a ghost connection entry.
	if oldRoomID, oldPlayerID := sess.Identity(); oldPlayerID != 0 && oldRoomID != msg.RoomID {
		sess.clearIdentity()
		m.leaveRoom(oldRoomID, oldPlayerID)
	}

	playerID, err := r.Join(sess)
	if err != nil {
		m.sendError(sess, err)
		return
	}
	sess.setIdentity(msg.RoomID, playerID)
	sess.conn.SetAlive(true)

	m.sendSnapshot(sess, r, playerID)

	st := r.Snapshot()
	m.broadcast(r.Recipients(playerID), protocol.Marshal(protocol.PlayerJoined{
		Type:        protocol.TypePlayerJoined,
		PlayerID:    playerID,
		PlayerNames: st.Names,
	}))

	m.logger.Info("player joined room",
		zap.String("room", msg.RoomID),
		zap.Int("player", playerID),
		zap.Int("occupants", r.OccupantCount()),
	)
}

func (m *Manager) handleSelectSlot(sess *Session, msg *protocol.Inbound) {
	r, playerID, ok := m.roomFor(sess, msg)
	if !ok {
		return
	}

	if err := r.SelectSeat(playerID, msg.SlotNum); err != nil {
		// Seat conflicts are reported privately to the requester; the
		// rest of the room sees nothing on this path.
		m.sendError(sess, err)
		return
	}

	st := r.Snapshot()
	m.broadcast(r.Recipients(), protocol.Marshal(protocol.SlotSelected{
		Type:        protocol.TypeSlotSelected,
		PlayerID:    playerID,
		Slots:       st.Seats,
		ReadyStates: st.Ready,
		PlayerNames: st.Names,
	}))
}

func (m *Manager) handleToggleReady(sess *Session, msg *protocol.Inbound) {
	r, playerID, ok := m.roomFor(sess, msg)
	if !ok {
		return
	}

	allReady, err := r.ToggleReady(playerID, msg.IsReady)
	if err != nil {
		m.sendError(sess, err)
		return
	}

	// Unlike seat selection, readiness results go to the whole room,
	// sender included.
	st := r.Snapshot()
	m.broadcast(r.Recipients(), protocol.Marshal(protocol.PlayerReady{
		Type:        protocol.TypePlayerReady,
		PlayerID:    playerID,
		IsReady:     msg.IsReady,
		AllReady:    allReady,
		ReadyStates: st.Ready,
	}))
}

func (m *Manager) handleStartGame(sess *Session, msg *protocol.Inbound) {
	r, _, ok := m.roomFor(sess, msg)
	if !ok {
		return
	}

	r.StartGame()
	m.broadcast(r.Recipients(), protocol.Marshal(protocol.GameStart{
		Type:   protocol.TypeGameStart,
		HostID: r.HostID(),
	}))
	m.logger.Info("game started", zap.String("room", r.ID()))
}

func (m *Manager) handleSetupComplete(sess *Session, msg *protocol.Inbound) {
	r, playerID, ok := m.roomFor(sess, msg)
	if !ok {
		return
	}

	bothJustReady := r.MarkSetupComplete(playerID)

	m.broadcast(r.Recipients(playerID), protocol.Marshal(protocol.OpponentSetupComplete{
		Type:     protocol.TypeOpponentSetupComplete,
		PlayerID: playerID,
	}))
	if bothJustReady {
		m.broadcast(r.Recipients(), protocol.Marshal(protocol.BothPlayersReady{
			Type: protocol.TypeBothPlayersReady,
		}))
	}
}

func (m *Manager) handleGameEnd(sess *Session, msg *protocol.Inbound) {
	r, playerID, ok := m.roomFor(sess, msg)
	if !ok {
		return
	}

	payload, err := protocol.Restamp(msg.Raw, protocol.TypeGameEnd, playerID)
	if err != nil {
		m.logger.Debug("dropping malformed gameEnd payload",
			zap.String("uid", sess.uid),
			zap.Error(err),
		)
		return
	}
	m.broadcast(r.Recipients(), payload)

	// Grace delay before teardown lets the broadcast flush. Deletion is
	// unconditional regardless of further room activity.
	roomID := r.ID()
	time.AfterFunc(m.endGrace, func() {
		m.registry.Delete(roomID)
		m.logger.Info("room deleted after game end",
			zap.String("room", roomID),
		)
	})
	m.logger.Info("game ended",
		zap.String("room", roomID),
		zap.Duration("teardown_in", m.endGrace),
	)
}

func (m *Manager) handleUpdateName(sess *Session, msg *protocol.Inbound) {
	r, playerID, ok := m.roomFor(sess, msg)
	if !ok {
		return
	}

	r.SetName(playerID, msg.Name)
	st := r.Snapshot()
	m.broadcast(r.Recipients(), protocol.Marshal(protocol.NameUpdated{
		Type:        protocol.TypeNameUpdated,
		PlayerID:    playerID,
		PlayerNames: st.Names,
	}))
}

// relay forwards an opaque payload, retagged and stamped with the
// server-assigned sender identity. excludeSender drops the sender from
// the recipient set (moves and deployments: the sender already holds
// authoritative local state).
func (m *Manager) relay(sess *Session, msg *protocol.Inbound, outType string, excludeSender bool) {
	r, playerID, ok := m.roomFor(sess, msg)
	if !ok {
		return
	}
	r.Touch()

	payload, err := protocol.Restamp(msg.Raw, outType, playerID)
	if err != nil {
		m.logger.Debug("dropping malformed relay payload",
			zap.String("uid", sess.uid),
			zap.String("type", msg.Type),
			zap.Error(err),
		)
		return
	}

	if excludeSender {
		m.broadcast(r.Recipients(playerID), payload)
	} else {
		m.broadcast(r.Recipients(), payload)
	}
}

// roomFor resolves the target room for a message that requires a joined
// identity. Answers the sender with a private error when the session has
// no identity for the addressed room, or the room is gone.
func (m *Manager) roomFor(sess *Session, msg *protocol.Inbound) (*room.Room, int, bool) {
	roomID, playerID := sess.Identity()
	if playerID == 0 || roomID != msg.RoomID {
		m.sendError(sess, room.ErrNotJoined)
		return nil, 0, false
	}
	r, ok := m.registry.Get(roomID)
	if !ok {
		m.sendError(sess, room.ErrRoomNotFound)
		return nil, 0, false
	}
	return r, playerID, true
}

// sendSnapshot answers a join (or rejoin) with the full room state.
func (m *Manager) sendSnapshot(sess *Session, r *room.Room, playerID int) {
	st := r.Snapshot()
	m.send(sess, protocol.Marshal(protocol.RoomJoined{
		Type:        protocol.TypeRoomJoined,
		RoomID:      st.ID,
		PlayerID:    playerID,
		HostID:      st.HostID,
		RoomType:    string(st.RoomType),
		GameStarted: st.GameStarted,
		Slots:       st.Seats,
		ReadyStates: st.Ready,
		PlayerNames: st.Names,
	}))
}

// broadcast pushes a payload to each recipient independently. A failed or
// closed recipient is skipped; delivery to the others proceeds.
func (m *Manager) broadcast(recipients []room.Occupant, payload []byte) {
	for _, o := range recipients {
		if err := o.Push(payload); err != nil {
			m.logger.Debug("broadcast recipient skipped", zap.Error(err))
		}
	}
}

func (m *Manager) send(sess *Session, payload []byte) {
	if err := sess.Push(payload); err != nil {
		m.logger.Debug("send failed",
			zap.String("uid", sess.uid),
			zap.Error(err),
		)
	}
}

func (m *Manager) sendError(sess *Session, err error) {
	var message string
	switch {
	case errors.Is(err, room.ErrRoomNotFound):
		message = "room not found"
	case errors.Is(err, room.ErrRoomFull):
		message = "room is full"
	case errors.Is(err, room.ErrSeatTaken):
		message = "slot already taken"
	case errors.Is(err, room.ErrSeatRequired):
		message = "select a slot first"
	case errors.Is(err, room.ErrNotJoined):
		message = "join a room first"
	default:
		message = err.Error()
	}
	m.send(sess, protocol.Marshal(protocol.Error{
		Type:    protocol.TypeError,
		Message: message,
	}))
}
