// Package room provides the in-memory room aggregate and registry for the
// relay server: seat assignment, readiness and setup synchronization,
// occupant tracking with host migration, and the process-wide room store.
package room

import (
	"sync"
	"time"
)

// Type is the room variant, fixed at creation.
type Type string

const (
	// TypeDuo is a two-seat room: both occupants hold combat seats.
	TypeDuo Type = "duo"
	// TypeTrio admits a third, non-combat occupant. The ready gate still
	// covers seats 1 and 2 only.
	TypeTrio Type = "trio"
)

// combatSeats is the number of seats the ready and setup gates cover,
// for both room types.
const combatSeats = 2

// Capacity returns the admission ceiling for the room type. Admission is
// counted over connections, not seats; an occupant may be connected
// without having chosen a seat.
func (t Type) Capacity() int {
	if t == TypeTrio {
		return 3
	}
	return 2
}

// Valid reports whether t is a known room type.
func (t Type) Valid() bool {
	return t == TypeDuo || t == TypeTrio
}

// Occupant is a live connection attached to a room. Push must not block
// on slow peers; a failed push during broadcast is skipped, never retried.
type Occupant interface {
	Push(data []byte) error
	Close() error
}

// State is a point-in-time copy of a room's client-visible state. Maps
// are owned by the caller.
type State struct {
	ID          string
	RoomType    Type
	HostID      int
	GameStarted bool
	Seats       map[int]int
	Ready       map[int]bool
	Names       map[int]string
}

// Room is the aggregate state for one match. All methods are safe for
// concurrent use; a single coarse mutex guards every map. No method calls
// Occupant.Push while holding the lock.
type Room struct {
	mu sync.Mutex

	id       string
	roomType Type

	seats     map[int]int    // playerID → seat number
	ready     map[int]bool   // playerID → readiness
	setupDone map[int]bool   // playerID → deployment finished (monotonic)
	names     map[int]string // playerID → display name
	occupants map[int]Occupant

	hostID         int
	gameStarted    bool
	setupAnnounced bool

	createdAt    time.Time
	lastActivity time.Time
}

// New creates an empty room with the given code and type.
//
// Precondition: id must be non-empty; roomType must be valid.
func New(id string, roomType Type) *Room {
	now := time.Now()
	return &Room{
		id:           id,
		roomType:     roomType,
		seats:        make(map[int]int),
		ready:        make(map[int]bool),
		setupDone:    make(map[int]bool),
		names:        make(map[int]string),
		occupants:    make(map[int]Occupant),
		createdAt:    now,
		lastActivity: now,
	}
}

// ID returns the room code.
func (r *Room) ID() string { return r.id }

// RoomType returns the room variant.
func (r *Room) RoomType() Type { return r.roomType }

// Touch refreshes the activity timestamp. Called for every accepted
// message addressed to the room.
func (r *Room) Touch() {
	r.mu.Lock()
	r.lastActivity = time.Now()
	r.mu.Unlock()
}

// LastActivity returns the time of the last accepted message.
func (r *Room) LastActivity() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastActivity
}

// Join admits an occupant and assigns the smallest unused positive player
// id, reusing ids freed by departures. The first occupant becomes host.
//
// Postcondition: Returns the assigned player id, or ErrRoomFull without
// mutating the occupant set when the room is at admission capacity.
func (r *Room) Join(o Occupant) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.occupants) >= r.roomType.Capacity() {
		return 0, ErrRoomFull
	}

	id := 1
	for {
		if _, taken := r.occupants[id]; !taken {
			break
		}
		id++
	}

	r.occupants[id] = o
	if len(r.occupants) == 1 {
		r.hostID = id
	}
	r.lastActivity = time.Now()
	return id, nil
}

// Has reports whether the given player id has a tracked connection.
func (r *Room) Has(playerID int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.occupants[playerID]
	return ok
}

// Leave removes every trace of the player: seat, readiness, setup flag,
// name, and connection entry. If the departing player was host, the host
// role migrates to the smallest remaining connected player id.
//
// Postcondition: Returns whether the room is now empty. An unknown player
// id is a no-op.
func (r *Room) Leave(playerID int) (empty bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.occupants[playerID]; !ok {
		return len(r.occupants) == 0
	}

	delete(r.occupants, playerID)
	delete(r.seats, playerID)
	delete(r.ready, playerID)
	delete(r.setupDone, playerID)
	delete(r.names, playerID)

	if r.hostID == playerID {
		r.hostID = 0
		for id := range r.occupants {
			if r.hostID == 0 || id < r.hostID {
				r.hostID = id
			}
		}
	}
	r.lastActivity = time.Now()
	return len(r.occupants) == 0
}

// SelectSeat assigns, or toggles off, a seat for the player. Requesting
// the seat the player already holds releases it and clears that player's
// readiness. Taking a new seat also resets the player's readiness.
//
// Postcondition: Returns ErrNotJoined for an untracked player, or
// ErrSeatTaken when another player holds the seat; seat numbers remain
// pairwise distinct.
func (r *Room) SelectSeat(playerID, seat int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.occupants[playerID]; !ok {
		return ErrNotJoined
	}

	if current, seated := r.seats[playerID]; seated && current == seat {
		delete(r.seats, playerID)
		delete(r.ready, playerID)
		r.lastActivity = time.Now()
		return nil
	}

	for id, s := range r.seats {
		if s == seat && id != playerID {
			return ErrSeatTaken
		}
	}

	r.seats[playerID] = seat
	delete(r.ready, playerID)
	r.lastActivity = time.Now()
	return nil
}

// ToggleReady sets the player's readiness and reports the global gate.
//
// Postcondition: Returns the new allReady value, or ErrSeatRequired when
// the player holds no seat (state unchanged, no broadcast expected).
func (r *Room) ToggleReady(playerID int, isReady bool) (allReady bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, seated := r.seats[playerID]; !seated {
		return false, ErrSeatRequired
	}
	r.ready[playerID] = isReady
	r.lastActivity = time.Now()
	return r.allReadyLocked(), nil
}

// allReadyLocked reports whether both combat seats are occupied and both
// occupants are ready. The third seat of a trio room never participates.
func (r *Room) allReadyLocked() bool {
	for seat := 1; seat <= combatSeats; seat++ {
		occupied := false
		for id, s := range r.seats {
			if s == seat {
				occupied = true
				if !r.ready[id] {
					return false
				}
				break
			}
		}
		if !occupied {
			return false
		}
	}
	return true
}

// AllReady reports the global ready gate.
func (r *Room) AllReady() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.allReadyLocked()
}

// StartGame stamps the started flag. The flag is terminal: it is never
// reset for the room's remaining life. Readiness preconditions are the
// caller's responsibility; the relay does not enforce game rules.
func (r *Room) StartGame() {
	r.mu.Lock()
	r.gameStarted = true
	r.lastActivity = time.Now()
	r.mu.Unlock()
}

// Started reports whether the game has started.
func (r *Room) Started() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.gameStarted
}

// MarkSetupComplete records that the player finished deployment. The flag
// is monotonic.
//
// Postcondition: Returns true exactly once per room, on the call that
// completes setup for both combat-seat occupants.
func (r *Room) MarkSetupComplete(playerID int) (bothJustReady bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.setupDone[playerID] = true
	r.lastActivity = time.Now()

	if r.setupAnnounced {
		return false
	}
	for seat := 1; seat <= combatSeats; seat++ {
		done := false
		for id, s := range r.seats {
			if s == seat && r.setupDone[id] {
				done = true
				break
			}
		}
		if !done {
			return false
		}
	}
	r.setupAnnounced = true
	return true
}

// SetName stores the player's display name. Names are independent of
// seat occupancy.
func (r *Room) SetName(playerID int, name string) {
	r.mu.Lock()
	r.names[playerID] = name
	r.lastActivity = time.Now()
	r.mu.Unlock()
}

// HostID returns the current host player id (0 when the room is empty).
func (r *Room) HostID() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.hostID
}

// OccupantCount returns the number of tracked connections.
func (r *Room) OccupantCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.occupants)
}

// Empty reports whether the room has no tracked connections.
func (r *Room) Empty() bool {
	return r.OccupantCount() == 0
}

// Snapshot returns a copy of the client-visible room state.
func (r *Room) Snapshot() State {
	r.mu.Lock()
	defer r.mu.Unlock()

	st := State{
		ID:          r.id,
		RoomType:    r.roomType,
		HostID:      r.hostID,
		GameStarted: r.gameStarted,
		Seats:       make(map[int]int, len(r.seats)),
		Ready:       make(map[int]bool, len(r.ready)),
		Names:       make(map[int]string, len(r.names)),
	}
	for id, s := range r.seats {
		st.Seats[id] = s
	}
	for id, v := range r.ready {
		st.Ready[id] = v
	}
	for id, n := range r.names {
		st.Names[id] = n
	}
	return st
}

// Recipients returns the occupants to target in a broadcast, excluding
// the given player ids. The slice is a snapshot; callers push to it after
// the room lock is released.
func (r *Room) Recipients(exclude ...int) []Occupant {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Occupant, 0, len(r.occupants))
	for id, o := range r.occupants {
		skip := false
		for _, ex := range exclude {
			if id == ex {
				skip = true
				break
			}
		}
		if !skip {
			out = append(out, o)
		}
	}
	return out
}
