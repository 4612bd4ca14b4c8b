package room

import (
	"crypto/rand"
	"math/big"
	"sync"
)

// codeAlphabet excludes easily-confused characters (0/O, 1/I/L).
const codeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

// codeLength is the room code length. 31^6 ≈ 887M codes, so collisions
// against live rooms are rare; Create regenerates on collision regardless.
const codeLength = 6

// Summary is a discovery snapshot of one room.
type Summary struct {
	ID          string
	Occupants   int
	Capacity    int
	RoomType    Type
	GameStarted bool
}

// Registry is the process-wide room store. It is an owned object, not a
// singleton: independent registries are fully isolated, which tests rely
// on. All methods are safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]*Room
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{rooms: make(map[string]*Room)}
}

// Create allocates a room with a generated code not currently in use.
//
// Precondition: roomType must be valid.
// Postcondition: The returned room is registered under its code.
func (reg *Registry) Create(roomType Type) *Room {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	var code string
	for {
		code = generateCode()
		if _, exists := reg.rooms[code]; !exists {
			break
		}
	}

	r := New(code, roomType)
	reg.rooms[code] = r
	return r
}

// Get looks up a room by exact code.
//
// Postcondition: Returns (room, true) if present, or (nil, false).
func (reg *Registry) Get(id string) (*Room, bool) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	r, ok := reg.rooms[id]
	return r, ok
}

// Delete removes the room. Deleting an absent id is a no-op.
func (reg *Registry) Delete(id string) {
	reg.mu.Lock()
	delete(reg.rooms, id)
	reg.mu.Unlock()
}

// Count returns the number of registered rooms.
func (reg *Registry) Count() int {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	return len(reg.rooms)
}

// All returns a snapshot slice of every registered room. The idle sweep
// iterates this snapshot so no registry lock is held across room work.
func (reg *Registry) All() []*Room {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	out := make([]*Room, 0, len(reg.rooms))
	for _, r := range reg.rooms {
		out = append(out, r)
	}
	return out
}

// Summaries returns discovery entries for every non-empty room. Order is
// unspecified.
func (reg *Registry) Summaries() []Summary {
	rooms := reg.All()

	out := make([]Summary, 0, len(rooms))
	for _, r := range rooms {
		n := r.OccupantCount()
		if n == 0 {
			continue
		}
		out = append(out, Summary{
			ID:          r.ID(),
			Occupants:   n,
			Capacity:    r.RoomType().Capacity(),
			RoomType:    r.RoomType(),
			GameStarted: r.Started(),
		})
	}
	return out
}

// generateCode returns a random short room code.
func generateCode() string {
	buf := make([]byte, codeLength)
	max := big.NewInt(int64(len(codeAlphabet)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			// crypto/rand only fails when the platform entropy source is
			// broken; there is no reasonable recovery.
			panic("room: reading random source: " + err.Error())
		}
		buf[i] = codeAlphabet[n.Int64()]
	}
	return string(buf)
}
