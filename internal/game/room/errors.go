package room

import "errors"

// Sentinel errors for the single-message failure taxonomy. The dispatcher
// matches these with errors.Is and answers the sender privately; nothing
// here ever propagates past one message.
var (
	// ErrRoomNotFound reports an operation against an unknown room code.
	ErrRoomNotFound = errors.New("room not found")
	// ErrRoomFull reports a join against a room at admission capacity.
	ErrRoomFull = errors.New("room is full")
	// ErrSeatTaken reports a seat request for a seat held by another player.
	ErrSeatTaken = errors.New("seat already taken")
	// ErrSeatRequired reports a readiness toggle by a player with no seat.
	ErrSeatRequired = errors.New("seat required before readying")
	// ErrNotJoined reports a room action from a connection with no identity.
	ErrNotJoined = errors.New("not joined to a room")
)
