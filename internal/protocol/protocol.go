// Package protocol defines the JSON message envelopes exchanged with
// clients. Every message carries a "type" discriminator; the server never
// interprets game payloads beyond the fields it must stamp.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Inbound message types.
const (
	TypeGetRooms         = "getRooms"
	TypeCreateRoom       = "createRoom"
	TypeJoin             = "join"
	TypeSelectSlot       = "selectSlot"
	TypeToggleReady      = "toggleReady"
	TypeStartGame        = "startGame"
	TypeSetupComplete    = "setupComplete"
	TypeDeploymentUpdate = "deploymentUpdate"
	TypeMove             = "move"
	TypeGameEnd          = "gameEnd"
	TypeUpdateName       = "updateName"
)

// Outbound message types.
const (
	TypeRoomList              = "roomList"
	TypeRoomCreated           = "roomCreated"
	TypeRoomJoined            = "roomJoined"
	TypePlayerJoined          = "playerJoined"
	TypeSlotSelected          = "slotSelected"
	TypeNameUpdated           = "nameUpdated"
	TypePlayerReady           = "playerReady"
	TypeGameStart             = "gameStart"
	TypeOpponentDeployment    = "opponentDeploymentUpdate"
	TypeOpponentSetupComplete = "opponentSetupComplete"
	TypeBothPlayersReady      = "bothPlayersReady"
	TypePlayerLeft            = "playerLeft"
	TypeError                 = "error"
	TypeServerClosing         = "serverClosing"
)

// ErrDecode reports an undecodable inbound payload or a missing type
// discriminator. Callers drop the message silently.
var ErrDecode = errors.New("protocol: undecodable message")

// Inbound is a decoded client message. Only the routing fields are
// decoded; Raw holds the full payload for relay-style messages.
type Inbound struct {
	Type     string `json:"type"`
	RoomID   string `json:"roomId"`
	PlayerID int    `json:"playerId"`
	RoomType string `json:"roomType"`
	SlotNum  int    `json:"slotNum"`
	IsReady  bool   `json:"isReady"`
	Name     string `json:"name"`

	Raw json.RawMessage `json:"-"`
}

// Decode parses an inbound payload.
//
// Precondition: data must be non-empty.
// Postcondition: Returns the decoded message, or ErrDecode when the
// payload is not a JSON object with a non-empty "type" string.
func Decode(data []byte) (*Inbound, error) {
	var msg Inbound
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if msg.Type == "" {
		return nil, fmt.Errorf("%w: missing type", ErrDecode)
	}
	msg.Raw = json.RawMessage(data)
	return &msg, nil
}

// Restamp rewrites a relay payload with a new type discriminator and the
// server-assigned sender identity, leaving every other field verbatim.
//
// Postcondition: Returns the re-encoded payload, or an error when the
// original payload is not a JSON object.
func Restamp(raw json.RawMessage, newType string, playerID int) ([]byte, error) {
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("restamping %s payload: %w", newType, err)
	}
	fields["type"] = newType
	fields["playerId"] = playerID
	return json.Marshal(fields)
}

// Marshal encodes an outbound message, panicking on failure. Outbound
// structs contain only marshalable fields, so failure is a programming
// error.
func Marshal(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("protocol: marshal %T: %v", v, err))
	}
	return data
}
