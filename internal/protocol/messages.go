package protocol

// RoomSummary is one entry in a roomList response.
type RoomSummary struct {
	ID          string `json:"id"`
	Occupants   int    `json:"occupantCount"`
	Capacity    int    `json:"capacity"`
	RoomType    string `json:"roomType"`
	GameStarted bool   `json:"gameStarted"`
}

// RoomList answers a getRooms query.
type RoomList struct {
	Type  string        `json:"type"`
	Rooms []RoomSummary `json:"rooms"`
}

// RoomCreated confirms room allocation to the requester only.
type RoomCreated struct {
	Type     string `json:"type"`
	RoomID   string `json:"roomId"`
	RoomType string `json:"roomType"`
}

// RoomJoined is the full room snapshot sent to a joining (or rejoining)
// connection.
type RoomJoined struct {
	Type        string         `json:"type"`
	RoomID      string         `json:"roomId"`
	PlayerID    int            `json:"playerId"`
	HostID      int            `json:"hostId"`
	RoomType    string         `json:"roomType"`
	GameStarted bool           `json:"gameStarted"`
	Slots       map[int]int    `json:"slots"`
	ReadyStates map[int]bool   `json:"readyStates"`
	PlayerNames map[int]string `json:"playerNames"`
}

// PlayerJoined announces a new occupant to the rest of the room.
type PlayerJoined struct {
	Type        string         `json:"type"`
	PlayerID    int            `json:"playerId"`
	PlayerNames map[int]string `json:"playerNames"`
}

// SlotSelected carries the updated seat map after a seat action.
type SlotSelected struct {
	Type        string         `json:"type"`
	PlayerID    int            `json:"playerId"`
	Slots       map[int]int    `json:"slots"`
	ReadyStates map[int]bool   `json:"readyStates"`
	PlayerNames map[int]string `json:"playerNames"`
}

// NameUpdated carries the full display-name map after a rename.
type NameUpdated struct {
	Type        string         `json:"type"`
	PlayerID    int            `json:"playerId"`
	PlayerNames map[int]string `json:"playerNames"`
}

// PlayerReady reports one readiness toggle and the resulting global gate.
type PlayerReady struct {
	Type        string       `json:"type"`
	PlayerID    int          `json:"playerId"`
	IsReady     bool         `json:"isReady"`
	AllReady    bool         `json:"allReady"`
	ReadyStates map[int]bool `json:"readyStates"`
}

// GameStart announces the start of the match.
type GameStart struct {
	Type   string `json:"type"`
	HostID int    `json:"hostId"`
}

// OpponentSetupComplete tells the other occupants one player finished
// deployment.
type OpponentSetupComplete struct {
	Type     string `json:"type"`
	PlayerID int    `json:"playerId"`
}

// BothPlayersReady fires once when both combat seats have completed setup.
type BothPlayersReady struct {
	Type string `json:"type"`
}

// PlayerLeft carries the updated roster after a disconnect.
type PlayerLeft struct {
	Type        string         `json:"type"`
	PlayerID    int            `json:"playerId"`
	HostID      int            `json:"hostId"`
	Slots       map[int]int    `json:"slots"`
	ReadyStates map[int]bool   `json:"readyStates"`
	PlayerNames map[int]string `json:"playerNames"`
}

// Error is a private failure report to the offending sender.
type Error struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// ServerClosing notifies a connection of process shutdown.
type ServerClosing struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
}
