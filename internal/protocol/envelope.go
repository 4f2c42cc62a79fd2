package protocol

import "encoding/json"

// Outbound envelope types.
const (
	TypeConnected               = "connected"
	TypeConnectionEstablished   = "connection_established"
	TypeReconnectionEstablished = "reconnection_established"
	TypeRoomCreated             = "room_created"
	TypeRoomJoined              = "room_joined"
	TypeJoinFailed              = "join_failed"
	TypePlayerJoined            = "player_joined"
	TypePlayerLeft              = "player_left"
	TypePlayerDisconnected      = "player_disconnected"
	TypePlayerReconnected       = "player_reconnected"
	TypeGameStarted             = "game_started"
	TypeNewRoundStarted         = "new_round_started"
	TypeHostStatus              = "host_status"
	TypeRoleAssigned            = "role_assigned"
	TypeRoleRevealStatus        = "role_reveal_status"
	TypeGameResults             = "game_results"
	TypeError                   = "error"
)

// ConnectedMessage is the greeting sent when a connection opens.
const ConnectedMessage = "Connected to game server"

// HostStatusMessage is the observer reply to the host's role request.
const HostStatusMessage = "You are the host - monitor the game!"

// ErrorCode classifies a request failure.
type ErrorCode string

const (
	CodeNotIdentified      ErrorCode = "not_identified"
	CodeNotInRoom          ErrorCode = "not_in_room"
	CodeNotHost            ErrorCode = "not_host"
	CodeNotMember          ErrorCode = "not_member"
	CodeRoundNotStartable  ErrorCode = "round_not_startable"
	CodeRoundNotStarted    ErrorCode = "round_not_started"
	CodeCodeSpaceExhausted ErrorCode = "code_space_exhausted"
	CodeInvalidMessage     ErrorCode = "invalid_message"
	CodeUnknownType        ErrorCode = "unknown_type"
	CodeInternal           ErrorCode = "internal"
)

// Player is one entry of a room's player list. The host never appears.
type Player struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	IsHost    bool   `json:"isHost"`
	Connected bool   `json:"connected"`
	Ready     bool   `json:"ready"`
}

// GameState summarizes a room for round broadcasts.
type GameState struct {
	Phase       string `json:"phase"`
	PlayerCount int    `json:"playerCount"`
}

// Connected greets a new connection. RoomCode is informational only.
type Connected struct {
	Type     string `json:"type"`
	RoomCode string `json:"room_code"`
	Message  string `json:"message"`
}

// ConnectionEstablished confirms a new identity.
type ConnectionEstablished struct {
	Type     string `json:"type"`
	PlayerID string `json:"playerId"`
	Name     string `json:"name"`
}

// ReconnectionEstablished confirms a reclaimed identity and its current room.
type ReconnectionEstablished struct {
	Type     string `json:"type"`
	PlayerID string `json:"playerId"`
	Name     string `json:"name"`
	RoomCode string `json:"roomCode"`
}

// RoomEntered is sent to a participant that created or joined a room.
type RoomEntered struct {
	Type     string   `json:"type"`
	RoomCode string   `json:"roomCode"`
	Players  []Player `json:"players"`
	IsHost   bool     `json:"isHost"`
}

// JoinFailed reports a rejected join.
type JoinFailed struct {
	Type   string `json:"type"`
	Error  string `json:"error"`
	Reason string `json:"reason"`
}

// Membership announces a change in a room's player list.
type Membership struct {
	Type    string   `json:"type"`
	Players []Player `json:"players"`
	Phase   string   `json:"phase"`
}

// RoundStarted announces a new round.
type RoundStarted struct {
	Type      string    `json:"type"`
	GameState GameState `json:"gameState"`
}

// HostStatus is the host's reply to a role request.
type HostStatus struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// RoleAssigned tells one member its role. SecretWord is empty for the impostor.
type RoleAssigned struct {
	Type       string `json:"type"`
	IsImpostor bool   `json:"isImpostor"`
	SecretWord string `json:"secretWord"`
	PlayerName string `json:"playerName"`
}

// RoleRevealStatus reports readiness progress.
type RoleRevealStatus struct {
	Type       string `json:"type"`
	ReadyCount int    `json:"readyCount"`
	TotalCount int    `json:"totalCount"`
	AllReady   bool   `json:"allReady"`
}

// GameResults reveals the round's topic and impostor.
type GameResults struct {
	Type         string `json:"type"`
	SecretWord   string `json:"secretWord"`
	ImpostorName string `json:"impostorName"`
	ImpostorID   string `json:"impostorId"`
}

// Error reports a failed request to its sender.
type Error struct {
	Type    string    `json:"type"`
	Message string    `json:"message"`
	Code    ErrorCode `json:"code"`
}

// NewConnected builds the connection greeting.
func NewConnected(roomCode string) Connected {
	return Connected{Type: TypeConnected, RoomCode: roomCode, Message: ConnectedMessage}
}

// NewIdentified builds the identify reply. A reclaimed identity reports its room.
func NewIdentified(id, name, roomCode string, reclaimed bool) any {
	if reclaimed {
		return ReconnectionEstablished{Type: TypeReconnectionEstablished, PlayerID: id, Name: name, RoomCode: roomCode}
	}
	return ConnectionEstablished{Type: TypeConnectionEstablished, PlayerID: id, Name: name}
}

// NewRoomCreated builds the create reply.
func NewRoomCreated(code string, players []Player) RoomEntered {
	return RoomEntered{Type: TypeRoomCreated, RoomCode: code, Players: nonNil(players), IsHost: true}
}

// NewRoomJoined builds the join reply.
func NewRoomJoined(code string, players []Player) RoomEntered {
	return RoomEntered{Type: TypeRoomJoined, RoomCode: code, Players: nonNil(players)}
}

// JoinFailedMessage is the generic join rejection shown to players.
const JoinFailedMessage = "Room not found or game in progress"

// NewJoinFailed builds the join rejection. reason carries the specific cause.
func NewJoinFailed(reason string) JoinFailed {
	return JoinFailed{Type: TypeJoinFailed, Error: JoinFailedMessage, Reason: reason}
}

// NewMembership builds a membership broadcast of the given type.
//
// Precondition: typ is one of the player_* outbound types.
func NewMembership(typ string, players []Player, phase string) Membership {
	return Membership{Type: typ, Players: nonNil(players), Phase: phase}
}

// NewRoundStarted builds a round broadcast of the given type.
//
// Precondition: typ is TypeGameStarted or TypeNewRoundStarted.
func NewRoundStarted(typ, phase string, playerCount int) RoundStarted {
	return RoundStarted{Type: typ, GameState: GameState{Phase: phase, PlayerCount: playerCount}}
}

// NewHostStatus builds the host's observer reply.
func NewHostStatus() HostStatus {
	return HostStatus{Type: TypeHostStatus, Message: HostStatusMessage}
}

// NewRoleAssigned builds a member's role reply.
func NewRoleAssigned(isImpostor bool, secretWord, playerName string) RoleAssigned {
	return RoleAssigned{Type: TypeRoleAssigned, IsImpostor: isImpostor, SecretWord: secretWord, PlayerName: playerName}
}

// NewRoleRevealStatus builds the readiness broadcast. allReady is decided by
// the room, not derived from the counts.
func NewRoleRevealStatus(ready, total int, allReady bool) RoleRevealStatus {
	return RoleRevealStatus{Type: TypeRoleRevealStatus, ReadyCount: ready, TotalCount: total, AllReady: allReady}
}

// NewGameResults builds the reveal broadcast.
func NewGameResults(secretWord, impostorName, impostorID string) GameResults {
	return GameResults{Type: TypeGameResults, SecretWord: secretWord, ImpostorName: impostorName, ImpostorID: impostorID}
}

// NewError builds a failure reply.
func NewError(code ErrorCode, message string) Error {
	return Error{Type: TypeError, Message: message, Code: code}
}

// Encode serializes an outbound envelope.
func Encode(v any) ([]byte, error) {
	return json.Marshal(v)
}

func nonNil(players []Player) []Player {
	if players == nil {
		return []Player{}
	}
	return players
}
