// Package protocol defines the JSON envelopes exchanged with game clients.
//
// Every envelope is a flat JSON object with a string "type" discriminator.
// Inbound envelopes decode once into the closed Request union; outbound
// envelopes are plain structs encoded with Encode.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Inbound envelope types.
const (
	TypeJoinServer   = "join_server"
	TypeCreateRoom   = "create_room"
	TypeJoinRoom     = "join_room"
	TypeStartGame    = "start_game"
	TypeNewRound     = "new_round"
	TypeGetRole      = "get_role"
	TypeRoleRevealed = "role_revealed"
	TypeShowResults  = "show_results"
	TypeLeaveRoom    = "leave_room"
)

var (
	// ErrMalformed is returned for payloads that are not a JSON object with a
	// string type, or whose fields have the wrong shape.
	ErrMalformed = errors.New("malformed message")
	// ErrUnknownType is returned for well-formed envelopes of an unsupported type.
	ErrUnknownType = errors.New("unknown message type")
)

// Request is one decoded inbound envelope. The set of implementations is closed.
type Request interface {
	// Type returns the wire discriminator.
	Type() string
	sealed()
}

// JoinServer identifies the connection, optionally reclaiming a stored identity.
type JoinServer struct {
	Name     string `json:"name"`
	PlayerID string `json:"playerId"`
}

// CreateRoom asks for a new room hosted by the caller.
type CreateRoom struct{}

// JoinRoom asks to join a room as a player.
type JoinRoom struct {
	RoomCode string `json:"roomCode"`
}

// StartGame starts the first round of the caller's room.
type StartGame struct{}

// NewRound restarts the round of the caller's room.
type NewRound struct{}

// GetRole asks for the caller's role in the current round.
type GetRole struct{}

// RoleRevealed acknowledges that the caller has seen its role.
type RoleRevealed struct{}

// ShowResults reveals the topic and impostor to the room.
type ShowResults struct{}

// LeaveRoom leaves the caller's current room.
type LeaveRoom struct{}

func (JoinServer) Type() string   { return TypeJoinServer }
func (CreateRoom) Type() string   { return TypeCreateRoom }
func (JoinRoom) Type() string     { return TypeJoinRoom }
func (StartGame) Type() string    { return TypeStartGame }
func (NewRound) Type() string     { return TypeNewRound }
func (GetRole) Type() string      { return TypeGetRole }
func (RoleRevealed) Type() string { return TypeRoleRevealed }
func (ShowResults) Type() string  { return TypeShowResults }
func (LeaveRoom) Type() string    { return TypeLeaveRoom }

func (JoinServer) sealed()   {}
func (CreateRoom) sealed()   {}
func (JoinRoom) sealed()     {}
func (StartGame) sealed()    {}
func (NewRound) sealed()     {}
func (GetRole) sealed()      {}
func (RoleRevealed) sealed() {}
func (ShowResults) sealed()  {}
func (LeaveRoom) sealed()    {}

type header struct {
	Type *string `json:"type"`
}

// Decode parses one inbound envelope.
//
// Postcondition: Returns a non-nil Request, or an error wrapping ErrMalformed
// or ErrUnknownType.
func Decode(data []byte) (Request, error) {
	var h header
	if err := json.Unmarshal(data, &h); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if h.Type == nil {
		return nil, fmt.Errorf("%w: missing type", ErrMalformed)
	}

	switch *h.Type {
	case TypeJoinServer:
		return decodeInto[JoinServer](data)
	case TypeCreateRoom:
		return CreateRoom{}, nil
	case TypeJoinRoom:
		return decodeInto[JoinRoom](data)
	case TypeStartGame:
		return StartGame{}, nil
	case TypeNewRound:
		return NewRound{}, nil
	case TypeGetRole:
		return GetRole{}, nil
	case TypeRoleRevealed:
		return RoleRevealed{}, nil
	case TypeShowResults:
		return ShowResults{}, nil
	case TypeLeaveRoom:
		return LeaveRoom{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, *h.Type)
	}
}

func decodeInto[T Request](data []byte) (Request, error) {
	var req T
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return req, nil
}
