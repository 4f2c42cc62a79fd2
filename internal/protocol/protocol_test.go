package protocol_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/impostor/internal/protocol"
)

func TestDecode_AllTypes(t *testing.T) {
	cases := []struct {
		raw  string
		want protocol.Request
	}{
		{`{"type":"join_server","name":"Ann","playerId":"p-1"}`, protocol.JoinServer{Name: "Ann", PlayerID: "p-1"}},
		{`{"type":"join_server"}`, protocol.JoinServer{}},
		{`{"type":"create_room"}`, protocol.CreateRoom{}},
		{`{"type":"join_room","roomCode":"ab12"}`, protocol.JoinRoom{RoomCode: "ab12"}},
		{`{"type":"start_game"}`, protocol.StartGame{}},
		{`{"type":"new_round"}`, protocol.NewRound{}},
		{`{"type":"get_role"}`, protocol.GetRole{}},
		{`{"type":"role_revealed"}`, protocol.RoleRevealed{}},
		{`{"type":"show_results","extra":true}`, protocol.ShowResults{}},
		{`{"type":"leave_room"}`, protocol.LeaveRoom{}},
	}
	for _, tc := range cases {
		t.Run(tc.want.Type(), func(t *testing.T) {
			got, err := protocol.Decode([]byte(tc.raw))
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestDecode_Malformed(t *testing.T) {
	for _, raw := range []string{
		``,
		`not json`,
		`[]`,
		`null`,
		`{}`,
		`{"type":7}`,
		`{"type":"join_room","roomCode":12}`,
		`{"type":"join_server","name":["x"]}`,
	} {
		_, err := protocol.Decode([]byte(raw))
		assert.ErrorIs(t, err, protocol.ErrMalformed, "input %q", raw)
	}
}

func TestDecode_UnknownType(t *testing.T) {
	_, err := protocol.Decode([]byte(`{"type":"dance"}`))
	assert.ErrorIs(t, err, protocol.ErrUnknownType)
	assert.Contains(t, err.Error(), "dance")
}

func encodeMap(t *testing.T, v any) map[string]any {
	t.Helper()
	data, err := protocol.Encode(v)
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(data, &m))
	return m
}

func TestEncode_WireShapes(t *testing.T) {
	assert.Equal(t, map[string]any{
		"type": "connected", "room_code": "MAIN", "message": "Connected to game server",
	}, encodeMap(t, protocol.NewConnected("MAIN")))

	assert.Equal(t, map[string]any{
		"type": "connection_established", "playerId": "p1", "name": "Ann",
	}, encodeMap(t, protocol.NewIdentified("p1", "Ann", "AB12", false)))

	assert.Equal(t, map[string]any{
		"type": "reconnection_established", "playerId": "p1", "name": "Ann", "roomCode": "AB12",
	}, encodeMap(t, protocol.NewIdentified("p1", "Ann", "AB12", true)))

	created := encodeMap(t, protocol.NewRoomCreated("AB12", nil))
	assert.Equal(t, true, created["isHost"])
	assert.Equal(t, []any{}, created["players"], "empty player list encodes as []")

	joined := encodeMap(t, protocol.NewRoomJoined("AB12", []protocol.Player{{ID: "p1", Name: "Ann", Connected: true}}))
	assert.Equal(t, false, joined["isHost"])
	assert.Equal(t, []any{map[string]any{
		"id": "p1", "name": "Ann", "isHost": false, "connected": true, "ready": false,
	}}, joined["players"])

	assert.Equal(t, map[string]any{
		"type": "game_started", "gameState": map[string]any{"phase": "playing", "playerCount": float64(3)},
	}, encodeMap(t, protocol.NewRoundStarted(protocol.TypeGameStarted, "playing", 3)))

	assert.Equal(t, map[string]any{
		"type": "role_assigned", "isImpostor": true, "secretWord": "", "playerName": "Bo",
	}, encodeMap(t, protocol.NewRoleAssigned(true, "", "Bo")))

	assert.Equal(t, map[string]any{
		"type": "role_reveal_status", "readyCount": float64(3), "totalCount": float64(3), "allReady": true,
	}, encodeMap(t, protocol.NewRoleRevealStatus(3, 3, true)))

	assert.Equal(t, map[string]any{
		"type": "game_results", "secretWord": "Pizza", "impostorName": "Bo", "impostorId": "p2",
	}, encodeMap(t, protocol.NewGameResults("Pizza", "Bo", "p2")))

	assert.Equal(t, map[string]any{
		"type": "error", "message": "nope", "code": "not_host",
	}, encodeMap(t, protocol.NewError(protocol.CodeNotHost, "nope")))

	assert.Equal(t, "You are the host - monitor the game!", encodeMap(t, protocol.NewHostStatus())["message"])
	assert.Equal(t, "Room not found or game in progress", encodeMap(t, protocol.NewJoinFailed("room not found"))["error"])
	assert.Equal(t, "lobby", encodeMap(t, protocol.NewMembership(protocol.TypePlayerLeft, nil, "lobby"))["phase"])
}

func TestPropertyDecodeNeverPanics(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		data := rapid.SliceOf(rapid.Byte()).Draw(t, "data")
		req, err := protocol.Decode(data)
		if err == nil && req == nil {
			t.Fatalf("nil request without error for %q", data)
		}
	})
}
