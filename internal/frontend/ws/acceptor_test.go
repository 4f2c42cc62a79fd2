package ws_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/cory-johannsen/impostor/internal/config"
	"github.com/cory-johannsen/impostor/internal/frontend/ws"
	"github.com/cory-johannsen/impostor/internal/game/random"
	"github.com/cory-johannsen/impostor/internal/game/session"
	"github.com/cory-johannsen/impostor/internal/game/topic"
	"github.com/cory-johannsen/impostor/internal/gameserver"
	"github.com/cory-johannsen/impostor/internal/testutil"
)

const readTimeout = 2 * time.Second

func testConfig(port int) config.WebSocketConfig {
	return config.WebSocketConfig{
		Port:            port,
		PortAttempts:    1,
		Path:            "/ws",
		WriteTimeout:    time.Second,
		PongWait:        5 * time.Second,
		SendTimeout:     time.Second,
		SendBuffer:      16,
		MaxMessageBytes: 4096,
	}
}

func newGameServer(t *testing.T) *gameserver.Server {
	t.Helper()
	dir := session.NewDirectory(random.NewCryptoSource(), nil)
	srv := gameserver.NewServer(dir, topic.Default(), gameserver.Options{
		GracePeriod:  time.Hour,
		SendTimeout:  time.Second,
		GreetingCode: "WXYZ",
	}, zaptest.NewLogger(t))
	t.Cleanup(srv.Stop)
	return srv
}

func startTestServer(t *testing.T, srv *gameserver.Server) string {
	t.Helper()
	acc := ws.NewAcceptor("127.0.0.1", testConfig(0), srv, zaptest.NewLogger(t))
	hs := httptest.NewServer(acc.Handler())
	t.Cleanup(hs.Close)
	return "ws" + strings.TrimPrefix(hs.URL, "http") + "/ws"
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(readTimeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestAcceptorGreetsAndIdentifies(t *testing.T) {
	srv := newGameServer(t)
	url := startTestServer(t, srv)

	client := testutil.NewWSClient(t, url)
	greeting := client.Next(readTimeout)
	assert.Equal(t, "connected", greeting["type"])
	assert.Equal(t, "WXYZ", greeting["room_code"])

	client.SendJSON(map[string]string{"type": "join_server", "name": "Ana"})
	ident := client.ReadUntil("connection_established", readTimeout)
	assert.Equal(t, "Ana", ident["name"])
	assert.NotEmpty(t, ident["playerId"])
}

func TestAcceptorReportsMalformedFrames(t *testing.T) {
	srv := newGameServer(t)
	client := testutil.NewWSClient(t, startTestServer(t, srv))
	client.Next(readTimeout)

	client.SendRaw("not json")
	msg := client.ReadUntil("error", readTimeout)
	assert.Equal(t, "invalid_message", msg["code"])
}

func TestAcceptorFullRound(t *testing.T) {
	srv := newGameServer(t)
	url := startTestServer(t, srv)

	host := testutil.NewWSClient(t, url)
	host.Next(readTimeout)
	host.SendJSON(map[string]string{"type": "join_server", "name": "Host"})
	host.ReadUntil("connection_established", readTimeout)
	host.SendJSON(map[string]string{"type": "create_room"})
	code := host.ReadUntil("room_created", readTimeout)["roomCode"].(string)
	require.Len(t, code, session.CodeLength)

	players := make([]*testutil.WSClient, 0, 3)
	for _, name := range []string{"A", "B", "C"} {
		c := testutil.NewWSClient(t, url)
		c.Next(readTimeout)
		c.SendJSON(map[string]string{"type": "join_server", "name": name})
		c.ReadUntil("connection_established", readTimeout)
		c.SendJSON(map[string]string{"type": "join_room", "roomCode": strings.ToLower(code)})
		c.ReadUntil("room_joined", readTimeout)
		players = append(players, c)
	}

	host.SendJSON(map[string]string{"type": "start_game"})
	started := host.ReadUntil("game_started", readTimeout)
	state := started["gameState"].(map[string]any)
	assert.Equal(t, "playing", state["phase"])
	assert.EqualValues(t, 3, state["playerCount"])

	impostors := 0
	for _, c := range players {
		c.ReadUntil("game_started", readTimeout)
		c.SendJSON(map[string]string{"type": "get_role"})
		role := c.ReadUntil("role_assigned", readTimeout)
		if role["isImpostor"] == true {
			impostors++
		}
	}
	assert.Equal(t, 1, impostors)

	host.SendJSON(map[string]string{"type": "show_results"})
	results := host.ReadUntil("game_results", readTimeout)
	assert.NotEmpty(t, results["secretWord"])
	assert.NotEmpty(t, results["impostorId"])
}

func TestAcceptorDisconnectNotifiesRoom(t *testing.T) {
	srv := newGameServer(t)
	url := startTestServer(t, srv)

	host := testutil.NewWSClient(t, url)
	host.Next(readTimeout)
	host.SendJSON(map[string]string{"type": "join_server", "name": "Host"})
	host.ReadUntil("connection_established", readTimeout)
	host.SendJSON(map[string]string{"type": "create_room"})
	code := host.ReadUntil("room_created", readTimeout)["roomCode"].(string)

	guest := testutil.NewWSClient(t, url)
	guest.Next(readTimeout)
	guest.SendJSON(map[string]string{"type": "join_server", "name": "Guest"})
	guest.ReadUntil("connection_established", readTimeout)
	guest.SendJSON(map[string]string{"type": "join_room", "roomCode": code})
	guest.ReadUntil("room_joined", readTimeout)
	host.ReadUntil("player_joined", readTimeout)

	guest.Close()
	msg := host.ReadUntil("player_disconnected", readTimeout)
	players := msg["players"].([]any)
	require.Len(t, players, 1)
	assert.Equal(t, false, players[0].(map[string]any)["connected"])

	waitFor(t, func() bool {
		_, _, connected := srv.Stats()
		return connected == 1
	})
}

func TestAcceptorStartAndStop(t *testing.T) {
	srv := newGameServer(t)
	acc := ws.NewAcceptor("127.0.0.1", testConfig(0), srv, zaptest.NewLogger(t))

	errCh := make(chan error, 1)
	go func() {
		errCh <- acc.ListenAndServe()
	}()

	waitFor(t, func() bool { return acc.IsRunning() && acc.Addr() != "" })

	client := testutil.NewWSClient(t, "ws://"+acc.Addr()+"/ws")
	assert.Equal(t, "connected", client.Next(readTimeout)["type"])

	acc.Stop()
	assert.False(t, acc.IsRunning())

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("ListenAndServe did not return after Stop")
	}

	waitFor(t, func() bool {
		_, _, connected := srv.Stats()
		return connected == 0
	})
}

func TestAcceptorRoutesOnlyUpgradeGets(t *testing.T) {
	srv := newGameServer(t)
	acc := ws.NewAcceptor("127.0.0.1", testConfig(0), srv, zaptest.NewLogger(t))
	hs := httptest.NewServer(acc.Handler())
	t.Cleanup(hs.Close)

	resp, err := http.Post(hs.URL+"/ws", "application/json", strings.NewReader("{}"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)

	resp, err = http.Get(hs.URL + "/elsewhere")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = http.Get(hs.URL + "/ws")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "plain GET without upgrade headers")
}
