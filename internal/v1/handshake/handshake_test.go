package handshake

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/Carbonfreezer/multiplayer/internal/v1/lobby"
	"github.com/Carbonfreezer/multiplayer/internal/v1/protocol"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// newTestServer upgrades every incoming connection and hands it to onConn on
// its own goroutine, returning the dialable ws:// URL.
func newTestServer(t *testing.T, onConn func(*websocket.Conn)) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		go onConn(conn)
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func newTestState(t *testing.T, catalog string) *lobby.AppState {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "catalog-*.json")
	require.NoError(t, err)
	_, err = f.WriteString(catalog)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	state := lobby.NewAppState(256, nil)
	require.NoError(t, state.LoadCatalog(f.Name()))
	return state
}

// S1: host creates a room and receives player_id 0.
func TestPerform_HostCreatesRoom(t *testing.T) {
	state := newTestState(t, `[{"name":"Ternio","max_players":0}]`)
	resultCh := make(chan *Result, 1)
	errCh := make(chan error, 1)

	url := newTestServer(t, func(conn *websocket.Conn) {
		res, err := Perform(context.Background(), conn, state)
		resultCh <- res
		errCh <- err
	})

	conn := dial(t, url)
	req := protocol.HandshakeRequest{GameID: "Ternio", RoomID: "r1", RuleVariation: 0, CreateRoom: true}
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, protocol.EncodeHandshakeRequest(req)))

	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	playerID, ruleVariation, err := protocol.DecodeHandShakeResponse(data)
	require.NoError(t, err)
	assert.Equal(t, uint16(0), playerID)
	assert.Equal(t, uint16(0), ruleVariation)

	require.NoError(t, <-errCh)
	res := <-resultCh
	require.NotNil(t, res)
	assert.True(t, res.IsHost)
	assert.Equal(t, uint16(1), res.Room.PlayerCount())
}

// S2 (join phase): a client joins an already-created room and gets player_id 1.
func TestPerform_ClientJoinsRoom(t *testing.T) {
	state := newTestState(t, `[{"name":"Ternio","max_players":0}]`)
	ctx := context.Background()
	room, err := state.CreateRoom(ctx, "Ternio", "r1", 5)
	require.NoError(t, err)

	resultCh := make(chan *Result, 1)
	errCh := make(chan error, 1)
	url := newTestServer(t, func(conn *websocket.Conn) {
		res, err := Perform(ctx, conn, state)
		resultCh <- res
		errCh <- err
	})

	conn := dial(t, url)
	req := protocol.HandshakeRequest{GameID: "Ternio", RoomID: "r1", CreateRoom: false}
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, protocol.EncodeHandshakeRequest(req)))

	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	playerID, ruleVariation, err := protocol.DecodeHandShakeResponse(data)
	require.NoError(t, err)
	assert.Equal(t, uint16(1), playerID)
	assert.Equal(t, uint16(5), ruleVariation)

	require.NoError(t, <-errCh)
	res := <-resultCh
	require.NotNil(t, res)
	assert.False(t, res.IsHost)

	select {
	case frame := <-room.ToHostSender:
		id, err := protocol.DecodePlayerID(frame)
		require.NoError(t, err)
		assert.Equal(t, uint16(1), id)
	case <-time.After(time.Second):
		t.Fatal("expected NEW_CLIENT frame in host inbox")
	}
}

func TestPerform_UnknownGameRejected(t *testing.T) {
	state := newTestState(t, `[{"name":"Ternio","max_players":0}]`)
	errCh := make(chan error, 1)
	url := newTestServer(t, func(conn *websocket.Conn) {
		_, err := Perform(context.Background(), conn, state)
		errCh <- err
	})

	conn := dial(t, url)
	req := protocol.HandshakeRequest{GameID: "NoSuchGame", RoomID: "r1", CreateRoom: true}
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, protocol.EncodeHandshakeRequest(req)))

	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, protocol.ServerError, data[0])
	assert.Contains(t, string(data[1:]), "Unknown game")
	assert.Error(t, <-errCh)
}

// S6: capacity refusal.
func TestPerform_CapacityRefusal(t *testing.T) {
	state := newTestState(t, `[{"name":"Ternio","max_players":2}]`)
	ctx := context.Background()
	_, err := state.CreateRoom(ctx, "Ternio", "r1", 0)
	require.NoError(t, err)
	_, _, _, err = state.JoinRoom(ctx, "Ternio", "r1")
	require.NoError(t, err)

	errCh := make(chan error, 1)
	url := newTestServer(t, func(conn *websocket.Conn) {
		_, err := Perform(ctx, conn, state)
		errCh <- err
	})

	conn := dial(t, url)
	req := protocol.HandshakeRequest{GameID: "Ternio", RoomID: "r1", CreateRoom: false}
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, protocol.EncodeHandshakeRequest(req)))

	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, protocol.ServerError, data[0])
	assert.Contains(t, string(data[1:]), "exceeded max amount of players")
	assert.Error(t, <-errCh)
}

func TestPerform_RoomMissingForClient(t *testing.T) {
	state := newTestState(t, `[{"name":"Ternio","max_players":0}]`)
	errCh := make(chan error, 1)
	url := newTestServer(t, func(conn *websocket.Conn) {
		_, err := Perform(context.Background(), conn, state)
		errCh <- err
	})

	conn := dial(t, url)
	req := protocol.HandshakeRequest{GameID: "Ternio", RoomID: "ghost", CreateRoom: false}
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, protocol.EncodeHandshakeRequest(req)))

	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Contains(t, string(data[1:]), "does not exist for game")
	assert.Error(t, <-errCh)
}

func TestPerform_DuplicateRoomRejected(t *testing.T) {
	state := newTestState(t, `[{"name":"Ternio","max_players":0}]`)
	ctx := context.Background()
	_, err := state.CreateRoom(ctx, "Ternio", "r1", 0)
	require.NoError(t, err)

	errCh := make(chan error, 1)
	url := newTestServer(t, func(conn *websocket.Conn) {
		_, err := Perform(ctx, conn, state)
		errCh <- err
	})

	conn := dial(t, url)
	req := protocol.HandshakeRequest{GameID: "Ternio", RoomID: "r1", CreateRoom: true}
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, protocol.EncodeHandshakeRequest(req)))

	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Contains(t, string(data[1:]), "already exists for game")
	assert.Error(t, <-errCh)
}

func TestPerform_IgnoresNonBinaryBeforeHandshake(t *testing.T) {
	state := newTestState(t, `[{"name":"Ternio","max_players":0}]`)
	resultCh := make(chan *Result, 1)
	errCh := make(chan error, 1)
	url := newTestServer(t, func(conn *websocket.Conn) {
		res, err := Perform(context.Background(), conn, state)
		resultCh <- res
		errCh <- err
	})

	conn := dial(t, url)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("ignored")))
	req := protocol.HandshakeRequest{GameID: "Ternio", RoomID: "r1", CreateRoom: true}
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, protocol.EncodeHandshakeRequest(req)))

	_, _, err := conn.ReadMessage()
	require.NoError(t, err)
	require.NoError(t, <-errCh)
	require.NotNil(t, <-resultCh)
}
