// Package handshake performs the first-frame negotiation that promotes a
// freshly upgraded WebSocket connection into either a room host or a room
// client, per the wire-ordered steps: read, decode, validate, create-or-join,
// respond.
package handshake

import (
	"context"
	"fmt"

	"github.com/Carbonfreezer/multiplayer/internal/v1/lobby"
	"github.com/Carbonfreezer/multiplayer/internal/v1/logging"
	"github.com/Carbonfreezer/multiplayer/internal/v1/metrics"
	"github.com/Carbonfreezer/multiplayer/internal/v1/protocol"
	"github.com/gorilla/websocket"
)

// Result describes a connection that completed the handshake successfully.
type Result struct {
	PlayerID      uint16
	IsHost        bool
	GameID        string
	RoomID        string
	RuleVariation uint16
	Room          *lobby.Room
}

// Perform runs the handshake to completion on conn. On any failure it sends a
// SERVER_ERROR frame followed by a close frame (best effort) and returns an
// error; the caller owns closing the underlying socket afterward.
func Perform(ctx context.Context, conn *websocket.Conn, state *lobby.AppState) (*Result, error) {
	req, err := readHandshakeRequest(conn)
	if err != nil {
		metrics.HandshakeOutcomes.WithLabelValues("malformed").Inc()
		sendClosingMessage(conn, "Initial error during handshake.")
		return nil, err
	}

	ctx = logging.WithGame(ctx, req.GameID)
	ctx = logging.WithRoom(ctx, req.RoomID)

	maxPlayers, gameExists := state.GameMaxPlayers(req.GameID)
	if !gameExists {
		metrics.HandshakeOutcomes.WithLabelValues("unknown_game").Inc()
		sendClosingMessage(conn, fmt.Sprintf("Unknown game %s.", req.GameID))
		return nil, fmt.Errorf("handshake: unknown game %q", req.GameID)
	}
	_ = maxPlayers // the cap is re-read from the catalog inside JoinRoom

	if req.CreateRoom {
		return performHost(ctx, conn, state, req)
	}
	return performClient(ctx, conn, state, req)
}

func performHost(ctx context.Context, conn *websocket.Conn, state *lobby.AppState, req protocol.HandshakeRequest) (*Result, error) {
	room, err := state.CreateRoom(ctx, req.GameID, req.RoomID, req.RuleVariation)
	if err != nil {
		metrics.HandshakeOutcomes.WithLabelValues("room_exists").Inc()
		sendClosingMessage(conn, fmt.Sprintf("Room %s already exists for game %s.", req.RoomID, req.GameID))
		return nil, err
	}

	if err := sendHandshakeResponse(conn, 0, req.RuleVariation); err != nil {
		state.DestroyRoom(ctx, req.GameID, req.RoomID)
		metrics.HandshakeOutcomes.WithLabelValues("response_failed").Inc()
		return nil, err
	}

	metrics.HandshakeOutcomes.WithLabelValues("host_created").Inc()
	logging.Info(ctx, "room created")
	return &Result{PlayerID: 0, IsHost: true, GameID: req.GameID, RoomID: req.RoomID, RuleVariation: req.RuleVariation, Room: room}, nil
}

func performClient(ctx context.Context, conn *websocket.Conn, state *lobby.AppState, req protocol.HandshakeRequest) (*Result, error) {
	playerID, ruleVariation, room, err := state.JoinRoom(ctx, req.GameID, req.RoomID)
	if err != nil {
		reason, label := joinErrorMessage(err, req, state)
		metrics.HandshakeOutcomes.WithLabelValues(label).Inc()
		sendClosingMessage(conn, reason)
		return nil, err
	}
	ctx = logging.WithPlayer(ctx, playerID)

	select {
	case room.ToHostSender <- protocol.EncodeNewClient(playerID):
	default:
		// The host's inbox is full: treat this exactly like the host having
		// vanished mid-handshake and roll the join back.
		state.RollbackJoin(ctx, req.GameID, req.RoomID)
		metrics.HandshakeOutcomes.WithLabelValues("host_unreachable").Inc()
		sendClosingMessage(conn, "Server unexpectedly left during handshake")
		return nil, fmt.Errorf("handshake: host inbox full for room %q", req.RoomID)
	}

	if err := sendHandshakeResponse(conn, playerID, ruleVariation); err != nil {
		metrics.HandshakeOutcomes.WithLabelValues("response_failed").Inc()
		return nil, err
	}

	metrics.HandshakeOutcomes.WithLabelValues("client_joined").Inc()
	logging.Info(ctx, "client joined room")
	return &Result{PlayerID: playerID, IsHost: false, GameID: req.GameID, RoomID: req.RoomID, RuleVariation: ruleVariation, Room: room}, nil
}

func joinErrorMessage(err error, req protocol.HandshakeRequest, state *lobby.AppState) (reason, label string) {
	switch err {
	case lobby.ErrRoomMissing:
		return fmt.Sprintf("Room %s does not exist for game %s.", req.RoomID, req.GameID), "room_missing"
	case lobby.ErrRoomFull:
		maxPlayers, _ := state.GameMaxPlayers(req.GameID)
		return fmt.Sprintf("Room %s exceeded max amount of players %d.", req.RoomID, maxPlayers), "room_full"
	case lobby.ErrIDExhausted:
		return fmt.Sprintf("Room %s run out of client ids.", req.RoomID), "id_exhausted"
	default:
		return "Failed to join room.", "join_failed"
	}
}

// readHandshakeRequest blocks for the first binary frame, silently ignoring
// any non-binary frames received before it, and decodes it.
func readHandshakeRequest(conn *websocket.Conn) (protocol.HandshakeRequest, error) {
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return protocol.HandshakeRequest{}, fmt.Errorf("handshake: read: %w", err)
		}
		if msgType != websocket.BinaryMessage {
			continue
		}
		req, err := protocol.DecodeHandshakeRequest(data)
		if err != nil {
			return protocol.HandshakeRequest{}, fmt.Errorf("handshake: decode: %w", err)
		}
		return req, nil
	}
}

func sendHandshakeResponse(conn *websocket.Conn, playerID, ruleVariation uint16) error {
	frame := protocol.EncodeHandShakeResponse(playerID, ruleVariation)
	if err := conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
		return fmt.Errorf("handshake: write response: %w", err)
	}
	return nil
}

// sendClosingMessage writes a SERVER_ERROR frame followed by a close frame,
// both best-effort; the caller has nothing useful to do with either error.
func sendClosingMessage(conn *websocket.Conn, reason string) {
	_ = conn.WriteMessage(websocket.BinaryMessage, protocol.EncodeServerError(reason))
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason))
}
