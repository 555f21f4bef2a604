// Package relay implements the per-connection message router: once a
// connection has completed its handshake, relay owns forwarding raw binary
// frames between the socket and the room it joined, validating message
// types at every hop but never interpreting payloads.
package relay

import (
	"context"

	"github.com/Carbonfreezer/multiplayer/internal/v1/handshake"
	"github.com/Carbonfreezer/multiplayer/internal/v1/lobby"
	"github.com/Carbonfreezer/multiplayer/internal/v1/logging"
	"github.com/Carbonfreezer/multiplayer/internal/v1/metrics"
	"github.com/Carbonfreezer/multiplayer/internal/v1/protocol"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Handle runs a connection's router to completion and then performs its
// teardown. It blocks until the connection ends, for any reason.
func Handle(ctx context.Context, conn *websocket.Conn, res *handshake.Result, state *lobby.AppState) {
	ctx = logging.WithGame(ctx, res.GameID)
	ctx = logging.WithRoom(ctx, res.RoomID)
	if !res.IsHost {
		ctx = logging.WithPlayer(ctx, res.PlayerID)
	}

	metrics.ActiveConnections.Inc()
	defer metrics.ActiveConnections.Dec()

	var reason string
	if res.IsHost {
		reason = runHost(conn, res.Room)
	} else {
		reason = runClient(conn, res.Room, res.PlayerID)
	}

	metrics.RouterTeardowns.WithLabelValues(teardownLabel(reason)).Inc()
	logging.Info(ctx, "connection router exited", zap.Bool("is_host", res.IsHost), zap.String("reason", reason))

	teardown(ctx, conn, res, state, reason)
}

func teardown(ctx context.Context, conn *websocket.Conn, res *handshake.Result, state *lobby.AppState, reason string) {
	if res.IsHost {
		res.Room.Broadcast(ctx, protocol.EncodeServerDisconnects())
		res.Room.MarkHostGone()
		state.DestroyRoom(ctx, res.GameID, res.RoomID)
	} else {
		select {
		case res.Room.ToHostSender <- protocol.EncodeClientDisconnects(res.PlayerID):
		default:
			logging.Warn(ctx, "host inbox full during client teardown, dropping CLIENT_DISCONNECTS")
		}
		res.Room.Unsubscribe(res.PlayerID)
		state.LeaveRoom(ctx, res.GameID, res.RoomID)
	}

	_ = conn.WriteMessage(websocket.BinaryMessage, protocol.EncodeServerError(reason))
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason))
	_ = conn.Close()
}

func teardownLabel(reason string) string {
	switch reason {
	case "Server disconnected intentionally", "Client disconnected intentionally":
		return "intentional"
	case "Connection lost.":
		return "connection_lost"
	case "Lagging on internal channel - Computer too slow.":
		return "broadcast_lag"
	default:
		return "protocol_violation"
	}
}
