package relay

import (
	"context"
	"time"

	"github.com/Carbonfreezer/multiplayer/internal/v1/lobby"
	"github.com/Carbonfreezer/multiplayer/internal/v1/protocol"
	"github.com/gorilla/websocket"
)

// runClient drives a client's paired reader/writer until either side
// terminates. The socket is never closed here: whichever side is still
// running is unblocked (a pending read via a past-due deadline, a pending
// channel receive via stop) so the caller can still write a final teardown
// frame.
func runClient(conn *websocket.Conn, room *lobby.Room, playerID uint16) string {
	// The room's host inbox was created with the AppState's configured buffer
	// length; the broadcast subscription uses the same capacity.
	ch, subCtx := room.Subscribe(playerID, cap(room.ToHostSender))
	stop := make(chan struct{})

	writerDone := make(chan string, 1)
	readerDone := make(chan string, 1)

	go func() { writerDone <- clientWriter(conn, ch, subCtx, stop, playerID) }()
	go func() { readerDone <- clientReader(conn, room, playerID, stop) }()

	var reason string
	select {
	case reason = <-writerDone:
		_ = conn.SetReadDeadline(time.Now())
		<-readerDone
	case reason = <-readerDone:
		close(stop)
		<-writerDone
	}
	return reason
}

// clientReader reads frames from the client's socket and forwards them to
// the host's inbox. SERVER_RPC gets the sending player's id injected right
// after the tag byte; CLIENT_DISCONNECTS_SELF ends the connection cleanly.
// The forward is itself select'd against stop: a full or abandoned host
// inbox (host torn down, nothing left to drain it) must not leave this
// goroutine parked on the send forever once the writer side has already
// decided to end the connection.
func clientReader(conn *websocket.Conn, room *lobby.Room, playerID uint16, stop <-chan struct{}) string {
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return "Connection lost."
		}
		if msgType != websocket.BinaryMessage {
			continue
		}
		if len(data) == 0 {
			return "Illegal empty message received."
		}
		switch data[0] {
		case protocol.ServerRPC:
			select {
			case room.ToHostSender <- protocol.InjectPlayerID(data, playerID):
			case <-stop:
				return "Connection lost."
			}
		case protocol.ClientDisconnectsSelf:
			return "Client disconnected intentionally"
		default:
			return "Illegal Command from client"
		}
	}
}

// clientWriter delivers room broadcasts to this client, gating DELTA_UPDATE
// behind having seen at least one FULL_UPDATE or RESET first.
func clientWriter(conn *websocket.Conn, ch <-chan []byte, subCtx context.Context, stop <-chan struct{}, playerID uint16) string {
	isSynced := false
	for {
		select {
		case <-stop:
			return "Connection lost."
		case <-subCtx.Done():
			return "Lagging on internal channel - Computer too slow."
		case frame, ok := <-ch:
			if !ok {
				return "Internal channel closed."
			}
			if len(frame) == 0 {
				return "Illegal empty message received."
			}

			switch frame[0] {
			case protocol.ServerDisconnects:
				return "Server has left the game."
			case protocol.ClientGetsKicked:
				target, err := protocol.DecodePlayerID(frame)
				if err != nil {
					return "Malformed message received."
				}
				if target == playerID {
					return "We got rejected by server."
				}
				continue
			case protocol.DeltaUpdate:
				if !isSynced {
					continue
				}
			case protocol.FullUpdate:
				if isSynced {
					continue
				}
				isSynced = true
			case protocol.Reset:
				isSynced = true
			default:
				return "Illegal message on client side received."
			}

			if err := conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
				return "Error in communication with client endpoint."
			}
		}
	}
}
