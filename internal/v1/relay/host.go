package relay

import (
	"context"
	"time"

	"github.com/Carbonfreezer/multiplayer/internal/v1/lobby"
	"github.com/Carbonfreezer/multiplayer/internal/v1/protocol"
	"github.com/gorilla/websocket"
)

// runHost drives a host's paired reader/writer until either side terminates.
// The socket is never closed here: whichever side is still running is
// unblocked (a pending read via a past-due deadline, a pending channel
// receive via stop) so the caller can still write a final teardown frame.
func runHost(conn *websocket.Conn, room *lobby.Room) string {
	stop := make(chan struct{})
	writerDone := make(chan string, 1)
	readerDone := make(chan string, 1)

	go func() { writerDone <- hostWriter(conn, room, stop) }()
	go func() { readerDone <- hostReader(conn, room) }()

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

// hostWriter drains the room's host inbox and writes each frame to the
// host's own socket: NEW_CLIENT, CLIENT_DISCONNECTS and SERVER_RPC are the
// only frames ever placed there by the relay.
func hostWriter(conn *websocket.Conn, room *lobby.Room, stop <-chan struct{}) string {
	for {
		select {
		case <-stop:
			return "Connection lost."
		case frame, ok := <-room.ToHostSender:
			if !ok {
				return "Internal channel closed."
			}
			if len(frame) == 0 {
				return "Illegal empty message received."
			}
			switch frame[0] {
			case protocol.NewClient, protocol.ClientDisconnects, protocol.ServerRPC:
			default:
				return "Unknown internal Client->Server command"
			}
			if err := conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
				return "Error in communication with server endpoint."
			}
		}
	}
}

// hostReader reads frames from the host's socket and rebroadcasts them to
// every subscribed client. CLIENT_GETS_KICKED, DELTA_UPDATE, FULL_UPDATE and
// RESET pass through verbatim; SERVER_DISCONNECTS ends the connection
// cleanly; anything else is a protocol violation.
func hostReader(conn *websocket.Conn, room *lobby.Room) string {
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
		if data[0] == protocol.ServerDisconnects {
			return "Server disconnected intentionally"
		}
		switch data[0] {
		case protocol.ClientGetsKicked, protocol.DeltaUpdate, protocol.FullUpdate, protocol.Reset:
		default:
			return "Illegal Server -> Client command."
		}
		room.Broadcast(context.Background(), data)
	}
}
