// Package protocol defines the one-byte tag wire framing the relay imposes
// on every WebSocket binary frame, plus the handshake request/response codec.
// The relay never interprets game payloads beyond this framing.
package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ChannelBufferSize is the default capacity of the host inbox and broadcast
// channels. The channels themselves are sized from the buffer length passed
// to lobby.NewAppState, which cmd/relay also defaults to 256.
const ChannelBufferSize = 256

// Client -> relay -> host tags.
const (
	// NewClient announces a joining player (relay-injected, never sent by a client directly).
	NewClient byte = 0
	// ClientDisconnects announces a departing player (relay-injected).
	ClientDisconnects byte = 1
	// ServerRPC carries a client action; the relay inserts the player id after the tag.
	ServerRPC byte = 2
	// ClientDisconnectsSelf is sent by a client choosing to leave; the relay
	// translates it into ClientDisconnects before forwarding to the host.
	ClientDisconnectsSelf byte = 3
)

// Host -> relay -> client tags.
const (
	// ServerDisconnects closes every client connection in the room.
	ServerDisconnects byte = 0
	// ClientGetsKicked carries the target player id to evict.
	ClientGetsKicked byte = 1
	// DeltaUpdate carries a concatenation of encoded deltas.
	DeltaUpdate byte = 2
	// FullUpdate carries a single encoded view state snapshot.
	FullUpdate byte = 3
	// Reset carries a single encoded view state and forces resync.
	Reset byte = 4
	// ServerError carries a UTF-8 reason string.
	ServerError byte = 5
	// HandShakeResponse carries the assigned player id and rule variation.
	HandShakeResponse byte = 6
)

// Wire sizes of fixed-shape frame bodies (tag byte included).
const (
	NewClientMsgSize         = 3 // tag + u16
	ClientDisconnectMsgSize  = 3 // tag + u16
	ServerDisconnectMsgSize  = 1 // tag only
	HandShakeResponseMsgSize = 5 // tag + u16 + u16
	ClientIDSize             = 2
)

// MaxPlayerID is the highest player id the lobby will ever hand out; ids
// above this are refused as a safety limit against unbounded room growth.
const MaxPlayerID = 32700

var errShortFrame = errors.New("protocol: frame too short")

// EncodeNewClient builds a NEW_CLIENT frame for the host inbox.
func EncodeNewClient(playerID uint16) []byte {
	buf := make([]byte, NewClientMsgSize)
	buf[0] = NewClient
	binary.BigEndian.PutUint16(buf[1:], playerID)
	return buf
}

// EncodeClientDisconnects builds a CLIENT_DISCONNECTS frame for the host inbox.
func EncodeClientDisconnects(playerID uint16) []byte {
	buf := make([]byte, ClientDisconnectMsgSize)
	buf[0] = ClientDisconnects
	binary.BigEndian.PutUint16(buf[1:], playerID)
	return buf
}

// DecodePlayerID reads the u16 immediately following the tag byte.
// frame must be at least 3 bytes (tag + u16).
func DecodePlayerID(frame []byte) (uint16, error) {
	if len(frame) < 3 {
		return 0, errShortFrame
	}
	return binary.BigEndian.Uint16(frame[1:3]), nil
}

// InjectPlayerID rewrites a SERVER_RPC frame from a client by inserting the
// player id right after the tag byte: [tag][player_id hi][player_id lo][payload...].
func InjectPlayerID(frame []byte, playerID uint16) []byte {
	out := make([]byte, 0, len(frame)+2)
	out = append(out, frame[0])
	var idBuf [2]byte
	binary.BigEndian.PutUint16(idBuf[:], playerID)
	out = append(out, idBuf[:]...)
	out = append(out, frame[1:]...)
	return out
}

// EncodeServerDisconnects builds the tag-only SERVER_DISCONNECTS frame.
func EncodeServerDisconnects() []byte {
	return []byte{ServerDisconnects}
}

// EncodeClientGetsKicked builds a CLIENT_GETS_KICKED frame for the broadcast channel.
func EncodeClientGetsKicked(playerID uint16) []byte {
	buf := make([]byte, 3)
	buf[0] = ClientGetsKicked
	binary.BigEndian.PutUint16(buf[1:], playerID)
	return buf
}

// EncodeServerError builds a SERVER_ERROR frame carrying a UTF-8 reason.
func EncodeServerError(reason string) []byte {
	buf := make([]byte, 0, 1+len(reason))
	buf = append(buf, ServerError)
	buf = append(buf, reason...)
	return buf
}

// EncodeHandShakeResponse builds a HAND_SHAKE_RESPONSE frame.
func EncodeHandShakeResponse(playerID, ruleVariation uint16) []byte {
	buf := make([]byte, HandShakeResponseMsgSize)
	buf[0] = HandShakeResponse
	binary.BigEndian.PutUint16(buf[1:3], playerID)
	binary.BigEndian.PutUint16(buf[3:5], ruleVariation)
	return buf
}

// DecodeHandShakeResponse parses a HAND_SHAKE_RESPONSE frame's body.
func DecodeHandShakeResponse(frame []byte) (playerID, ruleVariation uint16, err error) {
	if len(frame) != HandShakeResponseMsgSize {
		return 0, 0, fmt.Errorf("protocol: handshake response must be %d bytes, got %d", HandShakeResponseMsgSize, len(frame))
	}
	playerID = binary.BigEndian.Uint16(frame[1:3])
	ruleVariation = binary.BigEndian.Uint16(frame[3:5])
	return playerID, ruleVariation, nil
}
