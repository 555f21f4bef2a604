package protocol

import (
	"encoding/binary"
	"fmt"
)

// HandshakeRequest is the first frame a peer sends after the socket upgrade,
// before it is promoted to host-role or client-role.
type HandshakeRequest struct {
	GameID        string
	RoomID        string
	RuleVariation uint16
	CreateRoom    bool
}

// maxStringFieldLen bounds a single string field so a corrupt or hostile
// frame cannot make the decoder allocate unbounded memory.
const maxStringFieldLen = 4096

// EncodeHandshakeRequest serializes a HandshakeRequest as a self-delimiting
// byte stream: length-prefixed strings followed by the fixed-width fields.
func EncodeHandshakeRequest(req HandshakeRequest) []byte {
	buf := make([]byte, 0, 4+len(req.GameID)+4+len(req.RoomID)+2+1)
	buf = appendLengthPrefixed(buf, req.GameID)
	buf = appendLengthPrefixed(buf, req.RoomID)
	var ruleBuf [2]byte
	binary.BigEndian.PutUint16(ruleBuf[:], req.RuleVariation)
	buf = append(buf, ruleBuf[:]...)
	if req.CreateRoom {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}
	return buf
}

// DecodeHandshakeRequest parses the byte stream EncodeHandshakeRequest produces.
func DecodeHandshakeRequest(data []byte) (HandshakeRequest, error) {
	var req HandshakeRequest

	gameID, rest, err := readLengthPrefixed(data)
	if err != nil {
		return req, fmt.Errorf("protocol: decode game_id: %w", err)
	}
	roomID, rest, err := readLengthPrefixed(rest)
	if err != nil {
		return req, fmt.Errorf("protocol: decode room_id: %w", err)
	}
	if len(rest) < 3 {
		return req, fmt.Errorf("protocol: handshake request truncated, need 3 trailing bytes, got %d", len(rest))
	}

	req.GameID = gameID
	req.RoomID = roomID
	req.RuleVariation = binary.BigEndian.Uint16(rest[0:2])
	req.CreateRoom = rest[2] != 0
	return req, nil
}

func appendLengthPrefixed(buf []byte, s string) []byte {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(s)))
	buf = append(buf, lenBuf[:]...)
	buf = append(buf, s...)
	return buf
}

func readLengthPrefixed(data []byte) (value string, rest []byte, err error) {
	if len(data) < 4 {
		return "", nil, fmt.Errorf("need 4 length bytes, have %d", len(data))
	}
	n := binary.BigEndian.Uint32(data[0:4])
	if n > maxStringFieldLen {
		return "", nil, fmt.Errorf("field length %d exceeds max %d", n, maxStringFieldLen)
	}
	data = data[4:]
	if uint32(len(data)) < n {
		return "", nil, fmt.Errorf("need %d bytes, have %d", n, len(data))
	}
	return string(data[:n]), data[n:], nil
}
