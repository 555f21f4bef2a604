package lobby

import "errors"

var (
	// ErrAlreadyExists is returned by CreateRoom when the composite key is in use.
	ErrAlreadyExists = errors.New("lobby: room already exists")
	// ErrRoomMissing is returned by JoinRoom when the composite key is unknown.
	ErrRoomMissing = errors.New("lobby: room does not exist")
	// ErrRoomFull is returned by JoinRoom when the room is at its game's player cap.
	ErrRoomFull = errors.New("lobby: room exceeded max amount of players")
	// ErrIDExhausted is returned by JoinRoom when the room's player-id space is spent.
	ErrIDExhausted = errors.New("lobby: room ran out of client ids")
	// ErrUnknownGame is returned when a handshake names a game absent from the catalog.
	ErrUnknownGame = errors.New("lobby: unknown game")
)
