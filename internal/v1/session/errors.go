package session

import "errors"

var (
	errEmptyFrame             = errors.New("session: illegal empty message received")
	errIllegalInternalCommand = errors.New("session: unknown internal command")
)
