// Package session implements the client-side session transport: the tick
// driven state machine an embedding game advances once per frame to move
// between lobby and connected play, polling view-state updates and
// submitting RPCs along the way.
package session

// Phase enumerates the connection lifecycle states.
type Phase int

const (
	// Disconnected means no active room; Error, if non-empty, explains why.
	Disconnected Phase = iota
	// AwaitingHandshake means the socket is open and the handshake request
	// still needs to be serialized and sent.
	AwaitingHandshake
	// ExecutingHandshake means the handshake request has been sent and we
	// are waiting for the relay's HAND_SHAKE_RESPONSE or SERVER_ERROR.
	ExecutingHandshake
	// Connected means the handshake succeeded; IsHost, PlayerID and
	// RuleVariation are meaningful.
	Connected
)

// ConnectionState is the value an embedding game inspects every frame to
// decide what to render and which operations are currently valid.
type ConnectionState struct {
	Phase Phase

	// Error explains the most recent disconnection. Only meaningful when
	// Phase == Disconnected, and empty on the very first, pre-connect state.
	Error string

	// IsHost, PlayerID and RuleVariation are only meaningful when
	// Phase == Connected. The host's PlayerID is always 0.
	IsHost        bool
	PlayerID      uint16
	RuleVariation uint16
}

// ViewStateUpdate is one state update polled by the embedder: either a
// complete snapshot to hard-set onto, or an incremental change to animate.
type ViewStateUpdate[ViewState, Delta any] struct {
	isFull bool
	full   ViewState
	delta  Delta
}

// Full builds a complete-snapshot update.
func Full[ViewState, Delta any](state ViewState) ViewStateUpdate[ViewState, Delta] {
	return ViewStateUpdate[ViewState, Delta]{isFull: true, full: state}
}

// Incremental builds an incremental update.
func Incremental[ViewState, Delta any](delta Delta) ViewStateUpdate[ViewState, Delta] {
	return ViewStateUpdate[ViewState, Delta]{delta: delta}
}

// IsFull reports whether this update is a full snapshot rather than a delta.
func (u ViewStateUpdate[ViewState, Delta]) IsFull() bool { return u.isFull }

// FullState returns the snapshot payload. Only meaningful when IsFull().
func (u ViewStateUpdate[ViewState, Delta]) FullState() ViewState { return u.full }

// Delta returns the incremental payload. Only meaningful when !IsFull().
func (u ViewStateUpdate[ViewState, Delta]) Delta() Delta { return u.delta }
