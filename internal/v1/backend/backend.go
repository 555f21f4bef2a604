// Package backend describes the capability contract a client-hosted game
// implements to be driven by the session transport. The relay and lobby
// never import this package; it exists purely for the host-side tick loop
// in internal/v1/session to depend on, generic over whatever RPC, delta and
// view-state payload types the embedding game chooses.
package backend

// Backend is the event-driven game logic contract. It is instantiated once
// per hosted room with a rule variation and thereafter only ever touched by
// the session transport's host tick, never concurrently.
//
// Rpc is the payload type carried by SERVER_RPC frames, Delta is the
// incremental payload type carried by DELTA_UPDATE frames, and ViewState is
// the full-snapshot payload type carried by FULL_UPDATE/RESET frames. All
// three must be self-delimiting when serialized, since DELTA_UPDATE
// concatenates multiple encoded Delta values in one frame.
type Backend[Rpc, Delta, ViewState any] interface {
	// PlayerArrival is invoked once a new player has joined, including the
	// host itself as player 0 right after construction.
	PlayerArrival(player uint16)

	// PlayerDeparture is invoked once a player has left.
	PlayerDeparture(player uint16)

	// InformRPC delivers one decoded action from player to the backend.
	InformRPC(player uint16, payload Rpc)

	// TimerTriggered is invoked when a previously set timer has run out.
	TimerTriggered(timerID uint16)

	// CurrentViewState returns the current full snapshot. Every Delta the
	// backend queues via DrainCommands must already be reflected here.
	CurrentViewState() ViewState

	// DrainCommands returns and clears every command queued since the last
	// call. Called once per host tick.
	DrainCommands() []Command[Delta]
}

// Command is one instruction the backend hands back to the session
// transport to act on: broadcast something, manage a timer, evict a player,
// or terminate the room outright.
type Command[Delta any] struct {
	Kind Kind

	// Delta carries the incremental change for Kind == DeltaCommand.
	Delta Delta
	// TimerID carries the timer identifier for Kind == SetTimerCommand or
	// Kind == CancelTimerCommand.
	TimerID uint16
	// Duration carries the timer length in seconds for Kind == SetTimerCommand.
	Duration float64
	// Player carries the target player id for Kind == KickPlayerCommand.
	Player uint16
}

// Kind enumerates the variants a Command may carry.
type Kind int

const (
	// DeltaCommand queues an incremental view-state change for broadcast.
	DeltaCommand Kind = iota
	// ResetViewStateCommand discards any other retained commands this tick
	// and forces a full resync instead.
	ResetViewStateCommand
	// KickPlayerCommand evicts a player from the room.
	KickPlayerCommand
	// SetTimerCommand installs or replaces a named timer.
	SetTimerCommand
	// CancelTimerCommand removes a named timer.
	CancelTimerCommand
	// TerminateRoomCommand shuts the whole room down immediately.
	TerminateRoomCommand
)

// DeltaOf builds a DeltaCommand.
func DeltaOf[Delta any](d Delta) Command[Delta] {
	return Command[Delta]{Kind: DeltaCommand, Delta: d}
}

// ResetViewState builds a ResetViewStateCommand.
func ResetViewState[Delta any]() Command[Delta] {
	return Command[Delta]{Kind: ResetViewStateCommand}
}

// KickPlayer builds a KickPlayerCommand.
func KickPlayer[Delta any](player uint16) Command[Delta] {
	return Command[Delta]{Kind: KickPlayerCommand, Player: player}
}

// SetTimer builds a SetTimerCommand.
func SetTimer[Delta any](timerID uint16, duration float64) Command[Delta] {
	return Command[Delta]{Kind: SetTimerCommand, TimerID: timerID, Duration: duration}
}

// CancelTimer builds a CancelTimerCommand.
func CancelTimer[Delta any](timerID uint16) Command[Delta] {
	return Command[Delta]{Kind: CancelTimerCommand, TimerID: timerID}
}

// TerminateRoom builds a TerminateRoomCommand.
func TerminateRoom[Delta any]() Command[Delta] {
	return Command[Delta]{Kind: TerminateRoomCommand}
}
