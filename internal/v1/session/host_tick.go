package session

import (
	"github.com/Carbonfreezer/multiplayer/internal/v1/backend"
	"github.com/Carbonfreezer/multiplayer/internal/v1/protocol"
)

// tickHost runs one frame of the host's event loop: timers, then the local
// RPC queue, then inbound relay frames, then whatever the backend queued in
// response, in that fixed order.
func (s *Session[Rpc, Delta, ViewState]) tickHost(deltaSeconds float64) {
	for _, timerID := range s.timer.Tick(deltaSeconds) {
		s.backend.TimerTriggered(timerID)
	}

	for _, rpc := range s.rpcQueue {
		s.backend.InformRPC(0, rpc)
	}
	s.rpcQueue = nil

	clientJoined, err := s.hostIngestInbound()
	if err != nil {
		s.markError(err.Error())
		return
	}

	retained, terminated := s.hostApplyCommands(s.backend.DrainCommands())
	if terminated {
		return
	}

	if s.hostResolveReset(retained) {
		return
	}

	s.hostResolveDeltas(retained, clientJoined)
}

// hostIngestInbound processes every frame waiting from the relay, feeding
// joins, departures and RPCs to the backend. It returns whether a client
// joined this tick.
func (s *Session[Rpc, Delta, ViewState]) hostIngestInbound() (clientJoined bool, err error) {
	frames, linkErr := s.link.drainAll()
	if linkErr != nil {
		return false, linkErr
	}

	for _, data := range frames {
		if len(data) == 0 {
			return false, errEmptyFrame
		}
		switch data[0] {
		case protocol.NewClient:
			id, decErr := protocol.DecodePlayerID(data)
			if decErr != nil {
				return false, decErr
			}
			s.backend.PlayerArrival(id)
			s.remoteCount++
			clientJoined = true
		case protocol.ClientDisconnects:
			id, decErr := protocol.DecodePlayerID(data)
			if decErr != nil {
				return false, decErr
			}
			s.backend.PlayerDeparture(id)
			s.remoteCount--
		case protocol.ServerRPC:
			id, decErr := protocol.DecodePlayerID(data)
			if decErr != nil {
				return false, decErr
			}
			payload, decErr := s.codec.DecodeRpc(data[3:])
			if decErr != nil {
				return false, decErr
			}
			s.backend.InformRPC(id, payload)
		default:
			return false, errIllegalInternalCommand
		}
	}
	return clientJoined, nil
}

// hostApplyCommands handles every command that acts immediately (timers,
// kicks, termination) and returns the rest (deltas and resets) for the
// caller to resolve. terminated is true once TerminateRoom has fired, in
// which case the tick is already over.
func (s *Session[Rpc, Delta, ViewState]) hostApplyCommands(commands []backend.Command[Delta]) (retained []backend.Command[Delta], terminated bool) {
	for _, cmd := range commands {
		switch cmd.Kind {
		case backend.TerminateRoomCommand:
			_ = s.link.write(protocol.EncodeServerDisconnects())
			s.markError("Critical player left.")
			return nil, true
		case backend.SetTimerCommand:
			s.timer.Set(cmd.TimerID, cmd.Duration)
		case backend.CancelTimerCommand:
			s.timer.Cancel(cmd.TimerID)
		case backend.KickPlayerCommand:
			if s.remoteCount > 0 {
				_ = s.link.write(protocol.EncodeClientGetsKicked(cmd.Player))
			}
		default:
			retained = append(retained, cmd)
		}
	}
	return retained, false
}

// hostResolveReset checks for a ResetViewState command among the retained
// ones. If present, it wins over every other retained command this tick: a
// full resync is broadcast and enqueued locally, skipping delta handling
// entirely.
func (s *Session[Rpc, Delta, ViewState]) hostResolveReset(retained []backend.Command[Delta]) bool {
	hasReset := false
	for _, cmd := range retained {
		if cmd.Kind == backend.ResetViewStateCommand {
			hasReset = true
			break
		}
	}
	if !hasReset {
		return false
	}

	viewState := s.backend.CurrentViewState()
	if s.remoteCount > 0 {
		_ = s.link.write(protocol.EncodeReset(s.codec.EncodeViewState(viewState)))
	}
	s.updateQueue = append(s.updateQueue, Full[ViewState, Delta](viewState))
	return true
}

// hostResolveDeltas enqueues every retained Delta locally and, if there are
// remote players, broadcasts them concatenated in a single DELTA_UPDATE. The
// full sync for a joiner this tick is sent last, so it reflects the state
// after every other command has already applied.
func (s *Session[Rpc, Delta, ViewState]) hostResolveDeltas(retained []backend.Command[Delta], clientJoined bool) {
	var deltaBytes []byte
	for _, cmd := range retained {
		if cmd.Kind == backend.DeltaCommand {
			s.updateQueue = append(s.updateQueue, Incremental[ViewState, Delta](cmd.Delta))
			deltaBytes = append(deltaBytes, s.codec.EncodeDelta(cmd.Delta)...)
		}
	}

	if s.remoteCount == 0 {
		return
	}

	if len(deltaBytes) > 0 {
		_ = s.link.write(protocol.EncodeDeltaUpdate(deltaBytes))
	}
	if clientJoined {
		_ = s.link.write(protocol.EncodeFullUpdate(s.codec.EncodeViewState(s.backend.CurrentViewState())))
	}
}
