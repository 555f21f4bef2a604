package session

import (
	"errors"

	"github.com/Carbonfreezer/multiplayer/internal/v1/backend"
	"github.com/Carbonfreezer/multiplayer/internal/v1/protocol"
	"github.com/Carbonfreezer/multiplayer/internal/v1/timerwheel"
)

// ErrNotDisconnected is returned by StartHost/StartClient when a room is
// already in progress.
var ErrNotDisconnected = errors.New("session: start requires the disconnected state")

// Session is the tick-driven entry point an embedding game creates once and
// advances once per frame. It is not safe for concurrent use; every method
// is expected to be called from the same goroutine that drives tick, per
// the single-threaded cooperative model the transport is specified under.
type Session[Rpc, Delta, ViewState any] struct {
	relayURL string
	gameID   string
	codec    Codec[Rpc, Delta, ViewState]
	newFrom  Factory[Rpc, Delta, ViewState]

	state   ConnectionState
	link    *link
	pending protocol.HandshakeRequest

	backend     backend.Backend[Rpc, Delta, ViewState]
	timer       *timerwheel.Wheel
	remoteCount uint16

	rpcQueue    []Rpc
	updateQueue []ViewStateUpdate[ViewState, Delta]
}

// Create builds a disconnected session bound to a relay endpoint and game.
func Create[Rpc, Delta, ViewState any](relayURL, gameID string, codec Codec[Rpc, Delta, ViewState], newFrom Factory[Rpc, Delta, ViewState]) *Session[Rpc, Delta, ViewState] {
	return &Session[Rpc, Delta, ViewState]{
		relayURL: relayURL,
		gameID:   gameID,
		codec:    codec,
		newFrom:  newFrom,
		state:    ConnectionState{Phase: Disconnected},
		timer:    timerwheel.New(),
	}
}

// StartHost opens a room as its host. Valid only while Disconnected.
func (s *Session[Rpc, Delta, ViewState]) StartHost(roomID string, ruleVariation uint16) error {
	if s.state.Phase != Disconnected {
		return ErrNotDisconnected
	}
	return s.connectionInitialize(roomID, ruleVariation, true)
}

// StartClient joins an existing room. Valid only while Disconnected.
func (s *Session[Rpc, Delta, ViewState]) StartClient(roomID string) error {
	if s.state.Phase != Disconnected {
		return ErrNotDisconnected
	}
	return s.connectionInitialize(roomID, 0, false)
}

func (s *Session[Rpc, Delta, ViewState]) connectionInitialize(roomID string, ruleVariation uint16, isHost bool) error {
	l, err := newLink(s.relayURL)
	if err != nil {
		s.markError(err.Error())
		return err
	}
	s.link = l
	s.pending = protocol.HandshakeRequest{
		GameID:        s.gameID,
		RoomID:        roomID,
		RuleVariation: ruleVariation,
		CreateRoom:    isHost,
	}
	s.state = ConnectionState{Phase: AwaitingHandshake}
	return nil
}

// Disconnect asks to leave the current room. Valid only while Connected.
func (s *Session[Rpc, Delta, ViewState]) Disconnect() {
	if s.state.Phase != Connected {
		return
	}
	if s.state.IsHost {
		_ = s.link.write(protocol.EncodeServerDisconnects())
	} else {
		_ = s.link.write(protocol.EncodeClientDisconnectsSelf())
	}
	s.markError("Disconnected from server")
}

// SubmitRPC enqueues a game action to be sent on the next tick.
func (s *Session[Rpc, Delta, ViewState]) SubmitRPC(payload Rpc) {
	s.rpcQueue = append(s.rpcQueue, payload)
}

// PollUpdate dequeues the next view-state update for the embedder to apply,
// if any is pending.
func (s *Session[Rpc, Delta, ViewState]) PollUpdate() (ViewStateUpdate[ViewState, Delta], bool) {
	if len(s.updateQueue) == 0 {
		var zero ViewStateUpdate[ViewState, Delta]
		return zero, false
	}
	u := s.updateQueue[0]
	s.updateQueue = s.updateQueue[1:]
	return u, true
}

// State returns the current connection state.
func (s *Session[Rpc, Delta, ViewState]) State() ConnectionState {
	return s.state
}

// Tick advances the state machine by one frame.
func (s *Session[Rpc, Delta, ViewState]) Tick(deltaSeconds float64) {
	switch s.state.Phase {
	case Disconnected:
		// Nothing to do here.
	case AwaitingHandshake:
		s.tickAwaiting()
	case ExecutingHandshake:
		s.tickHandshake()
	case Connected:
		if s.state.IsHost {
			s.tickHost(deltaSeconds)
		} else {
			s.tickClient()
		}
	}
}

func (s *Session[Rpc, Delta, ViewState]) markError(reason string) {
	if s.link != nil {
		s.link.close()
		s.link = nil
	}
	s.backend = nil
	s.remoteCount = 0
	s.state = ConnectionState{Phase: Disconnected, Error: reason}
}

func (s *Session[Rpc, Delta, ViewState]) tickAwaiting() {
	if err := s.link.write(protocol.EncodeHandshakeRequest(s.pending)); err != nil {
		s.markError(err.Error())
		return
	}
	s.state = ConnectionState{Phase: ExecutingHandshake}
}

func (s *Session[Rpc, Delta, ViewState]) tickHandshake() {
	data, err, ok := s.link.tryRecvOne()
	if err != nil {
		s.markError(err.Error())
		return
	}
	if !ok {
		return
	}
	if len(data) == 0 {
		s.markError("Illegal empty message received.")
		return
	}

	switch data[0] {
	case protocol.HandShakeResponse:
		playerID, ruleVariation, err := protocol.DecodeHandShakeResponse(data)
		if err != nil {
			s.markError(err.Error())
			return
		}
		isHost := s.pending.CreateRoom
		s.state = ConnectionState{Phase: Connected, IsHost: isHost, PlayerID: playerID, RuleVariation: ruleVariation}
		if isHost {
			be := s.newFrom(ruleVariation)
			be.PlayerArrival(0)
			s.backend = be
			s.updateQueue = append(s.updateQueue, Full[ViewState, Delta](be.CurrentViewState()))
		}
	case protocol.ServerError:
		s.markError(string(data[1:]))
	default:
		s.markError("Illegal message on client side received.")
	}
}
