package session

import "github.com/Carbonfreezer/multiplayer/internal/v1/protocol"

// tickClient runs one frame of a client's event loop: flush the local RPC
// queue to the relay, then decode every inbound frame into a view-state
// update or a terminal error.
func (s *Session[Rpc, Delta, ViewState]) tickClient() {
	for _, rpc := range s.rpcQueue {
		if err := s.link.write(protocol.EncodeServerRPC(s.codec.EncodeRpc(rpc))); err != nil {
			s.markError(err.Error())
			return
		}
	}
	s.rpcQueue = nil

	frames, err := s.link.drainAll()
	if err != nil {
		s.markError(err.Error())
		return
	}

	for _, data := range frames {
		if len(data) == 0 {
			s.markError("Illegal empty message received.")
			return
		}
		switch data[0] {
		case protocol.DeltaUpdate:
			if !s.applyDeltaUpdate(data[1:]) {
				return
			}
		case protocol.FullUpdate, protocol.Reset:
			viewState, decErr := s.codec.DecodeViewState(data[1:])
			if decErr != nil {
				s.markError("Malformed message received.")
				return
			}
			s.updateQueue = append(s.updateQueue, Full[ViewState, Delta](viewState))
		case protocol.ServerError:
			s.markError(string(data[1:]))
			return
		default:
			s.markError("Illegal message on client side received.")
			return
		}
	}
}

// applyDeltaUpdate decodes a DELTA_UPDATE body as a concatenation of
// self-delimiting deltas, enqueuing each in turn. Returns false (having
// already called markError) on a malformed body.
func (s *Session[Rpc, Delta, ViewState]) applyDeltaUpdate(body []byte) bool {
	for len(body) > 0 {
		delta, rest, err := s.codec.DecodeDelta(body)
		if err != nil {
			s.markError("Malformed message received.")
			return false
		}
		s.updateQueue = append(s.updateQueue, Incremental[ViewState, Delta](delta))
		body = rest
	}
	return true
}
