package session

import "github.com/Carbonfreezer/multiplayer/internal/v1/backend"

// Codec supplies the payload serialization the game embedding this transport
// chooses. Relay and lobby never see these types; only the session
// transport and the backend it drives depend on them. DecodeDelta must
// consume exactly one Delta's worth of bytes and return the remainder, since
// DELTA_UPDATE concatenates several encoded deltas in one frame.
type Codec[Rpc, Delta, ViewState any] struct {
	EncodeRpc func(Rpc) []byte
	DecodeRpc func([]byte) (Rpc, error)

	EncodeDelta func(Delta) []byte
	DecodeDelta func(data []byte) (value Delta, rest []byte, err error)

	EncodeViewState func(ViewState) []byte
	DecodeViewState func([]byte) (ViewState, error)
}

// Factory instantiates the host-side backend once a room's rule variation is
// known, right after the handshake response arrives.
type Factory[Rpc, Delta, ViewState any] func(ruleVariation uint16) backend.Backend[Rpc, Delta, ViewState]
