// Package backendtest provides a minimal in-memory backend.Backend double
// used only by the session-transport tests. It carries no actual game
// logic: counting players and echoing RPCs back as deltas is enough to
// exercise every command kind the host tick handles.
package backendtest

import "github.com/Carbonfreezer/multiplayer/internal/v1/backend"

// Action is the RPC payload this double accepts.
type Action struct {
	Kind    string
	Player  uint16
	Payload int
}

// Delta is the incremental change this double emits.
type Delta struct {
	Player uint16
	Score  int
}

// View is the full snapshot this double emits.
type View struct {
	RuleVariation uint16
	Scores        map[uint16]int
}

// Backend counts players and turns "score" RPCs into deltas. An "evict" RPC
// emits a KickPlayer command and a "terminate" RPC emits TerminateRoom, so
// tests can drive every command kind through the same double.
type Backend struct {
	ruleVariation uint16
	scores        map[uint16]int
	commands      []backend.Command[Delta]
}

// New builds a fresh Backend for the given rule variation, matching the
// Factory signature the session transport expects.
func New(ruleVariation uint16) backend.Backend[Action, Delta, View] {
	return &Backend{ruleVariation: ruleVariation, scores: make(map[uint16]int)}
}

func (b *Backend) PlayerArrival(player uint16) {
	b.scores[player] = 0
}

func (b *Backend) PlayerDeparture(player uint16) {
	delete(b.scores, player)
}

func (b *Backend) InformRPC(player uint16, action Action) {
	switch action.Kind {
	case "score":
		b.scores[player] += action.Payload
		b.commands = append(b.commands, backend.DeltaOf[Delta](Delta{Player: player, Score: b.scores[player]}))
	case "reset":
		for id := range b.scores {
			b.scores[id] = 0
		}
		b.commands = append(b.commands, backend.ResetViewState[Delta]())
	case "evict":
		b.commands = append(b.commands, backend.KickPlayer[Delta](action.Player))
	case "terminate":
		b.commands = append(b.commands, backend.TerminateRoom[Delta]())
	case "arm_timer":
		b.commands = append(b.commands, backend.SetTimer[Delta](uint16(action.Payload), 1))
	case "disarm_timer":
		b.commands = append(b.commands, backend.CancelTimer[Delta](uint16(action.Payload)))
	}
}

func (b *Backend) TimerTriggered(timerID uint16) {
	b.commands = append(b.commands, backend.DeltaOf[Delta](Delta{Player: timerID, Score: -1}))
}

func (b *Backend) CurrentViewState() View {
	snapshot := make(map[uint16]int, len(b.scores))
	for id, score := range b.scores {
		snapshot[id] = score
	}
	return View{RuleVariation: b.ruleVariation, Scores: snapshot}
}

func (b *Backend) DrainCommands() []backend.Command[Delta] {
	drained := b.commands
	b.commands = nil
	return drained
}
