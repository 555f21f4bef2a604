// Package lobby holds the in-memory registry of active rooms keyed by
// (game_id, room_id), plus the reloadable game-configuration catalog.
package lobby

import (
	"context"
	"fmt"
	"sync"

	"github.com/Carbonfreezer/multiplayer/internal/v1/logging"
	"github.com/Carbonfreezer/multiplayer/internal/v1/protocol"
	"go.uber.org/zap"
	"k8s.io/utils/set"
)

// CompositeKey builds the lobby's map key. Room id comes first, matching the
// ordering the original relay used when building its room registry key.
func CompositeKey(roomID, gameID string) string {
	return fmt.Sprintf("%s#%s", roomID, gameID)
}

// subscription is one client's broadcast fan-out handle.
type subscription struct {
	ch     chan []byte
	cancel context.CancelFunc
}

// Room represents one active session: one host plus zero or more clients.
type Room struct {
	GameID        string
	RoomID        string
	RuleVariation uint16

	mu              sync.Mutex
	nextClientID    uint16
	amountOfPlayers uint16
	subscriberIDs   set.Set[uint16]
	subscribers     map[uint16]subscription

	// ToHostSender is the point-to-point channel into the host's inbound queue.
	ToHostSender chan []byte

	// hostCtx is cancelled by MarkHostGone, which the host connection's
	// teardown calls once its router goroutines have exited; the janitor uses
	// it to sweep rooms that were marked gone but never destroyed.
	hostCtx    context.Context
	hostCancel context.CancelFunc
}

func newRoom(gameID, roomID string, ruleVariation uint16, bufferSize int) *Room {
	ctx, cancel := context.WithCancel(context.Background())
	return &Room{
		GameID:          gameID,
		RoomID:          roomID,
		RuleVariation:   ruleVariation,
		nextClientID:    1,
		amountOfPlayers: 1, // the host counts as a player
		subscriberIDs:   set.New[uint16](),
		subscribers:     make(map[uint16]subscription),
		ToHostSender:    make(chan []byte, bufferSize),
		hostCtx:         ctx,
		hostCancel:      cancel,
	}
}

// HostDone returns a channel closed when the host router goroutines have
// exited, used by the janitor to detect zombie rooms.
func (r *Room) HostDone() <-chan struct{} {
	return r.hostCtx.Done()
}

// MarkHostGone signals that the host connection's goroutines have exited.
func (r *Room) MarkHostGone() {
	r.hostCancel()
}

// PlayerCount returns the current number of connected remotes plus the host.
func (r *Room) PlayerCount() uint16 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.amountOfPlayers
}

// assignNextClientID allocates and returns the next player id, or an error if
// the room has exhausted the id space. Caller must hold r.mu.
func (r *Room) assignNextClientID() (uint16, error) {
	if r.nextClientID > protocol.MaxPlayerID {
		return 0, ErrIDExhausted
	}
	id := r.nextClientID
	r.nextClientID++
	return id, nil
}

// Subscribe registers playerID for broadcast fan-out. It returns the receive
// side of the subscriber's frame channel and a context cancelled only by an
// explicit Unsubscribe or lag eviction, never by the host's own departure,
// which is instead communicated as an ordinary SERVER_DISCONNECTS frame on
// the channel so it is never raced against the cancellation signal.
func (r *Room) Subscribe(playerID uint16, bufferSize int) (<-chan []byte, context.Context) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan []byte, bufferSize)

	r.mu.Lock()
	r.subscriberIDs.Insert(playerID)
	r.subscribers[playerID] = subscription{ch: ch, cancel: cancel}
	r.mu.Unlock()

	return ch, ctx
}

// Unsubscribe removes playerID's broadcast subscription.
func (r *Room) Unsubscribe(playerID uint16) {
	r.mu.Lock()
	sub, ok := r.subscribers[playerID]
	if ok {
		delete(r.subscribers, playerID)
		r.subscriberIDs.Delete(playerID)
	}
	r.mu.Unlock()
	if ok {
		sub.cancel()
	}
}

// Broadcast fans frame out to every current subscriber. A subscriber whose
// channel is full is evicted (its cancel func is invoked) rather than
// buffered further; broadcast lag is fatal for that subscriber only.
// Returns the number of subscribers the frame was delivered to.
func (r *Room) Broadcast(ctx context.Context, frame []byte) int {
	ctx = logging.WithRoom(ctx, r.RoomID)
	ctx = logging.WithGame(ctx, r.GameID)

	r.mu.Lock()
	subs := make(map[uint16]subscription, len(r.subscribers))
	for id, sub := range r.subscribers {
		subs[id] = sub
	}
	r.mu.Unlock()

	if len(subs) == 0 {
		logging.Warn(ctx, "broadcast to room with zero subscribers")
		return 0
	}

	delivered := 0
	for id, sub := range subs {
		select {
		case sub.ch <- frame:
			delivered++
		default:
			logging.Warn(ctx, "subscriber lagging on broadcast channel, disconnecting", zap.Uint16("player_id", id))
			sub.cancel()
			r.Unsubscribe(id)
		}
	}
	return delivered
}

// KickTarget broadcasts a CLIENT_GETS_KICKED frame for playerID. No-op if
// the room currently has no remote players.
func (r *Room) KickTarget(ctx context.Context, playerID uint16) {
	if r.PlayerCount() <= 1 {
		// Host-only room: nobody to kick.
		return
	}
	r.Broadcast(ctx, protocol.EncodeClientGetsKicked(playerID))
}
