package lobby

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Carbonfreezer/multiplayer/internal/v1/bus"
	"github.com/Carbonfreezer/multiplayer/internal/v1/logging"
	"github.com/Carbonfreezer/multiplayer/internal/v1/metrics"
	"go.uber.org/zap"
)

// AppState is the process-wide registry of active rooms and the reloadable
// game catalog. There is exactly one instance per process; all mutation goes
// through its two locks, neither of which is ever held across network I/O.
type AppState struct {
	bufferSize int
	lobbyBus   *bus.Service

	roomsMu sync.Mutex
	rooms   map[string]*Room

	gamesMu sync.RWMutex
	games   map[string]uint16
}

// NewAppState constructs an empty registry. bufferSize sizes every room's
// host inbox and per-subscriber broadcast channels.
func NewAppState(bufferSize int, lobbyBus *bus.Service) *AppState {
	return &AppState{
		bufferSize: bufferSize,
		lobbyBus:   lobbyBus,
		rooms:      make(map[string]*Room),
		games:      make(map[string]uint16),
	}
}

// LoadCatalog reads the external game catalog at startup. A failure here is
// meant to be treated as fatal by the caller; there is no prior catalog to
// fall back on.
func (a *AppState) LoadCatalog(path string) error {
	games, err := loadCatalogFile(path)
	if err != nil {
		return err
	}
	a.gamesMu.Lock()
	a.games = games
	a.gamesMu.Unlock()
	return nil
}

// ReloadCatalog re-parses the catalog file and replaces the games map
// wholesale. On failure the previous catalog remains in force.
func (a *AppState) ReloadCatalog(path string) error {
	games, err := loadCatalogFile(path)
	if err != nil {
		return err
	}
	a.gamesMu.Lock()
	a.games = games
	a.gamesMu.Unlock()
	return nil
}

// GameMaxPlayers returns the configured cap for gameID and whether gameID is
// present in the catalog at all.
func (a *AppState) GameMaxPlayers(gameID string) (uint16, bool) {
	a.gamesMu.RLock()
	defer a.gamesMu.RUnlock()
	maxPlayers, ok := a.games[gameID]
	return maxPlayers, ok
}

// CreateRoom registers a new room for (gameID, roomID) with the host holding
// player id 0. Fails with ErrAlreadyExists if the composite key is taken.
func (a *AppState) CreateRoom(ctx context.Context, gameID, roomID string, ruleVariation uint16) (*Room, error) {
	key := CompositeKey(roomID, gameID)

	a.roomsMu.Lock()
	if _, exists := a.rooms[key]; exists {
		a.roomsMu.Unlock()
		return nil, ErrAlreadyExists
	}
	room := newRoom(gameID, roomID, ruleVariation, a.bufferSize)
	a.rooms[key] = room
	a.roomsMu.Unlock()

	metrics.ActiveRooms.Inc()
	metrics.RoomPlayers.WithLabelValues(key).Set(1)
	a.publishEvent(ctx, bus.Event{Kind: bus.EventRoomCreated, CompositeKey: key, RoomID: roomID, GameID: gameID, PlayerCount: 1})
	return room, nil
}

// JoinRoom admits a new remote player into an existing room, enforcing the
// game's configured player cap (>= check, matching the inclusive-of-host
// count the cap was always meant to bound) and the id-exhaustion limit.
func (a *AppState) JoinRoom(ctx context.Context, gameID, roomID string) (playerID, ruleVariation uint16, room *Room, err error) {
	key := CompositeKey(roomID, gameID)
	maxPlayers, known := a.GameMaxPlayers(gameID)
	if !known {
		return 0, 0, nil, ErrUnknownGame
	}

	a.roomsMu.Lock()
	room, exists := a.rooms[key]
	if !exists {
		a.roomsMu.Unlock()
		return 0, 0, nil, ErrRoomMissing
	}

	room.mu.Lock()
	if maxPlayers != 0 && room.amountOfPlayers >= maxPlayers {
		room.mu.Unlock()
		a.roomsMu.Unlock()
		return 0, 0, nil, ErrRoomFull
	}
	id, idErr := room.assignNextClientID()
	if idErr != nil {
		room.mu.Unlock()
		a.roomsMu.Unlock()
		return 0, 0, nil, idErr
	}
	room.amountOfPlayers++
	ruleVariation = room.RuleVariation
	newCount := room.amountOfPlayers
	room.mu.Unlock()
	a.roomsMu.Unlock()

	metrics.RoomPlayers.WithLabelValues(key).Set(float64(newCount))
	a.publishEvent(ctx, bus.Event{Kind: bus.EventPlayerCount, CompositeKey: key, RoomID: roomID, GameID: gameID, PlayerCount: int(newCount)})
	return id, ruleVariation, room, nil
}

// RollbackJoin undoes JoinRoom's player-count increment. It is used when a
// joiner is admitted into the lobby but the host-side NEW_CLIENT delivery
// subsequently fails, so the join never truly completes.
func (a *AppState) RollbackJoin(ctx context.Context, gameID, roomID string) {
	key := CompositeKey(roomID, gameID)
	a.roomsMu.Lock()
	room, exists := a.rooms[key]
	a.roomsMu.Unlock()
	if !exists {
		return
	}
	room.mu.Lock()
	if room.amountOfPlayers > 0 {
		room.amountOfPlayers--
	}
	newCount := room.amountOfPlayers
	room.mu.Unlock()
	metrics.RoomPlayers.WithLabelValues(key).Set(float64(newCount))
	a.publishEvent(ctx, bus.Event{Kind: bus.EventPlayerCount, CompositeKey: key, RoomID: roomID, GameID: gameID, PlayerCount: int(newCount)})
}

// LeaveRoom decrements the room's player count. A no-op if the room is
// already gone (the host may have torn it down first).
func (a *AppState) LeaveRoom(ctx context.Context, gameID, roomID string) {
	key := CompositeKey(roomID, gameID)
	a.roomsMu.Lock()
	room, exists := a.rooms[key]
	a.roomsMu.Unlock()
	if !exists {
		return
	}

	room.mu.Lock()
	if room.amountOfPlayers > 0 {
		room.amountOfPlayers--
	}
	newCount := room.amountOfPlayers
	room.mu.Unlock()

	metrics.RoomPlayers.WithLabelValues(key).Set(float64(newCount))
	a.publishEvent(ctx, bus.Event{Kind: bus.EventPlayerCount, CompositeKey: key, RoomID: roomID, GameID: gameID, PlayerCount: int(newCount)})
}

// DestroyRoom removes the room entry entirely, called when its host departs.
func (a *AppState) DestroyRoom(ctx context.Context, gameID, roomID string) {
	key := CompositeKey(roomID, gameID)

	a.roomsMu.Lock()
	_, exists := a.rooms[key]
	delete(a.rooms, key)
	a.roomsMu.Unlock()

	if !exists {
		return
	}
	metrics.ActiveRooms.Dec()
	metrics.RoomPlayers.DeleteLabelValues(key)
	a.publishEvent(ctx, bus.Event{Kind: bus.EventRoomDestroyed, CompositeKey: key, RoomID: roomID, GameID: gameID})
}

// Lookup returns the room for (gameID, roomID), if any.
func (a *AppState) Lookup(gameID, roomID string) (*Room, bool) {
	key := CompositeKey(roomID, gameID)
	a.roomsMu.Lock()
	defer a.roomsMu.Unlock()
	room, ok := a.rooms[key]
	return room, ok
}

// Enlist returns one descriptive line per active room, for the plain-text
// admin dump endpoint.
func (a *AppState) Enlist() []string {
	a.roomsMu.Lock()
	defer a.roomsMu.Unlock()

	lines := make([]string, 0, len(a.rooms))
	for key, room := range a.rooms {
		room.mu.Lock()
		players := room.amountOfPlayers
		room.mu.Unlock()

		alive := true
		select {
		case <-room.HostDone():
			alive = false
		default:
		}
		lines = append(lines, fmt.Sprintf("%s rule_variation=%d players=%d alive=%t", key, room.RuleVariation, players, alive))
	}
	return lines
}

// Catalog returns one descriptive line per game in the current catalog, for
// the /reload endpoint's response body.
func (a *AppState) Catalog() []string {
	a.gamesMu.RLock()
	defer a.gamesMu.RUnlock()

	lines := make([]string, 0, len(a.games))
	for name, maxPlayers := range a.games {
		lines = append(lines, fmt.Sprintf("%s max_players=%d", name, maxPlayers))
	}
	return lines
}

func (a *AppState) publishEvent(ctx context.Context, ev bus.Event) {
	if a.lobbyBus == nil {
		return
	}
	if err := a.lobbyBus.Publish(ctx, ev); err != nil {
		logging.Warn(ctx, "failed to publish lobby event", zap.String("kind", string(ev.Kind)), zap.Error(err))
	}
}

// RunJanitor periodically sweeps rooms whose host has been marked gone
// (MarkHostGone was called) but which were never removed by DestroyRoom,
// removing them from the registry. A room whose MarkHostGone was never
// called is not swept. It blocks until ctx is cancelled.
func (a *AppState) RunJanitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.sweepZombieRooms(ctx)
		}
	}
}

func (a *AppState) sweepZombieRooms(ctx context.Context) {
	a.roomsMu.Lock()
	var zombies []string
	for key, room := range a.rooms {
		select {
		case <-room.HostDone():
			zombies = append(zombies, key)
		default:
		}
	}
	for _, key := range zombies {
		delete(a.rooms, key)
	}
	a.roomsMu.Unlock()

	for _, key := range zombies {
		logging.Warn(ctx, "janitor removed zombie room", zap.String("composite_key", key))
		metrics.ActiveRooms.Dec()
		metrics.RoomPlayers.DeleteLabelValues(key)
	}
}
