package lobby

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func writeCatalog(t *testing.T, entries string) string {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "catalog-*.json")
	require.NoError(t, err)
	_, err = f.WriteString(entries)
	require.NoError(t, err)
	require.NoError(t, f.Close())
	return f.Name()
}

func newTestState(t *testing.T, catalog string) *AppState {
	t.Helper()
	a := NewAppState(256, nil)
	require.NoError(t, a.LoadCatalog(writeCatalog(t, catalog)))
	return a
}

func TestCompositeKey_RoomFirst(t *testing.T) {
	assert.Equal(t, "r1#Ternio", CompositeKey("r1", "Ternio"))
}

func TestCreateRoom_Uniqueness(t *testing.T) {
	a := newTestState(t, `[{"name":"Ternio","max_players":0}]`)
	ctx := context.Background()

	room, err := a.CreateRoom(ctx, "Ternio", "r1", 0)
	require.NoError(t, err)
	assert.Equal(t, uint16(1), room.PlayerCount())

	_, err = a.CreateRoom(ctx, "Ternio", "r1", 0)
	assert.ErrorIs(t, err, ErrAlreadyExists)
}

func TestJoinRoom_PlayerIDMonotonicityAndHostIsZero(t *testing.T) {
	a := newTestState(t, `[{"name":"Ternio","max_players":0}]`)
	ctx := context.Background()

	_, err := a.CreateRoom(ctx, "Ternio", "r1", 0)
	require.NoError(t, err)

	id1, _, _, err := a.JoinRoom(ctx, "Ternio", "r1")
	require.NoError(t, err)
	assert.Equal(t, uint16(1), id1)

	id2, _, _, err := a.JoinRoom(ctx, "Ternio", "r1")
	require.NoError(t, err)
	assert.Equal(t, uint16(2), id2)
}

func TestJoinRoom_Missing(t *testing.T) {
	a := newTestState(t, `[{"name":"Ternio","max_players":0}]`)
	_, _, _, err := a.JoinRoom(context.Background(), "Ternio", "ghost")
	assert.ErrorIs(t, err, ErrRoomMissing)
}

func TestJoinRoom_UnknownGame(t *testing.T) {
	a := newTestState(t, `[{"name":"Ternio","max_players":0}]`)
	_, _, _, err := a.JoinRoom(context.Background(), "NoSuchGame", "r1")
	assert.ErrorIs(t, err, ErrUnknownGame)
}

// Scenario S6: max_players=2 admits host + one joiner; the third join is refused.
func TestJoinRoom_CapacityRefusal(t *testing.T) {
	a := newTestState(t, `[{"name":"Ternio","max_players":2}]`)
	ctx := context.Background()

	_, err := a.CreateRoom(ctx, "Ternio", "r1", 0)
	require.NoError(t, err)

	_, _, _, err = a.JoinRoom(ctx, "Ternio", "r1")
	require.NoError(t, err)

	_, _, _, err = a.JoinRoom(ctx, "Ternio", "r1")
	assert.ErrorIs(t, err, ErrRoomFull)
}

func TestJoinRoom_UnboundedWhenMaxPlayersZero(t *testing.T) {
	a := newTestState(t, `[{"name":"Ternio","max_players":0}]`)
	ctx := context.Background()
	_, err := a.CreateRoom(ctx, "Ternio", "r1", 0)
	require.NoError(t, err)

	for i := 0; i < 50; i++ {
		_, _, _, err := a.JoinRoom(ctx, "Ternio", "r1")
		require.NoError(t, err)
	}
}

func TestLeaveRoom_ConservesPlayerCount(t *testing.T) {
	a := newTestState(t, `[{"name":"Ternio","max_players":0}]`)
	ctx := context.Background()
	room, err := a.CreateRoom(ctx, "Ternio", "r1", 0)
	require.NoError(t, err)

	_, _, _, err = a.JoinRoom(ctx, "Ternio", "r1")
	require.NoError(t, err)
	assert.Equal(t, uint16(2), room.PlayerCount())

	a.LeaveRoom(ctx, "Ternio", "r1")
	assert.Equal(t, uint16(1), room.PlayerCount())
}

func TestLeaveRoom_NoOpWhenRoomGone(t *testing.T) {
	a := newTestState(t, `[{"name":"Ternio","max_players":0}]`)
	a.LeaveRoom(context.Background(), "Ternio", "ghost")
}

func TestDestroyRoom_RemovesEntry(t *testing.T) {
	a := newTestState(t, `[{"name":"Ternio","max_players":0}]`)
	ctx := context.Background()
	_, err := a.CreateRoom(ctx, "Ternio", "r1", 0)
	require.NoError(t, err)

	a.DestroyRoom(ctx, "Ternio", "r1")
	_, ok := a.Lookup("Ternio", "r1")
	assert.False(t, ok)

	lines := a.Enlist()
	assert.Empty(t, lines)
}

func TestReloadCatalog_BadFileLeavesPriorCatalogIntact(t *testing.T) {
	a := newTestState(t, `[{"name":"Ternio","max_players":2}]`)
	err := a.ReloadCatalog("/nonexistent/path.json")
	assert.Error(t, err)

	maxPlayers, ok := a.GameMaxPlayers("Ternio")
	require.True(t, ok)
	assert.Equal(t, uint16(2), maxPlayers)
}

func TestReloadCatalog_ReplacesWholesale(t *testing.T) {
	a := newTestState(t, `[{"name":"Ternio","max_players":2}]`)
	newPath := writeCatalog(t, `[{"name":"Hexis","max_players":4}]`)
	require.NoError(t, a.ReloadCatalog(newPath))

	_, ok := a.GameMaxPlayers("Ternio")
	assert.False(t, ok)
	maxPlayers, ok := a.GameMaxPlayers("Hexis")
	require.True(t, ok)
	assert.Equal(t, uint16(4), maxPlayers)
}

func TestCatalog_ListsConfiguredGames(t *testing.T) {
	a := newTestState(t, `[{"name":"Ternio","max_players":2}]`)
	lines := a.Catalog()
	require.Len(t, lines, 1)
	assert.Equal(t, "Ternio max_players=2", lines[0])
}

func TestEnlist_ReportsPlayersAndLiveness(t *testing.T) {
	a := newTestState(t, `[{"name":"Ternio","max_players":0}]`)
	ctx := context.Background()
	_, err := a.CreateRoom(ctx, "Ternio", "r1", 3)
	require.NoError(t, err)

	lines := a.Enlist()
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], "rule_variation=3")
	assert.Contains(t, lines[0], "players=1")
	assert.Contains(t, lines[0], "alive=true")
}

func TestRoom_BroadcastEvictsLaggingSubscriber(t *testing.T) {
	a := newTestState(t, `[{"name":"Ternio","max_players":0}]`)
	ctx := context.Background()
	room, err := a.CreateRoom(ctx, "Ternio", "r1", 0)
	require.NoError(t, err)

	ch, subCtx := room.Subscribe(1, 1) // buffer of exactly 1

	room.Broadcast(ctx, []byte{0xAA}) // fills the buffer
	room.Broadcast(ctx, []byte{0xBB}) // channel full: subscriber gets evicted

	select {
	case <-subCtx.Done():
	default:
		t.Fatal("expected lagging subscriber's context to be cancelled")
	}
	assert.Len(t, ch, 1)
}

func TestRoom_KickTargetNoOpWhenHostAlone(t *testing.T) {
	a := newTestState(t, `[{"name":"Ternio","max_players":0}]`)
	ctx := context.Background()
	room, err := a.CreateRoom(ctx, "Ternio", "r1", 0)
	require.NoError(t, err)

	// No subscribers registered; KickTarget must not panic or block.
	room.KickTarget(ctx, 1)
}

func TestRunJanitor_SweepsZombieRoom(t *testing.T) {
	a := newTestState(t, `[{"name":"Ternio","max_players":0}]`)
	ctx := context.Background()
	room, err := a.CreateRoom(ctx, "Ternio", "r1", 0)
	require.NoError(t, err)

	room.MarkHostGone() // simulate a host teardown that stopped before DestroyRoom
	a.sweepZombieRooms(ctx)

	_, ok := a.Lookup("Ternio", "r1")
	assert.False(t, ok)
}
