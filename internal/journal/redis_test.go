package journal

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/xela07ax/spaceai-console/internal/presence"
)

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisStore(rdb), mr
}

func TestRedisStoreLunchRoundTrip(t *testing.T) {
	store, mr := newRedisStore(t)
	ctx := context.Background()

	captured := time.Date(2026, 3, 2, 12, 10, 0, 0, time.UTC)
	require.NoError(t, store.Save(ctx, presence.JustificationRecord{
		ID:           "j-1",
		Reason:       "lunch",
		CapturedAt:   captured,
		UserIdentity: "alice",
		IdleDuration: 10 * time.Minute,
	}))
	require.True(t, mr.Exists("justification_inactivity:alice"))

	got, err := store.Latest(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, "lunch", got.Reason)
	require.True(t, captured.Equal(got.CapturedAt))

	_, err = store.Latest(ctx, "bob")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestRedisStoreBatchKeepsLatestPerUser(t *testing.T) {
	store, _ := newRedisStore(t)
	ctx := context.Background()

	require.NoError(t, store.WriteBatch(ctx, []presence.JustificationRecord{
		{ID: "1", UserIdentity: "alice", Reason: "coffee"},
		{ID: "2", UserIdentity: "bob", Reason: "call"},
		{ID: "3", UserIdentity: "alice", Reason: "lunch"},
	}))

	got, err := store.Latest(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, "lunch", got.Reason)
}

func TestRedisStoreCorruptedRecord(t *testing.T) {
	store, mr := newRedisStore(t)
	require.NoError(t, mr.Set("justification_inactivity:alice", "{not json"))

	_, err := store.Latest(context.Background(), "alice")
	require.ErrorContains(t, err, "corrupted")
}
