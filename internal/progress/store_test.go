package progress

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewRedisStoreFromClient(client), mr
}

func TestRedisStore_SetGet(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	store.Set(ctx, "doc-1", Entry{
		Fraction: 0.45,
		Stage:    StageEmbedding,
		Message:  "embedding 3/10",
		Detail:   map[string]any{"resolved": float64(3), "total": float64(10)},
	})

	got, err := store.Get(ctx, "doc-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 0.45, got.Fraction)
	assert.Equal(t, StageEmbedding, got.Stage)
	assert.Equal(t, "embedding 3/10", got.Message)
	assert.Equal(t, float64(10), got.Detail["total"])
}

func TestRedisStore_OverwritesPerStage(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	store.Set(ctx, "doc-1", Entry{Fraction: 0.1, Stage: StageLoading})
	store.Set(ctx, "doc-1", Entry{Fraction: 0.25, Stage: StageParsing})

	got, err := store.Get(ctx, "doc-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, StageParsing, got.Stage)
}

func TestRedisStore_TTL(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	store.Set(ctx, "doc-1", Entry{Fraction: 0.5, Stage: StageEmbedding})
	assert.Equal(t, activeTTL, mr.TTL(key("doc-1")))

	store.Set(ctx, "doc-1", Entry{Fraction: 1, Stage: StageDone})
	assert.Equal(t, terminalTTL, mr.TTL(key("doc-1")))

	mr.FastForward(terminalTTL + time.Second)
	got, err := store.Get(ctx, "doc-1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRedisStore_GetMissing(t *testing.T) {
	store, _ := newTestStore(t)

	got, err := store.Get(context.Background(), "doc-unknown")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRedisStore_WriteFailureIsSilent(t *testing.T) {
	store, mr := newTestStore(t)
	mr.Close()

	// Must not panic or propagate the failure.
	store.Set(context.Background(), "doc-1", Entry{Fraction: 0.1, Stage: StageLoading})
}

func TestNoopStore(t *testing.T) {
	var store Store = NoopStore{}
	store.Set(context.Background(), "doc-1", Entry{Fraction: 1, Stage: StageDone})

	got, err := store.Get(context.Background(), "doc-1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestEntry_Terminal(t *testing.T) {
	assert.True(t, Entry{Stage: StageDone}.Terminal())
	assert.True(t, Entry{Stage: StageFailed}.Terminal())
	assert.False(t, Entry{Stage: StageEmbedding}.Terminal())
}
