package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/personaflow/database/memdb"
	"github.com/BaSui01/personaflow/types"
)

func allAdapters(t *testing.T) map[string]Adapter {
	t.Helper()

	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = redisClient.Close() })

	fileAdapter, err := NewFileAdapter(t.TempDir())
	require.NoError(t, err)

	return map[string]Adapter{
		"memory":   NewMemoryAdapter(),
		"file":     fileAdapter,
		"database": NewDBAdapter(memdb.New(), types.NewID()),
		"redis":    NewRedisAdapter(redisClient, ""),
	}
}

func TestManagerRoundTripAllAdapters(t *testing.T) {
	for name, adapter := range allAdapters(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			m := NewManager(adapter, types.NewID(), nil, zap.NewNop())

			type payload struct {
				Count int      `json:"count"`
				Tags  []string `json:"tags"`
			}

			require.NoError(t, m.Set(ctx, "stats", payload{Count: 3, Tags: []string{"a", "b"}}, 0))

			var got payload
			ok, err := m.Get(ctx, "stats", &got)
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, 3, got.Count)
			assert.Equal(t, []string{"a", "b"}, got.Tags)

			require.NoError(t, m.Delete(ctx, "stats"))
			ok, err = m.Get(ctx, "stats", &got)
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestManagerTTLExpiry(t *testing.T) {
	ctx := context.Background()
	adapter := NewMemoryAdapter()
	m := NewManager(adapter, types.NewID(), nil, zap.NewNop())

	require.NoError(t, m.Set(ctx, "ephemeral", "value", 20*time.Millisecond))

	var got string
	ok, err := m.Get(ctx, "ephemeral", &got)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "value", got)

	time.Sleep(30 * time.Millisecond)

	// expired: miss, and the stale entry is removed lazily
	ok, err = m.Get(ctx, "ephemeral", &got)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 0, adapter.Len())
}

func TestManagerZeroTTLNeverExpires(t *testing.T) {
	ctx := context.Background()
	m := NewManager(NewMemoryAdapter(), types.NewID(), nil, zap.NewNop())

	require.NoError(t, m.Set(ctx, "pinned", 42, 0))

	var got int
	ok, err := m.Get(ctx, "pinned", &got)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 42, got)
}

func TestManagerIsolatesAgents(t *testing.T) {
	ctx := context.Background()
	shared := NewMemoryAdapter()

	a := NewManager(shared, types.NewID(), nil, zap.NewNop())
	b := NewManager(shared, types.NewID(), nil, zap.NewNop())

	require.NoError(t, a.Set(ctx, "k", "from-a", 0))

	var got string
	ok, err := b.Get(ctx, "k", &got)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = a.Get(ctx, "k", &got)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "from-a", got)
}

func TestManagerCorruptEntryIsMiss(t *testing.T) {
	ctx := context.Background()
	adapter := NewMemoryAdapter()
	agentID := types.NewID()
	m := NewManager(adapter, agentID, nil, zap.NewNop())

	require.NoError(t, adapter.Set(ctx, agentID.String()+"/bad", "not json"))

	var got string
	ok, err := m.Get(ctx, "bad", &got)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFileAdapterSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	first, err := NewFileAdapter(dir)
	require.NoError(t, err)
	require.NoError(t, first.Set(ctx, "persisted/key", "data"))

	second, err := NewFileAdapter(dir)
	require.NoError(t, err)
	v, ok, err := second.Get(ctx, "persisted/key")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "data", v)
}
