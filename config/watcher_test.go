// 角色文件监听器测试。
package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/personaflow/types"
)

func TestCharacterWatcherReloadsOnChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nova.json")
	require.NoError(t, os.WriteFile(path,
		[]byte(`{"name": "Nova", "modelProvider": "openai"}`), 0o644))

	w, err := NewCharacterWatcher(path,
		WithPollInterval(10*time.Millisecond),
		WithDebounceDelay(5*time.Millisecond),
	)
	require.NoError(t, err)

	reloaded := make(chan *types.Character, 1)
	w.OnReload(func(c *types.Character) {
		select {
		case reloaded <- c:
		default:
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	defer func() { require.NoError(t, w.Stop()) }()
	assert.True(t, w.IsRunning())

	// 轮询按修改时间判断变更, 回拨一秒保证 mtime 前进
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, os.WriteFile(path,
		[]byte(`{"name": "Nova Prime", "modelProvider": "openai"}`), 0o644))
	future := time.Now().Add(2 * time.Second)
	require.NoError(t, os.Chtimes(path, future, future))

	select {
	case c := <-reloaded:
		assert.Equal(t, "Nova Prime", c.Name)
	case <-time.After(3 * time.Second):
		t.Fatal("watcher did not reload in time")
	}
}

func TestCharacterWatcherKeepsLastGoodOnParseError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nova.json")
	require.NoError(t, os.WriteFile(path,
		[]byte(`{"name": "Nova", "modelProvider": "openai"}`), 0o644))

	w, err := NewCharacterWatcher(path,
		WithPollInterval(10*time.Millisecond),
		WithDebounceDelay(5*time.Millisecond),
	)
	require.NoError(t, err)

	var reloads int
	w.OnReload(func(*types.Character) { reloads++ })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	defer func() { require.NoError(t, w.Stop()) }()

	require.NoError(t, os.WriteFile(path, []byte(`{broken json`), 0o644))
	future := time.Now().Add(2 * time.Second)
	require.NoError(t, os.Chtimes(path, future, future))

	time.Sleep(100 * time.Millisecond)
	assert.Zero(t, reloads)
}

func TestCharacterWatcherMissingFileIsNotFatal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ghost.json")
	w, err := NewCharacterWatcher(path)
	require.NoError(t, err)
	assert.False(t, w.IsRunning())
}

func TestCharacterWatcherDoubleStartFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nova.json")
	require.NoError(t, os.WriteFile(path,
		[]byte(`{"name": "Nova", "modelProvider": "openai"}`), 0o644))

	w, err := NewCharacterWatcher(path)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, w.Start(ctx))
	defer func() { require.NoError(t, w.Stop()) }()
	require.Error(t, w.Start(ctx))
}
