package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// ============================================================
// 🧠 内存适配器
// ============================================================

// MemoryAdapter 是进程内的 map 后端, 默认选择.
type MemoryAdapter struct {
	mu   sync.RWMutex
	data map[string]string
}

// NewMemoryAdapter 创建空的内存后端.
func NewMemoryAdapter() *MemoryAdapter {
	return &MemoryAdapter{data: make(map[string]string)}
}

func (a *MemoryAdapter) Name() string { return "memory" }

func (a *MemoryAdapter) Get(ctx context.Context, key string) (string, bool, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	v, ok := a.data[key]
	return v, ok, nil
}

func (a *MemoryAdapter) Set(ctx context.Context, key, value string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.data[key] = value
	return nil
}

func (a *MemoryAdapter) Delete(ctx context.Context, key string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.data, key)
	return nil
}

// Len 返回条目数, 仅测试用.
func (a *MemoryAdapter) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.data)
}

// ============================================================
// 📁 文件适配器
// ============================================================

// FileAdapter 把每个条目存成一个文件. 文件名取键的 sha256,
// 避免键里的路径分隔符逃出缓存目录.
type FileAdapter struct {
	dir string
}

// NewFileAdapter 创建文件后端, 目录不存在时创建.
func NewFileAdapter(dir string) (*FileAdapter, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir %q: %w", dir, err)
	}
	return &FileAdapter{dir: dir}, nil
}

func (a *FileAdapter) Name() string { return "file" }

func (a *FileAdapter) path(key string) string {
	sum := sha256.Sum256([]byte(key))
	return filepath.Join(a.dir, hex.EncodeToString(sum[:])+".json")
}

func (a *FileAdapter) Get(ctx context.Context, key string) (string, bool, error) {
	data, err := os.ReadFile(a.path(key))
	if os.IsNotExist(err) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return string(data), true, nil
}

func (a *FileAdapter) Set(ctx context.Context, key, value string) error {
	return os.WriteFile(a.path(key), []byte(value), 0o600)
}

func (a *FileAdapter) Delete(ctx context.Context, key string) error {
	err := os.Remove(a.path(key))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
