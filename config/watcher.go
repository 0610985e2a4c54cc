// 角色文件变更监听器.
//
// 轮询角色定义文件的修改时间, 变更后去抖并重新加载, 把解析结果交给
// 回调. 解析失败只告警, 不会把坏文件推给回调.
package config

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/personaflow/types"
)

// CharacterWatcher 监听单个角色文件并在变更后重新加载.
type CharacterWatcher struct {
	mu sync.RWMutex

	path          string
	pollInterval  time.Duration
	debounceDelay time.Duration

	running  bool
	stopChan chan struct{}

	callbacks []func(*types.Character)

	logger *zap.Logger

	lastModTime time.Time
}

// CharacterWatcherOption 配置 CharacterWatcher
type CharacterWatcherOption func(*CharacterWatcher)

// WithPollInterval 设置轮询间隔
func WithPollInterval(d time.Duration) CharacterWatcherOption {
	return func(w *CharacterWatcher) {
		w.pollInterval = d
	}
}

// WithDebounceDelay 设置去抖延迟
func WithDebounceDelay(d time.Duration) CharacterWatcherOption {
	return func(w *CharacterWatcher) {
		w.debounceDelay = d
	}
}

// WithWatcherLogger 设置日志器
func WithWatcherLogger(logger *zap.Logger) CharacterWatcherOption {
	return func(w *CharacterWatcher) {
		w.logger = logger
	}
}

// NewCharacterWatcher 创建角色文件监听器. 文件暂不存在不是错误,
// 创建后第一次轮询会触发加载.
func NewCharacterWatcher(path string, opts ...CharacterWatcherOption) (*CharacterWatcher, error) {
	w := &CharacterWatcher{
		path:          path,
		pollInterval:  time.Second,
		debounceDelay: 100 * time.Millisecond,
		stopChan:      make(chan struct{}),
		callbacks:     make([]func(*types.Character), 0),
		logger:        zap.NewNop(),
	}

	for _, opt := range opts {
		opt(w)
	}

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			w.logger.Warn("角色文件不存在, 等待创建", zap.String("path", path))
		} else {
			return nil, fmt.Errorf("failed to stat character file %s: %w", path, err)
		}
	}

	return w, nil
}

// OnReload 注册重新加载成功后的回调
func (w *CharacterWatcher) OnReload(callback func(*types.Character)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callbacks = append(w.callbacks, callback)
}

// Start 开始监听
func (w *CharacterWatcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("watcher already running")
	}
	w.running = true
	w.mu.Unlock()

	if info, err := os.Stat(w.path); err == nil {
		w.lastModTime = info.ModTime()
	}

	go w.pollLoop(ctx)

	w.logger.Info("角色文件监听已启动",
		zap.String("path", w.path),
		zap.Duration("poll_interval", w.pollInterval),
	)
	return nil
}

// Stop 停止监听
func (w *CharacterWatcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return nil
	}

	close(w.stopChan)
	w.running = false

	w.logger.Info("角色文件监听已停止")
	return nil
}

// IsRunning 返回监听器是否在运行
func (w *CharacterWatcher) IsRunning() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.running
}

func (w *CharacterWatcher) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopChan:
			return
		case <-ticker.C:
			if w.checkFile() {
				// 去抖: 等编辑器完成写入再重载
				time.Sleep(w.debounceDelay)
				w.reload()
			}
		}
	}
}

// checkFile 检查文件修改时间, 变化时返回 true.
func (w *CharacterWatcher) checkFile() bool {
	info, err := os.Stat(w.path)
	if err != nil {
		return false
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if info.ModTime().After(w.lastModTime) {
		w.lastModTime = info.ModTime()
		return true
	}
	return false
}

// reload 重新加载角色文件并调度回调. 坏文件只告警, 保持上一个有效角色.
func (w *CharacterWatcher) reload() {
	character, err := LoadCharacter(w.path)
	if err != nil {
		w.logger.Warn("角色文件重新加载失败, 保留当前角色",
			zap.String("path", w.path),
			zap.Error(err),
		)
		return
	}

	w.mu.RLock()
	callbacks := make([]func(*types.Character), len(w.callbacks))
	copy(callbacks, w.callbacks)
	w.mu.RUnlock()

	w.logger.Info("角色文件已重新加载",
		zap.String("path", w.path),
		zap.String("character", character.Name),
	)
	for _, cb := range callbacks {
		cb(character)
	}
}
