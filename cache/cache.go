// Package cache 提供带 TTL 信封的分层缓存. 所有适配器只存字符串,
// 过期语义统一在 Manager 层实现: 读到过期条目时按未命中处理并惰性删除.
package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/BaSui01/personaflow/internal/metrics"
	"github.com/BaSui01/personaflow/types"
	"go.uber.org/zap"
)

// Adapter 是缓存后端的最小接口. Get 的第二个返回值表示键是否存在.
type Adapter interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Name() string
}

// envelope 是写入后端的统一信封. Expires 是 Unix 毫秒, 0 表示永不过期.
type envelope struct {
	Value   json.RawMessage `json:"value"`
	Expires int64           `json:"expires"`
}

// Manager 在任意 Adapter 之上提供按 agent 隔离的带 TTL 读写.
type Manager struct {
	adapter Adapter
	agentID types.UUID
	metrics *metrics.Collector
	logger  *zap.Logger
}

// NewManager 创建缓存管理器. 同一个后端可以被多个 agent 共享,
// 键空间按 agentID 前缀隔离.
func NewManager(adapter Adapter, agentID types.UUID, collector *metrics.Collector, logger *zap.Logger) *Manager {
	if collector == nil {
		collector = metrics.Nop()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		adapter: adapter,
		agentID: agentID,
		metrics: collector,
		logger:  logger.With(zap.String("component", "cache_manager")),
	}
}

func (m *Manager) namespaced(key string) string {
	return m.agentID.String() + "/" + key
}

// Get 读取并反序列化到 dest. 返回值表示是否命中; 过期条目按未命中
// 处理并惰性删除, 删除失败只记日志不向上传播.
func (m *Manager) Get(ctx context.Context, key string, dest any) (bool, error) {
	full := m.namespaced(key)
	raw, ok, err := m.adapter.Get(ctx, full)
	if err != nil {
		return false, err
	}
	if !ok {
		m.metrics.RecordCacheMiss(m.adapter.Name())
		return false, nil
	}

	var env envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		m.logger.Warn("缓存条目损坏, 按未命中处理",
			zap.String("key", key),
			zap.Error(err),
		)
		m.metrics.RecordCacheMiss(m.adapter.Name())
		return false, nil
	}

	if env.Expires > 0 && time.Now().UnixMilli() >= env.Expires {
		if derr := m.adapter.Delete(ctx, full); derr != nil {
			m.logger.Debug("过期条目删除失败",
				zap.String("key", key),
				zap.Error(derr),
			)
		}
		m.metrics.RecordCacheMiss(m.adapter.Name())
		return false, nil
	}

	if err := json.Unmarshal(env.Value, dest); err != nil {
		return false, types.NewError(types.ErrInternalError, "unmarshal cached value").WithCause(err)
	}
	m.metrics.RecordCacheHit(m.adapter.Name())
	return true, nil
}

// Set 序列化 value 并带 TTL 写入. ttl <= 0 表示永不过期.
func (m *Manager) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return types.NewError(types.ErrInternalError, "marshal cache value").WithCause(err)
	}
	env := envelope{Value: data}
	if ttl > 0 {
		env.Expires = time.Now().Add(ttl).UnixMilli()
	}
	raw, err := json.Marshal(&env)
	if err != nil {
		return types.NewError(types.ErrInternalError, "marshal cache envelope").WithCause(err)
	}
	return m.adapter.Set(ctx, m.namespaced(key), string(raw))
}

// Delete 删除键. 键不存在不算错误.
func (m *Manager) Delete(ctx context.Context, key string) error {
	return m.adapter.Delete(ctx, m.namespaced(key))
}
