// Package memory 实现带向量的记忆管理. 每个 Manager 绑定一张记忆表,
// 同一套协议服务消息、事实、知识片段等多种记忆.
package memory

import (
	"context"

	"github.com/BaSui01/personaflow/database"
	"github.com/BaSui01/personaflow/embedding"
	"github.com/BaSui01/personaflow/internal/metrics"
	"github.com/BaSui01/personaflow/types"
	"go.uber.org/zap"
)

// 向量检索的默认参数.
const (
	DefaultMatchThreshold = 0.1
	DefaultMatchCount     = 10
)

// Manager 管理一张记忆表的读写和向量化.
type Manager struct {
	db        database.Adapter
	embedder  embedding.Embedder
	tableName string
	agentID   types.UUID
	metrics   *metrics.Collector
	logger    *zap.Logger
}

// NewManager 创建记忆管理器.
func NewManager(db database.Adapter, embedder embedding.Embedder, tableName string, agentID types.UUID, collector *metrics.Collector, logger *zap.Logger) *Manager {
	if collector == nil {
		collector = metrics.Nop()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		db:        db,
		embedder:  embedder,
		tableName: tableName,
		agentID:   agentID,
		metrics:   collector,
		logger: logger.With(
			zap.String("component", "memory_manager"),
			zap.String("table", tableName),
		),
	}
}

// TableName 返回管理器绑定的记忆表名.
func (m *Manager) TableName() string { return m.tableName }

// AddEmbeddingToMemory 为记忆补上向量:
//   - 已有向量时什么都不做
//   - 数据库里有同文本的向量时直接复用
//   - 向量化失败时退化为全零占位, 记忆照常可存
//
// 空文本是调用方的编程错误, 直接报错.
func (m *Manager) AddEmbeddingToMemory(ctx context.Context, mem *types.Memory) (*types.Memory, error) {
	if len(mem.Embedding) > 0 {
		return mem, nil
	}
	if mem.Content.Text == "" {
		return nil, types.NewError(types.ErrEmptyContent, "cannot embed memory with empty content text")
	}

	if cached, err := m.db.GetCachedEmbeddings(ctx, m.tableName, mem.Content.Text); err == nil && len(cached) > 0 {
		mem.Embedding = cached
		return mem, nil
	}

	vecs, err := m.embedder.Embed(ctx, []string{mem.Content.Text})
	if err != nil {
		m.logger.Warn("向量化失败, 使用全零占位向量",
			zap.String("memoryId", mem.ID.String()),
			zap.Error(err),
		)
		m.metrics.RecordEmbedding(m.embedder.Name(), "fallback_zero")
		mem.Embedding = embedding.ZeroVector(m.embedder.Dimensions())
		return mem, nil
	}

	mem.Embedding = vecs[0]
	return mem, nil
}

// CreateMemory 写入一条记忆, 相同 ID 重复写入静默跳过.
func (m *Manager) CreateMemory(ctx context.Context, mem *types.Memory, unique bool) error {
	if mem.ID == (types.UUID{}) {
		return types.NewError(types.ErrInvalidRequest, "memory requires an id")
	}
	if mem.AgentID == (types.UUID{}) {
		mem.AgentID = m.agentID
	}
	return m.db.CreateMemory(ctx, m.tableName, mem, unique)
}

// GetMemories 按房间取最近的记忆.
func (m *Manager) GetMemories(ctx context.Context, roomID types.UUID, count int, unique bool) ([]types.Memory, error) {
	return m.db.GetMemories(ctx, database.GetMemoriesParams{
		RoomID:    roomID,
		TableName: m.tableName,
		Count:     count,
		Unique:    unique,
	})
}

// GetMemoryByID 按 ID 取单条记忆, 不存在时返回 nil.
func (m *Manager) GetMemoryByID(ctx context.Context, id types.UUID) (*types.Memory, error) {
	return m.db.GetMemoryByID(ctx, m.tableName, id)
}

// SearchOptions 是向量检索的可选参数.
type SearchOptions struct {
	RoomID         types.UUID
	MatchThreshold float64
	Count          int
	Unique         bool
}

// SearchMemoriesByEmbedding 按余弦相似度检索. 阈值和数量未指定时
// 用默认值 0.1 / 10.
func (m *Manager) SearchMemoriesByEmbedding(ctx context.Context, emb []float64, opts SearchOptions) ([]types.Memory, error) {
	threshold := opts.MatchThreshold
	if threshold <= 0 {
		threshold = DefaultMatchThreshold
	}
	count := opts.Count
	if count <= 0 {
		count = DefaultMatchCount
	}
	return m.db.SearchMemoriesByEmbedding(ctx, database.SearchMemoriesParams{
		TableName:      m.tableName,
		RoomID:         opts.RoomID,
		Embedding:      emb,
		MatchThreshold: threshold,
		Count:          count,
		Unique:         opts.Unique,
	})
}

// GetCachedEmbeddings 查询同文本已有的向量.
func (m *Manager) GetCachedEmbeddings(ctx context.Context, content string) ([]float64, error) {
	return m.db.GetCachedEmbeddings(ctx, m.tableName, content)
}

// RemoveMemory 删除单条记忆.
func (m *Manager) RemoveMemory(ctx context.Context, id types.UUID) error {
	return m.db.RemoveMemory(ctx, m.tableName, id)
}

// RemoveAllMemories 清空一个房间在本表的全部记忆.
func (m *Manager) RemoveAllMemories(ctx context.Context, roomID types.UUID) error {
	return m.db.RemoveAllMemories(ctx, m.tableName, roomID)
}

// CountMemories 统计房间内的记忆条数.
func (m *Manager) CountMemories(ctx context.Context, roomID types.UUID, unique bool) (int, error) {
	return m.db.CountMemories(ctx, m.tableName, roomID, unique)
}
