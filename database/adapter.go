// Package database 定义持久层门面. 所有上层模块(记忆、知识、缓存、
// 运行时)只依赖 Adapter 接口, 具体实现可在内存库和 SQLite 之间切换.
package database

import (
	"context"
	"math"
	"time"

	"github.com/BaSui01/personaflow/types"
)

// 记忆表名. 同一条向量检索协议服务于多张表.
const (
	TableMessages  = "messages"
	TableFacts     = "facts"
	TableLore      = "lore"
	TableDocuments = "documents"
	TableFragments = "fragments"
)

// GetMemoriesParams 是按房间取记忆的参数.
type GetMemoriesParams struct {
	RoomID    types.UUID
	TableName string
	Count     int
	Unique    bool
	Start     *time.Time
	End       *time.Time
}

// SearchMemoriesParams 是向量相似检索的参数.
type SearchMemoriesParams struct {
	TableName      string
	RoomID         types.UUID
	Embedding      []float64
	MatchThreshold float64
	Count          int
	Unique         bool
}

// Adapter 是存储后端的统一门面.
//
// 记忆写入是精确一次语义: CreateMemory 对已存在的 ID 静默跳过.
// 全零向量是合法的占位嵌入, 不参与相似度排序但参与其它检索.
type Adapter interface {
	Init(ctx context.Context) error
	Close() error

	// ---- 记忆 ----
	GetMemories(ctx context.Context, p GetMemoriesParams) ([]types.Memory, error)
	GetMemoryByID(ctx context.Context, tableName string, id types.UUID) (*types.Memory, error)
	CreateMemory(ctx context.Context, tableName string, m *types.Memory, unique bool) error
	RemoveMemory(ctx context.Context, tableName string, id types.UUID) error
	RemoveAllMemories(ctx context.Context, tableName string, roomID types.UUID) error
	CountMemories(ctx context.Context, tableName string, roomID types.UUID, unique bool) (int, error)
	SearchMemoriesByEmbedding(ctx context.Context, p SearchMemoriesParams) ([]types.Memory, error)
	// GetCachedEmbeddings 按内容文本查已有嵌入, 避免重复向量化.
	GetCachedEmbeddings(ctx context.Context, tableName, content string) ([]float64, error)

	// ---- 目标 ----
	GetGoals(ctx context.Context, roomID types.UUID, userID *types.UUID, onlyInProgress bool, count int) ([]types.Goal, error)
	CreateGoal(ctx context.Context, g *types.Goal) error
	UpdateGoal(ctx context.Context, g *types.Goal) error
	UpdateGoalStatus(ctx context.Context, id types.UUID, status types.GoalStatus) error
	RemoveGoal(ctx context.Context, id types.UUID) error
	RemoveAllGoals(ctx context.Context, roomID types.UUID) error

	// ---- 账户 / 房间 / 参与者 ----
	CreateAccount(ctx context.Context, a *types.Account) error
	GetAccountByID(ctx context.Context, id types.UUID) (*types.Account, error)
	CreateRoom(ctx context.Context, id types.UUID) (types.UUID, error)
	GetRoom(ctx context.Context, id types.UUID) (*types.Room, error)
	RemoveRoom(ctx context.Context, id types.UUID) error
	AddParticipant(ctx context.Context, userID, roomID types.UUID) error
	RemoveParticipant(ctx context.Context, userID, roomID types.UUID) error
	GetParticipantsForRoom(ctx context.Context, roomID types.UUID) ([]types.UUID, error)
	GetRoomsForParticipant(ctx context.Context, userID types.UUID) ([]types.UUID, error)
	GetActorDetails(ctx context.Context, roomID types.UUID) ([]types.Actor, error)

	// ---- 关系 ----
	CreateRelationship(ctx context.Context, userA, userB types.UUID) error
	GetRelationship(ctx context.Context, userA, userB types.UUID) (*types.Relationship, error)
	GetRelationships(ctx context.Context, userID types.UUID) ([]types.Relationship, error)

	// ---- 通用 KV 缓存 ----
	GetCache(ctx context.Context, agentID types.UUID, key string) (string, bool, error)
	SetCache(ctx context.Context, agentID types.UUID, key, value string) error
	DeleteCache(ctx context.Context, agentID types.UUID, key string) error
}

// CosineSimilarity 计算两个向量的余弦相似度. 维度不一致或任一向量
// 为全零时返回 0, 让占位嵌入自然落到排序末尾.
func CosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
