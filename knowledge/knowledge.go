// Package knowledge 实现知识库的摄取与检索: 文档经预处理、切块、
// 向量化后落库, 检索时按片段相似度召回并回溯到原始文档.
package knowledge

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/BaSui01/personaflow/database"
	"github.com/BaSui01/personaflow/embedding"
	"github.com/BaSui01/personaflow/memory"
	"github.com/BaSui01/personaflow/types"
	"go.uber.org/zap"
)

// 切块参数: 每块 512 字符, 相邻块重叠 20 字符保住切点处的语境.
const (
	DefaultChunkSize = 512
	DefaultBleed     = 20
)

// 检索参数: 片段召回取前 3, 相似度阈值 0.1.
const (
	retrievalCount     = 3
	retrievalThreshold = 0.1
)

// Item 是一条知识条目.
type Item struct {
	ID      types.UUID
	Content types.Content
}

// Manager 管理知识的写入和检索.
type Manager struct {
	documents *memory.Manager
	fragments *memory.Manager
	embedder  embedding.Embedder
	agentID   types.UUID
	logger    *zap.Logger
}

// NewManager 创建知识管理器. documents 和 fragments 两张表共用
// 同一个存储后端.
func NewManager(db database.Adapter, embedder embedding.Embedder, agentID types.UUID, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		documents: memory.NewManager(db, embedder, database.TableDocuments, agentID, nil, logger),
		fragments: memory.NewManager(db, embedder, database.TableFragments, agentID, nil, logger),
		embedder:  embedder,
		agentID:   agentID,
		logger:    logger.With(zap.String("component", "knowledge")),
	}
}

// Chunk 把文本按固定窗口切块, 相邻块重叠 bleed 个字符.
// size <= bleed 时退回默认参数.
func Chunk(text string, size, bleed int) []string {
	if text == "" {
		return nil
	}
	if size <= 0 || bleed < 0 || size <= bleed {
		size, bleed = DefaultChunkSize, DefaultBleed
	}

	runes := []rune(text)
	if len(runes) <= size {
		return []string{text}
	}

	step := size - bleed
	chunks := make([]string, 0, (len(runes)+step-1)/step)
	for start := 0; start < len(runes); start += step {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[start:end]))
		if end == len(runes) {
			break
		}
	}
	return chunks
}

func contentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// Set 摄取一条知识: 原文存 documents 表, 预处理后切块向量化存
// fragments 表. 所有 ID 都从内容哈希派生, 重复摄取同一文档是幂等的.
func (m *Manager) Set(ctx context.Context, item Item) error {
	if item.Content.Text == "" {
		return types.NewError(types.ErrEmptyContent, "knowledge item has no text")
	}

	hash := contentHash(item.Content.Text)
	docID := item.ID
	if docID == (types.UUID{}) {
		docID = types.DeterministicID("doc:" + hash)
	}
	roomID := types.RoomFor(m.agentID)

	// 文档本身不参与向量检索, 挂全零占位向量
	doc := &types.Memory{
		ID:        docID,
		AgentID:   m.agentID,
		RoomID:    roomID,
		UserID:    m.agentID,
		Content:   item.Content,
		Embedding: embedding.ZeroVector(m.embedder.Dimensions()),
	}
	if err := m.documents.CreateMemory(ctx, doc, true); err != nil {
		return fmt.Errorf("store document: %w", err)
	}

	preprocessed := Preprocess(item.Content.Text)
	if preprocessed == "" {
		m.logger.Debug("文档预处理后为空, 跳过切块",
			zap.String("documentId", docID.String()),
		)
		return nil
	}

	for i, chunk := range Chunk(preprocessed, DefaultChunkSize, DefaultBleed) {
		// 片段 ID 由 (文档 ID, 块文本) 派生, 重复摄取天然幂等
		fragment := &types.Memory{
			ID:      types.DeterministicID("fragment:" + docID.String() + ":" + contentHash(chunk)),
			AgentID: m.agentID,
			RoomID:  roomID,
			UserID:  m.agentID,
			Content: types.Content{
				Text:   chunk,
				Source: docID.String(),
			},
		}
		fragment, err := m.fragments.AddEmbeddingToMemory(ctx, fragment)
		if err != nil {
			return fmt.Errorf("embed fragment %d: %w", i, err)
		}
		if err := m.fragments.CreateMemory(ctx, fragment, true); err != nil {
			return fmt.Errorf("store fragment %d: %w", i, err)
		}
	}
	return nil
}

// Get 按消息文本检索相关知识. 预处理后为空的查询直接返回空结果,
// 不打向量化后端. 命中片段按来源文档去重, 返回原始文档文本.
func (m *Manager) Get(ctx context.Context, message string) ([]string, error) {
	query := Preprocess(message)
	if query == "" {
		return nil, nil
	}

	vecs, err := m.embedder.Embed(ctx, []string{query})
	if err != nil {
		m.logger.Warn("知识检索向量化失败", zap.Error(err))
		return nil, nil
	}

	hits, err := m.fragments.SearchMemoriesByEmbedding(ctx, vecs[0], memory.SearchOptions{
		RoomID:         types.RoomFor(m.agentID),
		MatchThreshold: retrievalThreshold,
		Count:          retrievalCount,
	})
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	out := make([]string, 0, len(hits))
	for _, hit := range hits {
		source := hit.Content.Source
		if source == "" {
			continue
		}
		if _, dup := seen[source]; dup {
			continue
		}
		seen[source] = struct{}{}

		docID, err := types.ParseID(source)
		if err != nil {
			continue
		}
		doc, err := m.documents.GetMemoryByID(ctx, docID)
		if err != nil || doc == nil {
			continue
		}
		out = append(out, doc.Content.Text)
	}
	return out, nil
}
