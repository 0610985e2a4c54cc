package embedding

import (
	"context"

	"github.com/BaSui01/personaflow/internal/metrics"
	"github.com/BaSui01/personaflow/types"
	"go.uber.org/zap"
)

// FallbackEmbedder 先走主后端, 失败时显式记录降级日志再走备用后端.
// 两个后端的维度可以不同, 调用方用产出向量的实际长度而不是接口声明.
type FallbackEmbedder struct {
	primary   Embedder
	secondary Embedder
	metrics   *metrics.Collector
	logger    *zap.Logger
}

// NewFallbackEmbedder 组合主备两个向量化后端.
func NewFallbackEmbedder(primary, secondary Embedder, collector *metrics.Collector, logger *zap.Logger) *FallbackEmbedder {
	if collector == nil {
		collector = metrics.Nop()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FallbackEmbedder{
		primary:   primary,
		secondary: secondary,
		metrics:   collector,
		logger:    logger.With(zap.String("component", "fallback_embedder")),
	}
}

func (e *FallbackEmbedder) Dimensions() int { return e.primary.Dimensions() }
func (e *FallbackEmbedder) Name() string    { return e.primary.Name() }

func (e *FallbackEmbedder) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	out, err := e.primary.Embed(ctx, texts)
	if err == nil {
		e.metrics.RecordEmbedding(e.primary.Name(), "ok")
		return out, nil
	}
	// 空输入是调用方错误, 换后端也救不回来
	if types.GetErrorCode(err) == types.ErrEmptyContent {
		return nil, err
	}

	e.logger.Warn("主向量化后端失败, 降级到备用后端",
		zap.String("primary", e.primary.Name()),
		zap.String("secondary", e.secondary.Name()),
		zap.Error(err),
	)
	e.metrics.RecordEmbedding(e.primary.Name(), "error")
	e.metrics.RecordEmbeddingFallback(e.primary.Name(), e.secondary.Name())

	out, err = e.secondary.Embed(ctx, texts)
	if err != nil {
		e.metrics.RecordEmbedding(e.secondary.Name(), "error")
		return nil, err
	}
	e.metrics.RecordEmbedding(e.secondary.Name(), "ok")
	return out, nil
}

// ForCharacter 按角色配置选择向量化后端:
//   - ollama Provider 用本机 ollama 的 mxbai-embed-large(1024 维)
//   - local Provider 用本地 BGE 服务, 远程 openai 端点作为显式降级备份
//   - 其余 Provider 统一走 openai 的 text-embedding-3-small(1536 维)
func ForCharacter(ch *types.Character, collector *metrics.Collector, logger *zap.Logger) Embedder {
	model := ch.Settings.EmbeddingModel

	switch ch.ModelProvider {
	case types.ProviderOllama:
		if model == "" {
			model = "mxbai-embed-large"
		}
		return NewRemoteEmbedder(RemoteConfig{
			BaseURL:    "http://localhost:11434",
			Model:      model,
			Dimensions: DimRemoteOllama,
		}, logger)

	case types.ProviderLocal:
		local := NewLocalEmbedder(LocalConfig{Model: model}, logger)
		remote := NewRemoteEmbedder(RemoteConfig{
			BaseURL: "https://api.openai.com",
			APIKey:  ch.Secret("OPENAI_API_KEY"),
			Model:   "text-embedding-3-small",
		}, logger)
		return NewFallbackEmbedder(local, remote, collector, logger)

	default:
		if model == "" {
			model = "text-embedding-3-small"
		}
		return NewRemoteEmbedder(RemoteConfig{
			BaseURL: "https://api.openai.com",
			APIKey:  ch.Secret("OPENAI_API_KEY"),
			Model:   model,
		}, logger)
	}
}
