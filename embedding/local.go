package embedding

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// DefaultLocalEndpoint 是本地 BGE 推理服务的默认地址.
const DefaultLocalEndpoint = "http://localhost:8080"

// LocalConfig 配置本地向量化服务.
type LocalConfig struct {
	Endpoint string
	Model    string
	Timeout  time.Duration
}

// LocalEmbedder 调用本机的 BGE-small 推理服务(同样暴露 OpenAI 兼容
// 的 /v1/embeddings), 产出 384 维向量. 不需要 API key.
type LocalEmbedder struct {
	inner *RemoteEmbedder
}

// NewLocalEmbedder 创建本地向量化器.
func NewLocalEmbedder(cfg LocalConfig, logger *zap.Logger) *LocalEmbedder {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultLocalEndpoint
	}
	if cfg.Model == "" {
		cfg.Model = "bge-small-en-v1.5"
	}
	return &LocalEmbedder{
		inner: NewRemoteEmbedder(RemoteConfig{
			BaseURL:    cfg.Endpoint,
			Model:      cfg.Model,
			Dimensions: DimLocalBGE,
			Timeout:    cfg.Timeout,
		}, logger),
	}
}

func (e *LocalEmbedder) Dimensions() int { return DimLocalBGE }
func (e *LocalEmbedder) Name() string    { return "local:" + e.inner.cfg.Model }

func (e *LocalEmbedder) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	return e.inner.Embed(ctx, texts)
}
