package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/BaSui01/personaflow/types"
	"go.uber.org/zap"
)

// RemoteConfig 配置一个 OpenAI 兼容的远程向量化端点.
type RemoteConfig struct {
	BaseURL    string
	APIKey     string
	Model      string
	Dimensions int
	Timeout    time.Duration
}

// RemoteEmbedder 调用 OpenAI 兼容的 /v1/embeddings 端点.
// openai(1536)、ollama(1024) 和其它兼容服务都走这一个适配器.
type RemoteEmbedder struct {
	cfg    RemoteConfig
	client *http.Client
	logger *zap.Logger
}

// NewRemoteEmbedder 创建远程向量化器. Dimensions 未指定时默认 1536.
func NewRemoteEmbedder(cfg RemoteConfig, logger *zap.Logger) *RemoteEmbedder {
	if cfg.Dimensions <= 0 {
		cfg.Dimensions = DimRemoteOpenAI
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RemoteEmbedder{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger.With(zap.String("component", "remote_embedder")),
	}
}

func (e *RemoteEmbedder) Dimensions() int { return e.cfg.Dimensions }
func (e *RemoteEmbedder) Name() string    { return "remote:" + e.cfg.Model }

type embeddingWireRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingWireResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Embed 批量向量化. 响应会按 index 排回输入顺序.
func (e *RemoteEmbedder) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	if err := validateInput(texts); err != nil {
		return nil, err
	}

	payload, err := json.Marshal(&embeddingWireRequest{Model: e.cfg.Model, Input: texts})
	if err != nil {
		return nil, types.NewError(types.ErrInternalError, "marshal embedding request").WithCause(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		e.cfg.BaseURL+"/v1/embeddings", bytes.NewReader(payload))
	if err != nil {
		return nil, types.NewError(types.ErrInternalError, "build embedding request").WithCause(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.cfg.APIKey)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, types.NewError(types.ErrUpstreamError, "embedding request failed").
			WithRetryable(true).WithCause(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, types.NewError(types.ErrUpstreamError, "read embedding response").WithCause(err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, types.NewError(types.ErrUpstreamError,
			fmt.Sprintf("embedding endpoint returned %d: %s", resp.StatusCode, truncate(string(body), 200))).
			WithHTTPStatus(resp.StatusCode).
			WithRetryable(resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500)
	}

	var wire embeddingWireResponse
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, types.NewError(types.ErrUpstreamError, "malformed embedding response").WithCause(err)
	}
	if len(wire.Data) != len(texts) {
		return nil, types.NewError(types.ErrUpstreamError,
			fmt.Sprintf("expected %d embeddings, got %d", len(texts), len(wire.Data)))
	}

	out := make([][]float64, len(texts))
	for _, d := range wire.Data {
		if d.Index < 0 || d.Index >= len(out) {
			return nil, types.NewError(types.ErrUpstreamError, "embedding index out of range")
		}
		if len(d.Embedding) != e.cfg.Dimensions {
			return nil, types.NewError(types.ErrDimensionError,
				fmt.Sprintf("expected %d dimensions, got %d", e.cfg.Dimensions, len(d.Embedding)))
		}
		out[d.Index] = d.Embedding
	}
	return out, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
