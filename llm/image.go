package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/BaSui01/personaflow/types"
	"go.uber.org/zap"
)

// ImageRequest 是一次图像生成请求.
type ImageRequest struct {
	Prompt string
	Model  string
	Width  int
	Height int
	Count  int
}

// ImageResult 是图像生成的结果信封. 图像生成永远不向调用方抛错:
// 失败时 Success=false 且 Error 携带原因, 成功时 Images 是 URL 或
// base64 数据列表.
type ImageResult struct {
	Success bool     `json:"success"`
	Images  []string `json:"images,omitempty"`
	Error   string   `json:"error,omitempty"`
}

// ImageProvider 是图像后端的最小接口.
type ImageProvider interface {
	GenerateImage(ctx context.Context, req *ImageRequest) *ImageResult
	Name() string
}

func imageFailure(err error) *ImageResult {
	return &ImageResult{Success: false, Error: err.Error()}
}

// GenerateImage 解析角色的图像 Provider 与模型, 分发调用并返回结果信封.
// 任何失败都折叠进信封, 不返回 error.
func (c *Client) GenerateImage(ctx context.Context, req *ImageRequest) *ImageResult {
	character := c.char()
	providerID := character.ImageModelProvider
	if providerID == "" {
		providerID = character.ModelProvider
	}

	provider, err := c.registry.GetImage(providerID)
	if err != nil {
		c.metrics.RecordGeneration(string(providerID), string(types.TierImage), "error")
		return imageFailure(err)
	}

	if req.Model == "" {
		model, err := c.table.Resolve(providerID, types.TierImage, "")
		if err != nil {
			c.metrics.RecordGeneration(string(providerID), string(types.TierImage), "error")
			return imageFailure(err)
		}
		req.Model = model
	}
	if req.Count <= 0 {
		req.Count = 1
	}

	result := provider.GenerateImage(ctx, req)
	status := "ok"
	if !result.Success {
		status = "error"
	}
	c.metrics.RecordGeneration(string(providerID), string(types.TierImage), status)
	return result
}

// ============================================================
// 🎨 OpenAI 图像适配器 (DALL-E 系列, /v1/images/generations)
// ============================================================

type openaiImageProvider struct {
	baseURL string
	apiKey  string
	client  *http.Client
	logger  *zap.Logger
}

func newOpenAIImageProvider(baseURL, apiKey string, logger *zap.Logger) *openaiImageProvider {
	return &openaiImageProvider{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 120 * time.Second},
		logger:  logger.With(zap.String("image_provider", "openai")),
	}
}

func (p *openaiImageProvider) Name() string { return "openai" }

type openaiImageWireRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	N      int    `json:"n"`
	Size   string `json:"size,omitempty"`
}

type openaiImageWireResponse struct {
	Data []struct {
		URL     string `json:"url,omitempty"`
		B64JSON string `json:"b64_json,omitempty"`
	} `json:"data"`
}

func imageSize(width, height int) string {
	if width <= 0 || height <= 0 {
		return ""
	}
	switch {
	case width == 1024 && height == 1024:
		return "1024x1024"
	case width == 1792 && height == 1024:
		return "1792x1024"
	case width == 1024 && height == 1792:
		return "1024x1792"
	default:
		return "1024x1024"
	}
}

func (p *openaiImageProvider) GenerateImage(ctx context.Context, req *ImageRequest) *ImageResult {
	raw, err := doJSONRequest(ctx, p.client, http.MethodPost, p.baseURL+"/v1/images/generations",
		&openaiImageWireRequest{
			Model:  req.Model,
			Prompt: req.Prompt,
			N:      req.Count,
			Size:   imageSize(req.Width, req.Height),
		},
		map[string]string{"Authorization": "Bearer " + p.apiKey},
		"openai")
	if err != nil {
		p.logger.Warn("图像生成失败", zap.Error(err))
		return imageFailure(err)
	}
	var wire openaiImageWireResponse
	if err := json.Unmarshal(raw, &wire); err != nil {
		return imageFailure(err)
	}

	images := make([]string, 0, len(wire.Data))
	for _, d := range wire.Data {
		if d.URL != "" {
			images = append(images, d.URL)
		} else if d.B64JSON != "" {
			images = append(images, d.B64JSON)
		}
	}
	if len(images) == 0 {
		return &ImageResult{Success: false, Error: "provider returned no images"}
	}
	return &ImageResult{Success: true, Images: images}
}

// ============================================================
// 🎨 Together 图像适配器 (FLUX 系列, /v1/images/generations)
// ============================================================

type togetherImageProvider struct {
	baseURL string
	apiKey  string
	client  *http.Client
	logger  *zap.Logger
}

func newTogetherImageProvider(baseURL, apiKey string, logger *zap.Logger) *togetherImageProvider {
	return &togetherImageProvider{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 120 * time.Second},
		logger:  logger.With(zap.String("image_provider", "together")),
	}
}

func (p *togetherImageProvider) Name() string { return "together" }

type togetherImageWireRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	N      int    `json:"n"`
	Width  int    `json:"width,omitempty"`
	Height int    `json:"height,omitempty"`
}

func (p *togetherImageProvider) GenerateImage(ctx context.Context, req *ImageRequest) *ImageResult {
	raw, err := doJSONRequest(ctx, p.client, http.MethodPost, p.baseURL+"/v1/images/generations",
		&togetherImageWireRequest{
			Model:  req.Model,
			Prompt: req.Prompt,
			N:      req.Count,
			Width:  req.Width,
			Height: req.Height,
		},
		map[string]string{"Authorization": "Bearer " + p.apiKey},
		"together")
	if err != nil {
		p.logger.Warn("图像生成失败", zap.Error(err))
		return imageFailure(err)
	}
	var wire openaiImageWireResponse
	if err := json.Unmarshal(raw, &wire); err != nil {
		return imageFailure(err)
	}

	images := make([]string, 0, len(wire.Data))
	for _, d := range wire.Data {
		if d.URL != "" {
			images = append(images, d.URL)
		} else if d.B64JSON != "" {
			images = append(images, d.B64JSON)
		}
	}
	if len(images) == 0 {
		return &ImageResult{Success: false, Error: "provider returned no images"}
	}
	return &ImageResult{Success: true, Images: images}
}
