package llm

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/BaSui01/personaflow/types"
	"go.uber.org/zap"
)

// CaptionResult 是图像描述的结果.
type CaptionResult struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// 视觉请求的 OpenAI 兼容消息体. 文本消息用普通字符串 content,
// 视觉消息的 content 是分段数组, 所以单独定义 wire 结构.
type visionWireRequest struct {
	Model     string              `json:"model"`
	Messages  []visionWireMessage `json:"messages"`
	MaxTokens int                 `json:"max_tokens,omitempty"`
}

type visionWireMessage struct {
	Role    string           `json:"role"`
	Content []visionWirePart `json:"content"`
}

type visionWirePart struct {
	Type     string              `json:"type"`
	Text     string              `json:"text,omitempty"`
	ImageURL *visionWireImageURL `json:"image_url,omitempty"`
}

type visionWireImageURL struct {
	URL string `json:"url"`
}

type visionWireResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

const captionPrompt = "Describe this image. Respond with a JSON object containing " +
	`"title" (a short name for the image) and "description" (one or two sentences).`

// GenerateCaption 用视觉模型描述一张图片. 单发调用, 失败直接返回错误,
// 不走重试协议.
func (c *Client) GenerateCaption(ctx context.Context, imageURL string) (*CaptionResult, error) {
	if imageURL == "" {
		return nil, types.NewError(types.ErrInvalidRequest, "empty image URL")
	}
	character := c.char()
	providerID := character.ModelProvider
	switch providerID {
	case types.ProviderOpenAI, types.ProviderGroq, types.ProviderTogether, types.ProviderOllama, types.ProviderLocal:
	default:
		// 非 OpenAI 兼容后端没有统一的视觉端点, 退回 openai
		providerID = types.ProviderOpenAI
	}

	spec, err := c.table.Spec(providerID)
	if err != nil {
		return nil, err
	}
	model, err := c.table.Resolve(providerID, types.TierMedium, "")
	if err != nil {
		return nil, err
	}
	endpoint := spec.Endpoint
	if providerID == character.ModelProvider && character.ModelEndpointOverride != "" {
		endpoint = character.ModelEndpointOverride
	}

	raw, err := doJSONRequest(ctx, c.http, http.MethodPost, endpoint+"/v1/chat/completions",
		&visionWireRequest{
			Model: model,
			Messages: []visionWireMessage{{
				Role: "user",
				Content: []visionWirePart{
					{Type: "text", Text: captionPrompt},
					{Type: "image_url", ImageURL: &visionWireImageURL{URL: imageURL}},
				},
			}},
			MaxTokens: 300,
		},
		map[string]string{"Authorization": "Bearer " + character.Secret(apiKeyName(providerID))},
		string(providerID))
	if err != nil {
		return nil, err
	}

	var wire visionWireResponse
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, types.NewError(types.ErrUpstreamError, "malformed caption response").WithCause(err)
	}
	if len(wire.Choices) == 0 {
		return nil, types.NewError(types.ErrEmptyContent, "caption response has no choices")
	}

	text := wire.Choices[0].Message.Content
	result := &CaptionResult{Description: text}
	if obj := extractCaptionJSON(text); obj != nil {
		result = obj
	}
	c.logger.Debug("图像描述完成", zap.String("title", result.Title))
	return result, nil
}

func extractCaptionJSON(text string) *CaptionResult {
	var out CaptionResult
	if err := json.Unmarshal([]byte(text), &out); err == nil && out.Description != "" {
		return &out
	}
	return nil
}

// SearchResult 是一条网页搜索命中.
type SearchResult struct {
	Title   string  `json:"title"`
	URL     string  `json:"url"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

// SearchResponse 是网页搜索的聚合结果.
type SearchResponse struct {
	Answer  string         `json:"answer"`
	Results []SearchResult `json:"results"`
}

const tavilyEndpoint = "https://api.tavily.com/search"

type tavilyWireRequest struct {
	APIKey        string `json:"api_key"`
	Query         string `json:"query"`
	IncludeAnswer bool   `json:"include_answer"`
	MaxResults    int    `json:"max_results,omitempty"`
}

// GenerateWebSearch 调用 Tavily 搜索. 单发调用, 错误直接返回.
// 需要角色 secrets 里配置 TAVILY_API_KEY.
func (c *Client) GenerateWebSearch(ctx context.Context, query string) (*SearchResponse, error) {
	if query == "" {
		return nil, types.NewError(types.ErrInvalidRequest, "empty search query")
	}
	apiKey := c.char().Secret("TAVILY_API_KEY")
	if apiKey == "" {
		return nil, types.NewError(types.ErrUnauthorized, "TAVILY_API_KEY is not configured")
	}

	raw, err := doJSONRequest(ctx, c.http, http.MethodPost, tavilyEndpoint,
		&tavilyWireRequest{APIKey: apiKey, Query: query, IncludeAnswer: true, MaxResults: 5},
		nil, "tavily")
	if err != nil {
		return nil, err
	}

	var resp SearchResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, types.NewError(types.ErrUpstreamError, "malformed search response").WithCause(err)
	}
	return &resp, nil
}
