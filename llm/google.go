package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// GoogleConfig 配置 Gemini generateContent 适配器.
type GoogleConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// GoogleProvider 实现 generativelanguage 的 generateContent 调用.
// Gemini 没有 system 角色, system 消息映射到 systemInstruction 字段;
// assistant 角色在 wire 上叫 model.
type GoogleProvider struct {
	cfg    GoogleConfig
	client *http.Client
	logger *zap.Logger
}

// NewGoogleProvider 创建 Google 适配器.
func NewGoogleProvider(cfg GoogleConfig, logger *zap.Logger) *GoogleProvider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://generativelanguage.googleapis.com"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GoogleProvider{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger.With(zap.String("component", "provider_google")),
	}
}

func (p *GoogleProvider) Name() string { return "google" }

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	Contents          []geminiContent `json:"contents"`
	SystemInstruction *geminiContent  `json:"systemInstruction,omitempty"`
	GenerationConfig  struct {
		Temperature     float32  `json:"temperature,omitempty"`
		TopP            float32  `json:"topP,omitempty"`
		MaxOutputTokens int      `json:"maxOutputTokens,omitempty"`
		StopSequences   []string `json:"stopSequences,omitempty"`
	} `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
		TotalTokenCount      int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
}

// Completion 实现 Provider.
func (p *GoogleProvider) Completion(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	body := geminiRequest{}
	for _, m := range req.Messages {
		switch m.Role {
		case RoleSystem:
			body.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: m.Content}}}
		case RoleAssistant:
			body.Contents = append(body.Contents, geminiContent{Role: "model", Parts: []geminiPart{{Text: m.Content}}})
		default:
			body.Contents = append(body.Contents, geminiContent{Role: "user", Parts: []geminiPart{{Text: m.Content}}})
		}
	}
	body.GenerationConfig.Temperature = req.Temperature
	body.GenerationConfig.TopP = req.TopP
	body.GenerationConfig.MaxOutputTokens = req.MaxTokens
	body.GenerationConfig.StopSequences = req.Stop

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s",
		strings.TrimRight(p.cfg.BaseURL, "/"), req.Model, p.cfg.APIKey)

	respBody, err := doJSONRequest(ctx, p.client, http.MethodPost, url, body, nil, p.Name())
	if err != nil {
		return nil, err
	}

	var gResp geminiResponse
	if err := json.Unmarshal(respBody, &gResp); err != nil {
		return nil, err
	}

	choices := make([]ChatChoice, 0, len(gResp.Candidates))
	for i, cand := range gResp.Candidates {
		var text strings.Builder
		for _, part := range cand.Content.Parts {
			text.WriteString(part.Text)
		}
		choices = append(choices, ChatChoice{
			Index:        i,
			FinishReason: cand.FinishReason,
			Message:      Message{Role: RoleAssistant, Content: text.String()},
		})
	}

	return &ChatResponse{
		Provider: p.Name(),
		Model:    req.Model,
		Choices:  choices,
		Usage: ChatUsage{
			PromptTokens:     gResp.UsageMetadata.PromptTokenCount,
			CompletionTokens: gResp.UsageMetadata.CandidatesTokenCount,
			TotalTokens:      gResp.UsageMetadata.TotalTokenCount,
		},
		CreatedAt: time.Now(),
	}, nil
}
