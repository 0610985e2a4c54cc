package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/BaSui01/personaflow/internal/metrics"
	"github.com/BaSui01/personaflow/llm/retry"
	"github.com/BaSui01/personaflow/parsing"
	"github.com/BaSui01/personaflow/types"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ClientConfig 配置生成客户端.
type ClientConfig struct {
	Character *types.Character
	Table     ModelTable
	Retry     retry.Policy

	// RequestsPerSecond 是对单个 Provider 的请求速率上限, 0 表示不限速.
	RequestsPerSecond float64
}

// Client 把能力档位(small/medium/large/embedding/image)和选定的
// Provider 映射到具体的后端调用, 并在每次调用外包一层 token 预算裁剪、
// 指数退避重试和(对结构化请求的)解析-验证-重试.
type Client struct {
	registry *Registry
	table    ModelTable

	characterMu sync.RWMutex
	character   *types.Character

	policy    retry.Policy
	limiters  map[types.ModelProvider]*rate.Limiter
	metrics   *metrics.Collector
	logger    *zap.Logger
	http      *http.Client
}

// NewClient 创建生成客户端并装配内置的 Provider 适配器.
// 角色选择的 Provider 不在支持列表里时立刻失败.
func NewClient(cfg ClientConfig, collector *metrics.Collector, logger *zap.Logger) (*Client, error) {
	if cfg.Character == nil {
		return nil, types.NewError(types.ErrInvalidRequest, "character is required")
	}
	if err := types.ValidateProvider(cfg.Character.ModelProvider); err != nil {
		return nil, err
	}
	if cfg.Table == nil {
		cfg.Table = DefaultModelTable()
	}
	if cfg.Retry.InitialDelay == 0 && cfg.Retry.Multiplier == 0 {
		cfg.Retry = retry.DefaultPolicy()
	}
	if collector == nil {
		collector = metrics.Nop()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &Client{
		registry:  NewRegistry(),
		table:     cfg.Table,
		character: cfg.Character,
		policy:    cfg.Retry,
		limiters:  make(map[types.ModelProvider]*rate.Limiter),
		metrics:   collector,
		logger:    logger.With(zap.String("component", "llm_client")),
		http:      &http.Client{Timeout: 120 * time.Second},
	}

	for id, spec := range cfg.Table {
		c.registerBuiltin(id, spec)
		if cfg.RequestsPerSecond > 0 {
			c.limiters[id] = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
		}
	}

	return c, nil
}

// registerBuiltin 按表项装配一个 Provider 适配器.
func (c *Client) registerBuiltin(id types.ModelProvider, spec ModelSpec) {
	endpoint := spec.Endpoint
	if id == c.character.ModelProvider && c.character.ModelEndpointOverride != "" {
		endpoint = c.character.ModelEndpointOverride
	}
	apiKey := c.character.Secret(apiKeyName(id))

	switch id {
	case types.ProviderAnthropic:
		c.registry.Register(id, NewAnthropicProvider(AnthropicConfig{
			BaseURL: endpoint,
			APIKey:  apiKey,
		}, c.logger))
	case types.ProviderGoogle:
		c.registry.Register(id, NewGoogleProvider(GoogleConfig{
			BaseURL: endpoint,
			APIKey:  apiKey,
		}, c.logger))
	default:
		// openai/groq/together/ollama/local 都是 OpenAI 兼容端点
		c.registry.Register(id, NewOpenAICompatProvider(OpenAICompatConfig{
			Name:    string(id),
			BaseURL: endpoint,
			APIKey:  apiKey,
		}, c.logger))
	}

	switch id {
	case types.ProviderOpenAI:
		c.registry.RegisterImage(id, newOpenAIImageProvider(endpoint, apiKey, c.logger))
	case types.ProviderTogether:
		c.registry.RegisterImage(id, newTogetherImageProvider(endpoint, apiKey, c.logger))
	}
}

// apiKeyName 返回 Provider 在角色 secrets 里的密钥名.
func apiKeyName(p types.ModelProvider) string {
	switch p {
	case types.ProviderOpenAI:
		return "OPENAI_API_KEY"
	case types.ProviderAnthropic:
		return "ANTHROPIC_API_KEY"
	case types.ProviderGoogle:
		return "GOOGLE_API_KEY"
	case types.ProviderGroq:
		return "GROQ_API_KEY"
	case types.ProviderTogether:
		return "TOGETHER_API_KEY"
	default:
		return ""
	}
}

// Registry 暴露底层注册表, 供调用方换入自定义适配器(含测试桩).
func (c *Client) Registry() *Registry { return c.registry }

// Character 返回客户端绑定的角色.
func (c *Client) Character() *types.Character { return c.char() }

// char 取当前角色快照. 单次请求内只取一次, 保证同一轮内字段一致.
func (c *Client) char() *types.Character {
	c.characterMu.RLock()
	defer c.characterMu.RUnlock()
	return c.character
}

// SetCharacter 热替换角色定义. Provider 适配器、端点和密钥在构造时装配,
// 所以替换不能变更 ModelProvider; 人设字段和生成参数对后续请求立即生效.
func (c *Client) SetCharacter(character *types.Character) error {
	if character == nil {
		return types.NewError(types.ErrInvalidRequest, "character is required")
	}
	if err := types.ValidateProvider(character.ModelProvider); err != nil {
		return err
	}
	c.characterMu.Lock()
	defer c.characterMu.Unlock()
	if character.ModelProvider != c.character.ModelProvider {
		return types.NewError(types.ErrInvalidRequest,
			fmt.Sprintf("cannot switch provider from %s to %s without restarting",
				c.character.ModelProvider, character.ModelProvider))
	}
	c.character = character
	return nil
}

// TextRequest 是一次文本生成请求.
type TextRequest struct {
	// Provider 为空时使用角色配置的 Provider.
	Provider types.ModelProvider
	// Tier 为空时默认 small.
	Tier types.ModelTier
	// Context 是完整的 prompt 文本, 超出输入预算时保尾裁剪.
	Context string
	// Stop 追加到 Provider 默认的停止序列之后.
	Stop []string
}

func (c *Client) resolveProvider(req *TextRequest) types.ModelProvider {
	if req.Provider != "" {
		return req.Provider
	}
	return c.char().ModelProvider
}

// GenerateText 解析 (provider, tier) 为具体模型, 裁剪 prompt 并分发调用.
// 返回原始文本, 不做任何解析.
func (c *Client) GenerateText(ctx context.Context, req *TextRequest) (string, error) {
	if req.Context == "" {
		return "", types.NewError(types.ErrEmptyContent, "empty context passed to GenerateText")
	}
	character := c.char()
	providerID := req.Provider
	if providerID == "" {
		providerID = character.ModelProvider
	}
	tier := req.Tier
	if tier == "" {
		tier = types.TierSmall
	}

	spec, err := c.table.Spec(providerID)
	if err != nil {
		return "", err
	}
	model, err := c.table.Resolve(providerID, tier, character.Settings.Model)
	if err != nil {
		return "", err
	}

	trimmed := TrimTokens(req.Context, spec.Settings.MaxInputTokens, model, c.logger)

	if limiter, ok := c.limiters[providerID]; ok {
		if err := limiter.Wait(ctx); err != nil {
			return "", err
		}
	}

	provider, err := c.registry.Get(providerID)
	if err != nil {
		return "", err
	}

	messages := make([]Message, 0, 2)
	if character.System != "" {
		messages = append(messages, Message{Role: RoleSystem, Content: character.System})
	}
	messages = append(messages, Message{Role: RoleUser, Content: trimmed})

	stop := append(append([]string{}, spec.Settings.Stop...), req.Stop...)

	resp, err := provider.Completion(ctx, &ChatRequest{
		Model:            model,
		Messages:         messages,
		MaxTokens:        spec.Settings.MaxOutputTokens,
		Temperature:      spec.Settings.Temperature,
		TopP:             spec.Settings.TopP,
		FrequencyPenalty: spec.Settings.FrequencyPenalty,
		PresencePenalty:  spec.Settings.PresencePenalty,
		Stop:             stop,
	})
	if err != nil {
		c.metrics.RecordGeneration(string(providerID), string(tier), "error")
		return "", err
	}

	choice, err := FirstChoice(resp)
	if err != nil {
		c.metrics.RecordGeneration(string(providerID), string(tier), "error")
		return "", err
	}

	c.metrics.RecordGeneration(string(providerID), string(tier), "ok")
	c.metrics.RecordTokens(string(providerID), resp.Usage.PromptTokens, resp.Usage.CompletionTokens)

	return choice.Message.Content, nil
}

// generateParsed 是统一的解析-验证-重试协议: 每次尝试先 GenerateText,
// 再跑对应的提取器; 提取到值立即返回, 否则按退避策略等待后重试.
func generateParsed[T any](ctx context.Context, c *Client, req *TextRequest, parser string, parse func(string) (T, bool)) (T, error) {
	providerID := string(c.resolveProvider(req))
	return retry.Do(ctx, c.policy, c.logger, func(attempt int) (T, error) {
		var zero T
		out, err := c.GenerateText(ctx, req)
		if err != nil {
			c.metrics.RecordRetry(providerID, "provider_error")
			return zero, err
		}
		if v, ok := parse(out); ok {
			return v, nil
		}
		c.metrics.RecordRetry(providerID, "parse_failed")
		c.metrics.RecordParseFailure(providerID, parser)
		c.logger.Debug("模型输出不可解析",
			zap.String("parser", parser),
			zap.Int("attempt", attempt),
			zap.String("output", out),
		)
		return zero, types.NewError(types.ErrParseFailed,
			fmt.Sprintf("no %s value in model output", parser))
	})
}

// GenerateShouldRespond 提取 RESPOND/IGNORE/STOP 指令, 失败重试.
func (c *Client) GenerateShouldRespond(ctx context.Context, context_ string) (string, error) {
	return generateParsed(ctx, c, &TextRequest{Tier: types.TierSmall, Context: context_}, "should_respond",
		func(out string) (string, bool) {
			v := parsing.ParseShouldRespondFromText(out)
			return v, v != ""
		})
}

// GenerateTrueOrFalse 提取 YES/NO 布尔值, 失败重试.
func (c *Client) GenerateTrueOrFalse(ctx context.Context, context_ string) (bool, error) {
	return generateParsed(ctx, c, &TextRequest{Tier: types.TierSmall, Context: context_}, "boolean",
		func(out string) (bool, bool) {
			v := parsing.ParseBooleanFromText(out)
			if v == nil {
				return false, false
			}
			return *v, true
		})
}

// GenerateTextArray 提取字符串数组, 失败重试.
func (c *Client) GenerateTextArray(ctx context.Context, context_ string) ([]string, error) {
	return generateParsed(ctx, c, &TextRequest{Tier: types.TierSmall, Context: context_}, "string_array",
		func(out string) ([]string, bool) {
			v := parsing.ParseStringArrayFromText(out)
			return v, v != nil
		})
}

// GenerateObject 提取单个 JSON 对象, 失败重试.
func (c *Client) GenerateObject(ctx context.Context, context_ string) (map[string]any, error) {
	return generateParsed(ctx, c, &TextRequest{Tier: types.TierSmall, Context: context_}, "object",
		func(out string) (map[string]any, bool) {
			v := parsing.ParseJSONObjectFromText(out)
			return v, v != nil
		})
}

// GenerateObjectArray 提取 JSON 数组, 失败重试.
func (c *Client) GenerateObjectArray(ctx context.Context, context_ string) ([]any, error) {
	return generateParsed(ctx, c, &TextRequest{Tier: types.TierLarge, Context: context_}, "object_array",
		func(out string) ([]any, bool) {
			v := parsing.ParseJSONArrayFromText(out)
			return v, v != nil
		})
}

// GenerateMessageResponse 生成一条回复消息并解析为 Content, 失败重试.
func (c *Client) GenerateMessageResponse(ctx context.Context, context_ string) (*types.Content, error) {
	return generateParsed(ctx, c, &TextRequest{Tier: types.TierLarge, Context: context_}, "message_response",
		func(out string) (*types.Content, bool) {
			obj := parsing.ParseJSONObjectFromText(out)
			if obj == nil {
				return nil, false
			}
			data, err := json.Marshal(obj)
			if err != nil {
				return nil, false
			}
			var content types.Content
			if err := json.Unmarshal(data, &content); err != nil {
				return nil, false
			}
			if content.Text == "" {
				return nil, false
			}
			return &content, true
		})
}
