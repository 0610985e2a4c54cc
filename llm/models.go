package llm

import (
	"fmt"

	"github.com/BaSui01/personaflow/types"
)

// ModelSettings 是一个 Provider 的生成参数.
type ModelSettings struct {
	Temperature      float32  `yaml:"temperature" json:"temperature"`
	TopP             float32  `yaml:"top_p" json:"top_p"`
	FrequencyPenalty float32  `yaml:"frequency_penalty" json:"frequency_penalty"`
	PresencePenalty  float32  `yaml:"presence_penalty" json:"presence_penalty"`
	MaxInputTokens   int      `yaml:"max_input_tokens" json:"max_input_tokens"`
	MaxOutputTokens  int      `yaml:"max_output_tokens" json:"max_output_tokens"`
	Stop             []string `yaml:"stop" json:"stop"`
}

// ModelSpec 描述一个 Provider: 基础端点 + 每个能力档位的具体模型 + 生成参数.
type ModelSpec struct {
	Endpoint string                     `yaml:"endpoint" json:"endpoint"`
	Settings ModelSettings              `yaml:"settings" json:"settings"`
	Models   map[types.ModelTier]string `yaml:"models" json:"models"`
}

// ModelTable 把 Provider 标识映射到其规格.
// 新增 Provider 只需要加一个表项, 不需要在每个生成函数里加分支.
type ModelTable map[types.ModelProvider]ModelSpec

// DefaultModelTable 返回内置的 Provider 规格表.
func DefaultModelTable() ModelTable {
	return ModelTable{
		types.ProviderOpenAI: {
			Endpoint: "https://api.openai.com",
			Settings: ModelSettings{
				Temperature:      0.6,
				FrequencyPenalty: 0.0,
				PresencePenalty:  0.0,
				MaxInputTokens:   128000,
				MaxOutputTokens:  8192,
				Stop:             []string{},
			},
			Models: map[types.ModelTier]string{
				types.TierSmall:     "gpt-4o-mini",
				types.TierMedium:    "gpt-4o",
				types.TierLarge:     "gpt-4o",
				types.TierEmbedding: "text-embedding-3-small",
				types.TierImage:     "dall-e-3",
			},
		},
		types.ProviderAnthropic: {
			Endpoint: "https://api.anthropic.com",
			Settings: ModelSettings{
				Temperature:     0.7,
				MaxInputTokens:  200000,
				MaxOutputTokens: 4096,
				Stop:            []string{},
			},
			Models: map[types.ModelTier]string{
				types.TierSmall:  "claude-3-5-haiku-20241022",
				types.TierMedium: "claude-3-5-sonnet-20241022",
				types.TierLarge:  "claude-3-5-sonnet-20241022",
			},
		},
		types.ProviderGoogle: {
			Endpoint: "https://generativelanguage.googleapis.com",
			Settings: ModelSettings{
				Temperature:     0.7,
				MaxInputTokens:  128000,
				MaxOutputTokens: 8192,
			},
			Models: map[types.ModelTier]string{
				types.TierSmall:  "gemini-1.5-flash",
				types.TierMedium: "gemini-1.5-flash",
				types.TierLarge:  "gemini-1.5-pro",
			},
		},
		types.ProviderGroq: {
			Endpoint: "https://api.groq.com/openai",
			Settings: ModelSettings{
				Temperature:     0.7,
				MaxInputTokens:  128000,
				MaxOutputTokens: 8000,
			},
			Models: map[types.ModelTier]string{
				types.TierSmall:     "llama-3.1-8b-instant",
				types.TierMedium:    "llama-3.3-70b-versatile",
				types.TierLarge:     "llama-3.3-70b-versatile",
				types.TierEmbedding: "llama-3.1-8b-instant",
			},
		},
		types.ProviderOllama: {
			Endpoint: "http://localhost:11434",
			Settings: ModelSettings{
				Temperature:     0.7,
				MaxInputTokens:  32768,
				MaxOutputTokens: 8192,
			},
			Models: map[types.ModelTier]string{
				types.TierSmall:     "llama3.2",
				types.TierMedium:    "hermes3",
				types.TierLarge:     "hermes3:70b",
				types.TierEmbedding: "mxbai-embed-large",
			},
		},
		types.ProviderTogether: {
			Endpoint: "https://api.together.ai",
			Settings: ModelSettings{
				Temperature:     0.7,
				MaxInputTokens:  128000,
				MaxOutputTokens: 8192,
			},
			Models: map[types.ModelTier]string{
				types.TierSmall:  "meta-llama/Llama-3.2-3B-Instruct-Turbo",
				types.TierMedium: "meta-llama/Llama-3.3-70B-Instruct-Turbo",
				types.TierLarge:  "meta-llama/Llama-3.3-70B-Instruct-Turbo",
				types.TierImage:  "black-forest-labs/FLUX.1-schnell",
			},
		},
		types.ProviderLocal: {
			Endpoint: "http://localhost:8080",
			Settings: ModelSettings{
				Temperature:     0.7,
				MaxInputTokens:  8192,
				MaxOutputTokens: 2048,
			},
			Models: map[types.ModelTier]string{
				types.TierSmall:  "local-small",
				types.TierMedium: "local-medium",
				types.TierLarge:  "local-large",
			},
		},
	}
}

// Spec 返回 Provider 的规格, 未登记的 Provider 视为致命配置错误.
func (t ModelTable) Spec(p types.ModelProvider) (ModelSpec, error) {
	spec, ok := t[p]
	if !ok {
		return ModelSpec{}, types.NewError(types.ErrUnsupportedProvider,
			fmt.Sprintf("no model table entry for provider %q", p))
	}
	return spec, nil
}

// Resolve 把 (provider, tier) 解析成具体模型. override 优先
// (角色级或配置级的模型覆盖).
func (t ModelTable) Resolve(p types.ModelProvider, tier types.ModelTier, override string) (string, error) {
	if override != "" {
		return override, nil
	}
	spec, err := t.Spec(p)
	if err != nil {
		return "", err
	}
	model, ok := spec.Models[tier]
	if !ok {
		return "", types.NewError(types.ErrUnsupportedProvider,
			fmt.Sprintf("provider %q has no model for tier %q", p, tier))
	}
	return model, nil
}
