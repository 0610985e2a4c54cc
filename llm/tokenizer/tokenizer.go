// Package tokenizer 提供统一的 Token 计数接口,
// 支持 tiktoken 精确编码与 CJK 估算器, 用于生成请求的 Token 预算裁剪.
package tokenizer

import (
	"fmt"
	"sync"
)

// Tokenizer 是统一的 token 编码/计数接口.
type Tokenizer interface {
	// CountTokens 返回给定文本的 token 数.
	CountTokens(text string) (int, error)

	// Encode 将文本转换为 token ID 列表.
	Encode(text string) ([]int, error)

	// Decode 将 token ID 转换回文本.
	Decode(tokens []int) (string, error)

	// Name 返回分词器的名称.
	Name() string
}

// 全局分词器注册表.
var (
	modelTokenizers   = make(map[string]Tokenizer)
	modelTokenizersMu sync.RWMutex
)

// Register 为给定的模型名称注册分词器.
func Register(model string, t Tokenizer) {
	modelTokenizersMu.Lock()
	defer modelTokenizersMu.Unlock()
	modelTokenizers[model] = t
}

// Get 返回为给定模型注册的分词器.
// 也尝试前缀匹配(如 "gpt-4o" 匹配 "gpt-4o-mini").
func Get(model string) (Tokenizer, error) {
	modelTokenizersMu.RLock()
	defer modelTokenizersMu.RUnlock()

	if t, ok := modelTokenizers[model]; ok {
		return t, nil
	}

	for prefix, t := range modelTokenizers {
		if len(model) >= len(prefix) && model[:len(prefix)] == prefix {
			return t, nil
		}
	}

	return nil, fmt.Errorf("no tokenizer registered for model: %s", model)
}

// ForModel 返回模型的分词器; 没有注册过的模型拿到 tiktoken
// cl100k_base 编码器, tiktoken 初始化失败时调用方自行降级.
func ForModel(model string) Tokenizer {
	if t, err := Get(model); err == nil {
		return t
	}
	return NewTiktokenTokenizer(model)
}
