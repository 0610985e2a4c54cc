package llm

import (
	"github.com/BaSui01/personaflow/llm/tokenizer"
	"go.uber.org/zap"
)

// TrimTokens 将 prompt 裁剪到 maxTokens 以内, 从头部丢弃、保留尾部:
// 最新的上下文最有价值, 最旧的先掉.
// 分词器无法编码时降级为估算器驱动的近似裁剪, 而不是让整个调用失败.
func TrimTokens(text string, maxTokens int, model string, logger *zap.Logger) string {
	if text == "" || maxTokens <= 0 {
		return text
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	tok := tokenizer.ForModel(model)
	ids, err := tok.Encode(text)
	if err == nil {
		if len(ids) <= maxTokens {
			return text
		}
		out, derr := tok.Decode(ids[len(ids)-maxTokens:])
		if derr == nil {
			return out
		}
		err = derr
	}

	// 显式降级分支: 用估算计数近似, 同样保留尾部.
	logger.Warn("tokenizer cannot encode, falling back to estimated truncation",
		zap.String("model", model),
		zap.Error(err),
	)
	return trimByEstimate(text, maxTokens, tok)
}

// trimByEstimate 在没有可逆编码器时保留尾部: 优先用分词器自己的计数
// 能力, 计数也不可用时退到 CJK 感知的字符估算器, 然后对后缀二分,
// 找出仍在预算内的最长尾部.
func trimByEstimate(text string, maxTokens int, tok tokenizer.Tokenizer) string {
	counter := tok
	if _, err := counter.CountTokens(text); err != nil {
		counter = tokenizer.NewEstimatorTokenizer(tok.Name())
	}
	if n, err := counter.CountTokens(text); err == nil && n <= maxTokens {
		return text
	}

	// 后缀的估算值随长度单调, 可以二分
	runes := []rune(text)
	lo, hi := 0, len(runes)
	for lo < hi {
		mid := (lo + hi) / 2
		n, err := counter.CountTokens(string(runes[mid:]))
		if err != nil || n > maxTokens {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return string(runes[lo:])
}
