package llm

import (
	"strings"
	"testing"

	"github.com/BaSui01/personaflow/llm/tokenizer"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"pgregory.net/rapid"
)

// runeTokenizer maps one rune to one token, so budgets are exact in tests.
type runeTokenizer struct{}

func (runeTokenizer) Name() string { return "rune" }

func (runeTokenizer) CountTokens(text string) (int, error) {
	return len([]rune(text)), nil
}

func (runeTokenizer) Encode(text string) ([]int, error) {
	runes := []rune(text)
	ids := make([]int, len(runes))
	for i, r := range runes {
		ids[i] = int(r)
	}
	return ids, nil
}

func (runeTokenizer) Decode(ids []int) (string, error) {
	runes := make([]rune, len(ids))
	for i, id := range ids {
		runes[i] = rune(id)
	}
	return string(runes), nil
}

func init() {
	tokenizer.Register("rune-test-model", runeTokenizer{})
	tokenizer.Register("estimator-test-model", tokenizer.NewEstimatorTokenizer("estimator-test-model"))
}

func TestTrimTokensUnderBudget(t *testing.T) {
	out := TrimTokens("short text", 100, "rune-test-model", zap.NewNop())
	assert.Equal(t, "short text", out)
}

func TestTrimTokensKeepsTail(t *testing.T) {
	out := TrimTokens("abcdefgh", 3, "rune-test-model", zap.NewNop())
	assert.Equal(t, "fgh", out)
}

func TestTrimTokensZeroBudgetPassesThrough(t *testing.T) {
	out := TrimTokens("anything", 0, "rune-test-model", zap.NewNop())
	assert.Equal(t, "anything", out)
}

func TestTrimTokensDegradesToEstimator(t *testing.T) {
	// the estimator cannot encode, so trimming keeps the longest suffix
	// whose estimated count (ASCII at 4 chars/token) fits the budget
	text := strings.Repeat("x", 100)
	out := TrimTokens(text, 2, "estimator-test-model", zap.NewNop())
	assert.Equal(t, strings.Repeat("x", 11), out)
	assert.True(t, strings.HasSuffix(text, out))
}

func TestTrimTokensEstimatorCountsCJK(t *testing.T) {
	// CJK runs at about 1.5 chars per token, so the same budget keeps a
	// much shorter suffix than for ASCII
	ascii := TrimTokens(strings.Repeat("x", 100), 10, "estimator-test-model", zap.NewNop())
	cjk := TrimTokens(strings.Repeat("汉", 100), 10, "estimator-test-model", zap.NewNop())
	assert.Greater(t, len([]rune(ascii)), len([]rune(cjk)))
}

func TestTrimTokensProperties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		text := rapid.StringN(0, 200, -1).Draw(t, "text")
		budget := rapid.IntRange(1, 50).Draw(t, "budget")

		out := TrimTokens(text, budget, "rune-test-model", zap.NewNop())

		assert.True(t, strings.HasSuffix(text, out), "result must be a suffix of the input")
		assert.LessOrEqual(t, len([]rune(out)), max(budget, len([]rune(text))))
		if len([]rune(text)) > budget {
			assert.Equal(t, budget, len([]rune(out)))
		}
	})
}
