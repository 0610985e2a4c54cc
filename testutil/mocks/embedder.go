// MockEmbedder 的向量化测试模拟实现。
package mocks

import (
	"context"
	"crypto/sha256"
	"sync"

	"github.com/BaSui01/personaflow/embedding"
	"github.com/BaSui01/personaflow/types"
)

// MockEmbedder 是 Embedder 的模拟实现. 默认按文本哈希生成确定性向量,
// 相同文本得到相同向量, 便于做检索断言.
type MockEmbedder struct {
	mu sync.Mutex

	dims  int
	fixed []float64
	err   error

	calls int
	texts []string
}

// NewMockEmbedder 创建 dims 维的模拟 Embedder
func NewMockEmbedder(dims int) *MockEmbedder {
	return &MockEmbedder{dims: dims}
}

// WithFixedVector 让所有文本都返回同一个向量
func (m *MockEmbedder) WithFixedVector(vec []float64) *MockEmbedder {
	m.fixed = vec
	return m
}

// WithError 注入失败, 用于验证零向量降级路径
func (m *MockEmbedder) WithError(err error) *MockEmbedder {
	m.err = err
	return m
}

// Name 返回 Embedder 标识
func (m *MockEmbedder) Name() string { return "mock" }

// Dimensions 返回向量维度
func (m *MockEmbedder) Dimensions() int { return m.dims }

// Embed 生成确定性向量
func (m *MockEmbedder) Embed(_ context.Context, texts []string) ([][]float64, error) {
	m.mu.Lock()
	m.calls++
	m.texts = append(m.texts, texts...)
	err := m.err
	m.mu.Unlock()

	if err != nil {
		return nil, types.NewError(types.ErrUpstreamError, "mock embedder failure").WithCause(err)
	}

	out := make([][]float64, len(texts))
	for i, text := range texts {
		if m.fixed != nil {
			vec := make([]float64, len(m.fixed))
			copy(vec, m.fixed)
			out[i] = vec
			continue
		}
		out[i] = hashVector(text, m.dims)
	}
	return out, nil
}

// Calls 返回累计调用次数
func (m *MockEmbedder) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// hashVector 把文本哈希摊开成单位化前的确定性向量.
func hashVector(text string, dims int) []float64 {
	sum := sha256.Sum256([]byte(text))
	vec := make([]float64, dims)
	for i := 0; i < dims; i++ {
		vec[i] = float64(sum[i%len(sum)]) / 255.0
	}
	return vec
}

var _ embedding.Embedder = (*MockEmbedder)(nil)
