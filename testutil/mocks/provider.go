// MockProvider 的 LLM 提供商测试模拟实现。
//
// 支持脚本化响应序列与错误注入场景。
package mocks

import (
	"context"
	"sync"

	"github.com/BaSui01/personaflow/llm"
)

// --- MockProvider 结构 ---

// MockProvider 是 LLM Provider 的模拟实现. 按顺序播放脚本化响应,
// 脚本耗尽后重复最后一条; 解析-重试循环的测试正需要这种行为.
type MockProvider struct {
	mu sync.Mutex

	// 响应脚本
	responses []string
	errs      []error

	// 调用记录
	calls    int
	requests []*llm.ChatRequest

	completionFunc func(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error)
}

// NewMockProvider 创建模拟 Provider
func NewMockProvider() *MockProvider {
	return &MockProvider{}
}

// WithResponses 设置脚本化响应序列（Builder 模式）
func (m *MockProvider) WithResponses(responses ...string) *MockProvider {
	m.responses = responses
	return m
}

// WithErrors 设置按调用次序注入的错误, nil 表示该次调用成功
func (m *MockProvider) WithErrors(errs ...error) *MockProvider {
	m.errs = errs
	return m
}

// WithCompletionFunc 完全接管 Completion 行为
func (m *MockProvider) WithCompletionFunc(fn func(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error)) *MockProvider {
	m.completionFunc = fn
	return m
}

// Name 返回 Provider 标识
func (m *MockProvider) Name() string { return "mock" }

// Completion 播放下一条脚本响应
func (m *MockProvider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	m.mu.Lock()
	i := m.calls
	m.calls++
	m.requests = append(m.requests, req)
	fn := m.completionFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, req)
	}

	if i < len(m.errs) && m.errs[i] != nil {
		return nil, m.errs[i]
	}

	content := ""
	if len(m.responses) > 0 {
		if i >= len(m.responses) {
			i = len(m.responses) - 1
		}
		content = m.responses[i]
	}
	return &llm.ChatResponse{
		Model: req.Model,
		Choices: []llm.ChatChoice{{
			Message: llm.Message{Role: llm.RoleAssistant, Content: content},
		}},
	}, nil
}

// Calls 返回累计调用次数
func (m *MockProvider) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// LastRequest 返回最近一次请求, 未调用过时为 nil
func (m *MockProvider) LastRequest() *llm.ChatRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.requests) == 0 {
		return nil
	}
	return m.requests[len(m.requests)-1]
}

var _ llm.Provider = (*MockProvider)(nil)
