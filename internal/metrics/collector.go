// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器
type Collector struct {
	// 生成指标
	generationRequestsTotal *prometheus.CounterVec
	generationRetriesTotal  *prometheus.CounterVec
	parseFailuresTotal      *prometheus.CounterVec
	tokensUsed              *prometheus.CounterVec

	// 嵌入指标
	embeddingRequestsTotal *prometheus.CounterVec
	embeddingFallbacks     *prometheus.CounterVec

	// 缓存指标
	cacheHits   *prometheus.CounterVec
	cacheMisses *prometheus.CounterVec

	logger *zap.Logger
}

// NewCollector 创建指标收集器.
// reg 为 nil 时注册到默认 registry; 测试传入独立 registry 避免重复注册冲突.
func NewCollector(namespace string, reg prometheus.Registerer, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	// 生成指标
	c.generationRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generation_requests_total",
			Help:      "Total number of generation requests",
		},
		[]string{"provider", "tier", "status"},
	)

	c.generationRetriesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generation_retries_total",
			Help:      "Total number of generation retries",
		},
		[]string{"provider", "reason"}, // reason: provider_error, parse_failed
	)

	c.parseFailuresTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "parse_failures_total",
			Help:      "Total number of unparseable model outputs",
		},
		[]string{"provider", "parser"},
	)

	c.tokensUsed = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tokens_used_total",
			Help:      "Total number of tokens used",
		},
		[]string{"provider", "type"}, // type: prompt, completion
	)

	// 嵌入指标
	c.embeddingRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "embedding_requests_total",
			Help:      "Total number of embedding requests",
		},
		[]string{"provider", "status"},
	)

	c.embeddingFallbacks = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "embedding_fallbacks_total",
			Help:      "Total number of local-to-remote embedding fallbacks",
		},
		[]string{"from", "to"},
	)

	// 缓存指标
	c.cacheHits = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Total number of cache hits",
		},
		[]string{"adapter"},
	)

	c.cacheMisses = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Total number of cache misses",
		},
		[]string{"adapter"},
	)

	return c
}

// RecordGeneration 记录一次生成请求.
func (c *Collector) RecordGeneration(provider, tier, status string) {
	c.generationRequestsTotal.WithLabelValues(provider, tier, status).Inc()
}

// RecordRetry 记录一次重试.
func (c *Collector) RecordRetry(provider, reason string) {
	c.generationRetriesTotal.WithLabelValues(provider, reason).Inc()
}

// RecordParseFailure 记录一次解析失败.
func (c *Collector) RecordParseFailure(provider, parser string) {
	c.parseFailuresTotal.WithLabelValues(provider, parser).Inc()
}

// RecordTokens 记录 token 用量.
func (c *Collector) RecordTokens(provider string, prompt, completion int) {
	c.tokensUsed.WithLabelValues(provider, "prompt").Add(float64(prompt))
	c.tokensUsed.WithLabelValues(provider, "completion").Add(float64(completion))
}

// RecordEmbedding 记录一次嵌入请求.
func (c *Collector) RecordEmbedding(provider, status string) {
	c.embeddingRequestsTotal.WithLabelValues(provider, status).Inc()
}

// RecordEmbeddingFallback 记录一次嵌入降级.
func (c *Collector) RecordEmbeddingFallback(from, to string) {
	c.embeddingFallbacks.WithLabelValues(from, to).Inc()
}

// RecordCacheHit 记录缓存命中.
func (c *Collector) RecordCacheHit(adapter string) {
	c.cacheHits.WithLabelValues(adapter).Inc()
}

// RecordCacheMiss 记录缓存未命中.
func (c *Collector) RecordCacheMiss(adapter string) {
	c.cacheMisses.WithLabelValues(adapter).Inc()
}

// Nop 返回一个指向独立 registry 的收集器, 供不关心指标的调用方使用.
func Nop() *Collector {
	return NewCollector("personaflow", prometheus.NewRegistry(), zap.NewNop())
}
