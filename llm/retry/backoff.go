// Package retry 实现生成调用的指数退避重试协议.
package retry

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/BaSui01/personaflow/types"
	"go.uber.org/zap"
)

// Policy 定义重试策略配置.
//
// MaxAttempts 为 0 表示不设上限: 对话轮次宁可一直重试也不要静默失败.
// 这是一个刻意的取舍: 持续故障的 Provider 会无限期拖住一个轮次,
// 需要硬上限的调用方要么配置 MaxAttempts, 要么在外层用 context 截止时间包住整个调用.
type Policy struct {
	MaxAttempts  int                                               // 最大尝试次数(0 表示无上限)
	InitialDelay time.Duration                                     // 初始延迟时间
	MaxDelay     time.Duration                                     // 最大延迟时间
	Multiplier   float64                                           // 延迟时间倍增因子(指数退避)
	Jitter       bool                                              // 是否添加随机抖动(防止雪崩)
	OnRetry      func(attempt int, err error, delay time.Duration) // 重试回调
}

// DefaultPolicy 返回默认的重试策略: 1s 起步, 每次翻倍, 无尝试上限.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:  0,
		InitialDelay: 1 * time.Second,
		MaxDelay:     80 * time.Second,
		Multiplier:   2.0,
		Jitter:       false,
	}
}

// normalize 修正非法参数.
func (p Policy) normalize() Policy {
	if p.MaxAttempts < 0 {
		p.MaxAttempts = 0
	}
	if p.InitialDelay <= 0 {
		p.InitialDelay = 1 * time.Second
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = 80 * time.Second
	}
	if p.Multiplier < 1.0 {
		p.Multiplier = 2.0
	}
	return p
}

// Delay 计算第 attempt 次重试前的等待时间(attempt 从 1 开始).
func (p Policy) Delay(attempt int) time.Duration {
	p = p.normalize()

	delay := float64(p.InitialDelay) * math.Pow(p.Multiplier, float64(attempt-1))
	if delay > float64(p.MaxDelay) {
		delay = float64(p.MaxDelay)
	}

	// 抖动范围: ±25%
	if p.Jitter {
		jitter := delay * 0.25
		delay = delay + (rand.Float64()*2-1)*jitter
	}

	if delay < float64(p.InitialDelay) {
		delay = float64(p.InitialDelay)
	}

	return time.Duration(delay)
}

// Do 按策略执行 fn 直到成功. fn 返回 nil 即成功;
// 等待期间监听 ctx 取消.
func Do[T any](ctx context.Context, policy Policy, logger *zap.Logger, fn func(attempt int) (T, error)) (T, error) {
	var zero T
	if logger == nil {
		logger = zap.NewNop()
	}
	policy = policy.normalize()

	var lastErr error
	for attempt := 1; ; attempt++ {
		result, err := fn(attempt)
		if err == nil {
			if attempt > 1 {
				logger.Info("重试成功", zap.Int("attempt", attempt))
			}
			return result, nil
		}
		lastErr = err

		if policy.MaxAttempts > 0 && attempt >= policy.MaxAttempts {
			logger.Warn("重试次数耗尽",
				zap.Int("attempts", attempt),
				zap.Error(lastErr),
			)
			return zero, types.NewError(types.ErrRetriesExhausted,
				fmt.Sprintf("failed after %d attempts", attempt)).WithCause(lastErr)
		}

		delay := policy.Delay(attempt)
		logger.Debug("重试中",
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(lastErr),
		)
		if policy.OnRetry != nil {
			policy.OnRetry(attempt, lastErr, delay)
		}

		select {
		case <-ctx.Done():
			return zero, fmt.Errorf("retry canceled: %w", ctx.Err())
		case <-time.After(delay):
		}
	}
}
