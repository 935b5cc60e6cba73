package ratelimit

import (
	"context"
	"sync"
	"time"
)

// RateLimiter 速率限制器接口
type RateLimiter interface {
	Wait(ctx context.Context) error
	Allow() bool
	GetRemaining() int
}

// TokenBucket 令牌桶速率限制器
type TokenBucket struct {
	capacity   int           // 桶容量
	tokens     int           // 当前令牌数
	refillRate int           // 每秒补充的令牌数
	windowSize time.Duration // 时间窗口大小
	lastRefill time.Time     // 上次补充时间
	mu         sync.Mutex
}

// NewTokenBucket 创建新的令牌桶
func NewTokenBucket(capacity, refillRate int, windowSize time.Duration) *TokenBucket {
	return &TokenBucket{
		capacity:   capacity,
		tokens:     capacity,
		refillRate: refillRate,
		windowSize: windowSize,
		lastRefill: time.Now(),
	}
}

// refill 补充令牌
func (tb *TokenBucket) refill() {
	now := time.Now()
	elapsed := now.Sub(tb.lastRefill)

	tokensToAdd := int(elapsed.Seconds()) * tb.refillRate
	if tokensToAdd > 0 {
		tb.tokens = min(tb.capacity, tb.tokens+tokensToAdd)
		tb.lastRefill = now
	}
}

// Allow 检查是否允许请求
func (tb *TokenBucket) Allow() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refill()

	if tb.tokens > 0 {
		tb.tokens--
		return true
	}
	return false
}

// Wait 等待直到允许请求
func (tb *TokenBucket) Wait(ctx context.Context) error {
	for {
		if tb.Allow() {
			return nil
		}

		tb.mu.Lock()
		tb.refill()
		waitTime := time.Duration(0)
		if tb.tokens == 0 && tb.refillRate > 0 {
			waitTime = time.Second / time.Duration(tb.refillRate)
		}
		tb.mu.Unlock()

		if waitTime <= 0 {
			// 如果 refillRate 为 0，等待一个时间窗口
			waitTime = tb.windowSize
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(waitTime):
		}
	}
}

// GetRemaining 获取剩余令牌数
func (tb *TokenBucket) GetRemaining() int {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	tb.refill()
	return tb.tokens
}

// Manager 按端点类别管理交易所 API 的速率限制器
type Manager struct {
	limiters map[string]RateLimiter
	fallback RateLimiter
	mu       sync.RWMutex
}

// NewManager 创建交易所 API 速率限制管理器
func NewManager() *Manager {
	m := &Manager{
		limiters: make(map[string]RateLimiter),
		// 默认限制器：20/s，对现货 REST 接口足够保守
		fallback: NewTokenBucket(20, 20, time.Second),
	}
	m.initDefaultLimiters()
	return m
}

// initDefaultLimiters 初始化常用端点类别的速率限制器
//
// 现货 REST 权重限制相对宽松，这里按端点类别做保守配置，
// 避免订单刷新周期和再平衡周期叠加时触发 429。
func (m *Manager) initDefaultLimiters() {
	m.limiters["time"] = NewTokenBucket(20, 20, time.Second)
	m.limiters["account"] = NewTokenBucket(10, 5, time.Second)
	m.limiters["ticker"] = NewTokenBucket(20, 10, time.Second)
	m.limiters["depth"] = NewTokenBucket(20, 10, time.Second)
	m.limiters["order"] = NewTokenBucket(10, 5, time.Second)
}

// GetLimiter 获取指定端点类别的速率限制器
func (m *Manager) GetLimiter(class string) RateLimiter {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if limiter, exists := m.limiters[class]; exists {
		return limiter
	}
	return m.fallback
}

// Wait 等待直到允许请求
func (m *Manager) Wait(ctx context.Context, class string) error {
	return m.GetLimiter(class).Wait(ctx)
}

// Allow 检查是否允许请求
func (m *Manager) Allow(class string) bool {
	return m.GetLimiter(class).Allow()
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
