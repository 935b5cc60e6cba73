package risk

import (
	"fmt"
	"sync/atomic"
	"time"
)

// ErrCircuitBreakerOpen 表示断路器已打开，禁止继续交易。
var ErrCircuitBreakerOpen = fmt.Errorf("circuit breaker open")

// CircuitBreakerConfig 断路器配置。
// 约定：MaxConsecutiveErrors <= 0 表示关闭限制。
type CircuitBreakerConfig struct {
	// MaxConsecutiveErrors 连续错误上限（签名失败/下单失败/余额拉取失败等）。
	MaxConsecutiveErrors int64

	// Cooldown 熔断后的冷却时长。冷却期满自动恢复；为零则只能手动 Resume。
	Cooldown time.Duration
}

// CircuitBreaker 连续错误熔断器。
// 每个账户循环各持有一个实例，循环内串行调用，但状态页会并发读，
// 所以全部状态用原子变量。
type CircuitBreaker struct {
	halted   atomic.Bool
	haltedAt atomic.Int64 // UnixNano

	consecutiveErrors atomic.Int64

	maxConsecutiveErrors atomic.Int64
	cooldownNanos        atomic.Int64
}

func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	cb := &CircuitBreaker{}
	cb.SetConfig(cfg)
	return cb
}

func (cb *CircuitBreaker) SetConfig(cfg CircuitBreakerConfig) {
	if cb == nil {
		return
	}
	cb.maxConsecutiveErrors.Store(cfg.MaxConsecutiveErrors)
	cb.cooldownNanos.Store(int64(cfg.Cooldown))
}

// Halt 手动熔断（如人工介入或检测到严重异常）。
func (cb *CircuitBreaker) Halt() {
	if cb == nil {
		return
	}
	cb.halted.Store(true)
	cb.haltedAt.Store(time.Now().UnixNano())
}

// Resume 手动恢复（会同时清空连续错误计数）。
func (cb *CircuitBreaker) Resume() {
	if cb == nil {
		return
	}
	cb.halted.Store(false)
	cb.consecutiveErrors.Store(0)
}

// Allow 快路径检查是否允许继续执行周期动作。
// 熔断中若冷却期已过则自动恢复。
func (cb *CircuitBreaker) Allow() error {
	if cb == nil {
		return nil
	}

	if cb.halted.Load() {
		cooldown := cb.cooldownNanos.Load()
		if cooldown > 0 && time.Now().UnixNano()-cb.haltedAt.Load() >= cooldown {
			cb.Resume()
			return nil
		}
		return ErrCircuitBreakerOpen
	}

	maxErr := cb.maxConsecutiveErrors.Load()
	if maxErr > 0 && cb.consecutiveErrors.Load() >= maxErr {
		cb.Halt()
		return ErrCircuitBreakerOpen
	}

	return nil
}

// OnSuccess 周期动作成功后调用，清空连续错误计数。
func (cb *CircuitBreaker) OnSuccess() {
	if cb == nil {
		return
	}
	cb.consecutiveErrors.Store(0)
}

// OnError 周期动作失败后调用，累计连续错误计数。
func (cb *CircuitBreaker) OnError() {
	if cb == nil {
		return
	}
	cb.consecutiveErrors.Add(1)
}

// Open 当前是否处于熔断状态（状态页用）。
func (cb *CircuitBreaker) Open() bool {
	if cb == nil {
		return false
	}
	return cb.halted.Load()
}

// ConsecutiveErrors 当前连续错误计数（状态页用）。
func (cb *CircuitBreaker) ConsecutiveErrors() int64 {
	if cb == nil {
		return 0
	}
	return cb.consecutiveErrors.Load()
}
