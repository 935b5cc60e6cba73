package bot

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mntlbot/rebalancer/internal/exchange"
	"github.com/mntlbot/rebalancer/internal/metrics"
	"github.com/mntlbot/rebalancer/internal/orders"
	"github.com/mntlbot/rebalancer/internal/rebalance"
	"github.com/mntlbot/rebalancer/internal/risk"
	"github.com/mntlbot/rebalancer/pkg/logger"
)

const maxBackoffShift = 3

// backoffDelay 出错后的重试延迟：2s/4s/8s，shift=3 封顶。
func backoffDelay(attempts int) time.Duration {
	if attempts > maxBackoffShift {
		attempts = maxBackoffShift
	}
	return time.Duration(1<<attempts) * time.Second
}

// Status 单个账户循环的运行快照（状态页用）
type Status struct {
	Account           string    `json:"account"`
	Exchange          string    `json:"exchange"`
	LastRebalance     time.Time `json:"last_rebalance"`
	LastRefresh       time.Time `json:"last_refresh"`
	LastAction        string    `json:"last_action"`
	TrackedOrders     int       `json:"tracked_orders"`
	BreakerOpen       bool      `json:"breaker_open"`
	ConsecutiveErrors int64     `json:"consecutive_errors"`
}

// Loop 单个账户的控制循环。
//
// 两个周期动作（再平衡、挂单刷新）各自有独立的定时器，但全部
// 动作都在同一条 goroutine 的 select 里串行执行：同一账户的两类
// 请求永远不会并发打到交易所连接上。
//
// 动作之间故障隔离：再平衡出错不影响挂单刷新，反之亦然。
// 任一动作出错后进入一段退避窗口（2s/4s/8s 封顶），窗口内跳过
// 到期的定时器；出错绝不退出循环。
type Loop struct {
	account string
	client  exchange.Client
	engine  *rebalance.Engine
	orders  *orders.Manager
	breaker *risk.CircuitBreaker

	rebalanceEvery time.Duration
	refreshEvery   time.Duration

	rebalanceNow chan struct{}

	log *logrus.Entry

	mu     sync.Mutex
	status Status
}

// Config 循环参数
type Config struct {
	Account        string
	RebalanceEvery time.Duration
	RefreshEvery   time.Duration
}

func NewLoop(cfg Config, client exchange.Client, engine *rebalance.Engine, om *orders.Manager, breaker *risk.CircuitBreaker) *Loop {
	if cfg.RebalanceEvery <= 0 {
		cfg.RebalanceEvery = 120 * time.Second
	}
	if cfg.RefreshEvery <= 0 {
		cfg.RefreshEvery = 10 * time.Second
	}
	return &Loop{
		account:        cfg.Account,
		client:         client,
		engine:         engine,
		orders:         om,
		breaker:        breaker,
		rebalanceEvery: cfg.RebalanceEvery,
		refreshEvery:   cfg.RefreshEvery,
		rebalanceNow:   make(chan struct{}, 1),
		log:            logger.WithFields(logrus.Fields{"component": "loop", "account": cfg.Account}),
		status:         Status{Account: cfg.Account, Exchange: client.Name()},
	}
}

// TriggerRebalance 请求尽快执行一次再平衡（非阻塞，重复信号合并）。
// 状态服务的手动触发入口用它，不打断当前正在执行的动作。
func (l *Loop) TriggerRebalance() {
	select {
	case l.rebalanceNow <- struct{}{}:
	default:
	}
}

// Status 当前运行快照
func (l *Loop) Status() Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	s := l.status
	s.TrackedOrders = len(l.orders.Tracked())
	s.BreakerOpen = l.breaker.Open()
	s.ConsecutiveErrors = l.breaker.ConsecutiveErrors()
	return s
}

// Run 阻塞运行直到 ctx 取消。退出前撤掉所有跟踪中的挂单。
func (l *Loop) Run(ctx context.Context) {
	l.log.Infof("控制循环启动: rebalance=%s refresh=%s", l.rebalanceEvery, l.refreshEvery)
	defer l.log.Info("控制循环退出")

	// 每个周期动作各自维护退避窗口，一个周期出错不拖慢另一个
	var rebalanceRetry, refreshRetry retryState

	// allowBreaker 熔断检查；打开时跳过动作但绝不退出循环
	allowBreaker := func() bool {
		wasOpen := l.breaker.Open()
		if err := l.breaker.Allow(); err != nil {
			if !wasOpen {
				metrics.BreakerTrips.Add(1)
			}
			l.log.Warn("断路器打开，跳过本次动作")
			return false
		}
		return true
	}

	// 启动即各执行一轮，不等第一个定时器到期
	if allowBreaker() {
		rebalanceRetry.settle(l.runRebalance(ctx))
	}
	if allowBreaker() {
		refreshRetry.settle(l.runRefresh(ctx))
	}

	rebalanceTicker := time.NewTicker(l.rebalanceEvery)
	defer rebalanceTicker.Stop()
	refreshTicker := time.NewTicker(l.refreshEvery)
	defer refreshTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			l.shutdown()
			return

		case <-l.rebalanceNow:
			// 手动触发不受退避窗口限制，但熔断仍然生效
			if l.breaker.Allow() == nil {
				rebalanceRetry.settle(l.runRebalance(ctx))
			}

		case <-rebalanceTicker.C:
			if rebalanceRetry.ready() && allowBreaker() {
				rebalanceRetry.settle(l.runRebalance(ctx))
			}

		case <-refreshTicker.C:
			if refreshRetry.ready() && allowBreaker() {
				refreshRetry.settle(l.runRefresh(ctx))
			}
		}
	}
}

// retryState 单个周期动作的退避状态
type retryState struct {
	errStreak    int
	backoffUntil time.Time
}

func (r *retryState) ready() bool {
	return !time.Now().Before(r.backoffUntil)
}

func (r *retryState) settle(err error) {
	if err != nil {
		r.errStreak++
		r.backoffUntil = time.Now().Add(backoffDelay(r.errStreak))
		return
	}
	r.errStreak = 0
	r.backoffUntil = time.Time{}
}

func (l *Loop) runRebalance(ctx context.Context) error {
	metrics.RebalanceCycles.Add(1)
	d, err := l.engine.Run(ctx, l.client)
	if err != nil {
		metrics.RebalanceErrors.Add(1)
		l.breaker.OnError()
		l.log.Errorf("再平衡周期失败: %v", err)
		return err
	}
	l.breaker.OnSuccess()
	if d.Action != rebalance.ActionNone {
		metrics.RebalanceTrades.Add(1)
	}
	l.mu.Lock()
	l.status.LastRebalance = time.Now()
	l.status.LastAction = string(d.Action)
	l.mu.Unlock()
	return nil
}

func (l *Loop) runRefresh(ctx context.Context) error {
	metrics.OrderRefreshes.Add(1)
	if err := l.orders.Refresh(ctx, l.client); err != nil {
		metrics.OrderErrors.Add(1)
		l.breaker.OnError()
		l.log.Errorf("挂单刷新失败: %v", err)
		return err
	}
	l.breaker.OnSuccess()
	l.mu.Lock()
	l.status.LastRefresh = time.Now()
	l.mu.Unlock()
	return nil
}

// shutdown 退出前清场：撤掉跟踪中的挂单，超时五秒放弃。
// 进行中的半轮刷新（只挂了买单没挂卖单）不回滚，由人工或重启后收敛。
func (l *Loop) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	l.orders.CancelAll(ctx, l.client)
}
