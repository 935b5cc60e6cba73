package orders

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/mntlbot/rebalancer/internal/exchange"
	"github.com/mntlbot/rebalancer/pkg/logger"
	"github.com/mntlbot/rebalancer/pkg/marketspec"
)

// Manager 维护一对滚动的限价挂单（买一单 + 卖一单），
// 每个短周期撤掉旧单、按最新盘口中间价重新挂出，维持交易存在感。
//
// 成交检测不在这里做：某一侧成交后靠下一轮无条件撤换来收敛敞口。
// 跟踪的订单号只存内存，进程退出即丢失。
type Manager struct {
	spec     marketspec.PairSpec
	quantity decimal.Decimal
	tracked  []string
	log      *logrus.Entry
}

// NewManager 构造挂单管理器。quantity 是每侧挂单的固定数量。
func NewManager(spec marketspec.PairSpec, quantity decimal.Decimal) *Manager {
	return &Manager{
		spec:     spec,
		quantity: quantity,
		log:      logger.WithField("component", "orders"),
	}
}

// Tracked 当前跟踪的订单号快照
func (m *Manager) Tracked() []string {
	out := make([]string, len(m.tracked))
	copy(out, m.tracked)
	return out
}

// Refresh 执行一轮撤换：
//  1. 逐个撤销跟踪中的订单，撤销成功才从集合移除，
//     失败的留到下一轮重试，避免订单悄悄成为孤儿
//  2. 读取盘口买一/卖一，算中间价；任一侧为空则本轮放弃挂单
//  3. 以中间价各挂一张买单和一张卖单；一侧被拒不影响另一侧
func (m *Manager) Refresh(ctx context.Context, client exchange.Client) error {
	m.cancelTracked(ctx, client)

	top, err := client.OrderBookTop(ctx, m.spec.Symbol, 5)
	if err != nil {
		if errors.Is(err, exchange.ErrEmptyBook) {
			m.log.Warnf("盘口单边为空，本轮不挂单: %s", m.spec.Symbol)
			return nil
		}
		return errors.Wrap(err, "orders: fetch book top")
	}
	mid := top.Midpoint()

	var placed, rejected int
	for _, side := range []exchange.Side{exchange.SideBuy, exchange.SideSell} {
		orderID, err := client.PlaceOrder(ctx, exchange.OrderRequest{
			Symbol:        m.spec.Symbol,
			Side:          side,
			Type:          exchange.OrderTypeLimit,
			Quantity:      m.quantity,
			Price:         mid,
			ClientOrderID: uuid.New().String(),
		})
		if err != nil {
			rejected++
			m.log.Warnf("挂单被拒: %s %s @ %s: %v", m.spec.Symbol, side, m.spec.FormatPrice(mid), err)
			continue
		}
		placed++
		m.tracked = append(m.tracked, orderID)
	}

	m.log.WithFields(logrus.Fields{
		"exchange": client.Name(),
		"mid":      m.spec.FormatPrice(mid),
		"placed":   placed,
		"rejected": rejected,
		"tracked":  len(m.tracked),
	}).Info("挂单刷新完成")
	return nil
}

// CancelAll 撤掉所有跟踪中的订单（退出前清场用）
func (m *Manager) CancelAll(ctx context.Context, client exchange.Client) {
	m.cancelTracked(ctx, client)
}

func (m *Manager) cancelTracked(ctx context.Context, client exchange.Client) {
	remaining := m.tracked[:0]
	for _, orderID := range m.tracked {
		if err := client.CancelOrder(ctx, m.spec.Symbol, orderID); err != nil {
			m.log.Warnf("撤单失败，留待下轮重试: %s: %v", orderID, err)
			remaining = append(remaining, orderID)
			continue
		}
	}
	m.tracked = remaining
}
