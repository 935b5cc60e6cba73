package rebalance

import (
	"context"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/mntlbot/rebalancer/internal/exchange"
	"github.com/mntlbot/rebalancer/internal/notify"
	"github.com/mntlbot/rebalancer/pkg/logger"
	"github.com/mntlbot/rebalancer/pkg/marketspec"
)

// Action 再平衡决策动作
type Action string

const (
	ActionNone Action = "NONE"
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
)

// Target 再平衡目标：计价资产余额维持在 TargetQuote 附近，
// 偏离比例超过 Threshold 才触发交易。
type Target struct {
	TargetQuote decimal.Decimal
	Threshold   decimal.Decimal
}

// Decision 一次决策的完整结果。
// Quantity 的语义随方向变化：买入时是要花费的计价资产金额，
// 卖出时是要卖出的基础资产数量。
type Decision struct {
	Action       Action
	Quantity     decimal.Decimal
	Deviation    decimal.Decimal
	DeviationPct decimal.Decimal
	Reason       string
}

// Engine 偏差/阈值再平衡引擎。决策函数本身无状态，
// 每个周期读取余额和价格后即算即弃。
type Engine struct {
	target   Target
	spec     marketspec.PairSpec
	notifier notify.Notifier
	baseWarn decimal.Decimal
	log      *logrus.Entry
}

// New 构造引擎。TargetQuote 必须为正，Threshold 必须在 (0,1) 内。
func New(target Target, spec marketspec.PairSpec, notifier notify.Notifier, baseWarn decimal.Decimal) (*Engine, error) {
	if !target.TargetQuote.IsPositive() {
		return nil, errors.Errorf("rebalance: target quote balance must be positive, got %s", target.TargetQuote)
	}
	if !target.Threshold.IsPositive() || target.Threshold.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return nil, errors.Errorf("rebalance: threshold must be in (0,1), got %s", target.Threshold)
	}
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &Engine{
		target:   target,
		spec:     spec,
		notifier: notifier,
		baseWarn: baseWarn,
		log:      logger.WithField("component", "rebalance"),
	}, nil
}

// Decide 纯决策函数：给定两侧余额和最新价，计算本周期的交易意图。
//   - 偏差比例不超过阈值 → 不交易
//   - 价格非正（行情不可用）→ 放弃本周期
//   - 计价资产超额 → 买入，金额 = round(偏差, 2)
//   - 计价资产不足 → 卖出，数量 = floor(|偏差|/价格)，不超过持仓，
//     低于最小可交易数量则本周期放弃
func (e *Engine) Decide(quote, base exchange.Balance, price decimal.Decimal) Decision {
	deviation := quote.Total().Sub(e.target.TargetQuote)
	pct := deviation.Abs().Div(e.target.TargetQuote)

	d := Decision{Action: ActionNone, Deviation: deviation, DeviationPct: pct}

	if pct.LessThanOrEqual(e.target.Threshold) {
		d.Reason = "deviation within threshold"
		return d
	}

	// 价格为零说明行情不可用，买卖两个方向都放弃本周期
	if !price.IsPositive() {
		d.Reason = "unusable market price"
		return d
	}

	if deviation.IsPositive() {
		d.Action = ActionBuy
		d.Quantity = e.spec.RoundQuote(deviation)
		d.Reason = "excess quote balance"
		return d
	}

	qty := e.spec.FloorQuantity(deviation.Abs().Div(price))
	held := e.spec.FloorQuantity(base.Total())
	if qty.GreaterThan(held) {
		// 允许部分纠偏，绝不超卖
		qty = held
	}
	if e.spec.BelowMin(qty) {
		d.Reason = "sell quantity below exchange minimum"
		return d
	}

	d.Action = ActionSell
	d.Quantity = qty
	d.Reason = "quote balance deficit"
	return d
}

// Run 执行一个再平衡周期：拉取余额和价格，决策，必要时下市价单。
// 每次决策连同原始偏差一起记录，便于事后审计。
func (e *Engine) Run(ctx context.Context, client exchange.Client) (Decision, error) {
	balances, err := client.AccountBalances(ctx)
	if err != nil {
		return Decision{}, errors.Wrap(err, "rebalance: fetch balances")
	}
	quote := balances[e.spec.QuoteAsset]
	base := balances[e.spec.BaseAsset]

	e.warnLowBase(base)

	price, err := client.Price(ctx, e.spec.Symbol)
	if err != nil {
		return Decision{}, errors.Wrap(err, "rebalance: fetch price")
	}

	d := e.Decide(quote, base, price)
	e.log.WithFields(logrus.Fields{
		"exchange":  client.Name(),
		"quote":     quote.Total(),
		"base":      base.Total(),
		"price":     price,
		"deviation": d.Deviation,
		"pct":       d.DeviationPct,
		"action":    d.Action,
	}).Infof("再平衡决策: %s", d.Reason)

	if d.Action == ActionNone {
		return d, nil
	}

	req := exchange.OrderRequest{
		Symbol:   e.spec.Symbol,
		Type:     exchange.OrderTypeMarket,
		Quantity: d.Quantity,
	}
	if d.Action == ActionBuy {
		req.Side = exchange.SideBuy
	} else {
		req.Side = exchange.SideSell
	}

	orderID, err := client.PlaceOrder(ctx, req)
	if err != nil {
		return d, errors.Wrapf(err, "rebalance: place %s order", req.Side)
	}
	e.log.Infof("再平衡成交: %s %s qty=%s orderId=%s", client.Name(), req.Side, d.Quantity, orderID)
	return d, nil
}

// warnLowBase 基础资产余额低于预警线时通知一次（每周期最多一条）
func (e *Engine) warnLowBase(base exchange.Balance) {
	if e.baseWarn.IsZero() {
		return
	}
	if base.Total().LessThan(e.baseWarn) {
		e.notifier.Notify("余额预警: " + e.spec.BaseAsset + " 仅剩 " + base.Total().String() +
			"，低于预警线 " + e.baseWarn.String())
	}
}
