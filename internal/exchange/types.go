package exchange

import (
	"github.com/shopspring/decimal"
)

// Side 订单方向
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// OrderType 订单类型
type OrderType string

const (
	OrderTypeMarket OrderType = "MARKET"
	OrderTypeLimit  OrderType = "LIMIT"
)

// Balance 单个资产的账户余额快照。
// 每个轮询周期重新拉取，绝不跨周期缓存。
type Balance struct {
	Asset  string
	Free   decimal.Decimal
	Locked decimal.Decimal
}

// Total 可用 + 冻结
func (b Balance) Total() decimal.Decimal {
	return b.Free.Add(b.Locked)
}

// BookTop 订单簿顶部快照
type BookTop struct {
	BestBid decimal.Decimal
	BestAsk decimal.Decimal
}

// Midpoint 买一卖一中点价
func (t BookTop) Midpoint() decimal.Decimal {
	return t.BestBid.Add(t.BestAsk).DivRound(decimal.NewFromInt(2), 16)
}

// OrderRequest 下单请求。
// 数量语义按方向区分：市价买单的 Quantity 表示要花费的计价资产金额，
// 市价卖单的 Quantity 表示要卖出的基础资产数量；
// 限价单的 Quantity 是基础资产数量，且必须提供 Price。
type OrderRequest struct {
	Symbol        string
	Side          Side
	Type          OrderType
	Quantity      decimal.Decimal
	Price         decimal.Decimal // 仅限价单
	ClientOrderID string          // 可选，幂等标识
}
