package exchange

import (
	"context"

	"github.com/shopspring/decimal"
)

// Client 把再平衡核心需要的几个交易所原语收敛成一个接口，
// 对交易所类型（MEXC / LBank）多态。
//
// 所有带签名的调用都用交易所自己的服务器时间做时间戳（容忍本地时钟偏差），
// 每次签名请求前单独拉取，不做缓存。
type Client interface {
	// Name 账户/交易所标识（日志、状态页用）
	Name() string

	// ServerTime 服务器时间（毫秒）
	ServerTime(ctx context.Context) (int64, error)

	// AccountBalances 按资产返回账户余额
	AccountBalances(ctx context.Context) (map[string]Balance, error)

	// Price 交易对最新成交价
	Price(ctx context.Context, symbol string) (decimal.Decimal, error)

	// PlaceOrder 下单，返回交易所订单号
	PlaceOrder(ctx context.Context, req OrderRequest) (string, error)

	// CancelOrder 撤单
	CancelOrder(ctx context.Context, symbol, orderID string) error

	// OrderBookTop 订单簿顶部买一/卖一；任一侧为空返回 ErrEmptyBook
	OrderBookTop(ctx context.Context, symbol string, depth int) (BookTop, error)
}
