package exchange

import (
	"context"
	"strconv"
	"sync/atomic"

	"github.com/shopspring/decimal"

	"github.com/mntlbot/rebalancer/pkg/logger"
)

// DryRun 包装一个真实客户端：行情和余额照常读取，
// 下单/撤单只记日志并返回合成订单号，不触达交易所。
type DryRun struct {
	inner Client
	seq   atomic.Int64
}

func NewDryRun(inner Client) *DryRun {
	return &DryRun{inner: inner}
}

func (d *DryRun) Name() string { return d.inner.Name() + " (dry-run)" }

func (d *DryRun) ServerTime(ctx context.Context) (int64, error) {
	return d.inner.ServerTime(ctx)
}

func (d *DryRun) AccountBalances(ctx context.Context) (map[string]Balance, error) {
	return d.inner.AccountBalances(ctx)
}

func (d *DryRun) Price(ctx context.Context, symbol string) (decimal.Decimal, error) {
	return d.inner.Price(ctx, symbol)
}

func (d *DryRun) OrderBookTop(ctx context.Context, symbol string, depth int) (BookTop, error) {
	return d.inner.OrderBookTop(ctx, symbol, depth)
}

func (d *DryRun) PlaceOrder(_ context.Context, req OrderRequest) (string, error) {
	id := "dry-" + strconv.FormatInt(d.seq.Add(1), 10)
	logger.Infof("[dry-run] 下单: %s %s %s qty=%s price=%s -> %s",
		d.inner.Name(), req.Side, req.Type, req.Quantity, req.Price, id)
	return id, nil
}

func (d *DryRun) CancelOrder(_ context.Context, symbol, orderID string) error {
	logger.Infof("[dry-run] 撤单: %s %s %s", d.inner.Name(), symbol, orderID)
	return nil
}
