package rebalance

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/mntlbot/rebalancer/internal/exchange"
	"github.com/mntlbot/rebalancer/pkg/marketspec"
)

func testEngine(t *testing.T, targetQuote, threshold float64) *Engine {
	t.Helper()
	spec, err := marketspec.New("MNTLUSDT", "MNTL", "USDT", 0, 8, 1)
	require.NoError(t, err)
	e, err := New(Target{
		TargetQuote: decimal.NewFromFloat(targetQuote),
		Threshold:   decimal.NewFromFloat(threshold),
	}, spec, nil, decimal.Zero)
	require.NoError(t, err)
	return e
}

func bal(asset string, free float64) exchange.Balance {
	return exchange.Balance{Asset: asset, Free: decimal.NewFromFloat(free)}
}

func TestDecideBuyOnExcessQuote(t *testing.T) {
	e := testEngine(t, 1000, 0.05)

	d := e.Decide(bal("USDT", 1080), bal("MNTL", 50000), decimal.NewFromFloat(0.02))
	require.Equal(t, ActionBuy, d.Action)
	require.Equal(t, "80", d.Quantity.String())
	require.Equal(t, "80", d.Deviation.String())
	require.Equal(t, "0.08", d.DeviationPct.String())
}

func TestDecideBuyRoundsQuoteAmount(t *testing.T) {
	e := testEngine(t, 1000, 0.05)

	d := e.Decide(bal("USDT", 1080.567), bal("MNTL", 0), decimal.NewFromFloat(0.02))
	require.Equal(t, ActionBuy, d.Action)
	require.Equal(t, "80.57", d.Quantity.String())
}

func TestDecideNoopWithinThreshold(t *testing.T) {
	e := testEngine(t, 1000, 0.05)

	d := e.Decide(bal("USDT", 960), bal("MNTL", 50000), decimal.NewFromFloat(0.02))
	require.Equal(t, ActionNone, d.Action)
	require.Equal(t, "-40", d.Deviation.String())
	require.Equal(t, "0.04", d.DeviationPct.String())
}

func TestDecideSellClampedToHoldings(t *testing.T) {
	e := testEngine(t, 40, 0.05)

	// 缺口 30 USDT / 0.02 = 需卖 1500，但只持有 500 → 部分纠偏
	d := e.Decide(bal("USDT", 10), bal("MNTL", 500), decimal.NewFromFloat(0.02))
	require.Equal(t, ActionSell, d.Action)
	require.Equal(t, "500", d.Quantity.String())
}

func TestDecideSellFloorsQuantity(t *testing.T) {
	e := testEngine(t, 1000, 0.05)

	// 缺口 100 / 0.03 = 3333.33... → 向下取整
	d := e.Decide(bal("USDT", 900), bal("MNTL", 50000), decimal.NewFromFloat(0.03))
	require.Equal(t, ActionSell, d.Action)
	require.Equal(t, "3333", d.Quantity.String())
}

func TestDecideAbandonsBelowMinimum(t *testing.T) {
	e := testEngine(t, 40, 0.05)

	// 持仓取整后为 0，低于最小可交易数量 → 放弃
	d := e.Decide(bal("USDT", 10), bal("MNTL", 0.9), decimal.NewFromFloat(0.02))
	require.Equal(t, ActionNone, d.Action)
	require.Equal(t, "sell quantity below exchange minimum", d.Reason)
}

func TestDecideZeroPriceAborts(t *testing.T) {
	e := testEngine(t, 1000, 0.05)

	// 行情价格不可用时买卖两个方向都放弃，不能只拦住卖出
	d := e.Decide(bal("USDT", 900), bal("MNTL", 50000), decimal.Zero)
	require.Equal(t, ActionNone, d.Action)
	require.Equal(t, "unusable market price", d.Reason)

	d = e.Decide(bal("USDT", 1080), bal("MNTL", 50000), decimal.Zero)
	require.Equal(t, ActionNone, d.Action)
	require.Equal(t, "unusable market price", d.Reason)
}

func TestDecideCountsLockedBalance(t *testing.T) {
	e := testEngine(t, 1000, 0.05)

	quote := exchange.Balance{
		Asset:  "USDT",
		Free:   decimal.NewFromInt(1000),
		Locked: decimal.NewFromInt(80),
	}
	d := e.Decide(quote, bal("MNTL", 0), decimal.NewFromFloat(0.02))
	require.Equal(t, ActionBuy, d.Action)
	require.Equal(t, "80", d.Quantity.String())
}

func TestNewRejectsZeroTarget(t *testing.T) {
	spec, err := marketspec.New("MNTLUSDT", "MNTL", "USDT", 0, 8, 1)
	require.NoError(t, err)

	_, err = New(Target{
		TargetQuote: decimal.Zero,
		Threshold:   decimal.NewFromFloat(0.05),
	}, spec, nil, decimal.Zero)
	require.Error(t, err)
}

func TestNewRejectsBadThreshold(t *testing.T) {
	spec, err := marketspec.New("MNTLUSDT", "MNTL", "USDT", 0, 8, 1)
	require.NoError(t, err)

	for _, th := range []float64{0, 1, 1.5, -0.1} {
		_, err = New(Target{
			TargetQuote: decimal.NewFromInt(1000),
			Threshold:   decimal.NewFromFloat(th),
		}, spec, nil, decimal.Zero)
		require.Error(t, err, "threshold %v", th)
	}
}

// fakeClient 固定返回余额和价格，记录收到的订单
type fakeClient struct {
	balances map[string]exchange.Balance
	price    decimal.Decimal
	orders   []exchange.OrderRequest
}

func (f *fakeClient) Name() string                                      { return "fake" }
func (f *fakeClient) ServerTime(context.Context) (int64, error)         { return 0, nil }
func (f *fakeClient) CancelOrder(context.Context, string, string) error { return nil }

func (f *fakeClient) AccountBalances(context.Context) (map[string]exchange.Balance, error) {
	return f.balances, nil
}

func (f *fakeClient) Price(context.Context, string) (decimal.Decimal, error) {
	return f.price, nil
}

func (f *fakeClient) PlaceOrder(_ context.Context, req exchange.OrderRequest) (string, error) {
	f.orders = append(f.orders, req)
	return "order-1", nil
}

func (f *fakeClient) OrderBookTop(context.Context, string, int) (exchange.BookTop, error) {
	return exchange.BookTop{}, exchange.ErrEmptyBook
}

func TestRunPlacesMarketBuy(t *testing.T) {
	e := testEngine(t, 1000, 0.05)
	client := &fakeClient{
		balances: map[string]exchange.Balance{
			"USDT": bal("USDT", 1080),
			"MNTL": bal("MNTL", 50000),
		},
		price: decimal.NewFromFloat(0.02),
	}

	d, err := e.Run(context.Background(), client)
	require.NoError(t, err)
	require.Equal(t, ActionBuy, d.Action)
	require.Len(t, client.orders, 1)
	require.Equal(t, exchange.SideBuy, client.orders[0].Side)
	require.Equal(t, exchange.OrderTypeMarket, client.orders[0].Type)
	require.Equal(t, "80", client.orders[0].Quantity.String())
}

func TestRunNoopPlacesNothing(t *testing.T) {
	e := testEngine(t, 1000, 0.05)
	client := &fakeClient{
		balances: map[string]exchange.Balance{
			"USDT": bal("USDT", 1020),
			"MNTL": bal("MNTL", 50000),
		},
		price: decimal.NewFromFloat(0.02),
	}

	d, err := e.Run(context.Background(), client)
	require.NoError(t, err)
	require.Equal(t, ActionNone, d.Action)
	require.Empty(t, client.orders)
}

// recordingNotifier 捕获告警消息
type recordingNotifier struct{ messages []string }

func (r *recordingNotifier) Notify(msg string) { r.messages = append(r.messages, msg) }

func TestRunWarnsOnLowBaseBalance(t *testing.T) {
	spec, err := marketspec.New("MNTLUSDT", "MNTL", "USDT", 0, 8, 1)
	require.NoError(t, err)
	notifier := &recordingNotifier{}
	e, err := New(Target{
		TargetQuote: decimal.NewFromInt(1000),
		Threshold:   decimal.NewFromFloat(0.05),
	}, spec, notifier, decimal.NewFromInt(44000))
	require.NoError(t, err)

	client := &fakeClient{
		balances: map[string]exchange.Balance{
			"USDT": bal("USDT", 1000),
			"MNTL": bal("MNTL", 30000),
		},
		price: decimal.NewFromFloat(0.02),
	}
	_, err = e.Run(context.Background(), client)
	require.NoError(t, err)
	require.Len(t, notifier.messages, 1)
	require.Contains(t, notifier.messages[0], "MNTL")
}
