package metrics

import "expvar"

// 进程级计数器，通过 /debug/vars 暴露。
var (
	RebalanceCycles = expvar.NewInt("rebalance_cycles")
	RebalanceTrades = expvar.NewInt("rebalance_trades")
	RebalanceErrors = expvar.NewInt("rebalance_errors")
	OrderRefreshes  = expvar.NewInt("order_refreshes")
	OrderErrors     = expvar.NewInt("order_errors")
	BreakerTrips    = expvar.NewInt("breaker_trips")
)
