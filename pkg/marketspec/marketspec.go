package marketspec

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// PairSpec 表示一个现货交易对的交易规则。
// 数量/价格精度与最小下单数量由交易所针对每个交易对规定，
// 下单前必须按这些规则归一化，否则会被交易所拒单。
type PairSpec struct {
	Symbol     string // 交易对，例如 MNTLUSDT
	BaseAsset  string // 基础资产，例如 MNTL
	QuoteAsset string // 计价资产，例如 USDT

	QuantityPrecision int32           // 基础资产数量精度（小数位）
	PricePrecision    int32           // 价格精度（小数位）
	MinQuantity       decimal.Decimal // 最小可交易数量（基础资产）
}

var symbolRe = regexp.MustCompile(`^[A-Z0-9_]+$`)

func New(symbol, baseAsset, quoteAsset string, quantityPrecision, pricePrecision int, minQuantity float64) (PairSpec, error) {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	if !symbolRe.MatchString(s) {
		return PairSpec{}, fmt.Errorf("无效的 symbol: %q", symbol)
	}
	if quantityPrecision < 0 || pricePrecision < 0 {
		return PairSpec{}, fmt.Errorf("精度不能为负数: quantity=%d price=%d", quantityPrecision, pricePrecision)
	}
	if minQuantity < 0 {
		return PairSpec{}, fmt.Errorf("最小数量不能为负数: %v", minQuantity)
	}
	return PairSpec{
		Symbol:            s,
		BaseAsset:         strings.ToUpper(strings.TrimSpace(baseAsset)),
		QuoteAsset:        strings.ToUpper(strings.TrimSpace(quoteAsset)),
		QuantityPrecision: int32(quantityPrecision),
		PricePrecision:    int32(pricePrecision),
		MinQuantity:       decimal.NewFromFloat(minQuantity),
	}, nil
}

// FloorQuantity 将基础资产数量向下取整到数量精度。
// 只向下、不向上，避免下单数量超出实际可用余额。
func (p PairSpec) FloorQuantity(q decimal.Decimal) decimal.Decimal {
	return q.RoundFloor(p.QuantityPrecision)
}

// RoundQuote 将计价资产金额四舍五入到两位小数（USDT 类计价惯例）。
func (p PairSpec) RoundQuote(amount decimal.Decimal) decimal.Decimal {
	return amount.Round(2)
}

// FormatPrice 以固定价格精度渲染价格
func (p PairSpec) FormatPrice(price decimal.Decimal) string {
	return price.StringFixed(p.PricePrecision)
}

// FormatQuantity 以固定数量精度渲染数量（已向下取整）
func (p PairSpec) FormatQuantity(q decimal.Decimal) string {
	return p.FloorQuantity(q).StringFixed(p.QuantityPrecision)
}

// BelowMin 判断数量（取整后）是否低于最小可交易数量
func (p PairSpec) BelowMin(q decimal.Decimal) bool {
	return p.FloorQuantity(q).LessThan(p.MinQuantity)
}

// LowerSymbol 返回小写下划线风格的交易对（LBank 风格，例如 mntl_usdt）
func (p PairSpec) LowerSymbol() string {
	if p.BaseAsset != "" && p.QuoteAsset != "" {
		return strings.ToLower(p.BaseAsset) + "_" + strings.ToLower(p.QuoteAsset)
	}
	return strings.ToLower(p.Symbol)
}
