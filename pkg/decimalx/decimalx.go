package decimalx

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// Percent 返回 d 的 pct%
func Percent(d decimal.Decimal, pct float64) decimal.Decimal {
	return d.Mul(decimal.NewFromFloat(pct)).Div(hundred)
}

// Ratio part/total 的百分比, total 为 0 时返回 fallback
func Ratio(part, total decimal.Decimal, fallback float64) float64 {
	if total.IsZero() {
		return fallback
	}
	return part.Div(total).Mul(hundred).InexactFloat64()
}
