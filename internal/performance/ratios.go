package performance

import (
	"github.com/shopspring/decimal"
)

// periodsPerYear annualizes per-bar ratios, assuming daily bars.
const periodsPerYear = 252

// SharpeRatio computes the annualized mean over sample standard deviation of
// per-point returns, with a zero risk-free rate.
func SharpeRatio(equity []EquityPoint) decimal.Decimal {
	returns := pointReturns(equity)
	if len(returns) < 2 {
		return decimal.Zero
	}

	avg := mean(returns)
	variance := decimal.Zero
	for _, r := range returns {
		d := r.Sub(avg)
		variance = variance.Add(d.Mul(d))
	}
	stdDev := sqrt(variance.Div(decimal.NewFromInt(int64(len(returns) - 1))))
	if stdDev.IsZero() {
		return decimal.Zero
	}
	return quantize(avg.Div(stdDev).Mul(sqrt(decimal.NewFromInt(periodsPerYear))))
}

// SortinoRatio is SharpeRatio with downside deviation in the denominator.
func SortinoRatio(equity []EquityPoint) decimal.Decimal {
	returns := pointReturns(equity)
	if len(returns) < 2 {
		return decimal.Zero
	}

	downside := decimal.Zero
	for _, r := range returns {
		if r.IsNegative() {
			downside = downside.Add(r.Mul(r))
		}
	}
	deviation := sqrt(downside.Div(decimal.NewFromInt(int64(len(returns)))))
	if deviation.IsZero() {
		return decimal.Zero
	}
	return quantize(mean(returns).Div(deviation).Mul(sqrt(decimal.NewFromInt(periodsPerYear))))
}

// pointReturns returns the per-point percent changes, skipping the first
// point which has no predecessor.
func pointReturns(equity []EquityPoint) []decimal.Decimal {
	if len(equity) < 2 {
		return nil
	}
	out := make([]decimal.Decimal, 0, len(equity)-1)
	for i := 1; i < len(equity); i++ {
		out = append(out, pctChange(equity[i-1].PortfolioValue, equity[i].PortfolioValue))
	}
	return out
}
