package indicator

import (
	"github.com/shopspring/decimal"

	"github.com/newthinker/replay/internal/core"
)

// SMA calculates Simple Moving Average
// Returns slice of length: len(prices) - period + 1
func SMA(prices []decimal.Decimal, period int) []decimal.Decimal {
	if period <= 0 || len(prices) < period {
		return []decimal.Decimal{}
	}

	result := make([]decimal.Decimal, 0, len(prices)-period+1)
	n := decimal.NewFromInt(int64(period))

	// Calculate first SMA
	sum := decimal.Zero
	for i := 0; i < period; i++ {
		sum = sum.Add(prices[i])
	}
	result = append(result, sum.Div(n))

	// Rolling calculation
	for i := period; i < len(prices); i++ {
		sum = sum.Sub(prices[i-period]).Add(prices[i])
		result = append(result, sum.Div(n))
	}

	return result
}

// EMA calculates Exponential Moving Average
func EMA(prices []decimal.Decimal, period int) []decimal.Decimal {
	if period <= 0 || len(prices) < period {
		return []decimal.Decimal{}
	}

	result := make([]decimal.Decimal, 0, len(prices)-period+1)
	multiplier := decimal.NewFromInt(2).Div(decimal.NewFromInt(int64(period + 1)))

	// Start with SMA as first EMA value
	sum := decimal.Zero
	for i := 0; i < period; i++ {
		sum = sum.Add(prices[i])
	}
	ema := sum.Div(decimal.NewFromInt(int64(period)))
	result = append(result, ema)

	// Calculate EMA for remaining prices
	for i := period; i < len(prices); i++ {
		ema = prices[i].Sub(ema).Mul(multiplier).Add(ema)
		result = append(result, ema)
	}

	return result
}

// ATR calculates the simple-average true range over period bars.
// Returns slice of length: len(bars) - period
func ATR(bars []core.Bar, period int) []decimal.Decimal {
	if period <= 0 || len(bars) <= period {
		return []decimal.Decimal{}
	}

	ranges := make([]decimal.Decimal, 0, len(bars)-1)
	for i := 1; i < len(bars); i++ {
		prevClose := bars[i-1].Close
		tr := decimal.Max(
			bars[i].High.Sub(bars[i].Low),
			bars[i].High.Sub(prevClose).Abs(),
			bars[i].Low.Sub(prevClose).Abs(),
		)
		ranges = append(ranges, tr)
	}
	return SMA(ranges, period)
}

// Closes extracts closing prices.
func Closes(bars []core.Bar) []decimal.Decimal {
	out := make([]decimal.Decimal, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}
