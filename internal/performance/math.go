package performance

import (
	"github.com/shopspring/decimal"
)

const places = 4

var (
	hundred = decimal.NewFromInt(100)
	one     = decimal.NewFromInt(1)
	two     = decimal.NewFromInt(2)
)

// quantize rounds half away from zero to four places.
func quantize(d decimal.Decimal) decimal.Decimal {
	return d.Round(places)
}

// pctChange returns (to - from) / from × 100, or zero when from is zero.
func pctChange(from, to decimal.Decimal) decimal.Decimal {
	if from.IsZero() {
		return decimal.Zero
	}
	return to.Sub(from).Div(from).Mul(hundred)
}

// ratio returns num / den, or zero when den is zero.
func ratio(num, den decimal.Decimal) decimal.Decimal {
	if den.IsZero() {
		return decimal.Zero
	}
	return num.Div(den)
}

func mean(values []decimal.Decimal) decimal.Decimal {
	if len(values) == 0 {
		return decimal.Zero
	}
	return decimal.Sum(decimal.Zero, values...).Div(decimal.NewFromInt(int64(len(values))))
}

var sqrtTolerance = decimal.New(1, -18)

// sqrt computes a square root by Newton iteration. Negative input yields zero.
func sqrt(d decimal.Decimal) decimal.Decimal {
	if !d.IsPositive() {
		return decimal.Zero
	}
	x := d
	if d.LessThan(one) {
		x = one
	}
	for i := 0; i < 100; i++ {
		next := x.Add(d.DivRound(x, 24)).DivRound(two, 24)
		if next.Sub(x).Abs().LessThan(sqrtTolerance) {
			return next
		}
		x = next
	}
	return x
}
