package performance

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

var daysPerYear = decimal.RequireFromString("365.25")

// TotalReturnPct returns the percent change from initialCapital to the last
// equity point.
func TotalReturnPct(equity []EquityPoint, initialCapital decimal.Decimal) decimal.Decimal {
	if len(equity) == 0 {
		return decimal.Zero
	}
	return quantize(pctChange(initialCapital, equity[len(equity)-1].PortfolioValue))
}

// CAGR returns the compound annual growth rate as a fraction, based on the
// elapsed days between the first and last equity points. It is zero when no
// time elapsed and -1 when the portfolio was wiped out.
func CAGR(equity []EquityPoint, initialCapital decimal.Decimal) decimal.Decimal {
	if len(equity) < 2 || !initialCapital.IsPositive() {
		return decimal.Zero
	}
	first, last := equity[0], equity[len(equity)-1]
	elapsed := days(first.Timestamp, last.Timestamp)
	if elapsed <= 0 {
		return decimal.Zero
	}
	growth := last.PortfolioValue.Div(initialCapital)
	if !growth.IsPositive() {
		return decimal.NewFromInt(-1)
	}
	exponent := daysPerYear.Div(decimal.NewFromInt(int64(elapsed)))
	compounded, err := growth.PowWithPrecision(exponent, 16)
	if err != nil {
		return decimal.Zero
	}
	return quantize(compounded.Sub(one))
}

type periodKey struct {
	year  int
	month int
}

// MonthlyReturns groups equity points by calendar month and returns the
// first-to-last change of each month with at least two points.
func MonthlyReturns(equity []EquityPoint) []PeriodReturn {
	return periodReturns(equity, func(p EquityPoint) periodKey {
		t := p.Timestamp.UTC()
		return periodKey{year: t.Year(), month: int(t.Month())}
	})
}

// AnnualReturns groups equity points by calendar year and returns the
// first-to-last change of each year with at least two points.
func AnnualReturns(equity []EquityPoint) []PeriodReturn {
	return periodReturns(equity, func(p EquityPoint) periodKey {
		return periodKey{year: p.Timestamp.UTC().Year()}
	})
}

func periodReturns(equity []EquityPoint, keyOf func(EquityPoint) periodKey) []PeriodReturn {
	type bucket struct {
		first, last EquityPoint
		count       int
	}
	buckets := make(map[periodKey]*bucket)
	var keys []periodKey
	for _, p := range equity {
		k := keyOf(p)
		b, ok := buckets[k]
		if !ok {
			b = &bucket{first: p}
			buckets[k] = b
			keys = append(keys, k)
		}
		b.last = p
		b.count++
	}

	sort.Slice(keys, func(i, j int) bool {
		if keys[i].year != keys[j].year {
			return keys[i].year < keys[j].year
		}
		return keys[i].month < keys[j].month
	})

	out := make([]PeriodReturn, 0, len(keys))
	for _, k := range keys {
		b := buckets[k]
		// A single point says nothing about the period.
		if b.count < 2 {
			continue
		}
		out = append(out, PeriodReturn{
			Year:       k.year,
			Month:      time.Month(k.month),
			StartValue: b.first.PortfolioValue,
			EndValue:   b.last.PortfolioValue,
			ReturnPct:  quantize(pctChange(b.first.PortfolioValue, b.last.PortfolioValue)),
		})
	}
	return out
}
