package core

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Bar is one OHLCV sample for a symbol and timeframe.
type Bar struct {
	Symbol    string
	Timeframe string // "1m", "1h", "1d"
	Timestamp time.Time
	Open      decimal.Decimal
	High      decimal.Decimal
	Low       decimal.Decimal
	Close     decimal.Decimal
	Volume    int64
}

// Validate checks the OHLC relationships of a single bar.
func (b Bar) Validate() error {
	if b.Symbol == "" {
		return fmt.Errorf("bar at %s has no symbol", b.Timestamp.Format(time.RFC3339))
	}
	if b.Timestamp.IsZero() {
		return fmt.Errorf("bar for %s has no timestamp", b.Symbol)
	}
	if b.Low.GreaterThan(b.High) {
		return fmt.Errorf("bar %s@%s: low %s above high %s", b.Symbol, b.Timestamp.Format(time.RFC3339), b.Low, b.High)
	}
	if !b.Contains(b.Close) || !b.Contains(b.Open) {
		return fmt.Errorf("bar %s@%s: open/close outside [%s, %s]", b.Symbol, b.Timestamp.Format(time.RFC3339), b.Low, b.High)
	}
	if b.Low.IsNegative() {
		return fmt.Errorf("bar %s@%s: negative price", b.Symbol, b.Timestamp.Format(time.RFC3339))
	}
	if b.Volume < 0 {
		return fmt.Errorf("bar %s@%s: negative volume %d", b.Symbol, b.Timestamp.Format(time.RFC3339), b.Volume)
	}
	return nil
}

// Contains reports whether price lies within [Low, High].
func (b Bar) Contains(price decimal.Decimal) bool {
	return price.GreaterThanOrEqual(b.Low) && price.LessThanOrEqual(b.High)
}

// SignalKind is the decision a strategy returns for a bar.
type SignalKind int

const (
	// SignalHold leaves the book unchanged. It is the zero value.
	SignalHold SignalKind = iota
	SignalBuy
	SignalSell
)

func (k SignalKind) String() string {
	switch k {
	case SignalHold:
		return "hold"
	case SignalBuy:
		return "buy"
	case SignalSell:
		return "sell"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// Known reports whether k is one of the defined kinds.
func (k SignalKind) Known() bool {
	return k == SignalHold || k == SignalBuy || k == SignalSell
}

// Signal is what a strategy returns for a bar. LimitPrice turns the resulting
// order into a limit order; StopPrice sets the initial risk used for R-multiples;
// Tag names the price pattern the trade belongs to (e.g. "SPRING").
type Signal struct {
	Kind       SignalKind
	LimitPrice *decimal.Decimal
	StopPrice  *decimal.Decimal
	Tag        string
	Reason     string
}

// Hold returns a no-op signal.
func Hold() Signal { return Signal{Kind: SignalHold} }

// Buy returns a market buy signal.
func Buy() Signal { return Signal{Kind: SignalBuy} }

// Sell returns a market sell signal.
func Sell() Signal { return Signal{Kind: SignalSell} }

// WithLimit returns a copy of s with a limit price.
func (s Signal) WithLimit(price decimal.Decimal) Signal {
	s.LimitPrice = &price
	return s
}

// WithStop returns a copy of s with a protective stop price.
func (s Signal) WithStop(price decimal.Decimal) Signal {
	s.StopPrice = &price
	return s
}

// WithTag returns a copy of s tagged with a pattern name.
func (s Signal) WithTag(tag string) Signal {
	s.Tag = tag
	return s
}
