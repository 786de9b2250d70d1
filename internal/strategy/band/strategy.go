package band

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/newthinker/replay/internal/core"
	"github.com/newthinker/replay/internal/indicator"
	"github.com/newthinker/replay/internal/strategy"
)

// Band implements a mean-reversion band strategy around a moving average.
// It bids at the lower band with a limit order and exits above the upper band.
type Band struct {
	period int
	width  decimal.Decimal
	// stopPct sets the protective stop below the limit price; zero disables it.
	stopPct decimal.Decimal
}

func New(period int, width decimal.Decimal) *Band {
	return &Band{period: period, width: width}
}

func (b *Band) Name() string { return "band" }

func (b *Band) Description() string {
	return fmt.Sprintf("Band Strategy (SMA%d ± %s%%)", b.period, b.width.Shift(2).String())
}

func (b *Band) Init(cfg strategy.Config) error {
	period, err := cfg.Int("period", b.period)
	if err != nil {
		return err
	}
	width, err := cfg.Decimal("width", b.width)
	if err != nil {
		return err
	}
	stop, err := cfg.Decimal("stop_pct", b.stopPct)
	if err != nil {
		return err
	}
	if period <= 1 {
		return fmt.Errorf("period must be above 1, got %d", period)
	}
	one := decimal.NewFromInt(1)
	if !width.IsPositive() || width.GreaterThanOrEqual(one) {
		return fmt.Errorf("width must be within (0, 1), got %s", width)
	}
	if stop.IsNegative() || stop.GreaterThanOrEqual(one) {
		return fmt.Errorf("stop_pct must be within [0, 1), got %s", stop)
	}
	b.period, b.width, b.stopPct = period, width, stop
	return nil
}

func (b *Band) Decide(bar core.Bar, ctx *strategy.Context) core.Signal {
	if ctx.History.Len() < b.period-1 {
		return core.Hold()
	}

	prices := append(indicator.Closes(ctx.History.Tail(b.period-1)), bar.Close)
	ma := indicator.SMA(prices, b.period)
	if len(ma) == 0 {
		return core.Hold()
	}
	mean := ma[len(ma)-1]
	one := decimal.NewFromInt(1)
	lower := mean.Mul(one.Sub(b.width))
	upper := mean.Mul(one.Add(b.width))

	if ctx.Position == nil && bar.Close.LessThan(mean) {
		limit := lower.Round(2)
		sig := core.Buy().WithLimit(limit)
		sig.Reason = fmt.Sprintf("Bid at lower band %s (SMA%d %s)", limit, b.period, mean.StringFixed(2))
		if b.stopPct.IsPositive() {
			sig = sig.WithStop(limit.Mul(one.Sub(b.stopPct)))
		}
		return sig
	}

	if ctx.Position != nil && bar.Close.GreaterThan(upper) {
		sig := core.Sell()
		sig.Reason = fmt.Sprintf("Close %s above upper band %s", bar.Close, upper.StringFixed(2))
		return sig
	}

	return core.Hold()
}
