package ma_crossover

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/newthinker/replay/internal/core"
	"github.com/newthinker/replay/internal/indicator"
	"github.com/newthinker/replay/internal/strategy"
)

// MACrossover implements a moving average crossover strategy
type MACrossover struct {
	fastPeriod int
	slowPeriod int
	// stopPct places a protective stop below the entry close; zero disables it.
	stopPct decimal.Decimal
}

// New creates a new MA Crossover strategy
func New(fastPeriod, slowPeriod int) *MACrossover {
	return &MACrossover{
		fastPeriod: fastPeriod,
		slowPeriod: slowPeriod,
	}
}

func (m *MACrossover) Name() string {
	return "ma_crossover"
}

func (m *MACrossover) Description() string {
	return fmt.Sprintf("MA Crossover (%d/%d)", m.fastPeriod, m.slowPeriod)
}

func (m *MACrossover) Init(cfg strategy.Config) error {
	fast, err := cfg.Int("fast_period", m.fastPeriod)
	if err != nil {
		return err
	}
	slow, err := cfg.Int("slow_period", m.slowPeriod)
	if err != nil {
		return err
	}
	stop, err := cfg.Decimal("stop_pct", m.stopPct)
	if err != nil {
		return err
	}
	if fast <= 0 || slow <= 0 {
		return fmt.Errorf("periods must be positive, got %d/%d", fast, slow)
	}
	if fast >= slow {
		return fmt.Errorf("fast period %d must be below slow period %d", fast, slow)
	}
	if stop.IsNegative() || stop.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return fmt.Errorf("stop_pct must be within [0, 1), got %s", stop)
	}
	m.fastPeriod, m.slowPeriod, m.stopPct = fast, slow, stop
	return nil
}

func (m *MACrossover) Decide(bar core.Bar, ctx *strategy.Context) core.Signal {
	// The slow MA needs slowPeriod closes now and one more for the previous value.
	if ctx.History.Len() < m.slowPeriod {
		return core.Hold()
	}

	// Extract closing prices
	prices := append(indicator.Closes(ctx.History.Tail(m.slowPeriod)), bar.Close)

	// Calculate moving averages
	fastMA := indicator.SMA(prices, m.fastPeriod)
	slowMA := indicator.SMA(prices, m.slowPeriod)

	if len(fastMA) < 2 || len(slowMA) < 2 {
		return core.Hold()
	}

	// Get current and previous values
	currFast := fastMA[len(fastMA)-1]
	prevFast := fastMA[len(fastMA)-2]
	currSlow := slowMA[len(slowMA)-1]
	prevSlow := slowMA[len(slowMA)-2]

	// Golden Cross: fast crosses above slow
	if prevFast.LessThanOrEqual(prevSlow) && currFast.GreaterThan(currSlow) {
		if ctx.Position != nil {
			return core.Hold()
		}
		sig := core.Buy()
		sig.Reason = fmt.Sprintf("Golden Cross: MA%d (%s) crossed above MA%d (%s)",
			m.fastPeriod, currFast.StringFixed(2), m.slowPeriod, currSlow.StringFixed(2))
		if m.stopPct.IsPositive() {
			sig = sig.WithStop(bar.Close.Mul(decimal.NewFromInt(1).Sub(m.stopPct)))
		}
		return sig
	}

	// Death Cross: fast crosses below slow
	if prevFast.GreaterThanOrEqual(prevSlow) && currFast.LessThan(currSlow) {
		if ctx.Position == nil {
			return core.Hold()
		}
		sig := core.Sell()
		sig.Reason = fmt.Sprintf("Death Cross: MA%d (%s) crossed below MA%d (%s)",
			m.fastPeriod, currFast.StringFixed(2), m.slowPeriod, currSlow.StringFixed(2))
		return sig
	}

	return core.Hold()
}
