package backtest

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/newthinker/replay/internal/broker"
	"github.com/newthinker/replay/internal/campaign"
	"github.com/newthinker/replay/internal/core"
	"github.com/newthinker/replay/internal/performance"
)

// EquityPoint is the portfolio state recorded after each processed bar.
type EquityPoint = performance.EquityPoint

// Snapshot is the open-position state recorded after each processed bar.
type Snapshot = performance.Snapshot

// State is the lifecycle stage of a run.
type State int

const (
	// StateAwaitingFirstBar has no earlier bar to fill pending orders from.
	StateAwaitingFirstBar State = iota
	StateRunning
	// StateFinalizing resolves what is still pending against the last bars.
	StateFinalizing
	StateDone
)

func (s State) String() string {
	switch s {
	case StateAwaitingFirstBar:
		return "AWAITING_FIRST_BAR"
	case StateRunning:
		return "RUNNING"
	case StateFinalizing:
		return "FINALIZING"
	case StateDone:
		return "DONE"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Config holds the engine settings of a run.
type Config struct {
	InitialCapital decimal.Decimal
	// MaxPositionSize is the fraction of cash committed to one entry.
	MaxPositionSize decimal.Decimal
	// Pyramiding lets a Buy add to an open long position.
	Pyramiding bool
	// VolumeLookback is the number of earlier bars averaged for the volume
	// participation used by slippage. Zero disables it.
	VolumeLookback int
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return Config{
		InitialCapital:  decimal.NewFromInt(100000),
		MaxPositionSize: decimal.RequireFromString("0.25"),
		VolumeLookback:  20,
	}
}

// Validate checks the bounds of every setting.
func (c Config) Validate() error {
	if !c.InitialCapital.IsPositive() {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("initial_capital must be positive, got %s", c.InitialCapital))
	}
	if c.MaxPositionSize.IsNegative() || c.MaxPositionSize.GreaterThan(decimal.NewFromInt(1)) {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("max_position_size must be within [0, 1], got %s", c.MaxPositionSize))
	}
	if c.VolumeLookback < 0 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("volume_lookback cannot be negative, got %d", c.VolumeLookback))
	}
	return nil
}

// SkippedSignal is a Buy or Sell that produced no order.
type SkippedSignal struct {
	Timestamp time.Time
	Symbol    string
	Kind      core.SignalKind
	Reason    string
}

// ReducedEntry is an entry the risk limits allowed at a smaller quantity.
type ReducedEntry struct {
	Timestamp time.Time
	Symbol    string
	Requested decimal.Decimal
	Allowed   decimal.Decimal
	Reason    string
}

// Result is the immutable outcome of one run.
type Result struct {
	Strategy string
	Config   Config
	Symbols  []string
	Start    time.Time
	End      time.Time
	// BarsProcessed is below the input length when the strategy halted.
	BarsProcessed int
	Halted        bool

	Trades        []broker.Trade
	Orders        []broker.Order
	Skipped       []SkippedSignal
	Reduced       []ReducedEntry
	OpenPositions []broker.Position
	FinalCash     decimal.Decimal
	FinalValue    decimal.Decimal

	EquityCurve []EquityPoint
	Snapshots   []Snapshot
	Metrics     performance.Metrics

	BiasCheckPassed bool
	BiasViolations  []BiasViolation

	Campaigns       []campaign.Campaign
	CampaignSummary campaign.Summary

	// ExecutionSeconds is wall-clock time and the only field that differs
	// between identical runs.
	ExecutionSeconds float64
}

// RejectedOrders returns the orders that ended REJECTED.
func (r *Result) RejectedOrders() []broker.Order {
	var out []broker.Order
	for _, o := range r.Orders {
		if o.Status == broker.OrderStatusRejected {
			out = append(out, o)
		}
	}
	return out
}
