package broker

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/newthinker/replay/internal/core"
)

// MaxSlippagePct is the upper bound accepted for a configured slippage fraction.
var MaxSlippagePct = decimal.RequireFromString("0.1")

// CostModel computes transaction costs for an order against a bar.
// Implementations must be pure.
type CostModel interface {
	// Commission returns the commission charged for filling order at quote.
	Commission(order *Order, quote decimal.Decimal) decimal.Decimal
	// SlippagePct returns the fraction by which a market fill worsens the quote.
	SlippagePct(order *Order, bar core.Bar, avgVolume decimal.Decimal) decimal.Decimal
	// MaxSlippagePct returns the largest fraction SlippagePct can return,
	// used by position sizing to stay within cash.
	MaxSlippagePct() decimal.Decimal
}

// ZeroCostModel charges nothing. Useful for idealized studies.
type ZeroCostModel struct{}

// NewZeroCostModel returns a cost model without commission or slippage.
func NewZeroCostModel() ZeroCostModel {
	return ZeroCostModel{}
}

func (ZeroCostModel) Commission(*Order, decimal.Decimal) decimal.Decimal {
	return decimal.Zero
}

func (ZeroCostModel) SlippagePct(*Order, core.Bar, decimal.Decimal) decimal.Decimal {
	return decimal.Zero
}

func (ZeroCostModel) MaxSlippagePct() decimal.Decimal {
	return decimal.Zero
}

// SimpleCostModel charges a fixed commission per trade plus an optional
// per-share commission, and a percentage slippage that grows with the
// order's share of average volume, up to twice the configured fraction.
type SimpleCostModel struct {
	perTrade    decimal.Decimal
	perShare    decimal.Decimal
	slippagePct decimal.Decimal
}

// NewSimpleCostModel validates the parameters and builds the model.
// Invalid parameters fail here, never at execution time.
func NewSimpleCostModel(perTrade, perShare, slippagePct decimal.Decimal) (*SimpleCostModel, error) {
	if perTrade.IsNegative() {
		return nil, core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("commission_per_trade cannot be negative, got %s", perTrade))
	}
	if perShare.IsNegative() {
		return nil, core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("commission_per_share cannot be negative, got %s", perShare))
	}
	if slippagePct.IsNegative() || slippagePct.GreaterThan(MaxSlippagePct) {
		return nil, core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("slippage_pct must be within [0, %s], got %s", MaxSlippagePct, slippagePct))
	}
	return &SimpleCostModel{
		perTrade:    perTrade,
		perShare:    perShare,
		slippagePct: slippagePct,
	}, nil
}

func (m *SimpleCostModel) Commission(order *Order, _ decimal.Decimal) decimal.Decimal {
	return m.perTrade.Add(m.perShare.Mul(order.Quantity))
}

func (m *SimpleCostModel) SlippagePct(order *Order, _ core.Bar, avgVolume decimal.Decimal) decimal.Decimal {
	if !avgVolume.IsPositive() {
		return m.slippagePct
	}
	participation := decimal.Min(order.Quantity.Div(avgVolume), decimal.NewFromInt(1))
	return m.slippagePct.Mul(decimal.NewFromInt(1).Add(participation))
}

func (m *SimpleCostModel) MaxSlippagePct() decimal.Decimal {
	return m.slippagePct.Mul(decimal.NewFromInt(2))
}
