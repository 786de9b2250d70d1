package broker

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/newthinker/replay/internal/core"
)

// PositionManager books filled orders against cash and open positions and
// records closed trades. It never sizes positions; fills that would drive
// cash negative are refused.
type PositionManager struct {
	initialCash decimal.Decimal
	cash        decimal.Decimal
	positions   map[string]*Position // symbol -> position
	trades      []Trade
}

// NewPositionManager creates a PositionManager holding initialCash.
func NewPositionManager(initialCash decimal.Decimal) (*PositionManager, error) {
	if !initialCash.IsPositive() {
		return nil, core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("initial_capital must be positive, got %s", initialCash))
	}
	return &PositionManager{
		initialCash: initialCash,
		cash:        initialCash,
		positions:   make(map[string]*Position),
	}, nil
}

// InitialCash returns the starting capital.
func (pm *PositionManager) InitialCash() decimal.Decimal {
	return pm.initialCash
}

// Cash returns the current cash balance.
func (pm *PositionManager) Cash() decimal.Decimal {
	return pm.cash
}

// Position returns a copy of the open position for symbol.
func (pm *PositionManager) Position(symbol string) (Position, bool) {
	pos, ok := pm.positions[symbol]
	if !ok {
		return Position{}, false
	}
	return *pos, true
}

// Positions returns copies of all open positions sorted by symbol.
func (pm *PositionManager) Positions() []Position {
	out := make([]Position, 0, len(pm.positions))
	for _, pos := range pm.positions {
		out = append(out, *pos)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// Trades returns the closed trades in closing order.
func (pm *PositionManager) Trades() []Trade {
	out := make([]Trade, len(pm.trades))
	copy(out, pm.trades)
	return out
}

// OpenPosition creates or grows the position for a filled order and debits
// the cost. Long entries pay quote × qty plus slippage and commission; short
// entries receive the proceeds net of costs.
func (pm *PositionManager) OpenPosition(order *Order) error {
	if order == nil || !order.IsFilled() {
		return core.WrapError(core.ErrOrderRejected, fmt.Errorf("only filled orders can be booked"))
	}

	side := sideFor(order.Side)
	pos, exists := pm.positions[order.Symbol]
	if exists && pos.Side != side {
		return core.WrapError(core.ErrOrderRejected,
			fmt.Errorf("%s order would reverse %s position in %s", order.Side, pos.Side, order.Symbol))
	}

	costs := order.Commission.Add(order.Slippage)
	var cash decimal.Decimal
	if side == PositionLong {
		cash = pm.cash.Sub(order.Notional()).Sub(costs)
	} else {
		cash = pm.cash.Add(order.Notional()).Sub(costs)
	}
	if cash.IsNegative() {
		return core.WrapError(core.ErrInsufficientCash,
			fmt.Errorf("fill of %s %s %s needs %s, have %s", order.Side, order.Quantity, order.Symbol, pm.cash.Sub(cash), pm.cash))
	}
	pm.cash = cash

	if !exists {
		pos = &Position{
			Symbol:   order.Symbol,
			Side:     side,
			Quantity: decimal.Zero,
			OpenedAt: order.ResolvedAt,
			SignalAt: order.CreatedAt,
			Tag:      order.Tag,
		}
		pm.positions[order.Symbol] = pos
	}

	// The basis stays exact; the average entry is derived from it.
	pos.costBasis = pos.costBasis.Add(order.Notional())
	pos.Quantity = pos.Quantity.Add(order.Quantity)
	pos.EntryPrice = pos.costBasis.Div(pos.Quantity)
	pos.Commission = pos.Commission.Add(order.Commission)
	pos.Slippage = pos.Slippage.Add(order.Slippage)
	pos.InitialRisk = pos.InitialRisk.Add(order.InitialRisk)
	if pos.Tag == "" {
		pos.Tag = order.Tag
	}
	pm.mark(pos, order.QuotePrice, order.ResolvedAt)
	return nil
}

// ClosePosition reduces or flattens a position with a filled order of the
// opposite side. Realized pnl is
//
//	(exit × qty - entry basis) × direction - commission - |slippage|
//
// where the entry basis is the share of the summed entry notional released by
// the close, and commission and slippage cover both legs. Summed over all
// exits it equals the cash the position returned. A full closure returns the
// resulting Trade; partial closures return nil.
func (pm *PositionManager) ClosePosition(order *Order) (*Trade, error) {
	if order == nil || !order.IsFilled() {
		return nil, core.WrapError(core.ErrOrderRejected, fmt.Errorf("only filled orders can be booked"))
	}
	pos, ok := pm.positions[order.Symbol]
	if !ok {
		return nil, core.WrapError(core.ErrPositionNotFound, fmt.Errorf("no open position in %s", order.Symbol))
	}
	if sideFor(order.Side) == pos.Side {
		return nil, core.WrapError(core.ErrOrderRejected,
			fmt.Errorf("%s order cannot close %s position in %s", order.Side, pos.Side, order.Symbol))
	}
	if order.Quantity.GreaterThan(pos.Quantity) {
		return nil, core.WrapError(core.ErrOrderRejected,
			fmt.Errorf("close quantity %s exceeds position %s in %s", order.Quantity, pos.Quantity, order.Symbol))
	}

	costs := order.Commission.Add(order.Slippage)
	var cash decimal.Decimal
	if pos.Side == PositionLong {
		cash = pm.cash.Add(order.Notional()).Sub(costs)
	} else {
		cash = pm.cash.Sub(order.Notional()).Sub(costs)
	}
	if cash.IsNegative() {
		return nil, core.WrapError(core.ErrInsufficientCash,
			fmt.Errorf("closing %s %s needs %s, have %s", order.Quantity, order.Symbol, pm.cash.Sub(cash), pm.cash))
	}
	pm.cash = cash

	// Entry costs and risk are released in proportion to the closed quantity.
	full := order.Quantity.Equal(pos.Quantity)
	basis, entryCommission, entrySlippage, risk := pos.costBasis, pos.Commission, pos.Slippage, pos.InitialRisk
	if !full {
		share := func(d decimal.Decimal) decimal.Decimal {
			return d.Mul(order.Quantity).Div(pos.Quantity)
		}
		basis = share(pos.costBasis)
		entryCommission = share(pos.Commission)
		entrySlippage = share(pos.Slippage)
		risk = share(pos.InitialRisk)
	}

	commission := entryCommission.Add(order.Commission)
	slippage := entrySlippage.Add(order.Slippage)
	pnl := order.Notional().Sub(basis).
		Mul(pos.Side.Direction()).
		Sub(commission).
		Sub(slippage.Abs())

	pos.realized = pos.realized.Add(pnl)
	pos.closedQty = pos.closedQty.Add(order.Quantity)
	pos.closedCost = pos.closedCost.Add(basis)
	pos.exitValue = pos.exitValue.Add(order.Notional())
	pos.closedCommission = pos.closedCommission.Add(commission)
	pos.closedSlippage = pos.closedSlippage.Add(slippage)
	pos.closedRisk = pos.closedRisk.Add(risk)

	pos.Quantity = pos.Quantity.Sub(order.Quantity)
	pos.costBasis = pos.costBasis.Sub(basis)
	pos.Commission = pos.Commission.Sub(entryCommission)
	pos.Slippage = pos.Slippage.Sub(entrySlippage)
	pos.InitialRisk = pos.InitialRisk.Sub(risk)

	if !full {
		pm.mark(pos, order.QuotePrice, order.ResolvedAt)
		return nil, nil
	}

	trade := Trade{
		Symbol:        pos.Symbol,
		Side:          pos.Side,
		Quantity:      pos.closedQty,
		EntryPrice:    pos.closedCost.Div(pos.closedQty),
		ExitPrice:     pos.exitValue.Div(pos.closedQty),
		EntryTime:     pos.OpenedAt,
		ExitTime:      order.ResolvedAt,
		EntrySignalAt: pos.SignalAt,
		ExitSignalAt:  order.CreatedAt,
		RealizedPnL:   pos.realized,
		Commission:    pos.closedCommission,
		Slippage:      pos.closedSlippage,
		InitialRisk:   pos.closedRisk,
		RMultiple:     RMultiple(pos.realized, pos.closedRisk),
		Tag:           pos.Tag,
	}
	pm.trades = append(pm.trades, trade)
	delete(pm.positions, order.Symbol)
	return &trade, nil
}

// RMultiple expresses pnl as a multiple of the initial risk, or zero when no
// risk was recorded.
func RMultiple(pnl, initialRisk decimal.Decimal) decimal.Decimal {
	if !initialRisk.IsPositive() {
		return decimal.Zero
	}
	return pnl.Div(initialRisk)
}

// MarkToMarket updates the open position in bar.Symbol to bar.Close and
// returns the total unrealized pnl across all open positions.
func (pm *PositionManager) MarkToMarket(bar core.Bar) decimal.Decimal {
	if pos, ok := pm.positions[bar.Symbol]; ok {
		pm.mark(pos, bar.Close, bar.Timestamp)
	}
	total := decimal.Zero
	for _, pos := range pm.positions {
		total = total.Add(pos.UnrealizedPnL)
	}
	return total
}

func (pm *PositionManager) mark(pos *Position, price decimal.Decimal, at time.Time) {
	pos.CurrentPrice = price
	pos.UnrealizedPnL = price.Mul(pos.Quantity).Sub(pos.costBasis).Mul(pos.Side.Direction())
	pos.UpdatedAt = at
}

// PositionsValue returns the signed market value of all open positions at
// their last marked prices.
func (pm *PositionManager) PositionsValue() decimal.Decimal {
	total := decimal.Zero
	for _, pos := range pm.positions {
		total = total.Add(pos.MarketValue())
	}
	return total
}

// PortfolioValue returns cash plus the marked value of open positions.
func (pm *PositionManager) PortfolioValue() decimal.Decimal {
	return pm.cash.Add(pm.PositionsValue())
}

// PortfolioValueAt returns cash plus open positions valued at bar.Close for
// bar.Symbol and at their last marked price otherwise. It does not mark.
func (pm *PositionManager) PortfolioValueAt(bar core.Bar) decimal.Decimal {
	total := pm.cash
	for _, pos := range pm.positions {
		price := pos.CurrentPrice
		if pos.Symbol == bar.Symbol {
			price = bar.Close
		}
		total = total.Add(pos.Quantity.Mul(price).Mul(pos.Side.Direction()))
	}
	return total
}

// OpenRisk returns the total initial risk of open positions.
func (pm *PositionManager) OpenRisk() decimal.Decimal {
	total := decimal.Zero
	for _, pos := range pm.positions {
		total = total.Add(pos.InitialRisk)
	}
	return total
}
