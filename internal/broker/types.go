// Package broker simulates order execution and position bookkeeping for backtests.
package broker

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/newthinker/replay/internal/core"
)

// Order request validation errors.
var (
	// ErrInvalidSymbol indicates an invalid or empty symbol.
	ErrInvalidSymbol = errors.New("broker: invalid symbol")
	// ErrInvalidQuantity indicates an invalid quantity.
	ErrInvalidQuantity = errors.New("broker: invalid quantity")
	// ErrInvalidPrice indicates an invalid price for limit orders.
	ErrInvalidPrice = errors.New("broker: invalid price for limit order")
	// ErrInvalidOrderType indicates an unsupported order type.
	ErrInvalidOrderType = errors.New("broker: invalid order type")
	// ErrInvalidSide indicates an unsupported order side.
	ErrInvalidSide = errors.New("broker: invalid order side")
)

// Rejection and cancellation reasons recorded on resolved orders.
const (
	ReasonLimitNotReached  = "Limit price not reached"
	ReasonInsufficientCash = "Insufficient cash"
	ReasonEndOfRun         = "Cancelled at end of run"
	ReasonNoPosition       = "No position to close"
)

// OrderSide represents the direction of an order.
type OrderSide string

const (
	// OrderSideBuy represents a buy order.
	OrderSideBuy OrderSide = "BUY"
	// OrderSideSell represents a sell order.
	OrderSideSell OrderSide = "SELL"
)

// Valid reports whether s is a known side.
func (s OrderSide) Valid() bool {
	return s == OrderSideBuy || s == OrderSideSell
}

// OrderType represents the type of order execution.
type OrderType string

const (
	// OrderTypeMarket fills at the next bar's close, worsened by slippage.
	OrderTypeMarket OrderType = "MARKET"
	// OrderTypeLimit fills at the limit price when the next bar trades through it.
	OrderTypeLimit OrderType = "LIMIT"
)

// OrderStatus represents the lifecycle status of an order.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "PENDING"
	OrderStatusFilled    OrderStatus = "FILLED"
	OrderStatusRejected  OrderStatus = "REJECTED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
)

// OrderRequest represents a request to queue a new order.
type OrderRequest struct {
	Symbol     string
	Side       OrderSide
	Type       OrderType
	Quantity   decimal.Decimal
	LimitPrice *decimal.Decimal
	// InitialRisk is the amount at risk if the protective stop is hit
	// (stop distance × quantity). Zero when the signal carried no stop.
	InitialRisk decimal.Decimal
	// Tag is the pattern name carried from the signal.
	Tag string
}

// Validate checks if the order request has valid required fields.
func (r OrderRequest) Validate() error {
	if r.Symbol == "" {
		return ErrInvalidSymbol
	}
	if !r.Side.Valid() {
		return ErrInvalidSide
	}
	if !r.Quantity.IsPositive() {
		return ErrInvalidQuantity
	}
	switch r.Type {
	case OrderTypeMarket:
	case OrderTypeLimit:
		if r.LimitPrice == nil || !r.LimitPrice.IsPositive() {
			return ErrInvalidPrice
		}
	default:
		return ErrInvalidOrderType
	}
	if r.InitialRisk.IsNegative() {
		return fmt.Errorf("broker: negative initial risk %s", r.InitialRisk)
	}
	return nil
}

// Order is a simulated order. It is created PENDING by the executor and
// resolved exactly once through Apply.
type Order struct {
	ID         string
	Symbol     string
	Side       OrderSide
	Type       OrderType
	Quantity   decimal.Decimal
	LimitPrice *decimal.Decimal
	Status     OrderStatus
	// CreatedAt is the timestamp of the bar whose signal produced the order.
	CreatedAt time.Time
	// QuotePrice is the reference price before slippage.
	QuotePrice decimal.Decimal
	// FillPrice is the executed price including slippage.
	FillPrice  decimal.Decimal
	Commission decimal.Decimal
	// Slippage is the monetary cost of slippage: |fill - quote| × quantity.
	Slippage     decimal.Decimal
	ResolvedAt   time.Time
	RejectReason string
	InitialRisk  decimal.Decimal
	Tag          string
}

// IsFilled returns true if the order was filled.
func (o Order) IsFilled() bool {
	return o.Status == OrderStatusFilled
}

// IsOpen returns true if the order is still pending.
func (o Order) IsOpen() bool {
	return o.Status == OrderStatusPending
}

// IsTerminal returns true if the order is in a final state.
func (o Order) IsTerminal() bool {
	return o.Status == OrderStatusFilled ||
		o.Status == OrderStatusCancelled ||
		o.Status == OrderStatusRejected
}

// Notional returns quantity × quote price.
func (o Order) Notional() decimal.Decimal {
	return o.Quantity.Mul(o.QuotePrice)
}

// Apply resolves the order with an execution outcome. It is the only way an
// order leaves PENDING, and it fails if the order was already resolved.
func (o *Order) Apply(r FillResult) error {
	if o.Status != OrderStatusPending {
		return core.WrapError(core.ErrOrderResolved, fmt.Errorf("order %s is %s", o.ID, o.Status))
	}
	if r.OrderID != o.ID {
		return fmt.Errorf("broker: result for order %s applied to %s", r.OrderID, o.ID)
	}
	o.Status = r.Status
	o.ResolvedAt = r.BarTime
	o.RejectReason = r.Reason
	if r.Status == OrderStatusFilled {
		o.QuotePrice = r.QuotePrice
		o.FillPrice = r.FillPrice
		o.Commission = r.Commission
		o.Slippage = r.Slippage
	}
	return nil
}

// FillResult is the typed outcome of evaluating a pending order against a bar.
// It carries no side effects until applied to the order.
type FillResult struct {
	OrderID    string
	Status     OrderStatus
	QuotePrice decimal.Decimal
	FillPrice  decimal.Decimal
	Commission decimal.Decimal
	Slippage   decimal.Decimal
	BarTime    time.Time
	Reason     string
}

// Filled reports whether the result is a fill.
func (r FillResult) Filled() bool {
	return r.Status == OrderStatusFilled
}

// Reject converts the result into a rejection with the given reason.
func (r FillResult) Reject(reason string) FillResult {
	return FillResult{
		OrderID: r.OrderID,
		Status:  OrderStatusRejected,
		BarTime: r.BarTime,
		Reason:  reason,
	}
}

// PositionSide is the direction of an open position.
type PositionSide string

const (
	PositionLong  PositionSide = "LONG"
	PositionShort PositionSide = "SHORT"
)

// Direction returns +1 for long and -1 for short positions.
func (s PositionSide) Direction() decimal.Decimal {
	if s == PositionShort {
		return decimal.NewFromInt(-1)
	}
	return decimal.NewFromInt(1)
}

// sideFor returns the position side an opening order creates.
func sideFor(side OrderSide) PositionSide {
	if side == OrderSideSell {
		return PositionShort
	}
	return PositionLong
}

// Position represents a net holding in one symbol.
type Position struct {
	Symbol   string
	Side     PositionSide
	Quantity decimal.Decimal
	// EntryPrice is the quantity-weighted average quote price of the entries,
	// rounded for display. Pnl is computed from the exact cost basis.
	EntryPrice    decimal.Decimal
	CurrentPrice  decimal.Decimal
	UnrealizedPnL decimal.Decimal
	// Commission and Slippage accumulate entry costs still attached to the open quantity.
	Commission  decimal.Decimal
	Slippage    decimal.Decimal
	InitialRisk decimal.Decimal
	Tag         string
	OpenedAt    time.Time
	// SignalAt is the timestamp of the bar whose signal opened the position.
	SignalAt  time.Time
	UpdatedAt time.Time

	// costBasis is the entry notional of the open quantity.
	costBasis decimal.Decimal

	// realized state carried across partial exits
	realized         decimal.Decimal
	closedQty        decimal.Decimal
	closedCost       decimal.Decimal
	exitValue        decimal.Decimal
	closedCommission decimal.Decimal
	closedSlippage   decimal.Decimal
	closedRisk       decimal.Decimal
}

// RealizedPnL returns the profit already realized by partial exits.
func (p Position) RealizedPnL() decimal.Decimal {
	return p.realized
}

// MarketValue returns the signed value of the position at its current price.
func (p Position) MarketValue() decimal.Decimal {
	return p.Quantity.Mul(p.CurrentPrice).Mul(p.Side.Direction())
}

// IsLong returns true if this is a long position.
func (p Position) IsLong() bool {
	return p.Side == PositionLong
}

// Trade is the immutable record of a fully closed position.
type Trade struct {
	Symbol     string
	Side       PositionSide
	Quantity   decimal.Decimal
	EntryPrice decimal.Decimal
	ExitPrice  decimal.Decimal
	EntryTime  time.Time
	ExitTime   time.Time
	// EntrySignalAt and ExitSignalAt are the timestamps of the bars whose
	// signals produced the entry and exit orders.
	EntrySignalAt time.Time
	ExitSignalAt  time.Time
	RealizedPnL   decimal.Decimal
	Commission    decimal.Decimal
	Slippage      decimal.Decimal
	InitialRisk   decimal.Decimal
	RMultiple     decimal.Decimal
	Tag           string
}

// IsWin returns true if the trade was profitable.
func (t Trade) IsWin() bool {
	return t.RealizedPnL.IsPositive()
}

// HoldingPeriod returns the time between entry and exit fills.
func (t Trade) HoldingPeriod() time.Duration {
	return t.ExitTime.Sub(t.EntryTime)
}
