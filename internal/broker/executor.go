package broker

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/newthinker/replay/internal/core"
)

// orderNamespace seeds name-based order IDs so identical runs produce
// identical IDs.
var orderNamespace = uuid.MustParse("6f1c2e9a-4b7d-5e8f-9a0b-1c2d3e4f5a6b")

// Executor queues simulated orders and resolves them against later bars.
// It is owned by a single run and is not safe for concurrent use.
type Executor struct {
	cost    CostModel
	log     *zap.Logger
	pending []*Order
	seq     int
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithExecutorLogger sets the logger used for fill and rejection events.
func WithExecutorLogger(log *zap.Logger) ExecutorOption {
	return func(e *Executor) {
		if log != nil {
			e.log = log
		}
	}
}

// NewExecutor creates an Executor that prices fills with the given cost model.
func NewExecutor(cost CostModel, opts ...ExecutorOption) *Executor {
	if cost == nil {
		cost = ZeroCostModel{}
	}
	e := &Executor{
		cost: cost,
		log:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// CostModel returns the model used to price fills.
func (e *Executor) CostModel() CostModel {
	return e.cost
}

// Submit validates req and enqueues a PENDING order created at bar's timestamp.
// The order becomes eligible for execution on the next bar of its symbol.
func (e *Executor) Submit(req OrderRequest, bar core.Bar) (*Order, error) {
	if err := req.Validate(); err != nil {
		return nil, core.WrapError(core.ErrOrderRejected, err)
	}

	e.seq++
	order := &Order{
		ID:          e.nextID(req.Symbol),
		Symbol:      req.Symbol,
		Side:        req.Side,
		Type:        req.Type,
		Quantity:    req.Quantity,
		Status:      OrderStatusPending,
		CreatedAt:   bar.Timestamp,
		InitialRisk: req.InitialRisk,
		Tag:         req.Tag,
	}
	if req.LimitPrice != nil {
		limit := *req.LimitPrice
		order.LimitPrice = &limit
	}
	e.pending = append(e.pending, order)

	e.log.Debug("order submitted",
		zap.String("order_id", order.ID),
		zap.String("symbol", order.Symbol),
		zap.String("side", string(order.Side)),
		zap.String("type", string(order.Type)),
		zap.Stringer("quantity", order.Quantity),
		zap.Time("bar", bar.Timestamp),
	)
	return order, nil
}

func (e *Executor) nextID(symbol string) string {
	return uuid.NewSHA1(orderNamespace, []byte(fmt.Sprintf("%s/%d", symbol, e.seq))).String()
}

// Pending returns the orders still awaiting execution, in submission order.
func (e *Executor) Pending() []*Order {
	out := make([]*Order, len(e.pending))
	copy(out, e.pending)
	return out
}

// HasPending reports whether any order is queued.
func (e *Executor) HasPending() bool {
	return len(e.pending) > 0
}

// FillPending evaluates every queued order of next.Symbol that was created
// strictly before next and dequeues it. Orders are not mutated; the caller
// applies each result with Order.Apply.
func (e *Executor) FillPending(next core.Bar, avgVolume decimal.Decimal) []Execution {
	var results []Execution
	remaining := e.pending[:0]
	for _, order := range e.pending {
		if order.Symbol != next.Symbol || !order.CreatedAt.Before(next.Timestamp) {
			remaining = append(remaining, order)
			continue
		}
		results = append(results, Execution{Order: order, Result: e.Evaluate(order, next, avgVolume)})
	}
	e.pending = remaining
	return results
}

// Finalize resolves everything still queued at the end of a run. Each order
// is evaluated against the last bar of its symbol, including the bar it was
// created on; orders without such a bar are cancelled. The queue is empty
// afterwards.
func (e *Executor) Finalize(last map[string]core.Bar, avgVolume map[string]decimal.Decimal) []Execution {
	results := make([]Execution, 0, len(e.pending))
	for _, order := range e.pending {
		bar, ok := last[order.Symbol]
		if !ok || bar.Timestamp.Before(order.CreatedAt) {
			at := order.CreatedAt
			if ok {
				at = bar.Timestamp
			}
			results = append(results, Execution{Order: order, Result: cancelled(order, at, ReasonEndOfRun)})
			continue
		}
		results = append(results, Execution{Order: order, Result: e.Evaluate(order, bar, avgVolume[order.Symbol])})
	}
	e.pending = nil
	return results
}

// Evaluate prices order against bar without touching any state.
func (e *Executor) Evaluate(order *Order, bar core.Bar, avgVolume decimal.Decimal) FillResult {
	switch order.Type {
	case OrderTypeLimit:
		return e.evaluateLimit(order, bar)
	default:
		return e.evaluateMarket(order, bar, avgVolume)
	}
}

func (e *Executor) evaluateMarket(order *Order, bar core.Bar, avgVolume decimal.Decimal) FillResult {
	quote := bar.Close
	pct := e.cost.SlippagePct(order, bar, avgVolume)

	// Slippage always moves the price against the trader.
	one := decimal.NewFromInt(1)
	fill := quote.Mul(one.Add(pct))
	if order.Side == OrderSideSell {
		fill = quote.Mul(one.Sub(pct))
	}

	return FillResult{
		OrderID:    order.ID,
		Status:     OrderStatusFilled,
		QuotePrice: quote,
		FillPrice:  fill,
		Commission: e.cost.Commission(order, quote),
		Slippage:   fill.Sub(quote).Abs().Mul(order.Quantity),
		BarTime:    bar.Timestamp,
	}
}

func (e *Executor) evaluateLimit(order *Order, bar core.Bar) FillResult {
	limit := *order.LimitPrice
	if !bar.Contains(limit) {
		e.log.Debug("limit order rejected",
			zap.String("order_id", order.ID),
			zap.Stringer("limit", limit),
			zap.Stringer("low", bar.Low),
			zap.Stringer("high", bar.High),
		)
		return FillResult{
			OrderID: order.ID,
			Status:  OrderStatusRejected,
			BarTime: bar.Timestamp,
			Reason:  ReasonLimitNotReached,
		}
	}
	return FillResult{
		OrderID:    order.ID,
		Status:     OrderStatusFilled,
		QuotePrice: limit,
		FillPrice:  limit,
		Commission: e.cost.Commission(order, limit),
		Slippage:   decimal.Zero,
		BarTime:    bar.Timestamp,
	}
}

func cancelled(order *Order, at time.Time, reason string) FillResult {
	return FillResult{
		OrderID: order.ID,
		Status:  OrderStatusCancelled,
		BarTime: at,
		Reason:  reason,
	}
}

// Execution pairs a dequeued order with its evaluated outcome.
type Execution struct {
	Order  *Order
	Result FillResult
}
