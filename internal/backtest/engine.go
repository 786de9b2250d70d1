// Package backtest replays historical bars through a strategy with simulated
// execution and assembles the run result.
package backtest

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/newthinker/replay/internal/broker"
	"github.com/newthinker/replay/internal/campaign"
	"github.com/newthinker/replay/internal/core"
	"github.com/newthinker/replay/internal/performance"
	"github.com/newthinker/replay/internal/strategy"
)

// Recorder observes run activity. The metrics package provides the
// Prometheus implementation.
type Recorder interface {
	RecordBar(symbol string)
	RecordOrder(symbol string, status broker.OrderStatus)
	RecordTrade(symbol string, win bool)
	RecordBiasCheck(passed bool)
	RecordRun(strategy string, duration time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) RecordBar(string)                       {}
func (nopRecorder) RecordOrder(string, broker.OrderStatus) {}
func (nopRecorder) RecordTrade(string, bool)               {}
func (nopRecorder) RecordBiasCheck(bool)                   {}
func (nopRecorder) RecordRun(string, time.Duration)        {}

// Engine drives one strategy over a bar sequence. Runs are single-threaded;
// every Run builds its own executor and position manager.
type Engine struct {
	cfg      Config
	cost     broker.CostModel
	risk     *broker.RiskChecker
	detector *campaign.Detector
	log      *zap.Logger
	recorder Recorder
	scratch  *strategy.Scratch
	state    State
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) Option {
	return func(e *Engine) {
		if log != nil {
			e.log = log
		}
	}
}

// WithCostModel sets the transaction cost model. The default charges nothing.
func WithCostModel(cost broker.CostModel) Option {
	return func(e *Engine) {
		if cost != nil {
			e.cost = cost
		}
	}
}

// WithRiskChecker caps entries by portfolio heat and campaign risk.
func WithRiskChecker(risk *broker.RiskChecker) Option {
	return func(e *Engine) {
		e.risk = risk
	}
}

// WithCampaignDetector replaces the default 30-day campaign detector.
func WithCampaignDetector(d *campaign.Detector) Option {
	return func(e *Engine) {
		if d != nil {
			e.detector = d
		}
	}
}

// WithRecorder sets the activity recorder.
func WithRecorder(r Recorder) Option {
	return func(e *Engine) {
		if r != nil {
			e.recorder = r
		}
	}
}

// WithScratch hands the strategy a caller-owned scratch area, which callers
// may seed before Run and inspect after it. Engines sharing one must not run
// concurrently. Without it every Run starts with an empty area.
func WithScratch(s *strategy.Scratch) Option {
	return func(e *Engine) {
		e.scratch = s
	}
}

// New validates cfg and creates an Engine.
func New(cfg Config, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	detector, err := campaign.NewDetector(campaign.DefaultWindow)
	if err != nil {
		return nil, err
	}
	e := &Engine{
		cfg:      cfg,
		cost:     broker.NewZeroCostModel(),
		detector: detector,
		log:      zap.NewNop(),
		recorder: nopRecorder{},
	}
	for _, opt := range opts {
		opt(e)
	}
	e.log = e.log.Named("engine")
	return e, nil
}

// State returns the stage of the current or last run.
func (e *Engine) State() State {
	return e.state
}

func (e *Engine) transition(to State) {
	e.log.Debug("state transition",
		zap.Stringer("from", e.state),
		zap.Stringer("to", to),
	)
	e.state = to
}

// ValidateBars checks that bars is non-empty, well formed and strictly
// increasing in time.
func ValidateBars(bars []core.Bar) error {
	if len(bars) == 0 {
		return core.WrapError(core.ErrNoData, fmt.Errorf("empty bar sequence"))
	}
	for i, b := range bars {
		if err := b.Validate(); err != nil {
			return core.WrapError(core.ErrInvalidInput, fmt.Errorf("bar %d: %w", i, err))
		}
		if i > 0 && !b.Timestamp.After(bars[i-1].Timestamp) {
			return core.WrapError(core.ErrInvalidInput,
				fmt.Errorf("bar %d at %s does not follow %s", i,
					b.Timestamp.Format(time.RFC3339), bars[i-1].Timestamp.Format(time.RFC3339)))
		}
	}
	return nil
}

// run holds the mutable state of one Run call.
type run struct {
	pm       *broker.PositionManager
	exec     *broker.Executor
	history  *strategy.History
	scratch  *strategy.Scratch
	volumes  map[string][]int64
	lastBars map[string]core.Bar
	orders   []broker.Order
	skipped  []SkippedSignal
	reduced  []ReducedEntry
	equity   []EquityPoint
	snaps    []Snapshot
}

// Run replays bars through strat. Input and configuration errors abort the
// run; rejected orders and bias violations are recorded in the result.
func (e *Engine) Run(bars []core.Bar, strat strategy.Strategy) (*Result, error) {
	started := time.Now()
	e.state = StateAwaitingFirstBar
	if err := ValidateBars(bars); err != nil {
		return nil, err
	}
	pm, err := broker.NewPositionManager(e.cfg.InitialCapital)
	if err != nil {
		return nil, err
	}

	r := &run{
		pm:       pm,
		exec:     broker.NewExecutor(e.cost, broker.WithExecutorLogger(e.log.Named("executor"))),
		history:  strategy.NewHistory(len(bars)),
		scratch:  e.scratch,
		volumes:  make(map[string][]int64),
		lastBars: make(map[string]core.Bar),
		equity:   make([]EquityPoint, 0, len(bars)),
		snaps:    make([]Snapshot, 0, len(bars)),
	}

	if r.scratch == nil {
		r.scratch = strategy.NewScratch()
	}

	e.log.Info("run started",
		zap.String("strategy", strat.Name()),
		zap.Int("bars", len(bars)),
		zap.Stringer("initial_capital", e.cfg.InitialCapital),
	)

	processed, halted := 0, false
	for _, bar := range bars {
		if e.state == StateRunning {
			if err := e.resolve(r, r.exec.FillPending(bar, e.avgVolume(r, bar.Symbol))); err != nil {
				return nil, err
			}
		} else {
			e.transition(StateRunning)
		}

		r.pm.MarkToMarket(bar)
		e.record(r, bar.Timestamp)
		e.recorder.RecordBar(bar.Symbol)

		ctx := &strategy.Context{
			History: r.history,
			Cash:    r.pm.Cash(),
			Scratch: r.scratch,
		}
		if pos, ok := r.pm.Position(bar.Symbol); ok {
			ctx.Position = &pos
		}
		sig := strat.Decide(bar, ctx)
		r.history.Append(bar)
		r.lastBars[bar.Symbol] = bar
		processed++

		e.act(r, bar, sig)
		r.volumes[bar.Symbol] = append(r.volumes[bar.Symbol], bar.Volume)

		if ctx.Halted() {
			e.log.Info("strategy halted run", zap.Time("bar", bar.Timestamp))
			halted = true
			break
		}
	}

	e.transition(StateFinalizing)
	if r.exec.HasPending() {
		avg := make(map[string]decimal.Decimal, len(r.lastBars))
		for symbol := range r.lastBars {
			avg[symbol] = e.avgVolume(r, symbol)
		}
		if err := e.resolve(r, r.exec.Finalize(r.lastBars, avg)); err != nil {
			return nil, err
		}
		// Liquidation changed the book after the last point was taken.
		last := bars[processed-1]
		r.pm.MarkToMarket(last)
		r.equity = r.equity[:len(r.equity)-1]
		r.snaps = r.snaps[:len(r.snaps)-1]
		e.record(r, last.Timestamp)
	}

	result := e.assemble(r, strat, bars[:processed], halted)
	e.transition(StateDone)

	elapsed := time.Since(started)
	result.ExecutionSeconds = elapsed.Seconds()
	e.recorder.RecordBiasCheck(result.BiasCheckPassed)
	e.recorder.RecordRun(strat.Name(), elapsed)
	e.log.Info("run finished",
		zap.String("strategy", strat.Name()),
		zap.Int("trades", len(result.Trades)),
		zap.Stringer("final_value", result.FinalValue),
		zap.Stringer("total_return_pct", result.Metrics.TotalReturnPct),
		zap.Bool("bias_check_passed", result.BiasCheckPassed),
		zap.Duration("elapsed", elapsed),
	)
	return result, nil
}

// avgVolume averages the volume of the symbol's last VolumeLookback bars.
func (e *Engine) avgVolume(r *run, symbol string) decimal.Decimal {
	vols := r.volumes[symbol]
	n := e.cfg.VolumeLookback
	if n == 0 || len(vols) == 0 {
		return decimal.Zero
	}
	if len(vols) < n {
		n = len(vols)
	}
	var sum int64
	for _, v := range vols[len(vols)-n:] {
		sum += v
	}
	return decimal.NewFromInt(sum).Div(decimal.NewFromInt(int64(n)))
}

// record appends the equity point and risk snapshot for the current book.
func (e *Engine) record(r *run, at time.Time) {
	value := r.pm.PortfolioValue()
	point := EquityPoint{
		Timestamp:        at,
		PortfolioValue:   value,
		Cash:             r.pm.Cash(),
		PositionsValue:   r.pm.PositionsValue(),
		DailyReturn:      decimal.Zero,
		CumulativeReturn: percentChange(e.cfg.InitialCapital, value),
	}
	if n := len(r.equity); n > 0 {
		point.DailyReturn = percentChange(r.equity[n-1].PortfolioValue, value)
	}
	r.equity = append(r.equity, point)

	snap := Snapshot{Timestamp: at, PortfolioValue: value}
	for _, pos := range r.pm.Positions() {
		snap.Positions = append(snap.Positions, performance.Exposure{
			Symbol: pos.Symbol,
			Value:  pos.MarketValue().Abs(),
			Risk:   pos.InitialRisk,
		})
	}
	r.snaps = append(r.snaps, snap)
}

func percentChange(from, to decimal.Decimal) decimal.Decimal {
	if from.IsZero() {
		return decimal.Zero
	}
	return to.Sub(from).Div(from).Mul(decimal.NewFromInt(100)).Round(4)
}

// act turns the strategy's signal for bar into an order for a later bar.
func (e *Engine) act(r *run, bar core.Bar, sig core.Signal) {
	if !sig.Kind.Known() {
		e.log.Warn("unknown signal treated as hold",
			zap.Int("kind", int(sig.Kind)),
			zap.Time("bar", bar.Timestamp),
		)
		return
	}

	pos, long := r.pm.Position(bar.Symbol)
	switch sig.Kind {
	case core.SignalBuy:
		if long && !e.cfg.Pyramiding {
			return
		}
		e.enter(r, bar, sig)
	case core.SignalSell:
		if !long {
			return
		}
		req := broker.OrderRequest{
			Symbol:   bar.Symbol,
			Side:     broker.OrderSideSell,
			Type:     broker.OrderTypeMarket,
			Quantity: pos.Quantity,
			Tag:      sig.Tag,
		}
		if sig.LimitPrice != nil {
			req.Type = broker.OrderTypeLimit
			req.LimitPrice = sig.LimitPrice
		}
		e.submit(r, bar, sig, req)
	}
}

func (e *Engine) enter(r *run, bar core.Bar, sig core.Signal) {
	quote := bar.Close
	req := broker.OrderRequest{
		Symbol: bar.Symbol,
		Side:   broker.OrderSideBuy,
		Type:   broker.OrderTypeMarket,
		Tag:    sig.Tag,
	}
	if sig.LimitPrice != nil {
		req.Type = broker.OrderTypeLimit
		req.LimitPrice = sig.LimitPrice
		quote = *sig.LimitPrice
	}

	req.Quantity = e.size(r.pm.Cash(), quote, req)
	if !req.Quantity.IsPositive() {
		e.skip(r, bar, sig, "position size rounds to zero")
		return
	}

	if sig.StopPrice != nil {
		if sig.StopPrice.LessThan(quote) {
			req.InitialRisk = quote.Sub(*sig.StopPrice).Mul(req.Quantity)
		} else {
			e.log.Warn("stop at or above entry ignored",
				zap.String("symbol", bar.Symbol),
				zap.Stringer("stop", *sig.StopPrice),
				zap.Stringer("quote", quote),
			)
		}
	}

	if e.risk != nil {
		check := e.risk.Check(req, r.pm.PortfolioValue(), r.pm.Positions())
		if !check.Allowed {
			e.skip(r, bar, sig, check.Reason)
			return
		}
		if check.Reduced(req.Quantity) {
			e.log.Debug("entry reduced by risk limits",
				zap.String("symbol", bar.Symbol),
				zap.Stringer("requested", req.Quantity),
				zap.Stringer("allowed", check.Quantity),
				zap.String("reason", check.Reason),
			)
			r.reduced = append(r.reduced, ReducedEntry{
				Timestamp: bar.Timestamp,
				Symbol:    bar.Symbol,
				Requested: req.Quantity,
				Allowed:   check.Quantity,
				Reason:    check.Reason,
			})
		}
		req.Quantity = check.Quantity
		req.InitialRisk = check.InitialRisk
	}
	e.submit(r, bar, sig, req)
}

// size commits MaxPositionSize of cash, leaving room for commission and the
// worst-case slippage of the cost model.
func (e *Engine) size(cash, quote decimal.Decimal, req broker.OrderRequest) decimal.Decimal {
	if !quote.IsPositive() {
		return decimal.Zero
	}
	budget := cash.Mul(e.cfg.MaxPositionSize)
	unit := quote
	if req.Type == broker.OrderTypeMarket {
		unit = quote.Mul(decimal.NewFromInt(1).Add(e.cost.MaxSlippagePct()))
	}
	qty := budget.Div(unit).Floor()
	if !qty.IsPositive() {
		return decimal.Zero
	}
	sized := &broker.Order{Symbol: req.Symbol, Side: req.Side, Type: req.Type, Quantity: qty}
	commission := e.cost.Commission(sized, quote)
	qty = budget.Sub(commission).Div(unit).Floor()
	if !qty.IsPositive() {
		return decimal.Zero
	}
	return qty
}

func (e *Engine) submit(r *run, bar core.Bar, sig core.Signal, req broker.OrderRequest) {
	if _, err := r.exec.Submit(req, bar); err != nil {
		e.skip(r, bar, sig, err.Error())
	}
}

func (e *Engine) skip(r *run, bar core.Bar, sig core.Signal, reason string) {
	e.log.Debug("signal skipped",
		zap.String("symbol", bar.Symbol),
		zap.Stringer("kind", sig.Kind),
		zap.String("reason", reason),
	)
	r.skipped = append(r.skipped, SkippedSignal{
		Timestamp: bar.Timestamp,
		Symbol:    bar.Symbol,
		Kind:      sig.Kind,
		Reason:    reason,
	})
}

// resolve applies execution outcomes to their orders and books fills.
// Fills the book cannot afford become rejections.
func (e *Engine) resolve(r *run, executions []broker.Execution) error {
	for _, x := range executions {
		order, result := x.Order, x.Result
		if result.Filled() {
			result = e.affordable(r, order, result)
		}
		if err := order.Apply(result); err != nil {
			return err
		}

		if order.IsFilled() {
			if err := e.book(r, order); err != nil {
				return err
			}
		} else {
			e.log.Debug("order not filled",
				zap.String("order_id", order.ID),
				zap.String("status", string(order.Status)),
				zap.String("reason", order.RejectReason),
			)
		}
		r.orders = append(r.orders, *order)
		e.recorder.RecordOrder(order.Symbol, order.Status)
	}
	return nil
}

func (e *Engine) affordable(r *run, order *broker.Order, result broker.FillResult) broker.FillResult {
	if order.Side == broker.OrderSideBuy {
		cost := order.Quantity.Mul(result.QuotePrice).Add(result.Commission).Add(result.Slippage)
		if cost.GreaterThan(r.pm.Cash()) {
			return result.Reject(broker.ReasonInsufficientCash)
		}
		return result
	}
	pos, ok := r.pm.Position(order.Symbol)
	if !ok || order.Quantity.GreaterThan(pos.Quantity) {
		return result.Reject(broker.ReasonNoPosition)
	}
	proceeds := order.Quantity.Mul(result.QuotePrice).Sub(result.Commission).Sub(result.Slippage)
	if r.pm.Cash().Add(proceeds).IsNegative() {
		return result.Reject(broker.ReasonInsufficientCash)
	}
	return result
}

func (e *Engine) book(r *run, order *broker.Order) error {
	if order.Side == broker.OrderSideBuy {
		if err := r.pm.OpenPosition(order); err != nil {
			return fmt.Errorf("booking order %s: %w", order.ID, err)
		}
		e.log.Debug("position opened",
			zap.String("symbol", order.Symbol),
			zap.Stringer("quantity", order.Quantity),
			zap.Stringer("price", order.FillPrice),
		)
		return nil
	}

	trade, err := r.pm.ClosePosition(order)
	if err != nil {
		return fmt.Errorf("booking order %s: %w", order.ID, err)
	}
	if trade != nil {
		e.recorder.RecordTrade(trade.Symbol, trade.IsWin())
		e.log.Debug("trade closed",
			zap.String("symbol", trade.Symbol),
			zap.Stringer("pnl", trade.RealizedPnL),
			zap.Stringer("r_multiple", trade.RMultiple),
		)
	}
	return nil
}

func (e *Engine) assemble(r *run, strat strategy.Strategy, processed []core.Bar, halted bool) *Result {
	trades := r.pm.Trades()
	bias := NewBiasDetector(processed).Check(trades)
	if !bias.Passed {
		e.log.Warn("look-ahead bias detected",
			zap.Int("violations", len(bias.Violations)),
			zap.String("first", bias.Violations[0].String()),
		)
	}
	campaigns := e.detector.Detect(trades)

	symbols := make([]string, 0, len(r.lastBars))
	for s := range r.lastBars {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)

	return &Result{
		Strategy:      strat.Name(),
		Config:        e.cfg,
		Symbols:       symbols,
		Start:         processed[0].Timestamp,
		End:           processed[len(processed)-1].Timestamp,
		BarsProcessed: len(processed),
		Halted:        halted,
		Trades:        trades,
		Orders:        r.orders,
		Skipped:       r.skipped,
		Reduced:       r.reduced,
		OpenPositions: r.pm.Positions(),
		FinalCash:     r.pm.Cash(),
		FinalValue:    r.pm.PortfolioValue(),
		EquityCurve:   r.equity,
		Snapshots:     r.snaps,
		Metrics: performance.Calculate(performance.Input{
			Equity:         r.equity,
			Trades:         trades,
			Snapshots:      r.snaps,
			InitialCapital: e.cfg.InitialCapital,
		}),
		BiasCheckPassed: bias.Passed,
		BiasViolations:  bias.Violations,
		Campaigns:       campaigns,
		CampaignSummary: campaign.Summarize(campaigns),
	}
}
