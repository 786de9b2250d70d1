package performance

import (
	"github.com/shopspring/decimal"

	"github.com/newthinker/replay/internal/broker"
)

// Input is everything a run hands to Calculate.
type Input struct {
	Equity         []EquityPoint
	Trades         []broker.Trade
	Snapshots      []Snapshot
	InitialCapital decimal.Decimal
}

// Calculate derives the full Metrics bundle.
func Calculate(in Input) Metrics {
	episodes := DrawdownEpisodes(in.Equity)
	return Metrics{
		TotalReturnPct:   TotalReturnPct(in.Equity, in.InitialCapital),
		CAGR:             CAGR(in.Equity, in.InitialCapital),
		MonthlyReturns:   MonthlyReturns(in.Equity),
		AnnualReturns:    AnnualReturns(in.Equity),
		MaxDrawdownPct:   MaxDrawdownPct(episodes),
		DrawdownEpisodes: episodes,
		SharpeRatio:      SharpeRatio(in.Equity),
		SortinoRatio:     SortinoRatio(in.Equity),
		Risk:             RiskStatistics(in.Snapshots),
		Trades:           TradeStatistics(in.Trades),
		BySymbol:         BySymbol(in.Trades),
	}
}
