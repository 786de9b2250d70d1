// Package performance derives return, drawdown, risk and trade statistics
// from a finished run. Every function is pure and every figure is an exact
// decimal quantized to four places.
package performance

import (
	"time"

	"github.com/shopspring/decimal"
)

// EquityPoint is the portfolio state recorded after one processed bar.
type EquityPoint struct {
	Timestamp      time.Time
	PortfolioValue decimal.Decimal
	Cash           decimal.Decimal
	PositionsValue decimal.Decimal
	// DailyReturn is the percent change from the previous point.
	DailyReturn decimal.Decimal
	// CumulativeReturn is the percent change from the initial capital.
	CumulativeReturn decimal.Decimal
}

// Exposure is one open position inside a Snapshot.
type Exposure struct {
	Symbol string
	// Value is the absolute market value at the snapshot bar.
	Value decimal.Decimal
	// Risk is the initial risk still attached to the position.
	Risk decimal.Decimal
}

// Snapshot records open positions at one bar, for risk statistics.
type Snapshot struct {
	Timestamp      time.Time
	PortfolioValue decimal.Decimal
	Positions      []Exposure
}

// PeriodReturn is the first-to-last return of a calendar month or year.
type PeriodReturn struct {
	Year int
	// Month is zero for annual returns.
	Month      time.Month
	StartValue decimal.Decimal
	EndValue   decimal.Decimal
	ReturnPct  decimal.Decimal
}

// Label formats the period as 2024-01 or 2024.
func (p PeriodReturn) Label() string {
	if p.Month == 0 {
		return time.Date(p.Year, 1, 1, 0, 0, 0, 0, time.UTC).Format("2006")
	}
	return time.Date(p.Year, p.Month, 1, 0, 0, 0, 0, time.UTC).Format("2006-01")
}

// DrawdownEpisode is one peak-to-trough decline and its recovery, if any.
type DrawdownEpisode struct {
	PeakDate     time.Time
	TroughDate   time.Time
	RecoveryDate *time.Time
	PeakValue    decimal.Decimal
	TroughValue  decimal.Decimal
	DrawdownPct  decimal.Decimal
	// DurationDays runs from peak to trough.
	DurationDays int
	// RecoveryDurationDays runs from trough to recovery; nil while unrecovered.
	RecoveryDurationDays *int
}

// Recovered reports whether the portfolio regained the peak.
func (e DrawdownEpisode) Recovered() bool {
	return e.RecoveryDate != nil
}

// RiskStats summarizes exposure across snapshots. All fractions are percent
// of portfolio value.
type RiskStats struct {
	MaxConcurrentPositions int
	AvgConcurrentPositions decimal.Decimal
	MaxPortfolioHeat       decimal.Decimal
	AvgPortfolioHeat       decimal.Decimal
	MaxPositionSizePct     decimal.Decimal
	AvgPositionSizePct     decimal.Decimal
	MaxCapitalDeployedPct  decimal.Decimal
	AvgCapitalDeployedPct  decimal.Decimal
}

// TradeStats summarizes closed trades.
type TradeStats struct {
	TotalTrades   int
	WinningTrades int
	LosingTrades  int
	// WinRate is a percentage of all closed trades.
	WinRate      decimal.Decimal
	ProfitFactor decimal.Decimal
	GrossProfit  decimal.Decimal
	GrossLoss    decimal.Decimal
	NetProfit    decimal.Decimal
	AvgWin       decimal.Decimal
	AvgLoss      decimal.Decimal
	Expectancy   decimal.Decimal
	AvgRMultiple decimal.Decimal
	// LongestWinStreak and LongestLossStreak follow exit order.
	LongestWinStreak  int
	LongestLossStreak int
	LargestWinner     decimal.Decimal
	LargestLoser      decimal.Decimal
}

// SymbolStats is the per-symbol trade breakdown.
type SymbolStats struct {
	Symbol      string
	Trades      int
	Wins        int
	WinRate     decimal.Decimal
	RealizedPnL decimal.Decimal
}

// Metrics is the full analytics bundle of a run.
type Metrics struct {
	TotalReturnPct   decimal.Decimal
	CAGR             decimal.Decimal
	MonthlyReturns   []PeriodReturn
	AnnualReturns    []PeriodReturn
	MaxDrawdownPct   decimal.Decimal
	DrawdownEpisodes []DrawdownEpisode
	SharpeRatio      decimal.Decimal
	SortinoRatio     decimal.Decimal
	Risk             RiskStats
	Trades           TradeStats
	BySymbol         []SymbolStats
}
