package performance

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/newthinker/replay/internal/broker"
)

// TradeStatistics summarizes closed trades. Streaks follow exit order; a
// breakeven trade ends both streaks.
func TradeStatistics(trades []broker.Trade) TradeStats {
	var stats TradeStats
	if len(trades) == 0 {
		return stats
	}

	ordered := byExit(trades)
	var (
		wins, losses []decimal.Decimal
		rMultiples   []decimal.Decimal
		winRun       int
		lossRun      int
	)
	stats.LargestWinner = decimal.Zero
	stats.LargestLoser = decimal.Zero

	for _, t := range ordered {
		pnl := t.RealizedPnL
		stats.NetProfit = stats.NetProfit.Add(pnl)
		if t.InitialRisk.IsPositive() {
			rMultiples = append(rMultiples, t.RMultiple)
		}

		switch {
		case pnl.IsPositive():
			wins = append(wins, pnl)
			stats.GrossProfit = stats.GrossProfit.Add(pnl)
			winRun++
			lossRun = 0
		case pnl.IsNegative():
			losses = append(losses, pnl)
			stats.GrossLoss = stats.GrossLoss.Add(pnl)
			lossRun++
			winRun = 0
		default:
			winRun, lossRun = 0, 0
		}
		if winRun > stats.LongestWinStreak {
			stats.LongestWinStreak = winRun
		}
		if lossRun > stats.LongestLossStreak {
			stats.LongestLossStreak = lossRun
		}
		if pnl.GreaterThan(stats.LargestWinner) {
			stats.LargestWinner = pnl
		}
		if pnl.LessThan(stats.LargestLoser) {
			stats.LargestLoser = pnl
		}
	}

	total := decimal.NewFromInt(int64(len(ordered)))
	stats.TotalTrades = len(ordered)
	stats.WinningTrades = len(wins)
	stats.LosingTrades = len(losses)
	stats.WinRate = quantize(decimal.NewFromInt(int64(len(wins))).Div(total).Mul(hundred))
	stats.ProfitFactor = quantize(ratio(stats.GrossProfit, stats.GrossLoss.Abs()))
	stats.AvgWin = quantize(mean(wins))
	stats.AvgLoss = quantize(mean(losses))
	stats.Expectancy = quantize(stats.NetProfit.Div(total))
	stats.AvgRMultiple = quantize(mean(rMultiples))
	stats.GrossProfit = quantize(stats.GrossProfit)
	stats.GrossLoss = quantize(stats.GrossLoss)
	stats.NetProfit = quantize(stats.NetProfit)
	stats.LargestWinner = quantize(stats.LargestWinner)
	stats.LargestLoser = quantize(stats.LargestLoser)
	return stats
}

// BySymbol breaks trades down per symbol, sorted by symbol.
func BySymbol(trades []broker.Trade) []SymbolStats {
	index := make(map[string]*SymbolStats)
	for _, t := range trades {
		s, ok := index[t.Symbol]
		if !ok {
			s = &SymbolStats{Symbol: t.Symbol}
			index[t.Symbol] = s
		}
		s.Trades++
		if t.IsWin() {
			s.Wins++
		}
		s.RealizedPnL = s.RealizedPnL.Add(t.RealizedPnL)
	}

	out := make([]SymbolStats, 0, len(index))
	for _, s := range index {
		s.WinRate = quantize(decimal.NewFromInt(int64(s.Wins)).Div(decimal.NewFromInt(int64(s.Trades))).Mul(hundred))
		s.RealizedPnL = quantize(s.RealizedPnL)
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

func byExit(trades []broker.Trade) []broker.Trade {
	out := make([]broker.Trade, len(trades))
	copy(out, trades)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].ExitTime.Before(out[j].ExitTime)
	})
	return out
}
