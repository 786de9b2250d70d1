package main

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"

	"github.com/newthinker/replay/internal/backtest"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Width(18)
	gainStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	lossStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	warnStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("11"))
	headStyle  = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle  = lipgloss.NewStyle().Padding(0, 1)
)

func signed(d decimal.Decimal, suffix string) string {
	s := d.StringFixed(2) + suffix
	switch {
	case d.IsPositive():
		return gainStyle.Render("+" + s)
	case d.IsNegative():
		return lossStyle.Render(s)
	default:
		return s
	}
}

func line(w io.Writer, label, value string) {
	fmt.Fprintln(w, labelStyle.Render(label)+value)
}

// printSummary renders the headline numbers of a run.
func printSummary(w io.Writer, name string, r *backtest.Result) {
	m := r.Metrics
	fmt.Fprintln(w, titleStyle.Render("=== replay backtest ==="))
	line(w, "Strategy", name)
	line(w, "Symbols", fmt.Sprint(r.Symbols))
	line(w, "Period", fmt.Sprintf("%s to %s", r.Start.Format("2006-01-02"), r.End.Format("2006-01-02")))
	line(w, "Bars", humanize.Comma(int64(r.BarsProcessed)))
	if r.Halted {
		line(w, "Halted", warnStyle.Render("strategy stopped the run early"))
	}
	fmt.Fprintln(w)

	line(w, "Final value", r.FinalValue.StringFixed(2))
	line(w, "Total return", signed(m.TotalReturnPct, "%"))
	line(w, "CAGR", signed(m.CAGR.Shift(2), "%"))
	line(w, "Max drawdown", lossStyle.Render(m.MaxDrawdownPct.StringFixed(2)+"%"))
	line(w, "Sharpe", m.SharpeRatio.StringFixed(2))
	line(w, "Sortino", m.SortinoRatio.StringFixed(2))
	fmt.Fprintln(w)

	t := m.Trades
	line(w, "Trades", fmt.Sprintf("%d (%d won, %d lost)", t.TotalTrades, t.WinningTrades, t.LosingTrades))
	line(w, "Win rate", t.WinRate.StringFixed(2)+"%")
	line(w, "Profit factor", t.ProfitFactor.StringFixed(2))
	line(w, "Expectancy", signed(t.Expectancy, ""))
	line(w, "Avg R", t.AvgRMultiple.StringFixed(2))
	line(w, "Orders rejected", fmt.Sprint(len(r.RejectedOrders())))
	line(w, "Signals skipped", fmt.Sprint(len(r.Skipped)))
	line(w, "Max positions", fmt.Sprint(m.Risk.MaxConcurrentPositions))
	line(w, "Max heat", m.Risk.MaxPortfolioHeat.StringFixed(2)+"%")

	if cs := r.CampaignSummary; cs.Total > 0 {
		fmt.Fprintln(w)
		line(w, "Campaigns", fmt.Sprintf("%d (%d completed, %d failed, %d in progress)",
			cs.Total, cs.Completed, cs.Failed, cs.InProgress))
		line(w, "Completion rate", cs.CompletionRate.StringFixed(2)+"%")
	}

	fmt.Fprintln(w)
	if r.BiasCheckPassed {
		line(w, "Look-ahead check", gainStyle.Render("passed"))
	} else {
		line(w, "Look-ahead check", warnStyle.Render(fmt.Sprintf("FAILED (%d violations)", len(r.BiasViolations))))
		for _, v := range r.BiasViolations {
			fmt.Fprintln(w, "  "+v.String())
		}
	}
}

// renderSweep tabulates sweep results in job order.
func renderSweep(results []backtest.SweepResult) string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("RUN", "RETURN %", "CAGR %", "MAX DD %", "SHARPE", "TRADES", "WIN %", "BIAS").
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headStyle
			}
			return cellStyle
		})

	for _, sr := range results {
		if sr.Err != nil {
			t.Row(sr.Job, "error: "+sr.Err.Error(), "", "", "", "", "", "")
			continue
		}
		m := sr.Result.Metrics
		bias := "ok"
		if !sr.Result.BiasCheckPassed {
			bias = "FAIL"
		}
		t.Row(
			sr.Job,
			m.TotalReturnPct.StringFixed(2),
			m.CAGR.Shift(2).StringFixed(2),
			m.MaxDrawdownPct.StringFixed(2),
			m.SharpeRatio.StringFixed(2),
			fmt.Sprint(m.Trades.TotalTrades),
			m.Trades.WinRate.StringFixed(2),
			bias,
		)
	}
	return t.String()
}
