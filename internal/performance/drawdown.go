package performance

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// DrawdownEpisodes walks the equity curve and returns every decline below a
// running peak, sorted by severity with the deepest first. An episode still
// open at the end of the curve has no recovery date.
func DrawdownEpisodes(equity []EquityPoint) []DrawdownEpisode {
	if len(equity) == 0 {
		return nil
	}

	var episodes []DrawdownEpisode
	peak := equity[0]
	var trough *EquityPoint

	closeEpisode := func(recovery *EquityPoint) {
		ep := DrawdownEpisode{
			PeakDate:     peak.Timestamp,
			TroughDate:   trough.Timestamp,
			PeakValue:    peak.PortfolioValue,
			TroughValue:  trough.PortfolioValue,
			DrawdownPct:  quantize(peak.PortfolioValue.Sub(trough.PortfolioValue).Div(peak.PortfolioValue).Mul(hundred)),
			DurationDays: days(peak.Timestamp, trough.Timestamp),
		}
		if recovery != nil {
			at := recovery.Timestamp
			d := days(trough.Timestamp, at)
			ep.RecoveryDate = &at
			ep.RecoveryDurationDays = &d
		}
		episodes = append(episodes, ep)
	}

	for i := 1; i < len(equity); i++ {
		p := equity[i]
		switch {
		case p.PortfolioValue.GreaterThanOrEqual(peak.PortfolioValue):
			if trough != nil {
				closeEpisode(&p)
				trough = nil
			}
			peak = p
		case trough == nil || p.PortfolioValue.LessThan(trough.PortfolioValue):
			t := p
			trough = &t
		}
	}
	if trough != nil && peak.PortfolioValue.IsPositive() {
		closeEpisode(nil)
	}

	sort.SliceStable(episodes, func(i, j int) bool {
		return episodes[i].DrawdownPct.GreaterThan(episodes[j].DrawdownPct)
	})
	return episodes
}

// MaxDrawdownPct returns the deepest episode, or zero without drawdowns.
func MaxDrawdownPct(episodes []DrawdownEpisode) decimal.Decimal {
	maxDD := decimal.Zero
	for _, ep := range episodes {
		if ep.DrawdownPct.GreaterThan(maxDD) {
			maxDD = ep.DrawdownPct
		}
	}
	return maxDD
}

// days counts the whole days between from and to.
func days(from, to time.Time) int {
	return int(to.Sub(from) / (24 * time.Hour))
}
