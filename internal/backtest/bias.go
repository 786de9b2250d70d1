package backtest

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/newthinker/replay/internal/broker"
	"github.com/newthinker/replay/internal/core"
)

// BiasViolation describes one trade that used information it could not
// have had.
type BiasViolation struct {
	TradeIndex int
	Symbol     string
	EntryTime  time.Time
	Reason     string
}

func (v BiasViolation) String() string {
	return fmt.Sprintf("trade %d %s@%s: %s", v.TradeIndex, v.Symbol, v.EntryTime.Format(time.RFC3339), v.Reason)
}

// BiasReport is the outcome of a look-ahead check.
type BiasReport struct {
	Passed     bool
	Violations []BiasViolation
}

// Err returns nil for a passing report and a BIAS_VIOLATION error otherwise.
func (r BiasReport) Err() error {
	if r.Passed {
		return nil
	}
	return core.WrapError(core.ErrBiasViolation,
		fmt.Errorf("%d violation(s), first: %s", len(r.Violations), r.Violations[0]))
}

type symbolBars struct {
	bars  []core.Bar
	index map[int64]int // unix nanos -> position in bars
}

func (s *symbolBars) find(t time.Time) (core.Bar, int, bool) {
	i, ok := s.index[t.UnixNano()]
	if !ok {
		return core.Bar{}, -1, false
	}
	return s.bars[i], i, true
}

func (s *symbolBars) final() time.Time {
	return s.bars[len(s.bars)-1].Timestamp
}

// BiasDetector checks trades against the bars a run processed.
type BiasDetector struct {
	symbols map[string]*symbolBars
}

// NewBiasDetector indexes bars by symbol and timestamp.
func NewBiasDetector(bars []core.Bar) *BiasDetector {
	d := &BiasDetector{symbols: make(map[string]*symbolBars)}
	for _, b := range bars {
		s, ok := d.symbols[b.Symbol]
		if !ok {
			s = &symbolBars{index: make(map[int64]int)}
			d.symbols[b.Symbol] = s
		}
		s.bars = append(s.bars, b)
	}
	for _, s := range d.symbols {
		sort.SliceStable(s.bars, func(i, j int) bool { return s.bars[i].Timestamp.Before(s.bars[j].Timestamp) })
		for i, b := range s.bars {
			s.index[b.Timestamp.UnixNano()] = i
		}
	}
	return d
}

// Check verifies every trade in a single pass and never modifies them.
//
// An entry or exit must fill strictly after the bar whose signal produced it,
// except on the symbol's final bar where end-of-run liquidation fills against
// the signal bar itself. Exit prices must lie within the exit bar's range and
// entry prices within the range traded while the position was open.
func (d *BiasDetector) Check(trades []broker.Trade) BiasReport {
	report := BiasReport{Passed: true}
	flag := func(i int, t broker.Trade, format string, args ...any) {
		report.Passed = false
		report.Violations = append(report.Violations, BiasViolation{
			TradeIndex: i,
			Symbol:     t.Symbol,
			EntryTime:  t.EntryTime,
			Reason:     fmt.Sprintf(format, args...),
		})
	}

	for i, t := range trades {
		s, ok := d.symbols[t.Symbol]
		if !ok {
			flag(i, t, "no bars for symbol")
			continue
		}

		if t.EntryTime.Before(t.EntrySignalAt) {
			flag(i, t, "entry at %s precedes its signal at %s", stamp(t.EntryTime), stamp(t.EntrySignalAt))
		}
		if t.ExitTime.Before(t.EntryTime) {
			flag(i, t, "exit at %s precedes entry", stamp(t.ExitTime))
		}
		if t.ExitTime.Before(t.ExitSignalAt) {
			flag(i, t, "exit at %s precedes its signal at %s", stamp(t.ExitTime), stamp(t.ExitSignalAt))
		}

		if _, _, ok := s.find(t.EntrySignalAt); !ok {
			flag(i, t, "entry signal time %s is not a known bar", stamp(t.EntrySignalAt))
		}
		if _, _, ok := s.find(t.ExitSignalAt); !ok {
			flag(i, t, "exit signal time %s is not a known bar", stamp(t.ExitSignalAt))
		}
		_, entryIdx, entryOK := s.find(t.EntryTime)
		if !entryOK {
			flag(i, t, "entry time is not a known bar")
		}
		exitBar, exitIdx, exitOK := s.find(t.ExitTime)
		if !exitOK {
			flag(i, t, "exit time %s is not a known bar", stamp(t.ExitTime))
		}

		final := s.final()
		if t.EntryTime.Equal(t.EntrySignalAt) && !t.EntryTime.Equal(final) {
			flag(i, t, "entry filled on its own signal bar")
		}
		if t.ExitTime.Equal(t.ExitSignalAt) && !t.ExitTime.Equal(final) {
			flag(i, t, "exit filled on its own signal bar")
		}

		if exitOK && !exitBar.Contains(t.ExitPrice) {
			flag(i, t, "exit price %s outside bar range [%s, %s]", t.ExitPrice, exitBar.Low, exitBar.High)
		}
		if entryOK && exitOK && entryIdx <= exitIdx {
			low, high := priceRange(s.bars[entryIdx : exitIdx+1])
			if t.EntryPrice.LessThan(low) || t.EntryPrice.GreaterThan(high) {
				flag(i, t, "entry price %s outside traded range [%s, %s]", t.EntryPrice, low, high)
			}
		}
	}
	return report
}

// DetectLookAheadBias reports whether trades pass the look-ahead check
// against bars.
func DetectLookAheadBias(trades []broker.Trade, bars []core.Bar) bool {
	return NewBiasDetector(bars).Check(trades).Passed
}

func priceRange(bars []core.Bar) (decimal.Decimal, decimal.Decimal) {
	low, high := bars[0].Low, bars[0].High
	for _, b := range bars[1:] {
		low = decimal.Min(low, b.Low)
		high = decimal.Max(high, b.High)
	}
	return low, high
}

func stamp(t time.Time) string {
	return t.Format(time.RFC3339)
}
