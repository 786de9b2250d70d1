package backtest_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/newthinker/replay/internal/core"
	"github.com/newthinker/replay/internal/strategy"
)

var t0 = time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func assertDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.Truef(t, dec(want).Equal(got), "want %s, got %s", want, got)
}

// barAt builds a bar whose range is close ± 1.
func barAt(symbol string, day int, close string) core.Bar {
	c := dec(close)
	return core.Bar{
		Symbol:    symbol,
		Timeframe: "1d",
		Timestamp: t0.AddDate(0, 0, day),
		Open:      c,
		High:      c.Add(decimal.NewFromInt(1)),
		Low:       c.Sub(decimal.NewFromInt(1)),
		Close:     c,
		Volume:    1000,
	}
}

func series(symbol string, closes ...string) []core.Bar {
	bars := make([]core.Bar, len(closes))
	for i, c := range closes {
		bars[i] = barAt(symbol, i, c)
	}
	return bars
}

// scripted returns preset signals by bar index and records what it saw.
type scripted struct {
	signals map[int]core.Signal
	haltAt  int

	calls       int
	historyLens []int
	lookAhead   bool
	cash        []decimal.Decimal
	positions   []bool
}

func newScripted(signals map[int]core.Signal) *scripted {
	return &scripted{signals: signals, haltAt: -1}
}

func (s *scripted) Name() string                   { return "scripted" }
func (s *scripted) Description() string            { return "preset signals" }
func (s *scripted) Init(cfg strategy.Config) error { return nil }

func (s *scripted) Decide(bar core.Bar, ctx *strategy.Context) core.Signal {
	i := s.calls
	s.calls++
	s.historyLens = append(s.historyLens, ctx.History.Len())
	for j := 0; j < ctx.History.Len(); j++ {
		if !ctx.History.At(j).Timestamp.Before(bar.Timestamp) {
			s.lookAhead = true
		}
	}
	s.cash = append(s.cash, ctx.Cash)
	s.positions = append(s.positions, ctx.Position != nil)
	if i == s.haltAt {
		ctx.Halt()
	}
	if sig, ok := s.signals[i]; ok {
		return sig
	}
	return core.Hold()
}
