package strategy

import (
	"github.com/shopspring/decimal"

	"github.com/newthinker/replay/internal/broker"
	"github.com/newthinker/replay/internal/core"
)

// View is a read-only window over the bars a strategy may see.
type View interface {
	// Len returns the number of visible bars.
	Len() int
	// At returns the i-th visible bar, oldest first.
	At(i int) core.Bar
	// Last returns the most recent visible bar.
	Last() (core.Bar, bool)
	// Tail returns a copy of the last n visible bars, or all of them if fewer.
	Tail(n int) []core.Bar
}

// History is the append-only bar history of one run. The engine appends a
// bar only after the strategy has decided on it.
type History struct {
	bars []core.Bar
}

// NewHistory creates an empty history with room for capacity bars.
func NewHistory(capacity int) *History {
	return &History{bars: make([]core.Bar, 0, capacity)}
}

// Append adds a bar to the history.
func (h *History) Append(bar core.Bar) {
	h.bars = append(h.bars, bar)
}

func (h *History) Len() int { return len(h.bars) }

func (h *History) At(i int) core.Bar { return h.bars[i] }

func (h *History) Last() (core.Bar, bool) {
	if len(h.bars) == 0 {
		return core.Bar{}, false
	}
	return h.bars[len(h.bars)-1], true
}

func (h *History) Tail(n int) []core.Bar {
	if n > len(h.bars) {
		n = len(h.bars)
	}
	if n <= 0 {
		return []core.Bar{}
	}
	out := make([]core.Bar, n)
	copy(out, h.bars[len(h.bars)-n:])
	return out
}

// Scratch is per-run mutable state owned by the caller of a run. A strategy
// keeps bookkeeping here instead of in package-level variables so that
// concurrent runs never share state.
type Scratch struct {
	values map[string]any
}

// NewScratch creates an empty scratch area.
func NewScratch() *Scratch {
	return &Scratch{values: make(map[string]any)}
}

// Set stores a value.
func (s *Scratch) Set(key string, v any) {
	if s.values == nil {
		s.values = make(map[string]any)
	}
	s.values[key] = v
}

// Get returns a stored value.
func (s *Scratch) Get(key string) (any, bool) {
	v, ok := s.values[key]
	return v, ok
}

// Int returns a stored int, or zero.
func (s *Scratch) Int(key string) int {
	v, _ := s.values[key].(int)
	return v
}

// Decimal returns a stored decimal, or zero.
func (s *Scratch) Decimal(key string) decimal.Decimal {
	v, _ := s.values[key].(decimal.Decimal)
	return v
}

// Delete removes a value.
func (s *Scratch) Delete(key string) {
	delete(s.values, key)
}

// Context is what a strategy sees when deciding on a bar.
type Context struct {
	// History holds the bars strictly before the bar being decided.
	History View
	// Position is a copy of the open position in the bar's symbol, or nil.
	Position *broker.Position
	Cash     decimal.Decimal
	Scratch  *Scratch

	halted bool
}

// Halt asks the engine to stop feeding bars after the current one.
func (c *Context) Halt() {
	c.halted = true
}

// Halted reports whether Halt was called.
func (c *Context) Halted() bool {
	return c.halted
}
