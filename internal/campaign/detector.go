// Package campaign groups tagged trades into Wyckoff accumulation and
// distribution campaigns and classifies how far each one got.
package campaign

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/newthinker/replay/internal/broker"
	"github.com/newthinker/replay/internal/core"
)

// DefaultWindow is the largest gap between two trades of one campaign.
const DefaultWindow = 30 * 24 * time.Hour

// Status is the lifecycle stage of a campaign.
type Status string

const (
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
	StatusInProgress Status = "IN_PROGRESS"
)

// Campaign is a run of same-symbol trades whose tags follow one grammar.
type Campaign struct {
	ID           string
	Symbol       string
	Type         Type
	Status       Status
	Tags         []string
	Trades       []broker.Trade
	TotalPnL     decimal.Decimal
	AvgRMultiple decimal.Decimal
	HighestPhase Phase
	Start        time.Time
	End          time.Time
}

// TradeCount returns the number of trades in the campaign.
func (c Campaign) TradeCount() int {
	return len(c.Trades)
}

// Detector groups trades into campaigns.
type Detector struct {
	window time.Duration
	log    *zap.Logger
}

// Option configures a Detector.
type Option func(*Detector)

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) Option {
	return func(d *Detector) {
		if log != nil {
			d.log = log
		}
	}
}

// NewDetector creates a Detector with the given gap window.
func NewDetector(window time.Duration, opts ...Option) (*Detector, error) {
	if window <= 0 {
		return nil, core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("campaign window must be positive, got %s", window))
	}
	d := &Detector{window: window, log: zap.NewNop()}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Window returns the configured gap window.
func (d *Detector) Window() time.Duration {
	return d.window
}

// building is a campaign under construction.
type building struct {
	grammar Grammar
	seen    map[string]bool
	c       Campaign
	done    bool
}

func (b *building) accepts(tag string) bool {
	if b.done {
		return false
	}
	rule, ok := b.grammar.Rule(tag)
	if !ok || rule.Phase < b.c.HighestPhase {
		return false
	}
	return rule.satisfied(b.seen)
}

func (b *building) add(t broker.Trade, tag string) {
	rule, _ := b.grammar.Rule(tag)
	b.seen[tag] = true
	b.c.Tags = append(b.c.Tags, tag)
	b.c.Trades = append(b.c.Trades, t)
	if rule.Phase > b.c.HighestPhase {
		b.c.HighestPhase = rule.Phase
	}
	if rule.Terminal {
		b.done = true
	}
	b.c.End = t.ExitTime
}

// Detect groups trades by symbol in entry order. A trade starts a new
// campaign when it comes more than the window after the symbol's previous
// tagged trade, or when its tag is not a legal next step. Untagged trades
// and tags that can neither extend nor open a campaign stay ungrouped.
// The result is ordered by start time, then symbol.
func (d *Detector) Detect(trades []broker.Trade) []Campaign {
	ordered := make([]broker.Trade, len(trades))
	copy(ordered, trades)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].EntryTime.Before(ordered[j].EntryTime)
	})

	type symbolState struct {
		current  *building
		lastSeen time.Time
		seq      int
	}
	states := make(map[string]*symbolState)
	var campaigns []Campaign

	finish := func(s *symbolState, status Status) {
		if s.current == nil {
			return
		}
		if s.current.done {
			status = StatusCompleted
		}
		campaigns = append(campaigns, summarize(s.current.c, status))
		s.current = nil
	}

	for _, t := range ordered {
		tag := strings.ToUpper(strings.TrimSpace(t.Tag))
		if tag == "" {
			continue
		}
		s, ok := states[t.Symbol]
		if !ok {
			s = &symbolState{}
			states[t.Symbol] = s
		}

		if s.current != nil && t.EntryTime.Sub(s.lastSeen) > d.window {
			d.log.Debug("campaign window elapsed",
				zap.String("campaign", s.current.c.ID),
				zap.Time("last_trade", s.lastSeen),
				zap.Time("entry", t.EntryTime),
			)
			finish(s, StatusFailed)
		}
		s.lastSeen = t.EntryTime

		if s.current != nil && s.current.accepts(tag) {
			s.current.add(t, tag)
			continue
		}
		finish(s, StatusFailed)

		g, ok := opening(tag)
		if !ok {
			d.log.Debug("trade left ungrouped",
				zap.String("symbol", t.Symbol),
				zap.String("tag", tag),
			)
			continue
		}
		s.seq++
		s.current = &building{
			grammar: g,
			seen:    make(map[string]bool),
			c: Campaign{
				ID:     fmt.Sprintf("%s-%d", t.Symbol, s.seq),
				Symbol: t.Symbol,
				Type:   g.Type,
				Start:  t.EntryTime,
			},
		}
		s.current.add(t, tag)
	}

	// Whatever is still open has had no successor yet.
	for _, s := range states {
		finish(s, StatusInProgress)
	}

	sort.SliceStable(campaigns, func(i, j int) bool {
		if !campaigns[i].Start.Equal(campaigns[j].Start) {
			return campaigns[i].Start.Before(campaigns[j].Start)
		}
		return campaigns[i].Symbol < campaigns[j].Symbol
	})
	return campaigns
}

func opening(tag string) (Grammar, bool) {
	for _, g := range grammars {
		if r, ok := g.Rule(tag); ok && r.Opens() {
			return g, true
		}
	}
	return Grammar{}, false
}

func summarize(c Campaign, status Status) Campaign {
	c.Status = status
	c.TotalPnL = decimal.Zero
	var rSum decimal.Decimal
	var rCount int64
	for _, t := range c.Trades {
		c.TotalPnL = c.TotalPnL.Add(t.RealizedPnL)
		if t.InitialRisk.IsPositive() {
			rSum = rSum.Add(t.RMultiple)
			rCount++
		}
	}
	c.AvgRMultiple = decimal.Zero
	if rCount > 0 {
		c.AvgRMultiple = rSum.Div(decimal.NewFromInt(rCount)).Round(4)
	}
	return c
}
