package ma_crossover

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/newthinker/replay/internal/broker"
	"github.com/newthinker/replay/internal/core"
	"github.com/newthinker/replay/internal/strategy"
)

func TestMACrossover_ImplementsStrategy(t *testing.T) {
	var _ strategy.Strategy = (*MACrossover)(nil)
}

func TestMACrossover_Name(t *testing.T) {
	s := New(5, 10)
	if s.Name() != "ma_crossover" {
		t.Errorf("expected 'ma_crossover', got '%s'", s.Name())
	}
}

// decide feeds all but the last price as history and decides on the last.
func decide(s *MACrossover, prices []int64, pos *broker.Position) core.Signal {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	h := strategy.NewHistory(len(prices))
	var bar core.Bar
	for i, p := range prices {
		bar = core.Bar{
			Symbol:    "TEST",
			Timestamp: start.AddDate(0, 0, i),
			Close:     decimal.NewFromInt(p),
		}
		if i < len(prices)-1 {
			h.Append(bar)
		}
	}
	ctx := &strategy.Context{History: h, Position: pos, Scratch: strategy.NewScratch()}
	return s.Decide(bar, ctx)
}

func TestMACrossover_GoldenCross(t *testing.T) {
	s := New(2, 4)

	// prevFast = (85 + 80) / 2 = 82.5, prevSlow = (95 + 90 + 85 + 80) / 4 = 87.5
	// currFast = (80 + 120) / 2 = 100, currSlow = (90 + 85 + 80 + 120) / 4 = 93.75
	prices := []int64{100, 95, 90, 85, 80, 120}

	sig := decide(s, prices, nil)
	if sig.Kind != core.SignalBuy {
		t.Fatalf("expected Buy for golden cross, got %s", sig.Kind)
	}
	if sig.StopPrice != nil {
		t.Error("expected no stop without stop_pct")
	}
}

func TestMACrossover_GoldenCrossWhileLongHolds(t *testing.T) {
	s := New(2, 4)
	prices := []int64{100, 95, 90, 85, 80, 120}

	sig := decide(s, prices, &broker.Position{Symbol: "TEST"})
	if sig.Kind != core.SignalHold {
		t.Errorf("expected Hold while already long, got %s", sig.Kind)
	}
}

func TestMACrossover_StopPrice(t *testing.T) {
	s := New(2, 4)
	err := s.Init(strategy.Config{Params: map[string]any{"stop_pct": "0.05"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	sig := decide(s, []int64{100, 95, 90, 85, 80, 120}, nil)
	if sig.StopPrice == nil {
		t.Fatal("expected a stop price")
	}
	if !sig.StopPrice.Equal(decimal.NewFromInt(114)) {
		t.Errorf("stop = %s, want 114", sig.StopPrice)
	}
}

func TestMACrossover_DeathCross(t *testing.T) {
	s := New(2, 4)

	// prevFast = (95 + 100) / 2 = 97.5, prevSlow = (85 + 90 + 95 + 100) / 4 = 92.5
	// currFast = (100 + 60) / 2 = 80, currSlow = (90 + 95 + 100 + 60) / 4 = 86.25
	prices := []int64{80, 85, 90, 95, 100, 60}

	sig := decide(s, prices, &broker.Position{Symbol: "TEST"})
	if sig.Kind != core.SignalSell {
		t.Fatalf("expected Sell for death cross, got %s", sig.Kind)
	}

	if flat := decide(s, prices, nil); flat.Kind != core.SignalHold {
		t.Errorf("expected Hold when flat, got %s", flat.Kind)
	}
}

func TestMACrossover_NotEnoughData(t *testing.T) {
	s := New(50, 200)

	prices := make([]int64, 100)
	for i := range prices {
		prices[i] = 100
	}

	if sig := decide(s, prices, nil); sig.Kind != core.SignalHold {
		t.Errorf("expected Hold with insufficient data, got %s", sig.Kind)
	}
}

func TestMACrossover_Init(t *testing.T) {
	tests := []struct {
		name    string
		params  map[string]any
		wantErr bool
	}{
		{"defaults", nil, false},
		{"override", map[string]any{"fast_period": 3, "slow_period": 9}, false},
		{"float periods from json", map[string]any{"fast_period": 3.0, "slow_period": 9.0}, false},
		{"fast not below slow", map[string]any{"fast_period": 10, "slow_period": 10}, true},
		{"zero period", map[string]any{"fast_period": 0}, true},
		{"bad stop", map[string]any{"stop_pct": "1.5"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(5, 20)
			err := s.Init(strategy.Config{Params: tt.params})
			if (err != nil) != tt.wantErr {
				t.Errorf("Init() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
