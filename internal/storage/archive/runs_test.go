package archive

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newthinker/replay/internal/backtest"
	"github.com/newthinker/replay/internal/broker"
	"github.com/newthinker/replay/internal/core"
	"github.com/newthinker/replay/internal/performance"
)

func sampleResult() *backtest.Result {
	start := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	return &backtest.Result{
		Strategy:      "ma_crossover",
		Config:        backtest.DefaultConfig(),
		Symbols:       []string{"AAPL"},
		Start:         start,
		End:           start.AddDate(0, 0, 10),
		BarsProcessed: 11,
		Trades: []broker.Trade{{
			Symbol:      "AAPL",
			Side:        broker.PositionLong,
			Quantity:    decimal.NewFromInt(10),
			EntryPrice:  decimal.RequireFromString("100.25"),
			ExitPrice:   decimal.RequireFromString("110.5"),
			RealizedPnL: decimal.RequireFromString("102.5"),
			Tag:         "SC",
		}},
		Skipped: []backtest.SkippedSignal{
			{Symbol: "AAPL", Kind: core.SignalBuy, Reason: "position size rounds to zero"},
		},
		FinalValue: decimal.RequireFromString("100102.5"),
		Metrics: performance.Metrics{
			TotalReturnPct: decimal.RequireFromString("0.1025"),
			MaxDrawdownPct: decimal.RequireFromString("1.5"),
		},
		BiasCheckPassed: true,
	}
}

func newTestArchive(t *testing.T) *Archive {
	t.Helper()
	store, err := NewLocalFS(t.TempDir())
	require.NoError(t, err)
	a := New(store, nil)
	a.now = func() time.Time { return time.Date(2026, 3, 9, 12, 0, 0, 0, time.UTC) }
	a.newID = func() uuid.UUID { return uuid.MustParse("0b8f7c2e-1d3a-4e5f-8a9b-0c1d2e3f4a5b") }
	return a
}

func TestArchive_SaveLoad(t *testing.T) {
	a := newTestArchive(t)
	ctx := context.Background()

	rec, err := a.Save(ctx, sampleResult(), map[string]any{"fast_period": 10})
	require.NoError(t, err)
	assert.Equal(t, "runs/2026/03/09/0b8f7c2e-1d3a-4e5f-8a9b-0c1d2e3f4a5b.json", rec.Key())
	assert.Equal(t, 1, rec.Trades)

	loaded, err := a.Load(ctx, rec.Key())
	require.NoError(t, err)
	assert.Equal(t, rec.ID, loaded.ID)
	assert.Equal(t, "ma_crossover", loaded.Strategy)
	assert.True(t, loaded.TotalReturnPct.Equal(decimal.RequireFromString("0.1025")))
	assert.True(t, loaded.FinalValue.Equal(decimal.RequireFromString("100102.5")))
	assert.EqualValues(t, 10, loaded.Params["fast_period"])

	require.NotNil(t, loaded.Result)
	require.Len(t, loaded.Result.Trades, 1)
	assert.True(t, loaded.Result.Trades[0].EntryPrice.Equal(decimal.RequireFromString("100.25")))
	assert.Equal(t, "SC", loaded.Result.Trades[0].Tag)
	assert.Equal(t, core.SignalBuy, loaded.Result.Skipped[0].Kind)
}

func TestArchive_FindAndList(t *testing.T) {
	a := newTestArchive(t)
	ctx := context.Background()

	ids := []string{
		"00000000-0000-4000-8000-000000000001",
		"00000000-0000-4000-8000-000000000002",
	}
	for _, id := range ids {
		a.newID = func() uuid.UUID { return uuid.MustParse(id) }
		_, err := a.Save(ctx, sampleResult(), nil)
		require.NoError(t, err)
	}

	keys, err := a.List(ctx)
	require.NoError(t, err)
	assert.Len(t, keys, 2)

	rec, err := a.Find(ctx, ids[1])
	require.NoError(t, err)
	assert.Equal(t, ids[1], rec.ID)

	_, err = a.Find(ctx, "missing")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestArchive_SaveNil(t *testing.T) {
	_, err := newTestArchive(t).Save(context.Background(), nil, nil)
	assert.Error(t, err)
}

func TestArchive_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newTestArchive(t).Save(ctx, sampleResult(), nil)
	assert.ErrorIs(t, err, context.Canceled)
}
