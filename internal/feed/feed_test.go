package feed

import (
	"bytes"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newthinker/replay/internal/broker"
	"github.com/newthinker/replay/internal/core"
)

const sampleCSV = `Date,Open,High,Low,Close,Volume
2024-01-03,101.5,103.25,100.75,102.10,1200
2024-01-02,100.00,102.00,99.50,101.25,1000
2024-01-04,102.1,104,101.9,103.3,1500.0
`

func TestReadCSV(t *testing.T) {
	bars, err := ReadCSV(strings.NewReader(sampleCSV), Options{Symbol: "AAPL", Timeframe: "1d"})
	require.NoError(t, err)
	require.Len(t, bars, 3)

	first := bars[0]
	assert.Equal(t, "AAPL", first.Symbol)
	assert.Equal(t, "1d", first.Timeframe)
	assert.Equal(t, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), first.Timestamp)
	assert.Equal(t, "101.25", first.Close.String())
	assert.Equal(t, "99.5", first.Low.String())
	assert.EqualValues(t, 1000, first.Volume)

	// Sorted by time regardless of file order.
	for i := 1; i < len(bars); i++ {
		assert.True(t, bars[i].Timestamp.After(bars[i-1].Timestamp))
	}
	assert.EqualValues(t, 1500, bars[2].Volume)
	assert.True(t, bars[1].Close.Equal(decimal.RequireFromString("102.1")))
}

func TestReadCSV_SymbolColumnFilters(t *testing.T) {
	data := `timestamp,symbol,open,high,low,close,volume
2024-01-02T15:30:00Z,AAPL,1,2,0.5,1.5,10
2024-01-02T15:30:00Z,MSFT,3,4,2.5,3.5,20
1704295800,AAPL,1.5,2.5,1,2,30
`
	bars, err := ReadCSV(strings.NewReader(data), Options{Symbol: "AAPL"})
	require.NoError(t, err)
	require.Len(t, bars, 2)
	for _, b := range bars {
		assert.Equal(t, "AAPL", b.Symbol)
	}
	assert.Equal(t, time.Unix(1704295800, 0).UTC(), bars[1].Timestamp)

	all, err := ReadCSV(strings.NewReader(data), Options{})
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestReadCSV_DateRange(t *testing.T) {
	bars, err := ReadCSV(strings.NewReader(sampleCSV), Options{
		Start: time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.Len(t, bars, 1)
	assert.Equal(t, 3, bars[0].Timestamp.Day())
}

func TestReadCSV_Errors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"missing column", "timestamp,open,high,low,close\n2024-01-02,1,2,0,1\n"},
		{"bad price", "timestamp,open,high,low,close,volume\n2024-01-02,one,2,0,1,5\n"},
		{"bad time", "timestamp,open,high,low,close,volume\nyesterday,1,2,0,1,5\n"},
		{"short row", "timestamp,open,high,low,close,volume\n2024-01-02,1,2\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadCSV(strings.NewReader(tt.data), Options{})
			assert.ErrorIs(t, err, core.ErrInvalidInput)
		})
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()

	csvPath := filepath.Join(dir, "aapl.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte(sampleCSV), 0o644))
	bars, err := LoadFile(csvPath, Options{Symbol: "AAPL"})
	require.NoError(t, err)
	assert.Len(t, bars, 3)

	emptyPath := filepath.Join(dir, "empty.csv")
	require.NoError(t, os.WriteFile(emptyPath, []byte("timestamp,open,high,low,close,volume\n"), 0o644))
	_, err = LoadFile(emptyPath, Options{})
	assert.ErrorIs(t, err, core.ErrNoData)

	_, err = LoadFile(filepath.Join(dir, "bars.json"), Options{})
	assert.ErrorIs(t, err, core.ErrInvalidInput)

	_, err = LoadFile(filepath.Join(dir, "missing.csv"), Options{})
	assert.ErrorIs(t, err, core.ErrNoData)
}

func TestParquetRoundTrip(t *testing.T) {
	src, err := ReadCSV(strings.NewReader(sampleCSV), Options{Symbol: "AAPL", Timeframe: "1d"})
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "us", "AAPL", "2024.parquet")
	require.NoError(t, WriteParquet(path, src))

	got, err := LoadFile(path, Options{})
	require.NoError(t, err)
	require.Len(t, got, len(src))
	for i := range src {
		assert.Equal(t, src[i].Symbol, got[i].Symbol)
		assert.Equal(t, src[i].Timeframe, got[i].Timeframe)
		assert.True(t, src[i].Timestamp.Equal(got[i].Timestamp))
		assert.True(t, src[i].Close.Equal(got[i].Close), "close %s != %s", src[i].Close, got[i].Close)
		assert.True(t, src[i].High.Equal(got[i].High))
		assert.Equal(t, src[i].Volume, got[i].Volume)
	}

	filtered, err := LoadParquet(path, Options{Symbol: "MSFT"})
	require.NoError(t, err)
	assert.Empty(t, filtered)
}

func TestWriteTradesCSV(t *testing.T) {
	at := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	trades := []broker.Trade{{
		Symbol:        "AAPL",
		Side:          broker.PositionLong,
		Tag:           "SC",
		EntrySignalAt: at,
		EntryTime:     at.AddDate(0, 0, 1),
		ExitSignalAt:  at.AddDate(0, 0, 5),
		ExitTime:      at.AddDate(0, 0, 6),
		Quantity:      decimal.NewFromInt(10),
		EntryPrice:    decimal.RequireFromString("100"),
		ExitPrice:     decimal.RequireFromString("105.5"),
		Commission:    decimal.RequireFromString("2"),
		Slippage:      decimal.Zero,
		RealizedPnL:   decimal.RequireFromString("53"),
		RMultiple:     decimal.RequireFromString("1.06"),
	}}

	var buf bytes.Buffer
	require.NoError(t, WriteTradesCSV(&buf, trades))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "symbol", rows[0][0])
	assert.Equal(t, []string{"AAPL", "LONG", "SC"}, rows[1][:3])
	assert.Equal(t, "53", rows[1][12])
	assert.Equal(t, "1.0600", rows[1][13])
}
