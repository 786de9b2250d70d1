package feed

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/shopspring/decimal"

	"github.com/newthinker/replay/internal/core"
)

// BarRecord is the Parquet schema for bar data.
type BarRecord struct {
	Symbol    string  `parquet:"symbol"`
	Timeframe string  `parquet:"timeframe,optional"`
	Timestamp int64   `parquet:"timestamp,timestamp(millisecond)"` // Unix ms
	Open      float64 `parquet:"open"`
	High      float64 `parquet:"high"`
	Low       float64 `parquet:"low"`
	Close     float64 `parquet:"close"`
	Volume    int64   `parquet:"volume"`
}

// LoadParquet reads bars from a Parquet file in the BarRecord schema.
// Prices are converted with the shortest decimal that round-trips the float.
func LoadParquet(path string, opts Options) ([]core.Bar, error) {
	records, err := parquet.ReadFile[BarRecord](path)
	if err != nil {
		return nil, core.WrapError(core.ErrNoData, fmt.Errorf("reading %s: %w", path, err))
	}
	bars := make([]core.Bar, len(records))
	for i, r := range records {
		bars[i] = core.Bar{
			Symbol:    r.Symbol,
			Timeframe: r.Timeframe,
			Timestamp: time.UnixMilli(r.Timestamp).UTC(),
			Open:      decimal.NewFromFloat(r.Open),
			High:      decimal.NewFromFloat(r.High),
			Low:       decimal.NewFromFloat(r.Low),
			Close:     decimal.NewFromFloat(r.Close),
			Volume:    r.Volume,
		}
	}
	return finish(bars, opts), nil
}

// WriteParquet writes bars to path in the BarRecord schema.
func WriteParquet(path string, bars []core.Bar) error {
	records := make([]BarRecord, len(bars))
	for i, b := range bars {
		records[i] = BarRecord{
			Symbol:    b.Symbol,
			Timeframe: b.Timeframe,
			Timestamp: b.Timestamp.UnixMilli(),
			Open:      b.Open.InexactFloat64(),
			High:      b.High.InexactFloat64(),
			Low:       b.Low.InexactFloat64(),
			Close:     b.Close.InexactFloat64(),
			Volume:    b.Volume,
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return parquet.WriteFile(path, records)
}
