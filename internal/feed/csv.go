package feed

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/newthinker/replay/internal/broker"
	"github.com/newthinker/replay/internal/core"
)

var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

var requiredColumns = []string{"timestamp", "open", "high", "low", "close", "volume"}

// LoadCSV reads bars from a CSV file with a header row.
func LoadCSV(path string, opts Options) ([]core.Bar, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, core.WrapError(core.ErrNoData, err)
	}
	defer f.Close()
	return ReadCSV(f, opts)
}

// ReadCSV decodes bars from r. The header names columns case-insensitively;
// timestamp, open, high, low, close and volume are required, symbol and
// timeframe are optional. "date" and "time" are accepted for timestamp.
// Prices are parsed as exact decimals.
func ReadCSV(r io.Reader, opts Options) ([]core.Bar, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.ReuseRecord = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, core.WrapError(core.ErrInvalidInput, fmt.Errorf("reading header: %w", err))
	}
	cols := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))
		if name == "date" || name == "time" || name == "datetime" {
			name = "timestamp"
		}
		cols[name] = i
	}
	for _, name := range requiredColumns {
		if _, ok := cols[name]; !ok {
			return nil, core.WrapError(core.ErrInvalidInput, fmt.Errorf("missing column %q", name))
		}
	}

	var bars []core.Bar
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, core.WrapError(core.ErrInvalidInput, fmt.Errorf("line %d: %w", line, err))
		}
		bar, err := parseRow(rec, cols)
		if err != nil {
			return nil, core.WrapError(core.ErrInvalidInput, fmt.Errorf("line %d: %w", line, err))
		}
		bars = append(bars, bar)
	}
	return finish(bars, opts), nil
}

func parseRow(rec []string, cols map[string]int) (core.Bar, error) {
	field := func(name string) string {
		i, ok := cols[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	ts, err := parseTime(field("timestamp"))
	if err != nil {
		return core.Bar{}, err
	}
	bar := core.Bar{
		Symbol:    field("symbol"),
		Timeframe: field("timeframe"),
		Timestamp: ts,
	}
	prices := []struct {
		name string
		dst  *decimal.Decimal
	}{
		{"open", &bar.Open},
		{"high", &bar.High},
		{"low", &bar.Low},
		{"close", &bar.Close},
	}
	for _, p := range prices {
		v, err := decimal.NewFromString(field(p.name))
		if err != nil {
			return core.Bar{}, fmt.Errorf("%s: %w", p.name, err)
		}
		*p.dst = v
	}
	vol := field("volume")
	if vol == "" {
		vol = "0"
	}
	// Some vendors write volume with a fractional part.
	v, err := decimal.NewFromString(vol)
	if err != nil {
		return core.Bar{}, fmt.Errorf("volume: %w", err)
	}
	bar.Volume = v.IntPart()
	return bar, nil
}

// parseTime accepts the layouts in timeLayouts or Unix seconds, and always
// returns UTC.
func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	if secs, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(secs, 0).UTC(), nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

// WriteTradesCSV writes one row per closed trade.
func WriteTradesCSV(w io.Writer, trades []broker.Trade) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{
		"symbol", "side", "tag", "entry_signal_at", "entry_time", "exit_signal_at", "exit_time",
		"quantity", "entry_price", "exit_price", "commission", "slippage", "realized_pnl", "r_multiple",
	}); err != nil {
		return err
	}
	for _, t := range trades {
		if err := cw.Write([]string{
			t.Symbol, string(t.Side), t.Tag,
			t.EntrySignalAt.Format(time.RFC3339), t.EntryTime.Format(time.RFC3339),
			t.ExitSignalAt.Format(time.RFC3339), t.ExitTime.Format(time.RFC3339),
			t.Quantity.String(), t.EntryPrice.String(), t.ExitPrice.String(),
			t.Commission.String(), t.Slippage.String(), t.RealizedPnL.String(), t.RMultiple.StringFixed(4),
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
