// Package feed loads historical bars from CSV and Parquet files.
package feed

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/newthinker/replay/internal/core"
)

// Options controls how loaded rows become bars.
type Options struct {
	// Symbol labels rows without a symbol column and, when the file carries
	// several symbols, selects which rows to keep.
	Symbol string
	// Timeframe labels rows without a timeframe column.
	Timeframe string
	// Start and End bound the loaded range inclusively when non-zero.
	Start time.Time
	End   time.Time
}

func (o Options) keep(b core.Bar) bool {
	if o.Symbol != "" && b.Symbol != o.Symbol {
		return false
	}
	if !o.Start.IsZero() && b.Timestamp.Before(o.Start) {
		return false
	}
	if !o.End.IsZero() && b.Timestamp.After(o.End) {
		return false
	}
	return true
}

func (o Options) label(b *core.Bar) {
	if b.Symbol == "" {
		b.Symbol = o.Symbol
	}
	if b.Timeframe == "" {
		b.Timeframe = o.Timeframe
	}
}

// LoadFile reads bars from path, choosing the decoder by file extension.
// The result is sorted by timestamp; the engine rejects duplicates.
func LoadFile(path string, opts Options) ([]core.Bar, error) {
	var (
		bars []core.Bar
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		bars, err = LoadCSV(path, opts)
	case ".parquet":
		bars, err = LoadParquet(path, opts)
	default:
		return nil, core.WrapError(core.ErrInvalidInput, fmt.Errorf("unsupported bar file %s", path))
	}
	if err != nil {
		return nil, err
	}
	if len(bars) == 0 {
		return nil, core.WrapError(core.ErrNoData, fmt.Errorf("no bars in %s", path))
	}
	return bars, nil
}

func finish(bars []core.Bar, opts Options) []core.Bar {
	out := bars[:0]
	for _, b := range bars {
		opts.label(&b)
		if opts.keep(b) {
			out = append(out, b)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out
}
