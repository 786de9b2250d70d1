package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/newthinker/replay/internal/backtest"
)

const runsPrefix = "runs"

// RunRecord is the archived form of one backtest run.
type RunRecord struct {
	ID        string         `json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	Strategy  string         `json:"strategy"`
	Params    map[string]any `json:"params,omitempty"`
	Symbols   []string       `json:"symbols"`
	Start     time.Time      `json:"start"`
	End       time.Time      `json:"end"`

	TotalReturnPct  decimal.Decimal `json:"total_return_pct"`
	MaxDrawdownPct  decimal.Decimal `json:"max_drawdown_pct"`
	FinalValue      decimal.Decimal `json:"final_value"`
	Trades          int             `json:"trades"`
	BiasCheckPassed bool            `json:"bias_check_passed"`

	Result *backtest.Result `json:"result"`
}

// Key returns the storage key of the record.
func (r RunRecord) Key() string {
	return path.Join(runsPrefix, r.CreatedAt.UTC().Format("2006/01/02"), r.ID+".json")
}

// Archive stores run records in a Storage backend.
type Archive struct {
	store Storage
	log   *zap.Logger
	now   func() time.Time
	newID func() uuid.UUID
}

// New creates an Archive over store.
func New(store Storage, log *zap.Logger) *Archive {
	if log == nil {
		log = zap.NewNop()
	}
	return &Archive{
		store: store,
		log:   log.Named("archive"),
		now:   time.Now,
		newID: uuid.New,
	}
}

// Save archives result under a fresh run ID and returns the stored record.
func (a *Archive) Save(ctx context.Context, result *backtest.Result, params map[string]any) (RunRecord, error) {
	if result == nil {
		return RunRecord{}, fmt.Errorf("archive: nil result")
	}
	rec := RunRecord{
		ID:              a.newID().String(),
		CreatedAt:       a.now().UTC(),
		Strategy:        result.Strategy,
		Params:          params,
		Symbols:         result.Symbols,
		Start:           result.Start,
		End:             result.End,
		TotalReturnPct:  result.Metrics.TotalReturnPct,
		MaxDrawdownPct:  result.Metrics.MaxDrawdownPct,
		FinalValue:      result.FinalValue,
		Trades:          len(result.Trades),
		BiasCheckPassed: result.BiasCheckPassed,
		Result:          result,
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return RunRecord{}, fmt.Errorf("encoding run %s: %w", rec.ID, err)
	}
	if err := a.store.Write(ctx, rec.Key(), data); err != nil {
		return RunRecord{}, fmt.Errorf("writing run %s: %w", rec.ID, err)
	}

	a.log.Info("run archived",
		zap.String("id", rec.ID),
		zap.String("key", rec.Key()),
		zap.String("strategy", rec.Strategy),
		zap.Int("bytes", len(data)),
	)
	return rec, nil
}

// Load reads the record stored at key.
func (a *Archive) Load(ctx context.Context, key string) (RunRecord, error) {
	data, err := a.store.Read(ctx, key)
	if err != nil {
		return RunRecord{}, err
	}
	var rec RunRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return RunRecord{}, fmt.Errorf("decoding %s: %w", key, err)
	}
	return rec, nil
}

// Find loads the run with the given ID by scanning the archive.
func (a *Archive) Find(ctx context.Context, id string) (RunRecord, error) {
	keys, err := a.List(ctx)
	if err != nil {
		return RunRecord{}, err
	}
	for _, key := range keys {
		if path.Base(key) == id+".json" {
			return a.Load(ctx, key)
		}
	}
	return RunRecord{}, fmt.Errorf("%w: run %s", ErrNotFound, id)
}

// List returns the keys of every archived run, oldest day first.
func (a *Archive) List(ctx context.Context) ([]string, error) {
	keys, err := a.store.List(ctx, runsPrefix)
	if err != nil {
		return nil, err
	}
	out := keys[:0]
	for _, k := range keys {
		if strings.HasSuffix(k, ".json") {
			out = append(out, k)
		}
	}
	return out, nil
}
