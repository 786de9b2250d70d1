package strategy

import (
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/newthinker/replay/internal/core"
)

// Config holds strategy configuration
type Config struct {
	Params map[string]any
}

// Strategy defines the interface for trading strategies.
//
// Decide is called once per bar, in time order. It sees the current bar and
// a Context whose History holds only earlier bars, and returns the decision
// for that bar. Any order it produces fills on a later bar.
type Strategy interface {
	Name() string
	Description() string
	Init(cfg Config) error
	Decide(bar core.Bar, ctx *Context) core.Signal
}

// Factory builds a fresh, uninitialized strategy instance.
type Factory func() Strategy

// Int reads an integer parameter, accepting the numeric types YAML and JSON
// decoders produce.
func (c Config) Int(key string, fallback int) (int, error) {
	v, ok := c.Params[key]
	if !ok || v == nil {
		return fallback, nil
	}
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		if n != float64(int(n)) {
			return 0, fmt.Errorf("parameter %s must be an integer, got %v", key, n)
		}
		return int(n), nil
	case string:
		i, err := strconv.Atoi(n)
		if err != nil {
			return 0, fmt.Errorf("parameter %s must be an integer, got %q", key, n)
		}
		return i, nil
	default:
		return 0, fmt.Errorf("parameter %s must be an integer, got %T", key, v)
	}
}

// Decimal reads a decimal parameter from a string or number.
func (c Config) Decimal(key string, fallback decimal.Decimal) (decimal.Decimal, error) {
	v, ok := c.Params[key]
	if !ok || v == nil {
		return fallback, nil
	}
	switch n := v.(type) {
	case decimal.Decimal:
		return n, nil
	case string:
		d, err := decimal.NewFromString(n)
		if err != nil {
			return decimal.Zero, fmt.Errorf("parameter %s: %w", key, err)
		}
		return d, nil
	case int:
		return decimal.NewFromInt(int64(n)), nil
	case int64:
		return decimal.NewFromInt(n), nil
	case float64:
		return decimal.NewFromFloat(n), nil
	default:
		return decimal.Zero, fmt.Errorf("parameter %s must be a number, got %T", key, v)
	}
}
