// Package config loads and validates replay configuration.
package config

import (
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"github.com/newthinker/replay/internal/core"
)

// EnvPrefix prefixes environment overrides, e.g. REPLAY_BACKTEST_INITIAL_CAPITAL.
const EnvPrefix = "REPLAY"

type Config struct {
	Backtest BacktestConfig `mapstructure:"backtest"`
	Cost     CostConfig     `mapstructure:"cost"`
	Risk     RiskConfig     `mapstructure:"risk"`
	Campaign CampaignConfig `mapstructure:"campaign"`
	Strategy StrategyConfig `mapstructure:"strategy"`
	Archive  ArchiveConfig  `mapstructure:"archive"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Log      LogConfig      `mapstructure:"log"`
}

type BacktestConfig struct {
	InitialCapital  decimal.Decimal `mapstructure:"initial_capital"`
	MaxPositionSize decimal.Decimal `mapstructure:"max_position_size"`
	Pyramiding      bool            `mapstructure:"pyramiding"`
	VolumeLookback  int             `mapstructure:"volume_lookback"`
	// Timeframe labels bars whose source carries none.
	Timeframe string `mapstructure:"timeframe"`
}

// CostConfig selects and parameterizes the transaction cost model.
type CostConfig struct {
	Model              string          `mapstructure:"model"` // "zero" or "simple"
	CommissionPerTrade decimal.Decimal `mapstructure:"commission_per_trade"`
	CommissionPerShare decimal.Decimal `mapstructure:"commission_per_share"`
	SlippagePct        decimal.Decimal `mapstructure:"slippage_pct"`
}

// RiskConfig holds entry risk limits as fractions of portfolio value.
type RiskConfig struct {
	MaxPortfolioHeat decimal.Decimal `mapstructure:"max_portfolio_heat"`
	MaxCampaignRisk  decimal.Decimal `mapstructure:"max_campaign_risk"`
}

type CampaignConfig struct {
	Window time.Duration `mapstructure:"window"`
}

type StrategyConfig struct {
	Name   string         `mapstructure:"name"`
	Params map[string]any `mapstructure:"params"`
}

// ArchiveConfig holds result archive settings.
type ArchiveConfig struct {
	Type string   `mapstructure:"type"` // "localfs" or "s3"
	Path string   `mapstructure:"path"` // For localfs
	S3   S3Config `mapstructure:"s3"`   // For S3
}

type S3Config struct {
	Bucket    string `mapstructure:"bucket"`
	Endpoint  string `mapstructure:"endpoint"`
	Region    string `mapstructure:"region"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Prefix    string `mapstructure:"prefix"`
}

// MetricsConfig holds metrics configuration.
type MetricsConfig struct {
	// Textfile is where run metrics are written in Prometheus text format.
	// Empty disables the export.
	Textfile string `mapstructure:"textfile"`
}

type LogConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// Load reads configuration from file. An empty path loads the defaults,
// still subject to environment overrides.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	// Support environment variable overrides
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, core.WrapError(core.ErrConfigInvalid, fmt.Errorf("reading config: %w", err))
		}
	}

	// Expand ${VAR} references in string values
	for _, key := range v.AllKeys() {
		val, ok := v.Get(key).(string)
		if ok && strings.Contains(val, "${") {
			v.Set(key, os.ExpandEnv(val))
		}
	}

	var cfg Config
	hook := mapstructure.ComposeDecodeHookFunc(
		decimalHook,
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)
	if err := v.Unmarshal(&cfg, viper.DecodeHook(hook)); err != nil {
		return nil, core.WrapError(core.ErrConfigInvalid, fmt.Errorf("unmarshaling config: %w", err))
	}
	return &cfg, nil
}

var decimalType = reflect.TypeOf(decimal.Decimal{})

// decimalHook decodes strings and numbers into decimal.Decimal. Strings are
// preferred in files since floats lose precision before the hook sees them.
func decimalHook(from reflect.Type, to reflect.Type, data any) (any, error) {
	if to != decimalType {
		return data, nil
	}
	switch v := data.(type) {
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(v))
		if err != nil {
			return nil, fmt.Errorf("invalid decimal %q: %w", v, err)
		}
		return d, nil
	case int:
		return decimal.NewFromInt(int64(v)), nil
	case int64:
		return decimal.NewFromInt(v), nil
	case float64:
		return decimal.NewFromFloat(v), nil
	case decimal.Decimal:
		return v, nil
	default:
		return data, nil
	}
}

func setDefaults(v *viper.Viper) {
	d := Defaults()
	v.SetDefault("backtest.initial_capital", d.Backtest.InitialCapital.String())
	v.SetDefault("backtest.max_position_size", d.Backtest.MaxPositionSize.String())
	v.SetDefault("backtest.pyramiding", d.Backtest.Pyramiding)
	v.SetDefault("backtest.volume_lookback", d.Backtest.VolumeLookback)
	v.SetDefault("backtest.timeframe", d.Backtest.Timeframe)
	v.SetDefault("cost.model", d.Cost.Model)
	v.SetDefault("cost.commission_per_trade", d.Cost.CommissionPerTrade.String())
	v.SetDefault("cost.commission_per_share", d.Cost.CommissionPerShare.String())
	v.SetDefault("cost.slippage_pct", d.Cost.SlippagePct.String())
	v.SetDefault("risk.max_portfolio_heat", d.Risk.MaxPortfolioHeat.String())
	v.SetDefault("risk.max_campaign_risk", d.Risk.MaxCampaignRisk.String())
	v.SetDefault("campaign.window", d.Campaign.Window.String())
	v.SetDefault("strategy.name", d.Strategy.Name)
	v.SetDefault("archive.type", d.Archive.Type)
	v.SetDefault("archive.path", d.Archive.Path)
	v.SetDefault("archive.s3.bucket", "")
	v.SetDefault("archive.s3.endpoint", "")
	v.SetDefault("archive.s3.region", "")
	v.SetDefault("archive.s3.access_key", "")
	v.SetDefault("archive.s3.secret_key", "")
	v.SetDefault("archive.s3.prefix", "")
	v.SetDefault("metrics.textfile", d.Metrics.Textfile)
	v.SetDefault("log.development", d.Log.Development)
	v.SetDefault("log.level", d.Log.Level)
}

// Defaults returns a config with sensible defaults
func Defaults() *Config {
	return &Config{
		Backtest: BacktestConfig{
			InitialCapital:  decimal.NewFromInt(100000),
			MaxPositionSize: decimal.RequireFromString("0.25"),
			VolumeLookback:  20,
			Timeframe:       "1d",
		},
		Cost: CostConfig{
			Model:              "zero",
			CommissionPerTrade: decimal.Zero,
			CommissionPerShare: decimal.Zero,
			SlippagePct:        decimal.Zero,
		},
		Risk: RiskConfig{
			MaxPortfolioHeat: decimal.RequireFromString("0.10"),
			MaxCampaignRisk:  decimal.RequireFromString("0.05"),
		},
		Campaign: CampaignConfig{
			Window: 30 * 24 * time.Hour,
		},
		Strategy: StrategyConfig{
			Name: "ma_crossover",
		},
		Archive: ArchiveConfig{
			Type: "localfs",
			Path: "./runs",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	one := decimal.NewFromInt(1)

	if !c.Backtest.InitialCapital.IsPositive() {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("initial_capital must be positive, got %s", c.Backtest.InitialCapital))
	}
	if c.Backtest.MaxPositionSize.IsNegative() || c.Backtest.MaxPositionSize.GreaterThan(one) {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("max_position_size must be between 0 and 1, got %s", c.Backtest.MaxPositionSize))
	}
	if c.Backtest.VolumeLookback < 0 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("volume_lookback cannot be negative, got %d", c.Backtest.VolumeLookback))
	}

	switch c.Cost.Model {
	case "zero", "":
	case "simple":
		if c.Cost.CommissionPerTrade.IsNegative() || c.Cost.CommissionPerShare.IsNegative() {
			return core.WrapError(core.ErrConfigInvalid, fmt.Errorf("commission cannot be negative"))
		}
		if c.Cost.SlippagePct.IsNegative() || c.Cost.SlippagePct.GreaterThan(decimal.RequireFromString("0.1")) {
			return core.WrapError(core.ErrConfigInvalid,
				fmt.Errorf("slippage_pct must be between 0 and 0.1, got %s", c.Cost.SlippagePct))
		}
	default:
		return core.WrapError(core.ErrConfigInvalid, fmt.Errorf("unknown cost model %q", c.Cost.Model))
	}

	for name, limit := range map[string]decimal.Decimal{
		"max_portfolio_heat": c.Risk.MaxPortfolioHeat,
		"max_campaign_risk":  c.Risk.MaxCampaignRisk,
	} {
		if limit.IsNegative() || limit.GreaterThan(one) {
			return core.WrapError(core.ErrConfigInvalid,
				fmt.Errorf("%s must be between 0 and 1, got %s", name, limit))
		}
	}

	if c.Campaign.Window <= 0 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("campaign window must be positive, got %s", c.Campaign.Window))
	}

	if c.Strategy.Name == "" {
		return core.WrapError(core.ErrConfigMissing, fmt.Errorf("strategy name required"))
	}

	switch c.Archive.Type {
	case "", "localfs":
	case "s3":
		if c.Archive.S3.Bucket == "" {
			return core.WrapError(core.ErrConfigMissing,
				fmt.Errorf("s3 bucket required when archive type is s3"))
		}
	default:
		return core.WrapError(core.ErrConfigInvalid, fmt.Errorf("unknown archive type %q", c.Archive.Type))
	}

	switch strings.ToLower(c.Log.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		return core.WrapError(core.ErrConfigInvalid, fmt.Errorf("unknown log level %q", c.Log.Level))
	}
	return nil
}
