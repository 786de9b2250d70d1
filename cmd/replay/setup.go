package main

import (
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/newthinker/replay/internal/backtest"
	"github.com/newthinker/replay/internal/broker"
	"github.com/newthinker/replay/internal/campaign"
	"github.com/newthinker/replay/internal/config"
	"github.com/newthinker/replay/internal/logger"
	"github.com/newthinker/replay/internal/storage/archive"
	"github.com/newthinker/replay/internal/strategy"
	"github.com/newthinker/replay/internal/strategy/band"
	"github.com/newthinker/replay/internal/strategy/ma_crossover"
)

// setup loads and validates the config and builds the logger.
func setup() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("config validation failed: %w", err)
	}

	opts := logger.Options{Development: cfg.Log.Development, Level: cfg.Log.Level}
	if debug {
		opts.Development, opts.Level = true, "debug"
	}
	log, err := logger.New(opts)
	if err != nil {
		return nil, nil, fmt.Errorf("creating logger: %w", err)
	}
	if cfgFile == "" {
		log.Debug("no config file specified, using defaults")
	}
	return cfg, log, nil
}

func newRegistry(log *zap.Logger) *strategy.Registry {
	reg := strategy.NewRegistry(log.Named("strategy"))
	reg.Register("ma_crossover", func() strategy.Strategy { return ma_crossover.New(10, 30) })
	reg.Register("band", func() strategy.Strategy { return band.New(20, decimal.RequireFromString("0.02")) })
	return reg
}

func engineConfig(cfg *config.Config) backtest.Config {
	return backtest.Config{
		InitialCapital:  cfg.Backtest.InitialCapital,
		MaxPositionSize: cfg.Backtest.MaxPositionSize,
		Pyramiding:      cfg.Backtest.Pyramiding,
		VolumeLookback:  cfg.Backtest.VolumeLookback,
	}
}

// engineOptions builds the collaborators shared by every run. All of them are
// immutable or safe for concurrent use.
func engineOptions(cfg *config.Config, log *zap.Logger, rec backtest.Recorder) ([]backtest.Option, error) {
	var cost broker.CostModel = broker.NewZeroCostModel()
	if cfg.Cost.Model == "simple" {
		simple, err := broker.NewSimpleCostModel(cfg.Cost.CommissionPerTrade, cfg.Cost.CommissionPerShare, cfg.Cost.SlippagePct)
		if err != nil {
			return nil, err
		}
		cost = simple
	}

	risk, err := broker.NewRiskChecker(broker.RiskConfig{
		MaxPortfolioHeat: cfg.Risk.MaxPortfolioHeat,
		MaxCampaignRisk:  cfg.Risk.MaxCampaignRisk,
	})
	if err != nil {
		return nil, err
	}

	detector, err := campaign.NewDetector(cfg.Campaign.Window, campaign.WithLogger(log))
	if err != nil {
		return nil, err
	}

	opts := []backtest.Option{
		backtest.WithLogger(log),
		backtest.WithCostModel(cost),
		backtest.WithRiskChecker(risk),
		backtest.WithCampaignDetector(detector),
	}
	if rec != nil {
		opts = append(opts, backtest.WithRecorder(rec))
	}
	return opts, nil
}

func openArchive(cfg config.ArchiveConfig, log *zap.Logger) (*archive.Archive, error) {
	var (
		store archive.Storage
		err   error
	)
	switch cfg.Type {
	case "s3":
		store, err = archive.NewS3(archive.S3Config{
			Bucket:    cfg.S3.Bucket,
			Endpoint:  cfg.S3.Endpoint,
			Region:    cfg.S3.Region,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
			Prefix:    cfg.S3.Prefix,
		})
	default:
		store, err = archive.NewLocalFS(cfg.Path)
	}
	if err != nil {
		return nil, fmt.Errorf("opening archive: %w", err)
	}
	return archive.New(store, log), nil
}
