package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/newthinker/replay/internal/backtest"
	"github.com/newthinker/replay/internal/feed"
	"github.com/newthinker/replay/internal/metrics"
	"github.com/newthinker/replay/internal/strategy"
)

var (
	backtestBars        string
	backtestSymbol      string
	backtestStrategy    string
	backtestFrom        string
	backtestTo          string
	backtestArchive     bool
	backtestMetricsFile string
	backtestTradesCSV   string
)

var backtestCmd = &cobra.Command{
	Use:   "backtest",
	Short: "Run a strategy over historical bars",
	Long:  "Run a strategy against historical data from a CSV or Parquet file and show performance statistics",
	Args:  cobra.NoArgs,
	RunE:  runBacktest,
}

func init() {
	backtestCmd.Flags().StringVar(&backtestBars, "bars", "", "CSV or Parquet bar file (required)")
	backtestCmd.Flags().StringVar(&backtestSymbol, "symbol", "", "Symbol to load from the file")
	backtestCmd.Flags().StringVar(&backtestStrategy, "strategy", "", "Strategy name, overriding the config")
	backtestCmd.Flags().StringVar(&backtestFrom, "from", "", "Start date YYYY-MM-DD")
	backtestCmd.Flags().StringVar(&backtestTo, "to", "", "End date YYYY-MM-DD")
	backtestCmd.Flags().BoolVar(&backtestArchive, "archive", false, "Archive the result as JSON")
	backtestCmd.Flags().StringVar(&backtestMetricsFile, "metrics-file", "", "Write Prometheus metrics to this textfile")
	backtestCmd.Flags().StringVar(&backtestTradesCSV, "trades-csv", "", "Write closed trades to this CSV file")

	backtestCmd.MarkFlagRequired("bars")

	rootCmd.AddCommand(backtestCmd)
}

func runBacktest(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer log.Sync()

	opts := feed.Options{Symbol: backtestSymbol, Timeframe: cfg.Backtest.Timeframe}
	if opts.Start, opts.End, err = parseRange(backtestFrom, backtestTo); err != nil {
		return err
	}
	bars, err := feed.LoadFile(backtestBars, opts)
	if err != nil {
		return fmt.Errorf("loading bars: %w", err)
	}

	name := cfg.Strategy.Name
	if backtestStrategy != "" {
		name = backtestStrategy
	}
	strat, err := newRegistry(log).New(name, strategy.Config{Params: cfg.Strategy.Params})
	if err != nil {
		return err
	}

	metricsFile := backtestMetricsFile
	if metricsFile == "" {
		metricsFile = cfg.Metrics.Textfile
	}
	var rec *metrics.Registry
	var recorder backtest.Recorder
	if metricsFile != "" {
		rec = metrics.NewRegistry()
		recorder = rec
	}

	engineOpts, err := engineOptions(cfg, log, recorder)
	if err != nil {
		return err
	}
	engine, err := backtest.New(engineConfig(cfg), engineOpts...)
	if err != nil {
		return err
	}

	log.Info("running backtest",
		zap.String("strategy", strat.Description()),
		zap.String("bars", backtestBars),
		zap.Int("count", len(bars)),
	)
	result, err := engine.Run(bars, strat)
	if err != nil {
		return fmt.Errorf("running backtest: %w", err)
	}

	out := cmd.OutOrStdout()
	printSummary(out, strat.Description(), result)

	if backtestTradesCSV != "" {
		if err := writeTrades(backtestTradesCSV, result); err != nil {
			return err
		}
		fmt.Fprintf(out, "Trades written to %s\n", backtestTradesCSV)
	}

	if backtestArchive {
		arch, err := openArchive(cfg.Archive, log)
		if err != nil {
			return err
		}
		record, err := arch.Save(cmd.Context(), result, cfg.Strategy.Params)
		if err != nil {
			return fmt.Errorf("archiving result: %w", err)
		}
		fmt.Fprintf(out, "Archived run %s at %s\n", record.ID, record.Key())
	}

	if rec != nil {
		if err := rec.WriteTextfile(metricsFile); err != nil {
			return fmt.Errorf("writing metrics: %w", err)
		}
		log.Info("metrics written", zap.String("path", metricsFile))
	}
	return nil
}

func parseRange(from, to string) (time.Time, time.Time, error) {
	var start, end time.Time
	var err error
	if from != "" {
		if start, err = time.Parse("2006-01-02", from); err != nil {
			return start, end, fmt.Errorf("invalid from date format (expected YYYY-MM-DD): %w", err)
		}
	}
	if to != "" {
		if end, err = time.Parse("2006-01-02", to); err != nil {
			return start, end, fmt.Errorf("invalid to date format (expected YYYY-MM-DD): %w", err)
		}
		// Include every bar of the end date.
		end = end.Add(24*time.Hour - time.Nanosecond)
	}
	if !start.IsZero() && !end.IsZero() && end.Before(start) {
		return start, end, fmt.Errorf("end date must be after start date")
	}
	return start, end, nil
}

func writeTrades(path string, result *backtest.Result) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating trades file: %w", err)
	}
	if err := feed.WriteTradesCSV(f, result.Trades); err != nil {
		f.Close()
		return fmt.Errorf("writing trades: %w", err)
	}
	return f.Close()
}
