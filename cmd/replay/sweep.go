package main

import (
	"fmt"
	"runtime"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/newthinker/replay/internal/backtest"
	"github.com/newthinker/replay/internal/core"
	"github.com/newthinker/replay/internal/feed"
	"github.com/newthinker/replay/internal/metrics"
	"github.com/newthinker/replay/internal/strategy"
)

var (
	sweepBars        string
	sweepSymbol      string
	sweepFast        string
	sweepSlow        string
	sweepParallel    int
	sweepMetricsFile string
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run an MA crossover parameter grid in parallel",
	Long: `Run ma_crossover once for every fast/slow pair with fast < slow. Each run
gets its own engine; runs execute concurrently up to --parallel.`,
	Args: cobra.NoArgs,
	RunE: runSweep,
}

func init() {
	sweepCmd.Flags().StringVar(&sweepBars, "bars", "", "CSV or Parquet bar file (required)")
	sweepCmd.Flags().StringVar(&sweepSymbol, "symbol", "", "Symbol to load from the file")
	sweepCmd.Flags().StringVar(&sweepFast, "fast", "5,10,20", "Comma-separated fast periods")
	sweepCmd.Flags().StringVar(&sweepSlow, "slow", "30,50,100", "Comma-separated slow periods")
	sweepCmd.Flags().IntVar(&sweepParallel, "parallel", runtime.NumCPU(), "Maximum concurrent runs")
	sweepCmd.Flags().StringVar(&sweepMetricsFile, "metrics-file", "", "Write Prometheus metrics to this textfile")

	sweepCmd.MarkFlagRequired("bars")

	rootCmd.AddCommand(sweepCmd)
}

func runSweep(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer log.Sync()

	fast, err := parsePeriods(sweepFast)
	if err != nil {
		return fmt.Errorf("--fast: %w", err)
	}
	slow, err := parsePeriods(sweepSlow)
	if err != nil {
		return fmt.Errorf("--slow: %w", err)
	}

	bars, err := feed.LoadFile(sweepBars, feed.Options{Symbol: sweepSymbol, Timeframe: cfg.Backtest.Timeframe})
	if err != nil {
		return fmt.Errorf("loading bars: %w", err)
	}

	reg := newRegistry(log)
	jobs := gridJobs(reg, bars, engineConfig(cfg), cfg.Strategy.Params, fast, slow)
	if len(jobs) == 0 {
		return fmt.Errorf("no fast/slow pair with fast < slow")
	}

	var rec *metrics.Registry
	var recorder backtest.Recorder
	if sweepMetricsFile != "" {
		rec = metrics.NewRegistry()
		recorder = rec
	}
	// Per-run logs would interleave; keep only warnings and above.
	opts, err := engineOptions(cfg, log.WithOptions(zap.IncreaseLevel(zap.WarnLevel)), recorder)
	if err != nil {
		return err
	}

	log.Info("starting sweep", zap.Int("jobs", len(jobs)), zap.Int("parallel", sweepParallel))
	results, err := backtest.Sweep(cmd.Context(), jobs, sweepParallel, opts...)
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), renderSweep(results))

	if rec != nil {
		if err := rec.WriteTextfile(sweepMetricsFile); err != nil {
			return fmt.Errorf("writing metrics: %w", err)
		}
	}
	for _, r := range results {
		if r.Err != nil {
			return fmt.Errorf("sweep run %s failed: %w", r.Job, r.Err)
		}
	}
	return nil
}

// gridJobs builds one job per fast/slow pair. Extra strategy params from the
// config, such as stop_pct, apply to every job.
func gridJobs(reg *strategy.Registry, bars []core.Bar, cfg backtest.Config, base map[string]any, fast, slow []int) []backtest.Job {
	var jobs []backtest.Job
	for _, f := range fast {
		for _, s := range slow {
			if f >= s {
				continue
			}
			params := make(map[string]any, len(base)+2)
			for k, v := range base {
				params[k] = v
			}
			params["fast_period"], params["slow_period"] = f, s
			jobs = append(jobs, backtest.Job{
				Name:   fmt.Sprintf("ma_crossover(%d/%d)", f, s),
				Bars:   bars,
				Config: cfg,
				Strategy: func() (strategy.Strategy, error) {
					return reg.New("ma_crossover", strategy.Config{Params: params})
				},
			})
		}
	}
	return jobs
}

func parsePeriods(s string) ([]int, error) {
	var out []int
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid period %q", part)
		}
		out = append(out, n)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no periods given")
	}
	return out, nil
}
