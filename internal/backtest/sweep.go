package backtest

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/newthinker/replay/internal/core"
	"github.com/newthinker/replay/internal/strategy"
)

// Job is one independent run of a sweep.
type Job struct {
	Name   string
	Bars   []core.Bar
	Config Config
	// Strategy builds a fresh strategy for this job only.
	Strategy func() (strategy.Strategy, error)
}

// SweepResult pairs a job with its outcome.
type SweepResult struct {
	Job    string
	Result *Result
	Err    error
}

// Sweep runs jobs concurrently, at most parallelism at a time. Every job gets
// its own Engine; opts must only carry values that are safe to share, such as
// loggers, cost models and risk checkers, never WithScratch. Job failures are
// reported per result. Cancelling ctx stops scheduling further jobs; jobs
// already started run to completion.
func Sweep(ctx context.Context, jobs []Job, parallelism int, opts ...Option) ([]SweepResult, error) {
	if parallelism <= 0 {
		return nil, core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("parallelism must be positive, got %d", parallelism))
	}

	results := make([]SweepResult, len(jobs))
	for i, job := range jobs {
		results[i].Job = job.Name
	}

	g := new(errgroup.Group)
	g.SetLimit(parallelism)

	var scheduleErr error
	for i, job := range jobs {
		if err := ctx.Err(); err != nil {
			scheduleErr = err
			for j := i; j < len(jobs); j++ {
				results[j].Err = err
			}
			break
		}
		g.Go(func() error {
			results[i].Result, results[i].Err = runJob(job, opts)
			return nil
		})
	}
	_ = g.Wait()
	return results, scheduleErr
}

func runJob(job Job, opts []Option) (*Result, error) {
	if job.Strategy == nil {
		return nil, core.WrapError(core.ErrConfigMissing, fmt.Errorf("job %s has no strategy", job.Name))
	}
	strat, err := job.Strategy()
	if err != nil {
		return nil, fmt.Errorf("job %s: %w", job.Name, err)
	}
	engine, err := New(job.Config, opts...)
	if err != nil {
		return nil, fmt.Errorf("job %s: %w", job.Name, err)
	}
	return engine.Run(job.Bars, strat)
}
