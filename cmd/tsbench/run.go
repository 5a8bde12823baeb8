package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"time"

	"tsbench/benchmark"
	"tsbench/disagg"
	"tsbench/grp"
	"tsbench/internal/config"
	"tsbench/internal/runmetrics"
	"tsbench/internal/seriesio"
	"tsbench/multivariate"
	"tsbench/tsdata"
)

// runJob loads the series of job, runs its method, prints a summary to w
// and records the solves in m. The returned series may be partial when err
// is not nil.
func runJob(ctx context.Context, job config.Job, w io.Writer, m *runmetrics.Metrics) (map[string]*tsdata.Series, error) {
	// 1. Load the tables
	inUnit, targetUnit, err := job.Units()
	if err != nil {
		return nil, err
	}
	var input, targets map[string]*tsdata.Series
	if job.Input.File != "" {
		if input, err = seriesio.LoadCSV(job.Input.File, inUnit); err != nil {
			return nil, err
		}
	}
	if job.Target.File != "" {
		if targets, err = seriesio.LoadCSV(job.Target.File, targetUnit); err != nil {
			return nil, err
		}
	}
	slog.Debug("series loaded", "input", len(input), "targets", len(targets))

	// 2. Run the method
	switch job.Method {
	case config.MethodDenton:
		spec, err := job.DentonSpec()
		if err != nil {
			return nil, err
		}
		return benchmarkPairs(job.Method, job.Pairs, input, targets, spec, w, m)
	case config.MethodCholette:
		spec, err := job.CholetteSpec()
		if err != nil {
			return nil, err
		}
		return benchmarkPairs(job.Method, job.Pairs, input, targets, spec, w, m)
	case config.MethodGRP:
		solver, err := job.GRPSolver()
		if err != nil {
			return nil, err
		}
		return benchmarkPairs(job.Method, job.Pairs, input, targets, solver, w, m)
	case config.MethodMultivariate:
		return reconcile(ctx, job, input, targets, w, m)
	case config.MethodDisagg:
		return disaggregate(job, input, targets, w, m)
	}
	return nil, fmt.Errorf("%w: unknown method %q", config.ErrInvalidJob, job.Method)
}

func lookup(series map[string]*tsdata.Series, name, table string) (*tsdata.Series, error) {
	s, ok := series[name]
	if !ok {
		return nil, fmt.Errorf("%w: no series %q in the %s file", config.ErrInvalidJob, name, table)
	}
	return s, nil
}

// benchmarkPairs adjusts each series of pairs to its target. A GRP
// solution that did not converge is kept with a warning.
func benchmarkPairs(method string, pairs []config.Pair, input, targets map[string]*tsdata.Series, bm benchmark.Method, w io.Writer, m *runmetrics.Metrics) (map[string]*tsdata.Series, error) {
	out := make(map[string]*tsdata.Series, len(pairs))
	for _, p := range pairs {
		s, err := lookup(input, p.Series, "input")
		if err != nil {
			return nil, err
		}
		target, err := lookup(targets, p.Target, "target")
		if err != nil {
			return nil, err
		}
		start := time.Now()
		res, err := bm.Benchmark(s, target)
		switch {
		case err == nil:
			m.ObserveSolve(method, runmetrics.OutcomeSuccess, time.Since(start))
		case errors.Is(err, grp.ErrNotConverged) && res != nil:
			m.ObserveSolve(method, runmetrics.OutcomeNotConverged, time.Since(start))
			slog.Warn("growth rates preservation did not converge", "series", p.Series, "err", err)
		default:
			m.ObserveSolve(method, runmetrics.OutcomeError, time.Since(start))
			return nil, fmt.Errorf("%s: %w", p.Series, err)
		}
		out[p.Series] = res
	}
	report(w, m, input, out)
	return out, nil
}

// reconcile runs the multivariate engine on the input and target series
// together. Groups that failed keep their input values.
func reconcile(ctx context.Context, job config.Job, input, targets map[string]*tsdata.Series, w io.Writer, m *runmetrics.Metrics) (map[string]*tsdata.Series, error) {
	spec, err := job.MultivariateSpec()
	if err != nil {
		return nil, err
	}
	spec.Logger = slog.Default()
	spec.Observer = m.ObserveGroup

	all := maps.Clone(input)
	if all == nil {
		all = make(map[string]*tsdata.Series, len(targets))
	}
	for name, s := range targets {
		if _, ok := all[name]; ok {
			return nil, fmt.Errorf("%w: series %q is in both the input and the target file", config.ErrInvalidJob, name)
		}
		all[name] = s
	}

	out, err := multivariate.Benchmark(ctx, all, spec)
	if out != nil {
		report(w, m, all, out)
	}
	return out, err
}

func disaggregate(job config.Job, input, targets map[string]*tsdata.Series, w io.Writer, m *runmetrics.Metrics) (map[string]*tsdata.Series, error) {
	spec, err := job.DisaggSpec()
	if err != nil {
		return nil, err
	}
	target, err := lookup(targets, job.Disagg.Series, "target")
	if err != nil {
		return nil, err
	}
	indicators := make([]*tsdata.Series, len(job.Disagg.Indicators))
	for i, name := range job.Disagg.Indicators {
		if indicators[i], err = lookup(input, name, "input"); err != nil {
			return nil, err
		}
	}

	var res *disagg.Result
	start := time.Now()
	if job.Disagg.Estimate {
		res, err = disagg.EstimateRho(target, indicators, spec, disagg.DefaultRhoGrid())
	} else {
		res, err = disagg.Disaggregate(target, indicators, spec)
	}
	if err != nil {
		m.ObserveSolve(job.Method, runmetrics.OutcomeError, time.Since(start))
		return nil, fmt.Errorf("%s: %w", job.Disagg.Series, err)
	}
	m.ObserveSolve(job.Method, runmetrics.OutcomeSuccess, time.Since(start))
	printDisaggSummary(w, job.Disagg.Series, job.Disagg.Indicators, spec, res)
	return map[string]*tsdata.Series{job.Disagg.Series: res.Series}, nil
}
