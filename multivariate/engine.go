package multivariate

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"math"
	"runtime"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"

	"tsbench/benchmark"
	"tsbench/tsdata"
)

// Benchmark adjusts the series to the constraints of spec. The result holds
// every input series; unconstrained and fixed series are copied unchanged.
//
// Every group is validated before any is solved, and configuration errors
// are returned with a nil map. Groups are then solved concurrently. A group
// that fails keeps its preliminary values; the result is returned together
// with the joined errors of the failed groups.
func Benchmark(ctx context.Context, series map[string]*tsdata.Series, spec Spec) (map[string]*tsdata.Series, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	names := slices.Sorted(maps.Keys(series))
	for _, n := range names {
		if series[n] == nil {
			return nil, fmt.Errorf("%w: series %q is nil", ErrInvalidSpec, n)
		}
	}
	g, err := Compile(spec, names)
	if err != nil {
		return nil, err
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	data := make([]*tsdata.Series, len(g.Names))
	for i, n := range g.Names {
		data[i] = series[n]
	}

	// 1. Eager validation
	groups := g.Partition()
	solvers := make([]groupSolver, len(groups))
	var errs []error
	for k, grp := range groups {
		s, err := prepare(g, grp, data, spec)
		if err != nil {
			errs = append(errs, fmt.Errorf("group %d %v: %w", k, g.names(grp.Series), err))
			continue
		}
		solvers[k] = s
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	// 2. Concurrent solve
	log := spec.logger()
	results := make([]map[int]*tsdata.Series, len(groups))
	failures := make([]error, len(groups))
	limit := spec.Concurrency
	if limit == 0 {
		limit = runtime.GOMAXPROCS(0)
	}
	var eg errgroup.Group
	eg.SetLimit(limit)
	for k := range groups {
		eg.Go(func() error {
			report := GroupReport{
				Group:       k,
				Series:      g.names(groups[k].Series),
				Constraints: len(groups[k].Contemporaneous) + len(groups[k].Temporal),
			}
			if spec.Observer != nil {
				defer func() { spec.Observer(report) }()
			}
			if err := ctx.Err(); err != nil {
				report.Err = err
				failures[k] = fmt.Errorf("group %d: %w", k, err)
				return nil
			}
			start := time.Now()
			out, err := solvers[k].solve()
			report.Elapsed = time.Since(start)
			if err != nil {
				report.Err = err
				failures[k] = fmt.Errorf("group %d %v: %w", k, report.Series, err)
				log.Warn("multivariate: group failed", "group", k, "err", err)
				return nil
			}
			results[k] = out
			log.Debug("multivariate: group solved", "group", k, "series", len(report.Series),
				"constraints", report.Constraints, "elapsed", report.Elapsed)
			return nil
		})
	}
	_ = eg.Wait()

	out := make(map[string]*tsdata.Series, len(series))
	for name, s := range series {
		out[name] = s.Clone()
	}
	for _, r := range results {
		for i, s := range r {
			out[g.Names[i]] = s
		}
	}
	return out, errors.Join(failures...)
}

func (g *Graph) names(idx []int) []string {
	out := make([]string, len(idx))
	for i, k := range idx {
		out[i] = g.Names[k]
	}
	return out
}

// groupSolver solves one validated group. It owns all its buffers.
type groupSolver interface {
	solve() (map[int]*tsdata.Series, error)
}

// prepare checks the data of a group and returns its solver.
func prepare(g *Graph, grp Group, data []*tsdata.Series, spec Spec) (groupSolver, error) {
	if len(grp.Contemporaneous) == 0 {
		return prepareTemporal(g, grp, data, spec)
	}
	return prepareComposite(g, grp, data, spec)
}

// temporalOnly benchmarks each detail of a group without contemporaneous
// constraint to its aggregate with univariate Cholette.
type temporalOnly struct {
	jobs []temporalJob
}

type temporalJob struct {
	detail    int
	series    *tsdata.Series
	aggregate *tsdata.Series
	spec      benchmark.CholetteSpec
}

func prepareTemporal(g *Graph, grp Group, data []*tsdata.Series, spec Spec) (groupSolver, error) {
	var s temporalOnly
	for _, k := range grp.Temporal {
		t := g.Temporal[k]
		detail, agg := data[t.Detail], data[t.Aggregate]
		ratio, err := tsdata.Ratio(detail.Unit(), agg.Unit())
		if err != nil {
			return nil, fmt.Errorf("%s: %w", g.Names[t.Detail], err)
		}
		a := tsdata.Aggregation{Type: t.Type}
		if err := a.Validate(ratio); err != nil {
			return nil, err
		}
		d := detail.Clean()
		if d.IsEmpty() {
			return nil, fmt.Errorf("%w: %q has no value", tsdata.ErrEmptyDomain, g.Names[t.Detail])
		}
		w, err := detail.Window(d)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", g.Names[t.Detail], err)
		}
		if w.HasMissing() {
			return nil, fmt.Errorf("%w: %q inside %s", tsdata.ErrMissingData, g.Names[t.Detail], d)
		}
		if _, _, err := tsdata.Benchmarks(d, agg); err != nil {
			return nil, fmt.Errorf("%s: %w", g.Names[t.Aggregate], err)
		}
		s.jobs = append(s.jobs, temporalJob{
			detail:    t.Detail,
			series:    detail,
			aggregate: agg,
			spec: benchmark.CholetteSpec{
				Rho:         spec.Rho,
				Lambda:      spec.Lambda,
				Aggregation: a,
				Logger:      spec.Logger,
			},
		})
	}
	return &s, nil
}

func (s *temporalOnly) solve() (map[int]*tsdata.Series, error) {
	out := make(map[int]*tsdata.Series, len(s.jobs))
	for _, j := range s.jobs {
		r, err := j.spec.Benchmark(j.series, j.aggregate)
		if err != nil {
			return nil, err
		}
		out[j.detail] = r
	}
	return out, nil
}

// compositeGroup solves a group with contemporaneous constraints through
// its composite state-space model.
type compositeGroup struct {
	domain tsdata.Domain
	// adjusted series, in index order
	adjusted []int
	source   []*tsdata.Series
	p, w     [][]float64
	model    *constraints
	data     *mat.Dense
}

func prepareComposite(g *Graph, grp Group, data []*tsdata.Series, spec Spec) (groupSolver, error) {
	slot := make(map[int]int)
	var adjusted []int
	adjust := func(i int) {
		if _, ok := slot[i]; !ok {
			slot[i] = -1
			adjusted = append(adjusted, i)
		}
	}
	for _, k := range grp.Contemporaneous {
		for _, t := range g.Contemporaneous[k].Terms {
			adjust(t.Series)
		}
	}
	for _, k := range grp.Temporal {
		adjust(g.Temporal[k].Detail)
	}
	slices.Sort(adjusted)
	for i, s := range adjusted {
		slot[s] = i
	}

	// 1. Common unit and domain
	unit := data[adjusted[0]].Unit()
	check := func(i int) error {
		if data[i].Unit() != unit {
			return fmt.Errorf("%w: %q is %s, %q is %s", tsdata.ErrIncompatibleUnit,
				g.Names[i], data[i].Unit(), g.Names[adjusted[0]], unit)
		}
		return nil
	}
	var domain tsdata.Domain
	for k, i := range adjusted {
		if err := check(i); err != nil {
			return nil, err
		}
		d := data[i].Clean()
		if d.IsEmpty() {
			return nil, fmt.Errorf("%w: %q has no value", tsdata.ErrEmptyDomain, g.Names[i])
		}
		if k == 0 {
			domain = d
			continue
		}
		var err error
		if domain, err = domain.Intersect(d); err != nil {
			return nil, err
		}
	}
	if domain.IsEmpty() {
		return nil, fmt.Errorf("%w: adjusted series have no common period", tsdata.ErrEmptyDomain)
	}
	for _, k := range grp.Contemporaneous {
		if t := g.Contemporaneous[k].Target; t >= 0 {
			if err := check(t); err != nil {
				return nil, err
			}
		}
	}

	c := &compositeGroup{domain: domain, adjusted: adjusted}
	n := domain.Length
	for _, i := range adjusted {
		s, err := data[i].Window(domain)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", g.Names[i], err)
		}
		if s.HasMissing() {
			return nil, fmt.Errorf("%w: %q inside %s", tsdata.ErrMissingData, g.Names[i], domain)
		}
		c.source = append(c.source, data[i])
		c.p = append(c.p, s.Values)
		c.w = append(c.w, benchmark.Weights(s.Values, spec.Lambda))
	}

	// 2. Constraints
	size := make([]int, len(adjusted))
	for i := range size {
		size[i] = 1
	}
	nrows := len(grp.Contemporaneous) + len(grp.Temporal)
	rows := make([]row, 0, nrows)
	c.data = mat.NewDense(n, nrows, nil)
	for _, k := range grp.Contemporaneous {
		eq := g.Contemporaneous[k]
		r := row{}
		for _, t := range eq.Terms {
			r.terms = append(r.terms, rowTerm{slot: slot[t.Series], coef: t.Coef})
		}
		j := len(rows)
		for t := 0; t < n; t++ {
			v := eq.Constant
			if eq.Target >= 0 {
				v = data[eq.Target].Get(domain.Get(t))
			}
			mag := math.Abs(v)
			for _, rt := range r.terms {
				x := rt.coef * c.p[rt.slot][t]
				v -= x
				mag += math.Abs(x)
			}
			c.data.Set(t, j, snap(v, mag))
		}
		rows = append(rows, r)
	}
	for _, k := range grp.Temporal {
		tc := g.Temporal[k]
		agg := data[tc.Aggregate]
		ratio, err := tsdata.Ratio(unit, agg.Unit())
		if err != nil {
			return nil, fmt.Errorf("%s: %w", g.Names[tc.Aggregate], err)
		}
		a := tsdata.Aggregation{Type: tc.Type}
		if err := a.Validate(ratio); err != nil {
			return nil, err
		}
		spans, values, err := tsdata.Benchmarks(domain, agg)
		if err != nil {
			return nil, err
		}
		s := slot[tc.Detail]
		size[s] = ratio
		r := row{temporal: true, slot: s, coef: a.Coefficients(ratio), end: make([]bool, n)}
		j := len(rows)
		for t := 0; t < n; t++ {
			c.data.Set(t, j, math.NaN())
		}
		for m, sp := range spans {
			v := values[m]
			mag := math.Abs(v)
			for t := sp.Begin; t < sp.End; t++ {
				x := r.coef[t-sp.Begin] * c.p[s][t]
				v -= x
				mag += math.Abs(x)
			}
			c.data.Set(sp.End-1, j, snap(v, mag))
			r.end[sp.End-1] = true
		}
		rows = append(rows, r)
	}
	c.model = &constraints{b: newBlocks(spec.Rho, size), w: c.w, rows: rows}
	return c, nil
}

// discrepancyEpsilon is the relative size under which a constraint
// discrepancy is rounding noise.
const discrepancyEpsilon = 1e-12

// snap returns 0 when the discrepancy v is negligible against the magnitude
// of the terms it was computed from.
func snap(v, mag float64) float64 {
	if math.Abs(v) <= discrepancyEpsilon*mag {
		return 0
	}
	return v
}

func (c *compositeGroup) solve() (map[int]*tsdata.Series, error) {
	u, err := c.model.smooth(c.data)
	if err != nil {
		return nil, err
	}
	out := make(map[int]*tsdata.Series, len(c.adjusted))
	for k, i := range c.adjusted {
		r := c.source[k].Clone()
		off := c.domain.Start.Minus(r.Start)
		for t, p := range c.p[k] {
			r.Values[off+t] = p + c.w[k][t]*u[k][t]
		}
		out[i] = r
	}
	return out, nil
}
