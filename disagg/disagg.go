package disagg

import (
	"fmt"
	"log/slog"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"

	"tsbench/ssf"
	"tsbench/tsdata"
)

// Model is the process of the regression residuals.
type Model int

const (
	// ChowLin: u_t = ρ u_{t-1} + ε_t, |ρ| < 1
	ChowLin Model = iota
	// Fernandez: u_t = u_{t-1} + ε_t with a diffuse start
	Fernandez
)

func (m Model) String() string {
	if m == Fernandez {
		return "fernandez"
	}
	return "chowlin"
}

// Spec configures a disaggregation.
type Spec struct {
	Model Model
	// AR coefficient of Chow-Lin, ignored by Fernandez
	Rho float64
	// Add a constant and a linear trend to the indicators
	Constant, Trend bool
	Aggregation     tsdata.Aggregation
	// High-frequency unit, only used without indicator
	Frequency tsdata.Unit
	// Logger, slog.Default() when nil
	Logger *slog.Logger
}

// DefaultSpec returns Chow-Lin with rho 0.9, a constant and sum
// aggregation.
func DefaultSpec() Spec {
	return Spec{
		Model:       ChowLin,
		Rho:         0.9,
		Constant:    true,
		Aggregation: tsdata.Aggregation{Type: tsdata.Sum},
	}
}

// Validate checks the settings that do not depend on the data.
func (s Spec) Validate() error {
	switch s.Model {
	case ChowLin:
		if !(s.Rho > -1 && s.Rho < 1) {
			return fmt.Errorf("%w: rho %g outside (-1, 1)", ErrInvalidSpec, s.Rho)
		}
	case Fernandez:
		if s.Constant {
			return fmt.Errorf("%w: constant is not identified with a random walk", ErrInvalidSpec)
		}
	default:
		return fmt.Errorf("%w: unknown model %d", ErrInvalidSpec, s.Model)
	}
	return nil
}

func (s Spec) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

func (s Spec) rho() float64 {
	if s.Model == Fernandez {
		return 1
	}
	return s.Rho
}

// Result is a disaggregated series and its regression.
type Result struct {
	Series *tsdata.Series
	// Constant, trend, then one per indicator
	Coefficients []float64
	// Standard errors of the coefficients, NaN when not identified
	StdErrors []float64
	Rho       float64
	// Number of non diffuse benchmarks, the degrees of freedom of Sigma2
	Observations int
	// Innovation variance and concentrated log-likelihood
	Sigma2        float64
	LogLikelihood float64
}

// Disaggregate distributes target over the common domain of the
// indicators, which must not have missing values inside it.
func Disaggregate(target *tsdata.Series, indicators []*tsdata.Series, spec Spec) (*Result, error) {
	pb, err := newProblem(target, indicators, spec)
	if err != nil {
		return nil, err
	}
	return pb.solve(spec.rho())
}

// problem holds everything that does not depend on rho.
type problem struct {
	log    *slog.Logger
	domain tsdata.Domain
	x      *mat.Dense
	k      int
	coef   []float64
	reset  []bool
	y      []float64
}

func newProblem(target *tsdata.Series, indicators []*tsdata.Series, spec Spec) (*problem, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	if target == nil {
		return nil, fmt.Errorf("%w: nil target", ErrInvalidSpec)
	}

	// 1. High-frequency domain
	var domain tsdata.Domain
	switch {
	case len(indicators) > 0:
		for i, s := range indicators {
			d := s.Clean()
			if d.IsEmpty() {
				return nil, fmt.Errorf("%w: indicator %d has no value", tsdata.ErrEmptyDomain, i)
			}
			if i == 0 {
				domain = d
				continue
			}
			var err error
			if domain, err = domain.Intersect(d); err != nil {
				return nil, fmt.Errorf("indicator %d: %w", i, err)
			}
		}
		if domain.IsEmpty() {
			return nil, fmt.Errorf("%w: indicators have no common period", tsdata.ErrEmptyDomain)
		}
	case spec.Frequency.Valid():
		td := target.Clean()
		if td.IsEmpty() {
			return nil, fmt.Errorf("%w: target has no value", tsdata.ErrEmptyDomain)
		}
		if _, err := tsdata.Ratio(spec.Frequency, target.Unit()); err != nil {
			return nil, err
		}
		start := td.Start.Convert(spec.Frequency)
		end := td.End().Convert(spec.Frequency)
		domain = tsdata.Domain{Start: start, Length: end.Minus(start)}
	default:
		return nil, fmt.Errorf("%w: no indicator and no frequency", ErrInvalidSpec)
	}

	ratio, err := tsdata.Ratio(domain.Start.Unit, target.Unit())
	if err != nil {
		return nil, err
	}
	if err := spec.Aggregation.Validate(ratio); err != nil {
		return nil, err
	}

	// 2. Regressors
	n := domain.Length
	var cols [][]float64
	if spec.Constant {
		c := make([]float64, n)
		for t := range c {
			c[t] = 1
		}
		cols = append(cols, c)
	}
	if spec.Trend {
		c := make([]float64, n)
		for t := range c {
			c[t] = float64(t + 1)
		}
		cols = append(cols, c)
	}
	for i, s := range indicators {
		w, err := s.Window(domain)
		if err != nil {
			return nil, fmt.Errorf("indicator %d: %w", i, err)
		}
		if w.HasMissing() {
			return nil, fmt.Errorf("%w: indicator %d inside %s", tsdata.ErrMissingData, i, domain)
		}
		cols = append(cols, w.Values)
	}
	pb := &problem{log: spec.logger(), domain: domain, k: len(cols)}
	if pb.k > 0 {
		pb.x = mat.NewDense(n, pb.k, nil)
		for j, c := range cols {
			pb.x.SetCol(j, c)
		}
	}

	// 3. Cumulator and observations
	spans, values, err := tsdata.Benchmarks(domain, target)
	if err != nil {
		return nil, err
	}
	need := pb.k
	if spec.Model == Fernandez {
		need++
	}
	if len(spans) <= need {
		return nil, fmt.Errorf("%w: %d benchmarks for %d diffuse elements", ErrInsufficientData, len(spans), need)
	}
	agg := spec.Aggregation.Coefficients(ratio)
	pb.coef = make([]float64, n)
	pb.reset = make([]bool, n)
	for t := 0; t < n; t++ {
		idx := domain.Get(t).Index
		pos := ((idx % ratio) + ratio) % ratio
		pb.coef[t] = agg[pos]
		pb.reset[t] = pos == 0
	}
	pb.y = make([]float64, n)
	for t := range pb.y {
		pb.y[t] = math.NaN()
	}
	for j, sp := range spans {
		pb.y[sp.End-1] = values[j]
	}
	return pb, nil
}

func (pb *problem) model(rho float64) (*ssf.Model, *regression) {
	r := &regression{rho: rho, x: pb.x, k: pb.k, coef: pb.coef, reset: pb.reset}
	return &ssf.Model{
		Dim:         r.dim(),
		Dynamics:    r,
		Measurement: ssf.ExactFirst{},
		Initial:     r.initial(),
	}, r
}

// likelihood returns the concentrated log-likelihood at rho.
func (pb *problem) likelihood(rho float64) (float64, error) {
	m, _ := pb.model(rho)
	fr, err := ssf.DiffuseFilter{}.Process(m, pb.y)
	if err != nil {
		return math.NaN(), err
	}
	return fr.LogLikelihood(), nil
}

func (pb *problem) solve(rho float64) (*Result, error) {
	m, r := pb.model(rho)
	fr, err := ssf.DiffuseFilter{Full: true}.Process(m, pb.y)
	if err != nil {
		return nil, err
	}
	states, err := ssf.FastStateSmoother{}.Smooth(fr)
	if err != nil {
		return nil, err
	}

	n := pb.domain.Length
	out := &tsdata.Series{Start: pb.domain.Start, Values: make([]float64, n)}
	for t := 0; t < n; t++ {
		row := states.RawRowView(t)
		out.Values[t] = r.xb(t, row) + row[1]
	}
	beta := make([]float64, pb.k)
	copy(beta, states.RawRowView(0)[2:])

	res := &Result{
		Series:        out,
		Coefficients:  beta,
		StdErrors:     coefficientErrors(fr, pb.k),
		Rho:           rho,
		Observations:  fr.Observations(),
		Sigma2:        fr.Sigma2(),
		LogLikelihood: fr.LogLikelihood(),
	}
	pb.log.Debug("disagg", "rho", rho, "periods", n, "coefficients", beta,
		"sigma2", res.Sigma2, "loglikelihood", res.LogLikelihood)
	return res, nil
}

// coefficientErrors returns the standard errors of the coefficients. The
// coefficients are constant states, so their covariance after the last
// update is also the smoothed one.
func coefficientErrors(fr *ssf.FilteringResult, k int) []float64 {
	se := make([]float64, k)
	last := -1
	for t := fr.Len() - 1; t >= 0; t-- {
		if fr.Kind[t] == ssf.Ordinary || fr.Kind[t] == ssf.Diffuse {
			last = t
			break
		}
	}
	if last < 0 || fr.Kind[last] != ssf.Ordinary {
		for j := range se {
			se[j] = math.NaN()
		}
		return se
	}
	p, m, f := fr.P[last], fr.M[last], fr.F[last]
	s2 := fr.Sigma2()
	for j := range se {
		i := 2 + j
		v := p.At(i, i) - m[i]*m[i]/f
		se[j] = math.Sqrt(s2 * math.Max(v, 0))
	}
	return se
}

// PValues returns the two-sided p-values of the coefficients under a
// Student t distribution with Observations degrees of freedom.
func (r *Result) PValues() []float64 {
	p := make([]float64, len(r.Coefficients))
	dist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: float64(r.Observations)}
	for i, b := range r.Coefficients {
		se := math.NaN()
		if i < len(r.StdErrors) {
			se = r.StdErrors[i]
		}
		if r.Observations <= 0 || !(se > 0) {
			p[i] = math.NaN()
			continue
		}
		pv := 2 * (1 - dist.CDF(math.Abs(b/se)))
		p[i] = math.Min(math.Max(pv, 0), 1)
	}
	return p
}
