package benchmark

import (
	"fmt"
	"log/slog"

	"tsbench/tsdata"
)

// BiasCorrection is applied to the preliminary series before benchmarking.
type BiasCorrection int

const (
	BiasNone BiasCorrection = iota
	// Add the average discrepancy per period
	BiasAdditive
	// Multiply by the ratio of the benchmark total to the preliminary total
	BiasMultiplicative
)

func (b BiasCorrection) String() string {
	switch b {
	case BiasAdditive:
		return "additive"
	case BiasMultiplicative:
		return "multiplicative"
	}
	return "none"
}

// CholetteSpec configures Cholette-Dagum benchmarking:
//
//	x_t = p_t + |p_t|^λ u_t,   u_t = ρ u_{t-1} + ε_t
//
// with ρ in (-1, 1]. ρ = 1 gives a random walk correction with a diffuse
// start, equivalent to the modified Denton on first differences.
type CholetteSpec struct {
	Rho         float64
	Lambda      float64
	Bias        BiasCorrection
	Aggregation tsdata.Aggregation
	// Logger, slog.Default() when nil
	Logger *slog.Logger
}

// DefaultCholetteSpec returns rho = 1, lambda = 1, no bias correction and
// sum aggregation.
func DefaultCholetteSpec() CholetteSpec {
	return CholetteSpec{
		Rho:         1,
		Lambda:      1,
		Aggregation: tsdata.Aggregation{Type: tsdata.Sum},
	}
}

func (s CholetteSpec) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

// Validate checks the settings that do not depend on the data.
func (s CholetteSpec) Validate() error {
	if !(s.Rho > -1 && s.Rho <= 1) {
		return fmt.Errorf("%w: rho %g outside (-1, 1]", ErrInvalidSpec, s.Rho)
	}
	if !(s.Lambda >= 0) {
		return fmt.Errorf("%w: lambda %g, must be >= 0", ErrInvalidSpec, s.Lambda)
	}
	if s.Bias < BiasNone || s.Bias > BiasMultiplicative {
		return fmt.Errorf("%w: unknown bias correction %d", ErrInvalidSpec, s.Bias)
	}
	return nil
}

// Benchmark returns series adjusted to target.
func (s CholetteSpec) Benchmark(series, target *tsdata.Series) (*tsdata.Series, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	pb, err := newProblem(series, target, s.Aggregation)
	if err != nil {
		return nil, err
	}
	if len(pb.spans) == 0 {
		return series.Clone(), nil
	}

	// 1. Bias correction
	base, err := s.correctBias(pb)
	if err != nil {
		return nil, err
	}

	// 2. AR(1) correction weighted by |base|^lambda
	w := Weights(base, s.Lambda)
	c := newCumulator(pb, w, []float64{s.Rho})
	init := c.initial(s.Rho == 1, 0, 1/(1-s.Rho*s.Rho))
	s.logger().Debug("cholette", "rho", s.Rho, "lambda", s.Lambda, "bias", s.Bias,
		"periods", pb.n(), "benchmarks", len(pb.spans))

	u, err := smoothCorrection(c, init, pb.observations(base))
	if err != nil {
		return nil, err
	}
	x := make([]float64, len(u))
	for t := range x {
		x[t] = base[t] + w[t]*u[t]
	}
	return pb.result(x), nil
}

// correctBias returns the preliminary series corrected for the average
// discrepancy with the benchmarks.
func (s CholetteSpec) correctBias(pb *problem) ([]float64, error) {
	base := make([]float64, pb.n())
	copy(base, pb.p)
	switch s.Bias {
	case BiasAdditive:
		// Σ_j (Y_j - A_j(p + b)) = 0
		disc, weight := 0.0, 0.0
		for j, sp := range pb.spans {
			disc += pb.values[j] - pb.aggregate(pb.p, sp)
			for _, c := range pb.coef {
				weight += c
			}
		}
		b := disc / weight
		for t := range base {
			base[t] += b
		}
	case BiasMultiplicative:
		num, den := 0.0, 0.0
		for j, sp := range pb.spans {
			num += pb.values[j]
			den += pb.aggregate(pb.p, sp)
		}
		if den == 0 {
			return nil, fmt.Errorf("%w: preliminary aggregates sum to zero", ErrZeroValue)
		}
		b := num / den
		for t := range base {
			base[t] *= b
		}
	}
	return base, nil
}
