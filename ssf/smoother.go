package ssf

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Cumulant is the state of the backward recursion at a period boundary.
// The cumulant at position t holds r_{t-1} (and r¹_{t-1}, N_{t-1}), i.e. the
// information of the observations t..n-1 about α_t.
type Cumulant struct {
	Pos int
	R0  []float64
	// Diffuse part, nil once the boundary lies after the diffuse period
	R1 []float64
	// Only with ComputeVariances
	N *mat.SymDense
}

// SmoothingResult holds the smoothed disturbances of the periods
// [Start, End).
type SmoothingResult struct {
	Start, End int
	// Smoothed innovations, one row per period (offset by Start)
	U *mat.Dense
	// Their covariances, with ComputeVariances only
	UVar []*mat.SymDense
	// Smoothed measurement errors and variances, NaN when the period has no
	// observation
	E    []float64
	EVar []float64
	// Backward state at Start, used to resume an earlier pass
	Cumulant *Cumulant
	// Scale applied to the variances
	Sigma2 float64
}

// Innovation returns the smoothed innovation of period t.
func (r *SmoothingResult) Innovation(t int) []float64 {
	return r.U.RawRowView(t - r.Start)
}

// DisturbanceSmoother runs the backward recursion of de Jong / Koopman on
// filter output.
type DisturbanceSmoother struct {
	// Compute the covariances of the smoothed disturbances
	ComputeVariances bool
	// Multiply the covariances by the estimated scale factor
	RescaleVariances bool
}

// Smooth processes the whole sample.
func (s DisturbanceSmoother) Smooth(fr *FilteringResult) (*SmoothingResult, error) {
	return s.SmoothRange(fr, 0, fr.Len(), nil)
}

// SmoothRange processes the periods [start, end) backward. tail is the
// cumulant at end returned by the pass over the following periods, nil when
// end is the end of the sample. The returned result carries the cumulant at
// start, so that a long sample can be smoothed in consecutive chunks.
func (s DisturbanceSmoother) SmoothRange(fr *FilteringResult, start, end int, tail *Cumulant) (*SmoothingResult, error) {
	n := fr.Len()
	if start < 0 || end > n || start >= end {
		return nil, fmt.Errorf("%w: smoothing range [%d, %d) outside [0, %d)", ErrInvalidModel, start, end, n)
	}
	if tail != nil && tail.Pos != end {
		return nil, fmt.Errorf("%w: cumulant at %d cannot resume a pass ending at %d", ErrInvalidModel, tail.Pos, end)
	}
	if s.ComputeVariances && tail != nil && tail.N == nil {
		return nil, fmt.Errorf("%w: cumulant without variance information", ErrInvalidModel)
	}

	m := fr.Model
	dim := m.Dim
	dyn := m.Dynamics
	q := dyn.InnovationDim()

	// 1. Backward state
	r0 := make([]float64, dim)
	r1 := make([]float64, dim)
	var nn *mat.SymDense
	if s.ComputeVariances {
		nn = mat.NewSymDense(dim, nil)
	}
	if tail != nil {
		copy(r0, tail.R0)
		copy(r1, tail.R1)
		if nn != nil {
			nn.CopySym(tail.N)
		}
	}

	res := &SmoothingResult{
		Start:  start,
		End:    end,
		E:      make([]float64, end-start),
		EVar:   make([]float64, end-start),
		Sigma2: 1,
	}
	if q > 0 {
		res.U = mat.NewDense(end-start, q, nil)
	}
	if s.ComputeVariances {
		res.UVar = make([]*mat.SymDense, end-start)
	}
	if s.RescaleVariances {
		res.Sigma2 = fr.Sigma2()
	}

	wk := newWork(dim)
	z := make([]float64, dim)
	nm := make([]float64, dim)
	var (
		sl  *mat.Dense
		snS mat.Dense
		ns  mat.Dense
	)
	if q > 0 {
		sl = mat.NewDense(dim, q, nil)
	}

	// 2. Backward recursion
	for t := end - 1; t >= start; t-- {
		i := t - start
		last := t == n-1

		// 2a. Innovations of the transition t -> t+1
		if q > 0 {
			if !last {
				sl.Zero()
				dyn.Loading(t, sl)
				u := res.U.RawRowView(i)
				for k := 0; k < q; k++ {
					u[k] = floats.Dot(mat.Col(nil, k, sl), r0)
				}
			}
			if s.ComputeVariances {
				uv := mat.NewSymDense(q, nil)
				for k := 0; k < q; k++ {
					uv.SetSym(k, k, 1)
				}
				if !last {
					ns.Mul(nn, sl)
					snS.Mul(sl.T(), &ns)
					for a := 0; a < q; a++ {
						for b := a; b < q; b++ {
							uv.SetSym(a, b, uv.At(a, b)-0.5*(snS.At(a, b)+snS.At(b, a)))
						}
					}
				}
				uv.ScaleSym(res.Sigma2, uv)
				res.UVar[i] = uv
			}
		}

		// 2b. Back through the transition
		if !last {
			dyn.XT(t, r0)
			if t < fr.DiffuseEnd {
				dyn.XT(t, r1)
			}
			if nn != nil {
				wk.xtvt(dyn, t, nn)
			}
		}

		// 2c. Measurement of period t
		switch fr.Kind[t] {
		case Ordinary:
			clear(z)
			m.Measurement.Loading(t, z)
			h := m.Measurement.ErrorVariance(t)
			mf, f := fr.M[t], fr.F[t]
			u := (fr.V[t] - floats.Dot(mf, r0)) / f
			res.E[i] = h * u
			floats.AddScaled(r0, u, z)
			if nn != nil {
				symMulVec(nm, nn, mf)
				c := 1/f + floats.Dot(mf, nm)/(f*f)
				res.EVar[i] = res.Sigma2 * (h - h*h*c)
				nn.SymRankOne(nn, c, mat.NewVecDense(dim, z))
				nn.RankTwo(nn, -1/f, mat.NewVecDense(dim, z), mat.NewVecDense(dim, nm))
			}
		case Diffuse:
			clear(z)
			m.Measurement.Loading(t, z)
			h := m.Measurement.ErrorVariance(t)
			mf, mi := fr.M[t], fr.Mi[t]
			f, fi := fr.F[t], fr.Fi[t]
			k0r0 := floats.Dot(mi, r0) / fi
			k1r0 := floats.Dot(mf, r0)/fi - floats.Dot(mi, r0)*f/(fi*fi)
			res.E[i] = -h * k0r0
			// r¹ first, it needs r⁰ before its update
			mir1 := floats.Dot(mi, r1) / fi
			floats.AddScaled(r1, fr.V[t]/fi-mir1-k1r0, z)
			floats.AddScaled(r0, -k0r0, z)
			if nn != nil {
				symMulVec(nm, nn, mi)
				c := floats.Dot(mi, nm) / (fi * fi)
				res.EVar[i] = res.Sigma2 * (h - h*h*c)
				nn.SymRankOne(nn, c, mat.NewVecDense(dim, z))
				nn.RankTwo(nn, -1/fi, mat.NewVecDense(dim, z), mat.NewVecDense(dim, nm))
			}
		case Exact:
			// zero variance, the error is known to be zero
		default:
			res.E[i] = math.NaN()
			res.EVar[i] = math.NaN()
		}
	}

	// 3. Boundary for an earlier pass
	cum := &Cumulant{Pos: start, R0: r0}
	if start < fr.DiffuseEnd {
		cum.R1 = r1
	}
	if nn != nil {
		cum.N = nn
	}
	res.Cumulant = cum
	return res, nil
}

// FirstSmoothedState returns E(α_0 | y) = A0 + Pf0 r_{-1} + Pi0 r¹_{-1} from the
// cumulant at position 0.
func FirstSmoothedState(m *Model, cum *Cumulant) ([]float64, error) {
	if cum == nil || cum.Pos != 0 {
		return nil, fmt.Errorf("%w: first smoothed state needs the cumulant at position 0", ErrInvalidModel)
	}
	a := m.initialMean()
	tmp := make([]float64, m.Dim)
	if m.Initial.Pf0 != nil {
		symMulVec(tmp, m.Initial.Pf0, cum.R0)
		floats.Add(a, tmp)
	}
	if m.Initial.IsDiffuse() && cum.R1 != nil {
		// Pi0 r¹ = B (Bᵀ r¹)
		b := m.Initial.Diffuse
		_, d := b.Dims()
		btr := make([]float64, d)
		for k := 0; k < d; k++ {
			btr[k] = floats.Dot(mat.Col(nil, k, b), cum.R1)
		}
		for i := 0; i < m.Dim; i++ {
			a[i] += floats.Dot(b.RawRowView(i), btr)
		}
	}
	return a, nil
}
