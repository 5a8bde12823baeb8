package ssf

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// FastStateSmoother computes the smoothed states without their covariances:
// a light filter pass, a disturbance smoother pass without variances, then
// α̂_{t+1} = T_t α̂_t + S_t η̂_t forward from the first smoothed state.
type FastStateSmoother struct {
	Epsilon float64
}

// Process returns the smoothed states of m given y, one row per period.
func (s FastStateSmoother) Process(m *Model, y []float64) (*mat.Dense, error) {
	fr, err := DiffuseFilter{Epsilon: s.Epsilon}.Process(m, y)
	if err != nil {
		return nil, err
	}
	return s.Smooth(fr)
}

// Smooth rebuilds the smoothed states from an existing filter pass.
func (s FastStateSmoother) Smooth(fr *FilteringResult) (*mat.Dense, error) {
	sr, err := DisturbanceSmoother{}.Smooth(fr)
	if err != nil {
		return nil, err
	}
	m := fr.Model
	a, err := FirstSmoothedState(m, sr.Cumulant)
	if err != nil {
		return nil, err
	}

	n, dim := fr.Len(), m.Dim
	q := m.Dynamics.InnovationDim()
	states := mat.NewDense(n, dim, nil)
	var sl *mat.Dense
	if q > 0 {
		sl = mat.NewDense(dim, q, nil)
	}
	tmp := make([]float64, dim)
	for t := 0; t < n; t++ {
		states.SetRow(t, a)
		if t == n-1 {
			break
		}
		m.Dynamics.TX(t, a)
		if q > 0 {
			sl.Zero()
			m.Dynamics.Loading(t, sl)
			u := sr.Innovation(t)
			for i := 0; i < dim; i++ {
				tmp[i] = floats.Dot(sl.RawRowView(i), u)
			}
			floats.Add(a, tmp)
		}
	}
	return states, nil
}
