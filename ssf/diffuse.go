package ssf

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// DiffuseFilter is the exact initial Kalman filter (Koopman, 1997). It has
// the contract of OrdinaryFilter and accepts diffuse initial states. The
// diffuse part is dropped as soon as all its directions are observed.
type DiffuseFilter struct {
	Epsilon float64
	Full    bool
}

// Process filters y with m. A model without diffuse part is handled as by
// OrdinaryFilter.
func (f DiffuseFilter) Process(m *Model, y []float64) (*FilteringResult, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return runFilter(m, y, f.Epsilon, f.Full)
}

// diffuseUpdate applies the measurement of period t when Z Pi Zᵀ > 0.
//
//	a  += Mi v / Fi
//	P  += Mi Miᵀ F / Fi² - (Mf Miᵀ + Mi Mfᵀ) / Fi
//	Pi -= Mi Miᵀ / Fi
func (st *filterState) diffuseUpdate(t int, v, f, fi float64, res *FilteringResult) {
	res.Kind[t] = Diffuse
	res.V[t], res.F[t], res.Fi[t] = v, f, fi
	res.M[t], res.Mi[t] = cloneVec(st.mf), cloneVec(st.mi)
	res.ndiffuse++
	res.sumLogFi += math.Log(fi)

	n := len(st.mi)
	mi := mat.NewVecDense(n, st.mi)
	mf := mat.NewVecDense(n, st.mf)

	floats.AddScaled(st.a, v/fi, st.mi)
	st.p.SymRankOne(st.p, f/(fi*fi), mi)
	st.p.RankTwo(st.p, -1/fi, mf, mi)
	st.pi.SymRankOne(st.pi, -1/fi, mi)

	st.rank--
	if st.rank <= 0 || mat.Norm(st.pi, 2) <= res.Epsilon*st.pinorm {
		st.pi = nil
		res.DiffuseEnd = t + 1
	}
}
