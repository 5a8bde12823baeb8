package ssf

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// MultiMeasurement describes up to MaxObservations observations per period.
type MultiMeasurement interface {
	MaxObservations() int
	// Loading writes row j of Z_pos into the zeroed z. It returns false when
	// the row is absent at pos.
	Loading(pos, j int, z []float64) bool
	ErrorVariance(pos, j int) float64
}

// Stack builds the univariate model equivalent to a model with several
// observations per period. Period t becomes the pseudo periods t·m .. t·m+m-1,
// linked by an identity transition without noise; the real transition is
// applied after the last one. data is n × m, NaN for missing values.
//
// The smoothed state of period t is the smoothed state of pseudo period t·m.
func Stack(dim int, dyn Dynamics, meas MultiMeasurement, init Initial, data *mat.Dense) (*Model, []float64, error) {
	m := meas.MaxObservations()
	if m <= 0 {
		return nil, nil, fmt.Errorf("%w: no observation per period", ErrInvalidModel)
	}
	n, c := data.Dims()
	if c != m {
		return nil, nil, fmt.Errorf("%w: data has %d columns, measurement has %d rows", ErrInvalidModel, c, m)
	}
	y := make([]float64, n*m)
	for t := 0; t < n; t++ {
		for j := 0; j < m; j++ {
			y[t*m+j] = data.At(t, j)
		}
	}
	model := &Model{
		Dim:         dim,
		Dynamics:    stackedDynamics{inner: dyn, m: m},
		Measurement: stackedMeasurement{inner: meas, m: m},
		Initial:     init,
	}
	if err := model.Validate(); err != nil {
		return nil, nil, err
	}
	return model, y, nil
}

// Unstack keeps the states of the first pseudo period of each period.
func Unstack(states *mat.Dense, m int) *mat.Dense {
	rows, dim := states.Dims()
	n := rows / m
	out := mat.NewDense(n, dim, nil)
	for t := 0; t < n; t++ {
		out.SetRow(t, states.RawRowView(t*m))
	}
	return out
}

type stackedDynamics struct {
	inner Dynamics
	m     int
}

func (d stackedDynamics) TX(pos int, x []float64) {
	if pos%d.m == d.m-1 {
		d.inner.TX(pos/d.m, x)
	}
}

func (d stackedDynamics) XT(pos int, x []float64) {
	if pos%d.m == d.m-1 {
		d.inner.XT(pos/d.m, x)
	}
}

func (d stackedDynamics) InnovationDim() int { return d.inner.InnovationDim() }

func (d stackedDynamics) Loading(pos int, s *mat.Dense) {
	if pos%d.m == d.m-1 {
		d.inner.Loading(pos/d.m, s)
	}
}

type stackedMeasurement struct {
	inner MultiMeasurement
	m     int
}

func (s stackedMeasurement) Loading(pos int, z []float64) bool {
	return s.inner.Loading(pos/s.m, pos%s.m, z)
}

func (s stackedMeasurement) ErrorVariance(pos int) float64 {
	return s.inner.ErrorVariance(pos/s.m, pos%s.m)
}
