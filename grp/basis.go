package grp

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"tsbench/tsdata"
)

// kernelBasis returns an n×m matrix whose columns span the vectors that
// leave every window aggregate unchanged. Windows are disjoint, so the
// basis is built window by window: Helmert contrasts when all coefficients
// are equal, unit vectors of the free positions when a single position is
// aggregated. Periods outside any window are free.
func kernelBasis(n int, spans []tsdata.Span, coef []float64) *mat.Dense {
	inWindow := make([]bool, n)
	for _, sp := range spans {
		for t := sp.Begin; t < sp.End; t++ {
			inWindow[t] = true
		}
	}
	c := len(coef)
	single := -1
	nonzero := 0
	for i, v := range coef {
		if v != 0 {
			nonzero++
			single = i
		}
	}
	perWindow := c - 1

	m := len(spans) * perWindow
	for t := 0; t < n; t++ {
		if !inWindow[t] {
			m++
		}
	}
	if m == 0 {
		return nil
	}
	K := mat.NewDense(n, m, nil)
	col := 0
	for t := 0; t < n; t++ {
		if !inWindow[t] {
			K.Set(t, col, 1)
			col++
		}
	}
	for _, sp := range spans {
		if nonzero == 1 {
			for i := 0; i < c; i++ {
				if i != single {
					K.Set(sp.Begin+i, col, 1)
					col++
				}
			}
			continue
		}
		// Helmert contrasts: column j averages the first j periods against
		// period j
		for j := 1; j < c; j++ {
			h := 1 / math.Sqrt(float64(j*(j+1)))
			for i := 0; i < j; i++ {
				K.Set(sp.Begin+i, col, h)
			}
			K.Set(sp.Begin+j, col, -float64(j)*h)
			col++
		}
	}
	return K
}

// project moves x onto the constraints Σ coef·x = value of each window,
// with the smallest change in the least squares sense.
func project(x []float64, spans []tsdata.Span, values, coef []float64) {
	norm := 0.0
	for _, v := range coef {
		norm += v * v
	}
	for j, sp := range spans {
		disc := values[j]
		for t := sp.Begin; t < sp.End; t++ {
			disc -= coef[t-sp.Begin] * x[t]
		}
		for t := sp.Begin; t < sp.End; t++ {
			x[t] += coef[t-sp.Begin] * disc / norm
		}
	}
}
