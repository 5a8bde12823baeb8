package benchmark

import (
	"fmt"
	"log/slog"
	"math"

	"gonum.org/v1/gonum/mat"
)

// solveConstrained minimizes ‖D u - h‖² subject to A u = b through the
// normal equations
//
//	[ DᵀD  Aᵀ ] [u]   [Dᵀh]
//	[ A    0  ] [λ] = [ b ]
//
// D is r×n, A is k×n. It returns u.
func solveConstrained(log *slog.Logger, D *mat.Dense, h []float64, A *mat.Dense, b []float64) ([]float64, error) {
	_, n := D.Dims()
	k, _ := A.Dims()
	size := n + k

	// 1. Scale each constraint row, the solution does not change
	As := mat.DenseCopyOf(A)
	bs := make([]float64, k)
	for j := 0; j < k; j++ {
		row := As.RawRowView(j)
		s := 0.0
		for _, v := range row {
			s = math.Max(s, math.Abs(v))
		}
		if s == 0 {
			return nil, fmt.Errorf("%w: constraint %d has no coefficient", ErrSolve, j)
		}
		for i := range row {
			row[i] /= s
		}
		bs[j] = b[j] / s
	}

	// 2. Assemble the KKT system
	var dtd mat.Dense
	dtd.Mul(D.T(), D)
	K := mat.NewDense(size, size, nil)
	K.Slice(0, n, 0, n).(*mat.Dense).Copy(&dtd)
	K.Slice(n, size, 0, n).(*mat.Dense).Copy(As)
	K.Slice(0, n, n, size).(*mat.Dense).Copy(As.T())

	rhs := mat.NewVecDense(size, nil)
	if h != nil {
		var dth mat.VecDense
		dth.MulVec(D.T(), mat.NewVecDense(len(h), h))
		for i := 0; i < n; i++ {
			rhs.SetVec(i, dth.AtVec(i))
		}
	}
	for j := 0; j < k; j++ {
		rhs.SetVec(n+j, bs[j])
	}

	// 3. LU with one refinement step
	var lu mat.LU
	lu.Factorize(K)
	var z mat.VecDense
	errLU := lu.SolveVecTo(&z, false, rhs)
	if errLU == nil {
		var res, dz mat.VecDense
		res.MulVec(K, &z)
		res.SubVec(rhs, &res)
		if err := lu.SolveVecTo(&dz, false, &res); err == nil {
			z.AddVec(&z, &dz)
		}
		return z.RawVector().Data[:n], nil
	}

	// 4. Fallback: the system is singular or badly conditioned. Use the
	// SVD minimum norm least squares solution.
	log.Debug("benchmark: KKT system badly conditioned, using SVD", "size", size, "err", errLU)
	var svd mat.SVD
	if ok := svd.Factorize(K, mat.SVDThin); !ok {
		return nil, fmt.Errorf("%w: SVD factorization failed after %v", ErrSolve, errLU)
	}
	rank := svd.Rank(1e-12)
	if rank == 0 {
		return nil, fmt.Errorf("%w: KKT matrix is zero", ErrSolve)
	}
	svd.SolveVecTo(&z, rhs, rank)
	return z.RawVector().Data[:n], nil
}

// differenceMatrix returns the matrix of (1-L)^d applied to u_0..u_{n-1}.
// With modified it has n-d rows starting at t = d. Otherwise it has n rows,
// the presample values are fixed to mean and moved to h.
func differenceMatrix(n, d int, modified bool, mean float64) (*mat.Dense, []float64) {
	delta := differences(d)
	if modified {
		D := mat.NewDense(n-d, n, nil)
		for r := 0; r < n-d; r++ {
			t := r + d
			for k, dk := range delta {
				D.Set(r, t-k, dk)
			}
		}
		return D, nil
	}
	D := mat.NewDense(n, n, nil)
	h := make([]float64, n)
	for t := 0; t < n; t++ {
		for k, dk := range delta {
			if t-k >= 0 {
				D.Set(t, t-k, dk)
			} else {
				h[t] -= mean * dk
			}
		}
	}
	return D, h
}
