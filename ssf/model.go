package ssf

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Dynamics describes the transition α_{t+1} = T_t α_t + S_t η_t.
// The innovations η_t are standardized, so their covariance is carried by S_t.
// Methods are only called with pos in [0, n-1), where n is the length of the
// data being processed.
type Dynamics interface {
	// TX replaces x by T_pos x
	TX(pos int, x []float64)
	// XT replaces x by T_posᵀ x
	XT(pos int, x []float64)
	// InnovationDim is the number of columns of S_t
	InnovationDim() int
	// Loading writes the non-zero entries of S_pos into s (dim × InnovationDim),
	// which is zeroed by the caller
	Loading(pos int, s *mat.Dense)
}

// Measurement describes y_t = Z_t α_t + ε_t.
type Measurement interface {
	// Loading writes the non-zero entries of Z_pos into z, which is zeroed
	// by the caller. It returns false when the model has no observation at pos.
	Loading(pos int, z []float64) bool
	// ErrorVariance returns H_pos. Zero means the observation is exact.
	ErrorVariance(pos int) float64
}

// ExactFirst observes the first state element without error wherever the
// data is not missing.
type ExactFirst struct{}

func (ExactFirst) Loading(pos int, z []float64) bool {
	z[0] = 1
	return true
}

func (ExactFirst) ErrorVariance(pos int) float64 { return 0 }

// Initial is the distribution of the first state.
type Initial struct {
	// Mean of α_0, nil for zero
	A0 []float64
	// Covariance of the proper part, nil for zero
	Pf0 *mat.SymDense
	// Basis B of the diffuse part (dim × d), Pi0 = B Bᵀ. nil when α_0 is proper.
	Diffuse *mat.Dense
}

// IsDiffuse reports whether the initial state has a diffuse part.
func (i Initial) IsDiffuse() bool {
	if i.Diffuse == nil {
		return false
	}
	_, c := i.Diffuse.Dims()
	return c > 0
}

// Model gathers the capabilities of a state-space model.
type Model struct {
	// State dimension
	Dim         int
	Dynamics    Dynamics
	Measurement Measurement
	Initial     Initial
}

// Validate checks that every capability agrees with Dim.
func (m *Model) Validate() error {
	if m == nil || m.Dim <= 0 {
		return fmt.Errorf("%w: state dimension must be > 0", ErrInvalidModel)
	}
	if m.Dynamics == nil || m.Measurement == nil {
		return fmt.Errorf("%w: dynamics and measurement are required", ErrInvalidModel)
	}
	if m.Dynamics.InnovationDim() < 0 {
		return fmt.Errorf("%w: negative innovation dimension", ErrInvalidModel)
	}
	if m.Initial.A0 != nil && len(m.Initial.A0) != m.Dim {
		return fmt.Errorf("%w: initial mean has %d elements, want %d", ErrInvalidModel, len(m.Initial.A0), m.Dim)
	}
	if m.Initial.Pf0 != nil && m.Initial.Pf0.SymmetricDim() != m.Dim {
		return fmt.Errorf("%w: initial covariance is %d×%d, want %d×%d",
			ErrInvalidModel, m.Initial.Pf0.SymmetricDim(), m.Initial.Pf0.SymmetricDim(), m.Dim, m.Dim)
	}
	if m.Initial.Diffuse != nil {
		if r, _ := m.Initial.Diffuse.Dims(); r != m.Dim {
			return fmt.Errorf("%w: diffuse basis has %d rows, want %d", ErrInvalidModel, r, m.Dim)
		}
	}
	return nil
}

// initialMean returns a copy of A0 (zeros when unset).
func (m *Model) initialMean() []float64 {
	a := make([]float64, m.Dim)
	copy(a, m.Initial.A0)
	return a
}

// initialCovariance returns a copy of Pf0 (zero when unset).
func (m *Model) initialCovariance() *mat.SymDense {
	p := mat.NewSymDense(m.Dim, nil)
	if m.Initial.Pf0 != nil {
		p.CopySym(m.Initial.Pf0)
	}
	return p
}

// diffuseCovariance returns Pi0 = B Bᵀ, or nil when the state is proper.
func (m *Model) diffuseCovariance() *mat.SymDense {
	if !m.Initial.IsDiffuse() {
		return nil
	}
	pi := mat.NewSymDense(m.Dim, nil)
	pi.SymOuterK(1, m.Initial.Diffuse)
	return pi
}
