package ssf

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// StepKind classifies the measurement update of one period.
type StepKind uint8

const (
	// Missing: no observation, the state only moves through the dynamics
	Missing StepKind = iota
	// Exact: zero prediction variance and zero residual, nothing to learn
	Exact
	// Ordinary: standard Kalman update
	Ordinary
	// Diffuse: update of the diffuse part of the state
	Diffuse
)

func (k StepKind) String() string {
	switch k {
	case Missing:
		return "missing"
	case Exact:
		return "exact"
	case Ordinary:
		return "ordinary"
	case Diffuse:
		return "diffuse"
	}
	return "unknown"
}

// FilteringResult stores what the filter computed at each period. The light
// variant keeps what the smoothers need; the full variant also keeps states
// and predicted covariances.
type FilteringResult struct {
	Model *Model
	Data  []float64

	Kind []StepKind
	// Prediction errors y_t - Z_t a_t
	V []float64
	// Prediction error variances Z_t P_t Z_tᵀ + H_t
	F []float64
	// P_t Z_tᵀ, nil when nothing was learned at t
	M [][]float64
	// Z_t Pi_t Z_tᵀ and Pi_t Z_tᵀ on diffuse steps
	Fi []float64
	Mi [][]float64

	// First period after the diffuse part vanished, 0 for a proper model
	DiffuseEnd int

	// Reference scale and relative epsilon used for the zero tests
	Scale   float64
	Epsilon float64

	// Full variant only: predicted and filtered states (n × dim), and
	// predicted covariances
	A  *mat.Dense
	Af *mat.Dense
	P  []*mat.SymDense

	nobs     int
	ndiffuse int
	sumLogF  float64
	sumV2F   float64
	sumLogFi float64
}

// Len returns the number of periods.
func (r *FilteringResult) Len() int { return len(r.Data) }

// IsFull reports whether states and covariances were stored.
func (r *FilteringResult) IsFull() bool { return r.A != nil }

// Observations returns the number of ordinary (non diffuse) updates.
func (r *FilteringResult) Observations() int { return r.nobs }

// DiffuseObservations returns the number of diffuse updates.
func (r *FilteringResult) DiffuseObservations() int { return r.ndiffuse }

// Sigma2 is the maximum likelihood estimate of the scale factor of a model
// normalized to unit variance.
func (r *FilteringResult) Sigma2() float64 {
	if r.nobs == 0 {
		return 1
	}
	return r.sumV2F / float64(r.nobs)
}

// LogLikelihood returns the diffuse log-likelihood with the scale factor
// concentrated out.
func (r *FilteringResult) LogLikelihood() float64 {
	if r.nobs == 0 {
		return 0
	}
	n := float64(r.nobs)
	return -0.5 * (n*math.Log(2*math.Pi*r.Sigma2()) + n + r.sumLogF + r.sumLogFi)
}

func newFilteringResult(m *Model, y []float64, full bool) *FilteringResult {
	n := len(y)
	r := &FilteringResult{
		Model: m,
		Data:  y,
		Kind:  make([]StepKind, n),
		V:     make([]float64, n),
		F:     make([]float64, n),
		M:     make([][]float64, n),
		Fi:    make([]float64, n),
		Mi:    make([][]float64, n),
	}
	if full {
		r.A = mat.NewDense(n, m.Dim, nil)
		r.Af = mat.NewDense(n, m.Dim, nil)
		r.P = make([]*mat.SymDense, n)
	}
	return r
}
