package grp

import (
	"fmt"
	"math"
	"strings"
)

// Objective measures the distance between the growth rates of a candidate
// x and those of the preliminary series p.
type Objective int

const (
	// Σ (x_t/x_{t-1} - p_t/p_{t-1})²
	Forward Objective = iota
	// Σ (x_{t-1}/x_t - p_{t-1}/p_t)²
	Backward
	// Forward + Backward
	Symmetric
	// Σ (log(x_t/x_{t-1}) - log(p_t/p_{t-1}))²
	Log
)

func (o Objective) String() string {
	switch o {
	case Forward:
		return "forward"
	case Backward:
		return "backward"
	case Symmetric:
		return "symmetric"
	case Log:
		return "log"
	}
	return fmt.Sprintf("objective(%d)", int(o))
}

// ParseObjective is the inverse of Objective.String.
func ParseObjective(s string) (Objective, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "forward", "":
		return Forward, nil
	case "backward":
		return Backward, nil
	case "symmetric":
		return Symmetric, nil
	case "log":
		return Log, nil
	}
	return 0, fmt.Errorf("%w: unknown objective %q", ErrInvalidInput, s)
}

// check verifies that the growth rates of p are defined for o.
func (o Objective) check(p []float64) error {
	for t, v := range p {
		if v == 0 {
			return fmt.Errorf("%w: preliminary value is zero at offset %d", ErrInvalidInput, t)
		}
		if o == Log && t > 0 && v/p[t-1] <= 0 {
			return fmt.Errorf("%w: log objective needs positive growth ratios, offset %d", ErrInvalidInput, t)
		}
	}
	return nil
}

// Value returns the objective at x. It is +Inf where a growth rate of x is
// not defined.
func (o Objective) Value(p, x []float64) float64 {
	f := 0.0
	for t := 1; t < len(x); t++ {
		prev, cur := x[t-1], x[t]
		if prev == 0 || cur == 0 {
			return math.Inf(1)
		}
		switch o {
		case Forward:
			e := cur/prev - p[t]/p[t-1]
			f += e * e
		case Backward:
			e := prev/cur - p[t-1]/p[t]
			f += e * e
		case Symmetric:
			e := cur/prev - p[t]/p[t-1]
			b := prev/cur - p[t-1]/p[t]
			f += e*e + b*b
		case Log:
			r := cur / prev
			if r <= 0 {
				return math.Inf(1)
			}
			e := math.Log(r) - math.Log(p[t]/p[t-1])
			f += e * e
		}
	}
	return f
}

// Gradient stores the gradient of the objective at x in grad.
func (o Objective) Gradient(p, x, grad []float64) {
	clear(grad)
	for t := 1; t < len(x); t++ {
		prev, cur := x[t-1], x[t]
		if o == Forward || o == Symmetric {
			e := cur/prev - p[t]/p[t-1]
			grad[t] += 2 * e / prev
			grad[t-1] -= 2 * e * cur / (prev * prev)
		}
		if o == Backward || o == Symmetric {
			e := prev/cur - p[t-1]/p[t]
			grad[t-1] += 2 * e / cur
			grad[t] -= 2 * e * prev / (cur * cur)
		}
		if o == Log {
			e := math.Log(cur/prev) - math.Log(p[t]/p[t-1])
			grad[t] += 2 * e / cur
			grad[t-1] -= 2 * e / prev
		}
	}
}
