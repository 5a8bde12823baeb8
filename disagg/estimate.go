package disagg

import (
	"errors"
	"fmt"
	"math"
	"runtime"
	"sync"

	"tsbench/tsdata"
)

// DefaultRhoGrid is -0.99, -0.98, ..., 0.99.
func DefaultRhoGrid() []float64 {
	grid := make([]float64, 0, 199)
	for i := -99; i <= 99; i++ {
		grid = append(grid, float64(i)/100)
	}
	return grid
}

// EstimateRho evaluates the Chow-Lin log-likelihood at each value of grid
// (DefaultRhoGrid when empty) and returns the disaggregation at the best
// one. Grid points are evaluated concurrently.
func EstimateRho(target *tsdata.Series, indicators []*tsdata.Series, spec Spec, grid []float64) (*Result, error) {
	if spec.Model != ChowLin {
		return nil, fmt.Errorf("%w: rho is only estimated for Chow-Lin", ErrInvalidSpec)
	}
	if len(grid) == 0 {
		grid = DefaultRhoGrid()
	}
	for _, r := range grid {
		if !(r > -1 && r < 1) {
			return nil, fmt.Errorf("%w: grid value %g outside (-1, 1)", ErrInvalidSpec, r)
		}
	}
	spec.Rho = grid[0]
	pb, err := newProblem(target, indicators, spec)
	if err != nil {
		return nil, err
	}

	// 1. Worker pool over the grid
	numWorkers := runtime.NumCPU()
	if numWorkers > len(grid) {
		numWorkers = len(grid)
	}
	type evaluation struct {
		index int
		ll    float64
		err   error
	}
	jobs := make(chan int)
	resultsCh := make(chan evaluation, len(grid))

	var wg sync.WaitGroup
	wg.Add(numWorkers)
	worker := func() {
		defer wg.Done()
		for i := range jobs {
			ll, err := pb.likelihood(grid[i])
			resultsCh <- evaluation{index: i, ll: ll, err: err}
		}
	}
	for w := 0; w < numWorkers; w++ {
		go worker()
	}
	go func() {
		for i := range grid {
			jobs <- i
		}
		close(jobs)
	}()

	// 2. Keep the best point; ties go to the first grid value
	best, bestLL := -1, math.Inf(-1)
	var errs []error
	for range grid {
		ev := <-resultsCh
		if ev.err != nil {
			errs = append(errs, fmt.Errorf("rho %g: %w", grid[ev.index], ev.err))
			continue
		}
		if ev.ll > bestLL || (ev.ll == bestLL && ev.index < best) {
			best, bestLL = ev.index, ev.ll
		}
	}
	wg.Wait()
	close(resultsCh)

	if best < 0 {
		if len(errs) == 0 {
			return nil, fmt.Errorf("%w: likelihood undefined on the whole grid", ErrInsufficientData)
		}
		return nil, errors.Join(errs...)
	}
	pb.log.Debug("disagg: rho estimated", "rho", grid[best], "loglikelihood", bestLL,
		"grid", len(grid), "failed", len(errs))
	return pb.solve(grid[best])
}
