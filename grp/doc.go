// Package grp benchmarks a series while preserving its growth rates
// (Causey and Trager).
//
// The solution is searched in the space of series that already satisfy the
// low-frequency constraints: x = x̄ + K z, where x̄ is a feasible seed
// (usually the multiplicative Denton solution) and the columns of K span the
// kernel of the aggregation operator. The problem in z is unconstrained and
// is solved with L-BFGS.
package grp
