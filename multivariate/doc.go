// Package multivariate reconciles a set of series with contemporaneous and
// temporal constraints (multivariate Cholette).
//
// Contemporaneous constraints are linear relations that hold at every
// period, such as "total = a + b + 2*c" or "0 = x - y". The left hand side
// is fixed; the series on the right are adjusted. A trailing * expands to
// every series with that prefix.
//
// Temporal constraints tie a high-frequency series to a low-frequency one,
// such as "ya = sum(a)". The aggregate is fixed; the detail is adjusted.
//
// Series are partitioned into groups linked by constraints. Each group is
// solved on its own, concurrently, through a composite state-space model
// whose exact observations are the constraints. Every adjusted series gets
// the Cholette correction x = p + |p|^λ u with u an AR(1) process.
package multivariate
