// Package benchmark adjusts a high-frequency series to a low-frequency
// benchmark while keeping its short-term movements.
//
// DentonSpec implements additive and multiplicative Denton benchmarking for
// any differencing order, with the original and the modified end
// conditions. Short series are solved directly through the normal equations
// of the constrained least squares problem. Long series go through the
// state-space form of package ssf, which never builds an n×n matrix.
//
// CholetteSpec implements the regression-based benchmarking of Cholette and
// Dagum: an AR(1) correction weighted by |value|^lambda, after an optional
// bias correction. It always uses the state-space form.
//
// Both reproduce the benchmark on every complete window of the series. The
// periods before the first complete window and after the last one are
// extrapolated by the correction model.
package benchmark
