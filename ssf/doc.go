// Package ssf implements linear Gaussian state-space filtering and smoothing
// for univariate observation streams:
//
//	y_t       = Z_t α_t + ε_t,        Var ε_t = H_t
//	α_{t+1}   = T_t α_t + S_t η_t,    Var η_t = I
//	α_0       ~ N(A0, Pf0 + κ B Bᵀ),  κ → ∞
//
// A model is a set of small capabilities (Dynamics, Measurement, Initial)
// rather than explicit matrices, so that benchmarking models can apply T_t
// in O(dim) instead of materializing it.
//
// Filter runs the ordinary or the exact diffuse Kalman filter. The
// DisturbanceSmoother runs the backward recursion on the filter output and
// the FastStateSmoother rebuilds the smoothed states from the smoothed
// innovations in a single forward pass. Stack turns a model with several
// observations per period into an equivalent univariate one.
//
// No type in this package keeps mutable state between calls. Scratch
// buffers are allocated per call, so independent models can be processed
// from different goroutines.
package ssf
