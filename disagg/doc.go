// Package disagg distributes a low-frequency series over high-frequency
// periods with a regression on indicators (Chow-Lin, Fernández).
//
// The high-frequency series is y_t = X_t β + u_t, u_t an AR(1) process
// (Chow-Lin) or a random walk (Fernández), and only the aggregates of y over
// complete windows are observed. The model is written in state-space form
// with a cumulator and diffuse regression coefficients, so that generalized
// least squares estimates, interpolation and the likelihood come from one
// pass of the filter and smoother of package ssf.
package disagg
