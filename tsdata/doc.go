// Package tsdata holds the calendar and series types shared by the
// benchmarking packages: regular period units, periods, domains, series with
// missing values, and the temporal aggregation rules that tie a
// high-frequency series to its low-frequency benchmark.
//
// Series values are immutable from the point of view of the algorithms.
// Every operation that produces values returns a newly allocated series.
package tsdata
