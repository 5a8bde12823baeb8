package main

import (
	"fmt"
	"io"
	"math"
	"slices"
	"strings"

	"gonum.org/v1/gonum/floats"

	"tsbench/disagg"
	"tsbench/internal/runmetrics"
	"tsbench/tsdata"
)

// revision summarizes the change of one series.
type revision struct {
	series  string
	periods int
	maxAbs  float64
	// percent of the input value
	maxRel float64
}

// revisions compares each output series with its input, in name order.
func revisions(before, after map[string]*tsdata.Series) []revision {
	names := make([]string, 0, len(after))
	for n := range after {
		names = append(names, n)
	}
	slices.Sort(names)

	var out []revision
	for _, n := range names {
		x := after[n]
		p, ok := before[n]
		if !ok || x == nil {
			continue
		}
		var abs, rel []float64
		for i, v := range x.Values {
			old := p.Get(x.Start.Plus(i))
			if math.IsNaN(v) || math.IsNaN(old) {
				continue
			}
			abs = append(abs, math.Abs(v-old))
			if old != 0 {
				rel = append(rel, 100*math.Abs(v-old)/math.Abs(old))
			}
		}
		r := revision{series: n, periods: len(abs)}
		if len(abs) > 0 {
			r.maxAbs = floats.Max(abs)
		}
		if len(rel) > 0 {
			r.maxRel = floats.Max(rel)
		}
		out = append(out, r)
	}
	return out
}

// report prints the revisions to w and records them in m.
func report(w io.Writer, m *runmetrics.Metrics, before, after map[string]*tsdata.Series) {
	fmt.Fprintf(w, "\n=== Revisions ===\n")
	fmt.Fprintf(w, "%-16s%8s%16s%16s\n", "series", "periods", "max abs", "max rel (%)")
	for _, r := range revisions(before, after) {
		fmt.Fprintf(w, "%-16s%8d%16.6g%16.4f\n", r.series, r.periods, r.maxAbs, r.maxRel)
		m.SetRevision(r.series, r.maxRel)
	}
}

// printDisaggSummary prints the regression behind a disaggregation.
func printDisaggSummary(w io.Writer, name string, indicators []string, spec disagg.Spec, res *disagg.Result) {
	fmt.Fprintln(w, "\n         Temporal Disaggregation Summary      ")
	fmt.Fprintf(w, "Series:          %s\n", name)
	fmt.Fprintf(w, "Model:           %s\n", spec.Model)
	fmt.Fprintf(w, "Periods:         %d %s, %s\n", res.Series.Len(), res.Series.Unit(), res.Series.Domain())
	if len(indicators) > 0 {
		fmt.Fprintf(w, "Indicators:      %s\n", strings.Join(indicators, ", "))
	}
	fmt.Fprintln(w)

	var labels []string
	if spec.Constant {
		labels = append(labels, "constant")
	}
	if spec.Trend {
		labels = append(labels, "trend")
	}
	labels = append(labels, indicators...)
	pvalues := res.PValues()
	fmt.Fprintln(w, "Coefficients:")
	fmt.Fprintf(w, "  %-14s%14s%14s%10s%10s\n", "", "estimate", "std error", "t", "p")
	for i, b := range res.Coefficients {
		label := fmt.Sprintf("b%d", i)
		if i < len(labels) {
			label = labels[i]
		}
		se := res.StdErrors[i]
		fmt.Fprintf(w, "  %-14s%14.6g%14.6g%10.3f%10.4f\n", label, b, se, b/se, pvalues[i])
	}
	fmt.Fprintf(w, "Degrees of freedom: %d\n", res.Observations)
	fmt.Fprintln(w)
	fmt.Fprintf(w, "rho:             %.4f\n", res.Rho)
	fmt.Fprintf(w, "sigma2:          %.6g\n", res.Sigma2)
	fmt.Fprintf(w, "log-likelihood:  %.6f\n", res.LogLikelihood)
	fmt.Fprintln(w, "=======================================")
}
