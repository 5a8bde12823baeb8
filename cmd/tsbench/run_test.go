package main

import (
	"bytes"
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tsbench/internal/config"
	"tsbench/internal/runmetrics"
	"tsbench/internal/seriesio"
	"tsbench/tsdata"
)

// almostEqual compares floats with tolerance
func almostEqual(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

func writeTable(t *testing.T, path string, series map[string]*tsdata.Series) {
	t.Helper()
	require.NoError(t, seriesio.WriteCSV(path, series))
}

func monthly(n int) *tsdata.Series {
	v := make([]float64, n)
	for i := range v {
		v[i] = 100 + float64(i) + 5*math.Sin(float64(i))
	}
	return tsdata.NewSeries(tsdata.NewPeriod(tsdata.Monthly, 2020, 0), v)
}

// requireTotals checks that the yearly sums of s match target
func requireTotals(t *testing.T, s, target *tsdata.Series) {
	t.Helper()
	a, err := tsdata.Aggregate(s, tsdata.Yearly, tsdata.Aggregation{Type: tsdata.Sum})
	require.NoError(t, err)
	for i, y := range target.Values {
		got := a.Get(target.Start.Plus(i))
		require.True(t, almostEqual(y, got, 1e-6*math.Abs(y)), "year %s: want %g, got %g", target.Start.Plus(i), y, got)
	}
}

func dentonJob(t *testing.T) (config.Job, *tsdata.Series) {
	dir := t.TempDir()
	sales := monthly(24)
	target := tsdata.NewSeries(tsdata.NewPeriod(tsdata.Yearly, 2020, 0), []float64{1300, 1480})
	writeTable(t, filepath.Join(dir, "monthly.csv"), map[string]*tsdata.Series{"sales": sales})
	writeTable(t, filepath.Join(dir, "yearly.csv"), map[string]*tsdata.Series{"sales_y": target})

	job := config.Default()
	job.Method = config.MethodDenton
	job.Input = config.Source{File: filepath.Join(dir, "monthly.csv"), Frequency: "monthly"}
	job.Target = config.Source{File: filepath.Join(dir, "yearly.csv"), Frequency: "yearly"}
	job.Output = filepath.Join(dir, "out", "result.csv")
	job.Pairs = []config.Pair{{Series: "sales", Target: "sales_y"}}
	require.NoError(t, job.Validate())
	return job, target
}

func TestRunJobSingleSeries(t *testing.T) {
	for _, method := range []string{config.MethodDenton, config.MethodCholette, config.MethodGRP} {
		t.Run(method, func(t *testing.T) {
			job, target := dentonJob(t)
			job.Method = method

			var buf bytes.Buffer
			out, err := runJob(context.Background(), job, &buf, runmetrics.New())
			require.NoError(t, err)
			require.Contains(t, out, "sales")
			assert.Equal(t, 24, out["sales"].Len())
			requireTotals(t, out["sales"], target)
			assert.Contains(t, buf.String(), "Revisions")
			assert.Contains(t, buf.String(), "sales")
		})
	}
}

func TestRunJobUnknownSeries(t *testing.T) {
	job, _ := dentonJob(t)
	job.Pairs = []config.Pair{{Series: "sales", Target: "exports_y"}}
	_, err := runJob(context.Background(), job, &bytes.Buffer{}, runmetrics.New())
	assert.ErrorIs(t, err, config.ErrInvalidJob)
}

func TestRunJobMultivariate(t *testing.T) {
	dir := t.TempDir()
	q := tsdata.NewPeriod(tsdata.Quarterly, 2021, 0)
	input := map[string]*tsdata.Series{
		"a":     tsdata.NewSeries(q, []float64{10, 11, 12, 13, 14, 15, 16, 17}),
		"b":     tsdata.NewSeries(q, []float64{20, 19, 21, 22, 20, 23, 24, 22}),
		"total": tsdata.NewSeries(q, []float64{31, 31, 34, 34, 35, 39, 40, 40}),
	}
	writeTable(t, filepath.Join(dir, "q.csv"), input)

	job := config.Default()
	job.Method = config.MethodMultivariate
	job.Input = config.Source{File: filepath.Join(dir, "q.csv"), Frequency: "quarterly"}
	job.Output = filepath.Join(dir, "out.csv")
	job.Multivariate.Contemporaneous = []string{"total = a + b"}
	require.NoError(t, job.Validate())

	m := runmetrics.New()
	out, err := runJob(context.Background(), job, &bytes.Buffer{}, m)
	require.NoError(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SolvesTotal.WithLabelValues("multivariate", runmetrics.OutcomeSuccess)))
	for i := 0; i < 8; i++ {
		total := out["total"].At(i)
		assert.Equal(t, input["total"].At(i), total)
		sum := out["a"].At(i) + out["b"].At(i)
		assert.True(t, almostEqual(total, sum, 1e-9*total), "quarter %d: %g != %g", i, total, sum)
	}
}

func TestRunJobDisagg(t *testing.T) {
	dir := t.TempDir()
	gdp := tsdata.NewSeries(tsdata.NewPeriod(tsdata.Yearly, 2015, 0), []float64{400, 412, 430, 441, 455, 470})
	writeTable(t, filepath.Join(dir, "gdp.csv"), map[string]*tsdata.Series{"gdp": gdp})

	job := config.Default()
	job.Method = config.MethodDisagg
	job.Target = config.Source{File: filepath.Join(dir, "gdp.csv"), Frequency: "yearly"}
	job.Output = filepath.Join(dir, "out.csv")
	job.Disagg.Series = "gdp"
	job.Disagg.Frequency = "quarterly"
	require.NoError(t, job.Validate())

	var buf bytes.Buffer
	out, err := runJob(context.Background(), job, &buf, runmetrics.New())
	require.NoError(t, err)
	q := out["gdp"]
	require.NotNil(t, q)
	assert.Equal(t, tsdata.Quarterly, q.Unit())
	assert.Equal(t, 24, q.Len())
	requireTotals(t, q, gdp)
	assert.Contains(t, buf.String(), "constant")
	assert.Contains(t, buf.String(), "chowlin")
}

func TestRunCommand(t *testing.T) {
	job, target := dentonJob(t)
	dir := filepath.Dir(job.Input.File)
	yaml := "method: denton\n" +
		"input: {file: monthly.csv, frequency: monthly}\n" +
		"target: {file: yearly.csv, frequency: yearly}\n" +
		"output: out/result.csv\n" +
		"pairs:\n  - {series: sales, target: sales_y}\n"
	path := filepath.Join(dir, "job.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0644))

	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	promPath := filepath.Join(dir, "tsbench.prom")
	rootCmd.SetArgs([]string{"run", "--config", path, "--metrics", promPath})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	})
	require.NoError(t, rootCmd.Execute())

	out, err := seriesio.LoadCSV(filepath.Join(dir, "out", "result.csv"), tsdata.Monthly)
	require.NoError(t, err)
	requireTotals(t, out["sales"], target)
	assert.Contains(t, buf.String(), "Revisions")

	prom, err := os.ReadFile(promPath)
	require.NoError(t, err)
	assert.Contains(t, string(prom), `tsbench_solves_total{method="denton",outcome="success"} 1`)
}

func TestVersionCommand(t *testing.T) {
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetArgs([]string{"version"})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	})
	require.NoError(t, rootCmd.Execute())
	assert.Equal(t, "tsbench dev\n", buf.String())
}
