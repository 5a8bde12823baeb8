// Package config reads the YAML job files run by the tsbench command.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"tsbench/benchmark"
	"tsbench/disagg"
	"tsbench/grp"
	"tsbench/multivariate"
	"tsbench/tsdata"
)

// ErrInvalidJob is returned for a job file that cannot be run.
var ErrInvalidJob = errors.New("config: invalid job")

// Method names accepted in the job file.
const (
	MethodDenton       = "denton"
	MethodCholette     = "cholette"
	MethodGRP          = "grp"
	MethodMultivariate = "multivariate"
	MethodDisagg       = "disagg"
)

// Job describes one run: which series to read, how to adjust them and
// where to write the result.
type Job struct {
	Method string `yaml:"method"`
	// High-frequency series
	Input Source `yaml:"input"`
	// Low-frequency benchmarks
	Target Source `yaml:"target"`
	Output string `yaml:"output"`

	Aggregation Aggregation `yaml:"aggregation"`
	// Series benchmarked by the single series methods
	Pairs []Pair `yaml:"pairs"`

	Denton       Denton       `yaml:"denton"`
	Cholette     Cholette     `yaml:"cholette"`
	GRP          GRP          `yaml:"grp"`
	Multivariate Multivariate `yaml:"multivariate"`
	Disagg       Disagg       `yaml:"disagg"`
}

// Source is a CSV table of series sharing a frequency.
type Source struct {
	File      string `yaml:"file"`
	Frequency string `yaml:"frequency"`
}

// Aggregation is the temporal aggregation of the high-frequency series.
type Aggregation struct {
	Type string `yaml:"type"`
	// 0-based, userdefined only
	Position int `yaml:"position"`
}

// Pair binds a high-frequency series to its benchmarks.
type Pair struct {
	Series string `yaml:"series"`
	Target string `yaml:"target"`
}

type Denton struct {
	Movement     string `yaml:"movement"`
	Modified     bool   `yaml:"modified"`
	Differencing int    `yaml:"differencing"`
	Solver       string `yaml:"solver"`
}

type Cholette struct {
	Rho    float64 `yaml:"rho"`
	Lambda float64 `yaml:"lambda"`
	Bias   string  `yaml:"bias"`
}

type GRP struct {
	Objective     string  `yaml:"objective"`
	MaxIterations int     `yaml:"max_iterations"`
	Precision     float64 `yaml:"precision"`
}

type Multivariate struct {
	Rho             float64  `yaml:"rho"`
	Lambda          float64  `yaml:"lambda"`
	Concurrency     int      `yaml:"concurrency"`
	Contemporaneous []string `yaml:"contemporaneous"`
	Temporal        []string `yaml:"temporal"`
}

type Disagg struct {
	Model string  `yaml:"model"`
	Rho   float64 `yaml:"rho"`
	// Search rho on the default grid, Chow-Lin only
	Estimate bool `yaml:"estimate"`
	Constant bool `yaml:"constant"`
	Trend    bool `yaml:"trend"`
	// Name of the low-frequency series to distribute
	Series     string   `yaml:"series"`
	Indicators []string `yaml:"indicators"`
	// High-frequency unit when there is no indicator
	Frequency string `yaml:"frequency"`
}

// Default returns a job with the default settings of every method.
func Default() Job {
	return Job{
		Aggregation: Aggregation{Type: "sum"},
		Denton: Denton{
			Movement:     "multiplicative",
			Modified:     true,
			Differencing: 1,
			Solver:       "auto",
		},
		Cholette: Cholette{Rho: 1, Lambda: 1, Bias: "none"},
		GRP: GRP{
			Objective:     "symmetric",
			MaxIterations: grp.DefaultMaxIterations,
			Precision:     grp.DefaultPrecision,
		},
		Multivariate: Multivariate{Rho: 1, Lambda: 1},
		Disagg:       Disagg{Model: "chowlin", Rho: 0.9, Constant: true},
	}
}

// Parse decodes a job over the defaults. Unknown keys are an error.
func Parse(r io.Reader) (Job, error) {
	job := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&job); err != nil {
		if errors.Is(err, io.EOF) {
			return Job{}, fmt.Errorf("%w: empty job file", ErrInvalidJob)
		}
		return Job{}, fmt.Errorf("failed to parse the job: %w", err)
	}
	job.Method = strings.ToLower(strings.TrimSpace(job.Method))
	return job, nil
}

// Load reads and validates the job at path. Relative file names in the
// job are resolved against the directory of path.
func Load(path string) (Job, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Job{}, fmt.Errorf("failed to read the job file: %w", err)
	}
	job, err := Parse(bytes.NewReader(data))
	if err != nil {
		return Job{}, fmt.Errorf("%s: %w", path, err)
	}
	job.resolve(filepath.Dir(path))
	if err := job.Validate(); err != nil {
		return Job{}, fmt.Errorf("%s: %w", path, err)
	}
	return job, nil
}

func (j *Job) resolve(dir string) {
	abs := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(dir, p)
	}
	j.Input.File = abs(j.Input.File)
	j.Target.File = abs(j.Target.File)
	j.Output = abs(j.Output)
}

// Validate checks that the job names its files and that the settings of
// its method build a valid spec.
func (j Job) Validate() error {
	if j.Output == "" {
		return fmt.Errorf("%w: no output file", ErrInvalidJob)
	}
	switch j.Method {
	case MethodDenton, MethodCholette, MethodGRP:
		if j.Input.File == "" || j.Target.File == "" {
			return fmt.Errorf("%w: %s needs an input and a target file", ErrInvalidJob, j.Method)
		}
		if len(j.Pairs) == 0 {
			return fmt.Errorf("%w: %s needs at least one pair", ErrInvalidJob, j.Method)
		}
		for i, p := range j.Pairs {
			if p.Series == "" || p.Target == "" {
				return fmt.Errorf("%w: pair %d needs a series and a target", ErrInvalidJob, i+1)
			}
		}
	case MethodMultivariate:
		if j.Input.File == "" {
			return fmt.Errorf("%w: multivariate needs an input file", ErrInvalidJob)
		}
		if len(j.Multivariate.Contemporaneous)+len(j.Multivariate.Temporal) == 0 {
			return fmt.Errorf("%w: multivariate needs at least one constraint", ErrInvalidJob)
		}
	case MethodDisagg:
		if j.Target.File == "" || j.Disagg.Series == "" {
			return fmt.Errorf("%w: disagg needs a target file and a series", ErrInvalidJob)
		}
		if (j.Input.File == "") != (len(j.Disagg.Indicators) == 0) {
			return fmt.Errorf("%w: disagg indicators and input file go together", ErrInvalidJob)
		}
	case "":
		return fmt.Errorf("%w: no method", ErrInvalidJob)
	default:
		return fmt.Errorf("%w: unknown method %q", ErrInvalidJob, j.Method)
	}

	if _, _, err := j.Units(); err != nil {
		return err
	}
	var err error
	switch j.Method {
	case MethodDenton:
		_, err = j.DentonSpec()
	case MethodCholette:
		_, err = j.CholetteSpec()
	case MethodGRP:
		_, err = j.GRPSolver()
	case MethodMultivariate:
		_, err = j.MultivariateSpec()
	case MethodDisagg:
		_, err = j.DisaggSpec()
	}
	return err
}

// Units returns the frequencies of the input and target tables. A source
// without file has a zero unit.
func (j Job) Units() (input, target tsdata.Unit, err error) {
	unit := func(name string, s Source) (tsdata.Unit, error) {
		if s.File == "" {
			return 0, nil
		}
		u, err := tsdata.ParseUnit(s.Frequency)
		if err != nil {
			return 0, fmt.Errorf("%w: %s frequency: %w", ErrInvalidJob, name, err)
		}
		return u, nil
	}
	if input, err = unit("input", j.Input); err != nil {
		return 0, 0, err
	}
	if target, err = unit("target", j.Target); err != nil {
		return 0, 0, err
	}
	return input, target, nil
}

func (j Job) aggregation() (tsdata.Aggregation, error) {
	t, err := tsdata.ParseAggregationType(j.Aggregation.Type)
	if err != nil {
		return tsdata.Aggregation{}, err
	}
	return tsdata.Aggregation{Type: t, Position: j.Aggregation.Position}, nil
}

// DentonSpec builds the Denton settings of the job.
func (j Job) DentonSpec() (benchmark.DentonSpec, error) {
	agg, err := j.aggregation()
	if err != nil {
		return benchmark.DentonSpec{}, err
	}
	s := benchmark.DentonSpec{
		Modified:     j.Denton.Modified,
		Differencing: j.Denton.Differencing,
		Aggregation:  agg,
	}
	switch strings.ToLower(j.Denton.Movement) {
	case "additive":
		s.Movement = benchmark.Additive
	case "multiplicative", "":
		s.Movement = benchmark.Multiplicative
	default:
		return s, fmt.Errorf("%w: unknown movement %q", ErrInvalidJob, j.Denton.Movement)
	}
	switch strings.ToLower(j.Denton.Solver) {
	case "auto", "":
		s.Solver = benchmark.Auto
	case "direct":
		s.Solver = benchmark.Direct
	case "statespace", "state-space", "ssf":
		s.Solver = benchmark.StateSpace
	default:
		return s, fmt.Errorf("%w: unknown solver %q", ErrInvalidJob, j.Denton.Solver)
	}
	return s, s.Validate()
}

// CholetteSpec builds the Cholette settings of the job.
func (j Job) CholetteSpec() (benchmark.CholetteSpec, error) {
	agg, err := j.aggregation()
	if err != nil {
		return benchmark.CholetteSpec{}, err
	}
	s := benchmark.CholetteSpec{
		Rho:         j.Cholette.Rho,
		Lambda:      j.Cholette.Lambda,
		Aggregation: agg,
	}
	switch strings.ToLower(j.Cholette.Bias) {
	case "none", "":
		s.Bias = benchmark.BiasNone
	case "additive":
		s.Bias = benchmark.BiasAdditive
	case "multiplicative":
		s.Bias = benchmark.BiasMultiplicative
	default:
		return s, fmt.Errorf("%w: unknown bias %q", ErrInvalidJob, j.Cholette.Bias)
	}
	return s, s.Validate()
}

// GRPSolver builds the growth rate preservation solver of the job.
func (j Job) GRPSolver() (grp.Solver, error) {
	agg, err := j.aggregation()
	if err != nil {
		return grp.Solver{}, err
	}
	o, err := grp.ParseObjective(j.GRP.Objective)
	if err != nil {
		return grp.Solver{}, fmt.Errorf("%w: %w", ErrInvalidJob, err)
	}
	s := grp.Solver{
		Objective:     o,
		MaxIterations: j.GRP.MaxIterations,
		Precision:     j.GRP.Precision,
		Aggregation:   agg,
	}
	return s, s.Validate()
}

// MultivariateSpec builds the multivariate settings of the job. The
// constraints are compiled when the series are known.
func (j Job) MultivariateSpec() (multivariate.Spec, error) {
	s := multivariate.Spec{
		Rho:             j.Multivariate.Rho,
		Lambda:          j.Multivariate.Lambda,
		Concurrency:     j.Multivariate.Concurrency,
		Contemporaneous: j.Multivariate.Contemporaneous,
		Temporal:        j.Multivariate.Temporal,
	}
	return s, s.Validate()
}

// DisaggSpec builds the disaggregation settings of the job.
func (j Job) DisaggSpec() (disagg.Spec, error) {
	agg, err := j.aggregation()
	if err != nil {
		return disagg.Spec{}, err
	}
	s := disagg.Spec{
		Rho:         j.Disagg.Rho,
		Constant:    j.Disagg.Constant,
		Trend:       j.Disagg.Trend,
		Aggregation: agg,
	}
	switch strings.ToLower(j.Disagg.Model) {
	case "chowlin", "chow-lin", "":
		s.Model = disagg.ChowLin
	case "fernandez":
		s.Model = disagg.Fernandez
		if j.Disagg.Estimate {
			return s, fmt.Errorf("%w: rho is not estimated with fernandez", ErrInvalidJob)
		}
	default:
		return s, fmt.Errorf("%w: unknown model %q", ErrInvalidJob, j.Disagg.Model)
	}
	if j.Disagg.Frequency != "" {
		u, err := tsdata.ParseUnit(j.Disagg.Frequency)
		if err != nil {
			return s, fmt.Errorf("%w: disagg frequency: %w", ErrInvalidJob, err)
		}
		s.Frequency = u
	}
	if j.Input.File == "" && s.Frequency == 0 {
		return s, fmt.Errorf("%w: disagg without indicator needs a frequency", ErrInvalidJob)
	}
	return s, s.Validate()
}
