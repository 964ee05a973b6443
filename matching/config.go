package matching

import (
	"fmt"
	"math"
	"runtime"

	"github.com/RyanBlaney/sonido-sismo/algorithms/baseline"
	"github.com/RyanBlaney/sonido-sismo/algorithms/common"
	"github.com/RyanBlaney/sonido-sismo/algorithms/spectral"
	"github.com/RyanBlaney/sonido-sismo/algorithms/wavelet"
)

// Config holds the matcher's component configuration. It is fixed for the
// lifetime of a Matcher; per-call settings live in Options.
type Config struct {
	Kernel   *wavelet.KernelConfig  `json:"kernel"`
	Solver   *spectral.SolverConfig `json:"solver"`
	Baseline *baseline.Config       `json:"baseline"`
}

// DefaultConfig returns the default component configuration
func DefaultConfig() *Config {
	return &Config{
		Kernel:   wavelet.DefaultKernelConfig(),
		Solver:   spectral.DefaultSolverConfig(),
		Baseline: baseline.DefaultConfig(),
	}
}

// WithWorkers sets the worker count of the wavelet kernel and the spectrum solver
func (c *Config) WithWorkers(workers int) *Config {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	c.Kernel.Workers = workers
	c.Solver.Workers = workers
	return c
}

// Progress is reported after every spectrum evaluation
type Progress struct {
	Iteration int     `json:"iteration"`
	Budget    int     `json:"budget"`
	Fraction  float64 `json:"fraction"`
	RMSMisfit float64 `json:"rms_misfit"`
	State     State   `json:"state"`
}

// ProgressFunc receives progress updates on the matching goroutine
type ProgressFunc func(Progress)

// Options configures a single Match call
type Options struct {
	// PeriodRangeLow and PeriodRangeHigh bound the periods that are matched.
	// Both zero selects the whole target range; other values are clamped to
	// what the target and the record can support.
	PeriodRangeLow  float64 `json:"period_range_low" mapstructure:"period_range_low"`
	PeriodRangeHigh float64 `json:"period_range_high" mapstructure:"period_range_high"`

	// DampingRatio of the response spectrum, at least spectral.MinDampingRatio
	DampingRatio float64 `json:"damping_ratio" mapstructure:"damping_ratio"`

	// IterationBudget is the number of rescaling passes allowed
	IterationBudget int `json:"iteration_budget" mapstructure:"iteration_budget"`

	// ScaleCount is the number of frequencies (and wavelet scales) in the grid
	ScaleCount int `json:"scale_count" mapstructure:"scale_count"`

	// BaselineCorrect runs the baseline corrector on every new candidate
	BaselineCorrect bool `json:"baseline_correct" mapstructure:"baseline_correct"`

	// Tolerance is the RMS misfit below which the match has converged
	Tolerance float64 `json:"tolerance" mapstructure:"tolerance"`

	// ScaleSeed multiplies the record by Σtarget/ΣPSA over the active range
	// before the first evaluation
	ScaleSeed bool `json:"scale_seed" mapstructure:"scale_seed"`

	Progress ProgressFunc `json:"-" mapstructure:"-"`
}

// DefaultOptions returns the options used when nothing else is specified
func DefaultOptions() Options {
	return Options{
		DampingRatio:    0.05,
		IterationBudget: 20,
		ScaleCount:      100,
		BaselineCorrect: true,
		Tolerance:       0.05,
	}
}

// Validate checks the option values. Damping errors wrap
// spectral.ErrUnsupportedDamping, everything else common.ErrInvalidInput.
func (o Options) Validate() error {
	if math.IsNaN(o.DampingRatio) || o.DampingRatio < spectral.MinDampingRatio {
		return fmt.Errorf("%w: got %g, need >= %g", spectral.ErrUnsupportedDamping, o.DampingRatio, spectral.MinDampingRatio)
	}
	if o.IterationBudget < 0 {
		return fmt.Errorf("%w: iteration budget must not be negative, got %d", common.ErrInvalidInput, o.IterationBudget)
	}
	if o.ScaleCount < 2 {
		return fmt.Errorf("%w: scale count must be at least 2, got %d", common.ErrInvalidInput, o.ScaleCount)
	}
	if !(o.Tolerance > 0) || math.IsInf(o.Tolerance, 0) {
		return fmt.Errorf("%w: tolerance must be positive, got %g", common.ErrInvalidInput, o.Tolerance)
	}
	if o.PeriodRangeLow < 0 || o.PeriodRangeHigh < 0 || math.IsNaN(o.PeriodRangeLow) || math.IsNaN(o.PeriodRangeHigh) {
		return fmt.Errorf("%w: period range (%g, %g) must not be negative", common.ErrInvalidInput, o.PeriodRangeLow, o.PeriodRangeHigh)
	}
	return nil
}
