// Package matching adjusts an acceleration record in the wavelet domain until
// its response spectrum matches a target spectrum.
package matching

import (
	"context"
	"fmt"
	"math"

	"github.com/RyanBlaney/sonido-sismo/algorithms/baseline"
	"github.com/RyanBlaney/sonido-sismo/algorithms/common"
	"github.com/RyanBlaney/sonido-sismo/algorithms/spectral"
	"github.com/RyanBlaney/sonido-sismo/algorithms/wavelet"
	"github.com/RyanBlaney/sonido-sismo/logging"
	"gonum.org/v1/gonum/floats"
)

// Matcher runs spectral matching. A Matcher holds no per-call state, so
// concurrent Match calls are independent.
type Matcher struct {
	config    *Config
	kernel    *wavelet.Kernel
	solver    *spectral.ResponseSpectrumSolver
	corrector *baseline.Corrector
	logger    logging.Logger
}

// NewMatcher creates a matcher; a nil config uses DefaultConfig
func NewMatcher(config *Config) *Matcher {
	if config == nil {
		config = DefaultConfig()
	}
	c := *config
	defaults := DefaultConfig()
	if c.Kernel == nil {
		c.Kernel = defaults.Kernel
	}
	if c.Solver == nil {
		c.Solver = defaults.Solver
	}
	if c.Baseline == nil {
		c.Baseline = defaults.Baseline
	}

	return &Matcher{
		config:    &c,
		kernel:    wavelet.NewKernel(c.Kernel),
		solver:    spectral.NewResponseSpectrumSolver(c.Solver),
		corrector: baseline.NewCorrector(c.Baseline),
		logger: logging.WithFields(logging.Fields{
			"component": "spectral_matcher",
		}),
	}
}

// run carries the immutable inputs of one Match call
type run struct {
	opts    Options
	dt      float64
	time    []float64
	grid    *PeriodGrid
	target  []float64
	active  []int
	low     float64
	high    float64
	history []float64
}

// Match perturbs the wavelet details of signal until the PSA of the candidate
// is within opts.Tolerance (RMS misfit over the active periods) of target, or
// opts.IterationBudget rescaling passes have run.
//
// Reaching the budget is not an error: Status is IterationLimitReached and the
// best candidate is returned. When ctx ends between iterations the best
// candidate so far is returned together with the context error.
func (m *Matcher) Match(ctx context.Context, signal []float64, samplingRate float64, target TargetSpectrum, opts Options) (*Result, error) {
	logger := m.logger.WithContext(ctx).WithFields(logging.Fields{
		"function": "Match",
		"samples":  len(signal),
	})

	st := &MatchState{State: Initializing}
	r, err := m.initialize(signal, samplingRate, target, opts, logger)
	if err != nil {
		logger.Error(err, "Spectral matching rejected input")
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("spectral matching cancelled: %w", err)
	}

	logger.Info("Starting spectral matching", logging.Fields{
		"active_low":  r.low,
		"active_high": r.high,
		"periods":     len(r.grid.Periods),
		"active":      len(r.active),
		"budget":      opts.IterationBudget,
	})

	// the input record's own spectrum
	original, err := m.solver.Compute(r.grid.Periods, signal, opts.DampingRatio, r.dt)
	if err != nil {
		return nil, err
	}

	seedFactor := r.scaleFactor(original.PSA)
	st.Candidate = append([]float64(nil), signal...)
	st.Spectrum = original
	if opts.ScaleSeed && seedFactor > 0 && !math.IsInf(seedFactor, 0) {
		floats.Scale(seedFactor, st.Candidate)
		st.Spectrum = scaledSpectrum(original, seedFactor)
	}

	st.State = Evaluating
	r.evaluate(st, false)

	if !r.done(st) {
		st.State = Decomposing
		if st.Details, err = m.decompose(r, st.Candidate, samplingRate); err != nil {
			return nil, err
		}
	}

	for !r.done(st) {
		if err := ctx.Err(); err != nil {
			st.State = Cancelled
			logger.Warn("Spectral matching cancelled", logging.Fields{
				"iteration": st.Iteration,
			})
			return r.result(st, original, seedFactor), fmt.Errorf("spectral matching cancelled: %w", err)
		}

		st.State = Rescaling
		for _, k := range r.active {
			factor := r.target[k] / st.Spectrum.PSA[k]
			if factor > 0 && !math.IsInf(factor, 0) {
				st.Details.ScaleRow(k, factor)
			}
		}
		st.Candidate = st.Details.Synthesize()
		st.velocity, st.displacement, st.baselineConverged = nil, nil, false
		st.Iteration++

		// the details stay uncorrected; only the evaluated candidate is corrected
		if opts.BaselineCorrect {
			corrected, err := m.corrector.AutoCorrect(st.Candidate, r.time)
			if err != nil {
				return r.result(st, original, seedFactor), err
			}
			if !corrected.Fallback {
				st.Candidate = corrected.Acceleration
				st.velocity = corrected.Velocity
				st.displacement = corrected.Displacement
				st.baselineConverged = corrected.Converged
			}
		}

		st.State = Evaluating
		if st.Spectrum, err = m.solver.Compute(r.grid.Periods, st.Candidate, opts.DampingRatio, r.dt); err != nil {
			return r.result(st, original, seedFactor), err
		}
		r.evaluate(st, true)

		logger.Debug("Matching iteration completed", logging.Fields{
			"iteration": st.Iteration,
			"rms":       st.RMSMisfit,
			"criterion": st.Criterion,
		})
	}

	finalErr := m.finalize(r, st)
	if st.best.rms < opts.Tolerance {
		st.State = Converged
	} else {
		st.State = IterationLimitReached
	}
	if finalErr != nil {
		return r.result(st, original, seedFactor), finalErr
	}

	result := r.result(st, original, seedFactor)
	logger.Info("Spectral matching completed", logging.Fields{
		"status":         result.Status.String(),
		"iterations":     result.Iterations,
		"best_iteration": result.BestIteration,
		"rms":            result.RMSMisfit,
	})
	return result, nil
}

func (m *Matcher) initialize(signal []float64, samplingRate float64, target TargetSpectrum, opts Options, logger logging.Logger) (*run, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if len(signal) < 2 {
		return nil, fmt.Errorf("%w: signal needs at least 2 samples, got %d", common.ErrInvalidInput, len(signal))
	}
	if !common.AllFinite(signal) {
		return nil, fmt.Errorf("%w: signal contains non-finite samples", common.ErrInvalidInput)
	}
	if !(samplingRate > 0) || math.IsInf(samplingRate, 0) {
		return nil, fmt.Errorf("%w: sampling rate must be positive, got %g", common.ErrInvalidInput, samplingRate)
	}
	if err := target.Validate(); err != nil {
		return nil, err
	}

	n := len(signal)
	dt := 1 / samplingRate
	ff1, ff2 := FrequencyBounds(n, dt)

	low, high, ff1 := ClampPeriodRange(opts.PeriodRangeLow, opts.PeriodRangeHigh, target.Periods, ff1, ff2)
	if low > high {
		return nil, fmt.Errorf("%w: period range [%g, %g] is empty after clamping", common.ErrInvalidInput, low, high)
	}
	if low != opts.PeriodRangeLow || high != opts.PeriodRangeHigh {
		logger.Debug("Period range clamped", logging.Fields{
			"requested_low":  opts.PeriodRangeLow,
			"requested_high": opts.PeriodRangeHigh,
			"low":            low,
			"high":           high,
		})
	}

	grid, err := NewPeriodGrid(ff1, ff2, opts.ScaleCount, m.kernel.Config().Omega)
	if err != nil {
		return nil, err
	}

	onGrid, err := target.Resample(grid.Periods)
	if err != nil {
		return nil, err
	}

	active := grid.ActiveIndices(low, high)
	if len(active) == 0 {
		return nil, fmt.Errorf("%w: no grid period falls in [%g, %g]", common.ErrInvalidInput, low, high)
	}
	for _, k := range active {
		if !(onGrid[k] > 0) {
			return nil, fmt.Errorf("%w: target ordinate at %g s must be positive inside the matched range", common.ErrInvalidInput, grid.Periods[k])
		}
	}

	time := make([]float64, n)
	for i := range time {
		time[i] = float64(i) * dt
	}

	return &run{
		opts:   opts,
		dt:     dt,
		time:   time,
		grid:   grid,
		target: onGrid,
		active: active,
		low:    low,
		high:   high,
	}, nil
}

func (m *Matcher) decompose(r *run, series []float64, samplingRate float64) (*wavelet.Details, error) {
	coefs, err := m.kernel.ForwardTransform(series, samplingRate, r.grid.Scales)
	if err != nil {
		return nil, err
	}
	return m.kernel.ReconstructDetails(r.time, series, coefs)
}

// finalize baseline corrects the best candidate when it was never corrected
// and the caller asked for correction. The corrected misfit is appended to
// the history.
func (m *Matcher) finalize(r *run, st *MatchState) error {
	best := st.best
	if best.velocity != nil || !r.opts.BaselineCorrect || r.opts.IterationBudget == 0 {
		return nil
	}

	corrected, err := m.corrector.AutoCorrect(best.series, r.time)
	if err != nil {
		return err
	}
	if corrected.Fallback {
		return nil
	}

	spectrum, err := m.solver.Compute(r.grid.Periods, corrected.Acceleration, r.opts.DampingRatio, r.dt)
	if err != nil {
		return err
	}
	best.series = corrected.Acceleration
	best.velocity = corrected.Velocity
	best.displacement = corrected.Displacement
	best.baselineConverged = corrected.Converged
	best.spectrum = spectrum
	best.misfit, best.rms = r.misfit(spectrum.PSA)
	r.history = append(r.history, best.rms)
	return nil
}

// evaluate computes the misfit of st.Spectrum, tracks the best candidate and
// reports progress
func (r *run) evaluate(st *MatchState, hasPrevious bool) {
	previous := st.RMSMisfit
	st.Misfit, st.RMSMisfit = r.misfit(st.Spectrum.PSA)
	if hasPrevious {
		st.Criterion = math.Abs(st.RMSMisfit - previous)
	}
	r.history = append(r.history, st.RMSMisfit)
	st.track()

	if r.opts.Progress != nil {
		fraction := 1.0
		if r.opts.IterationBudget > 0 {
			fraction = float64(st.Iteration) / float64(r.opts.IterationBudget)
		}
		r.opts.Progress(Progress{
			Iteration: st.Iteration,
			Budget:    r.opts.IterationBudget,
			Fraction:  fraction,
			RMSMisfit: st.RMSMisfit,
			State:     st.State,
		})
	}
}

func (r *run) done(st *MatchState) bool {
	return st.RMSMisfit < r.opts.Tolerance || st.Iteration >= r.opts.IterationBudget
}

// misfit returns psa/target - 1 on the active periods (NaN elsewhere) and its RMS
func (r *run) misfit(psa []float64) ([]float64, float64) {
	misfit := make([]float64, len(psa))
	for i := range misfit {
		misfit[i] = math.NaN()
	}

	sumSq := 0.0
	for _, k := range r.active {
		misfit[k] = psa[k]/r.target[k] - 1
		sumSq += misfit[k] * misfit[k]
	}
	return misfit, math.Sqrt(sumSq / float64(len(r.active)))
}

// scaleFactor is Σtarget/ΣPSA over the active periods
func (r *run) scaleFactor(psa []float64) float64 {
	var num, den float64
	for _, k := range r.active {
		num += r.target[k]
		den += psa[k]
	}
	if den == 0 {
		return math.Inf(1)
	}
	return num / den
}

func (r *run) result(st *MatchState, original *spectral.ResponseSpectrum, seedFactor float64) *Result {
	best := st.best
	if best.velocity == nil {
		best.velocity, _ = common.CumulativeTrapezoid(r.time, best.series)
		best.displacement, _ = common.CumulativeTrapezoid(r.time, best.velocity)
	}

	res := &Result{
		Time:              r.time,
		OriginalSpectrum:  original,
		TargetOnGrid:      r.target,
		Grid:              r.grid,
		SeedScaleFactor:   seedFactor,
		ActiveLow:         r.low,
		ActiveHigh:        r.high,
		Iterations:        st.Iteration,
		Converged:         st.State == Converged,
		Status:            st.State,
		History:           append([]float64(nil), r.history...),
		Candidate:         best.series,
		Velocity:          best.velocity,
		Displacement:      best.displacement,
		Spectrum:          best.spectrum,
		Misfit:            best.misfit,
		RMSMisfit:         best.rms,
		BestIteration:     best.iteration,
		BaselineConverged: best.baselineConverged,
	}

	achieved := make([]float64, len(r.active))
	wanted := make([]float64, len(r.active))
	absSum := 0.0
	for i, k := range r.active {
		achieved[i] = best.spectrum.PSA[k]
		wanted[i] = r.target[k]
		absSum += math.Abs(best.misfit[k])
	}
	res.MeanMisfit = absSum / float64(len(r.active))
	res.Correlation = common.Correlation(achieved, wanted)

	return res
}

func scaledSpectrum(rs *spectral.ResponseSpectrum, factor float64) *spectral.ResponseSpectrum {
	scale := func(x []float64) []float64 {
		out := append([]float64(nil), x...)
		floats.Scale(factor, out)
		return out
	}
	return &spectral.ResponseSpectrum{
		Periods:      rs.Periods,
		SD:           scale(rs.SD),
		PSV:          scale(rs.PSV),
		PSA:          scale(rs.PSA),
		SV:           scale(rs.SV),
		SA:           scale(rs.SA),
		DampingRatio: rs.DampingRatio,
		FFTSize:      rs.FFTSize,
	}
}
