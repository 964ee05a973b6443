package matching

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RyanBlaney/sonido-sismo/algorithms/common"
	"github.com/RyanBlaney/sonido-sismo/algorithms/spectral"
)

const (
	testSamples = 1000
	testRate    = 50.0
)

// broadband is an enveloped sum of 25 sinusoids between 0.3 and 12 Hz
func broadband() []float64 {
	dt := 1 / testRate
	duration := float64(testSamples-1) * dt
	x := make([]float64, testSamples)
	for j := range 25 {
		f := 0.3 * math.Pow(40, float64(j)/24)
		phase := 1.7 * float64(j)
		amp := 1 / math.Sqrt(f)
		for i := range x {
			ti := float64(i) * dt
			x[i] += amp * math.Sin(2*math.Pi*f*ti+phase)
		}
	}
	for i := range x {
		env := math.Sin(math.Pi * float64(i) * dt / duration)
		x[i] *= env * env
	}
	return x
}

// ownTarget returns the record's PSA on the matching grid multiplied by factor
func ownTarget(t *testing.T, signal []float64, factor float64) (TargetSpectrum, []float64) {
	t.Helper()
	ff1, ff2 := FrequencyBounds(len(signal), 1/testRate)
	grid, err := NewPeriodGrid(ff1, ff2, 100, math.Pi)
	require.NoError(t, err)

	rs, err := spectral.NewResponseSpectrumSolver(nil).Compute(grid.Periods, signal, 0.05, 1/testRate)
	require.NoError(t, err)

	ordinates := make([]float64, len(rs.PSA))
	for i, v := range rs.PSA {
		ordinates[i] = factor * v
	}
	return TargetSpectrum{Periods: grid.Periods, Ordinates: ordinates}, rs.PSA
}

func TestClampPeriodRange(t *testing.T) {
	target := []float64{0.05, 0.5, 3.0}
	ff1, ff2 := 0.1, 25.0 // grid covers 0.04 s to 10 s

	tests := []struct {
		name          string
		t1, t2        float64
		targetPeriods []float64
		want1, want2  float64
		wantFF1       float64
	}{
		{"zero means whole target", 0, 0, target, 0.05, 3.0, 0.1},
		{"inside is kept", 0.1, 2.0, target, 0.1, 2.0, 0.1},
		{"below target start", 0.01, 2.0, target, 0.05, 2.0, 0.1},
		{"above target end", 0.1, 8.0, target, 0.1, 3.0, 0.1},
		{"below nyquist", 0.001, 2.0, []float64{0.0, 20}, 0.04, 2.0, 0.1},
		{"beyond grid lowers ff1", 0.1, 15, []float64{0.0, 20}, 0.1, 15, 1.0 / 15},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t1, t2, f1 := ClampPeriodRange(tt.t1, tt.t2, tt.targetPeriods, ff1, ff2)
			assert.InDelta(t, tt.want1, t1, 1e-12)
			assert.InDelta(t, tt.want2, t2, 1e-12)
			assert.InDelta(t, tt.wantFF1, f1, 1e-12)
		})
	}
}

func TestNewPeriodGrid(t *testing.T) {
	ff1, ff2 := FrequencyBounds(1000, 0.02)
	assert.Equal(t, 0.1, ff1)
	assert.Equal(t, 25.0, ff2)

	grid, err := NewPeriodGrid(ff1, ff2, 100, math.Pi)
	require.NoError(t, err)
	require.Len(t, grid.Periods, 100)

	assert.True(t, common.StrictlyIncreasing(grid.Periods))
	assert.True(t, common.StrictlyIncreasing(grid.Scales))
	assert.InDelta(t, 0.04, grid.Periods[0], 1e-12)
	assert.InDelta(t, 10.0, grid.Periods[99], 1e-9)
	for i, T := range grid.Periods {
		// with ω = π the scale is half the period
		assert.InDelta(t, T/2, grid.Scales[i], 1e-12)
	}

	// FF1 stays at 0.1 Hz unless the record is longer than 40 s
	ff1, _ = FrequencyBounds(100, 0.01)
	assert.Equal(t, 0.1, ff1)
	ff1, _ = FrequencyBounds(10000, 0.01)
	assert.InDelta(t, 0.04, ff1, 1e-12)

	_, err = NewPeriodGrid(30, 25, 10, math.Pi)
	assert.ErrorIs(t, err, common.ErrInvalidInput)
}

func TestTargetSpectrumValidate(t *testing.T) {
	assert.NoError(t, TargetSpectrum{Periods: []float64{0, 1}, Ordinates: []float64{0.3, 0.5}}.Validate())

	tests := []struct {
		name   string
		target TargetSpectrum
	}{
		{"length mismatch", TargetSpectrum{Periods: []float64{0, 1}, Ordinates: []float64{1}}},
		{"single point", TargetSpectrum{Periods: []float64{1}, Ordinates: []float64{1}}},
		{"unsorted", TargetSpectrum{Periods: []float64{1, 0.5}, Ordinates: []float64{1, 1}}},
		{"negative period", TargetSpectrum{Periods: []float64{-1, 1}, Ordinates: []float64{1, 1}}},
		{"negative ordinate", TargetSpectrum{Periods: []float64{0, 1}, Ordinates: []float64{1, -1}}},
		{"nan ordinate", TargetSpectrum{Periods: []float64{0, 1}, Ordinates: []float64{math.NaN(), 1}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.target.Validate(), common.ErrInvalidInput)
		})
	}
}

func TestMatchRejectsInvalidInput(t *testing.T) {
	matcher := NewMatcher(nil)
	signal := broadband()
	target, _ := ownTarget(t, signal, 1.2)
	ctx := context.Background()

	withOpts := func(modify func(o *Options)) Options {
		o := DefaultOptions()
		modify(&o)
		return o
	}

	_, err := matcher.Match(ctx, signal, testRate, target, withOpts(func(o *Options) { o.DampingRatio = 0.02 }))
	assert.ErrorIs(t, err, spectral.ErrUnsupportedDamping)

	zeroInRange := TargetSpectrum{Periods: []float64{0.05, 1, 3}, Ordinates: []float64{1, 0, 0}}

	tests := []struct {
		name   string
		signal []float64
		rate   float64
		target TargetSpectrum
		opts   Options
	}{
		{"empty signal", nil, testRate, target, DefaultOptions()},
		{"nan sample", []float64{0, math.NaN(), 1}, testRate, target, DefaultOptions()},
		{"zero sampling rate", signal, 0, target, DefaultOptions()},
		{"unsorted target", signal, testRate, TargetSpectrum{Periods: []float64{1, 0.5}, Ordinates: []float64{1, 1}}, DefaultOptions()},
		{"scale count", signal, testRate, target, withOpts(func(o *Options) { o.ScaleCount = 1 })},
		{"negative budget", signal, testRate, target, withOpts(func(o *Options) { o.IterationBudget = -1 })},
		{"zero tolerance", signal, testRate, target, withOpts(func(o *Options) { o.Tolerance = 0 })},
		{"empty range", signal, testRate, target, withOpts(func(o *Options) { o.PeriodRangeLow, o.PeriodRangeHigh = 12, 14 })},
		{"zero target in range", signal, testRate, zeroInRange, DefaultOptions()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := matcher.Match(ctx, tt.signal, tt.rate, tt.target, tt.opts)
			assert.ErrorIs(t, err, common.ErrInvalidInput)
			assert.Nil(t, res)
		})
	}
}

func TestMatchZeroBudgetReturnsOriginal(t *testing.T) {
	signal := broadband()
	target, psa := ownTarget(t, signal, 2)

	opts := DefaultOptions()
	opts.IterationBudget = 0
	opts.PeriodRangeLow, opts.PeriodRangeHigh = 0.1, 2.0

	res, err := NewMatcher(nil).Match(context.Background(), signal, testRate, target, opts)
	require.NoError(t, err)

	assert.Equal(t, signal, res.Candidate)
	assert.Equal(t, psa, res.Spectrum.PSA)
	assert.Equal(t, res.OriginalSpectrum.PSA, res.Spectrum.PSA)
	assert.InDelta(t, 0.5, res.RMSMisfit, 1e-12)
	assert.InDelta(t, 0.5, res.MeanMisfit, 1e-12)
	assert.Equal(t, 0, res.Iterations)
	assert.Equal(t, IterationLimitReached, res.Status)
	assert.False(t, res.Converged)
	assert.Len(t, res.History, 1)

	for i, T := range res.Grid.Periods {
		if T < 0.1 || T > 2.0 {
			assert.True(t, math.IsNaN(res.Misfit[i]), "T=%g", T)
		} else {
			assert.InDelta(t, -0.5, res.Misfit[i], 1e-12, "T=%g", T)
		}
	}

	vel, err := common.CumulativeTrapezoid(res.Time, signal)
	require.NoError(t, err)
	assert.Equal(t, vel, res.Velocity)
}

func TestMatchScaleSeed(t *testing.T) {
	signal := broadband()
	target, _ := ownTarget(t, signal, 1.3)

	opts := DefaultOptions()
	opts.ScaleSeed = true
	opts.BaselineCorrect = false
	opts.PeriodRangeLow, opts.PeriodRangeHigh = 0.1, 2.0

	res, err := NewMatcher(nil).Match(context.Background(), signal, testRate, target, opts)
	require.NoError(t, err)

	assert.InDelta(t, 1.3, res.SeedScaleFactor, 1e-9)
	assert.Equal(t, Converged, res.Status)
	assert.Equal(t, 0, res.Iterations)
	assert.Less(t, res.RMSMisfit, 1e-9)
	assert.InDelta(t, 1.3*common.MaxAbs(signal), common.MaxAbs(res.Candidate), 1e-9)
}

func TestMatchConvergesOnBroadbandRecord(t *testing.T) {
	signal := broadband()
	target, _ := ownTarget(t, signal, 1.3)

	opts := DefaultOptions()
	opts.IterationBudget = 30
	opts.BaselineCorrect = false
	opts.PeriodRangeLow, opts.PeriodRangeHigh = 0.1, 2.0

	res, err := NewMatcher(nil).Match(context.Background(), signal, testRate, target, opts)
	require.NoError(t, err)

	assert.Equal(t, Converged, res.Status)
	assert.True(t, res.Converged)
	assert.Less(t, res.RMSMisfit, opts.Tolerance)
	assert.LessOrEqual(t, res.Iterations, opts.IterationBudget)
	assert.Greater(t, res.Correlation, 0.9)
	assert.InDelta(t, 0.1, res.ActiveLow, 1e-12)
	assert.InDelta(t, 2.0, res.ActiveHigh, 1e-12)

	// no runaway amplification
	assert.Less(t, common.MaxAbs(res.Candidate), 2*common.MaxAbs(signal))
	assert.Len(t, res.Candidate, len(signal))
	assert.Len(t, res.History, res.Iterations+1)
	assert.Less(t, res.RMSMisfit, res.History[0])
}

func TestMatchSinusoidDefaultOptions(t *testing.T) {
	dt := 1 / testRate
	signal := make([]float64, testSamples)
	for i := range signal {
		signal[i] = math.Sin(2 * math.Pi * float64(i) * dt / 0.5)
	}

	own, err := spectral.NewResponseSpectrumSolver(nil).Compute([]float64{0.5}, signal, 0.05, dt)
	require.NoError(t, err)
	plateau := own.PSA[0]
	target := TargetSpectrum{Periods: []float64{0.1, 2.0}, Ordinates: []float64{plateau, plateau}}

	for _, correct := range []bool{true, false} {
		opts := DefaultOptions()
		opts.BaselineCorrect = correct
		opts.PeriodRangeLow, opts.PeriodRangeHigh = 0.1, 2.0

		res, err := NewMatcher(nil).Match(context.Background(), signal, testRate, target, opts)
		require.NoError(t, err)

		assert.Equal(t, Converged, res.Status, "baseline correction %v", correct)
		assert.True(t, res.Converged)
		assert.Less(t, res.RMSMisfit, opts.Tolerance)
		assert.LessOrEqual(t, res.Iterations, opts.IterationBudget)
		assert.Equal(t, res.Iterations, res.BestIteration)

		if correct {
			// corrections stay out of the rescaled details
			for i := 1; i < len(res.History); i++ {
				assert.Less(t, res.History[i], res.History[i-1], "iteration %d", i)
			}
		}

		// a flat plateau down to 0.1 s bounds the peak ground acceleration
		assert.Less(t, common.MaxAbs(res.Candidate), plateau)
		assert.Greater(t, common.MaxAbs(res.Candidate), common.MaxAbs(signal))
	}
}

func TestMatchStatusFollowsFinalCorrection(t *testing.T) {
	signal := broadband()
	target, _ := ownTarget(t, signal, 1.3)

	// the scaled seed matches exactly; its baseline correction does not
	opts := DefaultOptions()
	opts.ScaleSeed = true
	opts.Tolerance = 1e-9
	opts.PeriodRangeLow, opts.PeriodRangeHigh = 0.1, 2.0

	res, err := NewMatcher(nil).Match(context.Background(), signal, testRate, target, opts)
	require.NoError(t, err)

	assert.Equal(t, 0, res.Iterations)
	assert.Equal(t, 0, res.BestIteration)
	require.Len(t, res.History, 2)
	assert.Less(t, res.History[0], opts.Tolerance)
	assert.Equal(t, res.RMSMisfit, res.History[1])
	assert.GreaterOrEqual(t, res.RMSMisfit, opts.Tolerance)
	assert.Equal(t, IterationLimitReached, res.Status)
	assert.False(t, res.Converged)
}

func TestMatchBaselineCorrectedIntegrals(t *testing.T) {
	signal := broadband()
	target, _ := ownTarget(t, signal, 1.3)

	opts := DefaultOptions()
	opts.IterationBudget = 3
	opts.PeriodRangeLow, opts.PeriodRangeHigh = 0.1, 2.0

	res, err := NewMatcher(nil).Match(context.Background(), signal, testRate, target, opts)
	require.NoError(t, err)
	require.Len(t, res.Velocity, len(res.Candidate))

	// velocity and displacement belong to the returned candidate
	vel, err := common.CumulativeTrapezoid(res.Time, res.Candidate)
	require.NoError(t, err)
	disp, err := common.CumulativeTrapezoid(res.Time, vel)
	require.NoError(t, err)
	assert.InDeltaSlice(t, vel, res.Velocity, 1e-9)
	assert.InDeltaSlice(t, disp, res.Displacement, 1e-9)
	assert.True(t, common.AllFinite(res.Candidate))
}

func TestMatchReportsProgress(t *testing.T) {
	signal := broadband()
	target, _ := ownTarget(t, signal, 1.5)

	var updates []Progress
	opts := DefaultOptions()
	opts.IterationBudget = 3
	opts.Tolerance = 1e-9
	opts.BaselineCorrect = false
	opts.Progress = func(p Progress) { updates = append(updates, p) }

	res, err := NewMatcher(nil).Match(context.Background(), signal, testRate, target, opts)
	require.NoError(t, err)
	assert.Equal(t, IterationLimitReached, res.Status)
	assert.Equal(t, 3, res.Iterations)

	require.Len(t, updates, 4)
	for i, p := range updates {
		assert.Equal(t, i, p.Iteration)
		assert.Equal(t, 3, p.Budget)
		assert.InDelta(t, float64(i)/3, p.Fraction, 1e-12)
		assert.Equal(t, Evaluating, p.State)
		assert.Equal(t, res.History[i], p.RMSMisfit)
	}
}

func TestMatchCancellation(t *testing.T) {
	signal := broadband()
	target, _ := ownTarget(t, signal, 1.5)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	opts := DefaultOptions()
	opts.IterationBudget = 10
	opts.Tolerance = 1e-9
	opts.BaselineCorrect = false
	opts.Progress = func(p Progress) {
		if p.Iteration == 1 {
			cancel()
		}
	}

	res, err := NewMatcher(nil).Match(ctx, signal, testRate, target, opts)
	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, res)

	assert.Equal(t, Cancelled, res.Status)
	assert.Equal(t, 1, res.Iterations)
	assert.Len(t, res.History, 2)
	assert.Len(t, res.Candidate, len(signal))
	assert.Len(t, res.Velocity, len(signal))

	// already cancelled: nothing is computed
	res, err = NewMatcher(nil).Match(ctx, signal, testRate, target, opts)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, res)
}

func TestStateNames(t *testing.T) {
	assert.Equal(t, "iteration_limit_reached", IterationLimitReached.String())
	text, err := Converged.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "converged", string(text))
	assert.True(t, Cancelled.Terminal())
	assert.False(t, Rescaling.Terminal())
}

func TestNewMatcherCopiesConfig(t *testing.T) {
	config := &Config{}
	m := NewMatcher(config)

	assert.Nil(t, config.Kernel)
	assert.Nil(t, config.Solver)
	assert.Nil(t, config.Baseline)
	assert.NotNil(t, m.config.Kernel)
	assert.NotNil(t, m.config.Solver)
	assert.NotNil(t, m.config.Baseline)
}
