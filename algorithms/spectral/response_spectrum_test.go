package spectral

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RyanBlaney/sonido-sismo/algorithms/common"
)

// sineBurst returns n samples of a Hann-windowed sine that occupies the middle
// half of the record, quiet at both ends.
func sineBurst(n int, dt, freq float64) []float64 {
	out := make([]float64, n)
	start, stop := n/4, 3*n/4
	for i := start; i < stop; i++ {
		w := 0.5 * (1 - math.Cos(2*math.Pi*float64(i-start)/float64(stop-start)))
		out[i] = w * math.Sin(2*math.Pi*freq*float64(i)*dt)
	}
	return out
}

func linspace(a, b float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = a + (b-a)*float64(i)/float64(n-1)
	}
	return out
}

func TestComputeRejectsLowDamping(t *testing.T) {
	solver := NewResponseSpectrumSolver(nil)

	res, err := solver.Compute([]float64{0.5, 1.0}, sineBurst(500, 0.01, 2), 0.02, 0.01)
	require.ErrorIs(t, err, ErrUnsupportedDamping)
	assert.Nil(t, res)

	_, err = solver.Compute([]float64{0.5}, sineBurst(500, 0.01, 2), math.NaN(), 0.01)
	assert.ErrorIs(t, err, ErrUnsupportedDamping)
}

func TestComputeRejectsPeriodBelowNyquist(t *testing.T) {
	solver := NewResponseSpectrumSolver(nil)
	dt := 0.01

	_, err := solver.Compute([]float64{0.015, 0.5}, sineBurst(500, dt, 2), 0.05, dt)
	assert.ErrorIs(t, err, ErrPeriodBelowNyquist)

	// exactly 2*dt is the Nyquist period and is accepted
	_, err = solver.Compute([]float64{1 / (1 / (2 * dt)), 0.5}, sineBurst(500, dt, 2), 0.05, dt)
	assert.NoError(t, err)
}

func TestComputeRejectsInvalidInput(t *testing.T) {
	solver := NewResponseSpectrumSolver(nil)
	signal := sineBurst(200, 0.01, 2)

	tests := []struct {
		name    string
		periods []float64
		signal  []float64
		dt      float64
	}{
		{"empty signal", []float64{0.5}, nil, 0.01},
		{"no periods", nil, signal, 0.01},
		{"zero dt", []float64{0.5}, signal, 0},
		{"negative period", []float64{-0.5}, signal, 0.01},
		{"nan sample", []float64{0.5}, []float64{0, math.NaN(), 0}, 0.01},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := solver.Compute(tt.periods, tt.signal, 0.05, tt.dt)
			assert.ErrorIs(t, err, common.ErrInvalidInput)
		})
	}
}

func TestPseudoQuantitiesDerivedFromSD(t *testing.T) {
	solver := NewResponseSpectrumSolver(nil)
	dt := 0.01
	periods := linspace(0.05, 2.0, 25)

	res, err := solver.Compute(periods, sineBurst(1000, dt, 2), 0.05, dt)
	require.NoError(t, err)
	require.Len(t, res.SD, len(periods))

	for i, T := range periods {
		w := 2 * math.Pi / T
		assert.InDelta(t, w*res.SD[i], res.PSV[i], 1e-12*math.Max(1, res.PSV[i]))
		assert.InDelta(t, w*w*res.SD[i], res.PSA[i], 1e-12*math.Max(1, res.PSA[i]))
		assert.Greater(t, res.SD[i], 0.0)
		assert.Greater(t, res.SA[i], 0.0)
	}

	// resonance: the 2 Hz burst drives the 0.5 s oscillator hardest in the
	// neighbourhood of its own period
	peak := 0
	for i := range res.PSA {
		if res.PSA[i] > res.PSA[peak] {
			peak = i
		}
	}
	assert.InDelta(t, 0.5, periods[peak], 0.1)
}

func TestComputeInvariantToTrailingZerosWithinPadding(t *testing.T) {
	solver := NewResponseSpectrumSolver(nil)
	dt := 0.01
	periods := linspace(0.1, 1.0, 10)

	signal := sineBurst(1000, dt, 3)
	extended := append(append([]float64(nil), signal...), make([]float64, 40)...)

	a, err := solver.Compute(periods, signal, 0.05, dt)
	require.NoError(t, err)
	b, err := solver.Compute(periods, extended, 0.05, dt)
	require.NoError(t, err)

	require.Equal(t, a.FFTSize, b.FFTSize)
	assert.Equal(t, a.SD, b.SD)
	assert.Equal(t, a.PSA, b.PSA)
	assert.Equal(t, a.SA, b.SA)
}

func TestComputeStableUnderLongerPadding(t *testing.T) {
	solver := NewResponseSpectrumSolver(nil)
	dt := 0.01
	periods := linspace(0.1, 1.0, 10)

	signal := sineBurst(1000, dt, 3)
	extended := append(append([]float64(nil), signal...), make([]float64, 5000)...)

	a, err := solver.Compute(periods, signal, 0.05, dt)
	require.NoError(t, err)
	b, err := solver.Compute(periods, extended, 0.05, dt)
	require.NoError(t, err)

	require.NotEqual(t, a.FFTSize, b.FFTSize)
	for i := range periods {
		assert.InEpsilon(t, a.SD[i], b.SD[i], 1e-2, "period %g", periods[i])
	}
}

func TestLongPeriodApproachesPeakGroundDisplacement(t *testing.T) {
	solver := NewResponseSpectrumSolver(nil)
	dt := 0.01
	n := 1001

	// one full cycle of 1 Hz acceleration between 1 s and 2 s: the ground
	// velocity returns to zero and the ground displacement settles at 1/(2π)
	signal := make([]float64, n)
	for i := 100; i <= 200; i++ {
		signal[i] = math.Sin(2 * math.Pi * float64(i-100) * dt)
	}
	tm := make([]float64, n)
	for i := range tm {
		tm[i] = float64(i) * dt
	}
	vel, err := common.CumulativeTrapezoid(tm, signal)
	require.NoError(t, err)
	disp, err := common.CumulativeTrapezoid(tm, vel)
	require.NoError(t, err)
	pgd := common.MaxAbs(disp)
	require.InDelta(t, 1/(2*math.Pi), pgd, 5e-3)

	res, err := solver.Compute([]float64{20}, signal, 0.05, dt)
	require.NoError(t, err)
	assert.InEpsilon(t, pgd, res.SD[0], 0.15)
}

func TestComputeIndependentOfWorkerCount(t *testing.T) {
	dt := 0.01
	periods := linspace(0.05, 1.5, 16)
	signal := sineBurst(800, dt, 4)

	serial := NewResponseSpectrumSolver(&SolverConfig{Workers: 1})
	parallel := NewResponseSpectrumSolver(&SolverConfig{Workers: 4})

	a, err := serial.Compute(periods, signal, 0.05, dt)
	require.NoError(t, err)
	b, err := parallel.Compute(periods, signal, 0.05, dt)
	require.NoError(t, err)

	assert.Equal(t, a.SD, b.SD)
	assert.Equal(t, a.SV, b.SV)
	assert.Equal(t, a.SA, b.SA)
}

func TestNewResponseSpectrumSolverCopiesConfig(t *testing.T) {
	config := &SolverConfig{Workers: 2}
	solver := NewResponseSpectrumSolver(config)

	assert.Equal(t, 0.0, config.PaddingPeriods)
	assert.Equal(t, 10.0, solver.config.PaddingPeriods)

	config.Workers = 7
	assert.Equal(t, 2, solver.config.Workers)
}
