package spectral

import (
	"errors"
	"fmt"
	"math"
	"math/cmplx"
	"runtime"
	"sync"

	"github.com/RyanBlaney/sonido-sismo/algorithms/common"
	"github.com/RyanBlaney/sonido-sismo/logging"
)

// MinDampingRatio is the lowest damping the frequency-domain method accepts.
// Below it the transfer functions are too sharp near resonance for the FFT grid.
const MinDampingRatio = 0.04

var (
	// ErrUnsupportedDamping is returned for damping ratios below MinDampingRatio
	ErrUnsupportedDamping = errors.New("damping ratio below frequency-domain stability floor")

	// ErrPeriodBelowNyquist is returned for periods shorter than two sample intervals
	ErrPeriodBelowNyquist = errors.New("period below Nyquist limit")
)

// ResponseSpectrum holds peak linear elastic responses indexed by period.
// SD, PSV and PSA are the reported spectrum; SV (relative velocity) and SA
// (absolute acceleration) come from their own transfer functions and are
// kept as diagnostics.
type ResponseSpectrum struct {
	Periods      []float64 `json:"periods"`
	SD           []float64 `json:"sd"`
	PSV          []float64 `json:"psv"`
	PSA          []float64 `json:"psa"`
	SV           []float64 `json:"sv"`
	SA           []float64 `json:"sa"`
	DampingRatio float64   `json:"damping_ratio"`
	FFTSize      int       `json:"fft_size"`
}

// SolverConfig configures the response spectrum solver
type SolverConfig struct {
	// Workers bounds the goroutines evaluating periods; <= 0 means runtime.NumCPU()
	Workers int `json:"workers"`

	// PaddingPeriods is how many multiples of the longest period are appended
	// as zeros before the FFT so the free-vibration tail does not wrap around
	PaddingPeriods float64 `json:"padding_periods"`
}

// DefaultSolverConfig returns the solver defaults
func DefaultSolverConfig() *SolverConfig {
	return &SolverConfig{
		Workers:        runtime.NumCPU(),
		PaddingPeriods: 10,
	}
}

// ResponseSpectrumSolver computes SDOF response spectra with frequency-domain
// transfer functions
type ResponseSpectrumSolver struct {
	config *SolverConfig
	fft    *FFT
	logger logging.Logger
}

// NewResponseSpectrumSolver creates a solver; a nil config uses the defaults
func NewResponseSpectrumSolver(config *SolverConfig) *ResponseSpectrumSolver {
	if config == nil {
		config = DefaultSolverConfig()
	}
	c := *config
	if c.PaddingPeriods <= 0 {
		c.PaddingPeriods = 10
	}

	return &ResponseSpectrumSolver{
		config: &c,
		fft:    NewFFT(),
		logger: logging.WithFields(logging.Fields{
			"component": "response_spectrum_solver",
		}),
	}
}

// Compute returns the response spectrum of signal (uniform step dt) at the
// given periods for the given damping ratio.
//
// All arguments are validated before any transform runs, so a rejected call
// does no work.
func (s *ResponseSpectrumSolver) Compute(periods, signal []float64, dampingRatio, dt float64) (*ResponseSpectrum, error) {
	if math.IsNaN(dampingRatio) || dampingRatio < MinDampingRatio {
		return nil, fmt.Errorf("%w: got %g, need >= %g", ErrUnsupportedDamping, dampingRatio, MinDampingRatio)
	}
	if err := validateSpectrumInput(periods, signal, dt); err != nil {
		return nil, err
	}

	logger := s.logger.WithFields(logging.Fields{
		"function": "Compute",
		"periods":  len(periods),
		"samples":  len(signal),
		"damping":  dampingRatio,
	})

	maxPeriod := periods[0]
	for _, T := range periods {
		maxPeriod = math.Max(maxPeriod, T)
	}

	npo := len(signal)
	padding := int(math.Ceil(s.config.PaddingPeriods * maxPeriod / dt))
	n := common.NextPowerOfTwo(npo + padding)
	if n < 2 {
		n = 2
	}

	padded := make([]float64, n)
	copy(padded, signal)
	spectrum := s.fft.Compute(padded)

	// angular frequencies of the non-negative half, DC through Nyquist
	half := n / 2
	ww := make([]float64, half+1)
	fres := 1.0 / (dt * float64(n))
	for j := range ww {
		ww[j] = 2 * math.Pi * fres * float64(j)
	}

	logger.Debug("Computing response spectrum", logging.Fields{
		"fft_size":   n,
		"max_period": maxPeriod,
	})

	result := &ResponseSpectrum{
		Periods:      append([]float64(nil), periods...),
		SD:           make([]float64, len(periods)),
		PSV:          make([]float64, len(periods)),
		PSA:          make([]float64, len(periods)),
		SV:           make([]float64, len(periods)),
		SA:           make([]float64, len(periods)),
		DampingRatio: dampingRatio,
		FFTSize:      n,
	}

	numWorkers := s.workerCount(len(periods))
	jobs := make(chan int, len(periods))

	var wg sync.WaitGroup
	for range numWorkers {
		wg.Add(1)
		go func() {
			defer wg.Done()

			// per-worker buffers, reused across periods
			cd := make([]complex128, n)
			cv := make([]complex128, n)
			ca := make([]complex128, n)

			for k := range jobs {
				T := periods[k]
				s.fillTransfers(cd, cv, ca, spectrum, ww, T, dampingRatio)

				sd := s.fft.PeakAbsReal(cd)
				result.SD[k] = sd
				result.SV[k] = s.fft.PeakAbsReal(cv)
				result.SA[k] = s.fft.PeakAbsReal(ca)

				w := 2 * math.Pi / T
				result.PSV[k] = w * sd
				result.PSA[k] = w * w * sd
			}
		}()
	}

	for k := range periods {
		jobs <- k
	}
	close(jobs)
	wg.Wait()

	logger.Debug("Response spectrum completed", logging.Fields{
		"workers_used": numWorkers,
	})

	return result, nil
}

// fillTransfers writes the transfer-weighted spectra for one oscillator.
// Only the non-negative half is evaluated; the negative half is the conjugate
// mirror and the Nyquist bin is forced real so the inverse is real-valued.
func (s *ResponseSpectrumSolver) fillTransfers(cd, cv, ca, spectrum []complex128, ww []float64, T, zeta float64) {
	const m = 1.0
	w := 2 * math.Pi / T
	k := m * w * w
	c := 2 * zeta * m * w

	n := len(spectrum)
	half := n / 2

	for j := 0; j <= half; j++ {
		wf := ww[j]
		den := complex(k-m*wf*wf, c*wf)
		hd := 1 / den
		hv := complex(0, wf) * hd
		ha := complex(k, c*wf) * hd

		if j == half {
			hd, hv, ha = complex(real(hd), 0), complex(real(hv), 0), complex(real(ha), 0)
		}

		cd[j] = hd * spectrum[j]
		cv[j] = hv * spectrum[j]
		ca[j] = ha * spectrum[j]

		if j > 0 && j < half {
			cd[n-j] = cmplx.Conj(hd) * spectrum[n-j]
			cv[n-j] = cmplx.Conj(hv) * spectrum[n-j]
			ca[n-j] = cmplx.Conj(ha) * spectrum[n-j]
		}
	}
}

func (s *ResponseSpectrumSolver) workerCount(jobs int) int {
	workers := s.config.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return max(1, min(workers, jobs))
}

func validateSpectrumInput(periods, signal []float64, dt float64) error {
	if len(signal) == 0 {
		return fmt.Errorf("%w: empty signal", common.ErrInvalidInput)
	}
	if len(periods) == 0 {
		return fmt.Errorf("%w: no periods requested", common.ErrInvalidInput)
	}
	if !(dt > 0) || math.IsInf(dt, 0) {
		return fmt.Errorf("%w: time step must be positive, got %g", common.ErrInvalidInput, dt)
	}
	if !common.AllFinite(signal) {
		return fmt.Errorf("%w: signal contains non-finite samples", common.ErrInvalidInput)
	}

	// relative slack so a period computed as 1/(1/(2dt)) is not rejected by rounding
	nyquist := 2 * dt * (1 - 1e-9)
	for _, T := range periods {
		if math.IsNaN(T) || math.IsInf(T, 0) || T <= 0 {
			return fmt.Errorf("%w: period %g is not a positive finite number", common.ErrInvalidInput, T)
		}
		if T < nyquist {
			return fmt.Errorf("%w: period %g s is shorter than 2*dt = %g s", ErrPeriodBelowNyquist, T, 2*dt)
		}
	}
	return nil
}
