package wavelet

import (
	"errors"
	"fmt"
	"math"
	"runtime"
	"sync"

	"github.com/RyanBlaney/sonido-sismo/algorithms/common"
	"github.com/RyanBlaney/sonido-sismo/logging"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/integrate"
	"gonum.org/v1/gonum/mat"
)

// ErrDimensionMismatch is returned when time, signal, scale and coefficient
// dimensions disagree
var ErrDimensionMismatch = errors.New("dimension mismatch")

// Coefficients holds a continuous wavelet transform: one row per scale, one
// column per sample
type Coefficients struct {
	Scales       []float64  `json:"scales"`
	SamplingRate float64    `json:"sampling_rate"`
	Matrix       *mat.Dense `json:"-"`
}

// Rows returns the number of scales
func (c *Coefficients) Rows() int {
	r, _ := c.Matrix.Dims()
	return r
}

// Columns returns the number of samples
func (c *Coefficients) Columns() int {
	_, n := c.Matrix.Dims()
	return n
}

// Row returns the coefficients of scale k. The slice aliases the matrix.
func (c *Coefficients) Row(k int) []float64 {
	return c.Matrix.RawRowView(k)
}

// Details holds the scale-indexed detail functions of a reconstruction.
// Summing them over the scale axis with the trapezoidal rule gives the
// reconstructed signal.
type Details struct {
	Scales []float64  `json:"scales"`
	Matrix *mat.Dense `json:"-"`

	// Reconstructed is the signal rebuilt from the unmodified details
	Reconstructed []float64 `json:"reconstructed"`

	// Normalization is max|signal| / max|raw reconstruction|, already applied
	// to Matrix and Reconstructed
	Normalization float64 `json:"normalization"`
}

// Row returns the detail function of scale k. The slice aliases the matrix.
func (d *Details) Row(k int) []float64 {
	return d.Matrix.RawRowView(k)
}

// ScaleRow multiplies the detail function of scale k by factor
func (d *Details) ScaleRow(k int, factor float64) {
	floats.Scale(factor, d.Matrix.RawRowView(k))
}

// Synthesize integrates the current detail rows over the scale axis.
// No renormalisation is applied, so rows changed with ScaleRow change the
// amplitude of the result.
func (d *Details) Synthesize() []float64 {
	rows, n := d.Matrix.Dims()
	out := make([]float64, n)
	column := make([]float64, rows)
	for i := range n {
		mat.Col(column, i, d.Matrix)
		out[i] = integrate.Trapezoidal(d.Scales, column)
	}
	return out
}

// Kernel computes forward transforms and detail reconstructions with the
// Suárez–Montejo wavelet
type Kernel struct {
	config *KernelConfig
	logger logging.Logger
}

// NewKernel creates a kernel; a nil config uses DefaultKernelConfig
func NewKernel(config *KernelConfig) *Kernel {
	if config == nil {
		config = DefaultKernelConfig()
	}

	return &Kernel{
		config: config,
		logger: logging.WithFields(logging.Fields{
			"component": "wavelet_kernel",
		}),
	}
}

// Config returns the kernel configuration
func (k *Kernel) Config() *KernelConfig {
	return k.config
}

// ForwardTransform computes the CWT of signal at the given strictly increasing
// scales. Row k is the same-length convolution of the signal with the scale-k
// wavelet centred on the record's median time and weighted by 1/√s_k.
func (k *Kernel) ForwardTransform(signal []float64, samplingRate float64, scales []float64) (*Coefficients, error) {
	if err := validateTransformInput(signal, samplingRate, scales); err != nil {
		return nil, err
	}

	n := len(signal)
	dt := 1.0 / samplingRate
	center := medianTime(n, dt)

	logger := k.logger.WithFields(logging.Fields{
		"function": "ForwardTransform",
		"samples":  n,
		"scales":   len(scales),
	})
	logger.Debug("Starting forward wavelet transform")

	matrix := mat.NewDense(len(scales), n, nil)

	// the signal spectrum is shared read-only across workers
	signalSpec := newSameConvolver(n).spectrum(nil, signal)

	k.forEachRow(len(scales), n, func(conv *sameConvolver, wv []float64, row int) {
		s := scales[row]
		sampleWavelet(wv, dt, center, s, k.config.Omega, k.config.Zeta, 1/math.Sqrt(s))
		conv.convolveSpectrum(matrix.RawRowView(row), signalSpec, wv)
	})

	logger.Debug("Forward wavelet transform completed")

	return &Coefficients{
		Scales:       append([]float64(nil), scales...),
		SamplingRate: samplingRate,
		Matrix:       matrix,
	}, nil
}

// ReconstructDetails rebuilds the detail functions of coefs on the given time
// axis. Each detail is -conv(c_k, ψ_k)/s_k^(5/2); the details and their scale
// integral are rescaled so that the reconstruction peak matches max|signal|.
func (k *Kernel) ReconstructDetails(time, signal []float64, coefs *Coefficients) (*Details, error) {
	if coefs == nil || coefs.Matrix == nil {
		return nil, fmt.Errorf("%w: no coefficients", common.ErrInvalidInput)
	}

	rows, cols := coefs.Matrix.Dims()
	switch {
	case len(time) != len(signal):
		return nil, fmt.Errorf("%w: time has %d samples, signal has %d", ErrDimensionMismatch, len(time), len(signal))
	case cols != len(signal):
		return nil, fmt.Errorf("%w: coefficients have %d columns, signal has %d samples", ErrDimensionMismatch, cols, len(signal))
	case rows != len(coefs.Scales):
		return nil, fmt.Errorf("%w: coefficients have %d rows for %d scales", ErrDimensionMismatch, rows, len(coefs.Scales))
	}
	if len(time) < 2 {
		return nil, fmt.Errorf("%w: need at least 2 samples", common.ErrInvalidInput)
	}
	if rows < 2 || !common.StrictlyIncreasing(coefs.Scales) {
		return nil, fmt.Errorf("%w: need at least 2 strictly increasing scales", common.ErrInvalidInput)
	}

	n := len(signal)
	dt := time[1] - time[0]
	center := common.Median(time) - time[0]
	scales := coefs.Scales

	logger := k.logger.WithFields(logging.Fields{
		"function": "ReconstructDetails",
		"samples":  n,
		"scales":   rows,
	})
	logger.Debug("Reconstructing wavelet details")

	matrix := mat.NewDense(rows, n, nil)

	k.forEachRow(rows, n, func(conv *sameConvolver, wv []float64, row int) {
		s := scales[row]
		sampleWavelet(wv, dt, center, s, k.config.Omega, k.config.Zeta, 1)

		dst := matrix.RawRowView(row)
		conv.convolve(dst, coefs.Matrix.RawRowView(row), wv)
		floats.Scale(-1/math.Pow(s, 2.5), dst)
	})

	details := &Details{
		Scales: append([]float64(nil), scales...),
		Matrix: matrix,
	}

	raw := details.Synthesize()
	peakSignal := common.MaxAbs(signal)
	peakRaw := common.MaxAbs(raw)

	switch {
	case peakSignal == 0:
		details.Normalization = 0
	case peakRaw == 0 || math.IsNaN(peakRaw) || math.IsInf(peakRaw, 0):
		err := fmt.Errorf("%w: reconstruction has no usable amplitude", common.ErrInvalidInput)
		logger.Error(err, "Wavelet reconstruction failed")
		return nil, err
	default:
		details.Normalization = peakSignal / peakRaw
	}

	matrix.Scale(details.Normalization, matrix)
	floats.Scale(details.Normalization, raw)
	details.Reconstructed = raw

	logger.Debug("Wavelet details reconstructed", logging.Fields{
		"normalization": details.Normalization,
	})

	return details, nil
}

// forEachRow runs fn for every row index on a bounded pool of workers. Each
// worker owns a convolver and a wavelet buffer of length n.
func (k *Kernel) forEachRow(rows, n int, fn func(conv *sameConvolver, wv []float64, row int)) {
	numWorkers := k.workerCount(rows)
	jobs := make(chan int, rows)

	var wg sync.WaitGroup
	for range numWorkers {
		wg.Add(1)
		go func() {
			defer wg.Done()

			conv := newSameConvolver(n)
			wv := make([]float64, n)
			for row := range jobs {
				fn(conv, wv, row)
			}
		}()
	}

	for row := range rows {
		jobs <- row
	}
	close(jobs)
	wg.Wait()
}

func (k *Kernel) workerCount(jobs int) int {
	workers := k.config.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return max(1, min(workers, jobs))
}

// medianTime is the median of the uniform axis 0, dt, ..., (n-1)dt
func medianTime(n int, dt float64) float64 {
	return 0.5 * float64(n-1) * dt
}

func validateTransformInput(signal []float64, samplingRate float64, scales []float64) error {
	if len(signal) == 0 {
		return fmt.Errorf("%w: empty signal", common.ErrInvalidInput)
	}
	if !(samplingRate > 0) || math.IsInf(samplingRate, 0) {
		return fmt.Errorf("%w: sampling rate must be positive, got %g", common.ErrInvalidInput, samplingRate)
	}
	if !common.AllFinite(signal) {
		return fmt.Errorf("%w: signal contains non-finite samples", common.ErrInvalidInput)
	}
	if len(scales) < 2 {
		return fmt.Errorf("%w: need at least 2 scales, got %d", common.ErrInvalidInput, len(scales))
	}
	if !(scales[0] > 0) || !common.StrictlyIncreasing(scales) || !common.AllFinite(scales) {
		return fmt.Errorf("%w: scales must be positive and strictly increasing", common.ErrInvalidInput)
	}
	return nil
}
