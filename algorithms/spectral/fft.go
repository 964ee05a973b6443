package spectral

import (
	"math"

	"github.com/mjibson/go-dsp/fft"
)

// FFT provides Fast Fourier Transform functionality backed by mjibson/go-dsp.
// go-dsp caches twiddle factors behind its own lock, so one FFT value can be
// shared by concurrent workers.
type FFT struct{}

// NewFFT creates a new FFT calculator
func NewFFT() *FFT {
	return &FFT{}
}

// Compute computes the forward transform of a real sequence
func (f *FFT) Compute(x []float64) []complex128 {
	if len(x) == 0 {
		return []complex128{}
	}

	return fft.FFTReal(x)
}

// PeakAbsReal returns max |Re(IFFT(x))| without keeping the real series around
func (f *FFT) PeakAbsReal(x []complex128) float64 {
	peak := 0.0
	for _, val := range fft.IFFT(x) {
		if a := math.Abs(real(val)); a > peak {
			peak = a
		}
	}
	return peak
}
