package wavelet

import (
	"github.com/RyanBlaney/sonido-sismo/algorithms/common"
	"gonum.org/v1/gonum/dsp/fourier"
)

// sameConvolver computes linear convolutions of two length-n sequences and
// returns the central n samples of the full result (numpy/scipy "same" mode).
//
// A gonum FFT plan keeps internal work buffers, so a sameConvolver must not be
// shared between goroutines; each worker builds its own.
type sameConvolver struct {
	n     int
	size  int
	start int
	plan  *fourier.FFT

	bufA  []float64
	bufB  []float64
	specB []complex128
	prod  []complex128
	out   []float64
}

func newSameConvolver(n int) *sameConvolver {
	// full convolution has 2n-1 samples; padding to at least that avoids wrap-around
	size := common.NextPowerOfTwo(2*n - 1)
	half := size/2 + 1

	return &sameConvolver{
		n:     n,
		size:  size,
		start: (n - 1) / 2,
		plan:  fourier.NewFFT(size),
		bufA:  make([]float64, size),
		bufB:  make([]float64, size),
		specB: make([]complex128, half),
		prod:  make([]complex128, half),
		out:   make([]float64, size),
	}
}

// spectrum returns the zero-padded transform of a, written into dst when it has
// the right length.
func (c *sameConvolver) spectrum(dst []complex128, a []float64) []complex128 {
	clear(c.bufA)
	copy(c.bufA, a)
	return c.plan.Coefficients(dst, c.bufA)
}

// convolve writes the same-mode convolution of a and b into dst
func (c *sameConvolver) convolve(dst, a, b []float64) {
	specA := c.spectrum(c.prod, a)
	c.convolveSpectrum(dst, specA, b)
}

// convolveSpectrum is convolve with a precomputed spectrum (from spectrum) for
// the first operand. specA is not modified unless it aliases the internal
// product buffer.
func (c *sameConvolver) convolveSpectrum(dst []float64, specA []complex128, b []float64) {
	clear(c.bufB)
	copy(c.bufB, b)
	c.specB = c.plan.Coefficients(c.specB, c.bufB)

	for j := range c.prod {
		c.prod[j] = specA[j] * c.specB[j]
	}

	// gonum's inverse is unnormalised
	c.out = c.plan.Sequence(c.out, c.prod)
	scale := 1.0 / float64(c.size)
	for i := range dst[:c.n] {
		dst[i] = c.out[c.start+i] * scale
	}
}
