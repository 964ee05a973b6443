// Package windowing provides the cosine end taper applied to records before
// matching.
package windowing

import (
	"fmt"
	"math"

	"github.com/RyanBlaney/sonido-sismo/algorithms/common"
)

// Tukey is a tapered cosine window: flat in the middle, with half-cosine
// ramps covering alpha/2 of the samples at each end
type Tukey struct {
	size         int
	alpha        float64
	coefficients []float64
}

// NewTukey creates a Tukey window of size samples. alpha is the tapered
// fraction in [0, 1]; 0 is rectangular and 1 is a Hann window.
func NewTukey(size int, alpha float64) (*Tukey, error) {
	if size < 2 {
		return nil, fmt.Errorf("%w: window size %d", common.ErrInvalidInput, size)
	}
	if math.IsNaN(alpha) || alpha < 0 || alpha > 1 {
		return nil, fmt.Errorf("%w: taper fraction %g outside [0, 1]", common.ErrInvalidInput, alpha)
	}

	t := &Tukey{size: size, alpha: alpha}
	t.generate()
	return t, nil
}

func (t *Tukey) generate() {
	t.coefficients = make([]float64, t.size)

	n := float64(t.size - 1)
	edge := t.alpha * n / 2
	for i := range t.coefficients {
		x := float64(i)
		switch {
		case x < edge:
			t.coefficients[i] = 0.5 * (1 - math.Cos(math.Pi*x/edge))
		case x > n-edge:
			t.coefficients[i] = 0.5 * (1 - math.Cos(math.Pi*(n-x)/edge))
		default:
			t.coefficients[i] = 1
		}
	}
}

// ApplyInPlace multiplies signal by the window
func (t *Tukey) ApplyInPlace(signal []float64) error {
	if len(signal) != t.size {
		return fmt.Errorf("signal length (%d) doesn't match window size (%d)", len(signal), t.size)
	}

	for i := range signal {
		signal[i] *= t.coefficients[i]
	}
	return nil
}

// Coefficients returns a copy of the window coefficients
func (t *Tukey) Coefficients() []float64 {
	return append([]float64(nil), t.coefficients...)
}

// Size returns the window length
func (t *Tukey) Size() int {
	return t.size
}
