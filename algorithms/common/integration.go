package common

import (
	"fmt"

	"gonum.org/v1/gonum/integrate"
)

// CumulativeTrapezoid integrates y over x with the trapezoidal rule and returns
// the running integral with a zero initial value, so len(out) == len(y).
func CumulativeTrapezoid(x, y []float64) ([]float64, error) {
	if len(x) != len(y) {
		return nil, fmt.Errorf("%w: x has %d samples, y has %d", ErrInvalidInput, len(x), len(y))
	}

	out := make([]float64, len(y))
	for i := 1; i < len(y); i++ {
		out[i] = out[i-1] + 0.5*(x[i]-x[i-1])*(y[i]+y[i-1])
	}
	return out, nil
}

// Trapezoid returns the trapezoidal integral of f sampled at the increasing points x
func Trapezoid(x, f []float64) (float64, error) {
	if len(x) != len(f) {
		return 0, fmt.Errorf("%w: x has %d samples, f has %d", ErrInvalidInput, len(x), len(f))
	}
	if len(x) < 2 {
		return 0, nil
	}
	if !StrictlyIncreasing(x) {
		return 0, fmt.Errorf("%w: integration abscissae must be strictly increasing", ErrInvalidInput)
	}
	return integrate.Trapezoidal(x, f), nil
}
