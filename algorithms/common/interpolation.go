package common

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/interp"
)

// LinearInterpolator evaluates a piecewise linear fit of (x, y) samples.
// Outside [x0, xn] it returns NaN instead of holding the end values, so callers
// can tell where the data actually defines the function.
type LinearInterpolator struct {
	fit  interp.PiecewiseLinear
	xMin float64
	xMax float64
}

// NewLinearInterpolator fits xs/ys; xs must be strictly increasing with at least two points
func NewLinearInterpolator(xs, ys []float64) (*LinearInterpolator, error) {
	if len(xs) != len(ys) {
		return nil, fmt.Errorf("%w: %d abscissae for %d ordinates", ErrInvalidInput, len(xs), len(ys))
	}
	if len(xs) < 2 {
		return nil, fmt.Errorf("%w: interpolation needs at least 2 points", ErrInvalidInput)
	}
	if !StrictlyIncreasing(xs) {
		return nil, fmt.Errorf("%w: abscissae must be strictly increasing", ErrInvalidInput)
	}

	li := &LinearInterpolator{xMin: xs[0], xMax: xs[len(xs)-1]}
	if err := li.fit.Fit(xs, ys); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return li, nil
}

// At returns the interpolated value at x, NaN outside the fitted range
func (li *LinearInterpolator) At(x float64) float64 {
	if x < li.xMin || x > li.xMax || math.IsNaN(x) {
		return math.NaN()
	}
	return li.fit.Predict(x)
}

// Resample evaluates the interpolator at every point of xs
func (li *LinearInterpolator) Resample(xs []float64) []float64 {
	out := make([]float64, len(xs))
	for i, x := range xs {
		out[i] = li.At(x)
	}
	return out
}
