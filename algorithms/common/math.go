package common

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Basic numeric helpers shared by the wavelet, spectral and matching code, using gonum where it helps

// Mean calculates the arithmetic mean of a slice using gonum
func Mean(data []float64) float64 {
	if len(data) == 0 {
		return 0.0
	}
	return stat.Mean(data, nil)
}

// RMS calculates root mean square
func RMS(data []float64) float64 {
	if len(data) == 0 {
		return 0.0
	}

	return floats.Norm(data, 2) / math.Sqrt(float64(len(data)))
}

// MaxAbs returns the largest absolute value in data (0 for an empty slice)
func MaxAbs(data []float64) float64 {
	if len(data) == 0 {
		return 0.0
	}
	return math.Max(math.Abs(floats.Max(data)), math.Abs(floats.Min(data)))
}

// Median returns the median of data without modifying it
func Median(data []float64) float64 {
	if len(data) == 0 {
		return 0.0
	}

	sorted := make([]float64, len(data))
	copy(sorted, data)
	sort.Float64s(sorted)

	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2.0
	}
	return sorted[mid]
}

// Correlation calculates Pearson correlation coefficient between two series
func Correlation(x, y []float64) float64 {
	if len(x) != len(y) || len(x) < 2 {
		return 0.0
	}

	r := stat.Correlation(x, y, nil)
	if math.IsNaN(r) {
		return 0.0
	}
	return r
}

// AllFinite reports whether every value is neither NaN nor ±Inf
func AllFinite(data []float64) bool {
	for _, v := range data {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Geomspace returns n values spaced evenly on a log scale from start to stop,
// both included. start and stop must be strictly positive.
func Geomspace(start, stop float64, n int) ([]float64, error) {
	if n < 2 {
		return nil, fmt.Errorf("%w: geomspace needs at least 2 points, got %d", ErrInvalidInput, n)
	}
	if !(start > 0) || !(stop > 0) {
		return nil, fmt.Errorf("%w: geomspace bounds must be positive (%g, %g)", ErrInvalidInput, start, stop)
	}

	out := make([]float64, n)
	floats.LogSpan(out, start, stop)
	// LogSpan goes through exp(log(x)); pin the ends so callers can compare
	// against the bounds exactly
	out[0] = start
	out[n-1] = stop
	return out, nil
}

// NextPowerOfTwo finds the next power of 2 >= n
func NextPowerOfTwo(n int) int {
	if n <= 0 {
		return 1
	}

	power := 1
	for power < n {
		power <<= 1
	}
	return power
}

// StrictlyIncreasing reports whether data is sorted ascending without repeats
func StrictlyIncreasing(data []float64) bool {
	for i := 1; i < len(data); i++ {
		if !(data[i] > data[i-1]) {
			return false
		}
	}
	return true
}
