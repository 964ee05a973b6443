// Package record loads strong-motion acceleration records from text files.
package record

import (
	"fmt"
	"math"

	"github.com/RyanBlaney/sonido-sismo/algorithms/common"
)

// TimeSeries is a uniformly sampled acceleration record
type TimeSeries struct {
	Name         string    `json:"name"`
	Units        string    `json:"units,omitempty"`
	DT           float64   `json:"dt"`
	Time         []float64 `json:"time"`
	Acceleration []float64 `json:"acceleration"`
}

// Len returns the number of samples
func (ts *TimeSeries) Len() int {
	return len(ts.Acceleration)
}

// SamplingRate returns 1/DT
func (ts *TimeSeries) SamplingRate() float64 {
	return 1 / ts.DT
}

// Duration returns the time span covered by the samples, in seconds
func (ts *TimeSeries) Duration() float64 {
	if len(ts.Time) == 0 {
		return 0
	}
	return ts.Time[len(ts.Time)-1] - ts.Time[0]
}

// Validate checks the series invariants: matching lengths, positive DT,
// strictly increasing time and finite samples
func (ts *TimeSeries) Validate() error {
	if len(ts.Acceleration) == 0 {
		return fmt.Errorf("%w: record %q has no samples", common.ErrInvalidInput, ts.Name)
	}
	if len(ts.Time) != len(ts.Acceleration) {
		return fmt.Errorf("%w: record %q has %d times and %d samples", common.ErrInvalidInput, ts.Name, len(ts.Time), len(ts.Acceleration))
	}
	if !(ts.DT > 0) || math.IsInf(ts.DT, 0) {
		return fmt.Errorf("%w: record %q has time step %g", common.ErrInvalidInput, ts.Name, ts.DT)
	}
	if !common.StrictlyIncreasing(ts.Time) {
		return fmt.Errorf("%w: record %q time is not strictly increasing", common.ErrInvalidInput, ts.Name)
	}
	if !common.AllFinite(ts.Acceleration) {
		return fmt.Errorf("%w: record %q contains non-finite samples", common.ErrInvalidInput, ts.Name)
	}
	return nil
}

// uniformTime returns n samples 0, dt, 2dt, ...
func uniformTime(n int, dt float64) []float64 {
	t := make([]float64, n)
	for i := range t {
		t[i] = float64(i) * dt
	}
	return t
}
