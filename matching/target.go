package matching

import (
	"fmt"
	"math"

	"github.com/RyanBlaney/sonido-sismo/algorithms/common"
)

// TargetSpectrum is the pseudo-acceleration spectrum the record is matched to
type TargetSpectrum struct {
	Periods   []float64 `json:"periods"`
	Ordinates []float64 `json:"ordinates"`
}

// Validate checks that periods are non-negative and strictly increasing and
// that ordinates are finite and non-negative
func (t TargetSpectrum) Validate() error {
	if len(t.Periods) != len(t.Ordinates) {
		return fmt.Errorf("%w: target has %d periods and %d ordinates", common.ErrInvalidInput, len(t.Periods), len(t.Ordinates))
	}
	if len(t.Periods) < 2 {
		return fmt.Errorf("%w: target needs at least 2 points, got %d", common.ErrInvalidInput, len(t.Periods))
	}
	if !common.AllFinite(t.Periods) || t.Periods[0] < 0 {
		return fmt.Errorf("%w: target periods must be finite and non-negative", common.ErrInvalidInput)
	}
	if !common.StrictlyIncreasing(t.Periods) {
		return fmt.Errorf("%w: target periods must be sorted ascending without repeats", common.ErrInvalidInput)
	}
	for i, v := range t.Ordinates {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return fmt.Errorf("%w: target ordinate %g at period %g", common.ErrInvalidInput, v, t.Periods[i])
		}
	}
	return nil
}

// Resample interpolates the target linearly at periods; values outside the
// target's period range are NaN
func (t TargetSpectrum) Resample(periods []float64) ([]float64, error) {
	li, err := common.NewLinearInterpolator(t.Periods, t.Ordinates)
	if err != nil {
		return nil, err
	}
	return li.Resample(periods), nil
}
