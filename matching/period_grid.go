package matching

import (
	"fmt"
	"math"

	"github.com/RyanBlaney/sonido-sismo/algorithms/common"
	"github.com/RyanBlaney/sonido-sismo/algorithms/wavelet"
)

// maxLowFrequency caps the lowest grid frequency (Hz)
const maxLowFrequency = 0.1

// PeriodGrid is the shared frequency, period and wavelet scale axis of a match.
// Frequencies fall geometrically from FF2 to FF1, so Periods and Scales are
// strictly increasing.
type PeriodGrid struct {
	Frequencies []float64 `json:"frequencies"`
	Periods     []float64 `json:"periods"`
	Scales      []float64 `json:"scales"`
	FF1         float64   `json:"ff1"`
	FF2         float64   `json:"ff2"`
	Omega       float64   `json:"omega"`
}

// FrequencyBounds returns the default grid bounds for a record of n samples:
// FF1 = min(4/(n·dt), 0.1) and the Nyquist frequency FF2 = 1/(2·dt)
func FrequencyBounds(n int, dt float64) (ff1, ff2 float64) {
	ff1 = math.Min(4/(float64(n)*dt), maxLowFrequency)
	ff2 = 1 / (2 * dt)
	return ff1, ff2
}

// NewPeriodGrid builds count geometric frequencies from ff2 down to ff1 and the
// periods and scales that go with them
func NewPeriodGrid(ff1, ff2 float64, count int, omega float64) (*PeriodGrid, error) {
	if !(ff1 > 0) || !(ff2 > ff1) {
		return nil, fmt.Errorf("%w: frequency bounds (%g, %g) must satisfy 0 < ff1 < ff2", common.ErrInvalidInput, ff1, ff2)
	}

	freqs, err := common.Geomspace(ff2, ff1, count)
	if err != nil {
		return nil, err
	}

	grid := &PeriodGrid{
		Frequencies: freqs,
		Periods:     make([]float64, count),
		Scales:      make([]float64, count),
		FF1:         ff1,
		FF2:         ff2,
		Omega:       omega,
	}
	for i, f := range freqs {
		grid.Periods[i] = 1 / f
		grid.Scales[i] = wavelet.ScaleForFrequency(f, omega)
	}
	return grid, nil
}

// ActiveIndices returns the grid indices whose period lies in [low, high]
func (g *PeriodGrid) ActiveIndices(low, high float64) []int {
	var idx []int
	for i, T := range g.Periods {
		if T >= low && T <= high {
			idx = append(idx, i)
		}
	}
	return idx
}

// ClampPeriodRange narrows the requested range [t1, t2] to what the target and
// the record support. Both zero selects the whole target range. A t2 beyond the
// longest grid period lowers ff1 instead, so the grid grows to cover it.
func ClampPeriodRange(t1, t2 float64, targetPeriods []float64, ff1, ff2 float64) (float64, float64, float64) {
	first, last := targetPeriods[0], targetPeriods[len(targetPeriods)-1]

	if t1 == 0 && t2 == 0 {
		t1, t2 = first, last
	}
	if t1 < first {
		t1 = first
	}
	if t2 > last {
		t2 = last
	}
	if t1 < 1/ff2 {
		t1 = 1 / ff2
	}
	if t2 > 1/ff1 {
		ff1 = 1 / t2
	}
	return t1, t2, ff1
}
