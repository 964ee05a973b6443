package matching

import (
	"github.com/RyanBlaney/sonido-sismo/algorithms/spectral"
)

// Result is the outcome of a Match call. Candidate is the lowest-misfit
// series found; all diagnostics refer to it.
type Result struct {
	Candidate    []float64 `json:"candidate"`
	Time         []float64 `json:"time"`
	Velocity     []float64 `json:"velocity"`
	Displacement []float64 `json:"displacement"`

	Spectrum         *spectral.ResponseSpectrum `json:"spectrum"`
	OriginalSpectrum *spectral.ResponseSpectrum `json:"original_spectrum"`
	TargetOnGrid     []float64                  `json:"target_on_grid"`
	Grid             *PeriodGrid                `json:"grid"`

	// Misfit is PSA/target - 1 per grid period, NaN outside the active range
	Misfit     []float64 `json:"-"`
	RMSMisfit  float64   `json:"rms_misfit"`
	MeanMisfit float64   `json:"mean_misfit"`

	// Correlation is the Pearson coefficient between achieved and target PSA
	// over the active periods
	Correlation float64 `json:"correlation"`

	// SeedScaleFactor is Σtarget/ΣPSA of the input over the active periods
	SeedScaleFactor float64 `json:"seed_scale_factor"`

	ActiveLow  float64 `json:"active_low"`
	ActiveHigh float64 `json:"active_high"`

	Iterations    int   `json:"iterations"`
	BestIteration int   `json:"best_iteration"`
	Converged     bool  `json:"converged"`
	Status        State `json:"status"`

	// History holds the RMS misfit of every evaluation, ending with the final
	// baseline correction of the best candidate when one was applied
	History []float64 `json:"history"`

	BaselineConverged bool `json:"baseline_converged"`
}
