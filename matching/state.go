package matching

import (
	"github.com/RyanBlaney/sonido-sismo/algorithms/spectral"
	"github.com/RyanBlaney/sonido-sismo/algorithms/wavelet"
)

// State of the matching state machine
type State int

const (
	Initializing State = iota
	Decomposing
	Evaluating
	Rescaling
	Converged
	IterationLimitReached
	Cancelled
)

func (s State) String() string {
	switch s {
	case Initializing:
		return "initializing"
	case Decomposing:
		return "decomposing"
	case Evaluating:
		return "evaluating"
	case Rescaling:
		return "rescaling"
	case Converged:
		return "converged"
	case IterationLimitReached:
		return "iteration_limit_reached"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// MarshalText encodes the state by name
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Terminal reports whether no further transitions follow
func (s State) Terminal() bool {
	return s == Converged || s == IterationLimitReached || s == Cancelled
}

// MatchState is the bookkeeping of one Match call. It is owned by the
// matching goroutine and discarded when the call returns.
type MatchState struct {
	State     State
	Iteration int

	Candidate []float64
	Details   *wavelet.Details
	Spectrum  *spectral.ResponseSpectrum

	// Misfit is PSA/target - 1 per grid period, NaN outside the active range
	Misfit    []float64
	RMSMisfit float64

	// Criterion is |ΔRMS| between successive evaluations
	Criterion float64

	// baseline-corrected integrals of Candidate, nil when it was not corrected
	velocity          []float64
	displacement      []float64
	baselineConverged bool

	best *candidate
}

// candidate is a snapshot of an evaluated series
type candidate struct {
	iteration         int
	series            []float64
	spectrum          *spectral.ResponseSpectrum
	misfit            []float64
	rms               float64
	velocity          []float64
	displacement      []float64
	baselineConverged bool
}

func (s *MatchState) snapshot() *candidate {
	return &candidate{
		iteration:         s.Iteration,
		series:            s.Candidate,
		spectrum:          s.Spectrum,
		misfit:            s.Misfit,
		rms:               s.RMSMisfit,
		velocity:          s.velocity,
		displacement:      s.displacement,
		baselineConverged: s.baselineConverged,
	}
}

// track keeps the lowest-RMS candidate seen so far
func (s *MatchState) track() {
	if s.best == nil || s.RMSMisfit < s.best.rms {
		s.best = s.snapshot()
	}
}
