// Package baseline removes residual velocity and displacement drift from
// acceleration records by iteratively tapering both ends of the record.
package baseline

import (
	"errors"
	"fmt"
	"math"

	"github.com/RyanBlaney/sonido-sismo/algorithms/common"
	"github.com/RyanBlaney/sonido-sismo/logging"
)

// ErrNumericInstability is returned when the correction produces non-finite values
var ErrNumericInstability = errors.New("baseline correction is numerically unstable")

// Config holds the corrector parameters
type Config struct {
	// MaxIterations bounds the correction passes
	MaxIterations int `json:"max_iterations"`

	// Tolerance is the accepted |end/peak| ratio for velocity and displacement
	Tolerance float64 `json:"tolerance"`
}

// DefaultConfig returns 80 iterations and a 1% tolerance
func DefaultConfig() *Config {
	return &Config{
		MaxIterations: 80,
		Tolerance:     0.01,
	}
}

// Result holds the uncorrected integrals and the corrected series
type Result struct {
	Velocity     []float64 `json:"velocity"`
	Displacement []float64 `json:"displacement"`

	CorrectedAcceleration []float64 `json:"corrected_acceleration"`
	CorrectedVelocity     []float64 `json:"corrected_velocity"`
	CorrectedDisplacement []float64 `json:"corrected_displacement"`

	CornerTime float64 `json:"corner_time"`
	Iterations int     `json:"iterations"`

	// Converged is true when both end ratios met the tolerance
	Converged bool `json:"converged"`
}

// AutoResult is the outcome of AutoCorrect
type AutoResult struct {
	Acceleration []float64 `json:"acceleration"`
	Velocity     []float64 `json:"velocity"`
	Displacement []float64 `json:"displacement"`

	CornerTime float64 `json:"corner_time"`
	Attempts   int     `json:"attempts"`

	// Converged is true only when the correction stayed finite and met the tolerance
	Converged bool `json:"converged"`

	// Fallback is true when every corner time was unstable and the
	// uncorrected series was returned
	Fallback bool `json:"fallback"`
}

// Corrector applies the end-tapering baseline correction
type Corrector struct {
	config *Config
	logger logging.Logger
}

// NewCorrector creates a corrector; a nil config uses DefaultConfig
func NewCorrector(config *Config) *Corrector {
	if config == nil {
		config = DefaultConfig()
	}
	c := *config
	if c.MaxIterations <= 0 {
		c.MaxIterations = 80
	}
	if !(c.Tolerance > 0) {
		c.Tolerance = 0.01
	}

	return &Corrector{
		config: &c,
		logger: logging.WithFields(logging.Fields{
			"component": "baseline_corrector",
		}),
	}
}

// Correct tapers acceleration so the final velocity and displacement go to zero.
//
// The leading window covers samples [0, L] with L = ceil(cornerTime/dt) - 1 and
// absorbs the end displacement; the trailing window starts at M-1 with M = n - L
// and absorbs the end velocity. Positive and negative samples get separate
// factors so the correction does not flip signs.
//
// If the correction becomes non-finite the partial Result is returned together
// with ErrNumericInstability.
func (c *Corrector) Correct(time, acceleration []float64, cornerTime float64) (*Result, error) {
	n := len(acceleration)
	if len(time) != n {
		return nil, fmt.Errorf("%w: time has %d samples, acceleration has %d", common.ErrInvalidInput, len(time), n)
	}
	if n < 3 {
		return nil, fmt.Errorf("%w: need at least 3 samples, got %d", common.ErrInvalidInput, n)
	}
	if !common.StrictlyIncreasing(time) {
		return nil, fmt.Errorf("%w: time must be strictly increasing", common.ErrInvalidInput)
	}

	dt := time[1] - time[0]
	L := int(math.Ceil(cornerTime/dt)) - 1
	M := n - L
	if math.IsNaN(cornerTime) || L < 1 || L >= n {
		return nil, fmt.Errorf("%w: corner time %g s gives a window of %d samples for a record of %d", common.ErrInvalidInput, cornerTime, L, n)
	}

	logger := c.logger.WithFields(logging.Fields{
		"function":    "Correct",
		"samples":     n,
		"corner_time": cornerTime,
	})

	vel, err := common.CumulativeTrapezoid(time, acceleration)
	if err != nil {
		return nil, err
	}
	disp, _ := common.CumulativeTrapezoid(time, vel)

	result := &Result{
		Velocity:     vel,
		Displacement: disp,
		CornerTime:   cornerTime,
	}

	cxg := append([]float64(nil), acceleration...)
	tEnd := time[n-1]
	lw := float64(L)
	tw := float64(n - M)

	var cvel, cdisp []float64
	for q := 0; q < c.config.MaxIterations; q++ {
		result.Iterations = q + 1

		// leading window against the end displacement moment
		var dU, ap, an float64
		for i := 1; i < n; i++ {
			dU += (tEnd - time[i]) * cxg[i] * dt
		}
		for i := 0; i <= L; i++ {
			aux := ((lw - float64(i)) / lw) * (tEnd - time[i]) * cxg[i] * dt
			if aux >= 0 {
				ap += aux
			} else {
				an += aux
			}
		}
		alfap := -dU / (2 * ap)
		alfan := -dU / (2 * an)

		for i := 1; i <= L; i++ {
			w := (lw - float64(i)) / lw
			if cxg[i] > 0 {
				cxg[i] *= 1 + alfap*w
			} else {
				cxg[i] *= 1 + alfan*w
			}
		}

		// trailing window against the end velocity
		var dV, vp, vn float64
		for i := 1; i < n; i++ {
			dV += cxg[i] * dt
		}
		for i := M - 1; i < n; i++ {
			aux := float64(i+1-M) / tw * cxg[i] * dt
			if aux >= 0 {
				vp += aux
			} else {
				vn += aux
			}
		}
		valfap := -dV / (2 * vp)
		valfan := -dV / (2 * vn)

		for i := M - 1; i < n; i++ {
			w := float64(i+1-M) / tw
			if cxg[i] > 0 {
				cxg[i] *= 1 + valfap*w
			} else {
				cxg[i] *= 1 + valfan*w
			}
		}

		cvel, _ = common.CumulativeTrapezoid(time, cxg)
		cdisp, _ = common.CumulativeTrapezoid(time, cvel)

		if !common.AllFinite(cdisp) {
			result.CorrectedAcceleration = cxg
			result.CorrectedVelocity = cvel
			result.CorrectedDisplacement = cdisp

			logger.Debug("Baseline correction became non-finite", logging.Fields{
				"iteration": q + 1,
			})
			return result, fmt.Errorf("%w: corner time %g s", ErrNumericInstability, cornerTime)
		}

		if endRatio(cvel) <= c.config.Tolerance && endRatio(cdisp) <= c.config.Tolerance {
			result.Converged = true
			break
		}
	}

	result.CorrectedAcceleration = cxg
	result.CorrectedVelocity = cvel
	result.CorrectedDisplacement = cdisp

	logger.Debug("Baseline correction completed", logging.Fields{
		"iterations": result.Iterations,
		"converged":  result.Converged,
	})

	return result, nil
}

// AutoCorrect runs Correct with a corner time of max(1 s, duration/20),
// widening it by one sample after every unstable attempt. Once the corner
// time reaches the median time the uncorrected series is returned with
// Fallback set.
func (c *Corrector) AutoCorrect(signal, time []float64) (*AutoResult, error) {
	if len(signal) != len(time) || len(signal) < 3 {
		return nil, fmt.Errorf("%w: signal has %d samples, time has %d", common.ErrInvalidInput, len(signal), len(time))
	}

	logger := c.logger.WithFields(logging.Fields{
		"function": "AutoCorrect",
		"samples":  len(signal),
	})

	dt := time[1] - time[0]
	median := common.Median(time)
	ct := math.Max(1, time[len(time)-1]/20)

	attempts := 0
	var last *Result
	for ct < median {
		attempts++
		res, err := c.Correct(time, signal, ct)
		switch {
		case err == nil:
			return &AutoResult{
				Acceleration: res.CorrectedAcceleration,
				Velocity:     res.CorrectedVelocity,
				Displacement: res.CorrectedDisplacement,
				CornerTime:   ct,
				Attempts:     attempts,
				Converged:    res.Converged,
			}, nil
		case errors.Is(err, ErrNumericInstability):
			last = res
			ct += dt
		default:
			return nil, err
		}
	}

	logger.Warn("Baseline correction unstable for every corner time, returning uncorrected series", logging.Fields{
		"attempts":    attempts,
		"median_time": median,
	})

	var vel, disp []float64
	if last != nil {
		vel, disp = last.Velocity, last.Displacement
	} else {
		vel, _ = common.CumulativeTrapezoid(time, signal)
		disp, _ = common.CumulativeTrapezoid(time, vel)
	}

	return &AutoResult{
		Acceleration: append([]float64(nil), signal...),
		Velocity:     vel,
		Displacement: disp,
		CornerTime:   ct,
		Attempts:     attempts,
		Fallback:     true,
	}, nil
}

// endRatio is |x_end| / max|x|; a series that is zero everywhere is balanced
func endRatio(x []float64) float64 {
	peak := common.MaxAbs(x)
	if peak == 0 {
		return 0
	}
	return math.Abs(x[len(x)-1]) / peak
}
