// Package design generates code-based elastic design spectra used as
// matching targets.
package design

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/RyanBlaney/sonido-sismo/algorithms/common"
)

// ErrUnsupportedOrientation is returned for spectrum orientations that are not implemented
var ErrUnsupportedOrientation = errors.New("unsupported spectrum orientation")

// Orientation of the ground motion component
type Orientation string

const (
	Horizontal Orientation = "horizontal"
	Vertical   Orientation = "vertical"
)

// maxPeriod is the longest period the EC8 shape is evaluated at
const maxPeriod = 4.0

// etaFloor is the lower bound of the damping correction factor
const etaFloor = 0.55

// EC8Params describes a Eurocode 8 horizontal elastic response spectrum
type EC8Params struct {
	// ReferencePGA is the reference peak ground acceleration a_gR
	ReferencePGA float64 `json:"reference_pga" mapstructure:"reference_pga"`

	// GroundType is one of A, B, C, D, E
	GroundType string `json:"ground_type" mapstructure:"ground_type"`

	// SpectrumType is 1 (high seismicity) or 2 (low seismicity)
	SpectrumType int `json:"spectrum_type" mapstructure:"spectrum_type"`

	Orientation Orientation `json:"orientation" mapstructure:"orientation"`

	// ImportanceClass is 1 to 4; zero means class 2
	ImportanceClass int `json:"importance_class" mapstructure:"importance_class"`

	// DampingPercent is the viscous damping in percent; zero means 5
	DampingPercent float64 `json:"damping_percent" mapstructure:"damping_percent"`

	// Periods overrides the default grid; the corner periods are added to it
	Periods []float64 `json:"periods" mapstructure:"periods"`
}

type soilFactors struct {
	S, TB, TC, TD float64
}

var ec8Type1 = map[string]soilFactors{
	"A": {1.0, 0.15, 0.4, 2.0},
	"B": {1.2, 0.15, 0.5, 2.0},
	"C": {1.15, 0.2, 0.6, 2.0},
	"D": {1.35, 0.2, 0.8, 2.0},
	"E": {1.4, 0.15, 0.5, 2.0},
}

var ec8Type2 = map[string]soilFactors{
	"A": {1.0, 0.05, 0.25, 1.2},
	"B": {1.35, 0.05, 0.25, 1.2},
	"C": {1.5, 0.1, 0.25, 1.2},
	"D": {1.8, 0.1, 0.30, 1.2},
	"E": {1.6, 0.05, 0.25, 1.2},
}

var importanceFactors = map[int]float64{
	1: 0.8,
	2: 1.0,
	3: 1.2,
	4: 1.4,
}

// DefaultEC8Periods returns 0 followed by 0.04 to 4.0 s in 0.02 s steps
func DefaultEC8Periods() []float64 {
	periods := []float64{0}
	for i := 2; i <= 200; i++ {
		periods = append(periods, float64(i)*0.02)
	}
	return periods
}

// EC8 evaluates the elastic spectrum and returns sorted periods with their
// spectral accelerations, in the units of ReferencePGA.
func EC8(params EC8Params) ([]float64, []float64, error) {
	orientation := params.Orientation
	if orientation == "" {
		orientation = Horizontal
	}
	switch orientation {
	case Horizontal:
	case Vertical:
		return nil, nil, fmt.Errorf("%w: %s", ErrUnsupportedOrientation, orientation)
	default:
		return nil, nil, fmt.Errorf("%w: unknown orientation %q", common.ErrInvalidInput, orientation)
	}

	class := params.ImportanceClass
	if class == 0 {
		class = 2
	}
	gammaI, ok := importanceFactors[class]
	if !ok {
		return nil, nil, fmt.Errorf("%w: importance class %d", common.ErrInvalidInput, params.ImportanceClass)
	}

	var table map[string]soilFactors
	switch params.SpectrumType {
	case 1:
		table = ec8Type1
	case 2:
		table = ec8Type2
	default:
		return nil, nil, fmt.Errorf("%w: spectrum type %d", common.ErrInvalidInput, params.SpectrumType)
	}

	soil, ok := table[strings.ToUpper(strings.TrimSpace(params.GroundType))]
	if !ok {
		return nil, nil, fmt.Errorf("%w: ground type %q", common.ErrInvalidInput, params.GroundType)
	}

	if !(params.ReferencePGA > 0) || math.IsInf(params.ReferencePGA, 0) {
		return nil, nil, fmt.Errorf("%w: reference PGA must be positive, got %g", common.ErrInvalidInput, params.ReferencePGA)
	}

	damping := params.DampingPercent
	if damping == 0 {
		damping = 5
	}
	if damping < 0 || math.IsNaN(damping) {
		return nil, nil, fmt.Errorf("%w: damping %g%%", common.ErrInvalidInput, damping)
	}
	eta := math.Max(math.Sqrt(10/(5+damping)), etaFloor)

	periods, err := ec8Grid(params.Periods, soil)
	if err != nil {
		return nil, nil, err
	}

	ag := params.ReferencePGA * gammaI
	plateau := ag * soil.S * eta * 2.5
	values := make([]float64, len(periods))
	for i, T := range periods {
		switch {
		case T < soil.TB:
			values[i] = ag * soil.S * (1 + T/soil.TB*(eta*2.5-1))
		case T < soil.TC:
			values[i] = plateau
		case T < soil.TD:
			values[i] = plateau * soil.TC / T
		default:
			values[i] = plateau * soil.TC * soil.TD / (T * T)
		}
	}

	return periods, values, nil
}

func ec8Grid(custom []float64, soil soilFactors) ([]float64, error) {
	if len(custom) == 0 {
		return DefaultEC8Periods(), nil
	}

	merged := make([]float64, 0, len(custom)+3)
	for _, T := range custom {
		if T < 0 || math.IsNaN(T) || math.IsInf(T, 0) {
			return nil, fmt.Errorf("%w: period %g", common.ErrInvalidInput, T)
		}
		merged = append(merged, T)
	}
	merged = append(merged, soil.TB, soil.TC, soil.TD)
	sort.Float64s(merged)

	periods := make([]float64, 0, len(merged))
	for _, T := range merged {
		if T > maxPeriod {
			break
		}
		if n := len(periods); n > 0 && periods[n-1] == T {
			continue
		}
		periods = append(periods, T)
	}
	return periods, nil
}
