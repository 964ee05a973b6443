// Package wavelet implements the continuous wavelet transform used for
// spectral matching, built on the Suárez–Montejo wavelet
//
//	ψ(t) = exp(-ζ·ω·|t|)·sin(ω·t)
//
// References:
//   - L. E. Suárez, L. A. Montejo, "Generation of artificial earthquakes via the
//     wavelet transform", Int. J. Solids and Structures 42 (2005)
//   - L. A. Montejo, L. E. Suárez, "An improved CWT-based algorithm for the
//     generation of spectrum-compatible records", Int. J. Advanced Structural
//     Engineering 5 (2013)
//
// The analyzing wavelet at scale s is tuned to the frequency ω/(2π·s), so a
// grid of frequencies f maps to scales s = ω/(2π·f).
package wavelet

import (
	"math"
	"runtime"
)

// KernelConfig holds the wavelet shape and the degree of parallelism
type KernelConfig struct {
	// Omega is the wavelet's angular frequency at unit scale (rad per unit time)
	Omega float64 `json:"omega"`

	// Zeta controls how fast the envelope decays; smaller is narrower in frequency
	Zeta float64 `json:"zeta"`

	// Workers bounds the goroutines processing scale rows; <= 0 means runtime.NumCPU()
	Workers int `json:"workers"`
}

// DefaultKernelConfig returns ω = π and ζ = 0.05
func DefaultKernelConfig() *KernelConfig {
	return &KernelConfig{
		Omega:   math.Pi,
		Zeta:    0.05,
		Workers: runtime.NumCPU(),
	}
}

// GenerateWavelet evaluates the Suárez–Montejo wavelet at normalized time t
func GenerateWavelet(t, omega, zeta float64) float64 {
	return math.Exp(-zeta*omega*math.Abs(t)) * math.Sin(omega*t)
}

// ScaleForFrequency maps a frequency in Hz to the scale whose wavelet is tuned to it
func ScaleForFrequency(freq, omega float64) float64 {
	return omega / (2 * math.Pi * freq)
}

// sampleWavelet fills dst with the scale-s wavelet evaluated on a uniform time
// axis of step dt centred at centerTime, multiplied by gain.
func sampleWavelet(dst []float64, dt, centerTime, scale, omega, zeta, gain float64) {
	for i := range dst {
		t := (float64(i)*dt - centerTime) / scale
		dst[i] = gain * GenerateWavelet(t, omega, zeta)
	}
}
