package windowing

import (
	"testing"

	"github.com/RyanBlaney/sonido-sismo/algorithms/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTukeyShape(t *testing.T) {
	w, err := NewTukey(101, 0.2)
	require.NoError(t, err)

	c := w.Coefficients()
	require.Len(t, c, 101)
	assert.InDelta(t, 0.0, c[0], 1e-12)
	assert.InDelta(t, 0.0, c[100], 1e-12)
	assert.InDelta(t, 0.5, c[5], 1e-12)
	assert.InDelta(t, 0.5, c[95], 1e-12)
	for i := 10; i <= 90; i++ {
		assert.InDelta(t, 1.0, c[i], 1e-12, "sample %d", i)
	}
	for i := 0; i <= 50; i++ {
		assert.InDelta(t, c[i], c[100-i], 1e-12)
	}
}

func TestTukeyLimits(t *testing.T) {
	rect, err := NewTukey(16, 0)
	require.NoError(t, err)
	for _, v := range rect.Coefficients() {
		assert.InDelta(t, 1.0, v, 1e-12)
	}

	hann, err := NewTukey(9, 1)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0, 0.1464466, 0.5, 0.8535534, 1, 0.8535534, 0.5, 0.1464466, 0}, hann.Coefficients(), 1e-6)
}

func TestTukeyApplyInPlace(t *testing.T) {
	w, err := NewTukey(5, 1)
	require.NoError(t, err)

	signal := []float64{2, 2, 2, 2, 2}
	require.NoError(t, w.ApplyInPlace(signal))
	assert.InDeltaSlice(t, []float64{0, 1, 2, 1, 0}, signal, 1e-12)

	require.Error(t, w.ApplyInPlace([]float64{1, 2}))
}

func TestTukeyInvalid(t *testing.T) {
	for _, tc := range []struct {
		size  int
		alpha float64
	}{{1, 0.1}, {10, -0.1}, {10, 1.5}} {
		_, err := NewTukey(tc.size, tc.alpha)
		require.ErrorIs(t, err, common.ErrInvalidInput)
	}
}
