package record

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/RyanBlaney/sonido-sismo/algorithms/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const at2Record = `PEER NGA STRONG MOTION DATABASE RECORD
IMPERIAL VALLEY 05/19/40, EL CENTRO ARRAY #9, 180
ACCELERATION TIME SERIES IN UNITS OF G
NPTS=    7, DT=   .0100 SEC
  .1000E-02  .2000E-02 -.3000E-02  .4000E-02
 -.5000E-02  .6000E-02  .7000E-02
`

func TestLoadReaderAT2(t *testing.T) {
	loader := NewLoader(&LoaderConfig{Format: FormatAT2})

	ts, err := loader.LoadReader(strings.NewReader(at2Record))
	require.NoError(t, err)

	assert.Equal(t, "IMPERIAL VALLEY 05/19/40, EL CENTRO ARRAY #9, 180", ts.Name)
	assert.Equal(t, "g", ts.Units)
	assert.InDelta(t, 0.01, ts.DT, 1e-12)
	require.Equal(t, 7, ts.Len())
	assert.InDelta(t, -0.003, ts.Acceleration[2], 1e-12)
	assert.InDelta(t, 0.06, ts.Time[6], 1e-12)
	assert.InDelta(t, 100.0, ts.SamplingRate(), 1e-9)
}

func TestLoadReaderAT2OldHeader(t *testing.T) {
	data := "header\nname\nACCELERATION IN UNITS OF G\n   3   0.0050   NPTS, DT\n 1.0 2.0 3.0 4.0\n"

	ts, err := NewLoader(&LoaderConfig{Format: FormatAT2}).LoadReader(strings.NewReader(data))
	require.NoError(t, err)

	// values past NPTS are dropped
	assert.Equal(t, []float64{1, 2, 3}, ts.Acceleration)
	assert.InDelta(t, 0.005, ts.DT, 1e-12)
}

func TestLoadReaderAT2Errors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"short header", "a\nb\nc\n"},
		{"missing points", "a\nb\nc\nNPTS= 10, DT= .01 SEC\n1 2 3\n"},
		{"bad header", "a\nb\nc\nno numbers here\n1 2 3\n"},
		{"bad value", "a\nb\nc\nNPTS= 2, DT= .01 SEC\n1 x\n"},
		{"zero dt", "a\nb\nc\nNPTS= 2, DT= 0 SEC\n1 2\n"},
	}

	loader := NewLoader(&LoaderConfig{Format: FormatAT2})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := loader.LoadReader(strings.NewReader(tt.data))
			require.ErrorIs(t, err, common.ErrInvalidInput)
		})
	}
}

func TestLoadReaderTwoColumn(t *testing.T) {
	data := "# time accel\n0.00 0.5\n0.02 -0.5\n\n0.04 1.0\n0.06 0.0\n"

	ts, err := NewLoader(nil).LoadReader(strings.NewReader(data))
	require.NoError(t, err)

	assert.InDelta(t, 0.02, ts.DT, 1e-12)
	assert.Equal(t, []float64{0, 0.02, 0.04, 0.06}, ts.Time)
	assert.Equal(t, []float64{0.5, -0.5, 1.0, 0.0}, ts.Acceleration)
	assert.InDelta(t, 0.06, ts.Duration(), 1e-12)
}

func TestLoadReaderTwoColumnNonUniform(t *testing.T) {
	data := "0.0 1\n0.01 2\n0.03 3\n"

	_, err := NewLoader(&LoaderConfig{Format: FormatTwoColumn}).LoadReader(strings.NewReader(data))
	require.ErrorIs(t, err, common.ErrInvalidInput)
}

func TestLoadReaderSingleColumn(t *testing.T) {
	data := "1.0\n2.0\n-1.0\n"

	ts, err := NewLoader(&LoaderConfig{DT: 0.005, Scale: 9.81}).LoadReader(strings.NewReader(data))
	require.NoError(t, err)

	assert.InDeltaSlice(t, []float64{9.81, 19.62, -9.81}, ts.Acceleration, 1e-12)
	assert.InDeltaSlice(t, []float64{0, 0.005, 0.01}, ts.Time, 1e-12)

	_, err = NewLoader(&LoaderConfig{Format: FormatSingleColumn}).LoadReader(strings.NewReader(data))
	require.ErrorIs(t, err, common.ErrInvalidInput)
}

func TestLoadReaderUnsupportedFormat(t *testing.T) {
	_, err := NewLoader(&LoaderConfig{Format: "csv"}).LoadReader(strings.NewReader("1\n"))
	require.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestLoadReaderRejectsInvalidSamples(t *testing.T) {
	_, err := NewLoader(&LoaderConfig{DT: 0.01}).LoadReader(strings.NewReader("1.0\nNaN\n"))
	require.ErrorIs(t, err, common.ErrInvalidInput)

	_, err = NewLoader(&LoaderConfig{DT: 0.01}).LoadReader(strings.NewReader("# empty\n"))
	require.ErrorIs(t, err, common.ErrInvalidInput)
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()

	at2Path := filepath.Join(dir, "elcentro.AT2")
	require.NoError(t, os.WriteFile(at2Path, []byte(at2Record), 0o644))

	ts, err := NewLoader(nil).LoadFile(at2Path)
	require.NoError(t, err)
	assert.Equal(t, 7, ts.Len())
	assert.Equal(t, "g", ts.Units)

	txtPath := filepath.Join(dir, "synthetic.txt")
	require.NoError(t, os.WriteFile(txtPath, []byte("0 1\n0.1 2\n0.2 3\n"), 0o644))

	ts, err = NewLoader(nil).LoadFile(txtPath)
	require.NoError(t, err)
	assert.Equal(t, "synthetic", ts.Name)
	assert.InDelta(t, 0.1, ts.DT, 1e-12)

	_, err = NewLoader(nil).LoadFile(filepath.Join(dir, "missing.txt"))
	require.Error(t, err)
}

func TestTimeSeriesValidate(t *testing.T) {
	tests := []struct {
		name string
		ts   TimeSeries
	}{
		{"empty", TimeSeries{DT: 0.01}},
		{"length mismatch", TimeSeries{DT: 0.01, Time: []float64{0}, Acceleration: []float64{1, 2}}},
		{"zero dt", TimeSeries{Time: []float64{0, 1}, Acceleration: []float64{1, 2}}},
		{"decreasing time", TimeSeries{DT: 0.01, Time: []float64{1, 0}, Acceleration: []float64{1, 2}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.ErrorIs(t, tt.ts.Validate(), common.ErrInvalidInput)
		})
	}

	valid := TimeSeries{DT: 0.5, Time: []float64{0, 0.5}, Acceleration: []float64{1, 2}}
	require.NoError(t, valid.Validate())
}

func TestReadTwoColumns(t *testing.T) {
	x, y, err := ReadTwoColumns(strings.NewReader("# period psa\n0.1 0.5\n1.0 0.2\n"))
	require.NoError(t, err)
	assert.Equal(t, []float64{0.1, 1.0}, x)
	assert.Equal(t, []float64{0.5, 0.2}, y)

	_, _, err = ReadTwoColumns(strings.NewReader("0.1 0.5 7\n"))
	require.ErrorIs(t, err, common.ErrInvalidInput)
}

func TestLoadReaderPreprocess(t *testing.T) {
	data := "2\n2\n2\n4\n2\n2\n2\n"

	ts, err := NewLoader(&LoaderConfig{DT: 0.01, RemoveMean: true}).LoadReader(strings.NewReader(data))
	require.NoError(t, err)
	assert.InDelta(t, 0.0, common.Mean(ts.Acceleration), 1e-12)
	assert.InDelta(t, 10.0/7, ts.Acceleration[3], 1e-12)

	ts, err = NewLoader(&LoaderConfig{DT: 0.01, TaperFraction: 1}).LoadReader(strings.NewReader(data))
	require.NoError(t, err)
	assert.InDelta(t, 0.0, ts.Acceleration[0], 1e-12)
	assert.InDelta(t, 0.0, ts.Acceleration[6], 1e-12)
	assert.InDelta(t, 4.0, ts.Acceleration[3], 1e-12)

	_, err = NewLoader(&LoaderConfig{DT: 0.01, TaperFraction: 2}).LoadReader(strings.NewReader(data))
	require.ErrorIs(t, err, common.ErrInvalidInput)
}

func TestNewLoaderCopiesConfig(t *testing.T) {
	config := &LoaderConfig{DT: 0.01}
	loader := NewLoader(config)

	assert.Equal(t, Format(""), config.Format)
	assert.Equal(t, 0.0, config.Scale)
	assert.Equal(t, FormatAuto, loader.config.Format)
	assert.Equal(t, 1.0, loader.config.Scale)
}
