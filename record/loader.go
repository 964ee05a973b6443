package record

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/RyanBlaney/sonido-sismo/algorithms/common"
	"github.com/RyanBlaney/sonido-sismo/logging"
)

// ErrUnsupportedFormat is returned for unknown format names
var ErrUnsupportedFormat = errors.New("unsupported record format")

// Format names a record file layout
type Format string

const (
	// FormatAuto picks AT2 for .at2 files or text headers, otherwise counts columns
	FormatAuto Format = "auto"

	// FormatAT2 is the PEER NGA layout: three header lines, a fourth with NPTS
	// and DT, then whitespace-separated values
	FormatAT2 Format = "at2"

	// FormatTwoColumn holds time and acceleration per line
	FormatTwoColumn Format = "two-column"

	// FormatSingleColumn holds acceleration only; DT must be configured
	FormatSingleColumn Format = "single-column"
)

// uniformity tolerance for two-column time steps, relative to dt
const stepTolerance = 1e-4

var (
	nptsPattern  = regexp.MustCompile(`(?i)NPTS\s*=\s*([0-9]+)`)
	dtPattern    = regexp.MustCompile(`(?i)DT\s*=\s*([0-9.eE+-]+)`)
	unitsPattern = regexp.MustCompile(`(?i)UNITS\s+OF\s+([A-Z/0-9*^]+)`)
)

// LoaderConfig configures record loading
type LoaderConfig struct {
	Format Format `json:"format" mapstructure:"format"`

	// DT is required for single-column records and ignored otherwise
	DT float64 `json:"dt" mapstructure:"dt"`

	// Scale multiplies every sample, e.g. 9.81 to convert g to m/s²; zero means 1
	Scale float64 `json:"scale" mapstructure:"scale"`

	// RemoveMean subtracts the record mean after scaling
	RemoveMean bool `json:"remove_mean" mapstructure:"remove_mean"`

	// TaperFraction is the share of samples covered by the cosine end taper,
	// split evenly between both ends; zero disables it
	TaperFraction float64 `json:"taper_fraction" mapstructure:"taper_fraction"`
}

// DefaultLoaderConfig returns auto detection with unit scale
func DefaultLoaderConfig() *LoaderConfig {
	return &LoaderConfig{
		Format: FormatAuto,
		Scale:  1,
	}
}

// Loader reads records into validated TimeSeries
type Loader struct {
	config *LoaderConfig
	logger logging.Logger
}

// NewLoader creates a loader; a nil config uses DefaultLoaderConfig
func NewLoader(config *LoaderConfig) *Loader {
	if config == nil {
		config = DefaultLoaderConfig()
	}
	c := *config
	if c.Format == "" {
		c.Format = FormatAuto
	}
	if c.Scale == 0 {
		c.Scale = 1
	}

	return &Loader{
		config: &c,
		logger: logging.WithFields(logging.Fields{
			"component": "record_loader",
		}),
	}
}

// LoadFile reads the record at path. With FormatAuto a .at2 extension selects
// the AT2 layout.
func (l *Loader) LoadFile(path string) (*TimeSeries, error) {
	logger := l.logger.WithFields(logging.Fields{
		"function": "LoadFile",
		"path":     path,
	})

	f, err := os.Open(path)
	if err != nil {
		logger.Error(err, "Failed to open record")
		return nil, fmt.Errorf("failed to open record: %w", err)
	}
	defer f.Close()

	format := l.config.Format
	if format == FormatAuto && strings.EqualFold(filepath.Ext(path), ".at2") {
		format = FormatAT2
	}

	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	ts, err := l.load(f, format, name)
	if err != nil {
		logger.Error(err, "Failed to load record")
		return nil, err
	}

	logger.Debug("Record loaded", logging.Fields{
		"samples": ts.Len(),
		"dt":      ts.DT,
		"units":   ts.Units,
	})
	return ts, nil
}

// LoadReader reads a record from r
func (l *Loader) LoadReader(r io.Reader) (*TimeSeries, error) {
	return l.load(r, l.config.Format, "")
}

func (l *Loader) load(r io.Reader, format Format, name string) (*TimeSeries, error) {
	lines, err := readLines(r)
	if err != nil {
		return nil, err
	}

	if format == FormatAuto {
		format = detectFormat(lines)
	}

	var ts *TimeSeries
	switch format {
	case FormatAT2:
		ts, err = parseAT2(lines)
	case FormatTwoColumn:
		ts, err = parseTwoColumn(lines)
	case FormatSingleColumn:
		ts, err = parseSingleColumn(lines, l.config.DT)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	if err != nil {
		return nil, err
	}

	if ts.Name == "" {
		ts.Name = name
	}
	if l.config.Scale != 1 {
		for i := range ts.Acceleration {
			ts.Acceleration[i] *= l.config.Scale
		}
	}

	if err := ts.Validate(); err != nil {
		return nil, err
	}
	if err := l.preprocess(ts); err != nil {
		return nil, err
	}
	return ts, nil
}

func readLines(r io.Reader) ([]string, error) {
	var lines []string
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read record: %w", err)
	}
	return lines, nil
}

// detectFormat looks at the first data line: text means an AT2 header,
// otherwise the column count decides
func detectFormat(lines []string) Format {
	for _, line := range lines {
		fields := dataFields(line)
		if fields == nil {
			continue
		}
		if _, err := parseFloats(fields); err != nil {
			return FormatAT2
		}
		if len(fields) == 2 {
			return FormatTwoColumn
		}
		return FormatSingleColumn
	}
	return FormatSingleColumn
}

func parseAT2(lines []string) (*TimeSeries, error) {
	if len(lines) < 4 {
		return nil, fmt.Errorf("%w: AT2 record needs 4 header lines, got %d lines", common.ErrInvalidInput, len(lines))
	}

	npts, dt, err := parseAT2Header(lines[3])
	if err != nil {
		return nil, err
	}

	values := make([]float64, 0, npts)
	for i, line := range lines[4:] {
		fields := dataFields(line)
		if fields == nil {
			continue
		}
		v, err := parseFloats(fields)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", common.ErrInvalidInput, i+5, err)
		}
		values = append(values, v...)
	}

	if len(values) < npts {
		return nil, fmt.Errorf("%w: AT2 header declares %d points, found %d", common.ErrInvalidInput, npts, len(values))
	}
	values = values[:npts]

	ts := &TimeSeries{
		Name:         strings.TrimSpace(lines[1]),
		DT:           dt,
		Time:         uniformTime(npts, dt),
		Acceleration: values,
	}
	if m := unitsPattern.FindStringSubmatch(lines[2]); m != nil {
		ts.Units = strings.ToLower(m[1])
	}
	return ts, nil
}

// parseAT2Header accepts both "NPTS= 4000, DT= .0100 SEC" and the older
// "4000 .0100 NPTS, DT" header lines
func parseAT2Header(line string) (int, float64, error) {
	var npts int
	var dt float64

	nm := nptsPattern.FindStringSubmatch(line)
	dm := dtPattern.FindStringSubmatch(line)
	if nm != nil && dm != nil {
		n, err := strconv.Atoi(nm[1])
		if err != nil {
			return 0, 0, fmt.Errorf("%w: NPTS %q", common.ErrInvalidInput, nm[1])
		}
		d, err := strconv.ParseFloat(dm[1], 64)
		if err != nil {
			return 0, 0, fmt.Errorf("%w: DT %q", common.ErrInvalidInput, dm[1])
		}
		npts, dt = n, d
	} else {
		fields := strings.FieldsFunc(line, func(r rune) bool { return r == ' ' || r == ',' || r == '\t' })
		if len(fields) < 2 {
			return 0, 0, fmt.Errorf("%w: cannot read NPTS and DT from %q", common.ErrInvalidInput, line)
		}
		n, err := strconv.Atoi(fields[0])
		if err != nil {
			return 0, 0, fmt.Errorf("%w: cannot read NPTS from %q", common.ErrInvalidInput, line)
		}
		d, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return 0, 0, fmt.Errorf("%w: cannot read DT from %q", common.ErrInvalidInput, line)
		}
		npts, dt = n, d
	}

	if npts <= 0 || !(dt > 0) {
		return 0, 0, fmt.Errorf("%w: NPTS %d and DT %g must be positive", common.ErrInvalidInput, npts, dt)
	}
	return npts, dt, nil
}

// ReadTwoColumns reads whitespace-separated x y pairs, skipping blank and #
// comment lines
func ReadTwoColumns(r io.Reader) ([]float64, []float64, error) {
	lines, err := readLines(r)
	if err != nil {
		return nil, nil, err
	}
	return twoColumns(lines)
}

func twoColumns(lines []string) ([]float64, []float64, error) {
	var x, y []float64
	for i, line := range lines {
		fields := dataFields(line)
		if fields == nil {
			continue
		}
		if len(fields) != 2 {
			return nil, nil, fmt.Errorf("%w: line %d has %d columns, want 2", common.ErrInvalidInput, i+1, len(fields))
		}
		v, err := parseFloats(fields)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: line %d: %v", common.ErrInvalidInput, i+1, err)
		}
		x = append(x, v[0])
		y = append(y, v[1])
	}
	return x, y, nil
}

func parseTwoColumn(lines []string) (*TimeSeries, error) {
	t, a, err := twoColumns(lines)
	if err != nil {
		return nil, err
	}

	if len(t) < 2 {
		return nil, fmt.Errorf("%w: two-column record needs at least 2 samples", common.ErrInvalidInput)
	}

	dt := t[1] - t[0]
	for i := 2; i < len(t); i++ {
		if math.Abs((t[i]-t[i-1])-dt) > stepTolerance*dt {
			return nil, fmt.Errorf("%w: non-uniform time step at sample %d", common.ErrInvalidInput, i)
		}
	}

	return &TimeSeries{DT: dt, Time: t, Acceleration: a}, nil
}

func parseSingleColumn(lines []string, dt float64) (*TimeSeries, error) {
	if !(dt > 0) {
		return nil, fmt.Errorf("%w: single-column records need a positive dt, got %g", common.ErrInvalidInput, dt)
	}

	var a []float64
	for i, line := range lines {
		fields := dataFields(line)
		if fields == nil {
			continue
		}
		v, err := parseFloats(fields)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", common.ErrInvalidInput, i+1, err)
		}
		a = append(a, v...)
	}

	return &TimeSeries{DT: dt, Time: uniformTime(len(a), dt), Acceleration: a}, nil
}

// dataFields splits a line on whitespace, returning nil for blank and # comment lines
func dataFields(line string) []string {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return nil
	}
	return strings.Fields(line)
}

func parseFloats(fields []string) ([]float64, error) {
	out := make([]float64, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q", f)
		}
		out[i] = v
	}
	return out, nil
}
