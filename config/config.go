// Package config loads the YAML configuration of the sismo command.
package config

import (
	"fmt"
	"os"

	"github.com/RyanBlaney/sonido-sismo/algorithms/common"
	"github.com/RyanBlaney/sonido-sismo/algorithms/design"
	"github.com/RyanBlaney/sonido-sismo/logging"
	"github.com/RyanBlaney/sonido-sismo/matching"
	"github.com/RyanBlaney/sonido-sismo/record"
	"github.com/spf13/viper"
)

// DefaultConfigFile is used when no -config flag is given
const DefaultConfigFile = "sismo.yml"

// Configuration holds all configuration for sismo
type Configuration struct {
	Record  RecordConfig     `mapstructure:"record"`
	Target  TargetConfig     `mapstructure:"target"`
	Match   matching.Options `mapstructure:"match"`
	Workers int              `mapstructure:"workers"`
	Logging LoggingConfig    `mapstructure:"logging"`
}

// RecordConfig locates the input record and how to read it
type RecordConfig struct {
	record.LoaderConfig `mapstructure:",squash"`

	Path string `mapstructure:"path"`
}

// TargetConfig selects the target spectrum: an EC8 design spectrum or a
// two-column file of period and pseudo-acceleration
type TargetConfig struct {
	EC8  *design.EC8Params `mapstructure:"ec8"`
	Path string            `mapstructure:"path"`

	// Scale multiplies the target ordinates; zero means 1
	Scale float64 `mapstructure:"scale"`
}

// LoggingConfig holds logging configuration options
type LoggingConfig struct {
	Level      string `mapstructure:"level"`       // debug, info, warn, error
	Format     string `mapstructure:"format"`      // json, console
	OutputFile string `mapstructure:"output_file"` // optional file output
}

// Load takes a file path as input and loads the YAML-formatted configuration
// there. Match options not present in the file keep their defaults.
func Load(configPath string) (*Configuration, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.AutomaticEnv()

	v.SetConfigType("yml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	configuration := Configuration{
		Record: RecordConfig{LoaderConfig: *record.DefaultLoaderConfig()},
		Match:  matching.DefaultOptions(),
	}
	if err := v.Unmarshal(&configuration); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}

	return &configuration, nil
}

// Validate checks the configuration before any record is read
func (c *Configuration) Validate() error {
	if c.Record.Path == "" {
		return fmt.Errorf("%w: record.path is required", common.ErrInvalidInput)
	}

	switch {
	case c.Target.EC8 == nil && c.Target.Path == "":
		return fmt.Errorf("%w: target needs either ec8 or path", common.ErrInvalidInput)
	case c.Target.EC8 != nil && c.Target.Path != "":
		return fmt.Errorf("%w: target takes only one of ec8 and path", common.ErrInvalidInput)
	}
	if c.Target.Scale < 0 {
		return fmt.Errorf("%w: target.scale must not be negative", common.ErrInvalidInput)
	}

	if c.Workers < 0 {
		return fmt.Errorf("%w: workers must not be negative", common.ErrInvalidInput)
	}

	if c.Logging.Level != "" {
		if _, ok := logging.ParseLevel(c.Logging.Level); !ok {
			return fmt.Errorf("%w: invalid log level %q", common.ErrInvalidInput, c.Logging.Level)
		}
	}
	switch c.Logging.Format {
	case "", "json", "console":
	default:
		return fmt.Errorf("%w: invalid log format %q", common.ErrInvalidInput, c.Logging.Format)
	}

	return c.Match.Validate()
}

// Spectrum builds the configured target spectrum
func (t TargetConfig) Spectrum() (matching.TargetSpectrum, error) {
	var periods, ordinates []float64

	if t.EC8 != nil {
		p, v, err := design.EC8(*t.EC8)
		if err != nil {
			return matching.TargetSpectrum{}, fmt.Errorf("failed to build EC8 target: %w", err)
		}
		periods, ordinates = p, v
	} else {
		f, err := os.Open(t.Path)
		if err != nil {
			return matching.TargetSpectrum{}, fmt.Errorf("failed to open target: %w", err)
		}
		defer f.Close()

		p, v, err := record.ReadTwoColumns(f)
		if err != nil {
			return matching.TargetSpectrum{}, fmt.Errorf("failed to read target %s: %w", t.Path, err)
		}
		periods, ordinates = p, v
	}

	if t.Scale != 0 && t.Scale != 1 {
		for i := range ordinates {
			ordinates[i] *= t.Scale
		}
	}

	target := matching.TargetSpectrum{Periods: periods, Ordinates: ordinates}
	if err := target.Validate(); err != nil {
		return matching.TargetSpectrum{}, err
	}
	return target, nil
}
