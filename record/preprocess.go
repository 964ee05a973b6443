package record

import (
	"github.com/RyanBlaney/sonido-sismo/algorithms/common"
	"github.com/RyanBlaney/sonido-sismo/algorithms/windowing"
	"github.com/RyanBlaney/sonido-sismo/logging"
	"gonum.org/v1/gonum/floats"
)

// preprocess applies the configured mean removal and end taper in place
func (l *Loader) preprocess(ts *TimeSeries) error {
	if l.config.RemoveMean {
		floats.AddConst(-common.Mean(ts.Acceleration), ts.Acceleration)
	}

	if l.config.TaperFraction == 0 || ts.Len() < 2 {
		return nil
	}

	taper, err := windowing.NewTukey(ts.Len(), l.config.TaperFraction)
	if err != nil {
		return err
	}
	if err := taper.ApplyInPlace(ts.Acceleration); err != nil {
		return err
	}

	l.logger.Debug("Record tapered", logging.Fields{
		"function": "preprocess",
		"fraction": l.config.TaperFraction,
	})
	return nil
}
