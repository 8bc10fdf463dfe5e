package coil

import (
	"github.com/pkg/errors"
)

type Waveform struct {
	Name   string    `json:"Name"`
	Time   []float64 `json:"Time"`
	Signal []float64 `json:"Signal"`
	Fit    []float64 `json:"Fit,omitempty"`
}

// Stimulator carries the drive metadata of an element. It plays no part in
// the geometry; elements may share one by pointer.
type Stimulator struct {
	Name      string     `json:"Name"`
	Brand     string     `json:"Brand"`
	MaxDIDt   float64    `json:"MaxDIDt"` // A/s
	Waveforms []Waveform `json:"Waveforms"`
}

func (s *Stimulator) Validate() error {
	if s.MaxDIDt < 0 {
		return errors.Wrapf(ErrConfiguration, "stimulator %q has negative maximum dI/dt %g", s.Name, s.MaxDIDt)
	}
	for _, w := range s.Waveforms {
		if len(w.Signal) != len(w.Time) || (len(w.Fit) != 0 && len(w.Fit) != len(w.Time)) {
			return errors.Wrapf(ErrConfiguration,
				"waveform %q of stimulator %q: time, signal and fit lengths differ (%d, %d, %d)",
				w.Name, s.Name, len(w.Time), len(w.Signal), len(w.Fit))
		}
	}
	return nil
}
