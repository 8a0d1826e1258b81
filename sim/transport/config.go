package transport

import (
	"fmt"
	"math"
)

// Config controls what the engine produces and how hits are shaped.
type Config struct {
	ProduceScoringPlaneHits   bool `yaml:"produce_scoring_plane_hits"`
	ProduceRecHits            bool `yaml:"produce_rec_hits"`
	ProduceHitsRelativeToBeam bool `yaml:"produce_hits_relative_to_beam"`

	// CheckApertures rejects rec hits outside the sensor window shrunk by the
	// insensitive margin.
	CheckApertures bool `yaml:"check_apertures"`
	// ScoringHitsCheckApertures keeps a scoring-plane hit only when at least
	// one sensor of the package accepts the track.
	ScoringHitsCheckApertures bool `yaml:"scoring_hits_check_apertures"`

	RoundToPitch      bool    `yaml:"round_to_pitch"`
	Pitch             float64 `yaml:"pitch"`              // mm
	InsensitiveMargin float64 `yaml:"insensitive_margin"` // mm
}

// DefaultConfig returns the strip-sensor settings: 66 µm pitch, 34 µm
// insensitive edge, both hit kinds, apertures checked, rounding on.
func DefaultConfig() Config {
	return Config{
		ProduceScoringPlaneHits: true,
		ProduceRecHits:          true,
		CheckApertures:          true,
		RoundToPitch:            true,
		Pitch:                   0.066,
		InsensitiveMargin:       0.034,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if !c.ProduceScoringPlaneHits && !c.ProduceRecHits {
		return fmt.Errorf("transport: at least one of produce_scoring_plane_hits and produce_rec_hits must be set")
	}
	if math.IsNaN(c.Pitch) || math.IsInf(c.Pitch, 0) || c.Pitch < 0 {
		return fmt.Errorf("transport: pitch must be a non-negative finite number, got %f", c.Pitch)
	}
	if c.RoundToPitch && c.Pitch == 0 {
		return fmt.Errorf("transport: pitch must be positive when round_to_pitch is set")
	}
	if math.IsNaN(c.InsensitiveMargin) || c.InsensitiveMargin < 0 {
		return fmt.Errorf("transport: insensitive_margin must be non-negative, got %f", c.InsensitiveMargin)
	}
	return nil
}
