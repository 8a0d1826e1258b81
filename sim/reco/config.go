package reco

import (
	"fmt"
	"math"
)

// Tolerance holds the per-parameter convergence thresholds: the fit stops
// when every step component is below its threshold.
type Tolerance struct {
	Xi     float64 `yaml:"xi"`
	ThetaX float64 `yaml:"theta_x"` // rad
	ThetaY float64 `yaml:"theta_y"` // rad
	Vy     float64 `yaml:"vy"`      // mm
}

func (t Tolerance) values() [4]float64 {
	return [4]float64{t.Xi, t.ThetaX, t.ThetaY, t.Vy}
}

// Config controls the reconstruction.
type Config struct {
	ApplyAlignment     bool      `yaml:"apply_alignment"`
	MaxIterations      int       `yaml:"max_iterations"`
	Tolerance          Tolerance `yaml:"tolerance"`
	MinStations        int       `yaml:"min_stations"`
	HitsRelativeToBeam bool      `yaml:"hits_relative_to_beam"`
	// MinUncertainty floors hit uncertainties, mm. Scoring-plane hits carry
	// no uncertainty of their own.
	MinUncertainty float64 `yaml:"min_uncertainty"`
	// FixedVx is the horizontal vertex assumed by the fit, mm.
	FixedVx float64 `yaml:"fixed_vx"`
	// RankTolerance is the relative singular-value threshold of the
	// least-squares solve.
	RankTolerance float64 `yaml:"rank_tolerance"`
}

// WithDefaults fills unset fields with the standard values.
func (c Config) WithDefaults() Config {
	if c.MaxIterations == 0 {
		c.MaxIterations = 10
	}
	if c.Tolerance == (Tolerance{}) {
		c.Tolerance = Tolerance{Xi: 1e-6, ThetaX: 1e-7, ThetaY: 1e-7, Vy: 1e-4}
	}
	if c.MinStations == 0 {
		c.MinStations = 2
	}
	if c.MinUncertainty == 0 {
		c.MinUncertainty = 1e-3
	}
	if c.RankTolerance == 0 {
		c.RankTolerance = 1e-10
	}
	return c
}

// Validate checks the configuration. Call WithDefaults first to accept
// zero values.
func (c Config) Validate() error {
	if c.MaxIterations < 1 {
		return fmt.Errorf("reco: max_iterations must be >= 1, got %d", c.MaxIterations)
	}
	if c.MinStations < 1 {
		return fmt.Errorf("reco: min_stations must be >= 1, got %d", c.MinStations)
	}
	for i, v := range c.Tolerance.values() {
		if !(v > 0) || math.IsInf(v, 0) {
			return fmt.Errorf("reco: tolerance.%s must be positive, got %g", tolNames[i], v)
		}
	}
	if !(c.MinUncertainty > 0) || math.IsInf(c.MinUncertainty, 0) {
		return fmt.Errorf("reco: min_uncertainty must be positive, got %g", c.MinUncertainty)
	}
	if !(c.RankTolerance > 0) || c.RankTolerance >= 1 {
		return fmt.Errorf("reco: rank_tolerance must be in (0, 1), got %g", c.RankTolerance)
	}
	if math.IsNaN(c.FixedVx) || math.IsInf(c.FixedVx, 0) {
		return fmt.Errorf("reco: fixed_vx must be finite")
	}
	return nil
}

var tolNames = [4]string{"xi", "theta_x", "theta_y", "vy"}
