// Package gun generates single-proton events with ξ drawn uniformly and
// scattering angles drawn from Gaussians, one or more protons per arm.
package gun

import (
	"bytes"
	"fmt"
	"math"
	"math/rand"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/forward-physics/ppsim/sim"
)

// Source tags events produced by the gun.
const Source = "gun"

// Spec configures the gun. Loaded from YAML via LoadSpec(path).
type Spec struct {
	ParticleID  int     `yaml:"particle_id"`
	Energy      float64 `yaml:"energy"` // nominal beam energy, GeV
	XiMin       float64 `yaml:"xi_min"`
	XiMax       float64 `yaml:"xi_max"`
	ThetaXMean  float64 `yaml:"theta_x_mean"`  // rad
	ThetaXSigma float64 `yaml:"theta_x_sigma"` // rad
	ThetaYMean  float64 `yaml:"theta_y_mean"`  // rad
	ThetaYSigma float64 `yaml:"theta_y_sigma"` // rad

	ParticlesSector45 int `yaml:"particles_sector_45"`
	ParticlesSector56 int `yaml:"particles_sector_56"`
}

// LoadSpec reads and parses a YAML gun specification file.
// Uses strict parsing: unrecognized keys are rejected.
func LoadSpec(path string) (*Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading gun spec: %w", err)
	}
	var spec Spec
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&spec); err != nil {
		return nil, fmt.Errorf("parsing gun spec: %w", err)
	}
	return &spec, nil
}

// Validate checks that all fields in the spec are valid.
func (s *Spec) Validate() error {
	if s.ParticleID != sim.ProtonPDG {
		return fmt.Errorf("gun: particle_id must be %d (proton), got %d", sim.ProtonPDG, s.ParticleID)
	}
	if err := validateFinitePositive("gun: energy", s.Energy); err != nil {
		return err
	}
	for _, f := range []field{
		{"xi_min", s.XiMin}, {"xi_max", s.XiMax},
		{"theta_x_mean", s.ThetaXMean}, {"theta_y_mean", s.ThetaYMean},
	} {
		if math.IsNaN(f.value) || math.IsInf(f.value, 0) {
			return fmt.Errorf("gun: %s must be a finite number, got %f", f.name, f.value)
		}
	}
	if s.XiMin < 0 || s.XiMax >= 1 || s.XiMin > s.XiMax {
		return fmt.Errorf("gun: xi range must satisfy 0 <= xi_min <= xi_max < 1, got [%f, %f]", s.XiMin, s.XiMax)
	}
	for _, f := range []field{{"theta_x_sigma", s.ThetaXSigma}, {"theta_y_sigma", s.ThetaYSigma}} {
		if math.IsNaN(f.value) || math.IsInf(f.value, 0) || f.value < 0 {
			return fmt.Errorf("gun: %s must be a non-negative finite number, got %f", f.name, f.value)
		}
	}
	if s.ParticlesSector45 < 0 || s.ParticlesSector56 < 0 {
		return fmt.Errorf("gun: particle counts must be non-negative, got %d and %d", s.ParticlesSector45, s.ParticlesSector56)
	}
	if s.ParticlesSector45+s.ParticlesSector56 == 0 {
		return fmt.Errorf("gun: at least one particle per event required")
	}
	return nil
}

type field struct {
	name  string
	value float64
}

func validateFinitePositive(name string, val float64) error {
	if math.IsNaN(val) || math.IsInf(val, 0) {
		return fmt.Errorf("%s must be a finite number, got %f", name, val)
	}
	if val <= 0 {
		return fmt.Errorf("%s must be positive, got %f", name, val)
	}
	return nil
}

// Gun produces events from a validated Spec.
type Gun struct {
	spec Spec
}

// New validates spec and returns a Gun.
func New(spec Spec) (*Gun, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	return &Gun{spec: spec}, nil
}

// Spec returns the gun configuration.
func (g *Gun) Spec() Spec { return g.spec }

// Generate draws one event: the sector 45 protons first, then sector 56.
// Per proton the draws are ξ, θx, θy, in that order. The vertex is at the
// origin; smearing is left to the vertex generator.
func (g *Gun) Generate(eventID uint64, rng *rand.Rand) *sim.Event {
	ev := &sim.Event{ID: eventID, Source: Source}
	counts := [2]int{g.spec.ParticlesSector45, g.spec.ParticlesSector56}
	for _, arm := range sim.Arms {
		for i := 0; i < counts[arm]; i++ {
			s := sim.ProtonState{
				Arm:    arm,
				Xi:     g.spec.XiMin + (g.spec.XiMax-g.spec.XiMin)*rng.Float64(),
				ThetaX: g.spec.ThetaXMean + g.spec.ThetaXSigma*rng.NormFloat64(),
				ThetaY: g.spec.ThetaYMean + g.spec.ThetaYSigma*rng.NormFloat64(),
			}
			ev.Particles = append(ev.Particles, sim.Particle{
				ID:       len(ev.Particles) + 1,
				PDG:      g.spec.ParticleID,
				Status:   1,
				Momentum: sim.ProtonMomentum(s, g.spec.Energy),
			})
		}
	}
	return ev
}
