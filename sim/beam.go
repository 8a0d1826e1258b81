package sim

import (
	"fmt"
	"math"
)

// ArmBeam holds the beam parameters that differ between the two arms.
type ArmBeam struct {
	HalfCrossingAngle float64 `yaml:"half_crossing_angle"` // rad
	YOffset           float64 `yaml:"y_offset"`            // vertical beam offset at the IP, mm
}

// BeamConditions describes the colliding beams for one run period.
// Loaded once and shared read-only by all events.
type BeamConditions struct {
	Momentum float64 `yaml:"momentum"` // nominal beam momentum, GeV
	Sector45 ArmBeam `yaml:"sector_45"`
	Sector56 ArmBeam `yaml:"sector_56"`

	// Divergence sigmas, rad.
	DivergenceX float64 `yaml:"divergence_x"`
	DivergenceY float64 `yaml:"divergence_y"`

	// Luminous region, cm.
	VertexMeanX  float64 `yaml:"vertex_mean_x"`
	VertexMeanY  float64 `yaml:"vertex_mean_y"`
	VertexMeanZ  float64 `yaml:"vertex_mean_z"`
	VertexSigmaX float64 `yaml:"vertex_sigma_x"`
	VertexSigmaY float64 `yaml:"vertex_sigma_y"`
	VertexSigmaZ float64 `yaml:"vertex_sigma_z"`
}

// ArmBeam returns the per-arm beam parameters.
func (b BeamConditions) ArmBeam(arm Arm) ArmBeam {
	if arm == Sector45 {
		return b.Sector45
	}
	return b.Sector56
}

// namedValue pairs a configuration field with its value so validation
// reports the first bad field in declaration order.
type namedValue struct {
	name  string
	value float64
}

// Validate checks that the beam conditions are usable.
func (b BeamConditions) Validate() error {
	if !(b.Momentum > 0) || math.IsInf(b.Momentum, 0) {
		return fmt.Errorf("beam: momentum must be positive and finite, got %f", b.Momentum)
	}
	sigmas := []namedValue{
		{"divergence_x", b.DivergenceX}, {"divergence_y", b.DivergenceY},
		{"vertex_sigma_x", b.VertexSigmaX}, {"vertex_sigma_y", b.VertexSigmaY}, {"vertex_sigma_z", b.VertexSigmaZ},
	}
	for _, f := range sigmas {
		if math.IsNaN(f.value) || math.IsInf(f.value, 0) || f.value < 0 {
			return fmt.Errorf("beam: %s must be a non-negative finite number, got %f", f.name, f.value)
		}
	}
	finite := []namedValue{
		{"vertex_mean_x", b.VertexMeanX}, {"vertex_mean_y", b.VertexMeanY}, {"vertex_mean_z", b.VertexMeanZ},
		{"sector_45.half_crossing_angle", b.Sector45.HalfCrossingAngle}, {"sector_45.y_offset", b.Sector45.YOffset},
		{"sector_56.half_crossing_angle", b.Sector56.HalfCrossingAngle}, {"sector_56.y_offset", b.Sector56.YOffset},
	}
	for _, f := range finite {
		if math.IsNaN(f.value) || math.IsInf(f.value, 0) {
			return fmt.Errorf("beam: %s must be a finite number, got %f", f.name, f.value)
		}
	}
	return nil
}

// BeamFrame converts a vertex state into the beam-frame kinematics expected
// by an optics function: the crossing angle is added to θx, the beam offset
// to y, and both angles are scaled by (1 - ξ).
func (b BeamConditions) BeamFrame(s ProtonState) BeamKinematics {
	ab := b.ArmBeam(s.Arm)
	return BeamKinematics{
		X:      s.Vertex.X,
		ThetaX: (s.ThetaX + ab.HalfCrossingAngle) * (1 - s.Xi),
		Y:      s.Vertex.Y + ab.YOffset,
		ThetaY: s.ThetaY * (1 - s.Xi),
		Xi:     s.Xi,
	}
}

// NominalState is the unscattered beam proton of the arm: ξ = 0, zero
// scattering angles, vertex at the origin.
func NominalState(arm Arm) ProtonState {
	return ProtonState{Arm: arm}
}
