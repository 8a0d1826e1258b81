package sim

import (
	"fmt"
	"math"

	"go-hep.org/x/hep/fmom"
)

const (
	// ProtonPDG is the PDG Monte Carlo code of the proton.
	ProtonPDG = 2212
	// ProtonMass in GeV.
	ProtonMass = 0.9382720882
)

// Vertex is a production vertex position in mm.
type Vertex struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Particle is a generator-level particle. Momentum is in GeV.
type Particle struct {
	ID       int
	PDG      int
	Status   int
	Momentum fmom.PxPyPzE
}

// Event is one generated collision: a single production vertex and its
// outgoing particles.
type Event struct {
	ID        uint64
	Source    string // generator tag, e.g. "gun"
	Vertex    Vertex
	Particles []Particle
}

// Clone returns a deep copy of the event.
func (e *Event) Clone() *Event {
	out := *e
	out.Particles = make([]Particle, len(e.Particles))
	copy(out.Particles, e.Particles)
	return &out
}

// IsStableProton selects final-state protons, including the beam-remnant
// statuses (>= 83) some generators use for forward protons.
func IsStableProton(p Particle) bool {
	if p.PDG != ProtonPDG {
		return false
	}
	return p.Status == 1 || p.Status >= 83
}

// ProtonState is the kinematic state of a proton at the interaction vertex.
// Xi is the fractional momentum loss, the angles are in rad and the vertex in
// mm. The arm is fixed once assigned.
type ProtonState struct {
	Arm    Arm     `json:"arm"`
	Xi     float64 `json:"xi"`
	ThetaX float64 `json:"theta_x"`
	ThetaY float64 `json:"theta_y"`
	Vertex Vertex  `json:"vertex"`
}

// Validate checks that xi lies in [0, 1) and all values are finite.
func (s ProtonState) Validate() error {
	if !s.Arm.Valid() {
		return fmt.Errorf("proton state: invalid arm %d", int(s.Arm))
	}
	for _, f := range []namedValue{
		{"xi", s.Xi}, {"theta_x", s.ThetaX}, {"theta_y", s.ThetaY},
		{"vertex.x", s.Vertex.X}, {"vertex.y", s.Vertex.Y}, {"vertex.z", s.Vertex.Z},
	} {
		if math.IsNaN(f.value) || math.IsInf(f.value, 0) {
			return fmt.Errorf("proton state: %s must be finite, got %f", f.name, f.value)
		}
	}
	if s.Xi < 0 || s.Xi >= 1 {
		return fmt.Errorf("proton state: xi must be in [0, 1), got %f", s.Xi)
	}
	return nil
}

// StateFromParticle derives the vertex kinematics of a particle relative to
// the nominal beam momentum. The second return value is false when the
// particle carries no momentum or more momentum than the beam.
func StateFromParticle(p Particle, v Vertex, beamMomentum float64) (ProtonState, bool) {
	mom := p.Momentum
	pAbs := mom.P()
	if pAbs <= 0 || beamMomentum <= 0 {
		return ProtonState{}, false
	}
	s := ProtonState{
		Arm:    ArmFromPz(mom.Pz()),
		Xi:     1 - pAbs/beamMomentum,
		ThetaX: mom.Px() / pAbs,
		ThetaY: mom.Py() / pAbs,
		Vertex: v,
	}
	if s.Validate() != nil {
		return ProtonState{}, false
	}
	return s, true
}

// ProtonMomentum builds the four-momentum of a proton with the given
// state, for a beam of the given nominal momentum.
func ProtonMomentum(s ProtonState, beamMomentum float64) fmom.PxPyPzE {
	p := beamMomentum * (1 - s.Xi)
	cosTh := math.Sqrt(1 - s.ThetaX*s.ThetaX - s.ThetaY*s.ThetaY)
	e := math.Sqrt(p*p + ProtonMass*ProtonMass)
	return fmom.NewPxPyPzE(p*s.ThetaX, p*s.ThetaY, s.Arm.ZSign()*p*cosTh, e)
}
