// Package vertex smears generated events with the luminous-region vertex
// distribution and the beam angular divergence.
package vertex

import (
	"math"
	"math/rand"

	"go-hep.org/x/hep/fmom"

	"github.com/forward-physics/ppsim/sim"
)

// cmToMM converts the configured luminous region to the internal unit.
const cmToMM = 10.0

// Config selects which smearing steps run.
type Config struct {
	SimulateVertex         bool `yaml:"simulate_vertex"`
	SimulateBeamDivergence bool `yaml:"simulate_beam_divergence"`
}

// Generator applies beam smearing to events. The spreads come from the beam
// conditions. A Generator is immutable and shared by all workers; the
// randomness comes from the per-event stream passed to Smear.
type Generator struct {
	cfg  Config
	beam sim.BeamConditions
}

// NewGenerator validates the beam conditions and returns a Generator.
func NewGenerator(cfg Config, beam sim.BeamConditions) (*Generator, error) {
	if err := beam.Validate(); err != nil {
		return nil, err
	}
	return &Generator{cfg: cfg, beam: beam}, nil
}

// Smear returns a smeared copy of ev; ev itself is not modified.
//
// The vertex step draws three normals (x, y, z) and shifts the event vertex
// by mean + σ·n. The divergence step draws four normals (θx for sectors 45
// and 56, then θy for 45 and 56) once per event and adds each particle's arm
// offsets to its slopes px/pz and py/pz, keeping |p| and the energy.
// Draws happen even for zero spreads so that the stream consumption does not
// depend on the beam parameters.
func (g *Generator) Smear(ev *sim.Event, rng *rand.Rand) *sim.Event {
	out := ev.Clone()
	b := g.beam

	if g.cfg.SimulateVertex {
		out.Vertex.X += (b.VertexMeanX + rng.NormFloat64()*b.VertexSigmaX) * cmToMM
		out.Vertex.Y += (b.VertexMeanY + rng.NormFloat64()*b.VertexSigmaY) * cmToMM
		out.Vertex.Z += (b.VertexMeanZ + rng.NormFloat64()*b.VertexSigmaZ) * cmToMM
	}

	if g.cfg.SimulateBeamDivergence {
		var dx, dy [2]float64
		dx[sim.Sector45] = rng.NormFloat64() * b.DivergenceX
		dx[sim.Sector56] = rng.NormFloat64() * b.DivergenceX
		dy[sim.Sector45] = rng.NormFloat64() * b.DivergenceY
		dy[sim.Sector56] = rng.NormFloat64() * b.DivergenceY

		for i := range out.Particles {
			p := &out.Particles[i]
			mom := p.Momentum
			if mom.Pz() == 0 {
				continue
			}
			arm := sim.ArmFromPz(mom.Pz())
			p.Momentum = Diverge(mom, dx[arm], dy[arm])
		}
	}
	return out
}

// Diverge adds (dThetaX, dThetaY) to the slopes of mom and recomputes p_z so
// that |p| and the energy are unchanged.
func Diverge(mom fmom.PxPyPzE, dThetaX, dThetaY float64) fmom.PxPyPzE {
	pz := mom.Pz()
	thx := mom.Px()/pz + dThetaX
	thy := mom.Py()/pz + dThetaY
	newPz := math.Copysign(mom.P(), pz) / math.Sqrt(1+thx*thx+thy*thy)
	return fmom.NewPxPyPzE(newPz*thx, newPz*thy, newPz, mom.E())
}
