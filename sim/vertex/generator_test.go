package vertex

import (
	"math"
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go-hep.org/x/hep/fmom"

	"github.com/forward-physics/ppsim/sim"
	"github.com/forward-physics/ppsim/sim/internal/testutil"
)

func protonEvent() *sim.Event {
	return &sim.Event{
		ID:     11,
		Vertex: sim.Vertex{X: 0.1, Y: -0.2, Z: 3},
		Particles: []sim.Particle{
			{ID: 1, PDG: sim.ProtonPDG, Status: 1, Momentum: sim.ProtonMomentum(sim.ProtonState{Arm: sim.Sector45, Xi: 0.05, ThetaX: 1e-4}, 6500)},
			{ID: 2, PDG: sim.ProtonPDG, Status: 1, Momentum: sim.ProtonMomentum(sim.ProtonState{Arm: sim.Sector56, Xi: 0.1, ThetaY: -5e-5}, 6500)},
		},
	}
}

func TestSmear_Disabled_IsIdentity(t *testing.T) {
	// GIVEN a generator with both steps disabled
	g, err := NewGenerator(Config{}, testutil.Beam())
	require.NoError(t, err)
	ev := protonEvent()

	// WHEN smearing
	out := g.Smear(ev, rand.New(rand.NewSource(1)))

	// THEN vertex and momenta are bit-identical
	if diff := cmp.Diff(ev, out); diff != "" {
		t.Errorf("smear without steps changed the event (-want +got):\n%s", diff)
	}
}

func TestSmear_SameSeed_BitIdentical(t *testing.T) {
	g, err := NewGenerator(Config{SimulateVertex: true, SimulateBeamDivergence: true}, testutil.Beam())
	require.NoError(t, err)
	keys := sim.NewPartitionedRNG(sim.NewSimulationKey(99))

	a := g.Smear(protonEvent(), keys.ForEvent(sim.SubsystemVertex, 11))
	b := g.Smear(protonEvent(), keys.ForEvent(sim.SubsystemVertex, 11))

	assert.Empty(t, cmp.Diff(a, b))
	assert.NotEqual(t, protonEvent().Vertex, a.Vertex)
}

func TestSmear_DoesNotMutateInput(t *testing.T) {
	g, err := NewGenerator(Config{SimulateVertex: true, SimulateBeamDivergence: true}, testutil.Beam())
	require.NoError(t, err)
	ev := protonEvent()

	g.Smear(ev, rand.New(rand.NewSource(5)))

	assert.Empty(t, cmp.Diff(protonEvent(), ev))
}

func TestSmear_VertexOnly_ShiftsInMillimetres(t *testing.T) {
	// GIVEN zero spreads and a mean offset of 0.01 cm in x
	beam := testutil.Beam()
	beam.VertexSigmaX, beam.VertexSigmaY, beam.VertexSigmaZ = 0, 0, 0
	beam.VertexMeanX = 0.01
	g, err := NewGenerator(Config{SimulateVertex: true}, beam)
	require.NoError(t, err)

	out := g.Smear(protonEvent(), rand.New(rand.NewSource(1)))

	// THEN the vertex moves by exactly 0.1 mm and momenta are untouched
	assert.InDelta(t, 0.2, out.Vertex.X, 1e-15)
	assert.Equal(t, -0.2, out.Vertex.Y)
	assert.Equal(t, 3.0, out.Vertex.Z)
	assert.Equal(t, protonEvent().Particles, out.Particles)
}

func TestSmear_DrawOrder(t *testing.T) {
	// GIVEN unit spreads so that the offsets equal the raw normals
	beam := testutil.Beam()
	beam.VertexSigmaX, beam.VertexSigmaY, beam.VertexSigmaZ = 0.1, 0.1, 0.1
	beam.DivergenceX, beam.DivergenceY = 1e-5, 2e-5
	g, err := NewGenerator(Config{SimulateVertex: true, SimulateBeamDivergence: true}, beam)
	require.NoError(t, err)

	ref := rand.New(rand.NewSource(7))
	n := make([]float64, 7)
	for i := range n {
		n[i] = ref.NormFloat64()
	}

	ev := protonEvent()
	out := g.Smear(ev, rand.New(rand.NewSource(7)))

	// THEN x, y, z come first, then θx45, θx56, θy45, θy56
	assert.InDelta(t, ev.Vertex.X+n[0], out.Vertex.X, 1e-12)
	assert.InDelta(t, ev.Vertex.Y+n[1], out.Vertex.Y, 1e-12)
	assert.InDelta(t, ev.Vertex.Z+n[2], out.Vertex.Z, 1e-12)

	want45 := Diverge(ev.Particles[0].Momentum, n[3]*1e-5, n[5]*2e-5)
	want56 := Diverge(ev.Particles[1].Momentum, n[4]*1e-5, n[6]*2e-5)
	assert.Equal(t, want45, out.Particles[0].Momentum)
	assert.Equal(t, want56, out.Particles[1].Momentum)
}

func TestDiverge_PreservesMomentumAndEnergy(t *testing.T) {
	tests := []struct {
		name string
		mom  fmom.PxPyPzE
	}{
		{"forward", fmom.NewPxPyPzE(0.5, -0.3, 6000, 6000.1)},
		{"backward", fmom.NewPxPyPzE(-0.2, 0.7, -5800, 5800.1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := tt.mom
			out := Diverge(in, 3e-5, -4e-5)

			assert.InDelta(t, in.P(), out.P(), 1e-9)
			assert.Equal(t, in.E(), out.E())
			assert.Equal(t, math.Signbit(in.Pz()), math.Signbit(out.Pz()))
			assert.InDelta(t, in.Px()/in.Pz()+3e-5, out.Px()/out.Pz(), 1e-15)
			assert.InDelta(t, in.Py()/in.Pz()-4e-5, out.Py()/out.Pz(), 1e-15)
		})
	}
}

func TestSmear_ZeroPzParticleUnchanged(t *testing.T) {
	g, err := NewGenerator(Config{SimulateBeamDivergence: true}, testutil.Beam())
	require.NoError(t, err)
	ev := &sim.Event{Particles: []sim.Particle{{PDG: 22, Momentum: fmom.NewPxPyPzE(1, 0, 0, 1)}}}

	out := g.Smear(ev, rand.New(rand.NewSource(2)))

	assert.Equal(t, ev.Particles[0].Momentum, out.Particles[0].Momentum)
}

func TestNewGenerator_InvalidBeam(t *testing.T) {
	_, err := NewGenerator(Config{}, sim.BeamConditions{})
	assert.Error(t, err)
}
