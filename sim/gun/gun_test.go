package gun

import (
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forward-physics/ppsim/sim"
)

func validSpec() Spec {
	return Spec{
		ParticleID:        sim.ProtonPDG,
		Energy:            6500,
		XiMin:             0.02,
		XiMax:             0.15,
		ThetaXSigma:       30e-6,
		ThetaYSigma:       30e-6,
		ParticlesSector45: 1,
		ParticlesSector56: 2,
	}
}

func TestGenerate_ParticlesPerSector(t *testing.T) {
	g, err := New(validSpec())
	require.NoError(t, err)

	ev := g.Generate(7, rand.New(rand.NewSource(1)))

	// THEN sector 45 protons come first, each with p_z pointing into its arm
	assert.Equal(t, uint64(7), ev.ID)
	assert.Equal(t, Source, ev.Source)
	require.Len(t, ev.Particles, 3)
	wantArms := []sim.Arm{sim.Sector45, sim.Sector56, sim.Sector56}
	for i, p := range ev.Particles {
		assert.Equal(t, i+1, p.ID)
		assert.True(t, sim.IsStableProton(p))
		s, ok := sim.StateFromParticle(p, ev.Vertex, 6500)
		require.True(t, ok)
		assert.Equal(t, wantArms[i], s.Arm)
		assert.GreaterOrEqual(t, s.Xi, 0.02-1e-12)
		assert.LessOrEqual(t, s.Xi, 0.15+1e-12)
	}
}

func TestGenerate_FixedKinematics(t *testing.T) {
	// GIVEN a degenerate ξ range and zero angular spread
	spec := validSpec()
	spec.XiMin, spec.XiMax = 0.1, 0.1
	spec.ThetaXSigma, spec.ThetaYSigma = 0, 0
	spec.ThetaXMean, spec.ThetaYMean = 20e-6, -10e-6
	g, err := New(spec)
	require.NoError(t, err)

	ev := g.Generate(1, rand.New(rand.NewSource(99)))

	// THEN every proton carries exactly the configured state
	for _, p := range ev.Particles {
		s, ok := sim.StateFromParticle(p, ev.Vertex, spec.Energy)
		require.True(t, ok)
		assert.InDelta(t, 0.1, s.Xi, 1e-12)
		assert.InDelta(t, 20e-6, s.ThetaX, 1e-15)
		assert.InDelta(t, -10e-6, s.ThetaY, 1e-15)
	}
}

func TestGenerate_SameSeedSameEvent(t *testing.T) {
	g, err := New(validSpec())
	require.NoError(t, err)

	a := g.Generate(3, rand.New(rand.NewSource(42)))
	b := g.Generate(3, rand.New(rand.NewSource(42)))

	if diff := cmp.Diff(a, b); diff != "" {
		t.Errorf("events differ (-first +second):\n%s", diff)
	}
}

func TestSpec_Validate(t *testing.T) {
	valid := validSpec()
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(*Spec)
	}{
		{"not a proton", func(s *Spec) { s.ParticleID = 211 }},
		{"zero energy", func(s *Spec) { s.Energy = 0 }},
		{"inverted xi range", func(s *Spec) { s.XiMin, s.XiMax = 0.2, 0.1 }},
		{"xi of one", func(s *Spec) { s.XiMax = 1 }},
		{"negative xi", func(s *Spec) { s.XiMin = -0.1 }},
		{"negative sigma", func(s *Spec) { s.ThetaYSigma = -1e-6 }},
		{"negative count", func(s *Spec) { s.ParticlesSector45 = -1 }},
		{"no particles", func(s *Spec) { s.ParticlesSector45, s.ParticlesSector56 = 0, 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := validSpec()
			tt.mutate(&s)
			assert.Error(t, s.Validate())
			_, err := New(s)
			assert.Error(t, err)
		})
	}
}

func TestSpec_Validate_ReportsFirstBadFieldInOrder(t *testing.T) {
	s := validSpec()
	s.XiMin, s.ThetaYMean = math.NaN(), math.NaN()
	s.ThetaXSigma, s.ThetaYSigma = -1, -1

	for i := 0; i < 20; i++ {
		require.ErrorContains(t, s.Validate(), "xi_min")
	}
	s.XiMin = 0
	s.ThetaYMean = 0
	for i := 0; i < 20; i++ {
		require.ErrorContains(t, s.Validate(), "theta_x_sigma")
	}
}

func TestLoadSpec(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "gun.yaml")
	require.NoError(t, os.WriteFile(good, []byte(`
particle_id: 2212
energy: 6500
xi_min: 0.05
xi_max: 0.1
theta_x_sigma: 3.0e-5
theta_y_sigma: 3.0e-5
particles_sector_45: 1
particles_sector_56: 1
`), 0o644))
	bad := filepath.Join(dir, "typo.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("particle_id: 2212\nenergie: 6500\n"), 0o644))

	spec, err := LoadSpec(good)
	require.NoError(t, err)
	assert.NoError(t, spec.Validate())
	assert.Equal(t, 0.05, spec.XiMin)

	_, err = LoadSpec(bad)
	assert.Error(t, err, "unknown key must be rejected")

	_, err = LoadSpec(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}
