package pipeline_test

import (
	"context"
	"os"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/forward-physics/ppsim/sim"
	"github.com/forward-physics/ppsim/sim/gun"
	"github.com/forward-physics/ppsim/sim/internal/testutil"
	"github.com/forward-physics/ppsim/sim/pipeline"
	"github.com/forward-physics/ppsim/sim/reco"
	"github.com/forward-physics/ppsim/sim/trace"
	"github.com/forward-physics/ppsim/sim/transport"
	"github.com/forward-physics/ppsim/sim/vertex"
)

func TestMain(m *testing.M) {
	if os.Getenv("DEBUG_TESTS") == "" {
		logrus.SetLevel(logrus.WarnLevel)
	}
	goleak.VerifyTestMain(m)
}

func stages(t *testing.T, smear bool) pipeline.Stages {
	t.Helper()
	p := testutil.Parametrization(t)
	g, err := gun.New(gun.Spec{
		ParticleID:        sim.ProtonPDG,
		Energy:            testutil.BeamMomentum,
		XiMin:             0.03,
		XiMax:             0.15,
		ThetaXSigma:       30e-6,
		ThetaYSigma:       30e-6,
		ParticlesSector45: 1,
		ParticlesSector56: 1,
	})
	require.NoError(t, err)
	v, err := vertex.NewGenerator(vertex.Config{SimulateVertex: smear, SimulateBeamDivergence: smear}, p.Beam())
	require.NoError(t, err)
	e, err := transport.NewEngine(transport.DefaultConfig(), p)
	require.NoError(t, err)
	r, err := reco.New(reco.Config{}.WithDefaults(), p, nil)
	require.NoError(t, err)
	return pipeline.Stages{Gun: g, Vertex: v, Engine: e, Reco: r}
}

func config(workers int) pipeline.Config {
	return pipeline.Config{
		Workers:   workers,
		Run:       1,
		RecoInput: sim.HitScoringPlane,
		Method:    sim.MethodMultiPot,
		Trace:     trace.TraceConfig{Level: trace.TraceLevelOutcomes},
	}
}

func run(t *testing.T, cfg pipeline.Config, st pipeline.Stages, seed int64, n int) *pipeline.Result {
	t.Helper()
	r, err := pipeline.New(cfg, st, sim.NewSimulationKey(seed))
	require.NoError(t, err)
	res, err := r.Run(context.Background(), 1, n)
	require.NoError(t, err)
	return res
}

func TestRun_IndependentOfWorkerCount(t *testing.T) {
	// GIVEN the same seed and stages with smearing enabled
	st := stages(t, true)

	// WHEN running serially and with several workers
	serial := run(t, config(1), st, 42, 40)
	parallel := run(t, config(8), st, 42, 40)

	// THEN every event and every trace record is identical
	if diff := cmp.Diff(serial.Events, parallel.Events); diff != "" {
		t.Errorf("events differ between 1 and 8 workers (-serial +parallel):\n%s", diff)
	}
	assert.Equal(t, serial.Trace.Outcomes, parallel.Trace.Outcomes)
	assert.NotEqual(t, serial.RunID, parallel.RunID)
}

func TestRun_DifferentSeedsDiffer(t *testing.T) {
	st := stages(t, true)

	a := run(t, config(2), st, 1, 5)
	b := run(t, config(2), st, 2, 5)

	assert.NotEqual(t, a.Events[0].Event.Particles[0].Momentum, b.Events[0].Event.Particles[0].Momentum)
}

func TestRun_EventsInIDOrder(t *testing.T) {
	res := run(t, config(4), stages(t, false), 7, 25)

	require.Len(t, res.Events, 25)
	for i, ev := range res.Events {
		assert.Equal(t, uint64(i+1), ev.Event.ID)
	}
}

func TestRun_ScoringPlaneReconstructionMatchesTruth(t *testing.T) {
	// GIVEN no smearing and ideal scoring-plane hits
	res := run(t, config(4), stages(t, false), 3, 30)

	// WHEN summarizing the trace
	s := trace.Summarize(res.Trace)

	// THEN both arms of every event are reconstructed with ξ at the truth
	assert.Equal(t, 60, s.TotalArms)
	assert.Equal(t, 60, s.ValidCount)
	assert.Equal(t, 60, s.ResidualCount)
	assert.Less(t, s.XiResidualMax, 1e-5)
	assert.Equal(t, 60, s.ReasonCounts[string(sim.ReasonOK)])
}

func TestRun_WithoutReconstruction(t *testing.T) {
	st := stages(t, false)
	st.Reco = nil

	res := run(t, config(2), st, 3, 4)

	for _, ev := range res.Events {
		assert.NotEmpty(t, ev.Hits)
		assert.Empty(t, ev.Protons)
	}
	assert.Empty(t, res.Trace.Outcomes)
}

func TestRun_CancelledContext(t *testing.T) {
	r, err := pipeline.New(config(2), stages(t, false), sim.NewSimulationKey(1))
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = r.Run(ctx, 1, 100)

	assert.ErrorIs(t, err, context.Canceled)
}

func TestNew_Validation(t *testing.T) {
	st := stages(t, false)
	tests := []struct {
		name   string
		mutate func(*pipeline.Config, *pipeline.Stages)
	}{
		{"zero workers", func(c *pipeline.Config, _ *pipeline.Stages) { c.Workers = 0 }},
		{"unknown input", func(c *pipeline.Config, _ *pipeline.Stages) { c.RecoInput = "digis" }},
		{"unknown method", func(c *pipeline.Config, _ *pipeline.Stages) { c.Method = "three-pot" }},
		{"unknown trace level", func(c *pipeline.Config, _ *pipeline.Stages) { c.Trace.Level = "all" }},
		{"missing gun", func(_ *pipeline.Config, s *pipeline.Stages) { s.Gun = nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, s := config(1), st
			tt.mutate(&cfg, &s)
			_, err := pipeline.New(cfg, s, sim.NewSimulationKey(1))
			assert.Error(t, err)
		})
	}
}

func TestTruth_OneProtonPerArm(t *testing.T) {
	s45 := sim.ProtonState{Arm: sim.Sector45, Xi: 0.05}
	s56 := sim.ProtonState{Arm: sim.Sector56, Xi: 0.07}
	ev := &sim.Event{Particles: []sim.Particle{
		{ID: 1, PDG: sim.ProtonPDG, Status: 1, Momentum: sim.ProtonMomentum(s45, testutil.BeamMomentum)},
		{ID: 2, PDG: sim.ProtonPDG, Status: 1, Momentum: sim.ProtonMomentum(s56, testutil.BeamMomentum)},
		{ID: 3, PDG: sim.ProtonPDG, Status: 1, Momentum: sim.ProtonMomentum(s56, testutil.BeamMomentum)},
	}}

	truth := pipeline.Truth(ev, testutil.BeamMomentum)

	require.Contains(t, truth, sim.Sector45)
	assert.InDelta(t, 0.05, truth[sim.Sector45].Xi, 1e-12)
	assert.NotContains(t, truth, sim.Sector56, "two protons in one arm have no unique truth")
}
