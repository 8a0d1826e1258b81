// Package pipeline runs many events through gun, vertex smearing, transport
// and reconstruction, in parallel and with results independent of the
// worker count.
package pipeline

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/forward-physics/ppsim/sim"
	"github.com/forward-physics/ppsim/sim/gun"
	"github.com/forward-physics/ppsim/sim/reco"
	"github.com/forward-physics/ppsim/sim/trace"
	"github.com/forward-physics/ppsim/sim/transport"
	"github.com/forward-physics/ppsim/sim/vertex"
)

// Config controls a pipeline run.
type Config struct {
	Workers int
	// Run is the data-taking run number used for alignment lookup.
	Run uint32
	// RecoInput selects which hits feed the reconstruction.
	RecoInput sim.HitKind
	// Method selects multi-pot or single-pot reconstruction.
	Method sim.Method
	Trace  trace.TraceConfig
}

// Validate checks the run configuration.
func (c Config) Validate() error {
	if c.Workers < 1 {
		return fmt.Errorf("pipeline: workers must be >= 1, got %d", c.Workers)
	}
	if c.RecoInput != sim.HitScoringPlane && c.RecoInput != sim.HitRec {
		return fmt.Errorf("pipeline: unknown reco input %q; valid: %s, %s", c.RecoInput, sim.HitScoringPlane, sim.HitRec)
	}
	if c.Method != sim.MethodMultiPot && c.Method != sim.MethodSinglePot {
		return fmt.Errorf("pipeline: unknown method %q; valid: %s, %s", c.Method, sim.MethodMultiPot, sim.MethodSinglePot)
	}
	if !trace.IsValidTraceLevel(string(c.Trace.Level)) {
		return fmt.Errorf("pipeline: unknown trace level %q", c.Trace.Level)
	}
	return nil
}

// Stages are the components a Runner composes. Reco may be nil, in which
// case the run stops after transport.
type Stages struct {
	Gun    *gun.Gun
	Vertex *vertex.Generator
	Engine *transport.Engine
	Reco   *reco.Reconstructor
}

// EventResult is everything produced for one event.
type EventResult struct {
	// Event is the smeared generator event; its protons are the truth.
	Event   *sim.Event
	Hits    []sim.SimulatedHit
	Protons []sim.ReconstructedProton
}

// Result is the outcome of a run, events in id order.
type Result struct {
	RunID  string
	Events []EventResult
	Trace  *trace.RunTrace
}

// Runner drives events through the stages. All stages are read-only, so a
// Runner can be reused across runs.
type Runner struct {
	cfg    Config
	stages Stages
	rng    *sim.PartitionedRNG
}

// New validates the configuration and binds the stages to a seed.
func New(cfg Config, stages Stages, key sim.SimulationKey) (*Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if stages.Gun == nil || stages.Vertex == nil || stages.Engine == nil {
		return nil, fmt.Errorf("pipeline: gun, vertex generator and transport engine are required")
	}
	return &Runner{cfg: cfg, stages: stages, rng: sim.NewPartitionedRNG(key)}, nil
}

// Run processes events first..first+n-1. Cancelling ctx stops the run
// between events; an event already started always completes.
func (r *Runner) Run(ctx context.Context, first uint64, n int) (*Result, error) {
	if n < 0 {
		return nil, fmt.Errorf("pipeline: event count must be non-negative, got %d", n)
	}
	runID := uuid.New().String()
	log := logrus.WithFields(logrus.Fields{"run_id": runID, "run": r.cfg.Run})
	log.Infof("starting %d events from %d with %d workers", n, first, r.cfg.Workers)

	results := make([]EventResult, n)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Workers)
	for i := 0; i < n; i++ {
		if gctx.Err() != nil {
			break
		}
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := r.process(first + uint64(i))
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("run %s: %w", runID, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("run %s: %w", runID, err)
	}

	tr := trace.NewRunTrace(r.cfg.Trace, runID)
	for _, res := range results {
		r.recordOutcomes(tr, res)
	}
	if tr.Config.Enabled() {
		s := trace.Summarize(tr)
		log.WithFields(logrus.Fields{"valid": s.ValidCount, "invalid": s.InvalidCount}).
			Infof("finished: xi residual mean %.3g rms %.3g", s.XiResidualMean, s.XiResidualRMS)
	} else {
		log.Infof("finished")
	}
	return &Result{RunID: runID, Events: results, Trace: tr}, nil
}

// process runs one event through every stage. Each stage draws from its own
// per-event stream, so the result depends only on the seed and the id.
func (r *Runner) process(id uint64) (EventResult, error) {
	ev := r.stages.Gun.Generate(id, r.rng.ForEvent(sim.SubsystemGun, id))
	ev = r.stages.Vertex.Smear(ev, r.rng.ForEvent(sim.SubsystemVertex, id))
	hits := r.stages.Engine.TransportEvent(ev)
	res := EventResult{Event: ev, Hits: hits}
	if r.stages.Reco == nil {
		return res, nil
	}

	input := sim.TrackHits(hits, r.cfg.RecoInput)
	var err error
	if r.cfg.Method == sim.MethodSinglePot {
		res.Protons, err = r.stages.Reco.ReconstructSingle(r.cfg.Run, input)
	} else {
		res.Protons, err = r.stages.Reco.Reconstruct(r.cfg.Run, input)
	}
	if err != nil {
		return EventResult{}, fmt.Errorf("event %d: %w", id, err)
	}
	for _, p := range res.Protons {
		logrus.WithFields(logrus.Fields{"event": id, "arm": p.Arm}).
			Debugf("%s: %s xi=%.5f", p.Method, p.Reason, p.Xi)
	}
	return res, nil
}

// recordOutcomes traces every reconstructed proton of an event against the
// generated proton of its arm.
func (r *Runner) recordOutcomes(tr *trace.RunTrace, res EventResult) {
	truth := Truth(res.Event, r.stages.Gun.Spec().Energy)
	for _, p := range res.Protons {
		rec := trace.OutcomeRecord{
			EventID:      res.Event.ID,
			Arm:          p.Arm.String(),
			Method:       string(p.Method),
			Reason:       string(p.Reason),
			Valid:        p.Valid,
			Iterations:   p.Iterations,
			RecoXi:       p.Xi,
			ChiSquareNDF: p.ChiSquareNDF,
		}
		if s, ok := truth[p.Arm]; ok {
			rec.TrueXi, rec.HasTruth = s.Xi, true
		}
		tr.RecordOutcome(rec)
	}
}

// Truth returns the generated state of each arm that received exactly one
// stable proton.
func Truth(ev *sim.Event, beamMomentum float64) map[sim.Arm]sim.ProtonState {
	count := make(map[sim.Arm]int, 2)
	out := make(map[sim.Arm]sim.ProtonState, 2)
	for _, p := range ev.Particles {
		if !sim.IsStableProton(p) {
			continue
		}
		s, ok := sim.StateFromParticle(p, ev.Vertex, beamMomentum)
		if !ok {
			continue
		}
		count[s.Arm]++
		out[s.Arm] = s
	}
	for arm, n := range count {
		if n != 1 {
			delete(out, arm)
		}
	}
	return out
}
