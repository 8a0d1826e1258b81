// Package transport is the fast simulation: it propagates vertex protons
// through the optics to every detector package and turns the transported
// tracks into scoring-plane hits and sensor hits.
package transport

import (
	"fmt"
	"math"

	"github.com/sirupsen/logrus"

	"github.com/forward-physics/ppsim/sim"
)

// Engine transports protons. It holds only read-only state and is shared by
// all workers.
type Engine struct {
	cfg   Config
	param *sim.Parametrization
}

// NewEngine validates cfg and binds the engine to a parametrization.
func NewEngine(cfg Config, param *sim.Parametrization) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if param == nil {
		return nil, fmt.Errorf("transport: parametrization required")
	}
	return &Engine{cfg: cfg, param: param}, nil
}

// Config returns the engine configuration.
func (e *Engine) Config() Config { return e.cfg }

// TransportProton returns the hits of one proton in the packages of its
// arm, in longitudinal order. A proton the optics cannot transport (outside
// the domain, non-finite result) yields no hits at all; a sensor that does
// not accept the track only loses its own hit.
func (e *Engine) TransportProton(s sim.ProtonState) []sim.SimulatedHit {
	if err := s.Validate(); err != nil {
		logrus.Debugf("transport: dropping proton: %v", err)
		return nil
	}
	var hits []sim.SimulatedHit
	for _, pkg := range e.param.Geometry().Packages(s.Arm) {
		sp, _, err := e.param.AtPackage(pkg.ID, s)
		if err != nil {
			logrus.Debugf("transport: arm %s, xi=%.4f dropped at %s: %v", s.Arm, s.Xi, pkg.ID, err)
			return nil
		}
		rec := e.recHits(pkg, sp)
		if e.cfg.ProduceScoringPlaneHits {
			if !e.cfg.ScoringHitsCheckApertures || e.seenByPackage(pkg, sp) {
				hits = append(hits, e.scoringHit(pkg, sp))
			}
		}
		if e.cfg.ProduceRecHits {
			hits = append(hits, rec...)
		}
	}
	return hits
}

// TransportEvent transports every stable proton of ev, in particle order.
func (e *Engine) TransportEvent(ev *sim.Event) []sim.SimulatedHit {
	var hits []sim.SimulatedHit
	p0 := e.param.Beam().Momentum
	for _, p := range ev.Particles {
		if !sim.IsStableProton(p) {
			continue
		}
		s, ok := sim.StateFromParticle(p, ev.Vertex, p0)
		if !ok {
			logrus.Debugf("transport: event %d particle %d has no valid vertex state", ev.ID, p.ID)
			continue
		}
		hits = append(hits, e.TransportProton(s)...)
	}
	return hits
}

func (e *Engine) scoringHit(pkg sim.DetectorPackage, sp sim.PlanePoint) sim.SimulatedHit {
	id := sim.ScoringPlaneOf(pkg.ID)
	x, y := sp.X, sp.Y
	if e.cfg.ProduceHitsRelativeToBeam {
		b, _ := e.param.BeamAtPlane(id)
		x, y = x-b.X, y-b.Y
	}
	return sim.SimulatedHit{Kind: sim.HitScoringPlane, Plane: id, X: x, Y: y, Measured: sim.CoordXY}
}

// seenByPackage reports whether any sensor of the package accepts the track.
func (e *Engine) seenByPackage(pkg sim.DetectorPackage, sp sim.PlanePoint) bool {
	for i := range pkg.Planes {
		pl := &pkg.Planes[i]
		u, v := pl.Transform.ToLocal(e.atPlane(pl, sp.Extrapolate(pl.Z-pkg.Z)))
		if e.accepts(pl, u, v) {
			return true
		}
	}
	return false
}

func (e *Engine) recHits(pkg sim.DetectorPackage, sp sim.PlanePoint) []sim.SimulatedHit {
	if !e.cfg.ProduceRecHits {
		return nil
	}
	hits := make([]sim.SimulatedHit, 0, len(pkg.Planes))
	for i := range pkg.Planes {
		pl := &pkg.Planes[i]
		u, v := pl.Transform.ToLocal(e.atPlane(pl, sp.Extrapolate(pl.Z-pkg.Z)))
		if e.cfg.CheckApertures && !e.accepts(pl, u, v) {
			logrus.Debugf("transport: %s outside acceptance (u=%.3f, v=%.3f)", pl.ID, u, v)
			continue
		}
		hits = append(hits, e.measure(pl, u, v))
	}
	return hits
}

// atPlane returns the global position of the track at a plane, relative to
// the beam when configured.
func (e *Engine) atPlane(pl *sim.DetectorPlane, pt sim.PlanePoint) (x, y float64) {
	x, y = pt.X, pt.Y
	if e.cfg.ProduceHitsRelativeToBeam {
		b, _ := e.param.BeamAtPlane(pl.ID)
		x, y = x-b.X, y-b.Y
	}
	return x, y
}

func (e *Engine) accepts(pl *sim.DetectorPlane, u, v float64) bool {
	if pl.Window.Unbounded() {
		return true
	}
	margin := e.cfg.InsensitiveMargin
	if pl.InsensitiveMargin != nil {
		margin = *pl.InsensitiveMargin
	}
	return pl.Window.Contains(u, v, margin)
}

// measure shapes the local position into a hit. Coordinates the plane does
// not measure are reported as zero with zero uncertainty.
func (e *Engine) measure(pl *sim.DetectorPlane, u, v float64) sim.SimulatedHit {
	sigma := pl.Resolution
	if e.cfg.RoundToPitch {
		pitch := e.cfg.Pitch
		if pl.Pitch > 0 {
			pitch = pl.Pitch
		}
		u = Quantize(u, pitch, pl.StripOrigin)
		v = Quantize(v, pitch, pl.StripOrigin)
		sigma = pitch / math.Sqrt(12)
	}
	h := sim.SimulatedHit{Kind: sim.HitRec, Plane: pl.ID, Measured: pl.Measures}
	if pl.Measures.Has(sim.CoordX) {
		h.X, h.SigmaX = u, sigma
	}
	if pl.Measures.Has(sim.CoordY) {
		h.Y, h.SigmaY = v, sigma
	}
	return h
}

// Quantize rounds value to the nearest point of the lattice
// origin + k·pitch. Quantize is idempotent.
func Quantize(value, pitch, origin float64) float64 {
	return origin + pitch*math.Floor((value-origin)/pitch+0.5)
}
