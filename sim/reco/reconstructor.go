// Package reco reconstructs proton kinematics at the interaction point from
// detector hits, by a weighted non-linear least-squares fit through the
// optics parametrization.
package reco

import (
	"fmt"
	"math"
	"sort"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"

	"github.com/forward-physics/ppsim/sim"
)

// Reconstructor fits protons. It holds only read-only state and is shared by
// all workers; every call allocates its own fit state.
type Reconstructor struct {
	cfg       Config
	param     *sim.Parametrization
	alignment *AlignmentSet
}

// New validates cfg and returns a Reconstructor. alignment may be nil
// unless cfg.ApplyAlignment is set.
func New(cfg Config, param *sim.Parametrization, alignment *AlignmentSet) (*Reconstructor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if param == nil {
		return nil, fmt.Errorf("reco: parametrization required")
	}
	if cfg.ApplyAlignment && alignment == nil {
		return nil, fmt.Errorf("reco: apply_alignment set but no alignment loaded")
	}
	return &Reconstructor{cfg: cfg, param: param, alignment: alignment}, nil
}

// Reconstruct fits each arm that has hits, independently, with all its
// packages (multi-pot). It returns at most one proton per arm, arm 45 first.
// The only error is a hit on a plane the geometry does not know.
func (r *Reconstructor) Reconstruct(run uint32, hits []sim.TrackHit) ([]sim.ReconstructedProton, error) {
	byArm, err := r.split(hits)
	if err != nil {
		return nil, err
	}
	corrections, alignErr := r.corrections(run)

	var out []sim.ReconstructedProton
	for _, arm := range sim.Arms {
		armHits := byArm[arm]
		if len(armHits) == 0 {
			continue
		}
		if alignErr != nil {
			out = append(out, invalid(arm, sim.MethodMultiPot, sim.ReasonNoAlignment, armHits))
			continue
		}
		out = append(out, r.fitArm(arm, corrections.Apply(armHits)))
	}
	return out, nil
}

// ReconstructSingle fits each package on its own for (ξ, θy), with θx and
// the vertex fixed. It returns one proton per package with hits, in
// longitudinal order per arm.
func (r *Reconstructor) ReconstructSingle(run uint32, hits []sim.TrackHit) ([]sim.ReconstructedProton, error) {
	byArm, err := r.split(hits)
	if err != nil {
		return nil, err
	}
	corrections, alignErr := r.corrections(run)

	var out []sim.ReconstructedProton
	for _, arm := range sim.Arms {
		byPot := make(map[sim.PotID][]sim.TrackHit)
		for _, h := range byArm[arm] {
			byPot[h.Plane.PotID()] = append(byPot[h.Plane.PotID()], h)
		}
		for _, pkg := range r.param.Geometry().Packages(arm) {
			potHits := byPot[pkg.ID]
			if len(potHits) == 0 {
				continue
			}
			if alignErr != nil {
				out = append(out, invalid(arm, sim.MethodSinglePot, sim.ReasonNoAlignment, potHits))
				continue
			}
			out = append(out, r.fitSingle(arm, corrections.Apply(potHits)))
		}
	}
	return out, nil
}

func (r *Reconstructor) split(hits []sim.TrackHit) (map[sim.Arm][]sim.TrackHit, error) {
	byArm := make(map[sim.Arm][]sim.TrackHit, 2)
	for _, h := range hits {
		if _, ok := r.param.Geometry().Plane(h.Plane); !ok {
			return nil, fmt.Errorf("hit on plane %s: %w", h.Plane, sim.ErrUnknownPlane)
		}
		byArm[h.Plane.Arm] = append(byArm[h.Plane.Arm], h)
	}
	return byArm, nil
}

func (r *Reconstructor) corrections(run uint32) (Corrections, error) {
	if !r.cfg.ApplyAlignment {
		return nil, nil
	}
	cs, err := r.alignment.ForRun(run)
	if err != nil {
		logrus.Debugf("reco: %v", err)
	}
	return cs, err
}

// row is one measured local coordinate.
type row struct {
	plane *sim.DetectorPlane
	axis  int // 0: local u (hit X), 1: local v (hit Y)
	value float64
	sigma float64
}

func (r *Reconstructor) rows(hits []sim.TrackHit) []row {
	var rows []row
	for _, h := range hits {
		pl, _ := r.param.Geometry().Plane(h.Plane)
		if h.Measured.Has(sim.CoordX) {
			rows = append(rows, row{plane: pl, axis: 0, value: h.X, sigma: math.Max(h.XUnc, r.cfg.MinUncertainty)})
		}
		if h.Measured.Has(sim.CoordY) {
			rows = append(rows, row{plane: pl, axis: 1, value: h.Y, sigma: math.Max(h.YUnc, r.cfg.MinUncertainty)})
		}
	}
	return rows
}

func (r *Reconstructor) fitArm(arm sim.Arm, hits []sim.TrackHit) sim.ReconstructedProton {
	rows := r.rows(hits)
	stations := make(map[int]bool)
	for _, h := range hits {
		stations[h.Plane.Station] = true
	}
	if len(stations) < r.cfg.MinStations || len(rows) < sim.NumFitParams {
		logrus.Debugf("reco: arm %s has %d stations and %d coordinates, not fitting", arm, len(stations), len(rows))
		return invalid(arm, sim.MethodMultiPot, sim.ReasonInsufficientHits, hits)
	}
	free := []int{sim.FitXi, sim.FitThetaX, sim.FitThetaY, sim.FitVy}
	return r.fit(arm, sim.MethodMultiPot, rows, free, hits)
}

func (r *Reconstructor) fitSingle(arm sim.Arm, hits []sim.TrackHit) sim.ReconstructedProton {
	rows := r.rows(hits)
	var nx, ny int
	for _, rw := range rows {
		if rw.axis == 0 {
			nx++
		} else {
			ny++
		}
	}
	if nx == 0 || ny == 0 {
		return invalid(arm, sim.MethodSinglePot, sim.ReasonInsufficientHits, hits)
	}
	return r.fit(arm, sim.MethodSinglePot, rows, []int{sim.FitXi, sim.FitThetaY}, hits)
}

// fit runs Gauss-Newton over the free parameters, starting from the
// nominal proton (zero angles, vy = 0, vx fixed) at the lowest ξ the optics
// of the contributing pots cover. ξ iterates stay inside that range; a step
// that overshoots it by more than its width is reported as diverged.
func (r *Reconstructor) fit(arm sim.Arm, method sim.Method, rows []row, free []int, hits []sim.TrackHit) sim.ReconstructedProton {
	out := sim.ReconstructedProton{Arm: arm, Method: method, Vx: r.cfg.FixedVx, Contributing: contributing(hits)}
	lo, hi := r.param.XiRange(out.Contributing)
	var params [sim.NumFitParams]float64
	params[sim.FitXi] = lo
	tol := r.cfg.Tolerance.values()

	converged := false
	for it := 1; it <= r.cfg.MaxIterations; it++ {
		out.Iterations = it
		sys, err := r.linearize(arm, params, rows, free)
		if err != nil {
			logrus.Debugf("reco: arm %s diverged at iteration %d: %v", arm, it, err)
			return r.finish(out, params, sim.ReasonDiverged)
		}
		step, rank := sys.solve(r.cfg.RankTolerance)
		if step == nil {
			logrus.Debugf("reco: arm %s singular (rank %d of %d)", arm, rank, len(free))
			return r.finish(out, params, sim.ReasonSingular)
		}
		small := true
		for k, p := range free {
			next := params[p] + step[k]
			if p == sim.FitXi {
				if outside := math.Max(lo-next, next-hi); outside > hi-lo {
					logrus.Debugf("reco: arm %s diverged at iteration %d: xi=%g far outside [%g, %g]", arm, it, next, lo, hi)
					return r.finish(out, params, sim.ReasonDiverged)
				}
				// A step past the edge of the optics stops at the edge.
				next = math.Min(math.Max(next, lo), hi)
			}
			if math.Abs(next-params[p]) >= tol[p] {
				small = false
			}
			params[p] = next
		}
		if small {
			converged = true
			break
		}
	}
	if !converged {
		logrus.Debugf("reco: arm %s did not converge in %d iterations", arm, r.cfg.MaxIterations)
		return r.finish(out, params, sim.ReasonNoConvergence)
	}

	sys, err := r.linearize(arm, params, rows, free)
	if err != nil {
		return r.finish(out, params, sim.ReasonDiverged)
	}
	out.ChiSquare = chiSquare(sys.r, sys.sigma)
	out.NDF = len(rows) - len(free)
	if out.NDF > 0 {
		out.ChiSquareNDF = out.ChiSquare / float64(out.NDF)
	}
	if cov, ok := sys.covariance(); ok {
		for a, pa := range free {
			for b, pb := range free {
				out.Covariance[pa][pb] = cov.At(a, b)
			}
		}
	}
	out.Valid = true
	logrus.Debugf("reco: arm %s xi=%.5f chi2/ndf=%.3g after %d iterations", arm, params[sim.FitXi], out.ChiSquareNDF, out.Iterations)
	return r.finish(out, params, sim.ReasonOK)
}

func (r *Reconstructor) finish(out sim.ReconstructedProton, params [sim.NumFitParams]float64, reason sim.Reason) sim.ReconstructedProton {
	out.Xi = params[sim.FitXi]
	out.ThetaX = params[sim.FitThetaX]
	out.ThetaY = params[sim.FitThetaY]
	out.Vy = params[sim.FitVy]
	out.Reason = reason
	return out
}

// linearize evaluates the model at params: residuals (measured − predicted)
// and the derivatives of the predicted local coordinates with respect to
// the free parameters.
func (r *Reconstructor) linearize(arm sim.Arm, params [sim.NumFitParams]float64, rows []row, free []int) (system, error) {
	s := sim.ProtonState{
		Arm:    arm,
		Xi:     params[sim.FitXi],
		ThetaX: params[sim.FitThetaX],
		ThetaY: params[sim.FitThetaY],
		Vertex: sim.Vertex{X: r.cfg.FixedVx, Y: params[sim.FitVy]},
	}
	if s.Xi < 0 || s.Xi >= 1 {
		return system{}, fmt.Errorf("xi=%g: %w", s.Xi, sim.ErrOutOfDomain)
	}
	type eval struct {
		pt  sim.PlanePoint
		jac sim.StateJacobian
	}
	cache := make(map[sim.PlaneID]eval)

	sys := system{
		a:     mat.NewDense(len(rows), len(free), nil),
		r:     make([]float64, len(rows)),
		sigma: make([]float64, len(rows)),
	}
	for i, rw := range rows {
		ev, ok := cache[rw.plane.ID]
		if !ok {
			pt, jac, err := r.param.AtPlane(rw.plane.ID, s)
			if err != nil {
				return system{}, err
			}
			if r.cfg.HitsRelativeToBeam {
				b, _ := r.param.BeamAtPlane(rw.plane.ID)
				pt.X -= b.X
				pt.Y -= b.Y
			}
			ev = eval{pt: pt, jac: jac}
			cache[rw.plane.ID] = ev
		}
		u, v := rw.plane.Transform.ToLocal(ev.pt.X, ev.pt.Y)
		predicted := u
		if rw.axis == 1 {
			predicted = v
		}
		axes := rw.plane.Transform.LocalAxes()[rw.axis]
		for k, p := range free {
			col := stateColumn(p)
			sys.a.Set(i, k, axes[0]*ev.jac[sim.OutX][col]+axes[1]*ev.jac[sim.OutY][col])
		}
		sys.r[i] = rw.value - predicted
		sys.sigma[i] = rw.sigma
	}
	return sys, nil
}

// stateColumn maps a fit parameter to its StateJacobian column.
func stateColumn(p int) int {
	switch p {
	case sim.FitXi:
		return sim.ParamXi
	case sim.FitThetaX:
		return sim.ParamThetaX
	case sim.FitThetaY:
		return sim.ParamThetaY
	default:
		return sim.ParamVy
	}
}

func invalid(arm sim.Arm, method sim.Method, reason sim.Reason, hits []sim.TrackHit) sim.ReconstructedProton {
	return sim.ReconstructedProton{Arm: arm, Method: method, Reason: reason, Contributing: contributing(hits)}
}

// contributing lists the packages of the hits, in station order.
func contributing(hits []sim.TrackHit) []sim.PotID {
	seen := make(map[sim.PotID]bool)
	var pots []sim.PotID
	for _, h := range hits {
		id := h.Plane.PotID()
		if !seen[id] {
			seen[id] = true
			pots = append(pots, id)
		}
	}
	sort.Slice(pots, func(i, j int) bool {
		if pots[i].Station != pots[j].Station {
			return pots[i].Station < pots[j].Station
		}
		return pots[i].Pot < pots[j].Pot
	})
	return pots
}
