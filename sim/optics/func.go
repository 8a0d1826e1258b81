package optics

import (
	"fmt"

	"github.com/forward-physics/ppsim/sim"
)

// Func wraps an arbitrary transport function. Derivatives are numeric.
type Func struct {
	domain    sim.Domain
	transport func(sim.BeamKinematics) sim.PlanePoint
	steps     [5]float64
}

// NewFunc builds an optics function from f, using sim.DefaultDerivativeSteps.
func NewFunc(domain sim.Domain, f func(sim.BeamKinematics) sim.PlanePoint) (*Func, error) {
	if err := domain.Validate(); err != nil {
		return nil, err
	}
	if f == nil {
		return nil, fmt.Errorf("func optics: transport function required")
	}
	return &Func{domain: domain, transport: f, steps: sim.DefaultDerivativeSteps}, nil
}

// Domain implements sim.Optics.
func (f *Func) Domain() sim.Domain { return f.domain }

// Transport implements sim.Optics.
func (f *Func) Transport(in sim.BeamKinematics) (sim.PlanePoint, error) {
	if !f.domain.Contains(in) {
		return sim.PlanePoint{}, fmt.Errorf("func optics at xi=%g: %w", in.Xi, sim.ErrOutOfDomain)
	}
	return sim.CheckPoint(f.transport(in))
}

// Jacobian implements sim.Optics.
func (f *Func) Jacobian(in sim.BeamKinematics) (sim.Jacobian, error) {
	if !f.domain.Contains(in) {
		return sim.Jacobian{}, fmt.Errorf("func optics at xi=%g: %w", in.Xi, sim.ErrOutOfDomain)
	}
	return sim.NumericJacobian(f.Transport, f.domain, in, f.steps)
}
