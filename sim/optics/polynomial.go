package optics

import (
	"fmt"
	"math"

	"github.com/forward-physics/ppsim/sim"
)

// Term is one monomial c · x*^p0 · θx*^p1 · y*^p2 · θy*^p3 · ξ^p4.
type Term struct {
	Coefficient float64 `yaml:"c"`
	Powers      [5]int  `yaml:"p"`
}

func (t Term) eval(in [5]float64) float64 {
	v := t.Coefficient
	for k, p := range t.Powers {
		if p != 0 {
			v *= ipow(in[k], p)
		}
	}
	return v
}

// derivative returns ∂term/∂in[k].
func (t Term) derivative(in [5]float64, k int) float64 {
	pk := t.Powers[k]
	if pk == 0 {
		return 0
	}
	v := t.Coefficient * float64(pk) * ipow(in[k], pk-1)
	for j, p := range t.Powers {
		if j != k && p != 0 {
			v *= ipow(in[j], p)
		}
	}
	return v
}

// Polynomial is a multi-dimensional polynomial fit of the four transported
// quantities, with exact derivatives.
type Polynomial struct {
	domain sim.Domain
	terms  [4][]Term
}

// NewPolynomial builds a polynomial optics function. terms is indexed by
// sim.OutX, sim.OutThetaX, sim.OutY, sim.OutThetaY.
func NewPolynomial(domain sim.Domain, terms [4][]Term) (*Polynomial, error) {
	if err := domain.Validate(); err != nil {
		return nil, err
	}
	p := &Polynomial{domain: domain}
	for out := range terms {
		if len(terms[out]) == 0 {
			return nil, fmt.Errorf("polynomial: output %s has no terms", outputNames[out])
		}
		for i, t := range terms[out] {
			if math.IsNaN(t.Coefficient) || math.IsInf(t.Coefficient, 0) {
				return nil, fmt.Errorf("polynomial: %s term %d: coefficient must be finite", outputNames[out], i)
			}
			for _, pw := range t.Powers {
				if pw < 0 {
					return nil, fmt.Errorf("polynomial: %s term %d: powers must be non-negative, got %v", outputNames[out], i, t.Powers)
				}
			}
		}
		p.terms[out] = append([]Term(nil), terms[out]...)
	}
	return p, nil
}

// Domain implements sim.Optics.
func (p *Polynomial) Domain() sim.Domain { return p.domain }

// Transport implements sim.Optics.
func (p *Polynomial) Transport(in sim.BeamKinematics) (sim.PlanePoint, error) {
	if !p.domain.Contains(in) {
		return sim.PlanePoint{}, fmt.Errorf("polynomial at xi=%g: %w", in.Xi, sim.ErrOutOfDomain)
	}
	v := inputs(in)
	var out [4]float64
	for o, terms := range p.terms {
		for _, t := range terms {
			out[o] += t.eval(v)
		}
	}
	return sim.CheckPoint(point(out))
}

// Jacobian implements sim.Optics.
func (p *Polynomial) Jacobian(in sim.BeamKinematics) (sim.Jacobian, error) {
	var jac sim.Jacobian
	if !p.domain.Contains(in) {
		return jac, fmt.Errorf("polynomial at xi=%g: %w", in.Xi, sim.ErrOutOfDomain)
	}
	v := inputs(in)
	for o, terms := range p.terms {
		for k := 0; k < 5; k++ {
			for _, t := range terms {
				jac[o][k] += t.derivative(v, k)
			}
		}
	}
	return jac, nil
}

var outputNames = [4]string{"x", "theta_x", "y", "theta_y"}

func inputs(in sim.BeamKinematics) [5]float64 {
	return [5]float64{in.X, in.ThetaX, in.Y, in.ThetaY, in.Xi}
}

func point(v [4]float64) sim.PlanePoint {
	return sim.PlanePoint{X: v[sim.OutX], ThetaX: v[sim.OutThetaX], Y: v[sim.OutY], ThetaY: v[sim.OutThetaY]}
}

func ipow(x float64, n int) float64 {
	r := 1.0
	for ; n > 0; n-- {
		r *= x
	}
	return r
}
