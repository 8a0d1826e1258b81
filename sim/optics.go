package sim

import (
	"fmt"
	"math"
)

// BeamKinematics is the proton state at the interaction point in the beam
// frame: transverse positions in mm, angles in rad and the momentum loss ξ.
// See BeamConditions.BeamFrame for the conversion from a ProtonState.
type BeamKinematics struct {
	X      float64
	ThetaX float64
	Y      float64
	ThetaY float64
	Xi     float64
}

// PlanePoint is a transported proton at a plane: global transverse
// position in mm and angles in rad.
type PlanePoint struct {
	X      float64 `json:"x"`
	ThetaX float64 `json:"theta_x"`
	Y      float64 `json:"y"`
	ThetaY float64 `json:"theta_y"`
}

// Sub returns p - q component-wise.
func (p PlanePoint) Sub(q PlanePoint) PlanePoint {
	return PlanePoint{X: p.X - q.X, ThetaX: p.ThetaX - q.ThetaX, Y: p.Y - q.Y, ThetaY: p.ThetaY - q.ThetaY}
}

// Extrapolate moves p by dz along a straight line with its angles.
func (p PlanePoint) Extrapolate(dz float64) PlanePoint {
	p.X += p.ThetaX * dz
	p.Y += p.ThetaY * dz
	return p
}

func (p PlanePoint) finite() bool {
	for _, v := range [4]float64{p.X, p.ThetaX, p.Y, p.ThetaY} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Row indices of Jacobian and StateJacobian.
const (
	OutX = iota
	OutThetaX
	OutY
	OutThetaY
)

// Column indices of Jacobian (beam-frame inputs).
const (
	InX = iota
	InThetaX
	InY
	InThetaY
	InXi
)

// Column indices of StateJacobian (physical vertex parameters).
const (
	ParamXi = iota
	ParamThetaX
	ParamThetaY
	ParamVx
	ParamVy
)

// Jacobian holds ∂(x, θx, y, θy)/∂(x*, θx*, y*, θy*, ξ) of an optics function.
type Jacobian [4][5]float64

// StateJacobian holds ∂(x, θx, y, θy)/∂(ξ, θx, θy, vx, vy) at a plane.
type StateJacobian [4][5]float64

// Domain is the validated input range of an optics function. Zero bounds
// on angles and vertex mean "unbounded".
type Domain struct {
	XiMin     float64 `yaml:"xi_min"`
	XiMax     float64 `yaml:"xi_max"`
	ThetaMax  float64 `yaml:"theta_max"`  // max |θx*|, |θy*|, rad
	VertexMax float64 `yaml:"vertex_max"` // max |x*|, |y*|, mm
}

// Contains reports whether in lies within the domain.
func (d Domain) Contains(in BeamKinematics) bool {
	for _, v := range [5]float64{in.X, in.ThetaX, in.Y, in.ThetaY, in.Xi} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	if in.Xi < d.XiMin || in.Xi > d.XiMax {
		return false
	}
	if d.ThetaMax > 0 && (math.Abs(in.ThetaX) > d.ThetaMax || math.Abs(in.ThetaY) > d.ThetaMax) {
		return false
	}
	if d.VertexMax > 0 && (math.Abs(in.X) > d.VertexMax || math.Abs(in.Y) > d.VertexMax) {
		return false
	}
	return true
}

// Validate checks that the domain is a non-empty range.
func (d Domain) Validate() error {
	if math.IsNaN(d.XiMin) || math.IsNaN(d.XiMax) || d.XiMin > d.XiMax {
		return fmt.Errorf("domain: xi range [%f, %f] is empty", d.XiMin, d.XiMax)
	}
	if d.XiMin < 0 || d.XiMax >= 1 {
		return fmt.Errorf("domain: xi range [%f, %f] must lie within [0, 1)", d.XiMin, d.XiMax)
	}
	if d.ThetaMax < 0 || d.VertexMax < 0 {
		return fmt.Errorf("domain: theta_max and vertex_max must be non-negative")
	}
	return nil
}

// Optics maps beam-frame kinematics at the interaction point to a scoring
// plane. Implementations are immutable and safe for concurrent use.
// Concrete backends live in sim/optics.
type Optics interface {
	// Transport returns the proton at the scoring plane. It fails with
	// ErrOutOfDomain or ErrNonFinite.
	Transport(in BeamKinematics) (PlanePoint, error)

	// Jacobian returns the partial derivatives of Transport at in.
	Jacobian(in BeamKinematics) (Jacobian, error)

	// Domain returns the validated input range.
	Domain() Domain
}

// Evaluate returns both the transported point and its derivatives.
func Evaluate(o Optics, in BeamKinematics) (PlanePoint, Jacobian, error) {
	pt, err := o.Transport(in)
	if err != nil {
		return PlanePoint{}, Jacobian{}, err
	}
	jac, err := o.Jacobian(in)
	if err != nil {
		return PlanePoint{}, Jacobian{}, err
	}
	return pt, jac, nil
}

// CheckPoint wraps a backend result into ErrNonFinite when needed.
func CheckPoint(pt PlanePoint) (PlanePoint, error) {
	if !pt.finite() {
		return PlanePoint{}, fmt.Errorf("transport gave %+v: %w", pt, ErrNonFinite)
	}
	return pt, nil
}

// DefaultDerivativeSteps are the central-difference steps used by
// NumericJacobian for (x*, θx*, y*, θy*, ξ).
var DefaultDerivativeSteps = [5]float64{1e-4, 1e-7, 1e-4, 1e-7, 1e-5}

// NumericJacobian estimates the derivatives of transport by central
// differences. Steps that would leave the domain fall back to one-sided
// differences.
func NumericJacobian(transport func(BeamKinematics) (PlanePoint, error), domain Domain, in BeamKinematics, steps [5]float64) (Jacobian, error) {
	var jac Jacobian
	center, err := transport(in)
	if err != nil {
		return jac, err
	}
	for k := 0; k < 5; k++ {
		h := steps[k]
		plus, minus := shift(in, k, h), shift(in, k, -h)
		var hi, lo PlanePoint
		span := 2 * h
		switch {
		case domain.Contains(plus) && domain.Contains(minus):
			if hi, err = transport(plus); err != nil {
				return jac, err
			}
			if lo, err = transport(minus); err != nil {
				return jac, err
			}
		case domain.Contains(plus):
			if hi, err = transport(plus); err != nil {
				return jac, err
			}
			lo, span = center, h
		default:
			if lo, err = transport(minus); err != nil {
				return jac, err
			}
			hi, span = center, h
		}
		d := hi.Sub(lo)
		jac[OutX][k] = d.X / span
		jac[OutThetaX][k] = d.ThetaX / span
		jac[OutY][k] = d.Y / span
		jac[OutThetaY][k] = d.ThetaY / span
	}
	return jac, nil
}

func shift(in BeamKinematics, k int, h float64) BeamKinematics {
	switch k {
	case InX:
		in.X += h
	case InThetaX:
		in.ThetaX += h
	case InY:
		in.Y += h
	case InThetaY:
		in.ThetaY += h
	case InXi:
		in.Xi += h
	}
	return in
}

// LoadOpticsFileFunc loads a file of named optics parametrizations. It is
// set by sim/optics in its init(); production code imports sim/optics.
var LoadOpticsFileFunc func(path string) (map[string]Optics, error)

// LoadOpticsFile loads named optics through the registered loader.
func LoadOpticsFile(path string) (map[string]Optics, error) {
	if LoadOpticsFileFunc == nil {
		panic("LoadOpticsFileFunc not registered: import sim/optics to register it")
	}
	return LoadOpticsFileFunc(path)
}
