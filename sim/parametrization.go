package sim

import (
	"fmt"
	"math"
)

// Parametrization binds one optics function to every detector package and
// evaluates protons at packages and planes in terms of their physical
// vertex parameters. It is built once, before any event is processed, and
// is read-only afterwards, so it is shared by concurrent events without
// locking.
type Parametrization struct {
	beam     BeamConditions
	geometry *Geometry
	optics   map[PotID]Optics
	beamAt   map[PlaneID]PlanePoint
}

// NewParametrization checks that every package has optics and caches the
// nominal beam trajectory at every plane.
func NewParametrization(beam BeamConditions, geometry *Geometry, optics map[PotID]Optics) (*Parametrization, error) {
	if err := beam.Validate(); err != nil {
		return nil, err
	}
	if geometry == nil {
		return nil, fmt.Errorf("parametrization: geometry required")
	}
	p := &Parametrization{
		beam:     beam,
		geometry: geometry,
		optics:   make(map[PotID]Optics, len(optics)),
		beamAt:   make(map[PlaneID]PlanePoint),
	}
	for _, pkg := range geometry.AllPackages() {
		o, ok := optics[pkg.ID]
		if !ok || o == nil {
			return nil, fmt.Errorf("package %s (%s): %w", pkg.ID, pkg.OpticsName, ErrMissingOptics)
		}
		p.optics[pkg.ID] = o
	}
	for _, pkg := range geometry.AllPackages() {
		nominal := NominalState(pkg.ID.Arm)
		sp, _, err := p.AtPackage(pkg.ID, nominal)
		if err != nil {
			return nil, fmt.Errorf("package %s: nominal beam cannot be transported: %w", pkg.ID, err)
		}
		p.beamAt[ScoringPlaneOf(pkg.ID)] = sp
		for _, pl := range pkg.Planes {
			p.beamAt[pl.ID] = sp.Extrapolate(pl.Z - pkg.Z)
		}
	}
	return p, nil
}

// BuildParametrization loads beam 1 optics for sector 56 and beam 2 optics
// for sector 45, matching packages to optics by name.
func BuildParametrization(beam BeamConditions, geometry *Geometry, beam1File, beam2File string) (*Parametrization, error) {
	beam1, err := LoadOpticsFile(beam1File)
	if err != nil {
		return nil, fmt.Errorf("loading beam 1 optics: %w", err)
	}
	beam2, err := LoadOpticsFile(beam2File)
	if err != nil {
		return nil, fmt.Errorf("loading beam 2 optics: %w", err)
	}
	byPot := make(map[PotID]Optics)
	for _, pkg := range geometry.AllPackages() {
		source, file := beam1, beam1File
		if pkg.ID.Arm == Sector45 {
			source, file = beam2, beam2File
		}
		o, ok := source[pkg.OpticsName]
		if !ok {
			return nil, fmt.Errorf("package %s: optics %q not found in %s: %w", pkg.ID, pkg.OpticsName, file, ErrMissingOptics)
		}
		byPot[pkg.ID] = o
	}
	return NewParametrization(beam, geometry, byPot)
}

// Beam returns the beam conditions.
func (p *Parametrization) Beam() BeamConditions { return p.beam }

// Geometry returns the detector layout.
func (p *Parametrization) Geometry() *Geometry { return p.geometry }

// AtPackage transports s to the scoring plane of a package. The returned
// StateJacobian holds the derivatives with respect to (ξ, θx, θy, vx, vy),
// obtained from the optics derivatives through the beam-frame transform.
func (p *Parametrization) AtPackage(pot PotID, s ProtonState) (PlanePoint, StateJacobian, error) {
	o, ok := p.optics[pot]
	if !ok {
		return PlanePoint{}, StateJacobian{}, fmt.Errorf("package %s: %w", pot, ErrUnknownPlane)
	}
	if pot.Arm != s.Arm {
		return PlanePoint{}, StateJacobian{}, fmt.Errorf("package %s evaluated for arm %s proton", pot, s.Arm)
	}
	in := p.beam.BeamFrame(s)
	if !o.Domain().Contains(in) {
		return PlanePoint{}, StateJacobian{}, fmt.Errorf("package %s, xi=%g: %w", pot, in.Xi, ErrOutOfDomain)
	}
	pt, jac, err := Evaluate(o, in)
	if err != nil {
		return PlanePoint{}, StateJacobian{}, err
	}
	return pt, p.chain(s, jac), nil
}

// AtPlane transports s to a sensor plane (or a scoring plane) by straight
// extrapolation from the package scoring plane with the transported angles.
func (p *Parametrization) AtPlane(id PlaneID, s ProtonState) (PlanePoint, StateJacobian, error) {
	pkg, ok := p.geometry.Package(id.PotID())
	if !ok {
		return PlanePoint{}, StateJacobian{}, fmt.Errorf("plane %s: %w", id, ErrUnknownPlane)
	}
	pl, ok := p.geometry.Plane(id)
	if !ok {
		return PlanePoint{}, StateJacobian{}, fmt.Errorf("plane %s: %w", id, ErrUnknownPlane)
	}
	pt, jac, err := p.AtPackage(pkg.ID, s)
	if err != nil {
		return PlanePoint{}, StateJacobian{}, err
	}
	dz := pl.Z - pkg.Z
	if dz == 0 {
		return pt, jac, nil
	}
	for k := 0; k < 5; k++ {
		jac[OutX][k] += dz * jac[OutThetaX][k]
		jac[OutY][k] += dz * jac[OutThetaY][k]
	}
	return pt.Extrapolate(dz), jac, nil
}

// BeamAtPlane returns the nominal beam trajectory at a plane.
func (p *Parametrization) BeamAtPlane(id PlaneID) (PlanePoint, bool) {
	pt, ok := p.beamAt[id]
	return pt, ok
}

// XiRange returns the ξ interval covered by the optics of every listed
// package. An unknown package contributes nothing.
func (p *Parametrization) XiRange(pots []PotID) (lo, hi float64) {
	lo, hi = 0, math.Inf(1)
	for _, pot := range pots {
		o, ok := p.optics[pot]
		if !ok {
			continue
		}
		d := o.Domain()
		lo, hi = math.Max(lo, d.XiMin), math.Min(hi, d.XiMax)
	}
	return lo, hi
}

// chain converts derivatives with respect to the beam-frame inputs into
// derivatives with respect to the vertex parameters.
func (p *Parametrization) chain(s ProtonState, j Jacobian) StateJacobian {
	alpha := p.beam.ArmBeam(s.Arm).HalfCrossingAngle
	scale := 1 - s.Xi
	var out StateJacobian
	for r := 0; r < 4; r++ {
		out[r][ParamXi] = j[r][InXi] - j[r][InThetaX]*(s.ThetaX+alpha) - j[r][InThetaY]*s.ThetaY
		out[r][ParamThetaX] = j[r][InThetaX] * scale
		out[r][ParamThetaY] = j[r][InThetaY] * scale
		out[r][ParamVx] = j[r][InX]
		out[r][ParamVy] = j[r][InY]
	}
	return out
}
