// Package testutil provides shared test fixtures for the ppsim packages: a
// two-station detector per arm, polynomial optics for it and matching beam
// conditions. The optics are smooth, well conditioned and mildly non-linear
// in ξ, so fits converge in a few iterations.
package testutil

import (
	"testing"

	"github.com/forward-physics/ppsim/sim"
	"github.com/forward-physics/ppsim/sim/optics"
)

// Scoring plane positions, mm from the IP.
const (
	NearZ = 203827.0
	FarZ  = 212550.0

	// PlaneOffset is the distance of the two sensor planes of a package from
	// its scoring plane, mm.
	PlaneOffset = 5.0

	HalfCrossingAngle = 140e-6
	BeamMomentum      = 6500.0
)

// NearPot and FarPot return the two packages of an arm.
func NearPot(arm sim.Arm) sim.PotID { return sim.PotID{Arm: arm, Station: 0, Pot: 3} }
func FarPot(arm sim.Arm) sim.PotID { return sim.PotID{Arm: arm, Station: 2, Pot: 3} }

// Beam returns beam conditions with a horizontal crossing angle, no vertical
// offset and LHC-like spreads.
func Beam() sim.BeamConditions {
	return sim.BeamConditions{
		Momentum:     BeamMomentum,
		Sector45:     sim.ArmBeam{HalfCrossingAngle: HalfCrossingAngle},
		Sector56:     sim.ArmBeam{HalfCrossingAngle: HalfCrossingAngle},
		DivergenceX:  30e-6,
		DivergenceY:  30e-6,
		VertexSigmaX: 0.001,
		VertexSigmaY: 0.001,
		VertexSigmaZ: 5,
	}
}

// Domain is the validity range of the fixture optics.
func Domain() sim.Domain {
	return sim.Domain{XiMin: 0, XiMax: 0.3, ThetaMax: 1e-3, VertexMax: 5}
}

// Window is the acceptance of every fixture sensor plane.
func Window() sim.Window {
	return sim.Window{MinX: -5, MaxX: 40, MinY: -15, MaxY: 15}
}

func term(c float64, powers ...int) optics.Term {
	t := optics.Term{Coefficient: c}
	copy(t.Powers[:], powers)
	return t
}

// Exponent helpers in (x*, θx*, y*, θy*, ξ) order.
var (
	one   = []int{0, 0, 0, 0, 0}
	vx    = []int{1, 0, 0, 0, 0}
	thx   = []int{0, 1, 0, 0, 0}
	vy    = []int{0, 0, 1, 0, 0}
	thy   = []int{0, 0, 0, 1, 0}
	xi    = []int{0, 0, 0, 0, 1}
	xi2   = []int{0, 0, 0, 0, 2}
	xiThx = []int{0, 1, 0, 0, 1}
)

// NearTerms and FarTerms are the polynomial coefficients of the two stations.
func NearTerms() [4][]optics.Term {
	return [4][]optics.Term{
		{term(1.5, one...), term(80, xi...), term(15, xi2...), term(4000, thx...), term(-2, vx...), term(200, xiThx...)},
		{term(1e-5, one...), term(2e-3, xi...), term(0.5, thx...), term(-1e-4, vx...)},
		{term(0.3, one...), term(25000, thy...), term(0.2, vy...), term(2, xi...)},
		{term(1e-6, one...), term(1.5, thy...), term(1e-4, vy...)},
	}
}

func FarTerms() [4][]optics.Term {
	return [4][]optics.Term{
		{term(1.2, one...), term(75, xi...), term(12, xi2...), term(500, thx...), term(-1.5, vx...)},
		{term(2e-5, one...), term(2.5e-3, xi...), term(0.4, thx...), term(-1e-4, vx...)},
		{term(0.2, one...), term(22000, thy...), term(-0.1, vy...), term(3, xi...)},
		{term(2e-6, one...), term(1.2, thy...), term(1e-4, vy...)},
	}
}

// NearOptics and FarOptics build the fixture optics.
func NearOptics(t testing.TB) sim.Optics { return polynomial(t, NearTerms()) }
func FarOptics(t testing.TB) sim.Optics { return polynomial(t, FarTerms()) }

func polynomial(t testing.TB, terms [4][]optics.Term) sim.Optics {
	t.Helper()
	p, err := optics.NewPolynomial(Domain(), terms)
	if err != nil {
		t.Fatalf("fixture optics: %v", err)
	}
	return p
}

// Package returns a fixture package at z with two sensor planes measuring
// both coordinates, PlaneOffset before and after the scoring plane.
func Package(pot sim.PotID, name string, z float64) sim.DetectorPackage {
	planes := make([]sim.DetectorPlane, 2)
	for i, dz := range []float64{-PlaneOffset, PlaneOffset} {
		planes[i] = sim.DetectorPlane{
			ID:         sim.PlaneID{Arm: pot.Arm, Station: pot.Station, Pot: pot.Pot, Plane: i},
			Z:          z + dz,
			Window:     Window(),
			Measures:   sim.CoordXY,
			Resolution: 0.01,
		}
	}
	return sim.DetectorPackage{ID: pot, OpticsName: name, Z: z, Planes: planes}
}

// Packages returns the near and far packages of both arms.
func Packages() []sim.DetectorPackage {
	var out []sim.DetectorPackage
	for _, arm := range sim.Arms {
		out = append(out, Package(NearPot(arm), "near", NearZ), Package(FarPot(arm), "far", FarZ))
	}
	return out
}

// Geometry builds the fixture geometry.
func Geometry(t testing.TB) *sim.Geometry {
	t.Helper()
	g, err := sim.NewGeometry(Packages())
	if err != nil {
		t.Fatalf("fixture geometry: %v", err)
	}
	return g
}

// Parametrization binds NearOptics and FarOptics to the fixture geometry.
func Parametrization(t testing.TB) *sim.Parametrization {
	t.Helper()
	return ParametrizationWith(t, NearOptics(t), FarOptics(t))
}

// ParametrizationWith binds the given optics to the near and far packages of
// both arms.
func ParametrizationWith(t testing.TB, near, far sim.Optics) *sim.Parametrization {
	t.Helper()
	byPot := make(map[sim.PotID]sim.Optics)
	for _, arm := range sim.Arms {
		byPot[NearPot(arm)] = near
		byPot[FarPot(arm)] = far
	}
	p, err := sim.NewParametrization(Beam(), Geometry(t), byPot)
	if err != nil {
		t.Fatalf("fixture parametrization: %v", err)
	}
	return p
}
