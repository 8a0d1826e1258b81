package optics_test

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forward-physics/ppsim/sim"
	"github.com/forward-physics/ppsim/sim/internal/testutil"
	"github.com/forward-physics/ppsim/sim/optics"
)

var sampleKinematics = sim.BeamKinematics{X: 0.02, ThetaX: 150e-6, Y: -0.01, ThetaY: 40e-6, Xi: 0.08}

func assertJacobianClose(t *testing.T, want, got sim.Jacobian) {
	t.Helper()
	for r := 0; r < 4; r++ {
		for k := 0; k < 5; k++ {
			tol := 1e-6 + 1e-6*math.Abs(want[r][k])
			assert.InDelta(t, want[r][k], got[r][k], tol, "d(out %d)/d(in %d)", r, k)
		}
	}
}

func TestPolynomial_Transport_MatchesHandEvaluation(t *testing.T) {
	o := testutil.NearOptics(t)

	got, err := o.Transport(sampleKinematics)
	require.NoError(t, err)

	in := sampleKinematics
	wantX := 1.5 + 80*in.Xi + 15*in.Xi*in.Xi + 4000*in.ThetaX - 2*in.X + 200*in.Xi*in.ThetaX
	wantY := 0.3 + 25000*in.ThetaY + 0.2*in.Y + 2*in.Xi
	assert.InDelta(t, wantX, got.X, 1e-12)
	assert.InDelta(t, wantY, got.Y, 1e-12)
	assert.InDelta(t, 1e-5+2e-3*in.Xi+0.5*in.ThetaX-1e-4*in.X, got.ThetaX, 1e-15)
}

func TestPolynomial_Jacobian_AgreesWithNumeric(t *testing.T) {
	for name, o := range map[string]sim.Optics{"near": testutil.NearOptics(t), "far": testutil.FarOptics(t)} {
		t.Run(name, func(t *testing.T) {
			analytic, err := o.Jacobian(sampleKinematics)
			require.NoError(t, err)
			numeric, err := sim.NumericJacobian(o.Transport, o.Domain(), sampleKinematics, sim.DefaultDerivativeSteps)
			require.NoError(t, err)
			assertJacobianClose(t, numeric, analytic)
		})
	}
}

func TestPolynomial_OutOfDomain(t *testing.T) {
	o := testutil.NearOptics(t)

	tests := []struct {
		name string
		in   sim.BeamKinematics
	}{
		{"xi above range", sim.BeamKinematics{Xi: 0.5}},
		{"negative xi", sim.BeamKinematics{Xi: -0.01}},
		{"angle too large", sim.BeamKinematics{Xi: 0.1, ThetaX: 2e-3}},
		{"vertex too far", sim.BeamKinematics{Xi: 0.1, Y: 6}},
		{"nan", sim.BeamKinematics{Xi: math.NaN()}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := o.Transport(tt.in)
			assert.ErrorIs(t, err, sim.ErrOutOfDomain)
			_, err = o.Jacobian(tt.in)
			assert.ErrorIs(t, err, sim.ErrOutOfDomain)
		})
	}
}

func TestNewPolynomial_Rejects(t *testing.T) {
	valid := testutil.NearTerms()

	noTerms := valid
	noTerms[sim.OutThetaY] = nil

	negative := testutil.NearTerms()
	negative[sim.OutX] = []optics.Term{{Coefficient: 1, Powers: [5]int{0, 0, 0, 0, -1}}}

	infinite := testutil.NearTerms()
	infinite[sim.OutY] = []optics.Term{{Coefficient: math.Inf(1)}}

	tests := []struct {
		name   string
		domain sim.Domain
		terms  [4][]optics.Term
	}{
		{"output without terms", testutil.Domain(), noTerms},
		{"negative power", testutil.Domain(), negative},
		{"infinite coefficient", testutil.Domain(), infinite},
		{"empty domain", sim.Domain{XiMin: 0.2, XiMax: 0.1}, valid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := optics.NewPolynomial(tt.domain, tt.terms)
			assert.Error(t, err)
		})
	}
}

// linearTable samples f(ξ) = a + b·ξ for every optical function.
func linearTable() optics.OpticalFunctions {
	xi := []float64{0, 0.05, 0.1, 0.15, 0.2, 0.25, 0.3}
	lin := func(a, b float64) []float64 {
		out := make([]float64, len(xi))
		for i, x := range xi {
			out[i] = a + b*x
		}
		return out
	}
	return optics.OpticalFunctions{
		Xi: xi,
		XD: lin(1, 90), VX: lin(-2, 1), LX: lin(3000, 5000), ThetaXD: lin(0, 2e-3), DVX: lin(-1e-4, 0), DLX: lin(0.5, 0.1),
		YD: lin(0.2, 1), VY: lin(0.1, 0), LY: lin(24000, -2000), ThetaYD: lin(0, 0), DVY: lin(1e-4, 0), DLY: lin(1.4, 0),
	}
}

func TestTable_LinearFunctions_ExactTransportAndDerivatives(t *testing.T) {
	// GIVEN optical functions linear in ξ
	tbl, err := optics.NewTable(testutil.Domain(), linearTable())
	require.NoError(t, err)

	// WHEN transporting the sample kinematics
	pt, err := tbl.Transport(sampleKinematics)
	require.NoError(t, err)

	// THEN the position is D + v·x* + L·θx* with the functions at ξ
	in := sampleKinematics
	wantX := (1 + 90*in.Xi) + (-2+in.Xi)*in.X + (3000+5000*in.Xi)*in.ThetaX
	wantY := (0.2 + in.Xi) + 0.1*in.Y + (24000-2000*in.Xi)*in.ThetaY
	assert.InDelta(t, wantX, pt.X, 1e-9)
	assert.InDelta(t, wantY, pt.Y, 1e-9)

	// AND the ξ derivative comes from the spline slopes
	jac, err := tbl.Jacobian(sampleKinematics)
	require.NoError(t, err)
	assert.InDelta(t, 90+in.X+5000*in.ThetaX, jac[sim.OutX][sim.InXi], 1e-6)
	assert.InDelta(t, 3000+5000*in.Xi, jac[sim.OutX][sim.InThetaX], 1e-6)
	assert.InDelta(t, 1-2000*in.ThetaY, jac[sim.OutY][sim.InXi], 1e-6)

	numeric, err := sim.NumericJacobian(tbl.Transport, tbl.Domain(), sampleKinematics, sim.DefaultDerivativeSteps)
	require.NoError(t, err)
	assertJacobianClose(t, numeric, jac)
}

func TestNewTable_Rejects(t *testing.T) {
	unsorted := linearTable()
	unsorted.Xi = []float64{0, 0.1, 0.05, 0.15, 0.2, 0.25, 0.3}

	short := linearTable()
	short.LY = short.LY[:3]

	narrow := linearTable()
	narrow.Xi = []float64{0, 0.05, 0.1, 0.15, 0.2, 0.25, 0.28}

	single := optics.OpticalFunctions{Xi: []float64{0.1}}

	tests := []struct {
		name string
		fns  optics.OpticalFunctions
	}{
		{"unsorted grid", unsorted},
		{"length mismatch", short},
		{"grid narrower than domain", narrow},
		{"single point", single},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := optics.NewTable(testutil.Domain(), tt.fns)
			assert.Error(t, err)
		})
	}
}

func TestFunc_NumericJacobianOfLinearMap(t *testing.T) {
	f, err := optics.NewFunc(testutil.Domain(), func(in sim.BeamKinematics) sim.PlanePoint {
		return sim.PlanePoint{X: 3*in.X + 100*in.Xi, ThetaX: in.ThetaX, Y: 2 * in.Y, ThetaY: 7 * in.ThetaY}
	})
	require.NoError(t, err)

	jac, err := f.Jacobian(sampleKinematics)
	require.NoError(t, err)
	assert.InDelta(t, 3, jac[sim.OutX][sim.InX], 1e-6)
	assert.InDelta(t, 100, jac[sim.OutX][sim.InXi], 1e-6)
	assert.InDelta(t, 2, jac[sim.OutY][sim.InY], 1e-6)
	assert.InDelta(t, 7, jac[sim.OutThetaY][sim.InThetaY], 1e-6)
}

func TestFunc_NumericJacobian_OneSidedAtDomainEdge(t *testing.T) {
	f, err := optics.NewFunc(testutil.Domain(), func(in sim.BeamKinematics) sim.PlanePoint {
		return sim.PlanePoint{X: 50 * in.Xi}
	})
	require.NoError(t, err)

	// GIVEN ξ exactly at the lower edge, where ξ - h leaves the domain
	jac, err := f.Jacobian(sim.BeamKinematics{Xi: 0})

	// THEN the forward difference is used
	require.NoError(t, err)
	assert.InDelta(t, 50, jac[sim.OutX][sim.InXi], 1e-6)
}

func TestFunc_NonFinite(t *testing.T) {
	f, err := optics.NewFunc(testutil.Domain(), func(in sim.BeamKinematics) sim.PlanePoint {
		return sim.PlanePoint{X: math.NaN()}
	})
	require.NoError(t, err)

	_, err = f.Transport(sim.BeamKinematics{Xi: 0.1})
	assert.ErrorIs(t, err, sim.ErrNonFinite)
}

const polynomialFile = `
optics:
  - name: near
    domain: {xi_min: 0, xi_max: 0.3, theta_max: 0.001, vertex_max: 5}
    polynomial:
      x:
        - {c: 1.5, p: [0, 0, 0, 0, 0]}
        - {c: 80, p: [0, 0, 0, 0, 1]}
      theta_x:
        - {c: 0.002, p: [0, 0, 0, 0, 1]}
      y:
        - {c: 25000, p: [0, 0, 0, 1, 0]}
      theta_y:
        - {c: 1.5, p: [0, 0, 0, 1, 0]}
  - name: far
    domain: {xi_min: 0, xi_max: 0.2}
    table:
      xi: [0, 0.1, 0.2]
      x_d: [1, 8, 16]
      v_x: [-2, -2, -2]
      l_x: [500, 500, 500]
      theta_x_d: [0, 0.0002, 0.0004]
      dv_x: [0, 0, 0]
      dl_x: [0.4, 0.4, 0.4]
      y_d: [0, 0.3, 0.6]
      v_y: [0, 0, 0]
      l_y: [22000, 22000, 22000]
      theta_y_d: [0, 0, 0]
      dv_y: [0, 0, 0]
      dl_y: [1.2, 1.2, 1.2]
`

func TestParse_BuildsEveryBackend(t *testing.T) {
	set, err := optics.Parse([]byte(polynomialFile))
	require.NoError(t, err)
	require.Len(t, set, 2)

	require.IsType(t, &optics.Polynomial{}, set["near"])
	require.IsType(t, &optics.Table{}, set["far"])

	pt, err := set["near"].Transport(sim.BeamKinematics{Xi: 0.1})
	require.NoError(t, err)
	assert.InDelta(t, 9.5, pt.X, 1e-12)

	pt, err = set["far"].Transport(sim.BeamKinematics{Xi: 0.1})
	require.NoError(t, err)
	assert.InDelta(t, 8, pt.X, 1e-12)
}

func TestParse_Rejects(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"unknown key", "optics:\n  - name: a\n    domain: {xi_min: 0, xi_max: 0.1}\n    splines: {}\n"},
		{"no backend", "optics:\n  - name: a\n    domain: {xi_min: 0, xi_max: 0.1}\n"},
		{"missing name", "optics:\n  - domain: {xi_min: 0, xi_max: 0.1}\n    polynomial: {x: [{c: 1}], theta_x: [{c: 0}], y: [{c: 0}], theta_y: [{c: 0}]}\n"},
		{"empty file", "optics: []\n"},
		{"wrong power count", "optics:\n  - name: a\n    domain: {xi_min: 0, xi_max: 0.1}\n    polynomial: {x: [{c: 1, p: [1, 2]}], theta_x: [{c: 0}], y: [{c: 0}], theta_y: [{c: 0}]}\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := optics.Parse([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestParse_DuplicateName(t *testing.T) {
	entry := "  - name: a\n    domain: {xi_min: 0, xi_max: 0.1}\n    polynomial: {x: [{c: 1}], theta_x: [{c: 0}], y: [{c: 0}], theta_y: [{c: 0}]}\n"
	_, err := optics.Parse([]byte("optics:\n" + entry + entry))
	assert.ErrorContains(t, err, "duplicate")
}

func TestLoadFile_RegisteredWithSim(t *testing.T) {
	// GIVEN an optics file on disk
	path := filepath.Join(t.TempDir(), "optics.yaml")
	require.NoError(t, os.WriteFile(path, []byte(polynomialFile), 0o644))

	// WHEN loading through the sim registration variable
	set, err := sim.LoadOpticsFile(path)

	// THEN the init() of this package has wired the loader
	require.NoError(t, err)
	assert.Contains(t, set, "near")
	assert.Contains(t, set, "far")
}

func TestLoadFile_MissingFile(t *testing.T) {
	_, err := optics.LoadFile(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
