package optics

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/interp"

	"github.com/forward-physics/ppsim/sim"
)

// OpticalFunctions tabulates the linear optics of one scoring plane against
// ξ. For each plane (horizontal, vertical) the transported position is
// D(ξ) + v(ξ)·vertex + L(ξ)·angle and the transported angle is
// dD(ξ) + dv(ξ)·vertex + dL(ξ)·angle, with beam-frame vertex and angle.
type OpticalFunctions struct {
	Xi []float64 `yaml:"xi"`

	XD      []float64 `yaml:"x_d"`
	VX      []float64 `yaml:"v_x"`
	LX      []float64 `yaml:"l_x"`
	ThetaXD []float64 `yaml:"theta_x_d"`
	DVX     []float64 `yaml:"dv_x"`
	DLX     []float64 `yaml:"dl_x"`

	YD      []float64 `yaml:"y_d"`
	VY      []float64 `yaml:"v_y"`
	LY      []float64 `yaml:"l_y"`
	ThetaYD []float64 `yaml:"theta_y_d"`
	DVY     []float64 `yaml:"dv_y"`
	DLY     []float64 `yaml:"dl_y"`
}

const (
	fnXD = iota
	fnVX
	fnLX
	fnThetaXD
	fnDVX
	fnDLX
	fnYD
	fnVY
	fnLY
	fnThetaYD
	fnDVY
	fnDLY

	numFunctions
)

var functionNames = [numFunctions]string{
	"x_d", "v_x", "l_x", "theta_x_d", "dv_x", "dl_x",
	"y_d", "v_y", "l_y", "theta_y_d", "dv_y", "dl_y",
}

func (f OpticalFunctions) columns() [numFunctions][]float64 {
	return [numFunctions][]float64{
		f.XD, f.VX, f.LX, f.ThetaXD, f.DVX, f.DLX,
		f.YD, f.VY, f.LY, f.ThetaYD, f.DVY, f.DLY,
	}
}

// Table interpolates optical functions between ξ grid points with Akima
// splines. Outside the grid it refuses to extrapolate.
type Table struct {
	domain  sim.Domain
	splines [numFunctions]*interp.AkimaSpline
}

// NewTable fits one spline per optical function. The ξ grid must be
// strictly increasing and cover the domain.
func NewTable(domain sim.Domain, fns OpticalFunctions) (*Table, error) {
	if err := domain.Validate(); err != nil {
		return nil, err
	}
	n := len(fns.Xi)
	if n < 2 {
		return nil, fmt.Errorf("table: xi needs at least 2 points, got %d", n)
	}
	for i := 1; i < n; i++ {
		if !(fns.Xi[i] > fns.Xi[i-1]) {
			return nil, fmt.Errorf("table: xi must be strictly increasing (index %d)", i)
		}
	}
	if domain.XiMin < fns.Xi[0] || domain.XiMax > fns.Xi[n-1] {
		return nil, fmt.Errorf("table: domain xi [%g, %g] exceeds grid [%g, %g]",
			domain.XiMin, domain.XiMax, fns.Xi[0], fns.Xi[n-1])
	}
	t := &Table{domain: domain}
	for i, col := range fns.columns() {
		if len(col) != n {
			return nil, fmt.Errorf("table: %s has %d values, want %d", functionNames[i], len(col), n)
		}
		for _, v := range col {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, fmt.Errorf("table: %s values must be finite", functionNames[i])
			}
		}
		as := &interp.AkimaSpline{}
		if err := as.Fit(fns.Xi, col); err != nil {
			return nil, fmt.Errorf("table: fitting %s: %w", functionNames[i], err)
		}
		t.splines[i] = as
	}
	return t, nil
}

// Domain implements sim.Optics.
func (t *Table) Domain() sim.Domain { return t.domain }

// Transport implements sim.Optics.
func (t *Table) Transport(in sim.BeamKinematics) (sim.PlanePoint, error) {
	if !t.domain.Contains(in) {
		return sim.PlanePoint{}, fmt.Errorf("table at xi=%g: %w", in.Xi, sim.ErrOutOfDomain)
	}
	f := t.at(in.Xi, false)
	return sim.CheckPoint(sim.PlanePoint{
		X:      f[fnXD] + f[fnVX]*in.X + f[fnLX]*in.ThetaX,
		ThetaX: f[fnThetaXD] + f[fnDVX]*in.X + f[fnDLX]*in.ThetaX,
		Y:      f[fnYD] + f[fnVY]*in.Y + f[fnLY]*in.ThetaY,
		ThetaY: f[fnThetaYD] + f[fnDVY]*in.Y + f[fnDLY]*in.ThetaY,
	})
}

// Jacobian implements sim.Optics. The ξ column uses the spline derivatives.
func (t *Table) Jacobian(in sim.BeamKinematics) (sim.Jacobian, error) {
	var jac sim.Jacobian
	if !t.domain.Contains(in) {
		return jac, fmt.Errorf("table at xi=%g: %w", in.Xi, sim.ErrOutOfDomain)
	}
	f := t.at(in.Xi, false)
	d := t.at(in.Xi, true)

	jac[sim.OutX][sim.InX] = f[fnVX]
	jac[sim.OutX][sim.InThetaX] = f[fnLX]
	jac[sim.OutX][sim.InXi] = d[fnXD] + d[fnVX]*in.X + d[fnLX]*in.ThetaX

	jac[sim.OutThetaX][sim.InX] = f[fnDVX]
	jac[sim.OutThetaX][sim.InThetaX] = f[fnDLX]
	jac[sim.OutThetaX][sim.InXi] = d[fnThetaXD] + d[fnDVX]*in.X + d[fnDLX]*in.ThetaX

	jac[sim.OutY][sim.InY] = f[fnVY]
	jac[sim.OutY][sim.InThetaY] = f[fnLY]
	jac[sim.OutY][sim.InXi] = d[fnYD] + d[fnVY]*in.Y + d[fnLY]*in.ThetaY

	jac[sim.OutThetaY][sim.InY] = f[fnDVY]
	jac[sim.OutThetaY][sim.InThetaY] = f[fnDLY]
	jac[sim.OutThetaY][sim.InXi] = d[fnThetaYD] + d[fnDVY]*in.Y + d[fnDLY]*in.ThetaY
	return jac, nil
}

func (t *Table) at(xi float64, derivative bool) [numFunctions]float64 {
	var out [numFunctions]float64
	for i, s := range t.splines {
		if derivative {
			out[i] = s.PredictDerivative(xi)
		} else {
			out[i] = s.Predict(xi)
		}
	}
	return out
}
