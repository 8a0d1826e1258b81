package sim

import (
	"math"

	"go-hep.org/x/hep/fmom"
)

// Reason explains the validity of a reconstructed proton.
type Reason string

const (
	ReasonOK               Reason = "ok"
	ReasonInsufficientHits Reason = "insufficient-hits"
	ReasonSingular         Reason = "singular"
	ReasonNoConvergence    Reason = "no-convergence"
	ReasonDiverged         Reason = "diverged"
	ReasonNoAlignment      Reason = "no-alignment"
)

// Method is the reconstruction strategy that produced a proton.
type Method string

const (
	MethodMultiPot  Method = "multi-pot"
	MethodSinglePot Method = "single-pot"
)

// Indices of the fitted parameters in ReconstructedProton.Covariance.
const (
	FitXi = iota
	FitThetaX
	FitThetaY
	FitVy

	NumFitParams
)

// ReconstructedProton is the result of reconstructing one arm (multi-pot)
// or one pot (single-pot) in one event. It is not modified after creation.
type ReconstructedProton struct {
	Arm    Arm    `json:"arm"`
	Method Method `json:"method"`

	Xi     float64 `json:"xi"`
	ThetaX float64 `json:"theta_x"`
	ThetaY float64 `json:"theta_y"`
	Vx     float64 `json:"vx"` // fixed during the fit, mm
	Vy     float64 `json:"vy"` // mm

	// Covariance of (ξ, θx, θy, vy); zero when the fit did not converge.
	Covariance [NumFitParams][NumFitParams]float64 `json:"covariance"`

	ChiSquare    float64 `json:"chi_square"`
	NDF          int     `json:"ndf"`
	ChiSquareNDF float64 `json:"chi_square_ndf"`
	Iterations   int     `json:"iterations"`

	Valid        bool    `json:"valid"`
	Reason       Reason  `json:"reason"`
	Contributing []PotID `json:"contributing"`
}

// Uncertainty returns the standard deviation of one fitted parameter.
func (p ReconstructedProton) Uncertainty(param int) float64 {
	if param < 0 || param >= NumFitParams {
		return math.NaN()
	}
	v := p.Covariance[param][param]
	if v < 0 {
		return math.NaN()
	}
	return math.Sqrt(v)
}

// State returns the reconstructed vertex state.
func (p ReconstructedProton) State() ProtonState {
	return ProtonState{
		Arm:    p.Arm,
		Xi:     p.Xi,
		ThetaX: p.ThetaX,
		ThetaY: p.ThetaY,
		Vertex: Vertex{X: p.Vx, Y: p.Vy},
	}
}

// Momentum returns the proton four-momentum for a beam of the given
// nominal momentum: p = p_beam (1 - ξ), with the sign of p_z set by the arm.
func (p ReconstructedProton) Momentum(beamMomentum float64) fmom.PxPyPzE {
	return ProtonMomentum(p.State(), beamMomentum)
}
