// Package trace records per-arm reconstruction outcomes of a pipeline run
// and summarizes them against the generated truth.
// This package has no dependencies on sim/: it stores pure data types.
package trace

// OutcomeRecord captures the reconstruction of one arm of one event.
type OutcomeRecord struct {
	EventID    uint64
	Arm        string
	Method     string
	Reason     string
	Valid      bool
	Iterations int

	RecoXi       float64
	ChiSquareNDF float64

	// TrueXi is the generated ξ of the arm's proton; HasTruth is false when
	// the arm had hits but no generated proton (or more than one).
	TrueXi   float64
	HasTruth bool
}

// XiResidual returns reconstructed minus true ξ. ok is false for invalid
// fits and records without truth.
func (r OutcomeRecord) XiResidual() (residual float64, ok bool) {
	if !r.Valid || !r.HasTruth {
		return 0, false
	}
	return r.RecoXi - r.TrueXi, true
}
