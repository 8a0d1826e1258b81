package trace

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// TraceSummary aggregates statistics from a RunTrace.
type TraceSummary struct {
	TotalArms      int            `json:"total_arms"`
	ValidCount     int            `json:"valid"`
	InvalidCount   int            `json:"invalid"`
	ReasonCounts   map[string]int `json:"reasons"`         // reason code → number of arms
	MeanIterations float64        `json:"mean_iterations"` // over valid fits

	// ξ residuals (reconstructed − true) over valid fits with truth.
	ResidualCount  int     `json:"residual_count"`
	XiResidualMean float64 `json:"xi_residual_mean"`
	XiResidualRMS  float64 `json:"xi_residual_rms"`
	XiResidualMax  float64 `json:"xi_residual_max"` // largest absolute residual
}

// Summarize computes aggregate statistics from a RunTrace.
// Safe for nil or empty traces (returns zero-value fields).
func Summarize(rt *RunTrace) *TraceSummary {
	summary := &TraceSummary{
		ReasonCounts: make(map[string]int),
	}
	if rt == nil {
		return summary
	}

	summary.TotalArms = len(rt.Outcomes)
	var residuals []float64
	iterations := 0
	for _, o := range rt.Outcomes {
		summary.ReasonCounts[o.Reason]++
		if !o.Valid {
			summary.InvalidCount++
			continue
		}
		summary.ValidCount++
		iterations += o.Iterations
		if r, ok := o.XiResidual(); ok {
			residuals = append(residuals, r)
		}
	}
	if summary.ValidCount > 0 {
		summary.MeanIterations = float64(iterations) / float64(summary.ValidCount)
	}

	if n := len(residuals); n > 0 {
		summary.ResidualCount = n
		summary.XiResidualMean = floats.Sum(residuals) / float64(n)
		summary.XiResidualRMS = math.Sqrt(floats.Dot(residuals, residuals) / float64(n))
		summary.XiResidualMax = math.Max(math.Abs(floats.Max(residuals)), math.Abs(floats.Min(residuals)))
	}

	return summary
}
