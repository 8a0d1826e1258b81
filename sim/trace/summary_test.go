package trace

import (
	"math"
	"testing"
)

func TestSummarize_EmptyTrace_ZeroValues(t *testing.T) {
	// GIVEN an empty trace
	rt := NewRunTrace(TraceConfig{Level: TraceLevelOutcomes}, "")

	// WHEN summarized
	summary := Summarize(rt)

	// THEN all counts are zero
	if summary.TotalArms != 0 {
		t.Errorf("expected 0 arms, got %d", summary.TotalArms)
	}
	if summary.ValidCount != 0 || summary.InvalidCount != 0 {
		t.Error("expected 0 valid and invalid")
	}
	if summary.ResidualCount != 0 || summary.XiResidualMean != 0 || summary.XiResidualRMS != 0 {
		t.Error("expected zero residual statistics")
	}
	if len(summary.ReasonCounts) != 0 {
		t.Error("expected empty reason counts")
	}
}

func TestSummarize_NilTrace_ZeroValues(t *testing.T) {
	summary := Summarize(nil)
	if summary.TotalArms != 0 || summary.ReasonCounts == nil {
		t.Errorf("expected zero summary with initialized map, got %+v", summary)
	}
}

func TestSummarize_PopulatedTrace_CorrectStatistics(t *testing.T) {
	// GIVEN a trace with valid fits, a failed fit and a fit without truth
	rt := NewRunTrace(TraceConfig{Level: TraceLevelOutcomes}, "")
	rt.RecordOutcome(OutcomeRecord{EventID: 1, Arm: "45", Reason: "ok", Valid: true, Iterations: 3, RecoXi: 0.11, TrueXi: 0.1, HasTruth: true})
	rt.RecordOutcome(OutcomeRecord{EventID: 1, Arm: "56", Reason: "ok", Valid: true, Iterations: 5, RecoXi: 0.07, TrueXi: 0.1, HasTruth: true})
	rt.RecordOutcome(OutcomeRecord{EventID: 2, Arm: "45", Reason: "insufficient-hits"})
	rt.RecordOutcome(OutcomeRecord{EventID: 3, Arm: "56", Reason: "ok", Valid: true, Iterations: 4, RecoXi: 0.2})

	// WHEN summarized
	summary := Summarize(rt)

	// THEN counts and residual statistics match
	if summary.TotalArms != 4 {
		t.Errorf("expected 4 arms, got %d", summary.TotalArms)
	}
	if summary.ValidCount != 3 || summary.InvalidCount != 1 {
		t.Errorf("expected 3 valid and 1 invalid, got %d and %d", summary.ValidCount, summary.InvalidCount)
	}
	if summary.ReasonCounts["ok"] != 3 || summary.ReasonCounts["insufficient-hits"] != 1 {
		t.Errorf("unexpected reason counts %v", summary.ReasonCounts)
	}
	if math.Abs(summary.MeanIterations-4) > 1e-12 {
		t.Errorf("expected mean iterations 4, got %g", summary.MeanIterations)
	}
	if summary.ResidualCount != 2 {
		t.Fatalf("expected 2 residuals, got %d", summary.ResidualCount)
	}
	// residuals +0.01 and -0.03
	if math.Abs(summary.XiResidualMean-(-0.01)) > 1e-12 {
		t.Errorf("expected mean residual -0.01, got %g", summary.XiResidualMean)
	}
	if want := math.Sqrt((0.0001 + 0.0009) / 2); math.Abs(summary.XiResidualRMS-want) > 1e-12 {
		t.Errorf("expected rms %g, got %g", want, summary.XiResidualRMS)
	}
	if math.Abs(summary.XiResidualMax-0.03) > 1e-12 {
		t.Errorf("expected max residual 0.03, got %g", summary.XiResidualMax)
	}
}
