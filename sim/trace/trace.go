package trace

// TraceLevel controls the verbosity of outcome tracing.
type TraceLevel string

const (
	// TraceLevelNone disables tracing (zero overhead).
	TraceLevelNone TraceLevel = "none"
	// TraceLevelOutcomes captures one record per reconstructed arm.
	TraceLevelOutcomes TraceLevel = "outcomes"
)

// validTraceLevels maps accepted trace level strings.
var validTraceLevels = map[TraceLevel]bool{
	TraceLevelNone:     true,
	TraceLevelOutcomes: true,
	"":                 true, // empty defaults to none
}

// IsValidTraceLevel returns true if the given level string is a recognized trace level.
func IsValidTraceLevel(level string) bool {
	return validTraceLevels[TraceLevel(level)]
}

// TraceConfig controls trace collection behavior.
type TraceConfig struct {
	Level TraceLevel
}

// Enabled reports whether records should be collected.
func (c TraceConfig) Enabled() bool {
	return c.Level == TraceLevelOutcomes
}

// RunTrace collects outcome records during a pipeline run. Records are
// appended by a single goroutine, in event order.
type RunTrace struct {
	Config   TraceConfig
	RunID    string
	Outcomes []OutcomeRecord
}

// NewRunTrace creates a RunTrace ready for recording.
func NewRunTrace(config TraceConfig, runID string) *RunTrace {
	return &RunTrace{
		Config:   config,
		RunID:    runID,
		Outcomes: make([]OutcomeRecord, 0),
	}
}

// RecordOutcome appends an outcome record. No-op when tracing is disabled.
func (rt *RunTrace) RecordOutcome(record OutcomeRecord) {
	if !rt.Config.Enabled() {
		return
	}
	rt.Outcomes = append(rt.Outcomes, record)
}
