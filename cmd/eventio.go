package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/forward-physics/ppsim/sim"
	"github.com/forward-physics/ppsim/sim/pipeline"
)

// EventRecord is one line of a simulated-hits file.
type EventRecord struct {
	Event  uint64             `json:"event"`
	Run    uint32             `json:"run"`
	Vertex sim.Vertex         `json:"vertex"`
	Truth  []sim.ProtonState  `json:"truth,omitempty"`
	Hits   []sim.SimulatedHit `json:"hits"`
}

// ProtonRecord is one line of a reconstructed-protons file.
type ProtonRecord struct {
	Event   uint64                    `json:"event"`
	Run     uint32                    `json:"run"`
	Protons []sim.ReconstructedProton `json:"protons"`
}

// NewEventRecord converts a pipeline event result. Truth lists the
// generated proton of each arm that received exactly one, arm 45 first.
func NewEventRecord(res pipeline.EventResult, run uint32, beamMomentum float64) EventRecord {
	rec := EventRecord{Event: res.Event.ID, Run: run, Vertex: res.Event.Vertex, Hits: res.Hits}
	truth := pipeline.Truth(res.Event, beamMomentum)
	for _, arm := range sim.Arms {
		if s, ok := truth[arm]; ok {
			rec.Truth = append(rec.Truth, s)
		}
	}
	if rec.Hits == nil {
		rec.Hits = []sim.SimulatedHit{}
	}
	return rec
}

// WriteJSONL writes one JSON document per line.
func WriteJSONL[T any](w io.Writer, records []T) error {
	enc := json.NewEncoder(w)
	for i, r := range records {
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("writing record %d: %w", i, err)
		}
	}
	return nil
}

// ReadEventRecords reads a simulated-hits file written by WriteJSONL.
func ReadEventRecords(r io.Reader) ([]EventRecord, error) {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	var out []EventRecord
	for {
		var rec EventRecord
		err := dec.Decode(&rec)
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("reading event record %d: %w", len(out)+1, err)
		}
		out = append(out, rec)
	}
}
