package sim

import "fmt"

// HitKind distinguishes ideal scoring-plane hits from sensor-level hits.
type HitKind string

const (
	// HitScoringPlane is an ideal hit at a package scoring plane, with full
	// geometric information and no granularity.
	HitScoringPlane HitKind = "scoring-plane"
	// HitRec is a sensor hit limited by acceptance and granularity, as the
	// pattern-recognition stage would see it.
	HitRec HitKind = "rec"
)

// SimulatedHit is one hit produced by the fast simulation. Scoring-plane
// hits carry global positions, rec hits local sensor positions; both in mm.
type SimulatedHit struct {
	Kind     HitKind    `json:"kind"`
	Plane    PlaneID    `json:"plane"`
	X        float64    `json:"x"`
	Y        float64    `json:"y"`
	SigmaX   float64    `json:"sigma_x"`
	SigmaY   float64    `json:"sigma_y"`
	Measured Coordinate `json:"measured"`
}

// Arm returns the arm of the hit's plane.
func (h SimulatedHit) Arm() Arm { return h.Plane.Arm }

// TrackHit converts the hit into reconstruction input.
func (h SimulatedHit) TrackHit() TrackHit {
	return TrackHit{
		Plane:    h.Plane,
		X:        h.X,
		Y:        h.Y,
		XUnc:     h.SigmaX,
		YUnc:     h.SigmaY,
		Measured: h.Measured,
	}
}

// TrackHit is a measured position at one plane, in local coordinates, mm.
// Measured tells which coordinates carry information: strip planes
// typically measure one, pixel planes and scoring planes both.
type TrackHit struct {
	Plane    PlaneID    `json:"plane"`
	X        float64    `json:"x"`
	XUnc     float64    `json:"x_unc"`
	Y        float64    `json:"y"`
	YUnc     float64    `json:"y_unc"`
	Measured Coordinate `json:"measured"`
}

func (h TrackHit) String() string {
	return fmt.Sprintf("%s: x=%.4f±%.4f y=%.4f±%.4f (%s)", h.Plane, h.X, h.XUnc, h.Y, h.YUnc, h.Measured)
}

// TrackHits converts simulated hits of the given kind into reconstruction
// input, preserving order.
func TrackHits(hits []SimulatedHit, kind HitKind) []TrackHit {
	out := make([]TrackHit, 0, len(hits))
	for _, h := range hits {
		if h.Kind == kind {
			out = append(out, h.TrackHit())
		}
	}
	return out
}
