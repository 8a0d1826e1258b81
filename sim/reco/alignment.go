package reco

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/forward-physics/ppsim/sim"
)

// Correction is the measured misalignment of one plane in its local frame:
// a shift and a small rotation. Applying it to a raw hit gives the aligned
// hit.
type Correction struct {
	Plane    sim.PlaneID `yaml:"plane"`
	DX       float64     `yaml:"dx"`       // mm
	DY       float64     `yaml:"dy"`       // mm
	Rotation float64     `yaml:"rotation"` // rad
}

// Apply corrects a hit: u' = u + dx − rot·v, v' = v + dy + rot·u.
func (c Correction) Apply(h sim.TrackHit) sim.TrackHit {
	u, v := h.X, h.Y
	h.X = u + c.DX - c.Rotation*v
	h.Y = v + c.DY + c.Rotation*u
	return h
}

// Corrections maps planes to their alignment. Planes without an entry are
// taken as perfectly aligned.
type Corrections map[sim.PlaneID]Correction

// Apply corrects every hit that has an entry.
func (cs Corrections) Apply(hits []sim.TrackHit) []sim.TrackHit {
	out := make([]sim.TrackHit, len(hits))
	for i, h := range hits {
		if c, ok := cs[h.Plane]; ok {
			h = c.Apply(h)
		}
		out[i] = h
	}
	return out
}

// Fill is the validity window of one alignment tag.
type Fill struct {
	Fill   uint32 `yaml:"fill"`
	Margin bool   `yaml:"margin"` // pots at the margin position rather than physics position
	RunMin uint32 `yaml:"run_min"`
	RunMax uint32 `yaml:"run_max"`
	Tag    string `yaml:"tag"`
}

// AlignmentSet holds the alignment corrections of a data-taking period.
// Immutable after loading.
type AlignmentSet struct {
	Fills      []Fill                  `yaml:"fills"`
	Alignments map[string][]Correction `yaml:"alignments"`

	byTag map[string]Corrections
}

// ParseAlignment decodes an alignment file strictly and indexes it.
func ParseAlignment(data []byte) (*AlignmentSet, error) {
	var a AlignmentSet
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&a); err != nil {
		return nil, fmt.Errorf("parsing alignment: %w", err)
	}
	if err := a.index(); err != nil {
		return nil, err
	}
	return &a, nil
}

// LoadAlignment reads and parses an alignment file.
func LoadAlignment(path string) (*AlignmentSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading alignment: %w", err)
	}
	a, err := ParseAlignment(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return a, nil
}

func (a *AlignmentSet) index() error {
	a.byTag = make(map[string]Corrections, len(a.Alignments))
	for tag, list := range a.Alignments {
		cs := make(Corrections, len(list))
		for i, c := range list {
			if _, dup := cs[c.Plane]; dup {
				return fmt.Errorf("alignment %q[%d]: duplicate plane %s", tag, i, c.Plane)
			}
			cs[c.Plane] = c
		}
		a.byTag[tag] = cs
	}
	for i, f := range a.Fills {
		if f.RunMin > f.RunMax {
			return fmt.Errorf("fills[%d]: run_min %d > run_max %d", i, f.RunMin, f.RunMax)
		}
		if _, ok := a.byTag[f.Tag]; !ok {
			return fmt.Errorf("fills[%d]: unknown alignment tag %q", i, f.Tag)
		}
	}
	return nil
}

// ForRun returns the corrections valid for a run: those of the first fill
// whose run range contains it.
func (a *AlignmentSet) ForRun(run uint32) (Corrections, error) {
	for _, f := range a.Fills {
		if f.RunMin <= run && run <= f.RunMax {
			return a.byTag[f.Tag], nil
		}
	}
	return nil, fmt.Errorf("run %d: %w", run, sim.ErrNoAlignment)
}

// ForFill returns the corrections of a fill in the given pot configuration.
func (a *AlignmentSet) ForFill(fill uint32, margin bool) (Corrections, error) {
	for _, f := range a.Fills {
		if f.Fill == fill && f.Margin == margin {
			return a.byTag[f.Tag], nil
		}
	}
	return nil, fmt.Errorf("fill %d (margin=%t): %w", fill, margin, sim.ErrNoAlignment)
}
