package optics

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/forward-physics/ppsim/sim"
)

// File is the on-disk form of a set of named optics functions, one per
// scoring plane of one beam.
type File struct {
	Optics []Entry `yaml:"optics"`
}

// Entry describes one optics function. Exactly one backend block must be set.
type Entry struct {
	Name       string            `yaml:"name"`
	Domain     sim.Domain        `yaml:"domain"`
	Polynomial *PolynomialSpec   `yaml:"polynomial,omitempty"`
	Table      *OpticalFunctions `yaml:"table,omitempty"`
}

// PolynomialSpec lists the monomials of each transported quantity.
type PolynomialSpec struct {
	X      []Term `yaml:"x"`
	ThetaX []Term `yaml:"theta_x"`
	Y      []Term `yaml:"y"`
	ThetaY []Term `yaml:"theta_y"`
}

// Build constructs the backend of the entry.
func (e Entry) Build() (sim.Optics, error) {
	switch {
	case e.Polynomial != nil && e.Table != nil:
		return nil, fmt.Errorf("optics %q: polynomial and table are mutually exclusive", e.Name)
	case e.Polynomial != nil:
		p := e.Polynomial
		return NewPolynomial(e.Domain, [4][]Term{p.X, p.ThetaX, p.Y, p.ThetaY})
	case e.Table != nil:
		return NewTable(e.Domain, *e.Table)
	default:
		return nil, fmt.Errorf("optics %q: one of polynomial or table required", e.Name)
	}
}

// Parse decodes an optics file strictly and builds every entry.
func Parse(data []byte) (map[string]sim.Optics, error) {
	var f File
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&f); err != nil {
		return nil, fmt.Errorf("parsing optics file: %w", err)
	}
	if len(f.Optics) == 0 {
		return nil, fmt.Errorf("optics file defines no optics")
	}
	out := make(map[string]sim.Optics, len(f.Optics))
	for i, e := range f.Optics {
		if e.Name == "" {
			return nil, fmt.Errorf("optics[%d]: name required", i)
		}
		if _, dup := out[e.Name]; dup {
			return nil, fmt.Errorf("optics[%d]: duplicate name %q", i, e.Name)
		}
		o, err := e.Build()
		if err != nil {
			return nil, fmt.Errorf("optics %q: %w", e.Name, err)
		}
		out[e.Name] = o
	}
	return out, nil
}

// LoadFile reads and parses an optics file.
func LoadFile(path string) (map[string]sim.Optics, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading optics file: %w", err)
	}
	out, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return out, nil
}
