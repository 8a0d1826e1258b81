package cmd

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/forward-physics/ppsim/sim"
	"github.com/forward-physics/ppsim/sim/gun"
	"github.com/forward-physics/ppsim/sim/pipeline"
	"github.com/forward-physics/ppsim/sim/reco"
	"github.com/forward-physics/ppsim/sim/trace"
	"github.com/forward-physics/ppsim/sim/transport"
	"github.com/forward-physics/ppsim/sim/vertex"

	// Registers the optics file loader into sim.LoadOpticsFileFunc.
	_ "github.com/forward-physics/ppsim/sim/optics"
)

// RunConfig is the full run configuration file.
// All top-level sections must be listed to satisfy KnownFields(true) strict parsing.
type RunConfig struct {
	Seed    int64  `yaml:"seed"`
	Run     uint32 `yaml:"run"`
	Workers int    `yaml:"workers"`
	Trace   string `yaml:"trace"`

	Beam      sim.BeamConditions `yaml:"beam"`
	Optics    OpticsFiles        `yaml:"optics"`
	Packages  []PackageConfig    `yaml:"packages"`
	Transport transport.Config   `yaml:"transport"`
	Smearing  vertex.Config      `yaml:"smearing"`
	Reco      RecoConfig         `yaml:"reco"`
	Gun       gun.Spec           `yaml:"gun"`
}

// OpticsFiles names the optics file of each beam. Relative paths are
// resolved against the directory of the run configuration.
type OpticsFiles struct {
	Beam1 string `yaml:"beam_1"` // sector 56
	Beam2 string `yaml:"beam_2"` // sector 45
}

// PackageConfig is one detector package in the run configuration.
type PackageConfig struct {
	ID     sim.PotID     `yaml:"id"`
	Optics string        `yaml:"optics"`
	Z      float64       `yaml:"z"` // mm
	Planes []PlaneConfig `yaml:"planes"`
}

// PlaneConfig is one sensor plane. DZ is measured from the package
// scoring plane.
type PlaneConfig struct {
	Plane             int            `yaml:"plane"`
	DZ                float64        `yaml:"dz"`
	Transform         sim.Transform  `yaml:"transform"`
	Window            sim.Window     `yaml:"window"`
	Measures          sim.Coordinate `yaml:"measures"`
	Pitch             float64        `yaml:"pitch"`
	StripOrigin       float64        `yaml:"strip_origin"`
	InsensitiveMargin *float64       `yaml:"insensitive_margin"`
	Resolution        float64        `yaml:"resolution"`
}

// RecoConfig adds the run-level choices to the reconstruction settings.
type RecoConfig struct {
	reco.Config `yaml:",inline"`

	// Alignment is the alignment file, optional.
	Alignment string      `yaml:"alignment"`
	Input     sim.HitKind `yaml:"input"`
	Method    sim.Method  `yaml:"method"`
}

// LoadRunConfig reads a run configuration with strict parsing, fills
// defaults and resolves file paths.
func LoadRunConfig(path string) (*RunConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading run config: %w", err)
	}
	var cfg RunConfig
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parsing run config: %w", err)
	}
	cfg.applyDefaults()
	dir := filepath.Dir(path)
	cfg.Optics.Beam1 = resolve(dir, cfg.Optics.Beam1)
	cfg.Optics.Beam2 = resolve(dir, cfg.Optics.Beam2)
	cfg.Reco.Alignment = resolve(dir, cfg.Reco.Alignment)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &cfg, nil
}

func resolve(dir, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(dir, p)
}

func (c *RunConfig) applyDefaults() {
	if c.Workers == 0 {
		c.Workers = 1
	}
	if c.Reco.Input == "" {
		c.Reco.Input = sim.HitRec
	}
	if c.Reco.Method == "" {
		c.Reco.Method = sim.MethodMultiPot
	}
	c.Reco.Config = c.Reco.Config.WithDefaults()
}

// Validate checks the parts of the configuration that do not need files.
func (c *RunConfig) Validate() error {
	if err := c.Beam.Validate(); err != nil {
		return err
	}
	if c.Optics.Beam1 == "" || c.Optics.Beam2 == "" {
		return fmt.Errorf("optics: beam_1 and beam_2 files required")
	}
	if len(c.Packages) == 0 {
		return fmt.Errorf("packages: at least one detector package required")
	}
	if err := c.Transport.Validate(); err != nil {
		return err
	}
	if err := c.Reco.Config.Validate(); err != nil {
		return err
	}
	if c.Reco.HitsRelativeToBeam != c.Transport.ProduceHitsRelativeToBeam {
		return fmt.Errorf("reco: hits_relative_to_beam (%t) must match transport.produce_hits_relative_to_beam (%t)",
			c.Reco.HitsRelativeToBeam, c.Transport.ProduceHitsRelativeToBeam)
	}
	if c.Reco.ApplyAlignment && c.Reco.Alignment == "" {
		return fmt.Errorf("reco: apply_alignment set but no alignment file given")
	}
	return c.pipelineConfig().Validate()
}

func (c *RunConfig) pipelineConfig() pipeline.Config {
	level := trace.TraceLevel(c.Trace)
	if level == "" {
		level = trace.TraceLevelOutcomes
	}
	return pipeline.Config{
		Workers:   c.Workers,
		Run:       c.Run,
		RecoInput: c.Reco.Input,
		Method:    c.Reco.Method,
		Trace:     trace.TraceConfig{Level: level},
	}
}

// Geometry builds the detector layout.
func (c *RunConfig) Geometry() (*sim.Geometry, error) {
	pkgs := make([]sim.DetectorPackage, len(c.Packages))
	for i, p := range c.Packages {
		pkg := sim.DetectorPackage{ID: p.ID, OpticsName: p.Optics, Z: p.Z}
		for _, pl := range p.Planes {
			pkg.Planes = append(pkg.Planes, sim.DetectorPlane{
				ID:                sim.PlaneID{Arm: p.ID.Arm, Station: p.ID.Station, Pot: p.ID.Pot, Plane: pl.Plane},
				Z:                 p.Z + pl.DZ,
				Transform:         pl.Transform,
				Window:            pl.Window,
				Measures:          pl.Measures,
				Pitch:             pl.Pitch,
				StripOrigin:       pl.StripOrigin,
				InsensitiveMargin: pl.InsensitiveMargin,
				Resolution:        pl.Resolution,
			})
		}
		pkgs[i] = pkg
	}
	return sim.NewGeometry(pkgs)
}

// Parametrization builds the geometry and binds the optics files to it.
func (c *RunConfig) Parametrization() (*sim.Parametrization, error) {
	geo, err := c.Geometry()
	if err != nil {
		return nil, err
	}
	return sim.BuildParametrization(c.Beam, geo, c.Optics.Beam1, c.Optics.Beam2)
}

// Reconstructor builds the reconstruction stage, loading the alignment
// file when one is configured.
func (c *RunConfig) Reconstructor(param *sim.Parametrization) (*reco.Reconstructor, error) {
	var set *reco.AlignmentSet
	if c.Reco.Alignment != "" {
		var err error
		if set, err = reco.LoadAlignment(c.Reco.Alignment); err != nil {
			return nil, err
		}
	}
	return reco.New(c.Reco.Config, param, set)
}

// Stages builds every pipeline stage. Reconstruction is omitted unless
// withReco is set.
func (c *RunConfig) Stages(param *sim.Parametrization, withReco bool) (pipeline.Stages, error) {
	g, err := gun.New(c.Gun)
	if err != nil {
		return pipeline.Stages{}, err
	}
	v, err := vertex.NewGenerator(c.Smearing, c.Beam)
	if err != nil {
		return pipeline.Stages{}, err
	}
	e, err := transport.NewEngine(c.Transport, param)
	if err != nil {
		return pipeline.Stages{}, err
	}
	st := pipeline.Stages{Gun: g, Vertex: v, Engine: e}
	if withReco {
		if st.Reco, err = c.Reconstructor(param); err != nil {
			return pipeline.Stages{}, err
		}
	}
	return st, nil
}

// Runner builds the parametrization and a pipeline runner.
func (c *RunConfig) Runner(withReco bool) (*pipeline.Runner, error) {
	param, err := c.Parametrization()
	if err != nil {
		return nil, err
	}
	st, err := c.Stages(param, withReco)
	if err != nil {
		return nil, err
	}
	return pipeline.New(c.pipelineConfig(), st, sim.NewSimulationKey(c.Seed))
}
