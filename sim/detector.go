package sim

import (
	"fmt"
	"math"
	"sort"
)

// ScoringPlane is the plane index that designates a package's scoring plane,
// the plane at which its optics function is defined.
const ScoringPlane = -1

// PotID identifies a detector package (Roman pot).
type PotID struct {
	Arm     Arm `json:"arm" yaml:"arm"`
	Station int `json:"station" yaml:"station"`
	Pot     int `json:"pot" yaml:"pot"`
}

func (p PotID) String() string {
	return fmt.Sprintf("%s/%d/%d", p.Arm, p.Station, p.Pot)
}

// PlaneID identifies one sensor plane within a package.
type PlaneID struct {
	Arm     Arm `json:"arm" yaml:"arm"`
	Station int `json:"station" yaml:"station"`
	Pot     int `json:"pot" yaml:"pot"`
	Plane   int `json:"plane" yaml:"plane"`
}

// PotID returns the package the plane belongs to.
func (p PlaneID) PotID() PotID {
	return PotID{Arm: p.Arm, Station: p.Station, Pot: p.Pot}
}

// IsScoringPlane reports whether p designates a package scoring plane.
func (p PlaneID) IsScoringPlane() bool {
	return p.Plane == ScoringPlane
}

func (p PlaneID) String() string {
	if p.IsScoringPlane() {
		return p.PotID().String() + "/sp"
	}
	return fmt.Sprintf("%s/%d", p.PotID(), p.Plane)
}

// ScoringPlaneOf returns the scoring plane id of a package.
func ScoringPlaneOf(pot PotID) PlaneID {
	return PlaneID{Arm: pot.Arm, Station: pot.Station, Pot: pot.Pot, Plane: ScoringPlane}
}

// Coordinate is a bit set of the local coordinates a plane measures.
type Coordinate uint8

const (
	CoordX Coordinate = 1 << iota
	CoordY

	CoordXY = CoordX | CoordY
)

// Has reports whether c includes all bits of other.
func (c Coordinate) Has(other Coordinate) bool {
	return c&other == other
}

// Count returns the number of measured coordinates.
func (c Coordinate) Count() int {
	n := 0
	if c.Has(CoordX) {
		n++
	}
	if c.Has(CoordY) {
		n++
	}
	return n
}

func (c Coordinate) String() string {
	switch c {
	case CoordX:
		return "x"
	case CoordY:
		return "y"
	case CoordXY:
		return "xy"
	default:
		return ""
	}
}

// MarshalText encodes the coordinate set as "x", "y" or "xy".
func (c Coordinate) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText decodes "x", "y", "xy" or the empty string (nothing).
func (c *Coordinate) UnmarshalText(text []byte) error {
	switch string(text) {
	case "x":
		*c = CoordX
	case "y":
		*c = CoordY
	case "xy", "both":
		*c = CoordXY
	case "":
		*c = 0
	default:
		return fmt.Errorf("unknown coordinate %q; valid: x, y, xy", string(text))
	}
	return nil
}

// Transform maps local sensor coordinates to global transverse
// coordinates: global = offset + R(rotation) · local.
type Transform struct {
	OffsetX  float64 `yaml:"offset_x"` // mm
	OffsetY  float64 `yaml:"offset_y"` // mm
	Rotation float64 `yaml:"rotation"` // rad
}

// ToGlobal maps a local point to global coordinates.
func (t Transform) ToGlobal(u, v float64) (x, y float64) {
	c, s := math.Cos(t.Rotation), math.Sin(t.Rotation)
	return t.OffsetX + c*u - s*v, t.OffsetY + s*u + c*v
}

// ToLocal maps a global point to local coordinates.
func (t Transform) ToLocal(x, y float64) (u, v float64) {
	dx, dy := x-t.OffsetX, y-t.OffsetY
	c, s := math.Cos(t.Rotation), math.Sin(t.Rotation)
	return c*dx + s*dy, -s*dx + c*dy
}

// LocalAxes returns ∂(u, v)/∂(x, y), the rows that project a global
// displacement on the local axes.
func (t Transform) LocalAxes() [2][2]float64 {
	c, s := math.Cos(t.Rotation), math.Sin(t.Rotation)
	return [2][2]float64{{c, s}, {-s, c}}
}

// Window is a rectangular acceptance region in local coordinates, mm.
type Window struct {
	MinX float64 `yaml:"min_x"`
	MaxX float64 `yaml:"max_x"`
	MinY float64 `yaml:"min_y"`
	MaxY float64 `yaml:"max_y"`
}

// Contains reports whether (u, v) lies inside the window shrunk by margin on
// every edge.
func (w Window) Contains(u, v, margin float64) bool {
	return u >= w.MinX+margin && u <= w.MaxX-margin &&
		v >= w.MinY+margin && v <= w.MaxY-margin
}

// Unbounded reports whether the window was left empty in configuration.
func (w Window) Unbounded() bool {
	return w == Window{}
}

// DetectorPlane is one sensor plane of a package.
type DetectorPlane struct {
	ID        PlaneID
	Z         float64 // distance from the IP, mm
	Transform Transform
	Window    Window
	Measures  Coordinate
	// Pitch overrides the engine pitch when positive, mm.
	Pitch float64
	// StripOrigin is the local coordinate of strip 0, mm.
	StripOrigin float64
	// InsensitiveMargin overrides the engine margin when set, mm.
	InsensitiveMargin *float64
	// Resolution is the hit σ reported when positions are not quantized, mm.
	Resolution float64
}

// DetectorPackage is a Roman pot: a scoring plane with its optics function
// and the sensor planes it holds.
type DetectorPackage struct {
	ID         PotID
	OpticsName string
	Z          float64 // scoring plane distance from the IP, mm
	Planes     []DetectorPlane
}

// Geometry is the validated detector layout. Immutable after NewGeometry.
type Geometry struct {
	byArm    [2][]DetectorPackage
	packages map[PotID]*DetectorPackage
	planes   map[PlaneID]*DetectorPlane
	scoring  map[PlaneID]*DetectorPlane
}

// NewGeometry validates the packages, orders them longitudinally per arm and
// indexes their planes.
func NewGeometry(packages []DetectorPackage) (*Geometry, error) {
	g := &Geometry{
		packages: make(map[PotID]*DetectorPackage),
		planes:   make(map[PlaneID]*DetectorPlane),
		scoring:  make(map[PlaneID]*DetectorPlane),
	}
	for i := range packages {
		pkg := packages[i]
		if !pkg.ID.Arm.Valid() {
			return nil, fmt.Errorf("package[%d]: invalid arm %d", i, int(pkg.ID.Arm))
		}
		if !(pkg.Z > 0) {
			return nil, fmt.Errorf("package %s: z must be positive, got %f", pkg.ID, pkg.Z)
		}
		if pkg.OpticsName == "" {
			return nil, fmt.Errorf("package %s: optics name required", pkg.ID)
		}
		if _, dup := g.packages[pkg.ID]; dup {
			return nil, fmt.Errorf("package %s: duplicate id", pkg.ID)
		}
		pkg.Planes = append([]DetectorPlane(nil), pkg.Planes...)
		for j := range pkg.Planes {
			pl := &pkg.Planes[j]
			if pl.ID.PotID() != pkg.ID {
				return nil, fmt.Errorf("package %s: plane %s belongs to another package", pkg.ID, pl.ID)
			}
			if pl.ID.Plane < 0 {
				return nil, fmt.Errorf("package %s: plane index must be non-negative, got %d", pkg.ID, pl.ID.Plane)
			}
			if pl.Measures == 0 {
				return nil, fmt.Errorf("plane %s: measured coordinate required", pl.ID)
			}
			if pl.Window.MinX > pl.Window.MaxX || pl.Window.MinY > pl.Window.MaxY {
				return nil, fmt.Errorf("plane %s: acceptance window is inverted", pl.ID)
			}
			if pl.Pitch < 0 || pl.Resolution < 0 {
				return nil, fmt.Errorf("plane %s: pitch and resolution must be non-negative", pl.ID)
			}
			if pl.InsensitiveMargin != nil && *pl.InsensitiveMargin < 0 {
				return nil, fmt.Errorf("plane %s: insensitive margin must be non-negative", pl.ID)
			}
		}
		sort.SliceStable(pkg.Planes, func(a, b int) bool { return pkg.Planes[a].Z < pkg.Planes[b].Z })
		g.byArm[pkg.ID.Arm] = append(g.byArm[pkg.ID.Arm], pkg)
		g.packages[pkg.ID] = nil
	}
	for arm := range g.byArm {
		list := g.byArm[arm]
		sort.SliceStable(list, func(a, b int) bool { return list[a].Z < list[b].Z })
		for i := range list {
			pkg := &list[i]
			g.packages[pkg.ID] = pkg
			for j := range pkg.Planes {
				pl := &pkg.Planes[j]
				if _, dup := g.planes[pl.ID]; dup {
					return nil, fmt.Errorf("plane %s: duplicate id", pl.ID)
				}
				g.planes[pl.ID] = pl
			}
			sp := ScoringPlaneOf(pkg.ID)
			g.scoring[sp] = &DetectorPlane{ID: sp, Z: pkg.Z, Measures: CoordXY}
		}
	}
	return g, nil
}

// Packages returns the packages of one arm ordered by increasing z.
// The returned slice must not be modified.
func (g *Geometry) Packages(arm Arm) []DetectorPackage {
	if !arm.Valid() {
		return nil
	}
	return g.byArm[arm]
}

// AllPackages returns the packages of both arms, arm 45 first.
func (g *Geometry) AllPackages() []DetectorPackage {
	out := make([]DetectorPackage, 0, len(g.packages))
	for _, arm := range Arms {
		out = append(out, g.byArm[arm]...)
	}
	return out
}

// Package looks up a package by id.
func (g *Geometry) Package(id PotID) (*DetectorPackage, bool) {
	pkg, ok := g.packages[id]
	return pkg, ok
}

// Plane looks up a sensor plane, or the synthetic scoring plane of a package
// when id.Plane is ScoringPlane. Scoring planes use the identity transform and
// measure both coordinates.
func (g *Geometry) Plane(id PlaneID) (*DetectorPlane, bool) {
	if id.IsScoringPlane() {
		pl, ok := g.scoring[id]
		return pl, ok
	}
	pl, ok := g.planes[id]
	return pl, ok
}
