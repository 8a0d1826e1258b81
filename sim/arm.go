package sim

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Arm identifies one of the two beam-exit directions from the interaction
// point. The two arms are simulated and reconstructed independently.
type Arm int

const (
	// Sector45 is the arm seen by protons with negative p_z (beam 2 optics).
	Sector45 Arm = 0
	// Sector56 is the arm seen by protons with positive p_z (beam 1 optics).
	Sector56 Arm = 1
)

// Arms lists both arms in index order.
var Arms = [2]Arm{Sector45, Sector56}

// ArmFromPz assigns the arm from the sign of the longitudinal momentum.
func ArmFromPz(pz float64) Arm {
	if pz < 0 {
		return Sector45
	}
	return Sector56
}

// ZSign returns -1 for sector 45 and +1 for sector 56.
func (a Arm) ZSign() float64 {
	if a == Sector45 {
		return -1
	}
	return 1
}

// Valid reports whether a is one of the two known arms.
func (a Arm) Valid() bool {
	return a == Sector45 || a == Sector56
}

func (a Arm) String() string {
	switch a {
	case Sector45:
		return "45"
	case Sector56:
		return "56"
	default:
		return fmt.Sprintf("arm(%d)", int(a))
	}
}

// ParseArm accepts "45" or "56".
func ParseArm(s string) (Arm, error) {
	switch s {
	case "45":
		return Sector45, nil
	case "56":
		return Sector56, nil
	default:
		return 0, fmt.Errorf("unknown arm %q; valid: 45, 56", s)
	}
}

// MarshalText encodes the arm as "45" or "56".
func (a Arm) MarshalText() ([]byte, error) {
	if !a.Valid() {
		return nil, fmt.Errorf("cannot encode invalid arm %d", int(a))
	}
	return []byte(a.String()), nil
}

// UnmarshalText decodes "45" or "56".
func (a *Arm) UnmarshalText(text []byte) error {
	parsed, err := ParseArm(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// UnmarshalYAML accepts both quoted and bare sector numbers.
func (a *Arm) UnmarshalYAML(value *yaml.Node) error {
	return a.UnmarshalText([]byte(value.Value))
}
