// register.go wires the optics file loader into the sim package's registration
// variable (LoadOpticsFileFunc). This init() runs when any package imports
// sim/optics, breaking the import cycle between sim/ (interface owner) and
// sim/optics/ (backends). Production code imports sim/optics directly;
// test code in package sim uses optics_import_test.go for the blank import.
package optics

import "github.com/forward-physics/ppsim/sim"

func init() {
	sim.LoadOpticsFileFunc = LoadFile
}
