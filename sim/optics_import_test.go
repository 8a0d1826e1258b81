package sim_test

// The blank import runs sim/optics' init(), which sets LoadOpticsFileFunc,
// so tests in package sim can build parametrizations from optics files.
import _ "github.com/forward-physics/ppsim/sim/optics"
