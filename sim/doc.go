// Package sim provides the core types of the forward-proton simulation:
// beam conditions, detector geometry, proton kinematics, hits and the
// optics parametrization that maps a proton state at the interaction point
// to its position at each detector plane.
//
// # Reading Guide
//
// Start with these files:
//   - event.go: generator events and the (ξ, θx, θy, vertex) proton state
//   - detector.go: Roman pot packages, sensor planes and their transforms
//   - parametrization.go: optics bound to the geometry, with Jacobians
//
// # Architecture
//
// The sim package defines the shared types; the stages live in
// sub-packages:
//   - sim/optics/: optics file loading, polynomial and tabulated transport
//   - sim/gun/: particle gun
//   - sim/vertex/: vertex and beam-divergence smearing
//   - sim/transport/: propagation to the sensors and hit production
//   - sim/reco/: alignment and least-squares proton reconstruction
//   - sim/pipeline/: parallel, seed-reproducible event processing
//   - sim/trace/: per-arm reconstruction outcomes and summaries
//
// sim/optics registers its loader via init() by setting
// LoadOpticsFileFunc, which keeps sim free of an import cycle.
//
// # Units
//
// Lengths are in mm, angles in rad, momenta and energies in GeV. ξ is the
// fractional momentum loss, 1 - |p|/p_beam.
package sim
