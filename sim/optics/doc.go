// Package optics provides the sim.Optics backends: Polynomial (multi-dimensional
// fit with exact derivatives), Table (optical functions against ξ, Akima
// interpolated) and Func (any function, numeric derivatives), plus the YAML
// loader for files of named optics.
package optics
