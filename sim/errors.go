package sim

import "errors"

var (
	// ErrOutOfDomain is returned when an optics function is evaluated
	// outside the range it was validated for.
	ErrOutOfDomain = errors.New("outside optics domain")

	// ErrNonFinite is returned when a transport evaluation produces NaN or Inf.
	ErrNonFinite = errors.New("non-finite optics result")

	// ErrUnknownPlane is returned when a hit references a plane that is not
	// part of the configured geometry.
	ErrUnknownPlane = errors.New("unknown detector plane")

	// ErrMissingOptics is returned when a detector package has no optics.
	ErrMissingOptics = errors.New("missing optics parametrization")

	// ErrNoAlignment is returned when no alignment covers a run.
	ErrNoAlignment = errors.New("no alignment for run")
)
