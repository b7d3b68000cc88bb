package domain

import "errors"

var (
	ErrLocationNotFound   = errors.New("location not found")
	ErrRoutePointNotFound = errors.New("route point not found")

	// A required location has no usable coordinates. Not retryable.
	ErrInvalidCoordinates = errors.New("location has no valid coordinates")

	// The segment lock was held elsewhere and no value appeared while waiting.
	// Callers should retry the whole operation later.
	ErrLockUnavailable = errors.New("segment lock unavailable")

	// A conditional segment write lost to a newer write, e.g. a stale mark.
	ErrSegmentChanged = errors.New("segment changed since it was read")
)
