package domain

import "errors"

var (
	// ErrInvalidCoordinate marks a non-finite or out-of-range coordinate.
	ErrInvalidCoordinate = errors.New("invalid coordinate")

	// ErrInitialization is returned when a provider cannot bind to its surface.
	ErrInitialization = errors.New("map provider initialization failed")

	// ErrNotInitialized is returned by provider calls made before initialize
	// resolved or after destroy.
	ErrNotInitialized = errors.New("map provider not initialized")

	// ErrInvalidBounds is recovered inside providers and never surfaced.
	ErrInvalidBounds = errors.New("invalid bounds")

	// ErrTileTimeout and ErrTileLoad feed the tile circuit breaker.
	ErrTileTimeout = errors.New("tile load timed out")
	ErrTileLoad    = errors.New("tile load failed")

	// ErrDisconnectedTopology annotates warning markers; it is not a failure.
	ErrDisconnectedTopology = errors.New("disconnected segment chain")

	ErrSceneNotFound  = errors.New("scene not found")
	ErrInvalidRequest = errors.New("invalid request")
)
