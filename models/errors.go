package models

import "errors"

var (
	// ErrInvalidCoordinate is returned when a latitude or longitude falls
	// outside the WGS84 range. Nothing is written when it is returned.
	ErrInvalidCoordinate = errors.New("invalid coordinate")

	// ErrInvalidGeometry is returned for zone rings with fewer than three
	// distinct vertices.
	ErrInvalidGeometry = errors.New("invalid geometry")

	// ErrNotFound means no record exists yet. Callers treat it as a normal
	// outcome.
	ErrNotFound = errors.New("not found")

	// ErrUnavailable marks a durable backend that is currently unreachable.
	ErrUnavailable = errors.New("backend unavailable")

	// ErrTransport is a network-level failure talking to a remote peer.
	ErrTransport = errors.New("transport failure")

	// ErrInvalidPayload is returned by readers when a stored or received
	// record is not well formed.
	ErrInvalidPayload = errors.New("invalid payload")
)
