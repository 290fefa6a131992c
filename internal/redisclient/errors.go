package redisclient

import "errors"

var (
	// ErrNotFound is returned when a row does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrStoreUnavailable is returned when Redis cannot serve the call,
	// including while the circuit breaker is open.
	ErrStoreUnavailable = errors.New("store unavailable")
)
