package usecase

import "errors"

var (
	// ErrDataUnavailable means a remote fetch failed and no previously
	// cached value exists to fall back to.
	ErrDataUnavailable = errors.New("remote data unavailable")

	// ErrNotFound means the referenced device or entity is not registered.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput means the request failed validation.
	ErrInvalidInput = errors.New("invalid input")

	// ErrDeliveryFailed means a push was attempted and rejected.
	ErrDeliveryFailed = errors.New("push delivery failed")

	// ErrQueueFull means the dispatch queue rejected a new job.
	ErrQueueFull = errors.New("dispatch queue full")
)
