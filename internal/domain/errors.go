package domain

import "errors"

var (
	ErrNotFound         = errors.New("not found")
	ErrVenueUnavailable = errors.New("venue unavailable")
	ErrUnknownVenue     = errors.New("unknown venue")
	ErrAuthentication   = errors.New("authentication failed")
	ErrOrderRejected    = errors.New("order rejected")
	ErrInvalidOrder     = errors.New("invalid order parameters")
	ErrTradingDisabled  = errors.New("trading disabled")

	// ErrStreamClosed ends a streaming loop for good. Drivers must return it
	// only after a deliberate local Close; a venue-side disconnect is a
	// transient failure and gets a driver-specific error so the stream
	// retries with backoff.
	ErrStreamClosed = errors.New("order book stream closed")
)
