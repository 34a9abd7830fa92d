package engine

import (
	"cosmossdk.io/errors"
)

// Negotiation error codes. Handlers map these to HTTP statuses.
var (
	ErrInvalidInput = errors.Register("negotiation", 1, "invalid input")
	ErrNotFound     = errors.Register("negotiation", 2, "not found")
	ErrForbidden    = errors.Register("negotiation", 3, "forbidden")
	ErrConflict     = errors.Register("negotiation", 4, "conflict")
	ErrRateLimited  = errors.Register("negotiation", 5, "rate limited")
	ErrTerminal     = errors.Register("negotiation", 6, "session is in a terminal state")
	ErrDegraded     = errors.Register("negotiation", 7, "store unavailable")

	// Request-shape errors
	ErrPayloadTooLarge = errors.Register("negotiation", 8, "request body too large")
)
