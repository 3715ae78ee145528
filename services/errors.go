package services

import "errors"

// Error taxonomy surfaced by the messaging core. Handlers map these to
// HTTP statuses; the websocket gateway maps them to scoped error events.
var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrForbidden       = errors.New("forbidden")
	ErrNotFound        = errors.New("not found")
)
