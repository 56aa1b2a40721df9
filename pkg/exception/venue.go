package exception

import "errors"

// Per-venue errors. The router absorbs them into the route result.
var (
	ErrVenueUnreachable = errors.New("venue: unreachable")
	ErrVenueRejected    = errors.New("venue: rejected")
	ErrVenueTimeout     = errors.New("venue: timeout")
	ErrVenueCircuitOpen = errors.New("venue: circuit open")
)

// Router errors
var (
	ErrDuplicateVenue  = errors.New("router: venue already exists")
	ErrUnknownVenue    = errors.New("router: venue not found")
	ErrInvalidVenue    = errors.New("router: invalid venue")
	ErrNoEligibleVenue = errors.New("router: no eligible venue")
	ErrRoutingFailed   = errors.New("router: every venue failed")
)
