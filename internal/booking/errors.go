package booking

import "errors"

var (
	// ErrNoAvailability means no run of free slots can satisfy the request.
	// This is a normal outcome, not a failure.
	ErrNoAvailability = errors.New("booking: no availability for requested day")

	// ErrInvalidDate rejects bookings for days already in the past.
	ErrInvalidDate = errors.New("booking: requested day is in the past")

	// ErrInvalidRequest rejects malformed booking input before any I/O.
	ErrInvalidRequest = errors.New("booking: invalid request")
)
