package booking

import (
	"errors"

	"github.com/iliyamo/bus-ticketing-crm/internal/inventory"
)

// Errors returned by Engine. All are expected business outcomes except
// those wrapping store failures.
var (
	ErrTripNotFound      = errors.New("trip not found")
	ErrBusNotFound       = errors.New("trip has no bus assigned")
	ErrTripCancelled     = errors.New("trip is cancelled")
	ErrInvalidSeat       = errors.New("invalid seat number")
	ErrSeatTaken         = errors.New("seat already taken")
	ErrNoSeatsAvailable  = errors.New("no seats available")
	ErrBookingNotFound   = errors.New("booking not found")
	ErrInvalidTransition = errors.New("booking status transition not allowed")
	ErrMissingPassenger  = errors.New("passenger name and phone are required")
	ErrConcurrentUpdate  = errors.New("booking changed concurrently, retry")
)

// translate maps inventory errors onto the engine taxonomy.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, inventory.ErrTripNotFound):
		return ErrTripNotFound
	case errors.Is(err, inventory.ErrBusNotFound):
		return ErrBusNotFound
	case errors.Is(err, inventory.ErrTripInactive):
		return ErrTripCancelled
	case errors.Is(err, inventory.ErrSeatOutOfRange):
		return ErrInvalidSeat
	case errors.Is(err, inventory.ErrSeatConflict):
		return ErrSeatTaken
	case errors.Is(err, inventory.ErrTripFull):
		return ErrNoSeatsAvailable
	case errors.Is(err, inventory.ErrBookingNotFound):
		return ErrBookingNotFound
	}
	return err
}

// IsBusinessError reports whether err is one of the expected outcomes
// above rather than an infrastructure failure.
func IsBusinessError(err error) bool {
	for _, e := range []error{ErrTripNotFound, ErrBusNotFound, ErrTripCancelled, ErrInvalidSeat, ErrSeatTaken,
		ErrNoSeatsAvailable, ErrBookingNotFound, ErrInvalidTransition, ErrMissingPassenger, ErrConcurrentUpdate} {
		if errors.Is(err, e) {
			return true
		}
	}
	return false
}
