package inventory

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidSchedule is returned for malformed GenerateRequest values.
var ErrInvalidSchedule = errors.New("invalid schedule")

// MaxScheduleDays bounds a single GenerateTrips call.
const MaxScheduleDays = 366

// PickSeat chooses the seat for a new booking on a trip of the given
// capacity. A requested seat of 0 selects the lowest free seat.
func PickSeat(capacity int, occupied map[int]bool, requested int) (int, error) {
	if requested != 0 {
		if requested < 1 || requested > capacity {
			return 0, ErrSeatOutOfRange
		}
		if occupied[requested] {
			return 0, ErrSeatConflict
		}
		return requested, nil
	}
	for seat := 1; seat <= capacity; seat++ {
		if !occupied[seat] {
			return seat, nil
		}
	}
	return 0, ErrTripFull
}

// Dates validates the request and expands it into trip dates.
func (r GenerateRequest) Dates() ([]string, error) {
	if r.RouteID == 0 || r.BusID == 0 {
		return nil, fmt.Errorf("%w: route_id and bus_id are required", ErrInvalidSchedule)
	}
	if r.Days < 1 || r.Days > MaxScheduleDays {
		return nil, fmt.Errorf("%w: days must be between 1 and %d", ErrInvalidSchedule, MaxScheduleDays)
	}
	if r.Price < 0 {
		return nil, fmt.Errorf("%w: negative price", ErrInvalidSchedule)
	}
	if _, err := time.Parse("15:04", r.Time); err != nil {
		return nil, fmt.Errorf("%w: time must be HH:MM", ErrInvalidSchedule)
	}
	start, err := time.Parse("2006-01-02", r.StartDate)
	if err != nil {
		return nil, fmt.Errorf("%w: start_date must be YYYY-MM-DD", ErrInvalidSchedule)
	}
	out := make([]string, 0, r.Days)
	for i := 0; i < r.Days; i++ {
		out = append(out, start.AddDate(0, 0, i).Format("2006-01-02"))
	}
	return out, nil
}
