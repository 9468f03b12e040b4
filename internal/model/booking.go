package model

import "time"

// BookingStatus is the state of a seat booking.
type BookingStatus string

const (
	BookingNew       BookingStatus = "new"
	BookingConfirmed BookingStatus = "confirmed"
	BookingCancelled BookingStatus = "cancelled"
)

// Valid reports whether s is one of the known statuses.
func (s BookingStatus) Valid() bool {
	switch s {
	case BookingNew, BookingConfirmed, BookingCancelled:
		return true
	}
	return false
}

// CanTransition reports whether a booking may move from s to next.
// Allowed moves are new->confirmed, new->cancelled and
// confirmed->cancelled. Cancelled is terminal.
func (s BookingStatus) CanTransition(next BookingStatus) bool {
	switch s {
	case BookingNew:
		return next == BookingConfirmed || next == BookingCancelled
	case BookingConfirmed:
		return next == BookingCancelled
	}
	return false
}

// Booking mirrors the `bookings` table. A booking that is not cancelled
// holds its seat exclusively.
type Booking struct {
	ID             uint64        `json:"id"`
	TripID         uint64        `json:"trip_id"`
	PassengerName  string        `json:"passenger_name"`
	PassengerPhone string        `json:"passenger_phone"`
	SeatNumber     int           `json:"seat_number"`
	Status         BookingStatus `json:"status"`
	CreatedAt      time.Time     `json:"created_at"`
}

// Holds reports whether the booking currently occupies its seat.
func (b Booking) Holds() bool { return b.Status != BookingCancelled }

// BookingDetail is a booking joined with the trip it belongs to. It is
// what reminders and "my bookings" listings are built from.
type BookingDetail struct {
	Booking
	TripDate   string     `json:"trip_date"`
	TripTime   string     `json:"trip_time"`
	TripStatus TripStatus `json:"trip_status"`
	FromCity   string     `json:"from_city"`
	ToCity     string     `json:"to_city"`
}
