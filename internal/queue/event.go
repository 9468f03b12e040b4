// Package queue carries booking events and identity sync jobs over
// RabbitMQ.
package queue

import "time"

// Booking event types.
const (
	BookingCreated   = "booking.created"
	BookingConfirmed = "booking.confirmed"
	BookingCancelled = "booking.cancelled"
)

// BookingEvent is published after a booking changes. It carries enough
// for downstream consumers to log or notify without querying the
// primary database.
type BookingEvent struct {
	Type           string `json:"type"`
	BookingID      uint64 `json:"booking_id"`
	TripID         uint64 `json:"trip_id"`
	SeatNumber     int    `json:"seat_number"`
	Status         string `json:"status"`
	PassengerName  string `json:"passenger_name"`
	PassengerPhone string `json:"passenger_phone"`
	OccurredAt     string `json:"occurred_at"`
}

// Stamp sets OccurredAt to t in RFC 3339 UTC.
func (e *BookingEvent) Stamp(t time.Time) {
	e.OccurredAt = t.UTC().Format(time.RFC3339)
}
