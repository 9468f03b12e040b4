// Package inventory defines the storage contract for trips, seat
// bookings, reminder records and messenger identities. The MySQL
// implementation lives in internal/repository; MemoryStore is a
// process-local implementation with the same semantics.
package inventory

import (
	"context"
	"errors"

	"github.com/iliyamo/bus-ticketing-crm/internal/model"
)

// Errors returned by every Store implementation.
var (
	ErrTripNotFound    = errors.New("trip not found")
	ErrBusNotFound     = errors.New("bus not assigned to trip")
	ErrRouteNotFound   = errors.New("route not found")
	ErrTripInactive    = errors.New("trip is not active")
	ErrBookingNotFound = errors.New("booking not found")
	ErrSeatOutOfRange  = errors.New("seat out of range")
	ErrSeatConflict    = errors.New("seat already booked")
	ErrTripFull        = errors.New("no free seats")
)

// NewBooking is the input of InsertBookingIfSeatFree. Seat 0 asks the
// store to assign the lowest free seat.
type NewBooking struct {
	TripID uint64
	Seat   int
	Name   string
	Phone  string
}

// Store is the seat inventory.
//
// InsertBookingIfSeatFree performs seat selection and insertion as one
// atomic unit per trip: two concurrent calls for the same seat never
// both succeed, and auto-assignment never hands out an occupied seat.
// UpdateBookingStatus is a compare-and-set: it changes the status only
// when the current status equals from and reports whether it did.
type Store interface {
	GetTripWithCapacity(ctx context.Context, tripID uint64) (model.Trip, error)
	ListTripsByDate(ctx context.Context, date string) ([]model.Trip, error)
	ListBookings(ctx context.Context, tripID uint64) ([]model.Booking, error)
	InsertBookingIfSeatFree(ctx context.Context, nb NewBooking) (model.Booking, error)
	GetBooking(ctx context.Context, id uint64) (model.Booking, error)
	UpdateBookingStatus(ctx context.Context, id uint64, from, to model.BookingStatus) (bool, error)
	ListBookingsByPhone(ctx context.Context, phone string) ([]model.BookingDetail, error)

	// ListDueBookingsForReminders returns non-cancelled bookings on
	// active trips departing between fromDate and toDate inclusive
	// (YYYY-MM-DD).
	ListDueBookingsForReminders(ctx context.Context, fromDate, toDate string) ([]model.BookingDetail, error)
	HasReminderRecord(ctx context.Context, bookingID uint64, offsetHours int) (bool, error)
	// InsertReminderRecord returns false when the record already exists.
	InsertReminderRecord(ctx context.Context, bookingID uint64, offsetHours int) (bool, error)
}

// Directory stores messenger identities and the CRM users they are
// linked to by phone number.
type Directory interface {
	UpsertBotUser(ctx context.Context, platform model.Platform, externalID, name, phone string) (model.BotUser, error)
	GetBotUser(ctx context.Context, platform model.Platform, externalID string) (model.BotUser, bool, error)
	ListBotUsersByPhone(ctx context.Context, phone string) ([]model.BotUser, error)
	FindOrCreatePassenger(ctx context.Context, phone, name string) (model.User, error)
	// LinkBotUsers sets user_id on every bot user with the phone and
	// returns how many were updated.
	LinkBotUsers(ctx context.Context, phone string, userID uint64) (int64, error)
}

// GenerateRequest describes a daily schedule: one trip per day for Days
// days starting at StartDate, all departing at Time.
type GenerateRequest struct {
	RouteID   uint64  `json:"route_id"`
	BusID     uint64  `json:"bus_id"`
	StartDate string  `json:"start_date"`
	Days      int     `json:"days"`
	Time      string  `json:"time"`
	Price     float64 `json:"price"`
}

// RecipientFilter narrows broadcast recipients. Zero values match all.
// An empty Status means every non-cancelled booking.
type RecipientFilter struct {
	TripID  uint64              `json:"trip_id"`
	RouteID uint64              `json:"route_id"`
	Status  model.BookingStatus `json:"status"`
}

// Admin covers operator-side schedule management and audience queries.
type Admin interface {
	// GenerateTrips creates the missing trips of a schedule; days that
	// already have a trip for the same route, bus and time are skipped.
	GenerateTrips(ctx context.Context, req GenerateRequest) ([]model.Trip, error)
	RecipientPhones(ctx context.Context, f RecipientFilter) ([]string, error)
}
