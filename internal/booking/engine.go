// Package booking implements seat reservation on top of an
// inventory.Store: reserving, confirming and cancelling bookings and
// computing free seats. Two bookings that are not cancelled never share
// a (trip, seat) pair.
package booking

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/iliyamo/bus-ticketing-crm/internal/inventory"
	"github.com/iliyamo/bus-ticketing-crm/internal/model"
	"github.com/iliyamo/bus-ticketing-crm/internal/queue"
)

// EventPublisher receives booking events after each committed change.
type EventPublisher interface {
	PublishBookingEvent(ctx context.Context, ev queue.BookingEvent) error
}

// casRetries bounds the compare-and-set loop of status changes.
const casRetries = 3

// Engine is the booking engine.
type Engine struct {
	store  inventory.Store
	events EventPublisher
	log    zerolog.Logger
	now    func() time.Time
}

// NewEngine returns an Engine. events may be nil.
func NewEngine(store inventory.Store, events EventPublisher, log zerolog.Logger) *Engine {
	return &Engine{
		store:  store,
		events: events,
		log:    log.With().Str("component", "booking").Logger(),
		now:    time.Now,
	}
}

// ReserveRequest asks for a seat on a trip. Seat 0 means "any seat".
type ReserveRequest struct {
	TripID uint64 `json:"trip_id"`
	Name   string `json:"passenger_name"`
	Phone  string `json:"passenger_phone"`
	Seat   int    `json:"seat_number"`
}

// ReserveSeat books the requested seat, or the lowest free one when no
// seat is given. The new booking has status new.
func (e *Engine) ReserveSeat(ctx context.Context, req ReserveRequest) (model.Booking, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Phone = strings.TrimSpace(req.Phone)
	if req.Name == "" || req.Phone == "" {
		return model.Booking{}, ErrMissingPassenger
	}
	if req.Seat < 0 {
		return model.Booking{}, ErrInvalidSeat
	}

	trip, err := e.store.GetTripWithCapacity(ctx, req.TripID)
	if err != nil {
		return model.Booking{}, translate(err)
	}
	if !trip.Active() {
		return model.Booking{}, ErrTripCancelled
	}
	if req.Seat > trip.SeatsCount {
		return model.Booking{}, ErrInvalidSeat
	}

	b, err := e.store.InsertBookingIfSeatFree(ctx, inventory.NewBooking{
		TripID: req.TripID,
		Seat:   req.Seat,
		Name:   req.Name,
		Phone:  req.Phone,
	})
	if err != nil {
		err = translate(err)
		e.log.Debug().Err(err).Uint64("trip_id", req.TripID).Int("seat", req.Seat).Msg("booking_rejected")
		return model.Booking{}, err
	}
	e.log.Info().Uint64("booking_id", b.ID).Uint64("trip_id", b.TripID).Int("seat", b.SeatNumber).Msg("booking_reserved")
	e.publish(ctx, queue.BookingCreated, b)
	return b, nil
}

// Cancel cancels a booking and frees its seat. Cancelling an already
// cancelled booking is a no-op.
func (e *Engine) Cancel(ctx context.Context, id uint64) (model.Booking, error) {
	return e.transition(ctx, id, model.BookingCancelled, queue.BookingCancelled)
}

// Confirm marks a new booking as confirmed. Confirming a confirmed
// booking is a no-op; confirming a cancelled one fails with
// ErrInvalidTransition.
func (e *Engine) Confirm(ctx context.Context, id uint64) (model.Booking, error) {
	return e.transition(ctx, id, model.BookingConfirmed, queue.BookingConfirmed)
}

func (e *Engine) transition(ctx context.Context, id uint64, to model.BookingStatus, event string) (model.Booking, error) {
	for i := 0; i < casRetries; i++ {
		b, err := e.store.GetBooking(ctx, id)
		if err != nil {
			return model.Booking{}, translate(err)
		}
		if b.Status == to {
			return b, nil
		}
		if !b.Status.CanTransition(to) {
			return b, ErrInvalidTransition
		}
		ok, err := e.store.UpdateBookingStatus(ctx, id, b.Status, to)
		if err != nil {
			return model.Booking{}, translate(err)
		}
		if !ok {
			continue
		}
		from := b.Status
		b.Status = to
		e.log.Info().Uint64("booking_id", id).Str("from", string(from)).Str("to", string(to)).Msg(strings.Replace(event, ".", "_", 1))
		e.publish(ctx, event, b)
		return b, nil
	}
	return model.Booking{}, ErrConcurrentUpdate
}

func (e *Engine) publish(ctx context.Context, typ string, b model.Booking) {
	if e.events == nil {
		return
	}
	ev := queue.BookingEvent{
		Type:           typ,
		BookingID:      b.ID,
		TripID:         b.TripID,
		SeatNumber:     b.SeatNumber,
		Status:         string(b.Status),
		PassengerName:  b.PassengerName,
		PassengerPhone: b.PassengerPhone,
	}
	ev.Stamp(e.now())
	if err := e.events.PublishBookingEvent(context.WithoutCancel(ctx), ev); err != nil {
		e.log.Warn().Err(err).Uint64("booking_id", b.ID).Str("type", typ).Msg("booking_event_publish_failed")
	}
}

// SeatMap describes seat occupancy of a trip. Free is ascending.
type SeatMap struct {
	Trip     model.Trip   `json:"trip"`
	Total    int          `json:"total"`
	Occupied map[int]bool `json:"-"`
	Free     []int        `json:"free"`
}

// IsFree reports whether seat is within capacity and not occupied.
func (m SeatMap) IsFree(seat int) bool {
	return seat >= 1 && seat <= m.Total && !m.Occupied[seat]
}

// OccupiedSeats returns the occupied seats in ascending order.
func (m SeatMap) OccupiedSeats() []int {
	out := make([]int, 0, len(m.Occupied))
	for s := 1; s <= m.Total; s++ {
		if m.Occupied[s] {
			out = append(out, s)
		}
	}
	return out
}

// FreeSeats returns the seat map of a trip.
func (e *Engine) FreeSeats(ctx context.Context, tripID uint64) (SeatMap, error) {
	trip, err := e.store.GetTripWithCapacity(ctx, tripID)
	if err != nil {
		return SeatMap{}, translate(err)
	}
	bookings, err := e.store.ListBookings(ctx, tripID)
	if err != nil {
		return SeatMap{}, err
	}
	m := SeatMap{Trip: trip, Total: trip.SeatsCount, Occupied: map[int]bool{}, Free: []int{}}
	for _, b := range bookings {
		if b.Holds() && b.SeatNumber >= 1 && b.SeatNumber <= trip.SeatsCount {
			m.Occupied[b.SeatNumber] = true
		}
	}
	for s := 1; s <= trip.SeatsCount; s++ {
		if !m.Occupied[s] {
			m.Free = append(m.Free, s)
		}
	}
	return m, nil
}

// ListTrips returns the active trips of a date (YYYY-MM-DD).
func (e *Engine) ListTrips(ctx context.Context, date string) ([]model.Trip, error) {
	return e.store.ListTripsByDate(ctx, date)
}

// ListBookings returns all bookings of a trip.
func (e *Engine) ListBookings(ctx context.Context, tripID uint64) ([]model.Booking, error) {
	if _, err := e.store.GetTripWithCapacity(ctx, tripID); err != nil && !errors.Is(err, inventory.ErrBusNotFound) {
		return nil, translate(err)
	}
	return e.store.ListBookings(ctx, tripID)
}

// ListByPhone returns a passenger's bookings with their trips.
func (e *Engine) ListByPhone(ctx context.Context, phone string) ([]model.BookingDetail, error) {
	return e.store.ListBookingsByPhone(ctx, strings.TrimSpace(phone))
}
