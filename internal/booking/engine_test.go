package booking

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/iliyamo/bus-ticketing-crm/internal/inventory"
	"github.com/iliyamo/bus-ticketing-crm/internal/model"
	"github.com/iliyamo/bus-ticketing-crm/internal/queue"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []queue.BookingEvent
	err    error
}

func (p *recordingPublisher) PublishBookingEvent(_ context.Context, ev queue.BookingEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, ev := range p.events {
		out[i] = ev.Type
	}
	return out
}

func newEngine(t *testing.T, seats int) (*Engine, *inventory.MemoryStore, model.Trip, *recordingPublisher) {
	t.Helper()
	store := inventory.NewMemoryStore()
	store.AddRoute(1, "Київ", "Львів")
	store.AddBus(1, "AA1234AA", seats)
	trip := store.AddTrip(model.Trip{RouteID: 1, BusID: 1, Date: "2025-06-01", Time: "08:00", Price: 500})
	pub := &recordingPublisher{}
	return NewEngine(store, pub, zerolog.Nop()), store, trip, pub
}

func TestReserveCancelScenario(t *testing.T) {
	e, _, trip, pub := newEngine(t, 2)
	ctx := context.Background()

	a, err := e.ReserveSeat(ctx, ReserveRequest{TripID: trip.ID, Name: "A", Phone: "1", Seat: 1})
	if err != nil || a.SeatNumber != 1 || a.Status != model.BookingNew {
		t.Fatalf("reserve A: %+v err=%v", a, err)
	}
	if _, err := e.ReserveSeat(ctx, ReserveRequest{TripID: trip.ID, Name: "B", Phone: "2", Seat: 1}); !errors.Is(err, ErrSeatTaken) {
		t.Fatalf("reserve B seat 1: err = %v, want ErrSeatTaken", err)
	}
	b, err := e.ReserveSeat(ctx, ReserveRequest{TripID: trip.ID, Name: "B", Phone: "2"})
	if err != nil || b.SeatNumber != 2 {
		t.Fatalf("reserve B auto: %+v err=%v", b, err)
	}
	if _, err := e.ReserveSeat(ctx, ReserveRequest{TripID: trip.ID, Name: "C", Phone: "3"}); !errors.Is(err, ErrNoSeatsAvailable) {
		t.Fatalf("reserve C: err = %v, want ErrNoSeatsAvailable", err)
	}
	if _, err := e.Cancel(ctx, a.ID); err != nil {
		t.Fatalf("cancel A: %v", err)
	}
	c, err := e.ReserveSeat(ctx, ReserveRequest{TripID: trip.ID, Name: "C", Phone: "3"})
	if err != nil || c.SeatNumber != 1 {
		t.Fatalf("reserve C after cancel: %+v err=%v", c, err)
	}

	want := []string{queue.BookingCreated, queue.BookingCreated, queue.BookingCancelled, queue.BookingCreated}
	got := pub.types()
	if len(got) != len(want) {
		t.Fatalf("events = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("events = %v, want %v", got, want)
		}
	}
}

func TestReserveSeatValidation(t *testing.T) {
	e, store, trip, _ := newEngine(t, 3)
	ctx := context.Background()
	noBus := store.AddTrip(model.Trip{RouteID: 1, BusID: 77, Date: "2025-06-01", Time: "09:00"})
	cancelled := store.AddTrip(model.Trip{RouteID: 1, BusID: 1, Date: "2025-06-01", Time: "10:00"})
	store.SetTripStatus(cancelled.ID, model.TripCancelled)

	tests := []struct {
		name string
		req  ReserveRequest
		want error
	}{
		{"unknown trip", ReserveRequest{TripID: 999, Name: "A", Phone: "1"}, ErrTripNotFound},
		{"no bus", ReserveRequest{TripID: noBus.ID, Name: "A", Phone: "1"}, ErrBusNotFound},
		{"cancelled trip", ReserveRequest{TripID: cancelled.ID, Name: "A", Phone: "1"}, ErrTripCancelled},
		{"seat above capacity", ReserveRequest{TripID: trip.ID, Name: "A", Phone: "1", Seat: 4}, ErrInvalidSeat},
		{"negative seat", ReserveRequest{TripID: trip.ID, Name: "A", Phone: "1", Seat: -2}, ErrInvalidSeat},
		{"missing name", ReserveRequest{TripID: trip.ID, Name: "  ", Phone: "1"}, ErrMissingPassenger},
		{"missing phone", ReserveRequest{TripID: trip.ID, Name: "A"}, ErrMissingPassenger},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := e.ReserveSeat(ctx, tt.req); !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
			if !IsBusinessError(tt.want) {
				t.Fatalf("%v not classified as business error", tt.want)
			}
		})
	}
}

func TestConcurrentReservationsForSameSeat(t *testing.T) {
	e, _, trip, _ := newEngine(t, 40)
	ctx := context.Background()

	const k = 25
	var wg sync.WaitGroup
	results := make(chan error, k)
	for i := 0; i < k; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.ReserveSeat(ctx, ReserveRequest{TripID: trip.ID, Name: "P", Phone: "1", Seat: 17})
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	ok, taken := 0, 0
	for err := range results {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrSeatTaken):
			taken++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if ok != 1 || taken != k-1 {
		t.Fatalf("ok=%d taken=%d", ok, taken)
	}
}

func TestConcurrentAutoAssignNeverDoubleBooks(t *testing.T) {
	e, _, trip, _ := newEngine(t, 10)
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	seats := map[int]int{}
	full := 0
	for i := 0; i < 15; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b, err := e.ReserveSeat(ctx, ReserveRequest{TripID: trip.ID, Name: "P", Phone: "1"})
			mu.Lock()
			defer mu.Unlock()
			if errors.Is(err, ErrNoSeatsAvailable) {
				full++
				return
			}
			if err != nil {
				t.Errorf("reserve: %v", err)
				return
			}
			seats[b.SeatNumber]++
		}()
	}
	wg.Wait()
	if len(seats) != 10 || full != 5 {
		t.Fatalf("distinct seats=%d full=%d", len(seats), full)
	}
	for s, n := range seats {
		if n != 1 {
			t.Fatalf("seat %d booked %d times", s, n)
		}
	}
}

func TestStatusTransitions(t *testing.T) {
	e, _, trip, pub := newEngine(t, 5)
	ctx := context.Background()
	b, _ := e.ReserveSeat(ctx, ReserveRequest{TripID: trip.ID, Name: "A", Phone: "1"})

	got, err := e.Confirm(ctx, b.ID)
	if err != nil || got.Status != model.BookingConfirmed {
		t.Fatalf("confirm: %+v err=%v", got, err)
	}
	if got, err := e.Confirm(ctx, b.ID); err != nil || got.Status != model.BookingConfirmed {
		t.Fatalf("confirm twice: %+v err=%v", got, err)
	}
	if got, err := e.Cancel(ctx, b.ID); err != nil || got.Status != model.BookingCancelled {
		t.Fatalf("cancel: %+v err=%v", got, err)
	}
	if got, err := e.Cancel(ctx, b.ID); err != nil || got.Status != model.BookingCancelled {
		t.Fatalf("cancel twice: %+v err=%v", got, err)
	}
	if _, err := e.Confirm(ctx, b.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("confirm cancelled: err = %v", err)
	}
	if _, err := e.Cancel(ctx, 404); !errors.Is(err, ErrBookingNotFound) {
		t.Fatalf("cancel missing: err = %v", err)
	}
	// no-ops publish nothing
	if n := len(pub.types()); n != 3 {
		t.Fatalf("events = %v", pub.types())
	}
}

func TestFreeSeats(t *testing.T) {
	e, _, trip, _ := newEngine(t, 4)
	ctx := context.Background()
	a, _ := e.ReserveSeat(ctx, ReserveRequest{TripID: trip.ID, Name: "A", Phone: "1", Seat: 2})
	e.ReserveSeat(ctx, ReserveRequest{TripID: trip.ID, Name: "B", Phone: "2", Seat: 4})
	e.Cancel(ctx, a.ID)

	m, err := e.FreeSeats(ctx, trip.ID)
	if err != nil {
		t.Fatalf("free seats: %v", err)
	}
	if m.Total != 4 || len(m.Free) != 3 || m.Free[0] != 1 || m.Free[1] != 2 || m.Free[2] != 3 {
		t.Fatalf("seat map = %+v", m)
	}
	if occ := m.OccupiedSeats(); len(occ) != 1 || occ[0] != 4 {
		t.Fatalf("occupied = %v", occ)
	}
	if m.IsFree(4) || !m.IsFree(2) || m.IsFree(5) || m.IsFree(0) {
		t.Fatal("IsFree disagrees with the map")
	}
	if _, err := e.FreeSeats(ctx, 999); !errors.Is(err, ErrTripNotFound) {
		t.Fatalf("err = %v", err)
	}
}

func TestPublishFailureDoesNotFailReservation(t *testing.T) {
	e, _, trip, pub := newEngine(t, 2)
	pub.err = errors.New("broker down")
	if _, err := e.ReserveSeat(context.Background(), ReserveRequest{TripID: trip.ID, Name: "A", Phone: "1"}); err != nil {
		t.Fatalf("reserve: %v", err)
	}
}
