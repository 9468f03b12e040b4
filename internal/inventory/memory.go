package inventory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/iliyamo/bus-ticketing-crm/internal/model"
)

type memRoute struct{ from, to string }

type memBus struct {
	number string
	seats  int
}

type reminderKey struct {
	bookingID uint64
	offset    int
}

// MemoryStore implements Store, Directory and Admin in process memory.
// A single mutex serialises every operation, which makes seat
// allocation atomic.
type MemoryStore struct {
	mu        sync.Mutex
	now       func() time.Time
	routes    map[uint64]memRoute
	buses     map[uint64]memBus
	trips     map[uint64]model.Trip
	bookings  map[uint64]model.Booking
	reminders map[reminderKey]time.Time
	botUsers  map[uint64]model.BotUser
	users     map[uint64]model.User
	nextID    map[string]uint64
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		now:       func() time.Time { return time.Now().UTC() },
		routes:    map[uint64]memRoute{},
		buses:     map[uint64]memBus{},
		trips:     map[uint64]model.Trip{},
		bookings:  map[uint64]model.Booking{},
		reminders: map[reminderKey]time.Time{},
		botUsers:  map[uint64]model.BotUser{},
		users:     map[uint64]model.User{},
		nextID:    map[string]uint64{},
	}
}

func (s *MemoryStore) id(table string) uint64 {
	s.nextID[table]++
	return s.nextID[table]
}

// AddRoute registers a route.
func (s *MemoryStore) AddRoute(id uint64, from, to string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.routes[id] = memRoute{from: from, to: to}
}

// AddBus registers a bus with its seat capacity.
func (s *MemoryStore) AddBus(id uint64, number string, seats int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buses[id] = memBus{number: number, seats: seats}
}

// AddTrip stores t and returns it with its assigned id. Route cities
// and capacity are resolved on read.
func (s *MemoryStore) AddTrip(t model.Trip) model.Trip {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.ID == 0 {
		t.ID = s.id("trips")
	} else if t.ID > s.nextID["trips"] {
		s.nextID["trips"] = t.ID
	}
	if t.Status == "" {
		t.Status = model.TripActive
	}
	s.trips[t.ID] = t
	return s.resolve(t)
}

// SetTripStatus changes the status of a stored trip.
func (s *MemoryStore) SetTripStatus(id uint64, status model.TripStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.trips[id]; ok {
		t.Status = status
		s.trips[id] = t
	}
}

func (s *MemoryStore) resolve(t model.Trip) model.Trip {
	if r, ok := s.routes[t.RouteID]; ok {
		t.FromCity, t.ToCity = r.from, r.to
	}
	t.SeatsCount = 0
	if b, ok := s.buses[t.BusID]; ok {
		t.BusNumber, t.SeatsCount = b.number, b.seats
	}
	return t
}

func (s *MemoryStore) GetTripWithCapacity(_ context.Context, tripID uint64) (model.Trip, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.trips[tripID]
	if !ok {
		return model.Trip{}, ErrTripNotFound
	}
	if _, ok := s.buses[t.BusID]; !ok {
		return model.Trip{}, ErrBusNotFound
	}
	return s.resolve(t), nil
}

func (s *MemoryStore) ListTripsByDate(_ context.Context, date string) ([]model.Trip, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Trip
	for _, t := range s.trips {
		if t.Date == date && t.Active() {
			out = append(out, s.resolve(t))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Time != out[j].Time {
			return out[i].Time < out[j].Time
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *MemoryStore) ListBookings(_ context.Context, tripID uint64) ([]model.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Booking
	for _, b := range s.bookings {
		if b.TripID == tripID {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) InsertBookingIfSeatFree(_ context.Context, nb NewBooking) (model.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.trips[nb.TripID]
	if !ok {
		return model.Booking{}, ErrTripNotFound
	}
	bus, ok := s.buses[t.BusID]
	if !ok {
		return model.Booking{}, ErrBusNotFound
	}
	if !t.Active() {
		return model.Booking{}, ErrTripInactive
	}
	occupied := map[int]bool{}
	for _, b := range s.bookings {
		if b.TripID == nb.TripID && b.Holds() {
			occupied[b.SeatNumber] = true
		}
	}
	seat, err := PickSeat(bus.seats, occupied, nb.Seat)
	if err != nil {
		return model.Booking{}, err
	}
	b := model.Booking{
		ID:             s.id("bookings"),
		TripID:         nb.TripID,
		PassengerName:  nb.Name,
		PassengerPhone: nb.Phone,
		SeatNumber:     seat,
		Status:         model.BookingNew,
		CreatedAt:      s.now(),
	}
	s.bookings[b.ID] = b
	return b, nil
}

func (s *MemoryStore) GetBooking(_ context.Context, id uint64) (model.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[id]
	if !ok {
		return model.Booking{}, ErrBookingNotFound
	}
	return b, nil
}

func (s *MemoryStore) UpdateBookingStatus(_ context.Context, id uint64, from, to model.BookingStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[id]
	if !ok {
		return false, ErrBookingNotFound
	}
	if b.Status != from {
		return false, nil
	}
	b.Status = to
	s.bookings[id] = b
	return true, nil
}

func (s *MemoryStore) detail(b model.Booking) model.BookingDetail {
	t := s.resolve(s.trips[b.TripID])
	return model.BookingDetail{
		Booking:    b,
		TripDate:   t.Date,
		TripTime:   t.Time,
		TripStatus: t.Status,
		FromCity:   t.FromCity,
		ToCity:     t.ToCity,
	}
}

func sortDetails(out []model.BookingDetail) {
	sort.Slice(out, func(i, j int) bool {
		if out[i].TripDate != out[j].TripDate {
			return out[i].TripDate < out[j].TripDate
		}
		if out[i].TripTime != out[j].TripTime {
			return out[i].TripTime < out[j].TripTime
		}
		return out[i].ID < out[j].ID
	})
}

func (s *MemoryStore) ListBookingsByPhone(_ context.Context, phone string) ([]model.BookingDetail, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.BookingDetail
	for _, b := range s.bookings {
		if b.PassengerPhone == phone {
			out = append(out, s.detail(b))
		}
	}
	sortDetails(out)
	return out, nil
}

func (s *MemoryStore) ListDueBookingsForReminders(_ context.Context, fromDate, toDate string) ([]model.BookingDetail, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.BookingDetail
	for _, b := range s.bookings {
		if !b.Holds() {
			continue
		}
		d := s.detail(b)
		if d.TripStatus != model.TripActive || d.TripDate < fromDate || d.TripDate > toDate {
			continue
		}
		out = append(out, d)
	}
	sortDetails(out)
	return out, nil
}

func (s *MemoryStore) HasReminderRecord(_ context.Context, bookingID uint64, offsetHours int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.reminders[reminderKey{bookingID, offsetHours}]
	return ok, nil
}

func (s *MemoryStore) InsertReminderRecord(_ context.Context, bookingID uint64, offsetHours int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := reminderKey{bookingID, offsetHours}
	if _, ok := s.reminders[k]; ok {
		return false, nil
	}
	s.reminders[k] = s.now()
	return true, nil
}

// ReminderRecords returns every stored reminder record.
func (s *MemoryStore) ReminderRecords() []model.ReminderRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.ReminderRecord, 0, len(s.reminders))
	for k, at := range s.reminders {
		out = append(out, model.ReminderRecord{BookingID: k.bookingID, OffsetHours: k.offset, SentAt: at})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].BookingID != out[j].BookingID {
			return out[i].BookingID < out[j].BookingID
		}
		return out[i].OffsetHours > out[j].OffsetHours
	})
	return out
}

func (s *MemoryStore) UpsertBotUser(_ context.Context, platform model.Platform, externalID, name, phone string) (model.BotUser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, u := range s.botUsers {
		if u.ExternalID(platform) == externalID {
			if name != "" {
				u.Name = name
			}
			if phone != "" {
				u.Phone = phone
			}
			u.UpdatedAt = s.now()
			s.botUsers[id] = u
			return u, nil
		}
	}
	u := model.BotUser{ID: s.id("bot_users"), Name: name, Phone: phone, UpdatedAt: s.now()}
	switch platform {
	case model.PlatformTelegram:
		u.TelegramID = externalID
	case model.PlatformViber:
		u.ViberID = externalID
	}
	s.botUsers[u.ID] = u
	return u, nil
}

func (s *MemoryStore) GetBotUser(_ context.Context, platform model.Platform, externalID string) (model.BotUser, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.botUsers {
		if externalID != "" && u.ExternalID(platform) == externalID {
			return u, true, nil
		}
	}
	return model.BotUser{}, false, nil
}

func (s *MemoryStore) ListBotUsersByPhone(_ context.Context, phone string) ([]model.BotUser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.BotUser
	for _, u := range s.botUsers {
		if u.Phone == phone {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) FindOrCreatePassenger(_ context.Context, phone, name string) (model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Phone == phone {
			return u, nil
		}
	}
	u := model.User{ID: s.id("users"), Name: name, Phone: phone, Role: model.RolePassenger, CreatedAt: s.now()}
	s.users[u.ID] = u
	return u, nil
}

func (s *MemoryStore) LinkBotUsers(_ context.Context, phone string, userID uint64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, u := range s.botUsers {
		if u.Phone != phone {
			continue
		}
		uid := userID
		u.UserID = &uid
		s.botUsers[id] = u
		n++
	}
	return n, nil
}

func (s *MemoryStore) GenerateTrips(_ context.Context, req GenerateRequest) ([]model.Trip, error) {
	dates, err := req.Dates()
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.routes[req.RouteID]; !ok {
		return nil, ErrRouteNotFound
	}
	if _, ok := s.buses[req.BusID]; !ok {
		return nil, ErrBusNotFound
	}
	exists := map[string]bool{}
	for _, t := range s.trips {
		if t.RouteID == req.RouteID && t.BusID == req.BusID && t.Time == req.Time {
			exists[t.Date] = true
		}
	}
	var out []model.Trip
	for _, d := range dates {
		if exists[d] {
			continue
		}
		t := model.Trip{
			ID:      s.id("trips"),
			RouteID: req.RouteID,
			BusID:   req.BusID,
			Date:    d,
			Time:    req.Time,
			Price:   req.Price,
			Status:  model.TripActive,
		}
		s.trips[t.ID] = t
		out = append(out, s.resolve(t))
	}
	return out, nil
}

func (s *MemoryStore) RecipientPhones(_ context.Context, f RecipientFilter) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := map[string]bool{}
	var out []string
	for _, b := range s.bookings {
		if f.Status != "" && b.Status != f.Status {
			continue
		}
		if f.Status == "" && !b.Holds() {
			continue
		}
		if f.TripID != 0 && b.TripID != f.TripID {
			continue
		}
		if f.RouteID != 0 && s.trips[b.TripID].RouteID != f.RouteID {
			continue
		}
		if b.PassengerPhone == "" || seen[b.PassengerPhone] {
			continue
		}
		seen[b.PassengerPhone] = true
		out = append(out, b.PassengerPhone)
	}
	sort.Strings(out)
	return out, nil
}

var (
	_ Store     = (*MemoryStore)(nil)
	_ Directory = (*MemoryStore)(nil)
	_ Admin     = (*MemoryStore)(nil)
)
