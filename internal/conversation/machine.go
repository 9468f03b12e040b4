package conversation

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/rs/zerolog"

	"github.com/iliyamo/bus-ticketing-crm/internal/booking"
	"github.com/iliyamo/bus-ticketing-crm/internal/messages"
	"github.com/iliyamo/bus-ticketing-crm/internal/model"
)

// Callback data prefixes of inline options.
const (
	PrefixDate = "date:"
	PrefixTrip = "trip:"
	PrefixSeat = "seat:"
)

// DateOptions is how many calendar days, today included, are offered.
const DateOptions = 7

// Event is one inbound user action. Callback holds the data of a pressed
// inline button, Text a typed message. Contact is a phone number shared
// through the platform's contact button.
type Event struct {
	Text        string
	Callback    string
	DisplayName string
	Contact     string
}

func (e Event) input() string {
	if e.Callback != "" {
		return strings.TrimSpace(e.Callback)
	}
	return strings.TrimSpace(e.Text)
}

// Option is a button offered with a reply.
type Option struct {
	Label string
	Data  string
}

// Reply is one outbound message. Channels render Options as inline
// buttons laid out in Columns. MainMenu asks for the persistent menu
// keyboard and RequestPhone for a contact-share button.
type Reply struct {
	Text         string
	Options      []Option
	Columns      int
	MainMenu     bool
	RequestPhone bool
}

// Booker is the part of the booking engine the dialogue uses.
type Booker interface {
	ListTrips(ctx context.Context, date string) ([]model.Trip, error)
	FreeSeats(ctx context.Context, tripID uint64) (booking.SeatMap, error)
	ReserveSeat(ctx context.Context, req booking.ReserveRequest) (model.Booking, error)
	ListByPhone(ctx context.Context, phone string) ([]model.BookingDetail, error)
}

// Profiles looks up the stored messenger identity of a user.
type Profiles interface {
	GetBotUser(ctx context.Context, platform model.Platform, externalID string) (model.BotUser, bool, error)
}

// IdentitySync records the phone a user booked with. It runs after a
// successful booking and never affects the reply.
type IdentitySync interface {
	AfterBooking(ctx context.Context, platform model.Platform, externalID, name, phone string) error
}

// Deps are the collaborators of a Machine. Identity and Profiles may be
// nil.
type Deps struct {
	Store    SessionStore
	Booker   Booker
	Profiles Profiles
	Identity IdentitySync
	Messages *messages.Catalog
	Location *time.Location
	Log      zerolog.Logger
}

// Machine is the conversation state machine shared by all channels.
type Machine struct {
	store    SessionStore
	booker   Booker
	profiles Profiles
	identity IdentitySync
	msg      *messages.Catalog
	loc      *time.Location
	log      zerolog.Logger
	now      func() time.Time

	mu    sync.Mutex
	locks map[Key]*keyLock
	wg    sync.WaitGroup
}

// keyLock serialises the events of one user. It is dropped from the map
// once no event holds or waits for it.
type keyLock struct {
	sync.Mutex
	refs int
}

func NewMachine(d Deps) *Machine {
	if d.Messages == nil {
		d.Messages = messages.Default()
	}
	if d.Location == nil {
		d.Location = time.Local
	}
	return &Machine{
		store:    d.Store,
		booker:   d.Booker,
		profiles: d.Profiles,
		identity: d.Identity,
		msg:      d.Messages,
		loc:      d.Location,
		log:      d.Log.With().Str("component", "conversation").Logger(),
		now:      time.Now,
		locks:    map[Key]*keyLock{},
	}
}

// Messages returns the catalogue the machine replies with.
func (m *Machine) Messages() *messages.Catalog { return m.msg }

// Wait blocks until background identity syncs have finished.
func (m *Machine) Wait() { m.wg.Wait() }

func (m *Machine) lock(k Key) func() {
	m.mu.Lock()
	l, ok := m.locks[k]
	if !ok {
		l = &keyLock{}
		m.locks[k] = l
	}
	l.refs++
	m.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		m.mu.Lock()
		if l.refs--; l.refs == 0 {
			delete(m.locks, k)
		}
		m.mu.Unlock()
	}
}

// lockedKeys reports how many users currently have an event in flight.
func (m *Machine) lockedKeys() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.locks)
}

type command int

const (
	cmdNone command = iota
	cmdStart
	cmdSchedule
	cmdMyBookings
	cmdSupport
)

// normalizeCommand drops the emoji prefix of menu labels so the viber
// keyboard (plain labels) and typed text match the same commands.
func normalizeCommand(s string) string {
	s = strings.TrimLeftFunc(s, func(r rune) bool { return !unicode.IsLetter(r) && r != '/' })
	return strings.ToLower(strings.TrimSpace(s))
}

func (m *Machine) command(input string) command {
	in := normalizeCommand(input)
	if in == "" {
		return cmdNone
	}
	b := m.msg.Buttons
	switch in {
	case "/start", "start", "/menu", "menu", "меню":
		return cmdStart
	case "/schedule", "/book", normalizeCommand(b.Schedule), normalizeCommand(b.Book):
		return cmdSchedule
	case "/bookings", normalizeCommand(b.MyBookings):
		return cmdMyBookings
	case "/support", normalizeCommand(b.Support):
		return cmdSupport
	}
	return cmdNone
}

// HandleEvent advances the session of (platform, userID) with ev and
// returns the replies to send. Errors are infrastructure failures; the
// session is left as it was before the event.
func (m *Machine) HandleEvent(ctx context.Context, platform model.Platform, userID string, ev Event) ([]Reply, error) {
	k := Key{Platform: platform, UserID: userID}
	unlock := m.lock(k)
	defer unlock()

	s, ok, err := m.store.Get(ctx, k)
	if err != nil {
		return nil, err
	}
	if !ok {
		s = newSession(k)
	}

	input := ev.input()
	var replies []Reply
	switch m.command(input) {
	case cmdStart:
		s.State, s.Draft = StateIdle, Draft{}
		replies = []Reply{{Text: m.msg.Welcome, MainMenu: true}}
	case cmdSchedule:
		s.State, s.Draft = StateBrowsingDates, Draft{}
		replies = []Reply{m.datePrompt()}
	case cmdMyBookings:
		replies, err = m.myBookings(ctx, k)
	case cmdSupport:
		replies = []Reply{{Text: m.msg.Support}}
	default:
		replies, err = m.step(ctx, &s, ev, input)
	}
	if err != nil {
		return nil, err
	}

	if s.State == StateIdle && s.Draft == (Draft{}) {
		if err := m.store.Delete(ctx, k); err != nil {
			return nil, err
		}
		return replies, nil
	}
	s.UpdatedAt = m.now()
	if err := m.store.Save(ctx, s); err != nil {
		return nil, err
	}
	return replies, nil
}

func (m *Machine) step(ctx context.Context, s *Session, ev Event, input string) ([]Reply, error) {
	switch s.State {
	case StateBrowsingDates:
		return m.onDate(ctx, s, input)
	case StateBrowsingTrips:
		return m.onTrip(ctx, s, input)
	case StateSelectSeat:
		return m.onSeat(ctx, s, input)
	case StateBookingFillName:
		name := strings.TrimSpace(ev.Text)
		if name == "" {
			return []Reply{{Text: m.msg.AskName}}, nil
		}
		s.Draft.Name = name
		s.State = StateBookingFillPhone
		return []Reply{m.phonePrompt()}, nil
	case StateBookingFillPhone:
		return m.onPhone(ctx, s, ev)
	}
	if ev.Callback != "" {
		return []Reply{{Text: m.msg.UseButtons, MainMenu: true}}, nil
	}
	return []Reply{{Text: m.msg.UnknownCommand, MainMenu: true}}, nil
}

func (m *Machine) dates() []string {
	today := m.now().In(m.loc)
	out := make([]string, 0, DateOptions)
	for i := 0; i < DateOptions; i++ {
		out = append(out, today.AddDate(0, 0, i).Format(time.DateOnly))
	}
	return out
}

func (m *Machine) datePrompt() Reply {
	r := Reply{Text: m.msg.ChooseDate, Columns: 2}
	for _, d := range m.dates() {
		r.Options = append(r.Options, Option{Label: d, Data: PrefixDate + d})
	}
	return r
}

func (m *Machine) phonePrompt() Reply {
	return Reply{Text: m.msg.AskPhone, RequestPhone: true}
}

func (m *Machine) onDate(ctx context.Context, s *Session, input string) ([]Reply, error) {
	date := strings.TrimPrefix(input, PrefixDate)
	valid := false
	for _, d := range m.dates() {
		if d == date {
			valid = true
			break
		}
	}
	if !valid {
		return []Reply{m.datePrompt()}, nil
	}
	trips, err := m.booker.ListTrips(ctx, date)
	if err != nil {
		return nil, err
	}
	if len(trips) == 0 {
		return []Reply{{Text: m.msg.NoTrips}, m.datePrompt()}, nil
	}
	s.Draft = Draft{Date: date}
	s.State = StateBrowsingTrips
	return []Reply{m.tripList(date, trips)}, nil
}

func (m *Machine) tripList(date string, trips []model.Trip) Reply {
	lines := []string{m.msg.TripsOn(date)}
	r := Reply{Columns: 1}
	for _, t := range trips {
		lines = append(lines, m.msg.TripRow(t))
		r.Options = append(r.Options, Option{Label: m.msg.TripButton(t), Data: PrefixTrip + strconv.FormatUint(t.ID, 10)})
	}
	r.Text = strings.Join(lines, "\n")
	return r
}

// parseID reads the leading number of "trip:7", "#7" or "7 Київ".
func parseID(input, prefix string) (uint64, bool) {
	in := strings.TrimPrefix(strings.TrimPrefix(input, prefix), "#")
	end := strings.IndexFunc(in, func(r rune) bool { return r < '0' || r > '9' })
	if end >= 0 {
		in = in[:end]
	}
	v, err := strconv.ParseUint(in, 10, 64)
	return v, err == nil && v > 0
}

func (m *Machine) onTrip(ctx context.Context, s *Session, input string) ([]Reply, error) {
	id, ok := parseID(input, PrefixTrip)
	if !ok {
		trips, err := m.booker.ListTrips(ctx, s.Draft.Date)
		if err != nil {
			return nil, err
		}
		return []Reply{m.tripList(s.Draft.Date, trips)}, nil
	}
	seats, err := m.booker.FreeSeats(ctx, id)
	switch {
	case errors.Is(err, booking.ErrTripNotFound), errors.Is(err, booking.ErrBusNotFound):
		return []Reply{{Text: m.msg.TripNotFound}}, nil
	case err != nil:
		return nil, err
	case !seats.Trip.Active():
		return []Reply{{Text: m.msg.TripCancelled}}, nil
	case len(seats.Free) == 0:
		return []Reply{{Text: m.msg.NoSeats}}, nil
	}
	s.Draft.TripID = id
	s.State = StateSelectSeat
	return m.seatPrompt(seats), nil
}

func (m *Machine) seatPrompt(seats booking.SeatMap) []Reply {
	r := Reply{Text: m.msg.ChooseSeat, Columns: 5}
	for n := 1; n <= seats.Total; n++ {
		r.Options = append(r.Options, Option{
			Label: m.msg.SeatLabel(n, seats.IsFree(n)),
			Data:  PrefixSeat + strconv.Itoa(n),
		})
	}
	return []Reply{{Text: m.msg.SeatPrompt(seats.Trip)}, r}
}

func (m *Machine) onSeat(ctx context.Context, s *Session, input string) ([]Reply, error) {
	seats, err := m.booker.FreeSeats(ctx, s.Draft.TripID)
	if errors.Is(err, booking.ErrTripNotFound) || errors.Is(err, booking.ErrBusNotFound) {
		s.State, s.Draft = StateIdle, Draft{}
		return []Reply{{Text: m.msg.TripNotFound, MainMenu: true}}, nil
	}
	if err != nil {
		return nil, err
	}
	n, ok := parseID(input, PrefixSeat)
	if !ok || n > uint64(seats.Total) {
		return append([]Reply{{Text: m.msg.InvalidSeat}}, m.seatPrompt(seats)...), nil
	}
	if !seats.IsFree(int(n)) {
		return append([]Reply{{Text: m.msg.SeatTaken}}, m.seatPrompt(seats)...), nil
	}
	s.Draft.Seat = int(n)
	s.State = StateBookingFillName
	return []Reply{{Text: m.msg.AskName}}, nil
}

func (m *Machine) onPhone(ctx context.Context, s *Session, ev Event) ([]Reply, error) {
	phone := strings.TrimSpace(ev.Contact)
	if phone == "" {
		phone = strings.TrimSpace(ev.Text)
	}
	if phone == "" {
		return []Reply{m.phonePrompt()}, nil
	}
	s.Draft.Phone = phone

	b, err := m.booker.ReserveSeat(ctx, booking.ReserveRequest{
		TripID: s.Draft.TripID,
		Name:   s.Draft.Name,
		Phone:  phone,
		Seat:   s.Draft.Seat,
	})
	draft := s.Draft
	s.State, s.Draft = StateIdle, Draft{}
	if err != nil {
		if !booking.IsBusinessError(err) {
			m.log.Error().Err(err).Str("platform", string(s.Platform)).Str("user_id", s.UserID).Msg("reserve seat")
			return []Reply{{Text: m.msg.InternalError, MainMenu: true}}, nil
		}
		return []Reply{{Text: m.failureText(err), MainMenu: true}}, nil
	}

	m.log.Info().Uint64("booking_id", b.ID).Uint64("trip_id", b.TripID).Int("seat", b.SeatNumber).
		Str("platform", string(s.Platform)).Msg("booking created via bot")
	m.syncIdentity(ctx, s.Platform, s.UserID, draft.Name, phone)
	return []Reply{{Text: m.msg.BookingSuccess(b), MainMenu: true}}, nil
}

func (m *Machine) failureText(err error) string {
	switch {
	case errors.Is(err, booking.ErrSeatTaken):
		return m.msg.SeatTaken
	case errors.Is(err, booking.ErrNoSeatsAvailable):
		return m.msg.NoSeats
	case errors.Is(err, booking.ErrTripCancelled):
		return m.msg.TripCancelled
	case errors.Is(err, booking.ErrTripNotFound), errors.Is(err, booking.ErrBusNotFound):
		return m.msg.TripNotFound
	}
	return m.msg.BookingFailure(err.Error())
}

func (m *Machine) syncIdentity(ctx context.Context, platform model.Platform, userID, name, phone string) {
	if m.identity == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		if err := m.identity.AfterBooking(ctx, platform, userID, name, phone); err != nil {
			m.log.Warn().Err(err).Str("platform", string(platform)).Str("user_id", userID).Msg("identity sync failed")
		}
	}()
}

func (m *Machine) myBookings(ctx context.Context, k Key) ([]Reply, error) {
	if m.profiles == nil {
		return []Reply{{Text: m.msg.NoContacts}}, nil
	}
	u, ok, err := m.profiles.GetBotUser(ctx, k.Platform, k.UserID)
	if err != nil {
		return nil, err
	}
	if !ok || u.Phone == "" {
		return []Reply{{Text: m.msg.NoContacts}}, nil
	}
	list, err := m.booker.ListByPhone(ctx, u.Phone)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return []Reply{{Text: m.msg.NoBookings}}, nil
	}
	out := make([]Reply, 0, len(list))
	for _, b := range list {
		out = append(out, Reply{Text: m.msg.BookingLine(b)})
	}
	return out, nil
}
