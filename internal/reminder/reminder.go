// Package reminder sends passengers a message a fixed number of hours
// before their departure. A sweep runs on an interval; each (booking,
// offset) pair fires while the time to departure is inside
// (offset-1, offset] hours and is recorded so it fires once.
package reminder

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/iliyamo/bus-ticketing-crm/internal/messages"
	"github.com/iliyamo/bus-ticketing-crm/internal/model"
)

// Store is the part of the inventory the scheduler reads and records to.
type Store interface {
	ListDueBookingsForReminders(ctx context.Context, fromDate, toDate string) ([]model.BookingDetail, error)
	HasReminderRecord(ctx context.Context, bookingID uint64, offsetHours int) (bool, error)
	InsertReminderRecord(ctx context.Context, bookingID uint64, offsetHours int) (bool, error)
}

// Recipients resolves a passenger phone to messenger identities.
type Recipients interface {
	ListBotUsersByPhone(ctx context.Context, phone string) ([]model.BotUser, error)
}

// Notifier delivers text on every channel a bot user has and reports
// the number of successful deliveries.
type Notifier interface {
	SendToUser(ctx context.Context, u model.BotUser, text string) (int, error)
}

// Config tunes the scheduler. Zero values take the defaults.
type Config struct {
	Offsets  []int
	Interval time.Duration
	// RecordOnFailure writes the reminder record even when nothing was
	// delivered, so each window gets at most one attempt. When false the
	// record is written only after a delivery and later sweeps inside
	// the same window retry. With RecordOnFailure the record is claimed
	// before sending, so a crash between the two loses that reminder
	// instead of sending it twice.
	RecordOnFailure bool
	Location        *time.Location
}

// DefaultOffsets are the hours before departure reminders go out at.
var DefaultOffsets = []int{24, 3, 1}

// Stats summarises one sweep.
type Stats struct {
	Checked     int
	Due         int
	Sent        int
	Undelivered int
	Skipped     int
	Errors      int
}

// Scheduler runs reminder sweeps.
type Scheduler struct {
	store    Store
	users    Recipients
	notifier Notifier
	msg      *messages.Catalog
	cfg      Config
	log      zerolog.Logger
	now      func() time.Time
}

func New(cfg Config, store Store, users Recipients, notifier Notifier, msg *messages.Catalog, log zerolog.Logger) *Scheduler {
	if len(cfg.Offsets) == 0 {
		cfg.Offsets = DefaultOffsets
	}
	offsets := make([]int, 0, len(cfg.Offsets))
	for _, o := range cfg.Offsets {
		if o > 0 {
			offsets = append(offsets, o)
		}
	}
	sort.Sort(sort.Reverse(sort.IntSlice(offsets)))
	cfg.Offsets = offsets
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if msg == nil {
		msg = messages.Default()
	}
	return &Scheduler{
		store:    store,
		users:    users,
		notifier: notifier,
		msg:      msg,
		cfg:      cfg,
		log:      log.With().Str("component", "reminder").Logger(),
		now:      time.Now,
	}
}

// Offsets returns the configured offsets, largest first.
func (s *Scheduler) Offsets() []int { return append([]int(nil), s.cfg.Offsets...) }

// ParseDeparture combines a trip date (YYYY-MM-DD) and time (HH:MM or
// HH:MM:SS) into an instant in loc.
func ParseDeparture(date, clock string, loc *time.Location) (time.Time, error) {
	clock = strings.TrimSpace(clock)
	layout := "2006-01-02 15:04"
	if strings.Count(clock, ":") == 2 {
		layout = "2006-01-02 15:04:05"
	}
	t, err := time.ParseInLocation(layout, strings.TrimSpace(date)+" "+clock, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse departure %q %q: %w", date, clock, err)
	}
	return t, nil
}

// inWindow reports whether hoursLeft is inside (offset-1, offset].
func inWindow(hoursLeft float64, offset int) bool {
	return hoursLeft > float64(offset-1) && hoursLeft <= float64(offset)
}

// Run sweeps once immediately and then every interval until ctx is
// cancelled. A sweep in progress is finished before Run returns.
func (s *Scheduler) Run(ctx context.Context) error {
	s.log.Info().Ints("offsets", s.cfg.Offsets).Dur("interval", s.cfg.Interval).Msg("reminder scheduler started")
	s.Sweep(context.WithoutCancel(ctx))
	t := time.NewTicker(s.cfg.Interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			s.Sweep(context.WithoutCancel(ctx))
		}
	}
}

// Sweep checks every active booking once. Failures of one booking are
// logged and do not stop the sweep.
func (s *Scheduler) Sweep(ctx context.Context) Stats {
	var st Stats
	now := s.now()
	local := now.In(s.cfg.Location)
	maxOffset := 0
	if len(s.cfg.Offsets) > 0 {
		maxOffset = s.cfg.Offsets[0]
	}
	from := local.AddDate(0, 0, -1).Format(time.DateOnly)
	to := local.Add(time.Duration(maxOffset)*time.Hour).AddDate(0, 0, 1).Format(time.DateOnly)

	bookings, err := s.store.ListDueBookingsForReminders(ctx, from, to)
	if err != nil {
		s.log.Error().Err(err).Msg("list bookings for reminders")
		st.Errors++
		return st
	}
	for _, b := range bookings {
		st.Checked++
		s.check(ctx, now, b, &st)
	}
	if st.Due > 0 || st.Errors > 0 {
		s.log.Info().Int("checked", st.Checked).Int("due", st.Due).Int("sent", st.Sent).
			Int("undelivered", st.Undelivered).Int("skipped", st.Skipped).Int("errors", st.Errors).
			Msg("reminder sweep")
	}
	return st
}

func (s *Scheduler) check(ctx context.Context, now time.Time, b model.BookingDetail, st *Stats) {
	l := s.log.With().Uint64("booking_id", b.ID).Logger()
	if !b.Holds() {
		return
	}
	dep, err := ParseDeparture(b.TripDate, b.TripTime, s.cfg.Location)
	if err != nil {
		l.Error().Err(err).Msg("reminder skipped")
		st.Errors++
		return
	}
	hoursLeft := dep.Sub(now).Hours()
	if hoursLeft <= 0 {
		return
	}
	for _, offset := range s.cfg.Offsets {
		if !inWindow(hoursLeft, offset) {
			continue
		}
		st.Due++
		ol := l.With().Int("offset", offset).Logger()
		has, err := s.store.HasReminderRecord(ctx, b.ID, offset)
		if err != nil {
			ol.Error().Err(err).Msg("check reminder record")
			st.Errors++
			continue
		}
		if has {
			st.Skipped++
			continue
		}
		s.remind(ctx, b, offset, st, ol)
	}
}

func (s *Scheduler) remind(ctx context.Context, b model.BookingDetail, offset int, st *Stats, l zerolog.Logger) {
	if s.cfg.RecordOnFailure {
		// claim first so concurrent sweeps never send twice
		inserted, err := s.store.InsertReminderRecord(ctx, b.ID, offset)
		if err != nil {
			l.Error().Err(err).Msg("insert reminder record")
			st.Errors++
			return
		}
		if !inserted {
			st.Skipped++
			return
		}
		if s.deliver(ctx, b, offset, l) {
			st.Sent++
		} else {
			st.Undelivered++
		}
		return
	}

	if !s.deliver(ctx, b, offset, l) {
		st.Undelivered++
		return
	}
	st.Sent++
	if _, err := s.store.InsertReminderRecord(ctx, b.ID, offset); err != nil {
		l.Error().Err(err).Msg("insert reminder record")
		st.Errors++
	}
}

// deliver sends the reminder to every bot user sharing the passenger
// phone and reports whether at least one delivery succeeded.
func (s *Scheduler) deliver(ctx context.Context, b model.BookingDetail, offset int, l zerolog.Logger) bool {
	text := s.msg.Reminder(offset, b)
	users, err := s.users.ListBotUsersByPhone(ctx, b.PassengerPhone)
	if err != nil {
		l.Warn().Err(err).Msg("lookup bot users")
	}
	sent := 0
	for _, u := range users {
		n, err := s.notifier.SendToUser(ctx, u, text)
		if err != nil {
			l.Debug().Err(err).Uint64("bot_user_id", u.ID).Msg("reminder channel failed")
		}
		sent += n
	}
	if sent == 0 {
		l.Info().Str("phone", b.PassengerPhone).Str("text", text).Msg("reminder_logged")
		return false
	}
	l.Info().Int("deliveries", sent).Msg("reminder_sent")
	return true
}
