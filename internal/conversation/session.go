// Package conversation drives the booking dialogue of the messenger
// bots. Each (platform, user) pair has one session that walks
//
//	idle -> browsing_dates -> browsing_trips -> select_seat ->
//	booking_fill_name -> booking_fill_phone -> idle
//
// Invalid input re-prompts in the current state. Main menu commands are
// recognised in every state.
package conversation

import (
	"time"

	"github.com/iliyamo/bus-ticketing-crm/internal/model"
)

// State is the position of a session in the booking dialogue.
type State string

const (
	StateIdle             State = "idle"
	StateBrowsingDates    State = "browsing_dates"
	StateBrowsingTrips    State = "browsing_trips"
	StateSelectSeat       State = "select_seat"
	StateBookingFillName  State = "booking_fill_name"
	StateBookingFillPhone State = "booking_fill_phone"
)

// Draft accumulates the booking being assembled.
type Draft struct {
	Date   string `json:"date,omitempty"`
	TripID uint64 `json:"trip_id,omitempty"`
	Seat   int    `json:"seat,omitempty"`
	Name   string `json:"name,omitempty"`
	Phone  string `json:"phone,omitempty"`
}

// Key identifies a session.
type Key struct {
	Platform model.Platform
	UserID   string
}

func (k Key) String() string { return string(k.Platform) + ":" + k.UserID }

// Session is the dialogue state of one messenger user.
type Session struct {
	Platform  model.Platform `json:"platform"`
	UserID    string         `json:"user_id"`
	State     State          `json:"state"`
	Draft     Draft          `json:"draft"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Key returns the store key of s.
func (s Session) Key() Key { return Key{Platform: s.Platform, UserID: s.UserID} }

func newSession(k Key) Session {
	return Session{Platform: k.Platform, UserID: k.UserID, State: StateIdle}
}
