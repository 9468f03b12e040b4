// Package messages holds the user-facing texts of the bots and the
// reminder scheduler. The default catalogue is embedded; an operator may
// override any key with a YAML file.
package messages

import (
	_ "embed"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/iliyamo/bus-ticketing-crm/internal/model"
)

//go:embed default.yaml
var defaultYAML []byte

// Buttons are the main menu labels. They double as the commands the
// session machine recognises in any state.
type Buttons struct {
	Schedule   string `yaml:"schedule"`
	Book       string `yaml:"book"`
	MyBookings string `yaml:"my_bookings"`
	Support    string `yaml:"support"`
}

// Catalog is the set of message templates. Placeholders are written as
// {name} and filled by the helper methods.
type Catalog struct {
	Welcome        string  `yaml:"welcome"`
	MenuPrompt     string  `yaml:"menu_prompt"`
	UnknownCommand string  `yaml:"unknown_command"`
	UseButtons     string  `yaml:"use_buttons"`
	InternalError  string  `yaml:"internal_error"`
	Buttons        Buttons `yaml:"buttons"`

	ChooseDate    string `yaml:"choose_date"`
	NoTrips       string `yaml:"no_trips"`
	TripsHeader   string `yaml:"trips_header"`
	TripRowFmt    string `yaml:"trip_row"`
	TripButtonFmt string `yaml:"trip_button"`
	TripNotFound  string `yaml:"trip_not_found"`
	TripCancelled string `yaml:"trip_cancelled"`
	SeatSchemeFmt string `yaml:"seat_scheme"`
	ChooseSeat    string `yaml:"choose_seat"`
	SeatFreeFmt   string `yaml:"seat_free"`
	SeatBusyFmt   string `yaml:"seat_busy"`
	SeatTaken     string `yaml:"seat_taken"`
	InvalidSeat   string `yaml:"invalid_seat"`
	NoSeats       string `yaml:"no_seats"`
	AskName       string `yaml:"ask_name"`
	AskPhone      string `yaml:"ask_phone"`
	SharePhone    string `yaml:"share_phone"`
	BookingOK     string `yaml:"booking_success"`
	BookingFailed string `yaml:"booking_failed"`

	NoContacts     string `yaml:"no_contacts"`
	NoBookings     string `yaml:"no_bookings"`
	BookingLineFmt string `yaml:"booking_line"`
	Support        string `yaml:"support"`

	ReminderFmt string `yaml:"reminder"`
}

// Default returns the embedded catalogue.
func Default() *Catalog {
	var c Catalog
	if err := yaml.Unmarshal(defaultYAML, &c); err != nil {
		panic(fmt.Sprintf("messages: embedded catalogue: %v", err))
	}
	return &c
}

// Load returns the embedded catalogue with keys from path laid over it.
// An empty path returns Default().
func Load(path string) (*Catalog, error) {
	c := Default()
	if path == "" {
		return c, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read messages file: %w", err)
	}
	if err := yaml.Unmarshal(raw, c); err != nil {
		return nil, fmt.Errorf("parse messages file %s: %w", path, err)
	}
	return c, nil
}

func fill(tmpl string, kv ...string) string {
	if len(kv) == 0 {
		return tmpl
	}
	pairs := make([]string, 0, len(kv))
	for i := 0; i+1 < len(kv); i += 2 {
		pairs = append(pairs, "{"+kv[i]+"}", kv[i+1])
	}
	return strings.NewReplacer(pairs...).Replace(tmpl)
}

func id(v uint64) string { return strconv.FormatUint(v, 10) }

// Price renders a price without trailing zeros.
func Price(p float64) string { return strconv.FormatFloat(p, 'f', -1, 64) }

// TripRow is the one-line description of a trip used in listings.
func (c *Catalog) TripRow(t model.Trip) string {
	return fill(c.TripRowFmt,
		"id", id(t.ID), "from", t.FromCity, "to", t.ToCity,
		"date", t.Date, "time", t.Time, "price", Price(t.Price))
}

// TripButton is the short label of a trip option.
func (c *Catalog) TripButton(t model.Trip) string {
	return fill(c.TripButtonFmt,
		"id", id(t.ID), "from", t.FromCity, "to", t.ToCity, "time", t.Time)
}

func (c *Catalog) TripsOn(date string) string { return fill(c.TripsHeader, "date", date) }

// SeatPrompt is the header shown above the seat map of t.
func (c *Catalog) SeatPrompt(t model.Trip) string {
	return fill(c.SeatSchemeFmt,
		"id", id(t.ID), "from", t.FromCity, "to", t.ToCity, "date", t.Date, "time", t.Time)
}

// SeatLabel marks seat as free or occupied.
func (c *Catalog) SeatLabel(seat int, free bool) string {
	f := c.SeatBusyFmt
	if free {
		f = c.SeatFreeFmt
	}
	return fill(f, "seat", strconv.Itoa(seat))
}

func (c *Catalog) BookingSuccess(b model.Booking) string {
	return fill(c.BookingOK, "id", id(b.ID), "seat", strconv.Itoa(b.SeatNumber))
}

func (c *Catalog) BookingFailure(reason string) string {
	return fill(c.BookingFailed, "reason", reason)
}

// BookingLine describes one booking in a "my bookings" listing.
func (c *Catalog) BookingLine(b model.BookingDetail) string {
	return fill(c.BookingLineFmt,
		"id", id(b.ID), "from", b.FromCity, "to", b.ToCity,
		"date", b.TripDate, "time", b.TripTime,
		"seat", strconv.Itoa(b.SeatNumber), "status", string(b.Status))
}

// Reminder is the text sent offset hours before the departure of b.
func (c *Catalog) Reminder(offset int, b model.BookingDetail) string {
	return fill(c.ReminderFmt,
		"offset", strconv.Itoa(offset), "from", b.FromCity, "to", b.ToCity,
		"date", b.TripDate, "time", b.TripTime,
		"name", b.PassengerName, "seat", strconv.Itoa(b.SeatNumber), "id", id(b.ID))
}
