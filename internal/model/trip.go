package model

// TripStatus is the lifecycle flag of a scheduled trip.
type TripStatus string

const (
	TripActive    TripStatus = "active"
	TripCancelled TripStatus = "cancelled"
)

// Trip represents a row in the `trips` table joined with its route and
// bus. Date is stored as YYYY-MM-DD and Time as HH:MM (seconds are
// tolerated). Both are wall-clock values in the operator's time zone.
//
// SeatsCount is the capacity of the assigned bus. It is zero when the
// trip has no bus, in which case booking is impossible.
type Trip struct {
	ID         uint64     `json:"id"`
	RouteID    uint64     `json:"route_id"`
	BusID      uint64     `json:"bus_id"`
	Date       string     `json:"date"`
	Time       string     `json:"time"`
	Price      float64    `json:"price"`
	Status     TripStatus `json:"status"`
	FromCity   string     `json:"from_city"`
	ToCity     string     `json:"to_city"`
	BusNumber  string     `json:"bus_number,omitempty"`
	SeatsCount int        `json:"seats_count"`
}

// Active reports whether the trip still accepts bookings.
func (t Trip) Active() bool { return t.Status == "" || t.Status == TripActive }
