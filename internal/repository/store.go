package repository

import (
	"database/sql"

	"github.com/iliyamo/bus-ticketing-crm/internal/inventory"
)

// Store bundles the MySQL repositories behind the inventory interfaces.
type Store struct {
	*TripRepo
	*BookingRepo
	*ReminderRepo
	*BotUserRepo
	*UserRepo
}

// NewStore returns a Store whose repositories share db.
func NewStore(db *sql.DB) *Store {
	return &Store{
		TripRepo:     NewTripRepo(db),
		BookingRepo:  NewBookingRepo(db),
		ReminderRepo: NewReminderRepo(db),
		BotUserRepo:  NewBotUserRepo(db),
		UserRepo:     NewUserRepo(db),
	}
}

var (
	_ inventory.Store     = (*Store)(nil)
	_ inventory.Directory = (*Store)(nil)
	_ inventory.Admin     = (*Store)(nil)
)
