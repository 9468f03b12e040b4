package model

import "time"

// ReminderRecord marks that the reminder for a booking at a given
// offset (hours before departure) has been handled.
type ReminderRecord struct {
	BookingID   uint64
	OffsetHours int
	SentAt      time.Time
}
