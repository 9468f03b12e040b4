package repository

import (
	"context"
	"database/sql"
	"errors"
)

// ReminderRepo records which reminder offsets have been handled for a
// booking. UNIQUE (booking_id, offset_hours) makes the insert
// idempotent.
type ReminderRepo struct {
	db *sql.DB
}

func NewReminderRepo(db *sql.DB) *ReminderRepo { return &ReminderRepo{db: db} }

func (r *ReminderRepo) HasReminderRecord(ctx context.Context, bookingID uint64, offsetHours int) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx,
		`SELECT 1 FROM reminders WHERE booking_id = ? AND offset_hours = ? LIMIT 1`, bookingID, offsetHours).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

func (r *ReminderRepo) InsertReminderRecord(ctx context.Context, bookingID uint64, offsetHours int) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT IGNORE INTO reminders (booking_id, offset_hours) VALUES (?, ?)`, bookingID, offsetHours)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}
