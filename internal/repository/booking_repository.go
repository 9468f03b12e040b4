package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/iliyamo/bus-ticketing-crm/internal/inventory"
	"github.com/iliyamo/bus-ticketing-crm/internal/model"
)

// BookingRepo stores seat bookings. The bookings table carries a
// generated column active_seat that equals seat_number for bookings that
// are not cancelled and NULL otherwise; UNIQUE (trip_id, active_seat)
// guarantees one live booking per seat even if the row lock below is
// bypassed.
type BookingRepo struct {
	db *sql.DB
}

// NewBookingRepo returns a BookingRepo bound to db.
func NewBookingRepo(db *sql.DB) *BookingRepo { return &BookingRepo{db: db} }

const bookingColumns = `b.id, b.trip_id, b.passenger_name, b.passenger_phone, b.seat_number, b.status, b.created_at`

func scanBooking(row rowScanner) (model.Booking, error) {
	var b model.Booking
	var status string
	if err := row.Scan(&b.ID, &b.TripID, &b.PassengerName, &b.PassengerPhone, &b.SeatNumber, &status, &b.CreatedAt); err != nil {
		return model.Booking{}, err
	}
	b.Status = model.BookingStatus(status)
	return b, nil
}

// InsertBookingIfSeatFree locks the trip row, computes the occupied set,
// picks the requested or lowest free seat and inserts the booking, all
// in one transaction. Concurrent callers for the same trip queue on the
// row lock.
func (r *BookingRepo) InsertBookingIfSeatFree(ctx context.Context, nb inventory.NewBooking) (model.Booking, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Booking{}, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	var status string
	var seats sql.NullInt64
	err = tx.QueryRowContext(ctx, `SELECT t.status, b.seats_count
       FROM trips t LEFT JOIN buses b ON b.id = t.bus_id
       WHERE t.id = ? FOR UPDATE`, nb.TripID).Scan(&status, &seats)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Booking{}, inventory.ErrTripNotFound
	}
	if err != nil {
		return model.Booking{}, err
	}
	if !seats.Valid {
		return model.Booking{}, inventory.ErrBusNotFound
	}
	if model.TripStatus(status) != model.TripActive {
		return model.Booking{}, inventory.ErrTripInactive
	}

	rows, err := tx.QueryContext(ctx,
		`SELECT seat_number FROM bookings WHERE trip_id = ? AND status <> 'cancelled'`, nb.TripID)
	if err != nil {
		return model.Booking{}, err
	}
	occupied := map[int]bool{}
	for rows.Next() {
		var n int
		if err := rows.Scan(&n); err != nil {
			rows.Close()
			return model.Booking{}, err
		}
		occupied[n] = true
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return model.Booking{}, err
	}
	rows.Close()

	seat, err := inventory.PickSeat(int(seats.Int64), occupied, nb.Seat)
	if err != nil {
		return model.Booking{}, err
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO bookings (trip_id, passenger_name, passenger_phone, seat_number, status) VALUES (?, ?, ?, ?, 'new')`,
		nb.TripID, nb.Name, nb.Phone, seat)
	if err != nil {
		if isDuplicateKey(err) {
			return model.Booking{}, inventory.ErrSeatConflict
		}
		return model.Booking{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.Booking{}, err
	}
	if err := tx.Commit(); err != nil {
		return model.Booking{}, err
	}
	committed = true
	return model.Booking{
		ID:             uint64(id),
		TripID:         nb.TripID,
		PassengerName:  nb.Name,
		PassengerPhone: nb.Phone,
		SeatNumber:     seat,
		Status:         model.BookingNew,
		CreatedAt:      time.Now().UTC(),
	}, nil
}

// GetBooking returns a booking by id.
func (r *BookingRepo) GetBooking(ctx context.Context, id uint64) (model.Booking, error) {
	b, err := scanBooking(r.db.QueryRowContext(ctx, `SELECT `+bookingColumns+` FROM bookings b WHERE b.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Booking{}, inventory.ErrBookingNotFound
	}
	return b, err
}

// ListBookings returns every booking of a trip, cancelled ones included.
func (r *BookingRepo) ListBookings(ctx context.Context, tripID uint64) ([]model.Booking, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+bookingColumns+` FROM bookings b WHERE b.trip_id = ? ORDER BY b.id`, tripID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// UpdateBookingStatus moves a booking from one status to another only
// if it is still in from.
func (r *BookingRepo) UpdateBookingStatus(ctx context.Context, id uint64, from, to model.BookingStatus) (bool, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE bookings SET status = ? WHERE id = ? AND status = ?`, string(to), id, string(from))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 1 {
		return true, nil
	}
	var exists int
	err = r.db.QueryRowContext(ctx, `SELECT 1 FROM bookings WHERE id = ?`, id).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return false, inventory.ErrBookingNotFound
	}
	return false, err
}

const detailQuery = `SELECT ` + bookingColumns + `, t.trip_date, t.departure_time, t.status,
       COALESCE(r.from_city, ''), COALESCE(r.to_city, '')
       FROM bookings b
       JOIN trips t ON t.id = b.trip_id
       LEFT JOIN routes r ON r.id = t.route_id`

func (r *BookingRepo) listDetails(ctx context.Context, where string, args ...any) ([]model.BookingDetail, error) {
	rows, err := r.db.QueryContext(ctx, detailQuery+` WHERE `+where+` ORDER BY t.trip_date, t.departure_time, b.id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.BookingDetail
	for rows.Next() {
		var d model.BookingDetail
		var status, tripStatus string
		if err := rows.Scan(&d.ID, &d.TripID, &d.PassengerName, &d.PassengerPhone, &d.SeatNumber, &status, &d.CreatedAt,
			&d.TripDate, &d.TripTime, &tripStatus, &d.FromCity, &d.ToCity); err != nil {
			return nil, err
		}
		d.Status = model.BookingStatus(status)
		d.TripStatus = model.TripStatus(tripStatus)
		out = append(out, d)
	}
	return out, rows.Err()
}

// ListBookingsByPhone returns the passenger's bookings with trip details.
func (r *BookingRepo) ListBookingsByPhone(ctx context.Context, phone string) ([]model.BookingDetail, error) {
	return r.listDetails(ctx, `b.passenger_phone = ?`, phone)
}

// ListDueBookingsForReminders returns live bookings on active trips
// departing within the date range.
func (r *BookingRepo) ListDueBookingsForReminders(ctx context.Context, fromDate, toDate string) ([]model.BookingDetail, error) {
	return r.listDetails(ctx,
		`b.status <> 'cancelled' AND t.status = 'active' AND t.trip_date BETWEEN ? AND ?`, fromDate, toDate)
}

// RecipientPhones returns distinct passenger phones of bookings matching f.
func (r *BookingRepo) RecipientPhones(ctx context.Context, f inventory.RecipientFilter) ([]string, error) {
	conds := []string{"b.passenger_phone <> ''"}
	var args []any
	if f.Status != "" {
		conds = append(conds, "b.status = ?")
		args = append(args, string(f.Status))
	} else {
		conds = append(conds, "b.status <> 'cancelled'")
	}
	if f.TripID != 0 {
		conds = append(conds, "b.trip_id = ?")
		args = append(args, f.TripID)
	}
	if f.RouteID != 0 {
		conds = append(conds, "t.route_id = ?")
		args = append(args, f.RouteID)
	}
	q := `SELECT DISTINCT b.passenger_phone FROM bookings b JOIN trips t ON t.id = b.trip_id WHERE ` +
		strings.Join(conds, " AND ") + ` ORDER BY b.passenger_phone`
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
