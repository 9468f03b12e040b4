package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/iliyamo/bus-ticketing-crm/internal/inventory"
	"github.com/iliyamo/bus-ticketing-crm/internal/model"
)

// TripRepo reads and schedules trips. Trips are joined with their route
// for city names and with their bus for seat capacity.
type TripRepo struct {
	db *sql.DB
}

// NewTripRepo returns a TripRepo bound to db.
func NewTripRepo(db *sql.DB) *TripRepo { return &TripRepo{db: db} }

const tripColumns = `t.id, t.route_id, COALESCE(t.bus_id, 0), t.trip_date, t.departure_time, t.price, t.status,
       COALESCE(r.from_city, ''), COALESCE(r.to_city, ''), COALESCE(b.number, ''), b.seats_count`

const tripFrom = `FROM trips t
       LEFT JOIN routes r ON r.id = t.route_id
       LEFT JOIN buses b ON b.id = t.bus_id`

type rowScanner interface {
	Scan(dest ...any) error
}

// scanTrip reads one row selected with tripColumns. hasBus is false when
// the trip has no bus assigned.
func scanTrip(row rowScanner) (t model.Trip, hasBus bool, err error) {
	var seats sql.NullInt64
	var status string
	err = row.Scan(&t.ID, &t.RouteID, &t.BusID, &t.Date, &t.Time, &t.Price, &status,
		&t.FromCity, &t.ToCity, &t.BusNumber, &seats)
	if err != nil {
		return model.Trip{}, false, err
	}
	t.Status = model.TripStatus(status)
	if seats.Valid {
		t.SeatsCount = int(seats.Int64)
	}
	return t, seats.Valid, nil
}

// GetTripWithCapacity returns the trip and the capacity of its bus.
func (r *TripRepo) GetTripWithCapacity(ctx context.Context, tripID uint64) (model.Trip, error) {
	q := `SELECT ` + tripColumns + ` ` + tripFrom + ` WHERE t.id = ?`
	t, hasBus, err := scanTrip(r.db.QueryRowContext(ctx, q, tripID))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Trip{}, inventory.ErrTripNotFound
	}
	if err != nil {
		return model.Trip{}, err
	}
	if !hasBus {
		return model.Trip{}, inventory.ErrBusNotFound
	}
	return t, nil
}

// ListTripsByDate returns the active trips departing on date ordered by
// departure time.
func (r *TripRepo) ListTripsByDate(ctx context.Context, date string) ([]model.Trip, error) {
	q := `SELECT ` + tripColumns + ` ` + tripFrom + `
       WHERE t.trip_date = ? AND t.status = 'active'
       ORDER BY t.departure_time, t.id`
	rows, err := r.db.QueryContext(ctx, q, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Trip
	for rows.Next() {
		t, _, err := scanTrip(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// GenerateTrips inserts one trip per day of the schedule inside a single
// transaction. Days that already have the same route, bus and departure
// time are skipped by the unique index.
func (r *TripRepo) GenerateTrips(ctx context.Context, req inventory.GenerateRequest) ([]model.Trip, error) {
	dates, err := req.Dates()
	if err != nil {
		return nil, err
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	var from, to string
	err = tx.QueryRowContext(ctx, `SELECT from_city, to_city FROM routes WHERE id = ?`, req.RouteID).Scan(&from, &to)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, inventory.ErrRouteNotFound
	}
	if err != nil {
		return nil, err
	}
	var number string
	var seats int
	err = tx.QueryRowContext(ctx, `SELECT number, seats_count FROM buses WHERE id = ?`, req.BusID).Scan(&number, &seats)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, inventory.ErrBusNotFound
	}
	if err != nil {
		return nil, err
	}

	const ins = `INSERT IGNORE INTO trips (route_id, bus_id, trip_date, departure_time, price, status)
                 VALUES (?, ?, ?, ?, ?, 'active')`
	var out []model.Trip
	for _, d := range dates {
		res, err := tx.ExecContext(ctx, ins, req.RouteID, req.BusID, d, req.Time, req.Price)
		if err != nil {
			return nil, fmt.Errorf("insert trip %s: %w", d, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			continue
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, err
		}
		out = append(out, model.Trip{
			ID: uint64(id), RouteID: req.RouteID, BusID: req.BusID,
			Date: d, Time: req.Time, Price: req.Price, Status: model.TripActive,
			FromCity: from, ToCity: to, BusNumber: number, SeatsCount: seats,
		})
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	committed = true
	return out, nil
}
