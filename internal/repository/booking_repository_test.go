package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"

	"github.com/iliyamo/bus-ticketing-crm/internal/inventory"
	"github.com/iliyamo/bus-ticketing-crm/internal/model"
)

func newMock(t *testing.T) (*BookingRepo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock init error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewBookingRepo(db), mock
}

func expectTripLock(mock sqlmock.Sqlmock, status string, seats any) {
	mock.ExpectQuery(`SELECT t.status, b.seats_count`).WithArgs(1).
		WillReturnRows(sqlmock.NewRows([]string{"status", "seats_count"}).AddRow(status, seats))
}

func TestInsertBookingIfSeatFree(t *testing.T) {
	ctx := context.Background()

	t.Run("assigns lowest free seat", func(t *testing.T) {
		repo, mock := newMock(t)
		mock.ExpectBegin()
		expectTripLock(mock, "active", 3)
		mock.ExpectQuery(`SELECT seat_number FROM bookings`).WithArgs(1).
			WillReturnRows(sqlmock.NewRows([]string{"seat_number"}).AddRow(1))
		mock.ExpectExec(`INSERT INTO bookings`).WithArgs(1, "Ann", "380501", 2).
			WillReturnResult(sqlmock.NewResult(10, 1))
		mock.ExpectCommit()

		b, err := repo.InsertBookingIfSeatFree(ctx, inventory.NewBooking{TripID: 1, Name: "Ann", Phone: "380501"})
		if err != nil {
			t.Fatalf("insert: %v", err)
		}
		if b.ID != 10 || b.SeatNumber != 2 || b.Status != model.BookingNew {
			t.Fatalf("booking = %+v", b)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Fatalf("unmet expectations: %v", err)
		}
	})

	t.Run("requested seat occupied", func(t *testing.T) {
		repo, mock := newMock(t)
		mock.ExpectBegin()
		expectTripLock(mock, "active", 3)
		mock.ExpectQuery(`SELECT seat_number FROM bookings`).WithArgs(1).
			WillReturnRows(sqlmock.NewRows([]string{"seat_number"}).AddRow(3))
		mock.ExpectRollback()

		_, err := repo.InsertBookingIfSeatFree(ctx, inventory.NewBooking{TripID: 1, Seat: 3, Name: "Ann", Phone: "1"})
		if !errors.Is(err, inventory.ErrSeatConflict) {
			t.Fatalf("err = %v, want ErrSeatConflict", err)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Fatalf("unmet expectations: %v", err)
		}
	})

	t.Run("unique index violation", func(t *testing.T) {
		repo, mock := newMock(t)
		mock.ExpectBegin()
		expectTripLock(mock, "active", 3)
		mock.ExpectQuery(`SELECT seat_number FROM bookings`).WithArgs(1).
			WillReturnRows(sqlmock.NewRows([]string{"seat_number"}))
		mock.ExpectExec(`INSERT INTO bookings`).
			WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry '1-1'"})
		mock.ExpectRollback()

		_, err := repo.InsertBookingIfSeatFree(ctx, inventory.NewBooking{TripID: 1, Seat: 1, Name: "Ann", Phone: "1"})
		if !errors.Is(err, inventory.ErrSeatConflict) {
			t.Fatalf("err = %v, want ErrSeatConflict", err)
		}
	})

	t.Run("trip missing", func(t *testing.T) {
		repo, mock := newMock(t)
		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT t.status, b.seats_count`).WithArgs(1).
			WillReturnRows(sqlmock.NewRows([]string{"status", "seats_count"}))
		mock.ExpectRollback()

		_, err := repo.InsertBookingIfSeatFree(ctx, inventory.NewBooking{TripID: 1, Name: "Ann", Phone: "1"})
		if !errors.Is(err, inventory.ErrTripNotFound) {
			t.Fatalf("err = %v, want ErrTripNotFound", err)
		}
	})

	t.Run("bus missing", func(t *testing.T) {
		repo, mock := newMock(t)
		mock.ExpectBegin()
		expectTripLock(mock, "active", nil)
		mock.ExpectRollback()

		_, err := repo.InsertBookingIfSeatFree(ctx, inventory.NewBooking{TripID: 1, Name: "Ann", Phone: "1"})
		if !errors.Is(err, inventory.ErrBusNotFound) {
			t.Fatalf("err = %v, want ErrBusNotFound", err)
		}
	})

	t.Run("trip cancelled", func(t *testing.T) {
		repo, mock := newMock(t)
		mock.ExpectBegin()
		expectTripLock(mock, "cancelled", 40)
		mock.ExpectRollback()

		_, err := repo.InsertBookingIfSeatFree(ctx, inventory.NewBooking{TripID: 1, Name: "Ann", Phone: "1"})
		if !errors.Is(err, inventory.ErrTripInactive) {
			t.Fatalf("err = %v, want ErrTripInactive", err)
		}
	})

	t.Run("trip full", func(t *testing.T) {
		repo, mock := newMock(t)
		mock.ExpectBegin()
		expectTripLock(mock, "active", 2)
		mock.ExpectQuery(`SELECT seat_number FROM bookings`).WithArgs(1).
			WillReturnRows(sqlmock.NewRows([]string{"seat_number"}).AddRow(1).AddRow(2))
		mock.ExpectRollback()

		_, err := repo.InsertBookingIfSeatFree(ctx, inventory.NewBooking{TripID: 1, Name: "Ann", Phone: "1"})
		if !errors.Is(err, inventory.ErrTripFull) {
			t.Fatalf("err = %v, want ErrTripFull", err)
		}
	})
}

func TestUpdateBookingStatus(t *testing.T) {
	ctx := context.Background()

	t.Run("applied", func(t *testing.T) {
		repo, mock := newMock(t)
		mock.ExpectExec(`UPDATE bookings SET status`).WithArgs("confirmed", 5, "new").
			WillReturnResult(sqlmock.NewResult(0, 1))
		ok, err := repo.UpdateBookingStatus(ctx, 5, model.BookingNew, model.BookingConfirmed)
		if err != nil || !ok {
			t.Fatalf("ok=%v err=%v", ok, err)
		}
	})

	t.Run("stale status", func(t *testing.T) {
		repo, mock := newMock(t)
		mock.ExpectExec(`UPDATE bookings SET status`).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(`SELECT 1 FROM bookings`).WithArgs(5).
			WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))
		ok, err := repo.UpdateBookingStatus(ctx, 5, model.BookingNew, model.BookingConfirmed)
		if err != nil || ok {
			t.Fatalf("ok=%v err=%v", ok, err)
		}
	})

	t.Run("missing", func(t *testing.T) {
		repo, mock := newMock(t)
		mock.ExpectExec(`UPDATE bookings SET status`).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(`SELECT 1 FROM bookings`).WithArgs(5).
			WillReturnRows(sqlmock.NewRows([]string{"1"}))
		_, err := repo.UpdateBookingStatus(ctx, 5, model.BookingNew, model.BookingConfirmed)
		if !errors.Is(err, inventory.ErrBookingNotFound) {
			t.Fatalf("err = %v, want ErrBookingNotFound", err)
		}
	})
}

func TestListDueBookingsForReminders(t *testing.T) {
	repo, mock := newMock(t)
	created := time.Date(2025, 5, 30, 9, 0, 0, 0, time.UTC)
	cols := []string{"id", "trip_id", "passenger_name", "passenger_phone", "seat_number", "status", "created_at",
		"trip_date", "departure_time", "status", "from_city", "to_city"}
	mock.ExpectQuery(`t.trip_date BETWEEN \? AND \?`).WithArgs("2025-05-31", "2025-06-02").
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow(1, 7, "Ann", "380501", 4, "confirmed", created, "2025-06-01", "08:00", "active", "Київ", "Львів"))

	got, err := repo.ListDueBookingsForReminders(context.Background(), "2025-05-31", "2025-06-02")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d rows", len(got))
	}
	d := got[0]
	if d.SeatNumber != 4 || d.Status != model.BookingConfirmed || d.TripTime != "08:00" || d.ToCity != "Львів" {
		t.Fatalf("detail = %+v", d)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRecipientPhonesBuildsFilter(t *testing.T) {
	repo, mock := newMock(t)
	mock.ExpectQuery(`b.status = \? AND b.trip_id = \? AND t.route_id = \?`).
		WithArgs("confirmed", 3, 2).
		WillReturnRows(sqlmock.NewRows([]string{"passenger_phone"}).AddRow("380501").AddRow("380502"))

	phones, err := repo.RecipientPhones(context.Background(),
		inventory.RecipientFilter{TripID: 3, RouteID: 2, Status: model.BookingConfirmed})
	if err != nil {
		t.Fatalf("recipients: %v", err)
	}
	if len(phones) != 2 {
		t.Fatalf("phones = %v", phones)
	}
}
