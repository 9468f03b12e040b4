package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/iliyamo/bus-ticketing-crm/internal/inventory"
)

var tripCols = []string{"id", "route_id", "bus_id", "trip_date", "departure_time", "price", "status",
	"from_city", "to_city", "number", "seats_count"}

func TestGetTripWithCapacity(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock init error: %v", err)
	}
	defer db.Close()
	repo := NewTripRepo(db)
	ctx := context.Background()

	mock.ExpectQuery(`FROM trips t`).WithArgs(1).
		WillReturnRows(sqlmock.NewRows(tripCols).
			AddRow(1, 2, 3, "2025-06-01", "08:00", 500.0, "active", "Київ", "Львів", "AA1234AA", 45))
	trip, err := repo.GetTripWithCapacity(ctx, 1)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if trip.SeatsCount != 45 || trip.FromCity != "Київ" || trip.BusID != 3 {
		t.Fatalf("trip = %+v", trip)
	}

	mock.ExpectQuery(`FROM trips t`).WithArgs(2).
		WillReturnRows(sqlmock.NewRows(tripCols).
			AddRow(2, 2, 0, "2025-06-01", "08:00", 500.0, "active", "Київ", "Львів", "", nil))
	if _, err := repo.GetTripWithCapacity(ctx, 2); !errors.Is(err, inventory.ErrBusNotFound) {
		t.Fatalf("err = %v, want ErrBusNotFound", err)
	}

	mock.ExpectQuery(`FROM trips t`).WithArgs(3).WillReturnRows(sqlmock.NewRows(tripCols))
	if _, err := repo.GetTripWithCapacity(ctx, 3); !errors.Is(err, inventory.ErrTripNotFound) {
		t.Fatalf("err = %v, want ErrTripNotFound", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestGenerateTripsSkipsExisting(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock init error: %v", err)
	}
	defer db.Close()
	repo := NewTripRepo(db)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT from_city, to_city FROM routes`).WithArgs(1).
		WillReturnRows(sqlmock.NewRows([]string{"from_city", "to_city"}).AddRow("Київ", "Одеса"))
	mock.ExpectQuery(`SELECT number, seats_count FROM buses`).WithArgs(2).
		WillReturnRows(sqlmock.NewRows([]string{"number", "seats_count"}).AddRow("BB0001", 50))
	mock.ExpectExec(`INSERT IGNORE INTO trips`).WithArgs(1, 2, "2025-06-01", "07:30", 600.0).
		WillReturnResult(sqlmock.NewResult(11, 1))
	mock.ExpectExec(`INSERT IGNORE INTO trips`).WithArgs(1, 2, "2025-06-02", "07:30", 600.0).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	trips, err := repo.GenerateTrips(context.Background(), inventory.GenerateRequest{
		RouteID: 1, BusID: 2, StartDate: "2025-06-01", Days: 2, Time: "07:30", Price: 600,
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(trips) != 1 || trips[0].ID != 11 || trips[0].SeatsCount != 50 || trips[0].ToCity != "Одеса" {
		t.Fatalf("trips = %+v", trips)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
