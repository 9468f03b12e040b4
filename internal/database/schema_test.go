package database

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestMigrateRunsEveryStatement(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock init error: %v", err)
	}
	defer db.Close()
	for range schema {
		mock.ExpectExec(`CREATE TABLE IF NOT EXISTS`).WillReturnResult(sqlmock.NewResult(0, 0))
	}
	if err := Migrate(context.Background(), db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestMigrateStopsOnError(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock init error: %v", err)
	}
	defer db.Close()
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS routes`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS buses`).WillReturnError(errors.New("boom"))

	err = Migrate(context.Background(), db)
	if err == nil || !strings.Contains(err.Error(), "step 2") {
		t.Fatalf("err = %v", err)
	}
}

func TestSchemaGuardsSeatUniqueness(t *testing.T) {
	var bookings string
	for _, s := range schema {
		if strings.Contains(s, "CREATE TABLE IF NOT EXISTS bookings") {
			bookings = s
		}
	}
	if !strings.Contains(bookings, "UNIQUE KEY uq_bookings_active_seat (trip_id, active_seat)") {
		t.Fatal("bookings table lacks the live-seat unique index")
	}
}
