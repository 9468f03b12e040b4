package database

import (
	"context"
	"database/sql"
	"fmt"
)

// schema creates the CRM tables. Trip date and time are kept as text in
// the operator's zone. bookings.active_seat is NULL for cancelled rows so
// that UNIQUE (trip_id, active_seat) only constrains live bookings.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS routes (
		id BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		from_city VARCHAR(100) NOT NULL,
		to_city VARCHAR(100) NOT NULL,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS buses (
		id BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		number VARCHAR(32) NOT NULL,
		seats_count INT NOT NULL,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		UNIQUE KEY uq_buses_number (number),
		CHECK (seats_count > 0)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS trips (
		id BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		route_id BIGINT UNSIGNED NOT NULL,
		bus_id BIGINT UNSIGNED NULL,
		trip_date CHAR(10) NOT NULL,
		departure_time VARCHAR(8) NOT NULL,
		price DECIMAL(10,2) NOT NULL DEFAULT 0,
		status VARCHAR(16) NOT NULL DEFAULT 'active',
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		UNIQUE KEY uq_trips_schedule (route_id, bus_id, trip_date, departure_time),
		KEY idx_trips_date (trip_date, status),
		CONSTRAINT fk_trips_route FOREIGN KEY (route_id) REFERENCES routes (id),
		CONSTRAINT fk_trips_bus FOREIGN KEY (bus_id) REFERENCES buses (id) ON DELETE SET NULL
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS bookings (
		id BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		trip_id BIGINT UNSIGNED NOT NULL,
		passenger_name VARCHAR(255) NOT NULL,
		passenger_phone VARCHAR(32) NOT NULL,
		seat_number INT NOT NULL,
		status VARCHAR(16) NOT NULL DEFAULT 'new',
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		active_seat INT GENERATED ALWAYS AS (IF(status = 'cancelled', NULL, seat_number)) STORED,
		UNIQUE KEY uq_bookings_active_seat (trip_id, active_seat),
		KEY idx_bookings_phone (passenger_phone),
		CONSTRAINT fk_bookings_trip FOREIGN KEY (trip_id) REFERENCES trips (id),
		CHECK (seat_number > 0)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS reminders (
		id BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		booking_id BIGINT UNSIGNED NOT NULL,
		offset_hours INT NOT NULL,
		sent_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		UNIQUE KEY uq_reminders_booking_offset (booking_id, offset_hours),
		CONSTRAINT fk_reminders_booking FOREIGN KEY (booking_id) REFERENCES bookings (id) ON DELETE CASCADE
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS users (
		id BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		name VARCHAR(255) NOT NULL DEFAULT '',
		phone VARCHAR(32) NOT NULL,
		role VARCHAR(16) NOT NULL DEFAULT 'passenger',
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		UNIQUE KEY uq_users_phone (phone)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS bot_users (
		id BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		telegram_id VARCHAR(64) NULL,
		viber_id VARCHAR(64) NULL,
		name VARCHAR(255) NOT NULL DEFAULT '',
		phone VARCHAR(32) NOT NULL DEFAULT '',
		user_id BIGINT UNSIGNED NULL,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
		UNIQUE KEY uq_bot_users_telegram (telegram_id),
		UNIQUE KEY uq_bot_users_viber (viber_id),
		KEY idx_bot_users_phone (phone),
		CONSTRAINT fk_bot_users_user FOREIGN KEY (user_id) REFERENCES users (id) ON DELETE SET NULL
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

// Migrate creates missing tables. It is safe to run on every start.
func Migrate(ctx context.Context, db *sql.DB) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate step %d: %w", i+1, err)
		}
	}
	return nil
}
