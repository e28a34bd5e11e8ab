package database

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
)

// schema is applied in order on every start.  Each statement is idempotent.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS seats (
		seat_number     INT UNSIGNED NOT NULL,
		status          ENUM('available','held','booked') NOT NULL DEFAULT 'available',
		holder_token    VARCHAR(64) NULL,
		held_at         DATETIME(3) NULL,
		expires_at      DATETIME(3) NULL,
		intent_ref      BIGINT NULL,
		reservation_ref CHAR(36) NULL,
		updated_at      DATETIME(3) NOT NULL DEFAULT CURRENT_TIMESTAMP(3) ON UPDATE CURRENT_TIMESTAMP(3),
		PRIMARY KEY (seat_number),
		UNIQUE KEY uq_seats_reservation (reservation_ref),
		KEY idx_seats_status_expiry (status, expires_at)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS payment_intents (
		order_code      BIGINT NOT NULL,
		seat_number     INT UNSIGNED NOT NULL,
		holder_token    VARCHAR(64) NOT NULL,
		amount          BIGINT NOT NULL,
		description     VARCHAR(64) NOT NULL,
		status          ENUM('pending','paid','cancelled','expired') NOT NULL DEFAULT 'pending',
		customer_name   VARCHAR(100) NOT NULL,
		customer_email  VARCHAR(255) NOT NULL,
		customer_phone  VARCHAR(20) NOT NULL,
		reservation_ref CHAR(36) NULL,
		checkout_url    VARCHAR(512) NULL,
		payment_link_id VARCHAR(64) NULL,
		failure_reason  VARCHAR(64) NULL,
		webhook_payload TEXT NULL,
		pending_seat    INT UNSIGNED GENERATED ALWAYS AS (IF(status = 'pending', seat_number, NULL)) STORED,
		created_at      DATETIME(3) NOT NULL DEFAULT CURRENT_TIMESTAMP(3),
		updated_at      DATETIME(3) NOT NULL DEFAULT CURRENT_TIMESTAMP(3) ON UPDATE CURRENT_TIMESTAMP(3),
		PRIMARY KEY (order_code),
		UNIQUE KEY uq_intents_pending_seat (pending_seat),
		KEY idx_intents_seat_status (seat_number, status),
		CONSTRAINT fk_intents_seat FOREIGN KEY (seat_number) REFERENCES seats (seat_number)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS reservations (
		id             CHAR(36) NOT NULL,
		order_code     BIGINT NOT NULL,
		name           VARCHAR(100) NOT NULL,
		email          VARCHAR(255) NOT NULL,
		phone          VARCHAR(20) NOT NULL,
		seat_number    INT UNSIGNED NOT NULL,
		payment_status ENUM('pending','verified','sent') NOT NULL DEFAULT 'pending',
		voided_at      DATETIME(3) NULL,
		paid_email     VARCHAR(255) GENERATED ALWAYS AS
		               (IF(payment_status IN ('verified','sent') AND voided_at IS NULL, email, NULL)) STORED,
		paid_phone     VARCHAR(20) GENERATED ALWAYS AS
		               (IF(payment_status IN ('verified','sent') AND voided_at IS NULL, phone, NULL)) STORED,
		created_at     DATETIME(3) NOT NULL DEFAULT CURRENT_TIMESTAMP(3),
		updated_at     DATETIME(3) NOT NULL DEFAULT CURRENT_TIMESTAMP(3) ON UPDATE CURRENT_TIMESTAMP(3),
		PRIMARY KEY (id),
		UNIQUE KEY uq_reservations_order (order_code),
		UNIQUE KEY uq_reservations_paid_email (paid_email),
		UNIQUE KEY uq_reservations_paid_phone (paid_phone)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS settlement_failures (
		id         BIGINT NOT NULL AUTO_INCREMENT,
		order_code BIGINT NOT NULL,
		outcome    VARCHAR(16) NOT NULL,
		reason     VARCHAR(64) NOT NULL,
		detail     VARCHAR(1024) NOT NULL DEFAULT '',
		created_at DATETIME(3) NOT NULL DEFAULT CURRENT_TIMESTAMP(3),
		PRIMARY KEY (id),
		UNIQUE KEY uq_failures_order_reason (order_code, reason)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

// Migrate creates the tables the service needs.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate step %d: %w", i+1, err)
		}
	}
	return nil
}

// SeedSeats makes sure seats 1..count exist.  Existing rows are untouched,
// so re-running on a live database never resets a hold or a booking.
func SeedSeats(ctx context.Context, db *sqlx.DB, count int) error {
	if count <= 0 {
		return nil
	}
	const batch = 500
	for start := 1; start <= count; start += batch {
		end := start + batch - 1
		if end > count {
			end = count
		}
		placeholders := make([]string, 0, end-start+1)
		args := make([]interface{}, 0, end-start+1)
		for n := start; n <= end; n++ {
			placeholders = append(placeholders, "(?)")
			args = append(args, n)
		}
		q := `INSERT IGNORE INTO seats (seat_number) VALUES ` + strings.Join(placeholders, ",")
		if _, err := db.ExecContext(ctx, q, args...); err != nil {
			return fmt.Errorf("seed seats %d-%d: %w", start, end, err)
		}
	}
	return nil
}
