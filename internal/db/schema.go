package db

import (
	"database/sql"
	"fmt"
)

// schema is the full database schema.
//
// Reservation and loan timestamps are stored as RFC 3339 UTC text so that
// string comparison in SQL orders them chronologically.
const schema = `
CREATE TABLE IF NOT EXISTS users (
    id               INTEGER PRIMARY KEY,
    username         TEXT NOT NULL,
    password_hash    TEXT NOT NULL,
    role             TEXT NOT NULL DEFAULT 'user' CHECK (role IN ('admin', 'manager', 'user')),
    profile_approved INTEGER NOT NULL DEFAULT 0,
    created_at       DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    deleted_at       DATETIME
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_users_username_active
    ON users(username) WHERE deleted_at IS NULL;

CREATE TABLE IF NOT EXISTS equipment (
    id          INTEGER PRIMARY KEY,
    name        TEXT NOT NULL,
    description TEXT,
    category    TEXT,
    image       BLOB,
    thumbnail   BLOB,
    image_mime  TEXT,
    status      TEXT NOT NULL DEFAULT 'available' CHECK (status IN ('available', 'maintenance', 'retired')),
    created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    deleted_at  DATETIME
);

CREATE TABLE IF NOT EXISTS reservations (
    id                   TEXT PRIMARY KEY,
    equipment_id         INTEGER NOT NULL REFERENCES equipment(id),
    user_id              INTEGER NOT NULL REFERENCES users(id),
    reservation_date     TEXT NOT NULL,
    start_time           TEXT NOT NULL,
    end_time             TEXT NOT NULL,
    expected_return_date TEXT,
    purpose              TEXT NOT NULL,
    notes                TEXT,
    status               TEXT NOT NULL DEFAULT 'pending'
                         CHECK (status IN ('pending', 'approved', 'ready', 'completed', 'cancelled', 'expired', 'rejected')),
    status_reason        TEXT,
    approved_by          INTEGER REFERENCES users(id),
    approved_at          TEXT,
    converted_to_loan_id INTEGER,
    converted_at         TEXT,
    created_at           TEXT NOT NULL,
    updated_at           TEXT NOT NULL,
    CHECK (end_time > start_time)
);

CREATE INDEX IF NOT EXISTS idx_reservations_equipment_date
    ON reservations(equipment_id, reservation_date);

CREATE INDEX IF NOT EXISTS idx_reservations_status_end
    ON reservations(status, end_time);

CREATE TABLE IF NOT EXISTS loans (
    id                   INTEGER PRIMARY KEY,
    equipment_id         INTEGER NOT NULL REFERENCES equipment(id),
    user_id              INTEGER NOT NULL REFERENCES users(id),
    reservation_id       TEXT REFERENCES reservations(id),
    borrow_date          TEXT NOT NULL,
    expected_return_date TEXT NOT NULL,
    returned_at          TEXT,
    status               TEXT NOT NULL DEFAULT 'pending'
                         CHECK (status IN ('pending', 'approved', 'rejected', 'returned')),
    approved_by          INTEGER REFERENCES users(id),
    approved_at          TEXT,
    purpose              TEXT NOT NULL,
    notes                TEXT,
    created_at           TEXT NOT NULL,
    updated_at           TEXT NOT NULL,
    CHECK (expected_return_date > borrow_date)
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_loans_reservation
    ON loans(reservation_id) WHERE reservation_id IS NOT NULL;

CREATE TABLE IF NOT EXISTS notifications (
    id             INTEGER PRIMARY KEY,
    user_id        INTEGER NOT NULL REFERENCES users(id),
    type           TEXT NOT NULL,
    reservation_id TEXT,
    message        TEXT NOT NULL,
    read_at        TEXT,
    created_at     TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS settings (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS closed_dates (
    date   TEXT PRIMARY KEY,
    reason TEXT
);

CREATE TABLE IF NOT EXISTS revoked_tokens (
    jti        TEXT PRIMARY KEY,
    expires_at TEXT NOT NULL
);
`

// EnsureSchema creates all tables and indexes if they don't already exist.
func EnsureSchema(db *sql.DB) error {
	_, err := db.Exec(schema)
	if err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	return nil
}
