package store

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"

	"github.com/erazemk/izposoja/internal/model"
)

// Setting keys.
const (
	SettingJWTSecret             = "jwt_secret"
	SettingMaxAdvanceBookingDays = "max_advance_booking_days"
)

// GetJWTSecret retrieves the JWT secret from the database.
// If no secret exists, it generates one, stores it, and returns it.
// Uses INSERT OR IGNORE + re-SELECT to avoid TOCTOU race on concurrent startup.
func GetJWTSecret(ctx context.Context, db *sql.DB) (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating jwt secret: %w", err)
	}
	candidate := hex.EncodeToString(buf)

	_, err := db.ExecContext(ctx,
		`INSERT OR IGNORE INTO settings (key, value) VALUES (?, ?)`,
		SettingJWTSecret, candidate,
	)
	if err != nil {
		return "", fmt.Errorf("storing jwt_secret: %w", err)
	}

	secret, _, err := GetSetting(ctx, db, SettingJWTSecret)
	if err != nil {
		return "", err
	}
	return secret, nil
}

// GetSetting returns a setting value and whether it exists.
func GetSetting(ctx context.Context, db *sql.DB, key string) (string, bool, error) {
	var value string
	err := db.QueryRowContext(ctx,
		`SELECT value FROM settings WHERE key = ?`, key,
	).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("querying setting %s: %w", key, err)
	}
	return value, true, nil
}

// SetSetting stores a setting value.
func SetSetting(ctx context.Context, db *sql.DB, key, value string) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO settings (key, value) VALUES (?, ?)
		 ON CONFLICT (key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	if err != nil {
		return fmt.Errorf("storing setting %s: %w", key, err)
	}
	return nil
}

// GetMaxAdvanceBookingDays returns the stored booking horizon, or fallback
// if none was configured.
func GetMaxAdvanceBookingDays(ctx context.Context, db *sql.DB, fallback int) (int, error) {
	value, ok, err := GetSetting(ctx, db, SettingMaxAdvanceBookingDays)
	if err != nil {
		return 0, err
	}
	if !ok {
		return fallback, nil
	}
	days, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("parsing %s=%q: %w", SettingMaxAdvanceBookingDays, value, err)
	}
	return days, nil
}

// AddClosedDate marks a calendar day as closed for reservations.
func AddClosedDate(ctx context.Context, db *sql.DB, date time.Time, reason string) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO closed_dates (date, reason) VALUES (?, ?)
		 ON CONFLICT (date) DO UPDATE SET reason = excluded.reason`,
		formatDate(date), nullString(reason),
	)
	if err != nil {
		return fmt.Errorf("adding closed date: %w", err)
	}
	return nil
}

// RemoveClosedDate reopens a calendar day.
func RemoveClosedDate(ctx context.Context, db *sql.DB, date time.Time) error {
	_, err := db.ExecContext(ctx, `DELETE FROM closed_dates WHERE date = ?`, formatDate(date))
	if err != nil {
		return fmt.Errorf("removing closed date: %w", err)
	}
	return nil
}

// ListClosedDates returns all closed days in ascending order.
func ListClosedDates(ctx context.Context, db *sql.DB) ([]model.ClosedDate, error) {
	rows, err := db.QueryContext(ctx, `SELECT date, reason FROM closed_dates ORDER BY date`)
	if err != nil {
		return nil, fmt.Errorf("listing closed dates: %w", err)
	}
	defer rows.Close()

	var dates []model.ClosedDate
	for rows.Next() {
		var d model.ClosedDate
		var reason sql.NullString
		if err := rows.Scan(&d.Date, &reason); err != nil {
			return nil, fmt.Errorf("scanning closed date: %w", err)
		}
		d.Reason = reason.String
		dates = append(dates, d)
	}
	return dates, rows.Err()
}

// IsDateClosed reports whether the calendar day of date is closed.
func IsDateClosed(ctx context.Context, db *sql.DB, date time.Time) (bool, error) {
	var count int
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM closed_dates WHERE date = ?`, formatDate(date),
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("checking closed date: %w", err)
	}
	return count > 0, nil
}
