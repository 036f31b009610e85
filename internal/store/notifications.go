package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/erazemk/izposoja/internal/model"
)

// CreateNotification adds an entry to a user's in-app inbox.
func CreateNotification(ctx context.Context, db *sql.DB, n *model.Notification) error {
	result, err := db.ExecContext(ctx,
		`INSERT INTO notifications (user_id, type, reservation_id, message, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		n.UserID, string(n.Type), nullString(n.ReservationID), n.Message, formatTime(n.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("creating notification: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("getting notification id: %w", err)
	}
	n.ID = id
	return nil
}

// ListNotifications returns a user's inbox, newest first.
func ListNotifications(ctx context.Context, db *sql.DB, userID int64, unreadOnly bool) ([]model.Notification, error) {
	query := `SELECT id, user_id, type, reservation_id, message, read_at, created_at
	          FROM notifications WHERE user_id = ?`
	if unreadOnly {
		query += ` AND read_at IS NULL`
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("listing notifications: %w", err)
	}
	defer rows.Close()

	var list []model.Notification
	for rows.Next() {
		var n model.Notification
		var reservationID, readAt sql.NullString
		var created string
		if err := rows.Scan(&n.ID, &n.UserID, &n.Type, &reservationID, &n.Message, &readAt, &created); err != nil {
			return nil, fmt.Errorf("scanning notification: %w", err)
		}
		n.ReservationID = reservationID.String
		if n.ReadAt, err = parseNullTime(readAt); err != nil {
			return nil, err
		}
		if n.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		list = append(list, n)
	}
	return list, rows.Err()
}

// MarkNotificationRead marks one of the user's notifications as read.
// Returns false if the notification does not belong to the user.
func MarkNotificationRead(ctx context.Context, db *sql.DB, id, userID int64, now time.Time) (bool, error) {
	result, err := db.ExecContext(ctx,
		`UPDATE notifications SET read_at = COALESCE(read_at, ?) WHERE id = ? AND user_id = ?`,
		formatTime(now), id, userID,
	)
	if err != nil {
		return false, fmt.Errorf("marking notification read: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("checking notification update: %w", err)
	}
	return n > 0, nil
}
