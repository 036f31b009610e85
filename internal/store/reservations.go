package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/erazemk/izposoja/internal/model"
)

const reservationColumns = `id, equipment_id, user_id, reservation_date, start_time, end_time,
	expected_return_date, purpose, notes, status, status_reason, approved_by, approved_at,
	converted_to_loan_id, converted_at, created_at, updated_at`

// overlapClause matches active reservations of one equipment piece whose
// [start_time, end_time) intersects a proposed interval. Arguments:
// equipment_id, proposed end, proposed start.
const overlapClause = `equipment_id = ? AND status IN ('pending', 'approved', 'ready')
	AND start_time < ? AND end_time > ?`

func scanReservation(row interface{ Scan(...any) error }) (*model.Reservation, error) {
	var r model.Reservation
	var date, start, end, created, updated string
	var expected, notes, reason, approvedAt, convertedAt sql.NullString
	var approvedBy, convertedTo sql.NullInt64

	err := row.Scan(&r.ID, &r.EquipmentID, &r.UserID, &date, &start, &end,
		&expected, &r.Purpose, &notes, &r.Status, &reason, &approvedBy, &approvedAt,
		&convertedTo, &convertedAt, &created, &updated)
	if err != nil {
		return nil, err
	}

	if r.ReservationDate, err = parseDate(date); err != nil {
		return nil, err
	}
	if r.StartTime, err = parseTime(start); err != nil {
		return nil, err
	}
	if r.EndTime, err = parseTime(end); err != nil {
		return nil, err
	}
	if r.ExpectedReturnDate, err = parseNullTime(expected); err != nil {
		return nil, err
	}
	if r.ApprovedAt, err = parseNullTime(approvedAt); err != nil {
		return nil, err
	}
	if r.ConvertedAt, err = parseNullTime(convertedAt); err != nil {
		return nil, err
	}
	if r.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	if r.UpdatedAt, err = parseTime(updated); err != nil {
		return nil, err
	}

	r.Notes = notes.String
	r.StatusReason = reason.String
	if approvedBy.Valid {
		r.ApprovedBy = &approvedBy.Int64
	}
	if convertedTo.Valid {
		r.ConvertedToLoanID = &convertedTo.Int64
	}
	return &r, nil
}

func scanReservations(rows *sql.Rows) ([]model.Reservation, error) {
	var list []model.Reservation
	for rows.Next() {
		r, err := scanReservation(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning reservation: %w", err)
		}
		list = append(list, *r)
	}
	return list, rows.Err()
}

// InsertReservation stores a new reservation only if no active reservation
// of the same equipment overlaps its interval. The check and the insert are
// a single statement, so concurrent requests cannot both win the slot.
// Returns model.ErrSlotTaken when the interval is occupied.
func InsertReservation(ctx context.Context, db *sql.DB, r *model.Reservation) error {
	result, err := db.ExecContext(ctx,
		`INSERT INTO reservations (id, equipment_id, user_id, reservation_date, start_time, end_time,
		                           expected_return_date, purpose, notes, status, created_at, updated_at)
		 SELECT ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?
		 WHERE NOT EXISTS (SELECT 1 FROM reservations WHERE `+overlapClause+`)`,
		r.ID, r.EquipmentID, r.UserID, formatDate(r.ReservationDate),
		formatTime(r.StartTime), formatTime(r.EndTime), formatTimePtr(r.ExpectedReturnDate),
		r.Purpose, r.Notes, string(r.Status), formatTime(r.CreatedAt), formatTime(r.UpdatedAt),
		r.EquipmentID, formatTime(r.EndTime), formatTime(r.StartTime),
	)
	if err != nil {
		return fmt.Errorf("inserting reservation: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking inserted reservation: %w", err)
	}
	if n == 0 {
		return model.ErrSlotTaken
	}
	return nil
}

// GetReservation returns a reservation by ID.
func GetReservation(ctx context.Context, db *sql.DB, id string) (*model.Reservation, error) {
	r, err := scanReservation(db.QueryRowContext(ctx,
		`SELECT `+reservationColumns+` FROM reservations WHERE id = ?`, id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting reservation: %w", err)
	}
	return r, nil
}

// ListReservationsForDay returns every reservation (any status) of one
// equipment piece on the calendar day of date, ordered by start time.
func ListReservationsForDay(ctx context.Context, db *sql.DB, equipmentID int64, date time.Time) ([]model.Reservation, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+reservationColumns+` FROM reservations
		 WHERE equipment_id = ? AND reservation_date = ?
		 ORDER BY start_time`,
		equipmentID, formatDate(date),
	)
	if err != nil {
		return nil, fmt.Errorf("listing reservations for day: %w", err)
	}
	defer rows.Close()

	return scanReservations(rows)
}

// ListReservations returns reservations matching the filter.
func ListReservations(ctx context.Context, db *sql.DB, f model.ReservationFilter) ([]model.Reservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM reservations WHERE 1=1`
	var args []any

	if f.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(f.Status))
	}
	if f.UserID > 0 {
		query += ` AND user_id = ?`
		args = append(args, f.UserID)
	}
	if f.EquipmentID > 0 {
		query += ` AND equipment_id = ?`
		args = append(args, f.EquipmentID)
	}
	if f.From != nil {
		query += ` AND start_time >= ?`
		args = append(args, formatTime(*f.From))
	}
	if f.To != nil {
		query += ` AND start_time < ?`
		args = append(args, formatTime(*f.To))
	}

	if f.OrderByEnd {
		query += ` ORDER BY end_time, start_time`
	} else {
		query += ` ORDER BY start_time, end_time`
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing reservations: %w", err)
	}
	defer rows.Close()

	return scanReservations(rows)
}

// UpdateReservationStatus writes r's status and the fields that accompany
// it, but only while the stored status still equals from. A concurrent
// change makes the write a no-op and returns model.ErrStaleStatus.
func UpdateReservationStatus(ctx context.Context, db *sql.DB, r *model.Reservation, from model.ReservationStatus) error {
	result, err := db.ExecContext(ctx,
		`UPDATE reservations
		 SET status = ?, status_reason = ?, approved_by = ?, approved_at = ?,
		     converted_to_loan_id = ?, converted_at = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		string(r.Status), nullString(r.StatusReason), r.ApprovedBy, formatTimePtr(r.ApprovedAt),
		r.ConvertedToLoanID, formatTimePtr(r.ConvertedAt), formatTime(r.UpdatedAt),
		r.ID, string(from),
	)
	if err != nil {
		return fmt.Errorf("updating reservation status: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking reservation update: %w", err)
	}
	if n == 0 {
		return model.ErrStaleStatus
	}
	return nil
}

// RescheduleReservation moves a pending reservation to a new interval. The
// write happens only if the reservation is still pending and the new
// interval does not overlap any other active reservation.
func RescheduleReservation(ctx context.Context, db *sql.DB, r *model.Reservation) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`UPDATE reservations
		 SET reservation_date = ?, start_time = ?, end_time = ?, expected_return_date = ?,
		     purpose = ?, notes = ?, updated_at = ?
		 WHERE id = ? AND status = 'pending'
		   AND NOT EXISTS (SELECT 1 FROM reservations WHERE id != ? AND `+overlapClause+`)`,
		formatDate(r.ReservationDate), formatTime(r.StartTime), formatTime(r.EndTime),
		formatTimePtr(r.ExpectedReturnDate), r.Purpose, r.Notes, formatTime(r.UpdatedAt),
		r.ID, r.ID, r.EquipmentID, formatTime(r.EndTime), formatTime(r.StartTime),
	)
	if err != nil {
		return fmt.Errorf("rescheduling reservation: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking reservation reschedule: %w", err)
	}
	if n == 0 {
		// Tell the caller which condition failed.
		var status string
		err := tx.QueryRowContext(ctx, `SELECT status FROM reservations WHERE id = ?`, r.ID).Scan(&status)
		if err != nil && err != sql.ErrNoRows {
			return fmt.Errorf("checking reservation status: %w", err)
		}
		if status != string(model.StatusPending) {
			return model.ErrStaleStatus
		}
		return model.ErrSlotTaken
	}

	return tx.Commit()
}

// ConvertReservation turns a reservation into a loan in one transaction:
// the reservation is moved to r's status only if it is still in status from
// and not yet converted, the loan is inserted, and the reservation is linked
// to it. The partial unique index on loans.reservation_id backs the
// one-loan-per-reservation rule.
func ConvertReservation(ctx context.Context, db *sql.DB, r *model.Reservation, from model.ReservationStatus, loan *model.Loan) (*model.Loan, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`UPDATE reservations
		 SET status = ?, converted_at = ?, updated_at = ?
		 WHERE id = ? AND status = ? AND converted_to_loan_id IS NULL`,
		string(r.Status), formatTimePtr(r.ConvertedAt), formatTime(r.UpdatedAt), r.ID, string(from),
	)
	if err != nil {
		return nil, fmt.Errorf("marking reservation converted: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("checking reservation conversion: %w", err)
	}
	if n == 0 {
		var converted sql.NullInt64
		err := tx.QueryRowContext(ctx,
			`SELECT converted_to_loan_id FROM reservations WHERE id = ?`, r.ID,
		).Scan(&converted)
		if err != nil && err != sql.ErrNoRows {
			return nil, fmt.Errorf("checking reservation conversion: %w", err)
		}
		if converted.Valid {
			return nil, model.ErrAlreadyConverted
		}
		return nil, model.ErrStaleStatus
	}

	reservationID := r.ID
	loan.ReservationID = &reservationID
	loanID, err := insertLoan(ctx, tx, loan)
	if err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE reservations SET converted_to_loan_id = ? WHERE id = ?`, loanID, r.ID,
	); err != nil {
		return nil, fmt.Errorf("linking reservation to loan: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing conversion: %w", err)
	}

	loan.ID = loanID
	r.ConvertedToLoanID = &loanID
	return loan, nil
}

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
