package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/erazemk/izposoja/internal/model"
)

const loanSelect = `SELECT l.id, l.equipment_id, l.user_id, l.reservation_id, l.borrow_date,
	       l.expected_return_date, l.returned_at, l.status, l.approved_by, l.approved_at,
	       l.purpose, l.notes, l.created_at, l.updated_at,
	       e.name AS equipment_name, u.username
	FROM loans l
	JOIN equipment e ON e.id = l.equipment_id
	JOIN users u ON u.id = l.user_id`

func scanLoan(row interface{ Scan(...any) error }) (*model.Loan, error) {
	var l model.Loan
	var reservationID, returnedAt, approvedAt, notes sql.NullString
	var approvedBy sql.NullInt64
	var borrow, expected, created, updated string

	err := row.Scan(&l.ID, &l.EquipmentID, &l.UserID, &reservationID, &borrow,
		&expected, &returnedAt, &l.Status, &approvedBy, &approvedAt,
		&l.Purpose, &notes, &created, &updated,
		&l.EquipmentName, &l.Username)
	if err != nil {
		return nil, err
	}

	if l.BorrowDate, err = parseTime(borrow); err != nil {
		return nil, err
	}
	if l.ExpectedReturnDate, err = parseTime(expected); err != nil {
		return nil, err
	}
	if l.ReturnedAt, err = parseNullTime(returnedAt); err != nil {
		return nil, err
	}
	if l.ApprovedAt, err = parseNullTime(approvedAt); err != nil {
		return nil, err
	}
	if l.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	if l.UpdatedAt, err = parseTime(updated); err != nil {
		return nil, err
	}

	if reservationID.Valid {
		l.ReservationID = &reservationID.String
	}
	if approvedBy.Valid {
		l.ApprovedBy = &approvedBy.Int64
	}
	l.Notes = notes.String
	return &l, nil
}

func insertLoan(ctx context.Context, db execer, l *model.Loan) (int64, error) {
	if !l.ExpectedReturnDate.After(l.BorrowDate) {
		return 0, fmt.Errorf("expected return date must be after borrow date")
	}

	result, err := db.ExecContext(ctx,
		`INSERT INTO loans (equipment_id, user_id, reservation_id, borrow_date, expected_return_date,
		                    status, approved_by, approved_at, purpose, notes, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		l.EquipmentID, l.UserID, l.ReservationID, formatTime(l.BorrowDate), formatTime(l.ExpectedReturnDate),
		l.Status, l.ApprovedBy, formatTimePtr(l.ApprovedAt), l.Purpose, nullString(l.Notes),
		formatTime(l.CreatedAt), formatTime(l.UpdatedAt),
	)
	if err != nil {
		return 0, fmt.Errorf("inserting loan: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("getting loan id: %w", err)
	}
	return id, nil
}

// CreateLoan records a loan request. The request starts pending unless the
// caller set another status.
func CreateLoan(ctx context.Context, db *sql.DB, l *model.Loan) (*model.Loan, error) {
	if l.Status == "" {
		l.Status = model.LoanPending
	}

	id, err := insertLoan(ctx, db, l)
	if err != nil {
		return nil, err
	}
	return GetLoan(ctx, db, id)
}

// GetLoan returns a loan by ID.
func GetLoan(ctx context.Context, db *sql.DB, id int64) (*model.Loan, error) {
	l, err := scanLoan(db.QueryRowContext(ctx, loanSelect+` WHERE l.id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting loan: %w", err)
	}
	return l, nil
}

// ListLoans returns loans, optionally filtered by status, user or equipment.
func ListLoans(ctx context.Context, db *sql.DB, f model.LoanFilter) ([]model.Loan, error) {
	query := loanSelect + ` WHERE 1=1`
	var args []any

	if f.Status != "" {
		query += ` AND l.status = ?`
		args = append(args, f.Status)
	}
	if f.UserID > 0 {
		query += ` AND l.user_id = ?`
		args = append(args, f.UserID)
	}
	if f.EquipmentID > 0 {
		query += ` AND l.equipment_id = ?`
		args = append(args, f.EquipmentID)
	}

	query += ` ORDER BY l.borrow_date DESC, l.id DESC`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing loans: %w", err)
	}
	defer rows.Close()

	var loans []model.Loan
	for rows.Next() {
		l, err := scanLoan(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning loan: %w", err)
		}
		loans = append(loans, *l)
	}
	return loans, rows.Err()
}

// ApproveLoan approves a pending loan. Approval fails with model.ErrSlotTaken
// when another approved, unreturned loan of the same equipment overlaps it.
func ApproveLoan(ctx context.Context, db *sql.DB, id, approverID int64, now time.Time) (*model.Loan, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`UPDATE loans SET status = 'approved', approved_by = ?, approved_at = ?, updated_at = ?
		 WHERE id = ? AND status = 'pending'
		   AND NOT EXISTS (
		       SELECT 1 FROM loans other, loans self
		       WHERE self.id = ? AND other.id != self.id
		         AND other.equipment_id = self.equipment_id
		         AND other.status = 'approved'
		         AND other.borrow_date < self.expected_return_date
		         AND other.expected_return_date > self.borrow_date)`,
		approverID, formatTime(now), formatTime(now), id, id,
	)
	if err != nil {
		return nil, fmt.Errorf("approving loan: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("checking loan approval: %w", err)
	}
	if n == 0 {
		var status string
		err := tx.QueryRowContext(ctx, `SELECT status FROM loans WHERE id = ?`, id).Scan(&status)
		if err != nil && err != sql.ErrNoRows {
			return nil, fmt.Errorf("checking loan status: %w", err)
		}
		if status != model.LoanPending {
			return nil, model.ErrStaleStatus
		}
		return nil, model.ErrSlotTaken
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing loan approval: %w", err)
	}
	return GetLoan(ctx, db, id)
}

// RejectLoan rejects a pending loan request.
func RejectLoan(ctx context.Context, db *sql.DB, id int64, now time.Time) error {
	return moveLoan(ctx, db, id, model.LoanPending, model.LoanRejected, now, false)
}

// ReturnLoan marks an approved loan as returned.
func ReturnLoan(ctx context.Context, db *sql.DB, id int64, now time.Time) error {
	return moveLoan(ctx, db, id, model.LoanApproved, model.LoanReturned, now, true)
}

func moveLoan(ctx context.Context, db *sql.DB, id int64, from, to string, now time.Time, returned bool) error {
	var returnedAt any
	if returned {
		returnedAt = formatTime(now)
	}

	result, err := db.ExecContext(ctx,
		`UPDATE loans SET status = ?, returned_at = COALESCE(?, returned_at), updated_at = ?
		 WHERE id = ? AND status = ?`,
		to, returnedAt, formatTime(now), id, from,
	)
	if err != nil {
		return fmt.Errorf("updating loan status: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking loan update: %w", err)
	}
	if n == 0 {
		return model.ErrStaleStatus
	}
	return nil
}

// EquipmentOnLoan reports whether an approved, unreturned loan of the
// equipment overlaps [from, to).
func EquipmentOnLoan(ctx context.Context, db *sql.DB, equipmentID int64, from, to time.Time) (bool, error) {
	var count int
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM loans
		 WHERE equipment_id = ? AND status = 'approved'
		   AND borrow_date < ? AND expected_return_date > ?`,
		equipmentID, formatTime(to), formatTime(from),
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("checking equipment loans: %w", err)
	}
	return count > 0, nil
}
