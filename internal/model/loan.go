package model

import "time"

// Loan records equipment handed out to a user.
type Loan struct {
	ID                 int64      `json:"id"`
	EquipmentID        int64      `json:"equipment_id"`
	UserID             int64      `json:"user_id"`
	ReservationID      *string    `json:"reservation_id,omitempty"`
	BorrowDate         time.Time  `json:"borrow_date"`
	ExpectedReturnDate time.Time  `json:"expected_return_date"`
	ReturnedAt         *time.Time `json:"returned_at,omitempty"`
	Status             string     `json:"status"`
	ApprovedBy         *int64     `json:"approved_by,omitempty"`
	ApprovedAt         *time.Time `json:"approved_at,omitempty"`
	Purpose            string     `json:"purpose"`
	Notes              string     `json:"notes,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`

	// Joined fields (not always populated).
	EquipmentName string `json:"equipment_name,omitempty"`
	Username      string `json:"username,omitempty"`
}

// Loan statuses.
const (
	LoanPending  = "pending"
	LoanApproved = "approved"
	LoanRejected = "rejected"
	LoanReturned = "returned"
)

// DefaultLoanDays is the loan length used when a reservation converted into
// a loan carries no usable return date.
const DefaultLoanDays = 7

// LoanFilter narrows loan listings. Zero values are ignored.
type LoanFilter struct {
	Status      string
	UserID      int64
	EquipmentID int64
}
