package model

import "time"

// ReservationStatus is the lifecycle state of a reservation.
type ReservationStatus string

// Reservation statuses.
const (
	StatusPending   ReservationStatus = "pending"
	StatusApproved  ReservationStatus = "approved"
	StatusReady     ReservationStatus = "ready"
	StatusCompleted ReservationStatus = "completed"
	StatusCancelled ReservationStatus = "cancelled"
	StatusExpired   ReservationStatus = "expired"
	StatusRejected  ReservationStatus = "rejected"
)

// ActiveStatuses are the statuses that occupy an equipment time slot.
var ActiveStatuses = []ReservationStatus{StatusPending, StatusApproved, StatusReady}

// IsActive reports whether the status counts toward conflict detection.
func (s ReservationStatus) IsActive() bool {
	return s == StatusPending || s == StatusApproved || s == StatusReady
}

// Valid reports whether s is a known status.
func (s ReservationStatus) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusReady, StatusCompleted,
		StatusCancelled, StatusExpired, StatusRejected:
		return true
	}
	return false
}

// Reservation is a request to use one piece of equipment during a bounded
// time window on a single day.
type Reservation struct {
	ID                 string            `json:"id"`
	EquipmentID        int64             `json:"equipment_id"`
	UserID             int64             `json:"user_id"`
	ReservationDate    time.Time         `json:"reservation_date"`
	StartTime          time.Time         `json:"start_time"`
	EndTime            time.Time         `json:"end_time"`
	ExpectedReturnDate *time.Time        `json:"expected_return_date,omitempty"`
	Purpose            string            `json:"purpose"`
	Notes              string            `json:"notes,omitempty"`
	Status             ReservationStatus `json:"status"`
	StatusReason       string            `json:"status_reason,omitempty"`
	ApprovedBy         *int64            `json:"approved_by,omitempty"`
	ApprovedAt         *time.Time        `json:"approved_at,omitempty"`
	ConvertedToLoanID  *int64            `json:"converted_to_loan_id,omitempty"`
	ConvertedAt        *time.Time        `json:"converted_at,omitempty"`
	CreatedAt          time.Time         `json:"created_at"`
	UpdatedAt          time.Time         `json:"updated_at"`
}

// ReturnDate is the date by which the equipment should be back. It falls
// back to the reservation date when no explicit return date was given.
func (r *Reservation) ReturnDate() time.Time {
	if r.ExpectedReturnDate != nil {
		return *r.ExpectedReturnDate
	}
	return r.ReservationDate
}

// ReservationFilter narrows reservation listings. Zero values are ignored.
type ReservationFilter struct {
	Status      ReservationStatus
	UserID      int64
	EquipmentID int64
	From        *time.Time // start_time >= From
	To          *time.Time // start_time < To
	OrderByEnd  bool       // order by end_time instead of start_time
}
