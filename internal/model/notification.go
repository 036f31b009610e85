package model

import "time"

// EventType identifies a reservation lifecycle event.
type EventType string

// Lifecycle events.
const (
	EventRequested EventType = "requested"
	EventApproved  EventType = "approved"
	EventRejected  EventType = "rejected"
	EventReady     EventType = "ready"
	EventCompleted EventType = "completed"
	EventCancelled EventType = "cancelled"
	EventExpired   EventType = "expired"
	EventConverted EventType = "converted"
)

// Event is emitted by a reservation transition and dispatched to the
// notification channels after the transition is persisted.
type Event struct {
	Type          EventType   `json:"type"`
	Reservation   Reservation `json:"reservation"`
	EquipmentName string      `json:"equipment_name,omitempty"`
	Reason        string      `json:"reason,omitempty"`
	LoanID        int64       `json:"loan_id,omitempty"`
	At            time.Time   `json:"at"`
}

// Notification is an in-app inbox entry.
type Notification struct {
	ID            int64      `json:"id"`
	UserID        int64      `json:"user_id"`
	Type          EventType  `json:"type"`
	ReservationID string     `json:"reservation_id,omitempty"`
	Message       string     `json:"message"`
	ReadAt        *time.Time `json:"read_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// ClosedDate is a day on which no reservations are accepted.
type ClosedDate struct {
	Date   string `json:"date"`
	Reason string `json:"reason,omitempty"`
}
