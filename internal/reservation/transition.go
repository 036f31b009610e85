package reservation

import (
	"fmt"
	"slices"
	"time"

	"github.com/erazemk/izposoja/internal/model"
)

// Action names a lifecycle transition.
type Action string

// Lifecycle actions.
const (
	ActionApprove   Action = "approve"
	ActionReject    Action = "reject"
	ActionMarkReady Action = "ready"
	ActionComplete  Action = "complete"
	ActionCancel    Action = "cancel"
	ActionExpire    Action = "expire"
	ActionConvert   Action = "convert"
)

// Command asks for one transition.
type Command struct {
	Action  Action
	ActorID int64
	Reason  string
}

type transition struct {
	from  []model.ReservationStatus
	to    model.ReservationStatus
	event model.EventType
}

var transitions = map[Action]transition{
	ActionApprove:   {[]model.ReservationStatus{model.StatusPending}, model.StatusApproved, model.EventApproved},
	ActionReject:    {[]model.ReservationStatus{model.StatusPending}, model.StatusRejected, model.EventRejected},
	ActionMarkReady: {[]model.ReservationStatus{model.StatusApproved}, model.StatusReady, model.EventReady},
	ActionComplete:  {[]model.ReservationStatus{model.StatusReady}, model.StatusCompleted, model.EventCompleted},
	ActionCancel:    {model.ActiveStatuses, model.StatusCancelled, model.EventCancelled},
	ActionExpire:    {[]model.ReservationStatus{model.StatusApproved, model.StatusReady}, model.StatusExpired, model.EventExpired},
	ActionConvert:   {[]model.ReservationStatus{model.StatusApproved, model.StatusReady}, model.StatusCompleted, model.EventConverted},
}

// Apply computes the result of cmd on r at time now without side effects.
// It returns the updated reservation and the events to dispatch once the
// update is persisted. r itself is not modified.
func Apply(r model.Reservation, cmd Command, now time.Time) (model.Reservation, []model.Event, error) {
	t, ok := transitions[cmd.Action]
	if !ok {
		return r, nil, fmt.Errorf("unknown action %q", cmd.Action)
	}

	if cmd.Action == ActionConvert && r.ConvertedToLoanID != nil {
		return r, nil, &StateError{Reason: ReasonAlreadyConverted}
	}
	if !slices.Contains(t.from, r.Status) {
		return r, nil, &StateError{Reason: fmt.Sprintf("cannot %s a %s reservation", cmd.Action, r.Status)}
	}
	if cmd.Action == ActionExpire && !r.EndTime.Before(now) {
		return r, nil, &StateError{Reason: ReasonNotEnded}
	}

	next := r
	next.Status = t.to
	next.UpdatedAt = now

	switch cmd.Action {
	case ActionApprove:
		approver, at := cmd.ActorID, now
		next.ApprovedBy = &approver
		next.ApprovedAt = &at
	case ActionReject, ActionCancel:
		next.StatusReason = cmd.Reason
	case ActionConvert:
		at := now
		next.ConvertedAt = &at
	}

	events := []model.Event{{
		Type:        t.event,
		Reservation: next,
		Reason:      cmd.Reason,
		At:          now,
	}}
	return next, events, nil
}

// loanFor builds the auto-approved loan a conversion of r creates.
// Borrowing starts at the reservation start. Without an expected return
// date the loan runs model.DefaultLoanDays; a return date on the
// reservation day itself means the end of the reservation.
func loanFor(r model.Reservation, approverID int64, now time.Time) *model.Loan {
	borrow := r.StartTime
	ret := borrow.AddDate(0, 0, model.DefaultLoanDays)
	if r.ExpectedReturnDate != nil {
		ret = *r.ExpectedReturnDate
		if ret.Before(r.EndTime) {
			ret = r.EndTime
		}
	}

	approvedAt := now
	return &model.Loan{
		EquipmentID:        r.EquipmentID,
		UserID:             r.UserID,
		BorrowDate:         borrow,
		ExpectedReturnDate: ret,
		Status:             model.LoanApproved,
		ApprovedBy:         &approverID,
		ApprovedAt:         &approvedAt,
		Purpose:            r.Purpose,
		Notes:              r.Notes,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}
