package reservation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/erazemk/izposoja/internal/model"
)

// Store persists reservations. Writes are conditional: InsertReservation
// fails with model.ErrSlotTaken when the interval is taken, status writes
// fail with model.ErrStaleStatus when the stored status is no longer the
// expected one, and ConvertReservation fails with
// model.ErrAlreadyConverted on a second conversion.
type Store interface {
	DayLister
	InsertReservation(ctx context.Context, r *model.Reservation) error
	GetReservation(ctx context.Context, id string) (*model.Reservation, error)
	ListReservations(ctx context.Context, f model.ReservationFilter) ([]model.Reservation, error)
	UpdateReservationStatus(ctx context.Context, r *model.Reservation, from model.ReservationStatus) error
	RescheduleReservation(ctx context.Context, r *model.Reservation) error
	ConvertReservation(ctx context.Context, r *model.Reservation, from model.ReservationStatus, loan *model.Loan) (*model.Loan, error)
}

// Notifier dispatches lifecycle events.
type Notifier interface {
	Notify(ctx context.Context, e model.Event) error
}

// Deps are the collaborators of a Manager. Settings, Loans, Notifier and
// Clock are optional.
type Deps struct {
	Store     Store
	Equipment EquipmentGetter
	Settings  Settings
	Loans     LoanChecker
	Notifier  Notifier
	Clock     Clock
}

// Actor is the user performing an operation.
type Actor struct {
	UserID int64
	Staff  bool // manager or admin
}

// Manager owns reservation state transitions. It is the only writer of
// reservation status.
type Manager struct {
	store     Store
	equipment EquipmentGetter
	notifier  Notifier
	clock     Clock
	rules     Rules
	loc       *time.Location
	checker   *Checker
	validator *Validator
}

// NewManager wires a Manager.
func NewManager(rules Rules, deps Deps) *Manager {
	if deps.Clock == nil {
		deps.Clock = SystemClock{}
	}

	checker := NewChecker(deps.Store)
	return &Manager{
		store:     deps.Store,
		equipment: deps.Equipment,
		notifier:  deps.Notifier,
		clock:     deps.Clock,
		rules:     rules,
		loc:       rules.location(),
		checker:   checker,
		validator: &Validator{
			checker:   checker,
			rules:     rules,
			clock:     deps.Clock,
			equipment: deps.Equipment,
			settings:  deps.Settings,
			loans:     deps.Loans,
		},
	}
}

// Validator returns the validator used by the manager.
func (m *Manager) Validator() *Validator { return m.validator }

// Checker returns the conflict checker used by the manager.
func (m *Manager) Checker() *Checker { return m.checker }

// Location is the time zone reservations are scheduled in.
func (m *Manager) Location() *time.Location { return m.loc }

// Rules returns the configured business rules.
func (m *Manager) Rules() Rules { return m.rules }

// Now is the manager's clock reading in its location.
func (m *Manager) Now() time.Time { return m.clock.Now().In(m.loc) }

// Schedule parses a calendar date and "HH:MM" start and end times in the
// manager's location.
func (m *Manager) Schedule(date, start, end string) (day, startTime, endTime time.Time, err error) {
	day, err = ParseDate(date, m.loc)
	if err != nil {
		return day, startTime, endTime, &ValidationError{Reason: err.Error()}
	}
	if startTime, err = Combine(day, start); err != nil {
		return day, startTime, endTime, &ValidationError{Reason: err.Error()}
	}
	if endTime, err = Combine(day, end); err != nil {
		return day, startTime, endTime, &ValidationError{Reason: err.Error()}
	}
	return day, startTime, endTime, nil
}

// Create validates req and stores it as a pending reservation.
func (m *Manager) Create(ctx context.Context, req Request) (*model.Reservation, error) {
	req = m.normalizeRequest(req)
	if err := m.validator.ValidateExtended(ctx, req, ""); err != nil {
		return nil, err
	}

	now := m.clock.Now()
	r := &model.Reservation{
		ID:                 uuid.NewString(),
		EquipmentID:        req.EquipmentID,
		UserID:             req.UserID,
		ReservationDate:    req.Date,
		StartTime:          req.StartTime,
		EndTime:            req.EndTime,
		ExpectedReturnDate: req.ExpectedReturnDate,
		Purpose:            strings.TrimSpace(req.Purpose),
		Notes:              strings.TrimSpace(req.Notes),
		Status:             model.StatusPending,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	if err := m.store.InsertReservation(ctx, r); err != nil {
		if errors.Is(err, model.ErrSlotTaken) {
			return nil, invalid(ReasonSlotUnavailable)
		}
		return nil, fmt.Errorf("storing reservation: %w", err)
	}

	slog.Info("reservation requested", "id", r.ID, "equipment_id", r.EquipmentID, "user_id", r.UserID,
		"start", r.StartTime, "end", r.EndTime)
	m.emit(ctx, []model.Event{{Type: model.EventRequested, Reservation: *r, At: now}})
	return r, nil
}

// Get returns a reservation by ID.
func (m *Manager) Get(ctx context.Context, id string) (*model.Reservation, error) {
	r, err := m.store.GetReservation(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("loading reservation: %w", err)
	}
	if r == nil {
		return nil, fmt.Errorf("reservation %s: %w", id, ErrNotFound)
	}
	m.localize(r)
	return r, nil
}

// List returns reservations matching f.
func (m *Manager) List(ctx context.Context, f model.ReservationFilter) ([]model.Reservation, error) {
	list, err := m.store.ListReservations(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("listing reservations: %w", err)
	}
	for i := range list {
		m.localize(&list[i])
	}
	return list, nil
}

// Reschedule changes the time, return date, purpose and notes of a pending
// reservation. The new interval is validated against every other active
// reservation of the same equipment.
func (m *Manager) Reschedule(ctx context.Context, id string, actor Actor, req Request) (*model.Reservation, error) {
	r, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.Staff && r.UserID != actor.UserID {
		return nil, fmt.Errorf("reservation %s: %w", id, ErrNotFound)
	}
	if r.Status != model.StatusPending {
		return nil, &StateError{Reason: ReasonOnlyPendingChange}
	}

	req.EquipmentID = r.EquipmentID
	req.UserID = r.UserID
	req = m.normalizeRequest(req)
	if err := m.validator.ValidateExtended(ctx, req, r.ID); err != nil {
		return nil, err
	}

	r.ReservationDate = req.Date
	r.StartTime = req.StartTime
	r.EndTime = req.EndTime
	r.ExpectedReturnDate = req.ExpectedReturnDate
	r.Purpose = strings.TrimSpace(req.Purpose)
	r.Notes = strings.TrimSpace(req.Notes)
	r.UpdatedAt = m.clock.Now()

	switch err := m.store.RescheduleReservation(ctx, r); {
	case errors.Is(err, model.ErrSlotTaken):
		return nil, invalid(ReasonSlotUnavailable)
	case errors.Is(err, model.ErrStaleStatus):
		return nil, &StateError{Reason: ReasonConcurrentChange}
	case err != nil:
		return nil, fmt.Errorf("rescheduling reservation: %w", err)
	}

	slog.Info("reservation rescheduled", "id", r.ID, "start", r.StartTime, "end", r.EndTime)
	return r, nil
}

// Approve moves a pending reservation to approved.
func (m *Manager) Approve(ctx context.Context, id string, approverID int64) (*model.Reservation, error) {
	return m.transition(ctx, id, Command{Action: ActionApprove, ActorID: approverID})
}

// Reject moves a pending reservation to rejected.
func (m *Manager) Reject(ctx context.Context, id string, actorID int64, reason string) (*model.Reservation, error) {
	return m.transition(ctx, id, Command{Action: ActionReject, ActorID: actorID, Reason: reason})
}

// MarkReady moves an approved reservation to ready for pickup.
func (m *Manager) MarkReady(ctx context.Context, id string, actorID int64) (*model.Reservation, error) {
	return m.transition(ctx, id, Command{Action: ActionMarkReady, ActorID: actorID})
}

// Complete records the pickup of a ready reservation.
func (m *Manager) Complete(ctx context.Context, id string, actorID int64) (*model.Reservation, error) {
	return m.transition(ctx, id, Command{Action: ActionComplete, ActorID: actorID})
}

// Cancel cancels an active reservation. Only the requester or staff may
// cancel; anyone else gets ErrNotFound.
func (m *Manager) Cancel(ctx context.Context, id string, actor Actor, reason string) (*model.Reservation, error) {
	r, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.Staff && r.UserID != actor.UserID {
		return nil, fmt.Errorf("reservation %s: %w", id, ErrNotFound)
	}
	return m.apply(ctx, r, Command{Action: ActionCancel, ActorID: actor.UserID, Reason: reason})
}

// Expire moves an approved or ready reservation whose end time has passed
// to expired.
func (m *Manager) Expire(ctx context.Context, id string) (*model.Reservation, error) {
	return m.transition(ctx, id, Command{Action: ActionExpire})
}

// ConvertToLoan completes an approved or ready reservation by creating an
// auto-approved loan for it. The status change and the loan insert are one
// transaction, and a reservation converts at most once.
//
// If the status moves between approved and ready while converting, the
// conversion is retried once against the new status.
func (m *Manager) ConvertToLoan(ctx context.Context, id string, actorID int64) (*model.Reservation, *model.Loan, error) {
	for attempt := 0; ; attempt++ {
		r, err := m.Get(ctx, id)
		if err != nil {
			return nil, nil, err
		}

		now := m.clock.Now()
		next, events, err := Apply(*r, Command{Action: ActionConvert, ActorID: actorID}, now)
		if err != nil {
			return nil, nil, err
		}

		loan, err := m.store.ConvertReservation(ctx, &next, r.Status, loanFor(*r, actorID, now))
		switch {
		case errors.Is(err, model.ErrAlreadyConverted):
			return nil, nil, &StateError{Reason: ReasonAlreadyConverted}
		case errors.Is(err, model.ErrStaleStatus) && attempt == 0:
			continue
		case errors.Is(err, model.ErrStaleStatus):
			return nil, nil, &StateError{Reason: ReasonConcurrentChange}
		case err != nil:
			return nil, nil, fmt.Errorf("converting reservation: %w", err)
		}

		for i := range events {
			events[i].Reservation = next
			events[i].LoanID = loan.ID
		}
		slog.Info("reservation converted to loan", "id", next.ID, "loan_id", loan.ID,
			"return_date", loan.ExpectedReturnDate)
		m.emit(ctx, events)
		return &next, loan, nil
	}
}

func (m *Manager) transition(ctx context.Context, id string, cmd Command) (*model.Reservation, error) {
	r, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return m.apply(ctx, r, cmd)
}

// apply runs cmd against r, persists the result conditionally on r's
// status and dispatches the resulting events.
func (m *Manager) apply(ctx context.Context, r *model.Reservation, cmd Command) (*model.Reservation, error) {
	next, events, err := Apply(*r, cmd, m.clock.Now())
	if err != nil {
		return nil, err
	}

	if err := m.store.UpdateReservationStatus(ctx, &next, r.Status); err != nil {
		if errors.Is(err, model.ErrStaleStatus) {
			return nil, &StateError{Reason: ReasonConcurrentChange}
		}
		return nil, fmt.Errorf("updating reservation: %w", err)
	}

	slog.Info("reservation transition", "id", next.ID, "action", cmd.Action,
		"from", r.Status, "to", next.Status, "actor_id", cmd.ActorID)
	m.emit(ctx, events)
	return &next, nil
}

// emit dispatches events. Failures are logged and never undo the
// transition that produced them. Cancelling ctx after the write does not
// stop the dispatch.
func (m *Manager) emit(ctx context.Context, events []model.Event) {
	if m.notifier == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	for _, e := range events {
		if e.EquipmentName == "" && m.equipment != nil {
			if eq, err := m.equipment.GetEquipment(ctx, e.Reservation.EquipmentID); err != nil {
				slog.Warn("loading equipment for notification", "equipment_id", e.Reservation.EquipmentID, "error", err)
			} else if eq != nil {
				e.EquipmentName = eq.Name
			}
		}
		if err := m.notifier.Notify(ctx, e); err != nil {
			slog.Error("sending notification", "type", e.Type, "reservation_id", e.Reservation.ID, "error", err)
		}
	}
}

func (m *Manager) normalizeRequest(req Request) Request {
	req.Date = anchorDate(req.Date.In(m.loc), m.loc)
	req.StartTime = req.StartTime.In(m.loc)
	req.EndTime = req.EndTime.In(m.loc)
	if req.ExpectedReturnDate != nil {
		t := req.ExpectedReturnDate.In(m.loc)
		req.ExpectedReturnDate = &t
	}
	return req
}

// localize re-anchors stored times in the manager's location.
func (m *Manager) localize(r *model.Reservation) {
	r.ReservationDate = anchorDate(r.ReservationDate, m.loc)
	r.StartTime = r.StartTime.In(m.loc)
	r.EndTime = r.EndTime.In(m.loc)
	r.CreatedAt = r.CreatedAt.In(m.loc)
	r.UpdatedAt = r.UpdatedAt.In(m.loc)
	for _, p := range []*time.Time{r.ExpectedReturnDate, r.ApprovedAt, r.ConvertedAt} {
		if p != nil {
			*p = p.In(m.loc)
		}
	}
}
