package reservation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/erazemk/izposoja/internal/model"
)

// EquipmentGetter looks up equipment. Returns (nil, nil) if missing.
type EquipmentGetter interface {
	GetEquipment(ctx context.Context, id int64) (*model.Equipment, error)
}

// Settings supplies administrator-editable reservation settings.
type Settings interface {
	MaxAdvanceBookingDays(ctx context.Context, fallback int) (int, error)
	IsDateClosed(ctx context.Context, date time.Time) (bool, error)
}

// LoanChecker reports approved loans that keep equipment away.
type LoanChecker interface {
	EquipmentOnLoan(ctx context.Context, equipmentID int64, from, to time.Time) (bool, error)
}

// Request describes a proposed reservation. Times are in the engine's
// location; see Manager.Schedule for parsing them from text.
type Request struct {
	EquipmentID        int64
	UserID             int64
	Date               time.Time
	StartTime          time.Time
	EndTime            time.Time
	ExpectedReturnDate *time.Time
	Purpose            string
	Notes              string
}

// Validator decides whether a proposed reservation may be written.
type Validator struct {
	checker   *Checker
	rules     Rules
	clock     Clock
	equipment EquipmentGetter
	settings  Settings
	loans     LoanChecker
}

// Validate applies the date, duration and conflict rules in order and
// returns the first failure. Lookup errors are returned as-is so that an
// unknown schedule is never treated as free.
func (v *Validator) Validate(ctx context.Context, equipmentID int64, date, start, end time.Time, excludeID string) error {
	return v.validate(ctx, equipmentID, date, start, end, excludeID, v.rules.AdvanceBookingDays)
}

func (v *Validator) validate(ctx context.Context, equipmentID int64, date, start, end time.Time, excludeID string, horizon int) error {
	loc := v.rules.location()
	day := anchorDate(date.In(loc), loc)
	today := StartOfDay(v.clock.Now().In(loc))

	if day.Before(today) {
		return invalid(ReasonPastDate)
	}
	if day.After(today.AddDate(0, 0, horizon)) {
		return invalid("cannot reserve more than %d days in advance", horizon)
	}

	d := DurationMinutes(start, end)
	if d <= 0 {
		return invalid(ReasonEndBeforeStart)
	}
	if d < v.rules.MinDuration {
		return invalid("reservation must last at least %d minutes", v.rules.MinDuration)
	}
	if d > v.rules.MaxDuration {
		return invalid("reservation cannot last longer than %d minutes", v.rules.MaxDuration)
	}

	ok, err := v.checker.IsSlotAvailable(ctx, equipmentID, day, start, end, excludeID)
	if err != nil {
		return err
	}
	if !ok {
		return invalid(ReasonSlotUnavailable)
	}
	return nil
}

// ValidateExtended runs Validate with the stored booking horizon and adds
// the checks that need other collaborators: purpose, equipment state,
// closed dates and approved loans.
func (v *Validator) ValidateExtended(ctx context.Context, req Request, excludeID string) error {
	if strings.TrimSpace(req.Purpose) == "" {
		return invalid(ReasonPurposeRequired)
	}

	eq, err := v.equipment.GetEquipment(ctx, req.EquipmentID)
	if err != nil {
		return fmt.Errorf("loading equipment: %w", err)
	}
	if eq == nil || eq.DeletedAt != nil {
		return fmt.Errorf("equipment %d: %w", req.EquipmentID, ErrNotFound)
	}
	if eq.Status != model.EquipmentAvailable {
		return invalid(ReasonEquipmentUnavailable)
	}

	if req.ExpectedReturnDate != nil {
		loc := v.rules.location()
		if anchorDate(req.ExpectedReturnDate.In(loc), loc).Before(anchorDate(req.Date.In(loc), loc)) {
			return invalid(ReasonReturnBeforeStart)
		}
	}

	horizon := v.rules.AdvanceBookingDays
	if v.settings != nil {
		closed, err := v.settings.IsDateClosed(ctx, req.Date)
		if err != nil {
			return fmt.Errorf("checking closed dates: %w", err)
		}
		if closed {
			return invalid(ReasonClosedDate)
		}
		if horizon, err = v.settings.MaxAdvanceBookingDays(ctx, horizon); err != nil {
			return fmt.Errorf("loading booking horizon: %w", err)
		}
	}

	if err := v.validate(ctx, req.EquipmentID, req.Date, req.StartTime, req.EndTime, excludeID, horizon); err != nil {
		return err
	}

	if v.loans != nil {
		onLoan, err := v.loans.EquipmentOnLoan(ctx, req.EquipmentID, req.StartTime, req.EndTime)
		if err != nil {
			return fmt.Errorf("checking loans: %w", err)
		}
		if onLoan {
			return invalid(ReasonOnLoan)
		}
	}
	return nil
}
