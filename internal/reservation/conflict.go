package reservation

import (
	"context"
	"fmt"
	"time"

	"github.com/erazemk/izposoja/internal/model"
)

// Interval is a half-open time range [Start, End).
type Interval struct {
	Start time.Time
	End   time.Time
}

// Overlaps reports whether two half-open intervals share any instant.
// Touching intervals (one ends when the other starts) do not overlap.
func Overlaps(a, b Interval) bool {
	return a.Start.Before(b.End) && b.Start.Before(a.End)
}

// DayLister reads the reservations of one equipment piece on one day.
type DayLister interface {
	ListReservationsForDay(ctx context.Context, equipmentID int64, date time.Time) ([]model.Reservation, error)
}

// Checker detects overlaps between a proposed interval and the active
// reservations of an equipment piece.
type Checker struct {
	store DayLister
}

// NewChecker returns a Checker reading from store.
func NewChecker(store DayLister) *Checker {
	return &Checker{store: store}
}

// active returns the active reservations for the equipment on date's
// calendar day, skipping excludeID.
func (c *Checker) active(ctx context.Context, equipmentID int64, date time.Time, excludeID string) ([]model.Reservation, error) {
	list, err := c.store.ListReservationsForDay(ctx, equipmentID, date)
	if err != nil {
		return nil, fmt.Errorf("loading reservations for equipment %d: %w", equipmentID, err)
	}

	active := list[:0:0]
	for _, r := range list {
		if r.Status.IsActive() && (excludeID == "" || r.ID != excludeID) {
			active = append(active, r)
		}
	}
	return active, nil
}

// Conflicts returns the first active reservation overlapping [start, end),
// or nil if the interval is free. Lookup errors are returned to the caller.
func (c *Checker) Conflicts(ctx context.Context, equipmentID int64, date, start, end time.Time, excludeID string) (*model.Reservation, error) {
	active, err := c.active(ctx, equipmentID, date, excludeID)
	if err != nil {
		return nil, err
	}
	return firstConflict(active, Interval{Start: start, End: end}), nil
}

// IsSlotAvailable reports whether no active reservation overlaps
// [start, end). excludeID names a reservation to ignore when re-validating
// that reservation's own update.
func (c *Checker) IsSlotAvailable(ctx context.Context, equipmentID int64, date, start, end time.Time, excludeID string) (bool, error) {
	conflict, err := c.Conflicts(ctx, equipmentID, date, start, end, excludeID)
	if err != nil {
		return false, err
	}
	return conflict == nil, nil
}

func firstConflict(active []model.Reservation, iv Interval) *model.Reservation {
	for i := range active {
		if Overlaps(iv, Interval{Start: active[i].StartTime, End: active[i].EndTime}) {
			return &active[i]
		}
	}
	return nil
}
