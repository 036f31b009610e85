package reservation

import (
	"context"
	"log/slog"
	"time"

	"github.com/erazemk/izposoja/internal/model"
)

// Slot is one fixed-size slice of business hours.
type Slot struct {
	Time                     time.Time               `json:"time"`
	End                      time.Time               `json:"end"`
	Available                bool                    `json:"available"`
	ConflictingReservationID string                  `json:"conflicting_reservation_id,omitempty"`
	ConflictingStatus        model.ReservationStatus `json:"conflicting_status,omitempty"`
}

// ListTimeSlots enumerates the business-hours slots of date for one
// equipment piece in ascending order. Reservations are fetched once per
// call. A lookup failure is logged and yields an empty list.
func (m *Manager) ListTimeSlots(ctx context.Context, equipmentID int64, date time.Time) []Slot {
	day := anchorDate(date.In(m.loc), m.loc)

	active, err := m.checker.active(ctx, equipmentID, day, "")
	if err != nil {
		slog.Error("listing time slots", "equipment_id", equipmentID, "date", day.Format("2006-01-02"), "error", err)
		return []Slot{}
	}

	step := time.Duration(m.rules.SlotMinutes) * time.Minute
	if step <= 0 {
		return []Slot{}
	}
	y, mo, d := day.Date()
	open := time.Date(y, mo, d, m.rules.OpenHour, 0, 0, 0, m.loc)
	close := time.Date(y, mo, d, m.rules.CloseHour, 0, 0, 0, m.loc)

	slots := []Slot{}
	for t := open; !t.Add(step).After(close); t = t.Add(step) {
		s := Slot{Time: t, End: t.Add(step), Available: true}
		if c := firstConflict(active, Interval{Start: s.Time, End: s.End}); c != nil {
			s.Available = false
			s.ConflictingReservationID = c.ID
			s.ConflictingStatus = c.Status
		}
		slots = append(slots, s)
	}
	return slots
}
