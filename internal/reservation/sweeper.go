package reservation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/erazemk/izposoja/internal/model"
)

// deadlineStatuses are swept independently of each other.
var deadlineStatuses = []model.ReservationStatus{model.StatusApproved, model.StatusReady}

// SweepExpired expires every approved or ready reservation whose end time
// has passed and returns how many were expired. A failing status bucket is
// logged and does not stop the other one. Each write is conditional on the
// status that was read, so a reservation changed concurrently by staff is
// left alone.
func (m *Manager) SweepExpired(ctx context.Context) int {
	now := m.clock.Now()
	total := 0
	for _, status := range deadlineStatuses {
		n, err := m.sweepBucket(ctx, status, now)
		if err != nil {
			slog.Error("sweeping expired reservations", "status", status, "error", err)
		}
		total += n
	}
	if total > 0 {
		slog.Info("expired reservations", "count", total)
	}
	return total
}

func (m *Manager) sweepBucket(ctx context.Context, status model.ReservationStatus, now time.Time) (int, error) {
	list, err := m.store.ListReservations(ctx, model.ReservationFilter{Status: status, OrderByEnd: true})
	if err != nil {
		return 0, fmt.Errorf("listing %s reservations: %w", status, err)
	}

	count := 0
	for i := range list {
		r := &list[i]
		if !r.EndTime.Before(now) {
			break
		}
		m.localize(r)

		next, events, err := Apply(*r, Command{Action: ActionExpire}, now)
		if err != nil {
			slog.Warn("expiring reservation", "id", r.ID, "error", err)
			continue
		}
		if err := m.store.UpdateReservationStatus(ctx, &next, r.Status); err != nil {
			if !errors.Is(err, model.ErrStaleStatus) {
				slog.Error("expiring reservation", "id", r.ID, "error", err)
			}
			continue
		}
		count++
		m.emit(ctx, events)
	}
	return count, nil
}

// Run sweeps every interval until ctx is cancelled.
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.SweepExpired(ctx)
		}
	}
}
