package notify

import (
	"context"
	"fmt"

	"github.com/erazemk/izposoja/internal/model"
)

// NotificationStore persists in-app notifications.
type NotificationStore interface {
	CreateNotification(ctx context.Context, n *model.Notification) error
}

// InApp writes events to the reservation owner's inbox.
type InApp struct {
	Store NotificationStore
}

func (a InApp) Notify(ctx context.Context, e model.Event) error {
	n := &model.Notification{
		UserID:        e.Reservation.UserID,
		Type:          e.Type,
		ReservationID: e.Reservation.ID,
		Message:       Message(e),
		CreatedAt:     e.At,
	}
	if err := a.Store.CreateNotification(ctx, n); err != nil {
		return fmt.Errorf("in-app notification: %w", err)
	}
	return nil
}
