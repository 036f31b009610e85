// Package notify delivers reservation lifecycle events to users and
// external systems.
package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/erazemk/izposoja/internal/model"
)

// Notifier delivers one event.
type Notifier interface {
	Notify(ctx context.Context, e model.Event) error
}

// Multi sends every event to all notifiers and joins their errors.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, e model.Event) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Message renders a one-line description of an event for its recipient.
func Message(e model.Event) string {
	what := e.EquipmentName
	if what == "" {
		what = fmt.Sprintf("equipment #%d", e.Reservation.EquipmentID)
	}
	when := e.Reservation.StartTime.Format("2006-01-02 15:04")

	var msg string
	switch e.Type {
	case model.EventRequested:
		msg = fmt.Sprintf("Your reservation of %s on %s was received and awaits approval.", what, when)
	case model.EventApproved:
		msg = fmt.Sprintf("Your reservation of %s on %s was approved.", what, when)
	case model.EventRejected:
		msg = fmt.Sprintf("Your reservation of %s on %s was rejected.", what, when)
	case model.EventReady:
		msg = fmt.Sprintf("%s is ready for pickup (reserved for %s).", what, when)
	case model.EventCompleted:
		msg = fmt.Sprintf("You picked up %s.", what)
	case model.EventCancelled:
		msg = fmt.Sprintf("Your reservation of %s on %s was cancelled.", what, when)
	case model.EventExpired:
		msg = fmt.Sprintf("Your reservation of %s on %s expired without pickup.", what, when)
	case model.EventConverted:
		msg = fmt.Sprintf("Your reservation of %s was converted into loan #%d.", what, e.LoanID)
	default:
		msg = fmt.Sprintf("Reservation of %s: %s.", what, e.Type)
	}

	if e.Reason != "" {
		msg += " Reason: " + e.Reason
	}
	return msg
}
