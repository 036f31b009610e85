package notify

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/erazemk/izposoja/internal/model"
)

// ErrQueueFull is returned by Queue.Notify when the buffer has no room.
var ErrQueueFull = errors.New("notification queue full")

type queued struct {
	ctx   context.Context
	event model.Event
}

// Queue decouples delivery from the caller: Notify only buffers the event,
// and Run hands it to the wrapped notifier in the background.
type Queue struct {
	next    Notifier
	events  chan queued
	timeout time.Duration
}

// NewQueue wraps next with a buffer of size events. Each delivery gets at
// most timeout.
func NewQueue(next Notifier, size int, timeout time.Duration) *Queue {
	return &Queue{
		next:    next,
		events:  make(chan queued, size),
		timeout: timeout,
	}
}

// Notify buffers e without blocking. The caller's context values are kept,
// its cancellation is not.
func (q *Queue) Notify(ctx context.Context, e model.Event) error {
	select {
	case q.events <- queued{ctx: context.WithoutCancel(ctx), event: e}:
		return nil
	default:
		return ErrQueueFull
	}
}

// Run delivers buffered events until ctx is done, then flushes what is
// still buffered and returns.
func (q *Queue) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			q.flush()
			return
		case item := <-q.events:
			q.deliver(item)
		}
	}
}

func (q *Queue) flush() {
	for {
		select {
		case item := <-q.events:
			q.deliver(item)
		default:
			return
		}
	}
}

func (q *Queue) deliver(item queued) {
	ctx, cancel := context.WithTimeout(item.ctx, q.timeout)
	defer cancel()

	if err := q.next.Notify(ctx, item.event); err != nil {
		slog.Error("delivering notification", "type", item.event.Type,
			"reservation_id", item.event.Reservation.ID, "error", err)
	}
}
