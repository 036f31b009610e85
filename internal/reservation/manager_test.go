package reservation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erazemk/izposoja/internal/model"
	"github.com/erazemk/izposoja/internal/notify"
)

func TestCreate(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	r, err := h.manager.Create(ctx, request(1, 10, 0, 11, 0))
	require.NoError(t, err)
	assert.NotEmpty(t, r.ID)
	assert.Equal(t, model.StatusPending, r.Status)
	assert.Equal(t, testNow, r.CreatedAt)
	assert.Equal(t, model.StatusPending, h.store.status(r.ID))
	assert.Equal(t, []model.EventType{model.EventRequested}, h.notifier.types())
	assert.Equal(t, "Camera", h.notifier.events[0].EquipmentName)

	// Overlapping requests are rejected, adjacent ones accepted.
	_, err = h.manager.Create(ctx, request(1, 10, 30, 11, 30))
	assert.Equal(t, ReasonSlotUnavailable, reasonOf(t, err))

	_, err = h.manager.Create(ctx, request(1, 11, 0, 12, 0))
	assert.NoError(t, err)
}

// A writer that wins the slot between validation and insert must not
// produce a double booking.
func TestCreateLosesRaceToConcurrentWriter(t *testing.T) {
	h := newHarness()
	racer := &racingStore{fakeStore: h.store}
	h.manager = NewManager(DefaultRules(), Deps{Store: racer, Equipment: h.store, Clock: h.clock})

	_, err := h.manager.Create(context.Background(), request(1, 10, 0, 11, 0))
	assert.Equal(t, ReasonSlotUnavailable, reasonOf(t, err))

	list, err := h.store.ListReservations(context.Background(), model.ReservationFilter{})
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

type racingStore struct {
	*fakeStore
}

func (s *racingStore) InsertReservation(ctx context.Context, r *model.Reservation) error {
	competitor := *r
	competitor.ID = "competitor"
	if err := s.fakeStore.InsertReservation(ctx, &competitor); err != nil {
		return err
	}
	return s.fakeStore.InsertReservation(ctx, r)
}

func TestCreateLookupFailureIsNotValidation(t *testing.T) {
	h := newHarness()
	h.store.failDay = true

	_, err := h.manager.Create(context.Background(), request(1, 10, 0, 11, 0))
	require.Error(t, err)
	assert.False(t, IsValidation(err))
	assert.ErrorIs(t, err, errBackend)
}

func TestLifecycleHappyPath(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	r, err := h.manager.Create(ctx, request(1, 10, 0, 11, 0))
	require.NoError(t, err)

	r, err = h.manager.Approve(ctx, r.ID, 3)
	require.NoError(t, err)
	assert.Equal(t, model.StatusApproved, r.Status)
	assert.Equal(t, int64(3), *r.ApprovedBy)

	r, err = h.manager.MarkReady(ctx, r.ID, 3)
	require.NoError(t, err)
	assert.Equal(t, model.StatusReady, r.Status)

	r, err = h.manager.Complete(ctx, r.ID, 3)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, r.Status)

	// Terminal: nothing else applies.
	_, err = h.manager.Approve(ctx, r.ID, 3)
	assert.True(t, IsState(err))

	assert.Equal(t, []model.EventType{
		model.EventRequested, model.EventApproved, model.EventReady, model.EventCompleted,
	}, h.notifier.types())
}

func TestRejectPending(t *testing.T) {
	h := newHarness()
	h.seed("r1", model.StatusPending, 1, 10, 11)

	r, err := h.manager.Reject(context.Background(), "r1", 3, "equipment reserved for exams")
	require.NoError(t, err)
	assert.Equal(t, model.StatusRejected, r.Status)
	assert.Equal(t, "equipment reserved for exams", r.StatusReason)
	assert.Equal(t, "equipment reserved for exams", h.notifier.events[0].Reason)
}

func TestGetMissing(t *testing.T) {
	h := newHarness()
	_, err := h.manager.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = h.manager.Approve(context.Background(), "nope", 1)
	assert.ErrorIs(t, err, ErrNotFound)
}

// A second cancel fails and leaves the reservation cancelled.
func TestCancelByOwnerTwice(t *testing.T) {
	h := newHarness()
	h.seed("r1", model.StatusPending, 1, 10, 11)
	owner := Actor{UserID: 10}

	r, err := h.manager.Cancel(context.Background(), "r1", owner, "plans changed")
	require.NoError(t, err)
	assert.Equal(t, model.StatusCancelled, r.Status)

	_, err = h.manager.Cancel(context.Background(), "r1", owner, "")
	var se *StateError
	require.ErrorAs(t, err, &se)
	assert.Contains(t, se.Reason, "cannot cancel")
	assert.Equal(t, model.StatusCancelled, h.store.status("r1"))
}

func TestCancelRequiresOwnerOrStaff(t *testing.T) {
	h := newHarness()
	h.seed("r1", model.StatusApproved, 1, 10, 11)

	_, err := h.manager.Cancel(context.Background(), "r1", Actor{UserID: 11}, "")
	assert.ErrorIs(t, err, ErrNotFound)

	r, err := h.manager.Cancel(context.Background(), "r1", Actor{UserID: 1, Staff: true}, "maintenance")
	require.NoError(t, err)
	assert.Equal(t, model.StatusCancelled, r.Status)
}

func TestCancelTerminalStatuses(t *testing.T) {
	for _, status := range []model.ReservationStatus{model.StatusCompleted, model.StatusCancelled, model.StatusExpired} {
		h := newHarness()
		h.seed("r1", status, 1, 10, 11)

		_, err := h.manager.Cancel(context.Background(), "r1", Actor{UserID: 10}, "")
		assert.True(t, IsState(err), "cancel from %s", status)
	}
}

func TestNotificationFailureKeepsTransition(t *testing.T) {
	h := newHarness()
	h.notifier.err = errors.New("webhook down")
	h.seed("r1", model.StatusPending, 1, 10, 11)

	r, err := h.manager.Approve(context.Background(), "r1", 3)
	require.NoError(t, err)
	assert.Equal(t, model.StatusApproved, r.Status)
	assert.Equal(t, model.StatusApproved, h.store.status("r1"))
}

type stalledNotifier struct {
	release chan struct{}
}

func (n stalledNotifier) Notify(ctx context.Context, _ model.Event) error {
	select {
	case <-n.release:
	case <-ctx.Done():
	}
	return nil
}

func TestApproveDoesNotWaitForDelivery(t *testing.T) {
	h := newHarness()
	h.seed("r1", model.StatusPending, 1, 10, 11)

	release := make(chan struct{})
	queue := notify.NewQueue(stalledNotifier{release: release}, 8, time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		queue.Run(ctx)
		close(done)
	}()

	m := NewManager(DefaultRules(), Deps{Store: h.store, Equipment: h.store, Notifier: queue, Clock: h.clock})

	start := time.Now()
	r, err := m.Approve(context.Background(), "r1", 3)
	require.NoError(t, err)
	assert.Equal(t, model.StatusApproved, r.Status)
	assert.Less(t, time.Since(start), time.Second)

	close(release)
	cancel()
	<-done
}

func TestTransitionLosesToConcurrentChange(t *testing.T) {
	h := newHarness()
	h.seed("r1", model.StatusPending, 1, 10, 11)
	h.store.beforeUpdate = func(id string) {
		h.store.mu.Lock()
		r := h.store.reservations[id]
		r.Status = model.StatusCancelled
		h.store.reservations[id] = r
		h.store.mu.Unlock()
	}

	_, err := h.manager.Approve(context.Background(), "r1", 3)
	var se *StateError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, ReasonConcurrentChange, se.Reason)
	assert.Equal(t, model.StatusCancelled, h.store.status("r1"))
	assert.Empty(t, h.notifier.events)
}

func TestReschedule(t *testing.T) {
	h := newHarness()
	h.seed("mine", model.StatusPending, 1, 10, 11)
	h.seed("other", model.StatusApproved, 1, 13, 14)
	ctx := context.Background()
	owner := Actor{UserID: 10}

	// Moving within its own slot does not conflict with itself.
	r, err := h.manager.Reschedule(ctx, "mine", owner, request(1, 10, 0, 12, 0))
	require.NoError(t, err)
	assert.Equal(t, at(1, 12, 0), r.EndTime)

	_, err = h.manager.Reschedule(ctx, "mine", owner, request(1, 12, 30, 13, 30))
	assert.Equal(t, ReasonSlotUnavailable, reasonOf(t, err))

	_, err = h.manager.Reschedule(ctx, "mine", Actor{UserID: 99}, request(1, 9, 0, 10, 0))
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = h.manager.Reschedule(ctx, "other", Actor{UserID: 10}, request(1, 15, 0, 16, 0))
	var se *StateError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, ReasonOnlyPendingChange, se.Reason)
}

// Conversion completes the reservation and happens at most once.
func TestConvertToLoan(t *testing.T) {
	h := newHarness()
	h.seed("r1", model.StatusApproved, 1, 9, 10)
	ctx := context.Background()

	r, loan, err := h.manager.ConvertToLoan(ctx, "r1", 3)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, r.Status)
	require.NotNil(t, r.ConvertedToLoanID)
	assert.Equal(t, loan.ID, *r.ConvertedToLoanID)
	assert.Equal(t, testNow, *r.ConvertedAt)
	assert.Equal(t, at(1, 9, 0), loan.BorrowDate)
	assert.Equal(t, at(8, 9, 0), loan.ExpectedReturnDate)
	assert.Equal(t, model.LoanApproved, loan.Status)
	assert.Equal(t, "r1", *loan.ReservationID)

	_, _, err = h.manager.ConvertToLoan(ctx, "r1", 3)
	var se *StateError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, ReasonAlreadyConverted, se.Reason)

	stored, err := h.manager.Get(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, loan.ID, *stored.ConvertedToLoanID)
	assert.Len(t, h.store.loans, 1)

	require.Len(t, h.notifier.events, 1)
	assert.Equal(t, model.EventConverted, h.notifier.events[0].Type)
	assert.Equal(t, loan.ID, h.notifier.events[0].LoanID)
}

func TestConvertFromInvalidStatus(t *testing.T) {
	h := newHarness()
	h.seed("r1", model.StatusPending, 1, 9, 10)

	_, _, err := h.manager.ConvertToLoan(context.Background(), "r1", 3)
	assert.True(t, IsState(err))
	assert.Empty(t, h.store.loans)
}

// Mark-ready landing during a conversion does not block it.
func TestConvertRetriesAfterMarkReady(t *testing.T) {
	h := newHarness()
	h.seed("r1", model.StatusApproved, 1, 9, 10)
	racer := &readyRacingStore{fakeStore: h.store}
	h.manager = NewManager(DefaultRules(), Deps{Store: racer, Equipment: h.store, Clock: h.clock})

	r, loan, err := h.manager.ConvertToLoan(context.Background(), "r1", 3)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, r.Status)
	assert.NotZero(t, loan.ID)
	assert.Equal(t, 2, racer.calls)
}

type readyRacingStore struct {
	*fakeStore
	calls int
}

func (s *readyRacingStore) ConvertReservation(ctx context.Context, r *model.Reservation, from model.ReservationStatus, loan *model.Loan) (*model.Loan, error) {
	s.calls++
	if s.calls == 1 {
		s.mu.Lock()
		cur := s.reservations[r.ID]
		cur.Status = model.StatusReady
		s.reservations[r.ID] = cur
		s.mu.Unlock()
	}
	return s.fakeStore.ConvertReservation(ctx, r, from, loan)
}
