package reservation

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/erazemk/izposoja/internal/model"
)

var errBackend = errors.New("backend unavailable")

// fakeStore is an in-memory Store, EquipmentGetter, Settings and
// LoanChecker with the same conditional-write semantics as the SQL store.
type fakeStore struct {
	mu           sync.Mutex
	reservations map[string]model.Reservation
	equipment    map[int64]model.Equipment
	closed       map[string]bool
	horizon      *int
	onLoan       bool
	loans        []model.Loan

	failDay    bool
	failList   map[model.ReservationStatus]bool
	failUpdate bool
	// beforeUpdate runs before a conditional status write, to simulate
	// a concurrent writer.
	beforeUpdate func(id string)
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		reservations: map[string]model.Reservation{},
		equipment: map[int64]model.Equipment{
			1: {ID: 1, Name: "Camera", Status: model.EquipmentAvailable},
			2: {ID: 2, Name: "Tripod", Status: model.EquipmentMaintenance},
		},
		closed:   map[string]bool{},
		failList: map[model.ReservationStatus]bool{},
	}
}

func (s *fakeStore) put(r model.Reservation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reservations[r.ID] = r
}

func (s *fakeStore) status(id string) model.ReservationStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reservations[id].Status
}

func (s *fakeStore) ListReservationsForDay(_ context.Context, equipmentID int64, date time.Time) ([]model.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failDay {
		return nil, errBackend
	}
	day := date.Format("2006-01-02")
	var list []model.Reservation
	for _, r := range s.reservations {
		if r.EquipmentID == equipmentID && r.ReservationDate.Format("2006-01-02") == day {
			list = append(list, r)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].StartTime.Before(list[j].StartTime) })
	return list, nil
}

func (s *fakeStore) InsertReservation(_ context.Context, r *model.Reservation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, other := range s.reservations {
		if other.EquipmentID == r.EquipmentID && other.Status.IsActive() &&
			Overlaps(Interval{r.StartTime, r.EndTime}, Interval{other.StartTime, other.EndTime}) {
			return model.ErrSlotTaken
		}
	}
	s.reservations[r.ID] = *r
	return nil
}

func (s *fakeStore) GetReservation(_ context.Context, id string) (*model.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reservations[id]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (s *fakeStore) ListReservations(_ context.Context, f model.ReservationFilter) ([]model.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failList[f.Status] {
		return nil, errBackend
	}
	var list []model.Reservation
	for _, r := range s.reservations {
		if f.Status != "" && r.Status != f.Status {
			continue
		}
		if f.UserID > 0 && r.UserID != f.UserID {
			continue
		}
		list = append(list, r)
	}
	sort.Slice(list, func(i, j int) bool {
		if f.OrderByEnd {
			return list[i].EndTime.Before(list[j].EndTime)
		}
		return list[i].StartTime.Before(list[j].StartTime)
	})
	return list, nil
}

func (s *fakeStore) UpdateReservationStatus(_ context.Context, r *model.Reservation, from model.ReservationStatus) error {
	if s.beforeUpdate != nil {
		s.beforeUpdate(r.ID)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failUpdate {
		return errBackend
	}
	cur, ok := s.reservations[r.ID]
	if !ok || cur.Status != from {
		return model.ErrStaleStatus
	}
	s.reservations[r.ID] = *r
	return nil
}

func (s *fakeStore) RescheduleReservation(_ context.Context, r *model.Reservation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.reservations[r.ID]
	if !ok || cur.Status != model.StatusPending {
		return model.ErrStaleStatus
	}
	for _, other := range s.reservations {
		if other.ID != r.ID && other.EquipmentID == r.EquipmentID && other.Status.IsActive() &&
			Overlaps(Interval{r.StartTime, r.EndTime}, Interval{other.StartTime, other.EndTime}) {
			return model.ErrSlotTaken
		}
	}
	s.reservations[r.ID] = *r
	return nil
}

func (s *fakeStore) ConvertReservation(_ context.Context, r *model.Reservation, from model.ReservationStatus, loan *model.Loan) (*model.Loan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.reservations[r.ID]
	if ok && cur.ConvertedToLoanID != nil {
		return nil, model.ErrAlreadyConverted
	}
	if !ok || cur.Status != from {
		return nil, model.ErrStaleStatus
	}
	loan.ID = int64(len(s.loans) + 1)
	id := r.ID
	loan.ReservationID = &id
	s.loans = append(s.loans, *loan)
	loanID := loan.ID
	r.ConvertedToLoanID = &loanID
	s.reservations[r.ID] = *r
	return loan, nil
}

func (s *fakeStore) GetEquipment(_ context.Context, id int64) (*model.Equipment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	eq, ok := s.equipment[id]
	if !ok {
		return nil, nil
	}
	return &eq, nil
}

func (s *fakeStore) MaxAdvanceBookingDays(_ context.Context, fallback int) (int, error) {
	if s.horizon != nil {
		return *s.horizon, nil
	}
	return fallback, nil
}

func (s *fakeStore) IsDateClosed(_ context.Context, date time.Time) (bool, error) {
	return s.closed[date.Format("2006-01-02")], nil
}

func (s *fakeStore) EquipmentOnLoan(context.Context, int64, time.Time, time.Time) (bool, error) {
	return s.onLoan, nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []model.Event
	err    error
}

func (n *recordingNotifier) Notify(_ context.Context, e model.Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, e)
	return n.err
}

func (n *recordingNotifier) types() []model.EventType {
	n.mu.Lock()
	defer n.mu.Unlock()
	var types []model.EventType
	for _, e := range n.events {
		types = append(types, e.Type)
	}
	return types
}

// testNow is the fixed "now" of most tests: two days before the
// reservations they create.
var testNow = time.Date(2025, 5, 30, 8, 0, 0, 0, time.UTC)

func at(day, hour, minute int) time.Time {
	return time.Date(2025, 6, day, hour, minute, 0, 0, time.UTC)
}

type harness struct {
	store    *fakeStore
	notifier *recordingNotifier
	clock    *FixedClock
	manager  *Manager
}

func newHarness() *harness {
	h := &harness{
		store:    newFakeStore(),
		notifier: &recordingNotifier{},
		clock:    NewFixedClock(testNow),
	}
	h.manager = NewManager(DefaultRules(), Deps{
		Store:     h.store,
		Equipment: h.store,
		Settings:  h.store,
		Loans:     h.store,
		Notifier:  h.notifier,
		Clock:     h.clock,
	})
	return h
}

// seed stores a reservation of equipment 1 on June day from start to end.
func (h *harness) seed(id string, status model.ReservationStatus, day, startHour, endHour int) model.Reservation {
	r := model.Reservation{
		ID:              id,
		EquipmentID:     1,
		UserID:          10,
		ReservationDate: at(day, 0, 0),
		StartTime:       at(day, startHour, 0),
		EndTime:         at(day, endHour, 0),
		Purpose:         "lab work",
		Status:          status,
		CreatedAt:       testNow,
		UpdatedAt:       testNow,
	}
	h.store.put(r)
	return r
}

func request(day, startHour, startMin, endHour, endMin int) Request {
	return Request{
		EquipmentID: 1,
		UserID:      10,
		Date:        at(day, 0, 0),
		StartTime:   at(day, startHour, startMin),
		EndTime:     at(day, endHour, endMin),
		Purpose:     "lab work",
	}
}
