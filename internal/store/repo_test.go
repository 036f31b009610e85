package store

import (
	"context"
	"testing"
	"time"

	"github.com/erazemk/izposoja/internal/db"
	"github.com/erazemk/izposoja/internal/model"
	"github.com/erazemk/izposoja/internal/reservation"
)

var (
	_ reservation.Store           = Repo{}
	_ reservation.EquipmentGetter = Repo{}
	_ reservation.Settings        = Repo{}
	_ reservation.LoanChecker     = Repo{}
)

func newManager(t *testing.T, now time.Time) (*reservation.Manager, Repo, *reservation.FixedClock) {
	t.Helper()
	database := db.NewTestDB(t)
	repo := Repo{DB: database}
	clock := reservation.NewFixedClock(now)

	rules := reservation.DefaultRules()
	rules.Location = time.FixedZone("CEST", 2*60*60)
	m := reservation.NewManager(rules, reservation.Deps{
		Store:     repo,
		Equipment: repo,
		Settings:  repo,
		Loans:     repo,
		Clock:     clock,
	})
	return m, repo, clock
}

func TestManagerOverSQLite(t *testing.T) {
	loc := time.FixedZone("CEST", 2*60*60)
	m, repo, clock := newManager(t, time.Date(2025, 5, 30, 8, 0, 0, 0, loc))
	ctx := context.Background()
	userID, equipmentID := seedBorrower(t, repo.DB)

	req := func(start, end string) reservation.Request {
		day, s, e, err := m.Schedule("2025-06-01", start, end)
		if err != nil {
			t.Fatalf("Schedule: %v", err)
		}
		return reservation.Request{EquipmentID: equipmentID, UserID: userID, Date: day, StartTime: s, EndTime: e, Purpose: "lab"}
	}

	r, err := m.Create(ctx, req("10:00", "11:00"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := m.Approve(ctx, r.ID, userID); err != nil {
		t.Fatalf("Approve: %v", err)
	}

	if _, err := m.Create(ctx, req("10:30", "11:30")); !reservation.IsValidation(err) {
		t.Errorf("overlapping create: expected validation error, got %v", err)
	}
	if _, err := m.Create(ctx, req("11:00", "12:00")); err != nil {
		t.Errorf("adjacent create: %v", err)
	}

	// Stored in UTC, read back in the business time zone.
	got, err := m.Get(ctx, r.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.StartTime.Hour() != 10 || got.StartTime.Format("-07:00") != "+02:00" {
		t.Errorf("start = %v", got.StartTime)
	}
	if got.ReservationDate.Format("2006-01-02") != "2025-06-01" {
		t.Errorf("reservation date = %v", got.ReservationDate)
	}

	slots := m.ListTimeSlots(ctx, equipmentID, got.ReservationDate)
	busy := 0
	for _, s := range slots {
		if !s.Available {
			busy++
		}
	}
	if busy != 4 {
		t.Errorf("expected 4 busy slots, got %d", busy)
	}

	// The ready reservation is swept once it ends.
	if _, err := m.MarkReady(ctx, r.ID, userID); err != nil {
		t.Fatalf("MarkReady: %v", err)
	}
	clock.Set(time.Date(2025, 6, 1, 12, 0, 0, 0, loc))
	if n := m.SweepExpired(ctx); n != 1 {
		t.Errorf("expected 1 expired, got %d", n)
	}
	if n := m.SweepExpired(ctx); n != 0 {
		t.Errorf("expected idempotent sweep, got %d", n)
	}
}

func TestManagerConvertOverSQLite(t *testing.T) {
	loc := time.FixedZone("CEST", 2*60*60)
	m, repo, _ := newManager(t, time.Date(2025, 5, 30, 8, 0, 0, 0, loc))
	ctx := context.Background()
	userID, equipmentID := seedBorrower(t, repo.DB)

	day, s, e, _ := m.Schedule("2025-06-01", "09:00", "10:00")
	r, err := m.Create(ctx, reservation.Request{EquipmentID: equipmentID, UserID: userID, Date: day, StartTime: s, EndTime: e, Purpose: "lab"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	m.Approve(ctx, r.ID, userID)

	converted, loan, err := m.ConvertToLoan(ctx, r.ID, userID)
	if err != nil {
		t.Fatalf("ConvertToLoan: %v", err)
	}
	if converted.Status != model.StatusCompleted {
		t.Errorf("status = %q", converted.Status)
	}
	want := time.Date(2025, 6, 8, 9, 0, 0, 0, loc)
	if !loan.ExpectedReturnDate.Equal(want) {
		t.Errorf("loan return = %v, want %v", loan.ExpectedReturnDate, want)
	}

	if _, _, err := m.ConvertToLoan(ctx, r.ID, userID); !reservation.IsState(err) {
		t.Errorf("second conversion: expected state error, got %v", err)
	}

	// The loan now blocks new reservations of the same equipment.
	day, s, e, _ = m.Schedule("2025-06-03", "09:00", "10:00")
	_, err = m.Create(ctx, reservation.Request{EquipmentID: equipmentID, UserID: userID, Date: day, StartTime: s, EndTime: e, Purpose: "lab"})
	if !reservation.IsValidation(err) {
		t.Errorf("expected on-loan validation error, got %v", err)
	}
}
