package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/erazemk/izposoja/internal/auth"
	"github.com/erazemk/izposoja/internal/db"
	"github.com/erazemk/izposoja/internal/model"
	"github.com/erazemk/izposoja/internal/notify"
	"github.com/erazemk/izposoja/internal/reservation"
	"github.com/erazemk/izposoja/internal/store"
)

const testJWTSecret = "test-secret"

// testEnv is a running API over an in-memory database. The reservation
// clock is fixed at Monday 2025-06-02 06:00 UTC.
type testEnv struct {
	server *httptest.Server
	repo   store.Repo
	clock  *reservation.FixedClock
	admin  string
}

func setupTestServer(t *testing.T) *testEnv {
	t.Helper()
	database := db.NewTestDB(t)
	repo := store.Repo{DB: database}
	clock := reservation.NewFixedClock(time.Date(2025, 6, 2, 6, 0, 0, 0, time.UTC))

	manager := reservation.NewManager(reservation.DefaultRules(), reservation.Deps{
		Store:     repo,
		Equipment: repo,
		Settings:  repo,
		Loans:     repo,
		Notifier:  notify.InApp{Store: repo},
		Clock:     clock,
	})

	server := httptest.NewServer(NewRouter(database, testJWTSecret, manager))
	t.Cleanup(server.Close)

	// Create admin user.
	ctx := context.Background()
	hash, _ := bcrypt.GenerateFromPassword([]byte("password"), bcrypt.MinCost)
	store.CreateUser(ctx, database, "admin", string(hash), model.RoleAdmin)

	// Get token.
	body, _ := json.Marshal(map[string]string{"username": "admin", "password": "password"})
	resp, err := http.Post(server.URL+"/api/auth/login", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("login request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login failed: %d", resp.StatusCode)
	}

	var loginResp map[string]any
	json.NewDecoder(resp.Body).Decode(&loginResp)
	token, _ := loginResp["token"].(string)
	if token == "" {
		t.Fatal("empty token from login")
	}

	return &testEnv{server: server, repo: repo, clock: clock, admin: token}
}

// user creates an account with the given role and returns a token for it.
func (e *testEnv) user(t *testing.T, name, role string, approved bool) (int64, string) {
	t.Helper()
	ctx := context.Background()
	u, err := store.CreateUser(ctx, e.repo.DB, name, "x", role)
	if err != nil {
		t.Fatalf("CreateUser %s: %v", name, err)
	}
	if approved {
		if err := store.SetProfileApproved(ctx, e.repo.DB, u.ID, true); err != nil {
			t.Fatalf("SetProfileApproved: %v", err)
		}
	}
	token, _, err := auth.GenerateToken(testJWTSecret, u, time.Now())
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	return u.ID, token
}

// do sends an authenticated JSON request and decodes the response into out
// when out is non-nil.
func (e *testEnv) do(t *testing.T, method, path, token string, body, out any) int {
	t.Helper()
	req, err := authRequest(method, e.server.URL+path, token, body)
	if err != nil {
		t.Fatalf("building request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decoding %s %s: %v", method, path, err)
		}
	}
	return resp.StatusCode
}

func (e *testEnv) equipment(t *testing.T, name string) int64 {
	t.Helper()
	var eq model.Equipment
	if status := e.do(t, "POST", "/api/equipment", e.admin, map[string]string{"name": name, "category": "camera"}, &eq); status != http.StatusCreated {
		t.Fatalf("create equipment: %d", status)
	}
	return eq.ID
}

func authRequest(method, url, token string, body any) (*http.Request, error) {
	var bodyReader *bytes.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		bodyReader = bytes.NewReader(data)
	} else {
		bodyReader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, url, bodyReader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

func reservationBody(equipmentID int64, date, start, end string) map[string]any {
	return map[string]any{
		"equipment_id":     equipmentID,
		"reservation_date": date,
		"start_time":       start,
		"end_time":         end,
		"purpose":          "thesis filming",
	}
}

func TestLoginEndpoint(t *testing.T) {
	env := setupTestServer(t)

	// Test invalid credentials.
	body, _ := json.Marshal(map[string]string{"username": "admin", "password": "wrong"})
	resp, _ := http.Post(env.server.URL+"/api/auth/login", "application/json", bytes.NewReader(body))
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401 for bad password, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	// Missing fields fail request validation.
	body, _ = json.Marshal(map[string]string{"username": "admin"})
	resp, _ = http.Post(env.server.URL+"/api/auth/login", "application/json", bytes.NewReader(body))
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 for missing password, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestLogoutRevokesToken(t *testing.T) {
	env := setupTestServer(t)

	if status := env.do(t, "GET", "/api/equipment", env.admin, nil, nil); status != http.StatusOK {
		t.Fatalf("expected 200 before logout, got %d", status)
	}
	if status := env.do(t, "POST", "/api/auth/logout", env.admin, nil, nil); status != http.StatusOK {
		t.Fatalf("logout: %d", status)
	}
	if status := env.do(t, "GET", "/api/equipment", env.admin, nil, nil); status != http.StatusUnauthorized {
		t.Errorf("expected 401 after logout, got %d", status)
	}
}

func TestUnauthenticatedAccess(t *testing.T) {
	env := setupTestServer(t)

	resp, _ := http.Get(env.server.URL + "/api/equipment")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401 for unauthenticated request, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestRoleBasedAccess(t *testing.T) {
	env := setupTestServer(t)
	_, userToken := env.user(t, "user1", model.RoleUser, true)

	// Regular user should not be able to create equipment (manager+ required).
	if status := env.do(t, "POST", "/api/equipment", userToken, map[string]string{"name": "Test"}, nil); status != http.StatusForbidden {
		t.Errorf("expected 403 for user creating equipment, got %d", status)
	}

	// Regular user should not access /api/users.
	if status := env.do(t, "GET", "/api/users", userToken, nil, nil); status != http.StatusForbidden {
		t.Errorf("expected 403 for user accessing users, got %d", status)
	}

	// Nor approve reservations or run the sweeper.
	if status := env.do(t, "POST", "/api/reservations/x/approve", userToken, nil, nil); status != http.StatusForbidden {
		t.Errorf("expected 403 for user approving, got %d", status)
	}
	if status := env.do(t, "POST", "/api/reservations/sweep", userToken, nil, nil); status != http.StatusForbidden {
		t.Errorf("expected 403 for user sweeping, got %d", status)
	}
}

func TestProfileApprovalGatesRequests(t *testing.T) {
	env := setupTestServer(t)
	eqID := env.equipment(t, "Camera")
	userID, token := env.user(t, "student", model.RoleUser, false)

	body := reservationBody(eqID, "2025-06-03", "10:00", "11:00")
	if status := env.do(t, "POST", "/api/reservations", token, body, nil); status != http.StatusForbidden {
		t.Fatalf("expected 403 before approval, got %d", status)
	}

	var pending []model.User
	env.do(t, "GET", "/api/users?pending=1", env.admin, nil, &pending)
	if len(pending) != 1 || pending[0].ID != userID {
		t.Fatalf("expected the student to await approval, got %+v", pending)
	}

	path := "/api/users/" + itoa(userID) + "/approve"
	if status := env.do(t, "PUT", path, env.admin, map[string]bool{"approved": true}, nil); status != http.StatusOK {
		t.Fatalf("approve profile: %d", status)
	}

	if status := env.do(t, "POST", "/api/reservations", token, body, nil); status != http.StatusCreated {
		t.Errorf("expected 201 after approval, got %d", status)
	}
}

func TestReservationAPIFlow(t *testing.T) {
	env := setupTestServer(t)
	eqID := env.equipment(t, "Camera")
	userID, token := env.user(t, "student", model.RoleUser, true)
	_, otherToken := env.user(t, "other", model.RoleUser, true)
	_, managerToken := env.user(t, "lender", model.RoleManager, true)

	var res model.Reservation
	if status := env.do(t, "POST", "/api/reservations", token, reservationBody(eqID, "2025-06-03", "10:00", "11:00"), &res); status != http.StatusCreated {
		t.Fatalf("create reservation: %d", status)
	}
	if res.Status != model.StatusPending || res.UserID != userID {
		t.Fatalf("unexpected reservation: %+v", res)
	}

	// Overlap is a validation failure.
	var errBody map[string]string
	status := env.do(t, "POST", "/api/reservations", otherToken, reservationBody(eqID, "2025-06-03", "10:30", "11:30"), &errBody)
	if status != http.StatusUnprocessableEntity || errBody["error"] != reservation.ReasonSlotUnavailable {
		t.Errorf("expected 422 slot unavailable, got %d %v", status, errBody)
	}

	// The slot listing shows the taken half hours.
	var slots struct {
		Slots []reservation.Slot `json:"slots"`
	}
	env.do(t, "GET", "/api/equipment/"+itoa(eqID)+"/slots?date=2025-06-03", token, nil, &slots)
	if len(slots.Slots) != 18 {
		t.Fatalf("expected 18 slots, got %d", len(slots.Slots))
	}
	for _, s := range slots.Slots {
		taken := s.Time.Hour() == 10
		if s.Available == taken {
			t.Errorf("slot %s: available=%v", s.Time.Format("15:04"), s.Available)
		}
	}

	// Other users cannot see the reservation.
	if status := env.do(t, "GET", "/api/reservations/"+res.ID, otherToken, nil, nil); status != http.StatusNotFound {
		t.Errorf("expected 404 for foreign reservation, got %d", status)
	}
	var mine []model.Reservation
	env.do(t, "GET", "/api/reservations", otherToken, nil, &mine)
	if len(mine) != 0 {
		t.Errorf("expected other user to see no reservations, got %d", len(mine))
	}

	base := "/api/reservations/" + res.ID
	if status := env.do(t, "POST", base+"/ready", managerToken, nil, &errBody); status != http.StatusConflict {
		t.Errorf("expected 409 marking a pending reservation ready, got %d", status)
	}
	for _, step := range []string{"/approve", "/ready"} {
		if status := env.do(t, "POST", base+step, managerToken, nil, &res); status != http.StatusOK {
			t.Fatalf("%s: %d", step, status)
		}
	}
	if res.Status != model.StatusReady {
		t.Fatalf("expected ready, got %s", res.Status)
	}

	var converted convertResponse
	if status := env.do(t, "POST", base+"/convert", managerToken, nil, &converted); status != http.StatusOK {
		t.Fatalf("convert: %d", status)
	}
	if converted.Loan == nil || converted.Loan.Status != model.LoanApproved {
		t.Fatalf("expected an approved loan, got %+v", converted.Loan)
	}
	if converted.Reservation.Status != model.StatusCompleted {
		t.Errorf("expected completed reservation, got %s", converted.Reservation.Status)
	}
	if status := env.do(t, "POST", base+"/convert", managerToken, nil, nil); status != http.StatusConflict {
		t.Errorf("expected 409 converting twice, got %d", status)
	}

	var inbox []model.Notification
	env.do(t, "GET", "/api/notifications", token, nil, &inbox)
	if len(inbox) != 4 {
		t.Fatalf("expected 4 notifications (requested, approved, ready, converted), got %d", len(inbox))
	}
	if status := env.do(t, "POST", "/api/notifications/"+itoa(inbox[0].ID)+"/read", token, nil, nil); status != http.StatusOK {
		t.Errorf("mark read: %d", status)
	}
	if status := env.do(t, "POST", "/api/notifications/"+itoa(inbox[0].ID)+"/read", otherToken, nil, nil); status != http.StatusNotFound {
		t.Errorf("expected 404 marking someone else's notification, got %d", status)
	}
	env.do(t, "GET", "/api/notifications?unread=1", token, nil, &inbox)
	if len(inbox) != 3 {
		t.Errorf("expected 3 unread, got %d", len(inbox))
	}
}

func TestReservationValidation(t *testing.T) {
	env := setupTestServer(t)
	eqID := env.equipment(t, "Camera")
	_, token := env.user(t, "student", model.RoleUser, true)

	if status := env.do(t, "POST", "/api/settings/closed-dates", env.admin, map[string]string{"date": "2025-06-04", "reason": "holiday"}, nil); status != http.StatusCreated {
		t.Fatalf("add closed date: %d", status)
	}

	tests := []struct {
		name   string
		body   map[string]any
		status int
		reason string
	}{
		{"past date", reservationBody(eqID, "2025-06-01", "10:00", "11:00"), http.StatusUnprocessableEntity, reservation.ReasonPastDate},
		{"end before start", reservationBody(eqID, "2025-06-03", "11:00", "10:00"), http.StatusUnprocessableEntity, reservation.ReasonEndBeforeStart},
		{"closed date", reservationBody(eqID, "2025-06-04", "10:00", "11:00"), http.StatusUnprocessableEntity, reservation.ReasonClosedDate},
		{"malformed date", reservationBody(eqID, "03.06.2025", "10:00", "11:00"), http.StatusUnprocessableEntity, ""},
		{"unknown equipment", reservationBody(999, "2025-06-03", "10:00", "11:00"), http.StatusNotFound, ""},
		{"missing equipment", reservationBody(0, "2025-06-03", "10:00", "11:00"), http.StatusBadRequest, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body map[string]string
			status := env.do(t, "POST", "/api/reservations", token, tt.body, &body)
			if status != tt.status {
				t.Fatalf("expected %d, got %d (%v)", tt.status, status, body)
			}
			if tt.reason != "" && body["error"] != tt.reason {
				t.Errorf("expected reason %q, got %q", tt.reason, body["error"])
			}
		})
	}
}

func TestCancelPermissions(t *testing.T) {
	env := setupTestServer(t)
	eqID := env.equipment(t, "Camera")
	_, owner := env.user(t, "owner", model.RoleUser, true)
	_, stranger := env.user(t, "stranger", model.RoleUser, true)

	var res model.Reservation
	env.do(t, "POST", "/api/reservations", owner, reservationBody(eqID, "2025-06-03", "09:00", "10:00"), &res)

	path := "/api/reservations/" + res.ID + "/cancel"
	if status := env.do(t, "POST", path, stranger, map[string]string{"reason": "mine now"}, nil); status != http.StatusNotFound {
		t.Errorf("expected 404 for stranger, got %d", status)
	}
	schedule := map[string]string{"reservation_date": "2025-06-03", "start_time": "11:00", "end_time": "12:00", "purpose": "lab work"}
	if status := env.do(t, "PUT", "/api/reservations/"+res.ID+"/schedule", stranger, schedule, nil); status != http.StatusNotFound {
		t.Errorf("expected 404 for stranger rescheduling, got %d", status)
	}
	if status := env.do(t, "POST", path, owner, map[string]string{"reason": "plans changed"}, &res); status != http.StatusOK {
		t.Fatalf("owner cancel: %d", status)
	}
	if res.Status != model.StatusCancelled || res.StatusReason != "plans changed" {
		t.Errorf("unexpected cancelled reservation: %+v", res)
	}

	// The freed slot can be booked again.
	if status := env.do(t, "POST", "/api/reservations", stranger, reservationBody(eqID, "2025-06-03", "09:00", "10:00"), nil); status != http.StatusCreated {
		t.Errorf("expected freed slot to be bookable, got %d", status)
	}
}

func TestRescheduleEndpoint(t *testing.T) {
	env := setupTestServer(t)
	eqID := env.equipment(t, "Camera")
	_, token := env.user(t, "student", model.RoleUser, true)

	var res model.Reservation
	env.do(t, "POST", "/api/reservations", token, reservationBody(eqID, "2025-06-03", "09:00", "10:00"), &res)

	body := map[string]any{
		"reservation_date": "2025-06-03",
		"start_time":       "09:30",
		"end_time":         "11:00",
		"purpose":          "longer shoot",
	}
	if status := env.do(t, "PUT", "/api/reservations/"+res.ID+"/schedule", token, body, &res); status != http.StatusOK {
		t.Fatalf("reschedule overlapping itself: %d", status)
	}
	if res.StartTime.Format("15:04") != "09:30" || res.Purpose != "longer shoot" {
		t.Errorf("unexpected rescheduled reservation: %+v", res)
	}
}

func TestSweepEndpoint(t *testing.T) {
	env := setupTestServer(t)
	eqID := env.equipment(t, "Camera")
	_, token := env.user(t, "student", model.RoleUser, true)

	var res model.Reservation
	env.do(t, "POST", "/api/reservations", token, reservationBody(eqID, "2025-06-02", "10:00", "11:00"), &res)
	env.do(t, "POST", "/api/reservations/"+res.ID+"/approve", env.admin, nil, nil)

	var out map[string]int
	env.do(t, "POST", "/api/reservations/sweep", env.admin, nil, &out)
	if out["expired"] != 0 {
		t.Errorf("expected nothing to expire yet, got %d", out["expired"])
	}

	env.clock.Set(time.Date(2025, 6, 2, 11, 1, 0, 0, time.UTC))
	env.do(t, "POST", "/api/reservations/sweep", env.admin, nil, &out)
	if out["expired"] != 1 {
		t.Errorf("expected 1 expired, got %d", out["expired"])
	}

	env.do(t, "GET", "/api/reservations/"+res.ID, token, nil, &res)
	if res.Status != model.StatusExpired {
		t.Errorf("expected expired, got %s", res.Status)
	}
}

func TestSettingsEndpoint(t *testing.T) {
	env := setupTestServer(t)
	eqID := env.equipment(t, "Camera")
	_, token := env.user(t, "student", model.RoleUser, true)

	var settings settingsResponse
	env.do(t, "GET", "/api/settings", env.admin, nil, &settings)
	if settings.MaxAdvanceBookingDays != 30 || settings.OpenHour != 8 {
		t.Errorf("unexpected defaults: %+v", settings)
	}

	if status := env.do(t, "PUT", "/api/settings", env.admin, map[string]int{"max_advance_booking_days": 3}, &settings); status != http.StatusOK {
		t.Fatalf("update settings: %d", status)
	}
	if settings.MaxAdvanceBookingDays != 3 {
		t.Errorf("expected horizon 3, got %d", settings.MaxAdvanceBookingDays)
	}

	if status := env.do(t, "POST", "/api/reservations", token, reservationBody(eqID, "2025-06-10", "10:00", "11:00"), nil); status != http.StatusUnprocessableEntity {
		t.Errorf("expected 422 beyond stored horizon, got %d", status)
	}

	if status := env.do(t, "PUT", "/api/settings", env.admin, map[string]int{"max_advance_booking_days": -1}, nil); status != http.StatusBadRequest {
		t.Errorf("expected 400 for negative horizon, got %d", status)
	}

	env.do(t, "POST", "/api/settings/closed-dates", env.admin, map[string]string{"date": "2025-06-05"}, nil)
	if status := env.do(t, "DELETE", "/api/settings/closed-dates/2025-06-05", env.admin, nil, nil); status != http.StatusOK {
		t.Errorf("remove closed date: %d", status)
	}
	var dates []model.ClosedDate
	env.do(t, "GET", "/api/settings/closed-dates", env.admin, nil, &dates)
	if len(dates) != 0 {
		t.Errorf("expected no closed dates, got %v", dates)
	}
}

func TestLoanFlow(t *testing.T) {
	env := setupTestServer(t)
	eqID := env.equipment(t, "Camera")
	_, token := env.user(t, "student", model.RoleUser, true)
	_, other := env.user(t, "other", model.RoleUser, true)

	body := map[string]any{
		"equipment_id":         eqID,
		"borrow_date":          "2025-06-03",
		"expected_return_date": "2025-06-05",
		"purpose":              "field trip",
	}
	var loan model.Loan
	if status := env.do(t, "POST", "/api/loans", token, body, &loan); status != http.StatusCreated {
		t.Fatalf("create loan: %d", status)
	}
	if loan.Status != model.LoanPending {
		t.Errorf("expected pending loan, got %s", loan.Status)
	}

	var overlapping model.Loan
	env.do(t, "POST", "/api/loans", other, body, &overlapping)

	path := "/api/loans/" + itoa(loan.ID)
	if status := env.do(t, "POST", path+"/approve", env.admin, nil, &loan); status != http.StatusOK {
		t.Fatalf("approve loan: %d", status)
	}
	var conflict map[string]string
	if status := env.do(t, "POST", "/api/loans/"+itoa(overlapping.ID)+"/approve", env.admin, nil, &conflict); status != http.StatusConflict {
		t.Errorf("expected 409 approving an overlapping loan, got %d", status)
	}
	if conflict["error"] != "equipment is already on loan for that period" {
		t.Errorf("unexpected overlap error: %q", conflict["error"])
	}

	// The approved loan blocks reservations in its period.
	if status := env.do(t, "POST", "/api/reservations", other, reservationBody(eqID, "2025-06-04", "10:00", "11:00"), nil); status != http.StatusUnprocessableEntity {
		t.Errorf("expected 422 while on loan, got %d", status)
	}

	if status := env.do(t, "POST", path+"/return", env.admin, nil, &loan); status != http.StatusOK {
		t.Fatalf("return loan: %d", status)
	}
	if loan.Status != model.LoanReturned || loan.ReturnedAt == nil {
		t.Errorf("unexpected returned loan: %+v", loan)
	}
	if status := env.do(t, "POST", path+"/return", env.admin, nil, nil); status != http.StatusConflict {
		t.Errorf("expected 409 returning twice, got %d", status)
	}

	var mine []model.Loan
	env.do(t, "GET", "/api/loans", other, nil, &mine)
	if len(mine) != 1 {
		t.Errorf("expected other user to see only their own loan, got %d", len(mine))
	}
}

func itoa(n int64) string {
	return strconv.FormatInt(n, 10)
}
