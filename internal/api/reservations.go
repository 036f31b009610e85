package api

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/erazemk/izposoja/internal/model"
	"github.com/erazemk/izposoja/internal/reservation"
)

// ReservationsHandler exposes the reservation lifecycle.
type ReservationsHandler struct {
	Manager *reservation.Manager
}

type reservationRequest struct {
	EquipmentID        int64  `json:"equipment_id" validate:"required,gt=0"`
	Date               string `json:"reservation_date" validate:"required"`
	StartTime          string `json:"start_time" validate:"required"`
	EndTime            string `json:"end_time" validate:"required"`
	ExpectedReturnDate string `json:"expected_return_date"`
	Purpose            string `json:"purpose" validate:"max=1000"`
	Notes              string `json:"notes" validate:"max=2000"`
}

type rescheduleRequest struct {
	Date               string `json:"reservation_date" validate:"required"`
	StartTime          string `json:"start_time" validate:"required"`
	EndTime            string `json:"end_time" validate:"required"`
	ExpectedReturnDate string `json:"expected_return_date"`
	Purpose            string `json:"purpose" validate:"max=1000"`
	Notes              string `json:"notes" validate:"max=2000"`
}

type reasonRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

type convertResponse struct {
	Reservation *model.Reservation `json:"reservation"`
	Loan        *model.Loan        `json:"loan"`
}

// Create handles POST /api/reservations.
func (h *ReservationsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var body reservationRequest
	if !decodeValid(w, r, &body) {
		return
	}

	req, err := h.request(body.Date, body.StartTime, body.EndTime, body.ExpectedReturnDate)
	if err != nil {
		engineError(w, err, "create reservation")
		return
	}
	req.EquipmentID = body.EquipmentID
	req.UserID = GetClaims(r.Context()).UserID
	req.Purpose = body.Purpose
	req.Notes = body.Notes

	res, err := h.Manager.Create(r.Context(), req)
	if err != nil {
		engineError(w, err, "create reservation")
		return
	}
	jsonResponse(w, http.StatusCreated, res)
}

// List handles GET /api/reservations. Regular users only see their own
// reservations; staff may filter by user_id.
func (h *ReservationsHandler) List(w http.ResponseWriter, r *http.Request) {
	claims := GetClaims(r.Context())
	q := r.URL.Query()

	var f model.ReservationFilter
	if s := q.Get("status"); s != "" {
		f.Status = model.ReservationStatus(s)
		if !f.Status.Valid() {
			jsonError(w, http.StatusBadRequest, "invalid status")
			return
		}
	}
	for key, dst := range map[string]*int64{"equipment_id": &f.EquipmentID, "user_id": &f.UserID} {
		if s := q.Get(key); s != "" {
			n, err := strconv.ParseInt(s, 10, 64)
			if err != nil || n <= 0 {
				jsonError(w, http.StatusBadRequest, "invalid "+key)
				return
			}
			*dst = n
		}
	}
	for key, dst := range map[string]**time.Time{"from": &f.From, "to": &f.To} {
		if s := q.Get(key); s != "" {
			t, err := reservation.ParseTimestamp(s, h.Manager.Location())
			if err != nil {
				jsonError(w, http.StatusBadRequest, "invalid "+key)
				return
			}
			*dst = &t
		}
	}
	if !claims.Staff() {
		f.UserID = claims.UserID
	}

	list, err := h.Manager.List(r.Context(), f)
	if err != nil {
		engineError(w, err, "list reservations")
		return
	}
	if list == nil {
		list = []model.Reservation{}
	}
	jsonResponse(w, http.StatusOK, list)
}

// Get handles GET /api/reservations/{id}.
func (h *ReservationsHandler) Get(w http.ResponseWriter, r *http.Request) {
	res, err := h.Manager.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		engineError(w, err, "get reservation")
		return
	}
	claims := GetClaims(r.Context())
	if !claims.Staff() && res.UserID != claims.UserID {
		// Other users' reservations are indistinguishable from missing ones.
		jsonError(w, http.StatusNotFound, "not found")
		return
	}
	jsonResponse(w, http.StatusOK, res)
}

// Reschedule handles PUT /api/reservations/{id}/schedule.
func (h *ReservationsHandler) Reschedule(w http.ResponseWriter, r *http.Request) {
	var body rescheduleRequest
	if !decodeValid(w, r, &body) {
		return
	}

	req, err := h.request(body.Date, body.StartTime, body.EndTime, body.ExpectedReturnDate)
	if err != nil {
		engineError(w, err, "reschedule reservation")
		return
	}
	req.Purpose = body.Purpose
	req.Notes = body.Notes

	res, err := h.Manager.Reschedule(r.Context(), r.PathValue("id"), actor(r), req)
	if err != nil {
		engineError(w, err, "reschedule reservation")
		return
	}
	jsonResponse(w, http.StatusOK, res)
}

// Cancel handles POST /api/reservations/{id}/cancel.
func (h *ReservationsHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	reason, ok := optionalReason(w, r)
	if !ok {
		return
	}
	res, err := h.Manager.Cancel(r.Context(), r.PathValue("id"), actor(r), reason)
	h.respond(w, res, err, "cancel reservation")
}

// Approve handles POST /api/reservations/{id}/approve.
func (h *ReservationsHandler) Approve(w http.ResponseWriter, r *http.Request) {
	res, err := h.Manager.Approve(r.Context(), r.PathValue("id"), GetClaims(r.Context()).UserID)
	h.respond(w, res, err, "approve reservation")
}

// Reject handles POST /api/reservations/{id}/reject.
func (h *ReservationsHandler) Reject(w http.ResponseWriter, r *http.Request) {
	reason, ok := optionalReason(w, r)
	if !ok {
		return
	}
	res, err := h.Manager.Reject(r.Context(), r.PathValue("id"), GetClaims(r.Context()).UserID, reason)
	h.respond(w, res, err, "reject reservation")
}

// MarkReady handles POST /api/reservations/{id}/ready.
func (h *ReservationsHandler) MarkReady(w http.ResponseWriter, r *http.Request) {
	res, err := h.Manager.MarkReady(r.Context(), r.PathValue("id"), GetClaims(r.Context()).UserID)
	h.respond(w, res, err, "mark reservation ready")
}

// Complete handles POST /api/reservations/{id}/complete.
func (h *ReservationsHandler) Complete(w http.ResponseWriter, r *http.Request) {
	res, err := h.Manager.Complete(r.Context(), r.PathValue("id"), GetClaims(r.Context()).UserID)
	h.respond(w, res, err, "complete reservation")
}

// Convert handles POST /api/reservations/{id}/convert.
func (h *ReservationsHandler) Convert(w http.ResponseWriter, r *http.Request) {
	res, loan, err := h.Manager.ConvertToLoan(r.Context(), r.PathValue("id"), GetClaims(r.Context()).UserID)
	if err != nil {
		engineError(w, err, "convert reservation")
		return
	}
	jsonResponse(w, http.StatusOK, convertResponse{Reservation: res, Loan: loan})
}

// Sweep handles POST /api/reservations/sweep.
func (h *ReservationsHandler) Sweep(w http.ResponseWriter, r *http.Request) {
	n := h.Manager.SweepExpired(r.Context())
	slog.Info("manual expiry sweep", "user", GetClaims(r.Context()).Username, "expired", n)
	jsonResponse(w, http.StatusOK, map[string]int{"expired": n})
}

func (h *ReservationsHandler) respond(w http.ResponseWriter, res *model.Reservation, err error, op string) {
	if err != nil {
		engineError(w, err, op)
		return
	}
	jsonResponse(w, http.StatusOK, res)
}

// request parses the textual schedule of a reservation body.
func (h *ReservationsHandler) request(date, start, end, expectedReturn string) (reservation.Request, error) {
	day, startTime, endTime, err := h.Manager.Schedule(date, start, end)
	if err != nil {
		return reservation.Request{}, err
	}
	req := reservation.Request{Date: day, StartTime: startTime, EndTime: endTime}
	if expectedReturn != "" {
		t, err := reservation.ParseTimestamp(expectedReturn, h.Manager.Location())
		if err != nil {
			return reservation.Request{}, &reservation.ValidationError{Reason: err.Error()}
		}
		req.ExpectedReturnDate = &t
	}
	return req, nil
}

// optionalReason reads an optional {"reason": ...} body.
func optionalReason(w http.ResponseWriter, r *http.Request) (string, bool) {
	if r.ContentLength == 0 {
		return "", true
	}
	var body reasonRequest
	if !decodeValid(w, r, &body) {
		return "", false
	}
	return body.Reason, true
}

func actor(r *http.Request) reservation.Actor {
	claims := GetClaims(r.Context())
	return reservation.Actor{UserID: claims.UserID, Staff: claims.Staff()}
}
