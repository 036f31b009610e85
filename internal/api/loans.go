package api

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/erazemk/izposoja/internal/model"
	"github.com/erazemk/izposoja/internal/reservation"
	"github.com/erazemk/izposoja/internal/store"
)

// LoansHandler handles direct loan requests and their approval.
type LoansHandler struct {
	DB      *sql.DB
	Manager *reservation.Manager
}

type createLoanRequest struct {
	EquipmentID        int64  `json:"equipment_id" validate:"required,gt=0"`
	BorrowDate         string `json:"borrow_date" validate:"required"`
	ExpectedReturnDate string `json:"expected_return_date" validate:"required"`
	Purpose            string `json:"purpose" validate:"required,max=1000"`
	Notes              string `json:"notes" validate:"max=2000"`
}

// List handles GET /api/loans. Regular users only see their own loans.
func (h *LoansHandler) List(w http.ResponseWriter, r *http.Request) {
	claims := GetClaims(r.Context())
	q := r.URL.Query()

	f := model.LoanFilter{Status: q.Get("status")}
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
	if !claims.Staff() {
		f.UserID = claims.UserID
	}

	loans, err := store.ListLoans(r.Context(), h.DB, f)
	if err != nil {
		slog.Error("failed to list loans", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to list loans")
		return
	}
	if loans == nil {
		loans = []model.Loan{}
	}
	jsonResponse(w, http.StatusOK, loans)
}

// Create handles POST /api/loans.
func (h *LoansHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createLoanRequest
	if !decodeValid(w, r, &req) {
		return
	}

	loc := h.Manager.Location()
	borrow, err := reservation.ParseTimestamp(req.BorrowDate, loc)
	if err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}
	expected, err := reservation.ParseTimestamp(req.ExpectedReturnDate, loc)
	if err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !expected.After(borrow) {
		jsonError(w, http.StatusUnprocessableEntity, "expected return date must be after borrow date")
		return
	}

	e, err := store.GetEquipment(r.Context(), h.DB, req.EquipmentID)
	if err != nil {
		slog.Error("failed to get equipment", "error", err)
		jsonError(w, http.StatusInternalServerError, "internal error, please retry")
		return
	}
	if e == nil || e.DeletedAt != nil {
		jsonError(w, http.StatusNotFound, "equipment not found")
		return
	}
	if e.Status != model.EquipmentAvailable {
		jsonError(w, http.StatusUnprocessableEntity, reservation.ReasonEquipmentUnavailable)
		return
	}

	now := h.Manager.Now()
	loan, err := store.CreateLoan(r.Context(), h.DB, &model.Loan{
		EquipmentID:        e.ID,
		UserID:             GetClaims(r.Context()).UserID,
		BorrowDate:         borrow,
		ExpectedReturnDate: expected,
		Purpose:            strings.TrimSpace(req.Purpose),
		Notes:              strings.TrimSpace(req.Notes),
		CreatedAt:          now,
		UpdatedAt:          now,
	})
	if err != nil {
		engineError(w, err, "create loan")
		return
	}

	slog.Info("loan requested", "user", GetClaims(r.Context()).Username, "loan_id", loan.ID, "equipment", e.Name)
	jsonResponse(w, http.StatusCreated, loan)
}

// Approve handles POST /api/loans/{id}/approve.
func (h *LoansHandler) Approve(w http.ResponseWriter, r *http.Request) {
	id, ok := h.exists(w, r)
	if !ok {
		return
	}

	loan, err := store.ApproveLoan(r.Context(), h.DB, id, GetClaims(r.Context()).UserID, h.Manager.Now())
	if errors.Is(err, model.ErrSlotTaken) {
		jsonError(w, http.StatusConflict, "equipment is already on loan for that period")
		return
	}
	if err != nil {
		engineError(w, err, "approve loan")
		return
	}

	slog.Info("loan approved", "user", GetClaims(r.Context()).Username, "loan_id", id)
	jsonResponse(w, http.StatusOK, loan)
}

// Reject handles POST /api/loans/{id}/reject.
func (h *LoansHandler) Reject(w http.ResponseWriter, r *http.Request) {
	h.move(w, r, store.RejectLoan, "loan rejected")
}

// Return handles POST /api/loans/{id}/return.
func (h *LoansHandler) Return(w http.ResponseWriter, r *http.Request) {
	h.move(w, r, store.ReturnLoan, "loan returned")
}

type loanMove func(ctx context.Context, db *sql.DB, id int64, now time.Time) error

func (h *LoansHandler) move(w http.ResponseWriter, r *http.Request, fn loanMove, msg string) {
	id, ok := h.exists(w, r)
	if !ok {
		return
	}

	if err := fn(r.Context(), h.DB, id, h.Manager.Now()); err != nil {
		engineError(w, err, msg)
		return
	}

	loan, err := store.GetLoan(r.Context(), h.DB, id)
	if err != nil {
		engineError(w, err, msg)
		return
	}

	slog.Info(msg, "user", GetClaims(r.Context()).Username, "loan_id", id)
	jsonResponse(w, http.StatusOK, loan)
}

// exists parses {id} and checks that the loan exists.
func (h *LoansHandler) exists(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, ok := pathID(r)
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid loan id")
		return 0, false
	}

	loan, err := store.GetLoan(r.Context(), h.DB, id)
	if err != nil {
		engineError(w, err, "get loan")
		return 0, false
	}
	if loan == nil {
		jsonError(w, http.StatusNotFound, "loan not found")
		return 0, false
	}
	return id, true
}
