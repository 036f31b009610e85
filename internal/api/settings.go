package api

import (
	"database/sql"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/erazemk/izposoja/internal/model"
	"github.com/erazemk/izposoja/internal/reservation"
	"github.com/erazemk/izposoja/internal/store"
)

// SettingsHandler manages runtime-editable reservation settings.
type SettingsHandler struct {
	DB      *sql.DB
	Manager *reservation.Manager
}

type settingsResponse struct {
	MaxAdvanceBookingDays int    `json:"max_advance_booking_days"`
	TimeZone              string `json:"time_zone"`
	OpenHour              int    `json:"open_hour"`
	CloseHour             int    `json:"close_hour"`
	SlotMinutes           int    `json:"slot_minutes"`
	MinDurationMinutes    int    `json:"min_duration_minutes"`
	MaxDurationMinutes    int    `json:"max_duration_minutes"`
}

type updateSettingsRequest struct {
	MaxAdvanceBookingDays *int `json:"max_advance_booking_days" validate:"required,gte=0,lte=365"`
}

type closedDateRequest struct {
	Date   string `json:"date" validate:"required,datetime=2006-01-02"`
	Reason string `json:"reason" validate:"max=200"`
}

// Get handles GET /api/settings. Business hours and durations come from
// the server configuration and are read-only here.
func (h *SettingsHandler) Get(w http.ResponseWriter, r *http.Request) {
	rules := h.Manager.Rules()
	days, err := store.GetMaxAdvanceBookingDays(r.Context(), h.DB, rules.AdvanceBookingDays)
	if err != nil {
		slog.Error("failed to read settings", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to read settings")
		return
	}

	jsonResponse(w, http.StatusOK, settingsResponse{
		MaxAdvanceBookingDays: days,
		TimeZone:              h.Manager.Location().String(),
		OpenHour:              rules.OpenHour,
		CloseHour:             rules.CloseHour,
		SlotMinutes:           rules.SlotMinutes,
		MinDurationMinutes:    rules.MinDuration,
		MaxDurationMinutes:    rules.MaxDuration,
	})
}

// Update handles PUT /api/settings.
func (h *SettingsHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req updateSettingsRequest
	if !decodeValid(w, r, &req) {
		return
	}

	err := store.SetSetting(r.Context(), h.DB, store.SettingMaxAdvanceBookingDays, strconv.Itoa(*req.MaxAdvanceBookingDays))
	if err != nil {
		slog.Error("failed to update settings", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to update settings")
		return
	}

	slog.Info("settings updated", "user", GetClaims(r.Context()).Username,
		"max_advance_booking_days", *req.MaxAdvanceBookingDays)
	h.Get(w, r)
}

// ListClosedDates handles GET /api/settings/closed-dates.
func (h *SettingsHandler) ListClosedDates(w http.ResponseWriter, r *http.Request) {
	dates, err := store.ListClosedDates(r.Context(), h.DB)
	if err != nil {
		slog.Error("failed to list closed dates", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to list closed dates")
		return
	}
	if dates == nil {
		dates = []model.ClosedDate{}
	}
	jsonResponse(w, http.StatusOK, dates)
}

// AddClosedDate handles POST /api/settings/closed-dates.
func (h *SettingsHandler) AddClosedDate(w http.ResponseWriter, r *http.Request) {
	var req closedDateRequest
	if !decodeValid(w, r, &req) {
		return
	}

	date, err := reservation.ParseDate(req.Date, h.Manager.Location())
	if err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := store.AddClosedDate(r.Context(), h.DB, date, req.Reason); err != nil {
		slog.Error("failed to add closed date", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to add closed date")
		return
	}

	slog.Info("closed date added", "user", GetClaims(r.Context()).Username, "date", req.Date)
	jsonResponse(w, http.StatusCreated, model.ClosedDate{Date: req.Date, Reason: req.Reason})
}

// RemoveClosedDate handles DELETE /api/settings/closed-dates/{date}.
func (h *SettingsHandler) RemoveClosedDate(w http.ResponseWriter, r *http.Request) {
	date, err := reservation.ParseDate(r.PathValue("date"), h.Manager.Location())
	if err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := store.RemoveClosedDate(r.Context(), h.DB, date); err != nil {
		slog.Error("failed to remove closed date", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to remove closed date")
		return
	}

	slog.Info("closed date removed", "user", GetClaims(r.Context()).Username, "date", r.PathValue("date"))
	jsonResponse(w, http.StatusOK, map[string]string{"message": "closed date removed"})
}
