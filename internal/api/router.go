package api

import (
	"database/sql"
	"net/http"

	"github.com/erazemk/izposoja/internal/model"
	"github.com/erazemk/izposoja/internal/reservation"
)

// NewRouter creates the API router with all endpoints registered.
func NewRouter(db *sql.DB, jwtSecret string, manager *reservation.Manager) http.Handler {
	mux := http.NewServeMux()

	authHandler := &AuthHandler{DB: db, JWTSecret: jwtSecret}
	usersHandler := &UsersHandler{DB: db}
	equipmentHandler := &EquipmentHandler{DB: db, Manager: manager}
	reservationsHandler := &ReservationsHandler{Manager: manager}
	loansHandler := &LoansHandler{DB: db, Manager: manager}
	notificationsHandler := &NotificationsHandler{DB: db, Manager: manager}
	settingsHandler := &SettingsHandler{DB: db, Manager: manager}

	authMW := AuthMiddleware(jwtSecret, db)
	requireAdmin := RequireRole(model.RoleAdmin)
	requireManager := RequireRole(model.RoleManager)
	requireApproved := RequireApprovedProfile(db)

	// Public: login.
	mux.HandleFunc("POST /api/auth/login", authHandler.Login)

	// Authenticated routes.
	mux.Handle("PUT /api/auth/password", authMW(http.HandlerFunc(authHandler.ChangePassword)))
	mux.Handle("POST /api/auth/logout", authMW(http.HandlerFunc(authHandler.Logout)))

	// Users (admin only).
	mux.Handle("GET /api/users", authMW(requireAdmin(http.HandlerFunc(usersHandler.List))))
	mux.Handle("POST /api/users", authMW(requireAdmin(http.HandlerFunc(usersHandler.Create))))
	mux.Handle("GET /api/users/{id}", authMW(requireAdmin(http.HandlerFunc(usersHandler.Get))))
	mux.Handle("PUT /api/users/{id}", authMW(requireAdmin(http.HandlerFunc(usersHandler.Update))))
	mux.Handle("PUT /api/users/{id}/approve", authMW(requireAdmin(http.HandlerFunc(usersHandler.Approve))))
	mux.Handle("PUT /api/users/{id}/password", authMW(requireAdmin(http.HandlerFunc(usersHandler.ResetPassword))))
	mux.Handle("DELETE /api/users/{id}", authMW(requireAdmin(http.HandlerFunc(usersHandler.Delete))))

	// Equipment: read (all roles), write (manager+).
	mux.Handle("GET /api/equipment", authMW(http.HandlerFunc(equipmentHandler.List)))
	mux.Handle("POST /api/equipment", authMW(requireManager(http.HandlerFunc(equipmentHandler.Create))))
	mux.Handle("GET /api/equipment/{id}", authMW(http.HandlerFunc(equipmentHandler.Get)))
	mux.Handle("PUT /api/equipment/{id}", authMW(requireManager(http.HandlerFunc(equipmentHandler.Update))))
	mux.Handle("DELETE /api/equipment/{id}", authMW(requireManager(http.HandlerFunc(equipmentHandler.Delete))))
	mux.Handle("PUT /api/equipment/{id}/image", authMW(requireManager(http.HandlerFunc(equipmentHandler.UploadImage))))
	mux.Handle("GET /api/equipment/{id}/image", authMW(http.HandlerFunc(equipmentHandler.GetImage)))
	mux.Handle("GET /api/equipment/{id}/slots", authMW(http.HandlerFunc(equipmentHandler.Slots)))

	// Reservations.
	mux.Handle("POST /api/reservations", authMW(requireApproved(http.HandlerFunc(reservationsHandler.Create))))
	mux.Handle("GET /api/reservations", authMW(http.HandlerFunc(reservationsHandler.List)))
	mux.Handle("POST /api/reservations/sweep", authMW(requireAdmin(http.HandlerFunc(reservationsHandler.Sweep))))
	mux.Handle("GET /api/reservations/{id}", authMW(http.HandlerFunc(reservationsHandler.Get)))
	mux.Handle("PUT /api/reservations/{id}/schedule", authMW(http.HandlerFunc(reservationsHandler.Reschedule)))
	mux.Handle("POST /api/reservations/{id}/cancel", authMW(http.HandlerFunc(reservationsHandler.Cancel)))
	mux.Handle("POST /api/reservations/{id}/approve", authMW(requireManager(http.HandlerFunc(reservationsHandler.Approve))))
	mux.Handle("POST /api/reservations/{id}/reject", authMW(requireManager(http.HandlerFunc(reservationsHandler.Reject))))
	mux.Handle("POST /api/reservations/{id}/ready", authMW(requireManager(http.HandlerFunc(reservationsHandler.MarkReady))))
	mux.Handle("POST /api/reservations/{id}/complete", authMW(requireManager(http.HandlerFunc(reservationsHandler.Complete))))
	mux.Handle("POST /api/reservations/{id}/convert", authMW(requireManager(http.HandlerFunc(reservationsHandler.Convert))))

	// Loans: request (approved users), decide (manager+).
	mux.Handle("GET /api/loans", authMW(http.HandlerFunc(loansHandler.List)))
	mux.Handle("POST /api/loans", authMW(requireApproved(http.HandlerFunc(loansHandler.Create))))
	mux.Handle("POST /api/loans/{id}/approve", authMW(requireManager(http.HandlerFunc(loansHandler.Approve))))
	mux.Handle("POST /api/loans/{id}/reject", authMW(requireManager(http.HandlerFunc(loansHandler.Reject))))
	mux.Handle("POST /api/loans/{id}/return", authMW(requireManager(http.HandlerFunc(loansHandler.Return))))

	// Notifications (own inbox).
	mux.Handle("GET /api/notifications", authMW(http.HandlerFunc(notificationsHandler.List)))
	mux.Handle("POST /api/notifications/{id}/read", authMW(http.HandlerFunc(notificationsHandler.MarkRead)))

	// Settings (admin only).
	mux.Handle("GET /api/settings", authMW(requireAdmin(http.HandlerFunc(settingsHandler.Get))))
	mux.Handle("PUT /api/settings", authMW(requireAdmin(http.HandlerFunc(settingsHandler.Update))))
	mux.Handle("GET /api/settings/closed-dates", authMW(requireAdmin(http.HandlerFunc(settingsHandler.ListClosedDates))))
	mux.Handle("POST /api/settings/closed-dates", authMW(requireAdmin(http.HandlerFunc(settingsHandler.AddClosedDate))))
	mux.Handle("DELETE /api/settings/closed-dates/{date}", authMW(requireAdmin(http.HandlerFunc(settingsHandler.RemoveClosedDate))))

	return mux
}
