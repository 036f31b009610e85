package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/erazemk/izposoja/internal/model"
)

// Repo binds the package functions to one database so they can be handed
// to components that depend on narrow interfaces.
type Repo struct {
	DB *sql.DB
}

func (r Repo) InsertReservation(ctx context.Context, res *model.Reservation) error {
	return InsertReservation(ctx, r.DB, res)
}

func (r Repo) GetReservation(ctx context.Context, id string) (*model.Reservation, error) {
	return GetReservation(ctx, r.DB, id)
}

func (r Repo) ListReservationsForDay(ctx context.Context, equipmentID int64, date time.Time) ([]model.Reservation, error) {
	return ListReservationsForDay(ctx, r.DB, equipmentID, date)
}

func (r Repo) ListReservations(ctx context.Context, f model.ReservationFilter) ([]model.Reservation, error) {
	return ListReservations(ctx, r.DB, f)
}

func (r Repo) UpdateReservationStatus(ctx context.Context, res *model.Reservation, from model.ReservationStatus) error {
	return UpdateReservationStatus(ctx, r.DB, res, from)
}

func (r Repo) RescheduleReservation(ctx context.Context, res *model.Reservation) error {
	return RescheduleReservation(ctx, r.DB, res)
}

func (r Repo) ConvertReservation(ctx context.Context, res *model.Reservation, from model.ReservationStatus, loan *model.Loan) (*model.Loan, error) {
	return ConvertReservation(ctx, r.DB, res, from, loan)
}

func (r Repo) GetEquipment(ctx context.Context, id int64) (*model.Equipment, error) {
	return GetEquipment(ctx, r.DB, id)
}

func (r Repo) MaxAdvanceBookingDays(ctx context.Context, fallback int) (int, error) {
	return GetMaxAdvanceBookingDays(ctx, r.DB, fallback)
}

func (r Repo) IsDateClosed(ctx context.Context, date time.Time) (bool, error) {
	return IsDateClosed(ctx, r.DB, date)
}

func (r Repo) EquipmentOnLoan(ctx context.Context, equipmentID int64, from, to time.Time) (bool, error) {
	return EquipmentOnLoan(ctx, r.DB, equipmentID, from, to)
}

func (r Repo) CreateNotification(ctx context.Context, n *model.Notification) error {
	return CreateNotification(ctx, r.DB, n)
}
