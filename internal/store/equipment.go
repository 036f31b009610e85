package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/erazemk/izposoja/internal/model"
)

const equipmentColumns = `id, name, description, category, image_mime, status, created_at, updated_at, deleted_at`

func scanEquipment(row interface{ Scan(...any) error }, e *model.Equipment) error {
	var description, category, imageMime sql.NullString
	if err := row.Scan(&e.ID, &e.Name, &description, &category, &imageMime, &e.Status, &e.CreatedAt, &e.UpdatedAt, &e.DeletedAt); err != nil {
		return err
	}
	e.Description = description.String
	e.Category = category.String
	e.ImageMime = imageMime.String
	return nil
}

// CreateEquipment adds a new piece of equipment in the available state.
func CreateEquipment(ctx context.Context, db *sql.DB, name, description, category string) (*model.Equipment, error) {
	result, err := db.ExecContext(ctx,
		`INSERT INTO equipment (name, description, category) VALUES (?, ?, ?)`,
		name, description, category,
	)
	if err != nil {
		return nil, fmt.Errorf("creating equipment: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting equipment id: %w", err)
	}

	return GetEquipment(ctx, db, id)
}

// GetEquipment returns equipment by ID, including soft-deleted rows so that
// historical reservations can still show a name.
func GetEquipment(ctx context.Context, db *sql.DB, id int64) (*model.Equipment, error) {
	e := &model.Equipment{}
	err := scanEquipment(db.QueryRowContext(ctx,
		`SELECT `+equipmentColumns+` FROM equipment WHERE id = ?`, id,
	), e)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting equipment: %w", err)
	}
	return e, nil
}

// ListEquipment returns non-deleted equipment, optionally filtered by status
// and category.
func ListEquipment(ctx context.Context, db *sql.DB, status, category string) ([]model.Equipment, error) {
	query := `SELECT ` + equipmentColumns + ` FROM equipment WHERE deleted_at IS NULL`
	var args []any

	if status != "" {
		query += ` AND status = ?`
		args = append(args, status)
	}
	if category != "" {
		query += ` AND category = ?`
		args = append(args, category)
	}
	query += ` ORDER BY name`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing equipment: %w", err)
	}
	defer rows.Close()

	var list []model.Equipment
	for rows.Next() {
		var e model.Equipment
		if err := scanEquipment(rows, &e); err != nil {
			return nil, fmt.Errorf("scanning equipment: %w", err)
		}
		list = append(list, e)
	}
	return list, rows.Err()
}

// UpdateEquipment updates equipment metadata.
func UpdateEquipment(ctx context.Context, db *sql.DB, id int64, name, description, category, status string) error {
	_, err := db.ExecContext(ctx,
		`UPDATE equipment SET name = ?, description = ?, category = ?, status = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND deleted_at IS NULL`,
		name, description, category, status, id,
	)
	if err != nil {
		return fmt.Errorf("updating equipment: %w", err)
	}
	return nil
}

// DeleteEquipment soft-deletes equipment.
func DeleteEquipment(ctx context.Context, db *sql.DB, id int64) error {
	_, err := db.ExecContext(ctx,
		`UPDATE equipment SET deleted_at = CURRENT_TIMESTAMP WHERE id = ? AND deleted_at IS NULL`,
		id,
	)
	if err != nil {
		return fmt.Errorf("deleting equipment: %w", err)
	}
	return nil
}

// SetEquipmentImage stores a photo and its thumbnail.
func SetEquipmentImage(ctx context.Context, db *sql.DB, id int64, image, thumbnail []byte, mime string) error {
	_, err := db.ExecContext(ctx,
		`UPDATE equipment SET image = ?, thumbnail = ?, image_mime = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND deleted_at IS NULL`,
		image, thumbnail, mime, id,
	)
	if err != nil {
		return fmt.Errorf("setting equipment image: %w", err)
	}
	return nil
}

// GetEquipmentImage returns the photo (or its thumbnail) and MIME type.
func GetEquipmentImage(ctx context.Context, db *sql.DB, id int64, thumbnail bool) ([]byte, string, error) {
	column := "image"
	if thumbnail {
		column = "thumbnail"
	}

	var data []byte
	var mime sql.NullString
	err := db.QueryRowContext(ctx,
		`SELECT `+column+`, image_mime FROM equipment WHERE id = ?`, id,
	).Scan(&data, &mime)
	if err == sql.ErrNoRows {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("getting equipment image: %w", err)
	}
	return data, mime.String, nil
}
