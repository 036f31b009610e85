package model

import "time"

// Equipment is a single lendable piece of equipment.
type Equipment struct {
	ID          int64      `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	Category    string     `json:"category,omitempty"`
	ImageMime   string     `json:"image_mime,omitempty"`
	Status      string     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	DeletedAt   *time.Time `json:"deleted_at,omitempty"`
}

// Equipment statuses.
const (
	EquipmentAvailable   = "available"
	EquipmentMaintenance = "maintenance"
	EquipmentRetired     = "retired"
)

// ValidEquipmentStatus reports whether s is a known equipment status.
func ValidEquipmentStatus(s string) bool {
	switch s {
	case EquipmentAvailable, EquipmentMaintenance, EquipmentRetired:
		return true
	}
	return false
}
