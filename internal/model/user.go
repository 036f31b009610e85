package model

import (
	"errors"
	"time"
)

// User represents an authentication user. Regular users must have their
// profile approved by an administrator before they can request equipment.
type User struct {
	ID              int64      `json:"id"`
	Username        string     `json:"username"`
	PasswordHash    string     `json:"-"`
	Role            string     `json:"role"`
	ProfileApproved bool       `json:"profile_approved"`
	CreatedAt       time.Time  `json:"created_at"`
	DeletedAt       *time.Time `json:"deleted_at,omitempty"`
}

// Roles.
const (
	RoleAdmin   = "admin"
	RoleManager = "manager"
	RoleUser    = "user"
)

// MinPasswordLength is the shortest accepted password.
const MinPasswordLength = 8

// RoleAtLeast checks if role meets or exceeds the minimum required role.
func RoleAtLeast(role, minimum string) bool {
	levels := map[string]int{
		RoleAdmin:   3,
		RoleManager: 2,
		RoleUser:    1,
	}
	return levels[role] >= levels[minimum] && levels[minimum] > 0
}

// CanRequest reports whether the user may submit reservations and loan
// requests. Staff accounts are implicitly approved.
func (u *User) CanRequest() bool {
	if u == nil || u.DeletedAt != nil {
		return false
	}
	return u.ProfileApproved || RoleAtLeast(u.Role, RoleManager)
}

// ValidatePassword checks password strength requirements.
func ValidatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return errors.New("password must be at least 8 characters")
	}
	return nil
}
