// Package models defines server-side data models persisted in the database
// or cached in Redis.
package models

import (
	"strings"
	"time"
)

// Role gates access to administrative endpoints.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

// User is the Credential Store record. PasswordHash is a bcrypt hash and is
// never serialized.
type User struct {
	ID           string    `db:"id"`
	Email        string    `db:"email"`
	PasswordHash string    `db:"password_hash" json:"-"`
	Role         Role      `db:"role"`
	Verified     bool      `db:"verified"`
	AvatarURL    string    `db:"avatar_url"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

// Profile returns the cacheable projection of u.
func (u *User) Profile() *Profile {
	return &Profile{
		ID:        u.ID,
		Email:     u.Email,
		Role:      u.Role,
		Verified:  u.Verified,
		AvatarURL: u.AvatarURL,
		CreatedAt: u.CreatedAt,
	}
}

// NormalizeEmail trims and lowercases an address so lookups and the unique
// index agree.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
