package models

import "time"

// Profile is the Session Cache copy of a User. It is at most CacheTTL stale
// and is explicitly invalidated whenever verification, role or avatar change.
type Profile struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Role      Role      `json:"role"`
	Verified  bool      `json:"verified"`
	AvatarURL string    `json:"avatar_url,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
