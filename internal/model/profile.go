package model

import "time"

// Profile is the cached on-chain profile of an account.
type Profile struct {
	Name     string    `json:"name"`
	AvatarID string    `json:"avatar_id"`
	Exists   bool      `json:"exists"`
	CachedAt time.Time `json:"cached_at"`
}
