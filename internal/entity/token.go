package entity

import "time"

// Token is a persisted session token. Value is opaque to clients and unique.
type Token struct {
	Value      string    `json:"-"`
	UserID     int64     `json:"user_id"`
	LastUsedAt time.Time `json:"last_used_at"`
}
