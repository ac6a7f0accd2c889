package models

import (
	"encoding/json"
	"time"
)

// User is a local BROCKER account. PasswordHash is empty for users created
// through an OAuth "register" intent.
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	Email        *string   `json:"email,omitempty"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// UserState is the opaque client state (XP, level, preferences) stored per local user.
type UserState struct {
	LocalUser string          `json:"local_user"`
	State     json.RawMessage `json:"state"`
	UpdatedAt time.Time       `json:"updated_at"`
}
