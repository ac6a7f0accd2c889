package models

import "time"

// Account is an OAuth (or OpenID) link between a local user and a platform identity.
type Account struct {
	ID             int64      `json:"id"`
	LocalUser      string     `json:"local_user"`
	Platform       Platform   `json:"platform"`
	PlatformUserID string     `json:"platform_userid"`
	ClientID       string     `json:"client_id"`
	AccessToken    string     `json:"-"`
	RefreshToken   string     `json:"-"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// ExpiresWithin reports whether the access token is unknown-expiry or expires before now+skew.
func (a *Account) ExpiresWithin(now time.Time, skew time.Duration) bool {
	if a.ExpiresAt == nil {
		return true
	}
	return !a.ExpiresAt.After(now.Add(skew))
}

// Clone returns a copy that can be mutated without touching the original.
func (a *Account) Clone() *Account {
	c := *a
	if a.ExpiresAt != nil {
		t := *a.ExpiresAt
		c.ExpiresAt = &t
	}
	return &c
}
