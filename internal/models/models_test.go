package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParsePlatform(t *testing.T) {
	assert.Equal(t, PlatformTwitch, ParsePlatform(" Twitch "))
	assert.Equal(t, PlatformYouTube, ParsePlatform("google"))
	assert.Equal(t, PlatformYouTube, ParsePlatform("YOUTUBE"))
	assert.Equal(t, Platform("kick"), ParsePlatform("kick"))
}

func TestAccount_ExpiresWithin(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	skew := 30 * time.Second

	var a Account
	assert.True(t, a.ExpiresWithin(now, skew), "unknown expiry refreshes")

	soon := now.Add(10 * time.Second)
	a.ExpiresAt = &soon
	assert.True(t, a.ExpiresWithin(now, skew))

	later := now.Add(time.Hour)
	a.ExpiresAt = &later
	assert.False(t, a.ExpiresWithin(now, skew))
}

func TestAccount_CloneCopiesExpiry(t *testing.T) {
	exp := time.Now()
	a := &Account{AccessToken: "at", ExpiresAt: &exp}
	c := a.Clone()
	*c.ExpiresAt = c.ExpiresAt.Add(time.Hour)
	c.AccessToken = "other"

	assert.Equal(t, "at", a.AccessToken)
	assert.True(t, a.ExpiresAt.Equal(exp))
}
