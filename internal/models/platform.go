package models

import "strings"

// Platform identifies a streaming platform an account can be linked to.
type Platform string

const (
	PlatformTwitch  Platform = "twitch"
	PlatformYouTube Platform = "youtube"
	PlatformSteam   Platform = "steam"
)

// ParsePlatform normalizes a client-supplied platform name. "google" is the
// YouTube login alias. Unknown names are kept as-is so a session can still be
// opened for them.
func ParsePlatform(s string) Platform {
	p := strings.ToLower(strings.TrimSpace(s))
	if p == "google" {
		return PlatformYouTube
	}
	return Platform(p)
}

// String implements fmt.Stringer.
func (p Platform) String() string { return string(p) }
