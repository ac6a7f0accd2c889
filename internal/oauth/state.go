package oauth

import "strings"

const (
	intentRegister = "register"
	intentLink     = "link"
	linkPrefix     = "link:"
	guestUser      = "guest"
)

// Target is the local user a callback links the new account to.
type Target struct {
	Register  bool   // create a local user from the platform identity
	LocalUser string // empty when Register is set
}

// EncodeState builds the round-tripped state value for an authorization URL.
func EncodeState(user, intent string) string {
	user = strings.TrimSpace(user)
	switch {
	case intent == intentRegister:
		return intentRegister
	case intent == intentLink && user != "":
		return linkPrefix + user
	case user != "":
		return user
	default:
		return guestUser
	}
}

// DecodeState resolves the state echoed back on a callback.
func DecodeState(state string) Target {
	switch {
	case state == intentRegister:
		return Target{Register: true}
	case strings.HasPrefix(state, linkPrefix):
		if u := strings.TrimPrefix(state, linkPrefix); u != "" {
			return Target{LocalUser: u}
		}
		return Target{LocalUser: state}
	case state == "":
		return Target{LocalUser: guestUser}
	default:
		return Target{LocalUser: state}
	}
}
