package oauth

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEncodeState(t *testing.T) {
	tests := []struct {
		user, intent, want string
	}{
		{"alice", "", "alice"},
		{"alice", "link", "link:alice"},
		{"alice", "register", "register"},
		{"", "register", "register"},
		{"", "link", "guest"},
		{"", "", "guest"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, EncodeState(tt.user, tt.intent), "user=%q intent=%q", tt.user, tt.intent)
	}
}

func TestDecodeState(t *testing.T) {
	assert.Equal(t, Target{Register: true}, DecodeState("register"))
	assert.Equal(t, Target{LocalUser: "alice"}, DecodeState("link:alice"))
	assert.Equal(t, Target{LocalUser: "link:"}, DecodeState("link:"))
	assert.Equal(t, Target{LocalUser: "bob"}, DecodeState("bob"))
	assert.Equal(t, Target{LocalUser: "guest"}, DecodeState(""))
}
