package models

import (
	"time"

	"github.com/google/uuid"
)

// SessionState is the lifecycle state of a stream session.
type SessionState string

const (
	// SessionPending: created, no poller bound (no linked account or no metrics adapter).
	SessionPending SessionState = "pending"
	// SessionPolling: recurring viewer-count poll is active.
	SessionPolling SessionState = "polling"
	// SessionStopped is terminal.
	SessionStopped SessionState = "stopped"
)

// StreamSession is one tracked start-to-stop interval of a user's stream on a platform.
type StreamSession struct {
	ID          uuid.UUID  `json:"id"`
	LocalUser   string     `json:"local_user"`
	Platform    Platform   `json:"platform"`
	StartedAt   time.Time  `json:"started_at"`
	StoppedAt   *time.Time `json:"stopped_at,omitempty"`
	PeakViewers int        `json:"peak_viewers"`
	AvgViewers  float64    `json:"avg_viewers"`
	FinalViews  *int64     `json:"final_views,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// MetricSample is one viewer-count observation. Never mutated after insertion.
type MetricSample struct {
	ID          int64     `json:"id"`
	SessionID   uuid.UUID `json:"session_id"`
	Timestamp   time.Time `json:"ts"`
	ViewerCount int       `json:"viewer_count"`
}

// Summary is computed when a session stops. SessionID echoes the id as sent,
// so an id that names no session still gets an all-zero summary.
type Summary struct {
	SessionID  string  `json:"sessionId"`
	Peak       int     `json:"peak"`
	Avg        float64 `json:"avg"`
	FinalViews *int64  `json:"finalViews"`
}
