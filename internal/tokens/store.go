// Package tokens keeps linked-account OAuth tokens usable for the viewer poll loop.
package tokens

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/brocker-tv/backend/internal/models"
)

// DefaultSkew is how close to expiry a token may get before it is refreshed.
const DefaultSkew = 30 * time.Second

// TokenWriter persists a refreshed token set.
type TokenWriter interface {
	UpdateTokens(ctx context.Context, id int64, accessToken, refreshToken string, expiresAt *time.Time) error
}

// Store refreshes near-expiry tokens before use.
type Store struct {
	writer     TokenWriter
	refreshers map[models.Platform]Refresher
	skew       time.Duration
	now        func() time.Time
	logger     *zap.Logger
}

// NewStore creates a token store. skew <= 0 uses DefaultSkew.
func NewStore(writer TokenWriter, refreshers map[models.Platform]Refresher, skew time.Duration, logger *zap.Logger) *Store {
	if skew <= 0 {
		skew = DefaultSkew
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if refreshers == nil {
		refreshers = map[models.Platform]Refresher{}
	}
	return &Store{writer: writer, refreshers: refreshers, skew: skew, now: time.Now, logger: logger}
}

// EnsureValid returns an account whose token is valid for at least the skew
// window, refreshing it when the expiry is unknown or too close. Any failure
// (no refresher for the platform, no refresh token, upstream or storage error)
// is logged and the original account is returned unchanged.
func (s *Store) EnsureValid(ctx context.Context, account *models.Account) *models.Account {
	if account == nil || !account.ExpiresWithin(s.now(), s.skew) {
		return account
	}
	refresher, ok := s.refreshers[account.Platform]
	if !ok {
		return account
	}
	tok, err := refresher.Refresh(ctx, account)
	if err != nil {
		s.logger.Warn("token refresh failed, using stale token",
			zap.Int64("account_id", account.ID),
			zap.String("platform", account.Platform.String()),
			zap.Error(err))
		return account
	}

	updated := account.Clone()
	updated.AccessToken = tok.AccessToken
	updated.RefreshToken = tok.RefreshToken
	updated.ExpiresAt = nil
	if !tok.Expiry.IsZero() {
		exp := tok.Expiry
		updated.ExpiresAt = &exp
	}
	if err := s.writer.UpdateTokens(ctx, updated.ID, updated.AccessToken, updated.RefreshToken, updated.ExpiresAt); err != nil {
		// The fresh token is still good for this call; the next tick refreshes again.
		s.logger.Warn("persist refreshed token failed", zap.Int64("account_id", account.ID), zap.Error(err))
	}
	s.logger.Debug("token refreshed", zap.Int64("account_id", account.ID), zap.String("platform", account.Platform.String()))
	return updated
}
