package accounts

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/brocker-tv/backend/internal/models"
)

const accountColumns = `id, local_user, platform, platform_userid, client_id, access_token, refresh_token, expires_at, created_at`

// Repository handles linked platform accounts.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an accounts repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create stores a newly linked account.
func (r *Repository) Create(ctx context.Context, a *models.Account) (*models.Account, error) {
	q := `INSERT INTO accounts (local_user, platform, platform_userid, client_id, access_token, refresh_token, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING ` + accountColumns
	row := r.pool.QueryRow(ctx, q, a.LocalUser, string(a.Platform), a.PlatformUserID, a.ClientID, a.AccessToken, a.RefreshToken, a.ExpiresAt)
	return scanAccount(row)
}

// GetByUserAndPlatform returns the newest account for (localUser, platform), or nil if none is linked.
func (r *Repository) GetByUserAndPlatform(ctx context.Context, localUser string, platform models.Platform) (*models.Account, error) {
	q := `SELECT ` + accountColumns + ` FROM accounts WHERE local_user = $1 AND platform = $2 ORDER BY created_at DESC, id DESC LIMIT 1`
	a, err := scanAccount(r.pool.QueryRow(ctx, q, localUser, string(platform)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return a, nil
}

// GetByPlatformIdentity returns the newest account linking (platform, platformUserID) to any local user, or nil.
func (r *Repository) GetByPlatformIdentity(ctx context.Context, platform models.Platform, platformUserID string) (*models.Account, error) {
	q := `SELECT ` + accountColumns + ` FROM accounts WHERE platform = $1 AND platform_userid = $2 ORDER BY created_at DESC, id DESC LIMIT 1`
	a, err := scanAccount(r.pool.QueryRow(ctx, q, string(platform), platformUserID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return a, nil
}

// ListByUser returns every account linked to localUser.
func (r *Repository) ListByUser(ctx context.Context, localUser string) ([]models.Account, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+accountColumns+` FROM accounts WHERE local_user = $1 ORDER BY created_at`, localUser)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *a)
	}
	return list, rows.Err()
}

// DeleteByUserAndPlatform unlinks every account of localUser on platform and returns the number removed.
func (r *Repository) DeleteByUserAndPlatform(ctx context.Context, localUser string, platform models.Platform) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM accounts WHERE local_user = $1 AND platform = $2`, localUser, string(platform))
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// UpdateTokens persists a refreshed token set.
func (r *Repository) UpdateTokens(ctx context.Context, id int64, accessToken, refreshToken string, expiresAt *time.Time) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE accounts SET access_token = $1, refresh_token = $2, expires_at = $3 WHERE id = $4`,
		accessToken, refreshToken, expiresAt, id)
	return err
}

func scanAccount(row pgx.Row) (*models.Account, error) {
	var a models.Account
	var platform string
	if err := row.Scan(&a.ID, &a.LocalUser, &platform, &a.PlatformUserID, &a.ClientID, &a.AccessToken, &a.RefreshToken, &a.ExpiresAt, &a.CreatedAt); err != nil {
		return nil, err
	}
	a.Platform = models.Platform(platform)
	return &a, nil
}
