package userstate

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository stores one JSON document per local user.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a user state repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Get returns the stored state, or nil when the user has none.
func (r *Repository) Get(ctx context.Context, localUser string) (json.RawMessage, error) {
	var state []byte
	err := r.pool.QueryRow(ctx, `SELECT state_json FROM user_states WHERE local_user = $1`, localUser).Scan(&state)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return state, nil
}

// Put replaces the stored state.
func (r *Repository) Put(ctx context.Context, localUser string, state json.RawMessage) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO user_states (local_user, state_json, updated_at) VALUES ($1, $2, NOW())
		 ON CONFLICT (local_user) DO UPDATE SET state_json = EXCLUDED.state_json, updated_at = NOW()`,
		localUser, string(state))
	return err
}
