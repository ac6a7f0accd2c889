package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/brocker-tv/backend/internal/models"
)

// ErrUserExists is returned when the username or email is taken.
var ErrUserExists = errors.New("user already exists")

const userColumns = `id, username, email, password_hash, created_at`

// Repository handles user persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an auth repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetByID returns a user by ID, or nil if none exists.
func (r *Repository) GetByID(ctx context.Context, id int64) (*models.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

// GetByUsername returns a user by username, or nil if none exists.
func (r *Repository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE username = $1`, username)
}

// Exists reports whether username or (non-empty) email is taken.
func (r *Repository) Exists(ctx context.Context, username, email string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM users WHERE username = $1 OR ($2 <> '' AND email = $2))`,
		username, email).Scan(&exists)
	return exists, err
}

// Create inserts a new user. An empty email is stored as NULL.
func (r *Repository) Create(ctx context.Context, username, email, passwordHash string) (*models.User, error) {
	u, err := r.getOne(ctx,
		`INSERT INTO users (username, email, password_hash) VALUES ($1, NULLIF($2, ''), $3) RETURNING `+userColumns,
		username, strings.TrimSpace(email), passwordHash)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return nil, ErrUserExists
	}
	return u, err
}

// CreatePasswordless inserts a user without a password. It returns ErrUserExists when username is taken.
func (r *Repository) CreatePasswordless(ctx context.Context, username string) (*models.User, error) {
	u, err := r.getOne(ctx,
		`INSERT INTO users (username) VALUES ($1) ON CONFLICT (username) DO NOTHING RETURNING `+userColumns, username)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, ErrUserExists
	}
	return u, nil
}

func (r *Repository) getOne(ctx context.Context, q string, args ...interface{}) (*models.User, error) {
	var u models.User
	err := r.pool.QueryRow(ctx, q, args...).Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}
