package streams

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/brocker-tv/backend/internal/models"
)

var (
	// ErrSessionStopped is returned when a sample is appended to a stopped session.
	ErrSessionStopped = errors.New("session is stopped")
	// ErrSessionNotFound is returned when a sample is appended to an unknown session.
	ErrSessionNotFound = errors.New("session not found")
)

// Finalized is what Finalize stored for a session.
type Finalized struct {
	Peak       int
	Avg        float64
	FinalViews *int64
	// FirstStop is true when this call set stopped_at.
	FirstStop bool
}

const sessionColumns = `id, local_user, platform, started_at, stopped_at, peak_viewers, avg_viewers::float8, final_views, created_at`

// Repository is the session ledger: stream_sessions plus their stream_metrics samples.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a session ledger.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create opens a session row.
func (r *Repository) Create(ctx context.Context, localUser string, platform models.Platform, startedAt time.Time) (*models.StreamSession, error) {
	q := `INSERT INTO stream_sessions (local_user, platform, started_at) VALUES ($1, $2, $3) RETURNING ` + sessionColumns
	return scanSession(r.pool.QueryRow(ctx, q, localUser, string(platform), startedAt))
}

// GetByID returns a session, or nil if it does not exist.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.StreamSession, error) {
	s, err := scanSession(r.pool.QueryRow(ctx, `SELECT `+sessionColumns+` FROM stream_sessions WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return s, nil
}

// Append inserts a sample and raises peak_viewers if exceeded, in one
// statement. Nothing is written once stopped_at is set.
func (r *Repository) Append(ctx context.Context, sessionID uuid.UUID, ts time.Time, viewerCount int) error {
	const q = `WITH s AS (
			UPDATE stream_sessions SET peak_viewers = GREATEST(peak_viewers, $3), updated_at = NOW()
			WHERE id = $1 AND stopped_at IS NULL
			RETURNING id
		)
		INSERT INTO stream_metrics (session_id, ts, viewer_count) SELECT id, $2, $3 FROM s`
	tag, err := r.pool.Exec(ctx, q, sessionID, ts, viewerCount)
	if err != nil {
		return err
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	s, err := r.GetByID(ctx, sessionID)
	if err != nil {
		return err
	}
	if s == nil {
		return ErrSessionNotFound
	}
	return ErrSessionStopped
}

// CurrentPeak returns the running peak for a session (0 if unknown).
func (r *Repository) CurrentPeak(ctx context.Context, sessionID uuid.UUID) (int, error) {
	var peak int
	err := r.pool.QueryRow(ctx, `SELECT peak_viewers FROM stream_sessions WHERE id = $1`, sessionID).Scan(&peak)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	return peak, err
}

// ListSamples returns a session's samples in timestamp order.
func (r *Repository) ListSamples(ctx context.Context, sessionID uuid.UUID) ([]models.MetricSample, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, session_id, ts, viewer_count FROM stream_metrics WHERE session_id = $1 ORDER BY ts, id`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.MetricSample
	for rows.Next() {
		var m models.MetricSample
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Timestamp, &m.ViewerCount); err != nil {
			return nil, err
		}
		list = append(list, m)
	}
	return list, rows.Err()
}

// Finalize computes peak and average over all samples and writes them with
// stopped_at and finalViews. The first stop wins: once stopped_at is set, the
// stored final views are kept and returned. An unknown session yields zeros.
func (r *Repository) Finalize(ctx context.Context, sessionID uuid.UUID, stoppedAt time.Time, finalViews *int64) (*Finalized, error) {
	res := &Finalized{}
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		var prevStopped *time.Time
		var storedViews *int64
		// Lock the session row so a concurrent Append cannot slip in between read and write.
		err := tx.QueryRow(ctx, `SELECT stopped_at, final_views FROM stream_sessions WHERE id = $1 FOR UPDATE`, sessionID).
			Scan(&prevStopped, &storedViews)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		rows, err := tx.Query(ctx, `SELECT viewer_count FROM stream_metrics WHERE session_id = $1`, sessionID)
		if err != nil {
			return err
		}
		counts, err := pgx.CollectRows(rows, pgx.RowTo[int])
		if err != nil {
			return err
		}
		res.Peak, res.Avg = Aggregate(counts)
		res.FirstStop = prevStopped == nil
		res.FinalViews = finalViews
		if !res.FirstStop {
			res.FinalViews = storedViews
		}
		_, err = tx.Exec(ctx,
			`UPDATE stream_sessions SET stopped_at = COALESCE(stopped_at, $2), peak_viewers = $3, avg_viewers = $4, final_views = $5, updated_at = NOW() WHERE id = $1`,
			sessionID, stoppedAt, res.Peak, res.Avg, res.FinalViews)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("finalize session %s: %w", sessionID, err)
	}
	return res, nil
}

// ListByUser returns the most recent sessions of a local user.
func (r *Repository) ListByUser(ctx context.Context, localUser string, limit int) ([]models.StreamSession, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	rows, err := r.pool.Query(ctx,
		`SELECT `+sessionColumns+` FROM stream_sessions WHERE local_user = $1 ORDER BY started_at DESC LIMIT $2`, localUser, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.StreamSession
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *s)
	}
	return list, rows.Err()
}

func scanSession(row pgx.Row) (*models.StreamSession, error) {
	var s models.StreamSession
	var platform string
	if err := row.Scan(&s.ID, &s.LocalUser, &platform, &s.StartedAt, &s.StoppedAt, &s.PeakViewers, &s.AvgViewers, &s.FinalViews, &s.CreatedAt); err != nil {
		return nil, err
	}
	s.Platform = models.Platform(platform)
	return &s, nil
}
