//go:build integration

package streams

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brocker-tv/backend/internal/models"
	"github.com/brocker-tv/backend/pkg/database/dbtest"
)

func TestRepository_Lifecycle(t *testing.T) {
	repo := NewRepository(dbtest.NewPool(t))
	ctx := context.Background()
	start := time.Now().UTC().Truncate(time.Second)

	s, err := repo.Create(ctx, "alice", models.PlatformTwitch, start)
	require.NoError(t, err)
	assert.Nil(t, s.StoppedAt)

	for i, n := range []int{12, 15, 9} {
		require.NoError(t, repo.Append(ctx, s.ID, start.Add(time.Duration(i)*15*time.Second), n))
	}
	peak, err := repo.CurrentPeak(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, 15, peak)

	views := int64(500)
	first, err := repo.Finalize(ctx, s.ID, start.Add(time.Minute), &views)
	require.NoError(t, err)
	assert.Equal(t, 15, first.Peak)
	assert.Equal(t, 12.0, first.Avg)
	assert.True(t, first.FirstStop)
	require.NotNil(t, first.FinalViews)
	assert.Equal(t, int64(500), *first.FinalViews)

	assert.ErrorIs(t, repo.Append(ctx, s.ID, start.Add(2*time.Minute), 99), ErrSessionStopped)

	again, err := repo.Finalize(ctx, s.ID, start.Add(time.Hour), nil)
	require.NoError(t, err)
	assert.False(t, again.FirstStop)
	assert.Equal(t, first.Peak, again.Peak)
	assert.Equal(t, first.Avg, again.Avg)
	assert.Equal(t, first.FinalViews, again.FinalViews, "stored final views are kept")

	got, err := repo.GetByID(ctx, s.ID)
	require.NoError(t, err)
	require.NotNil(t, got.StoppedAt)
	assert.True(t, got.StoppedAt.Equal(start.Add(time.Minute)), "first stop time wins")
	require.NotNil(t, got.FinalViews)
	assert.Equal(t, int64(500), *got.FinalViews)

	samples, err := repo.ListSamples(ctx, s.ID)
	require.NoError(t, err)
	require.Len(t, samples, 3)
	assert.Equal(t, 9, samples[2].ViewerCount)
}

func TestRepository_UnknownSession(t *testing.T) {
	repo := NewRepository(dbtest.NewPool(t))
	ctx := context.Background()
	id := uuid.New()

	got, err := repo.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, got)

	assert.ErrorIs(t, repo.Append(ctx, id, time.Now(), 1), ErrSessionNotFound)

	res, err := repo.Finalize(ctx, id, time.Now(), nil)
	require.NoError(t, err)
	assert.Zero(t, res.Peak)
	assert.Zero(t, res.Avg)
	assert.False(t, res.FirstStop)
}

func TestRepository_ListByUserNewestFirst(t *testing.T) {
	repo := NewRepository(dbtest.NewPool(t))
	ctx := context.Background()
	base := time.Now().UTC()

	older, err := repo.Create(ctx, "bob", models.PlatformYouTube, base.Add(-time.Hour))
	require.NoError(t, err)
	newer, err := repo.Create(ctx, "bob", models.PlatformTwitch, base)
	require.NoError(t, err)
	_, err = repo.Create(ctx, "carol", models.PlatformTwitch, base)
	require.NoError(t, err)

	list, err := repo.ListByUser(ctx, "bob", 10)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, newer.ID, list[0].ID)
	assert.Equal(t, older.ID, list[1].ID)
}
