//go:build integration

package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brocker-tv/backend/pkg/database/dbtest"
)

func TestRepository_CreatePasswordlessRefusesTakenName(t *testing.T) {
	repo := NewRepository(dbtest.NewPool(t))
	ctx := context.Background()

	_, err := repo.Create(ctx, "alice", "", "hash")
	require.NoError(t, err)

	u, err := repo.CreatePasswordless(ctx, "alice")
	assert.ErrorIs(t, err, ErrUserExists)
	assert.Nil(t, u)

	u, err = repo.CreatePasswordless(ctx, "steam_1")
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, "steam_1", u.Username)
	assert.Empty(t, u.PasswordHash)
}
