//go:build integration

package repository

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/cloo-solutions/copilot/internal/domain"
	"github.com/cloo-solutions/copilot/internal/testutil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAPIKeyRepository_Lifecycle(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	keyRepo := NewAPIKeyRepository(pool)

	key := &domain.APIKey{
		ID:        uuid.NewString(),
		Name:      "chat-gateway",
		KeyHash:   strings.Repeat("ab", 32),
		Roles:     []string{"gateway", "auditor"},
		CreatedAt: time.Now().UTC().Truncate(time.Microsecond),
	}
	require.NoError(t, keyRepo.Create(ctx, key))

	retrieved, err := keyRepo.GetByID(ctx, key.ID)
	require.NoError(t, err)
	assert.Equal(t, key.Name, retrieved.Name)
	assert.Equal(t, key.Roles, retrieved.Roles)
	assert.Nil(t, retrieved.RevokedAt)
	assert.Nil(t, retrieved.LastUsedAt)

	byHash, err := keyRepo.GetByHash(ctx, key.KeyHash)
	require.NoError(t, err)
	assert.Equal(t, key.ID, byHash.ID)

	dup := *key
	dup.ID = uuid.NewString()
	assert.ErrorIs(t, keyRepo.Create(ctx, &dup), domain.ErrAPIKeyAlreadyExists)

	used := key.CreatedAt.Add(time.Minute)
	require.NoError(t, keyRepo.Touch(ctx, key.ID, used))
	require.NoError(t, keyRepo.Touch(ctx, key.ID, key.CreatedAt), "an older touch is ignored")

	keys, err := keyRepo.List(ctx)
	require.NoError(t, err)
	require.Len(t, keys, 1)
	require.NotNil(t, keys[0].LastUsedAt)
	assert.True(t, used.Equal(*keys[0].LastUsedAt))

	require.NoError(t, keyRepo.Revoke(ctx, key.ID))
	assert.ErrorIs(t, keyRepo.Revoke(ctx, key.ID), domain.ErrAPIKeyNotFound)

	revoked, err := keyRepo.GetByID(ctx, key.ID)
	require.NoError(t, err)
	assert.True(t, revoked.IsRevoked())
}

func TestAPIKeyRepository_NotFound(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	keyRepo := NewAPIKeyRepository(pool)

	_, err := keyRepo.GetByHash(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrAPIKeyNotFound)

	_, err = keyRepo.GetByID(ctx, "not-a-uuid")
	assert.ErrorIs(t, err, domain.ErrAPIKeyNotFound)
}
