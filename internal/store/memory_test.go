package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/taskboard/apiserver/types"
)

func TestMemoryUserRepositoryLifecycle(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryUserRepository()

	created, err := repo.Create(ctx, types.User{Name: "Ana", Email: "ana@x.com", PasswordHash: "hash"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), created.Version)

	_, err = repo.Create(ctx, types.User{Name: "Ana 2", Email: "ana@x.com", PasswordHash: "hash"})
	assert.ErrorIs(t, err, ErrEmailExists)

	byID, err := repo.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Empty(t, byID.PasswordHash)

	withCreds, err := repo.GetByEmail(ctx, "ana@x.com")
	require.NoError(t, err)
	assert.Equal(t, "hash", withCreds.PasswordHash)

	byID.Tasks.Append(types.Task{ID: uuid.New(), Title: "t", Description: "d", CreatedAt: time.Now()})
	saved, err := repo.Update(ctx, byID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), saved.Version)

	again, err := repo.GetByEmail(ctx, "ana@x.com")
	require.NoError(t, err)
	assert.Equal(t, "hash", again.PasswordHash, "update must not drop the password hash")
	assert.Equal(t, 1, again.Tasks.Len())
}

func TestMemoryUserRepositoryRejectsStaleVersion(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryUserRepository()

	created, err := repo.Create(ctx, types.User{Name: "Ana", Email: "ana@x.com"})
	require.NoError(t, err)

	first, err := repo.GetByID(ctx, created.ID)
	require.NoError(t, err)
	second, err := repo.GetByID(ctx, created.ID)
	require.NoError(t, err)

	_, err = repo.Update(ctx, first)
	require.NoError(t, err)

	_, err = repo.Update(ctx, second)
	assert.ErrorIs(t, err, ErrVersionConflict)

	_, err = repo.Update(ctx, types.User{ID: uuid.New()})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryUserRepositoryReturnsCopies(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryUserRepository()

	created, err := repo.Create(ctx, types.User{Name: "Ana", Email: "ana@x.com"})
	require.NoError(t, err)

	loaded, err := repo.GetByID(ctx, created.ID)
	require.NoError(t, err)
	loaded.Tasks.Append(types.Task{ID: uuid.New()})

	fresh, err := repo.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, fresh.Tasks.Len())
}

func TestMemoryUserRepositoryListPages(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryUserRepository()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	repo.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Minute)
	}

	for _, email := range []string{"a@x.com", "b@x.com", "c@x.com"} {
		_, err := repo.Create(ctx, types.User{Name: email, Email: email, PasswordHash: "h"})
		require.NoError(t, err)
	}

	page, total, err := repo.List(ctx, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, page, 1)
	assert.Equal(t, "b@x.com", page[0].Email)
	assert.Empty(t, page[0].PasswordHash)

	empty, _, err := repo.List(ctx, 10, 5)
	require.NoError(t, err)
	assert.Empty(t, empty)
}
