package backup

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/taskboard/apiserver/internal/logger"
	"github.com/taskboard/apiserver/internal/store"
	"github.com/taskboard/apiserver/types"
)

type fakeObjects struct {
	ensured     bool
	ensureErr   error
	objects     map[string][]byte
	contentType string
}

func (f *fakeObjects) EnsureBucket(context.Context) error {
	f.ensured = true
	return f.ensureErr
}

func (f *fakeObjects) Put(_ context.Context, key string, r io.Reader, size int64, contentType string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	if int64(len(data)) != size {
		return fmt.Errorf("size mismatch: %d != %d", len(data), size)
	}
	if f.objects == nil {
		f.objects = make(map[string][]byte)
	}
	f.objects[key] = data
	f.contentType = contentType
	return nil
}

func (f *fakeObjects) Bucket() string { return "taskboard-backups" }

func seedUsers(t *testing.T, n int) *store.MemoryUserRepository {
	t.Helper()
	repo := store.NewMemoryUserRepository()
	for i := 0; i < n; i++ {
		email := fmt.Sprintf("user%03d@x.com", i)
		_, err := repo.Create(context.Background(), types.User{Name: "User", Email: email, PasswordHash: "secret-hash"})
		require.NoError(t, err)
	}
	return repo
}

func TestRunWritesSnapshot(t *testing.T) {
	repo := seedUsers(t, pageSize+5)
	objects := &fakeObjects{}
	takenAt := time.Date(2026, 10, 15, 8, 30, 0, 0, time.UTC)

	result, err := NewRunner(repo, objects, logger.Discard()).Run(context.Background(), takenAt)
	require.NoError(t, err)

	assert.True(t, objects.ensured)
	assert.Equal(t, "backups/20261015T083000Z/users.json", result.Key)
	assert.Equal(t, pageSize+5, result.Users)
	assert.Equal(t, "application/json", objects.contentType)

	data := objects.objects[result.Key]
	require.NotEmpty(t, data)
	assert.False(t, bytes.Contains(data, []byte("secret-hash")))

	var snapshot Snapshot
	require.NoError(t, json.Unmarshal(data, &snapshot))
	assert.Equal(t, pageSize+5, snapshot.Count)
	assert.Len(t, snapshot.Users, pageSize+5)
	assert.True(t, snapshot.TakenAt.Equal(takenAt))
}

func TestRunEmptyStore(t *testing.T) {
	objects := &fakeObjects{}

	result, err := NewRunner(store.NewMemoryUserRepository(), objects, logger.Discard()).
		Run(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, 0, result.Users)
	assert.Contains(t, string(objects.objects[result.Key]), `"users":[]`)
}

func TestRunStopsWhenBucketUnavailable(t *testing.T) {
	objects := &fakeObjects{ensureErr: errors.New("access denied")}

	_, err := NewRunner(seedUsers(t, 1), objects, logger.Discard()).Run(context.Background(), time.Now())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "access denied")
	assert.Empty(t, objects.objects)
}
