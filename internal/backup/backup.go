// Package backup writes point-in-time snapshots of every account to object storage.
package backup

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/taskboard/apiserver/internal/storage"
	"github.com/taskboard/apiserver/types"
)

const (
	pageSize        = 100
	keyPrefix       = "backups"
	timestampLayout = "20060102T150405Z"
)

// Lister pages through stored users.
type Lister interface {
	List(ctx context.Context, offset, limit int) ([]types.User, int, error)
}

// Snapshot is the document written for each backup.
type Snapshot struct {
	TakenAt time.Time          `json:"takenAt"`
	Count   int                `json:"count"`
	Users   []types.PublicUser `json:"users"`
}

// Result describes a completed backup.
type Result struct {
	Bucket string
	Key    string
	Users  int
	Bytes  int
}

type Runner struct {
	users   Lister
	objects storage.ObjectStorage
	logger  *slog.Logger
}

// NewRunner creates a Runner that reads from users and writes to objects.
func NewRunner(users Lister, objects storage.ObjectStorage, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{users: users, objects: objects, logger: logger}
}

// Run collects every user and uploads one snapshot keyed by takenAt.
func (r *Runner) Run(ctx context.Context, takenAt time.Time) (Result, error) {
	takenAt = takenAt.UTC()

	users, err := r.collect(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("collect users: %w", err)
	}

	data, err := json.Marshal(Snapshot{TakenAt: takenAt, Count: len(users), Users: users})
	if err != nil {
		return Result{}, err
	}

	if err := r.objects.EnsureBucket(ctx); err != nil {
		return Result{}, fmt.Errorf("ensure bucket: %w", err)
	}

	key := ObjectKey(takenAt)
	if err := r.objects.Put(ctx, key, bytes.NewReader(data), int64(len(data)), "application/json"); err != nil {
		return Result{}, fmt.Errorf("upload %s: %w", key, err)
	}

	result := Result{Bucket: r.objects.Bucket(), Key: key, Users: len(users), Bytes: len(data)}
	r.logger.InfoContext(ctx, "backup written",
		"bucket", result.Bucket, "key", result.Key, "users", result.Users, "bytes", result.Bytes)
	return result, nil
}

func (r *Runner) collect(ctx context.Context) ([]types.PublicUser, error) {
	var users []types.PublicUser
	for offset := 0; ; offset += pageSize {
		page, total, err := r.users.List(ctx, offset, pageSize)
		if err != nil {
			return nil, err
		}
		if users == nil {
			users = make([]types.PublicUser, 0, total)
		}
		for _, user := range page {
			users = append(users, user.Public())
		}
		if len(page) < pageSize || offset+len(page) >= total {
			return users, nil
		}
	}
}

// ObjectKey returns the storage key for a snapshot taken at t.
func ObjectKey(t time.Time) string {
	return fmt.Sprintf("%s/%s/users.json", keyPrefix, t.UTC().Format(timestampLayout))
}
