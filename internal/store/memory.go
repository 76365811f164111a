package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/taskboard/apiserver/types"
)

// MemoryUserRepository keeps user documents in process memory. It applies
// the same version and uniqueness rules as the database-backed stores.
type MemoryUserRepository struct {
	mu      sync.RWMutex
	users   map[uuid.UUID]types.User
	byEmail map[string]uuid.UUID
	now     func() time.Time
}

// NewMemoryUserRepository returns an empty in-process repository.
func NewMemoryUserRepository() *MemoryUserRepository {
	return &MemoryUserRepository{
		users:   make(map[uuid.UUID]types.User),
		byEmail: make(map[string]uuid.UUID),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// GetByID returns a copy of the user without the password hash.
func (r *MemoryUserRepository) GetByID(_ context.Context, id uuid.UUID) (types.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.users[id]
	if !ok {
		return types.User{}, ErrNotFound
	}
	user = user.Clone()
	user.PasswordHash = ""
	return user, nil
}

// GetByEmail returns a copy of the user including the password hash.
func (r *MemoryUserRepository) GetByEmail(_ context.Context, email string) (types.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byEmail[email]
	if !ok {
		return types.User{}, ErrNotFound
	}
	return r.users[id].Clone(), nil
}

// Create stores user at version 1, rejecting a taken email.
func (r *MemoryUserRepository) Create(_ context.Context, user types.User) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.byEmail[user.Email]; taken {
		return types.User{}, ErrEmailExists
	}
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	if _, exists := r.users[user.ID]; exists {
		return types.User{}, ErrDuplicate
	}
	if user.Tasks == nil {
		user.Tasks = types.NewTaskList()
	}
	now := r.now()
	user.Version = 1
	user.CreatedAt = now
	user.UpdatedAt = now

	r.users[user.ID] = user.Clone()
	r.byEmail[user.Email] = user.ID
	return user, nil
}

// Update replaces the user when its version matches the stored one.
func (r *MemoryUserRepository) Update(_ context.Context, user types.User) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.users[user.ID]
	if !ok {
		return types.User{}, ErrNotFound
	}
	if stored.Version != user.Version {
		return types.User{}, ErrVersionConflict
	}
	if owner, taken := r.byEmail[user.Email]; taken && owner != user.ID {
		return types.User{}, ErrEmailExists
	}
	if user.Tasks == nil {
		user.Tasks = types.NewTaskList()
	}

	user.PasswordHash = stored.PasswordHash
	user.CreatedAt = stored.CreatedAt
	user.UpdatedAt = r.now()
	user.Version = stored.Version + 1

	delete(r.byEmail, stored.Email)
	r.byEmail[user.Email] = user.ID
	r.users[user.ID] = user.Clone()

	user.PasswordHash = ""
	return user, nil
}

// List returns a page of users ordered by creation time.
func (r *MemoryUserRepository) List(_ context.Context, offset, limit int) ([]types.User, int, error) {
	offset, limit = normalizePage(offset, limit)

	r.mu.RLock()
	all := make([]types.User, 0, len(r.users))
	for _, user := range r.users {
		user = user.Clone()
		user.PasswordHash = ""
		all = append(all, user)
	}
	r.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID.String() < all[j].ID.String()
		}
		return all[i].CreatedAt.Before(all[j].CreatedAt)
	})

	total := len(all)
	if offset >= total {
		return []types.User{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}
