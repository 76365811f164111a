package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/taskboard/apiserver/types"
)

const uniqueViolation = "23505"

// UserRepository persists user documents in PostgreSQL. Tasks live in a
// JSONB column and are always written together with the owning user.
type UserRepository struct {
	db *sql.DB
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

// GetByID loads a user without the password hash.
func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (types.User, error) {
	const query = `
		SELECT id, name, email, tasks, version, created_at, updated_at
		FROM users
		WHERE id = $1`
	var user types.User
	var tasksJSON []byte
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&user.ID,
		&user.Name,
		&user.Email,
		&tasksJSON,
		&user.Version,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.User{}, ErrNotFound
		}
		return types.User{}, err
	}

	if user.Tasks, err = decodeTasks(tasksJSON); err != nil {
		return types.User{}, err
	}
	return user, nil
}

// GetByEmail loads a user including the password hash.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (types.User, error) {
	const query = `
		SELECT id, name, email, password_hash, tasks, version, created_at, updated_at
		FROM users
		WHERE email = $1`
	var user types.User
	var tasksJSON []byte
	err := r.db.QueryRowContext(ctx, query, email).Scan(
		&user.ID,
		&user.Name,
		&user.Email,
		&user.PasswordHash,
		&tasksJSON,
		&user.Version,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.User{}, ErrNotFound
		}
		return types.User{}, err
	}

	if user.Tasks, err = decodeTasks(tasksJSON); err != nil {
		return types.User{}, err
	}
	return user, nil
}

// Create inserts user at version 1. A unique violation on email maps to ErrEmailExists.
func (r *UserRepository) Create(ctx context.Context, user types.User) (types.User, error) {
	now := time.Now().UTC()
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	if user.Tasks == nil {
		user.Tasks = types.NewTaskList()
	}
	user.Version = 1
	user.CreatedAt = now
	user.UpdatedAt = now

	tasksJSON, err := json.Marshal(user.Tasks)
	if err != nil {
		return types.User{}, err
	}

	const query = `
		INSERT INTO users (id, name, email, password_hash, tasks, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	if _, err := r.db.ExecContext(
		ctx,
		query,
		user.ID,
		user.Name,
		user.Email,
		user.PasswordHash,
		tasksJSON,
		user.Version,
		user.CreatedAt,
		user.UpdatedAt,
	); err != nil {
		if isUniqueViolation(err) {
			return types.User{}, ErrEmailExists
		}
		return types.User{}, err
	}
	return user, nil
}

// Update saves the whole user document except the password hash. The write
// only succeeds if the stored version still equals user.Version.
func (r *UserRepository) Update(ctx context.Context, user types.User) (types.User, error) {
	user.UpdatedAt = time.Now().UTC()
	if user.Tasks == nil {
		user.Tasks = types.NewTaskList()
	}

	tasksJSON, err := json.Marshal(user.Tasks)
	if err != nil {
		return types.User{}, err
	}

	const query = `
		UPDATE users
		SET name = $1,
			email = $2,
			tasks = $3,
			version = version + 1,
			updated_at = $4
		WHERE id = $5 AND version = $6`
	result, err := r.db.ExecContext(
		ctx,
		query,
		user.Name,
		user.Email,
		tasksJSON,
		user.UpdatedAt,
		user.ID,
		user.Version,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return types.User{}, ErrEmailExists
		}
		return types.User{}, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return types.User{}, err
	}
	if affected == 0 {
		return types.User{}, r.missOrConflict(ctx, user.ID)
	}

	user.Version++
	return user, nil
}

// List returns a page of users ordered by creation time, without password hashes.
func (r *UserRepository) List(ctx context.Context, offset, limit int) ([]types.User, int, error) {
	offset, limit = normalizePage(offset, limit)

	const countQuery = `SELECT COUNT(1) FROM users`
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery).Scan(&total); err != nil {
		return nil, 0, err
	}

	const listQuery = `
		SELECT id, name, email, tasks, version, created_at, updated_at
		FROM users
		ORDER BY created_at, id
		OFFSET $1 LIMIT $2`
	rows, err := r.db.QueryContext(ctx, listQuery, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	users := make([]types.User, 0, limit)
	for rows.Next() {
		var user types.User
		var tasksJSON []byte
		if err := rows.Scan(
			&user.ID,
			&user.Name,
			&user.Email,
			&tasksJSON,
			&user.Version,
			&user.CreatedAt,
			&user.UpdatedAt,
		); err != nil {
			return nil, 0, err
		}
		if user.Tasks, err = decodeTasks(tasksJSON); err != nil {
			return nil, 0, err
		}
		users = append(users, user)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return users, total, nil
}

func (r *UserRepository) missOrConflict(ctx context.Context, id uuid.UUID) error {
	const query = `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`
	var exists bool
	if err := r.db.QueryRowContext(ctx, query, id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}
	return ErrVersionConflict
}

func decodeTasks(data []byte) (*types.TaskList, error) {
	tasks := types.NewTaskList()
	if len(data) == 0 {
		return tasks, nil
	}
	if err := json.Unmarshal(data, tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}
