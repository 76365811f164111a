package types

import (
	"time"

	"github.com/google/uuid"
)

// User represents an account in the system.
// It holds credentials and the user's embedded task list.
type User struct {
	// ID is the unique identifier of the user.
	ID uuid.UUID `json:"id"`

	// Name is the user's display name.
	Name string `json:"name"`

	// Email is the user's lowercased email address. It is unique across users.
	Email string `json:"email"`

	// PasswordHash stores the bcrypt hash of the user's password.
	// It is only populated by credential lookups and never exposed in API responses.
	PasswordHash string `json:"-"`

	// Tasks is the ordered collection of tasks owned by the user.
	Tasks *TaskList `json:"tasks"`

	// Version is incremented on every save and guards against lost updates.
	Version int64 `json:"-"`

	// CreatedAt is the timestamp when the user account was created.
	CreatedAt time.Time `json:"createdAt"`

	// UpdatedAt is the timestamp of the most recent write to the user document.
	UpdatedAt time.Time `json:"updatedAt"`
}

// PublicUser is the projection of a User returned by the auth endpoints.
type PublicUser struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	Email string    `json:"email"`
	Tasks *TaskList `json:"tasks"`
}

// Public returns the client-safe projection of the user.
func (u User) Public() PublicUser {
	tasks := u.Tasks
	if tasks == nil {
		tasks = NewTaskList()
	}
	return PublicUser{
		ID:    u.ID,
		Name:  u.Name,
		Email: u.Email,
		Tasks: tasks,
	}
}

// Clone returns a deep copy of the user, including its task list.
func (u User) Clone() User {
	if u.Tasks != nil {
		u.Tasks = u.Tasks.Clone()
	}
	return u
}
