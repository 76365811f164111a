package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/taskboard/apiserver/internal/events"
	"github.com/taskboard/apiserver/internal/store"
	"github.com/taskboard/apiserver/types"
	"golang.org/x/crypto/bcrypt"
)

const (
	maxMutationAttempts = 5

	// bcrypt only hashes the first 72 bytes of a password.
	maxPasswordBytes = 72
)

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// UserRepository defines persistence operations for user documents.
type UserRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (types.User, error)
	GetByEmail(ctx context.Context, email string) (types.User, error)
	Create(ctx context.Context, user types.User) (types.User, error)
	Update(ctx context.Context, user types.User) (types.User, error)
}

// EventPublisher receives an event after each committed write.
type EventPublisher interface {
	Publish(ctx context.Context, event events.Event) error
}

type registration struct {
	Name     string `validate:"min=3,max=50"`
	Email    string `validate:"account_email"`
	Password string `validate:"min=8,password_bytes"`
}

var registrationMessages = map[string]string{
	"Name":     "Name must be between 3 and 50 characters",
	"Email":    "Invalid email address",
	"Password": "Password must be at least 8 characters",
}

var tagMessages = map[string]string{
	"password_bytes": "Password must be at most 72 bytes",
}

func registrationMessage(fe validator.FieldError) string {
	if message, ok := tagMessages[fe.Tag()]; ok {
		return message
	}
	return registrationMessages[fe.Field()]
}

// AccountService encapsulates registration, login and task use-cases.
type AccountService struct {
	repo     UserRepository
	events   EventPublisher
	logger   *slog.Logger
	validate *validator.Validate
	now      func() time.Time
}

// NewAccountService wires the account use-cases over repo. A nil publisher
// drops events.
func NewAccountService(repo UserRepository, publisher EventPublisher, logger *slog.Logger) *AccountService {
	if publisher == nil {
		publisher = events.Discard{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	validate := validator.New()
	mustRegister(validate, "account_email", func(fl validator.FieldLevel) bool {
		return emailPattern.MatchString(fl.Field().String())
	})
	mustRegister(validate, "password_bytes", func(fl validator.FieldLevel) bool {
		return len(fl.Field().String()) <= maxPasswordBytes
	})

	return &AccountService{
		repo:     repo,
		events:   publisher,
		logger:   logger,
		validate: validate,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Register creates an account with an empty task list.
func (s *AccountService) Register(ctx context.Context, name, email, password string) (types.User, error) {
	name = strings.TrimSpace(name)
	email = normalizeEmail(email)
	if name == "" || email == "" || password == "" {
		return types.User{}, invalid("Name, email, and password are required")
	}

	if err := s.validate.Struct(registration{Name: name, Email: email, Password: password}); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return types.User{}, invalid(registrationMessage(verrs[0]))
		}
		return types.User{}, err
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return types.User{}, fmt.Errorf("hash password: %w", err)
	}

	user, err := s.repo.Create(ctx, types.User{
		Name:         name,
		Email:        email,
		PasswordHash: string(hashed),
		Tasks:        types.NewTaskList(),
	})
	if err != nil {
		if errors.Is(err, store.ErrEmailExists) {
			return types.User{}, ErrEmailTaken
		}
		return types.User{}, err
	}

	s.publish(ctx, events.New(events.UserRegistered, user.ID))
	user.PasswordHash = ""
	return user, nil
}

// Login checks the password for the account registered under email.
func (s *AccountService) Login(ctx context.Context, email, password string) (types.User, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return types.User{}, invalid("Email and password are required")
	}

	user, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.User{}, ErrUserNotFound
		}
		return types.User{}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return types.User{}, ErrInvalidCredentials
	}

	user.PasswordHash = ""
	return user, nil
}

// Profile loads the account without credentials.
func (s *AccountService) Profile(ctx context.Context, userID uuid.UUID) (types.User, error) {
	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.User{}, ErrUserNotFound
		}
		return types.User{}, err
	}
	return user, nil
}

// CreateTask appends a new incomplete task and returns it as stored.
func (s *AccountService) CreateTask(ctx context.Context, userID uuid.UUID, title, description string) (types.Task, error) {
	if strings.TrimSpace(title) == "" || strings.TrimSpace(description) == "" {
		return types.Task{}, invalid("Title and description are required")
	}

	task := types.Task{
		ID:          uuid.New(),
		Title:       title,
		Description: description,
		CreatedAt:   s.now(),
	}

	saved, err := s.mutate(ctx, userID, func(user *types.User) error {
		if !user.Tasks.Append(task) {
			return fmt.Errorf("task %s already exists", task.ID)
		}
		return nil
	})
	if err != nil {
		return types.Task{}, err
	}

	stored := task
	if saved.Tasks != nil {
		if persisted, ok := saved.Tasks.Get(task.ID); ok {
			stored = persisted
		}
	}

	s.publish(ctx, events.New(events.TaskCreated, userID).ForTask(task.ID))
	return stored, nil
}

// UpdateTask applies the fields present in patch to the task. A malformed
// task id is reported as a missing task.
func (s *AccountService) UpdateTask(ctx context.Context, userID uuid.UUID, taskID string, patch types.TaskPatch) (types.Task, error) {
	if patch.Title != nil && strings.TrimSpace(*patch.Title) == "" {
		return types.Task{}, invalid("Title cannot be empty")
	}
	if patch.Description != nil && strings.TrimSpace(*patch.Description) == "" {
		return types.Task{}, invalid("Description cannot be empty")
	}

	id, parseErr := uuid.Parse(taskID)

	if patch.Empty() {
		user, err := s.Profile(ctx, userID)
		if err != nil {
			return types.Task{}, err
		}
		task, ok := user.Tasks.Get(id)
		if parseErr != nil || !ok {
			return types.Task{}, ErrTaskNotFound
		}
		return task, nil
	}

	var updated types.Task
	if _, err := s.mutate(ctx, userID, func(user *types.User) error {
		if parseErr != nil {
			return ErrTaskNotFound
		}
		task, ok := user.Tasks.Patch(id, patch)
		if !ok {
			return ErrTaskNotFound
		}
		updated = task
		return nil
	}); err != nil {
		return types.Task{}, err
	}

	s.publish(ctx, events.New(events.TaskUpdated, userID).ForTask(id))
	return updated, nil
}

// DeleteTask removes the task, keeping the order of the remaining tasks.
func (s *AccountService) DeleteTask(ctx context.Context, userID uuid.UUID, taskID string) error {
	id, parseErr := uuid.Parse(taskID)

	if _, err := s.mutate(ctx, userID, func(user *types.User) error {
		if parseErr != nil || !user.Tasks.Remove(id) {
			return ErrTaskNotFound
		}
		return nil
	}); err != nil {
		return err
	}

	s.publish(ctx, events.New(events.TaskDeleted, userID).ForTask(id))
	return nil
}

// mutate loads the user, applies fn and saves the document. A save that
// loses a version race is retried on a fresh copy.
func (s *AccountService) mutate(ctx context.Context, userID uuid.UUID, fn func(*types.User) error) (types.User, error) {
	for attempt := 1; attempt <= maxMutationAttempts; attempt++ {
		user, err := s.Profile(ctx, userID)
		if err != nil {
			return types.User{}, err
		}
		if user.Tasks == nil {
			user.Tasks = types.NewTaskList()
		}

		if err := fn(&user); err != nil {
			return types.User{}, err
		}

		saved, err := s.repo.Update(ctx, user)
		switch {
		case err == nil:
			return saved, nil
		case errors.Is(err, store.ErrVersionConflict):
			s.logger.DebugContext(ctx, "retrying user update after version conflict",
				"user_id", userID, "attempt", attempt)
			continue
		case errors.Is(err, store.ErrNotFound):
			return types.User{}, ErrUserNotFound
		default:
			return types.User{}, err
		}
	}
	return types.User{}, ErrConcurrentUpdate
}

func (s *AccountService) publish(ctx context.Context, event events.Event) {
	if err := s.events.Publish(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "failed to publish event",
			"type", event.Type, "user_id", event.UserID, "error", err)
	}
}

func mustRegister(validate *validator.Validate, tag string, fn validator.Func) {
	if err := validate.RegisterValidation(tag, fn); err != nil {
		panic(fmt.Sprintf("register %s validation: %v", tag, err))
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
