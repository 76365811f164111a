package services

import (
	"errors"
	"fmt"

	"github.com/taskboard/apiserver/internal/store"
)

var (
	ErrValidation         = errors.New("validation failed")
	ErrEmailTaken         = fmt.Errorf("user already exists: %w", store.ErrEmailExists)
	ErrUserNotFound       = errors.New("user not found")
	ErrTaskNotFound       = errors.New("task not found")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrConcurrentUpdate   = errors.New("concurrent update")
)

// ValidationError carries a client-facing message and matches ErrValidation.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// Is reports ValidationError as ErrValidation for errors.Is.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func invalid(message string) error {
	return &ValidationError{Message: message}
}
