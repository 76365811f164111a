package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/taskboard/apiserver/internal/services"
)

const (
	msgUnauthorized   = "Unauthorized"
	msgInternal       = "Internal server error"
	msgInvalidBody    = "Invalid request body"
	msgUserExists     = "User already exists"
	msgUserNotFound   = "User not found"
	msgTaskNotFound   = "Task not found"
	msgBadCredentials = "Invalid credentials"
	msgConflict       = "The task list was modified concurrently, please retry"
	msgTaskDeleted    = "Task deleted"
	msgRouteNotFound  = "Route not found"
	msgBadMethod      = "Method not allowed"
)

type contextKey string

const contextUserIDKey contextKey = "uid"

func withUserID(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, contextUserIDKey, id)
}

func userIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(contextUserIDKey).(uuid.UUID)
	return id, ok && id != uuid.Nil
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type HealthResponse struct {
	Success bool   `json:"success"`
	Status  string `json:"status"`
}

// NotFound answers requests for unknown routes.
func NotFound(w http.ResponseWriter, _ *http.Request) {
	writeError(w, http.StatusNotFound, msgRouteNotFound)
}

// MethodNotAllowed answers known routes requested with an unsupported method.
func MethodNotAllowed(w http.ResponseWriter, _ *http.Request) {
	writeError(w, http.StatusMethodNotAllowed, msgBadMethod)
}

// Healthz reports that the process is serving requests.
func Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Success: true, Status: "ok"})
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Success: false, Message: message})
}

// writeServiceError maps err to a status and client message. Only
// unexpected errors are logged above debug, and their detail never
// reaches the client.
func writeServiceError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	status, message := statusFor(err)
	attrs := []any{
		"request_id", middleware.GetReqID(r.Context()),
		"method", r.Method,
		"path", r.URL.Path,
		"status", status,
		"error", err,
	}
	if status >= http.StatusInternalServerError {
		logger.ErrorContext(r.Context(), "request failed", attrs...)
	} else {
		logger.DebugContext(r.Context(), "request rejected", attrs...)
	}
	writeError(w, status, message)
}

func statusFor(err error) (int, string) {
	var validation *services.ValidationError
	switch {
	case errors.As(err, &validation):
		return http.StatusBadRequest, validation.Message
	case errors.Is(err, services.ErrEmailTaken):
		return http.StatusBadRequest, msgUserExists
	case errors.Is(err, services.ErrUserNotFound):
		return http.StatusNotFound, msgUserNotFound
	case errors.Is(err, services.ErrTaskNotFound):
		return http.StatusNotFound, msgTaskNotFound
	case errors.Is(err, services.ErrInvalidCredentials):
		return http.StatusUnauthorized, msgBadCredentials
	case errors.Is(err, services.ErrConcurrentUpdate):
		return http.StatusConflict, msgConflict
	default:
		return http.StatusInternalServerError, msgInternal
	}
}

func decodeJSON(r *http.Request, dst any) error {
	return json.NewDecoder(r.Body).Decode(dst)
}
