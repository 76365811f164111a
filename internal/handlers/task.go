package handlers

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/taskboard/apiserver/internal/services"
	"github.com/taskboard/apiserver/types"
)

const taskIDParam = "taskId"

// TaskHandler serves mutations of the authenticated user's task list.
type TaskHandler struct {
	accounts *services.AccountService
	logger   *slog.Logger
}

// NewTaskHandler creates a TaskHandler.
func NewTaskHandler(accounts *services.AccountService, logger *slog.Logger) *TaskHandler {
	return &TaskHandler{accounts: accounts, logger: logger}
}

// TaskRouter registers task routes. Every route requires authMiddleware.
func TaskRouter(r chi.Router, accounts *services.AccountService, authMiddleware func(http.Handler) http.Handler, logger *slog.Logger) {
	handler := NewTaskHandler(accounts, logger)

	r.Use(authMiddleware)
	r.Post("/", handler.Create)
	r.Put("/{"+taskIDParam+"}", handler.Update)
	r.Delete("/{"+taskIDParam+"}", handler.Delete)
}

// Create appends a task to the caller's list and returns it with 201.
func (h *TaskHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, msgUnauthorized)
		return
	}

	var req CreateTaskRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, msgInvalidBody)
		return
	}

	task, err := h.accounts.CreateTask(r.Context(), userID, req.Title, req.Description)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, TaskResponse{Success: true, Task: task})
}

// Update applies a partial patch. Fields missing from the body, or sent as
// null, keep their current value.
func (h *TaskHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, msgUnauthorized)
		return
	}

	var patch types.TaskPatch
	if err := decodeJSON(r, &patch); err != nil {
		writeError(w, http.StatusBadRequest, msgInvalidBody)
		return
	}

	task, err := h.accounts.UpdateTask(r.Context(), userID, chi.URLParam(r, taskIDParam), patch)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, TaskResponse{Success: true, Task: task})
}

// Delete removes the task identified by the taskId URL parameter.
func (h *TaskHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, msgUnauthorized)
		return
	}

	if err := h.accounts.DeleteTask(r.Context(), userID, chi.URLParam(r, taskIDParam)); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, MessageResponse{Success: true, Message: msgTaskDeleted})
}

type CreateTaskRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

type TaskResponse struct {
	Success bool       `json:"success"`
	Task    types.Task `json:"task"`
}

type MessageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}
