package handlers

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/taskboard/apiserver/internal/auth"
	"github.com/taskboard/apiserver/internal/services"
	"github.com/taskboard/apiserver/types"
)

// AuthHandler serves registration, login and the profile.
type AuthHandler struct {
	accounts *services.AccountService
	tokens   *auth.Tokens
	logger   *slog.Logger
}

// NewAuthHandler creates an AuthHandler.
func NewAuthHandler(accounts *services.AccountService, tokens *auth.Tokens, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{accounts: accounts, tokens: tokens, logger: logger}
}

// AuthRouter registers account routes on the given router.
func AuthRouter(r chi.Router, accounts *services.AccountService, tokens *auth.Tokens, logger *slog.Logger) {
	handler := NewAuthHandler(accounts, tokens, logger)

	r.Post("/signup", handler.Register)
	r.Post("/login", handler.Login)
	r.With(RequireAuth(tokens)).Get("/get-profile", handler.Profile)
}

// RequireAuth rejects requests without a valid bearer token and stores the
// token's user id in the request context.
func RequireAuth(tokens *auth.Tokens) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, ok := bearerToken(r)
			if !ok {
				writeError(w, http.StatusUnauthorized, msgUnauthorized)
				return
			}

			userID, err := tokens.Verify(tokenString)
			if err != nil {
				writeError(w, http.StatusUnauthorized, msgUnauthorized)
				return
			}

			next.ServeHTTP(w, r.WithContext(withUserID(r.Context(), userID)))
		})
	}
}

// Register handles signup and responds with a token and the public user.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, msgInvalidBody)
		return
	}

	user, err := h.accounts.Register(r.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	h.respondWithToken(w, r, http.StatusCreated, user)
}

// Login checks credentials and responds with a fresh token.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, msgInvalidBody)
		return
	}

	user, err := h.accounts.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	h.respondWithToken(w, r, http.StatusOK, user)
}

// Profile returns the authenticated user with their tasks.
func (h *AuthHandler) Profile(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, msgUnauthorized)
		return
	}

	user, err := h.accounts.Profile(r.Context(), userID)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, ProfileResponse{Success: true, User: user})
}

func (h *AuthHandler) respondWithToken(w http.ResponseWriter, r *http.Request, status int, user types.User) {
	token, err := h.tokens.Issue(user.ID)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, status, AuthResponse{Success: true, Token: token, User: user.Public()})
}

type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type AuthResponse struct {
	Success bool             `json:"success"`
	Token   string           `json:"token"`
	User    types.PublicUser `json:"user"`
}

type ProfileResponse struct {
	Success bool       `json:"success"`
	User    types.User `json:"user"`
}

func bearerToken(r *http.Request) (string, bool) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
