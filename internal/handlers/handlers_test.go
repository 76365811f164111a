package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/taskboard/apiserver/internal/auth"
	"github.com/taskboard/apiserver/internal/logger"
	"github.com/taskboard/apiserver/internal/services"
	"github.com/taskboard/apiserver/internal/store"
	"github.com/taskboard/apiserver/types"
)

const testSecret = "taskboard_test_jwt_secret_key_1234567890"

type brokenRepo struct {
	*store.MemoryUserRepository
}

func (brokenRepo) GetByID(context.Context, uuid.UUID) (types.User, error) {
	return types.User{}, errors.New("connection refused by db-primary:5432")
}

func newRouter(t *testing.T, repo services.UserRepository) http.Handler {
	t.Helper()
	tokens, err := auth.NewTokens(testSecret)
	require.NoError(t, err)

	log := logger.Discard()
	accounts := services.NewAccountService(repo, nil, log)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Get("/healthz", Healthz)
	AuthRouter(r, accounts, tokens, log)
	r.Route("/tasks", func(r chi.Router) {
		TaskRouter(r, accounts, RequireAuth(tokens), log)
	})
	return r
}

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	return newRouter(t, store.NewMemoryUserRepository())
}

type response struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Token   string          `json:"token"`
	Status  string          `json:"status"`
	User    json.RawMessage `json:"user"`
	Task    types.Task      `json:"task"`
}

type userBody struct {
	ID        uuid.UUID    `json:"id"`
	Name      string       `json:"name"`
	Email     string       `json:"email"`
	Tasks     []types.Task `json:"tasks"`
	CreatedAt *time.Time   `json:"createdAt"`
}

func do(t *testing.T, h http.Handler, method, path, token string, body any) (int, response) {
	t.Helper()

	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	return rec.Code, resp
}

func decodeUser(t *testing.T, raw json.RawMessage) userBody {
	t.Helper()
	var user userBody
	require.NoError(t, json.Unmarshal(raw, &user))
	return user
}

func signup(t *testing.T, h http.Handler) (string, userBody) {
	t.Helper()
	code, resp := do(t, h, http.MethodPost, "/signup", "", map[string]string{
		"name": "Ana", "email": "ana@x.com", "password": "password1",
	})
	require.Equal(t, http.StatusCreated, code, resp.Message)
	return resp.Token, decodeUser(t, resp.User)
}

func TestTaskScenario(t *testing.T) {
	h := newTestRouter(t)

	code, resp := do(t, h, http.MethodPost, "/signup", "", map[string]string{
		"name": "Ana", "email": "ana@x.com", "password": "password1",
	})
	require.Equal(t, http.StatusCreated, code)
	assert.True(t, resp.Success)
	require.NotEmpty(t, resp.Token)
	registered := decodeUser(t, resp.User)
	assert.Equal(t, "Ana", registered.Name)
	assert.NotNil(t, registered.Tasks)
	assert.Empty(t, registered.Tasks)
	assert.NotContains(t, string(resp.User), "password")

	code, resp = do(t, h, http.MethodPost, "/login", "", map[string]string{
		"email": "ana@x.com", "password": "password1",
	})
	require.Equal(t, http.StatusOK, code)
	token := resp.Token
	assert.Equal(t, registered.ID, decodeUser(t, resp.User).ID)

	code, resp = do(t, h, http.MethodPost, "/tasks", token, map[string]string{
		"title": "Buy milk", "description": "2%",
	})
	require.Equal(t, http.StatusCreated, code)
	created := resp.Task
	assert.False(t, created.Completed)
	assert.Equal(t, "Buy milk", created.Title)

	code, resp = do(t, h, http.MethodPut, "/tasks/"+created.ID.String(), token, map[string]bool{
		"completed": true,
	})
	require.Equal(t, http.StatusOK, code)
	assert.True(t, resp.Task.Completed)
	assert.Equal(t, "Buy milk", resp.Task.Title)
	assert.Equal(t, created.ID, resp.Task.ID)

	code, resp = do(t, h, http.MethodGet, "/get-profile", token, nil)
	require.Equal(t, http.StatusOK, code)
	profile := decodeUser(t, resp.User)
	require.Len(t, profile.Tasks, 1)
	assert.True(t, profile.Tasks[0].Completed)
	assert.NotNil(t, profile.CreatedAt)

	code, resp = do(t, h, http.MethodDelete, "/tasks/"+created.ID.String(), token, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Task deleted", resp.Message)

	code, resp = do(t, h, http.MethodGet, "/get-profile", token, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Empty(t, decodeUser(t, resp.User).Tasks)
}

func TestSignupErrors(t *testing.T) {
	h := newTestRouter(t)
	signup(t, h)

	code, resp := do(t, h, http.MethodPost, "/signup", "", map[string]string{
		"name": "Ana Again", "email": "ANA@x.com", "password": "password2",
	})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.False(t, resp.Success)
	assert.Equal(t, "User already exists", resp.Message)

	code, resp = do(t, h, http.MethodPost, "/signup", "", map[string]string{"name": "Bob"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "Name, email, and password are required", resp.Message)

	code, resp = do(t, h, http.MethodPost, "/signup", "", map[string]string{
		"name": "Bob", "email": "bob@x.com", "password": "short",
	})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "Password must be at least 8 characters", resp.Message)

	code, resp = do(t, h, http.MethodPost, "/signup", "", map[string]string{
		"name": "Bob", "email": "bob@x.com", "password": strings.Repeat("p", 73),
	})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.False(t, resp.Success)
	assert.Equal(t, "Password must be at most 72 bytes", resp.Message)

	code, resp = do(t, h, http.MethodPost, "/signup", "", "{not json")
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "Invalid request body", resp.Message)
}

func TestLoginErrors(t *testing.T) {
	h := newTestRouter(t)
	signup(t, h)

	code, resp := do(t, h, http.MethodPost, "/login", "", map[string]string{
		"email": "ana@x.com", "password": "wrong-password",
	})
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "Invalid credentials", resp.Message)
	assert.Empty(t, resp.Token)

	code, resp = do(t, h, http.MethodPost, "/login", "", map[string]string{
		"email": "nobody@x.com", "password": "password1",
	})
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "User not found", resp.Message)

	code, resp = do(t, h, http.MethodPost, "/login", "", map[string]string{"email": "ana@x.com"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "Email and password are required", resp.Message)
}

func TestProtectedRoutesRequireValidToken(t *testing.T) {
	h := newTestRouter(t)
	token, user := signup(t, h)

	expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, auth.Claims{
		UserID: user.ID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID.String(),
			Issuer:    auth.Issuer,
			IssuedAt:  jwt.NewNumericDate(time.Now().Add(-8 * 24 * time.Hour)),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-24 * time.Hour)),
		},
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)

	cases := map[string]string{
		"missing":  "",
		"garbage":  "not-a-jwt",
		"tampered": tamper(token),
		"expired":  expired,
	}

	for name, tok := range cases {
		t.Run(name, func(t *testing.T) {
			code, resp := do(t, h, http.MethodGet, "/get-profile", tok, nil)
			assert.Equal(t, http.StatusUnauthorized, code)
			assert.False(t, resp.Success)
			assert.Equal(t, "Unauthorized", resp.Message)

			code, _ = do(t, h, http.MethodPost, "/tasks", tok, map[string]string{"title": "t", "description": "d"})
			assert.Equal(t, http.StatusUnauthorized, code)
		})
	}

	req := httptest.NewRequest(http.MethodGet, "/get-profile", nil)
	req.Header.Set("Authorization", "Basic "+token)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

// tamper flips the first character of the signature segment.
func tamper(token string) string {
	dot := strings.LastIndex(token, ".")
	replacement := "A"
	if token[dot+1] == 'A' {
		replacement = "B"
	}
	return token[:dot+1] + replacement + token[dot+2:]
}

func TestUpdateTaskPartialPatch(t *testing.T) {
	h := newTestRouter(t)
	token, _ := signup(t, h)

	_, resp := do(t, h, http.MethodPost, "/tasks", token, map[string]string{"title": "t", "description": "d"})
	path := "/tasks/" + resp.Task.ID.String()

	code, resp := do(t, h, http.MethodPut, path, token, `{"title":"renamed"}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "renamed", resp.Task.Title)
	assert.Equal(t, "d", resp.Task.Description)
	assert.False(t, resp.Task.Completed)

	code, resp = do(t, h, http.MethodPut, path, token, `{"title":null,"completed":true}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "renamed", resp.Task.Title)
	assert.True(t, resp.Task.Completed)

	code, resp = do(t, h, http.MethodPut, path, token, `{"title":""}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "Title cannot be empty", resp.Message)

	code, resp = do(t, h, http.MethodPut, path, token, `{"completed":"yes"}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "Invalid request body", resp.Message)
}

func TestTaskNotFound(t *testing.T) {
	h := newTestRouter(t)
	token, _ := signup(t, h)

	for _, path := range []string{"/tasks/" + uuid.NewString(), "/tasks/not-a-uuid"} {
		code, resp := do(t, h, http.MethodPut, path, token, `{"completed":true}`)
		assert.Equal(t, http.StatusNotFound, code, path)
		assert.Equal(t, "Task not found", resp.Message)

		code, resp = do(t, h, http.MethodDelete, path, token, nil)
		assert.Equal(t, http.StatusNotFound, code, path)
		assert.Equal(t, "Task not found", resp.Message)
	}
}

func TestCreateTaskRequiresFields(t *testing.T) {
	h := newTestRouter(t)
	token, _ := signup(t, h)

	code, resp := do(t, h, http.MethodPost, "/tasks", token, map[string]string{"title": "only title"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "Title and description are required", resp.Message)
}

func TestTokenForMissingUser(t *testing.T) {
	h := newTestRouter(t)
	tokens, err := auth.NewTokens(testSecret)
	require.NoError(t, err)
	token, err := tokens.Issue(uuid.New())
	require.NoError(t, err)

	code, resp := do(t, h, http.MethodGet, "/get-profile", token, nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "User not found", resp.Message)

	code, resp = do(t, h, http.MethodPost, "/tasks", token, map[string]string{"title": "t", "description": "d"})
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "User not found", resp.Message)
}

func TestInternalErrorsAreHidden(t *testing.T) {
	h := newRouter(t, brokenRepo{store.NewMemoryUserRepository()})
	tokens, err := auth.NewTokens(testSecret)
	require.NoError(t, err)
	token, err := tokens.Issue(uuid.New())
	require.NoError(t, err)

	code, resp := do(t, h, http.MethodGet, "/get-profile", token, nil)
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.False(t, resp.Success)
	assert.Equal(t, "Internal server error", resp.Message)
}

func TestHealthz(t *testing.T) {
	code, resp := do(t, newTestRouter(t), http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.True(t, resp.Success)
	assert.Equal(t, "ok", resp.Status)
}

func TestUnknownRoutesUseErrorEnvelope(t *testing.T) {
	r := chi.NewRouter()
	r.NotFound(NotFound)
	r.MethodNotAllowed(MethodNotAllowed)
	r.Route("/tasks", func(r chi.Router) {
		r.Post("/", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusCreated, MessageResponse{Success: true})
		})
	})

	code, resp := do(t, r, http.MethodGet, "/nowhere", "", nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.False(t, resp.Success)
	assert.Equal(t, "Route not found", resp.Message)

	code, resp = do(t, r, http.MethodPut, "/tasks/", "", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, code)
	assert.False(t, resp.Success)
	assert.Equal(t, "Method not allowed", resp.Message)
}

func TestRecovererWritesErrorEnvelope(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewJSONHandler(&buf, nil))

	h := middleware.RequestID(Recoverer(log)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("nil map write")
	})))

	code, resp := do(t, h, http.MethodGet, "/boom", "", nil)
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.False(t, resp.Success)
	assert.Equal(t, "Internal server error", resp.Message)
	assert.Contains(t, buf.String(), `"msg":"panic recovered"`)
	assert.Contains(t, buf.String(), "nil map write")
	assert.NotContains(t, resp.Message, "nil map")
}

func TestAccessLogRecordsStatus(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewJSONHandler(&buf, nil))

	h := middleware.RequestID(AccessLog(log)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusTeapot, "short and stout")
	})))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/teapot", nil))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "request completed", entry["msg"])
	assert.Equal(t, float64(http.StatusTeapot), entry["status"])
	assert.Equal(t, "/teapot", entry["path"])
	assert.NotEmpty(t, entry["request_id"])
	assert.True(t, strings.HasPrefix(buf.String(), "{"))
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err     error
		status  int
		message string
	}{
		{&services.ValidationError{Message: "bad"}, http.StatusBadRequest, "bad"},
		{services.ErrEmailTaken, http.StatusBadRequest, "User already exists"},
		{services.ErrUserNotFound, http.StatusNotFound, "User not found"},
		{services.ErrTaskNotFound, http.StatusNotFound, "Task not found"},
		{services.ErrInvalidCredentials, http.StatusUnauthorized, "Invalid credentials"},
		{services.ErrConcurrentUpdate, http.StatusConflict, msgConflict},
		{store.ErrNotFound, http.StatusInternalServerError, "Internal server error"},
	}
	for _, tc := range cases {
		status, message := statusFor(tc.err)
		assert.Equal(t, tc.status, status, tc.err.Error())
		assert.Equal(t, tc.message, message)
	}
}
