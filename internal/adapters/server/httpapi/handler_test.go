package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	charmLog "github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/hylla/workz/internal/app"
	"github.com/hylla/workz/internal/auth"
	"github.com/hylla/workz/internal/domain"
)

// stubActivityService provides deterministic activity responses for handler tests.
type stubActivityService struct {
	items       []app.ActivityItem
	added       app.ActivityItem
	err         error
	lastTodoID  string
	lastContent string
}

func (s *stubActivityService) ListHistory(_ context.Context, _ auth.Principal, todoID string) ([]app.ActivityItem, error) {
	s.lastTodoID = todoID
	if s.err != nil {
		return nil, s.err
	}
	return append([]app.ActivityItem(nil), s.items...), nil
}

func (s *stubActivityService) AddComment(_ context.Context, _ auth.Principal, todoID, content string) (app.ActivityItem, error) {
	s.lastTodoID = todoID
	s.lastContent = content
	if s.err != nil {
		return app.ActivityItem{}, s.err
	}
	return s.added, nil
}

// stubReferenceService provides deterministic reference responses.
type stubReferenceService struct {
	resolved  map[string]string
	info      app.TitleFieldInfo
	single    string
	err       error
	lastRefs  []app.Reference
	mineOnly  bool
	lastName  string
	lastDType string
}

func (s *stubReferenceService) ResolveReferences(_ context.Context, _ auth.Principal, refs []app.Reference) (map[string]string, error) {
	s.lastRefs = refs
	s.mineOnly = false
	if s.err != nil {
		return nil, s.err
	}
	return s.resolved, nil
}

func (s *stubReferenceService) ResolveMyReferences(_ context.Context, _ auth.Principal, refs []app.Reference) (map[string]string, error) {
	s.lastRefs = refs
	s.mineOnly = true
	if s.err != nil {
		return nil, s.err
	}
	return s.resolved, nil
}

func (s *stubReferenceService) TitleField(_ context.Context, _ auth.Principal, doctype string) (app.TitleFieldInfo, error) {
	s.lastDType = doctype
	if s.err != nil {
		return app.TitleFieldInfo{}, s.err
	}
	return s.info, nil
}

func (s *stubReferenceService) ResolveSingleReference(_ context.Context, _ auth.Principal, doctype, name string) string {
	s.lastDType = doctype
	s.lastName = name
	return s.single
}

// stubTodoService provides deterministic todo responses.
type stubTodoService struct {
	todos       []domain.Todo
	todo        domain.Todo
	err         error
	alternative bool
	lastUpdate  domain.TodoUpdate
}

func (s *stubTodoService) GetTodo(_ context.Context, _ auth.Principal, todoID string) (domain.Todo, error) {
	if s.err != nil {
		return domain.Todo{}, s.err
	}
	return s.todo, nil
}

func (s *stubTodoService) ListUserTodos(_ context.Context, _ auth.Principal) ([]domain.Todo, error) {
	s.alternative = false
	if s.err != nil {
		return nil, s.err
	}
	return s.todos, nil
}

func (s *stubTodoService) ListUserTodosAlternative(_ context.Context, _ auth.Principal) ([]domain.Todo, error) {
	s.alternative = true
	if s.err != nil {
		return nil, s.err
	}
	return s.todos, nil
}

func (s *stubTodoService) CreateTodo(_ context.Context, _ auth.Principal, req app.CreateTodoRequest) (domain.Todo, error) {
	if s.err != nil {
		return domain.Todo{}, s.err
	}
	return s.todo, nil
}

func (s *stubTodoService) UpdateTodo(_ context.Context, _ auth.Principal, todoID string, update domain.TodoUpdate) (domain.Todo, error) {
	s.lastUpdate = update
	if s.err != nil {
		return domain.Todo{}, s.err
	}
	return s.todo, nil
}

// stubSessionService maps sids to principals and validates one CSRF token.
type stubSessionService struct {
	principals map[string]auth.Principal
	csrfToken  string
	session    auth.Session
	loginErr   error
	csrfErr    error
	loggedOut  []string
}

func (s *stubSessionService) Login(_ context.Context, userID, password string) (auth.Session, error) {
	if s.loginErr != nil {
		return auth.Session{}, s.loginErr
	}
	return s.session, nil
}

func (s *stubSessionService) Logout(_ context.Context, sid string) error {
	s.loggedOut = append(s.loggedOut, sid)
	return nil
}

func (s *stubSessionService) Resolve(_ context.Context, sid string) auth.Principal {
	if principal, ok := s.principals[sid]; ok {
		return principal
	}
	return auth.Guest()
}

func (s *stubSessionService) CSRFToken(_ context.Context, principal auth.Principal) (string, error) {
	if principal.IsGuest() {
		return "", auth.ErrLoginRequired
	}
	if s.csrfErr != nil {
		return "", s.csrfErr
	}
	return s.csrfToken, nil
}

func (s *stubSessionService) VerifyCSRF(_ context.Context, principal auth.Principal, token string) bool {
	return !principal.IsGuest() && token == s.csrfToken
}

type testEnv struct {
	activity   *stubActivityService
	references *stubReferenceService
	todos      *stubTodoService
	sessions   *stubSessionService
	router     chi.Router
}

func newTestEnv() *testEnv {
	env := &testEnv{
		activity:   &stubActivityService{},
		references: &stubReferenceService{},
		todos:      &stubTodoService{},
		sessions: &stubSessionService{
			principals: map[string]auth.Principal{
				"sid-1": {UserID: "ada@example.com", FullName: "Ada Lovelace", Roles: []string{"Staff"}, SID: "sid-1"},
			},
			csrfToken: "csrf-1",
		},
	}
	handler := NewHandler(env.activity, env.references, env.todos, env.sessions, charmLog.New(io.Discard))
	env.router = chi.NewRouter()
	handler.Register(env.router)
	return env
}

func (env *testEnv) do(t *testing.T, method, target, body string, authenticate bool, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if authenticate {
		req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "sid-1"})
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	return rec
}

func decodeMessage[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var envelope struct {
		Message T `json:"message"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return envelope.Message
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) APIError {
	t.Helper()
	var envelope ErrorEnvelope
	if err := json.NewDecoder(rec.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	return envelope.Error
}

func csrfHeader() map[string]string {
	return map[string]string{CSRFHeaderName: "csrf-1"}
}

func TestListHistoryMethod(t *testing.T) {
	env := newTestEnv()
	at := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	env.activity.items = []app.ActivityItem{
		{ID: "v-1", Type: app.ActivityTypeStatusChange, Author: app.Author{Name: "Ada Lovelace"}, Content: "Status: Open → Closed", CreatedAt: at},
	}

	rec := env.do(t, http.MethodGet, "/api/method/workz.api.activity.list_history?todo_id=t1", "", true, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", rec.Code, rec.Body.String())
	}
	if env.activity.lastTodoID != "t1" {
		t.Fatalf("unexpected todo id %q", env.activity.lastTodoID)
	}
	items := decodeMessage[[]app.ActivityItem](t, rec)
	if len(items) != 1 || items[0].Content != "Status: Open → Closed" {
		t.Fatalf("unexpected items %#v", items)
	}
}

func TestListHistoryValidationError(t *testing.T) {
	env := newTestEnv()
	env.activity.err = app.ErrValidation

	rec := env.do(t, http.MethodGet, "/api/method/workz.api.activity.list_history", "", true, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	if apiErr := decodeError(t, rec); apiErr.Code != "validation_error" {
		t.Fatalf("unexpected error %#v", apiErr)
	}
}

func TestAddCommentMethod(t *testing.T) {
	env := newTestEnv()
	env.activity.added = app.ActivityItem{ID: "c-1", Type: app.ActivityTypeComment, Content: "Looks good"}

	rec := env.do(t, http.MethodPost, "/api/method/workz.api.activity.add_comment",
		`{"todo_id":"t1","content":"Looks good"}`, true, csrfHeader())
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", rec.Code, rec.Body.String())
	}
	if env.activity.lastTodoID != "t1" || env.activity.lastContent != "Looks good" {
		t.Fatalf("unexpected args %q, %q", env.activity.lastTodoID, env.activity.lastContent)
	}
	item := decodeMessage[app.ActivityItem](t, rec)
	if item.ID != "c-1" {
		t.Fatalf("unexpected item %#v", item)
	}
}

func TestAddCommentRequiresPost(t *testing.T) {
	env := newTestEnv()
	rec := env.do(t, http.MethodGet, "/api/method/workz.api.activity.add_comment?todo_id=t1&content=x", "", true, nil)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("unexpected status %d", rec.Code)
	}
}

func TestCSRFMiddleware(t *testing.T) {
	env := newTestEnv()
	env.activity.added = app.ActivityItem{ID: "c-1"}

	// Cookie-authenticated mutation without a token is rejected.
	rec := env.do(t, http.MethodPost, "/api/method/workz.api.activity.add_comment",
		`{"todo_id":"t1","content":"x"}`, true, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 without token, got %d", rec.Code)
	}
	if apiErr := decodeError(t, rec); apiErr.Code != "invalid_csrf_token" {
		t.Fatalf("unexpected error %#v", apiErr)
	}

	// Bearer-token calls carry no cookie and are exempt.
	req := httptest.NewRequest(http.MethodPost, "/api/method/workz.api.activity.add_comment",
		strings.NewReader(`{"todo_id":"t1","content":"x"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer sid-1")
	bearerRec := httptest.NewRecorder()
	env.router.ServeHTTP(bearerRec, req)
	if bearerRec.Code != http.StatusOK {
		t.Fatalf("expected bearer call to pass, got %d: %s", bearerRec.Code, bearerRec.Body.String())
	}

	// GET requests skip the check entirely.
	getRec := env.do(t, http.MethodGet, "/api/method/workz.api.tasks.get_user_todos", "", true, nil)
	if getRec.Code != http.StatusOK {
		t.Fatalf("expected GET to pass, got %d", getRec.Code)
	}
}

func TestResolveReferencesMethods(t *testing.T) {
	env := newTestEnv()
	env.references.resolved = map[string]string{"Project:PROJ-001": "Alpha"}

	rec := env.do(t, http.MethodPost, "/api/method/workz.api.references.resolve_references",
		`{"references":[{"doctype":"Project","name":"PROJ-001"}]}`, true, csrfHeader())
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", rec.Code, rec.Body.String())
	}
	if env.references.mineOnly {
		t.Fatal("expected the unrestricted resolver")
	}
	if len(env.references.lastRefs) != 1 || env.references.lastRefs[0].Name != "PROJ-001" {
		t.Fatalf("unexpected refs %#v", env.references.lastRefs)
	}
	resolved := decodeMessage[map[string]string](t, rec)
	if resolved["Project:PROJ-001"] != "Alpha" {
		t.Fatalf("unexpected resolution %#v", resolved)
	}

	// The string-encoded form is accepted too, on the mine-only variant.
	rec = env.do(t, http.MethodPost, "/api/method/workz.api.references.resolve_my_references",
		`{"references":"[{\"doctype\":\"Project\",\"name\":\"PROJ-001\"}]"}`, true, csrfHeader())
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", rec.Code, rec.Body.String())
	}
	if !env.references.mineOnly {
		t.Fatal("expected the mine-only resolver")
	}

	rec = env.do(t, http.MethodPost, "/api/method/workz.api.references.resolve_references",
		`{"references":{"doctype":"Project"}}`, true, csrfHeader())
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected validation failure, got %d", rec.Code)
	}
}

func TestTitleFieldAndSingleReferenceMethods(t *testing.T) {
	env := newTestEnv()
	env.references.info = app.TitleFieldInfo{Doctype: "Project", TitleField: "project_name", HasTitleField: true}
	env.references.single = "Alpha"

	rec := env.do(t, http.MethodGet, "/api/method/workz.api.references.get_doctype_title_field?doctype=Project", "", true, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	info := decodeMessage[app.TitleFieldInfo](t, rec)
	if !info.HasTitleField || info.TitleField != "project_name" {
		t.Fatalf("unexpected info %#v", info)
	}

	rec = env.do(t, http.MethodGet, "/api/method/workz.api.references.resolve_single_reference?doctype=Project&name=PROJ-001", "", true, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	if title := decodeMessage[string](t, rec); title != "Alpha" {
		t.Fatalf("unexpected title %q", title)
	}
	if env.references.lastDType != "Project" || env.references.lastName != "PROJ-001" {
		t.Fatalf("unexpected args %q, %q", env.references.lastDType, env.references.lastName)
	}
}

func TestUserTodoMethods(t *testing.T) {
	env := newTestEnv()
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	env.todos.todos = []domain.Todo{{
		ID: "t1", Description: "task", Status: domain.StatusOpen, Priority: domain.PriorityMedium,
		Owner: "ada@example.com", CreatedAt: now, ModifiedAt: now,
	}}

	rec := env.do(t, http.MethodGet, "/api/method/workz.api.tasks.get_user_todos", "", true, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	if env.todos.alternative {
		t.Fatal("expected the primary listing")
	}

	rec = env.do(t, http.MethodGet, "/api/method/workz.api.tasks.get_user_todos_alternative", "", true, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	if !env.todos.alternative {
		t.Fatal("expected the alternative listing")
	}

	env.todos.err = auth.ErrLoginRequired
	rec = env.do(t, http.MethodGet, "/api/method/workz.api.tasks.get_user_todos", "", false, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for guest, got %d", rec.Code)
	}
}

func TestCSRFTokenMethod(t *testing.T) {
	env := newTestEnv()

	rec := env.do(t, http.MethodGet, "/api/method/workz.api.security.csrf_token", "", true, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	payload := decodeMessage[map[string]string](t, rec)
	if payload["csrf_token"] != "csrf-1" {
		t.Fatalf("unexpected token %q", payload["csrf_token"])
	}

	rec = env.do(t, http.MethodGet, "/api/method/workz.api.security.csrf_token", "", false, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for guest, got %d", rec.Code)
	}
}

func TestLoginAndLogout(t *testing.T) {
	env := newTestEnv()
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	env.sessions.session = auth.Session{SID: "sid-new", UserID: "ada@example.com", ExpiresAt: now.Add(time.Hour)}

	rec := env.do(t, http.MethodPost, "/api/method/workz.api.auth.login",
		`{"usr":"ada@example.com","pwd":"s3cret"}`, false, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", rec.Code, rec.Body.String())
	}
	cookies := rec.Result().Cookies()
	var sidCookie *http.Cookie
	for _, cookie := range cookies {
		if cookie.Name == SessionCookieName {
			sidCookie = cookie
		}
	}
	if sidCookie == nil || sidCookie.Value != "sid-new" || !sidCookie.HttpOnly {
		t.Fatalf("unexpected session cookie %#v", sidCookie)
	}

	env.sessions.loginErr = auth.ErrInvalidCredentials
	rec = env.do(t, http.MethodPost, "/api/method/workz.api.auth.login",
		`{"usr":"ada@example.com","pwd":"wrong"}`, false, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if apiErr := decodeError(t, rec); apiErr.Code != "invalid_login" {
		t.Fatalf("unexpected error %#v", apiErr)
	}

	rec = env.do(t, http.MethodPost, "/api/method/workz.api.auth.logout", "", true, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	if len(env.sessions.loggedOut) != 1 || env.sessions.loggedOut[0] != "sid-1" {
		t.Fatalf("unexpected logout calls %v", env.sessions.loggedOut)
	}
}

func TestUnknownMethod(t *testing.T) {
	env := newTestEnv()
	rec := env.do(t, http.MethodGet, "/api/method/workz.api.nope", "", true, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unexpected status %d", rec.Code)
	}
}

func TestTodoResourceEndpoints(t *testing.T) {
	env := newTestEnv()
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	env.todos.todo = domain.Todo{
		ID: "t1", Description: "task", Status: domain.StatusOpen, Priority: domain.PriorityMedium,
		Owner: "ada@example.com", CreatedAt: now, ModifiedAt: now,
	}

	rec := env.do(t, http.MethodPost, "/api/resource/ToDo",
		`{"description":"task"}`, true, csrfHeader())
	if rec.Code != http.StatusCreated {
		t.Fatalf("unexpected status %d: %s", rec.Code, rec.Body.String())
	}

	rec = env.do(t, http.MethodGet, "/api/resource/ToDo/t1", "", true, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rec.Code)
	}

	rec = env.do(t, http.MethodPut, "/api/resource/ToDo/t1",
		`{"status":"Closed"}`, true, csrfHeader())
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", rec.Code, rec.Body.String())
	}
	if env.todos.lastUpdate.Status == nil || *env.todos.lastUpdate.Status != domain.StatusClosed {
		t.Fatalf("unexpected update %#v", env.todos.lastUpdate)
	}
	if env.todos.lastUpdate.Description != nil {
		t.Fatal("expected untouched description to stay nil")
	}

	// Unknown fields fail closed.
	rec = env.do(t, http.MethodPost, "/api/resource/ToDo",
		`{"description":"task","bogus":true}`, true, csrfHeader())
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown field, got %d", rec.Code)
	}

	env.todos.err = errors.New("db closed")
	rec = env.do(t, http.MethodGet, "/api/resource/ToDo/t1", "", true, nil)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}
