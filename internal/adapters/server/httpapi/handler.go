// Package httpapi provides the RPC method-dispatch HTTP adapter. Method
// names map directly to routes under `/api/method/`, mirroring the host
// framework convention the SPA client already speaks.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	charmLog "github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/hylla/workz/internal/adapters/server/common"
	"github.com/hylla/workz/internal/app"
	"github.com/hylla/workz/internal/auth"
	"github.com/hylla/workz/internal/domain"
)

// maxRequestBodyBytes limits decoded JSON payload size for fail-closed request handling.
const maxRequestBodyBytes int64 = 1 << 20

// SessionCookieName is the cookie carrying the session id.
const SessionCookieName = "sid"

// CSRFHeaderName carries the CSRF token on mutating requests.
const CSRFHeaderName = "X-Workz-CSRF-Token"

// Handler serves the `/api` subtree: RPC methods and the ToDo resource.
type Handler struct {
	activity   common.ActivityService
	references common.ReferenceService
	todos      common.TodoService
	sessions   common.SessionService
	logger     *charmLog.Logger
}

// APIError represents one structured API failure response.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorEnvelope wraps one structured API error.
type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

// NewHandler constructs the HTTP API adapter.
func NewHandler(activity common.ActivityService, references common.ReferenceService, todos common.TodoService, sessions common.SessionService, logger *charmLog.Logger) *Handler {
	if logger == nil {
		logger = charmLog.Default()
	}
	return &Handler{
		activity:   activity,
		references: references,
		todos:      todos,
		sessions:   sessions,
		logger:     logger,
	}
}

// Register mounts the API routes on the router.
func (h *Handler) Register(r chi.Router) {
	r.Route("/api", func(api chi.Router) {
		api.Use(h.sessionMiddleware)
		api.Use(h.csrfMiddleware)
		api.HandleFunc("/method/{method}", h.handleMethod)
		api.Route("/resource/ToDo", func(res chi.Router) {
			res.Post("/", h.handleCreateTodo)
			res.Get("/{name}", h.handleGetTodo)
			res.Put("/{name}", h.handleUpdateTodo)
		})
	})
}

// principalKeyType keys the resolved principal in the request context.
type principalKeyType struct{}

var principalKey principalKeyType

// PrincipalFrom returns the resolved principal, defaulting to Guest.
func PrincipalFrom(ctx context.Context) auth.Principal {
	if principal, ok := ctx.Value(principalKey).(auth.Principal); ok {
		return principal
	}
	return auth.Guest()
}

// ResolvePrincipal maps the request's sid cookie or bearer token to a
// principal. Shared with the page adapter.
func ResolvePrincipal(r *http.Request, sessions common.SessionService) auth.Principal {
	return sessions.Resolve(r.Context(), requestSID(r))
}

// requestSID extracts the session id from cookie or Authorization header.
func requestSID(r *http.Request) string {
	if cookie, err := r.Cookie(SessionCookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	authz := strings.TrimSpace(r.Header.Get("Authorization"))
	if token, ok := strings.CutPrefix(authz, "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return ""
}

// sessionMiddleware resolves the caller principal once per request.
func (h *Handler) sessionMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal := ResolvePrincipal(r, h.sessions)
		ctx := context.WithValue(r.Context(), principalKey, principal)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// csrfSkippedMethods lists RPC methods exempt from the CSRF check.
var csrfSkippedMethods = map[string]struct{}{
	"workz.api.auth.login":  {},
	"workz.api.auth.logout": {},
}

// csrfMiddleware enforces the CSRF token on mutating cookie-authenticated
// requests. Bearer-token calls carry no ambient credential and are exempt,
// as are login/logout.
func (h *Handler) csrfMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		default:
			next.ServeHTTP(w, r)
			return
		}
		if _, skip := csrfSkippedMethods[chi.URLParam(r, "method")]; skip {
			next.ServeHTTP(w, r)
			return
		}
		if cookie, err := r.Cookie(SessionCookieName); err != nil || cookie.Value == "" {
			next.ServeHTTP(w, r)
			return
		}
		principal := PrincipalFrom(r.Context())
		if principal.IsGuest() {
			next.ServeHTTP(w, r)
			return
		}
		if !h.sessions.VerifyCSRF(r.Context(), principal, r.Header.Get(CSRFHeaderName)) {
			writeJSONError(w, http.StatusForbidden, APIError{
				Code:    "invalid_csrf_token",
				Message: "invalid or missing CSRF token",
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// handleMethod dispatches one RPC method call by name.
func (h *Handler) handleMethod(w http.ResponseWriter, r *http.Request) {
	method := chi.URLParam(r, "method")
	principal := PrincipalFrom(r.Context())

	args, err := decodeArgs(w, r)
	if err != nil {
		h.writeErrorFrom(w, err)
		return
	}

	switch method {
	case "workz.api.activity.list_history":
		h.handleListHistory(w, r, principal, args)
	case "workz.api.activity.add_comment":
		h.requirePost(w, r, func() { h.handleAddComment(w, r, principal, args) })
	case "workz.api.references.resolve_references":
		h.requirePost(w, r, func() { h.handleResolveReferences(w, r, principal, args, false) })
	case "workz.api.references.resolve_my_references":
		h.requirePost(w, r, func() { h.handleResolveReferences(w, r, principal, args, true) })
	case "workz.api.references.get_doctype_title_field":
		h.handleTitleField(w, r, principal, args)
	case "workz.api.references.resolve_single_reference":
		h.handleResolveSingle(w, r, principal, args)
	case "workz.api.tasks.get_user_todos":
		h.handleUserTodos(w, r, principal, false)
	case "workz.api.tasks.get_user_todos_alternative":
		h.handleUserTodos(w, r, principal, true)
	case "workz.api.security.csrf_token":
		h.handleCSRFToken(w, r, principal)
	case "workz.api.auth.login":
		h.requirePost(w, r, func() { h.handleLogin(w, r, args) })
	case "workz.api.auth.logout":
		h.requirePost(w, r, func() { h.handleLogout(w, r) })
	default:
		writeJSONError(w, http.StatusNotFound, APIError{
			Code:    "not_found",
			Message: fmt.Sprintf("unknown method: %s", method),
		})
	}
}

// requirePost rejects non-POST calls to mutating methods.
func (h *Handler) requirePost(w http.ResponseWriter, r *http.Request, serve func()) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeJSONError(w, http.StatusMethodNotAllowed, APIError{
			Code:    "method_not_allowed",
			Message: "method not allowed",
		})
		return
	}
	serve()
}

// handleListHistory serves `workz.api.activity.list_history`.
func (h *Handler) handleListHistory(w http.ResponseWriter, r *http.Request, principal auth.Principal, args methodArgs) {
	items, err := h.activity.ListHistory(r.Context(), principal, args.str("todo_id"))
	if err != nil {
		h.writeErrorFrom(w, err)
		return
	}
	writeMessage(w, http.StatusOK, items)
}

// handleAddComment serves `workz.api.activity.add_comment`.
func (h *Handler) handleAddComment(w http.ResponseWriter, r *http.Request, principal auth.Principal, args methodArgs) {
	item, err := h.activity.AddComment(r.Context(), principal, args.str("todo_id"), args.str("content"))
	if err != nil {
		h.writeErrorFrom(w, err)
		return
	}
	writeMessage(w, http.StatusOK, item)
}

// handleResolveReferences serves the batch reference-resolution methods.
func (h *Handler) handleResolveReferences(w http.ResponseWriter, r *http.Request, principal auth.Principal, args methodArgs, mineOnly bool) {
	refs, err := app.ParseReferences(args.raw("references"))
	if err != nil {
		h.writeErrorFrom(w, err)
		return
	}
	var resolved map[string]string
	if mineOnly {
		resolved, err = h.references.ResolveMyReferences(r.Context(), principal, refs)
	} else {
		resolved, err = h.references.ResolveReferences(r.Context(), principal, refs)
	}
	if err != nil {
		h.writeErrorFrom(w, err)
		return
	}
	writeMessage(w, http.StatusOK, resolved)
}

// handleTitleField serves `workz.api.references.get_doctype_title_field`.
func (h *Handler) handleTitleField(w http.ResponseWriter, r *http.Request, principal auth.Principal, args methodArgs) {
	info, err := h.references.TitleField(r.Context(), principal, args.str("doctype"))
	if err != nil {
		h.writeErrorFrom(w, err)
		return
	}
	writeMessage(w, http.StatusOK, info)
}

// handleResolveSingle serves `workz.api.references.resolve_single_reference`.
func (h *Handler) handleResolveSingle(w http.ResponseWriter, r *http.Request, principal auth.Principal, args methodArgs) {
	title := h.references.ResolveSingleReference(r.Context(), principal, args.str("doctype"), args.str("name"))
	writeMessage(w, http.StatusOK, title)
}

// handleUserTodos serves the user todo listing methods.
func (h *Handler) handleUserTodos(w http.ResponseWriter, r *http.Request, principal auth.Principal, alternative bool) {
	var (
		todos []domain.Todo
		err   error
	)
	if alternative {
		todos, err = h.todos.ListUserTodosAlternative(r.Context(), principal)
	} else {
		todos, err = h.todos.ListUserTodos(r.Context(), principal)
	}
	if err != nil {
		h.writeErrorFrom(w, err)
		return
	}
	writeMessage(w, http.StatusOK, common.NewTodoViews(todos))
}

// handleCSRFToken serves `workz.api.security.csrf_token`.
func (h *Handler) handleCSRFToken(w http.ResponseWriter, r *http.Request, principal auth.Principal) {
	token, err := h.sessions.CSRFToken(r.Context(), principal)
	if err != nil {
		h.writeErrorFrom(w, err)
		return
	}
	writeMessage(w, http.StatusOK, map[string]string{"csrf_token": token})
}

// handleLogin serves `workz.api.auth.login` and sets the session cookie.
func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request, args methodArgs) {
	session, err := h.sessions.Login(r.Context(), args.str("usr"), args.str("pwd"))
	if err != nil {
		h.writeErrorFrom(w, err)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    session.SID,
		Path:     "/",
		Expires:  session.ExpiresAt,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	writeMessage(w, http.StatusOK, map[string]string{
		"sid":  session.SID,
		"user": session.UserID,
	})
}

// handleLogout serves `workz.api.auth.logout` and clears the session cookie.
func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Logout(r.Context(), requestSID(r)); err != nil {
		h.writeErrorFrom(w, err)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	writeMessage(w, http.StatusOK, "Logged Out")
}

// handleCreateTodo serves POST `/api/resource/ToDo`.
func (h *Handler) handleCreateTodo(w http.ResponseWriter, r *http.Request) {
	var req app.CreateTodoRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		h.writeErrorFrom(w, err)
		return
	}
	todo, err := h.todos.CreateTodo(r.Context(), PrincipalFrom(r.Context()), req)
	if err != nil {
		h.writeErrorFrom(w, err)
		return
	}
	writeMessage(w, http.StatusCreated, common.NewTodoView(todo))
}

// handleGetTodo serves GET `/api/resource/ToDo/{name}`.
func (h *Handler) handleGetTodo(w http.ResponseWriter, r *http.Request) {
	todo, err := h.todos.GetTodo(r.Context(), PrincipalFrom(r.Context()), chi.URLParam(r, "name"))
	if err != nil {
		h.writeErrorFrom(w, err)
		return
	}
	writeMessage(w, http.StatusOK, common.NewTodoView(todo))
}

// todoUpdateRequest is the wire form of a partial todo update.
type todoUpdateRequest struct {
	Description   *string `json:"description"`
	Status        *string `json:"status"`
	Priority      *string `json:"priority"`
	AllocatedTo   *string `json:"allocated_to"`
	ReferenceType *string `json:"reference_type"`
	ReferenceName *string `json:"reference_name"`
}

// handleUpdateTodo serves PUT `/api/resource/ToDo/{name}`.
func (h *Handler) handleUpdateTodo(w http.ResponseWriter, r *http.Request) {
	var req todoUpdateRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		h.writeErrorFrom(w, err)
		return
	}
	update := domain.TodoUpdate{
		Description:   req.Description,
		AllocatedTo:   req.AllocatedTo,
		ReferenceType: req.ReferenceType,
		ReferenceName: req.ReferenceName,
	}
	if req.Status != nil {
		status := domain.Status(*req.Status)
		update.Status = &status
	}
	if req.Priority != nil {
		priority := domain.Priority(*req.Priority)
		update.Priority = &priority
	}
	todo, err := h.todos.UpdateTodo(r.Context(), PrincipalFrom(r.Context()), chi.URLParam(r, "name"), update)
	if err != nil {
		h.writeErrorFrom(w, err)
		return
	}
	writeMessage(w, http.StatusOK, common.NewTodoView(todo))
}

// methodArgs merges query parameters and JSON body fields; body wins.
type methodArgs struct {
	query url.Values
	body  map[string]json.RawMessage
}

// str returns one string argument.
func (a methodArgs) str(key string) string {
	if raw, ok := a.body[key]; ok {
		var value string
		if err := json.Unmarshal(raw, &value); err == nil {
			return value
		}
		return strings.TrimSpace(string(raw))
	}
	return a.query.Get(key)
}

// raw returns one argument as raw JSON, re-encoding query values as strings.
func (a methodArgs) raw(key string) json.RawMessage {
	if raw, ok := a.body[key]; ok {
		return raw
	}
	if value := a.query.Get(key); value != "" {
		encoded, err := json.Marshal(value)
		if err == nil {
			return encoded
		}
	}
	return nil
}

// decodeArgs reads method arguments from the query string and, on mutating
// requests, the JSON body.
func decodeArgs(w http.ResponseWriter, r *http.Request) (methodArgs, error) {
	args := methodArgs{query: r.URL.Query(), body: map[string]json.RawMessage{}}
	if r.Method != http.MethodPost && r.Method != http.MethodPut && r.Method != http.MethodPatch {
		return args, nil
	}
	if r.Body == nil {
		return args, nil
	}
	reader := http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	defer reader.Close()

	decoder := json.NewDecoder(reader)
	err := decoder.Decode(&args.body)
	if errors.Is(err, io.EOF) {
		return args, nil
	}
	if err != nil {
		return methodArgs{}, fmt.Errorf("decode request body: %w: %w", app.ErrValidation, err)
	}
	return args, nil
}

// decodeJSONBody decodes one required JSON request body with strict shape checks.
func decodeJSONBody(w http.ResponseWriter, r *http.Request, out any) error {
	reader := http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	defer reader.Close()

	decoder := json.NewDecoder(reader)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(out); err != nil {
		return fmt.Errorf("decode request body: %w: %w", app.ErrValidation, err)
	}
	// Reject trailing payloads so malformed JSON bodies fail closed.
	if err := decoder.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode request body: trailing content: %w", app.ErrValidation)
	}
	return nil
}

// writeErrorFrom maps service errors into structured HTTP responses.
func (h *Handler) writeErrorFrom(w http.ResponseWriter, err error) {
	switch {
	case err == nil:
		writeJSONError(w, http.StatusInternalServerError, APIError{
			Code:    "internal_error",
			Message: "unknown error",
		})
	case errors.Is(err, app.ErrValidation):
		writeJSONError(w, http.StatusBadRequest, APIError{
			Code:    "validation_error",
			Message: err.Error(),
		})
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeJSONError(w, http.StatusUnauthorized, APIError{
			Code:    "invalid_login",
			Message: err.Error(),
		})
	case errors.Is(err, auth.ErrLoginRequired):
		writeJSONError(w, http.StatusUnauthorized, APIError{
			Code:    "login_required",
			Message: err.Error(),
		})
	case errors.Is(err, auth.ErrNotPermitted):
		writeJSONError(w, http.StatusForbidden, APIError{
			Code:    "not_permitted",
			Message: err.Error(),
		})
	case errors.Is(err, app.ErrNotFound):
		writeJSONError(w, http.StatusNotFound, APIError{
			Code:    "not_found",
			Message: err.Error(),
		})
	default:
		h.logger.Error("request failed", "err", err)
		writeJSONError(w, http.StatusInternalServerError, APIError{
			Code:    "internal_error",
			Message: err.Error(),
		})
	}
}

// writeJSONError writes one structured error envelope.
func writeJSONError(w http.ResponseWriter, statusCode int, apiErr APIError) {
	writeJSON(w, statusCode, ErrorEnvelope{Error: apiErr})
}

// writeMessage wraps a payload in the host-framework message envelope.
func writeMessage(w http.ResponseWriter, statusCode int, payload any) {
	writeJSON(w, statusCode, map[string]any{"message": payload})
}

// writeJSON writes one JSON response.
func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, fmt.Sprintf(`{"error":{"code":"encode_error","message":"%s"}}`, err.Error()), http.StatusInternalServerError)
	}
}
