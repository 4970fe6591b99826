// Package common provides transport-agnostic server contracts shared by the
// HTTP, MCP, and page adapters.
package common

import (
	"context"
	"time"

	"github.com/hylla/workz/internal/app"
	"github.com/hylla/workz/internal/auth"
	"github.com/hylla/workz/internal/domain"
)

// ActivityService exposes the activity-feed operations.
type ActivityService interface {
	ListHistory(ctx context.Context, principal auth.Principal, todoID string) ([]app.ActivityItem, error)
	AddComment(ctx context.Context, principal auth.Principal, todoID, content string) (app.ActivityItem, error)
}

// ReferenceService exposes the reference-resolution operations.
type ReferenceService interface {
	ResolveReferences(ctx context.Context, principal auth.Principal, refs []app.Reference) (map[string]string, error)
	ResolveMyReferences(ctx context.Context, principal auth.Principal, refs []app.Reference) (map[string]string, error)
	TitleField(ctx context.Context, principal auth.Principal, doctype string) (app.TitleFieldInfo, error)
	ResolveSingleReference(ctx context.Context, principal auth.Principal, doctype, name string) string
}

// TodoService exposes the todo read/write operations.
type TodoService interface {
	GetTodo(ctx context.Context, principal auth.Principal, todoID string) (domain.Todo, error)
	ListUserTodos(ctx context.Context, principal auth.Principal) ([]domain.Todo, error)
	ListUserTodosAlternative(ctx context.Context, principal auth.Principal) ([]domain.Todo, error)
	CreateTodo(ctx context.Context, principal auth.Principal, req app.CreateTodoRequest) (domain.Todo, error)
	UpdateTodo(ctx context.Context, principal auth.Principal, todoID string, update domain.TodoUpdate) (domain.Todo, error)
}

// SessionService exposes login, principal resolution, and CSRF operations.
type SessionService interface {
	Login(ctx context.Context, userID, password string) (auth.Session, error)
	Logout(ctx context.Context, sid string) error
	Resolve(ctx context.Context, sid string) auth.Principal
	CSRFToken(ctx context.Context, principal auth.Principal) (string, error)
	VerifyCSRF(ctx context.Context, principal auth.Principal, token string) bool
}

// TodoView is the JSON projection of a todo record.
type TodoView struct {
	ID            string    `json:"id"`
	Description   string    `json:"description"`
	Status        string    `json:"status"`
	Priority      string    `json:"priority"`
	AllocatedTo   string    `json:"allocated_to,omitempty"`
	Owner         string    `json:"owner"`
	ReferenceType string    `json:"reference_type,omitempty"`
	ReferenceName string    `json:"reference_name,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	ModifiedAt    time.Time `json:"modified_at"`
}

// NewTodoView projects one todo record.
func NewTodoView(todo domain.Todo) TodoView {
	return TodoView{
		ID:            todo.ID,
		Description:   todo.Description,
		Status:        string(todo.Status),
		Priority:      string(todo.Priority),
		AllocatedTo:   todo.AllocatedTo,
		Owner:         todo.Owner,
		ReferenceType: todo.ReferenceType,
		ReferenceName: todo.ReferenceName,
		CreatedAt:     todo.CreatedAt,
		ModifiedAt:    todo.ModifiedAt,
	}
}

// NewTodoViews projects a todo list.
func NewTodoViews(todos []domain.Todo) []TodoView {
	out := make([]TodoView, 0, len(todos))
	for _, todo := range todos {
		out = append(out, NewTodoView(todo))
	}
	return out
}
