package app

import (
	"context"
	"fmt"
	"slices"

	"github.com/hylla/workz/internal/auth"
	"github.com/hylla/workz/internal/domain"
)

// Per-arm fetch limit and overall result cap for user todo listings.
const (
	todoArmLimit    = 50
	todoResultLimit = 100
)

// GetTodo fetches one todo after a read-permission check.
func (s *Service) GetTodo(ctx context.Context, principal auth.Principal, todoID string) (domain.Todo, error) {
	if todoID == "" {
		return domain.Todo{}, fmt.Errorf("todo_id is required: %w", ErrValidation)
	}
	if !s.perms.CanRead(ctx, principal, domain.DoctypeToDo) {
		return domain.Todo{}, fmt.Errorf("not permitted to read ToDo: %w", auth.ErrNotPermitted)
	}
	return s.repo.TodoByID(ctx, todoID)
}

// ListUserTodos returns the caller's todo list: up to 50 owned plus up to 50
// assigned todos, merged with owned/assigned overlap resolved last-write-wins,
// sorted by last-modified descending and truncated to 100. Todos whose
// reference doctype is itself "ToDo" are excluded.
func (s *Service) ListUserTodos(ctx context.Context, principal auth.Principal) ([]domain.Todo, error) {
	if principal.IsGuest() {
		return nil, auth.ErrLoginRequired
	}

	owned, err := s.repo.ListTodosOwnedBy(ctx, principal.UserID, todoArmLimit)
	if err != nil {
		return nil, err
	}
	assigned, err := s.repo.ListTodosAssignedTo(ctx, principal.UserID, todoArmLimit)
	if err != nil {
		return nil, err
	}
	return mergeTodoLists(owned, assigned), nil
}

// ListUserTodosAlternative is the same listing through the storage layer's
// query-builder path, which falls back to raw SQL when the builder fails.
func (s *Service) ListUserTodosAlternative(ctx context.Context, principal auth.Principal) ([]domain.Todo, error) {
	if principal.IsGuest() {
		return nil, auth.ErrLoginRequired
	}

	todos, err := s.repo.ListTodosForUser(ctx, principal.UserID, 2*todoArmLimit)
	if err != nil {
		return nil, err
	}
	return mergeTodoLists(todos), nil
}

// mergeTodoLists deduplicates by id (later lists win), drops self-referential
// task-about-task rows, sorts by modified descending, and truncates.
func mergeTodoLists(lists ...[]domain.Todo) []domain.Todo {
	byID := map[string]domain.Todo{}
	order := make([]string, 0, todoResultLimit)
	for _, list := range lists {
		for _, todo := range list {
			if todo.ReferenceType == domain.DoctypeToDo {
				continue
			}
			if _, seen := byID[todo.ID]; !seen {
				order = append(order, todo.ID)
			}
			byID[todo.ID] = todo
		}
	}

	merged := make([]domain.Todo, 0, len(order))
	for _, id := range order {
		merged = append(merged, byID[id])
	}
	slices.SortFunc(merged, func(a, b domain.Todo) int {
		return b.ModifiedAt.Compare(a.ModifiedAt)
	})
	if len(merged) > todoResultLimit {
		merged = merged[:todoResultLimit]
	}
	return merged
}
