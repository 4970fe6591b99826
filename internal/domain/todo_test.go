package domain

import (
	"errors"
	"testing"
	"time"
)

func TestNewTodoDefaultsAndValidation(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC)

	todo, err := NewTodo(TodoInput{
		ID:          "todo-1",
		Description: "  Review deployment checklist  ",
		Owner:       "ada@example.com",
	}, now)
	if err != nil {
		t.Fatalf("NewTodo() error = %v", err)
	}
	if todo.Description != "Review deployment checklist" {
		t.Fatalf("unexpected description %q", todo.Description)
	}
	if todo.Status != StatusOpen {
		t.Fatalf("expected default status Open, got %q", todo.Status)
	}
	if todo.Priority != PriorityMedium {
		t.Fatalf("expected default priority Medium, got %q", todo.Priority)
	}
	if !todo.CreatedAt.Equal(now) || !todo.ModifiedAt.Equal(now) {
		t.Fatalf("unexpected timestamps %v / %v", todo.CreatedAt, todo.ModifiedAt)
	}

	cases := []struct {
		name  string
		input TodoInput
		want  error
	}{
		{"missing id", TodoInput{Description: "x", Owner: "u"}, ErrInvalidID},
		{"empty description", TodoInput{ID: "t", Description: "   ", Owner: "u"}, ErrEmptyDescription},
		{"missing owner", TodoInput{ID: "t", Description: "x"}, ErrInvalidOwner},
		{"bad status", TodoInput{ID: "t", Description: "x", Owner: "u", Status: "Paused"}, ErrInvalidStatus},
		{"bad priority", TodoInput{ID: "t", Description: "x", Owner: "u", Priority: "Urgent"}, ErrInvalidPriority},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewTodo(tc.input, now); !errors.Is(err, tc.want) {
				t.Fatalf("NewTodo() error = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestTodoApplyRecordsDiff(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC)
	todo, err := NewTodo(TodoInput{
		ID:          "todo-1",
		Description: "Review deployment checklist",
		Owner:       "ada@example.com",
	}, now)
	if err != nil {
		t.Fatalf("NewTodo() error = %v", err)
	}

	later := now.Add(2 * time.Hour)
	status := StatusClosed
	allocated := "grace@example.com"
	changes, err := todo.Apply(TodoUpdate{Status: &status, AllocatedTo: &allocated}, later)
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if len(changes) != 2 {
		t.Fatalf("expected 2 changes, got %d: %#v", len(changes), changes)
	}
	if changes[0].Field != "status" || changes[0].Old != "Open" || changes[0].New != "Closed" {
		t.Fatalf("unexpected status change %#v", changes[0])
	}
	if changes[1].Field != "allocated_to" || changes[1].New != "grace@example.com" {
		t.Fatalf("unexpected allocation change %#v", changes[1])
	}
	if todo.Status != StatusClosed || todo.AllocatedTo != "grace@example.com" {
		t.Fatalf("update not applied: %#v", todo)
	}
	if !todo.ModifiedAt.Equal(later) {
		t.Fatalf("expected ModifiedAt %v, got %v", later, todo.ModifiedAt)
	}
}

func TestTodoApplyNoOp(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC)
	todo, err := NewTodo(TodoInput{
		ID:          "todo-1",
		Description: "Review deployment checklist",
		Owner:       "ada@example.com",
	}, now)
	if err != nil {
		t.Fatalf("NewTodo() error = %v", err)
	}

	same := todo.Description
	changes, err := todo.Apply(TodoUpdate{Description: &same}, now.Add(time.Hour))
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if len(changes) != 0 {
		t.Fatalf("expected no changes, got %#v", changes)
	}
	if !todo.ModifiedAt.Equal(now) {
		t.Fatalf("ModifiedAt moved on a no-op update: %v", todo.ModifiedAt)
	}
}

func TestTodoApplyRejectsInvalidValues(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC)
	todo, err := NewTodo(TodoInput{
		ID:          "todo-1",
		Description: "Review deployment checklist",
		Owner:       "ada@example.com",
	}, now)
	if err != nil {
		t.Fatalf("NewTodo() error = %v", err)
	}

	empty := "   "
	if _, err := todo.Apply(TodoUpdate{Description: &empty}, now); !errors.Is(err, ErrEmptyDescription) {
		t.Fatalf("Apply(empty description) error = %v", err)
	}
	bad := Status("Paused")
	if _, err := todo.Apply(TodoUpdate{Status: &bad}, now); !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("Apply(bad status) error = %v", err)
	}
}
