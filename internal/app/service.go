// Package app implements the RPC-facing application services: activity-log
// reconstruction, reference resolution, and per-user todo listing.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	charmLog "github.com/charmbracelet/log"
	"github.com/hylla/workz/internal/auth"
	"github.com/hylla/workz/internal/domain"
)

// ErrNotFound and related errors describe validation and runtime failures.
var (
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("validation error")
)

// Repository defines the persistence surface the application services need.
type Repository interface {
	TodoByID(ctx context.Context, id string) (domain.Todo, error)
	CreateTodo(ctx context.Context, todo domain.Todo, version domain.Version) error
	UpdateTodo(ctx context.Context, todo domain.Todo, version *domain.Version) error
	ListTodosOwnedBy(ctx context.Context, user string, limit int) ([]domain.Todo, error)
	ListTodosAssignedTo(ctx context.Context, user string, limit int) ([]domain.Todo, error)
	ListTodosForUser(ctx context.Context, user string, limit int) ([]domain.Todo, error)
	ListVersions(ctx context.Context, refDoctype, refName string) ([]domain.Version, error)
	ListComments(ctx context.Context, refDoctype, refName string) ([]domain.Comment, error)
	CreateComment(ctx context.Context, comment domain.Comment) error
	DoctypeTitleField(ctx context.Context, doctype string) (string, error)
	DocTitles(ctx context.Context, doctype, titleField string, names []string) (map[string]string, error)
	UserByID(ctx context.Context, id string) (domain.User, error)
}

// PermissionChecker answers doctype-level read permission questions.
type PermissionChecker interface {
	CanRead(ctx context.Context, principal auth.Principal, doctype string) bool
}

// IDGenerator returns unique identifiers for new records.
type IDGenerator func() string

// Clock returns the current time.
type Clock func() time.Time

// Service hosts the RPC operations over a Repository.
type Service struct {
	repo   Repository
	perms  PermissionChecker
	idGen  IDGenerator
	clock  Clock
	logger *charmLog.Logger
}

// NewService constructs an application service.
func NewService(repo Repository, perms PermissionChecker, idGen IDGenerator, clock Clock, logger *charmLog.Logger) *Service {
	if idGen == nil {
		idGen = func() string { return "" }
	}
	if clock == nil {
		clock = time.Now
	}
	if logger == nil {
		logger = charmLog.Default()
	}
	return &Service{
		repo:   repo,
		perms:  perms,
		idGen:  idGen,
		clock:  clock,
		logger: logger,
	}
}

// CreateTodoRequest carries input for todo creation.
type CreateTodoRequest struct {
	Description   string          `json:"description"`
	Status        domain.Status   `json:"status,omitempty"`
	Priority      domain.Priority `json:"priority,omitempty"`
	AllocatedTo   string          `json:"allocated_to,omitempty"`
	ReferenceType string          `json:"reference_type,omitempty"`
	ReferenceName string          `json:"reference_name,omitempty"`
}

// CreateTodo inserts a todo and its creation version in one step.
func (s *Service) CreateTodo(ctx context.Context, principal auth.Principal, req CreateTodoRequest) (domain.Todo, error) {
	if principal.IsGuest() {
		return domain.Todo{}, auth.ErrLoginRequired
	}
	if !s.perms.CanRead(ctx, principal, domain.DoctypeToDo) {
		return domain.Todo{}, fmt.Errorf("not permitted to create ToDo: %w", auth.ErrNotPermitted)
	}

	now := s.clock()
	todo, err := domain.NewTodo(domain.TodoInput{
		ID:            s.idGen(),
		Description:   req.Description,
		Status:        req.Status,
		Priority:      req.Priority,
		AllocatedTo:   req.AllocatedTo,
		Owner:         principal.UserID,
		ReferenceType: req.ReferenceType,
		ReferenceName: req.ReferenceName,
	}, now)
	if err != nil {
		return domain.Todo{}, fmt.Errorf("%w: %w", ErrValidation, err)
	}

	version, err := domain.NewVersion(s.idGen(), domain.DoctypeToDo, todo.ID, principal.UserID, domain.CreationPayload(todo), now)
	if err != nil {
		return domain.Todo{}, err
	}
	if err := s.repo.CreateTodo(ctx, todo, version); err != nil {
		return domain.Todo{}, err
	}
	return todo, nil
}

// UpdateTodo applies the update and records the resulting diff as a version.
// A no-op update writes no version.
func (s *Service) UpdateTodo(ctx context.Context, principal auth.Principal, todoID string, update domain.TodoUpdate) (domain.Todo, error) {
	if principal.IsGuest() {
		return domain.Todo{}, auth.ErrLoginRequired
	}
	if todoID == "" {
		return domain.Todo{}, fmt.Errorf("todo_id is required: %w", ErrValidation)
	}
	if !s.perms.CanRead(ctx, principal, domain.DoctypeToDo) {
		return domain.Todo{}, fmt.Errorf("not permitted to update ToDo: %w", auth.ErrNotPermitted)
	}

	todo, err := s.repo.TodoByID(ctx, todoID)
	if err != nil {
		return domain.Todo{}, err
	}

	now := s.clock()
	changes, err := todo.Apply(update, now)
	if err != nil {
		return domain.Todo{}, fmt.Errorf("%w: %w", ErrValidation, err)
	}
	if len(changes) == 0 {
		return todo, nil
	}

	version, err := domain.NewVersion(s.idGen(), domain.DoctypeToDo, todo.ID, principal.UserID, domain.VersionPayload{Changed: changes}, now)
	if err != nil {
		return domain.Todo{}, err
	}
	if err := s.repo.UpdateTodo(ctx, todo, &version); err != nil {
		return domain.Todo{}, err
	}
	return todo, nil
}

// userDisplay resolves a user id to its display name, falling back to the raw
// id on any lookup failure.
func (s *Service) userDisplay(ctx context.Context, userID string) string {
	if userID == "" {
		return "User"
	}
	user, err := s.repo.UserByID(ctx, userID)
	if err != nil {
		return userID
	}
	return user.DisplayName()
}
