package domain

import (
	"slices"
	"strings"
	"time"
)

// DoctypeToDo is the document type name for task records.
const DoctypeToDo = "ToDo"

type Status string

const (
	StatusOpen      Status = "Open"
	StatusClosed    Status = "Closed"
	StatusCancelled Status = "Cancelled"
)

var validStatuses = []Status{StatusOpen, StatusClosed, StatusCancelled}

type Priority string

const (
	PriorityLow    Priority = "Low"
	PriorityMedium Priority = "Medium"
	PriorityHigh   Priority = "High"
)

var validPriorities = []Priority{PriorityLow, PriorityMedium, PriorityHigh}

// Todo is the assignable work-item record. A todo may be "about" another
// document, identified by ReferenceType and ReferenceName.
type Todo struct {
	ID            string
	Description   string
	Status        Status
	Priority      Priority
	AllocatedTo   string
	Owner         string
	ReferenceType string
	ReferenceName string
	CreatedAt     time.Time
	ModifiedAt    time.Time
}

// TodoInput holds input values for todo creation.
type TodoInput struct {
	ID            string
	Description   string
	Status        Status
	Priority      Priority
	AllocatedTo   string
	Owner         string
	ReferenceType string
	ReferenceName string
}

// NewTodo constructs a normalized todo record.
func NewTodo(in TodoInput, now time.Time) (Todo, error) {
	in.ID = strings.TrimSpace(in.ID)
	in.Description = strings.TrimSpace(in.Description)
	in.Owner = strings.TrimSpace(in.Owner)
	in.AllocatedTo = strings.TrimSpace(in.AllocatedTo)
	in.ReferenceType = strings.TrimSpace(in.ReferenceType)
	in.ReferenceName = strings.TrimSpace(in.ReferenceName)

	if in.ID == "" {
		return Todo{}, ErrInvalidID
	}
	if in.Description == "" {
		return Todo{}, ErrEmptyDescription
	}
	if in.Owner == "" {
		return Todo{}, ErrInvalidOwner
	}
	if in.Status == "" {
		in.Status = StatusOpen
	}
	if !slices.Contains(validStatuses, in.Status) {
		return Todo{}, ErrInvalidStatus
	}
	if in.Priority == "" {
		in.Priority = PriorityMedium
	}
	if !slices.Contains(validPriorities, in.Priority) {
		return Todo{}, ErrInvalidPriority
	}

	timestamp := now.UTC()
	return Todo{
		ID:            in.ID,
		Description:   in.Description,
		Status:        in.Status,
		Priority:      in.Priority,
		AllocatedTo:   in.AllocatedTo,
		Owner:         in.Owner,
		ReferenceType: in.ReferenceType,
		ReferenceName: in.ReferenceName,
		CreatedAt:     timestamp,
		ModifiedAt:    timestamp,
	}, nil
}

// TodoUpdate carries optional new values for an update operation. Nil fields
// leave the stored value untouched.
type TodoUpdate struct {
	Description   *string
	Status        *Status
	Priority      *Priority
	AllocatedTo   *string
	ReferenceType *string
	ReferenceName *string
}

// Apply mutates the todo with the requested values and returns the resulting
// field-by-field diff for the change log. An empty diff means nothing changed.
func (t *Todo) Apply(update TodoUpdate, now time.Time) ([]FieldChange, error) {
	changes := make([]FieldChange, 0, 6)

	if update.Description != nil {
		desc := strings.TrimSpace(*update.Description)
		if desc == "" {
			return nil, ErrEmptyDescription
		}
		if desc != t.Description {
			changes = append(changes, FieldChange{Field: "description", Old: t.Description, New: desc})
			t.Description = desc
		}
	}
	if update.Status != nil {
		if !slices.Contains(validStatuses, *update.Status) {
			return nil, ErrInvalidStatus
		}
		if *update.Status != t.Status {
			changes = append(changes, FieldChange{Field: "status", Old: string(t.Status), New: string(*update.Status)})
			t.Status = *update.Status
		}
	}
	if update.Priority != nil {
		if !slices.Contains(validPriorities, *update.Priority) {
			return nil, ErrInvalidPriority
		}
		if *update.Priority != t.Priority {
			changes = append(changes, FieldChange{Field: "priority", Old: string(t.Priority), New: string(*update.Priority)})
			t.Priority = *update.Priority
		}
	}
	if update.AllocatedTo != nil {
		allocated := strings.TrimSpace(*update.AllocatedTo)
		if allocated != t.AllocatedTo {
			changes = append(changes, FieldChange{Field: "allocated_to", Old: t.AllocatedTo, New: allocated})
			t.AllocatedTo = allocated
		}
	}
	if update.ReferenceType != nil {
		refType := strings.TrimSpace(*update.ReferenceType)
		if refType != t.ReferenceType {
			changes = append(changes, FieldChange{Field: "reference_type", Old: t.ReferenceType, New: refType})
			t.ReferenceType = refType
		}
	}
	if update.ReferenceName != nil {
		refName := strings.TrimSpace(*update.ReferenceName)
		if refName != t.ReferenceName {
			changes = append(changes, FieldChange{Field: "reference_name", Old: t.ReferenceName, New: refName})
			t.ReferenceName = refName
		}
	}

	if len(changes) > 0 {
		t.ModifiedAt = now.UTC()
	}
	return changes, nil
}
