package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// FieldChange records one field transition inside a version payload. The wire
// form is a three-element array: ["field", old, new].
type FieldChange struct {
	Field string
	Old   any
	New   any
}

// MarshalJSON encodes the change in its stored array form.
func (c FieldChange) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{c.Field, c.Old, c.New})
}

// UnmarshalJSON decodes the stored array form.
func (c *FieldChange) UnmarshalJSON(data []byte) error {
	var entry []any
	if err := json.Unmarshal(data, &entry); err != nil {
		return err
	}
	if len(entry) < 3 {
		return fmt.Errorf("field change needs 3 elements, got %d", len(entry))
	}
	field, ok := entry[0].(string)
	if !ok {
		return fmt.Errorf("field change name must be a string")
	}
	c.Field = field
	c.Old = entry[1]
	c.New = entry[2]
	return nil
}

// VersionPayload is the structured diff stored by a version record.
type VersionPayload struct {
	Added   []FieldChange `json:"added,omitempty"`
	Changed []FieldChange `json:"changed,omitempty"`
	Removed []FieldChange `json:"removed,omitempty"`
}

// Version is the change-log record tied to a referenced document. Data holds
// the raw JSON payload as stored; consumers parse it tolerantly because
// historical rows may carry malformed or foreign-shaped payloads.
type Version struct {
	ID         string
	RefDoctype string
	RefName    string
	Owner      string
	Data       json.RawMessage
	CreatedAt  time.Time
}

// NewVersion constructs a version record carrying the given payload.
func NewVersion(id, refDoctype, refName, owner string, payload VersionPayload, now time.Time) (Version, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Version{}, ErrInvalidID
	}
	refDoctype = strings.TrimSpace(refDoctype)
	if refDoctype == "" {
		return Version{}, ErrInvalidDoctype
	}
	refName = strings.TrimSpace(refName)
	if refName == "" {
		return Version{}, ErrInvalidID
	}
	owner = strings.TrimSpace(owner)
	if owner == "" {
		return Version{}, ErrInvalidOwner
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return Version{}, fmt.Errorf("encode version payload: %w", err)
	}
	return Version{
		ID:         id,
		RefDoctype: refDoctype,
		RefName:    refName,
		Owner:      owner,
		Data:       data,
		CreatedAt:  now.UTC(),
	}, nil
}

// CreationPayload builds the payload recorded when a document is created.
func CreationPayload(todo Todo) VersionPayload {
	return VersionPayload{
		Added: []FieldChange{
			{Field: "description", Old: nil, New: todo.Description},
			{Field: "status", Old: nil, New: string(todo.Status)},
			{Field: "priority", Old: nil, New: string(todo.Priority)},
		},
	}
}
