package domain

import (
	"strings"
	"time"
)

// Comment stores a free-text note attached to a referenced document.
type Comment struct {
	ID         string
	RefDoctype string
	RefName    string
	Content    string
	Owner      string
	CreatedAt  time.Time
}

// CommentInput holds input values for comment creation.
type CommentInput struct {
	ID         string
	RefDoctype string
	RefName    string
	Content    string
	Owner      string
}

// NewComment constructs a normalized comment.
func NewComment(in CommentInput, now time.Time) (Comment, error) {
	in.ID = strings.TrimSpace(in.ID)
	if in.ID == "" {
		return Comment{}, ErrInvalidID
	}

	in.RefDoctype = strings.TrimSpace(in.RefDoctype)
	if in.RefDoctype == "" {
		in.RefDoctype = DoctypeToDo
	}
	in.RefName = strings.TrimSpace(in.RefName)
	if in.RefName == "" {
		return Comment{}, ErrInvalidID
	}

	content := strings.TrimSpace(in.Content)
	if content == "" {
		return Comment{}, ErrEmptyContent
	}

	owner := strings.TrimSpace(in.Owner)
	if owner == "" {
		return Comment{}, ErrInvalidOwner
	}

	return Comment{
		ID:         in.ID,
		RefDoctype: in.RefDoctype,
		RefName:    in.RefName,
		Content:    content,
		Owner:      owner,
		CreatedAt:  now.UTC(),
	}, nil
}
