package domain

import "errors"

var (
	ErrInvalidID        = errors.New("invalid id")
	ErrInvalidDoctype   = errors.New("invalid doctype")
	ErrInvalidStatus    = errors.New("invalid status")
	ErrInvalidPriority  = errors.New("invalid priority")
	ErrEmptyContent     = errors.New("content cannot be empty")
	ErrEmptyDescription = errors.New("description cannot be empty")
	ErrInvalidOwner     = errors.New("invalid owner")
)
