package app

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/hylla/workz/internal/auth"
	"github.com/hylla/workz/internal/domain"
)

// Activity item type values.
const (
	ActivityTypeComment      = "comment"
	ActivityTypeAssignment   = "assignment"
	ActivityTypeStatusChange = "status_change"
)

// Author identifies who produced an activity item.
type Author struct {
	Name string `json:"name"`
}

// ActivityItem is the uniform read-only projection combining change-log and
// comment records for one todo.
type ActivityItem struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Author    Author         `json:"author"`
	Content   string         `json:"content"`
	CreatedAt time.Time      `json:"created_at"`
	Meta      map[string]any `json:"meta"`
}

// ListHistory returns the activity feed for a todo: formatted version entries
// merged with comments, newest first. Malformed version payloads are logged
// and skipped.
func (s *Service) ListHistory(ctx context.Context, principal auth.Principal, todoID string) ([]ActivityItem, error) {
	todoID = strings.TrimSpace(todoID)
	if todoID == "" {
		return nil, fmt.Errorf("todo_id is required: %w", ErrValidation)
	}
	if !s.perms.CanRead(ctx, principal, domain.DoctypeToDo) {
		return nil, fmt.Errorf("not permitted to read ToDo: %w", auth.ErrNotPermitted)
	}

	versions, err := s.repo.ListVersions(ctx, domain.DoctypeToDo, todoID)
	if err != nil {
		return nil, err
	}
	comments, err := s.repo.ListComments(ctx, domain.DoctypeToDo, todoID)
	if err != nil {
		return nil, err
	}

	items := make([]ActivityItem, 0, len(versions)+len(comments))
	for _, version := range versions {
		item, ok := s.versionItem(ctx, version)
		if !ok {
			continue
		}
		items = append(items, item)
	}
	for _, comment := range comments {
		items = append(items, s.commentItem(ctx, comment))
	}

	slices.SortFunc(items, func(a, b ActivityItem) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		// Timestamp ties break by id descending so the feed is deterministic.
		return cmp.Compare(b.ID, a.ID)
	})
	return items, nil
}

// AddComment validates and stores a comment, returning it in activity shape.
func (s *Service) AddComment(ctx context.Context, principal auth.Principal, todoID, content string) (ActivityItem, error) {
	todoID = strings.TrimSpace(todoID)
	if todoID == "" {
		return ActivityItem{}, fmt.Errorf("todo_id is required: %w", ErrValidation)
	}
	if strings.TrimSpace(content) == "" {
		return ActivityItem{}, fmt.Errorf("%w: %w", ErrValidation, domain.ErrEmptyContent)
	}
	// Read permission is the minimum required to comment.
	if !s.perms.CanRead(ctx, principal, domain.DoctypeToDo) {
		return ActivityItem{}, fmt.Errorf("not permitted to comment on ToDo: %w", auth.ErrNotPermitted)
	}

	comment, err := domain.NewComment(domain.CommentInput{
		ID:         s.idGen(),
		RefDoctype: domain.DoctypeToDo,
		RefName:    todoID,
		Content:    content,
		Owner:      principal.UserID,
	}, s.clock())
	if err != nil {
		return ActivityItem{}, fmt.Errorf("%w: %w", ErrValidation, err)
	}
	if err := s.repo.CreateComment(ctx, comment); err != nil {
		return ActivityItem{}, err
	}
	return s.commentItem(ctx, comment), nil
}

// versionItem reshapes one change-log record into an activity item. The
// second return value is false when the stored payload cannot be used.
func (s *Service) versionItem(ctx context.Context, version domain.Version) (ActivityItem, bool) {
	payload := map[string]any{}
	if len(version.Data) > 0 {
		if err := json.Unmarshal(version.Data, &payload); err != nil {
			s.logger.Error("skip malformed version payload", "version", version.ID, "err", err)
			return ActivityItem{}, false
		}
	}

	changedFields := make([]string, 0, 4)
	changeType := ActivityTypeStatusChange

	switch changed := payload["changed"].(type) {
	case []any:
		for _, raw := range changed {
			entry, ok := raw.([]any)
			if !ok {
				continue
			}
			if len(entry) >= 3 {
				field := fmt.Sprint(entry[0])
				changedFields = append(changedFields, s.formatFieldChange(ctx, field, entry[1], entry[2]))
				if field == "allocated_to" {
					changeType = ActivityTypeAssignment
				}
			} else if len(entry) > 0 {
				changedFields = append(changedFields, fmt.Sprint(entry[0]))
			}
		}
	case map[string]any:
		// Foreign-shaped payload: fall back to the bare field names.
		for field := range changed {
			changedFields = append(changedFields, field)
		}
		slices.Sort(changedFields)
	}

	if hasEntries(payload["added"]) {
		changeType = ActivityTypeStatusChange
		changedFields = []string{"ToDo created"}
	} else if len(changedFields) == 0 {
		if hasEntries(payload["removed"]) {
			changedFields = []string{"Fields removed"}
		} else {
			changedFields = []string{"ToDo updated"}
		}
	}

	return ActivityItem{
		ID:        version.ID,
		Type:      changeType,
		Author:    Author{Name: s.userDisplay(ctx, version.Owner)},
		Content:   strings.Join(changedFields, "; "),
		CreatedAt: version.CreatedAt,
		Meta: map[string]any{
			"changes":      changedFields,
			"version_data": payload,
		},
	}, true
}

// commentItem reshapes one comment record into an activity item.
func (s *Service) commentItem(ctx context.Context, comment domain.Comment) ActivityItem {
	return ActivityItem{
		ID:        comment.ID,
		Type:      ActivityTypeComment,
		Author:    Author{Name: s.userDisplay(ctx, comment.Owner)},
		Content:   comment.Content,
		CreatedAt: comment.CreatedAt,
		Meta:      nil,
	}
}

// hasEntries reports whether a decoded payload section carries any entries.
func hasEntries(section any) bool {
	switch v := section.(type) {
	case []any:
		return len(v) > 0
	case map[string]any:
		return len(v) > 0
	default:
		return false
	}
}
