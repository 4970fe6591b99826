package app

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hylla/workz/internal/auth"
)

// Reference identifies one document by type and name.
type Reference struct {
	Doctype string `json:"doctype"`
	Name    string `json:"name"`
}

// Key returns the composite "doctype:name" map key.
func (r Reference) Key() string {
	return r.Doctype + ":" + r.Name
}

// TitleFieldInfo reports the configured display field for a doctype.
type TitleFieldInfo struct {
	Doctype       string `json:"doctype"`
	TitleField    string `json:"title_field"`
	HasTitleField bool   `json:"has_title_field"`
}

// ParseReferences decodes the references argument, which arrives either as a
// JSON array of {doctype, name} objects or as a JSON string holding that
// array (clients that pre-serialize form values).
func ParseReferences(raw json.RawMessage) ([]Reference, error) {
	raw = json.RawMessage(strings.TrimSpace(string(raw)))
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	if raw[0] == '"' {
		var encoded string
		if err := json.Unmarshal(raw, &encoded); err != nil {
			return nil, fmt.Errorf("%w: decode references: %w", ErrValidation, err)
		}
		raw = json.RawMessage(encoded)
	}
	var refs []Reference
	if err := json.Unmarshal(raw, &refs); err != nil {
		return nil, fmt.Errorf("references must be a list: %w", ErrValidation)
	}
	return refs, nil
}

// ResolveReferences resolves references to display titles. The result maps
// "doctype:name" to the configured title-field value, falling back to the raw
// name when no title is available. Malformed pairs and unreadable doctypes
// are skipped; per-doctype lookup failures are logged and resolved with the
// raw-name fallback rather than failing the request.
func (s *Service) ResolveReferences(ctx context.Context, principal auth.Principal, refs []Reference) (map[string]string, error) {
	resolved := map[string]string{}
	if len(refs) == 0 {
		return resolved, nil
	}

	byDoctype := map[string][]string{}
	order := make([]string, 0, 4)
	for _, ref := range refs {
		doctype := strings.TrimSpace(ref.Doctype)
		name := strings.TrimSpace(ref.Name)
		if doctype == "" || name == "" {
			continue
		}
		if !s.perms.CanRead(ctx, principal, doctype) {
			continue
		}
		if _, ok := byDoctype[doctype]; !ok {
			order = append(order, doctype)
		}
		byDoctype[doctype] = append(byDoctype[doctype], name)
	}

	for _, doctype := range order {
		names := byDoctype[doctype]
		if err := s.resolveDoctype(ctx, doctype, names, resolved); err != nil {
			s.logger.Error("resolve references", "doctype", doctype, "err", err)
			for _, name := range names {
				resolved[doctype+":"+name] = name
			}
		}
	}
	return resolved, nil
}

// resolveDoctype batch-resolves one doctype's names into the result map.
func (s *Service) resolveDoctype(ctx context.Context, doctype string, names []string, resolved map[string]string) error {
	titleField, err := s.repo.DoctypeTitleField(ctx, doctype)
	if err != nil {
		return err
	}
	if titleField == "" {
		// Unconfigured doctypes resolve by the name field itself. Names
		// without a stored document are still omitted.
		titleField = "name"
	}

	titles, err := s.repo.DocTitles(ctx, doctype, titleField, names)
	if err != nil {
		return err
	}
	for _, name := range names {
		title := strings.TrimSpace(titles[name])
		if title == "" {
			// Unknown names are omitted, blank titles fall back to the name.
			if _, ok := titles[name]; !ok {
				continue
			}
			title = name
		}
		resolved[doctype+":"+name] = title
	}
	return nil
}

// ResolveMyReferences resolves only references that appear on the caller's
// own or assigned todos.
func (s *Service) ResolveMyReferences(ctx context.Context, principal auth.Principal, refs []Reference) (map[string]string, error) {
	if principal.IsGuest() {
		return map[string]string{}, nil
	}
	todos, err := s.ListUserTodos(ctx, principal)
	if err != nil {
		return nil, err
	}

	allowed := map[string]struct{}{}
	for _, todo := range todos {
		if todo.ReferenceType != "" && todo.ReferenceName != "" {
			allowed[Reference{Doctype: todo.ReferenceType, Name: todo.ReferenceName}.Key()] = struct{}{}
		}
	}

	mine := make([]Reference, 0, len(refs))
	for _, ref := range refs {
		if _, ok := allowed[ref.Key()]; ok {
			mine = append(mine, ref)
		}
	}
	return s.ResolveReferences(ctx, principal, mine)
}

// TitleField reports the configured title field for a doctype. Metadata
// lookup failures are logged and reported as the name-field default.
func (s *Service) TitleField(ctx context.Context, principal auth.Principal, doctype string) (TitleFieldInfo, error) {
	doctype = strings.TrimSpace(doctype)
	if doctype == "" {
		return TitleFieldInfo{}, fmt.Errorf("doctype is required: %w", ErrValidation)
	}
	if !s.perms.CanRead(ctx, principal, doctype) {
		return TitleFieldInfo{}, fmt.Errorf("not permitted to access %s: %w", doctype, auth.ErrNotPermitted)
	}

	titleField, err := s.repo.DoctypeTitleField(ctx, doctype)
	if err != nil {
		s.logger.Error("doctype title field", "doctype", doctype, "err", err)
		return TitleFieldInfo{Doctype: doctype, TitleField: "name", HasTitleField: false}, nil
	}
	if titleField == "" {
		return TitleFieldInfo{Doctype: doctype, TitleField: "name", HasTitleField: false}, nil
	}
	return TitleFieldInfo{Doctype: doctype, TitleField: titleField, HasTitleField: true}, nil
}

// ResolveSingleReference resolves one reference to a display title, falling
// back to the raw name on permission denial or any lookup failure.
func (s *Service) ResolveSingleReference(ctx context.Context, principal auth.Principal, doctype, name string) string {
	doctype = strings.TrimSpace(doctype)
	name = strings.TrimSpace(name)
	if doctype == "" || name == "" {
		return name
	}
	if !s.perms.CanRead(ctx, principal, doctype) {
		return name
	}

	titleField, err := s.repo.DoctypeTitleField(ctx, doctype)
	if err != nil {
		s.logger.Error("resolve single reference", "doctype", doctype, "name", name, "err", err)
		return name
	}
	if titleField == "" {
		return name
	}

	titles, err := s.repo.DocTitles(ctx, doctype, titleField, []string{name})
	if err != nil {
		s.logger.Error("resolve single reference", "doctype", doctype, "name", name, "err", err)
		return name
	}
	if title := strings.TrimSpace(titles[name]); title != "" {
		return title
	}
	return name
}
