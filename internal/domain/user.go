package domain

import (
	"slices"
	"strings"
	"time"
)

// GuestUser is the principal id for unauthenticated sessions.
const GuestUser = "Guest"

// User is an account record. The id is conventionally an email address but
// any non-empty identifier is accepted.
type User struct {
	ID           string
	FullName     string
	Roles        []string
	PasswordHash string
	PasswordSalt string
	CreatedAt    time.Time
}

// NewUser constructs a normalized user record.
func NewUser(id, fullName string, roles []string, now time.Time) (User, error) {
	id = strings.TrimSpace(id)
	if id == "" || id == GuestUser {
		return User{}, ErrInvalidID
	}
	fullName = strings.TrimSpace(fullName)
	if fullName == "" {
		fullName = id
	}
	return User{
		ID:        id,
		FullName:  fullName,
		Roles:     normalizeRoles(roles),
		CreatedAt: now.UTC(),
	}, nil
}

// DisplayName returns the name shown in activity feeds.
func (u User) DisplayName() string {
	if strings.TrimSpace(u.FullName) != "" {
		return u.FullName
	}
	return u.ID
}

// Email returns the user id when it looks like an email address.
func (u User) Email() string {
	if strings.Contains(u.ID, "@") {
		return u.ID
	}
	return ""
}

// HasAnyRole reports whether the user holds at least one of the given roles.
func (u User) HasAnyRole(roles []string) bool {
	for _, role := range roles {
		if slices.Contains(u.Roles, role) {
			return true
		}
	}
	return false
}

func normalizeRoles(roles []string) []string {
	out := make([]string, 0, len(roles))
	seen := map[string]struct{}{}
	for _, raw := range roles {
		role := strings.TrimSpace(raw)
		if role == "" {
			continue
		}
		if _, ok := seen[role]; ok {
			continue
		}
		seen[role] = struct{}{}
		out = append(out, role)
	}
	slices.Sort(out)
	return out
}
