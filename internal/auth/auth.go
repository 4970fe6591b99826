// Package auth provides the session, permission, and CSRF substrate backing
// the RPC handlers. It replaces what a host web framework would normally own:
// cookie sessions resolved to a principal, per-doctype read flags, and
// session-scoped CSRF tokens.
package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	charmLog "github.com/charmbracelet/log"
	"github.com/hylla/workz/internal/domain"
)

var (
	// ErrLoginRequired reports an operation attempted by a Guest session.
	ErrLoginRequired = errors.New("login required")
	// ErrInvalidCredentials reports a failed login attempt.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrNotPermitted reports a denied permission check.
	ErrNotPermitted = errors.New("not permitted")
	// ErrSessionNotFound reports an unknown or expired session id.
	ErrSessionNotFound = errors.New("session not found")
)

// Session is one authenticated browser/API session.
type Session struct {
	SID       string
	UserID    string
	CSRFToken string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Expired reports whether the session is past its expiry at the given time.
func (s Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// Principal is the resolved caller identity attached to each request.
type Principal struct {
	UserID   string
	FullName string
	Roles    []string
	SID      string
}

// Guest returns the unauthenticated principal.
func Guest() Principal {
	return Principal{UserID: domain.GuestUser}
}

// IsGuest reports whether the principal is unauthenticated.
func (p Principal) IsGuest() bool {
	return p.UserID == "" || p.UserID == domain.GuestUser
}

// Store defines the persistence surface the auth service needs.
type Store interface {
	UserByID(ctx context.Context, id string) (domain.User, error)
	CreateSession(ctx context.Context, session Session) error
	SessionBySID(ctx context.Context, sid string) (Session, error)
	SetSessionCSRFToken(ctx context.Context, sid, token string) error
	DeleteSession(ctx context.Context, sid string) error
	DoctypeReadRoles(ctx context.Context, doctype string) ([]string, error)
}

// IDGenerator returns unique identifiers for sessions and tokens.
type IDGenerator func() string

// Clock returns the current time.
type Clock func() time.Time

// ServiceConfig holds auth service settings.
type ServiceConfig struct {
	SessionTTL time.Duration
}

// defaultSessionTTL bounds session lifetime when config leaves it unset.
const defaultSessionTTL = 72 * time.Hour

// Service implements login, session resolution, permission checks, and CSRF
// token issuance over a Store.
type Service struct {
	store      Store
	idGen      IDGenerator
	clock      Clock
	sessionTTL time.Duration
	logger     *charmLog.Logger
}

// NewService constructs an auth service.
func NewService(store Store, idGen IDGenerator, clock Clock, cfg ServiceConfig, logger *charmLog.Logger) *Service {
	if idGen == nil {
		idGen = func() string { return "" }
	}
	if clock == nil {
		clock = time.Now
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = defaultSessionTTL
	}
	if logger == nil {
		logger = charmLog.Default()
	}
	return &Service{
		store:      store,
		idGen:      idGen,
		clock:      clock,
		sessionTTL: cfg.SessionTTL,
		logger:     logger,
	}
}

// Login verifies credentials and mints a new session.
func (s *Service) Login(ctx context.Context, userID, password string) (Session, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" || userID == domain.GuestUser || password == "" {
		return Session{}, ErrInvalidCredentials
	}

	user, err := s.store.UserByID(ctx, userID)
	if err != nil {
		// Uniform failure for unknown users and bad passwords.
		return Session{}, ErrInvalidCredentials
	}
	if !VerifyPassword(password, user.PasswordSalt, user.PasswordHash) {
		return Session{}, ErrInvalidCredentials
	}

	now := s.clock().UTC()
	session := Session{
		SID:       s.idGen(),
		UserID:    user.ID,
		CSRFToken: s.idGen(),
		CreatedAt: now,
		ExpiresAt: now.Add(s.sessionTTL),
	}
	if err := s.store.CreateSession(ctx, session); err != nil {
		return Session{}, err
	}
	return session, nil
}

// Logout removes the session. Unknown sids are ignored.
func (s *Service) Logout(ctx context.Context, sid string) error {
	sid = strings.TrimSpace(sid)
	if sid == "" {
		return nil
	}
	err := s.store.DeleteSession(ctx, sid)
	if err != nil && !errors.Is(err, ErrSessionNotFound) {
		return err
	}
	return nil
}

// Resolve maps a session id to the caller principal. Missing, unknown, and
// expired sessions all resolve to Guest.
func (s *Service) Resolve(ctx context.Context, sid string) Principal {
	sid = strings.TrimSpace(sid)
	if sid == "" {
		return Guest()
	}
	session, err := s.store.SessionBySID(ctx, sid)
	if err != nil {
		if !errors.Is(err, ErrSessionNotFound) {
			s.logger.Error("resolve session", "err", err)
		}
		return Guest()
	}
	if session.Expired(s.clock().UTC()) {
		return Guest()
	}
	user, err := s.store.UserByID(ctx, session.UserID)
	if err != nil {
		s.logger.Error("resolve session user", "user", session.UserID, "err", err)
		return Guest()
	}
	return Principal{
		UserID:   user.ID,
		FullName: user.DisplayName(),
		Roles:    user.Roles,
		SID:      sid,
	}
}

// CSRFToken returns the session's CSRF token, minting one on first use.
// Guest sessions are rejected.
func (s *Service) CSRFToken(ctx context.Context, principal Principal) (string, error) {
	if principal.IsGuest() {
		return "", ErrLoginRequired
	}
	session, err := s.store.SessionBySID(ctx, principal.SID)
	if err != nil {
		return "", err
	}
	if session.CSRFToken == "" {
		session.CSRFToken = s.idGen()
		if err := s.store.SetSessionCSRFToken(ctx, session.SID, session.CSRFToken); err != nil {
			return "", err
		}
	}
	return session.CSRFToken, nil
}

// VerifyCSRF reports whether the presented token matches the session's token.
func (s *Service) VerifyCSRF(ctx context.Context, principal Principal, token string) bool {
	if principal.IsGuest() {
		return false
	}
	session, err := s.store.SessionBySID(ctx, principal.SID)
	if err != nil {
		return false
	}
	return session.CSRFToken != "" && session.CSRFToken == strings.TrimSpace(token)
}

// CanRead reports whether the principal may read documents of the doctype.
// Doctypes without configured read roles are readable by any authenticated
// user; Guest can read nothing. Lookup failures are logged and deny.
func (s *Service) CanRead(ctx context.Context, principal Principal, doctype string) bool {
	if principal.IsGuest() {
		return false
	}
	doctype = strings.TrimSpace(doctype)
	if doctype == "" {
		return false
	}
	roles, err := s.store.DoctypeReadRoles(ctx, doctype)
	if err != nil {
		s.logger.Error("doctype read roles", "doctype", doctype, "err", err)
		return false
	}
	if len(roles) == 0 {
		return true
	}
	user := domain.User{ID: principal.UserID, Roles: principal.Roles}
	return user.HasAnyRole(roles)
}
