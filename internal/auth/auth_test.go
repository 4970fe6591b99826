package auth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	charmLog "github.com/charmbracelet/log"
	"github.com/hylla/workz/internal/domain"
)

type fakeStore struct {
	users     map[string]domain.User
	sessions  map[string]Session
	readRoles map[string][]string

	rolesErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:     map[string]domain.User{},
		sessions:  map[string]Session{},
		readRoles: map[string][]string{},
	}
}

func (f *fakeStore) UserByID(_ context.Context, id string) (domain.User, error) {
	user, ok := f.users[id]
	if !ok {
		return domain.User{}, fmt.Errorf("user %s not found", id)
	}
	return user, nil
}

func (f *fakeStore) CreateSession(_ context.Context, session Session) error {
	f.sessions[session.SID] = session
	return nil
}

func (f *fakeStore) SessionBySID(_ context.Context, sid string) (Session, error) {
	session, ok := f.sessions[sid]
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	return session, nil
}

func (f *fakeStore) SetSessionCSRFToken(_ context.Context, sid, token string) error {
	session, ok := f.sessions[sid]
	if !ok {
		return ErrSessionNotFound
	}
	session.CSRFToken = token
	f.sessions[sid] = session
	return nil
}

func (f *fakeStore) DeleteSession(_ context.Context, sid string) error {
	if _, ok := f.sessions[sid]; !ok {
		return ErrSessionNotFound
	}
	delete(f.sessions, sid)
	return nil
}

func (f *fakeStore) DoctypeReadRoles(_ context.Context, doctype string) ([]string, error) {
	if f.rolesErr != nil {
		return nil, f.rolesErr
	}
	return f.readRoles[doctype], nil
}

func addUser(store *fakeStore, id, fullName, password string, roles ...string) {
	salt, err := NewSalt()
	if err != nil {
		panic(err)
	}
	store.users[id] = domain.User{
		ID:           id,
		FullName:     fullName,
		Roles:        roles,
		PasswordSalt: salt,
		PasswordHash: HashPassword(password, salt),
	}
}

func newTestService(store *fakeStore, now time.Time) *Service {
	counter := 0
	return NewService(store, func() string {
		counter++
		return fmt.Sprintf("tok-%02d", counter)
	}, func() time.Time {
		return now
	}, ServiceConfig{}, charmLog.New(io.Discard))
}

func TestLoginAndResolve(t *testing.T) {
	store := newFakeStore()
	addUser(store, "ada@example.com", "Ada Lovelace", "s3cret", "Staff")
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	svc := newTestService(store, now)

	session, err := svc.Login(context.Background(), "ada@example.com", "s3cret")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if session.SID == "" || session.UserID != "ada@example.com" {
		t.Fatalf("unexpected session %#v", session)
	}
	if !session.ExpiresAt.Equal(now.Add(defaultSessionTTL)) {
		t.Fatalf("unexpected expiry %v", session.ExpiresAt)
	}

	principal := svc.Resolve(context.Background(), session.SID)
	if principal.IsGuest() {
		t.Fatal("expected authenticated principal")
	}
	if principal.FullName != "Ada Lovelace" || principal.SID != session.SID {
		t.Fatalf("unexpected principal %#v", principal)
	}
}

func TestLoginRejections(t *testing.T) {
	store := newFakeStore()
	addUser(store, "ada@example.com", "Ada Lovelace", "s3cret")
	svc := newTestService(store, time.Now())

	cases := []struct {
		name     string
		user     string
		password string
	}{
		{"wrong password", "ada@example.com", "nope"},
		{"unknown user", "ghost@example.com", "s3cret"},
		{"guest id", domain.GuestUser, "s3cret"},
		{"empty password", "ada@example.com", ""},
		{"empty user", "", "s3cret"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.Login(context.Background(), tc.user, tc.password); !errors.Is(err, ErrInvalidCredentials) {
				t.Fatalf("Login() error = %v, want ErrInvalidCredentials", err)
			}
		})
	}
}

func TestResolveGuestFallbacks(t *testing.T) {
	store := newFakeStore()
	addUser(store, "ada@example.com", "Ada Lovelace", "s3cret")
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	svc := newTestService(store, now)

	if p := svc.Resolve(context.Background(), ""); !p.IsGuest() {
		t.Fatal("expected guest for empty sid")
	}
	if p := svc.Resolve(context.Background(), "missing"); !p.IsGuest() {
		t.Fatal("expected guest for unknown sid")
	}

	store.sessions["expired"] = Session{
		SID:       "expired",
		UserID:    "ada@example.com",
		ExpiresAt: now.Add(-time.Minute),
	}
	if p := svc.Resolve(context.Background(), "expired"); !p.IsGuest() {
		t.Fatal("expected guest for expired session")
	}

	store.sessions["orphan"] = Session{
		SID:       "orphan",
		UserID:    "gone@example.com",
		ExpiresAt: now.Add(time.Hour),
	}
	if p := svc.Resolve(context.Background(), "orphan"); !p.IsGuest() {
		t.Fatal("expected guest when the session user is missing")
	}
}

func TestLogout(t *testing.T) {
	store := newFakeStore()
	store.sessions["sid-1"] = Session{SID: "sid-1", UserID: "ada@example.com"}
	svc := newTestService(store, time.Now())

	if err := svc.Logout(context.Background(), "sid-1"); err != nil {
		t.Fatalf("Logout() error = %v", err)
	}
	if _, ok := store.sessions["sid-1"]; ok {
		t.Fatal("expected session to be deleted")
	}
	if err := svc.Logout(context.Background(), "sid-1"); err != nil {
		t.Fatalf("Logout(repeat) error = %v", err)
	}
	if err := svc.Logout(context.Background(), ""); err != nil {
		t.Fatalf("Logout(empty) error = %v", err)
	}
}

func TestCSRFTokenMintedOnFirstUse(t *testing.T) {
	store := newFakeStore()
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	store.sessions["sid-1"] = Session{SID: "sid-1", UserID: "ada@example.com", ExpiresAt: now.Add(time.Hour)}
	svc := newTestService(store, now)
	principal := Principal{UserID: "ada@example.com", SID: "sid-1"}

	token, err := svc.CSRFToken(context.Background(), principal)
	if err != nil {
		t.Fatalf("CSRFToken() error = %v", err)
	}
	if token == "" {
		t.Fatal("expected minted token")
	}

	again, err := svc.CSRFToken(context.Background(), principal)
	if err != nil {
		t.Fatalf("CSRFToken(again) error = %v", err)
	}
	if again != token {
		t.Fatalf("expected stable token, got %q then %q", token, again)
	}

	if !svc.VerifyCSRF(context.Background(), principal, token) {
		t.Fatal("expected token to verify")
	}
	if svc.VerifyCSRF(context.Background(), principal, "forged") {
		t.Fatal("expected forged token to fail")
	}

	if _, err := svc.CSRFToken(context.Background(), Guest()); !errors.Is(err, ErrLoginRequired) {
		t.Fatalf("CSRFToken(guest) error = %v", err)
	}
	if svc.VerifyCSRF(context.Background(), Guest(), token) {
		t.Fatal("expected guest verification to fail")
	}
}

func TestCanRead(t *testing.T) {
	store := newFakeStore()
	store.readRoles["Project"] = []string{"Projects User"}
	now := time.Now()
	svc := newTestService(store, now)

	staff := Principal{UserID: "ada@example.com", Roles: []string{"Staff"}}
	projects := Principal{UserID: "grace@example.com", Roles: []string{"Projects User"}}

	// No configured roles means any authenticated user may read.
	if !svc.CanRead(context.Background(), staff, "ToDo") {
		t.Fatal("expected open doctype to be readable")
	}
	if svc.CanRead(context.Background(), staff, "Project") {
		t.Fatal("expected role-gated doctype to deny Staff")
	}
	if !svc.CanRead(context.Background(), projects, "Project") {
		t.Fatal("expected matching role to allow")
	}
	if svc.CanRead(context.Background(), Guest(), "ToDo") {
		t.Fatal("expected guest to be denied")
	}
	if svc.CanRead(context.Background(), staff, "  ") {
		t.Fatal("expected blank doctype to be denied")
	}

	store.rolesErr = errors.New("db closed")
	if svc.CanRead(context.Background(), staff, "ToDo") {
		t.Fatal("expected lookup failure to deny")
	}
}

func TestPasswordHashing(t *testing.T) {
	salt, err := NewSalt()
	if err != nil {
		t.Fatalf("NewSalt() error = %v", err)
	}
	hash := HashPassword("s3cret", salt)
	if !VerifyPassword("s3cret", salt, hash) {
		t.Fatal("expected password to verify")
	}
	if VerifyPassword("wrong", salt, hash) {
		t.Fatal("expected wrong password to fail")
	}

	otherSalt, err := NewSalt()
	if err != nil {
		t.Fatalf("NewSalt() error = %v", err)
	}
	if otherSalt == salt {
		t.Fatal("expected salts to differ")
	}
	if VerifyPassword("s3cret", otherSalt, hash) {
		t.Fatal("expected mismatched salt to fail")
	}
}
