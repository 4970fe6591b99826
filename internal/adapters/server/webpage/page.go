// Package webpage renders the server-side application shell: an HTML page
// carrying the session boot payload the SPA hydrates from.
package webpage

import (
	"encoding/json"
	"fmt"
	"html/template"
	"net/http"
	"regexp"

	charmLog "github.com/charmbracelet/log"
	"github.com/hylla/workz/internal/adapters/server/common"
	"github.com/hylla/workz/internal/adapters/server/httpapi"
	"github.com/hylla/workz/internal/auth"
	"github.com/hylla/workz/internal/domain"
)

// Script-tag patterns stripped from the boot JSON before it is embedded in
// the page, so stored content cannot terminate the surrounding script block.
var (
	scriptTagPattern        = regexp.MustCompile(`<script[^<]*</script>`)
	closingScriptTagPattern = regexp.MustCompile(`</script>`)
)

// authFailedMessage is the single user-facing error for every shell failure.
// Root causes stay in the server log only.
const authFailedMessage = "Authentication failed. Please log in again."

// UserInfo is the identity block exposed to the shell.
type UserInfo struct {
	Name     string   `json:"name"`
	FullName string   `json:"full_name"`
	Email    string   `json:"email,omitempty"`
	Roles    []string `json:"roles"`
}

// AppInfo describes the serving application.
type AppInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Boot is the session payload serialized into the shell page.
type Boot struct {
	Site      string   `json:"site"`
	User      UserInfo `json:"user"`
	App       AppInfo  `json:"app"`
	CSRFToken string   `json:"csrf_token"`
}

// Handler serves the application shell route and its catch-all subpaths.
type Handler struct {
	sessions common.SessionService
	site     string
	version  string
	logger   *charmLog.Logger
	tmpl     *template.Template
}

// NewHandler constructs the shell page adapter.
func NewHandler(sessions common.SessionService, site, version string, logger *charmLog.Logger) *Handler {
	if logger == nil {
		logger = charmLog.Default()
	}
	return &Handler{
		sessions: sessions,
		site:     site,
		version:  version,
		logger:   logger,
		tmpl:     template.Must(template.New("shell").Parse(shellTemplate)),
	}
}

// ServeHTTP renders the shell for authenticated sessions. Every failure mode
// collapses into one generic authentication error.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	principal := httpapi.ResolvePrincipal(r, h.sessions)
	if principal.IsGuest() {
		h.deny(w, fmt.Errorf("guest session: %w", auth.ErrLoginRequired))
		return
	}

	bootLiteral, user, err := h.bootLiteral(r, principal)
	if err != nil {
		h.deny(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	renderErr := h.tmpl.Execute(w, shellContext{
		Site:         h.site,
		BuildVersion: h.version,
		Boot:         template.JS(bootLiteral),
		User:         user,
	})
	if renderErr != nil {
		h.logger.Error("render shell", "err", renderErr)
	}
}

// bootLiteral builds the sanitized, double-encoded boot JSON string literal.
func (h *Handler) bootLiteral(r *http.Request, principal auth.Principal) (string, UserInfo, error) {
	token, err := h.sessions.CSRFToken(r.Context(), principal)
	if err != nil {
		return "", UserInfo{}, fmt.Errorf("session boot: %w", err)
	}

	user := UserInfo{
		Name:     principal.UserID,
		FullName: principal.FullName,
		Email:    domain.User{ID: principal.UserID}.Email(),
		Roles:    principal.Roles,
	}
	if user.Roles == nil {
		user.Roles = []string{}
	}

	boot := Boot{
		Site:      h.site,
		User:      user,
		App:       AppInfo{Name: "workz", Version: h.version},
		CSRFToken: token,
	}
	bootJSON, err := json.Marshal(boot)
	if err != nil {
		return "", UserInfo{}, fmt.Errorf("encode boot: %w", err)
	}

	sanitized := scriptTagPattern.ReplaceAll(bootJSON, nil)
	sanitized = closingScriptTagPattern.ReplaceAll(sanitized, nil)

	literal, err := json.Marshal(string(sanitized))
	if err != nil {
		return "", UserInfo{}, fmt.Errorf("encode boot literal: %w", err)
	}
	return string(literal), user, nil
}

// deny logs the root cause and writes the generic authentication failure.
func (h *Handler) deny(w http.ResponseWriter, err error) {
	h.logger.Warn("shell access denied", "err", err)
	http.Error(w, authFailedMessage, http.StatusUnauthorized)
}

// shellContext carries the template inputs.
type shellContext struct {
	Site         string
	BuildVersion string
	Boot         template.JS
	User         UserInfo
}

// shellTemplate is the minimal SPA shell. The client bundle reads the boot
// payload from `window.workzBoot`.
const shellTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Workz</title>
<meta name="build-version" content="{{.BuildVersion}}">
</head>
<body>
<div id="app" data-user="{{.User.Name}}"></div>
<script>
window.workzBoot = JSON.parse({{.Boot}});
</script>
<script src="/assets/workz/app.js" defer></script>
</body>
</html>
`
