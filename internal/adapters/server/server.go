// Package server composes the RPC API, MCP transport, and shell page into
// one process handler.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	charmLog "github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/hylla/workz/internal/adapters/server/common"
	"github.com/hylla/workz/internal/adapters/server/httpapi"
	"github.com/hylla/workz/internal/adapters/server/mcpapi"
	"github.com/hylla/workz/internal/adapters/server/webpage"
	"github.com/hylla/workz/internal/auth"
)

// defaultBindAddress defines the localhost-first serve default.
const defaultBindAddress = "127.0.0.1:8080"

// defaultShutdownTimeout bounds graceful shutdown time once context cancellation starts.
const defaultShutdownTimeout = 5 * time.Second

// Config defines serve-mode endpoint configuration.
type Config struct {
	HTTPBind      string
	MCPEndpoint   string
	ShellEndpoint string
	SiteName      string
	ServerName    string
	ServerVersion string
}

// Dependencies defines the services required by the transports.
type Dependencies struct {
	Activity       common.ActivityService
	References     common.ReferenceService
	Todos          common.TodoService
	Sessions       common.SessionService
	AgentPrincipal auth.Principal
	Logger         *charmLog.Logger
}

// NewHandler composes one root router containing health, RPC, MCP, and shell
// endpoints.
func NewHandler(cfg Config, deps Dependencies) (http.Handler, Config, error) {
	normalizedCfg, err := normalizeConfig(cfg)
	if err != nil {
		return nil, Config{}, err
	}
	if deps.Activity == nil || deps.References == nil || deps.Todos == nil || deps.Sessions == nil {
		return nil, Config{}, fmt.Errorf("activity, reference, todo, and session services are required")
	}
	if deps.Logger == nil {
		deps.Logger = charmLog.Default()
	}

	mcpHandler, err := mcpapi.NewHandler(
		mcpapi.Config{
			ServerName:    normalizedCfg.ServerName,
			ServerVersion: normalizedCfg.ServerVersion,
			EndpointPath:  normalizedCfg.MCPEndpoint,
		},
		deps.AgentPrincipal,
		deps.Activity,
		deps.References,
		deps.Todos,
	)
	if err != nil {
		return nil, Config{}, fmt.Errorf("configure mcp handler: %w", err)
	}
	apiHandler := httpapi.NewHandler(deps.Activity, deps.References, deps.Todos, deps.Sessions, deps.Logger)
	shellHandler := webpage.NewHandler(deps.Sessions, normalizedCfg.SiteName, normalizedCfg.ServerVersion, deps.Logger)

	router := chi.NewRouter()
	router.Get("/healthz", writeHealthStatus)
	router.Get("/readyz", writeHealthStatus)
	apiHandler.Register(router)
	router.Handle(normalizedCfg.MCPEndpoint, mcpHandler)
	router.Handle(normalizedCfg.ShellEndpoint, shellHandler)
	router.Handle(normalizedCfg.ShellEndpoint+"/*", shellHandler)
	return router, normalizedCfg, nil
}

// Run starts the composed HTTP server and blocks until shutdown or startup failure.
func Run(ctx context.Context, cfg Config, deps Dependencies) error {
	if ctx == nil {
		ctx = context.Background()
	}

	handler, normalizedCfg, err := NewHandler(cfg, deps)
	if err != nil {
		return fmt.Errorf("build server handler: %w", err)
	}
	httpServer := &http.Server{
		Addr:    normalizedCfg.HTTPBind,
		Handler: handler,
	}

	serveErrCh := make(chan error, 1)
	go func() {
		serveErrCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serveErrCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("listen and serve: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
		defer cancel()

		shutdownErr := httpServer.Shutdown(shutdownCtx)
		serveErr := <-serveErrCh
		if shutdownErr != nil && !errors.Is(shutdownErr, context.Canceled) {
			return fmt.Errorf("shutdown server: %w", shutdownErr)
		}
		if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			return fmt.Errorf("serve after shutdown: %w", serveErr)
		}
		return nil
	}
}

// normalizeConfig applies defaults and validates endpoint collisions.
func normalizeConfig(cfg Config) (Config, error) {
	cfg.HTTPBind = strings.TrimSpace(cfg.HTTPBind)
	if cfg.HTTPBind == "" {
		cfg.HTTPBind = defaultBindAddress
	}

	cfg.MCPEndpoint = normalizeEndpoint(cfg.MCPEndpoint, "/mcp")
	cfg.ShellEndpoint = normalizeEndpoint(cfg.ShellEndpoint, "/app")
	if cfg.MCPEndpoint == cfg.ShellEndpoint {
		return Config{}, fmt.Errorf("mcp and shell endpoints must differ")
	}

	cfg.SiteName = strings.TrimSpace(cfg.SiteName)
	if cfg.SiteName == "" {
		cfg.SiteName = "workz.localhost"
	}
	cfg.ServerName = strings.TrimSpace(cfg.ServerName)
	if cfg.ServerName == "" {
		cfg.ServerName = "workz"
	}
	cfg.ServerVersion = strings.TrimSpace(cfg.ServerVersion)
	if cfg.ServerVersion == "" {
		cfg.ServerVersion = "dev"
	}
	return cfg, nil
}

// normalizeEndpoint normalizes one endpoint path and applies fallback defaults.
func normalizeEndpoint(path string, fallback string) string {
	path = strings.TrimSpace(path)
	if path == "" {
		path = fallback
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	path = "/" + strings.Trim(path, "/")
	if path == "/" {
		return fallback
	}
	return path
}

// writeHealthStatus responds with a deterministic readiness payload.
func writeHealthStatus(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}` + "\n"))
}
