// Command workz runs the task activity and reference RPC service.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	charmLog "github.com/charmbracelet/log"
	"github.com/google/uuid"
	serveradapter "github.com/hylla/workz/internal/adapters/server"
	"github.com/hylla/workz/internal/adapters/storage/sqlite"
	"github.com/hylla/workz/internal/app"
	"github.com/hylla/workz/internal/auth"
	"github.com/hylla/workz/internal/config"
	"github.com/hylla/workz/internal/domain"
	"github.com/hylla/workz/internal/platform"
)

// version is stamped at build time via -ldflags.
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// run runs the requested command flow.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if stdout == nil {
		stdout = io.Discard
	}
	if stderr == nil {
		stderr = io.Discard
	}

	fs := flag.NewFlagSet("workz", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	var (
		configPath string
		dbPath     string
		bindAddr   string
		appName    string
		devMode    bool
		showVer    bool
	)
	defaultDevMode := version == "dev"
	if envDev, ok := parseBoolEnv("WORKZ_DEV_MODE"); ok {
		defaultDevMode = envDev
	}
	if envApp := strings.TrimSpace(os.Getenv("WORKZ_APP_NAME")); envApp != "" {
		appName = envApp
	} else {
		appName = "workz"
	}
	fs.StringVar(&configPath, "config", "", "path to config TOML")
	fs.StringVar(&dbPath, "db", "", "path to sqlite database")
	fs.StringVar(&bindAddr, "bind", "", "http bind address (overrides config)")
	fs.StringVar(&appName, "app", appName, "application name for config/data path resolution")
	fs.BoolVar(&devMode, "dev", defaultDevMode, "use dev mode paths (<app>-dev)")
	fs.BoolVar(&showVer, "version", false, "show version")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if showVer {
		_, _ = fmt.Fprintf(stdout, "workz %s\n", version)
		return nil
	}

	paths, err := platform.DefaultPathsWithOptions(platform.Options{
		AppName: appName,
		DevMode: devMode,
	})
	if err != nil {
		return err
	}

	command := firstArg(fs.Args())
	switch command {
	case "paths":
		_, _ = fmt.Fprintf(stdout, "app: %s\n", appName)
		_, _ = fmt.Fprintf(stdout, "dev_mode: %t\n", devMode)
		_, _ = fmt.Fprintf(stdout, "config: %s\n", paths.ConfigPath)
		_, _ = fmt.Fprintf(stdout, "data_dir: %s\n", paths.DataDir)
		_, _ = fmt.Fprintf(stdout, "db: %s\n", paths.DBPath)
		return nil
	case "", "serve", "user":
		// Continue.
	default:
		return fmt.Errorf("unknown command: %s", command)
	}

	dbOverridden := strings.TrimSpace(dbPath) != ""
	if configPath == "" {
		if envPath := strings.TrimSpace(os.Getenv("WORKZ_CONFIG")); envPath != "" {
			configPath = envPath
		} else {
			configPath = paths.ConfigPath
		}
	}
	if !dbOverridden {
		if envPath := strings.TrimSpace(os.Getenv("WORKZ_DB_PATH")); envPath != "" {
			dbPath = envPath
		} else {
			dbPath = paths.DBPath
		}
	}

	cfg, err := config.Load(configPath, config.Default(dbPath))
	if err != nil {
		return fmt.Errorf("load config %q: %w", configPath, err)
	}
	if dbOverridden {
		cfg.Database.Path = dbPath
	}
	if strings.TrimSpace(bindAddr) != "" {
		cfg.HTTP.Bind = bindAddr
	}

	logger, err := newRuntimeLogger(stderr, appName, cfg.Logging)
	if err != nil {
		return fmt.Errorf("configure runtime logger: %w", err)
	}

	if err := config.EnsureConfigDir(cfg.Database.Path); err != nil {
		return fmt.Errorf("create database directory: %w", err)
	}
	repo, err := sqlite.Open(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open database %q: %w", cfg.Database.Path, err)
	}
	defer func() { _ = repo.Close() }()

	if err := seedDoctypes(ctx, repo, cfg.Doctypes); err != nil {
		return fmt.Errorf("seed doctypes: %w", err)
	}

	switch command {
	case "user":
		return runUserCommand(ctx, repo, fs.Args()[1:], stdout)
	default:
		return runServe(ctx, repo, cfg, logger)
	}
}

// runServe composes the services and blocks on the HTTP server.
func runServe(ctx context.Context, repo *sqlite.Repository, cfg config.Config, logger *charmLog.Logger) error {
	idGen := func() string { return uuid.NewString() }
	authService := auth.NewService(repo, idGen, time.Now, auth.ServiceConfig{
		SessionTTL: time.Duration(cfg.Session.TTLHours) * time.Hour,
	}, logger)
	appService := app.NewService(repo, authService, idGen, time.Now, logger)

	agent := auth.Guest()
	if agentUser := strings.TrimSpace(cfg.Agent.User); agentUser != "" {
		user, err := repo.UserByID(ctx, agentUser)
		if err != nil {
			return fmt.Errorf("resolve agent user %q: %w", agentUser, err)
		}
		agent = auth.Principal{UserID: user.ID, FullName: user.DisplayName(), Roles: user.Roles}
	}

	logger.Info("starting server", "bind", cfg.HTTP.Bind, "db", cfg.Database.Path)
	return serveradapter.Run(ctx, serveradapter.Config{
		HTTPBind:      cfg.HTTP.Bind,
		MCPEndpoint:   cfg.HTTP.MCPEndpoint,
		ShellEndpoint: cfg.HTTP.ShellEndpoint,
		SiteName:      cfg.Site.Name,
		ServerVersion: version,
	}, serveradapter.Dependencies{
		Activity:       appService,
		References:     appService,
		Todos:          appService,
		Sessions:       authService,
		AgentPrincipal: agent,
		Logger:         logger,
	})
}

// runUserCommand handles `workz user add`.
func runUserCommand(ctx context.Context, repo *sqlite.Repository, args []string, stdout io.Writer) error {
	if firstArg(args) != "add" {
		return errors.New("usage: workz user add -id <id> [-full-name <name>] [-roles a,b] [-password <pwd>]")
	}

	fs := flag.NewFlagSet("workz user add", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	var (
		id       string
		fullName string
		roles    string
		password string
	)
	fs.StringVar(&id, "id", "", "user id (email)")
	fs.StringVar(&fullName, "full-name", "", "display name")
	fs.StringVar(&roles, "roles", "", "comma-separated roles")
	fs.StringVar(&password, "password", "", "login password (or WORKZ_USER_PASSWORD)")
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}
	if password == "" {
		password = os.Getenv("WORKZ_USER_PASSWORD")
	}
	if password == "" {
		return errors.New("a password is required")
	}

	user, err := domain.NewUser(id, fullName, splitList(roles), time.Now())
	if err != nil {
		return err
	}
	salt, err := auth.NewSalt()
	if err != nil {
		return err
	}
	user.PasswordSalt = salt
	user.PasswordHash = auth.HashPassword(password, salt)

	if err := repo.CreateUser(ctx, user); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(stdout, "created user %s\n", user.ID)
	return nil
}

// seedDoctypes upserts configured doctype metadata at startup.
func seedDoctypes(ctx context.Context, repo *sqlite.Repository, doctypes []config.DoctypeConfig) error {
	for _, doctype := range doctypes {
		if err := repo.PutDoctype(ctx, doctype.Name, doctype.TitleField, doctype.ReadRoles); err != nil {
			return err
		}
	}
	return nil
}

// newRuntimeLogger builds the leveled console logger.
func newRuntimeLogger(stderr io.Writer, appName string, cfg config.LoggingConfig) (*charmLog.Logger, error) {
	levelName := strings.TrimSpace(cfg.Level)
	if levelName == "" {
		levelName = "info"
	}
	level, err := charmLog.ParseLevel(levelName)
	if err != nil {
		return nil, fmt.Errorf("parse logging level %q: %w", cfg.Level, err)
	}
	return charmLog.NewWithOptions(stderr, charmLog.Options{
		Level:           level,
		Prefix:          appName,
		ReportTimestamp: true,
		TimeFormat:      time.RFC3339,
		Formatter:       charmLog.TextFormatter,
	}), nil
}

// firstArg returns the first positional argument.
func firstArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return strings.TrimSpace(args[0])
}

// splitList splits a comma-separated flag value.
func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// parseBoolEnv parses a boolean environment variable.
func parseBoolEnv(key string) (bool, bool) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return false, false
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return value, true
}
