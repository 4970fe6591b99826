package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
)

type Config struct {
	Database DatabaseConfig  `toml:"database"`
	HTTP     HTTPConfig      `toml:"http"`
	Site     SiteConfig      `toml:"site"`
	Session  SessionConfig   `toml:"session"`
	Logging  LoggingConfig   `toml:"logging"`
	Agent    AgentConfig     `toml:"agent"`
	Doctypes []DoctypeConfig `toml:"doctypes"`
}

type DatabaseConfig struct {
	Path string `toml:"path"`
}

type HTTPConfig struct {
	Bind          string `toml:"bind"`
	MCPEndpoint   string `toml:"mcp_endpoint"`
	ShellEndpoint string `toml:"shell_endpoint"`
}

type SiteConfig struct {
	Name string `toml:"name"`
}

type SessionConfig struct {
	TTLHours int `toml:"ttl_hours"`
}

type LoggingConfig struct {
	Level string `toml:"level"`
}

// AgentConfig names the user MCP tool calls run as. Empty disables the MCP
// surface's write access by running tools as Guest.
type AgentConfig struct {
	User string `toml:"user"`
}

// DoctypeConfig seeds doctype metadata: the display title field and the
// roles allowed to read records of the type.
type DoctypeConfig struct {
	Name       string   `toml:"name"`
	TitleField string   `toml:"title_field"`
	ReadRoles  []string `toml:"read_roles"`
}

func defaultDoctypes() []DoctypeConfig {
	return []DoctypeConfig{
		{Name: "ToDo", TitleField: ""},
		{Name: "Project", TitleField: "project_name"},
	}
}

func Default(dbPath string) Config {
	return Config{
		Database: DatabaseConfig{
			Path: dbPath,
		},
		HTTP: HTTPConfig{
			Bind:          "127.0.0.1:8080",
			MCPEndpoint:   "/mcp",
			ShellEndpoint: "/app",
		},
		Site: SiteConfig{
			Name: "workz.localhost",
		},
		Session: SessionConfig{
			TTLHours: 72,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Doctypes: defaultDoctypes(),
	}
}

func Load(path string, defaults Config) (Config, error) {
	cfg := defaults
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if len(content) == 0 {
		return cfg, nil
	}

	if err := toml.Unmarshal(content, &cfg); err != nil {
		return Config{}, fmt.Errorf("decode toml: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Database.Path) == "" {
		return errors.New("database path is required")
	}
	if c.Session.TTLHours < 0 {
		return errors.New("session.ttl_hours must be >= 0")
	}
	switch strings.TrimSpace(strings.ToLower(c.Logging.Level)) {
	case "", "debug", "info", "warn", "error", "fatal":
	default:
		return fmt.Errorf("invalid logging.level: %q", c.Logging.Level)
	}

	seenDoctype := map[string]struct{}{}
	for idx, doctype := range c.Doctypes {
		name := strings.TrimSpace(doctype.Name)
		if name == "" {
			return fmt.Errorf("doctypes[%d].name is required", idx)
		}
		if _, ok := seenDoctype[name]; ok {
			return fmt.Errorf("doctypes[%d].name is duplicated: %s", idx, name)
		}
		seenDoctype[name] = struct{}{}
	}
	return nil
}

func EnsureConfigDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
