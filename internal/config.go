package internal

import (
	"fmt"
	"log/slog"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/marginalia/internal/graph"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Storage backends.
const (
	BackendSQLite = "sqlite"
	BackendFS     = "fs"
	BackendMemory = "memory"
)

// Config represents the application configuration.
type Config struct {
	App     ApplicationConfig `yaml:"app" toml:"app"`
	Storage StorageConfig     `yaml:"storage" toml:"storage"`
	Library LibraryConfig     `yaml:"library" toml:"library"`
	Search  SearchConfig      `yaml:"search" toml:"search"`
	Graph   graph.Sizing      `yaml:"graph" toml:"graph"`
	Canvas  CanvasConfig      `yaml:"canvas" toml:"canvas"`
	Auth    AuthConfig        `yaml:"auth" toml:"auth"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Storage.Validate(); err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	if err := c.Library.Validate(); err != nil {
		return fmt.Errorf("library: %w", err)
	}
	if err := c.Graph.Validate(); err != nil {
		return fmt.Errorf("graph: %w", err)
	}
	if err := c.Canvas.Validate(); err != nil {
		return fmt.Errorf("canvas: %w", err)
	}
	return c.Auth.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level" toml:"log_level"`
	HTTP     HTTPConfig `yaml:"http" toml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port" toml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// StorageConfig selects where the annotation blob and layouts live.
//
// Path is a SQLite database file for "sqlite" and a directory for "fs";
// "memory" keeps nothing across restarts. QuotaBytes of 0 means no limit.
type StorageConfig struct {
	Backend    string `yaml:"backend" toml:"backend"`
	Path       string `yaml:"path" toml:"path"`
	QuotaBytes int64  `yaml:"quota_bytes" toml:"quota_bytes"`
	Watch      bool   `yaml:"watch" toml:"watch"`
}

// Validate validates the storage configuration.
func (c *StorageConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Backend, validation.Required, validation.In(BackendSQLite, BackendFS, BackendMemory)),
		validation.Field(&c.Path, validation.When(c.Backend != BackendMemory, validation.Required)),
		validation.Field(&c.QuotaBytes, validation.Min(int64(0))),
	)
}

// LibraryConfig holds the directory document files are uploaded to and
// served from.
type LibraryConfig struct {
	Path string `yaml:"path" toml:"path"`
}

// Validate validates the library configuration.
func (c *LibraryConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// SearchConfig holds the annotation search index location. ":memory:"
// rebuilds the index from storage on every start.
type SearchConfig struct {
	Path string `yaml:"path" toml:"path"`
}

// CanvasConfig tunes pointer interaction.
type CanvasConfig struct {
	EdgeHitThreshold float64 `yaml:"edge_hit_threshold" toml:"edge_hit_threshold"`
}

// Validate validates the canvas configuration.
func (c *CanvasConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.EdgeHitThreshold, validation.Required, validation.Min(1.0)),
	)
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local dev.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode" toml:"mode"`
	Token string `yaml:"token" toml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	// Normalise empty mode to "disabled" for backward compatibility.
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Storage: StorageConfig{
			Backend: BackendSQLite,
			Path:    "./marginalia.db",
			Watch:   true,
		},
		Library: LibraryConfig{
			Path: "./library",
		},
		Search: SearchConfig{
			Path: ":memory:",
		},
		Graph: graph.DefaultSizing,
		Canvas: CanvasConfig{
			EdgeHitThreshold: 20,
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
	}
}
