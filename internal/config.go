package internal

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
)

// DefaultAnonKey is shared by the default client and emulator configs so
// that `app devbackend` and `app serve` work together without setup.
const DefaultAnonKey = "pinenote-dev-anon-key"

// Config represents the application configuration.
type Config struct {
	App        ApplicationConfig `yaml:"app"`
	Remote     RemoteConfig      `yaml:"remote"`
	Auth       AuthConfig        `yaml:"auth"`
	Routes     RoutesConfig      `yaml:"routes"`
	DevBackend DevBackendConfig  `yaml:"devbackend"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return fmt.Errorf("app: %w", err)
	}
	if err := c.Remote.Validate(); err != nil {
		return fmt.Errorf("remote: %w", err)
	}
	if err := c.Auth.Validate(); err != nil {
		return fmt.Errorf("auth: %w", err)
	}
	if err := c.DevBackend.Validate(); err != nil {
		return fmt.Errorf("devbackend: %w", err)
	}
	return nil
}

// ApplyEnv overrides fields from PINENOTE_* environment variables that are
// set. It is used when no config file exists.
func (c *Config) ApplyEnv() {
	set := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}
	set("PINENOTE_REMOTE_URL", &c.Remote.URL)
	set("PINENOTE_ANON_KEY", &c.Remote.AnonKey)
	set("PINENOTE_ANON_KEY", &c.DevBackend.AnonKey)
	set("PINENOTE_EMAIL", &c.Auth.Email)
	set("PINENOTE_PASSWORD", &c.Auth.Password)
	set("PINENOTE_HTTP_TOKEN", &c.App.HTTP.Token)
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration. When Token is set every
// /api request must carry it as a Bearer token.
type HTTPConfig struct {
	Port  int    `yaml:"port"`
	Token string `yaml:"token"`
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

// RemoteConfig points the client at the hosted auth and table service.
type RemoteConfig struct {
	URL     string        `yaml:"url"`
	AnonKey string        `yaml:"anon_key"`
	Timeout time.Duration `yaml:"timeout"`
}

// Validate validates the remote configuration.
func (c *RemoteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.URL, validation.Required, is.URL),
		validation.Field(&c.AnonKey, validation.Required),
		validation.Field(&c.Timeout, validation.Min(time.Duration(0))),
	)
}

// AuthConfig holds optional credentials used to sign in at startup.
type AuthConfig struct {
	Email         string        `yaml:"email"`
	Password      string        `yaml:"password"`
	RefreshMargin time.Duration `yaml:"refresh_margin"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Email, is.EmailFormat),
		validation.Field(&c.Password, validation.When(c.Email != "", validation.Required)),
		validation.Field(&c.RefreshMargin, validation.Min(time.Duration(0))),
	)
}

// AutoSignIn reports whether credentials were configured.
func (c *AuthConfig) AutoSignIn() bool {
	return c.Email != ""
}

// RoutesConfig controls route guarding.
type RoutesConfig struct {
	// PublicDetail leaves the note detail routes reachable without a
	// session. What an anonymous caller sees is up to the remote service.
	PublicDetail bool `yaml:"public_detail"`
}

// DevBackendConfig configures the local emulator of the remote service.
type DevBackendConfig struct {
	Port        int           `yaml:"port"`
	SQLitePath  string        `yaml:"sqlite_path"`
	AnonKey     string        `yaml:"anon_key"`
	TokenTTL    time.Duration `yaml:"token_ttl"`
	AutoConfirm bool          `yaml:"auto_confirm"`
}

// Address returns the emulator listen address.
func (c *DevBackendConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the emulator configuration.
func (c *DevBackendConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
		validation.Field(&c.SQLitePath, validation.Required),
		validation.Field(&c.AnonKey, validation.Required),
		validation.Field(&c.TokenTTL, validation.Required, validation.Min(time.Second)),
	)
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
		Remote: RemoteConfig{
			URL:     "http://localhost:54321",
			AnonKey: DefaultAnonKey,
			Timeout: 15 * time.Second,
		},
		Auth: AuthConfig{
			RefreshMargin: time.Minute,
		},
		Routes: RoutesConfig{
			PublicDetail: true,
		},
		DevBackend: DevBackendConfig{
			Port:        54321,
			SQLitePath:  "./pinenote-dev.db",
			AnonKey:     DefaultAnonKey,
			TokenTTL:    time.Hour,
			AutoConfirm: true,
		},
	}
}
