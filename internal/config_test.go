package internal

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	pkgconfig "github.com/starford/pinenote/pkg/config"
)

func TestDefaultConfig_Valid(t *testing.T) {
	if err := NewDefaultConfig().Validate(); err != nil {
		t.Fatalf("default config should be valid: %v", err)
	}
}

func TestRemoteConfig_RequiresURLAndKey(t *testing.T) {
	cfg := RemoteConfig{URL: "", AnonKey: ""}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("empty remote config should fail")
	}
	if !strings.Contains(err.Error(), "URL") || !strings.Contains(err.Error(), "AnonKey") {
		t.Errorf("unexpected error: %v", err)
	}

	cfg = RemoteConfig{URL: "not a url", AnonKey: "k"}
	if err := cfg.Validate(); err == nil {
		t.Error("malformed url should fail")
	}
}

func TestAuthConfig_PasswordRequiredWithEmail(t *testing.T) {
	cfg := AuthConfig{Email: "ada@example.com"}
	if err := cfg.Validate(); err == nil {
		t.Fatal("email without password should fail")
	}
	cfg.Password = "secret1"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("email with password should pass: %v", err)
	}
	if !cfg.AutoSignIn() {
		t.Error("auto sign-in should be enabled")
	}
}

func TestAuthConfig_EmptyIsValid(t *testing.T) {
	cfg := AuthConfig{}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("empty auth should pass: %v", err)
	}
	if cfg.AutoSignIn() {
		t.Error("auto sign-in should be disabled")
	}
}

func TestFullConfig_NestedErrorsPrefixed(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.DevBackend.TokenTTL = 0
	err := cfg.Validate()
	if err == nil {
		t.Fatal("full config validate should catch devbackend error")
	}
	if !strings.HasPrefix(err.Error(), "devbackend:") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestLoadFromYAML(t *testing.T) {
	t.Setenv("TEST_ANON_KEY", "from-env")
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
app:
  log_level: debug
  http:
    port: 9090
remote:
  url: https://example.supabase.co
  anon_key: ${TEST_ANON_KEY}
  timeout: 5s
routes:
  public_detail: false
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := NewDefaultConfig()
	if err := pkgconfig.Load(path, cfg); err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.App.HTTP.Port != 9090 || cfg.App.LogLevel.String() != "DEBUG" {
		t.Errorf("app = %+v", cfg.App)
	}
	if cfg.Remote.AnonKey != "from-env" || cfg.Remote.Timeout != 5*time.Second {
		t.Errorf("remote = %+v", cfg.Remote)
	}
	if cfg.Routes.PublicDetail {
		t.Error("public_detail should be false")
	}
	if cfg.DevBackend.Port != 54321 {
		t.Error("unset sections keep their defaults")
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("PINENOTE_REMOTE_URL", "https://remote.example.com")
	t.Setenv("PINENOTE_EMAIL", "ada@example.com")
	t.Setenv("PINENOTE_PASSWORD", "secret1")

	cfg := NewDefaultConfig()
	cfg.ApplyEnv()
	if cfg.Remote.URL != "https://remote.example.com" {
		t.Errorf("url = %q", cfg.Remote.URL)
	}
	if cfg.Auth.Email != "ada@example.com" || cfg.Auth.Password != "secret1" {
		t.Errorf("auth = %+v", cfg.Auth)
	}
	if cfg.Remote.AnonKey != DefaultAnonKey {
		t.Errorf("unset variables must not clear defaults, got %q", cfg.Remote.AnonKey)
	}
}
