package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

var envKeys = []string{
	"TOOLBOX_CONFIG", "TOOLBOX_HTTP_HOST", "TOOLBOX_HTTP_PORT", "TOOLBOX_GRPC_PORT",
	"TOOLBOX_LOG_LEVEL", "TOOLBOX_INVOKE_TIMEOUT_MS", "TOOLBOX_AUTH_MODE",
	"TOOLBOX_API_KEYS", "TOOLBOX_AUTH_CACHE_TTL_S", "CLICKHOUSE_DSN", "POSTGRES_DSN",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Source != "" {
		t.Errorf("missing file should not be recorded as source, got %q", cfg.Source)
	}
	if cfg.HTTPAddr() != "0.0.0.0:4050" {
		t.Errorf("HTTPAddr() = %q, want 0.0.0.0:4050", cfg.HTTPAddr())
	}
	if cfg.InvokeTimeout() != 5*time.Second {
		t.Errorf("InvokeTimeout() = %v, want 5s", cfg.InvokeTimeout())
	}
	if cfg.AuthMode != AuthNone || cfg.GRPCPort != "" {
		t.Errorf("unexpected defaults %+v", cfg)
	}
}

func TestLoad_TOMLThenEnv(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "toolbox.toml")
	if err := os.WriteFile(path, []byte(`
http_port = "9000"
grpc_port = "9001"
log_level = "debug"
invoke_timeout_ms = 250
auth_mode = "static"
api_keys = ["tbx_from_file_000"]
`), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	t.Setenv("TOOLBOX_HTTP_PORT", "9100")
	t.Setenv("TOOLBOX_API_KEYS", "tbx_env_one_0000, tbx_env_two_0000")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Source != path {
		t.Errorf("cfg.Source = %q, want %q", cfg.Source, path)
	}
	if cfg.HTTPPort != "9100" {
		t.Errorf("env should override file port, got %q", cfg.HTTPPort)
	}
	if cfg.GRPCPort != "9001" || cfg.LogLevel != "debug" || cfg.InvokeTimeoutMs != 250 {
		t.Errorf("file values not applied: %+v", cfg)
	}
	if want := []string{"tbx_env_one_0000", "tbx_env_two_0000"}; !reflect.DeepEqual(cfg.APIKeys, want) {
		t.Errorf("APIKeys = %v, want %v", cfg.APIKeys, want)
	}
}

func TestLoad_PathFromEnv(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "toolbox.toml")
	if err := os.WriteFile(path, []byte(`http_host = "127.0.0.1"`), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	t.Setenv("TOOLBOX_CONFIG", path)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPHost != "127.0.0.1" {
		t.Errorf("HTTPHost = %q, want 127.0.0.1", cfg.HTTPHost)
	}
}

func TestLoad_InvalidTOML(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "bad.toml")
	if err := os.WriteFile(path, []byte("http_port = \n"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for malformed TOML")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"static without keys", func(c *Config) { c.AuthMode = AuthStatic }, true},
		{"static with keys", func(c *Config) { c.AuthMode = AuthStatic; c.APIKeys = []string{"tbx_x_00000000"} }, false},
		{"static key without prefix", func(c *Config) { c.AuthMode = AuthStatic; c.APIKeys = []string{"tbx_x_00000000", "secret-key-000"} }, true},
		{"static key too short", func(c *Config) { c.AuthMode = AuthStatic; c.APIKeys = []string{"tbx_short"} }, true},
		{"postgres without dsn", func(c *Config) { c.AuthMode = AuthPostgres }, true},
		{"postgres with dsn", func(c *Config) { c.AuthMode = AuthPostgres; c.PostgresDSN = "postgres://x" }, false},
		{"unknown mode", func(c *Config) { c.AuthMode = "ldap" }, true},
		{"zero timeout", func(c *Config) { c.InvokeTimeoutMs = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			if err := cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadDotEnv(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("TOOLBOX_LOG_LEVEL=warn\n"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	// godotenv does not override variables that are already set, and
	// t.Setenv("", ...) counts as set, so unset it first.
	os.Unsetenv("TOOLBOX_LOG_LEVEL")
	t.Cleanup(func() { os.Unsetenv("TOOLBOX_LOG_LEVEL") })

	if err := LoadDotEnv(path); err != nil {
		t.Fatalf("LoadDotEnv: %v", err)
	}
	if got := os.Getenv("TOOLBOX_LOG_LEVEL"); got != "warn" {
		t.Errorf("TOOLBOX_LOG_LEVEL = %q, want warn", got)
	}

	if err := LoadDotEnv(filepath.Join(t.TempDir(), "absent.env")); err != nil {
		t.Errorf("missing .env should be ignored, got %v", err)
	}
}
