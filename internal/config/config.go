package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"

	"github.com/triage-ai/toolbox/internal/store"
)

// Auth modes.
const (
	AuthNone     = "none"
	AuthStatic   = "static"
	AuthPostgres = "postgres"
)

// Config holds every server setting. Precedence, lowest first: Default(),
// the TOML file, environment variables.
type Config struct {
	HTTPHost        string   `toml:"http_host"`
	HTTPPort        string   `toml:"http_port"`
	GRPCPort        string   `toml:"grpc_port"`
	LogLevel        string   `toml:"log_level"`
	InvokeTimeoutMs int      `toml:"invoke_timeout_ms"`
	AuthMode        string   `toml:"auth_mode"`
	APIKeys         []string `toml:"api_keys"`
	AuthCacheTTLS   int      `toml:"auth_cache_ttl_s"`
	ClickHouseDSN   string   `toml:"clickhouse_dsn"`
	PostgresDSN     string   `toml:"postgres_dsn"`

	Source string `toml:"-"`
}

func Default() Config {
	return Config{
		HTTPHost:        "0.0.0.0",
		HTTPPort:        "4050",
		LogLevel:        "info",
		InvokeTimeoutMs: 5000,
		AuthMode:        AuthNone,
		AuthCacheTTLS:   30,
	}
}

// LoadDotEnv loads variables from the given .env files (default ".env")
// without overriding ones already set. A missing file is not an error.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("LoadDotEnv: %w", err)
		}
	}
	return nil
}

// Load builds the configuration. An empty path falls back to
// $TOOLBOX_CONFIG; a path that does not exist is skipped.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		path = os.Getenv("TOOLBOX_CONFIG")
	}

	if path != "" {
		content, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := toml.Unmarshal(content, &cfg); err != nil {
				return cfg, fmt.Errorf("Load %s: %w", path, err)
			}
			cfg.Source = path
		case !errors.Is(err, os.ErrNotExist):
			return cfg, fmt.Errorf("Load: %w", err)
		}
	}

	cfg.applyEnv()
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv() {
	c.HTTPHost = envOrDefault("TOOLBOX_HTTP_HOST", c.HTTPHost)
	c.HTTPPort = envOrDefault("TOOLBOX_HTTP_PORT", c.HTTPPort)
	c.GRPCPort = envOrDefault("TOOLBOX_GRPC_PORT", c.GRPCPort)
	c.LogLevel = envOrDefault("TOOLBOX_LOG_LEVEL", c.LogLevel)
	c.InvokeTimeoutMs = envOrDefaultInt("TOOLBOX_INVOKE_TIMEOUT_MS", c.InvokeTimeoutMs)
	c.AuthMode = strings.ToLower(envOrDefault("TOOLBOX_AUTH_MODE", c.AuthMode))
	c.AuthCacheTTLS = envOrDefaultInt("TOOLBOX_AUTH_CACHE_TTL_S", c.AuthCacheTTLS)
	c.ClickHouseDSN = envOrDefault("CLICKHOUSE_DSN", c.ClickHouseDSN)
	c.PostgresDSN = envOrDefault("POSTGRES_DSN", c.PostgresDSN)
	if v := os.Getenv("TOOLBOX_API_KEYS"); v != "" {
		c.APIKeys = splitList(v)
	}
}

// Validate reports settings that cannot work together.
func (c Config) Validate() error {
	switch c.AuthMode {
	case AuthNone:
	case AuthStatic:
		if len(c.APIKeys) == 0 {
			return errors.New("auth_mode static requires at least one API key")
		}
		for i, key := range c.APIKeys {
			if len(key) < store.PrefixLength || !strings.HasPrefix(key, store.KeyPrefix) {
				return fmt.Errorf("api key %d must start with %q and be at least %d characters", i+1, store.KeyPrefix, store.PrefixLength)
			}
		}
	case AuthPostgres:
		if c.PostgresDSN == "" {
			return errors.New("auth_mode postgres requires POSTGRES_DSN")
		}
	default:
		return fmt.Errorf("unknown auth_mode %q", c.AuthMode)
	}
	if c.InvokeTimeoutMs <= 0 {
		return fmt.Errorf("invoke_timeout_ms must be positive, got %d", c.InvokeTimeoutMs)
	}
	return nil
}

// HTTPAddr is the listen address for the HTTP server.
func (c Config) HTTPAddr() string {
	return c.HTTPHost + ":" + c.HTTPPort
}

// InvokeTimeout is the per-invocation handler deadline.
func (c Config) InvokeTimeout() time.Duration {
	return time.Duration(c.InvokeTimeoutMs) * time.Millisecond
}

// AuthCacheTTL is how long an authenticated key is served from cache
// before it is revalidated.
func (c Config) AuthCacheTTL() time.Duration {
	return time.Duration(c.AuthCacheTTLS) * time.Second
}

func envOrDefault(key, defaultVal string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return defaultVal
}

func envOrDefaultInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
