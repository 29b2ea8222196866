package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
)

// ServerConfig holds the pos-server configuration, loadable from environment
// variables (PDV_ prefix), flags, or YAML config files.
type ServerConfig struct {
	Addr        string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL string `usage:"PostgreSQL connection URL (PDV_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	RateLimit   RateLimitConfig
	CORS        CORSConfig
	Graceful    GracefulConfig
}

// RateLimitConfig controls the per-client sliding window rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadServerConfig loads the pos-server configuration from environment
// variables and YAML config files, and applies platform-specific defaults.
func LoadServerConfig() (*ServerConfig, error) {
	var cfg ServerConfig
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "PDV",
		Files:     []string{"config.yaml", "/etc/pdv/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if cfg.DatabaseURL == "" {
		return nil, errors.New("database URL is required: set PDV_DATABASE_URL or DATABASE_URL")
	}

	return &cfg, nil
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like DATABASE_URL and PORT to the
// application's PDV_-prefixed configuration.
func (c *ServerConfig) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.DatabaseURL = v
		}
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
}

// TerminalConfig holds the pos-terminal configuration.
type TerminalConfig struct {
	ServerURL              string        `default:"http://localhost:8080" usage:"Remote pos-server base URL" flag:"server-url"`
	DataDir                string        `default:"" usage:"Directory for the terminal-local store (default: user config dir)" flag:"data-dir"`
	RequestTimeout         time.Duration `default:"5s"  usage:"Per-request timeout against the remote server" flag:"request-timeout"`
	SyncInterval           time.Duration `default:"30s" usage:"Offline queue drain interval" flag:"sync-interval"`
	PingInterval           time.Duration `default:"10s" usage:"Connectivity probe interval" flag:"ping-interval"`
	CatalogRefreshInterval time.Duration `default:"5m"  usage:"Catalog snapshot refresh interval" flag:"catalog-refresh-interval"`
}

// LoadTerminalConfig loads the pos-terminal configuration from environment
// variables and YAML config files.
func LoadTerminalConfig() (*TerminalConfig, error) {
	var cfg TerminalConfig
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "PDV",
		Files:     []string{"terminal.yaml", "/etc/pdv/terminal.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}

	if cfg.DataDir == "" {
		dir, err := os.UserConfigDir()
		if err != nil {
			return nil, errors.Wrap(err, "resolve user config dir")
		}
		cfg.DataDir = dir + "/pdv"
	}

	return &cfg, nil
}
