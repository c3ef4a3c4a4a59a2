// Package config loads and validates application configuration from YAML files
// and environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root application configuration.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Identity      IdentityConfig      `yaml:"identity"`
	Generation    GenerationConfig    `yaml:"generation"`
	Engine        EngineConfig        `yaml:"engine"`
	Templates     TemplatesConfig     `yaml:"templates"`
	Namespace     NamespaceConfig     `yaml:"namespace"`
	Deployment    DeploymentConfig    `yaml:"deployment"`
	Orchestrator  OrchestratorConfig  `yaml:"orchestrator"`
	SessionStore  SessionStoreConfig  `yaml:"session_store"`
	Replay        ReplayConfig        `yaml:"replay"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig describes HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	HandlerTimeout  time.Duration `yaml:"handler_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	CORS            CORSConfig    `yaml:"cors"`
}

// CORSConfig describes Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
	MaxAge         int      `yaml:"max_age"`
}

// IdentityConfig describes JWT and identity provider settings. When
// HMACSecretEnv is set the verifier uses a shared HS256 secret instead of a
// JWKS endpoint, which is the mode the integration harness runs in.
type IdentityConfig struct {
	Issuer        string        `yaml:"issuer"`
	Audience      string        `yaml:"audience"`
	JWKSURL       string        `yaml:"jwks_url"`
	JWKSCacheTTL  time.Duration `yaml:"jwks_cache_ttl"`
	Algorithms    []string      `yaml:"algorithms"`
	HMACSecretEnv string        `yaml:"hmac_secret_env"`
}

// GenerationConfig describes the text-generation service used for intent
// extraction. The timeout is capped at 45 seconds.
type GenerationConfig struct {
	BaseURL   string        `yaml:"base_url"`
	APIKeyEnv string        `yaml:"api_key_env"`
	Model     string        `yaml:"model"`
	Timeout   time.Duration `yaml:"timeout"`
}

// EngineConfig describes the external automation engine. The call timeout is
// capped at 30 seconds.
type EngineConfig struct {
	BaseURL        string               `yaml:"base_url"`
	SpecFile       string               `yaml:"spec_file"`
	AuthTokenEnv   string               `yaml:"auth_token_env"`
	Timeout        time.Duration        `yaml:"timeout"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
	HealthRetry    HealthRetryConfig    `yaml:"health_retry"`
	Catalog        CatalogConfig        `yaml:"catalog"`
}

// CircuitBreakerConfig describes circuit breaker settings for engine calls.
type CircuitBreakerConfig struct {
	FailureThreshold   int           `yaml:"failure_threshold"`
	SuccessThreshold   int           `yaml:"success_threshold"`
	Timeout            time.Duration `yaml:"timeout"`
	ErrorRateThreshold float64       `yaml:"error_rate_threshold"`
	ErrorRateWindow    time.Duration `yaml:"error_rate_window"`
}

// HealthRetryConfig bounds the retry budget for the idempotent health-check
// read. Create and activate calls are never retried.
type HealthRetryConfig struct {
	Retries int           `yaml:"retries"`
	Backoff time.Duration `yaml:"backoff"`
}

// CatalogConfig describes the cached set of node kinds the engine supports.
type CatalogConfig struct {
	Kinds []string      `yaml:"kinds"`
	TTL   time.Duration `yaml:"ttl"`
}

// TemplatesConfig describes where to find graph template YAML files. When no
// directory is configured the compiled-in library is used.
type TemplatesConfig struct {
	Directories []string `yaml:"directories"`
}

// NamespaceConfig describes the tenant namespace pool.
type NamespaceConfig struct {
	Buckets int                  `yaml:"buckets"`
	Slots   int                  `yaml:"slots"`
	Store   NamespaceStoreConfig `yaml:"store"`
}

// NamespaceStoreConfig describes namespace assignment persistence settings.
type NamespaceStoreConfig struct {
	Driver string `yaml:"driver"`
	DSNEnv string `yaml:"dsn_env"`
}

// DeploymentConfig describes deployment health scoring.
type DeploymentConfig struct {
	HealthThreshold int `yaml:"health_threshold"`
}

// OrchestratorConfig describes session lifecycle settings.
type OrchestratorConfig struct {
	IdleTimeout          time.Duration `yaml:"idle_timeout"`
	ArchiveSweepInterval time.Duration `yaml:"archive_sweep_interval"`
	AutoFixBudget        int           `yaml:"auto_fix_budget"`
	LockStripes          int           `yaml:"lock_stripes"`
}

// SessionStoreConfig describes session persistence settings.
type SessionStoreConfig struct {
	Driver          string        `yaml:"driver"`
	DSNEnv          string        `yaml:"dsn_env"`
	MaxConns        int           `yaml:"max_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// ReplayConfig describes the replayed-message outcome cache.
type ReplayConfig struct {
	Driver     string        `yaml:"driver"`
	AddrEnv    string        `yaml:"addr_env"`
	DB         int           `yaml:"db"`
	DefaultTTL time.Duration `yaml:"default_ttl"`
}

// ObservabilityConfig describes logging, tracing, and metrics settings.
type ObservabilityConfig struct {
	LogLevel string        `yaml:"log_level"`
	Tracing  TracingConfig `yaml:"tracing"`
	Metrics  MetricsConfig `yaml:"metrics"`
}

// TracingConfig describes distributed tracing settings.
type TracingConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Exporter     string  `yaml:"exporter"`
	Endpoint     string  `yaml:"endpoint"`
	SamplingRate float64 `yaml:"sampling_rate"`
}

// MetricsConfig describes Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Hard upper bounds on outbound call timeouts. Configured values above these
// are rejected at load time.
const (
	MaxGenerationTimeout = 45 * time.Second
	MaxEngineTimeout     = 30 * time.Second
)

// Defaults returns a Config with sensible default values.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    60 * time.Second,
			HandlerTimeout:  55 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			CORS: CORSConfig{
				AllowedMethods: []string{"GET", "POST", "OPTIONS"},
				AllowedHeaders: []string{"Authorization", "Content-Type", "X-Correlation-Id"},
				MaxAge:         86400,
			},
		},
		Identity: IdentityConfig{
			JWKSCacheTTL: 1 * time.Hour,
			Algorithms:   []string{"RS256"},
		},
		Generation: GenerationConfig{
			APIKeyEnv: "CLIXEN_GENERATION_API_KEY",
			Model:     "gpt-4o-mini",
			Timeout:   45 * time.Second,
		},
		Engine: EngineConfig{
			AuthTokenEnv: "CLIXEN_ENGINE_TOKEN",
			Timeout:      30 * time.Second,
			CircuitBreaker: CircuitBreakerConfig{
				FailureThreshold:   5,
				SuccessThreshold:   2,
				Timeout:            30 * time.Second,
				ErrorRateThreshold: 0.5,
				ErrorRateWindow:    1 * time.Minute,
			},
			HealthRetry: HealthRetryConfig{
				Retries: 2,
				Backoff: 2 * time.Second,
			},
			Catalog: CatalogConfig{
				TTL: 5 * time.Minute,
			},
		},
		Namespace: NamespaceConfig{
			Buckets: 10,
			Slots:   5,
			Store: NamespaceStoreConfig{
				Driver: "memory",
			},
		},
		Deployment: DeploymentConfig{
			HealthThreshold: 60,
		},
		Orchestrator: OrchestratorConfig{
			IdleTimeout:          24 * time.Hour,
			ArchiveSweepInterval: 5 * time.Minute,
			AutoFixBudget:        5,
			LockStripes:          64,
		},
		SessionStore: SessionStoreConfig{
			Driver:          "memory",
			MaxConns:        25,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Replay: ReplayConfig{
			Driver:     "memory",
			DefaultTTL: 24 * time.Hour,
		},
		Observability: ObservabilityConfig{
			LogLevel: "info",
			Tracing: TracingConfig{
				Exporter:     "otlp",
				SamplingRate: 0.1,
			},
			Metrics: MetricsConfig{
				Enabled: true,
				Path:    "/metrics",
			},
		},
	}
}

// Load reads a YAML config file, applies environment variable overrides,
// and validates required fields.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validation: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required fields are present and valid.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 1 and 65535")
	}
	if c.Identity.Issuer == "" {
		errs = append(errs, "identity.issuer is required")
	}
	if c.Identity.Audience == "" {
		errs = append(errs, "identity.audience is required")
	}
	if c.Identity.JWKSURL == "" && c.Identity.HMACSecretEnv == "" {
		errs = append(errs, "identity.jwks_url or identity.hmac_secret_env is required")
	}
	if c.Generation.Timeout <= 0 || c.Generation.Timeout > MaxGenerationTimeout {
		errs = append(errs, fmt.Sprintf("generation.timeout must be within (0, %s]", MaxGenerationTimeout))
	}
	if c.Engine.BaseURL == "" {
		errs = append(errs, "engine.base_url is required")
	}
	if c.Engine.Timeout <= 0 || c.Engine.Timeout > MaxEngineTimeout {
		errs = append(errs, fmt.Sprintf("engine.timeout must be within (0, %s]", MaxEngineTimeout))
	}
	if c.Engine.HealthRetry.Retries < 0 {
		errs = append(errs, "engine.health_retry.retries must not be negative")
	}
	if c.Namespace.Buckets < 1 || c.Namespace.Slots < 1 {
		errs = append(errs, "namespace.buckets and namespace.slots must be at least 1")
	}
	switch c.Namespace.Store.Driver {
	case "memory", "postgres":
	default:
		errs = append(errs, "namespace.store.driver must be memory or postgres")
	}
	if c.Deployment.HealthThreshold < 0 || c.Deployment.HealthThreshold > 100 {
		errs = append(errs, "deployment.health_threshold must be between 0 and 100")
	}
	if c.Orchestrator.AutoFixBudget < 0 {
		errs = append(errs, "orchestrator.auto_fix_budget must not be negative")
	}
	if c.Orchestrator.LockStripes < 1 {
		errs = append(errs, "orchestrator.lock_stripes must be at least 1")
	}
	switch c.SessionStore.Driver {
	case "memory", "postgres":
	default:
		errs = append(errs, "session_store.driver must be memory or postgres")
	}
	switch c.Replay.Driver {
	case "memory", "redis":
	default:
		errs = append(errs, "replay.driver must be memory or redis")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

// applyEnvOverrides reads CLIXEN_* environment variables and overrides config
// values. Only the most commonly overridden fields are supported.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("CLIXEN_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("CLIXEN_IDENTITY_ISSUER"); v != "" {
		cfg.Identity.Issuer = v
	}
	if v := os.Getenv("CLIXEN_IDENTITY_JWKS_URL"); v != "" {
		cfg.Identity.JWKSURL = v
	}
	if v := os.Getenv("CLIXEN_IDENTITY_AUDIENCE"); v != "" {
		cfg.Identity.Audience = v
	}
	if v := os.Getenv("CLIXEN_GENERATION_BASE_URL"); v != "" {
		cfg.Generation.BaseURL = v
	}
	if v := os.Getenv("CLIXEN_GENERATION_MODEL"); v != "" {
		cfg.Generation.Model = v
	}
	if v := os.Getenv("CLIXEN_ENGINE_BASE_URL"); v != "" {
		cfg.Engine.BaseURL = v
	}
	if v := os.Getenv("CLIXEN_SESSION_STORE_DRIVER"); v != "" {
		cfg.SessionStore.Driver = v
	}
	if v := os.Getenv("CLIXEN_OBSERVABILITY_LOG_LEVEL"); v != "" {
		cfg.Observability.LogLevel = v
	}
}
