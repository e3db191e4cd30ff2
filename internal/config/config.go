// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type ServerConfig struct {
	Port           int           `yaml:"port"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
	Issuer    string `yaml:"issuer"`
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type StoreConfig struct {
	Driver          string        `yaml:"driver"` // mongo | postgres | memory
	MongoURI        string        `yaml:"mongo_uri"`
	MongoDB         string        `yaml:"mongo_db"`
	PostgresURL     string        `yaml:"postgres_url"`
	MaxConns        int32         `yaml:"max_conns"`
	RetryMaxElapsed time.Duration `yaml:"retry_max_elapsed"`
}

type RedisConfig struct {
	URL      string        `yaml:"url"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	CacheTTL time.Duration `yaml:"cache_ttl"` // account lookups; used whenever url is set
}

type RateLimitConfig struct {
	Backend            string        `yaml:"backend"`              // memory | redis
	MaxFailures        int           `yaml:"max_failures"`         // per (account, code)
	AccountMaxFailures int           `yaml:"account_max_failures"` // per account across codes
	Window             time.Duration `yaml:"window"`
	Cooldown           time.Duration `yaml:"cooldown"`
}

type RedeemConfig struct {
	MaxCommitAttempts int           `yaml:"max_commit_attempts"`
	BenefitTimeout    time.Duration `yaml:"benefit_timeout"`
	CommitBackoff     time.Duration `yaml:"commit_backoff"` // first pause after a ledger-slot collision

	// Background retry of benefits that failed after commit.
	PendingWorkers    int           `yaml:"pending_workers"`
	PendingMaxElapsed time.Duration `yaml:"pending_max_elapsed"`
}

type IssueConfig struct {
	CollisionRetries int `yaml:"collision_retries"`
}

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Auth      AuthConfig      `yaml:"auth"`
	Log       LogConfig       `yaml:"log"`
	Store     StoreConfig     `yaml:"store"`
	Redis     RedisConfig     `yaml:"redis"`
	RateLimit RateLimitConfig `yaml:"ratelimit"`
	Redeem    RedeemConfig    `yaml:"redeem"`
	Issue     IssueConfig     `yaml:"issue"`

	Runtime RuntimeConfig `yaml:"-"`
}

func LoadConfig(configPath string, dev bool) (*Config, error) {
	b, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(b)
	if err != nil {
		return nil, err
	}
	cfg.Runtime.Dev = dev
	return cfg, nil
}

// Parse decodes YAML, applies defaults and validates the result.
func Parse(b []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	applyDefaults(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.RequestTimeout <= 0 {
		cfg.Server.RequestTimeout = 10 * time.Second
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	cfg.Store.Driver = strings.ToLower(strings.TrimSpace(cfg.Store.Driver))
	if cfg.Store.Driver == "" {
		cfg.Store.Driver = "mongo"
	}
	if cfg.Store.MongoDB == "" {
		cfg.Store.MongoDB = "entitlements"
	}
	if cfg.Store.MaxConns <= 0 {
		cfg.Store.MaxConns = 10
	}
	if cfg.Store.RetryMaxElapsed <= 0 {
		cfg.Store.RetryMaxElapsed = 3 * time.Second
	}
	if cfg.Redis.CacheTTL <= 0 {
		cfg.Redis.CacheTTL = 10 * time.Minute
	}
	cfg.RateLimit.Backend = strings.ToLower(strings.TrimSpace(cfg.RateLimit.Backend))
	if cfg.RateLimit.Backend == "" {
		cfg.RateLimit.Backend = "memory"
	}
	if cfg.RateLimit.MaxFailures <= 0 {
		cfg.RateLimit.MaxFailures = 5
	}
	if cfg.RateLimit.AccountMaxFailures <= 0 {
		cfg.RateLimit.AccountMaxFailures = 20
	}
	if cfg.RateLimit.Window <= 0 {
		cfg.RateLimit.Window = 15 * time.Minute
	}
	if cfg.RateLimit.Cooldown <= 0 {
		cfg.RateLimit.Cooldown = 5 * time.Minute
	}
	if cfg.Redeem.MaxCommitAttempts <= 0 {
		cfg.Redeem.MaxCommitAttempts = 8
	}
	if cfg.Redeem.BenefitTimeout <= 0 {
		cfg.Redeem.BenefitTimeout = 5 * time.Second
	}
	if cfg.Redeem.CommitBackoff <= 0 {
		cfg.Redeem.CommitBackoff = 5 * time.Millisecond
	}
	if cfg.Redeem.PendingWorkers <= 0 {
		cfg.Redeem.PendingWorkers = 2
	}
	if cfg.Redeem.PendingMaxElapsed <= 0 {
		cfg.Redeem.PendingMaxElapsed = 2 * time.Minute
	}
	if cfg.Issue.CollisionRetries <= 0 {
		cfg.Issue.CollisionRetries = 5
	}
}

func validate(cfg *Config) error {
	// Minimal validation
	if cfg.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret is required")
	}
	switch cfg.Store.Driver {
	case "mongo":
		if cfg.Store.MongoURI == "" {
			return errors.New("store.mongo_uri is required for the mongo driver")
		}
	case "postgres":
		if cfg.Store.PostgresURL == "" {
			return errors.New("store.postgres_url is required for the postgres driver")
		}
	case "memory":
	default:
		return fmt.Errorf("store.driver %q is not supported", cfg.Store.Driver)
	}
	switch cfg.RateLimit.Backend {
	case "memory":
	case "redis":
		if cfg.Redis.URL == "" {
			return errors.New("redis.url is required for the redis rate limit backend")
		}
	default:
		return fmt.Errorf("ratelimit.backend %q is not supported", cfg.RateLimit.Backend)
	}
	if cfg.RateLimit.AccountMaxFailures < cfg.RateLimit.MaxFailures {
		return errors.New("ratelimit.account_max_failures must be >= ratelimit.max_failures")
	}
	return nil
}
