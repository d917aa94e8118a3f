package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type ServerConfig struct {
	Port int `yaml:"port"`
}

type AdminConfig struct {
	Port int `yaml:"port"` // metrics endpoint
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type DatabaseConfig struct {
	URL      string `yaml:"url"`
	MaxConns int32  `yaml:"max_conns"`
}

type RedisConfig struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type AuthConfig struct {
	HMACSecret string `yaml:"hmac_secret"`
}

// CodesConfig tunes the generation and redemption paths.
type CodesConfig struct {
	DefaultLength int `yaml:"default_length"` // 8..20
	MaxQuantity   int `yaml:"max_quantity"`   // per generation request
	MaxAttempts   int `yaml:"max_attempts"`   // per code slot
	GroupSize     int `yaml:"group_size"`     // candidates per store round-trip

	RedeemLimit         int `yaml:"redeem_limit"`           // attempts per actor per window
	RedeemWindowSeconds int `yaml:"redeem_window_seconds"` // rate limit window
}

func (c CodesConfig) RedeemWindow() time.Duration {
	return time.Duration(c.RedeemWindowSeconds) * time.Second
}

type StatsConfig struct {
	RefreshIntervalSeconds int `yaml:"refresh_interval_seconds"`
}

func (c StatsConfig) RefreshInterval() time.Duration {
	return time.Duration(c.RefreshIntervalSeconds) * time.Second
}

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Admin    AdminConfig    `yaml:"admin"`
	Log      LogConfig      `yaml:"log"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Auth     AuthConfig     `yaml:"auth"`
	Codes    CodesConfig    `yaml:"codes"`
	Stats    StatsConfig    `yaml:"stats"`

	Runtime RuntimeConfig `yaml:"-"`
}

func LoadConfig(path string, dev bool) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	// defaults
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Admin.Port == 0 {
		cfg.Admin.Port = 9090
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Database.MaxConns <= 0 {
		cfg.Database.MaxConns = 10
	}
	if cfg.Codes.DefaultLength == 0 {
		cfg.Codes.DefaultLength = 12
	}
	if cfg.Codes.MaxQuantity <= 0 {
		cfg.Codes.MaxQuantity = 10000
	}
	if cfg.Codes.MaxAttempts <= 0 {
		cfg.Codes.MaxAttempts = 100
	}
	if cfg.Codes.GroupSize <= 0 {
		cfg.Codes.GroupSize = 100
	}
	if cfg.Codes.RedeemLimit <= 0 {
		cfg.Codes.RedeemLimit = 30
	}
	if cfg.Codes.RedeemWindowSeconds <= 0 {
		cfg.Codes.RedeemWindowSeconds = 60
	}
	if cfg.Stats.RefreshIntervalSeconds <= 0 {
		cfg.Stats.RefreshIntervalSeconds = 30
	}

	// Minimal validation
	if cfg.Database.URL == "" {
		return nil, errors.New("database.url is required")
	}
	if cfg.Auth.HMACSecret == "" {
		return nil, errors.New("auth.hmac_secret is required")
	}
	if cfg.Codes.DefaultLength < 8 || cfg.Codes.DefaultLength > 20 {
		return nil, errors.New("codes.default_length must be within 8..20")
	}

	cfg.Runtime.Dev = dev
	return &cfg, nil
}
