// Package config loads service configuration from YAML. Values may reference
// environment variables with $NAME / ${NAME} syntax.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	ListenAddr string `yaml:"listen_addr"`
	Env        string `yaml:"env"`

	DB       DBConfig      `yaml:"db"`
	Platform PartnerConfig `yaml:"platform"`
	Credit   CreditConfig  `yaml:"credit"`
	Auth     AuthConfig    `yaml:"auth"`

	// EvaluationYear is passed to the platform lookup; zero selects the
	// promotion's default year.
	EvaluationYear int    `yaml:"evaluation_year"`
	Operator       string `yaml:"operator"`
}

type DBConfig struct {
	Driver string `yaml:"driver"` // memory, sqlite or postgres
	DSN    string `yaml:"dsn"`
}

type PartnerConfig struct {
	BaseURL        string `yaml:"base_url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

type CreditConfig struct {
	BaseURL        string `yaml:"base_url"`
	APIKey         string `yaml:"api_key"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

type AuthConfig struct {
	JWTSecret     string        `yaml:"jwt_secret"`
	TokenTTLHours int           `yaml:"token_ttl_hours"`
	Admins        []AdminConfig `yaml:"admins"`
}

type AdminConfig struct {
	Username     string `yaml:"username"`
	FullName     string `yaml:"full_name"`
	Email        string `yaml:"email"`
	Role         string `yaml:"role"`
	PasswordHash string `yaml:"password_hash"`
}

func Load(path string) (Config, error) {
	// #nosec G304 -- path is operator-provided config path.
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	expanded := os.ExpandEnv(string(raw))
	expanded = strings.ReplaceAll(expanded, "\r\n", "\n")

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("listen_addr is required")
	}

	switch c.DB.Driver {
	case "", "memory":
	case "sqlite", "postgres":
		if c.DB.DSN == "" {
			return fmt.Errorf("db.dsn is required when db.driver is %s", c.DB.Driver)
		}
	default:
		return fmt.Errorf("unsupported db.driver: %s", c.DB.Driver)
	}

	if c.Platform.BaseURL == "" {
		return fmt.Errorf("platform.base_url is required")
	}
	if c.Credit.BaseURL == "" {
		return fmt.Errorf("credit.base_url is required")
	}
	if c.Credit.APIKey == "" {
		return fmt.Errorf("credit.api_key is required")
	}

	if len(c.Auth.Admins) > 0 && c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required when auth.admins is set")
	}
	for _, admin := range c.Auth.Admins {
		if admin.Username == "" || admin.PasswordHash == "" {
			return fmt.Errorf("auth.admins entries need username and password_hash")
		}
		switch admin.Role {
		case "", "admin", "super_admin":
		default:
			return fmt.Errorf("unsupported role for admin %s: %s", admin.Username, admin.Role)
		}
	}

	return nil
}

func (p PartnerConfig) Timeout() time.Duration {
	return time.Duration(p.TimeoutSeconds) * time.Second
}

func (c CreditConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

func (a AuthConfig) TokenTTL() time.Duration {
	return time.Duration(a.TokenTTLHours) * time.Hour
}
