package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const validConfig = `
listen_addr: ":8080"
env: test
db:
  driver: sqlite
  dsn: file:panel.db
platform:
  base_url: https://platform.example.com
  timeout_seconds: 10
credit:
  base_url: https://credit.example.com
  api_key: ${TEST_CREDIT_KEY}
auth:
  jwt_secret: test-secret
  token_ttl_hours: 24
  admins:
    - username: root
      role: super_admin
      password_hash: "$2a$10$hash"
evaluation_year: 2026
operator: system
`

func TestLoad(t *testing.T) {
	t.Setenv("TEST_CREDIT_KEY", "k-123")
	path := writeConfig(t, validConfig)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenAddr != ":8080" || cfg.DB.Driver != "sqlite" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.Credit.APIKey != "k-123" {
		t.Fatalf("env expansion failed: %q", cfg.Credit.APIKey)
	}
	if cfg.Platform.Timeout().Seconds() != 10 {
		t.Fatalf("timeout: %v", cfg.Platform.Timeout())
	}
	if cfg.Auth.TokenTTL().Hours() != 24 {
		t.Fatalf("ttl: %v", cfg.Auth.TokenTTL())
	}
	if len(cfg.Auth.Admins) != 1 || cfg.Auth.Admins[0].Role != "super_admin" {
		t.Fatalf("admins: %+v", cfg.Auth.Admins)
	}
}

func TestValidate(t *testing.T) {
	base := func() Config {
		return Config{
			ListenAddr: ":8080",
			DB:         DBConfig{Driver: "memory"},
			Platform:   PartnerConfig{BaseURL: "https://p"},
			Credit:     CreditConfig{BaseURL: "https://c", APIKey: "k"},
		}
	}

	if err := base().Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	cfg := base()
	cfg.ListenAddr = ""
	if err := cfg.Validate(); err == nil {
		t.Fatalf("missing listen_addr accepted")
	}

	cfg = base()
	cfg.DB = DBConfig{Driver: "sqlite"}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("sqlite without dsn accepted")
	}

	cfg = base()
	cfg.DB = DBConfig{Driver: "oracle", DSN: "x"}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("unknown driver accepted")
	}

	cfg = base()
	cfg.Credit.APIKey = ""
	if err := cfg.Validate(); err == nil {
		t.Fatalf("missing credit api key accepted")
	}

	cfg = base()
	cfg.Auth = AuthConfig{Admins: []AdminConfig{{Username: "root", PasswordHash: "h"}}}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("admins without jwt_secret accepted")
	}

	cfg = base()
	cfg.Auth = AuthConfig{JWTSecret: "s", Admins: []AdminConfig{{Username: "root", PasswordHash: "h", Role: "owner"}}}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("bad role accepted")
	}
}
