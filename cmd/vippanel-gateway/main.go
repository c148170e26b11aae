package main

import (
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"vippanel/internal/api"
	"vippanel/internal/auth"
	"vippanel/internal/config"
	"vippanel/internal/credit"
	"vippanel/internal/ledger"
	"vippanel/internal/ledger/pgstore"
	"vippanel/internal/ledger/sqlstore"
	"vippanel/internal/logging"
	"vippanel/internal/platform"
	"vippanel/internal/settle"
)

func main() {
	if err := runFn(os.Args[1:], os.Getenv, listenAndServe); err != nil {
		fatalf("server error: %v", err)
	}
}

var runFn = run
var fatalf = log.Fatalf

type envFn func(string) string
type listenFn func(*http.Server) error

func run(args []string, getenv envFn, listen listenFn) error {
	fs := flag.NewFlagSet("vippanel-gateway", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to config file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfgFile := *configPath
	if cfgFile == "" {
		cfgFile = getenv("VIPPANEL_CONFIG_PATH")
	}
	if cfgFile == "" {
		return fmt.Errorf("config file required (-config or VIPPANEL_CONFIG_PATH)")
	}

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	addr := firstNonEmpty(getenv("VIPPANEL_LISTEN_ADDR"), cfg.ListenAddr, ":8080")
	logger := logging.Setup("vippanel-gateway", cfg.Env)

	store, err := openStore(cfg.DB)
	if err != nil {
		return err
	}
	defer store.Close()

	platformClient := platform.NewHTTPClient(platform.Config{
		BaseURL: cfg.Platform.BaseURL,
		Timeout: cfg.Platform.Timeout(),
	})
	creditClient := credit.NewHTTPClient(credit.Config{
		BaseURL: cfg.Credit.BaseURL,
		APIKey:  cfg.Credit.APIKey,
		Timeout: cfg.Credit.Timeout(),
	})

	settler := settle.NewService(store, platformClient, creditClient, logger).
		WithDefaults(cfg.EvaluationYear, cfg.Operator)

	entries := make([]auth.DirectoryEntry, 0, len(cfg.Auth.Admins))
	for _, admin := range cfg.Auth.Admins {
		entries = append(entries, auth.DirectoryEntry{
			Username:     admin.Username,
			FullName:     admin.FullName,
			Email:        admin.Email,
			Role:         admin.Role,
			PasswordHash: admin.PasswordHash,
		})
	}
	directory := auth.NewStaticDirectory(entries)
	tokens := auth.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL())

	server := &http.Server{
		Addr:              addr,
		Handler:           api.NewServer(store, settler, tokens, directory, logger).Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	logger.Info("vippanel-gateway listening", "addr", addr, "db_driver", driverName(cfg.DB))
	if err := listen(server); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// openStore builds the ledger backend for the configured driver and applies
// pending migrations on the SQL backends.
func openStore(cfg config.DBConfig) (ledger.Store, error) {
	switch cfg.Driver {
	case "", "memory":
		return ledger.NewInMemoryStore(), nil
	case "sqlite":
		store, err := sqlstore.OpenSQLite(cfg.DSN)
		if err != nil {
			return nil, err
		}
		if err := ledger.Migrate(store.DB(), ledger.DBSQLite); err != nil {
			_ = store.Close()
			return nil, err
		}
		return store, nil
	case "postgres":
		store, err := pgstore.OpenPostgres(cfg.DSN)
		if err != nil {
			return nil, err
		}
		if err := ledger.Migrate(store.DB(), ledger.DBPostgres); err != nil {
			_ = store.Close()
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported db driver: %s", cfg.Driver)
	}
}

func driverName(cfg config.DBConfig) string {
	if cfg.Driver == "" {
		return "memory"
	}
	return cfg.Driver
}

func listenAndServe(server *http.Server) error {
	return server.ListenAndServe()
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}
