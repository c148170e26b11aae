package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"

	"vippanel/internal/auth"
	"vippanel/internal/config"
	"vippanel/internal/ledger"
	"vippanel/internal/ledger/pgstore"
	"vippanel/internal/ledger/sqlstore"
)

const defaultAddr = "http://localhost:8080"

func main() {
	exitFn(run(os.Args, os.Stdout, os.Stderr))
}

var exitFn = os.Exit

func run(args []string, stdout io.Writer, stderr io.Writer) int {
	if len(args) < 2 {
		usage(stderr)
		return 2
	}

	switch args[1] {
	case "settle":
		return handleSettle(args[2:], stdout, stderr)
	case "vip-info":
		return handleVIPInfo(args[2:], stdout, stderr)
	case "migrate":
		return handleMigrate(args[2:], stdout, stderr)
	case "hash-password":
		return handleHashPassword(args[2:], stdout, stderr)
	default:
		usage(stderr)
		return 2
	}
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "usage: vippanel-cli <settle|vip-info|migrate|hash-password> [flags]")
}

func handleSettle(args []string, stdout io.Writer, stderr io.Writer) int {
	fs := flag.NewFlagSet("settle", flag.ContinueOnError)
	fs.SetOutput(stderr)
	addr := fs.String("addr", envOrDefault("VIPPANEL_ADDR", defaultAddr), "panel API address")
	year := fs.Int("year", 0, "evaluation year (0 selects the default)")
	jsonOut := fs.Bool("json", false, "print raw JSON response")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	if fs.NArg() != 1 {
		fmt.Fprintln(stderr, "settle requires <username>")
		fs.Usage()
		return 2
	}
	username := fs.Arg(0)

	payload, err := json.Marshal(map[string]any{"username": username, "year": *year})
	if err != nil {
		fmt.Fprintln(stderr, err.Error())
		return 1
	}

	resp, err := http.Post(*addr+"/api/admin/auto-approve", "application/json", bytes.NewReader(payload))
	if err != nil {
		fmt.Fprintln(stderr, err.Error())
		return 1
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		fmt.Fprintln(stderr, err.Error())
		return 1
	}

	if *jsonOut {
		_, _ = stdout.Write(body)
		return 0
	}

	var decoded struct {
		Approved bool   `json:"approved"`
		Message  string `json:"message"`
	}
	if err := json.Unmarshal(body, &decoded); err != nil {
		fmt.Fprintln(stderr, "invalid response:", err)
		return 1
	}

	fmt.Fprintf(stdout, "approved=%v message=%s\n", decoded.Approved, decoded.Message)
	if !decoded.Approved {
		return 1
	}
	return 0
}

func handleVIPInfo(args []string, stdout io.Writer, stderr io.Writer) int {
	fs := flag.NewFlagSet("vip-info", flag.ContinueOnError)
	fs.SetOutput(stderr)
	addr := fs.String("addr", envOrDefault("VIPPANEL_ADDR", defaultAddr), "panel API address")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	endpoint := *addr + "/api/admin/vip-info"
	if fs.NArg() == 1 {
		endpoint += "/" + fs.Arg(0)
	}

	resp, err := http.Get(endpoint)
	if err != nil {
		fmt.Fprintln(stderr, err.Error())
		return 1
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		fmt.Fprintln(stderr, err.Error())
		return 1
	}

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(stderr, "vip-info failed: %s\n", bytes.TrimSpace(body))
		return 1
	}
	_, _ = stdout.Write(body)
	return 0
}

func handleMigrate(args []string, stdout io.Writer, stderr io.Writer) int {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", os.Getenv("VIPPANEL_CONFIG_PATH"), "path to config file")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *configPath == "" {
		fmt.Fprintln(stderr, "migrate requires -config or VIPPANEL_CONFIG_PATH")
		return 2
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(stderr, err.Error())
		return 1
	}

	switch cfg.DB.Driver {
	case "sqlite":
		store, err := sqlstore.OpenSQLite(cfg.DB.DSN)
		if err != nil {
			fmt.Fprintln(stderr, err.Error())
			return 1
		}
		defer store.Close()
		if err := ledger.Migrate(store.DB(), ledger.DBSQLite); err != nil {
			fmt.Fprintln(stderr, err.Error())
			return 1
		}
	case "postgres":
		store, err := pgstore.OpenPostgres(cfg.DB.DSN)
		if err != nil {
			fmt.Fprintln(stderr, err.Error())
			return 1
		}
		defer store.Close()
		if err := ledger.Migrate(store.DB(), ledger.DBPostgres); err != nil {
			fmt.Fprintln(stderr, err.Error())
			return 1
		}
	default:
		fmt.Fprintf(stderr, "migrate supports sqlite and postgres, got %q\n", cfg.DB.Driver)
		return 2
	}

	fmt.Fprintln(stdout, "migrations applied")
	return 0
}

// handleHashPassword produces a bcrypt hash for an auth.admins config entry.
func handleHashPassword(args []string, stdout io.Writer, stderr io.Writer) int {
	fs := flag.NewFlagSet("hash-password", flag.ContinueOnError)
	fs.SetOutput(stderr)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(stderr, "hash-password requires <password>")
		return 2
	}

	hash, err := auth.HashPassword(fs.Arg(0))
	if err != nil {
		fmt.Fprintln(stderr, err.Error())
		return 1
	}
	fmt.Fprintln(stdout, hash)
	return 0
}

func envOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
