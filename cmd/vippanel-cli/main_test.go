package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestRunUsage(t *testing.T) {
	var stderr bytes.Buffer
	if code := run([]string{"vippanel-cli"}, &bytes.Buffer{}, &stderr); code != 2 {
		t.Fatalf("expected exit 2, got %d", code)
	}
	if code := run([]string{"vippanel-cli", "bogus"}, &bytes.Buffer{}, &stderr); code != 2 {
		t.Fatalf("expected exit 2 for unknown command, got %d", code)
	}
}

func TestHandleSettle(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/admin/auto-approve" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"success":true,"approved":true,"message":"Reward credited successfully"}`))
	}))
	defer srv.Close()

	var stdout, stderr bytes.Buffer
	code := run([]string{"vippanel-cli", "settle", "-addr", srv.URL, "alice"}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("exit %d, stderr: %s", code, stderr.String())
	}
	if !strings.Contains(stdout.String(), "approved=true") {
		t.Fatalf("stdout: %s", stdout.String())
	}
}

func TestHandleSettleDeclined(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":false,"approved":false,"message":"Deposit does not meet the bracket requirement"}`))
	}))
	defer srv.Close()

	var stdout, stderr bytes.Buffer
	code := run([]string{"vippanel-cli", "settle", "-addr", srv.URL, "alice"}, &stdout, &stderr)
	if code != 1 {
		t.Fatalf("expected exit 1 for decline, got %d", code)
	}
	if !strings.Contains(stdout.String(), "approved=false") {
		t.Fatalf("stdout: %s", stdout.String())
	}
}

func TestHandleSettleMissingArg(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if code := run([]string{"vippanel-cli", "settle"}, &stdout, &stderr); code != 2 {
		t.Fatalf("expected exit 2, got %d", code)
	}
}

func TestHandleVIPInfo(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/admin/vip-info/7" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"success":true,"data":{"vipLevel":7}}`))
	}))
	defer srv.Close()

	var stdout, stderr bytes.Buffer
	code := run([]string{"vippanel-cli", "vip-info", "-addr", srv.URL, "7"}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("exit %d, stderr: %s", code, stderr.String())
	}
	if !strings.Contains(stdout.String(), `"vipLevel":7`) {
		t.Fatalf("stdout: %s", stdout.String())
	}
}

func TestHandleVIPInfoBadLevel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"success":false,"message":"VIP level must be between 1 and 60"}`))
	}))
	defer srv.Close()

	var stdout, stderr bytes.Buffer
	code := run([]string{"vippanel-cli", "vip-info", "-addr", srv.URL, "61"}, &stdout, &stderr)
	if code != 1 {
		t.Fatalf("expected exit 1, got %d", code)
	}
}

func TestHandleHashPassword(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := run([]string{"vippanel-cli", "hash-password", "s3cret"}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("exit %d, stderr: %s", code, stderr.String())
	}
	hash := strings.TrimSpace(stdout.String())
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte("s3cret")); err != nil {
		t.Fatalf("hash does not verify: %v", err)
	}
}

func TestHandleMigrateRequiresConfig(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if code := run([]string{"vippanel-cli", "migrate"}, &stdout, &stderr); code != 2 {
		t.Fatalf("expected exit 2, got %d", code)
	}
}
