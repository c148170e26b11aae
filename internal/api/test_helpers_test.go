package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"vippanel/internal/auth"
	"vippanel/internal/credit"
	"vippanel/internal/ledger"
	"vippanel/internal/platform"
	"vippanel/internal/settle"
)

type stubPlatform struct {
	lookup platform.Lookup
	err    error
}

func (s *stubPlatform) FetchDeposit(context.Context, string, int) (platform.Lookup, error) {
	return s.lookup, s.err
}

type stubCredit struct {
	calls  atomic.Int64
	result credit.Result
	err    error
}

func (s *stubCredit) Issue(context.Context, string, decimal.Decimal) (credit.Result, error) {
	s.calls.Add(1)
	return s.result, s.err
}

func lookupFor(t *testing.T, level int, total any) platform.Lookup {
	t.Helper()
	payload := map[string]any{
		"userInfo":           map[string]any{"vipLevel": float64(level)},
		"totalDepositMonth1": total,
	}
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	return platform.Lookup{VIPLevel: level, Payload: payload, Raw: raw}
}

type testEnv struct {
	server  *Server
	store   *ledger.InMemoryStore
	tokens  *auth.TokenService
	handler http.Handler
}

func newTestEnv(t *testing.T, p platform.Client, c credit.Client) *testEnv {
	t.Helper()

	store := ledger.NewInMemoryStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	settler := settle.NewService(store, p, c, logger)

	rootHash, err := auth.HashPassword("root-pass")
	require.NoError(t, err)
	opHash, err := auth.HashPassword("op-pass")
	require.NoError(t, err)
	directory := auth.NewStaticDirectory([]auth.DirectoryEntry{
		{Username: "root", Role: auth.RoleSuperAdmin, PasswordHash: rootHash},
		{Username: "operator", Role: auth.RoleAdmin, PasswordHash: opHash},
	})
	tokens := auth.NewTokenService("test-secret", time.Hour)

	server := NewServer(store, settler, tokens, directory, logger)
	return &testEnv{
		server:  server,
		store:   store,
		tokens:  tokens,
		handler: server.Router(),
	}
}

func (e *testEnv) tokenFor(t *testing.T, username, role string) string {
	t.Helper()
	token, err := e.tokens.Mint(auth.Admin{Username: username, Role: role})
	require.NoError(t, err)
	return token
}

func (e *testEnv) do(t *testing.T, method, path, token string, body io.Reader) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}
