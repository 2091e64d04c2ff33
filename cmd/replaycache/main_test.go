package main

import (
	"bytes"
	"context"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rsclarke/replaycache/internal/normalize"
	"github.com/rsclarke/replaycache/internal/session"
	"github.com/rsclarke/replaycache/internal/store"
)

func seedCache(t *testing.T) string {
	t.Helper()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "cache.db")
	s, err := session.New(ctx, session.Config{
		Path:  path,
		Mode:  store.ModeCleanRecord,
		Rules: normalize.Rules{AuthQueryParams: []string{"token"}},
	})
	require.NoError(t, err)

	require.NoError(t, s.RegisterOutgoing(ctx, "1", normalize.Request{Method: "GET", URL: "https://api.example.com/users?token=t"}))
	require.NoError(t, s.AttachResponse(ctx, "1", 200, http.Header{"Content-Type": {"application/json"}}))
	require.NoError(t, s.RecordCompleted(ctx, "1", []byte(`{"users":["ann"]}`), nil))

	require.NoError(t, s.RegisterOutgoing(ctx, "2", normalize.Request{Method: "POST", URL: "https://other.example.com/x"}))
	require.NoError(t, s.Close(ctx))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestListCommand(t *testing.T) {
	path := seedCache(t)

	out, err := run(t, "list", "--db", path)
	require.NoError(t, err)
	assert.Contains(t, out, "https://api.example.com/users")
	assert.Contains(t, out, "200")
	assert.Contains(t, out, "failed", "flushed transaction is listed as a failure")
}

func TestShowCommand(t *testing.T) {
	path := seedCache(t)

	out, err := run(t, "show", "1", "--db", path)
	require.NoError(t, err)
	assert.Contains(t, out, "occurrence: 1")
	assert.Contains(t, out, "auth:       q")
	assert.Contains(t, out, `"users": [`)

	_, err = run(t, "show", "99", "--db", path)
	assert.Error(t, err)
}

func TestStatsCommand(t *testing.T) {
	path := seedCache(t)

	out, err := run(t, "stats", "--db", path)
	require.NoError(t, err)
	assert.Contains(t, out, "2 requests")
	assert.Contains(t, out, "api.example.com")
	assert.Contains(t, out, "other.example.com")
}

func TestListMissingCache(t *testing.T) {
	_, err := run(t, "list", "--db", filepath.Join(t.TempDir(), "missing.db"))
	assert.ErrorIs(t, err, store.ErrCacheDoesNotExist)
}

func TestFingerprintCommand(t *testing.T) {
	rulesPath := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(rulesPath, []byte("authQueryParams: [token]\nqueryRemovals: [token]\n"), 0o644))

	out, err := run(t, "fingerprint",
		"--method", "get",
		"--url", "https://h/x?token=abc&id=1",
		"--header", "Authorization: Bearer x",
		"--rules", rulesPath,
	)
	require.NoError(t, err)
	assert.Contains(t, out, "method:  GET")
	assert.Contains(t, out, "query:   id=1")
	assert.Contains(t, out, "auth:    query=true body=false headers=false")
}
