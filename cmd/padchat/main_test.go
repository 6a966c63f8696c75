package main

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/RichardoC/padchat/internal/config"
	"github.com/RichardoC/padchat/internal/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func intPtr(n int) *int { return &n }

func seedJournal(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "diag.db")
	database, err := db.New(path)
	require.NoError(t, err)
	defer database.Close()

	ctx := context.Background()
	require.NoError(t, database.RecordExchange(ctx, &db.Exchange{
		SessionID: "aaaaaaaa-1111", RequestID: "r1", Op: "generate", Model: "gpt-4",
		Outcome: "ok", StatusCode: 200, LatencyMS: 120,
		PromptTokens: intPtr(5), CompletionTokens: intPtr(3),
	}))
	require.NoError(t, database.RecordExchange(ctx, &db.Exchange{
		SessionID: "bbbbbbbb-2222", RequestID: "r2", Op: "fetch",
		Outcome: "network_failure", LatencyMS: 3, Error: "connection refused",
	}))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestDiagnostics_Table(t *testing.T) {
	path := seedJournal(t)

	out, err := execute(t, "diagnostics", "--diagnostics-db", path)
	require.NoError(t, err)
	assert.Contains(t, out, "generate")
	assert.Contains(t, out, "network_failure")
	assert.Contains(t, out, "5/3")
	assert.Contains(t, out, "aaaaaaaa")
	assert.Less(t, strings.Index(out, "fetch"), strings.Index(out, "generate"), "newest first")
}

func TestDiagnostics_JSONFilteredBySession(t *testing.T) {
	path := seedJournal(t)

	out, err := execute(t, "diagnostics", "--diagnostics-db", path, "--session", "aaaaaaaa-1111", "--json")
	require.NoError(t, err)

	var got []db.Exchange
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "r1", got[0].RequestID)
	assert.Equal(t, 5, *got[0].PromptTokens)
}

func TestDiagnostics_Limit(t *testing.T) {
	path := seedJournal(t)

	out, err := execute(t, "diagnostics", "--diagnostics-db", path, "--limit", "1", "--json")
	require.NoError(t, err)

	var got []db.Exchange
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "r2", got[0].RequestID)
}

func TestDiagnostics_Purge(t *testing.T) {
	path := seedJournal(t)

	_, err := execute(t, "diagnostics", "--diagnostics-db", path, "--purge")
	assert.Error(t, err)

	out, err := execute(t, "diagnostics", "--diagnostics-db", path, "--purge", "--session", "bbbbbbbb-2222")
	require.NoError(t, err)
	assert.Contains(t, out, "Deleted exchanges")

	out, err = execute(t, "diagnostics", "--diagnostics-db", path, "--json")
	require.NoError(t, err)
	var got []db.Exchange
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "aaaaaaaa-1111", got[0].SessionID)
}

func TestDiagnostics_Empty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.db")

	out, err := execute(t, "diagnostics", "--diagnostics-db", path)
	require.NoError(t, err)
	assert.Contains(t, out, "No exchanges recorded.")
}

func TestDiagnostics_NoDatabase(t *testing.T) {
	t.Setenv("CHAT_DIAGNOSTICS_DB", "")

	_, err := execute(t, "diagnostics")
	assert.ErrorContains(t, err, "no diagnostics database configured")
}

func TestRoot_InvalidConfig(t *testing.T) {
	t.Setenv("CHAT_BACKEND_URL", "")
	t.Setenv("CHAT_STRICT_CONFIG", "")

	_, err := execute(t, "--backend-url", "ftp://nope", "--log-file", "")
	assert.ErrorContains(t, err, "invalid backend url")
}

func TestTokensText(t *testing.T) {
	assert.Equal(t, "-", tokensText(nil, nil))
	assert.Equal(t, "5/?", tokensText(intPtr(5), nil))
	assert.Equal(t, "5/3", tokensText(intPtr(5), intPtr(3)))
}

func TestUIOptions_EstimatorIsOptIn(t *testing.T) {
	cfg := &config.Config{Markdown: true}
	opts := uiOptions(cfg, zap.NewNop())
	assert.Nil(t, opts.Estimator)
	assert.True(t, opts.Markdown)

	cfg.EstimateTokens = true
	opts = uiOptions(cfg, zap.NewNop())
	assert.NotNil(t, opts.Estimator)
}
