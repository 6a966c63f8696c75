package session

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/RichardoC/padchat/internal/api"
	"github.com/RichardoC/padchat/internal/db"
	"github.com/RichardoC/padchat/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// memoryBackend is an in-process stand-in for the chat log server.
type memoryBackend struct {
	mu       sync.Mutex
	log      models.ChatLog
	failNext error
	block    chan struct{}
	prompts  []api.GenerateRequest
}

func (b *memoryBackend) takeFailure() error {
	err := b.failNext
	b.failNext = nil
	return err
}

func (b *memoryBackend) FetchChatLog(ctx context.Context) (*api.ChatLogResponse, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.takeFailure(); err != nil {
		return nil, err
	}
	return &api.ChatLogResponse{ChatLog: b.log.Clone(), RequestID: "fetch-id"}, nil
}

func (b *memoryBackend) GenerateReply(ctx context.Context, req api.GenerateRequest) (*api.GenerateResponse, error) {
	if b.block != nil {
		select {
		case <-b.block:
		case <-ctx.Done():
			return nil, &api.Error{Kind: api.KindNetwork, Op: "generate reply", Err: ctx.Err()}
		}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.prompts = append(b.prompts, req)
	if err := b.takeFailure(); err != nil {
		return nil, err
	}
	b.log = append(b.log,
		models.ChatLogEntry{Role: models.RoleUser, Content: req.UserPrompt},
		models.ChatLogEntry{Role: models.RoleAssistant, Content: "Hi there!"},
	)
	return &api.GenerateResponse{
		ChatLog:   b.log.Clone(),
		Usage:     &models.TokenUsage{Prompt: 5, Completion: 3},
		RequestID: "gen-id",
	}, nil
}

func (b *memoryBackend) ClearChatLog(ctx context.Context) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.takeFailure(); err != nil {
		return "clear-id", err
	}
	b.log = nil
	return "clear-id", nil
}

type memoryJournal struct {
	mu      sync.Mutex
	entries []db.Exchange
	err     error
}

func (j *memoryJournal) RecordExchange(_ context.Context, ex *db.Exchange) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.err != nil {
		return j.err
	}
	j.entries = append(j.entries, *ex)
	return nil
}

func newTestController(t *testing.T, backend Backend, policy Policy, opts ...ControllerOption) (*Controller, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	return NewController(backend, NewCoordinator(policy), zap.New(core), "session-1", opts...), logs
}

func TestController_HelloScenario(t *testing.T) {
	backend := &memoryBackend{}
	journal := &memoryJournal{}
	c, logs := newTestController(t, backend, PolicyReject, WithJournal(journal))
	state := NewState("gpt-3.5-turbo", "gpt-4")

	state.Begin(OpGenerate)
	res := c.Generate(context.Background(), "Hello", state.Models.Current())
	require.NoError(t, res.Err)
	state.Apply(res)

	assert.Equal(t, []api.GenerateRequest{{UserPrompt: "Hello", Model: "gpt-3.5-turbo"}}, backend.prompts)
	assert.Equal(t, helloLog, state.Log)
	assert.Equal(t, &models.TokenUsage{Prompt: 5, Completion: 3}, state.Usage)
	assert.False(t, state.InFlight())

	completed := logs.FilterMessage("Backend request completed").All()
	require.Len(t, completed, 1)
	fields := completed[0].ContextMap()
	assert.Equal(t, "generate", fields["op"])
	assert.Equal(t, "gen-id", fields["request_id"])
	assert.Equal(t, "session-1", fields["session_id"])
	assert.Contains(t, fields, "latency")

	require.Len(t, journal.entries, 1)
	entry := journal.entries[0]
	assert.Equal(t, "ok", entry.Outcome)
	assert.Equal(t, "generate", entry.Op)
	assert.Equal(t, "gpt-3.5-turbo", entry.Model)
	require.NotNil(t, entry.PromptTokens)
	assert.Equal(t, 5, *entry.PromptTokens)
}

func TestController_FetchIsIdempotent(t *testing.T) {
	backend := &memoryBackend{log: helloLog.Clone()}
	c, _ := newTestController(t, backend, PolicyReject)

	first := c.Fetch(context.Background())
	second := c.Fetch(context.Background())
	require.NoError(t, first.Err)
	require.NoError(t, second.Err)
	assert.Equal(t, first.Log, second.Log)
	assert.Less(t, first.Seq, second.Seq)
}

func TestController_ClearThenFetchIsEmpty(t *testing.T) {
	backend := &memoryBackend{log: helloLog.Clone()}
	c, _ := newTestController(t, backend, PolicyReject)
	state := NewState("a", "b")

	state.Apply(c.Fetch(context.Background()))
	require.Len(t, state.Log, 2)

	state.Apply(c.Clear(context.Background()))
	assert.Empty(t, state.Log)

	state.Apply(c.Fetch(context.Background()))
	assert.NotNil(t, state.Log)
	assert.Empty(t, state.Log)
}

func TestController_NetworkFailure(t *testing.T) {
	backend := &memoryBackend{log: helloLog.Clone()}
	journal := &memoryJournal{}
	c, logs := newTestController(t, backend, PolicyReject, WithJournal(journal))
	state := NewState("a", "b")
	state.Apply(c.Fetch(context.Background()))

	backend.failNext = &api.Error{Kind: api.KindNetwork, Op: "generate reply", Err: errors.New("dial tcp: connection refused")}
	state.Begin(OpGenerate)
	res := c.Generate(context.Background(), "Hello", "a")
	state.Apply(res)

	assert.ErrorIs(t, res.Err, api.ErrNetwork)
	assert.False(t, state.InFlight())
	assert.Equal(t, helloLog, state.Log)

	failed := logs.FilterMessage("Backend request failed").All()
	require.Len(t, failed, 1)
	assert.Equal(t, zapcore.ErrorLevel, failed[0].Level)
	assert.Equal(t, "network_failure", failed[0].ContextMap()["kind"])

	require.Len(t, journal.entries, 2)
	assert.Equal(t, "network_failure", journal.entries[1].Outcome)
	assert.Contains(t, journal.entries[1].Error, "connection refused")
}

func TestController_JournalFailureIsOnlyLogged(t *testing.T) {
	backend := &memoryBackend{}
	c, logs := newTestController(t, backend, PolicyReject, WithJournal(&memoryJournal{err: errors.New("disk full")}))

	res := c.Fetch(context.Background())
	assert.NoError(t, res.Err)
	assert.Equal(t, 1, logs.FilterMessage("Failed to journal exchange").Len())
}

func TestController_TimeoutBoundsHungBackend(t *testing.T) {
	backend := &memoryBackend{block: make(chan struct{})}
	c, _ := newTestController(t, backend, PolicyReject, WithTimeout(20*time.Millisecond))
	state := NewState("a", "b")

	state.Begin(OpGenerate)
	res := c.Generate(context.Background(), "Hello", "a")
	state.Apply(res)

	assert.ErrorIs(t, res.Err, context.DeadlineExceeded)
	assert.False(t, state.InFlight())
}

func TestController_RejectsConcurrentGenerate(t *testing.T) {
	backend := &memoryBackend{block: make(chan struct{})}
	c, _ := newTestController(t, backend, PolicyReject)

	done := make(chan Result, 1)
	go func() { done <- c.Generate(context.Background(), "first", "a") }()

	// Wait until the first request holds the slot.
	require.Eventually(t, func() bool {
		return c.Clear(context.Background()).Err != nil
	}, time.Second, 5*time.Millisecond)

	res := c.Generate(context.Background(), "second", "a")
	assert.ErrorIs(t, res.Err, ErrBusy)

	close(backend.block)
	first := <-done
	require.NoError(t, first.Err)
	assert.Len(t, backend.prompts, 1)
}

func TestController_SupersedeClearCancelsGenerate(t *testing.T) {
	backend := &memoryBackend{log: helloLog.Clone(), block: make(chan struct{})}
	defer close(backend.block)
	c, _ := newTestController(t, backend, PolicySupersede)
	state := NewState("a", "b")
	state.Apply(c.Fetch(context.Background()))

	state.Begin(OpGenerate)
	done := make(chan Result, 1)
	go func() { done <- c.Generate(context.Background(), "first", "a") }()
	time.Sleep(20 * time.Millisecond)

	clearRes := c.Clear(context.Background())
	genRes := <-done

	state.Apply(genRes)
	state.Apply(clearRes)
	assert.ErrorIs(t, genRes.Err, ErrSuperseded)
	assert.NoError(t, state.LastErr)
	assert.False(t, state.InFlight())
	assert.Empty(t, state.Log)
}

func TestController_WithHTTPBackend(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/chat_logs":
			_, _ = w.Write([]byte(`{"chat_logs":[]}`))
		case r.Method == http.MethodPost && r.URL.Path == "/generate_reply":
			w.WriteHeader(http.StatusBadGateway)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	client, err := api.New(srv.URL)
	require.NoError(t, err)
	c, _ := newTestController(t, client, PolicyReject)
	state := NewState("a", "b")

	state.Apply(c.Fetch(context.Background()))
	assert.NoError(t, state.LastErr)
	assert.Empty(t, state.Log)

	state.Begin(OpGenerate)
	state.Apply(c.Generate(context.Background(), "Hello", "a"))
	assert.ErrorIs(t, state.LastErr, api.ErrServer)
	assert.Equal(t, http.StatusBadGateway, api.StatusOf(state.LastErr))
	assert.Empty(t, state.Log)
}
