package session

import (
	"context"
	"errors"
	"time"

	"github.com/RichardoC/padchat/internal/api"
	"github.com/RichardoC/padchat/internal/db"
	"github.com/RichardoC/padchat/internal/models"
	"go.uber.org/zap"
)

// Backend is the chat log API. *api.Client implements it.
type Backend interface {
	FetchChatLog(ctx context.Context) (*api.ChatLogResponse, error)
	GenerateReply(ctx context.Context, req api.GenerateRequest) (*api.GenerateResponse, error)
	ClearChatLog(ctx context.Context) (string, error)
}

// Journal records exchanges for later inspection. *db.Database implements it.
type Journal interface {
	RecordExchange(ctx context.Context, ex *db.Exchange) error
}

type Controller struct {
	backend   Backend
	coord     *Coordinator
	logger    *zap.Logger
	journal   Journal
	sessionID string
	timeout   time.Duration
}

type ControllerOption func(*Controller)

func WithJournal(j Journal) ControllerOption {
	return func(c *Controller) { c.journal = j }
}

// WithTimeout bounds each backend call. Zero leaves calls unbounded.
func WithTimeout(d time.Duration) ControllerOption {
	return func(c *Controller) { c.timeout = d }
}

func NewController(backend Backend, coord *Coordinator, logger *zap.Logger, sessionID string, opts ...ControllerOption) *Controller {
	c := &Controller{
		backend:   backend,
		coord:     coord,
		logger:    logger.With(zap.String("session_id", sessionID)),
		sessionID: sessionID,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// exchange is filled in by an operation for logging and journaling.
type exchange struct {
	requestID string
	model     string
	usage     *models.TokenUsage
}

// Generate submits prompt with model and returns the canonical log on success.
func (c *Controller) Generate(ctx context.Context, prompt, model string) Result {
	res := Result{Op: OpGenerate}
	ex := exchange{model: model}
	res.Seq, res.Latency, res.Err = c.run(ctx, OpGenerate, &ex, func(ctx context.Context) error {
		resp, err := c.backend.GenerateReply(ctx, api.GenerateRequest{UserPrompt: prompt, Model: model})
		if err != nil {
			return err
		}
		ex.requestID = resp.RequestID
		ex.usage = resp.Usage
		res.Log = resp.ChatLog
		res.Usage = resp.Usage
		res.Reply = resp.Reply
		return nil
	})
	return res
}

// Fetch reads the backend's current chat log.
func (c *Controller) Fetch(ctx context.Context) Result {
	res := Result{Op: OpFetch}
	var ex exchange
	res.Seq, res.Latency, res.Err = c.run(ctx, OpFetch, &ex, func(ctx context.Context) error {
		resp, err := c.backend.FetchChatLog(ctx)
		if err != nil {
			return err
		}
		ex.requestID = resp.RequestID
		res.Log = resp.ChatLog
		return nil
	})
	return res
}

// Clear erases the backend's chat log.
func (c *Controller) Clear(ctx context.Context) Result {
	res := Result{Op: OpClear}
	var ex exchange
	res.Seq, res.Latency, res.Err = c.run(ctx, OpClear, &ex, func(ctx context.Context) error {
		reqID, err := c.backend.ClearChatLog(ctx)
		ex.requestID = reqID
		return err
	})
	return res
}

func (c *Controller) run(ctx context.Context, op Op, ex *exchange, fn func(ctx context.Context) error) (uint64, time.Duration, error) {
	var latency time.Duration
	started := false
	seq, err := c.coord.Run(ctx, func(ctx context.Context) error {
		started = true
		if c.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, c.timeout)
			defer cancel()
		}
		start := time.Now()
		err := fn(ctx)
		latency = time.Since(start)
		return err
	})

	switch {
	case errors.Is(err, ErrBusy):
		c.logger.Debug("Request rejected, another is in flight", zap.String("op", string(op)))
		return seq, 0, err
	case errors.Is(err, ErrSuperseded):
		c.logger.Debug("Request superseded", zap.String("op", string(op)), zap.Duration("latency", latency))
		return seq, latency, err
	case !started:
		// Never admitted, e.g. the caller's context ended while queued.
		c.logger.Debug("Request not started", zap.String("op", string(op)), zap.Error(err))
		return seq, 0, err
	}

	fields := []zap.Field{
		zap.String("op", string(op)),
		zap.String("request_id", ex.requestID),
		zap.Uint64("seq", seq),
		zap.Duration("latency", latency),
	}
	if ex.model != "" {
		fields = append(fields, zap.String("model", ex.model))
	}
	if err != nil {
		c.logger.Error("Backend request failed", append(fields,
			zap.String("kind", api.KindOf(err).String()),
			zap.Int("status", api.StatusOf(err)),
			zap.Error(err))...)
	} else {
		c.logger.Info("Backend request completed", fields...)
	}

	c.record(op, ex, latency, err)
	return seq, latency, err
}

func (c *Controller) record(op Op, ex *exchange, latency time.Duration, err error) {
	if c.journal == nil {
		return
	}

	entry := &db.Exchange{
		SessionID: c.sessionID,
		RequestID: ex.requestID,
		Op:        string(op),
		Model:     ex.model,
		Outcome:   "ok",
		LatencyMS: latency.Milliseconds(),
	}
	if ex.usage != nil {
		prompt, completion := ex.usage.Prompt, ex.usage.Completion
		entry.PromptTokens = &prompt
		entry.CompletionTokens = &completion
	}
	if err != nil {
		entry.Outcome = api.KindOf(err).String()
		entry.StatusCode = api.StatusOf(err)
		entry.Error = err.Error()
	}

	// Fresh context: the request's own may already be canceled.
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if jerr := c.journal.RecordExchange(ctx, entry); jerr != nil {
		c.logger.Warn("Failed to journal exchange", zap.Error(jerr))
	}
}
