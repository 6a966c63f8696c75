package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/RichardoC/padchat/internal/models"
	"github.com/google/uuid"
)

const (
	chatLogsPath      = "/chat_logs"
	generateReplyPath = "/generate_reply"

	maxBodyBytes  = 8 << 20
	maxErrorBytes = 512
)

type Client struct {
	baseURL   *url.URL
	apiKey    string
	sessionID string
	http      *http.Client
}

type Option func(*Client)

// WithAPIKey sends key as a bearer token on every request.
func WithAPIKey(key string) Option {
	return func(c *Client) { c.apiKey = key }
}

// WithSessionID tags every request with the X-Session-ID header.
func WithSessionID(id string) Option {
	return func(c *Client) { c.sessionID = id }
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse backend url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("backend url %q must use http or https", baseURL)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("backend url %q has no host", baseURL)
	}

	c := &Client{baseURL: u, http: http.DefaultClient}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// GenerateRequest is the body of POST /generate_reply.
type GenerateRequest struct {
	UserPrompt string `json:"user_prompt"`
	Model      string `json:"model"`
}

// GenerateResponse carries the canonical log after the exchange.
// Usage is nil when the backend did not report token counts.
type GenerateResponse struct {
	ChatLog models.ChatLog
	Usage   *models.TokenUsage
	// Reply is the legacy generated_result field, empty when absent.
	Reply     string
	RequestID string
}

type ChatLogResponse struct {
	ChatLog   models.ChatLog
	RequestID string
}

type wireChatLogs struct {
	ChatLogs json.RawMessage `json:"chat_logs"`
}

type wireGenerate struct {
	ChatLogs         json.RawMessage `json:"chat_logs"`
	PromptTokens     *int            `json:"prompt_tokens"`
	CompletionTokens *int            `json:"completion_tokens"`
	GeneratedResult  string          `json:"generated_result"`
}

// FetchChatLog returns the backend's current chat log.
func (c *Client) FetchChatLog(ctx context.Context) (*ChatLogResponse, error) {
	const op = "fetch chat log"

	body, reqID, err := c.do(ctx, op, http.MethodGet, chatLogsPath, nil)
	if err != nil {
		return nil, err
	}

	var wire wireChatLogs
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, &Error{Kind: KindMalformed, Op: op, Err: fmt.Errorf("failed to decode body: %w", err)}
	}
	log, err := decodeChatLogs(wire.ChatLogs)
	if err != nil {
		return nil, &Error{Kind: KindMalformed, Op: op, Err: err}
	}
	return &ChatLogResponse{ChatLog: log, RequestID: reqID}, nil
}

// GenerateReply submits a prompt. An empty prompt is sent as is.
func (c *Client) GenerateReply(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	const op = "generate reply"

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	body, reqID, err := c.do(ctx, op, http.MethodPost, generateReplyPath, payload)
	if err != nil {
		return nil, err
	}

	var wire wireGenerate
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, &Error{Kind: KindMalformed, Op: op, Err: fmt.Errorf("failed to decode body: %w", err)}
	}
	log, err := decodeChatLogs(wire.ChatLogs)
	if err != nil {
		return nil, &Error{Kind: KindMalformed, Op: op, Err: err}
	}

	resp := &GenerateResponse{ChatLog: log, Reply: wire.GeneratedResult, RequestID: reqID}
	if wire.PromptTokens != nil || wire.CompletionTokens != nil {
		usage := &models.TokenUsage{}
		if wire.PromptTokens != nil {
			usage.Prompt = *wire.PromptTokens
		}
		if wire.CompletionTokens != nil {
			usage.Completion = *wire.CompletionTokens
		}
		resp.Usage = usage
	}
	return resp, nil
}

// ClearChatLog erases the backend's stored log. The response body is ignored.
func (c *Client) ClearChatLog(ctx context.Context) (string, error) {
	_, reqID, err := c.do(ctx, "clear chat log", http.MethodDelete, chatLogsPath, nil)
	return reqID, err
}

func (c *Client) do(ctx context.Context, op, method, path string, payload []byte) ([]byte, string, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL.String()+path, reader)
	if err != nil {
		return nil, "", fmt.Errorf("failed to build request: %w", err)
	}

	reqID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", reqID)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.sessionID != "" {
		req.Header.Set("X-Session-ID", c.sessionID)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, reqID, &Error{Kind: KindNetwork, Op: op, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, reqID, &Error{Kind: KindNetwork, Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to read body: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, reqID, &Error{Kind: KindServer, Op: op, StatusCode: resp.StatusCode, Err: errors.New(errorText(resp.Status, body))}
	}
	return body, reqID, nil
}

func decodeChatLogs(raw json.RawMessage) (models.ChatLog, error) {
	if len(raw) == 0 {
		return nil, errors.New("missing chat_logs")
	}
	var log models.ChatLog
	if err := json.Unmarshal(raw, &log); err != nil {
		return nil, fmt.Errorf("failed to decode chat_logs: %w", err)
	}
	if log == nil {
		log = models.ChatLog{}
	}
	return log, nil
}

func errorText(status string, body []byte) string {
	text := strings.TrimSpace(string(body))
	if text == "" {
		return status
	}
	if len(text) > maxErrorBytes {
		cut := maxErrorBytes
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		text = text[:cut] + "..."
	}
	return strings.ToValidUTF8(text, "\uFFFD")
}
