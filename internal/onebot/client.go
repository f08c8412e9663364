// Package onebot is the synchronization adapter for the OneBot 11 HTTP API as
// served by NapCat. It owns the RPC channel: serializing presence pushes,
// classifying the backend's unreliable replies, retrying with backoff, and
// reconciling ambiguous pushes with a read-after-write check.
package onebot

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Actions used against the backend.
const (
	actionSetStandard   = "set_online_status"
	actionSetCustom     = "set_diy_online_status"
	actionGetUserStatus = "nc_get_user_status"
	actionGetLoginInfo  = "get_login_info"
)

// ClientConfig holds configuration for creating a Client.
type ClientConfig struct {
	// BaseURL is the root URL of the NapCat HTTP API (e.g. "http://localhost:3000").
	BaseURL string
	// AccessToken is sent as a Bearer header on every call. Empty disables auth.
	AccessToken string
	// Timeout applies to individual API calls. Defaults to 5 seconds.
	Timeout time.Duration
	// HTTPClient is an optional custom HTTP client. If nil, a default client
	// with the configured timeout is used.
	HTTPClient *http.Client
	// Logger is used for structured logging. If nil, slog.Default() is used.
	Logger *slog.Logger
}

// Client is a low-level OneBot 11 HTTP API client.
// All methods are safe for concurrent use.
type Client struct {
	baseURL string
	token   string
	client  *http.Client
	logger  *slog.Logger
}

// NewClient creates a Client from the given configuration.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("onebot: BaseURL is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("onebot: invalid BaseURL %q: %w", cfg.BaseURL, err)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = 5 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.AccessToken,
		client:  httpClient,
		logger:  logger,
	}, nil
}

// Reply is a parsed OneBot action response. When the body could not be parsed
// the struct fields are zero and Raw holds the bytes for lenient inspection.
type Reply struct {
	Status  string          `json:"status"`
	Retcode int             `json:"retcode"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`

	parsed bool
	raw    []byte
}

// OK reports explicit success: a parsed body with status "ok" and retcode 0.
func (r *Reply) OK() bool {
	return r.parsed && r.Status == "ok" && r.Retcode == 0
}

// Parsed reports whether the body decoded as a OneBot response envelope.
func (r *Reply) Parsed() bool { return r.parsed }

// LenientOK applies a string heuristic to an unparseable body. The backend
// has been observed to emit success envelopes with trailing garbage.
func (r *Reply) LenientOK() bool {
	if r.parsed {
		return r.OK()
	}
	body := string(r.raw)
	return strings.Contains(body, `"status":"ok"`) || strings.Contains(body, `"retcode":0`)
}

// Raw returns the response body bytes.
func (r *Reply) Raw() []byte { return r.raw }

// ErrNoResponse marks a call that produced no body at all: a timeout, a
// connection failure, or an empty 200. The push may still have been applied.
type noResponseError struct {
	action string
	cause  error
}

func (e *noResponseError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("onebot: %s: no response: %v", e.action, e.cause)
	}
	return fmt.Sprintf("onebot: %s: no response", e.action)
}

func (e *noResponseError) Unwrap() error { return e.cause }

// IsNoResponse reports whether err represents an absent or timed-out reply.
func IsNoResponse(err error) bool {
	var nr *noResponseError
	return errors.As(err, &nr)
}

// CallAction invokes a OneBot action with the given params. The returned
// Reply is non-nil whenever a body was received, even an unparseable one;
// a nil Reply always comes with an error.
func (c *Client) CallAction(ctx context.Context, action string, params any) (*Reply, error) {
	callID := uuid.New().String()

	body, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("onebot: %s: marshal params: %w", action, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+action, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("onebot: %s: create request: %w", action, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", callID)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &noResponseError{action: action, cause: err}
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, &noResponseError{action: action, cause: err}
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, &noResponseError{action: action}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("onebot: %s: status %d: %s", action, resp.StatusCode, truncateBody(raw))
	}

	reply := &Reply{raw: raw}
	if err := json.Unmarshal(raw, reply); err != nil {
		c.logger.Debug("onebot reply not parseable", "action", action, "call_id", callID, "body", truncateBody(raw))
		return reply, nil
	}
	reply.parsed = true
	return reply, nil
}

func truncateBody(raw []byte) string {
	const limit = 256
	if len(raw) > limit {
		return string(raw[:limit]) + "…"
	}
	return string(raw)
}
