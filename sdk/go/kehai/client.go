package kehai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Config holds the settings needed to construct a Client.
type Config struct {
	// BaseURL is the root URL of the kehai daemon (e.g. "http://localhost:8420").
	BaseURL string

	// Token is the admin bearer token. Leave empty for open deployments.
	Token string

	// HTTPClient is an optional custom HTTP client. If nil, a default client
	// with a 30-second timeout is used.
	HTTPClient *http.Client

	// Timeout applies to individual API requests. Defaults to 30 seconds.
	Timeout time.Duration
}

// Client is an HTTP client for the kehai admin API.
// All methods are safe for concurrent use.
type Client struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewClient creates a Client from the given configuration.
func NewClient(cfg Config) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.Token,
		client:  httpClient,
	}
}

// Status reports the active presence value and the arbitration layers behind
// it.
func (c *Client) Status(ctx context.Context) (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.get(ctx, "/v1/status", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SetOverride places an assistant override. The returned Status is the value
// the daemon resolved the request to.
func (c *Client) SetOverride(ctx context.Context, req OverrideRequest) (*Status, error) {
	var resp appliedResponse
	if err := c.post(ctx, "/v1/override", req, &resp); err != nil {
		return nil, err
	}
	return &resp.Applied, nil
}

// ClearOverride drops the override layer. The returned Status is the value
// that becomes active.
func (c *Client) ClearOverride(ctx context.Context) (*Status, error) {
	var resp activeResponse
	if err := c.del(ctx, "/v1/override", &resp); err != nil {
		return nil, err
	}
	return &resp.Active, nil
}

// Sync forces a push of the current active value, bypassing the change
// debounce.
func (c *Client) Sync(ctx context.Context) (*Status, error) {
	var resp activeResponse
	if err := c.post(ctx, "/v1/sync", nil, &resp); err != nil {
		return nil, err
	}
	return &resp.Active, nil
}

// Schedule returns today's cached schedule slots.
func (c *Client) Schedule(ctx context.Context) ([]Slot, error) {
	var resp scheduleResponse
	if err := c.get(ctx, "/v1/schedule", &resp); err != nil {
		return nil, err
	}
	return resp.Slots, nil
}

// Refresh drops the daemon's cached schedule and runs one evaluation cycle.
// With regenerate set, the persisted schedule file is discarded too, forcing
// a new generation pass.
func (c *Client) Refresh(ctx context.Context, regenerate bool) ([]Slot, error) {
	body := map[string]bool{"regenerate": regenerate}
	var resp scheduleResponse
	if err := c.post(ctx, "/v1/refresh", body, &resp); err != nil {
		return nil, err
	}
	return resp.Slots, nil
}

// UserStatus reads a remote user's displayed presence through the daemon's
// backend connection.
func (c *Client) UserStatus(ctx context.Context, userID int64) (*Status, error) {
	var resp userStatusResponse
	path := "/v1/users/" + strconv.FormatInt(userID, 10) + "/status"
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}
	return &resp.Status, nil
}

// History lists recent push attempts, newest first. A non-positive limit
// uses the server default.
func (c *Client) History(ctx context.Context, limit int) ([]HistoryEntry, error) {
	path := "/v1/history"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var resp historyResponse
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}
	return resp.Entries, nil
}

// ListPresets returns the preset and icon names the daemon accepts in
// override requests.
func (c *Client) ListPresets(ctx context.Context) (*Presets, error) {
	var resp Presets
	if err := c.get(ctx, "/v1/presets", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ---------------------------------------------------------------------------
// HTTP transport
// ---------------------------------------------------------------------------

// apiEnvelope is the server's standard response wrapper.
type apiEnvelope struct {
	Data json.RawMessage `json:"data"`
}

// apiErrorEnvelope is the server's standard error response wrapper.
type apiErrorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) get(ctx context.Context, path string, dest any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("kehai: create request: %w", err)
	}
	return c.doRequest(req, dest)
}

func (c *Client) post(ctx context.Context, path string, body any, dest any) error {
	var rd io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("kehai: marshal request body: %w", err)
		}
		rd = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, rd)
	if err != nil {
		return fmt.Errorf("kehai: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.doRequest(req, dest)
}

func (c *Client) del(ctx context.Context, path string, dest any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("kehai: create request: %w", err)
	}
	return c.doRequest(req, dest)
}

func (c *Client) doRequest(req *http.Request, dest any) error {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("kehai: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	return handleResponse(resp, dest)
}

func handleResponse(resp *http.Response, dest any) error {
	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("kehai: read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		return parseErrorResponse(resp.StatusCode, bodyBytes)
	}

	// Unwrap the server's { "data": ... } envelope.
	var envelope apiEnvelope
	if err := json.Unmarshal(bodyBytes, &envelope); err != nil {
		return fmt.Errorf("kehai: decode response envelope: %w", err)
	}
	if envelope.Data == nil {
		return json.Unmarshal(bodyBytes, dest)
	}
	return json.Unmarshal(envelope.Data, dest)
}

func parseErrorResponse(statusCode int, body []byte) *Error {
	apiErr := &Error{StatusCode: statusCode}

	var envelope apiErrorEnvelope
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Message != "" {
		apiErr.Code = envelope.Error.Code
		apiErr.Message = envelope.Error.Message
	} else {
		apiErr.Code = http.StatusText(statusCode)
		apiErr.Message = string(body)
	}

	return apiErr
}
