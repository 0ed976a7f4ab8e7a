package vapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"receptionist-platform/internal/config"

	"github.com/cenkalti/backoff/v4"
)

// ErrUnavailable means no API key is configured.
var ErrUnavailable = errors.New("vapi: platform not configured")

// ErrToolIDsRequired is returned when an assistant write omits the tool-id list.
var ErrToolIDsRequired = errors.New("vapi: full tool id list is required")

// APIError is any failure talking to the platform: transport errors and non-2xx replies.
type APIError struct {
	Op         string
	StatusCode int
	Body       string
	Err        error
}

func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("vapi: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("vapi: %s: status %d: %s", e.Op, e.StatusCode, e.Body)
}

func (e *APIError) Unwrap() error { return e.Err }

// NotFound reports whether the platform answered 404.
func (e *APIError) NotFound() bool { return e.StatusCode == http.StatusNotFound }

const maxErrorBody = 2048

// Client is the control-plane client. It is built once at startup and shared.
type Client struct {
	baseURL string
	apiKey  string
	timeout time.Duration
	http    *http.Client

	// getRetries bounds retries of idempotent reads.
	getRetries uint64
}

func New(cfg config.VapiConfig) *Client {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = "https://api.vapi.ai"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		baseURL:    base,
		apiKey:     cfg.APIKey,
		timeout:    timeout,
		http:       &http.Client{Timeout: timeout},
		getRetries: 2,
	}
}

// Configured reports whether calls can be made at all.
func (c *Client) Configured() bool { return c != nil && c.apiKey != "" }

/* ===================== ASSISTANTS ===================== */

func (c *Client) CreateAssistant(ctx context.Context, spec AssistantSpec, toolIDs []string) (Assistant, error) {
	if toolIDs == nil {
		return Assistant{}, ErrToolIDsRequired
	}
	var out Assistant
	err := c.do(ctx, "create assistant", http.MethodPost, "/assistant", spec.body(toolIDs), &out)
	return out, err
}

// UpdateAssistant replaces the assistant's settings. toolIDs must be the full current
// list: the platform resets an omitted list to empty.
func (c *Client) UpdateAssistant(ctx context.Context, id string, toolIDs []string, spec AssistantSpec) (Assistant, error) {
	if toolIDs == nil {
		return Assistant{}, ErrToolIDsRequired
	}
	var out Assistant
	err := c.do(ctx, "update assistant", http.MethodPatch, "/assistant/"+url.PathEscape(id), spec.body(toolIDs), &out)
	return out, err
}

// DeleteAssistant removes the assistant. A 404 counts as success.
func (c *Client) DeleteAssistant(ctx context.Context, id string) error {
	return ignoreNotFound(c.do(ctx, "delete assistant", http.MethodDelete, "/assistant/"+url.PathEscape(id), nil, nil))
}

func (c *Client) GetAssistant(ctx context.Context, id string) (Assistant, error) {
	var out Assistant
	err := c.do(ctx, "get assistant", http.MethodGet, "/assistant/"+url.PathEscape(id), nil, &out)
	return out, err
}

// ListAssistants doubles as the liveness probe.
func (c *Client) ListAssistants(ctx context.Context, limit int) ([]Assistant, error) {
	var out []Assistant
	err := c.do(ctx, "list assistants", http.MethodGet, "/assistant"+limitQuery(limit), nil, &out)
	return out, err
}

/* ===================== TOOLS ===================== */

func (c *Client) CreateTool(ctx context.Context, spec ToolSpec) (Tool, error) {
	var out Tool
	err := c.do(ctx, "create tool", http.MethodPost, "/tool", spec, &out)
	return out, err
}

// UpdateTool updates the function block only.
func (c *Client) UpdateTool(ctx context.Context, id string, fn FunctionUpdate) (Tool, error) {
	body := struct {
		Function FunctionUpdate `json:"function"`
	}{fn}
	var out Tool
	err := c.do(ctx, "update tool", http.MethodPatch, "/tool/"+url.PathEscape(id), body, &out)
	return out, err
}

// DeleteTool removes a tool. A 404 counts as success.
func (c *Client) DeleteTool(ctx context.Context, id string) error {
	return ignoreNotFound(c.do(ctx, "delete tool", http.MethodDelete, "/tool/"+url.PathEscape(id), nil, nil))
}

func (c *Client) GetTool(ctx context.Context, id string) (Tool, error) {
	var out Tool
	err := c.do(ctx, "get tool", http.MethodGet, "/tool/"+url.PathEscape(id), nil, &out)
	return out, err
}

func (c *Client) ListTools(ctx context.Context, limit int) ([]Tool, error) {
	var out []Tool
	err := c.do(ctx, "list tools", http.MethodGet, "/tool"+limitQuery(limit), nil, &out)
	return out, err
}

/* ===================== CALLS ===================== */

func (c *Client) CreateCall(ctx context.Context, req CallRequest) (Call, error) {
	var out Call
	err := c.do(ctx, "create call", http.MethodPost, "/call", req, &out)
	return out, err
}

func (c *Client) ListCalls(ctx context.Context, p ListCallsParams) ([]Call, error) {
	q := url.Values{}
	if p.AssistantID != "" {
		q.Set("assistantId", p.AssistantID)
	}
	if p.Limit > 0 {
		q.Set("limit", strconv.Itoa(p.Limit))
	}
	path := "/call"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var out []Call
	err := c.do(ctx, "list calls", http.MethodGet, path, nil, &out)
	return out, err
}

func (c *Client) GetCall(ctx context.Context, id string) (Call, error) {
	var out Call
	err := c.do(ctx, "get call", http.MethodGet, "/call/"+url.PathEscape(id), nil, &out)
	return out, err
}

/* ===================== TRANSPORT ===================== */

func (c *Client) do(ctx context.Context, op, method, path string, in, out any) error {
	if !c.Configured() {
		return ErrUnavailable
	}

	var payload []byte
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return &APIError{Op: op, Err: err}
		}
		payload = b
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	attempt := func() error {
		err := c.roundTrip(ctx, op, method, path, payload, out)
		if err != nil && (method != http.MethodGet || !retryable(err)) {
			return backoff.Permanent(err)
		}
		return err
	}

	var policy backoff.BackOff = &backoff.StopBackOff{}
	if method == http.MethodGet {
		eb := backoff.NewExponentialBackOff()
		eb.InitialInterval = 100 * time.Millisecond
		eb.MaxElapsedTime = c.timeout
		policy = backoff.WithMaxRetries(eb, c.getRetries)
	}

	err := backoff.Retry(attempt, backoff.WithContext(policy, ctx))
	if err == nil {
		return nil
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return err
	}
	// Context expiry surfaces from the retry loop unwrapped.
	return &APIError{Op: op, Err: err}
}

func (c *Client) roundTrip(ctx context.Context, op, method, path string, payload []byte, out any) error {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return &APIError{Op: op, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &APIError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &APIError{Op: op, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return &APIError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func retryable(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	if apiErr.StatusCode == 0 {
		return true
	}
	return apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= 500
}

func ignoreNotFound(err error) error {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.NotFound() {
		return nil
	}
	return err
}

func limitQuery(limit int) string {
	if limit <= 0 {
		return ""
	}
	return "?limit=" + strconv.Itoa(limit)
}
