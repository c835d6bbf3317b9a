// Package apiclient provides the outbound HTTP client table adapters
// drive. It owns transport concerns only: request building, auth header
// injection, per-call timeouts, and bounded retry with exponential
// backoff for transient upstream failures. Response protocol (where the
// records and pagination cursors live) belongs to the adapters.
package apiclient

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
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/yosida95/uritemplate/v3"

	"github.com/txn2/tabular/pkg/taberr"
)

const (
	defaultTimeout     = 30 * time.Second
	defaultMaxRetries  = 3
	defaultBackoffBase = 250 * time.Millisecond
	maxErrorBodyBytes  = 2048
)

// Request describes one outbound API call. Path is an RFC 6570 URI
// template expanded with PathParams, so resource paths like
// "/repos/{owner}/{repo}/issues" come straight from handler config.
type Request struct {
	Method     string
	Path       string
	PathParams map[string]string
	Query      url.Values
	Body       any
}

// Response is one decoded upstream reply.
type Response struct {
	StatusCode int
	Body       any
}

// Doer issues one API call. The concrete HTTP client implements it;
// tests substitute fakes.
type Doer interface {
	Do(ctx context.Context, req *Request) (*Response, error)

	// Ping issues a cheap read-only probe against the configured
	// health path, used by connection checks.
	Ping(ctx context.Context) error

	Close() error
}

// Config configures a Client.
type Config struct {
	BaseURL    string
	HealthPath string
	Auth       Auth
	Timeout    time.Duration
	MaxRetries int
	Headers    map[string]string
}

// Client is the HTTP implementation of Doer.
type Client struct {
	cfg        Config
	httpClient *http.Client
	sessionID  string
}

// New creates a Client. The session ID accompanies every request so
// upstream logs can correlate one handler connection.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		sessionID:  uuid.NewString(),
	}, nil
}

// SessionID returns the correlation ID attached to every request.
func (c *Client) SessionID() string {
	return c.sessionID
}

// Do issues the request, retrying transient failures (timeouts, 429,
// 5xx) a bounded number of times with exponential backoff. Permanent
// failures surface immediately.
func (c *Client) Do(ctx context.Context, req *Request) (*Response, error) {
	var resp *Response

	operation := func() error {
		var err error
		resp, err = c.doOnce(ctx, req)
		if err != nil && !taberr.Retriable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = defaultBackoffBase
	policy := backoff.WithContext(
		backoff.WithMaxRetries(bo, uint64(c.cfg.MaxRetries)), ctx)

	if err := backoff.Retry(operation, policy); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) doOnce(ctx context.Context, req *Request) (*Response, error) {
	target, err := c.buildURL(req)
	if err != nil {
		return nil, taberr.Wrap(taberr.KindAPI, err, "building request URL")
	}

	var body io.Reader
	if req.Body != nil {
		encoded, err := json.Marshal(req.Body)
		if err != nil {
			return nil, taberr.Wrap(taberr.KindAPI, err, "encoding request body")
		}
		body = bytes.NewReader(encoded)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target, body)
	if err != nil {
		return nil, taberr.Wrap(taberr.KindAPI, err, "creating request")
	}
	httpReq.Header.Set("Accept", "application/json")
	if req.Body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	httpReq.Header.Set("X-Session-Id", c.sessionID)
	httpReq.Header.Set("X-Request-Id", uuid.NewString())
	for k, v := range c.cfg.Headers {
		httpReq.Header.Set(k, v)
	}
	c.cfg.Auth.apply(httpReq)

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, classifyTransportErr(err)
	}
	defer func() { _ = httpResp.Body.Close() }()

	return decodeResponse(httpResp)
}

func (c *Client) buildURL(req *Request) (string, error) {
	path := req.Path
	if len(req.PathParams) > 0 {
		tmpl, err := uritemplate.New(req.Path)
		if err != nil {
			return "", fmt.Errorf("parsing path template %q: %w", req.Path, err)
		}
		vars := uritemplate.Values{}
		for k, v := range req.PathParams {
			vars.Set(k, uritemplate.String(v))
		}
		path, err = tmpl.Expand(vars)
		if err != nil {
			return "", fmt.Errorf("expanding path template %q: %w", req.Path, err)
		}
	}

	// Continuation links returned by paginated APIs are often absolute;
	// those are used as-is rather than joined onto the base URL.
	target := path
	if !strings.HasPrefix(path, "http://") && !strings.HasPrefix(path, "https://") {
		target = strings.TrimRight(c.cfg.BaseURL, "/") + "/" + strings.TrimLeft(path, "/")
	}
	if len(req.Query) > 0 {
		sep := "?"
		if strings.Contains(target, "?") {
			sep = "&"
		}
		target += sep + req.Query.Encode()
	}
	return target, nil
}

func decodeResponse(httpResp *http.Response) (*Response, error) {
	raw, err := io.ReadAll(io.LimitReader(httpResp.Body, 16<<20))
	if err != nil {
		return nil, taberr.Wrap(taberr.KindAPI, err, "reading response body")
	}

	if httpResp.StatusCode == http.StatusUnauthorized ||
		httpResp.StatusCode == http.StatusForbidden {
		return nil, taberr.Wrap(taberr.KindAuthentication,
			&taberr.StatusError{StatusCode: httpResp.StatusCode, Body: trimBody(raw)},
			"credentials rejected")
	}
	if httpResp.StatusCode >= 400 {
		return nil, taberr.Wrap(taberr.KindAPI,
			&taberr.StatusError{StatusCode: httpResp.StatusCode, Body: trimBody(raw)},
			"upstream error")
	}

	resp := &Response{StatusCode: httpResp.StatusCode}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &resp.Body); err != nil {
			return nil, taberr.Wrap(taberr.KindAPI, err, "decoding response body")
		}
	}
	return resp, nil
}

// Ping issues a single GET against the configured health path, or the
// base URL when none is configured. It does not retry: the connection
// lifecycle manager owns the retry policy for probes, and retrying here
// as well would multiply the attempts.
func (c *Client) Ping(ctx context.Context) error {
	path := c.cfg.HealthPath
	if path == "" {
		path = "/"
	}
	_, err := c.doOnce(ctx, &Request{Method: http.MethodGet, Path: path})
	return err
}

// Close releases idle transport connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

func classifyTransportErr(err error) error {
	var netErr interface{ Timeout() bool }
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return taberr.Wrap(taberr.KindTimeout, err, "request deadline exceeded")
	case errors.As(err, &netErr) && netErr.Timeout():
		return taberr.Wrap(taberr.KindTimeout, err, "request timed out")
	case errors.Is(err, context.Canceled):
		return err
	default:
		return taberr.Wrap(taberr.KindConnection, err, "transport failure")
	}
}

func trimBody(raw []byte) string {
	if len(raw) > maxErrorBodyBytes {
		raw = raw[:maxErrorBodyBytes]
	}
	return string(raw)
}

// Records extracts the record list from a decoded response body. When
// field is empty the body itself must be the list; otherwise the body is
// an object holding the list under field.
func Records(body any, field string) ([]map[string]any, error) {
	node := body
	if field != "" {
		obj, ok := body.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("response body is %T, expected object with %q", body, field)
		}
		node = obj[field]
	}
	if node == nil {
		return nil, nil
	}
	list, ok := node.([]any)
	if !ok {
		return nil, fmt.Errorf("records field is %T, expected list", node)
	}
	records := make([]map[string]any, 0, len(list))
	for i, item := range list {
		rec, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("record %d is %T, expected object", i, item)
		}
		records = append(records, rec)
	}
	return records, nil
}

// StringField extracts a string field from a decoded object body,
// returning "" when absent.
func StringField(body any, field string) string {
	obj, ok := body.(map[string]any)
	if !ok || field == "" {
		return ""
	}
	s, _ := obj[field].(string)
	return s
}
