// Package httpclient is the resilient JSON-over-HTTP client shared by the
// external service adapters.
//
// Every request gets a bearer token from the caller or from a TokenProvider
// invoked per request, is retried a fixed number of times on connection or
// timeout failures, and fails with *APIError when the response status is not
// one the caller expects.
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/jcmexdev/ecommerce-checkout/internal/pkg/reqctx"
)

// TokenProvider returns the bearer token for the request being built. An
// empty token means the request goes out without an Authorization header.
type TokenProvider func(ctx context.Context) (string, error)

type Client struct {
	baseURL       string
	http          *http.Client
	maxRetries    int
	tokenProvider TokenProvider
	name          string
}

type Option func(*Client)

// WithHTTPClient replaces the underlying *http.Client. Its Timeout is
// kept unless WithTimeout is also given.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.Timeout = d }
}

// WithMaxRetries sets how many additional attempts follow a connection or
// timeout failure.
func WithMaxRetries(n int) Option {
	return func(c *Client) {
		if n >= 0 {
			c.maxRetries = n
		}
	}
}

func WithTokenProvider(p TokenProvider) Option {
	return func(c *Client) { c.tokenProvider = p }
}

// WithName labels the client in logs and spans.
func WithName(name string) Option {
	return func(c *Client) { c.name = name }
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		maxRetries: 2,
		name:       "http",
	}
	c.http = &http.Client{
		Timeout:   10 * time.Second,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Request describes one call. Expected lists the accepted statuses; when
// empty, any 2xx is accepted.
type Request struct {
	Method   string
	Path     string
	Query    url.Values
	Body     any
	Token    string
	Expected []int
}

// Response is a successful call. Data holds the decoded body when the
// server declared a JSON content type; Text holds the raw body otherwise.
type Response struct {
	Status int
	Header http.Header
	Data   any
	Text   string
}

// Object returns the decoded body as a JSON object, or nil.
func (r *Response) Object() map[string]any {
	m, _ := r.Data.(map[string]any)
	return m
}

// Do executes req, retrying connection and timeout failures up to
// maxRetries times with no backoff.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	target := c.baseURL + "/" + strings.TrimLeft(req.Path, "/")
	if len(req.Query) > 0 {
		target += "?" + req.Query.Encode()
	}

	var body []byte
	if req.Body != nil {
		b, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("httpclient: encode body for %s: %w", target, err)
		}
		body = b
	}

	token, err := c.resolveToken(ctx, req.Token)
	if err != nil {
		return nil, &APIError{URL: target, Err: fmt.Errorf("resolve token: %w", err)}
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, &APIError{URL: target, Err: err}
		}

		resp, err := c.send(ctx, req.Method, target, body, token)
		if err != nil {
			lastErr = err
			slog.WarnContext(ctx, "external call failed",
				"client", c.name,
				"method", req.Method,
				"url", target,
				"attempt", attempt+1,
				"error", err,
			)
			if !retryable(ctx, err) {
				break
			}
			continue
		}

		if !expected(resp.Status, req.Expected) {
			return nil, &APIError{Status: resp.Status, URL: target, Payload: resp.payload()}
		}
		return resp, nil
	}

	return nil, &APIError{URL: target, Err: lastErr}
}

func (c *Client) send(ctx context.Context, method, target string, body []byte, token string) (*Response, error) {
	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, target, rdr)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		httpReq.Header.Set(reqctx.HeaderAuthorization, bearer(token))
	}
	if id := reqctx.RequestID(ctx); id != "" {
		httpReq.Header.Set(reqctx.HeaderXRequestId, id)
	}

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, err
	}

	resp := &Response{Status: httpResp.StatusCode, Header: httpResp.Header}
	if isJSON(httpResp.Header.Get("Content-Type")) && len(bytes.TrimSpace(raw)) > 0 {
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()
		if err := dec.Decode(&resp.Data); err != nil {
			resp.Data = nil
			resp.Text = string(raw)
		}
	} else {
		resp.Text = string(raw)
	}
	return resp, nil
}

func (c *Client) resolveToken(ctx context.Context, explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	if c.tokenProvider == nil {
		return "", nil
	}
	return c.tokenProvider(ctx)
}

func (c *Client) Get(ctx context.Context, path string, query url.Values, expectedStatus ...int) (*Response, error) {
	return c.Do(ctx, Request{Method: http.MethodGet, Path: path, Query: query, Expected: defaults(expectedStatus, http.StatusOK)})
}

// Post sends body as JSON. The expected status defaults to 201.
func (c *Client) Post(ctx context.Context, path string, body any, expectedStatus ...int) (*Response, error) {
	return c.Do(ctx, Request{Method: http.MethodPost, Path: path, Body: body, Expected: defaults(expectedStatus, http.StatusCreated)})
}

func (c *Client) Put(ctx context.Context, path string, body any, expectedStatus ...int) (*Response, error) {
	return c.Do(ctx, Request{Method: http.MethodPut, Path: path, Body: body, Expected: defaults(expectedStatus, http.StatusOK)})
}

// Delete expects 204 unless told otherwise.
func (c *Client) Delete(ctx context.Context, path string, expectedStatus ...int) (*Response, error) {
	return c.Do(ctx, Request{Method: http.MethodDelete, Path: path, Expected: defaults(expectedStatus, http.StatusNoContent)})
}

func (r *Response) payload() any {
	if r.Data != nil {
		return r.Data
	}
	return r.Text
}

func defaults(given []int, fallback int) []int {
	if len(given) > 0 {
		return given
	}
	return []int{fallback}
}

func expected(status int, accepted []int) bool {
	if len(accepted) == 0 {
		return status >= 200 && status < 300
	}
	for _, s := range accepted {
		if s == status {
			return true
		}
	}
	return false
}

// retryable reports whether err is a connection or timeout failure worth
// another attempt. The caller's own cancellation is never retried.
func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}

func isJSON(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mt == "application/json" || strings.HasSuffix(mt, "+json")
}

func bearer(token string) string {
	if strings.HasPrefix(token, "Bearer ") {
		return token
	}
	return "Bearer " + token
}
