// Package api is the transport layer of the dashboard client: a JSON HTTP
// client that attaches the bearer token, rate-limits outbound calls and
// maps server failures onto the shared error taxonomy.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"

	"github.com/quantboard/dashboard-client/internal/errors"
	"github.com/quantboard/dashboard-client/internal/logging"
)

// maxBodySize bounds how much of a response body is read.
const maxBodySize = 8 << 20

// TokenSource supplies the current bearer token. An empty return means no
// Authorization header is attached.
type TokenSource func() string

// Config configures a Client.
type Config struct {
	BaseURL string
	Timeout time.Duration
	// Token supplies the bearer token per request.
	Token TokenSource
	// RateLimit caps outbound requests per second; 0 disables limiting.
	RateLimit  float64
	RateBurst  int
	HTTPClient *http.Client
	Logger     *logging.Logger
}

// Client is a JSON HTTP client for the dashboard service.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	token      TokenSource
	log        *logging.Logger
}

// New creates a client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("BaseURL is required")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = 15 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	log := cfg.Logger
	if log == nil {
		log = logging.NewDefault("api")
	}

	return &Client{
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		httpClient: httpClient,
		limiter:    limiter,
		token:      cfg.Token,
		log:        log,
	}, nil
}

// Do executes a JSON request. body is marshalled when non-nil; the response
// is decoded into out when non-nil. Non-2xx responses become typed errors
// with the server-provided detail message.
func (c *Client) Do(ctx context.Context, method, path string, body, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return errors.Network("rate limiter wait", err)
		}
	}

	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return errors.Internal("marshal request body", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return errors.Internal("create request", err)
	}

	requestID := uuid.NewString()
	req.Header.Set("X-Request-ID", requestID)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != nil {
		if tok := c.token(); tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.WithField("request_id", requestID).
			WithField("path", path).
			WithError(err).
			Debug("request transport failure")
		return errors.Network("request failed", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return errors.Network("read response body", err)
	}

	if resp.StatusCode >= 400 {
		apiErr := decodeError(resp.StatusCode, respBody)
		c.log.WithField("request_id", requestID).
			WithField("path", path).
			WithField("status", resp.StatusCode).
			Debug(apiErr.Message)
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return errors.Internal("decode response", err)
	}
	return nil
}

// Get performs a GET request.
func (c *Client) Get(ctx context.Context, path string, out any) error {
	return c.Do(ctx, http.MethodGet, path, nil, out)
}

// Post performs a POST request with a JSON body.
func (c *Client) Post(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, http.MethodPost, path, body, out)
}

// decodeError maps a non-2xx response onto the error taxonomy. The server
// reports failures as {"detail": "..."}; the detail text is surfaced
// verbatim so the UI shows exactly what the server said.
func decodeError(status int, body []byte) *errors.Error {
	detail := gjson.GetBytes(body, "detail").String()
	if detail == "" {
		detail = http.StatusText(status)
	}

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return errors.Unauthorized(detail).WithStatus(status)
	case status == http.StatusNotFound:
		return errors.NotFound(detail).WithStatus(status)
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		return errors.Validation(detail).WithStatus(status)
	default:
		// 5xx and everything else is treated as a transport-level
		// failure, eligible for the cache layer's retry policy.
		return errors.Network(detail, nil).WithStatus(status)
	}
}
