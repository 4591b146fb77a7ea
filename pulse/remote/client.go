// Package remote is the HTTP client for the remote job API: listing jobs and
// asking the server to start one.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/teranos/jobpulse/am"
	"github.com/teranos/jobpulse/errors"
	"github.com/teranos/jobpulse/internal/httpclient"
	"github.com/teranos/jobpulse/logger"
	"github.com/teranos/jobpulse/pulse/jobs"
	"github.com/teranos/jobpulse/version"
)

// RequestIDHeader carries a per-request uuid so server logs can be correlated
const RequestIDHeader = "X-Request-ID"

// maxErrorBody caps how much of a failed response body is kept as error detail
const maxErrorBody = 4096

// Config configures a Client
type Config struct {
	BaseURL        string
	Token          string
	Timeout        time.Duration
	ListPath       string // default "/api/jobs"
	StartMethod    string // GET or POST, default GET
	StartPath      string // template containing {id}, default "/api/jobs/{id}/start"
	BlockPrivateIP bool

	// BreakerMaxFailures trips the breaker after that many consecutive
	// failures. 0 never trips.
	BreakerMaxFailures int
	BreakerOpenTimeout time.Duration
}

// Client talks to the remote job API
type Client struct {
	cfg     Config
	base    *url.URL
	http    *httpclient.SaferClient
	breaker *gobreaker.CircuitBreaker
	logger  *zap.SugaredLogger
	agent   string
}

// ConfigFromAM converts the api section of am.toml into a client Config
func ConfigFromAM(api am.APIConfig) Config {
	return Config{
		BaseURL:            api.BaseURL,
		Token:              api.Token,
		Timeout:            api.Timeout(),
		ListPath:           api.ListPath,
		StartMethod:        api.StartMethod,
		StartPath:          api.StartPath,
		BlockPrivateIP:     api.BlockPrivateIP,
		BreakerMaxFailures: api.Breaker.MaxFailures,
		BreakerOpenTimeout: time.Duration(api.Breaker.OpenTimeoutSeconds) * time.Second,
	}
}

// NewFromConfig creates a client from the api section of am.toml
func NewFromConfig(api am.APIConfig, log *zap.SugaredLogger) (*Client, error) {
	return New(ConfigFromAM(api), log)
}

// New creates a client. The base URL is validated up front.
func New(cfg Config, log *zap.SugaredLogger) (*Client, error) {
	log = logger.OrNop(log)

	if cfg.ListPath == "" {
		cfg.ListPath = "/api/jobs"
	}
	if cfg.StartPath == "" {
		cfg.StartPath = "/api/jobs/{id}/start"
	}
	cfg.StartMethod = strings.ToUpper(cfg.StartMethod)
	if cfg.StartMethod == "" {
		cfg.StartMethod = http.MethodGet
	}
	if cfg.StartMethod != http.MethodGet && cfg.StartMethod != http.MethodPost {
		return nil, errors.Newf("unsupported start method %q", cfg.StartMethod)
	}
	if !strings.Contains(cfg.StartPath, "{id}") {
		return nil, errors.WithHint(
			errors.Newf("start path %q has no {id} placeholder", cfg.StartPath),
			"use a template like /api/jobs/{id}/start")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	hc := httpclient.New(cfg.Timeout, httpclient.Options{BlockPrivateIP: cfg.BlockPrivateIP})
	base, err := hc.ValidateURL(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, errors.WithDetail(errors.Wrap(err, "invalid API base URL"), cfg.BaseURL)
	}

	c := &Client{
		cfg:    cfg,
		base:   base,
		http:   hc,
		logger: log,
		agent:  version.Get().UserAgent(),
	}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "job-api",
		MaxRequests: 1,
		Timeout:     cfg.BreakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return cfg.BreakerMaxFailures > 0 && counts.ConsecutiveFailures >= uint32(cfg.BreakerMaxFailures)
		},
		// The API answering "no such job" or "not startable" is healthy
		IsSuccessful: func(err error) bool {
			return err == nil || errors.IsNotFoundError(err) || errors.IsConflictError(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warnw("Circuit breaker state changed",
				logger.FieldComponent, name,
				"from", from.String(),
				"to", to.String())
		},
	})

	return c, nil
}

// BaseURL returns the validated API base URL
func (c *Client) BaseURL() string {
	return c.base.String()
}

// BreakerState returns the circuit breaker state ("closed", "half-open", "open")
func (c *Client) BreakerState() string {
	return c.breaker.State().String()
}

// listResponse is the body of GET /api/jobs
type listResponse struct {
	Jobs  *[]jobs.Job     `json:"jobs"`
	Error json.RawMessage `json:"error"`
}

// ListJobs fetches every job in remote order
func (c *Client) ListJobs(ctx context.Context) ([]jobs.Job, error) {
	body, err := c.do(ctx, http.MethodGet, c.cfg.ListPath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list jobs")
	}

	var resp listResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, errors.WithDetail(errors.Wrap(err, "failed to decode job list"), truncate(body))
	}
	if msg := errorMessage(resp.Error); msg != "" {
		return nil, errors.NewRemoteError(msg)
	}
	if resp.Jobs == nil {
		return nil, errors.WithDetail(errors.New("job list response has no jobs field"), truncate(body))
	}
	return *resp.Jobs, nil
}

// StartJob asks the API to move a queued job toward running. 404 and 409
// come back marked as errors.ErrNotFound and errors.ErrConflict.
func (c *Client) StartJob(ctx context.Context, id string) error {
	if id == "" {
		return errors.Mark(errors.New("job id is empty"), errors.ErrInvalidRequest)
	}
	path := strings.ReplaceAll(c.cfg.StartPath, "{id}", url.PathEscape(id))
	if _, err := c.do(ctx, c.cfg.StartMethod, path); err != nil {
		return errors.Wrapf(err, "failed to start job %s", id)
	}
	return nil
}

// do runs one request through the breaker and returns the response body
func (c *Client) do(ctx context.Context, method, path string) ([]byte, error) {
	out, err := c.breaker.Execute(func() (interface{}, error) {
		return c.roundTrip(ctx, method, path)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, errors.Mark(errors.Wrap(err, "job API circuit open"), errors.ErrServiceUnavailable)
		}
		return nil, err
	}
	return out.([]byte), nil
}

func (c *Client) roundTrip(ctx context.Context, method, path string) ([]byte, error) {
	target := strings.TrimRight(c.base.String(), "/") + path

	requestID := logger.RequestIDFromContext(ctx)
	if requestID == "" {
		requestID = uuid.New().String()
		ctx = logger.WithRequestID(ctx, requestID)
	}

	var reqBody io.Reader
	if method == http.MethodPost {
		reqBody = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reqBody)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build request")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.agent)
	req.Header.Set(RequestIDHeader, requestID)
	if c.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, errors.Mark(errors.Wrap(err, "request cancelled"), errors.ErrTimeout)
		}
		return nil, errors.Wrapf(err, "%s %s", method, path)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read response body")
	}

	logger.LoggerFromContext(ctx, c.logger).Debugw("Job API call",
		logger.FieldMethod, method,
		logger.FieldURL, path,
		logger.FieldCode, resp.StatusCode,
		logger.FieldDurationMS, time.Since(start).Milliseconds())

	if err := errors.FromStatus(resp.StatusCode, truncate(body)); err != nil {
		return nil, errors.Wrapf(err, "%s %s", method, path)
	}
	return body, nil
}

// errorMessage returns the text of a truthy "error" value, "" otherwise
func errorMessage(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return ""
	}
	switch string(raw) {
	case "null", "false", "0", `""`:
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

func truncate(body []byte) string {
	if len(body) > maxErrorBody {
		return fmt.Sprintf("%s... (%d bytes)", body[:maxErrorBody], len(body))
	}
	return string(body)
}
