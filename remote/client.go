// Package remote is the client for the deployment API.
//
// Every call goes through the retry engine: credential checks use the auth
// policy, everything else the default policy. Status values are normalized
// to their canonical form before being returned.
package remote

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

	"github.com/google/uuid"

	"github.com/pithecene-io/hoist/apierr"
	"github.com/pithecene-io/hoist/iox"
	"github.com/pithecene-io/hoist/log"
	"github.com/pithecene-io/hoist/metrics"
	"github.com/pithecene-io/hoist/retry"
	"github.com/pithecene-io/hoist/types"
)

// DefaultTimeout bounds each API request.
const DefaultTimeout = 30 * time.Second

// RequestIDHeader carries a unique id per request attempt.
const RequestIDHeader = "X-Request-ID"

// API paths, relative to the base URL.
const (
	pathWhoami   = "/v1/auth/whoami"
	pathInit     = "/v1/deployments/init"
	pathComplete = "/v1/deployments/complete"
	pathStatus   = "/v1/deployments/status/"
	pathLogs     = "/v1/deployments/logs/"
	pathCancel   = "/v1/deployments/cancel/"
)

// Config configures a Client.
type Config struct {
	// BaseURL is the API root, e.g. https://api.hoist.dev (required).
	BaseURL string
	// Token is sent as a bearer token.
	Token string
	// Timeout is the per-request timeout (default 30s).
	Timeout time.Duration
	// Policy is used for all calls except Whoami (default retry.Default()).
	Policy *retry.Policy
	// AuthPolicy is used for Whoami (default retry.Auth()).
	AuthPolicy *retry.Policy
	// HTTPClient overrides the transport. Its Timeout is left untouched.
	HTTPClient *http.Client
	Logger     *log.Logger
	Metrics    *metrics.Collector
}

// Client talks to the deployment API.
type Client struct {
	base       *url.URL
	token      string
	http       *http.Client
	policy     retry.Policy
	authPolicy retry.Policy
	logger     *log.Logger
	metrics    *metrics.Collector
}

// New creates a Client. Returns an error if the base URL is missing or invalid.
func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, apierr.Validation("API URL is not configured", "set api.url in hoist.yaml or HOIST_API_URL")
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, apierr.Validation(fmt.Sprintf("invalid API URL %q", cfg.BaseURL))
	}

	c := &Client{
		base:       base,
		token:      cfg.Token,
		http:       cfg.HTTPClient,
		policy:     retry.Default(),
		authPolicy: retry.Auth(),
		logger:     cfg.Logger,
		metrics:    cfg.Metrics,
	}
	if c.http == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		c.http = &http.Client{Timeout: timeout}
	}
	if cfg.Policy != nil {
		c.policy = *cfg.Policy
	}
	if cfg.AuthPolicy != nil {
		c.authPolicy = *cfg.AuthPolicy
	}
	if c.logger == nil {
		c.logger = log.Nop()
	}
	return c, nil
}

// Whoami resolves the account behind the token. 401/403 are never retried.
func (c *Client) Whoami(ctx context.Context) (*types.Account, error) {
	var out types.Account
	if err := c.call(ctx, c.authPolicy, http.MethodGet, pathWhoami, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Init starts a deployment and returns the build id and upload destination.
func (c *Client) Init(ctx context.Context, req types.InitRequest) (*types.InitResponse, error) {
	var out types.InitResponse
	if err := c.call(ctx, c.policy, http.MethodPost, pathInit, req, &out); err != nil {
		return nil, err
	}
	if out.BuildID == "" || out.UploadURL == "" {
		return nil, errors.New("init response is missing buildId or uploadUrl")
	}
	return &out, nil
}

// Complete signals that the archive upload finished.
func (c *Client) Complete(ctx context.Context, buildID string) (*types.CompleteResponse, error) {
	if err := requireID(buildID); err != nil {
		return nil, err
	}
	var out types.CompleteResponse
	if err := c.call(ctx, c.policy, http.MethodPost, pathComplete, types.CompleteRequest{BuildID: buildID}, &out); err != nil {
		return nil, err
	}
	out.Status = out.Status.Canonical()
	return &out, nil
}

// GetStatus fetches a fresh BuildRecord snapshot.
func (c *Client) GetStatus(ctx context.Context, buildID string) (*types.BuildRecord, error) {
	if err := requireID(buildID); err != nil {
		return nil, err
	}
	var out types.BuildRecord
	if err := c.call(ctx, c.policy, http.MethodGet, pathStatus+url.PathEscape(buildID), nil, &out); err != nil {
		return nil, err
	}
	if out.BuildID == "" {
		out.BuildID = buildID
	}
	out.Status = out.Status.Canonical()
	return &out, nil
}

// GetLogs fetches every log line observed so far.
func (c *Client) GetLogs(ctx context.Context, buildID string) (*types.LogsResponse, error) {
	if err := requireID(buildID); err != nil {
		return nil, err
	}
	var out types.LogsResponse
	if err := c.call(ctx, c.policy, http.MethodGet, pathLogs+url.PathEscape(buildID), nil, &out); err != nil {
		return nil, err
	}
	out.Status = out.Status.Canonical()
	return &out, nil
}

// Cancel requests cancellation of the remote build.
func (c *Client) Cancel(ctx context.Context, buildID string) (*types.CancelResponse, error) {
	if err := requireID(buildID); err != nil {
		return nil, err
	}
	var out types.CancelResponse
	if err := c.call(ctx, c.policy, http.MethodPost, pathCancel+url.PathEscape(buildID), nil, &out); err != nil {
		return nil, err
	}
	out.Status = out.Status.Canonical()
	return &out, nil
}

func requireID(buildID string) error {
	if strings.TrimSpace(buildID) == "" {
		return apierr.Validation("build id is required")
	}
	return nil
}

// call runs one API call under policy, decoding a JSON response into out.
func (c *Client) call(ctx context.Context, policy retry.Policy, method, path string, in, out any) error {
	var body []byte
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal %s request: %w", path, err)
		}
		body = b
	}

	policy = policy.WithOnRetry(func(attempt int, delay time.Duration, err error) {
		c.metrics.IncAPIRetry()
		c.logger.Debug("retrying API call", map[string]any{
			"method":  method,
			"path":    path,
			"attempt": attempt,
			"delay":   delay.String(),
			"error":   err.Error(),
		})
	})

	err := retry.Do(ctx, policy, func(ctx context.Context) error {
		return c.do(ctx, method, path, body, out)
	})
	if err != nil {
		c.metrics.IncAPIFailure()
		return err
	}
	return nil
}

// do performs a single HTTP round trip.
func (c *Client) do(ctx context.Context, method, path string, body []byte, out any) error {
	c.metrics.IncAPIRequest()

	u := c.base.JoinPath(path)
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", types.UserAgent)
	req.Header.Set(RequestIDHeader, uuid.NewString())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer iox.DiscardClose(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return apierr.FromResponse(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}
