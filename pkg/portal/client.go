// Package portal is the HTTP client of the annotation portal API.
//
// Requests authenticate with "Authorization: Token <token>". The public key
// endpoint reports every failure as keycache.ErrConnectivity so the key
// manager can fall back to its persisted copy; task endpoints fail with
// WebServerApiError faults.
package portal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/labelport/annotation_tool/pkg/keycache"
)

// DefaultTimeout bounds each request
const DefaultTimeout = 10 * time.Second

// API paths relative to the base URL
const (
	PublicKeyPath    = "/api/v2/annotation/public_key/"
	TasksPath        = "/api/v2/annotation/tasks/"
	CompleteTaskPath = "/api/annotation/tasks/%d/complete/"
)

// Endpoint names reported to the observer
const (
	EndpointPublicKey    = "public_key"
	EndpointProjects     = "projects"
	EndpointCompleteTask = "complete_task"
)

// maxBodyBytes caps how much of a response is read
const maxBodyBytes = 4 << 20

// ClientConfig configures the portal client
type ClientConfig struct {
	// BaseURL of the portal, without trailing slash
	BaseURL string

	// Token sent as "Authorization: Token <token>"
	Token string

	// HTTP client timeout (default 10s)
	Timeout time.Duration

	// RequestsPerSecond paces requests (0 = unlimited)
	RequestsPerSecond float64

	// Observe is called after every request
	Observe func(endpoint string, ok bool, d time.Duration)

	// Transport overrides the base HTTP transport
	Transport http.RoundTripper
}

// Client talks to the annotation portal
type Client struct {
	config  ClientConfig
	client  *http.Client
	limiter *rate.Limiter
}

// NewClient creates a portal client
func NewClient(config ClientConfig) (*Client, error) {
	if config.BaseURL == "" {
		return nil, errors.New("portal base URL is required")
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")

	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}

	transport := config.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	if config.Token != "" {
		transport = &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{
				AccessToken: config.Token,
				TokenType:   "Token",
			}),
			Base: transport,
		}
	}

	c := &Client{
		config: config,
		client: &http.Client{
			Timeout:   config.Timeout,
			Transport: transport,
		},
	}
	if config.RequestsPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(config.RequestsPerSecond), 1)
	}
	return c, nil
}

// BaseURL returns the configured portal URL
func (c *Client) BaseURL() string {
	return c.config.BaseURL
}

// do sends a request and returns the status code and body
func (c *Client) do(ctx context.Context, endpoint, method, path string, payload any) (int, []byte, error) {
	start := time.Now()
	status, body, err := c.send(ctx, method, path, payload)
	if c.config.Observe != nil {
		c.config.Observe(endpoint, err == nil && status == http.StatusOK, time.Since(start))
	}
	return status, body, err
}

func (c *Client) send(ctx context.Context, method, path string, payload any) (int, []byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return 0, nil, err
		}
	}

	var reqBody io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.config.BaseURL+path, reqBody)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("failed to read response: %w", err)
	}
	return resp.StatusCode, body, nil
}

// FetchPublicKey returns the portal's PEM-encoded public key. It implements
// keycache.Fetcher; every failure wraps keycache.ErrConnectivity.
func (c *Client) FetchPublicKey(ctx context.Context) (string, error) {
	status, body, err := c.do(ctx, EndpointPublicKey, http.MethodGet, PublicKeyPath, nil)
	if err != nil {
		return "", fmt.Errorf("fetch public key: %w: %w", keycache.ErrConnectivity, err)
	}
	if status != http.StatusOK {
		return "", fmt.Errorf("fetch public key: %w: status %d", keycache.ErrConnectivity, status)
	}

	var result struct {
		PublicKey string `json:"public_key"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("fetch public key: %w: invalid response: %v", keycache.ErrConnectivity, err)
	}
	if result.PublicKey == "" {
		return "", fmt.Errorf("fetch public key: %w: response has no public_key", keycache.ErrConnectivity)
	}
	return result.PublicKey, nil
}
