// Package client implements the HTTP client for the array management API.
// Every monitored system is reached through one management endpoint (the web
// services proxy or an embedded controller); the client owns authentication,
// timeouts, and the mapping from transport failures to the error taxonomy the
// collectors act on.
package client

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"time"

	"github.com/xtxerr/arraymon/config"
	"github.com/xtxerr/arraymon/internal/constants"
	"github.com/xtxerr/arraymon/internal/errors"
	"github.com/xtxerr/arraymon/internal/logging"
)

// Config holds client configuration.
type Config struct {
	// Endpoint is the base URL of the management API, e.g.
	// https://proxy.example.com:8443.
	Endpoint string

	// Username and Password authenticate every request.
	Username string
	Password string

	// ConnectTimeout bounds dial and TLS handshake time.
	ConnectTimeout time.Duration

	// ReadTimeout bounds the whole request. Callers derive it from the
	// shortest polling interval so one slow request cannot starve the
	// cycles that follow.
	ReadTimeout time.Duration

	// InsecureSkipVerify disables TLS certificate verification. Embedded
	// controllers commonly present self-signed certificates.
	InsecureSkipVerify bool
}

// DefaultConfig returns a Config with production defaults. Endpoint and
// credentials must still be set.
func DefaultConfig() Config {
	return Config{
		ConnectTimeout: config.DefaultConnectTimeout,
		ReadTimeout:    config.ReadTimeoutFactor * config.DefaultPerformanceInterval,
	}
}

// Client talks to the array management API.
//
// Client is safe for concurrent use.
type Client struct {
	base     *url.URL
	username string
	password string
	http     *http.Client
	log      *slog.Logger
}

// New creates a client for one management endpoint.
func New(cfg Config) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, errors.Wrap(errors.ErrInvalidEndpoint, "endpoint is empty")
	}
	base, err := url.Parse(cfg.Endpoint)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrInvalidEndpoint, "%s: %v", cfg.Endpoint, err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, errors.Wrapf(errors.ErrInvalidEndpoint, "unsupported scheme %q", base.Scheme)
	}

	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = config.DefaultConnectTimeout
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = config.ReadTimeoutFactor * config.DefaultPerformanceInterval
	}

	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout: cfg.ConnectTimeout,
		}).DialContext,
		TLSHandshakeTimeout:   cfg.ConnectTimeout,
		ResponseHeaderTimeout: cfg.ReadTimeout,
		MaxIdleConnsPerHost:   4,
	}
	if cfg.InsecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	// The session cookie from login rides along automatically; basic auth
	// on every request covers endpoints that do not hand one out.
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, errors.Wrap(errors.ErrInternal, err.Error())
	}

	return &Client{
		base:     base,
		username: cfg.Username,
		password: cfg.Password,
		http: &http.Client{
			Transport: transport,
			Jar:       jar,
			Timeout:   cfg.ReadTimeout,
		},
		log: logging.Component("api_client"),
	}, nil
}

// Endpoint returns the configured base URL.
func (c *Client) Endpoint() string {
	return c.base.String()
}

// Login validates credentials against the management API and establishes a
// session. Collectors do not require it; the manager calls it once at startup
// to fail fast on bad configuration.
func (c *Client) Login(ctx context.Context) error {
	body := map[string]string{
		"userId":   c.username,
		"password": c.password,
	}
	_, err := c.do(ctx, http.MethodPost, constants.APILogin, body)
	if err != nil {
		return errors.Wrapf(err, "login to %s", c.base.Host)
	}
	c.log.Debug("session established", "endpoint", c.base.Host)
	return nil
}

// Get fetches a path and returns the raw response body. Non-2xx statuses and
// transport failures come back as taxonomy errors.
func (c *Client) Get(ctx context.Context, path string) ([]byte, error) {
	return c.do(ctx, http.MethodGet, path, nil)
}

// GetJSON fetches a path and decodes the response into v.
func (c *Client) GetJSON(ctx context.Context, path string, v any) error {
	raw, err := c.Get(ctx, path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return errors.Wrapf(errors.ErrPayloadShape, "%s: %v", path, err)
	}
	return nil
}

// Post sends a JSON body to a path and returns the raw response body.
func (c *Client) Post(ctx context.Context, path string, body any) ([]byte, error) {
	return c.do(ctx, http.MethodPost, path, body)
}

func (c *Client) do(ctx context.Context, method, path string, body any) ([]byte, error) {
	ref, err := url.Parse(path)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrInternal, "%s: %v", path, err)
	}
	u := c.base.ResolveReference(ref)

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, errors.Wrap(errors.ErrInternal, err.Error())
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return nil, errors.Wrap(errors.ErrInternal, err.Error())
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, classifyTransportError(path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrTransientNetwork, "%s: read body: %v", path, err)
	}

	if err := classifyStatus(path, resp.StatusCode); err != nil {
		return nil, err
	}

	c.log.Debug("request complete",
		"method", method, "path", path,
		"status", resp.StatusCode,
		"bytes", len(raw),
		"elapsed", time.Since(start))
	return raw, nil
}

// classifyTransportError maps a transport failure onto the error taxonomy.
// Timeouts and refused connections are transient; the next tick retries.
func classifyTransportError(path string, err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		return errors.Wrapf(errors.ErrTimeout, "%s: %v", path, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return errors.Wrapf(errors.ErrTimeout, "%s: %v", path, err)
	}
	return errors.Wrapf(errors.ErrConnectionFailed, "%s: %v", path, err)
}

func classifyStatus(path string, status int) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return errors.Wrapf(errors.ErrUnauthorized, "%s: status %d", path, status)
	case status == http.StatusNotFound:
		return errors.Wrapf(errors.ErrNotFound, "%s: status %d", path, status)
	case status >= 500:
		return errors.Wrapf(errors.ErrTransientNetwork, "%s: status %d", path, status)
	default:
		return errors.Wrapf(errors.ErrInternal, "%s: unexpected status %d", path, status)
	}
}

// StatsPath renders a per-system API path, e.g. the analysed volume
// statistics endpoint for one system id.
func StatsPath(pattern, sysID string) string {
	return fmt.Sprintf(pattern, sysID)
}
