// Package httpclient is the shared REST client for upstream JSON APIs.
package httpclient

import (
	"context"
	"fmt"
	"time"

	"resty.dev/v3"

	"github.com/wallet-insight/internal/logging"
	"github.com/wallet-insight/internal/metrics"
	"github.com/wallet-insight/internal/ratelimit"
)

// Config holds client settings for one provider
type Config struct {
	Provider   string // label used in logs and metrics
	BaseURL    string
	Timeout    time.Duration
	MaxRetries int
	Headers    map[string]string
	Gate       ratelimit.Gate
}

// Client is a rate limited JSON client for one upstream provider
type Client struct {
	client   *resty.Client
	provider string
	logger   *logging.Logger
}

// HTTPError is returned for non-2xx responses
type HTTPError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP error %d: %s", e.Code, e.Message)
}

// New creates a client from cfg
func New(cfg Config, logger *logging.Logger) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.Gate == nil {
		cfg.Gate = ratelimit.Unlimited()
	}
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	logger = logger.WithField("provider", cfg.Provider)

	rc := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.MaxRetries).
		SetHeader("Accept", "application/json").
		SetHeaders(cfg.Headers).
		AddRequestMiddleware(func(c *resty.Client, r *resty.Request) error {
			if err := cfg.Gate.Wait(r.Context()); err != nil {
				logger.WithError(err).Warn("Rate gate wait failed")
				return err
			}
			logger.WithField("url", r.URL).Debug("Outgoing request")
			return nil
		}).
		AddResponseMiddleware(func(c *resty.Client, resp *resty.Response) error {
			if resp.StatusCode() >= 400 {
				logger.WithFields(map[string]interface{}{
					"status": resp.StatusCode(),
					"url":    resp.Request.URL,
				}).Warn("HTTP request failed")
			}
			return nil
		})

	return &Client{client: rc, provider: cfg.Provider, logger: logger}
}

// Get issues a GET to path and decodes a JSON body into out
func (c *Client) Get(ctx context.Context, path string, queryParams map[string]string, out interface{}) error {
	start := time.Now()
	err := c.get(ctx, path, queryParams, out)
	metrics.ObserveUpstream(c.provider, start, err)
	return err
}

func (c *Client) get(ctx context.Context, path string, queryParams map[string]string, out interface{}) error {
	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParams(queryParams).
		SetResult(out).
		Get(path)
	if err != nil {
		return fmt.Errorf("%s GET %s: %w", c.provider, path, err)
	}

	if resp.StatusCode() >= 400 {
		return &HTTPError{Code: resp.StatusCode(), Message: resp.String()}
	}

	return nil
}

// Close releases idle connections
func (c *Client) Close() error {
	return c.client.Close()
}
