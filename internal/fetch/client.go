package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"xray-profile/internal/config"
	"xray-profile/internal/domain"
)

var Module = fx.Provide(NewClient)

type Options struct {
	Timeout         time.Duration // per attempt, default 30s
	MaxBytes        int64         // default 32 MiB
	Retries         int           // extra attempts after the first
	InitialInterval time.Duration // first backoff wait, default 500ms
	MaxInterval     time.Duration // default 10s
	UserAgent       string
}

func (o Options) normalize() Options {
	if o.Timeout <= 0 {
		o.Timeout = 30 * time.Second
	}
	if o.MaxBytes <= 0 {
		o.MaxBytes = 32 << 20
	}
	if o.Retries < 0 {
		o.Retries = 0
	}
	if o.InitialInterval <= 0 {
		o.InitialInterval = 500 * time.Millisecond
	}
	if o.MaxInterval <= 0 {
		o.MaxInterval = 10 * time.Second
	}
	return o
}

// Client performs bounded GET requests with exponential backoff.
// It is safe for concurrent use.
type Client struct {
	http    *http.Client
	opts    Options
	metrics domain.MetricsCollector
	logger  *zap.Logger
}

func NewClient(cfg *config.Config, metrics domain.MetricsCollector, logger *zap.Logger) *Client {
	return New(Options{
		Timeout:   cfg.Fetch.Timeout(),
		MaxBytes:  cfg.Fetch.MaxBytes,
		Retries:   cfg.Fetch.Retries,
		UserAgent: cfg.Fetch.UserAgent,
	}, metrics, logger)
}

func New(opts Options, metrics domain.MetricsCollector, logger *zap.Logger) *Client {
	opts = opts.normalize()
	return &Client{
		http:    &http.Client{Timeout: opts.Timeout},
		opts:    opts,
		metrics: metrics,
		logger:  logger.With(zap.String("component", "fetch")),
	}
}

// Get downloads rawURL. Transport failures, 5xx and 429 are retried; every
// other failure is returned at once. Errors are *Error unless ctx ended.
func (c *Client) Get(ctx context.Context, rawURL string) ([]byte, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, newError(StageRequest, rawURL, 0, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, newError(StageRequest, rawURL, 0, ErrBadScheme)
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.opts.InitialInterval
	policy.MaxInterval = c.opts.MaxInterval
	policy.MaxElapsedTime = 0

	var body []byte
	operation := func() error {
		data, err := c.get(ctx, rawURL)
		if err != nil {
			var fetchErr *Error
			if errors.As(err, &fetchErr) && fetchErr.Retryable() {
				return err
			}
			return backoff.Permanent(err)
		}
		body = data
		return nil
	}
	notify := func(err error, wait time.Duration) {
		c.metrics.RecordFetchRetry(u.Host)
		c.logger.Warn("fetch failed, retrying",
			zap.String("url", rawURL),
			zap.Duration("wait", wait),
			zap.Error(err))
	}

	b := backoff.WithContext(backoff.WithMaxRetries(policy, uint64(c.opts.Retries)), ctx)
	if err := backoff.RetryNotify(operation, b, notify); err != nil {
		return nil, err
	}
	return body, nil
}

func (c *Client) get(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, newError(StageRequest, rawURL, 0, err)
	}
	if c.opts.UserAgent != "" {
		req.Header.Set("User-Agent", c.opts.UserAgent)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, newError(StageTransport, rawURL, 0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// drain so the connection can be reused
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		return nil, newError(StageStatus, rawURL, resp.StatusCode, fmt.Errorf("unexpected status %s", resp.Status))
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.opts.MaxBytes+1))
	if err != nil {
		return nil, newError(StageTransport, rawURL, resp.StatusCode, err)
	}
	if int64(len(data)) > c.opts.MaxBytes {
		return nil, newError(StageRead, rawURL, resp.StatusCode, ErrTooLarge)
	}
	return data, nil
}
