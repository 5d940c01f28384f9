package subscription

import (
	"context"
	"errors"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/fx"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"xray-profile/internal/config"
	"xray-profile/internal/domain"
	"xray-profile/internal/xray"
)

// ErrEmptySubscription is set on a result whose document held no usable share link.
var ErrEmptySubscription = errors.New("subscription has no usable share links")

var Module = fx.Options(
	fx.Provide(NewLinkConverter),
	fx.Provide(NewClient),
)

// Fetcher downloads a URL. *fetch.Client satisfies it.
type Fetcher interface {
	Get(ctx context.Context, url string) ([]byte, error)
}

// Result is the outcome of refreshing one subscription. Err is set when
// the document could not be fetched, decoded or yielded no outbound; LinkErrors holds
// per-link failures of an otherwise usable document.
type Result struct {
	Subscription domain.Subscription
	Outbounds    []xray.Outbound
	Failed       int
	LinkErrors   error
	Err          error
	Cached       bool
	Duration     time.Duration
}

// Client fetches subscription documents and converts them. Bodies are
// cached per URL so repeated refreshes inside the TTL skip the network.
type Client struct {
	fetcher   Fetcher
	converter Converter
	cache     *gocache.Cache
	workers   int
	metrics   domain.MetricsCollector
	logger    *zap.Logger
}

type Params struct {
	fx.In

	Config    *config.Config
	Fetcher   Fetcher
	Converter Converter
	Metrics   domain.MetricsCollector
	Logger    *zap.Logger
}

func NewClient(p Params) *Client {
	return New(p.Fetcher, p.Converter, p.Config.Fetch.CacheTTL(), p.Config.Fetch.Workers, p.Metrics, p.Logger)
}

// New builds a client. A zero ttl disables caching.
func New(fetcher Fetcher, converter Converter, ttl time.Duration, workers int, metrics domain.MetricsCollector, logger *zap.Logger) *Client {
	if workers <= 0 {
		workers = 1
	}
	var cache *gocache.Cache
	if ttl > 0 {
		cache = gocache.New(ttl, 2*ttl)
	}
	return &Client{
		fetcher:   fetcher,
		converter: converter,
		cache:     cache,
		workers:   workers,
		metrics:   metrics,
		logger:    logger.With(zap.String("component", "subscription")),
	}
}

// Fetch refreshes one subscription. Outbound tags carry the subscription's tag prefix.
func (c *Client) Fetch(ctx context.Context, sub domain.Subscription) (result Result) {
	start := time.Now()
	result.Subscription = sub
	defer func() {
		result.Duration = time.Since(start)
	}()

	body, cached, err := c.body(ctx, sub.URL)
	if err != nil {
		result.Err = err
		c.logger.Error("subscription fetch failed",
			zap.String("subscription", string(sub.Name)),
			zap.Error(err))
		return result
	}
	result.Cached = cached

	outbounds, linkErrs := c.converter.Convert(body)
	if errors.Is(linkErrs, ErrUnreadableBody) {
		result.Err = linkErrs
		c.logger.Error("subscription body rejected",
			zap.String("subscription", string(sub.Name)),
			zap.Error(linkErrs))
		return result
	}

	if len(outbounds) == 0 {
		result.Err = multierr.Append(ErrEmptySubscription, linkErrs)
		result.LinkErrors = linkErrs
		result.Failed = FailedCount(linkErrs)
		c.metrics.RecordLinksImported(string(sub.Name), 0, result.Failed)
		c.logger.Error("subscription has no usable links",
			zap.String("subscription", string(sub.Name)),
			zap.Int("failed", result.Failed),
			zap.Error(linkErrs))
		return result
	}

	prefix := sub.TagPrefix()
	for i := range outbounds {
		outbounds[i].Tag = prefix + outbounds[i].Tag
	}

	result.Outbounds = outbounds
	result.LinkErrors = linkErrs
	result.Failed = FailedCount(linkErrs)
	c.metrics.RecordLinksImported(string(sub.Name), len(outbounds), result.Failed)

	c.logger.Info("subscription converted",
		zap.String("subscription", string(sub.Name)),
		zap.Int("outbounds", len(outbounds)),
		zap.Int("failed", result.Failed),
		zap.Bool("cached", cached))
	for _, linkErr := range multierr.Errors(linkErrs) {
		c.logger.Warn("share link skipped",
			zap.String("subscription", string(sub.Name)),
			zap.Error(linkErr))
	}
	return result
}

// FetchAll refreshes subscriptions concurrently; one failure never cancels the others.
func (c *Client) FetchAll(ctx context.Context, subs []domain.Subscription) []Result {
	results := make([]Result, len(subs))

	g := new(errgroup.Group)
	g.SetLimit(c.workers)
	for i, sub := range subs {
		i, sub := i, sub
		g.Go(func() error {
			results[i] = c.Fetch(ctx, sub)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func (c *Client) body(ctx context.Context, url string) ([]byte, bool, error) {
	if c.cache != nil {
		if cached, ok := c.cache.Get(url); ok {
			if body, ok := cached.([]byte); ok {
				return body, true, nil
			}
		}
	}

	body, err := c.fetcher.Get(ctx, url)
	if err != nil {
		return nil, false, err
	}
	if c.cache != nil {
		c.cache.SetDefault(url, body)
	}
	return body, false, nil
}

// Invalidate drops the cached body of url.
func (c *Client) Invalidate(url string) {
	if c.cache != nil {
		c.cache.Delete(url)
	}
}
