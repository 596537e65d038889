package oracle

import (
	"context"
	"time"

	"github.com/PuerkitoBio/purell"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"modbot/internal/domain"
	"modbot/internal/metrics"
)

// Cached remembers link and image verdicts for a while. Text and audio are
// always forwarded, and failed calls are never cached.
type Cached struct {
	inner   domain.Oracle
	cache   *expirable.LRU[string, domain.Verdict]
	metrics *metrics.Collector
}

// NewCached wraps inner with an LRU of size entries expiring after ttl.
func NewCached(inner domain.Oracle, size int, ttl time.Duration, m *metrics.Collector) *Cached {
	if size <= 0 {
		size = 1024
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Cached{
		inner:   inner,
		cache:   expirable.NewLRU[string, domain.Verdict](size, nil, ttl),
		metrics: m,
	}
}

func (c *Cached) ModerateText(ctx context.Context, text string, maxCategories int) (domain.Verdict, error) {
	return c.inner.ModerateText(ctx, text, maxCategories)
}

func (c *Cached) ModerateAudio(ctx context.Context, url, languageCode string, maxCategories int) (domain.Verdict, error) {
	return c.inner.ModerateAudio(ctx, url, languageCode, maxCategories)
}

func (c *Cached) ModerateLink(ctx context.Context, url string) (domain.Verdict, error) {
	return c.lookup(ctx, domain.KindLink, url, c.inner.ModerateLink)
}

func (c *Cached) ModerateImage(ctx context.Context, url string) (domain.Verdict, error) {
	return c.lookup(ctx, domain.KindImage, url, c.inner.ModerateImage)
}

// Len returns the number of cached verdicts.
func (c *Cached) Len() int { return c.cache.Len() }

func (c *Cached) lookup(ctx context.Context, kind domain.ContentKind, url string, call func(context.Context, string) (domain.Verdict, error)) (domain.Verdict, error) {
	key := string(kind) + " " + CacheKey(url)
	if v, ok := c.cache.Get(key); ok {
		c.metrics.CacheLookup(string(kind), true)
		return v, nil
	}
	c.metrics.CacheLookup(string(kind), false)

	v, err := call(ctx, url)
	if err != nil {
		return v, err
	}
	c.cache.Add(key, v)
	return v, nil
}

// CacheKey normalizes url so trivially different spellings share an entry.
func CacheKey(url string) string {
	clean, err := purell.NormalizeURLString(url, purell.FlagsSafe|purell.FlagRemoveFragment|purell.FlagRemoveDuplicateSlashes|purell.FlagSortQuery)
	if err != nil {
		return url
	}
	return clean
}
