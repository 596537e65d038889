package oracle

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"modbot/internal/domain"
)

type countingOracle struct {
	calls map[domain.ContentKind]int
	err   error
}

func (o *countingOracle) hit(kind domain.ContentKind) (domain.Verdict, error) {
	if o.calls == nil {
		o.calls = map[domain.ContentKind]int{}
	}
	o.calls[kind]++
	if o.err != nil {
		return domain.Verdict{}, o.err
	}
	return domain.Verdict{Source: string(kind), Categories: []domain.Category{{Name: "X", Confidence: 1}}}, nil
}

func (o *countingOracle) ModerateText(context.Context, string, int) (domain.Verdict, error) {
	return o.hit(domain.KindText)
}

func (o *countingOracle) ModerateLink(context.Context, string) (domain.Verdict, error) {
	return o.hit(domain.KindLink)
}

func (o *countingOracle) ModerateImage(context.Context, string) (domain.Verdict, error) {
	return o.hit(domain.KindImage)
}

func (o *countingOracle) ModerateAudio(context.Context, string, string, int) (domain.Verdict, error) {
	return o.hit(domain.KindAudio)
}

func TestCached_LinksAndImages(t *testing.T) {
	inner := &countingOracle{}
	c := NewCached(inner, 16, time.Minute, nil)
	ctx := context.Background()

	for range 3 {
		_, err := c.ModerateLink(ctx, "HTTP://Evil.TEST:80/x#frag")
		require.NoError(t, err)
	}
	_, err := c.ModerateLink(ctx, "http://evil.test/x")
	require.NoError(t, err)
	_, err = c.ModerateImage(ctx, "http://evil.test/x")
	require.NoError(t, err)

	assert.Equal(t, 1, inner.calls[domain.KindLink])
	assert.Equal(t, 1, inner.calls[domain.KindImage])
	assert.Equal(t, 2, c.Len())
}

func TestCached_TextAndAudioPassThrough(t *testing.T) {
	inner := &countingOracle{}
	c := NewCached(inner, 16, time.Minute, nil)
	ctx := context.Background()

	for range 2 {
		_, _ = c.ModerateText(ctx, "same", 50)
		_, _ = c.ModerateAudio(ctx, "https://cdn.test/a.ogg", "en-US", 50)
	}
	assert.Equal(t, 2, inner.calls[domain.KindText])
	assert.Equal(t, 2, inner.calls[domain.KindAudio])
	assert.Zero(t, c.Len())
}

func TestCached_ErrorsNotCached(t *testing.T) {
	inner := &countingOracle{err: errors.New("down")}
	c := NewCached(inner, 16, time.Minute, nil)

	_, err := c.ModerateLink(context.Background(), "evil.test")
	assert.Error(t, err)
	_, err = c.ModerateLink(context.Background(), "evil.test")
	assert.Error(t, err)

	assert.Equal(t, 2, inner.calls[domain.KindLink])
	assert.Zero(t, c.Len())
}

func TestCached_Expiry(t *testing.T) {
	inner := &countingOracle{}
	c := NewCached(inner, 16, 20*time.Millisecond, nil)

	_, _ = c.ModerateLink(context.Background(), "evil.test")
	time.Sleep(60 * time.Millisecond)
	_, _ = c.ModerateLink(context.Background(), "evil.test")

	assert.Equal(t, 2, inner.calls[domain.KindLink])
}

func TestCacheKey(t *testing.T) {
	assert.Equal(t, "http://example.com/a", CacheKey("HTTP://Example.COM:80/a#top"))
	assert.Equal(t, "http://example.com/?a=1&b=2", CacheKey("http://example.com/?b=2&a=1"))
}
