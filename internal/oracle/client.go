// Package oracle talks to the content moderation service over HTTP.
package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"modbot/internal/domain"
)

// ErrStatus is wrapped by errors for non-2xx responses.
var ErrStatus = errors.New("oracle: unexpected status")

const maxErrorBody = 512

// Client implements domain.Oracle against the moderation HTTP API:
//
//	POST {baseURL}/v1/moderate/{kind}
//	{"content": "...", "language": "en-US", "max": 50}
//
// answered by {"source": "...", "categories": [{"category": "...", "confidence": 97.5}]}.
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
	logger  *slog.Logger
}

type ClientConfig struct {
	BaseURL  string
	APIKey   string
	Timeout  time.Duration
	RetryMax int

	// HTTPClient replaces the default retrying client.
	HTTPClient *http.Client
	Logger     *slog.Logger
}

func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("oracle: base URL is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = NewHTTPClient(cfg.Timeout, cfg.RetryMax, cfg.Logger)
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		client:  cfg.HTTPClient,
		logger:  cfg.Logger,
	}, nil
}

type moderateRequest struct {
	Content  string `json:"content"`
	Language string `json:"language,omitempty"`
	Max      int    `json:"max,omitempty"`
}

func (c *Client) ModerateText(ctx context.Context, text string, maxCategories int) (domain.Verdict, error) {
	return c.moderate(ctx, domain.KindText, moderateRequest{Content: text, Max: maxCategories})
}

func (c *Client) ModerateLink(ctx context.Context, url string) (domain.Verdict, error) {
	return c.moderate(ctx, domain.KindLink, moderateRequest{Content: url})
}

func (c *Client) ModerateImage(ctx context.Context, url string) (domain.Verdict, error) {
	return c.moderate(ctx, domain.KindImage, moderateRequest{Content: url})
}

func (c *Client) ModerateAudio(ctx context.Context, url, languageCode string, maxCategories int) (domain.Verdict, error) {
	return c.moderate(ctx, domain.KindAudio, moderateRequest{Content: url, Language: languageCode, Max: maxCategories})
}

func (c *Client) moderate(ctx context.Context, kind domain.ContentKind, body moderateRequest) (domain.Verdict, error) {
	ctx, span := otel.Tracer("oracle").Start(ctx, "moderate",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("kind", string(kind))),
	)
	defer span.End()

	v, err := c.do(ctx, kind, body)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return domain.Verdict{}, fmt.Errorf("moderate %s: %w", kind, err)
	}
	return v, nil
}

func (c *Client) do(ctx context.Context, kind domain.ContentKind, body moderateRequest) (domain.Verdict, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return domain.Verdict{}, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/moderate/"+string(kind), bytes.NewReader(payload))
	if err != nil {
		return domain.Verdict{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return domain.Verdict{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return domain.Verdict{}, fmt.Errorf("%w %d: %s", ErrStatus, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var v domain.Verdict
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		return domain.Verdict{}, fmt.Errorf("decode response: %w", err)
	}
	c.logger.Debug("oracle verdict", "kind", kind, "categories", len(v.Categories))
	return v, nil
}
