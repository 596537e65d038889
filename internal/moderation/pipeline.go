// Package moderation runs inbound chat messages past the moderation oracle
// and enforces the resulting verdicts on the originating platform.
//
// One Pipeline serves one platform connection. Moderate is a best-effort
// sink: oracle and platform failures are logged and the remaining items of
// the message are still processed.
package moderation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"modbot/internal/bus"
	"modbot/internal/domain"
	"modbot/internal/escalation"
	"modbot/internal/linkextract"
	"modbot/internal/metrics"
	"modbot/internal/platform"
	"modbot/internal/report"
)

const (
	DefaultLanguage          = "en-US"
	DefaultMaxTextCategories = 50
)

// ReportSink receives every moderation report after the moderation event
// fired, typically to post it to a moderation channel.
type ReportSink func(ctx context.Context, msg *domain.InboundMessage, r report.Report) error

// Config configures a Pipeline.
type Config struct {
	Oracle   domain.Oracle
	Platform platform.Platform
	Bus      *bus.Bus
	Sink     ReportSink

	// Languages audio attachments are transcribed in, one oracle call each.
	Languages         []string
	MuteRoleID        string
	MaxTextCategories int

	Logger  *slog.Logger
	Metrics *metrics.Collector
}

type Pipeline struct {
	oracle     domain.Oracle
	platform   platform.Platform
	bus        *bus.Bus
	sink       ReportSink
	languages  []string
	muteRoleID string
	maxCats    int
	logger     *slog.Logger
	metrics    *metrics.Collector
}

// New creates a Pipeline. Oracle and Platform are required.
func New(cfg Config) (*Pipeline, error) {
	if cfg.Oracle == nil {
		return nil, errors.New("moderation: oracle is required")
	}
	if cfg.Platform == nil {
		return nil, errors.New("moderation: platform is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	languages := make([]string, 0, len(cfg.Languages))
	for _, l := range cfg.Languages {
		if l = strings.TrimSpace(l); l != "" {
			languages = append(languages, l)
		}
	}
	if len(languages) == 0 {
		languages = []string{DefaultLanguage}
	}
	maxCats := cfg.MaxTextCategories
	if maxCats <= 0 {
		maxCats = DefaultMaxTextCategories
	}

	return &Pipeline{
		oracle:     cfg.Oracle,
		platform:   cfg.Platform,
		bus:        cfg.Bus,
		sink:       cfg.Sink,
		languages:  languages,
		muteRoleID: cfg.MuteRoleID,
		maxCats:    maxCats,
		logger:     cfg.Logger.With("platform", cfg.Platform.Name()),
		metrics:    cfg.Metrics,
	}, nil
}

// Moderate classifies the text, links, attachments and embedded images of
// msg, in that order, and enforces every verdict. It never fails.
func (p *Pipeline) Moderate(ctx context.Context, msg *domain.InboundMessage) {
	if msg == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("moderation panic", "message", msg.ID, "panic", r, "stack", string(debug.Stack()))
		}
	}()

	ctx, span := otel.Tracer("moderation").Start(ctx, "Moderate")
	defer span.End()
	span.SetAttributes(
		attribute.String("platform", p.platform.Name()),
		attribute.String("message", msg.ID),
		attribute.Int("attachments", len(msg.Attachments)),
	)

	p.metrics.MessageModerated(p.platform.Name())

	// shared by every item of this message
	cd := &escalation.Cooldown{}
	opts := escalation.Options{
		CanTimeout: msg.CanTimeout,
		CanDelete:  msg.CanDelete,
		MuteRoleID: p.muteRoleID,
		AuthorID:   msg.Author.ID,
		ChannelID:  msg.ChannelID,
	}

	var links []string
	if msg.Text != "" {
		links = linkextract.ExtractCandidateLinks(msg.Text)
		stripped := linkextract.Strip(msg.Text)
		if strings.TrimSpace(stripped) != "" {
			v, ok := p.classify(ctx, domain.KindText, stripped, func(ctx context.Context) (domain.Verdict, error) {
				return p.oracle.ModerateText(ctx, stripped, p.maxCats)
			})
			if ok {
				p.enforce(ctx, msg, msg, domain.KindText, v, cd, opts)
			}
		}
	}
	span.SetAttributes(attribute.Int("links", len(links)))

	for _, link := range links {
		if linkextract.IsPlatformNative(link) {
			continue
		}
		v, ok := p.classify(ctx, domain.KindLink, link, func(ctx context.Context) (domain.Verdict, error) {
			return p.oracle.ModerateLink(ctx, link)
		})
		if ok {
			p.enforce(ctx, msg, msg, domain.KindLink, v, cd, opts)
		}
	}

	covered := make(map[string]bool, len(msg.Attachments))
	for _, a := range msg.Attachments {
		covered[a.URL] = true
		if a.ContentType == "" {
			continue
		}
		switch {
		case a.IsImage():
			p.moderateImage(ctx, msg, a.URL, cd, opts)
		case a.IsAudio():
			p.moderateAudio(ctx, msg, a.URL, cd, opts)
		}
	}

	for _, u := range msg.EmbeddedImages {
		if u == "" || covered[u] {
			continue
		}
		covered[u] = true
		p.moderateImage(ctx, msg, u, cd, opts)
	}
}

func (p *Pipeline) moderateImage(ctx context.Context, msg *domain.InboundMessage, url string, cd *escalation.Cooldown, opts escalation.Options) {
	v, ok := p.classify(ctx, domain.KindImage, url, func(ctx context.Context) (domain.Verdict, error) {
		return p.oracle.ModerateImage(ctx, url)
	})
	if !ok {
		return
	}
	opts.AttachmentURL = url
	p.enforce(ctx, msg, msg, domain.KindImage, v, cd, opts)
}

// moderateAudio runs one pass per language. Reports show the transcription
// of that pass in place of the message text.
func (p *Pipeline) moderateAudio(ctx context.Context, msg *domain.InboundMessage, url string, cd *escalation.Cooldown, opts escalation.Options) {
	for _, lang := range p.languages {
		v, ok := p.classify(ctx, domain.KindAudio, url, func(ctx context.Context) (domain.Verdict, error) {
			return p.oracle.ModerateAudio(ctx, url, lang, p.maxCats)
		})
		if !ok {
			continue
		}
		view := msg.Clone()
		view.Text = v.Source
		p.enforce(ctx, msg, view, domain.KindAudio, v, cd, opts)
	}
}

// classify performs one oracle call. ok is false when the call failed; the
// failure is logged and the item is treated as unverdicted.
func (p *Pipeline) classify(ctx context.Context, kind domain.ContentKind, target string, call func(context.Context) (domain.Verdict, error)) (v domain.Verdict, ok bool) {
	ctx, span := otel.Tracer("moderation").Start(ctx, "oracle."+string(kind))
	defer span.End()

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("oracle panic: %v", r)
			span.RecordError(err)
			p.metrics.OracleCall(string(kind), time.Since(start), err)
			p.logger.Error("oracle call panicked", "kind", kind, "target", target, "panic", r)
			v, ok = domain.Verdict{}, false
		}
	}()

	v, err := call(ctx)
	p.metrics.OracleCall(string(kind), time.Since(start), err)
	if err != nil {
		span.RecordError(err)
		p.logger.Warn("oracle call failed", "kind", kind, "target", target, "err", err)
		return domain.Verdict{}, false
	}

	span.SetAttributes(attribute.Int("categories", len(v.Categories)))
	if !v.Empty() {
		p.metrics.Verdict(string(kind))
	}
	return v, true
}
