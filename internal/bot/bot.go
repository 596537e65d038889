// Package bot binds one platform connection to a moderation pipeline and
// the event bus, handling the message and member lifecycle of that platform.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/RussellLuo/slidingwindow"

	"modbot/internal/bus"
	"modbot/internal/domain"
	"modbot/internal/metrics"
	"modbot/internal/moderation"
	"modbot/internal/platform"
	"modbot/internal/report"
)

type Config struct {
	Platform platform.Platform
	Oracle   domain.Oracle
	Bus      *bus.Bus
	Queue    *bus.Queue

	Languages         []string
	MaxTextCategories int
	MuteRoleID        string
	LogsChannel       string
	ModerationChannel string
	// ReportsPerMinute caps moderation report deliveries. 0 = unlimited.
	ReportsPerMinute int

	Logger  *slog.Logger
	Metrics *metrics.Collector
}

type Bot struct {
	platform   platform.Platform
	pipeline   *moderation.Pipeline
	bus        *bus.Bus
	queue      *bus.Queue
	muteRoleID string
	logsCh     string
	modCh      string
	limiter    *slidingwindow.Limiter
	stopLimit  slidingwindow.StopFunc
	logger     *slog.Logger
	metrics    *metrics.Collector
}

func New(cfg Config) (*Bot, error) {
	if cfg.Platform == nil {
		return nil, errors.New("bot: platform is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Bus == nil {
		cfg.Bus = bus.New(cfg.Logger)
	}
	if cfg.Queue == nil {
		cfg.Queue = bus.NewQueue(0, cfg.Logger)
	}

	b := &Bot{
		platform:   cfg.Platform,
		bus:        cfg.Bus,
		queue:      cfg.Queue,
		muteRoleID: cfg.MuteRoleID,
		logsCh:     cfg.LogsChannel,
		modCh:      cfg.ModerationChannel,
		logger:     cfg.Logger.With("platform", cfg.Platform.Name()),
		metrics:    cfg.Metrics,
	}
	if cfg.Metrics != nil {
		cfg.Bus.OnAny(func(_ context.Context, ev bus.Event) error {
			cfg.Metrics.Event(string(ev.Kind()))
			return nil
		})
	}
	if cfg.ReportsPerMinute > 0 {
		b.limiter, b.stopLimit = slidingwindow.NewLimiter(time.Minute, int64(cfg.ReportsPerMinute), func() (slidingwindow.Window, slidingwindow.StopFunc) {
			return slidingwindow.NewLocalWindow()
		})
	}

	p, err := moderation.New(moderation.Config{
		Oracle:            cfg.Oracle,
		Platform:          cfg.Platform,
		Bus:               cfg.Bus,
		Sink:              b.DeliverReport,
		Languages:         cfg.Languages,
		MuteRoleID:        cfg.MuteRoleID,
		MaxTextCategories: cfg.MaxTextCategories,
		Logger:            cfg.Logger,
		Metrics:           cfg.Metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("bot %s: %w", cfg.Platform.Name(), err)
	}
	b.pipeline = p
	return b, nil
}

func (b *Bot) Name() string { return b.platform.Name() }

// Bus returns the event bus listeners register on.
func (b *Bot) Bus() *bus.Bus { return b.bus }

// Queue returns the inbound queue platform callbacks publish to.
func (b *Bot) Queue() *bus.Queue { return b.queue }

// Run handles queued events one at a time until ctx is done or the queue
// is closed.
func (b *Bot) Run(ctx context.Context) error {
	defer func() {
		if b.stopLimit != nil {
			b.stopLimit()
		}
	}()
	b.logger.Info("bot started")
	for {
		select {
		case <-ctx.Done():
			b.logger.Info("bot stopped")
			return ctx.Err()
		case ev, ok := <-b.queue.Events():
			if !ok {
				b.logger.Info("event queue closed")
				return nil
			}
			b.Dispatch(ctx, ev)
		}
	}
}

// Dispatch routes an inbound event to its handler.
func (b *Bot) Dispatch(ctx context.Context, ev bus.Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panic", "event", ev.Kind(), "panic", r, "stack", string(debug.Stack()))
		}
	}()

	switch e := ev.(type) {
	case bus.ReadyEvent:
		b.HandleReady(ctx, e)
	case bus.ErrorEvent:
		b.HandleError(ctx, e)
	case bus.MessageCreateEvent:
		b.HandleMessageCreate(ctx, e.Message)
	case bus.MessageUpdateEvent:
		b.HandleMessageUpdate(ctx, e.Old, e.New)
	case bus.MessageDeleteEvent:
		b.HandleMessageDelete(ctx, e.Message)
	case bus.MemberJoinEvent:
		b.HandleMemberJoin(ctx, e.Member)
	case bus.MemberUpdateEvent:
		b.HandleMemberUpdate(ctx, e.Old, e.New)
	case bus.MemberLeaveEvent:
		b.HandleMemberLeave(ctx, e.Member)
	case bus.MemberBanEvent, bus.MemberUnbanEvent:
		b.trigger(ctx, e)
	default:
		b.logger.Warn("unhandled inbound event", "event", ev.Kind())
	}
}

func (b *Bot) HandleReady(ctx context.Context, ev bus.ReadyEvent) {
	b.logger.Info("connected", "user", ev.User)
	b.trigger(ctx, ev)
}

func (b *Bot) HandleError(ctx context.Context, ev bus.ErrorEvent) {
	b.logger.Error("platform error", "err", ev.Err)
	b.trigger(ctx, ev)
}

func (b *Bot) HandleMessageCreate(ctx context.Context, msg *domain.InboundMessage) {
	if msg == nil || msg.Author.Bot {
		return
	}
	b.pipeline.Moderate(ctx, msg)
	b.trigger(ctx, bus.MessageCreateEvent{Message: msg})
}

// HandleMessageUpdate logs and re-moderates edits that changed the text.
func (b *Bot) HandleMessageUpdate(ctx context.Context, old, updated *domain.InboundMessage) {
	if updated == nil {
		return
	}
	changed := old == nil || old.Text != updated.Text
	if changed && !updated.Author.Bot {
		// the edit is logged with the attachments of the original message
		view := updated.Clone()
		if old != nil {
			view.Attachments = old.Attachments
		}
		b.Log(ctx, bus.LogMessage, report.MessageUpdated(old, view)...)
		b.pipeline.Moderate(ctx, updated)
	}
	b.trigger(ctx, bus.MessageUpdateEvent{Old: old, New: updated})
}

func (b *Bot) HandleMessageDelete(ctx context.Context, msg *domain.InboundMessage) {
	if msg == nil {
		return
	}
	if !msg.Author.Bot {
		b.Log(ctx, bus.LogMessage, report.Message("Message Deleted", report.ColorMessageDelete, msg)...)
	}
	b.trigger(ctx, bus.MessageDeleteEvent{Message: msg})
}

// Log posts message and member reports to the logs channel and triggers the
// log event for every entry.
func (b *Bot) Log(ctx context.Context, typ bus.LogType, reports ...report.Report) error {
	var errs []error
	if (typ == bus.LogMessage || typ == bus.LogMember) && b.logsCh != "" && len(reports) > 0 {
		if err := b.platform.SendChannelMessage(ctx, b.logsCh, reports...); err != nil {
			b.logger.Warn("log delivery failed", "type", typ, "channel", b.logsCh, "err", err)
			errs = append(errs, fmt.Errorf("send log: %w", err))
		}
	}
	if err := b.trigger(ctx, bus.LogEvent{Type: typ, Reports: reports}); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// DeliverReport posts a moderation report to the moderation channel, or the
// logs channel when none is set. Deliveries above the rate limit are dropped.
func (b *Bot) DeliverReport(ctx context.Context, msg *domain.InboundMessage, r report.Report) error {
	channel := b.modCh
	if channel == "" {
		channel = b.logsCh
	}
	if channel == "" {
		return nil
	}
	if b.limiter != nil && !b.limiter.Allow() {
		b.metrics.ReportDropped(b.platform.Name())
		b.logger.Warn("report dropped: rate limit", "title", r.Title, "url", r.URL)
		return nil
	}
	return b.platform.SendChannelMessage(ctx, channel, r)
}

func (b *Bot) trigger(ctx context.Context, ev bus.Event) error {
	return b.bus.Trigger(ctx, ev)
}
