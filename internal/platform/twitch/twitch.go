// Package twitch connects to Twitch chat over IRC. Twitch retired the IRC
// moderation commands and whispers, so this adapter reads chat and posts
// reports; every enforcement action reports platform.ErrUnsupported.
package twitch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	irc "github.com/gempir/go-twitch-irc/v4"

	"modbot/internal/bus"
	"modbot/internal/domain"
	"modbot/internal/platform"
	"modbot/internal/report"
)

const (
	name = "twitch"

	// chat messages are capped at 500 characters
	maxChatLen = 500
)

// Twitch implements platform.Platform for Twitch chat.
type Twitch struct {
	username string
	token    string
	channels []string

	mu     sync.RWMutex
	client *irc.Client
	logger *slog.Logger
}

type Config struct {
	Username string
	Token    string // chat OAuth token, with or without the "oauth:" prefix
	Channels []string
	Logger   *slog.Logger
}

func New(cfg Config) *Twitch {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	token := cfg.Token
	if token != "" && !strings.HasPrefix(token, "oauth:") {
		token = "oauth:" + token
	}
	channels := make([]string, 0, len(cfg.Channels))
	for _, c := range cfg.Channels {
		if c = normalizeChannel(c); c != "" {
			channels = append(channels, c)
		}
	}
	return &Twitch{
		username: strings.ToLower(cfg.Username),
		token:    token,
		channels: channels,
		logger:   cfg.Logger.With("platform", name),
	}
}

func (t *Twitch) Name() string { return name }

// Start joins the configured channels and publishes chat events to q until
// ctx is done.
func (t *Twitch) Start(ctx context.Context, q *bus.Queue) error {
	client := irc.NewClient(t.username, t.token)

	client.OnConnect(func() {
		t.logger.Info("twitch chat connected", "user", t.username, "channels", t.channels)
		t.publish(ctx, q, bus.ReadyEvent{Platform: name, User: t.username})
	})
	client.OnPrivateMessage(func(m irc.PrivateMessage) {
		if strings.EqualFold(m.User.Name, t.username) {
			return
		}
		t.publish(ctx, q, bus.MessageCreateEvent{Message: ConvertMessage(m)})
	})
	client.OnClearMessage(func(m irc.ClearMessage) {
		t.publish(ctx, q, bus.MessageDeleteEvent{Message: convertCleared(m)})
	})
	client.OnClearChatMessage(func(m irc.ClearChatMessage) {
		if ev := convertClearChat(m); ev != nil {
			t.publish(ctx, q, ev)
		}
	})
	client.OnUserJoinMessage(func(m irc.UserJoinMessage) {
		if m.User != t.username {
			t.publish(ctx, q, bus.MemberJoinEvent{Member: member(m.Channel, m.User)})
		}
	})
	client.OnUserPartMessage(func(m irc.UserPartMessage) {
		if m.User != t.username {
			t.publish(ctx, q, bus.MemberLeaveEvent{Member: member(m.Channel, m.User)})
		}
	})
	client.Join(t.channels...)

	t.mu.Lock()
	t.client = client
	t.mu.Unlock()

	errCh := make(chan error, 1)
	go func() { errCh <- client.Connect() }()

	select {
	case <-ctx.Done():
		t.logger.Info("twitch chat disconnecting")
		if err := client.Disconnect(); err != nil {
			t.logger.Debug("twitch disconnect", "err", err)
		}
		select {
		case <-errCh:
		case <-time.After(5 * time.Second):
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, irc.ErrClientDisconnected) {
			return nil
		}
		return fmt.Errorf("twitch connect: %w", err)
	}
}

func (t *Twitch) publish(ctx context.Context, q *bus.Queue, ev bus.Event) {
	if err := q.Publish(ctx, ev); err != nil {
		t.logger.Warn("twitch event not queued", "event", ev.Kind(), "err", err)
	}
}

func (t *Twitch) ready() (*irc.Client, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.client == nil {
		return nil, fmt.Errorf("twitch: not connected")
	}
	return t.client, nil
}

func (t *Twitch) DeleteMessage(context.Context, *domain.InboundMessage) error {
	return platform.ErrUnsupported
}

func (t *Twitch) React(context.Context, *domain.InboundMessage, string) error {
	return platform.ErrUnsupported
}

func (t *Twitch) TimeoutAuthor(context.Context, *domain.InboundMessage, time.Duration, string) error {
	return platform.ErrUnsupported
}

func (t *Twitch) AddRoleToAuthor(context.Context, *domain.InboundMessage, string) error {
	return platform.ErrUnsupported
}

func (t *Twitch) SendDirectMessage(context.Context, string, string) error {
	return platform.ErrUnsupported
}

// SendChannelMessage posts each report as chat lines in channelID.
func (t *Twitch) SendChannelMessage(_ context.Context, channelID string, reports ...report.Report) error {
	channel := normalizeChannel(channelID)
	if channel == "" {
		return fmt.Errorf("invalid channel %q", channelID)
	}
	client, err := t.ready()
	if err != nil {
		return err
	}
	for _, r := range reports {
		for _, chunk := range splitLine(chatLine(report.PlainText(r)), maxChatLen) {
			client.Say(channel, chunk)
		}
	}
	return nil
}

// normalizeChannel lower-cases a channel name and drops the leading '#'.
func normalizeChannel(c string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(c), "#"))
}
