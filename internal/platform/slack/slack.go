// Package slack connects a Slack app over Socket Mode to the moderation bot.
// Slack exposes no member timeouts or roles to apps.
package slack

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"

	"modbot/internal/bus"
	"modbot/internal/domain"
	"modbot/internal/platform"
	"modbot/internal/report"
)

const (
	name = "slack"

	userCacheSize = 1024
	userCacheTTL  = time.Hour
)

// Slack implements platform.Platform for Slack using Socket Mode.
type Slack struct {
	botToken string
	appToken string
	client   *slack.Client
	botUID   string // the bot's own user ID, to skip its messages
	users    *expirable.LRU[string, domain.Author]
	logger   *slog.Logger
}

type Config struct {
	BotToken string
	AppToken string
	Logger   *slog.Logger
}

func New(cfg Config) *Slack {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Slack{
		botToken: cfg.BotToken,
		appToken: cfg.AppToken,
		users:    expirable.NewLRU[string, domain.Author](userCacheSize, nil, userCacheTTL),
		logger:   cfg.Logger.With("platform", name),
	}
}

func (s *Slack) Name() string { return name }

// Start connects over Socket Mode and publishes converted events to q until
// ctx is done.
func (s *Slack) Start(ctx context.Context, q *bus.Queue) error {
	api := slack.New(s.botToken, slack.OptionAppLevelToken(s.appToken))
	s.client = api

	auth, err := api.AuthTestContext(ctx)
	if err != nil {
		return fmt.Errorf("slack auth: %w", err)
	}
	s.botUID = auth.UserID
	s.logger.Info("slack bot connected", "user", auth.User, "user_id", auth.UserID)
	s.publish(ctx, q, bus.ReadyEvent{Platform: name, User: auth.User})

	socketClient := socketmode.New(api)

	go func() {
		for evt := range socketClient.Events {
			switch evt.Type {
			case socketmode.EventTypeEventsAPI:
				event, ok := evt.Data.(slackevents.EventsAPIEvent)
				if !ok {
					continue
				}
				socketClient.Ack(*evt.Request)
				for _, ev := range s.convertEventsAPI(ctx, event) {
					s.publish(ctx, q, ev)
				}

			case socketmode.EventTypeConnectionError:
				s.publish(ctx, q, bus.ErrorEvent{Platform: name, Err: fmt.Errorf("slack connection error: %v", evt.Data)})

			default:
				// unacknowledged events make Socket Mode reconnect
				if evt.Request != nil {
					socketClient.Ack(*evt.Request)
				}
			}
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		errCh <- socketClient.RunContext(ctx)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("slack bot disconnecting")
		return nil
	case err := <-errCh:
		return fmt.Errorf("slack socket mode: %w", err)
	}
}

func (s *Slack) publish(ctx context.Context, q *bus.Queue, ev bus.Event) {
	if err := q.Publish(ctx, ev); err != nil {
		s.logger.Warn("slack event not queued", "event", ev.Kind(), "err", err)
	}
}

func (s *Slack) convertEventsAPI(ctx context.Context, event slackevents.EventsAPIEvent) []bus.Event {
	if event.Type != slackevents.CallbackEvent {
		return nil
	}

	switch ev := event.InnerEvent.Data.(type) {
	case *slackevents.MessageEvent:
		return s.convertMessageEvent(ctx, ev)

	case *slackevents.MemberJoinedChannelEvent:
		return []bus.Event{bus.MemberJoinEvent{Member: s.member(ctx, ev.Channel, ev.User)}}

	case *slackevents.MemberLeftChannelEvent:
		return []bus.Event{bus.MemberLeaveEvent{Member: s.member(ctx, ev.Channel, ev.User)}}
	}
	return nil
}

func (s *Slack) convertMessageEvent(ctx context.Context, ev *slackevents.MessageEvent) []bus.Event {
	switch ev.SubType {
	case "", "file_share", "thread_broadcast":
		if ev.User == "" || ev.User == s.botUID {
			return nil
		}
		msg := ConvertMessageEvent(ev)
		msg.Author = s.author(ctx, ev.User)
		return []bus.Event{bus.MessageCreateEvent{Message: msg}}

	case "message_changed":
		if ev.Message == nil || ev.Message.User == s.botUID {
			return nil
		}
		updated := ConvertMsg(ev.Channel, ev.ChannelType, ev.Message)
		updated.Author = s.author(ctx, ev.Message.User)
		var old *domain.InboundMessage
		if ev.PreviousMessage != nil {
			old = ConvertMsg(ev.Channel, ev.ChannelType, ev.PreviousMessage)
			old.Author = updated.Author
		}
		return []bus.Event{bus.MessageUpdateEvent{Old: old, New: updated}}

	case "message_deleted":
		if ev.PreviousMessage == nil || ev.PreviousMessage.User == s.botUID {
			return nil
		}
		msg := ConvertMsg(ev.Channel, ev.ChannelType, ev.PreviousMessage)
		msg.Author = s.author(ctx, ev.PreviousMessage.User)
		return []bus.Event{bus.MessageDeleteEvent{Message: msg}}
	}
	return nil
}

// author resolves a user ID through the cache, falling back to the bare ID.
func (s *Slack) author(ctx context.Context, userID string) domain.Author {
	if a, ok := s.users.Get(userID); ok {
		return a
	}
	if s.client == nil {
		return domain.Author{ID: userID, Username: userID}
	}
	u, err := s.client.GetUserInfoContext(ctx, userID)
	if err != nil {
		s.logger.Debug("slack user lookup failed", "user", userID, "err", err)
		return domain.Author{ID: userID, Username: userID}
	}
	a := ConvertUser(u)
	s.users.Add(userID, a)
	return a
}

func (s *Slack) member(ctx context.Context, channelID, userID string) domain.Member {
	a := s.author(ctx, userID)
	return domain.Member{
		Platform:  name,
		GuildID:   channelID,
		UserID:    a.ID,
		Username:  a.Username,
		AvatarURL: a.AvatarURL,
		Bot:       a.Bot,
		JoinedAt:  time.Now(),
	}
}

func (s *Slack) ready() error {
	if s.client == nil {
		return fmt.Errorf("slack: not connected")
	}
	return nil
}

func (s *Slack) DeleteMessage(ctx context.Context, msg *domain.InboundMessage) error {
	if err := s.ready(); err != nil {
		return err
	}
	_, _, err := s.client.DeleteMessageContext(ctx, msg.ChannelID, msg.ID)
	return err
}

// React adds the named Slack emoji matching emoji.
func (s *Slack) React(ctx context.Context, msg *domain.InboundMessage, emoji string) error {
	if err := s.ready(); err != nil {
		return err
	}
	return s.client.AddReactionContext(ctx, EmojiName(emoji), slack.NewRefToMessage(msg.ChannelID, msg.ID))
}

func (s *Slack) TimeoutAuthor(context.Context, *domain.InboundMessage, time.Duration, string) error {
	return platform.ErrUnsupported
}

func (s *Slack) AddRoleToAuthor(context.Context, *domain.InboundMessage, string) error {
	return platform.ErrUnsupported
}

// SendDirectMessage posts to the user ID, which Slack delivers as a DM from
// the app.
func (s *Slack) SendDirectMessage(ctx context.Context, userID, text string) error {
	if err := s.ready(); err != nil {
		return err
	}
	_, _, err := s.client.PostMessageContext(ctx, userID, slack.MsgOptionText(text, false))
	return err
}

func (s *Slack) SendChannelMessage(ctx context.Context, channelID string, reports ...report.Report) error {
	if err := s.ready(); err != nil {
		return err
	}
	if len(reports) == 0 {
		return nil
	}
	_, _, err := s.client.PostMessageContext(ctx, channelID,
		slack.MsgOptionText(reports[0].Title, false),
		slack.MsgOptionAttachments(Attachments(reports)...),
	)
	if err != nil {
		return fmt.Errorf("slack post to %s: %w", channelID, err)
	}
	return nil
}
