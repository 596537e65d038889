// Package telegram connects a Telegram bot to the moderation bot. Telegram
// has no roles and no delete events; reactions are sent as emoji replies.
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	lru "github.com/hashicorp/golang-lru/v2"

	"modbot/internal/bus"
	"modbot/internal/domain"
	"modbot/internal/platform"
	"modbot/internal/report"
)

const (
	name = "telegram"

	telegramMaxMsgLen  = 4000
	recentMessages     = 1000
	pollTimeoutSeconds = 30

	// restrictions shorter than 30 seconds are treated as permanent
	minRestriction = 35 * time.Second
)

// Telegram implements platform.Platform for the Telegram Bot API.
type Telegram struct {
	token     string
	allowFrom []int64 // chat IDs; empty = all chats

	bot *tgbotapi.BotAPI
	// Telegram reports edits without the previous version
	recent *lru.Cache[string, *domain.InboundMessage]
	logger *slog.Logger
}

type Config struct {
	Token     string
	AllowFrom []string // chat IDs as strings
	Logger    *slog.Logger
}

func New(cfg Config) *Telegram {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	var allowed []int64
	for _, s := range cfg.AllowFrom {
		if id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); err == nil {
			allowed = append(allowed, id)
		}
	}
	recent, _ := lru.New[string, *domain.InboundMessage](recentMessages)
	return &Telegram{
		token:     cfg.Token,
		allowFrom: allowed,
		recent:    recent,
		logger:    cfg.Logger.With("platform", name),
	}
}

func (t *Telegram) Name() string { return name }

// Start long-polls for updates and publishes converted events to q until ctx
// is done.
func (t *Telegram) Start(ctx context.Context, q *bus.Queue) error {
	bot, err := tgbotapi.NewBotAPI(t.token)
	if err != nil {
		return fmt.Errorf("telegram bot init: %w", err)
	}
	t.bot = bot
	t.logger.Info("telegram bot connected", "username", bot.Self.UserName, "id", bot.Self.ID)
	t.publish(ctx, q, bus.ReadyEvent{Platform: name, User: bot.Self.UserName})

	u := tgbotapi.NewUpdate(0)
	u.Timeout = pollTimeoutSeconds
	u.AllowedUpdates = []string{"message", "edited_message", "chat_member"}
	updates := bot.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			t.logger.Info("telegram channel stopping")
			bot.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			for _, ev := range t.convertUpdate(update) {
				t.publish(ctx, q, ev)
			}
		}
	}
}

func (t *Telegram) publish(ctx context.Context, q *bus.Queue, ev bus.Event) {
	if err := q.Publish(ctx, ev); err != nil {
		t.logger.Warn("telegram event not queued", "event", ev.Kind(), "err", err)
	}
}

func (t *Telegram) convertUpdate(update tgbotapi.Update) []bus.Event {
	var events []bus.Event

	switch {
	case update.Message != nil:
		m := update.Message
		if m.Chat == nil || !t.isAllowed(m.Chat.ID) {
			return nil
		}
		for _, u := range m.NewChatMembers {
			events = append(events, bus.MemberJoinEvent{Member: ConvertMember(m.Chat.ID, &u)})
		}
		if m.LeftChatMember != nil {
			events = append(events, bus.MemberLeaveEvent{Member: ConvertMember(m.Chat.ID, m.LeftChatMember)})
		}
		if m.From == nil || len(m.NewChatMembers) > 0 || m.LeftChatMember != nil {
			return events
		}
		msg := ConvertMessage(m, t.fileURL)
		t.recent.Add(recentKey(msg), msg)
		events = append(events, bus.MessageCreateEvent{Message: msg})

	case update.EditedMessage != nil:
		m := update.EditedMessage
		if m.Chat == nil || m.From == nil || !t.isAllowed(m.Chat.ID) {
			return nil
		}
		msg := ConvertMessage(m, t.fileURL)
		old, _ := t.recent.Get(recentKey(msg))
		t.recent.Add(recentKey(msg), msg)
		events = append(events, bus.MessageUpdateEvent{Old: old, New: msg})

	case update.ChatMember != nil:
		if ev := convertChatMember(update.ChatMember); ev != nil && t.isAllowed(update.ChatMember.Chat.ID) {
			events = append(events, ev)
		}
	}
	return events
}

func (t *Telegram) isAllowed(chatID int64) bool {
	if len(t.allowFrom) == 0 {
		return true
	}
	for _, id := range t.allowFrom {
		if id == chatID {
			return true
		}
	}
	return false
}

func (t *Telegram) fileURL(fileID string) string {
	if t.bot == nil {
		return ""
	}
	u, err := t.bot.GetFileDirectURL(fileID)
	if err != nil {
		t.logger.Warn("telegram file lookup failed", "file_id", fileID, "err", err)
		return ""
	}
	return u
}

func (t *Telegram) ready() error {
	if t.bot == nil {
		return fmt.Errorf("telegram: not connected")
	}
	return nil
}

func (t *Telegram) DeleteMessage(_ context.Context, msg *domain.InboundMessage) error {
	chatID, msgID, err := ids(msg)
	if err != nil {
		return err
	}
	if err := t.ready(); err != nil {
		return err
	}
	_, err = t.bot.Request(tgbotapi.NewDeleteMessage(chatID, msgID))
	return err
}

// React replies to msg with the emoji.
func (t *Telegram) React(_ context.Context, msg *domain.InboundMessage, emoji string) error {
	chatID, msgID, err := ids(msg)
	if err != nil {
		return err
	}
	if err := t.ready(); err != nil {
		return err
	}
	reply := tgbotapi.NewMessage(chatID, emoji)
	reply.ReplyToMessageID = msgID
	_, err = t.bot.Send(reply)
	return err
}

// TimeoutAuthor revokes every send permission of the author until the
// timeout ends.
func (t *Telegram) TimeoutAuthor(_ context.Context, msg *domain.InboundMessage, d time.Duration, _ string) error {
	if !msg.CanTimeout {
		return platform.ErrUnsupported
	}
	chatID, _, err := ids(msg)
	if err != nil {
		return err
	}
	userID, err := strconv.ParseInt(msg.Author.ID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid user ID %q: %w", msg.Author.ID, err)
	}
	if err := t.ready(); err != nil {
		return err
	}
	_, err = t.bot.Request(restriction(chatID, userID, d, time.Now()))
	return err
}

func restriction(chatID, userID int64, d time.Duration, now time.Time) tgbotapi.RestrictChatMemberConfig {
	d = max(d, minRestriction)
	return tgbotapi.RestrictChatMemberConfig{
		ChatMemberConfig: tgbotapi.ChatMemberConfig{ChatID: chatID, UserID: userID},
		UntilDate:        now.Add(d).Unix(),
		Permissions:      &tgbotapi.ChatPermissions{},
	}
}

func (t *Telegram) AddRoleToAuthor(context.Context, *domain.InboundMessage, string) error {
	return platform.ErrUnsupported
}

func (t *Telegram) SendDirectMessage(_ context.Context, userID, text string) error {
	id, err := strconv.ParseInt(userID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid user ID %q: %w", userID, err)
	}
	if err := t.ready(); err != nil {
		return err
	}
	return t.sendMessage(id, text, "")
}

// SendChannelMessage posts each report as a Markdown message, falling back
// to plain text when Telegram cannot parse it.
func (t *Telegram) SendChannelMessage(_ context.Context, channelID string, reports ...report.Report) error {
	id, err := strconv.ParseInt(channelID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid chat ID %q: %w", channelID, err)
	}
	if err := t.ready(); err != nil {
		return err
	}
	for _, r := range reports {
		// file URLs embed the bot token
		text := strings.ReplaceAll(report.PlainText(r), t.token, "<redacted>")
		if err := t.sendMessage(id, text, tgbotapi.ModeMarkdown); err != nil {
			return err
		}
	}
	return nil
}

func (t *Telegram) sendMessage(chatID int64, text, parseMode string) error {
	for _, chunk := range splitMessage(text, telegramMaxMsgLen) {
		msg := tgbotapi.NewMessage(chatID, chunk)
		msg.ParseMode = parseMode
		msg.DisableWebPagePreview = true
		_, err := t.bot.Send(msg)
		if err != nil && parseMode != "" && strings.Contains(err.Error(), "can't parse entities") {
			t.logger.Debug("telegram markdown parse error, retrying as plain text", "err", err)
			msg.ParseMode = ""
			_, err = t.bot.Send(msg)
		}
		if err != nil {
			return fmt.Errorf("telegram send: %w", err)
		}
	}
	return nil
}

func ids(msg *domain.InboundMessage) (chatID int64, msgID int, err error) {
	chatID, err = strconv.ParseInt(msg.ChannelID, 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid chat ID %q: %w", msg.ChannelID, err)
	}
	msgID, err = strconv.Atoi(msg.ID)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid message ID %q: %w", msg.ID, err)
	}
	return chatID, msgID, nil
}

func splitMessage(text string, maxLen int) []string {
	var chunks []string
	for len(text) > 0 {
		chunk := text
		if len(chunk) > maxLen {
			cutAt := strings.LastIndex(chunk[:maxLen], "\n")
			if cutAt < maxLen/2 {
				cutAt = maxLen
				for cutAt > 0 && !utf8.RuneStart(text[cutAt]) {
					cutAt--
				}
				if cutAt == 0 {
					_, cutAt = utf8.DecodeRuneInString(text)
				}
			}
			chunk = text[:cutAt]
			text = text[cutAt:]
		} else {
			text = ""
		}
		chunks = append(chunks, chunk)
	}
	return chunks
}
