// Package discord connects a Discord bot session to the moderation bot.
package discord

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bwmarrin/discordgo"

	"modbot/internal/bus"
	"modbot/internal/domain"
	"modbot/internal/platform"
	"modbot/internal/report"
)

const (
	name = "discord"

	// messages kept by the state cache so edits and deletes carry the
	// previous version
	stateMessages = 500
)

// Discord implements platform.Platform for Discord.
type Discord struct {
	token   string
	guildID string
	session *discordgo.Session
	logger  *slog.Logger
}

// Config configures the Discord adapter.
type Config struct {
	Token   string
	GuildID string // empty = every guild the bot is in
	Logger  *slog.Logger
}

func New(cfg Config) *Discord {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Discord{
		token:   cfg.Token,
		guildID: cfg.GuildID,
		logger:  cfg.Logger.With("platform", name),
	}
}

func (d *Discord) Name() string { return name }

// Start connects to the gateway and publishes converted events to q until
// ctx is done.
func (d *Discord) Start(ctx context.Context, q *bus.Queue) error {
	session, err := discordgo.New("Bot " + d.token)
	if err != nil {
		return fmt.Errorf("discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsMessageContent |
		discordgo.IntentsGuildMembers |
		discordgo.IntentsGuildBans
	session.State.MaxMessageCount = stateMessages
	session.State.TrackMembers = true
	d.session = session

	publish := func(ev bus.Event) {
		if err := q.Publish(ctx, ev); err != nil {
			d.logger.Warn("discord event not queued", "event", ev.Kind(), "err", err)
		}
	}

	session.AddHandler(func(_ *discordgo.Session, r *discordgo.Ready) {
		publish(bus.ReadyEvent{Platform: name, User: r.User.Username})
	})

	session.AddHandler(func(s *discordgo.Session, m *discordgo.MessageCreate) {
		if !d.watched(m.GuildID) || m.Author == nil || m.Author.ID == s.State.User.ID {
			return
		}
		publish(bus.MessageCreateEvent{Message: ConvertMessage(m.Message)})
	})

	session.AddHandler(func(s *discordgo.Session, m *discordgo.MessageUpdate) {
		// embed-only updates carry no author
		if !d.watched(m.GuildID) || m.Author == nil {
			return
		}
		publish(bus.MessageUpdateEvent{
			Old: ConvertMessage(m.BeforeUpdate),
			New: ConvertMessage(m.Message),
		})
	})

	session.AddHandler(func(_ *discordgo.Session, m *discordgo.MessageDelete) {
		// only messages the state cache saw can be reported
		if !d.watched(m.GuildID) || m.BeforeDelete == nil {
			return
		}
		publish(bus.MessageDeleteEvent{Message: ConvertMessage(m.BeforeDelete)})
	})

	session.AddHandler(func(s *discordgo.Session, m *discordgo.GuildMemberAdd) {
		if d.watched(m.GuildID) {
			publish(bus.MemberJoinEvent{Member: ConvertMember(m.Member, roleNames(s))})
		}
	})

	session.AddHandler(func(s *discordgo.Session, m *discordgo.GuildMemberUpdate) {
		if !d.watched(m.GuildID) {
			return
		}
		updated := ConvertMember(m.Member, roleNames(s))
		old := updated
		if m.BeforeUpdate != nil {
			old = ConvertMember(m.BeforeUpdate, roleNames(s))
		}
		publish(bus.MemberUpdateEvent{Old: old, New: updated})
	})

	session.AddHandler(func(s *discordgo.Session, m *discordgo.GuildMemberRemove) {
		if d.watched(m.GuildID) {
			publish(bus.MemberLeaveEvent{Member: ConvertMember(m.Member, roleNames(s))})
		}
	})

	session.AddHandler(func(_ *discordgo.Session, b *discordgo.GuildBanAdd) {
		if d.watched(b.GuildID) {
			publish(bus.MemberBanEvent{Platform: name, GuildID: b.GuildID, User: ConvertUser(b.User)})
		}
	})

	session.AddHandler(func(_ *discordgo.Session, b *discordgo.GuildBanRemove) {
		if d.watched(b.GuildID) {
			publish(bus.MemberUnbanEvent{Platform: name, GuildID: b.GuildID, User: ConvertUser(b.User)})
		}
	})

	if err := session.Open(); err != nil {
		return fmt.Errorf("discord connect: %w", err)
	}
	d.logger.Info("discord bot connected", "user", session.State.User.Username)

	<-ctx.Done()
	d.logger.Info("discord bot disconnecting")
	return session.Close()
}

func (d *Discord) watched(guildID string) bool {
	return d.guildID == "" || guildID == "" || guildID == d.guildID
}

func roleNames(s *discordgo.Session) func(guildID, roleID string) string {
	return func(guildID, roleID string) string {
		if r, err := s.State.Role(guildID, roleID); err == nil {
			return r.Name
		}
		return ""
	}
}

func (d *Discord) ready() error {
	if d.session == nil {
		return fmt.Errorf("discord: not connected")
	}
	return nil
}

func (d *Discord) DeleteMessage(ctx context.Context, msg *domain.InboundMessage) error {
	if err := d.ready(); err != nil {
		return err
	}
	return d.session.ChannelMessageDelete(msg.ChannelID, msg.ID, discordgo.WithContext(ctx))
}

func (d *Discord) React(ctx context.Context, msg *domain.InboundMessage, emoji string) error {
	if err := d.ready(); err != nil {
		return err
	}
	return d.session.MessageReactionAdd(msg.ChannelID, msg.ID, emoji, discordgo.WithContext(ctx))
}

func (d *Discord) TimeoutAuthor(ctx context.Context, msg *domain.InboundMessage, dur time.Duration, reason string) error {
	if msg.GuildID == "" {
		return platform.ErrUnsupported
	}
	if err := d.ready(); err != nil {
		return err
	}
	until := time.Now().Add(dur)
	return d.session.GuildMemberTimeout(msg.GuildID, msg.Author.ID, &until,
		discordgo.WithContext(ctx), discordgo.WithAuditLogReason(reason))
}

func (d *Discord) AddRoleToAuthor(ctx context.Context, msg *domain.InboundMessage, roleID string) error {
	if msg.GuildID == "" {
		return platform.ErrUnsupported
	}
	if err := d.ready(); err != nil {
		return err
	}
	return d.session.GuildMemberRoleAdd(msg.GuildID, msg.Author.ID, roleID, discordgo.WithContext(ctx))
}

func (d *Discord) SendDirectMessage(ctx context.Context, userID, text string) error {
	if err := d.ready(); err != nil {
		return err
	}
	ch, err := d.session.UserChannelCreate(userID, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("open dm: %w", err)
	}
	for _, chunk := range splitMessage(text, maxMessageLen) {
		if _, err := d.session.ChannelMessageSend(ch.ID, chunk, discordgo.WithContext(ctx)); err != nil {
			return fmt.Errorf("send dm: %w", err)
		}
	}
	return nil
}

// SendChannelMessage posts reports as embeds, ten per message.
func (d *Discord) SendChannelMessage(ctx context.Context, channelID string, reports ...report.Report) error {
	if err := d.ready(); err != nil {
		return err
	}
	for _, batch := range EmbedBatches(reports) {
		if _, err := d.session.ChannelMessageSendEmbeds(channelID, batch, discordgo.WithContext(ctx)); err != nil {
			return fmt.Errorf("send embeds to %s: %w", channelID, err)
		}
	}
	return nil
}
