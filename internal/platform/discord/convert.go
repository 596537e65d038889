package discord

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/bwmarrin/discordgo"

	"modbot/internal/domain"
)

const stickerCDN = "https://media.discordapp.net/stickers/"

// ConvertMessage maps a gateway message to the platform-agnostic view. A nil
// message converts to nil.
func ConvertMessage(m *discordgo.Message) *domain.InboundMessage {
	if m == nil {
		return nil
	}
	inGuild := m.GuildID != ""
	msg := &domain.InboundMessage{
		Platform:   name,
		ID:         m.ID,
		URL:        messageURL(m.GuildID, m.ChannelID, m.ID),
		GuildID:    m.GuildID,
		ChannelID:  m.ChannelID,
		Author:     ConvertUser(m.Author),
		Text:       m.Content,
		CanTimeout: inGuild,
		CanDelete:  inGuild,
		Timestamp:  m.Timestamp,
	}
	if m.EditedTimestamp != nil {
		msg.EditedAt = *m.EditedTimestamp
	}

	for _, a := range m.Attachments {
		if a == nil {
			continue
		}
		msg.Attachments = append(msg.Attachments, domain.Attachment{
			URL:         a.URL,
			Name:        a.Filename,
			ContentType: a.ContentType,
		})
	}
	for _, e := range m.Embeds {
		if u := embedImage(e); u != "" {
			msg.EmbeddedImages = append(msg.EmbeddedImages, u)
		}
	}
	for _, s := range m.StickerItems {
		if s == nil || s.FormatType == discordgo.StickerFormatTypeLottie {
			continue
		}
		ext := ".png"
		if s.FormatType == discordgo.StickerFormatTypeGIF {
			ext = ".gif"
		}
		msg.Stickers = append(msg.Stickers, stickerCDN+s.ID+ext)
	}
	return msg
}

func embedImage(e *discordgo.MessageEmbed) string {
	switch {
	case e == nil:
		return ""
	case e.Image != nil && e.Image.URL != "":
		return e.Image.URL
	case e.Thumbnail != nil && e.Thumbnail.URL != "":
		return e.Thumbnail.URL
	}
	return ""
}

func messageURL(guildID, channelID, messageID string) string {
	if guildID == "" {
		guildID = "@me"
	}
	return "https://discord.com/channels/" + guildID + "/" + channelID + "/" + messageID
}

func ConvertUser(u *discordgo.User) domain.Author {
	if u == nil {
		return domain.Author{}
	}
	return domain.Author{
		ID:        u.ID,
		Username:  u.Username,
		AvatarURL: u.AvatarURL(""),
		Bot:       u.Bot,
	}
}

// ConvertMember maps a guild member. roleName resolves role IDs and may
// return "" for unknown roles, which are then listed by ID.
func ConvertMember(m *discordgo.Member, roleName func(guildID, roleID string) string) domain.Member {
	if m == nil {
		return domain.Member{Platform: name}
	}
	out := domain.Member{
		Platform: name,
		GuildID:  m.GuildID,
		Nickname: m.Nick,
		RoleIDs:  append([]string(nil), m.Roles...),
		JoinedAt: m.JoinedAt,
	}
	if u := m.User; u != nil {
		out.UserID = u.ID
		out.Username = u.Username
		out.AvatarURL = u.AvatarURL("")
		out.Bot = u.Bot
		if ts, err := discordgo.SnowflakeTimestamp(u.ID); err == nil {
			out.CreatedAt = ts
		}
	}
	for _, id := range m.Roles {
		n := ""
		if roleName != nil {
			n = roleName(m.GuildID, id)
		}
		if n == "" {
			n = "<@&" + id + ">"
		}
		out.RoleNames = append(out.RoleNames, n)
	}
	return out
}

const maxMessageLen = 2000

// splitMessage splits a message into chunks of at most maxLen bytes, on a
// newline when one is close enough and never inside a UTF-8 sequence.
func splitMessage(msg string, maxLen int) []string {
	if len(msg) <= maxLen {
		return []string{msg}
	}

	var chunks []string
	for len(msg) > 0 {
		if len(msg) <= maxLen {
			chunks = append(chunks, msg)
			break
		}
		cut := runeBoundary(msg, maxLen)
		if idx := strings.LastIndex(msg[:maxLen], "\n"); idx > maxLen/2 {
			cut = idx + 1
		}
		chunks = append(chunks, msg[:cut])
		msg = msg[cut:]
	}
	return chunks
}

// runeBoundary returns the largest cut <= n that starts a rune, or the end of
// the first rune when n falls inside it.
func runeBoundary(s string, n int) int {
	cut := n
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	if cut == 0 {
		_, size := utf8.DecodeRuneInString(s)
		return size
	}
	return cut
}

func timestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
