package twitch

import (
	"strings"
	"time"
	"unicode/utf8"

	irc "github.com/gempir/go-twitch-irc/v4"

	"modbot/internal/bus"
	"modbot/internal/domain"
)

// ConvertMessage maps a chat message. Twitch has no per-message permalink, so
// URL points at the channel.
func ConvertMessage(m irc.PrivateMessage) *domain.InboundMessage {
	return &domain.InboundMessage{
		Platform:  name,
		ID:        m.ID,
		URL:       channelURL(m.Channel),
		GuildID:   m.RoomID,
		ChannelID: m.Channel,
		Author:    ConvertUser(m.User),
		Text:      m.Message,
		Timestamp: m.Time,
	}
}

func ConvertUser(u irc.User) domain.Author {
	return domain.Author{
		ID:       u.ID,
		Username: orDefault(u.DisplayName, u.Name),
	}
}

// convertCleared maps a message removed by a moderator.
func convertCleared(m irc.ClearMessage) *domain.InboundMessage {
	return &domain.InboundMessage{
		Platform:  name,
		ID:        m.TargetMsgID,
		URL:       channelURL(m.Channel),
		ChannelID: m.Channel,
		Author:    domain.Author{Username: m.Login},
		Text:      m.Message,
		Timestamp: time.Now(),
	}
}

// convertClearChat maps permanent bans. Timeouts and full chat clears
// return nil.
func convertClearChat(m irc.ClearChatMessage) bus.Event {
	if m.TargetUsername == "" || m.BanDuration > 0 {
		return nil
	}
	return bus.MemberBanEvent{
		Platform: name,
		GuildID:  m.Channel,
		User:     domain.Author{ID: m.TargetUserID, Username: m.TargetUsername},
	}
}

func member(channel, login string) domain.Member {
	return domain.Member{
		Platform: name,
		GuildID:  channel,
		UserID:   login,
		Username: login,
		JoinedAt: time.Now(),
	}
}

func channelURL(channel string) string {
	return "https://www.twitch.tv/" + channel
}

// chatLine flattens multi-line text, since a chat message is a single line.
func chatLine(text string) string {
	var parts []string
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			parts = append(parts, line)
		}
	}
	return strings.Join(parts, " | ")
}

// splitLine cuts text into chunks of at most maxLen bytes, preferring
// spaces and never splitting a rune.
func splitLine(text string, maxLen int) []string {
	var chunks []string
	for len(text) > maxLen {
		cut := strings.LastIndex(text[:maxLen], " ")
		if cut < maxLen/2 {
			cut = maxLen
			for cut > 0 && !utf8.RuneStart(text[cut]) {
				cut--
			}
			if cut == 0 {
				_, cut = utf8.DecodeRuneInString(text)
			}
		}
		chunks = append(chunks, strings.TrimSpace(text[:cut]))
		text = strings.TrimSpace(text[cut:])
	}
	if text != "" {
		chunks = append(chunks, text)
	}
	return chunks
}

func orDefault(s, def string) string {
	if s != "" {
		return s
	}
	return def
}
