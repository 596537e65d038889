package telegram

import (
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"modbot/internal/bus"
	"modbot/internal/domain"
)

// ConvertMessage maps a Telegram message. fileURL resolves a file ID to a
// downloadable URL and returns "" when it cannot.
func ConvertMessage(m *tgbotapi.Message, fileURL func(fileID string) string) *domain.InboundMessage {
	if m == nil {
		return nil
	}
	group := m.Chat != nil && (m.Chat.IsGroup() || m.Chat.IsSuperGroup())
	msg := &domain.InboundMessage{
		Platform:   name,
		ID:         strconv.Itoa(m.MessageID),
		CanTimeout: m.Chat != nil && m.Chat.IsSuperGroup(),
		CanDelete:  group,
		Timestamp:  time.Unix(int64(m.Date), 0),
	}
	if m.EditDate != 0 {
		msg.EditedAt = time.Unix(int64(m.EditDate), 0)
	}
	if m.Chat != nil {
		msg.ChannelID = strconv.FormatInt(m.Chat.ID, 10)
		msg.GuildID = msg.ChannelID
		msg.URL = messageURL(m.Chat, m.MessageID)
	}
	if m.From != nil {
		msg.Author = ConvertUser(m.From)
	}

	text, entities := m.Text, m.Entities
	if text == "" {
		text, entities = m.Caption, m.CaptionEntities
	}
	msg.Text = withHiddenLinks(text, entities)

	resolve := func(fileID string) string {
		if fileURL == nil || fileID == "" {
			return ""
		}
		return fileURL(fileID)
	}
	attach := func(fileID, fileName, contentType string) {
		if u := resolve(fileID); u != "" {
			msg.Attachments = append(msg.Attachments, domain.Attachment{URL: u, Name: fileName, ContentType: contentType})
		}
	}

	if n := len(m.Photo); n > 0 {
		// sizes are ordered smallest first
		attach(m.Photo[n-1].FileID, "photo.jpg", "image/jpeg")
	}
	if v := m.Voice; v != nil {
		attach(v.FileID, "voice.ogg", orDefault(v.MimeType, "audio/ogg"))
	}
	if a := m.Audio; a != nil {
		attach(a.FileID, a.FileName, a.MimeType)
	}
	if d := m.Document; d != nil {
		attach(d.FileID, d.FileName, d.MimeType)
	}
	if s := m.Sticker; s != nil && !s.IsAnimated {
		if u := resolve(s.FileID); u != "" {
			msg.Stickers = append(msg.Stickers, u)
		}
	}
	return msg
}

// withHiddenLinks appends the targets of text_link entities, which are not
// part of the visible text.
func withHiddenLinks(text string, entities []tgbotapi.MessageEntity) string {
	var hidden []string
	for _, e := range entities {
		if e.Type == "text_link" && e.URL != "" && !strings.Contains(text, e.URL) {
			hidden = append(hidden, e.URL)
		}
	}
	if len(hidden) == 0 {
		return text
	}
	if text == "" {
		return strings.Join(hidden, "\n")
	}
	return text + "\n" + strings.Join(hidden, "\n")
}

func messageURL(chat *tgbotapi.Chat, messageID int) string {
	id := strconv.Itoa(messageID)
	switch {
	case chat.UserName != "":
		return "https://t.me/" + chat.UserName + "/" + id
	case chat.IsSuperGroup():
		// private supergroup links drop the -100 prefix
		return "https://t.me/c/" + strings.TrimPrefix(strconv.FormatInt(chat.ID, 10), "-100") + "/" + id
	}
	return ""
}

func ConvertUser(u *tgbotapi.User) domain.Author {
	return domain.Author{
		ID:       strconv.FormatInt(u.ID, 10),
		Username: displayName(u),
		Bot:      u.IsBot,
	}
}

func ConvertMember(chatID int64, u *tgbotapi.User) domain.Member {
	m := domain.Member{
		Platform: name,
		GuildID:  strconv.FormatInt(chatID, 10),
		UserID:   strconv.FormatInt(u.ID, 10),
		Username: displayName(u),
		Bot:      u.IsBot,
		JoinedAt: time.Now(),
	}
	if u.UserName != "" {
		m.Nickname = strings.TrimSpace(u.FirstName + " " + u.LastName)
	}
	return m
}

// convertChatMember maps ban and unban transitions. Other status changes
// return nil.
func convertChatMember(c *tgbotapi.ChatMemberUpdated) bus.Event {
	if c == nil || c.NewChatMember.User == nil {
		return nil
	}
	guildID := strconv.FormatInt(c.Chat.ID, 10)
	user := ConvertUser(c.NewChatMember.User)
	switch {
	case c.NewChatMember.Status == "kicked" && c.OldChatMember.Status != "kicked":
		return bus.MemberBanEvent{Platform: name, GuildID: guildID, User: user}
	case c.OldChatMember.Status == "kicked" && c.NewChatMember.Status != "kicked":
		return bus.MemberUnbanEvent{Platform: name, GuildID: guildID, User: user}
	}
	return nil
}

func displayName(u *tgbotapi.User) string {
	if u.UserName != "" {
		return u.UserName
	}
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

func recentKey(msg *domain.InboundMessage) string {
	return msg.ChannelID + ":" + msg.ID
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
