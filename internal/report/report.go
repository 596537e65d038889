// Package report turns verdicts and chat events into structured,
// human-readable reports for a logs or moderation channel.
package report

import (
	"fmt"
	"strings"
	"time"

	"modbot/internal/domain"
)

// Colors used for the report sidebar.
const (
	ColorModeration    = 0xdbddde
	ColorMessageUpdate = 0xff9500
	ColorMessageDelete = 0xff3a2d
	ColorMember        = 0x3f51b5
	ColorMemberChange  = 0xe65100
	ColorMemberLeft    = 0x212121
)

const unknownUser = "Unknown User"

type Author struct {
	Name    string
	IconURL string
}

type Field struct {
	Name   string
	Value  string
	Inline bool
}

// Report is a rich message. Adapters that support embeds render it natively;
// the rest use PlainText.
type Report struct {
	Title        string
	URL          string
	Color        int
	Author       Author
	Description  string
	Fields       []Field
	ImageURL     string
	ThumbnailURL string
	Footer       string
	Timestamp    time.Time
}

// Moderation builds the report for one verdict. attachmentURL, when set, is
// shown as the image of the report.
func Moderation(title string, categories []domain.Category, msg *domain.InboundMessage, attachmentURL string) Report {
	r := Report{
		Title:     title,
		Color:     ColorModeration,
		Author:    Author{Name: unknownUser},
		ImageURL:  attachmentURL,
		Timestamp: messageTime(msg),
	}
	if msg != nil {
		r.URL = msg.URL
		r.Description = msg.Text
		if msg.Author.Username != "" {
			r.Author = Author{Name: msg.Author.Username, IconURL: msg.Author.AvatarURL}
		}
	}
	for _, c := range categories {
		r.Fields = append(r.Fields, Field{Name: c.Name, Value: Confidence(c.Confidence), Inline: true})
	}
	return r
}

// Confidence formats a 0-100 confidence score.
func Confidence(v float64) string {
	return fmt.Sprintf("%.2f%%", v)
}

// Message builds the log reports for a message: one for its text or sticker
// and one per attachment.
func Message(title string, color int, msg *domain.InboundMessage) []Report {
	return messageReports(title, color, msg, nil)
}

// MessageUpdated builds the log reports for an edit, carrying the previous
// content of the message.
func MessageUpdated(old, updated *domain.InboundMessage) []Report {
	prev := "[No Content]"
	if old != nil && old.Text != "" {
		prev = old.Text
	}
	view := updated
	if view == nil {
		view = old
	}
	return messageReports("Message Updated", ColorMessageUpdate, view, &Field{Name: "Previous Content", Value: prev})
}

func messageReports(title string, color int, msg *domain.InboundMessage, extra *Field) []Report {
	if msg == nil {
		return nil
	}
	var out []Report

	author := Author{Name: msg.Author.Username, IconURL: msg.Author.AvatarURL}
	channel := Field{Name: "Channel", Value: ChannelMention(msg.ChannelID), Inline: true}
	ts := messageTime(msg)

	if msg.Text != "" || len(msg.Stickers) > 0 || extra != nil {
		r := Report{
			Title:       title,
			URL:         msg.URL,
			Color:       color,
			Author:      author,
			Description: msg.Text,
			Timestamp:   ts,
		}
		if extra != nil {
			r.Fields = append(r.Fields, *extra)
		}
		r.Fields = append(r.Fields, channel)
		if len(msg.Stickers) > 0 {
			r.ImageURL = msg.Stickers[0]
		}
		out = append(out, r)
	}

	for _, a := range msg.Attachments {
		contentType := a.ContentType
		if contentType == "" {
			contentType = "Unknown"
		}
		r := Report{
			Title:       title,
			URL:         msg.URL,
			Color:       color,
			Author:      author,
			Description: msg.Text,
			Fields: []Field{
				channel,
				{Name: "Content Type", Value: contentType, Inline: true},
				{Name: "URL", Value: a.URL},
			},
			Timestamp: ts,
		}
		if strings.HasPrefix(a.ContentType, "image") {
			r.ImageURL = a.URL
		}
		out = append(out, r)
	}
	return out
}

// Member builds a member card.
func Member(title string, color int, m domain.Member) Report {
	joined := m.JoinedAt
	if joined.IsZero() {
		joined = time.Now()
	}
	created := "Unknown"
	if !m.CreatedAt.IsZero() {
		created = m.CreatedAt.Format(time.DateOnly)
	}
	return Report{
		Title:        title,
		Color:        color,
		Author:       Author{Name: m.Username, IconURL: m.AvatarURL},
		ThumbnailURL: m.AvatarURL,
		Fields: []Field{
			{Name: "Username", Value: m.Username, Inline: true},
			{Name: "Nickname", Value: m.DisplayName(), Inline: true},
			{Name: "Joined", Value: joined.Format(time.DateOnly), Inline: true},
			{Name: "Created", Value: created, Inline: true},
			{Name: "Roles", Value: strings.Join(m.RoleNames, ", "), Inline: true},
		},
		Footer:    "ID: " + m.UserID,
		Timestamp: time.Now(),
	}
}

// ChannelMention renders a channel reference in chat markup.
func ChannelMention(channelID string) string {
	return "<#" + channelID + ">"
}

func messageTime(msg *domain.InboundMessage) time.Time {
	switch {
	case msg == nil:
		return time.Now()
	case !msg.EditedAt.IsZero():
		return msg.EditedAt
	case !msg.Timestamp.IsZero():
		return msg.Timestamp
	}
	return time.Now()
}
