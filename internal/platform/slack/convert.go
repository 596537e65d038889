package slack

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"

	"modbot/internal/domain"
	"modbot/internal/report"
)

var emojiNames = map[string]string{
	"✅": "white_check_mark",
	"🚫": "no_entry_sign",
}

// EmojiName maps a unicode emoji to its Slack short name. Unknown values are
// used as names with surrounding colons removed.
func EmojiName(emoji string) string {
	if n, ok := emojiNames[emoji]; ok {
		return n
	}
	return strings.Trim(emoji, ":")
}

// ConvertMessageEvent maps a new message. The author carries only the user ID.
func ConvertMessageEvent(ev *slackevents.MessageEvent) *domain.InboundMessage {
	msg := base(ev.Channel, ev.ChannelType, ev.TimeStamp, ev.User, ev.Text)
	for _, f := range ev.Files {
		msg.Attachments = append(msg.Attachments, domain.Attachment{URL: f.URLPrivate, Name: f.Name, ContentType: f.Mimetype})
	}
	msg.EmbeddedImages = unfurlImages(ev.Attachments)
	return msg
}

// ConvertMsg maps the message payload of an edit or delete.
func ConvertMsg(channelID, channelType string, m *slack.Msg) *domain.InboundMessage {
	msg := base(channelID, channelType, m.Timestamp, m.User, m.Text)
	for _, f := range m.Files {
		msg.Attachments = append(msg.Attachments, domain.Attachment{URL: f.URLPrivate, Name: f.Name, ContentType: f.Mimetype})
	}
	msg.EmbeddedImages = unfurlImages(m.Attachments)
	if m.Edited != nil {
		msg.EditedAt = parseTS(m.Edited.Timestamp)
	}
	return msg
}

func base(channelID, channelType, ts, userID, text string) *domain.InboundMessage {
	return &domain.InboundMessage{
		Platform:  name,
		ID:        ts,
		URL:       permalink(channelID, ts),
		GuildID:   channelID,
		ChannelID: channelID,
		Author:    domain.Author{ID: userID, Username: userID},
		Text:      text,
		CanDelete: channelType != "im",
		Timestamp: parseTS(ts),
	}
}

func unfurlImages(atts []slack.Attachment) []string {
	var out []string
	for _, a := range atts {
		switch {
		case a.ImageURL != "":
			out = append(out, a.ImageURL)
		case a.ThumbURL != "":
			out = append(out, a.ThumbURL)
		}
	}
	return out
}

func ConvertUser(u *slack.User) domain.Author {
	display := u.Profile.DisplayName
	if display == "" {
		display = u.Name
	}
	return domain.Author{
		ID:        u.ID,
		Username:  display,
		AvatarURL: u.Profile.Image192,
		Bot:       u.IsBot,
	}
}

// permalink builds the archive link Slack redirects to the message.
func permalink(channelID, ts string) string {
	if channelID == "" || ts == "" {
		return ""
	}
	return "https://slack.com/archives/" + channelID + "/p" + strings.Replace(ts, ".", "", 1)
}

// parseTS converts a Slack "seconds.micros" timestamp.
func parseTS(ts string) time.Time {
	secs, frac, _ := strings.Cut(ts, ".")
	s, err := strconv.ParseInt(secs, 10, 64)
	if err != nil {
		return time.Time{}
	}
	var micros int64
	if frac != "" {
		micros, _ = strconv.ParseInt(frac, 10, 64)
	}
	return time.Unix(s, micros*int64(time.Microsecond))
}

// Attachments renders reports as legacy message attachments, which keep the
// colored sidebar.
func Attachments(reports []report.Report) []slack.Attachment {
	out := make([]slack.Attachment, 0, len(reports))
	for _, r := range reports {
		a := slack.Attachment{
			Color:      fmt.Sprintf("#%06x", r.Color),
			AuthorName: r.Author.Name,
			AuthorIcon: r.Author.IconURL,
			Title:      r.Title,
			TitleLink:  r.URL,
			Text:       r.Description,
			ImageURL:   r.ImageURL,
			ThumbURL:   r.ThumbnailURL,
			Footer:     r.Footer,
			Fallback:   report.PlainText(r),
		}
		if !r.Timestamp.IsZero() {
			a.Ts = json.Number(strconv.FormatInt(r.Timestamp.Unix(), 10))
		}
		for _, f := range r.Fields {
			a.Fields = append(a.Fields, slack.AttachmentField{Title: f.Name, Value: f.Value, Short: f.Inline})
		}
		out = append(out, a)
	}
	return out
}
