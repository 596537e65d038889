package domain

import (
	"strings"
	"time"
)

// Attachment is a file uploaded alongside a message.
type Attachment struct {
	URL         string
	Name        string
	ContentType string // empty when the platform did not report one
}

// IsImage reports whether the attachment content type names an image.
func (a Attachment) IsImage() bool { return strings.Contains(a.ContentType, "image") }

// IsAudio reports whether the attachment content type names audio.
func (a Attachment) IsAudio() bool { return strings.Contains(a.ContentType, "audio") }

type Author struct {
	ID        string
	Username  string
	AvatarURL string
	Bot       bool
}

// InboundMessage is the platform-agnostic view of one chat message. It is
// built fresh for every platform event and discarded once moderation ends.
type InboundMessage struct {
	Platform  string
	ID        string
	URL       string
	GuildID   string
	ChannelID string
	Author    Author

	Text           string
	Attachments    []Attachment
	EmbeddedImages []string // image URLs from link previews or rich embeds
	Stickers       []string // sticker image URLs

	// Capability flags for the message origin. A DM cannot time anybody out
	// and some platforms expose no moderation API at all.
	CanTimeout bool
	CanDelete  bool

	Timestamp time.Time
	EditedAt  time.Time
}

// Clone returns a copy whose slices can be modified independently.
func (m *InboundMessage) Clone() *InboundMessage {
	if m == nil {
		return nil
	}
	c := *m
	c.Attachments = append([]Attachment(nil), m.Attachments...)
	c.EmbeddedImages = append([]string(nil), m.EmbeddedImages...)
	c.Stickers = append([]string(nil), m.Stickers...)
	return &c
}
