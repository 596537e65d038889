package escalation

import (
	"fmt"
	"time"

	"modbot/internal/domain"
)

// Source is the oracle capability a verdict came from.
type Source = domain.ContentKind

const (
	BlacklistTimeout = 24 * time.Hour
	ShortenerTimeout = 5 * time.Second

	BlacklistReason = "Suspicious Activity: Blacklisted Link"
	ShortenerReason = "Suspicious Activity: Shortened URL"

	EmojiApproved = "✅"
	EmojiBlocked  = "🚫"

	TitleText  = "Text Moderation"
	TitleLink  = "Link Moderation"
	TitleImage = "Image Moderation"
	TitleAudio = "Audio Moderation"
)

// Cooldown remembers the strongest timeout issued during one moderation pass.
// The zero value is ready to use. It must not outlive the pass.
type Cooldown struct {
	max time.Duration
}

// Allow reports whether a timeout of d would be stronger than any already
// issued.
func (c *Cooldown) Allow(d time.Duration) bool { return d > c.max }

// Record notes that a timeout of d was issued.
func (c *Cooldown) Record(d time.Duration) {
	if d > c.max {
		c.max = d
	}
}

// Max returns the strongest timeout recorded so far.
func (c *Cooldown) Max() time.Duration { return c.max }

// Options describe what the message origin allows.
type Options struct {
	CanTimeout bool
	CanDelete  bool
	MuteRoleID string
	AuthorID   string
	ChannelID  string

	// AttachmentURL is shown as the visual reference of image reports.
	AttachmentURL string
}

// ShortenerNotice is the direct message sent when a shortened URL is removed.
func ShortenerNotice(channelID string) string {
	return fmt.Sprintf("Your message in <#%s> was deleted because it contained a shortened URL.", channelID)
}

// Decide maps a verdict to actions. Apart from recording issued timeouts in
// cd it has no side effects. A nil cd behaves as a fresh Cooldown.
func Decide(source Source, categories []domain.Category, cd *Cooldown, opts Options) []Action {
	if cd == nil {
		cd = &Cooldown{}
	}

	switch source {
	case domain.KindLink:
		return decideLink(categories, cd, opts)
	case domain.KindText:
		return reportIfAny(TitleText, categories, "")
	case domain.KindImage:
		return reportIfAny(TitleImage, categories, opts.AttachmentURL)
	case domain.KindAudio:
		return reportIfAny(TitleAudio, categories, "")
	}
	return nil
}

func reportIfAny(title string, categories []domain.Category, attachmentURL string) []Action {
	if len(categories) == 0 {
		return nil
	}
	return []Action{Report(title, categories, attachmentURL)}
}

// Blacklist beats shortener beats anything else.
func decideLink(categories []domain.Category, cd *Cooldown, opts Options) []Action {
	if len(categories) == 0 {
		return []Action{React(EmojiApproved)}
	}

	var actions []Action
	switch {
	case domain.HasCategory(categories, domain.CategoryBlackList, domain.CategoryCustomBlackList):
		if opts.CanTimeout && cd.Allow(BlacklistTimeout) {
			actions = append(actions, Timeout(BlacklistTimeout, BlacklistReason))
			cd.Record(BlacklistTimeout)
			if opts.MuteRoleID != "" {
				actions = append(actions, AddMuteRole(opts.MuteRoleID))
			}
		}
		if opts.CanDelete {
			actions = append(actions, Delete())
		}

	case domain.HasCategory(categories, domain.CategoryURLShortener):
		if opts.CanTimeout && cd.Allow(ShortenerTimeout) {
			actions = append(actions, Timeout(ShortenerTimeout, ShortenerReason))
			cd.Record(ShortenerTimeout)
		}
		if opts.CanDelete {
			actions = append(actions, Delete())
		}
		if opts.AuthorID != "" {
			actions = append(actions, DirectMessage(opts.AuthorID, ShortenerNotice(opts.ChannelID)))
		}

	default:
		actions = append(actions, React(EmojiBlocked))
	}

	return append(actions, Report(TitleLink, categories, ""))
}
