package discord

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"modbot/internal/domain"
	"modbot/internal/platform"
	"modbot/internal/report"
)

func TestConvertMessage_Guild(t *testing.T) {
	sent := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	edited := sent.Add(time.Minute)
	m := &discordgo.Message{
		ID:              "3",
		ChannelID:       "2",
		GuildID:         "1",
		Content:         "look at evil.test",
		Timestamp:       sent,
		EditedTimestamp: &edited,
		Author:          &discordgo.User{ID: "42", Username: "alice"},
		Attachments: []*discordgo.MessageAttachment{
			{URL: "https://cdn.test/a.png", Filename: "a.png", ContentType: "image/png"},
			nil,
		},
		Embeds: []*discordgo.MessageEmbed{
			{Image: &discordgo.MessageEmbedImage{URL: "https://img.test/big.png"}},
			{Thumbnail: &discordgo.MessageEmbedThumbnail{URL: "https://img.test/thumb.png"}},
			{Title: "no image"},
		},
		StickerItems: []*discordgo.StickerItem{
			{ID: "7", FormatType: discordgo.StickerFormatTypePNG},
			{ID: "8", FormatType: discordgo.StickerFormatTypeLottie},
			{ID: "9", FormatType: discordgo.StickerFormatTypeGIF},
		},
	}

	msg := ConvertMessage(m)
	require.NotNil(t, msg)
	assert.Equal(t, "discord", msg.Platform)
	assert.Equal(t, "https://discord.com/channels/1/2/3", msg.URL)
	assert.Equal(t, "42", msg.Author.ID)
	assert.True(t, msg.CanTimeout)
	assert.True(t, msg.CanDelete)
	assert.Equal(t, sent, msg.Timestamp)
	assert.Equal(t, edited, msg.EditedAt)
	assert.Equal(t, []domain.Attachment{{URL: "https://cdn.test/a.png", Name: "a.png", ContentType: "image/png"}}, msg.Attachments)
	assert.Equal(t, []string{"https://img.test/big.png", "https://img.test/thumb.png"}, msg.EmbeddedImages)
	assert.Equal(t, []string{stickerCDN + "7.png", stickerCDN + "9.gif"}, msg.Stickers)
}

func TestConvertMessage_DirectMessage(t *testing.T) {
	msg := ConvertMessage(&discordgo.Message{ID: "3", ChannelID: "2", Author: &discordgo.User{ID: "42"}})
	assert.False(t, msg.CanTimeout)
	assert.False(t, msg.CanDelete)
	assert.Equal(t, "https://discord.com/channels/@me/2/3", msg.URL)
}

func TestConvertMessage_Nil(t *testing.T) {
	assert.Nil(t, ConvertMessage(nil))
}

func TestConvertMember(t *testing.T) {
	joined := time.Date(2023, 5, 1, 0, 0, 0, 0, time.UTC)
	m := &discordgo.Member{
		GuildID:  "1",
		Nick:     "Al",
		Roles:    []string{"10", "11"},
		JoinedAt: joined,
		User:     &discordgo.User{ID: "175928847299117063", Username: "alice"},
	}
	names := map[string]string{"10": "Moderators"}

	got := ConvertMember(m, func(_, id string) string { return names[id] })
	assert.Equal(t, "175928847299117063", got.UserID)
	assert.Equal(t, "Al", got.Nickname)
	assert.Equal(t, []string{"10", "11"}, got.RoleIDs)
	assert.Equal(t, []string{"Moderators", "<@&11>"}, got.RoleNames)
	assert.Equal(t, joined, got.JoinedAt)
	assert.Equal(t, 2016, got.CreatedAt.Year())
	assert.True(t, got.HasRole("11"))
}

func TestEmbed(t *testing.T) {
	r := report.Report{
		Title:        "Link Moderation",
		URL:          "https://discord.com/channels/1/2/3",
		Color:        report.ColorModeration,
		Author:       report.Author{Name: "alice", IconURL: "https://cdn.test/alice.png"},
		Description:  strings.Repeat("x", 5000),
		Fields:       []report.Field{{Name: "BLACK_LIST", Value: "99.00%", Inline: true}, {Name: "Roles", Value: ""}},
		ImageURL:     "https://cdn.test/a.png",
		ThumbnailURL: "https://cdn.test/t.png",
		Footer:       "ID: 42",
		Timestamp:    time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}

	e := Embed(r)
	assert.Equal(t, "Link Moderation", e.Title)
	assert.Equal(t, report.ColorModeration, e.Color)
	assert.Equal(t, "alice", e.Author.Name)
	assert.Len(t, []rune(e.Description), maxDescription)
	require.Len(t, e.Fields, 2)
	assert.True(t, e.Fields[0].Inline)
	assert.Equal(t, "\u200b", e.Fields[1].Value)
	assert.Equal(t, "https://cdn.test/a.png", e.Image.URL)
	assert.Equal(t, "https://cdn.test/t.png", e.Thumbnail.URL)
	assert.Equal(t, "ID: 42", e.Footer.Text)
	assert.Equal(t, "2024-03-01T12:00:00Z", e.Timestamp)
}

func TestEmbed_Minimal(t *testing.T) {
	e := Embed(report.Report{Title: "Member Left"})
	assert.Nil(t, e.Author)
	assert.Nil(t, e.Image)
	assert.Nil(t, e.Footer)
	assert.Empty(t, e.Timestamp)
}

func TestEmbedBatches(t *testing.T) {
	reports := make([]report.Report, 23)
	batches := EmbedBatches(reports)
	require.Len(t, batches, 3)
	assert.Len(t, batches[0], 10)
	assert.Len(t, batches[2], 3)

	assert.Empty(t, EmbedBatches(nil))
}

func TestSplitMessage(t *testing.T) {
	assert.Equal(t, []string{"short"}, splitMessage("short", 10))

	chunks := splitMessage("aaaaaaa\nbbbbbbbbbb", 10)
	assert.Equal(t, []string{"aaaaaaa\n", "bbbbbbbbbb"}, chunks)
}

func TestSplitMessage_RuneBoundaries(t *testing.T) {
	assert.Equal(t, []string{"éé", "éé", "é"}, splitMessage("ééééé", 5))

	msg := strings.Repeat("🚫", 700)
	chunks := splitMessage(msg, maxMessageLen)
	require.Len(t, chunks, 2)
	for _, c := range chunks {
		assert.True(t, utf8.ValidString(c))
		assert.LessOrEqual(t, len(c), maxMessageLen)
	}
	assert.Equal(t, msg, strings.Join(chunks, ""))
}

func TestGuildOnlyActions(t *testing.T) {
	d := New(Config{})
	dm := &domain.InboundMessage{ID: "3", ChannelID: "2", Author: domain.Author{ID: "42"}}

	err := d.TimeoutAuthor(context.Background(), dm, time.Hour, "x")
	assert.True(t, errors.Is(err, platform.ErrUnsupported))
	err = d.AddRoleToAuthor(context.Background(), dm, "muted")
	assert.True(t, errors.Is(err, platform.ErrUnsupported))

	assert.Error(t, d.React(context.Background(), dm, "✅"), "not connected")
}

func TestWatched(t *testing.T) {
	d := New(Config{GuildID: "1"})
	assert.True(t, d.watched("1"))
	assert.True(t, d.watched(""), "direct messages")
	assert.False(t, d.watched("2"))
	assert.True(t, New(Config{}).watched("2"))
}
