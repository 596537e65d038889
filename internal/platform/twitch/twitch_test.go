package twitch

import (
	"context"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	irc "github.com/gempir/go-twitch-irc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"modbot/internal/bus"
	"modbot/internal/domain"
	"modbot/internal/platform"
	"modbot/internal/report"
)

func TestConvertMessage_Fields(t *testing.T) {
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	m := irc.PrivateMessage{
		User:    irc.User{ID: "1001", Name: "alice", DisplayName: "Alice"},
		ID:      "msg-1",
		RoomID:  "2002",
		Channel: "somechannel",
		Message: "join discord.gg/evil",
		Time:    at,
	}

	msg := ConvertMessage(m)
	require.NotNil(t, msg)
	assert.Equal(t, "twitch", msg.Platform)
	assert.Equal(t, "msg-1", msg.ID)
	assert.Equal(t, "2002", msg.GuildID)
	assert.Equal(t, "somechannel", msg.ChannelID)
	assert.Equal(t, "https://www.twitch.tv/somechannel", msg.URL)
	assert.Equal(t, domain.Author{ID: "1001", Username: "Alice"}, msg.Author)
	assert.Equal(t, "join discord.gg/evil", msg.Text)
	assert.Equal(t, at, msg.Timestamp)
	assert.False(t, msg.CanDelete)
	assert.False(t, msg.CanTimeout)
}

func TestConvertUser_FallsBackToLogin(t *testing.T) {
	assert.Equal(t, "bob", ConvertUser(irc.User{ID: "7", Name: "bob"}).Username)
}

func TestConvertClearChat_Kinds(t *testing.T) {
	ban := convertClearChat(irc.ClearChatMessage{
		Channel:        "somechannel",
		TargetUserID:   "1001",
		TargetUsername: "alice",
	})
	require.NotNil(t, ban)
	assert.Equal(t, bus.MemberBanEvent{
		Platform: "twitch",
		GuildID:  "somechannel",
		User:     domain.Author{ID: "1001", Username: "alice"},
	}, ban)

	assert.Nil(t, convertClearChat(irc.ClearChatMessage{
		Channel:        "somechannel",
		TargetUsername: "alice",
		BanDuration:    600,
	}), "timeouts are not bans")
	assert.Nil(t, convertClearChat(irc.ClearChatMessage{Channel: "somechannel"}), "full chat clear")
}

func TestConvertCleared_Message(t *testing.T) {
	msg := convertCleared(irc.ClearMessage{
		Channel:     "somechannel",
		Login:       "alice",
		TargetMsgID: "msg-9",
		Message:     "spam spam",
	})
	assert.Equal(t, "msg-9", msg.ID)
	assert.Equal(t, "alice", msg.Author.Username)
	assert.Equal(t, "spam spam", msg.Text)
	assert.Equal(t, "somechannel", msg.ChannelID)
}

func TestChatLine_JoinsLines(t *testing.T) {
	assert.Equal(t, "Text Moderation | alice | SPAM: 97.00%", chatLine("Text Moderation\n\n  alice \nSPAM: 97.00%\n"))
	assert.Equal(t, "", chatLine("\n \n"))
}

func TestSplitLine_Boundaries(t *testing.T) {
	assert.Equal(t, []string{"short"}, splitLine("short", 500))
	assert.Equal(t, []string{"aaaa bbbb", "cccc"}, splitLine("aaaa bbbb cccc", 10))
	assert.Equal(t, []string{"éé", "éé", "é"}, splitLine("ééééé", 5))

	text := strings.Repeat("ошибка", 200)
	chunks := splitLine(text, maxChatLen)
	require.Greater(t, len(chunks), 1)
	for _, c := range chunks {
		assert.True(t, utf8.ValidString(c))
		assert.LessOrEqual(t, len(c), maxChatLen)
	}
	assert.Equal(t, text, strings.Join(chunks, ""))
}

func TestNew_NormalizesConfig(t *testing.T) {
	tw := New(Config{Username: "ModBot", Token: "abc", Channels: []string{"#SomeChannel", " ", "other"}})
	assert.Equal(t, "twitch", tw.Name())
	assert.Equal(t, "modbot", tw.username)
	assert.Equal(t, "oauth:abc", tw.token)
	assert.Equal(t, []string{"somechannel", "other"}, tw.channels)

	assert.Equal(t, "oauth:abc", New(Config{Token: "oauth:abc"}).token)
}

func TestActions_Unsupported(t *testing.T) {
	tw := New(Config{Username: "modbot", Token: "abc"})
	ctx := context.Background()
	msg := &domain.InboundMessage{Platform: "twitch", ID: "1", ChannelID: "somechannel"}

	assert.ErrorIs(t, tw.DeleteMessage(ctx, msg), platform.ErrUnsupported)
	assert.ErrorIs(t, tw.React(ctx, msg, "🚫"), platform.ErrUnsupported)
	assert.ErrorIs(t, tw.TimeoutAuthor(ctx, msg, time.Minute, "spam"), platform.ErrUnsupported)
	assert.ErrorIs(t, tw.AddRoleToAuthor(ctx, msg, "muted"), platform.ErrUnsupported)
	assert.ErrorIs(t, tw.SendDirectMessage(ctx, "1001", "hi"), platform.ErrUnsupported)
}

func TestSendChannelMessage_NotConnected(t *testing.T) {
	tw := New(Config{Username: "modbot", Token: "abc"})
	err := tw.SendChannelMessage(context.Background(), "somechannel", report.Report{Title: "Member Left"})
	assert.ErrorContains(t, err, "not connected")

	err = tw.SendChannelMessage(context.Background(), " # ", report.Report{Title: "Member Left"})
	assert.ErrorContains(t, err, "invalid channel")
}
