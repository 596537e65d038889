package escalation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"modbot/internal/domain"
)

func guildOpts() Options {
	return Options{CanTimeout: true, CanDelete: true, MuteRoleID: "mute", AuthorID: "u1", ChannelID: "c1"}
}

func cats(names ...string) []domain.Category {
	out := make([]domain.Category, len(names))
	for i, n := range names {
		out[i] = domain.Category{Name: n, Confidence: 97.5}
	}
	return out
}

func TestDecide_LinkBlacklist(t *testing.T) {
	cd := &Cooldown{}
	actions := Decide(domain.KindLink, cats(domain.CategoryBlackList), cd, guildOpts())

	assert.Equal(t, []ActionKind{ActionTimeout, ActionAddMuteRole, ActionDelete, ActionReport}, Kinds(actions))
	assert.Equal(t, BlacklistTimeout, actions[0].Duration)
	assert.Equal(t, BlacklistReason, actions[0].Reason)
	assert.Equal(t, "mute", actions[1].RoleID)
	assert.Equal(t, TitleLink, actions[3].Title)
	assert.Equal(t, BlacklistTimeout, cd.Max())
}

func TestDecide_LinkCustomBlacklistWithoutMuteRole(t *testing.T) {
	opts := guildOpts()
	opts.MuteRoleID = ""
	actions := Decide(domain.KindLink, cats(domain.CategoryCustomBlackList), nil, opts)
	assert.Equal(t, []ActionKind{ActionTimeout, ActionDelete, ActionReport}, Kinds(actions))
}

func TestDecide_LinkBlacklistWithoutTimeoutCapability(t *testing.T) {
	opts := guildOpts()
	opts.CanTimeout = false
	actions := Decide(domain.KindLink, cats(domain.CategoryBlackList), nil, opts)

	// deletion never depends on the timeout
	assert.Equal(t, []ActionKind{ActionDelete, ActionReport}, Kinds(actions))
}

func TestDecide_LinkShortener(t *testing.T) {
	cd := &Cooldown{}
	actions := Decide(domain.KindLink, cats(domain.CategoryURLShortener), cd, guildOpts())

	assert.Equal(t, []ActionKind{ActionTimeout, ActionDelete, ActionDirectMessage, ActionReport}, Kinds(actions))
	assert.Equal(t, ShortenerTimeout, actions[0].Duration)
	assert.Equal(t, "u1", actions[2].UserID)
	assert.Equal(t, "Your message in <#c1> was deleted because it contained a shortened URL.", actions[2].Text)
	assert.NotContains(t, Kinds(actions), ActionAddMuteRole)
}

func TestDecide_BlacklistDominatesShortener(t *testing.T) {
	actions := Decide(domain.KindLink, cats(domain.CategoryURLShortener, domain.CategoryBlackList), nil, guildOpts())

	assert.Equal(t, []ActionKind{ActionTimeout, ActionAddMuteRole, ActionDelete, ActionReport}, Kinds(actions))
	assert.Equal(t, BlacklistTimeout, actions[0].Duration)
	assert.NotContains(t, Kinds(actions), ActionDirectMessage)
}

func TestDecide_LinkOtherCategory(t *testing.T) {
	actions := Decide(domain.KindLink, cats("SUSPICIOUS"), nil, guildOpts())
	require.Equal(t, []ActionKind{ActionReact, ActionReport}, Kinds(actions))
	assert.Equal(t, EmojiBlocked, actions[0].Emoji)
}

func TestDecide_LinkClean(t *testing.T) {
	actions := Decide(domain.KindLink, nil, nil, guildOpts())
	require.Len(t, actions, 1)
	assert.Equal(t, React(EmojiApproved), actions[0])
}

func TestDecide_CooldownSuppressesWeakerTimeout(t *testing.T) {
	cd := &Cooldown{}
	first := Decide(domain.KindLink, cats(domain.CategoryBlackList), cd, guildOpts())
	second := Decide(domain.KindLink, cats(domain.CategoryURLShortener), cd, guildOpts())

	assert.Contains(t, Kinds(first), ActionTimeout)
	assert.Equal(t, []ActionKind{ActionDelete, ActionDirectMessage, ActionReport}, Kinds(second))
	assert.Equal(t, BlacklistTimeout, cd.Max())
}

func TestDecide_CooldownSuppressesEqualTimeout(t *testing.T) {
	cd := &Cooldown{}
	Decide(domain.KindLink, cats(domain.CategoryBlackList), cd, guildOpts())
	again := Decide(domain.KindLink, cats(domain.CategoryBlackList), cd, guildOpts())

	// the mute role rides along with the timeout
	assert.Equal(t, []ActionKind{ActionDelete, ActionReport}, Kinds(again))
}

func TestDecide_CooldownAllowsStrongerTimeout(t *testing.T) {
	cd := &Cooldown{}
	Decide(domain.KindLink, cats(domain.CategoryURLShortener), cd, guildOpts())
	stronger := Decide(domain.KindLink, cats(domain.CategoryBlackList), cd, guildOpts())
	assert.Contains(t, Kinds(stronger), ActionTimeout)
}

func TestDecide_ContentReports(t *testing.T) {
	opts := guildOpts()
	opts.AttachmentURL = "https://cdn.test/a.png"

	for source, title := range map[Source]string{
		domain.KindText:  TitleText,
		domain.KindImage: TitleImage,
		domain.KindAudio: TitleAudio,
	} {
		assert.Empty(t, Decide(source, nil, nil, opts), source)

		actions := Decide(source, cats("TOXIC"), nil, opts)
		require.Len(t, actions, 1, source)
		assert.Equal(t, ActionReport, actions[0].Kind)
		assert.Equal(t, title, actions[0].Title)
	}

	img := Decide(domain.KindImage, cats("NSFW"), nil, opts)
	assert.Equal(t, "https://cdn.test/a.png", img[0].AttachmentURL)
}

func TestAction_Punitive(t *testing.T) {
	assert.True(t, Delete().Punitive())
	assert.True(t, Timeout(time.Second, "x").Punitive())
	assert.True(t, AddMuteRole("r").Punitive())
	assert.True(t, DirectMessage("u", "t").Punitive())
	assert.False(t, React(EmojiBlocked).Punitive())
	assert.False(t, Report(TitleLink, nil, "").Punitive())
}
