package bot

import (
	"context"

	"modbot/internal/bus"
	"modbot/internal/domain"
	"modbot/internal/report"
)

func (b *Bot) HandleMemberJoin(ctx context.Context, m domain.Member) {
	if b.logsCh != "" {
		b.Log(ctx, bus.LogMember, report.Member("Member Joined", report.ColorMember, m))
	}
	b.trigger(ctx, bus.MemberJoinEvent{Member: m})
}

func (b *Bot) HandleMemberLeave(ctx context.Context, m domain.Member) {
	if b.logsCh != "" {
		b.Log(ctx, bus.LogMember, report.Member("Member Left", report.ColorMemberLeft, m))
	}
	b.trigger(ctx, bus.MemberLeaveEvent{Member: m})
}

// HandleMemberUpdate raises mute and unmute when the mute role was toggled
// and logs nickname, username and avatar changes.
func (b *Bot) HandleMemberUpdate(ctx context.Context, old, updated domain.Member) {
	if b.muteRoleID != "" {
		had, has := old.HasRole(b.muteRoleID), updated.HasRole(b.muteRoleID)
		switch {
		case had && !has:
			b.trigger(ctx, bus.UnmuteEvent{Member: updated})
		case !had && has:
			b.trigger(ctx, bus.MuteEvent{Member: updated})
		}
	}

	if b.logsCh != "" {
		for _, r := range memberChanges(old, updated) {
			b.Log(ctx, bus.LogMember, r)
		}
	}

	b.trigger(ctx, bus.MemberUpdateEvent{Old: old, New: updated})
}

func memberChanges(old, updated domain.Member) []report.Report {
	var out []report.Report
	card := func(title string) report.Report {
		return report.Member(title, report.ColorMemberChange, updated)
	}

	if old.Nickname != updated.Nickname {
		title := "Nickname Changed"
		if updated.Nickname == "" {
			title = "Nickname Removed"
		}
		r := card(title)
		r.Description = "Previous Nickname: **" + old.DisplayName() + "**"
		out = append(out, r)
	}
	if old.Username != updated.Username {
		r := card("Username Changed")
		r.Description = "Previous Username: **" + old.Username + "**"
		out = append(out, r)
	}
	if old.AvatarURL != updated.AvatarURL {
		r := card("Avatar Changed")
		r.ImageURL = old.AvatarURL
		out = append(out, r)
	}
	return out
}
