package domain

import "time"

// Member is a user's membership in a guild, workspace or group chat.
type Member struct {
	Platform  string
	GuildID   string
	UserID    string
	Username  string
	Nickname  string
	AvatarURL string
	RoleIDs   []string
	RoleNames []string
	JoinedAt  time.Time
	CreatedAt time.Time
	Bot       bool
}

// HasRole reports whether the member currently holds roleID.
func (m Member) HasRole(roleID string) bool {
	if roleID == "" {
		return false
	}
	for _, id := range m.RoleIDs {
		if id == roleID {
			return true
		}
	}
	return false
}

// DisplayName returns the nickname, falling back to the username.
func (m Member) DisplayName() string {
	if m.Nickname != "" {
		return m.Nickname
	}
	return m.Username
}
