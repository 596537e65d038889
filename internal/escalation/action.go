// Package escalation decides which enforcement actions a moderation verdict
// calls for.
package escalation

import (
	"fmt"
	"time"

	"modbot/internal/domain"
)

// ActionKind discriminates Action.
type ActionKind int

const (
	ActionReact ActionKind = iota + 1
	ActionDelete
	ActionTimeout
	ActionAddMuteRole
	ActionDirectMessage
	ActionReport
)

func (k ActionKind) String() string {
	switch k {
	case ActionReact:
		return "react"
	case ActionDelete:
		return "delete"
	case ActionTimeout:
		return "timeout"
	case ActionAddMuteRole:
		return "add_mute_role"
	case ActionDirectMessage:
		return "direct_message"
	case ActionReport:
		return "report"
	default:
		return fmt.Sprintf("action(%d)", int(k))
	}
}

// Action is one enforcement step. Only the fields of its Kind are set:
//
//	React          Emoji
//	Delete         -
//	Timeout        Duration, Reason
//	AddMuteRole    RoleID
//	DirectMessage  UserID, Text
//	Report         Title, Categories, AttachmentURL (optional)
type Action struct {
	Kind ActionKind

	Emoji string

	Duration time.Duration
	Reason   string

	RoleID string

	UserID string
	Text   string

	Title         string
	Categories    []domain.Category
	AttachmentURL string
}

// Punitive reports whether the action belongs to the batch of independent
// platform calls issued together for a link violation.
func (a Action) Punitive() bool {
	switch a.Kind {
	case ActionDelete, ActionTimeout, ActionAddMuteRole, ActionDirectMessage:
		return true
	}
	return false
}

func React(emoji string) Action { return Action{Kind: ActionReact, Emoji: emoji} }

func Delete() Action { return Action{Kind: ActionDelete} }

func Timeout(d time.Duration, reason string) Action {
	return Action{Kind: ActionTimeout, Duration: d, Reason: reason}
}

func AddMuteRole(roleID string) Action { return Action{Kind: ActionAddMuteRole, RoleID: roleID} }

func DirectMessage(userID, text string) Action {
	return Action{Kind: ActionDirectMessage, UserID: userID, Text: text}
}

func Report(title string, categories []domain.Category, attachmentURL string) Action {
	return Action{Kind: ActionReport, Title: title, Categories: categories, AttachmentURL: attachmentURL}
}

// Kinds lists the kinds of actions, in order.
func Kinds(actions []Action) []ActionKind {
	kinds := make([]ActionKind, len(actions))
	for i, a := range actions {
		kinds[i] = a.Kind
	}
	return kinds
}
