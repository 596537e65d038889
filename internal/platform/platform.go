// Package platform defines the capabilities the moderation pipeline needs
// from a chat platform connection.
package platform

import (
	"context"
	"errors"
	"time"

	"modbot/internal/domain"
	"modbot/internal/report"
)

// ErrUnsupported is returned by adapters for capabilities the platform lacks.
var ErrUnsupported = errors.New("platform: operation not supported")

// Platform is one chat platform connection. Every call is independently
// fallible; callers log failures and carry on.
type Platform interface {
	Name() string

	DeleteMessage(ctx context.Context, msg *domain.InboundMessage) error
	React(ctx context.Context, msg *domain.InboundMessage, emoji string) error
	TimeoutAuthor(ctx context.Context, msg *domain.InboundMessage, d time.Duration, reason string) error
	AddRoleToAuthor(ctx context.Context, msg *domain.InboundMessage, roleID string) error

	SendDirectMessage(ctx context.Context, userID, text string) error
	SendChannelMessage(ctx context.Context, channelID string, reports ...report.Report) error
}
