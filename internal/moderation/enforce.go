package moderation

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"modbot/internal/bus"
	"modbot/internal/domain"
	"modbot/internal/escalation"
	"modbot/internal/platform"
	"modbot/internal/report"
)

// enforce decides and executes the actions for one verdict. msg is the
// message acted upon; view is what reports display.
func (p *Pipeline) enforce(ctx context.Context, msg, view *domain.InboundMessage, source domain.ContentKind, v domain.Verdict, cd *escalation.Cooldown, opts escalation.Options) {
	actions := escalation.Decide(source, v.Categories, cd, opts)
	if len(actions) == 0 {
		return
	}

	ctx, span := otel.Tracer("moderation").Start(ctx, "enforce")
	defer span.End()
	span.SetAttributes(attribute.String("source", string(source)), attribute.Int("actions", len(actions)))

	var batch, rest []escalation.Action
	for _, a := range actions {
		if a.Punitive() {
			batch = append(batch, a)
		} else {
			rest = append(rest, a)
		}
	}

	// The batch actions are independent: all of them are attempted and the
	// reaction and report wait until each has settled.
	var g errgroup.Group
	for _, a := range batch {
		g.Go(func() error {
			return p.execute(ctx, msg, view, source, a)
		})
	}
	_ = g.Wait()

	for _, a := range rest {
		_ = p.execute(ctx, msg, view, source, a)
	}
}

// execute runs a single action. Failures are logged and counted here.
func (p *Pipeline) execute(ctx context.Context, msg, view *domain.InboundMessage, source domain.ContentKind, a escalation.Action) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s panic: %v", a.Kind, r)
		}
		p.metrics.Action(p.platform.Name(), a.Kind.String(), err)
		switch {
		case err == nil:
		case errors.Is(err, platform.ErrUnsupported):
			p.logger.Debug("action not supported", "action", a.Kind, "message", msg.ID)
		default:
			p.logger.Warn("action failed", "action", a.Kind, "message", msg.ID, "author", msg.Author.ID, "err", err)
		}
	}()

	switch a.Kind {
	case escalation.ActionReact:
		return p.platform.React(ctx, msg, a.Emoji)
	case escalation.ActionDelete:
		return p.platform.DeleteMessage(ctx, msg)
	case escalation.ActionTimeout:
		return p.platform.TimeoutAuthor(ctx, msg, a.Duration, a.Reason)
	case escalation.ActionAddMuteRole:
		return p.platform.AddRoleToAuthor(ctx, msg, a.RoleID)
	case escalation.ActionDirectMessage:
		return p.platform.SendDirectMessage(ctx, a.UserID, a.Text)
	case escalation.ActionReport:
		return p.report(ctx, msg, view, source, a)
	}
	return fmt.Errorf("unknown action %s", a.Kind)
}

// report formats the report, triggers the moderation event and hands the
// report to the sink. Listener failures are logged by the bus and do not
// keep the report from the sink.
func (p *Pipeline) report(ctx context.Context, msg, view *domain.InboundMessage, source domain.ContentKind, a escalation.Action) error {
	r := report.Moderation(a.Title, a.Categories, view, a.AttachmentURL)

	if p.bus != nil {
		_ = p.bus.Trigger(ctx, bus.ModerationEvent{
			Message:    msg,
			Source:     source,
			Categories: a.Categories,
			Report:     r,
		})
	}
	if p.sink == nil {
		return nil
	}
	if err := p.sink(ctx, msg, r); err != nil {
		return fmt.Errorf("deliver report: %w", err)
	}
	return nil
}
