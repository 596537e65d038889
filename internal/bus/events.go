package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"modbot/internal/domain"
	"modbot/internal/report"
)

// Kind names an event. The set is closed; On panics on anything else.
type Kind string

// Inbound pass-through kinds.
const (
	KindReady         Kind = "ready"
	KindError         Kind = "error"
	KindMessageCreate Kind = "message.create"
	KindMessageUpdate Kind = "message.update"
	KindMessageDelete Kind = "message.delete"
	KindMemberJoin    Kind = "member.join"
	KindMemberUpdate  Kind = "member.update"
	KindMemberLeave   Kind = "member.leave"
	KindMemberBan     Kind = "member.ban"
	KindMemberUnban   Kind = "member.unban"
)

// Kinds raised by the moderation pipeline and the bot.
const (
	KindModeration Kind = "moderation"
	KindMute       Kind = "mute"
	KindUnmute     Kind = "unmute"
	KindLog        Kind = "log"
)

var kinds = []Kind{
	KindReady, KindError,
	KindMessageCreate, KindMessageUpdate, KindMessageDelete,
	KindMemberJoin, KindMemberUpdate, KindMemberLeave, KindMemberBan, KindMemberUnban,
	KindModeration, KindMute, KindUnmute, KindLog,
}

// Kinds returns every event kind.
func Kinds() []Kind { return slices.Clone(kinds) }

// Valid reports whether k belongs to the closed set.
func (k Kind) Valid() bool { return slices.Contains(kinds, k) }

// Event is a payload delivered to handlers.
type Event interface {
	Kind() Kind
}

type ReadyEvent struct {
	Platform string `json:"platform"`
	User     string `json:"user,omitempty"`
}

type ErrorEvent struct {
	Platform string `json:"platform"`
	Err      error  `json:"-"`
}

func (e ErrorEvent) MarshalJSON() ([]byte, error) {
	msg := ""
	if e.Err != nil {
		msg = e.Err.Error()
	}
	return json.Marshal(struct {
		Platform string `json:"platform"`
		Error    string `json:"error"`
	}{e.Platform, msg})
}

type MessageCreateEvent struct {
	Message *domain.InboundMessage `json:"message"`
}

type MessageUpdateEvent struct {
	Old *domain.InboundMessage `json:"old"`
	New *domain.InboundMessage `json:"new"`
}

type MessageDeleteEvent struct {
	Message *domain.InboundMessage `json:"message"`
}

type MemberJoinEvent struct {
	Member domain.Member `json:"member"`
}

type MemberUpdateEvent struct {
	Old domain.Member `json:"old"`
	New domain.Member `json:"new"`
}

type MemberLeaveEvent struct {
	Member domain.Member `json:"member"`
}

type MemberBanEvent struct {
	Platform string        `json:"platform"`
	GuildID  string        `json:"guild_id"`
	User     domain.Author `json:"user"`
}

type MemberUnbanEvent struct {
	Platform string        `json:"platform"`
	GuildID  string        `json:"guild_id"`
	User     domain.Author `json:"user"`
}

// ModerationEvent is raised for every non-empty verdict that produced a report.
type ModerationEvent struct {
	Message    *domain.InboundMessage `json:"message"`
	Source     domain.ContentKind     `json:"source"`
	Categories []domain.Category      `json:"categories"`
	Report     report.Report          `json:"report"`
}

// MuteEvent is raised when a member gains the mute role.
type MuteEvent struct {
	Member domain.Member `json:"member"`
}

// UnmuteEvent is raised when a member loses the mute role.
type UnmuteEvent struct {
	Member domain.Member `json:"member"`
}

// LogType selects where a log entry is delivered.
type LogType string

const (
	LogMessage    LogType = "message"
	LogMember     LogType = "member"
	LogModeration LogType = "moderation"
)

type LogEvent struct {
	Type    LogType         `json:"type"`
	Reports []report.Report `json:"reports"`
}

func (ReadyEvent) Kind() Kind         { return KindReady }
func (ErrorEvent) Kind() Kind         { return KindError }
func (MessageCreateEvent) Kind() Kind { return KindMessageCreate }
func (MessageUpdateEvent) Kind() Kind { return KindMessageUpdate }
func (MessageDeleteEvent) Kind() Kind { return KindMessageDelete }
func (MemberJoinEvent) Kind() Kind    { return KindMemberJoin }
func (MemberUpdateEvent) Kind() Kind  { return KindMemberUpdate }
func (MemberLeaveEvent) Kind() Kind   { return KindMemberLeave }
func (MemberBanEvent) Kind() Kind     { return KindMemberBan }
func (MemberUnbanEvent) Kind() Kind   { return KindMemberUnban }
func (ModerationEvent) Kind() Kind    { return KindModeration }
func (MuteEvent) Kind() Kind          { return KindMute }
func (UnmuteEvent) Kind() Kind        { return KindUnmute }
func (LogEvent) Kind() Kind           { return KindLog }

// Handler reacts to an event. A returned error or a panic is reported but
// never stops the remaining handlers.
type Handler func(ctx context.Context, ev Event) error

// Record is an event as kept in the history buffer.
type Record struct {
	Kind  Kind      `json:"kind"`
	Time  time.Time `json:"time"`
	Event Event     `json:"event"`
}

// Bus is a typed publish/subscribe hub for moderation and lifecycle events.
// Handlers run in registration order. Registering while a trigger is in
// flight is safe; the running trigger keeps its snapshot.
type Bus struct {
	mu         sync.RWMutex
	handlers   map[Kind][]Handler
	any        []Handler
	logger     *slog.Logger
	history    []Record
	maxHistory int
}

// New creates a Bus keeping the last 1000 events for Replay.
func New(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		handlers:   make(map[Kind][]Handler),
		logger:     logger,
		maxHistory: 1000,
	}
}

// On registers h for kind and returns the bus for chaining.
func (b *Bus) On(kind Kind, h Handler) *Bus {
	if !kind.Valid() {
		panic(fmt.Sprintf("bus: unknown event kind %q", kind))
	}
	if h == nil {
		panic("bus: nil handler")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[kind] = append(b.handlers[kind], h)
	return b
}

// OnAny registers h for every kind. It runs after the kind's own handlers.
func (b *Bus) OnAny(h Handler) *Bus {
	if h == nil {
		panic("bus: nil handler")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.any = append(b.any, h)
	return b
}

func (b *Bus) OnModeration(fn func(context.Context, ModerationEvent) error) *Bus {
	return b.On(KindModeration, typed(fn))
}

func (b *Bus) OnMute(fn func(context.Context, MuteEvent) error) *Bus {
	return b.On(KindMute, typed(fn))
}

func (b *Bus) OnUnmute(fn func(context.Context, UnmuteEvent) error) *Bus {
	return b.On(KindUnmute, typed(fn))
}

func (b *Bus) OnLog(fn func(context.Context, LogEvent) error) *Bus {
	return b.On(KindLog, typed(fn))
}

// OnMessage registers fn for newly created messages.
func (b *Bus) OnMessage(fn func(context.Context, MessageCreateEvent) error) *Bus {
	return b.On(KindMessageCreate, typed(fn))
}

func typed[E Event](fn func(context.Context, E) error) Handler {
	return func(ctx context.Context, ev Event) error {
		e, ok := ev.(E)
		if !ok {
			return fmt.Errorf("unexpected payload %T for %s", ev, ev.Kind())
		}
		return fn(ctx, e)
	}
}

// Trigger runs every handler of the event's kind, then the OnAny handlers.
// All of them run even when some fail; the failures are logged and returned
// joined.
func (b *Bus) Trigger(ctx context.Context, ev Event) error {
	if ev == nil {
		return errors.New("bus: nil event")
	}
	kind := ev.Kind()

	b.mu.Lock()
	if len(b.history) >= b.maxHistory {
		b.history = b.history[1:]
	}
	b.history = append(b.history, Record{Kind: kind, Time: time.Now(), Event: ev})
	handlers := make([]Handler, 0, len(b.handlers[kind])+len(b.any))
	handlers = append(handlers, b.handlers[kind]...)
	handlers = append(handlers, b.any...)
	b.mu.Unlock()

	var errs []error
	for i, h := range handlers {
		if err := b.call(ctx, h, ev); err != nil {
			b.logger.Error("event handler failed", "event", kind, "handler", i, "err", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (b *Bus) call(ctx context.Context, h Handler, ev Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h(ctx, ev)
}

// TriggerAsync triggers ev in a new goroutine. Cancelling ctx does not stop
// handlers that already started.
func (b *Bus) TriggerAsync(ctx context.Context, ev Event) {
	ctx = context.WithoutCancel(ctx)
	go func() {
		_ = b.Trigger(ctx, ev)
	}()
}

// Replay returns recorded events of kind since the given time. An empty kind
// matches every event.
func (b *Bus) Replay(kind Kind, since time.Time) []Record {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var result []Record
	for _, r := range b.history {
		if r.Time.Before(since) {
			continue
		}
		if kind == "" || r.Kind == kind {
			result = append(result, r)
		}
	}
	return result
}

// HistoryLen returns the number of events in the history buffer.
func (b *Bus) HistoryLen() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.history)
}
