package bus

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"modbot/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestBus_TriggerInRegistrationOrder(t *testing.T) {
	b := New(testLogger())

	var order []int
	for i := range 3 {
		b.On(KindMute, func(context.Context, Event) error {
			order = append(order, i)
			return nil
		})
	}

	require.NoError(t, b.Trigger(context.Background(), MuteEvent{}))
	assert.Equal(t, []int{0, 1, 2}, order)
}

func TestBus_OnChains(t *testing.T) {
	b := New(testLogger())
	var n int
	h := func(context.Context, Event) error { n++; return nil }

	b.On(KindReady, h).On(KindReady, h)
	require.NoError(t, b.Trigger(context.Background(), ReadyEvent{Platform: "discord"}))
	assert.Equal(t, 2, n)
}

func TestBus_FailingHandlerDoesNotStopOthers(t *testing.T) {
	b := New(testLogger())
	boom := errors.New("boom")

	var ran []string
	b.On(KindLog, func(context.Context, Event) error {
		ran = append(ran, "first")
		return boom
	})
	b.On(KindLog, func(context.Context, Event) error {
		ran = append(ran, "second")
		panic("kaput")
	})
	b.On(KindLog, func(context.Context, Event) error {
		ran = append(ran, "third")
		return nil
	})

	err := b.Trigger(context.Background(), LogEvent{Type: LogMessage})
	assert.Equal(t, []string{"first", "second", "third"}, ran)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "kaput")
}

func TestBus_OnlyMatchingKind(t *testing.T) {
	b := New(testLogger())
	var mutes, unmutes int
	b.OnMute(func(context.Context, MuteEvent) error { mutes++; return nil })
	b.OnUnmute(func(context.Context, UnmuteEvent) error { unmutes++; return nil })

	require.NoError(t, b.Trigger(context.Background(), MuteEvent{}))
	assert.Equal(t, 1, mutes)
	assert.Equal(t, 0, unmutes)
}

func TestBus_NoHandlers(t *testing.T) {
	b := New(testLogger())
	assert.NoError(t, b.Trigger(context.Background(), ReadyEvent{}))
	assert.Error(t, b.Trigger(context.Background(), nil))
}

func TestBus_TypedHelpers(t *testing.T) {
	b := New(testLogger())
	msg := &domain.InboundMessage{ID: "m1"}

	var got ModerationEvent
	b.OnModeration(func(_ context.Context, ev ModerationEvent) error {
		got = ev
		return nil
	})
	var created string
	b.OnMessage(func(_ context.Context, ev MessageCreateEvent) error {
		created = ev.Message.ID
		return nil
	})

	ev := ModerationEvent{Message: msg, Source: domain.KindLink}
	require.NoError(t, b.Trigger(context.Background(), ev))
	require.NoError(t, b.Trigger(context.Background(), MessageCreateEvent{Message: msg}))

	assert.Equal(t, ev, got)
	assert.Equal(t, "m1", created)
}

func TestBus_TypedHelperRejectsPointerPayload(t *testing.T) {
	b := New(testLogger())
	b.OnMute(func(context.Context, MuteEvent) error { return nil })

	err := b.Trigger(context.Background(), &MuteEvent{})
	assert.ErrorContains(t, err, "unexpected payload")
}

func TestBus_OnAnyRunsLast(t *testing.T) {
	b := New(testLogger())
	var order []string
	b.OnAny(func(_ context.Context, ev Event) error {
		order = append(order, "any:"+string(ev.Kind()))
		return nil
	})
	b.OnLog(func(context.Context, LogEvent) error {
		order = append(order, "log")
		return nil
	})

	require.NoError(t, b.Trigger(context.Background(), LogEvent{}))
	assert.Equal(t, []string{"log", "any:log"}, order)
}

func TestBus_RegisterDuringTrigger(t *testing.T) {
	b := New(testLogger())
	var late int32
	b.On(KindReady, func(context.Context, Event) error {
		b.On(KindReady, func(context.Context, Event) error {
			atomic.AddInt32(&late, 1)
			return nil
		})
		return nil
	})

	require.NoError(t, b.Trigger(context.Background(), ReadyEvent{}))
	assert.EqualValues(t, 0, atomic.LoadInt32(&late))

	require.NoError(t, b.Trigger(context.Background(), ReadyEvent{}))
	assert.EqualValues(t, 1, atomic.LoadInt32(&late))
}

func TestBus_UnknownKindPanics(t *testing.T) {
	b := New(testLogger())
	assert.Panics(t, func() {
		b.On(Kind("message.received"), func(context.Context, Event) error { return nil })
	})
	assert.Panics(t, func() { b.On(KindReady, nil) })
}

func TestBus_TriggerAsync(t *testing.T) {
	b := New(testLogger())
	done := make(chan struct{})
	b.OnUnmute(func(context.Context, UnmuteEvent) error {
		close(done)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	b.TriggerAsync(ctx, UnmuteEvent{})
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("async handler did not run")
	}
}

func TestBus_Replay(t *testing.T) {
	b := New(testLogger())
	ctx := context.Background()

	require.NoError(t, b.Trigger(ctx, MuteEvent{}))
	require.NoError(t, b.Trigger(ctx, LogEvent{}))
	require.NoError(t, b.Trigger(ctx, MuteEvent{}))

	assert.Len(t, b.Replay(KindMute, time.Time{}), 2)
	assert.Len(t, b.Replay("", time.Time{}), 3)
	assert.Empty(t, b.Replay("", time.Now().Add(time.Hour)))
}

func TestBus_HistoryLimit(t *testing.T) {
	b := New(testLogger())
	b.maxHistory = 5

	for range 10 {
		require.NoError(t, b.Trigger(context.Background(), ReadyEvent{}))
	}
	assert.Equal(t, 5, b.HistoryLen())
}

func TestKinds_Closed(t *testing.T) {
	assert.Len(t, Kinds(), 14)
	for _, k := range Kinds() {
		assert.True(t, k.Valid(), k)
	}
	assert.False(t, Kind("").Valid())
}

func TestErrorEvent_MarshalJSON(t *testing.T) {
	data, err := ErrorEvent{Platform: "slack", Err: errors.New("socket closed")}.MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `{"platform":"slack","error":"socket closed"}`, string(data))
}
