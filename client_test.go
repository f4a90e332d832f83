package framesync

import (
	"context"
	"regexp"
	"testing"

	"github.com/casualjim/framesync/bus"
	"github.com/casualjim/framesync/envelope"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClient(t *testing.T) {
	t.Run("requires a window", func(t *testing.T) {
		_, err := NewClient(context.Background(), nil, nil)
		require.ErrorIs(t, err, ErrNoWindow)
	})

	t.Run("generates a random name", func(t *testing.T) {
		ctx := context.Background()
		b := bus.Local()
		t.Cleanup(func() { _ = b.Close() })
		w, err := b.Window(ctx, "w")
		require.NoError(t, err)

		first, err := NewClient(ctx, w, nil)
		require.NoError(t, err)
		t.Cleanup(first.Close)
		second, err := NewClient(ctx, w, nil)
		require.NoError(t, err)
		t.Cleanup(second.Close)

		assert.Regexp(t, regexp.MustCompile(`^[0-9a-f]{16}$`), first.Name())
		assert.NotEqual(t, first.Name(), second.Name())
	})

	t.Run("name option", func(t *testing.T) {
		h := newHarness(t)
		c, _ := h.client(t, "sidebar")
		assert.Equal(t, "sidebar", c.Name())
	})

	t.Run("closed window", func(t *testing.T) {
		ctx := context.Background()
		b := bus.Local()
		t.Cleanup(func() { _ = b.Close() })
		w, err := b.Window(ctx, "w")
		require.NoError(t, err)
		require.NoError(t, w.Close())

		_, err = NewClient(ctx, w, nil)
		require.ErrorIs(t, err, bus.ErrWindowClosed)
	})
}

func TestClientStateChange(t *testing.T) {
	t.Run("copies the fragment", func(t *testing.T) {
		ctx := context.Background()
		h := newHarness(t)
		a, rec := h.client(t, "a")
		h.ready(t, a, rec)

		update := map[string]any{"list": []any{"a"}}
		a.StateChange(ctx, update)
		update["list"].([]any)[0] = "changed"

		assert.Equal(t, map[string]any{"list": []any{"a"}}, rec.next(t).Payload)
	})

	t.Run("works without an update callback", func(t *testing.T) {
		ctx := context.Background()
		h := newHarness(t)
		frame, err := h.bus.Frame(ctx, "frame-silent", h.host)
		require.NoError(t, err)
		silent, err := NewClient(ctx, frame, nil, ClientName("silent"))
		require.NoError(t, err)
		t.Cleanup(silent.Close)

		a, rec := h.client(t, "a")
		h.ready(t, a, rec)
		silent.Ready(ctx)
		silent.StateChange(ctx, map[string]any{"x": 1})

		got := rec.next(t)
		assert.False(t, got.Own)
		assert.Equal(t, map[string]any{"x": 1}, got.Payload)
	})

	t.Run("stops receiving after close", func(t *testing.T) {
		ctx := context.Background()
		h := newHarness(t)
		a, recA := h.client(t, "a")
		b, recB := h.client(t, "b")
		h.ready(t, a, recA)
		h.ready(t, b, recB)

		b.Close()
		a.StateChange(ctx, map[string]any{"x": 1})
		recA.next(t)
		a.StateChange(ctx, map[string]any{"x": 2})
		recA.next(t)

		assert.Zero(t, recB.pending())
	})
}

func TestEvents(t *testing.T) {
	t.Run("relays to every client once", func(t *testing.T) {
		ctx := context.Background()
		h := newHarness(t)
		a, recA := h.client(t, "a")
		b, recB := h.client(t, "b")
		c, recC := h.client(t, "c")
		h.ready(t, a, recA)
		h.ready(t, b, recB)
		h.ready(t, c, recC)

		evA, evB := newEventRecorder(), newEventRecorder()
		a.AddEventListener("foo", evA.record)
		a.AddEventListener("done", evA.record)
		b.AddEventListener("FOO", evB.record)
		b.AddEventListener("done", evB.record)

		detail := map[string]any{"id": 7}
		a.DispatchEvent(ctx, "Foo", detail)
		a.DispatchEvent(ctx, "done", nil)

		assert.Equal(t, event{Detail: detail, Name: "foo", Own: true}, evA.next(t))
		assert.Equal(t, event{Name: "done", Own: true}, evA.next(t))
		assert.Equal(t, event{Detail: detail, Name: "foo", Own: false}, evB.next(t))
		assert.Equal(t, event{Name: "done", Own: false}, evB.next(t))

		assert.Zero(t, evA.pending())
		assert.Zero(t, evB.pending())
		assert.Zero(t, recC.pending(), "events are not state updates")
	})

	t.Run("events do not touch state", func(t *testing.T) {
		ctx := context.Background()
		h := newHarness(t)
		a, rec := h.client(t, "a")
		h.ready(t, a, rec)

		ev := newEventRecorder()
		a.AddEventListener("ping", ev.record)
		a.DispatchEvent(ctx, "ping", map[string]any{"x": 1})
		ev.next(t)

		assert.Empty(t, h.broker.State())
		assert.Zero(t, rec.pending())
	})

	t.Run("listeners run in registration order", func(t *testing.T) {
		ctx := context.Background()
		h := newHarness(t)
		a, rec := h.client(t, "a")
		h.ready(t, a, rec)

		order := make(chan string, 3)
		a.AddEventListener("tick", func(any, string, bool) { order <- "first" })
		a.AddEventListener("TICK", func(any, string, bool) { order <- "second" })
		a.AddEventListener("Tick", func(any, string, bool) { order <- "third" })

		ev := newEventRecorder()
		a.AddEventListener("tick", ev.record)
		a.DispatchEvent(ctx, "tick", nil)
		ev.next(t)

		assert.Equal(t, "first", <-order)
		assert.Equal(t, "second", <-order)
		assert.Equal(t, "third", <-order)
	})

	t.Run("the copy sent is detached from the caller", func(t *testing.T) {
		ctx := context.Background()
		h := newHarness(t)
		a, recA := h.client(t, "a")
		h.ready(t, a, recA)

		ev := newEventRecorder()
		a.AddEventListener("edit", ev.record)
		detail := map[string]any{"k": "v"}
		a.DispatchEvent(ctx, "edit", detail)
		detail["k"] = "changed"

		assert.Equal(t, map[string]any{"k": "v"}, ev.next(t).Detail)
	})

	t.Run("relays are not relayed again", func(t *testing.T) {
		ctx := context.Background()
		h := newHarness(t)
		a, rec := h.client(t, "a")
		h.ready(t, a, rec)

		ev := newEventRecorder()
		a.AddEventListener("foo", ev.record)
		a.AddEventListener("done", ev.record)

		require.NoError(t, h.host.PostMessage(ctx, envelope.Event("x", "foo", nil).Relay(), nil))
		a.DispatchEvent(ctx, "done", nil)

		assert.Equal(t, "done", ev.next(t).Name)
		assert.Zero(t, ev.pending())
	})

	t.Run("unregistered clients get nothing", func(t *testing.T) {
		ctx := context.Background()
		h := newHarness(t)
		a, recA := h.client(t, "a")
		b, _ := h.client(t, "b")
		h.ready(t, a, recA)

		evA, evB := newEventRecorder(), newEventRecorder()
		a.AddEventListener("foo", evA.record)
		b.AddEventListener("foo", evB.record)

		b.DispatchEvent(ctx, "foo", 1)
		got := evA.next(t)
		assert.False(t, got.Own)
		assert.Equal(t, 1, got.Detail)
		assert.Zero(t, evB.pending())
	})
}

func TestRemoveEventListener(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	a, rec := h.client(t, "a")
	h.ready(t, a, rec)

	removed, kept := newEventRecorder(), newEventRecorder()
	id := a.AddEventListener("foo", removed.record)
	a.AddEventListener("foo", kept.record)

	a.RemoveEventListener("FOO", id)
	a.RemoveEventListener("foo", id)
	a.RemoveEventListener("foo", ListenerID("never-added"))
	a.RemoveEventListener("bar", id)

	a.DispatchEvent(ctx, "foo", nil)
	kept.next(t)
	assert.Zero(t, removed.pending())

	t.Run("nil listeners are not added", func(t *testing.T) {
		assert.Empty(t, a.AddEventListener("foo", nil))
	})
}

func TestSelfTargeting(t *testing.T) {
	ctx := context.Background()
	b := bus.Local()
	t.Cleanup(func() { _ = b.Close() })

	w, err := b.Window(ctx, "top")
	require.NoError(t, err)

	broker, err := NewBroker(ctx, w)
	require.NoError(t, err)
	t.Cleanup(broker.Close)

	rec := newUpdateRecorder()
	c, err := NewClient(ctx, w, rec.record, ClientName("solo"))
	require.NoError(t, err)
	t.Cleanup(c.Close)

	c.Ready(ctx)
	got := rec.next(t)
	require.True(t, got.Ack)
	assert.Empty(t, got.Payload)
	assert.Equal(t, 1, broker.Clients())

	ev := newEventRecorder()
	c.AddEventListener("ping", ev.record)
	c.DispatchEvent(ctx, "ping", "hi")
	c.DispatchEvent(ctx, "ping", "bye")

	assert.Equal(t, event{Detail: "hi", Name: "ping", Own: true}, ev.next(t))
	assert.Equal(t, event{Detail: "bye", Name: "ping", Own: true}, ev.next(t))
	assert.Zero(t, ev.pending(), "events are delivered once even when the broker shares the window")

	c.StateChange(ctx, map[string]any{"x": 1})
	for {
		u := rec.next(t)
		assert.True(t, u.Own)
		if len(u.Payload) > 0 {
			assert.Equal(t, map[string]any{"x": 1}, u.Payload)
			break
		}
	}
	assert.Equal(t, map[string]any{"x": 1}, broker.State())
}
