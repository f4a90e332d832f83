package framesync

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/casualjim/framesync/bus"
	"github.com/fogfish/opts"
	"github.com/stretchr/testify/require"
)

const waitTimeout = 2 * time.Second

type harness struct {
	bus    bus.Bus
	host   bus.Window
	broker *Broker
}

func newHarness(t *testing.T, options ...opts.Option[Broker]) *harness {
	t.Helper()
	ctx := context.Background()

	b := bus.Local()
	t.Cleanup(func() { _ = b.Close() })

	host, err := b.Window(ctx, "host")
	require.NoError(t, err)

	broker, err := NewBroker(ctx, host, options...)
	require.NoError(t, err)
	t.Cleanup(broker.Close)

	return &harness{bus: b, host: host, broker: broker}
}

// client embeds a new frame in the host window and starts a client on it.
func (h *harness) client(t *testing.T, name string) (*Client, *updateRecorder) {
	t.Helper()
	ctx := context.Background()

	frame, err := h.bus.Frame(ctx, "frame-"+name, h.host)
	require.NoError(t, err)

	rec := newUpdateRecorder()
	c, err := NewClient(ctx, frame, rec.record, ClientName(name))
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c, rec
}

// ready completes the handshake for c and returns the broker's reply.
func (h *harness) ready(t *testing.T, c *Client, rec *updateRecorder) update {
	t.Helper()
	c.Ready(context.Background())
	got := rec.next(t)
	require.True(t, got.Ack, "expected a handshake reply")
	return got
}

type update struct {
	Payload map[string]any
	Own     bool
	Ack     bool
}

type updateRecorder struct {
	ch chan update
}

func newUpdateRecorder() *updateRecorder {
	return &updateRecorder{ch: make(chan update, 64)}
}

func (r *updateRecorder) record(payload map[string]any, isOwnMessage, isReadyAck bool) {
	r.ch <- update{Payload: payload, Own: isOwnMessage, Ack: isReadyAck}
}

func (r *updateRecorder) next(t *testing.T) update {
	t.Helper()
	select {
	case u := <-r.ch:
		return u
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for a state update")
		return update{}
	}
}

func (r *updateRecorder) pending() int {
	return len(r.ch)
}

type event struct {
	Detail any
	Name   string
	Own    bool
}

type eventRecorder struct {
	ch chan event
}

func newEventRecorder() *eventRecorder {
	return &eventRecorder{ch: make(chan event, 64)}
}

func (r *eventRecorder) record(detail any, name string, isOwnEvent bool) {
	r.ch <- event{Detail: detail, Name: name, Own: isOwnEvent}
}

func (r *eventRecorder) next(t *testing.T) event {
	t.Helper()
	select {
	case e := <-r.ch:
		return e
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for an event")
		return event{}
	}
}

func (r *eventRecorder) pending() int {
	return len(r.ch)
}

// textSink records the text it was given, like a status element would show.
type textSink struct {
	mu    sync.Mutex
	texts []string
}

func (s *textSink) SetText(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.texts = append(s.texts, text)
}

func (s *textSink) Texts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.texts...)
}

// bareTarget names a window that cannot receive messages.
type bareTarget string

func (b bareTarget) ID() string {
	return string(b)
}
