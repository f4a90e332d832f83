package bus

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/alphadose/haxmap"
	"github.com/casualjim/framesync/pkg/slogx"
	"github.com/fogfish/opts"
	json "github.com/goccy/go-json"
	"github.com/nats-io/nats.go"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// DefaultSubjectPrefix is prepended to a window id to form its NATS subject.
const DefaultSubjectPrefix = "framesync.window"

var emptyFrame = []byte(`{}`)

var (
	// SubjectPrefix overrides DefaultSubjectPrefix.
	SubjectPrefix = opts.ForName[natsBus, string]("prefix")
	// NATSLogger sets the logger used for frames that cannot be decoded.
	NATSLogger = opts.ForName[natsBus, *slog.Logger]("logger")
)

type natsBus struct {
	client  *nats.Conn
	prefix  string
	logger  *slog.Logger
	windows *haxmap.Map[string, *natsWindow]
	closed  atomic.Bool
}

// NATS returns a bus where every window is a NATS subject. Window ids must be
// valid subject tokens. The connection stays owned by the caller.
func NATS(client *nats.Conn, options ...opts.Option[natsBus]) Bus {
	b := &natsBus{
		client:  client,
		prefix:  DefaultSubjectPrefix,
		windows: haxmap.New[string, *natsWindow](),
	}
	if err := opts.Apply(b, options); err != nil {
		panic(err)
	}
	if b.logger == nil {
		b.logger = slog.Default().With(slogx.LoggerName("framesync.bus.nats"))
	}
	return b
}

func (b *natsBus) Window(ctx context.Context, id string) (Window, error) {
	return b.window(id, nil)
}

func (b *natsBus) Frame(ctx context.Context, id string, parent Target) (Window, error) {
	return b.window(id, parent)
}

func (b *natsBus) window(id string, parent Target) (Window, error) {
	if b.closed.Load() {
		return nil, ErrBusClosed
	}
	w, _ := b.windows.GetOrCompute(id, func() *natsWindow {
		return &natsWindow{
			bus:       b,
			id:        id,
			parent:    parent,
			listeners: newListenerSet(),
		}
	})
	return w, nil
}

func (b *natsBus) Close() error {
	if !b.closed.CompareAndSwap(false, true) {
		return nil
	}
	var open []*natsWindow
	b.windows.ForEach(func(_ string, w *natsWindow) bool {
		open = append(open, w)
		return true
	})
	for _, w := range open {
		_ = w.Close()
	}
	return nil
}

func (b *natsBus) subject(id string) string {
	return b.prefix + "." + id
}

func (b *natsBus) post(ctx context.Context, id string, data any, source Target) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	frame, err := encodeFrame(data, source)
	if err != nil {
		return err
	}
	return b.client.Publish(b.subject(id), frame)
}

// resolve turns a source id read off the wire into a postable handle.
func (b *natsBus) resolve(id string) Target {
	if id == "" {
		return nil
	}
	if w, ok := b.windows.Get(id); ok {
		return w
	}
	return &natsTarget{bus: b, id: id}
}

type natsTarget struct {
	bus *natsBus
	id  string
}

func (t *natsTarget) ID() string {
	return t.id
}

func (t *natsTarget) PostMessage(ctx context.Context, data any, source Target) error {
	return t.bus.post(ctx, t.id, data, source)
}

type natsWindow struct {
	bus       *natsBus
	id        string
	parent    Target
	listeners *listenerSet

	mu     sync.Mutex
	sub    *nats.Subscription
	closed bool
}

func (w *natsWindow) ID() string {
	return w.id
}

func (w *natsWindow) Parent() Target {
	return w.parent
}

func (w *natsWindow) PostMessage(ctx context.Context, data any, source Target) error {
	w.mu.Lock()
	closed := w.closed
	w.mu.Unlock()
	if closed {
		return ErrWindowClosed
	}
	return w.bus.post(ctx, w.id, data, source)
}

func (w *natsWindow) Listen(ctx context.Context, handler Handler) (Subscription, error) {
	if handler == nil {
		return nil, fmt.Errorf("handler is required")
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil, ErrWindowClosed
	}
	if w.sub == nil {
		// nats invokes the callback of one subscription sequentially, which
		// gives each window its single delivery loop.
		nsub, err := w.bus.client.Subscribe(w.bus.subject(w.id), w.receive)
		if err != nil {
			return nil, err
		}
		w.sub = nsub
	}
	return w.listeners.add(ctx, handler)
}

func (w *natsWindow) receive(msg *nats.Msg) {
	data, source, err := decodeFrame(msg.Data)
	if err != nil {
		w.bus.logger.Error("failed to decode frame", slogx.Error(err), slogx.Window(w.id))
		return
	}
	w.listeners.dispatch(Message{Data: data, Source: w.bus.resolve(source)})
}

func (w *natsWindow) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	nsub := w.sub
	w.sub = nil
	w.mu.Unlock()

	w.listeners.clear()
	w.bus.windows.Del(w.id)
	if nsub != nil {
		if err := nsub.Unsubscribe(); err != nil {
			w.bus.logger.Error("failed to unsubscribe", slogx.Error(err), slogx.Window(w.id))
			return err
		}
	}
	return nil
}

func encodeFrame(data any, source Target) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal message data: %w", err)
	}
	frame := emptyFrame
	if source != nil {
		frame, err = sjson.SetBytes(frame, "source", source.ID())
		if err != nil {
			return nil, err
		}
	}
	return sjson.SetRawBytes(frame, "data", raw)
}

func decodeFrame(frame []byte) (any, string, error) {
	if !gjson.ValidBytes(frame) {
		return nil, "", fmt.Errorf("invalid json: %s", frame)
	}
	raw := gjson.GetBytes(frame, "data")
	if !raw.Exists() {
		return nil, "", fmt.Errorf("missing required field 'data'")
	}
	var data any
	if err := json.Unmarshal([]byte(raw.Raw), &data); err != nil {
		return nil, "", fmt.Errorf("invalid data: %w", err)
	}
	return data, gjson.GetBytes(frame, "source").String(), nil
}
