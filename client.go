package framesync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/casualjim/framesync/bus"
	"github.com/casualjim/framesync/envelope"
	"github.com/casualjim/framesync/internal/state"
	"github.com/casualjim/framesync/pkg/slogx"
	"github.com/casualjim/framesync/pkg/uuidx"
	"github.com/fogfish/opts"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

const clientNameLength = 16

// ErrNoWindow is returned when a client or broker is created without a window.
var ErrNoWindow = errors.New("framesync: window is required")

// UpdateFunc receives the state carried by a broadcast or a handshake reply.
// isOwnMessage is true when this client caused the broadcast; isReadyAck is
// true for the broker's reply to Ready.
type UpdateFunc func(payload map[string]any, isOwnMessage, isReadyAck bool)

// EventFunc receives a relayed event. name is lowercase.
type EventFunc func(detail any, name string, isOwnEvent bool)

// ListenerID identifies a registered event listener.
type ListenerID string

var (
	// ClientName sets the client's identity. Without it a random 16 character
	// hex name is generated. Names are not checked for uniqueness.
	ClientName = opts.ForName[Client, string]("name")
	// ClientLogger sets the logger for delivery diagnostics.
	ClientLogger = opts.ForName[Client, *slog.Logger]("logger")
)

// Client takes part in state synchronization from inside a frame. It never
// keeps its own copy of the state: it sends fragments to the broker and
// observes what the broker echoes back.
type Client struct {
	name     string
	logger   *slog.Logger
	window   bus.Window
	onUpdate UpdateFunc

	mu        sync.Mutex
	listeners map[string]*orderedmap.OrderedMap[ListenerID, EventFunc]

	sub bus.Subscription
}

// NewClient starts listening on window. The client stops receiving when ctx
// is done or Close is called.
func NewClient(ctx context.Context, window bus.Window, onUpdate UpdateFunc, options ...opts.Option[Client]) (*Client, error) {
	if window == nil {
		return nil, ErrNoWindow
	}
	c := &Client{
		window:    window,
		onUpdate:  onUpdate,
		listeners: make(map[string]*orderedmap.OrderedMap[ListenerID, EventFunc]),
	}
	if err := opts.Apply(c, options); err != nil {
		return nil, err
	}
	if c.name == "" {
		c.name = uuidx.RandomHex(clientNameLength)
	}
	if c.logger == nil {
		c.logger = slog.Default().With(slogx.LoggerName("framesync.client"))
	}
	c.logger = c.logger.With(slogx.Client(c.name), slogx.Window(window.ID()))

	sub, err := window.Listen(ctx, c.handle)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on window %s: %w", window.ID(), err)
	}
	c.sub = sub
	return c, nil
}

func (c *Client) Name() string {
	return c.name
}

// Ready asks the broker to register this client and send the current state.
// Calling it again re-registers, which the broker treats as a no-op apart
// from sending another snapshot.
func (c *Client) Ready(ctx context.Context) {
	c.post(ctx, envelope.Ready(c.name))
}

// StateChange sends a fragment to be merged into the shared state. The
// fragment is copied, so the caller may reuse it.
func (c *Client) StateChange(ctx context.Context, update map[string]any) {
	c.post(ctx, envelope.StateChange(c.name, cloneMap(update)))
}

// DispatchEvent sends an event through the broker to every registered client,
// this one included.
func (c *Client) DispatchEvent(ctx context.Context, name string, detail any) {
	c.post(ctx, envelope.Event(c.name, name, state.Clone(detail)))
}

// AddEventListener registers fn for events called name, compared without
// regard to case. Listeners run in registration order.
func (c *Client) AddEventListener(name string, fn EventFunc) ListenerID {
	if fn == nil {
		return ""
	}
	key := strings.ToLower(name)
	id := ListenerID(uuidx.NewString())

	c.mu.Lock()
	defer c.mu.Unlock()
	fns, ok := c.listeners[key]
	if !ok {
		fns = orderedmap.New[ListenerID, EventFunc]()
		c.listeners[key] = fns
	}
	fns.Set(id, fn)
	return id
}

// RemoveEventListener unregisters a listener. Unknown ids are ignored.
func (c *Client) RemoveEventListener(name string, id ListenerID) {
	key := strings.ToLower(name)

	c.mu.Lock()
	defer c.mu.Unlock()
	fns, ok := c.listeners[key]
	if !ok {
		return
	}
	fns.Delete(id)
	if fns.Len() == 0 {
		delete(c.listeners, key)
	}
}

// Close stops listening on the window.
func (c *Client) Close() {
	c.sub.Unsubscribe()
}

// brokerTarget is the parent window, or the client's own window when it has
// no parent. The latter only reaches a broker listening on the same window.
func (c *Client) brokerTarget() bus.Target {
	if parent := c.window.Parent(); parent != nil {
		return parent
	}
	return c.window
}

func (c *Client) post(ctx context.Context, env envelope.Envelope) {
	to := c.brokerTarget()
	if !bus.CanPost(to) {
		c.logger.DebugContext(ctx, "broker window cannot receive messages", slog.String("type", string(env.Type)))
		return
	}
	if err := to.(bus.Poster).PostMessage(ctx, env, c.window); err != nil {
		c.logger.DebugContext(ctx, "failed to post message", slogx.Error(err), slog.String("type", string(env.Type)))
	}
}

func (c *Client) handle(ctx context.Context, msg bus.Message) {
	env, ok := envelope.Decode(msg.Data)
	if !ok {
		return
	}

	switch env.Type {
	case envelope.TypeStateChange, envelope.TypeReadyReceived:
		if c.onUpdate == nil {
			return
		}
		payload, _ := env.State()
		c.onUpdate(payload, env.SourceClientName == c.name, env.Type == envelope.TypeReadyReceived)
	case envelope.TypeEvent:
		// only relays reach listeners, so a client sharing the broker's
		// window does not see its own request as well
		if !env.Broadcast {
			return
		}
		c.dispatch(env)
	}
}

func (c *Client) dispatch(env envelope.Envelope) {
	name := strings.ToLower(env.Name)

	c.mu.Lock()
	var fns []EventFunc
	if registered, ok := c.listeners[name]; ok {
		fns = make([]EventFunc, 0, registered.Len())
		for pair := registered.Oldest(); pair != nil; pair = pair.Next() {
			fns = append(fns, pair.Value)
		}
	}
	c.mu.Unlock()

	own := env.SourceClientName == c.name
	for _, fn := range fns {
		fn(env.Payload, name, own)
	}
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	return state.Clone(m).(map[string]any)
}
