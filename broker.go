package framesync

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"

	"github.com/casualjim/framesync/bus"
	"github.com/casualjim/framesync/envelope"
	"github.com/casualjim/framesync/internal/registry"
	"github.com/casualjim/framesync/internal/state"
	"github.com/casualjim/framesync/pkg/slogx"
	"github.com/fogfish/opts"
)

// DefaultBrokerName is the sender identity of updates made through Broker.StateChange.
const DefaultBrokerName = "Broker"

var (
	// BrokerName sets the sender identity used for updates made by the host itself.
	BrokerName = opts.ForName[Broker, string]("name")
	// BrokerLogger sets the logger for diagnostics and DebugLog output.
	BrokerLogger = opts.ForName[Broker, *slog.Logger]("logger")
	// WithDebugMode sets the initial debug mode.
	WithDebugMode = opts.ForName[Broker, DebugMode]("debug")
)

// Broker owns the shared state for one host window. It registers clients that
// complete the handshake, merges the fragments they send, broadcasts the
// merged state when it actually changed, and relays events.
//
// A broker handles one message completely, merge, debug output and broadcast,
// before it looks at the next. Debug sinks therefore must not call back into
// the same broker.
type Broker struct {
	name   string
	logger *slog.Logger
	window bus.Window
	debug  DebugMode

	mu      sync.Mutex
	state   *state.State
	clients registry.Registry[bus.Target]

	sub bus.Subscription
}

// NewBroker starts listening on window, normally the top-level window the
// clients' frames are embedded in.
func NewBroker(ctx context.Context, window bus.Window, options ...opts.Option[Broker]) (*Broker, error) {
	if window == nil {
		return nil, ErrNoWindow
	}
	b := &Broker{
		name:    DefaultBrokerName,
		window:  window,
		state:   state.New(),
		clients: registry.New[bus.Target](),
	}
	if err := opts.Apply(b, options); err != nil {
		return nil, err
	}
	if b.logger == nil {
		b.logger = slog.Default().With(slogx.LoggerName("framesync.broker"))
	}
	b.logger = b.logger.With(slogx.Window(window.ID()))

	sub, err := window.Listen(ctx, b.handle)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on window %s: %w", window.ID(), err)
	}
	b.sub = sub
	return b, nil
}

func (b *Broker) Name() string {
	return b.name
}

// StateChange merges update as if it came from a client named after the broker.
func (b *Broker) StateChange(ctx context.Context, update map[string]any) {
	b.updateState(ctx, cloneMap(update), b.name)
}

// SetDebugMode changes where effective state changes are reported. It takes
// effect with the next change.
func (b *Broker) SetDebugMode(mode DebugMode) {
	b.mu.Lock()
	b.debug = mode
	b.mu.Unlock()
}

// State returns a copy of the current state.
func (b *Broker) State() map[string]any {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state.Snapshot()
}

// Clients returns the number of registered client windows. Entries are never
// removed, so windows that went away are still counted.
func (b *Broker) Clients() int {
	return b.clients.Len()
}

// Close stops listening on the window. Registered clients and state are kept.
func (b *Broker) Close() {
	b.sub.Unsubscribe()
}

func (b *Broker) handle(ctx context.Context, msg bus.Message) {
	env, ok := envelope.Decode(msg.Data)
	if !ok {
		return
	}

	switch env.Type {
	case envelope.TypeReady:
		b.register(ctx, msg.Source, env.SourceClientName)
	case envelope.TypeStateChange:
		update, _ := env.State()
		b.updateState(ctx, update, env.SourceClientName)
	case envelope.TypeEvent:
		if env.Broadcast {
			return
		}
		b.relay(ctx, env)
	case envelope.TypeReadyReceived:
		// only seen when a client shares the broker's window
	}
}

func (b *Broker) register(ctx context.Context, source bus.Target, clientName string) {
	if source == nil {
		b.logger.DebugContext(ctx, "ignoring handshake without a source window", slogx.Client(clientName))
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.clients.Add(source.ID(), source) {
		b.logger.DebugContext(ctx, "client registered", slogx.Client(clientName), slog.String("source", source.ID()))
	}
	b.send(ctx, source, envelope.ReadyReceived(b.state.Snapshot()))
}

func (b *Broker) updateState(ctx context.Context, update map[string]any, sourceClientName string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	serialized, changed := b.state.Merge(update)
	if !changed {
		return
	}
	b.logger.DebugContext(ctx, "state updated",
		slogx.Client(sourceClientName),
		slog.Any("keys", slices.Sorted(maps.Keys(update))),
	)
	b.report(ctx, update, serialized, sourceClientName)
	b.broadcast(ctx, func() envelope.Envelope {
		return envelope.StateChange(sourceClientName, b.state.Snapshot())
	})
}

func (b *Broker) relay(ctx context.Context, env envelope.Envelope) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.broadcast(ctx, func() envelope.Envelope {
		relayed := env.Relay()
		relayed.Payload = state.Clone(env.Payload)
		return relayed
	})
}

// report hands the new state to the debug sink. Callers hold b.mu.
func (b *Broker) report(ctx context.Context, update map[string]any, serialized, sourceClientName string) {
	switch b.debug.kind {
	case debugDisabled:
	case debugLog:
		b.logger.InfoContext(ctx, "state updated",
			slogx.Client(sourceClientName),
			slog.Any("update", update),
			slog.String("state", serialized),
		)
	case debugFunc:
		b.debug.fn(serialized)
	case debugElement:
		b.debug.sink.SetText(serialized)
	default:
		panic(fmt.Sprintf("unknown debug mode: %s", b.debug.kind))
	}
}

// broadcast sends a freshly built envelope to every registered client so no
// two recipients share a payload. Callers hold b.mu.
func (b *Broker) broadcast(ctx context.Context, build func() envelope.Envelope) {
	b.clients.Each(func(_ string, target bus.Target) bool {
		b.send(ctx, target, build())
		return true
	})
}

func (b *Broker) send(ctx context.Context, to bus.Target, env envelope.Envelope) {
	if !bus.CanPost(to) {
		b.logger.DebugContext(ctx, "skipping window that cannot receive messages", slog.String("type", string(env.Type)))
		return
	}
	if err := to.(bus.Poster).PostMessage(ctx, env, b.window); err != nil {
		b.logger.DebugContext(ctx, "failed to post message",
			slogx.Error(err),
			slog.String("target", to.ID()),
			slog.String("type", string(env.Type)),
		)
	}
}
