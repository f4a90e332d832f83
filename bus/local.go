package bus

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/alphadose/haxmap"
)

type localBus struct {
	windows *haxmap.Map[string, *localWindow]
	closed  atomic.Bool
}

// Local returns an in-process bus. Values are delivered as-is, without being
// re-encoded, so senders must not mutate a payload after posting it.
func Local() Bus {
	return &localBus{
		windows: haxmap.New[string, *localWindow](),
	}
}

func (b *localBus) Window(ctx context.Context, id string) (Window, error) {
	return b.window(id, nil)
}

func (b *localBus) Frame(ctx context.Context, id string, parent Target) (Window, error) {
	return b.window(id, parent)
}

func (b *localBus) window(id string, parent Target) (Window, error) {
	if b.closed.Load() {
		return nil, ErrBusClosed
	}
	w, _ := b.windows.GetOrCompute(id, func() *localWindow {
		return &localWindow{
			id:        id,
			parent:    parent,
			listeners: newListenerSet(),
			wake:      make(chan struct{}, 1),
			done:      make(chan struct{}),
			onClose:   func() { b.windows.Del(id) },
		}
	})
	return w, nil
}

func (b *localBus) Close() error {
	if !b.closed.CompareAndSwap(false, true) {
		return nil
	}
	var open []*localWindow
	b.windows.ForEach(func(_ string, w *localWindow) bool {
		open = append(open, w)
		return true
	})
	for _, w := range open {
		_ = w.Close()
	}
	return nil
}

// localWindow queues posted messages without bound and drains them from a
// single goroutine, so a post never blocks and never runs a handler inline.
type localWindow struct {
	id        string
	parent    Target
	listeners *listenerSet

	mu     sync.Mutex
	queue  []Message
	closed bool

	wake      chan struct{}
	done      chan struct{}
	startOnce sync.Once
	closeOnce sync.Once
	onClose   func()
}

func (w *localWindow) ID() string {
	return w.id
}

func (w *localWindow) Parent() Target {
	return w.parent
}

func (w *localWindow) PostMessage(ctx context.Context, data any, source Target) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return ErrWindowClosed
	}
	w.queue = append(w.queue, Message{Data: data, Source: source})
	w.mu.Unlock()

	w.start()
	select {
	case w.wake <- struct{}{}:
	default:
	}
	return nil
}

func (w *localWindow) Listen(ctx context.Context, handler Handler) (Subscription, error) {
	w.mu.Lock()
	closed := w.closed
	w.mu.Unlock()
	if closed {
		return nil, ErrWindowClosed
	}
	sub, err := w.listeners.add(ctx, handler)
	if err != nil {
		return nil, err
	}
	w.start()
	return sub, nil
}

func (w *localWindow) Close() error {
	w.closeOnce.Do(func() {
		w.mu.Lock()
		w.closed = true
		w.queue = nil
		w.mu.Unlock()
		w.listeners.clear()
		close(w.done)
		if w.onClose != nil {
			w.onClose()
		}
	})
	return nil
}

func (w *localWindow) start() {
	w.startOnce.Do(func() { go w.run() })
}

func (w *localWindow) run() {
	for {
		select {
		case <-w.done:
			return
		case <-w.wake:
		}
		for {
			msg, ok := w.next()
			if !ok {
				break
			}
			w.listeners.dispatch(msg)
		}
	}
}

func (w *localWindow) next() (Message, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed || len(w.queue) == 0 {
		return Message{}, false
	}
	msg := w.queue[0]
	w.queue[0] = Message{}
	w.queue = w.queue[1:]
	return msg, true
}
