package bus

import (
	"context"
	"errors"
	"reflect"

	"github.com/go-openapi/strfmt"
)

var (
	// ErrWindowClosed is returned when posting to or listening on a window that was closed.
	ErrWindowClosed = errors.New("bus: window closed")
	// ErrBusClosed is returned when asking a closed bus for a window.
	ErrBusClosed = errors.New("bus: closed")
)

// Target is an opaque handle to an execution context on the bus.
type Target interface {
	ID() string
}

// Poster is a Target that can receive messages.
type Poster interface {
	Target
	PostMessage(ctx context.Context, data any, source Target) error
}

// CanPost reports whether t can be handed a message. Nil handles, typed nil
// pointers and targets without a delivery capability all report false.
func CanPost(t Target) bool {
	if t == nil {
		return false
	}
	p, ok := t.(Poster)
	if !ok {
		return false
	}
	v := reflect.ValueOf(p)
	switch v.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Func, reflect.Chan, reflect.Interface, reflect.Slice:
		return !v.IsNil()
	}
	return true
}

// Message is a single delivery to a window.
type Message struct {
	Data       any
	Source     Target
	ReceivedAt strfmt.DateTime
}

// Handler processes one message. Handlers for the same window are never
// invoked concurrently.
type Handler func(context.Context, Message)

// Window is one execution context: a host page or an embedded frame.
type Window interface {
	Poster
	// Parent returns the embedding window, or nil for a top-level window.
	Parent() Target
	Listen(context.Context, Handler) (Subscription, error)
	Close() error
}

type Subscription interface {
	ID() string
	Unsubscribe()
}

type Bus interface {
	// Window returns the top-level window with the given id, creating it when needed.
	Window(ctx context.Context, id string) (Window, error)
	// Frame returns the window with the given id embedded in parent, creating it when needed.
	// The parent of an existing window is not changed.
	Frame(ctx context.Context, id string, parent Target) (Window, error)
	Close() error
}
