package bus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/casualjim/framesync/pkg/uuidx"
	"github.com/go-openapi/strfmt"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

type listener struct {
	id      string
	ctx     context.Context
	handler Handler
}

// listenerSet keeps the listeners of one window in registration order.
type listenerSet struct {
	mu    sync.Mutex
	items *orderedmap.OrderedMap[string, *listener]
}

func newListenerSet() *listenerSet {
	return &listenerSet{items: orderedmap.New[string, *listener]()}
}

func (s *listenerSet) add(ctx context.Context, handler Handler) (*subscription, error) {
	if handler == nil {
		return nil, fmt.Errorf("handler is required")
	}
	l := &listener{
		id:      uuidx.NewString(),
		ctx:     ctx,
		handler: handler,
	}
	s.mu.Lock()
	s.items.Set(l.id, l)
	s.mu.Unlock()

	sub := &subscription{id: l.id, onClose: func() { s.remove(l.id) }}
	sub.stop = context.AfterFunc(ctx, sub.close)
	return sub, nil
}

func (s *listenerSet) remove(id string) {
	s.mu.Lock()
	s.items.Delete(id)
	s.mu.Unlock()
}

func (s *listenerSet) clear() {
	s.mu.Lock()
	s.items = orderedmap.New[string, *listener]()
	s.mu.Unlock()
}

func (s *listenerSet) snapshot() []*listener {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*listener, 0, s.items.Len())
	for pair := s.items.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, pair.Value)
	}
	return out
}

// dispatch hands msg to every live listener, one after the other.
func (s *listenerSet) dispatch(msg Message) {
	msg.ReceivedAt = strfmt.DateTime(time.Now())
	for _, l := range s.snapshot() {
		if l.ctx.Err() != nil {
			s.remove(l.id)
			continue
		}
		l.handler(l.ctx, msg)
	}
}

type subscription struct {
	id        string
	closeOnce sync.Once
	onClose   func()
	stop      func() bool
}

func (s *subscription) ID() string {
	return s.id
}

func (s *subscription) Unsubscribe() {
	if s.stop != nil {
		s.stop()
	}
	s.close()
}

func (s *subscription) close() {
	s.closeOnce.Do(func() {
		if s.onClose != nil {
			s.onClose()
		}
	})
}
