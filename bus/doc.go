// Package bus is the cross-context message bus that framesync brokers and
// clients talk over. It models the browser's window.postMessage primitive: a
// Window is an isolated execution context, posting to it is fire-and-forget,
// and every listener on the receiving window observes every message.
//
// Design decisions:
//   - Asynchronous delivery: PostMessage queues and returns; the message is
//     handled later by the receiving window's delivery loop
//   - One loop per window: listeners of a window never run concurrently and
//     each message is processed to completion before the next
//   - FIFO per sender/recipient pair, no ordering across senders
//   - Explicit capability check: CanPost tells a sender whether a handle can
//     be delivered to before it tries
//   - Untyped payloads: the bus carries opaque values and leaves framing to
//     the envelope package
//
// Interface hierarchy:
//   - Bus: hands out windows by id
//     └── Window: a Target that can be posted to and listened on
//     └── Subscription: a registered listener
//
// Two transports are provided. Local keeps everything in-process and hands
// values over untouched. NATS maps each window to a subject and encodes
// payloads as JSON, so structured values arrive as maps, slices and float64s.
//
// Example usage:
//
//	b := bus.Local()
//	host, _ := b.Window(ctx, "host")
//	frame, _ := b.Frame(ctx, "frame-1", host)
//
//	sub, err := host.Listen(ctx, func(ctx context.Context, msg bus.Message) {
//	    // msg.Source is the frame that posted
//	})
//	if err != nil {
//	    return err
//	}
//	defer sub.Unsubscribe()
//
//	_ = host.PostMessage(ctx, map[string]any{"hello": "world"}, frame)
package bus
