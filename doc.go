/*
Package framesync keeps a piece of shared state consistent between a host
window and the frames embedded in it, and relays named events between those
frames.

One Broker lives in the host window and owns the state. Every frame runs a
Client, which never holds a copy of the state itself: it sends fragments to the
broker and observes the merged state the broker sends back.

# Basic Usage

	b := bus.Local()
	host, _ := b.Window(ctx, "host")
	frame, _ := b.Frame(ctx, "sidebar", host)

	broker, err := framesync.NewBroker(ctx, host,
		framesync.WithDebugMode(framesync.DebugLog()),
	)
	if err != nil {
		// Handle error
	}

	client, err := framesync.NewClient(ctx, frame,
		func(state map[string]any, isOwnMessage, isReadyAck bool) {
			render(state)
		},
		framesync.ClientName("sidebar"),
	)
	if err != nil {
		// Handle error
	}

	client.Ready(ctx)
	client.StateChange(ctx, map[string]any{"theme": "dark"})

# Protocol

Every message is an envelope (see package envelope) on the "IframeSync"
channel. Anything else found on a window is ignored.

 1. Handshake
    - A client posts ready to its parent window
    - The broker registers the sending window and answers with readyReceived
      carrying the current state
    - Repeating ready does not register the window twice

 2. State
    - Clients post stateChange with a fragment
    - The broker merges the fragment's top-level keys into the state
    - When the serialized state changed, every registered window gets a
      stateChange with the full state and the originating client's name

 3. Events
    - Clients post an event with a name and a detail
    - The broker relays it, marked as broadcast, to every registered window
    - Clients run the listeners registered for the lowercase name, in order

# Debugging

A broker reports every effective change to its DebugMode: nothing, a log
record, a callback or a TextSink. No-op merges are not reported.

# Thread Safety

Broker and Client methods may be called from any goroutine. A broker handles
one message at a time, including the debug report, so debug callbacks must not
call back into the same broker. Update callbacks and event listeners run on
the delivery goroutine of the client's window.

# Transports

Package bus provides the windows. bus.Local delivers in process; bus.NATS maps
every window onto a NATS subject so frames can live in other processes.
*/
package framesync
