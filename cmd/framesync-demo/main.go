// Command framesync-demo runs a host window with a broker and a number of
// framed clients that share state and exchange events.
//
//	framesync-demo          run the scripted session
//	framesync-demo schema   print the JSON schema of the wire envelope
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/casualjim/framesync"
	"github.com/casualjim/framesync/bus"
	"github.com/casualjim/framesync/envelope"
	"github.com/casualjim/framesync/internal/config"
	"github.com/casualjim/framesync/internal/logging"
	"github.com/casualjim/framesync/pkg/natsx"
	"github.com/casualjim/framesync/pkg/slogx"
	json "github.com/goccy/go-json"
	"github.com/k0kubun/pp/v3"
)

const convergeTimeout = 10 * time.Second

func main() {
	if len(os.Args) > 1 && os.Args[1] == "schema" {
		if err := printSchema(); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if _, err := logging.Setup(os.Stderr, cfg.LogLevel); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	slog.Info("running framesync demo",
		slog.String("transport", string(cfg.Transport)),
		slog.Any("frames", cfg.Frames),
		slog.String("debug", string(cfg.Debug)),
	)
	if err := run(ctx, cfg); err != nil {
		slog.Error("demo failed", slogx.Error(err))
		os.Exit(1)
	}
}

func printSchema() error {
	data, err := json.MarshalIndent(envelope.Schema(), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode schema: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

func newBus(cfg config.Config) (bus.Bus, func(), error) {
	switch cfg.Transport {
	case config.TransportNATS:
		nc, err := natsx.Connect(cfg.NATSURL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to nats: %w", err)
		}
		b := bus.NATS(nc,
			bus.SubjectPrefix(cfg.SubjectPrefix),
			bus.NATSLogger(slog.Default().With(slogx.LoggerName("framesync.bus.nats"))),
		)
		return b, func() {
			_ = b.Close()
			nc.Close()
		}, nil
	default:
		b := bus.Local()
		return b, func() { _ = b.Close() }, nil
	}
}

func debugMode(cfg config.Config, out *console) (framesync.DebugMode, error) {
	switch cfg.Debug {
	case config.DebugNone:
		return framesync.DebugDisabled(), nil
	case config.DebugLog:
		return framesync.DebugLog(), nil
	case config.DebugFunction:
		return framesync.DebugFunc(out.debug), nil
	case config.DebugElement:
		sink, err := newMarkdownSink(out)
		if err != nil {
			return framesync.DebugMode{}, err
		}
		return framesync.DebugElement(sink), nil
	default:
		return framesync.DebugMode{}, fmt.Errorf("unknown debug mode %q", cfg.Debug)
	}
}

func run(ctx context.Context, cfg config.Config) error {
	b, closeBus, err := newBus(cfg)
	if err != nil {
		return err
	}
	defer closeBus()

	out := newConsole(os.Stdout)
	mode, err := debugMode(cfg, out)
	if err != nil {
		return err
	}

	host, err := b.Window(ctx, "host")
	if err != nil {
		return fmt.Errorf("failed to open host window: %w", err)
	}
	broker, err := framesync.NewBroker(ctx, host, framesync.WithDebugMode(mode))
	if err != nil {
		return fmt.Errorf("failed to start broker: %w", err)
	}
	defer broker.Close()

	frames := make([]*frame, 0, len(cfg.Frames))
	for _, name := range cfg.Frames {
		f, err := openFrame(ctx, b, host, name, len(cfg.Frames), out)
		if err != nil {
			return err
		}
		defer f.client.Close()
		frames = append(frames, f)
	}

	for _, f := range frames {
		f.client.Ready(ctx)
	}
	for i, f := range frames {
		f.client.StateChange(ctx, map[string]any{f.client.Name(): i + 1})
	}
	// nothing changes, so nothing is broadcast or reported
	frames[0].client.StateChange(ctx, map[string]any{frames[0].client.Name(): 1})
	frames[0].client.DispatchEvent(ctx, "Greet", map[string]any{"from": frames[0].client.Name()})

	waitCtx, cancel := context.WithTimeout(ctx, convergeTimeout)
	defer cancel()
	for _, f := range frames {
		select {
		case <-f.converged:
		case <-waitCtx.Done():
			return fmt.Errorf("frame %s did not converge: %w", f.client.Name(), waitCtx.Err())
		}
	}

	out.summary(broker.Clients())
	pp.Println(broker.State())
	return nil
}

type frame struct {
	client    *framesync.Client
	converged chan struct{}
}

// openFrame embeds a frame in host and starts a client in it. converged is
// closed once the client has seen a state with a key for every frame.
func openFrame(ctx context.Context, b bus.Bus, host bus.Window, name string, total int, out *console) (*frame, error) {
	window, err := b.Frame(ctx, "frame-"+name, host)
	if err != nil {
		return nil, fmt.Errorf("failed to open frame %s: %w", name, err)
	}

	f := &frame{converged: make(chan struct{})}
	var done bool
	onUpdate := func(state map[string]any, isOwnMessage, isReadyAck bool) {
		out.update(name, state, isOwnMessage, isReadyAck)
		if !done && len(state) == total {
			done = true
			close(f.converged)
		}
	}

	client, err := framesync.NewClient(ctx, window, onUpdate, framesync.ClientName(name))
	if err != nil {
		return nil, fmt.Errorf("failed to start client %s: %w", name, err)
	}
	client.AddEventListener("greet", func(detail any, eventName string, isOwnEvent bool) {
		out.event(name, eventName, detail, isOwnEvent)
	})
	f.client = client
	return f, nil
}
