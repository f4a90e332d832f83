package main

import (
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/glamour"
	"github.com/fatih/color"
	json "github.com/goccy/go-json"
)

// console serializes output from the delivery goroutines of all windows.
type console struct {
	mu  sync.Mutex
	out io.Writer
}

func newConsole(out io.Writer) *console {
	return &console{out: out}
}

func (c *console) update(frame string, state map[string]any, isOwnMessage, isReadyAck bool) {
	kind := "update"
	switch {
	case isReadyAck:
		kind = "ready"
	case isOwnMessage:
		kind = "own update"
	}
	c.printf("%s %s %s\n", color.CyanString(frame), color.YellowString(kind), compact(state))
}

func (c *console) event(frame, name string, detail any, isOwnEvent bool) {
	from := "relayed"
	if isOwnEvent {
		from = "own"
	}
	c.printf("%s %s %s %s\n", color.CyanString(frame), color.MagentaString("event "+name), from, compact(detail))
}

func (c *console) debug(stateJSON string) {
	c.printf("%s %s\n", color.GreenString("state"), stateJSON)
}

func (c *console) summary(clients int) {
	c.printf("%s %d registered clients\n", color.GreenString("done"), clients)
}

func (c *console) printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, format, args...)
}

func compact(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}

// markdownSink renders the debug state as a fenced json block, standing in for
// the status element of a page.
type markdownSink struct {
	out      *console
	renderer *glamour.TermRenderer
}

func newMarkdownSink(out *console) (*markdownSink, error) {
	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create markdown renderer: %w", err)
	}
	return &markdownSink{out: out, renderer: renderer}, nil
}

func (s *markdownSink) SetText(text string) {
	rendered, err := s.renderer.Render("```json\n" + text + "\n```\n")
	if err != nil {
		s.out.debug(text)
		return
	}
	s.out.printf("%s", rendered)
}
