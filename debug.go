package framesync

import "fmt"

type debugKind int

const (
	debugDisabled debugKind = iota
	debugLog
	debugFunc
	debugElement
)

func (k debugKind) String() string {
	switch k {
	case debugDisabled:
		return "disabled"
	case debugLog:
		return "log"
	case debugFunc:
		return "function"
	case debugElement:
		return "element"
	default:
		return fmt.Sprintf("debugKind(%d)", int(k))
	}
}

// TextSink is anything that displays text, like a status element.
type TextSink interface {
	SetText(text string)
}

// DebugMode selects where a broker reports effective state changes. The zero
// value is disabled.
type DebugMode struct {
	kind debugKind
	fn   func(stateJSON string)
	sink TextSink
}

// DebugDisabled reports nothing.
func DebugDisabled() DebugMode {
	return DebugMode{kind: debugDisabled}
}

// DebugLog writes a "state updated" record to the broker's logger.
func DebugLog() DebugMode {
	return DebugMode{kind: debugLog}
}

// DebugFunc calls fn with the serialized state. A nil fn disables reporting.
func DebugFunc(fn func(stateJSON string)) DebugMode {
	if fn == nil {
		return DebugDisabled()
	}
	return DebugMode{kind: debugFunc, fn: fn}
}

// DebugElement sets the text of sink to the serialized state. A nil sink
// disables reporting.
func DebugElement(sink TextSink) DebugMode {
	if sink == nil {
		return DebugDisabled()
	}
	return DebugMode{kind: debugElement, sink: sink}
}

func (m DebugMode) String() string {
	return m.kind.String()
}
