package slogx

import (
	"log/slog"
)

// Error returns a slog.Attr representing the provided error.
// The attribute key is "error" and the value is the error's message.
//
// Parameters:
//   - err: The error to be converted into a slog.Attr.
//
// Returns:
//   - slog.Attr: An attribute with the key "error" and the error's message as the value.
func Error(err error) slog.Attr {
	return slog.String("error", err.Error())
}

const (
	// KeyLoggerName is the key for the component name attached to a logger.
	KeyLoggerName = "logger"
	// KeyClient is the key for the client identity a record refers to.
	KeyClient = "client"
	// KeyWindow is the key for the bus window a record refers to.
	KeyWindow = "window"
)

// LoggerName creates a slog.Attr with the provided logger name.
// The attribute key is defined by KeyLoggerName.
func LoggerName(name string) slog.Attr {
	return slog.String(KeyLoggerName, name)
}

// Client creates a slog.Attr naming the client a record is about.
func Client(name string) slog.Attr {
	return slog.String(KeyClient, name)
}

// Window creates a slog.Attr naming a bus window. An empty id is logged as "<none>".
func Window(id string) slog.Attr {
	if id == "" {
		id = "<none>"
	}
	return slog.String(KeyWindow, id)
}
