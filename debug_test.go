package framesync

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDebugMode(t *testing.T) {
	tests := []struct {
		name string
		mode DebugMode
		want string
	}{
		{name: "zero value", mode: DebugMode{}, want: "disabled"},
		{name: "disabled", mode: DebugDisabled(), want: "disabled"},
		{name: "log", mode: DebugLog(), want: "log"},
		{name: "function", mode: DebugFunc(func(string) {}), want: "function"},
		{name: "nil function", mode: DebugFunc(nil), want: "disabled"},
		{name: "element", mode: DebugElement(&textSink{}), want: "element"},
		{name: "nil element", mode: DebugElement(nil), want: "disabled"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.mode.String())
		})
	}

	t.Run("unknown kind", func(t *testing.T) {
		assert.Equal(t, "debugKind(9)", debugKind(9).String())
	})
}
