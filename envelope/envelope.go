package envelope

import (
	"fmt"

	"github.com/casualjim/framesync/pkg/jsonx"
	json "github.com/goccy/go-json"
	"github.com/invopop/jsonschema"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Channel marks a message as framesync traffic on a shared bus.
const Channel = "IframeSync"

// Type tags what an envelope carries.
type Type string

const (
	// TypeReady is a client's handshake request.
	TypeReady Type = "ready"
	// TypeReadyReceived is the broker's handshake reply carrying the full state.
	TypeReadyReceived Type = "readyReceived"
	// TypeStateChange is a state fragment sent to the broker, or the merged
	// state the broker broadcasts back.
	TypeStateChange Type = "stateChange"
	// TypeEvent is an application defined event.
	TypeEvent Type = "event"
)

// Valid reports whether t is one of the known types.
func (t Type) Valid() bool {
	switch t {
	case TypeReady, TypeReadyReceived, TypeStateChange, TypeEvent:
		return true
	}
	return false
}

var channelJSON = []byte(`{"channel":"IframeSync"}`)

// Envelope is one framesync message.
type Envelope struct {
	Channel          string `json:"channel" jsonschema:"enum=IframeSync"`
	Type             Type   `json:"type" jsonschema:"enum=ready,enum=readyReceived,enum=stateChange,enum=event"`
	SourceClientName string `json:"sourceClientName,omitempty"`
	Name             string `json:"name,omitempty"`
	Payload          any    `json:"payload,omitempty"`
	Broadcast        bool   `json:"broadcast,omitempty"`
}

func Ready(source string) Envelope {
	return Envelope{Channel: Channel, Type: TypeReady, SourceClientName: source}
}

// ReadyReceived builds the handshake reply. A nil state is sent as an empty mapping.
func ReadyReceived(state map[string]any) Envelope {
	if state == nil {
		state = map[string]any{}
	}
	return Envelope{Channel: Channel, Type: TypeReadyReceived, Payload: state}
}

func StateChange(source string, payload map[string]any) Envelope {
	return Envelope{Channel: Channel, Type: TypeStateChange, SourceClientName: source, Payload: payload}
}

func Event(source, name string, detail any) Envelope {
	return Envelope{Channel: Channel, Type: TypeEvent, SourceClientName: source, Name: name, Payload: detail}
}

// Relay returns a copy of e marked as rebroadcast by the broker.
func (e Envelope) Relay() Envelope {
	e.Broadcast = true
	return e
}

// State returns the payload of a state carrying envelope.
func (e Envelope) State() (map[string]any, bool) {
	m, ok := e.Payload.(map[string]any)
	return m, ok
}

// Decode extracts an envelope from a value received on the bus. It accepts
// envelopes, maps produced by a JSON decoder and raw JSON. Anything that is not
// well-formed framesync traffic reports false; the bus is shared, so foreign
// messages are expected and are not errors.
func Decode(data any) (Envelope, bool) {
	var env Envelope
	switch v := data.(type) {
	case Envelope:
		env = v
	case *Envelope:
		if v == nil {
			return Envelope{}, false
		}
		env = *v
	case map[string]any:
		var ok bool
		if env, ok = fromMap(v); !ok {
			return Envelope{}, false
		}
	case []byte:
		if err := env.UnmarshalJSON(v); err != nil {
			return Envelope{}, false
		}
	case json.RawMessage:
		if err := env.UnmarshalJSON(v); err != nil {
			return Envelope{}, false
		}
	case string:
		if err := env.UnmarshalJSON([]byte(v)); err != nil {
			return Envelope{}, false
		}
	default:
		return Envelope{}, false
	}
	return env.normalize()
}

func fromMap(m map[string]any) (Envelope, bool) {
	var env Envelope
	var ok bool
	if env.Channel, ok = m["channel"].(string); !ok {
		return env, false
	}
	typ, ok := m["type"].(string)
	if !ok {
		return env, false
	}
	env.Type = Type(typ)
	if env.SourceClientName, ok = optional[string](m, "sourceClientName"); !ok {
		return env, false
	}
	if env.Name, ok = optional[string](m, "name"); !ok {
		return env, false
	}
	if env.Broadcast, ok = optional[bool](m, "broadcast"); !ok {
		return env, false
	}
	env.Payload = m["payload"]
	return env, true
}

// optional reads key from m. A missing or null key yields the zero value; a
// value of another type is rejected.
func optional[T any](m map[string]any, key string) (T, bool) {
	var zero T
	raw, present := m[key]
	if !present || raw == nil {
		return zero, true
	}
	v, ok := raw.(T)
	return v, ok
}

func (e Envelope) normalize() (Envelope, bool) {
	if e.Channel != Channel || !e.Type.Valid() {
		return Envelope{}, false
	}
	switch e.Type {
	case TypeReadyReceived:
		if e.Payload == nil {
			e.Payload = map[string]any{}
		}
		fallthrough
	case TypeStateChange:
		if e.Payload == nil {
			return Envelope{}, false
		}
		state, err := jsonx.ToDynamicJSON(e.Payload)
		if err != nil {
			return Envelope{}, false
		}
		e.Payload = state
	case TypeEvent:
		if e.Name == "" {
			return Envelope{}, false
		}
	}
	return e, true
}

// MarshalJSON implements custom JSON marshaling for Envelope
func (e Envelope) MarshalJSON() ([]byte, error) {
	result := channelJSON

	var err error
	if e.Channel != "" && e.Channel != Channel {
		result, err = sjson.SetBytes(result, "channel", e.Channel)
		if err != nil {
			return nil, err
		}
	}

	result, err = sjson.SetBytes(result, "type", string(e.Type))
	if err != nil {
		return nil, err
	}

	if e.SourceClientName != "" {
		result, err = sjson.SetBytes(result, "sourceClientName", e.SourceClientName)
		if err != nil {
			return nil, err
		}
	}

	if e.Name != "" {
		result, err = sjson.SetBytes(result, "name", e.Name)
		if err != nil {
			return nil, err
		}
	}

	if e.Payload != nil {
		payloadBytes, err := json.Marshal(e.Payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal payload: %w", err)
		}
		result, err = sjson.SetRawBytes(result, "payload", payloadBytes)
		if err != nil {
			return nil, err
		}
	}

	if e.Broadcast {
		result, err = sjson.SetBytes(result, "broadcast", true)
		if err != nil {
			return nil, err
		}
	}
	return result, nil
}

// UnmarshalJSON implements custom JSON unmarshaling for Envelope. It checks
// the shape of the message; Decode applies the protocol rules on top.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	if !gjson.ValidBytes(data) {
		return fmt.Errorf("invalid json: %s", data)
	}

	channel := gjson.GetBytes(data, "channel")
	if channel.Type != gjson.String {
		return fmt.Errorf("missing or invalid field 'channel'")
	}
	msgType := gjson.GetBytes(data, "type")
	if msgType.Type != gjson.String {
		return fmt.Errorf("missing or invalid field 'type'")
	}

	var out Envelope
	out.Channel = channel.String()
	out.Type = Type(msgType.String())

	if source := gjson.GetBytes(data, "sourceClientName"); source.Exists() && source.Type != gjson.Null {
		if source.Type != gjson.String {
			return fmt.Errorf("invalid field 'sourceClientName'")
		}
		out.SourceClientName = source.String()
	}

	if name := gjson.GetBytes(data, "name"); name.Exists() && name.Type != gjson.Null {
		if name.Type != gjson.String {
			return fmt.Errorf("invalid field 'name'")
		}
		out.Name = name.String()
	}

	if broadcast := gjson.GetBytes(data, "broadcast"); broadcast.Exists() && broadcast.Type != gjson.Null {
		if broadcast.Type != gjson.True && broadcast.Type != gjson.False {
			return fmt.Errorf("invalid field 'broadcast'")
		}
		out.Broadcast = broadcast.Bool()
	}

	if payload := gjson.GetBytes(data, "payload"); payload.Exists() {
		if err := json.Unmarshal([]byte(payload.Raw), &out.Payload); err != nil {
			return fmt.Errorf("invalid payload: %w", err)
		}
	}

	*e = out
	return nil
}

// Schema describes the wire format for peers that are not written in Go.
func Schema() *jsonschema.Schema {
	r := &jsonschema.Reflector{
		DoNotReference: true,
	}
	return r.Reflect(&Envelope{})
}
