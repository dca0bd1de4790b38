package broadcast

import (
	"time"

	"github.com/shaban/dsphost/meter"
	"github.com/shaban/dsphost/param"
)

// Message types carried over the status socket.
const (
	TypeMeter  = "meter"
	TypeState  = "state"
	TypeParams = "params"
	TypeError  = "error"
)

// Message is the envelope every frame on the socket uses. Payload holds the
// type-specific body.
type Message struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

// StatePayload reports an engine state change.
type StatePayload struct {
	State  string `json:"state"`
	Reason string `json:"reason,omitempty"`
}

// ParamsPayload carries the parameter listing and current values sent to a
// client on connect.
type ParamsPayload struct {
	Specs  []param.Spec       `json:"specs"`
	Values map[string]float32 `json:"values"`
}

// ErrorPayload carries a host-side failure the UI should surface.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func newMessage(msgType string, payload any) Message {
	return Message{Type: msgType, Timestamp: time.Now().UTC(), Payload: payload}
}

// NewMeterMessage wraps a metering frame for broadcast.
func NewMeterMessage(frame meter.Frame) Message {
	return newMessage(TypeMeter, frame)
}

// NewStateMessage wraps an engine state change for broadcast.
func NewStateMessage(state, reason string) Message {
	return newMessage(TypeState, StatePayload{State: state, Reason: reason})
}

// NewParamsMessage wraps the parameter listing for a newly connected client.
func NewParamsMessage(specs []param.Spec, values map[string]float32) Message {
	return newMessage(TypeParams, ParamsPayload{Specs: specs, Values: values})
}

// NewErrorMessage wraps a host failure for broadcast.
func NewErrorMessage(code, message string) Message {
	return newMessage(TypeError, ErrorPayload{Code: code, Message: message})
}
