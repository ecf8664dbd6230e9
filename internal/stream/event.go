package stream

import (
	"github.com/phrazzld/taskrelay/internal/platform/jsoncodec"
)

// Kind identifies the type of a stream event.
type Kind string

const (
	KindText   Kind = "text"
	KindData   Kind = "data"
	KindInfo   Kind = "info"
	KindError  Kind = "error"
	KindBroker Kind = "broker"
	KindEnd    Kind = "end"
)

// Status is the state reported by a status update.
type Status string

const (
	StatusConfirm    Status = "confirm"
	StatusProcessing Status = "processing"
)

// Valid reports whether s may be sent in a status update. Failures and
// completion are reported with errors and the end marker instead.
func (s Status) Valid() bool {
	return s == StatusConfirm || s == StatusProcessing
}

// DefaultUserVisibleMessage is used when an error carries no message meant
// for end users.
const DefaultUserVisibleMessage = "Sorry. An error occurred. Please try again."

// Info is the payload of a status update.
type Info struct {
	Status             Status         `json:"status"`
	SystemMessage      string         `json:"system_message"`
	Metadata           map[string]any `json:"metadata"`
	UserVisibleMessage string         `json:"user_visible_message,omitempty"`
}

// ErrorObject is the payload of an error event.
type ErrorObject struct {
	Message            string `json:"message"`
	Type               string `json:"type"`
	UserVisibleMessage string `json:"user_visible_message"`
	Code               string `json:"code,omitempty"`
	Details            any    `json:"details,omitempty"`
}

// Broker carries a named value for the client to store.
type Broker struct {
	BrokerID string `json:"broker_id"`
	Value    any    `json:"value"`
	Source   string `json:"source,omitempty"`
	SourceID string `json:"source_id,omitempty"`
}

// Event is one unit on a stream. Exactly one payload field is set,
// according to Kind.
type Event struct {
	Kind   Kind
	Text   string
	Data   any
	Info   *Info
	Error  *ErrorObject
	Broker *Broker
}

// Payload returns the wire object for the event.
func (e Event) Payload() map[string]any {
	switch e.Kind {
	case KindText:
		return map[string]any{"text": e.Text}
	case KindData:
		return map[string]any{"data": e.Data}
	case KindInfo:
		return map[string]any{"info": e.Info}
	case KindError:
		return map[string]any{"error": e.Error}
	case KindBroker:
		return map[string]any{"broker": e.Broker}
	default:
		return map[string]any{"end": true}
	}
}

// MarshalJSON encodes the wire object.
func (e Event) MarshalJSON() ([]byte, error) {
	return jsoncodec.Marshal(e.Payload())
}
