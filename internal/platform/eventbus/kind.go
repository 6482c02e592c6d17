package eventbus

import "context"

// Kind names an event and binds it to a payload type P. Publishing or
// subscribing with a Kind[P] only compiles with a P payload or handler.
type Kind[P any] struct {
	name string
}

// NewKind declares an event kind. Kinds are meant to be package-level values.
func NewKind[P any](name string) Kind[P] {
	return Kind[P]{name: name}
}

// String returns the kind's wire name, e.g. "status.create".
func (k Kind[P]) String() string {
	return k.name
}

// Handler consumes one payload. A returned error is logged by the bus and
// never reaches the publisher.
type Handler[P any] func(ctx context.Context, payload P) error

// Cloner is implemented by payloads that hold pointers. The bus hands every
// subscriber its own clone.
type Cloner[P any] interface {
	Clone() P
}
