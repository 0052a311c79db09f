// Package bus implements the pub/sub messaging contract the rest of the
// listener uses to consume commands (mic.mute, sleep, wake_up, ...) and
// emit events (record_begin, wakeword, utterance, ...), generalized from
// pkg/providers/tts/lokutor.go's one-way websocket streaming into a
// bidirectional JSON bus.
package bus

import "context"

// Message is the wire shape for every event on the bus: a dotted type name
// plus an arbitrary JSON-able payload.
type Message struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data"`
}

// Handler receives one message. A non-nil error is logged by the bus and
// does not stop delivery to other handlers.
type Handler func(Message) error

// Bus is the publish/subscribe contract voiceloop and service depend on.
// Implementations: Local (in-process, for tests and embedding) and
// WebSocketBus (coder/websocket transport to an external message bus).
type Bus interface {
	// Emit publishes msg to every subscriber of msg.Type.
	Emit(msg Message) error
	// On registers handler for messages of the given type. Returns an
	// unsubscribe function.
	On(msgType string, handler Handler) (unsubscribe func())
	// Close releases any underlying transport.
	Close() error
}

// Dial connects a WebSocketBus to addr and starts its receive loop. Callers
// should Close the returned Bus when done.
func Dial(ctx context.Context, addr string) (Bus, error) {
	return newWebSocketBus(ctx, addr)
}
