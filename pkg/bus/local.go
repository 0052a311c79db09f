package bus

import (
	"log"
	"sync"
)

// Local is an in-process Bus: Emit dispatches synchronously to every
// registered handler of the message's type. Used for embedding the
// listener in a single process and in tests that don't want a real
// websocket round trip.
type Local struct {
	mu       sync.RWMutex
	handlers map[string][]*handlerEntry
	nextID   uint64
	logger   *log.Logger
}

type handlerEntry struct {
	id uint64
	fn Handler
}

func NewLocal(logger *log.Logger) *Local {
	if logger == nil {
		logger = log.Default()
	}
	return &Local{handlers: make(map[string][]*handlerEntry), logger: logger}
}

func (b *Local) Emit(msg Message) error {
	b.mu.RLock()
	entries := append([]*handlerEntry(nil), b.handlers[msg.Type]...)
	b.mu.RUnlock()

	for _, e := range entries {
		if err := e.fn(msg); err != nil {
			b.logger.Printf("bus: handler for %q returned error: %v", msg.Type, err)
		}
	}
	return nil
}

func (b *Local) On(msgType string, handler Handler) func() {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	entry := &handlerEntry{id: id, fn: handler}
	b.handlers[msgType] = append(b.handlers[msgType], entry)
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		list := b.handlers[msgType]
		for i, e := range list {
			if e.id == id {
				b.handlers[msgType] = append(list[:i], list[i+1:]...)
				return
			}
		}
	}
}

func (b *Local) Close() error { return nil }
