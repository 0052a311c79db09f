package bus

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

// sendQueueSize bounds how many outbound messages Emit can queue ahead of
// writeLoop before it reports backpressure to the caller instead of
// blocking it, the same non-blocking-submit shape as
// other_examples' TTSAudioQueue.AddText.
const sendQueueSize = 64

// WebSocketBus connects to an external message bus over coder/websocket,
// generalized from pkg/providers/tts/lokutor.go's single-stream dial into a
// full-duplex pub/sub: every inbound message is dispatched to subscribers of
// its Type, and Emit queues outbound messages for a dedicated writer
// goroutine rather than writing the connection inline, so a caller on
// VoiceLoop's dispatch goroutine never blocks on network I/O.
type WebSocketBus struct {
	conn *websocket.Conn

	mu       sync.RWMutex
	handlers map[string][]*handlerEntry
	nextID   uint64

	sendQueue chan Message

	cancel   context.CancelFunc
	done     chan struct{}
	sendDone chan struct{}
}

func newWebSocketBus(ctx context.Context, addr string) (*WebSocketBus, error) {
	conn, _, err := websocket.Dial(ctx, addr, nil)
	if err != nil {
		return nil, fmt.Errorf("bus: failed to dial %s: %w", addr, err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	b := &WebSocketBus{
		conn:      conn,
		handlers:  make(map[string][]*handlerEntry),
		sendQueue: make(chan Message, sendQueueSize),
		cancel:    cancel,
		done:      make(chan struct{}),
		sendDone:  make(chan struct{}),
	}
	go b.readLoop(runCtx)
	go b.writeLoop(runCtx)
	return b, nil
}

// writeLoop is the sole writer on conn, draining sendQueue in submission
// order so messages reach the wire in the order Emit was called even
// though Emit itself never blocks on the write.
func (b *WebSocketBus) writeLoop(ctx context.Context) {
	defer close(b.sendDone)
	for {
		select {
		case msg := <-b.sendQueue:
			if err := wsjson.Write(ctx, b.conn, msg); err != nil {
				log.Printf("bus: write %s: %v", msg.Type, err)
			}
		case <-ctx.Done():
			return
		}
	}
}

func (b *WebSocketBus) readLoop(ctx context.Context) {
	defer close(b.done)
	for {
		var msg Message
		if err := wsjson.Read(ctx, b.conn, &msg); err != nil {
			return
		}
		b.dispatch(msg)
	}
}

func (b *WebSocketBus) dispatch(msg Message) {
	b.mu.RLock()
	entries := append([]*handlerEntry(nil), b.handlers[msg.Type]...)
	b.mu.RUnlock()
	for _, e := range entries {
		if err := e.fn(msg); err != nil {
			log.Printf("bus: handler for %s: %v", msg.Type, err)
		}
	}
}

func (b *WebSocketBus) Emit(msg Message) error {
	select {
	case b.sendQueue <- msg:
		return nil
	case <-b.done:
		return fmt.Errorf("bus: connection closed")
	default:
		return fmt.Errorf("bus: send queue full")
	}
}

func (b *WebSocketBus) On(msgType string, handler Handler) func() {
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

func (b *WebSocketBus) Close() error {
	b.cancel()
	<-b.done
	<-b.sendDone
	return b.conn.Close(websocket.StatusNormalClosure, "")
}
