package signaling

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// HandlerFunc handles one incoming message.
type HandlerFunc func(msg *Message)

// Router dispatches incoming messages to the handler registered for their type.
//
// Each type has at most one handler, registered once when a session is built.
// Run delivers messages one at a time, so a handler never races another.
type Router struct {
	mu       sync.RWMutex
	handlers map[string]HandlerFunc
	log      *slog.Logger
}

// NewRouter creates an empty router. A nil log uses slog.Default().
func NewRouter(log *slog.Logger) *Router {
	if log == nil {
		log = slog.Default()
	}
	return &Router{
		handlers: make(map[string]HandlerFunc),
		log:      log,
	}
}

// Handle registers h for msgType. It panics if msgType already has a handler.
func (r *Router) Handle(msgType string, h HandlerFunc) {
	if h == nil {
		panic("signaling: nil handler for " + msgType)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.handlers[msgType]; ok {
		panic(fmt.Sprintf("signaling: multiple registrations for %q", msgType))
	}
	r.handlers[msgType] = h
}

// Dispatch routes a single message. It reports whether a handler existed.
func (r *Router) Dispatch(msg *Message) bool {
	if msg == nil {
		return false
	}
	r.mu.RLock()
	h, ok := r.handlers[msg.Type]
	r.mu.RUnlock()
	if !ok {
		r.log.Debug("no handler for signaling message", "type", msg.Type)
		return false
	}
	h(msg)
	return true
}

// Run dispatches messages from ch until the channel closes or ctx is done.
// It returns nil when the channel closes.
func (r *Router) Run(ctx context.Context, ch Channel) error {
	incoming := ch.Incoming()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-incoming:
			if !ok {
				return nil
			}
			r.Dispatch(msg)
		}
	}
}
