// Package router decodes event stream frames and fans them out to handlers.
package router

import (
	"log"
	"sync"

	"github.com/xiaot623/gogo/autoqa/internal/protocol"
)

// Handler receives every decoded frame.
type Handler interface {
	HandleMessage(msg protocol.Message)
}

// HandlerFunc adapts a function to a Handler.
type HandlerFunc func(msg protocol.Message)

// HandleMessage calls f(msg).
func (f HandlerFunc) HandleMessage(msg protocol.Message) { f(msg) }

// HandlerID identifies a registration for removal.
type HandlerID uint64

// Logger is the subset of *log.Logger used for diagnostics.
type Logger interface {
	Printf(format string, v ...interface{})
}

type registration struct {
	id      HandlerID
	handler Handler
}

// Router invokes registered handlers in registration order for each frame.
type Router struct {
	mu       sync.Mutex
	nextID   HandlerID
	handlers []registration
	logger   Logger
}

// New creates a router. A nil logger uses the standard logger.
func New(logger Logger) *Router {
	if logger == nil {
		logger = log.Default()
	}
	return &Router{logger: logger}
}

// Add registers h and returns its id.
func (r *Router) Add(h Handler) HandlerID {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	r.handlers = append(r.handlers, registration{id: r.nextID, handler: h})
	return r.nextID
}

// Remove unregisters the handler with the given id. Unknown ids are ignored.
func (r *Router) Remove(id HandlerID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, reg := range r.handlers {
		if reg.id == id {
			r.handlers = append(r.handlers[:i:i], r.handlers[i+1:]...)
			return
		}
	}
}

// Len returns the number of registered handlers.
func (r *Router) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handlers)
}

// Dispatch decodes raw and delivers it to every handler. Frames that fail to
// decode are logged and dropped. Unknown types are delivered as KindUnknown.
func (r *Router) Dispatch(raw []byte) {
	msg, err := protocol.Decode(raw)
	if err != nil {
		r.logger.Printf("WARN: dropping frame: %v", err)
		return
	}

	r.mu.Lock()
	handlers := append([]registration(nil), r.handlers...)
	r.mu.Unlock()

	for _, reg := range handlers {
		r.deliver(reg, msg)
	}
}

func (r *Router) deliver(reg registration, msg protocol.Message) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Printf("ERROR: handler %d panicked on %s frame: %v", reg.id, msg.Type, rec)
		}
	}()
	reg.handler.HandleMessage(msg)
}
