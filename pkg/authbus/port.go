package authbus

import (
	"context"
	"fmt"
	"sync"
)

// Port is a same-context broadcast transport. Publications reach every other
// attached context's subscribers at least once; they never reach the
// publishing port's own subscribers.
type Port interface {
	// Publish broadcasts raw message bytes to all other contexts.
	Publish(ctx context.Context, data []byte) error

	// Subscribe registers a handler for incoming messages and returns an
	// unsubscribe function. Handlers never receive this port's own
	// publications.
	Subscribe(handler func(data []byte)) (unsubscribe func())

	// Close detaches the port from its transport.
	Close() error
}

// MemoryHub is an in-process broadcast transport. Every Attach call creates
// a new browsing-context analogue; messages published on one port are
// delivered synchronously to the subscribers of every other port.
type MemoryHub struct {
	mu     sync.RWMutex
	ports  map[*MemoryPort]struct{}
	closed bool
}

// NewMemoryHub creates an empty hub.
func NewMemoryHub() *MemoryHub {
	return &MemoryHub{
		ports: make(map[*MemoryPort]struct{}),
	}
}

// Attach creates a new port on the hub. Attaching to a closed hub returns
// an already-closed port: publishing on it errors rather than silently
// going nowhere.
func (h *MemoryHub) Attach() *MemoryPort {
	h.mu.Lock()
	defer h.mu.Unlock()

	p := &MemoryPort{
		hub:      h,
		handlers: make(map[int]func([]byte)),
	}
	if h.closed {
		p.closed = true
		return p
	}
	h.ports[p] = struct{}{}
	return p
}

// Close detaches every port.
func (h *MemoryHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	h.ports = make(map[*MemoryPort]struct{})
}

func (h *MemoryHub) broadcast(from *MemoryPort, data []byte) {
	h.mu.RLock()
	targets := make([]*MemoryPort, 0, len(h.ports))
	for p := range h.ports {
		if p == from {
			// Self-delivery suppression: the publisher's own
			// subscribers never see this message.
			continue
		}
		targets = append(targets, p)
	}
	h.mu.RUnlock()

	for _, p := range targets {
		p.deliver(data)
	}
}

func (h *MemoryHub) detach(p *MemoryPort) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.ports, p)
}

// MemoryPort is a single attached context on a MemoryHub.
type MemoryPort struct {
	hub      *MemoryHub
	mu       sync.Mutex
	handlers map[int]func([]byte)
	nextID   int
	closed   bool
}

// Publish broadcasts to every other port on the hub.
func (p *MemoryPort) Publish(ctx context.Context, data []byte) error {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return fmt.Errorf("publish on closed port")
	}

	p.hub.broadcast(p, data)
	return nil
}

// Subscribe registers a handler and returns its unsubscribe function.
func (p *MemoryPort) Subscribe(handler func(data []byte)) func() {
	p.mu.Lock()
	defer p.mu.Unlock()

	id := p.nextID
	p.nextID++
	p.handlers[id] = handler

	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.handlers, id)
	}
}

// Close detaches the port from the hub.
func (p *MemoryPort) Close() error {
	p.mu.Lock()
	p.closed = true
	p.handlers = make(map[int]func([]byte))
	p.mu.Unlock()

	p.hub.detach(p)
	return nil
}

func (p *MemoryPort) deliver(data []byte) {
	p.mu.Lock()
	handlers := make([]func([]byte), 0, len(p.handlers))
	for _, h := range p.handlers {
		handlers = append(handlers, h)
	}
	p.mu.Unlock()

	for _, h := range handlers {
		h(data)
	}
}
