package events

import (
	"context"
	"sync"
)

// LocalBus is an in-process Publisher and Subscriber for single-process
// runs without Redis. Handlers are called synchronously in Publish.
type LocalBus struct {
	mu       sync.RWMutex
	handlers map[string][]func(Event)
}

func NewLocalBus() *LocalBus {
	return &LocalBus{handlers: make(map[string][]func(Event))}
}

func (b *LocalBus) Publish(ctx context.Context, stream string, event Event) error {
	b.mu.RLock()
	hs := append(([]func(Event))(nil), b.handlers[stream]...)
	b.mu.RUnlock()

	for _, h := range hs {
		if h != nil {
			h(event)
		}
	}
	return nil
}

func (b *LocalBus) Subscribe(ctx context.Context, stream string, handler func(Event)) error {
	b.mu.Lock()
	b.handlers[stream] = append(b.handlers[stream], handler)
	idx := len(b.handlers[stream]) - 1
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		defer b.mu.Unlock()
		// nil out instead of removing so other indexes stay valid
		if hs := b.handlers[stream]; idx < len(hs) {
			hs[idx] = nil
		}
	}()
	return nil
}
