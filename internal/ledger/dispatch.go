package ledger

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// dispatchQueueSize bounds how many committed batches may wait for a slow
// notifier. Overflowing batches are dropped; they stay in the journal.
const dispatchQueueSize = 1024

type dispatchItem struct {
	ctx    context.Context
	events []Event
	done   chan struct{} // flush marker when non-nil
}

// dispatcher delivers committed events to the notifier from a single
// goroutine, in commit order, so a slow subscriber never holds the ledger.
type dispatcher struct {
	notifier Notifier
	queue    chan dispatchItem
	stopped  chan struct{}
	log      *zap.Logger

	mu     sync.RWMutex
	closed bool
}

func newDispatcher(n Notifier, log *zap.Logger) *dispatcher {
	d := &dispatcher{
		notifier: n,
		queue:    make(chan dispatchItem, dispatchQueueSize),
		stopped:  make(chan struct{}),
		log:      log,
	}
	go d.run()
	return d
}

func (d *dispatcher) run() {
	defer close(d.stopped)
	for item := range d.queue {
		if item.done != nil {
			close(item.done)
			continue
		}
		d.notifier.Notify(item.ctx, item.events)
	}
}

// enqueue never blocks. Callers hold the ledger mutex, so queue order is
// commit order.
func (d *dispatcher) enqueue(ctx context.Context, events []Event) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return
	}
	select {
	case d.queue <- dispatchItem{ctx: context.WithoutCancel(ctx), events: events}:
	default:
		d.log.Warn("event queue full, dropping notification",
			zap.Int("events", len(events)),
			zap.Int64("first_seq", events[0].Seq),
		)
	}
}

// flush waits until everything enqueued so far has been delivered.
func (d *dispatcher) flush() {
	done := make(chan struct{})
	d.mu.RLock()
	if d.closed {
		d.mu.RUnlock()
		return
	}
	d.queue <- dispatchItem{done: done}
	d.mu.RUnlock()
	<-done
}

func (d *dispatcher) close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()
	<-d.stopped
}
