package audit

import (
	"context"
	"sync"
	"sync/atomic"
)

// Dispatcher decouples engine operations from sink latency. Events are
// queued on a bounded channel and forwarded by a single worker goroutine,
// so a slow or stuck sink never stalls issuance or rotation directly.
type Dispatcher struct {
	sink       Sink
	queue      chan Event
	dropOnFull bool

	stop     chan struct{}
	idle     chan struct{}
	dropped  atomic.Uint64
	stopOnce sync.Once
}

// NewDispatcher starts the forwarding worker. A nil sink is replaced with
// NoOpSink so Emit call sites never need a guard. With dropOnFull set, a
// full queue discards the event and counts it; otherwise Emit blocks until
// the worker drains a slot.
func NewDispatcher(sink Sink, buffer int, dropOnFull bool) *Dispatcher {
	if sink == nil {
		sink = NoOpSink{}
	}
	if buffer <= 0 {
		buffer = 1
	}

	d := &Dispatcher{
		sink:       sink,
		queue:      make(chan Event, buffer),
		dropOnFull: dropOnFull,
		stop:       make(chan struct{}),
		idle:       make(chan struct{}),
	}
	go d.forward()
	return d
}

// forward is the worker loop. On stop it flushes whatever is still queued
// before signalling idle.
func (d *Dispatcher) forward() {
	defer close(d.idle)
	for {
		select {
		case event := <-d.queue:
			d.sink.Emit(context.Background(), event)
		case <-d.stop:
			d.flush()
			return
		}
	}
}

func (d *Dispatcher) flush() {
	for {
		select {
		case event := <-d.queue:
			d.sink.Emit(context.Background(), event)
		default:
			return
		}
	}
}

// Emit queues an event for the worker. After Close it is a no-op.
func (d *Dispatcher) Emit(ctx context.Context, event Event) {
	if d == nil {
		return
	}
	select {
	case <-d.stop:
		return
	default:
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if d.dropOnFull {
		select {
		case d.queue <- event:
		case <-d.stop:
		default:
			d.dropped.Add(1)
		}
		return
	}

	select {
	case d.queue <- event:
	case <-ctx.Done():
	case <-d.stop:
	}
}

// Close stops intake and waits for the worker to flush the queue.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.stopOnce.Do(func() {
		close(d.stop)
		<-d.idle
	})
}

// Dropped reports how many events were discarded on a full queue.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}
