package audit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Recorder accepts events for asynchronous delivery. Implementations must
// never fail the caller: auditing is strictly best-effort.
type Recorder interface {
	Record(ctx context.Context, event Event)
}

// Sink receives events from the dispatcher. Errors are the sink's problem to
// report; the dispatcher logs and moves on.
type Sink interface {
	Emit(ctx context.Context, event Event) error
}

// Dispatcher fans events out to a set of sinks from a single worker
// goroutine behind a buffered channel. Record never blocks the caller: if
// the buffer is full the event is dropped and counted.
type Dispatcher struct {
	sinks   []Sink
	logger  *zap.Logger
	ch      chan Event
	done    chan struct{}
	wg      sync.WaitGroup
	dropped atomic.Uint64
	closed  atomic.Bool
	once    sync.Once
}

// NewDispatcher starts the delivery worker. A buffer below one is bumped
// to a sane minimum.
func NewDispatcher(logger *zap.Logger, buffer int, sinks ...Sink) *Dispatcher {
	if buffer < 1 {
		buffer = 64
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Dispatcher{
		sinks:  sinks,
		logger: logger,
		ch:     make(chan Event, buffer),
		done:   make(chan struct{}),
	}
	d.wg.Add(1)
	go d.run()
	return d
}

// Record enqueues the event for delivery. It stamps OccurredAt when unset
// and returns immediately; a full buffer drops the event.
func (d *Dispatcher) Record(_ context.Context, event Event) {
	if d == nil || d.closed.Load() {
		return
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	select {
	case d.ch <- event:
	default:
		d.dropped.Add(1)
	}
}

// Dropped returns how many events were discarded because the buffer was full.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}

// Close drains the buffer and stops the worker.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.once.Do(func() {
		d.closed.Store(true)
		close(d.done)
		d.wg.Wait()
	})
}

func (d *Dispatcher) run() {
	defer d.wg.Done()
	for {
		select {
		case event := <-d.ch:
			d.deliver(event)
		case <-d.done:
			for {
				select {
				case event := <-d.ch:
					d.deliver(event)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) deliver(event Event) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, sink := range d.sinks {
		if err := sink.Emit(ctx, event); err != nil {
			d.logger.Warn("audit sink emit failed",
				zap.String("event_type", string(event.Type)),
				zap.Error(err),
			)
		}
	}
}

// NopRecorder discards all events.
type NopRecorder struct{}

func (NopRecorder) Record(context.Context, Event) {}
