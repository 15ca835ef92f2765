package events

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ayemaqu/pedrisk/internal/redact"
)

// Sink consumes decision events.
type Sink interface {
	Name() string
	Deliver(context.Context, *Event) error
	Close(context.Context) error
}

// Stats is a point-in-time copy of the emitter counters.
type Stats struct {
	Enqueued    uint64
	Dropped     uint64
	SinkSuccess map[string]uint64
	SinkFailure map[string]uint64
}

type sinkCounters struct {
	success atomic.Uint64
	failure atomic.Uint64
}

// Emitter queues events and delivers them to every sink from a fixed pool of
// workers. Emit never blocks: when the queue is full the event is dropped.
type Emitter struct {
	queue           chan *Event
	sinks           []Sink
	counters        map[string]*sinkCounters
	shutdownTimeout time.Duration

	enqueued atomic.Uint64
	dropped  atomic.Uint64

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// EmitterConfig controls worker and queue sizing.
type EmitterConfig struct {
	QueueSize       int
	Workers         int
	ShutdownTimeout time.Duration
}

// NewEmitter starts the workers.
func NewEmitter(cfg EmitterConfig, sinks []Sink) *Emitter {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1000
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 2 * time.Second
	}

	counters := make(map[string]*sinkCounters, len(sinks))
	for _, s := range sinks {
		counters[s.Name()] = &sinkCounters{}
	}

	em := &Emitter{
		queue:           make(chan *Event, cfg.QueueSize),
		sinks:           sinks,
		counters:        counters,
		shutdownTimeout: cfg.ShutdownTimeout,
	}
	for i := 0; i < cfg.Workers; i++ {
		em.wg.Add(1)
		go em.worker()
	}
	return em
}

// Emit enqueues ev without blocking the caller.
func (e *Emitter) Emit(ev *Event) {
	if e == nil || ev == nil {
		return
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		e.dropped.Add(1)
		return
	}

	select {
	case e.queue <- ev:
		e.enqueued.Add(1)
	default:
		e.dropped.Add(1)
	}
}

// Close stops accepting events and waits up to the shutdown timeout for the
// queue to drain before closing the sinks.
func (e *Emitter) Close(ctx context.Context) {
	if e == nil {
		return
	}
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	close(e.queue)
	e.mu.Unlock()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	if ctx == nil {
		ctx = context.Background()
	}
	waitCtx, cancel := context.WithTimeout(ctx, e.shutdownTimeout)
	defer cancel()

	select {
	case <-done:
	case <-waitCtx.Done():
		redact.Logf("events: shutdown timed out with %d queued", len(e.queue))
	}

	for _, s := range e.sinks {
		if err := s.Close(waitCtx); err != nil {
			redact.Logf("events: sink %s close error: %v", s.Name(), err)
		}
	}
}

// Stats copies the current counters.
func (e *Emitter) Stats() Stats {
	if e == nil {
		return Stats{}
	}
	out := Stats{
		Enqueued:    e.enqueued.Load(),
		Dropped:     e.dropped.Load(),
		SinkSuccess: make(map[string]uint64, len(e.counters)),
		SinkFailure: make(map[string]uint64, len(e.counters)),
	}
	for name, c := range e.counters {
		out.SinkSuccess[name] = c.success.Load()
		out.SinkFailure[name] = c.failure.Load()
	}
	return out
}

func (e *Emitter) worker() {
	defer e.wg.Done()
	for ev := range e.queue {
		e.deliver(ev)
	}
}

func (e *Emitter) deliver(ev *Event) {
	for _, s := range e.sinks {
		c := e.counters[s.Name()]
		if err := s.Deliver(context.Background(), ev); err != nil {
			redact.Logf("events: sink %s failed request_id=%s: %v", s.Name(), ev.RequestID, err)
			c.failure.Add(1)
			continue
		}
		c.success.Add(1)
	}
}
