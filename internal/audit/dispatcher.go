package audit

import (
	"context"
	"sync"
	"sync/atomic"
)

// Handshake event types.
const (
	EventNonceIssued  = "nonce_issued"
	EventAuthSuccess  = "auth_success"
	EventAuthRejected = "auth_rejected"
	EventLogout       = "logout"
	EventRateLimited  = "rate_limited"

	// eventOther buckets drops of types outside the handshake set.
	eventOther = "other"
)

// Config controls dispatcher buffering behavior.
type Config struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// Dispatcher forwards handshake events to a sink from one goroutine.
//
// With DropIfFull set, nonce issuance, rejections and throttle events are
// dropped when the buffer is full. Events that change who a session
// belongs to (auth_success, logout) are never dropped; they wait for room
// until ctx ends.
type Dispatcher struct {
	cfg       Config
	sink      Sink
	ch        chan Event
	done      chan struct{}
	wg        sync.WaitGroup
	drops     map[string]*atomic.Uint64 // fixed at construction
	delivered atomic.Uint64
	closed    atomic.Bool
	closeOnce sync.Once
}

// NewDispatcher returns nil when auditing is disabled; a nil Dispatcher
// accepts and ignores every call.
func NewDispatcher(cfg Config, sink Sink) *Dispatcher {
	if !cfg.Enabled {
		return nil
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
	}
	if sink == nil {
		sink = NoOpSink{}
	}

	d := &Dispatcher{
		cfg:   cfg,
		sink:  sink,
		ch:    make(chan Event, cfg.BufferSize),
		done:  make(chan struct{}),
		drops: make(map[string]*atomic.Uint64, 4),
	}
	for _, kind := range []string{EventNonceIssued, EventAuthRejected, EventRateLimited, eventOther} {
		d.drops[kind] = new(atomic.Uint64)
	}

	d.wg.Add(1)
	go d.run()

	return d
}

func (d *Dispatcher) run() {
	defer d.wg.Done()

	for {
		select {
		case event := <-d.ch:
			d.deliver(event)
		case <-d.done:
			// drain what was accepted before Close
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
	d.sink.Emit(context.Background(), event)
	d.delivered.Add(1)
}

// changesSession reports whether event records a login or logout.
func changesSession(event Event) bool {
	return event.EventType == EventAuthSuccess || event.EventType == EventLogout
}

func (d *Dispatcher) Emit(ctx context.Context, event Event) {
	if d == nil || d.closed.Load() {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if d.cfg.DropIfFull && !changesSession(event) {
		select {
		case d.ch <- event:
		case <-d.done:
		default:
			d.dropCounter(event.EventType).Add(1)
		}
		return
	}

	select {
	case d.ch <- event:
	case <-ctx.Done():
	case <-d.done:
	}
}

func (d *Dispatcher) dropCounter(eventType string) *atomic.Uint64 {
	if c, ok := d.drops[eventType]; ok {
		return c
	}
	return d.drops[eventOther]
}

// Close stops accepting events and waits until buffered ones are delivered.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.closeOnce.Do(func() {
		d.closed.Store(true)
		close(d.done)
		d.wg.Wait()
	})
}

// Dropped is the total across event types.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	var n uint64
	for _, c := range d.drops {
		n += c.Load()
	}
	return n
}

// DroppedByType reports non-zero drops per event type. Types outside the
// handshake set are counted under "other".
func (d *Dispatcher) DroppedByType() map[string]uint64 {
	out := map[string]uint64{}
	if d == nil {
		return out
	}
	for kind, c := range d.drops {
		if n := c.Load(); n > 0 {
			out[kind] = n
		}
	}
	return out
}

func (d *Dispatcher) Delivered() uint64 {
	if d == nil {
		return 0
	}
	return d.delivered.Load()
}
