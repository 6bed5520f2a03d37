package audit

import (
	"context"
	"math/bits"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// Config controls dispatcher buffering behavior.
type Config struct {
	Enabled    bool `yaml:"enabled"`
	BufferSize int  `yaml:"buffer_size"`
	DropIfFull bool `yaml:"drop_if_full"`
}

// Dispatcher relays events to a sink on one goroutine so sign-in latency
// never depends on the sink. A nil *Dispatcher is valid and discards
// everything.
type Dispatcher struct {
	dropIfFull bool
	sink       Sink
	logger     *zap.Logger
	queue      chan Event
	stop       chan struct{}
	stopped    sync.WaitGroup
	closeOnce  sync.Once
	closing    atomic.Bool

	delivered atomic.Uint64
	dropped   atomic.Uint64
	panicked  atomic.Uint64
}

// NewDispatcher starts the relay. It returns nil when cfg is disabled.
func NewDispatcher(cfg Config, sink Sink, logger *zap.Logger) *Dispatcher {
	if !cfg.Enabled {
		return nil
	}
	if sink == nil {
		sink = NoOpSink{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	d := &Dispatcher{
		dropIfFull: cfg.DropIfFull,
		sink:       sink,
		logger:     logger,
		queue:      make(chan Event, max(cfg.BufferSize, 1)),
		stop:       make(chan struct{}),
	}
	d.stopped.Add(1)
	go d.relay()
	return d
}

func (d *Dispatcher) relay() {
	defer d.stopped.Done()
	for {
		select {
		case ev := <-d.queue:
			d.deliver(ev)
		case <-d.stop:
			for {
				select {
				case ev := <-d.queue:
					d.deliver(ev)
				default:
					return
				}
			}
		}
	}
}

// deliver isolates the relay from a panicking sink; the event is lost but
// later events still flow.
func (d *Dispatcher) deliver(ev Event) {
	defer func() {
		if r := recover(); r != nil {
			d.panicked.Add(1)
			d.logger.Error("audit sink panicked",
				zap.String("event_type", ev.EventType), zap.Any("panic", r))
		}
	}()
	d.sink.Emit(context.Background(), ev)
	d.delivered.Add(1)
}

// Emit enqueues ev. With DropIfFull a saturated queue drops the event;
// otherwise Emit waits for room until ctx ends or the dispatcher closes.
func (d *Dispatcher) Emit(ctx context.Context, ev Event) {
	if d == nil || d.closing.Load() {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if d.dropIfFull {
		select {
		case d.queue <- ev:
		case <-d.stop:
		default:
			d.drop(ev)
		}
		return
	}

	select {
	case d.queue <- ev:
	case <-ctx.Done():
		d.drop(ev)
	case <-d.stop:
	}
}

// drop counts a lost event and warns on the 1st, 2nd, 4th, 8th... drop.
func (d *Dispatcher) drop(ev Event) {
	n := d.dropped.Add(1)
	if bits.OnesCount64(n) == 1 {
		d.logger.Warn("audit events dropped",
			zap.Uint64("dropped_total", n), zap.String("event_type", ev.EventType))
	}
}

// Close drains queued events into the sink and stops the relay.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.closeOnce.Do(func() {
		d.closing.Store(true)
		close(d.stop)
		d.stopped.Wait()
	})
}

func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}

// Delivered reports how many events reached the sink without panicking.
func (d *Dispatcher) Delivered() uint64 {
	if d == nil {
		return 0
	}
	return d.delivered.Load()
}

func (d *Dispatcher) Panicked() uint64 {
	if d == nil {
		return 0
	}
	return d.panicked.Load()
}
