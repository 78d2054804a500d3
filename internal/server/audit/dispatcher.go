package audit

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/dmitrijs2005/gophauth/internal/logging"
)

// Dispatcher forwards events to a slow sink on a background goroutine so
// that request handling does not wait on it. When the buffer is full the
// event is dropped and counted.
type Dispatcher struct {
	sink      Sink
	logger    logging.Logger
	ch        chan dispatched
	done      chan struct{}
	wg        sync.WaitGroup
	dropped   atomic.Uint64
	closed    atomic.Bool
	closeOnce sync.Once
}

type dispatched struct {
	ctx context.Context
	e   Event
}

func NewDispatcher(sink Sink, buffer int, l logging.Logger) *Dispatcher {
	if buffer <= 0 {
		buffer = 1
	}
	d := &Dispatcher{
		sink:   sink,
		logger: l.With("module", "audit_dispatcher"),
		ch:     make(chan dispatched, buffer),
		done:   make(chan struct{}),
	}
	d.wg.Add(1)
	go d.run()
	return d
}

func (d *Dispatcher) run() {
	defer d.wg.Done()

	for {
		select {
		case item := <-d.ch:
			d.forward(item)
		case <-d.done:
			for {
				select {
				case item := <-d.ch:
					d.forward(item)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) forward(item dispatched) {
	if err := d.sink.Record(item.ctx, item.e); err != nil {
		d.logger.Error(item.ctx, "audit sink failed", "event", item.e.Type, "error", err)
	}
}

// Record enqueues e. The request context is detached so that a finished
// request does not cancel delivery.
func (d *Dispatcher) Record(ctx context.Context, e Event) error {
	if d.closed.Load() {
		d.dropped.Add(1)
		return nil
	}
	select {
	case d.ch <- dispatched{ctx: context.WithoutCancel(ctx), e: e}:
	default:
		d.dropped.Add(1)
	}
	return nil
}

// Close stops accepting events and delivers what is buffered.
func (d *Dispatcher) Close() {
	d.closeOnce.Do(func() {
		d.closed.Store(true)
		close(d.done)
		d.wg.Wait()
	})
}

func (d *Dispatcher) Dropped() uint64 {
	return d.dropped.Load()
}
