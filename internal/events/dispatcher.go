package events

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/mwpeters/choretally/internal/clock"
	"github.com/mwpeters/choretally/internal/model"
	"github.com/mwpeters/choretally/internal/store"
)

// Sink receives domain events. Delivery is at-least-once: a sink that has
// already seen an event id must treat a redelivery as a no-op.
type Sink interface {
	Deliver(ev model.Event) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ev model.Event) error

func (f SinkFunc) Deliver(ev model.Event) error { return f(ev) }

const (
	defaultInterval = 2 * time.Second
	dispatchBatch   = 100
)

// Dispatcher drains the durable event outbox and fans each event out to the
// registered sinks. An event is marked delivered only after every sink has
// accepted it, so a crash mid-batch redelivers rather than drops.
type Dispatcher struct {
	mu       sync.RWMutex
	events   *store.EventStore
	sinks    []Sink
	clock    clock.Clock
	logger   *slog.Logger
	interval time.Duration
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewDispatcher creates a dispatcher polling the outbox at a fixed interval.
func NewDispatcher(events *store.EventStore, clk clock.Clock, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		events:   events,
		clock:    clk,
		logger:   logger.With("component", "events"),
		interval: defaultInterval,
	}
}

// AddSink registers a sink. Must be called before Start.
func (d *Dispatcher) AddSink(s Sink) {
	d.mu.Lock()
	d.sinks = append(d.sinks, s)
	d.mu.Unlock()
}

// Start begins the dispatch loop.
func (d *Dispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	ctx, d.cancel = context.WithCancel(ctx)
	d.done = make(chan struct{})
	d.mu.Unlock()

	go func() {
		defer close(d.done)
		ticker := time.NewTicker(d.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := d.DispatchPending(); err != nil {
					d.logger.Error("dispatch failed", "error", err)
				}
			}
		}
	}()
}

// Stop gracefully stops the dispatch loop.
func (d *Dispatcher) Stop() {
	d.mu.RLock()
	cancel := d.cancel
	done := d.done
	d.mu.RUnlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// DispatchPending delivers one batch of undelivered events in append order
// and returns how many were fully delivered. A sink failure stops the batch
// so ordering is preserved on retry.
func (d *Dispatcher) DispatchPending() (int, error) {
	d.mu.RLock()
	sinks := d.sinks
	d.mu.RUnlock()

	pending, err := d.events.ListUndelivered(dispatchBatch)
	if err != nil {
		return 0, err
	}

	delivered := 0
	for _, ev := range pending {
		if err := d.events.RecordAttempt(ev.Seq); err != nil {
			return delivered, err
		}
		if err := d.deliver(sinks, ev); err != nil {
			d.logger.Warn("event delivery failed",
				"seq", ev.Seq,
				"event_id", ev.EventID,
				"kind", ev.Kind,
				"attempts", ev.Attempts+1,
				"error", err)
			return delivered, nil
		}
		if err := d.events.MarkDelivered(ev.Seq, d.clock.Now()); err != nil {
			return delivered, err
		}
		delivered++
	}
	return delivered, nil
}

func (d *Dispatcher) deliver(sinks []Sink, ev model.Event) error {
	for _, s := range sinks {
		if err := s.Deliver(ev); err != nil {
			return err
		}
	}
	return nil
}
