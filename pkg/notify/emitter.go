// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/qiaobaojoe/house-file-courier/pkg/logger"
)

const DefaultQueueSize = 256

// Emitter queues events and delivers them to its publishers from a single
// background goroutine, preserving emission order per publisher.
//
// Notify never blocks: when the queue is full the event is dropped and
// counted. Close stops accepting events, drains the queue and closes every
// publisher.
type Emitter struct {
	publishers []Publisher
	timeout    time.Duration

	mu     sync.RWMutex
	closed bool
	queue  chan Event
	done   chan struct{}
}

// EmitterConfig configures the event emitter.
type EmitterConfig struct {
	// QueueSize bounds pending events (default: 256).
	QueueSize int

	// PublishTimeout bounds a single Publish call (default: 5s).
	PublishTimeout time.Duration
}

// NewEmitter starts an emitter delivering to publishers.
func NewEmitter(cfg EmitterConfig, publishers ...Publisher) *Emitter {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = 5 * time.Second
	}

	e := &Emitter{
		publishers: publishers,
		timeout:    cfg.PublishTimeout,
		queue:      make(chan Event, cfg.QueueSize),
		done:       make(chan struct{}),
	}
	go e.run()
	return e
}

// Publishers returns the names of the configured publishers.
func (e *Emitter) Publishers() []string {
	names := make([]string, 0, len(e.publishers))
	for _, p := range e.publishers {
		names = append(names, p.Name())
	}
	return names
}

// Notify queues ev for delivery.
func (e *Emitter) Notify(ctx context.Context, ev Event) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.closed {
		EventsDroppedTotal.WithLabelValues("closed").Inc()
		return
	}

	select {
	case e.queue <- ev:
		EventsEmittedTotal.WithLabelValues(string(ev.Type)).Inc()
		EventsQueueDepth.Inc()
	default:
		EventsDroppedTotal.WithLabelValues("queue_full").Inc()
		logger.Ctx(ctx).Warn().
			Str("event", string(ev.Type)).
			Str("name", ev.Data.Name).
			Msg("event queue full, dropping event")
	}
}

func (e *Emitter) run() {
	defer close(e.done)

	for ev := range e.queue {
		EventsQueueDepth.Dec()
		e.deliver(ev)
	}
}

func (e *Emitter) deliver(ev Event) {
	data, err := ev.Marshal()
	if err != nil {
		EventsDroppedTotal.WithLabelValues("marshal").Inc()
		logger.Warn().Err(err).Str("event", string(ev.Type)).Msg("failed to marshal event")
		return
	}

	for _, pub := range e.publishers {
		start := time.Now()
		ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
		err := pub.Publish(ctx, ev, data)
		cancel()

		if err != nil {
			EventsDeliveryErrorsTotal.WithLabelValues(pub.Name()).Inc()
			logger.Warn().
				Err(err).
				Str("publisher", pub.Name()).
				Str("event", string(ev.Type)).
				Str("name", ev.Data.Name).
				Msg("failed to publish event")
			continue
		}

		EventsDeliveredTotal.WithLabelValues(pub.Name()).Inc()
		EventsDeliveryDuration.WithLabelValues(pub.Name()).Observe(time.Since(start).Seconds())
		logger.Debug().
			Str("publisher", pub.Name()).
			Str("event", string(ev.Type)).
			Str("id", ev.ID).
			Msg("delivered event")
	}
}

// Close drains pending events and closes all publishers.
func (e *Emitter) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		<-e.done
		return nil
	}
	e.closed = true
	close(e.queue)
	e.mu.Unlock()

	<-e.done

	var errs []error
	for _, pub := range e.publishers {
		if err := pub.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
