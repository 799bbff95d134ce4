// Package batcher accumulates interaction events and ships them to the
// collector in batches, on a size threshold and on a fixed interval.
package batcher

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/shehryarbajwa/pagetrack/internal/clock"
	"github.com/shehryarbajwa/pagetrack/pkg/models"
)

var (
	// ErrFlushInProgress is returned when another flush is still waiting
	// for the collector. The queue is untouched; the next trigger retries.
	ErrFlushInProgress = errors.New("batcher: flush already in progress")

	// ErrRejected is returned when the collector answered success=false
	ErrRejected = errors.New("batcher: collector rejected batch")
)

// Sender delivers one batch to the collector
type Sender interface {
	LogEvents(ctx context.Context, batch models.EventBatch) (*models.LogEventsResponse, error)
}

// Options configures a Batcher
type Options struct {
	MaxBatchSize  int
	FlushInterval time.Duration
}

// Batcher owns the event queue. Events leave the queue only when the
// collector acknowledges the batch they were sent in, or when the session
// ends and Drain hands them to the end-of-session payload.
type Batcher struct {
	mu       sync.Mutex
	queue    []models.Event
	base     uint64 // absolute index of queue[0]
	flushing bool

	sender   Sender
	clock    clock.Clock
	logger   *zap.Logger
	maxBatch int
	interval time.Duration

	started sync.Once
	stopCh  chan struct{}
	stopped sync.Once
	wg      sync.WaitGroup
}

// New creates a Batcher. The periodic flush does not run until Start.
func New(sender Sender, clk clock.Clock, logger *zap.Logger, opts Options) *Batcher {
	return &Batcher{
		sender:   sender,
		clock:    clk,
		logger:   logger,
		maxBatch: opts.MaxBatchSize,
		interval: opts.FlushInterval,
		stopCh:   make(chan struct{}),
	}
}

// Enqueue appends event to the queue. Reaching MaxBatchSize flushes
// synchronously before Enqueue returns.
func (b *Batcher) Enqueue(ctx context.Context, event models.Event) {
	b.Add(event)
	b.FlushIfFull(ctx)
}

// Add appends event without flushing and returns the queue length
func (b *Batcher) Add(event models.Event) int {
	b.mu.Lock()
	b.queue = append(b.queue, event)
	length := len(b.queue)
	b.mu.Unlock()

	b.logger.Debug("logged event",
		zap.String("eventName", event.EventName),
		zap.String("eventTarget", event.EventTarget),
		zap.Int("queued", length),
	)
	return length
}

// FlushIfFull flushes synchronously once the queue holds MaxBatchSize
// events
func (b *Batcher) FlushIfFull(ctx context.Context) {
	if b.maxBatch <= 0 || b.Len() < b.maxBatch {
		return
	}
	if err := b.Flush(ctx); err != nil {
		b.logger.Debug("size-triggered flush failed", zap.Error(err))
	}
}

// Flush sends the whole queue as one batch. It is a no-op on an empty
// queue. On failure the queue is left as it was.
func (b *Batcher) Flush(ctx context.Context) error {
	b.mu.Lock()
	if len(b.queue) == 0 {
		b.mu.Unlock()
		return nil
	}
	if b.flushing {
		b.mu.Unlock()
		return ErrFlushInProgress
	}
	b.flushing = true
	batch := models.NewEventBatch(b.queue)
	end := b.base + uint64(len(b.queue))
	b.mu.Unlock()

	b.logger.Debug("flushing events", zap.Int("count", len(batch.Events)))
	result, err := b.sender.LogEvents(ctx, batch)

	b.mu.Lock()
	defer b.mu.Unlock()
	b.flushing = false

	if err != nil {
		return err
	}
	if result == nil || !result.Success {
		return ErrRejected
	}

	// Drain may already have taken some of the sent events.
	if end > b.base {
		n := int(end - b.base)
		if n > len(b.queue) {
			n = len(b.queue)
		}
		b.queue = b.queue[n:]
		b.base += uint64(n)
	}
	if len(b.queue) == 0 {
		b.queue = nil
	}
	return nil
}

// Drain removes and returns every queued event
func (b *Batcher) Drain() []models.Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	events := b.queue
	b.base += uint64(len(events))
	b.queue = nil
	return events
}

// Len returns the number of queued events
func (b *Batcher) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}

// Start runs the periodic flush until Stop or ctx is done. Only the first
// call starts a loop.
func (b *Batcher) Start(ctx context.Context) {
	if b.interval <= 0 {
		return
	}
	b.started.Do(func() {
		ticker := b.clock.NewTicker(b.interval)

		b.wg.Add(1)
		go func() {
			defer b.wg.Done()
			defer ticker.Stop()

			for {
				select {
				case <-ticker.C:
					if err := b.Flush(ctx); err != nil {
						b.logger.Debug("periodic flush failed", zap.Error(err))
					}
				case <-ctx.Done():
					return
				case <-b.stopCh:
					return
				}
			}
		}()
	})
}

// Stop ends the periodic flush and waits for the loop to exit. Queued
// events stay queued.
func (b *Batcher) Stop() {
	b.stopped.Do(func() { close(b.stopCh) })
	b.wg.Wait()
}
