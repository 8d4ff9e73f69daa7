package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/josh-kwaku/custody-ledger/internal/events"
)

type publisher interface {
	Publish(ctx context.Context, event events.TransactionCommitted) error
}

// EventRelay buffers commit notifications and hands them to a publisher on
// a fixed interval. Events are delivered in commit order; a failed publish
// stops the batch and is retried on the next tick.
type EventRelay struct {
	publisher publisher
	logger    *slog.Logger
	interval  time.Duration
	capacity  int

	mu      sync.Mutex
	pending []events.TransactionCommitted
}

func NewEventRelay(p publisher, logger *slog.Logger, interval time.Duration, capacity int) *EventRelay {
	if interval <= 0 {
		interval = time.Second
	}
	return &EventRelay{
		publisher: p,
		logger:    logger,
		interval:  interval,
		capacity:  max(capacity, 1),
	}
}

// Enqueue drops the oldest pending event when the buffer is full.
func (r *EventRelay) Enqueue(event events.TransactionCommitted) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.pending) >= r.capacity {
		dropped := r.pending[0]
		r.pending = r.pending[1:]
		r.logger.Warn("event buffer full, dropping oldest", "tx_id", dropped.TxID)
	}
	r.pending = append(r.pending, event)
}

func (r *EventRelay) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

func (r *EventRelay) Start(ctx context.Context) {
	r.logger.Info("event relay started", "interval", r.interval)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			drainCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			r.Flush(drainCtx)
			cancel()
			r.logger.Info("event relay stopped", "undelivered", r.Pending())
			return
		case <-ticker.C:
			r.Flush(ctx)
		}
	}
}

// Flush publishes pending events until one fails and returns how many were
// delivered.
func (r *EventRelay) Flush(ctx context.Context) int {
	r.mu.Lock()
	batch := r.pending
	r.pending = nil
	r.mu.Unlock()

	delivered := 0
	for _, event := range batch {
		if err := r.publisher.Publish(ctx, event); err != nil {
			r.logger.Error("failed to publish event",
				"tx_id", event.TxID,
				"error", err,
			)
			break
		}
		delivered++
	}

	if rest := batch[delivered:]; len(rest) > 0 {
		r.mu.Lock()
		r.pending = append(rest, r.pending...)
		if over := len(r.pending) - r.capacity; over > 0 {
			r.pending = r.pending[over:]
		}
		r.mu.Unlock()
	}
	return delivered
}
