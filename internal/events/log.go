package events

import (
	"context"
	"log/slog"
)

// LogPublisher writes events to the structured log. Used when no broker is
// configured.
type LogPublisher struct {
	logger *slog.Logger
}

func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(_ context.Context, event TransactionCommitted) error {
	p.logger.Info("event published",
		"topic", TopicTransactionCommitted,
		"tx_id", event.TxID,
		"request_id", event.RequestID,
		"instructions", event.Instructions,
		"changed", len(event.Changed),
		"removed", len(event.Removed),
	)
	return nil
}

func (p *LogPublisher) Close() error { return nil }
