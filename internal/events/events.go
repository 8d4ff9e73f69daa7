// Package events carries notifications about committed ledger state to
// downstream consumers.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/custody-ledger/internal/domain"
)

const TopicTransactionCommitted = "transaction.committed"

type TransactionCommitted struct {
	TxID         uuid.UUID        `json:"tx_id"`
	Facilities   []domain.Address `json:"facilities"`
	Instructions int              `json:"instructions"`
	Changed      []domain.Address `json:"changed"`
	Removed      []domain.Address `json:"removed"`
	OccurredAt   time.Time        `json:"occurred_at"`
	// RequestID is the API request that submitted the transaction, when known.
	RequestID string `json:"request_id,omitempty"`
}

type Publisher interface {
	Publish(ctx context.Context, event TransactionCommitted) error
	Close() error
}
