package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/josh-kwaku/custody-ledger/internal/domain"
	"github.com/josh-kwaku/custody-ledger/internal/logging"
)

const uniqueViolation = "23505"

type scanner interface {
	Scan(dest ...any) error
}

// DB wraps the pool so every ledger write goes through one transaction entry
// point.
type DB struct {
	pool *sql.DB
}

func NewDB(pool *sql.DB) *DB {
	return &DB{pool: pool}
}

func (d *DB) Conn() *sql.DB {
	return d.pool
}

// InLedgerTx runs fn in a read-committed transaction that first claims txID
// in processed_transactions. A second claim of the same id fails with
// ErrDuplicateTransaction. Any error from fn rolls the claim back with
// everything else.
func (d *DB) InLedgerTx(ctx context.Context, txID uuid.UUID, fn func(tx *sql.Tx) error) error {
	tx, err := d.pool.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("InLedgerTx: begin: %w", err)
	}
	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			logging.FromContext(ctx).Warn("ledger transaction rollback failed", "tx_id", txID.String(), "error", err)
		}
	}()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO processed_transactions (tx_id) VALUES ($1)`, txID,
	); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return fmt.Errorf("InLedgerTx: %w: %s", domain.ErrDuplicateTransaction, txID)
		}
		return fmt.Errorf("InLedgerTx: record transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("InLedgerTx: commit: %w", err)
	}
	return nil
}

func (d *DB) Close() error {
	return d.pool.Close()
}
