package repository

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strconv"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/josh-kwaku/custody-ledger/internal/domain"
	"github.com/josh-kwaku/custody-ledger/internal/runtime"
)

const accountColumns = `address, owner, lamports::text, data, executable`

// AccountStore persists committed ledger state in PostgreSQL.
type AccountStore struct {
	db *DB
}

func NewAccountStore(db *DB) *AccountStore {
	return &AccountStore{db: db}
}

func (s *AccountStore) Load(ctx context.Context, addrs []domain.Address) (map[domain.Address]*domain.Account, error) {
	out := make(map[domain.Address]*domain.Account, len(addrs))
	if len(addrs) == 0 {
		return out, nil
	}

	keys := make(pq.ByteaArray, len(addrs))
	for i, a := range addrs {
		keys[i] = a.Bytes()
	}

	rows, err := s.db.Conn().QueryContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE address = ANY($1)`, keys,
	)
	if err != nil {
		return nil, fmt.Errorf("Load: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		addr, acct, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("Load: scan: %w", err)
		}
		out[addr] = acct
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("Load: rows: %w", err)
	}
	return out, nil
}

func (s *AccountStore) Commit(ctx context.Context, txID uuid.UUID, changes map[domain.Address]*domain.Account) error {
	// Deterministic order keeps row locks consistent across writers.
	addrs := make([]domain.Address, 0, len(changes))
	for a := range changes {
		addrs = append(addrs, a)
	}
	sort.Slice(addrs, func(i, j int) bool { return addrs[i].Compare(addrs[j]) < 0 })

	err := s.db.InLedgerTx(ctx, txID, func(tx *sql.Tx) error {
		for _, addr := range addrs {
			acct := changes[addr]
			if acct == nil {
				if _, err := tx.ExecContext(ctx, `DELETE FROM accounts WHERE address = $1`, addr.Bytes()); err != nil {
					return fmt.Errorf("delete %s: %w", addr, err)
				}
				continue
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO accounts (address, owner, lamports, data, executable, updated_at)
				 VALUES ($1, $2, $3::numeric, $4, $5, now())
				 ON CONFLICT (address) DO UPDATE SET
					owner = EXCLUDED.owner,
					lamports = EXCLUDED.lamports,
					data = EXCLUDED.data,
					executable = EXCLUDED.executable,
					updated_at = now()`,
				addr.Bytes(), acct.Owner.Bytes(), strconv.FormatUint(acct.Lamports, 10), acct.Data, acct.Executable,
			); err != nil {
				return fmt.Errorf("upsert %s: %w", addr, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("Commit: %w", err)
	}
	return nil
}

func (s *AccountStore) HasTransaction(ctx context.Context, txID uuid.UUID) (bool, error) {
	var exists bool
	err := s.db.Conn().QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM processed_transactions WHERE tx_id = $1)`, txID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("HasTransaction: %w", err)
	}
	return exists, nil
}

func (s *AccountStore) Ping(ctx context.Context) error {
	return s.db.Conn().PingContext(ctx)
}

func scanAccount(row scanner) (domain.Address, *domain.Account, error) {
	var (
		rawAddr, rawOwner []byte
		lamports          string
		acct              domain.Account
	)
	if err := row.Scan(&rawAddr, &rawOwner, &lamports, &acct.Data, &acct.Executable); err != nil {
		return domain.Address{}, nil, err
	}
	addr, err := domain.AddressFromBytes(rawAddr)
	if err != nil {
		return domain.Address{}, nil, err
	}
	if acct.Owner, err = domain.AddressFromBytes(rawOwner); err != nil {
		return domain.Address{}, nil, err
	}
	if acct.Lamports, err = strconv.ParseUint(lamports, 10, 64); err != nil {
		return domain.Address{}, nil, fmt.Errorf("lamports %q: %w", lamports, err)
	}
	if acct.Data == nil {
		acct.Data = []byte{}
	}
	return addr, &acct, nil
}

var _ runtime.Store = (*AccountStore)(nil)
