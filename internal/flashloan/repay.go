package flashloan

import (
	"fmt"

	"github.com/josh-kwaku/custody-ledger/internal/capability"
	"github.com/josh-kwaku/custody-ledger/internal/domain"
	"github.com/josh-kwaku/custody-ledger/internal/runtime"
	"github.com/josh-kwaku/custody-ledger/internal/token"
)

// repay accounts: borrower, record, then one pool per record entry.
func (p *Program) repay(ictx *runtime.Context, payload []byte, accounts []*runtime.Handle) error {
	if len(payload) != 0 {
		return fmt.Errorf("Repay: %w: unexpected payload", domain.ErrInvalidInstructionData)
	}
	if len(accounts) < 3 {
		return fmt.Errorf("Repay: %w: %d accounts", domain.ErrNotEnoughAccountKeys, len(accounts))
	}
	borrower, record, pools := accounts[0], accounts[1], accounts[2:]

	if err := capability.CheckOwnedBy(record, ictx.ProgramID); err != nil {
		return fmt.Errorf("Repay: %w", err)
	}
	var entries []Entry
	if err := record.Read(func(buf []byte) error {
		var err error
		entries, err = ReadEntries(buf)
		return err
	}); err != nil {
		return fmt.Errorf("Repay: %w", err)
	}
	if len(pools) < len(entries) {
		return fmt.Errorf("Repay: %w: %d pools for %d entries", domain.ErrNotEnoughAccountKeys, len(pools), len(entries))
	}

	for i, e := range entries {
		pool := pools[i]
		if pool.Key() != e.Pool {
			return fmt.Errorf("Repay: %w: entry %d names %s, got %s", domain.ErrInvalidAccountData, i, e.Pool, pool.Key())
		}
		if err := p.validator.CheckTokenAccountLike(pool); err != nil {
			return fmt.Errorf("Repay: %w", err)
		}
		var balance uint64
		if err := pool.Read(func(data []byte) error {
			var err error
			balance, err = token.AmountOf(data)
			return err
		}); err != nil {
			return fmt.Errorf("Repay: %w", err)
		}
		if balance < e.AmountOwed {
			return fmt.Errorf("Repay: %w: pool %s holds %d, owes %d", domain.ErrInsufficientRepayment, pool.Key(), balance, e.AmountOwed)
		}
	}

	deposit := record.Lamports()
	if err := record.CloseInto(borrower); err != nil {
		return fmt.Errorf("Repay: %w", err)
	}

	ictx.Logger().Info("flash loan repaid",
		"record", record.Key().String(),
		"pools", len(entries),
		"deposit_returned", deposit,
	)
	return nil
}
