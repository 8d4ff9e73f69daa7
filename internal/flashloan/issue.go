package flashloan

import (
	"errors"
	"fmt"

	"github.com/josh-kwaku/custody-ledger/internal/capability"
	"github.com/josh-kwaku/custody-ledger/internal/derive"
	"github.com/josh-kwaku/custody-ledger/internal/domain"
	"github.com/josh-kwaku/custody-ledger/internal/runtime"
	"github.com/josh-kwaku/custody-ledger/internal/system"
	"github.com/josh-kwaku/custody-ledger/internal/token"
)

const issueFixedAccounts = 6

// issue accounts: borrower, protocol authority, record, instruction list,
// token facility, system facility, then pool/destination pairs.
func (p *Program) issue(ictx *runtime.Context, payload []byte, accounts []*runtime.Handle) error {
	if len(accounts) < issueFixedAccounts+2 {
		return fmt.Errorf("Issue: %w: %d accounts", domain.ErrNotEnoughAccountKeys, len(accounts))
	}
	borrower, protocol, record := accounts[0], accounts[1], accounts[2]
	sysvar, tokenFacility, systemFacility := accounts[3], accounts[4], accounts[5]
	pairs := accounts[issueFixedAccounts:]

	if len(pairs)%2 != 0 {
		return fmt.Errorf("Issue: %w: odd pool/destination count %d", domain.ErrInvalidAccountData, len(pairs))
	}
	n := len(pairs) / 2

	args, err := DecodeIssue(payload)
	if err != nil {
		return fmt.Errorf("Issue: %w", err)
	}
	if len(args.Amounts) != n {
		return fmt.Errorf("Issue: %w: %d amounts for %d pools", domain.ErrInvalidAccountData, len(args.Amounts), n)
	}
	if args.Fee > MaxFeeBasisPoints {
		return fmt.Errorf("Issue: %w: fee %d bps", domain.ErrInvalidInstructionData, args.Fee)
	}
	for i, amt := range args.Amounts {
		if amt == 0 {
			return fmt.Errorf("Issue: %w: amount %d is zero", domain.ErrInvalidInstructionData, i)
		}
	}

	if sysvar.Key() != domain.InstructionsSysvar {
		return fmt.Errorf("Issue: %w: %s", domain.ErrUnsupportedSysvar, sysvar.Key())
	}
	if !p.facilities.IsTokenFacility(tokenFacility.Key()) || systemFacility.Key() != p.facilities.System {
		return fmt.Errorf("Issue: %w", domain.ErrIncorrectProgramID)
	}
	if record.DataLen() != 0 {
		return fmt.Errorf("Issue: %w: record %s already holds %d bytes", domain.ErrInvalidAccountData, record.Key(), record.DataLen())
	}
	if err := capability.CheckSigner(borrower); err != nil {
		return fmt.Errorf("Issue: %w", err)
	}
	if err := capability.CheckSystemOwned(borrower); err != nil {
		return fmt.Errorf("Issue: %w", err)
	}
	if err := capability.CheckSigner(record); err != nil {
		return fmt.Errorf("Issue: %w", err)
	}

	seeds := append(ProtocolSeeds(args.Fee), []byte{args.Bump})
	authority, err := derive.CreateAddress(seeds, ictx.ProgramID)
	if err != nil {
		return fmt.Errorf("Issue: %w", err)
	}
	if authority != protocol.Key() {
		return fmt.Errorf("Issue: %w: protocol authority %s, derived %s", domain.ErrInvalidSeeds, protocol.Key(), authority)
	}

	entries, err := p.survey(pairs, args, authority, tokenFacility.Key())
	if err != nil {
		return fmt.Errorf("Issue: %w", err)
	}

	size := RecordSize(n)
	create := system.CreateAccount(borrower.Key(), record.Key(), ictx.Rent.MinimumBalance(size), uint64(size), ictx.ProgramID)
	if err := ictx.Invoke(create); err != nil {
		return fmt.Errorf("Issue: create record: %w", err)
	}
	if err := record.Write(func(buf []byte) error {
		for i, e := range entries {
			if err := putEntry(buf, i, e); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		return fmt.Errorf("Issue: %w", err)
	}

	for i, amt := range args.Amounts {
		pool, dest := pairs[2*i], pairs[2*i+1]
		ix := token.Transfer(tokenFacility.Key(), pool.Key(), dest.Key(), authority, amt)
		if err := ictx.Invoke(ix, seeds); err != nil {
			return fmt.Errorf("Issue: draw from %s: %w", pool.Key(), err)
		}
	}

	if err := p.checkCommitment(ictx, sysvar, record.Key()); err != nil {
		return fmt.Errorf("Issue: %w", err)
	}

	ictx.Logger().Info("flash loan issued",
		"record", record.Key().String(),
		"pools", n,
		"fee_bps", args.Fee,
	)
	return nil
}

// survey validates every pair and reads each pool balance before any draw.
func (p *Program) survey(pairs []*runtime.Handle, args IssueArgs, authority, tokenFacility domain.Address) ([]Entry, error) {
	entries := make([]Entry, len(args.Amounts))
	seen := make(map[domain.Address]bool, len(args.Amounts))

	for i, requested := range args.Amounts {
		pool, dest := pairs[2*i], pairs[2*i+1]
		if err := p.validator.CheckTokenAccountLike(pool); err != nil {
			return nil, err
		}
		if err := p.validator.CheckTokenAccountLike(dest); err != nil {
			return nil, err
		}
		if !pool.IsOwnedBy(tokenFacility) || !dest.IsOwnedBy(tokenFacility) {
			return nil, fmt.Errorf("pair %d: %w: token facility mismatch", i, domain.ErrIncorrectProgramID)
		}
		if seen[pool.Key()] {
			return nil, fmt.Errorf("pair %d: %w: pool %s drawn twice", i, domain.ErrInvalidAccountData, pool.Key())
		}
		seen[pool.Key()] = true

		var balance uint64
		var owner domain.Address
		if err := pool.Read(func(data []byte) error {
			var err error
			if balance, err = token.AmountOf(data); err != nil {
				return err
			}
			owner, err = token.OwnerOf(data)
			return err
		}); err != nil {
			return nil, err
		}
		if owner != authority {
			return nil, fmt.Errorf("pool %s: %w: not held by protocol authority", pool.Key(), domain.ErrAuthorization)
		}

		owed, err := AmountOwed(balance, requested, args.Fee)
		if err != nil {
			return nil, err
		}
		entries[i] = Entry{Pool: pool.Key(), AmountOwed: owed}
	}
	return entries, nil
}

// checkCommitment requires a later Repay of this facility addressed to
// record, positioned according to the policy.
func (p *Program) checkCommitment(ictx *runtime.Context, sysvar *runtime.Handle, record domain.Address) error {
	raw, err := sysvar.Snapshot()
	if err != nil {
		return err
	}
	view, err := runtime.ParseInstructions(raw)
	if err != nil {
		return err
	}

	current := view.Current()
	first, last := current+1, view.Len()-1
	switch p.policy {
	case PolicyLast:
		first = last
	case PolicyImmediate:
		last = first
	}
	if first <= current || first >= view.Len() {
		return fmt.Errorf("%w: %w: no instruction after %d", domain.ErrMissingRepaymentCommitment, domain.ErrInstructionNotFound, current)
	}

	for i := first; i <= last; i++ {
		ix, err := view.At(i)
		if err != nil {
			if errors.Is(err, domain.ErrMalformedInstructionList) {
				return err
			}
			return fmt.Errorf("%w: %w", domain.ErrMissingRepaymentCommitment, err)
		}
		if isRepayFor(ix, ictx.ProgramID, record) {
			return nil
		}
	}
	return fmt.Errorf("%w: no repay for record %s (policy %s)", domain.ErrMissingRepaymentCommitment, record, p.policy)
}

func isRepayFor(ix runtime.Instruction, facility, record domain.Address) bool {
	return ix.Facility == facility &&
		len(ix.Data) > 0 && ix.Data[0] == SelectorRepay &&
		len(ix.Accounts) > 1 && ix.Accounts[1].Address == record
}
