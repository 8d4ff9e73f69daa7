// Package flashloan lends pooled token balances without collateral. An Issue
// instruction draws from one or more pools and records what each pool must
// hold again; a later Repay instruction in the same transaction checks those
// balances and destroys the record. If either fails the runtime discards the
// whole transaction, so a draw is never observable without its repayment.
package flashloan

import (
	"fmt"

	"github.com/josh-kwaku/custody-ledger/internal/capability"
	"github.com/josh-kwaku/custody-ledger/internal/domain"
	"github.com/josh-kwaku/custody-ledger/internal/runtime"
)

// Policy selects which transaction shapes satisfy the repayment commitment.
type Policy string

const (
	// PolicyDeferred accepts a matching Repay anywhere after the Issue.
	PolicyDeferred Policy = "deferred"
	// PolicyLast requires the matching Repay to be the final instruction.
	PolicyLast Policy = "last"
	// PolicyImmediate requires the matching Repay directly after the top-level
	// instruction that issued the loan. Only that one slot is inspected.
	PolicyImmediate Policy = "immediate"
)

func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case PolicyDeferred, PolicyLast, PolicyImmediate:
		return Policy(s), nil
	default:
		return "", fmt.Errorf("ParsePolicy: unknown repay policy %q", s)
	}
}

type Program struct {
	facilities domain.Facilities
	validator  *capability.Validator
	policy     Policy
}

func New(facilities domain.Facilities, policy Policy) *Program {
	if policy == "" {
		policy = PolicyDeferred
	}
	return &Program{
		facilities: facilities,
		validator:  capability.New(facilities),
		policy:     policy,
	}
}

func (p *Program) Process(ictx *runtime.Context, data []byte, accounts []*runtime.Handle) error {
	if len(data) == 0 {
		return fmt.Errorf("flashloan.Process: %w: empty", domain.ErrInvalidInstructionData)
	}
	switch data[0] {
	case SelectorIssue:
		return p.issue(ictx, data[1:], accounts)
	case SelectorRepay:
		return p.repay(ictx, data[1:], accounts)
	default:
		return fmt.Errorf("flashloan.Process: %w: selector %d", domain.ErrInvalidInstructionData, data[0])
	}
}
