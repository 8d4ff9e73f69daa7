package service

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/custody-ledger/internal/domain"
	"github.com/josh-kwaku/custody-ledger/internal/events"
	"github.com/josh-kwaku/custody-ledger/internal/flashloan"
	"github.com/josh-kwaku/custody-ledger/internal/logging"
	"github.com/josh-kwaku/custody-ledger/internal/runtime"
	"github.com/josh-kwaku/custody-ledger/internal/token"
)

type ledger interface {
	Execute(ctx context.Context, tx *runtime.Transaction) (*runtime.Receipt, error)
	Account(ctx context.Context, addr domain.Address) (*domain.Account, error)
	Airdrop(ctx context.Context, addr domain.Address, lamports uint64) (*runtime.Receipt, error)
}

type eventSink interface {
	Enqueue(event events.TransactionCommitted)
}

type Node struct {
	ledger     ledger
	events     eventSink
	facilities domain.Facilities
	now        func() time.Time
}

func NewNode(l ledger, sink eventSink, facilities domain.Facilities) *Node {
	return &Node{
		ledger:     l,
		events:     sink,
		facilities: facilities,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (n *Node) Facilities() domain.Facilities { return n.facilities }

// Submit executes tx and queues a commit notification. Nothing is queued for
// a transaction that aborts.
func (n *Node) Submit(ctx context.Context, tx *runtime.Transaction) (*runtime.Receipt, error) {
	log := logging.FromContext(ctx)

	receipt, err := n.ledger.Execute(ctx, tx)
	if err != nil {
		return nil, fmt.Errorf("Submit: %w", err)
	}

	seen := make(map[domain.Address]bool)
	var facilities []domain.Address
	for _, ix := range tx.Instructions {
		if !seen[ix.Facility] {
			seen[ix.Facility] = true
			facilities = append(facilities, ix.Facility)
		}
	}
	n.events.Enqueue(events.TransactionCommitted{
		TxID:         receipt.TxID,
		Facilities:   facilities,
		Instructions: len(tx.Instructions),
		Changed:      receipt.Changed,
		Removed:      receipt.Removed,
		OccurredAt:   n.now(),
		RequestID:    logging.RequestID(ctx),
	})

	log.Info("transaction submitted", "tx_id", receipt.TxID, "facilities", len(facilities))
	return receipt, nil
}

func (n *Node) Account(ctx context.Context, addr domain.Address) (*domain.Account, error) {
	acct, err := n.ledger.Account(ctx, addr)
	if err != nil {
		return nil, fmt.Errorf("Account: %w", err)
	}
	return acct, nil
}

func (n *Node) Airdrop(ctx context.Context, addr domain.Address, lamports uint64) (*runtime.Receipt, error) {
	receipt, err := n.ledger.Airdrop(ctx, addr, lamports)
	if err != nil {
		return nil, fmt.Errorf("Airdrop: %w", err)
	}
	n.events.Enqueue(events.TransactionCommitted{
		TxID:       receipt.TxID,
		Changed:    receipt.Changed,
		OccurredAt: n.now(),
		RequestID:  logging.RequestID(ctx),
	})
	logging.FromContext(ctx).Info("airdrop credited", "address", addr.String(), "lamports", lamports)
	return receipt, nil
}

// Quote describes what a flash-loan draw from a pool would cost right now.
type Quote struct {
	Pool      domain.Address  `json:"pool"`
	Authority domain.Address  `json:"authority"`
	Bump      uint8           `json:"bump"`
	Balance   uint64          `json:"balance"`
	Requested uint64          `json:"requested"`
	Fee       uint64          `json:"fee"`
	Owed      uint64          `json:"owed"`
	FeeRate   decimal.Decimal `json:"fee_rate"`
}

func (n *Node) Quote(ctx context.Context, pool domain.Address, fee uint16, requested uint64) (*Quote, error) {
	if fee > flashloan.MaxFeeBasisPoints {
		return nil, fmt.Errorf("Quote: %w: fee %d", domain.ErrInvalidRequest, fee)
	}
	if requested == 0 {
		return nil, fmt.Errorf("Quote: %w: zero amount", domain.ErrInvalidRequest)
	}

	acct, err := n.ledger.Account(ctx, pool)
	if err != nil {
		return nil, fmt.Errorf("Quote: %w", err)
	}
	if !n.facilities.IsTokenFacility(acct.Owner) {
		return nil, fmt.Errorf("Quote: %w: pool owned by %s", domain.ErrInvalidOwner, acct.Owner)
	}
	state, err := token.UnpackAccount(acct.Data)
	if err != nil {
		return nil, fmt.Errorf("Quote: %w", err)
	}

	authority, bump, err := flashloan.ProtocolAuthority(n.facilities.FlashLoan, fee)
	if err != nil {
		return nil, fmt.Errorf("Quote: %w", err)
	}
	if state.Owner != authority {
		return nil, fmt.Errorf("Quote: %w: pool is not held by the fee-tier authority", domain.ErrAuthorization)
	}
	if requested > state.Amount {
		return nil, fmt.Errorf("Quote: %w: pool holds %d", domain.ErrInsufficientFunds, state.Amount)
	}

	owed, err := flashloan.AmountOwed(state.Amount, requested, fee)
	if err != nil {
		return nil, fmt.Errorf("Quote: %w", err)
	}
	return &Quote{
		Pool:      pool,
		Authority: authority,
		Bump:      bump,
		Balance:   state.Amount,
		Requested: requested,
		Fee:       owed - state.Amount,
		Owed:      owed,
		FeeRate:   decimal.New(int64(fee), -4),
	}, nil
}
