package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/custody-ledger/internal/domain"
	"github.com/josh-kwaku/custody-ledger/internal/events"
	"github.com/josh-kwaku/custody-ledger/internal/flashloan"
	"github.com/josh-kwaku/custody-ledger/internal/logging"
	"github.com/josh-kwaku/custody-ledger/internal/runtime"
	"github.com/josh-kwaku/custody-ledger/internal/system"
	"github.com/josh-kwaku/custody-ledger/internal/testutil"
)

type recordingSink struct {
	events []events.TransactionCommitted
}

func (s *recordingSink) Enqueue(e events.TransactionCommitted) { s.events = append(s.events, e) }

func TestSubmit(t *testing.T) {
	l := testutil.NewLedger(t)
	sink := &recordingSink{}
	node := NewNode(l.Runtime, sink, l.Facilities)

	from := l.Wallet()
	to := l.Wallet()
	tx := runtime.NewTransaction(system.Transfer(from.Address, to.Address, 500))
	tx.Sign(from.Private)

	receipt, err := node.Submit(logging.WithRequestID(context.Background(), "req-7"), tx)
	require.NoError(t, err)
	assert.Equal(t, tx.ID, receipt.TxID)
	assert.Equal(t, testutil.DefaultWalletLamports+500, l.Lamports(to.Address))

	require.Len(t, sink.events, 1)
	got := sink.events[0]
	assert.Equal(t, tx.ID, got.TxID)
	assert.Equal(t, []domain.Address{l.Facilities.System}, got.Facilities)
	assert.Equal(t, 1, got.Instructions)
	assert.ElementsMatch(t, []domain.Address{from.Address, to.Address}, got.Changed)
	assert.False(t, got.OccurredAt.IsZero())
	assert.Equal(t, "req-7", got.RequestID)

	_, err = node.Submit(context.Background(), tx)
	require.ErrorIs(t, err, domain.ErrDuplicateTransaction)
	assert.Len(t, sink.events, 1)
}

func TestSubmitAbortQueuesNothing(t *testing.T) {
	l := testutil.NewLedger(t)
	sink := &recordingSink{}
	node := NewNode(l.Runtime, sink, l.Facilities)

	from := l.Wallet()
	tx := runtime.NewTransaction(system.Transfer(from.Address, l.Wallet().Address, testutil.DefaultWalletLamports+1))
	tx.Sign(from.Private)

	_, err := node.Submit(context.Background(), tx)
	var ixErr *runtime.InstructionError
	require.ErrorAs(t, err, &ixErr)
	assert.Equal(t, 0, ixErr.Index)
	assert.Empty(t, sink.events)
}

func TestAirdrop(t *testing.T) {
	l := testutil.NewLedger(t)
	sink := &recordingSink{}
	node := NewNode(l.Runtime, sink, l.Facilities)
	addr := testutil.NewKeypair(t).Address

	_, err := node.Airdrop(context.Background(), addr, 0)
	require.ErrorIs(t, err, domain.ErrInvalidRequest)

	_, err = node.Airdrop(context.Background(), addr, 42)
	require.NoError(t, err)
	acct, err := node.Account(context.Background(), addr)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), acct.Lamports)
	assert.Equal(t, domain.SystemFacility, acct.Owner)
	require.Len(t, sink.events, 1)
	assert.Empty(t, sink.events[0].RequestID)

	_, err = node.Account(context.Background(), testutil.NewKeypair(t).Address)
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestQuote(t *testing.T) {
	l := testutil.NewLedger(t)
	node := NewNode(l.Runtime, &recordingSink{}, l.Facilities)
	f := l.Facilities

	authority, bump, err := flashloan.ProtocolAuthority(f.FlashLoan, 30)
	require.NoError(t, err)
	mint := l.CreateMint(f.Token, l.Wallet().Address, 6)
	pool := l.CreateTokenAccount(f.Token, mint, authority, 10_000)
	stray := l.CreateTokenAccount(f.Token, mint, l.Wallet().Address, 10_000)

	q, err := node.Quote(context.Background(), pool, 30, 5_000)
	require.NoError(t, err)
	assert.Equal(t, authority, q.Authority)
	assert.Equal(t, bump, q.Bump)
	assert.Equal(t, uint64(15), q.Fee)
	assert.Equal(t, uint64(10_015), q.Owed)
	assert.True(t, decimal.RequireFromString("0.003").Equal(q.FeeRate))

	tests := []struct {
		name      string
		pool      domain.Address
		fee       uint16
		requested uint64
		wantErr   error
	}{
		{name: "fee above ceiling", pool: pool, fee: flashloan.MaxFeeBasisPoints + 1, requested: 1, wantErr: domain.ErrInvalidRequest},
		{name: "zero amount", pool: pool, fee: 30, requested: 0, wantErr: domain.ErrInvalidRequest},
		{name: "unknown pool", pool: testutil.NewKeypair(t).Address, fee: 30, requested: 1, wantErr: domain.ErrNotFound},
		{name: "other fee tier", pool: pool, fee: 31, requested: 1, wantErr: domain.ErrAuthorization},
		{name: "pool of a wallet", pool: stray, fee: 30, requested: 1, wantErr: domain.ErrAuthorization},
		{name: "not a token account", pool: mint, fee: 30, requested: 1, wantErr: domain.ErrInvalidAccountData},
		{name: "more than the pool holds", pool: pool, fee: 30, requested: 10_001, wantErr: domain.ErrInsufficientFunds},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := node.Quote(context.Background(), tt.pool, tt.fee, tt.requested)
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

type flakyPublisher struct {
	failAfter int
	got       []events.TransactionCommitted
}

func (p *flakyPublisher) Publish(_ context.Context, e events.TransactionCommitted) error {
	if p.failAfter >= 0 && len(p.got) >= p.failAfter {
		return errors.New("broker unavailable")
	}
	p.got = append(p.got, e)
	return nil
}

func TestEventRelayFlush(t *testing.T) {
	pub := &flakyPublisher{failAfter: 1}
	relay := NewEventRelay(pub, slog.New(slog.NewTextHandler(io.Discard, nil)), 0, 10)

	a := events.TransactionCommitted{Instructions: 1}
	b := events.TransactionCommitted{Instructions: 2}
	c := events.TransactionCommitted{Instructions: 3}
	relay.Enqueue(a)
	relay.Enqueue(b)
	relay.Enqueue(c)

	assert.Equal(t, 1, relay.Flush(context.Background()))
	assert.Equal(t, 2, relay.Pending())

	pub.failAfter = -1
	assert.Equal(t, 2, relay.Flush(context.Background()))
	assert.Equal(t, 0, relay.Pending())
	assert.Equal(t, []events.TransactionCommitted{a, b, c}, pub.got)
}

func TestEventRelayDropsOldest(t *testing.T) {
	pub := &flakyPublisher{failAfter: -1}
	relay := NewEventRelay(pub, slog.New(slog.NewTextHandler(io.Discard, nil)), 0, 2)

	for i := 1; i <= 3; i++ {
		relay.Enqueue(events.TransactionCommitted{Instructions: i})
	}
	assert.Equal(t, 2, relay.Pending())
	relay.Flush(context.Background())
	require.Len(t, pub.got, 2)
	assert.Equal(t, 2, pub.got[0].Instructions)
	assert.Equal(t, 3, pub.got[1].Instructions)
}
