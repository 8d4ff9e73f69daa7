package escrow_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/custody-ledger/internal/domain"
	"github.com/josh-kwaku/custody-ledger/internal/escrow"
	"github.com/josh-kwaku/custody-ledger/internal/testutil"
	"github.com/josh-kwaku/custody-ledger/internal/token"
)

const seed uint64 = 7

type offer struct {
	l            *testutil.Ledger
	f            domain.Facilities
	maker, taker testutil.Keypair
	mintA, mintB domain.Address
	makerAtaA    domain.Address
	takerAtaB    domain.Address
}

func newOffer(t *testing.T) *offer {
	t.Helper()
	l := testutil.NewLedger(t)
	f := l.Facilities
	l.Runtime.Register(f.Escrow, escrow.New(f))

	issuer := l.Wallet()
	o := &offer{
		l:     l,
		f:     f,
		maker: l.Wallet(),
		taker: l.Wallet(),
		mintA: l.CreateMint(f.Token, issuer.Address, 6),
		mintB: l.CreateMint(f.Token, issuer.Address, 6),
	}
	o.makerAtaA = l.CreateAssociatedAccount(f.Token, o.mintA, o.maker.Address, 500)
	o.takerAtaB = l.CreateAssociatedAccount(f.Token, o.mintB, o.taker.Address, 300)
	return o
}

func (o *offer) escrowAddr() domain.Address {
	addr, _ := escrow.Address(o.f.Escrow, o.maker.Address, seed)
	return addr
}

func (o *offer) vault() domain.Address {
	return token.AssociatedAddress(o.f, o.escrowAddr(), o.f.Token, o.mintA)
}

func (o *offer) make(t *testing.T) {
	t.Helper()
	_, err := o.l.Execute([]testutil.Keypair{o.maker}, escrow.Make(o.f, o.f.Token, o.maker.Address, o.mintA, o.mintB, seed, 120, 500))
	require.NoError(t, err)
}

func TestStateLayout(t *testing.T) {
	s := escrow.State{
		Seed:    9,
		Maker:   domain.LabelAddress("maker"),
		MintA:   domain.LabelAddress("a"),
		MintB:   domain.LabelAddress("b"),
		Receive: 77,
		Bump:    250,
	}
	buf := make([]byte, escrow.StateLen)
	s.Pack(buf)
	assert.Equal(t, 113, escrow.StateLen)
	assert.Equal(t, byte(250), buf[112])

	got, err := escrow.UnpackState(buf)
	require.NoError(t, err)
	assert.Equal(t, s, *got)

	_, err = escrow.UnpackState(buf[:112])
	require.ErrorIs(t, err, domain.ErrInvalidAccountData)
}

func TestMakeAndTake(t *testing.T) {
	o := newOffer(t)
	o.make(t)

	acct, ok := o.l.Account(o.escrowAddr())
	require.True(t, ok)
	state, err := escrow.UnpackState(acct.Data)
	require.NoError(t, err)
	assert.Equal(t, o.maker.Address, state.Maker)
	assert.Equal(t, uint64(120), state.Receive)
	assert.Equal(t, uint64(500), o.l.TokenBalance(o.vault()))
	assert.Equal(t, uint64(0), o.l.TokenBalance(o.makerAtaA))

	_, err = o.l.Execute([]testutil.Keypair{o.taker},
		escrow.Take(o.f, o.f.Token, o.taker.Address, o.maker.Address, o.mintA, o.mintB, seed))
	require.NoError(t, err)

	takerAtaA := token.AssociatedAddress(o.f, o.taker.Address, o.f.Token, o.mintA)
	makerAtaB := token.AssociatedAddress(o.f, o.maker.Address, o.f.Token, o.mintB)
	assert.Equal(t, uint64(500), o.l.TokenBalance(takerAtaA))
	assert.Equal(t, uint64(180), o.l.TokenBalance(o.takerAtaB))
	assert.Equal(t, uint64(120), o.l.TokenBalance(makerAtaB))

	_, exists := o.l.Account(o.escrowAddr())
	assert.False(t, exists)
	_, exists = o.l.Account(o.vault())
	assert.False(t, exists)

	assert.Equal(t, testutil.DefaultWalletLamports, o.l.Lamports(o.maker.Address), "maker recovers both deposits")
	ataRent := o.l.Runtime.Rent().MinimumBalance(token.AccountLen)
	assert.Equal(t, testutil.DefaultWalletLamports-2*ataRent, o.l.Lamports(o.taker.Address))
}

func TestRefund(t *testing.T) {
	o := newOffer(t)
	o.make(t)

	_, err := o.l.Execute([]testutil.Keypair{o.maker}, escrow.Refund(o.f, o.f.Token, o.maker.Address, o.mintA, seed))
	require.NoError(t, err)

	assert.Equal(t, uint64(500), o.l.TokenBalance(o.makerAtaA))
	assert.Equal(t, testutil.DefaultWalletLamports, o.l.Lamports(o.maker.Address))
	_, exists := o.l.Account(o.escrowAddr())
	assert.False(t, exists)
}

func TestEscrowRejections(t *testing.T) {
	t.Run("identical mints", func(t *testing.T) {
		o := newOffer(t)
		_, err := o.l.Execute([]testutil.Keypair{o.maker}, escrow.Make(o.f, o.f.Token, o.maker.Address, o.mintA, o.mintA, seed, 1, 1))
		require.ErrorIs(t, err, domain.ErrInvalidAccountData)
	})

	t.Run("zero receive", func(t *testing.T) {
		o := newOffer(t)
		_, err := o.l.Execute([]testutil.Keypair{o.maker}, escrow.Make(o.f, o.f.Token, o.maker.Address, o.mintA, o.mintB, seed, 0, 1))
		require.ErrorIs(t, err, domain.ErrInvalidInstructionData)
	})

	t.Run("same seed twice", func(t *testing.T) {
		o := newOffer(t)
		o.make(t)
		o.l.CreateTokenAccountAt(o.makerAtaA, o.f.Token, o.mintA, o.maker.Address, 10)
		_, err := o.l.Execute([]testutil.Keypair{o.maker}, escrow.Make(o.f, o.f.Token, o.maker.Address, o.mintA, o.mintB, seed, 1, 1))
		require.ErrorIs(t, err, domain.ErrAccountAlreadyInUse)
	})

	t.Run("taker cannot pay", func(t *testing.T) {
		o := newOffer(t)
		o.make(t)
		o.l.CreateTokenAccountAt(o.takerAtaB, o.f.Token, o.mintB, o.taker.Address, 119)

		_, err := o.l.Execute([]testutil.Keypair{o.taker},
			escrow.Take(o.f, o.f.Token, o.taker.Address, o.maker.Address, o.mintA, o.mintB, seed))
		require.ErrorIs(t, err, domain.ErrInsufficientFunds)
		assert.Equal(t, uint64(500), o.l.TokenBalance(o.vault()))
	})

	t.Run("refund by a stranger", func(t *testing.T) {
		o := newOffer(t)
		o.make(t)

		ix := escrow.Refund(o.f, o.f.Token, o.taker.Address, o.mintA, seed)
		ix.Accounts[1].Address = o.escrowAddr()
		ix.Accounts[3].Address = o.vault()

		_, err := o.l.Execute([]testutil.Keypair{o.taker}, ix)
		require.ErrorIs(t, err, domain.ErrInvalidAccountData)
		assert.Equal(t, uint64(500), o.l.TokenBalance(o.vault()))
	})
}
