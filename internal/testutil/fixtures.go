package testutil

import (
	"context"
	"crypto/ed25519"
	"errors"
	"testing"

	"github.com/josh-kwaku/custody-ledger/internal/domain"
	"github.com/josh-kwaku/custody-ledger/internal/repository"
	"github.com/josh-kwaku/custody-ledger/internal/runtime"
	"github.com/josh-kwaku/custody-ledger/internal/system"
	"github.com/josh-kwaku/custody-ledger/internal/token"
)

const DefaultWalletLamports uint64 = 10_000_000_000

type Keypair struct {
	Address domain.Address
	Private ed25519.PrivateKey
}

func NewKeypair(t *testing.T) Keypair {
	t.Helper()

	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("generate keypair: %v", err)
	}
	var addr domain.Address
	copy(addr[:], pub)
	return Keypair{Address: addr, Private: priv}
}

// Ledger is an in-memory runtime with the system, token and
// associated-account facilities registered.
type Ledger struct {
	t          *testing.T
	Store      *repository.MemoryStore
	Runtime    *runtime.Runtime
	Facilities domain.Facilities
}

func NewLedger(t *testing.T) *Ledger {
	t.Helper()

	f := domain.DefaultFacilities()
	store := repository.NewMemoryStore()
	rt := runtime.New(store)
	rt.Register(f.System, system.New())
	rt.Register(f.Token, token.New(f.Token, false))
	rt.Register(f.ExtendedToken, token.New(f.ExtendedToken, true))
	rt.Register(f.AssociatedToken, token.NewAssociated(f))

	return &Ledger{t: t, Store: store, Runtime: rt, Facilities: f}
}

// Wallet returns a funded, system-owned keypair.
func (l *Ledger) Wallet() Keypair {
	l.t.Helper()
	kp := NewKeypair(l.t)
	l.Fund(kp.Address, DefaultWalletLamports)
	return kp
}

func (l *Ledger) Fund(addr domain.Address, lamports uint64) {
	l.t.Helper()
	acct, ok := l.Account(addr)
	if !ok {
		acct = &domain.Account{Owner: domain.SystemFacility, Data: []byte{}}
	}
	acct.Lamports += lamports
	l.Store.Put(addr, acct)
}

// Put seeds arbitrary state at addr.
func (l *Ledger) Put(addr, owner domain.Address, lamports uint64, data []byte) {
	l.t.Helper()
	if data == nil {
		data = []byte{}
	}
	l.Store.Put(addr, &domain.Account{Owner: owner, Lamports: lamports, Data: data})
}

func (l *Ledger) CreateMint(tokenFacility, authority domain.Address, decimals uint8) domain.Address {
	l.t.Helper()
	addr := NewKeypair(l.t).Address
	data := token.NewMintData(token.Mint{
		MintAuthority: &authority,
		Decimals:      decimals,
		IsInitialized: true,
	}, tokenFacility == l.Facilities.ExtendedToken)
	l.Put(addr, tokenFacility, l.Runtime.Rent().MinimumBalance(len(data)), data)
	return addr
}

func (l *Ledger) CreateTokenAccount(tokenFacility, mint, owner domain.Address, amount uint64) domain.Address {
	l.t.Helper()
	addr := NewKeypair(l.t).Address
	l.CreateTokenAccountAt(addr, tokenFacility, mint, owner, amount)
	return addr
}

func (l *Ledger) CreateTokenAccountAt(addr, tokenFacility, mint, owner domain.Address, amount uint64) {
	l.t.Helper()
	data := token.NewAccountData(token.Account{
		Mint:   mint,
		Owner:  owner,
		Amount: amount,
		State:  token.StateInitialized,
	}, tokenFacility == l.Facilities.ExtendedToken)
	l.Put(addr, tokenFacility, l.Runtime.Rent().MinimumBalance(len(data)), data)
}

// CreateAssociatedAccount seeds the canonical token account of owner.
func (l *Ledger) CreateAssociatedAccount(tokenFacility, mint, owner domain.Address, amount uint64) domain.Address {
	l.t.Helper()
	addr := token.AssociatedAddress(l.Facilities, owner, tokenFacility, mint)
	l.CreateTokenAccountAt(addr, tokenFacility, mint, owner, amount)
	return addr
}

func (l *Ledger) Account(addr domain.Address) (*domain.Account, bool) {
	l.t.Helper()
	acct, err := l.Runtime.Account(context.Background(), addr)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, false
	}
	if err != nil {
		l.t.Fatalf("load account %s: %v", addr, err)
	}
	return acct, true
}

func (l *Ledger) Lamports(addr domain.Address) uint64 {
	l.t.Helper()
	acct, ok := l.Account(addr)
	if !ok {
		return 0
	}
	return acct.Lamports
}

func (l *Ledger) TokenBalance(addr domain.Address) uint64 {
	l.t.Helper()
	acct, ok := l.Account(addr)
	if !ok {
		l.t.Fatalf("token account %s does not exist", addr)
	}
	amount, err := token.AmountOf(acct.Data)
	if err != nil {
		l.t.Fatalf("read token balance %s: %v", addr, err)
	}
	return amount
}

// Execute signs a transaction of ixs with signers and runs it.
func (l *Ledger) Execute(signers []Keypair, ixs ...runtime.Instruction) (*runtime.Receipt, error) {
	l.t.Helper()
	tx := runtime.NewTransaction(ixs...)
	for _, s := range signers {
		tx.Sign(s.Private)
	}
	return l.Runtime.Execute(context.Background(), tx)
}
