// Package token implements the fungible-asset facility in its legacy and
// extended encodings, plus the associated-account facility that places each
// wallet's token account at a derived address.
package token

import (
	"encoding/binary"
	"fmt"
	"math/bits"

	"github.com/josh-kwaku/custody-ledger/internal/domain"
	"github.com/josh-kwaku/custody-ledger/internal/runtime"
)

const (
	TagMintTo             byte = 7
	TagTransfer           byte = 3
	TagCloseAccount       byte = 9
	TagInitializeAccount3 byte = 18
)

type Program struct {
	id       domain.Address
	extended bool
}

// New returns the token facility registered under id. extended selects the
// layout used for accounts it initializes.
func New(id domain.Address, extended bool) *Program {
	return &Program{id: id, extended: extended}
}

func (p *Program) ID() domain.Address { return p.id }

func (p *Program) Process(ictx *runtime.Context, data []byte, accounts []*runtime.Handle) error {
	if len(data) == 0 {
		return fmt.Errorf("token.Process: %w: empty", domain.ErrInvalidInstructionData)
	}
	switch data[0] {
	case TagTransfer:
		return p.transfer(data[1:], accounts)
	case TagMintTo:
		return p.mintTo(data[1:], accounts)
	case TagCloseAccount:
		return p.closeAccount(accounts)
	case TagInitializeAccount3:
		return p.initializeAccount(data[1:], accounts)
	default:
		return fmt.Errorf("token.Process: %w: tag %d", domain.ErrInvalidInstructionData, data[0])
	}
}

func (p *Program) loadAccount(h *runtime.Handle) (*Account, error) {
	if !h.IsOwnedBy(p.id) {
		return nil, fmt.Errorf("%s: %w", h.Key(), domain.ErrInvalidOwner)
	}
	var acct *Account
	err := h.Read(func(data []byte) error {
		var err error
		acct, err = UnpackAccount(data)
		return err
	})
	if err != nil {
		return nil, err
	}
	switch acct.State {
	case StateUninitialized:
		return nil, fmt.Errorf("%s: %w", h.Key(), domain.ErrUninitializedAccount)
	case StateFrozen:
		return nil, fmt.Errorf("%s: %w", h.Key(), domain.ErrAccountFrozen)
	}
	return acct, nil
}

func store(h *runtime.Handle, acct *Account) error {
	return h.Write(func(data []byte) error {
		acct.Pack(data)
		return nil
	})
}

func (p *Program) transfer(body []byte, accounts []*runtime.Handle) error {
	if len(accounts) < 3 {
		return fmt.Errorf("Transfer: %w", domain.ErrNotEnoughAccountKeys)
	}
	if len(body) != 8 {
		return fmt.Errorf("Transfer: %w", domain.ErrInvalidInstructionData)
	}
	amount := binary.LittleEndian.Uint64(body)
	srcH, dstH, authority := accounts[0], accounts[1], accounts[2]

	src, err := p.loadAccount(srcH)
	if err != nil {
		return fmt.Errorf("Transfer: %w", err)
	}
	dst, err := p.loadAccount(dstH)
	if err != nil {
		return fmt.Errorf("Transfer: %w", err)
	}
	if src.Mint != dst.Mint {
		return fmt.Errorf("Transfer: %w", domain.ErrMintMismatch)
	}
	if authority.Key() != src.Owner || !authority.IsSigner() {
		return fmt.Errorf("Transfer from %s: %w", srcH.Key(), domain.ErrAuthorization)
	}
	if src.Amount < amount {
		return fmt.Errorf("Transfer: %w", domain.ErrInsufficientFunds)
	}
	if srcH.Key() == dstH.Key() {
		return nil
	}
	sum, carry := bits.Add64(dst.Amount, amount, 0)
	if carry != 0 {
		return fmt.Errorf("Transfer: %w", domain.ErrArithmeticOverflow)
	}
	src.Amount -= amount
	dst.Amount = sum

	if err := store(srcH, src); err != nil {
		return fmt.Errorf("Transfer: %w", err)
	}
	if err := store(dstH, dst); err != nil {
		return fmt.Errorf("Transfer: %w", err)
	}
	return nil
}

func (p *Program) mintTo(body []byte, accounts []*runtime.Handle) error {
	if len(accounts) < 3 {
		return fmt.Errorf("MintTo: %w", domain.ErrNotEnoughAccountKeys)
	}
	if len(body) != 8 {
		return fmt.Errorf("MintTo: %w", domain.ErrInvalidInstructionData)
	}
	amount := binary.LittleEndian.Uint64(body)
	mintH, dstH, authority := accounts[0], accounts[1], accounts[2]

	if !mintH.IsOwnedBy(p.id) {
		return fmt.Errorf("MintTo %s: %w", mintH.Key(), domain.ErrInvalidOwner)
	}
	var mint *Mint
	if err := mintH.Read(func(data []byte) error {
		var err error
		mint, err = UnpackMint(data)
		return err
	}); err != nil {
		return fmt.Errorf("MintTo: %w", err)
	}
	if !mint.IsInitialized {
		return fmt.Errorf("MintTo: %w", domain.ErrUninitializedAccount)
	}
	if mint.MintAuthority == nil || *mint.MintAuthority != authority.Key() || !authority.IsSigner() {
		return fmt.Errorf("MintTo: %w", domain.ErrAuthorization)
	}
	dst, err := p.loadAccount(dstH)
	if err != nil {
		return fmt.Errorf("MintTo: %w", err)
	}
	if dst.Mint != mintH.Key() {
		return fmt.Errorf("MintTo: %w", domain.ErrMintMismatch)
	}

	supply, c1 := bits.Add64(mint.Supply, amount, 0)
	balance, c2 := bits.Add64(dst.Amount, amount, 0)
	if c1|c2 != 0 {
		return fmt.Errorf("MintTo: %w", domain.ErrArithmeticOverflow)
	}
	mint.Supply, dst.Amount = supply, balance

	if err := mintH.Write(func(data []byte) error {
		mint.Pack(data)
		return nil
	}); err != nil {
		return fmt.Errorf("MintTo: %w", err)
	}
	if err := store(dstH, dst); err != nil {
		return fmt.Errorf("MintTo: %w", err)
	}
	return nil
}

func (p *Program) closeAccount(accounts []*runtime.Handle) error {
	if len(accounts) < 3 {
		return fmt.Errorf("CloseAccount: %w", domain.ErrNotEnoughAccountKeys)
	}
	acctH, dest, authority := accounts[0], accounts[1], accounts[2]
	if acctH.Key() == dest.Key() {
		return fmt.Errorf("CloseAccount: %w: destination is the account", domain.ErrInvalidAccountData)
	}
	acct, err := p.loadAccount(acctH)
	if err != nil {
		return fmt.Errorf("CloseAccount: %w", err)
	}
	if acct.IsNative == nil && acct.Amount != 0 {
		return fmt.Errorf("CloseAccount: %w: balance %d", domain.ErrInvalidAccountData, acct.Amount)
	}
	closer := acct.Owner
	if acct.CloseAuthority != nil {
		closer = *acct.CloseAuthority
	}
	if authority.Key() != closer || !authority.IsSigner() {
		return fmt.Errorf("CloseAccount: %w", domain.ErrAuthorization)
	}
	if err := acctH.CloseInto(dest); err != nil {
		return fmt.Errorf("CloseAccount: %w", err)
	}
	return nil
}

func (p *Program) initializeAccount(body []byte, accounts []*runtime.Handle) error {
	if len(accounts) < 2 {
		return fmt.Errorf("InitializeAccount3: %w", domain.ErrNotEnoughAccountKeys)
	}
	owner, err := domain.AddressFromBytes(body)
	if err != nil {
		return fmt.Errorf("InitializeAccount3: %w", domain.ErrInvalidInstructionData)
	}
	acctH, mintH := accounts[0], accounts[1]
	if !acctH.IsOwnedBy(p.id) || !mintH.IsOwnedBy(p.id) {
		return fmt.Errorf("InitializeAccount3: %w", domain.ErrInvalidOwner)
	}
	var mint *Mint
	if err := mintH.Read(func(data []byte) error {
		var err error
		mint, err = UnpackMint(data)
		return err
	}); err != nil {
		return fmt.Errorf("InitializeAccount3: %w", err)
	}
	if !mint.IsInitialized {
		return fmt.Errorf("InitializeAccount3: %w", domain.ErrUninitializedAccount)
	}

	return acctH.Write(func(data []byte) error {
		if len(data) < AccountLen {
			return fmt.Errorf("InitializeAccount3: %w: %d bytes", domain.ErrInvalidAccountData, len(data))
		}
		if AccountState(data[108]) != StateUninitialized {
			return fmt.Errorf("InitializeAccount3: %w", domain.ErrAccountAlreadyInUse)
		}
		acct := Account{Mint: mintH.Key(), Owner: owner, State: StateInitialized}
		acct.Pack(data)
		if len(data) > AccountTypeOffset {
			data[AccountTypeOffset] = AccountTypeAccount
		}
		return nil
	})
}

// AccountSize is the buffer length this facility allocates for new token
// accounts.
func (p *Program) AccountSize() int {
	if p.extended {
		return ExtendedAccountLen
	}
	return AccountLen
}

func Transfer(facility, src, dst, authority domain.Address, amount uint64) runtime.Instruction {
	data := binary.LittleEndian.AppendUint64([]byte{TagTransfer}, amount)
	return runtime.Instruction{
		Facility: facility,
		Accounts: []runtime.AccountMeta{
			runtime.Writable(src, false),
			runtime.Writable(dst, false),
			runtime.Readonly(authority, true),
		},
		Data: data,
	}
}

func MintTo(facility, mint, dst, authority domain.Address, amount uint64) runtime.Instruction {
	data := binary.LittleEndian.AppendUint64([]byte{TagMintTo}, amount)
	return runtime.Instruction{
		Facility: facility,
		Accounts: []runtime.AccountMeta{
			runtime.Writable(mint, false),
			runtime.Writable(dst, false),
			runtime.Readonly(authority, true),
		},
		Data: data,
	}
}

func CloseAccount(facility, acct, dest, authority domain.Address) runtime.Instruction {
	return runtime.Instruction{
		Facility: facility,
		Accounts: []runtime.AccountMeta{
			runtime.Writable(acct, false),
			runtime.Writable(dest, false),
			runtime.Readonly(authority, true),
		},
		Data: []byte{TagCloseAccount},
	}
}

func InitializeAccount3(facility, acct, mint, owner domain.Address) runtime.Instruction {
	return runtime.Instruction{
		Facility: facility,
		Accounts: []runtime.AccountMeta{
			runtime.Writable(acct, false),
			runtime.Readonly(mint, false),
		},
		Data: append([]byte{TagInitializeAccount3}, owner[:]...),
	}
}
