// Package vault holds lamports for a single owner at an address only the
// vault facility can sign for.
package vault

import (
	"encoding/binary"
	"fmt"

	"github.com/josh-kwaku/custody-ledger/internal/capability"
	"github.com/josh-kwaku/custody-ledger/internal/derive"
	"github.com/josh-kwaku/custody-ledger/internal/domain"
	"github.com/josh-kwaku/custody-ledger/internal/runtime"
	"github.com/josh-kwaku/custody-ledger/internal/system"
)

const (
	TagDeposit  byte = 0
	TagWithdraw byte = 1

	Seed = "vault"
)

type Program struct {
	facilities domain.Facilities
}

func New(facilities domain.Facilities) *Program {
	return &Program{facilities: facilities}
}

// Accounts for both instructions: owner, vault, system facility.
func (p *Program) Process(ictx *runtime.Context, data []byte, accounts []*runtime.Handle) error {
	if len(data) == 0 {
		return fmt.Errorf("vault.Process: %w: empty", domain.ErrInvalidInstructionData)
	}
	if len(accounts) < 3 {
		return fmt.Errorf("vault.Process: %w", domain.ErrNotEnoughAccountKeys)
	}
	if accounts[2].Key() != p.facilities.System {
		return fmt.Errorf("vault.Process: %w", domain.ErrIncorrectProgramID)
	}

	switch data[0] {
	case TagDeposit:
		return p.deposit(ictx, data[1:], accounts[0], accounts[1])
	case TagWithdraw:
		return p.withdraw(ictx, accounts[0], accounts[1])
	default:
		return fmt.Errorf("vault.Process: %w: tag %d", domain.ErrInvalidInstructionData, data[0])
	}
}

func (p *Program) deposit(ictx *runtime.Context, body []byte, owner, vault *runtime.Handle) error {
	if len(body) != 8 {
		return fmt.Errorf("Deposit: %w: %d bytes", domain.ErrInvalidInstructionData, len(body))
	}
	amount := binary.LittleEndian.Uint64(body)
	if amount == 0 {
		return fmt.Errorf("Deposit: %w: zero amount", domain.ErrInvalidInstructionData)
	}
	if err := capability.CheckSigner(owner); err != nil {
		return fmt.Errorf("Deposit: %w", err)
	}
	if err := capability.CheckSystemOwned(vault); err != nil {
		return fmt.Errorf("Deposit: %w", err)
	}
	if vault.Lamports() != 0 {
		return fmt.Errorf("Deposit: %w: vault already funded", domain.ErrInvalidAccountData)
	}
	if _, err := p.locate(ictx, owner, vault); err != nil {
		return fmt.Errorf("Deposit: %w", err)
	}

	if err := ictx.Invoke(system.Transfer(owner.Key(), vault.Key(), amount)); err != nil {
		return fmt.Errorf("Deposit: %w", err)
	}
	ictx.Logger().Info("vault funded", "owner", owner.Key().String(), "lamports", amount)
	return nil
}

func (p *Program) withdraw(ictx *runtime.Context, owner, vault *runtime.Handle) error {
	if err := capability.CheckSigner(owner); err != nil {
		return fmt.Errorf("Withdraw: %w", err)
	}
	if err := capability.CheckSystemOwned(vault); err != nil {
		return fmt.Errorf("Withdraw: %w", err)
	}
	balance := vault.Lamports()
	if balance == 0 {
		return fmt.Errorf("Withdraw: %w: vault is empty", domain.ErrInvalidAccountData)
	}
	bump, err := p.locate(ictx, owner, vault)
	if err != nil {
		return fmt.Errorf("Withdraw: %w", err)
	}

	seeds := append(Seeds(owner.Key()), []byte{bump})
	if err := ictx.Invoke(system.Transfer(vault.Key(), owner.Key(), balance), seeds); err != nil {
		return fmt.Errorf("Withdraw: %w", err)
	}
	ictx.Logger().Info("vault drained", "owner", owner.Key().String(), "lamports", balance)
	return nil
}

func (p *Program) locate(ictx *runtime.Context, owner, vault *runtime.Handle) (uint8, error) {
	addr, bump, err := derive.FindAddress(Seeds(owner.Key()), ictx.ProgramID)
	if err != nil {
		return 0, err
	}
	if addr != vault.Key() {
		return 0, fmt.Errorf("%w: vault %s, derived %s", domain.ErrInvalidSeeds, vault.Key(), addr)
	}
	return bump, nil
}

func Seeds(owner domain.Address) [][]byte {
	return [][]byte{[]byte(Seed), owner[:]}
}

// Address is the vault of owner under facility.
func Address(facility, owner domain.Address) domain.Address {
	addr, _ := derive.MustFindAddress(Seeds(owner), facility)
	return addr
}

func Deposit(f domain.Facilities, owner domain.Address, amount uint64) runtime.Instruction {
	return runtime.Instruction{
		Facility: f.Vault,
		Accounts: metas(f, owner),
		Data:     binary.LittleEndian.AppendUint64([]byte{TagDeposit}, amount),
	}
}

func Withdraw(f domain.Facilities, owner domain.Address) runtime.Instruction {
	return runtime.Instruction{
		Facility: f.Vault,
		Accounts: metas(f, owner),
		Data:     []byte{TagWithdraw},
	}
}

func metas(f domain.Facilities, owner domain.Address) []runtime.AccountMeta {
	return []runtime.AccountMeta{
		runtime.Writable(owner, true),
		runtime.Writable(Address(f.Vault, owner), false),
		runtime.Readonly(f.System, false),
	}
}
