// Package system implements the facility that owns fresh accounts: it funds
// them, allocates their buffers and hands them to another owner.
package system

import (
	"encoding/binary"
	"fmt"

	"github.com/josh-kwaku/custody-ledger/internal/domain"
	"github.com/josh-kwaku/custody-ledger/internal/runtime"
)

const (
	TagCreateAccount uint32 = 0
	TagAssign        uint32 = 1
	TagTransfer      uint32 = 2
)

type Program struct{}

func New() *Program { return &Program{} }

func (p *Program) Process(ictx *runtime.Context, data []byte, accounts []*runtime.Handle) error {
	if len(data) < 4 {
		return fmt.Errorf("system.Process: %w: missing tag", domain.ErrInvalidInstructionData)
	}
	tag, body := binary.LittleEndian.Uint32(data), data[4:]

	switch tag {
	case TagCreateAccount:
		return createAccount(body, accounts)
	case TagAssign:
		return assign(body, accounts)
	case TagTransfer:
		return transfer(body, accounts)
	default:
		return fmt.Errorf("system.Process: %w: tag %d", domain.ErrInvalidInstructionData, tag)
	}
}

func createAccount(body []byte, accounts []*runtime.Handle) error {
	if len(accounts) < 2 {
		return fmt.Errorf("CreateAccount: %w", domain.ErrNotEnoughAccountKeys)
	}
	if len(body) != 8+8+domain.AddressLength {
		return fmt.Errorf("CreateAccount: %w: %d bytes", domain.ErrInvalidInstructionData, len(body))
	}
	from, to := accounts[0], accounts[1]
	lamports := binary.LittleEndian.Uint64(body[0:8])
	space := binary.LittleEndian.Uint64(body[8:16])
	owner, _ := domain.AddressFromBytes(body[16:48])

	if !from.IsSigner() || !to.IsSigner() {
		return fmt.Errorf("CreateAccount: %w", domain.ErrAuthorization)
	}
	if to.Lamports() != 0 || to.DataLen() != 0 || !to.IsOwnedBy(domain.SystemFacility) {
		return fmt.Errorf("CreateAccount %s: %w", to.Key(), domain.ErrAccountAlreadyInUse)
	}
	if space > runtime.MaxAccountDataLength {
		return fmt.Errorf("CreateAccount: %w: space %d", domain.ErrInvalidInstructionData, space)
	}
	if err := debit(from, to, lamports); err != nil {
		return fmt.Errorf("CreateAccount: %w", err)
	}
	if err := to.Resize(int(space)); err != nil {
		return fmt.Errorf("CreateAccount: %w", err)
	}
	if err := to.Assign(owner); err != nil {
		return fmt.Errorf("CreateAccount: %w", err)
	}
	return nil
}

func assign(body []byte, accounts []*runtime.Handle) error {
	if len(accounts) < 1 {
		return fmt.Errorf("Assign: %w", domain.ErrNotEnoughAccountKeys)
	}
	owner, err := domain.AddressFromBytes(body)
	if err != nil {
		return fmt.Errorf("Assign: %w", domain.ErrInvalidInstructionData)
	}
	acct := accounts[0]
	if !acct.IsSigner() {
		return fmt.Errorf("Assign: %w", domain.ErrAuthorization)
	}
	if !acct.IsOwnedBy(domain.SystemFacility) {
		return fmt.Errorf("Assign %s: %w", acct.Key(), domain.ErrInvalidOwner)
	}
	if err := acct.Assign(owner); err != nil {
		return fmt.Errorf("Assign: %w", err)
	}
	return nil
}

func transfer(body []byte, accounts []*runtime.Handle) error {
	if len(accounts) < 2 {
		return fmt.Errorf("Transfer: %w", domain.ErrNotEnoughAccountKeys)
	}
	if len(body) != 8 {
		return fmt.Errorf("Transfer: %w: %d bytes", domain.ErrInvalidInstructionData, len(body))
	}
	from, to := accounts[0], accounts[1]
	if !from.IsSigner() {
		return fmt.Errorf("Transfer: %w", domain.ErrAuthorization)
	}
	if err := debit(from, to, binary.LittleEndian.Uint64(body)); err != nil {
		return fmt.Errorf("Transfer: %w", err)
	}
	return nil
}

func debit(from, to *runtime.Handle, lamports uint64) error {
	if !from.IsOwnedBy(domain.SystemFacility) {
		return fmt.Errorf("%s: %w", from.Key(), domain.ErrInvalidOwner)
	}
	if from.DataLen() != 0 {
		return fmt.Errorf("%s: %w: source carries data", from.Key(), domain.ErrInvalidAccountData)
	}
	if err := from.SubLamports(lamports); err != nil {
		return err
	}
	return to.AddLamports(lamports)
}

func CreateAccount(from, to domain.Address, lamports, space uint64, owner domain.Address) runtime.Instruction {
	data := binary.LittleEndian.AppendUint32(nil, TagCreateAccount)
	data = binary.LittleEndian.AppendUint64(data, lamports)
	data = binary.LittleEndian.AppendUint64(data, space)
	data = append(data, owner[:]...)
	return runtime.Instruction{
		Facility: domain.SystemFacility,
		Accounts: []runtime.AccountMeta{runtime.Writable(from, true), runtime.Writable(to, true)},
		Data:     data,
	}
}

func Assign(acct, owner domain.Address) runtime.Instruction {
	data := binary.LittleEndian.AppendUint32(nil, TagAssign)
	return runtime.Instruction{
		Facility: domain.SystemFacility,
		Accounts: []runtime.AccountMeta{runtime.Writable(acct, true)},
		Data:     append(data, owner[:]...),
	}
}

func Transfer(from, to domain.Address, lamports uint64) runtime.Instruction {
	data := binary.LittleEndian.AppendUint32(nil, TagTransfer)
	return runtime.Instruction{
		Facility: domain.SystemFacility,
		Accounts: []runtime.AccountMeta{runtime.Writable(from, true), runtime.Writable(to, false)},
		Data:     binary.LittleEndian.AppendUint64(data, lamports),
	}
}
