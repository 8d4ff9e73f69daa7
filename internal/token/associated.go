package token

import (
	"fmt"

	"github.com/josh-kwaku/custody-ledger/internal/derive"
	"github.com/josh-kwaku/custody-ledger/internal/domain"
	"github.com/josh-kwaku/custody-ledger/internal/runtime"
	"github.com/josh-kwaku/custody-ledger/internal/system"
)

const (
	TagCreate           byte = 0
	TagCreateIdempotent byte = 1
)

// AssociatedProgram creates token accounts at
// derive([wallet, tokenFacility, mint], associatedFacility).
type AssociatedProgram struct {
	facilities domain.Facilities
	sizes      map[domain.Address]int
}

func NewAssociated(facilities domain.Facilities) *AssociatedProgram {
	return &AssociatedProgram{
		facilities: facilities,
		sizes: map[domain.Address]int{
			facilities.Token:         AccountLen,
			facilities.ExtendedToken: ExtendedAccountLen,
		},
	}
}

// Accounts: payer, associated account, wallet, mint, system facility,
// token facility.
func (p *AssociatedProgram) Process(ictx *runtime.Context, data []byte, accounts []*runtime.Handle) error {
	idempotent := false
	switch {
	case len(data) == 0 || data[0] == TagCreate:
	case len(data) == 1 && data[0] == TagCreateIdempotent:
		idempotent = true
	default:
		return fmt.Errorf("associated.Process: %w", domain.ErrInvalidInstructionData)
	}
	if len(accounts) < 6 {
		return fmt.Errorf("associated.Process: %w", domain.ErrNotEnoughAccountKeys)
	}
	payer, ata, wallet, mint, sys, tokenFacility := accounts[0], accounts[1], accounts[2], accounts[3], accounts[4], accounts[5]

	size, ok := p.sizes[tokenFacility.Key()]
	if !ok || sys.Key() != p.facilities.System {
		return fmt.Errorf("associated.Process: %w", domain.ErrIncorrectProgramID)
	}
	if !mint.IsOwnedBy(tokenFacility.Key()) {
		return fmt.Errorf("associated.Process: mint %s: %w", mint.Key(), domain.ErrInvalidOwner)
	}

	addr, bump, err := derive.FindAddress(seedsFor(wallet.Key(), tokenFacility.Key(), mint.Key()), ictx.ProgramID)
	if err != nil {
		return fmt.Errorf("associated.Process: %w", err)
	}
	if addr != ata.Key() {
		return fmt.Errorf("associated.Process: %w: expected %s", domain.ErrInvalidSeeds, addr)
	}

	if ata.IsOwnedBy(tokenFacility.Key()) {
		if !idempotent {
			return fmt.Errorf("associated.Process: %w", domain.ErrAccountAlreadyInUse)
		}
		existing, err := New(tokenFacility.Key(), false).loadAccount(ata)
		if err != nil {
			return fmt.Errorf("associated.Process: %w", err)
		}
		if existing.Owner != wallet.Key() || existing.Mint != mint.Key() {
			return fmt.Errorf("associated.Process: %w", domain.ErrInvalidOwner)
		}
		return nil
	}

	create := system.CreateAccount(payer.Key(), ata.Key(), ictx.Rent.MinimumBalance(size), uint64(size), tokenFacility.Key())
	signer := append(seedsFor(wallet.Key(), tokenFacility.Key(), mint.Key()), []byte{bump})
	if err := ictx.Invoke(create, signer); err != nil {
		return fmt.Errorf("associated.Process: %w", err)
	}
	if err := ictx.Invoke(InitializeAccount3(tokenFacility.Key(), ata.Key(), mint.Key(), wallet.Key())); err != nil {
		return fmt.Errorf("associated.Process: %w", err)
	}
	ictx.Logger().Debug("associated token account created", "account", ata.Key().String(), "wallet", wallet.Key().String())
	return nil
}

func seedsFor(wallet, tokenFacility, mint domain.Address) [][]byte {
	return [][]byte{wallet[:], tokenFacility[:], mint[:]}
}

// AssociatedAddress is the canonical token account for wallet and mint.
func AssociatedAddress(f domain.Facilities, wallet, tokenFacility, mint domain.Address) domain.Address {
	addr, _, err := derive.AssociatedTokenAddress(wallet, tokenFacility, mint, f.AssociatedToken)
	if err != nil {
		panic(err)
	}
	return addr
}

func CreateAssociated(f domain.Facilities, payer, wallet, mint, tokenFacility domain.Address, idempotent bool) runtime.Instruction {
	tag := TagCreate
	if idempotent {
		tag = TagCreateIdempotent
	}
	return runtime.Instruction{
		Facility: f.AssociatedToken,
		Accounts: []runtime.AccountMeta{
			runtime.Writable(payer, true),
			runtime.Writable(AssociatedAddress(f, wallet, tokenFacility, mint), false),
			runtime.Readonly(wallet, false),
			runtime.Readonly(mint, false),
			runtime.Readonly(f.System, false),
			runtime.Readonly(tokenFacility, false),
		},
		Data: []byte{tag},
	}
}
