// Package escrow implements a two-party swap. A maker locks an amount of one
// token at an address the facility controls and names the amount of a
// second token it wants; any taker who pays that amount receives the locked
// balance. The maker may refund an untaken offer.
package escrow

import (
	"encoding/binary"
	"fmt"

	"github.com/josh-kwaku/custody-ledger/internal/capability"
	"github.com/josh-kwaku/custody-ledger/internal/derive"
	"github.com/josh-kwaku/custody-ledger/internal/domain"
	"github.com/josh-kwaku/custody-ledger/internal/runtime"
	"github.com/josh-kwaku/custody-ledger/internal/system"
	"github.com/josh-kwaku/custody-ledger/internal/token"
)

const (
	TagMake   byte = 0
	TagTake   byte = 1
	TagRefund byte = 2
)

type Program struct {
	facilities domain.Facilities
	validator  *capability.Validator
}

func New(facilities domain.Facilities) *Program {
	return &Program{facilities: facilities, validator: capability.New(facilities)}
}

func (p *Program) Process(ictx *runtime.Context, data []byte, accounts []*runtime.Handle) error {
	if len(data) == 0 {
		return fmt.Errorf("escrow.Process: %w: empty", domain.ErrInvalidInstructionData)
	}
	switch data[0] {
	case TagMake:
		return p.open(ictx, data[1:], accounts)
	case TagTake:
		return p.take(ictx, accounts)
	case TagRefund:
		return p.refund(ictx, accounts)
	default:
		return fmt.Errorf("escrow.Process: %w: tag %d", domain.ErrInvalidInstructionData, data[0])
	}
}

// trailing checks the system, token and associated-account facility slots
// that end every account list and returns the token facility in use.
func (p *Program) trailing(accounts []*runtime.Handle) (domain.Address, error) {
	n := len(accounts)
	sys, tok, ata := accounts[n-3].Key(), accounts[n-2].Key(), accounts[n-1].Key()
	if sys != p.facilities.System || ata != p.facilities.AssociatedToken || !p.facilities.IsTokenFacility(tok) {
		return domain.Address{}, domain.ErrIncorrectProgramID
	}
	return tok, nil
}

// open accounts: maker, escrow, mint_a, mint_b, maker_ata_a, vault, system,
// token, associated.
func (p *Program) open(ictx *runtime.Context, body []byte, accounts []*runtime.Handle) error {
	if len(accounts) < 9 {
		return fmt.Errorf("Make: %w", domain.ErrNotEnoughAccountKeys)
	}
	if len(body) != 24 {
		return fmt.Errorf("Make: %w: %d bytes", domain.ErrInvalidInstructionData, len(body))
	}
	seed := binary.LittleEndian.Uint64(body[0:8])
	receive := binary.LittleEndian.Uint64(body[8:16])
	amount := binary.LittleEndian.Uint64(body[16:24])
	if receive == 0 || amount == 0 {
		return fmt.Errorf("Make: %w: zero amount", domain.ErrInvalidInstructionData)
	}

	maker, escrow, mintA, mintB, makerAtaA, vault := accounts[0], accounts[1], accounts[2], accounts[3], accounts[4], accounts[5]
	tokenFacility, err := p.trailing(accounts[:9])
	if err != nil {
		return fmt.Errorf("Make: %w", err)
	}
	if err := capability.CheckSigner(maker); err != nil {
		return fmt.Errorf("Make: %w", err)
	}
	for _, m := range []*runtime.Handle{mintA, mintB} {
		if err := p.validator.CheckMintLike(m); err != nil {
			return fmt.Errorf("Make: %w", err)
		}
		if !m.IsOwnedBy(tokenFacility) {
			return fmt.Errorf("Make: %w: mint %s", domain.ErrIncorrectProgramID, m.Key())
		}
	}
	if mintA.Key() == mintB.Key() {
		return fmt.Errorf("Make: %w: identical mints", domain.ErrInvalidAccountData)
	}
	if err := p.validator.CheckAssociatedTokenOf(makerAtaA, maker.Key(), mintA.Key()); err != nil {
		return fmt.Errorf("Make: %w", err)
	}

	addr, bump, err := derive.FindAddress(Seeds(maker.Key(), seed), ictx.ProgramID)
	if err != nil {
		return fmt.Errorf("Make: %w", err)
	}
	if addr != escrow.Key() {
		return fmt.Errorf("Make: %w: escrow %s, derived %s", domain.ErrInvalidSeeds, escrow.Key(), addr)
	}
	state := State{Seed: seed, Maker: maker.Key(), MintA: mintA.Key(), MintB: mintB.Key(), Receive: receive, Bump: bump}

	create := system.CreateAccount(maker.Key(), escrow.Key(), ictx.Rent.MinimumBalance(StateLen), StateLen, ictx.ProgramID)
	if err := ictx.Invoke(create, state.SignerSeeds()); err != nil {
		return fmt.Errorf("Make: create escrow: %w", err)
	}
	if err := escrow.Write(func(data []byte) error {
		state.Pack(data)
		return nil
	}); err != nil {
		return fmt.Errorf("Make: %w", err)
	}

	if vault.Key() != token.AssociatedAddress(p.facilities, escrow.Key(), tokenFacility, mintA.Key()) {
		return fmt.Errorf("Make: %w: vault %s", domain.ErrInvalidSeeds, vault.Key())
	}
	if err := ictx.Invoke(token.CreateAssociated(p.facilities, maker.Key(), escrow.Key(), mintA.Key(), tokenFacility, false)); err != nil {
		return fmt.Errorf("Make: create vault: %w", err)
	}
	if err := ictx.Invoke(token.Transfer(tokenFacility, makerAtaA.Key(), vault.Key(), maker.Key(), amount)); err != nil {
		return fmt.Errorf("Make: deposit: %w", err)
	}

	ictx.Logger().Info("escrow opened",
		"escrow", escrow.Key().String(),
		"maker", maker.Key().String(),
		"amount", amount,
		"receive", receive,
	)
	return nil
}

// load validates the escrow account against its recorded maker and seeds.
func (p *Program) load(ictx *runtime.Context, escrow, maker *runtime.Handle) (*State, error) {
	if err := capability.CheckProgramAccount(escrow, ictx.ProgramID, StateLen); err != nil {
		return nil, err
	}
	var state *State
	if err := escrow.Read(func(data []byte) error {
		var err error
		state, err = UnpackState(data)
		return err
	}); err != nil {
		return nil, err
	}
	if state.Maker != maker.Key() {
		return nil, fmt.Errorf("%w: escrow belongs to %s", domain.ErrInvalidAccountData, state.Maker)
	}
	addr, err := derive.CreateAddress(state.SignerSeeds(), ictx.ProgramID)
	if err != nil {
		return nil, err
	}
	if addr != escrow.Key() {
		return nil, fmt.Errorf("%w: escrow %s", domain.ErrInvalidSeeds, escrow.Key())
	}
	return state, nil
}

// release moves the whole vault to dest and closes the vault and the escrow
// into maker.
func (p *Program) release(ictx *runtime.Context, state *State, tokenFacility domain.Address, escrow, vault, dest, maker *runtime.Handle) (uint64, error) {
	var held uint64
	if err := vault.Read(func(data []byte) error {
		var err error
		held, err = token.AmountOf(data)
		return err
	}); err != nil {
		return 0, err
	}
	seeds := state.SignerSeeds()
	if err := ictx.Invoke(token.Transfer(tokenFacility, vault.Key(), dest.Key(), escrow.Key(), held), seeds); err != nil {
		return 0, fmt.Errorf("release vault: %w", err)
	}
	if err := ictx.Invoke(token.CloseAccount(tokenFacility, vault.Key(), maker.Key(), escrow.Key()), seeds); err != nil {
		return 0, fmt.Errorf("close vault: %w", err)
	}
	if err := escrow.CloseInto(maker); err != nil {
		return 0, fmt.Errorf("close escrow: %w", err)
	}
	return held, nil
}

// take accounts: taker, maker, escrow, mint_a, mint_b, vault, taker_ata_a,
// taker_ata_b, maker_ata_b, system, token, associated.
func (p *Program) take(ictx *runtime.Context, accounts []*runtime.Handle) error {
	if len(accounts) < 12 {
		return fmt.Errorf("Take: %w", domain.ErrNotEnoughAccountKeys)
	}
	taker, maker, escrow, mintA, mintB, vault := accounts[0], accounts[1], accounts[2], accounts[3], accounts[4], accounts[5]
	takerAtaA, takerAtaB, makerAtaB := accounts[6], accounts[7], accounts[8]

	tokenFacility, err := p.trailing(accounts[:12])
	if err != nil {
		return fmt.Errorf("Take: %w", err)
	}
	if err := capability.CheckSigner(taker); err != nil {
		return fmt.Errorf("Take: %w", err)
	}
	state, err := p.load(ictx, escrow, maker)
	if err != nil {
		return fmt.Errorf("Take: %w", err)
	}
	if state.MintA != mintA.Key() || state.MintB != mintB.Key() {
		return fmt.Errorf("Take: %w", domain.ErrMintMismatch)
	}
	if err := p.validator.CheckAssociatedTokenOf(vault, escrow.Key(), mintA.Key()); err != nil {
		return fmt.Errorf("Take: vault: %w", err)
	}
	if err := p.validator.CheckAssociatedTokenOf(takerAtaB, taker.Key(), mintB.Key()); err != nil {
		return fmt.Errorf("Take: %w", err)
	}

	for _, want := range []struct{ wallet, mint domain.Address }{{taker.Key(), mintA.Key()}, {maker.Key(), mintB.Key()}} {
		ix := token.CreateAssociated(p.facilities, taker.Key(), want.wallet, want.mint, tokenFacility, true)
		if err := ictx.Invoke(ix); err != nil {
			return fmt.Errorf("Take: %w", err)
		}
	}
	if takerAtaA.Key() != token.AssociatedAddress(p.facilities, taker.Key(), tokenFacility, mintA.Key()) ||
		makerAtaB.Key() != token.AssociatedAddress(p.facilities, maker.Key(), tokenFacility, mintB.Key()) {
		return fmt.Errorf("Take: %w: associated account mismatch", domain.ErrInvalidSeeds)
	}

	if err := ictx.Invoke(token.Transfer(tokenFacility, takerAtaB.Key(), makerAtaB.Key(), taker.Key(), state.Receive)); err != nil {
		return fmt.Errorf("Take: pay maker: %w", err)
	}
	released, err := p.release(ictx, state, tokenFacility, escrow, vault, takerAtaA, maker)
	if err != nil {
		return fmt.Errorf("Take: %w", err)
	}

	ictx.Logger().Info("escrow taken",
		"escrow", escrow.Key().String(),
		"taker", taker.Key().String(),
		"paid", state.Receive,
		"released", released,
	)
	return nil
}

// refund accounts: maker, escrow, mint_a, vault, maker_ata_a, system, token,
// associated.
func (p *Program) refund(ictx *runtime.Context, accounts []*runtime.Handle) error {
	if len(accounts) < 8 {
		return fmt.Errorf("Refund: %w", domain.ErrNotEnoughAccountKeys)
	}
	maker, escrow, mintA, vault, makerAtaA := accounts[0], accounts[1], accounts[2], accounts[3], accounts[4]

	tokenFacility, err := p.trailing(accounts[:8])
	if err != nil {
		return fmt.Errorf("Refund: %w", err)
	}
	if err := capability.CheckSigner(maker); err != nil {
		return fmt.Errorf("Refund: %w", err)
	}
	state, err := p.load(ictx, escrow, maker)
	if err != nil {
		return fmt.Errorf("Refund: %w", err)
	}
	if state.MintA != mintA.Key() {
		return fmt.Errorf("Refund: %w", domain.ErrMintMismatch)
	}
	if err := p.validator.CheckAssociatedTokenOf(vault, escrow.Key(), mintA.Key()); err != nil {
		return fmt.Errorf("Refund: vault: %w", err)
	}
	if err := ictx.Invoke(token.CreateAssociated(p.facilities, maker.Key(), maker.Key(), mintA.Key(), tokenFacility, true)); err != nil {
		return fmt.Errorf("Refund: %w", err)
	}
	if makerAtaA.Key() != token.AssociatedAddress(p.facilities, maker.Key(), tokenFacility, mintA.Key()) {
		return fmt.Errorf("Refund: %w: associated account mismatch", domain.ErrInvalidSeeds)
	}

	refunded, err := p.release(ictx, state, tokenFacility, escrow, vault, makerAtaA, maker)
	if err != nil {
		return fmt.Errorf("Refund: %w", err)
	}
	ictx.Logger().Info("escrow refunded", "escrow", escrow.Key().String(), "amount", refunded)
	return nil
}

func trailingMetas(f domain.Facilities, tokenFacility domain.Address) []runtime.AccountMeta {
	return []runtime.AccountMeta{
		runtime.Readonly(f.System, false),
		runtime.Readonly(tokenFacility, false),
		runtime.Readonly(f.AssociatedToken, false),
	}
}

// Make opens an escrow for maker. tokenFacility owns both mints.
func Make(f domain.Facilities, tokenFacility, maker, mintA, mintB domain.Address, seed, receive, amount uint64) runtime.Instruction {
	escrow, _ := Address(f.Escrow, maker, seed)
	data := []byte{TagMake}
	data = binary.LittleEndian.AppendUint64(data, seed)
	data = binary.LittleEndian.AppendUint64(data, receive)
	data = binary.LittleEndian.AppendUint64(data, amount)
	metas := []runtime.AccountMeta{
		runtime.Writable(maker, true),
		runtime.Writable(escrow, false),
		runtime.Readonly(mintA, false),
		runtime.Readonly(mintB, false),
		runtime.Writable(token.AssociatedAddress(f, maker, tokenFacility, mintA), false),
		runtime.Writable(token.AssociatedAddress(f, escrow, tokenFacility, mintA), false),
	}
	return runtime.Instruction{Facility: f.Escrow, Accounts: append(metas, trailingMetas(f, tokenFacility)...), Data: data}
}

func Take(f domain.Facilities, tokenFacility, taker, maker, mintA, mintB domain.Address, seed uint64) runtime.Instruction {
	escrow, _ := Address(f.Escrow, maker, seed)
	metas := []runtime.AccountMeta{
		runtime.Writable(taker, true),
		runtime.Writable(maker, false),
		runtime.Writable(escrow, false),
		runtime.Readonly(mintA, false),
		runtime.Readonly(mintB, false),
		runtime.Writable(token.AssociatedAddress(f, escrow, tokenFacility, mintA), false),
		runtime.Writable(token.AssociatedAddress(f, taker, tokenFacility, mintA), false),
		runtime.Writable(token.AssociatedAddress(f, taker, tokenFacility, mintB), false),
		runtime.Writable(token.AssociatedAddress(f, maker, tokenFacility, mintB), false),
	}
	return runtime.Instruction{Facility: f.Escrow, Accounts: append(metas, trailingMetas(f, tokenFacility)...), Data: []byte{TagTake}}
}

func Refund(f domain.Facilities, tokenFacility, maker, mintA domain.Address, seed uint64) runtime.Instruction {
	escrow, _ := Address(f.Escrow, maker, seed)
	metas := []runtime.AccountMeta{
		runtime.Writable(maker, true),
		runtime.Writable(escrow, false),
		runtime.Readonly(mintA, false),
		runtime.Writable(token.AssociatedAddress(f, escrow, tokenFacility, mintA), false),
		runtime.Writable(token.AssociatedAddress(f, maker, tokenFacility, mintA), false),
	}
	return runtime.Instruction{Facility: f.Escrow, Accounts: append(metas, trailingMetas(f, tokenFacility)...), Data: []byte{TagRefund}}
}
