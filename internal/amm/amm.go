// Package amm sets up constant-product exchange pools: a config record at a
// derived address and one vault per side owned by that config. Pricing and
// liquidity are handled elsewhere.
package amm

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

const TagInitialize byte = 0

type Program struct {
	facilities domain.Facilities
	validator  *capability.Validator
}

func New(facilities domain.Facilities) *Program {
	return &Program{facilities: facilities, validator: capability.New(facilities)}
}

func (p *Program) Process(ictx *runtime.Context, data []byte, accounts []*runtime.Handle) error {
	if len(data) == 0 {
		return fmt.Errorf("amm.Process: %w: empty", domain.ErrInvalidInstructionData)
	}
	switch data[0] {
	case TagInitialize:
		return p.initialize(ictx, data[1:], accounts)
	default:
		return fmt.Errorf("amm.Process: %w: tag %d", domain.ErrInvalidInstructionData, data[0])
	}
}

// initialize accounts: authority, config, mint_x, mint_y, vault_x, vault_y,
// system, token, associated.
func (p *Program) initialize(ictx *runtime.Context, body []byte, accounts []*runtime.Handle) error {
	if len(accounts) < 9 {
		return fmt.Errorf("Initialize: %w", domain.ErrNotEnoughAccountKeys)
	}
	if len(body) != 10 {
		return fmt.Errorf("Initialize: %w: %d bytes", domain.ErrInvalidInstructionData, len(body))
	}
	authority, config, mintX, mintY, vaultX, vaultY := accounts[0], accounts[1], accounts[2], accounts[3], accounts[4], accounts[5]
	sys, tok, ata := accounts[6].Key(), accounts[7].Key(), accounts[8].Key()
	if sys != p.facilities.System || ata != p.facilities.AssociatedToken || !p.facilities.IsTokenFacility(tok) {
		return fmt.Errorf("Initialize: %w", domain.ErrIncorrectProgramID)
	}

	if err := capability.CheckSigner(authority); err != nil {
		return fmt.Errorf("Initialize: %w", err)
	}
	for _, m := range []*runtime.Handle{mintX, mintY} {
		if err := p.validator.CheckMintLike(m); err != nil {
			return fmt.Errorf("Initialize: %w", err)
		}
		if !m.IsOwnedBy(tok) {
			return fmt.Errorf("Initialize: %w: mint %s", domain.ErrIncorrectProgramID, m.Key())
		}
	}
	if mintX.Key() == mintY.Key() {
		return fmt.Errorf("Initialize: %w: identical mints", domain.ErrInvalidAccountData)
	}

	cfg := Config{
		State:     StateInitialized,
		Seed:      binary.LittleEndian.Uint64(body[0:8]),
		Authority: authority.Key(),
		MintX:     mintX.Key(),
		MintY:     mintY.Key(),
		Fee:       binary.LittleEndian.Uint16(body[8:10]),
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("Initialize: %w", err)
	}
	addr, bump, err := derive.FindAddress(ConfigSeeds(cfg.Seed), ictx.ProgramID)
	if err != nil {
		return fmt.Errorf("Initialize: %w", err)
	}
	if addr != config.Key() {
		return fmt.Errorf("Initialize: %w: config %s, derived %s", domain.ErrInvalidSeeds, config.Key(), addr)
	}
	cfg.Bump = bump

	for _, v := range []struct {
		vault *runtime.Handle
		mint  domain.Address
	}{{vaultX, cfg.MintX}, {vaultY, cfg.MintY}} {
		if v.vault.Key() != token.AssociatedAddress(p.facilities, config.Key(), tok, v.mint) {
			return fmt.Errorf("Initialize: %w: vault %s", domain.ErrInvalidSeeds, v.vault.Key())
		}
	}

	create := system.CreateAccount(authority.Key(), config.Key(), ictx.Rent.MinimumBalance(ConfigLen), ConfigLen, ictx.ProgramID)
	if err := ictx.Invoke(create, cfg.SignerSeeds()); err != nil {
		return fmt.Errorf("Initialize: create config: %w", err)
	}
	if err := config.Write(func(data []byte) error {
		cfg.Pack(data)
		return nil
	}); err != nil {
		return fmt.Errorf("Initialize: %w", err)
	}
	for _, mint := range []domain.Address{cfg.MintX, cfg.MintY} {
		if err := ictx.Invoke(token.CreateAssociated(p.facilities, authority.Key(), config.Key(), mint, tok, false)); err != nil {
			return fmt.Errorf("Initialize: create vault: %w", err)
		}
	}

	ictx.Logger().Info("exchange pool initialized",
		"config", config.Key().String(),
		"seed", cfg.Seed,
		"fee_bps", cfg.Fee,
		"state", cfg.State.String(),
	)
	return nil
}

func Initialize(f domain.Facilities, tokenFacility, authority, mintX, mintY domain.Address, seed uint64, fee uint16) runtime.Instruction {
	config, _ := ConfigAddress(f.Exchange, seed)
	data := binary.LittleEndian.AppendUint64([]byte{TagInitialize}, seed)
	data = binary.LittleEndian.AppendUint16(data, fee)
	return runtime.Instruction{
		Facility: f.Exchange,
		Accounts: []runtime.AccountMeta{
			runtime.Writable(authority, true),
			runtime.Writable(config, false),
			runtime.Readonly(mintX, false),
			runtime.Readonly(mintY, false),
			runtime.Writable(token.AssociatedAddress(f, config, tokenFacility, mintX), false),
			runtime.Writable(token.AssociatedAddress(f, config, tokenFacility, mintY), false),
			runtime.Readonly(f.System, false),
			runtime.Readonly(tokenFacility, false),
			runtime.Readonly(f.AssociatedToken, false),
		},
		Data: data,
	}
}
