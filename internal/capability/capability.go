// Package capability classifies account handles by role before any facility
// reads or mutates them. Every check is read-only.
package capability

import (
	"fmt"

	"github.com/josh-kwaku/custody-ledger/internal/derive"
	"github.com/josh-kwaku/custody-ledger/internal/domain"
	"github.com/josh-kwaku/custody-ledger/internal/runtime"
	"github.com/josh-kwaku/custody-ledger/internal/token"
)

type Role int

const (
	RoleSigner Role = iota
	RoleSystemAccount
	RoleMint
	RoleTokenAccount
)

func (r Role) String() string {
	switch r {
	case RoleSigner:
		return "signer"
	case RoleSystemAccount:
		return "system_account"
	case RoleMint:
		return "mint"
	case RoleTokenAccount:
		return "token_account"
	default:
		return fmt.Sprintf("role(%d)", int(r))
	}
}

type Validator struct {
	facilities domain.Facilities
}

func New(facilities domain.Facilities) *Validator {
	return &Validator{facilities: facilities}
}

// Check dispatches to the validator for role.
func (v *Validator) Check(role Role, h *runtime.Handle) error {
	switch role {
	case RoleSigner:
		return CheckSigner(h)
	case RoleSystemAccount:
		return CheckSystemOwned(h)
	case RoleMint:
		return v.CheckMintLike(h)
	case RoleTokenAccount:
		return v.CheckTokenAccountLike(h)
	default:
		return fmt.Errorf("Check: unknown role %s", role)
	}
}

func CheckSigner(h *runtime.Handle) error {
	if !h.IsSigner() {
		return fmt.Errorf("CheckSigner %s: %w", h.Key(), domain.ErrAuthorization)
	}
	return nil
}

func CheckSystemOwned(h *runtime.Handle) error {
	return CheckOwnedBy(h, domain.SystemFacility)
}

func CheckOwnedBy(h *runtime.Handle, facility domain.Address) error {
	if !h.IsOwnedBy(facility) {
		return fmt.Errorf("CheckOwnedBy %s: %w: owner %s, want %s", h.Key(), domain.ErrInvalidOwner, h.Owner(), facility)
	}
	return nil
}

// CheckMintLike accepts a legacy mint of exactly MintLen bytes, or an
// extended-facility mint that is either MintLen bytes or carries the mint
// discriminator.
func (v *Validator) CheckMintLike(h *runtime.Handle) error {
	switch h.Owner() {
	case v.facilities.Token:
		if h.DataLen() != token.MintLen {
			return fmt.Errorf("CheckMintLike %s: %w: %d bytes", h.Key(), domain.ErrInvalidAccountData, h.DataLen())
		}
		return nil
	case v.facilities.ExtendedToken:
		if h.DataLen() == token.MintLen {
			return nil
		}
		return discriminated(h, token.AccountTypeMint, "CheckMintLike")
	default:
		return fmt.Errorf("CheckMintLike %s: %w", h.Key(), domain.ErrInvalidOwner)
	}
}

// CheckTokenAccountLike accepts a legacy token account of exactly
// AccountLen bytes, or an extended-facility account that is AccountLen
// bytes or carries the account discriminator.
func (v *Validator) CheckTokenAccountLike(h *runtime.Handle) error {
	switch h.Owner() {
	case v.facilities.Token:
		if h.DataLen() != token.AccountLen {
			return fmt.Errorf("CheckTokenAccountLike %s: %w: %d bytes", h.Key(), domain.ErrInvalidAccountData, h.DataLen())
		}
		return nil
	case v.facilities.ExtendedToken:
		if h.DataLen() == token.AccountLen {
			return nil
		}
		return discriminated(h, token.AccountTypeAccount, "CheckTokenAccountLike")
	default:
		return fmt.Errorf("CheckTokenAccountLike %s: %w", h.Key(), domain.ErrInvalidOwner)
	}
}

// CheckAssociatedTokenOf requires h to be the canonical token account of
// authority for mint under the facility that owns h.
func (v *Validator) CheckAssociatedTokenOf(h *runtime.Handle, authority, mint domain.Address) error {
	if err := v.CheckTokenAccountLike(h); err != nil {
		return err
	}
	want, _, err := derive.AssociatedTokenAddress(authority, h.Owner(), mint, v.facilities.AssociatedToken)
	if err != nil {
		return fmt.Errorf("CheckAssociatedTokenOf: %w", err)
	}
	if h.Key() != want {
		return fmt.Errorf("CheckAssociatedTokenOf %s: %w: want %s", h.Key(), domain.ErrInvalidOwner, want)
	}
	return nil
}

// CheckProgramAccount requires a facility-owned state record of exactly
// length bytes.
func CheckProgramAccount(h *runtime.Handle, facility domain.Address, length int) error {
	if err := CheckOwnedBy(h, facility); err != nil {
		return err
	}
	if h.DataLen() != length {
		return fmt.Errorf("CheckProgramAccount %s: %w: %d bytes, want %d", h.Key(), domain.ErrInvalidAccountData, h.DataLen(), length)
	}
	return nil
}

func discriminated(h *runtime.Handle, want byte, op string) error {
	return h.Read(func(data []byte) error {
		if len(data) <= token.AccountTypeOffset || data[token.AccountTypeOffset] != want {
			return fmt.Errorf("%s %s: %w: missing discriminator", op, h.Key(), domain.ErrInvalidAccountData)
		}
		return nil
	})
}
