// Package derive computes facility-controlled addresses: addresses with no
// private key that a facility signs for by presenting the seeds they were
// derived from.
package derive

import (
	"crypto/sha256"
	"fmt"

	"filippo.io/edwards25519"

	"github.com/josh-kwaku/custody-ledger/internal/domain"
)

const (
	MaxSeeds      = 16
	MaxSeedLength = 32
)

const marker = "ProgramDerivedAddress"

// CreateAddress hashes seeds exactly as given, bump included, and fails with
// ErrInvalidSeeds when the digest is a valid curve point.
func CreateAddress(seeds [][]byte, facility domain.Address) (domain.Address, error) {
	if len(seeds) > MaxSeeds {
		return domain.Address{}, fmt.Errorf("CreateAddress: %w: %d seeds", domain.ErrInvalidSeeds, len(seeds))
	}
	for _, s := range seeds {
		if len(s) > MaxSeedLength {
			return domain.Address{}, fmt.Errorf("CreateAddress: %w: seed of %d bytes", domain.ErrInvalidSeeds, len(s))
		}
	}

	addr := hash(seeds, facility)
	if IsOnCurve(addr) {
		return domain.Address{}, fmt.Errorf("CreateAddress: %w: address on curve", domain.ErrInvalidSeeds)
	}
	return addr, nil
}

// FindAddress searches bumps from 255 down and returns the first off-curve
// address together with the bump that produced it.
func FindAddress(seeds [][]byte, facility domain.Address) (domain.Address, uint8, error) {
	return find(seeds, facility, IsOnCurve)
}

func MustFindAddress(seeds [][]byte, facility domain.Address) (domain.Address, uint8) {
	addr, bump, err := FindAddress(seeds, facility)
	if err != nil {
		panic(err)
	}
	return addr, bump
}

func find(seeds [][]byte, facility domain.Address, onCurve func(domain.Address) bool) (domain.Address, uint8, error) {
	if len(seeds) >= MaxSeeds {
		return domain.Address{}, 0, fmt.Errorf("FindAddress: %w: %d seeds leaves no room for bump", domain.ErrInvalidSeeds, len(seeds))
	}
	for _, s := range seeds {
		if len(s) > MaxSeedLength {
			return domain.Address{}, 0, fmt.Errorf("FindAddress: %w: seed of %d bytes", domain.ErrInvalidSeeds, len(s))
		}
	}

	withBump := make([][]byte, len(seeds)+1)
	copy(withBump, seeds)
	for b := 255; b >= 0; b-- {
		withBump[len(seeds)] = []byte{byte(b)}
		addr := hash(withBump, facility)
		if !onCurve(addr) {
			return addr, uint8(b), nil
		}
	}
	return domain.Address{}, 0, fmt.Errorf("FindAddress: %w", domain.ErrAddressDerivationExhausted)
}

// IsOnCurve reports whether addr decodes as an ed25519 point, i.e. whether a
// private key could exist for it.
func IsOnCurve(addr domain.Address) bool {
	_, err := new(edwards25519.Point).SetBytes(addr[:])
	return err == nil
}

// AssociatedTokenAddress is the canonical token account of wallet for mint
// under the given token facility.
func AssociatedTokenAddress(wallet, tokenFacility, mint, associatedFacility domain.Address) (domain.Address, uint8, error) {
	return FindAddress([][]byte{wallet[:], tokenFacility[:], mint[:]}, associatedFacility)
}

func hash(seeds [][]byte, facility domain.Address) domain.Address {
	h := sha256.New()
	for _, s := range seeds {
		h.Write(s)
	}
	h.Write(facility[:])
	h.Write([]byte(marker))
	var out domain.Address
	copy(out[:], h.Sum(nil))
	return out
}
