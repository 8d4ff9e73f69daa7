package escrow

import (
	"encoding/binary"
	"fmt"

	"github.com/josh-kwaku/custody-ledger/internal/derive"
	"github.com/josh-kwaku/custody-ledger/internal/domain"
)

// StateLen is seed, maker, mint_a, mint_b, receive and bump.
const StateLen = 8 + 3*domain.AddressLength + 8 + 1

const Seed = "escrow"

// State is the offer recorded at the escrow address.
type State struct {
	Seed    uint64
	Maker   domain.Address
	MintA   domain.Address
	MintB   domain.Address
	Receive uint64
	Bump    uint8
}

func (s *State) Pack(dst []byte) {
	binary.LittleEndian.PutUint64(dst[0:8], s.Seed)
	copy(dst[8:40], s.Maker[:])
	copy(dst[40:72], s.MintA[:])
	copy(dst[72:104], s.MintB[:])
	binary.LittleEndian.PutUint64(dst[104:112], s.Receive)
	dst[112] = s.Bump
}

func UnpackState(data []byte) (*State, error) {
	if len(data) != StateLen {
		return nil, fmt.Errorf("UnpackState: %w: %d bytes", domain.ErrInvalidAccountData, len(data))
	}
	s := &State{
		Seed:    binary.LittleEndian.Uint64(data[0:8]),
		Receive: binary.LittleEndian.Uint64(data[104:112]),
		Bump:    data[112],
	}
	copy(s.Maker[:], data[8:40])
	copy(s.MintA[:], data[40:72])
	copy(s.MintB[:], data[72:104])
	return s, nil
}

// Seeds are the escrow address seeds without the bump.
func Seeds(maker domain.Address, seed uint64) [][]byte {
	return [][]byte{[]byte(Seed), maker[:], binary.LittleEndian.AppendUint64(nil, seed)}
}

// SignerSeeds are the seeds the facility presents to sign as the escrow.
func (s *State) SignerSeeds() [][]byte {
	return append(Seeds(s.Maker, s.Seed), []byte{s.Bump})
}

// Address is the escrow of maker for seed under facility.
func Address(facility, maker domain.Address, seed uint64) (domain.Address, uint8) {
	return derive.MustFindAddress(Seeds(maker, seed), facility)
}
