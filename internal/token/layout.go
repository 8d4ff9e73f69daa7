package token

import (
	"encoding/binary"
	"fmt"

	"github.com/josh-kwaku/custody-ledger/internal/domain"
)

const (
	MintLen    = 82
	AccountLen = 165

	// Extended buffers carry an account-type byte right after the legacy
	// account length.
	AccountTypeOffset  = AccountLen
	ExtendedAccountLen = AccountLen + 1
	ExtendedMintLen    = AccountLen + 1

	AccountTypeMint    byte = 0x01
	AccountTypeAccount byte = 0x02
)

type AccountState uint8

const (
	StateUninitialized AccountState = 0
	StateInitialized   AccountState = 1
	StateFrozen        AccountState = 2
)

type Mint struct {
	MintAuthority   *domain.Address
	Supply          uint64
	Decimals        uint8
	IsInitialized   bool
	FreezeAuthority *domain.Address
}

type Account struct {
	Mint            domain.Address
	Owner           domain.Address
	Amount          uint64
	Delegate        *domain.Address
	State           AccountState
	IsNative        *uint64
	DelegatedAmount uint64
	CloseAuthority  *domain.Address
}

func UnpackMint(data []byte) (*Mint, error) {
	if len(data) < MintLen {
		return nil, fmt.Errorf("UnpackMint: %w: %d bytes", domain.ErrInvalidAccountData, len(data))
	}
	m := &Mint{
		MintAuthority:   getAddressOption(data[0:36]),
		Supply:          binary.LittleEndian.Uint64(data[36:44]),
		Decimals:        data[44],
		IsInitialized:   data[45] == 1,
		FreezeAuthority: getAddressOption(data[46:82]),
	}
	return m, nil
}

func (m *Mint) Pack(dst []byte) {
	putAddressOption(dst[0:36], m.MintAuthority)
	binary.LittleEndian.PutUint64(dst[36:44], m.Supply)
	dst[44] = m.Decimals
	dst[45] = boolByte(m.IsInitialized)
	putAddressOption(dst[46:82], m.FreezeAuthority)
}

// NewMintData encodes m in the legacy or the extended layout.
func NewMintData(m Mint, extended bool) []byte {
	if !extended {
		out := make([]byte, MintLen)
		m.Pack(out)
		return out
	}
	out := make([]byte, ExtendedMintLen)
	m.Pack(out)
	out[AccountTypeOffset] = AccountTypeMint
	return out
}

func UnpackAccount(data []byte) (*Account, error) {
	if len(data) < AccountLen {
		return nil, fmt.Errorf("UnpackAccount: %w: %d bytes", domain.ErrInvalidAccountData, len(data))
	}
	a := &Account{
		Amount:          binary.LittleEndian.Uint64(data[64:72]),
		Delegate:        getAddressOption(data[72:108]),
		State:           AccountState(data[108]),
		DelegatedAmount: binary.LittleEndian.Uint64(data[121:129]),
		CloseAuthority:  getAddressOption(data[129:165]),
	}
	copy(a.Mint[:], data[0:32])
	copy(a.Owner[:], data[32:64])
	if binary.LittleEndian.Uint32(data[109:113]) == 1 {
		v := binary.LittleEndian.Uint64(data[113:121])
		a.IsNative = &v
	}
	return a, nil
}

func (a *Account) Pack(dst []byte) {
	copy(dst[0:32], a.Mint[:])
	copy(dst[32:64], a.Owner[:])
	binary.LittleEndian.PutUint64(dst[64:72], a.Amount)
	putAddressOption(dst[72:108], a.Delegate)
	dst[108] = byte(a.State)
	if a.IsNative != nil {
		binary.LittleEndian.PutUint32(dst[109:113], 1)
		binary.LittleEndian.PutUint64(dst[113:121], *a.IsNative)
	} else {
		clear(dst[109:121])
	}
	binary.LittleEndian.PutUint64(dst[121:129], a.DelegatedAmount)
	putAddressOption(dst[129:165], a.CloseAuthority)
}

// NewAccountData encodes a in the legacy or the extended layout.
func NewAccountData(a Account, extended bool) []byte {
	size := AccountLen
	if extended {
		size = ExtendedAccountLen
	}
	out := make([]byte, size)
	a.Pack(out)
	if extended {
		out[AccountTypeOffset] = AccountTypeAccount
	}
	return out
}

// AmountOf reads the balance field of a token account buffer.
func AmountOf(data []byte) (uint64, error) {
	if len(data) < AccountLen {
		return 0, fmt.Errorf("AmountOf: %w: %d bytes", domain.ErrInvalidAccountData, len(data))
	}
	return binary.LittleEndian.Uint64(data[64:72]), nil
}

// OwnerOf reads the authority field of a token account buffer.
func OwnerOf(data []byte) (domain.Address, error) {
	if len(data) < AccountLen {
		return domain.Address{}, fmt.Errorf("OwnerOf: %w: %d bytes", domain.ErrInvalidAccountData, len(data))
	}
	var owner domain.Address
	copy(owner[:], data[32:64])
	return owner, nil
}

func getAddressOption(b []byte) *domain.Address {
	if binary.LittleEndian.Uint32(b[0:4]) != 1 {
		return nil
	}
	var a domain.Address
	copy(a[:], b[4:36])
	return &a
}

func putAddressOption(b []byte, a *domain.Address) {
	if a == nil {
		clear(b[0:36])
		return
	}
	binary.LittleEndian.PutUint32(b[0:4], 1)
	copy(b[4:36], a[:])
}

func boolByte(v bool) byte {
	if v {
		return 1
	}
	return 0
}
