package amm

import (
	"encoding/binary"
	"fmt"

	"github.com/josh-kwaku/custody-ledger/internal/derive"
	"github.com/josh-kwaku/custody-ledger/internal/domain"
)

// ConfigLen is state, seed, authority, mint_x, mint_y, fee and bump.
const ConfigLen = 1 + 8 + 3*domain.AddressLength + 2 + 1

const (
	ConfigSeed = "config"

	// MaxFeeBasisPoints caps the swap fee at ten percent.
	MaxFeeBasisPoints = 1_000
)

type State uint8

const (
	StateUninitialized State = iota
	StateInitialized
	StateDisabled
	StateWithdrawOnly
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitialized:
		return "initialized"
	case StateDisabled:
		return "disabled"
	case StateWithdrawOnly:
		return "withdraw_only"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

type Config struct {
	State     State
	Seed      uint64
	Authority domain.Address
	MintX     domain.Address
	MintY     domain.Address
	Fee       uint16
	Bump      uint8
}

func (c *Config) Pack(dst []byte) {
	dst[0] = byte(c.State)
	binary.LittleEndian.PutUint64(dst[1:9], c.Seed)
	copy(dst[9:41], c.Authority[:])
	copy(dst[41:73], c.MintX[:])
	copy(dst[73:105], c.MintY[:])
	binary.LittleEndian.PutUint16(dst[105:107], c.Fee)
	dst[107] = c.Bump
}

func UnpackConfig(data []byte) (*Config, error) {
	if len(data) != ConfigLen {
		return nil, fmt.Errorf("UnpackConfig: %w: %d bytes", domain.ErrInvalidAccountData, len(data))
	}
	c := &Config{
		State: State(data[0]),
		Seed:  binary.LittleEndian.Uint64(data[1:9]),
		Fee:   binary.LittleEndian.Uint16(data[105:107]),
		Bump:  data[107],
	}
	copy(c.Authority[:], data[9:41])
	copy(c.MintX[:], data[41:73])
	copy(c.MintY[:], data[73:105])
	return c, nil
}

// Validate enforces the field rules every stored config satisfies.
func (c *Config) Validate() error {
	switch {
	case c.State > StateWithdrawOnly:
		return fmt.Errorf("%w: unknown state %d", domain.ErrInvalidAccountData, c.State)
	case c.Seed == 0:
		return fmt.Errorf("%w: zero seed", domain.ErrInvalidInstructionData)
	case c.Authority.IsZero() || c.MintX.IsZero() || c.MintY.IsZero():
		return fmt.Errorf("%w: zero address", domain.ErrInvalidAccountData)
	case c.Fee > MaxFeeBasisPoints:
		return fmt.Errorf("%w: fee %d bps", domain.ErrInvalidInstructionData, c.Fee)
	}
	return nil
}

func ConfigSeeds(seed uint64) [][]byte {
	return [][]byte{[]byte(ConfigSeed), binary.LittleEndian.AppendUint64(nil, seed)}
}

func (c *Config) SignerSeeds() [][]byte {
	return append(ConfigSeeds(c.Seed), []byte{c.Bump})
}

// ConfigAddress is the pool config for seed under facility.
func ConfigAddress(facility domain.Address, seed uint64) (domain.Address, uint8) {
	return derive.MustFindAddress(ConfigSeeds(seed), facility)
}
