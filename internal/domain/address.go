package domain

import (
	"bytes"
	"crypto/sha256"
	"fmt"

	"github.com/mr-tron/base58"
)

const AddressLength = 32

// Address identifies a ledger account or a facility. It is rendered in base58.
type Address [AddressLength]byte

func (a Address) String() string {
	return base58.Encode(a[:])
}

func (a Address) Bytes() []byte {
	return a[:]
}

func (a Address) IsZero() bool {
	return a == Address{}
}

func (a Address) Compare(b Address) int {
	return bytes.Compare(a[:], b[:])
}

func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *Address) UnmarshalText(text []byte) error {
	parsed, err := ParseAddress(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

func ParseAddress(s string) (Address, error) {
	raw, err := base58.Decode(s)
	if err != nil {
		return Address{}, fmt.Errorf("ParseAddress: %w: %v", ErrInvalidAddress, err)
	}
	if len(raw) != AddressLength {
		return Address{}, fmt.Errorf("ParseAddress: %w: decoded %d bytes", ErrInvalidAddress, len(raw))
	}
	var a Address
	copy(a[:], raw)
	return a, nil
}

func MustParseAddress(s string) Address {
	a, err := ParseAddress(s)
	if err != nil {
		panic(err)
	}
	return a
}

func AddressFromBytes(b []byte) (Address, error) {
	if len(b) != AddressLength {
		return Address{}, fmt.Errorf("AddressFromBytes: %w: got %d bytes", ErrInvalidAddress, len(b))
	}
	var a Address
	copy(a[:], b)
	return a, nil
}

// LabelAddress hashes a label into an address. Used for the default
// identities of this repository's own facilities.
func LabelAddress(label string) Address {
	return Address(sha256.Sum256([]byte("facility/" + label)))
}
