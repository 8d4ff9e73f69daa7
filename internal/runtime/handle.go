package runtime

import (
	"fmt"
	"math/bits"

	"github.com/josh-kwaku/custody-ledger/internal/domain"
)

// borrow tracks outstanding views of one account buffer. Positive counts are
// shared readers, -1 is the single writer.
type borrow struct {
	state int
}

// Handle is a facility's view of one account for the duration of an
// instruction. Handles referring to the same address share state.
type Handle struct {
	key      domain.Address
	signer   bool
	writable bool
	acct     *domain.Account
	borrow   *borrow
}

func (h *Handle) Key() domain.Address { return h.key }

func (h *Handle) IsSigner() bool { return h.signer }

func (h *Handle) IsWritable() bool { return h.writable }

func (h *Handle) Owner() domain.Address { return h.acct.Owner }

func (h *Handle) Lamports() uint64 { return h.acct.Lamports }

func (h *Handle) DataLen() int { return len(h.acct.Data) }

func (h *Handle) IsExecutable() bool { return h.acct.Executable }

func (h *Handle) IsOwnedBy(id domain.Address) bool { return h.acct.Owner == id }

// Read lends the buffer to fn. The slice must not be retained after fn
// returns.
func (h *Handle) Read(fn func(data []byte) error) error {
	if h.borrow.state < 0 {
		return fmt.Errorf("Read %s: %w", h.key, domain.ErrAccountBorrowFailed)
	}
	h.borrow.state++
	defer func() { h.borrow.state-- }()
	return fn(h.acct.Data)
}

// Write lends the buffer to fn exclusively.
func (h *Handle) Write(fn func(data []byte) error) error {
	if !h.writable {
		return fmt.Errorf("Write %s: %w", h.key, domain.ErrReadonlyAccountModified)
	}
	if h.borrow.state != 0 {
		return fmt.Errorf("Write %s: %w", h.key, domain.ErrAccountBorrowFailed)
	}
	h.borrow.state = -1
	defer func() { h.borrow.state = 0 }()
	return fn(h.acct.Data)
}

// Snapshot copies the buffer out.
func (h *Handle) Snapshot() ([]byte, error) {
	var out []byte
	err := h.Read(func(data []byte) error {
		out = append([]byte(nil), data...)
		return nil
	})
	return out, err
}

func (h *Handle) mutable(op string) error {
	if !h.writable {
		return fmt.Errorf("%s %s: %w", op, h.key, domain.ErrReadonlyAccountModified)
	}
	if h.borrow.state != 0 {
		return fmt.Errorf("%s %s: %w", op, h.key, domain.ErrAccountBorrowFailed)
	}
	return nil
}

func (h *Handle) AddLamports(n uint64) error {
	if err := h.mutable("AddLamports"); err != nil {
		return err
	}
	sum, carry := bits.Add64(h.acct.Lamports, n, 0)
	if carry != 0 {
		return fmt.Errorf("AddLamports %s: %w", h.key, domain.ErrArithmeticOverflow)
	}
	h.acct.Lamports = sum
	return nil
}

func (h *Handle) SubLamports(n uint64) error {
	if err := h.mutable("SubLamports"); err != nil {
		return err
	}
	if h.acct.Lamports < n {
		return fmt.Errorf("SubLamports %s: %w", h.key, domain.ErrInsufficientFunds)
	}
	h.acct.Lamports -= n
	return nil
}

// Resize grows or shrinks the buffer. Growth is zero-filled.
func (h *Handle) Resize(n int) error {
	if err := h.mutable("Resize"); err != nil {
		return err
	}
	if n < 0 || n > MaxAccountDataLength {
		return fmt.Errorf("Resize %s: %w: length %d", h.key, domain.ErrInvalidAccountData, n)
	}
	switch {
	case n <= len(h.acct.Data):
		h.acct.Data = h.acct.Data[:n:n]
	default:
		grown := make([]byte, n)
		copy(grown, h.acct.Data)
		h.acct.Data = grown
	}
	return nil
}

func (h *Handle) Assign(owner domain.Address) error {
	if err := h.mutable("Assign"); err != nil {
		return err
	}
	h.acct.Owner = owner
	return nil
}

// CloseInto moves every lamport to dest, drops the buffer and returns the
// account to the system facility. The runtime removes it at commit.
func (h *Handle) CloseInto(dest *Handle) error {
	amount := h.acct.Lamports
	if err := h.SubLamports(amount); err != nil {
		return fmt.Errorf("CloseInto: %w", err)
	}
	if err := dest.AddLamports(amount); err != nil {
		return fmt.Errorf("CloseInto: %w", err)
	}
	if err := h.Resize(0); err != nil {
		return fmt.Errorf("CloseInto: %w", err)
	}
	if err := h.Assign(domain.SystemFacility); err != nil {
		return fmt.Errorf("CloseInto: %w", err)
	}
	return nil
}

// NewHandle builds a detached handle over acct. Used by facilities' unit
// tests and by tooling that inspects accounts outside a transaction.
func NewHandle(key domain.Address, acct *domain.Account, signer, writable bool) *Handle {
	if acct.Data == nil {
		acct.Data = []byte{}
	}
	return &Handle{key: key, signer: signer, writable: writable, acct: acct, borrow: &borrow{}}
}
