package runtime

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/josh-kwaku/custody-ledger/internal/domain"
)

const (
	MaxInvokeDepth         = 4
	MaxInstructions        = 64
	MaxInstructionAccounts = 64
	MaxInstructionData     = 1232
	MaxAccountDataLength   = 10 * 1024 * 1024
	// MaxInstructionListLen bounds the encoded instructions sysvar so every
	// offset fits its u16 slot.
	MaxInstructionListLen = 1<<16 - 1
)

// Program is a facility's single entry point.
type Program interface {
	Process(ictx *Context, data []byte, accounts []*Handle) error
}

type ProgramFunc func(ictx *Context, data []byte, accounts []*Handle) error

func (f ProgramFunc) Process(ictx *Context, data []byte, accounts []*Handle) error {
	return f(ictx, data, accounts)
}

// Store persists committed account state.
type Store interface {
	// Load returns the accounts that exist; absent addresses are omitted.
	Load(ctx context.Context, addrs []domain.Address) (map[domain.Address]*domain.Account, error)
	// Commit writes changes atomically and records txID. A nil account
	// deletes the address. A txID seen before fails with
	// ErrDuplicateTransaction.
	Commit(ctx context.Context, txID uuid.UUID, changes map[domain.Address]*domain.Account) error
	HasTransaction(ctx context.Context, txID uuid.UUID) (bool, error)
}

// InstructionError reports which top-level instruction aborted a
// transaction.
type InstructionError struct {
	Index    int
	Facility domain.Address
	Err      error
}

func (e *InstructionError) Error() string {
	return fmt.Sprintf("instruction %d (%s): %v", e.Index, e.Facility, e.Err)
}

func (e *InstructionError) Unwrap() error { return e.Err }

// Context is handed to a facility for one invocation.
type Context struct {
	ProgramID domain.Address
	Rent      Rent
	TxID      uuid.UUID

	exec  *execution
	frame *frame
}

func (c *Context) Logger() *slog.Logger {
	return c.exec.logger.With("facility", c.ProgramID.String(), "depth", len(c.exec.stack))
}

func (c *Context) Context() context.Context {
	return c.exec.ctx
}

// Invoke calls another facility from inside the current one. Each entry of
// signerSeeds is the full seed list, bump included, of an address this
// facility signs for.
func (c *Context) Invoke(ix Instruction, signerSeeds ...[][]byte) error {
	if err := c.exec.invoke(c, ix, signerSeeds); err != nil {
		return fmt.Errorf("Invoke %s: %w", ix.Facility, err)
	}
	return nil
}
