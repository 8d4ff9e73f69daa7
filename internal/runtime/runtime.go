// Package runtime executes signed transactions against account state. Each
// transaction runs its instructions in order on a private working set and
// commits every change or none.
package runtime

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"math/bits"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/josh-kwaku/custody-ledger/internal/derive"
	"github.com/josh-kwaku/custody-ledger/internal/domain"
	"github.com/josh-kwaku/custody-ledger/internal/logging"
)

// LoaderOwner owns the synthesized accounts that stand for registered
// facilities.
var LoaderOwner = domain.MustParseAddress("BPFLoaderUpgradeab1e11111111111111111111111")

type Runtime struct {
	mu       sync.Mutex
	store    Store
	programs map[domain.Address]Program
	rent     Rent
}

type Option func(*Runtime)

func WithRent(rent Rent) Option {
	return func(r *Runtime) { r.rent = rent }
}

func New(store Store, opts ...Option) *Runtime {
	r := &Runtime{
		store:    store,
		programs: make(map[domain.Address]Program),
		rent:     DefaultRent(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

func (r *Runtime) Register(id domain.Address, p Program) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.programs[id] = p
}

func (r *Runtime) Rent() Rent { return r.rent }

type Receipt struct {
	TxID    uuid.UUID        `json:"tx_id"`
	Changed []domain.Address `json:"changed"`
	Removed []domain.Address `json:"removed"`
}

// Execute runs tx atomically. Failures inside an instruction are returned
// as *InstructionError.
func (r *Runtime) Execute(ctx context.Context, tx *Transaction) (*Receipt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	log := logging.FromContext(ctx).With("tx_id", tx.ID.String())

	if err := tx.validate(); err != nil {
		return nil, fmt.Errorf("Execute: %w", err)
	}
	if err := tx.VerifySignatures(); err != nil {
		return nil, fmt.Errorf("Execute: %w", err)
	}
	seen, err := r.store.HasTransaction(ctx, tx.ID)
	if err != nil {
		return nil, fmt.Errorf("Execute: %w", err)
	}
	if seen {
		return nil, fmt.Errorf("Execute: %w: %s", domain.ErrDuplicateTransaction, tx.ID)
	}

	exec, err := r.load(ctx, tx, log)
	if err != nil {
		return nil, fmt.Errorf("Execute: %w", err)
	}

	for i, ix := range tx.Instructions {
		if sysvar, ok := exec.accounts[domain.InstructionsSysvar]; ok {
			encoded, err := EncodeInstructions(tx.Instructions, i)
			if err != nil {
				return nil, fmt.Errorf("Execute: %w", err)
			}
			sysvar.Data = encoded
		}
		if err := exec.top(ix); err != nil {
			log.Warn("transaction aborted",
				"instruction", i,
				"facility", ix.Facility.String(),
				"category", domain.CategoryOf(err),
				"error", err,
			)
			return nil, &InstructionError{Index: i, Facility: ix.Facility, Err: err}
		}
	}

	receipt := &Receipt{TxID: tx.ID}
	changes := exec.changes(receipt)
	if err := r.store.Commit(ctx, tx.ID, changes); err != nil {
		return nil, fmt.Errorf("Execute: commit: %w", err)
	}

	log.Info("transaction committed",
		"instructions", len(tx.Instructions),
		"changed", len(receipt.Changed),
		"removed", len(receipt.Removed),
	)
	return receipt, nil
}

// Account returns the committed state at addr.
func (r *Runtime) Account(ctx context.Context, addr domain.Address) (*domain.Account, error) {
	loaded, err := r.store.Load(ctx, []domain.Address{addr})
	if err != nil {
		return nil, fmt.Errorf("Account: %w", err)
	}
	acct, ok := loaded[addr]
	if !ok {
		return nil, fmt.Errorf("Account %s: %w", addr, domain.ErrNotFound)
	}
	return acct, nil
}

// Airdrop credits lamports to addr outside any transaction, creating a
// system-owned account when none exists.
func (r *Runtime) Airdrop(ctx context.Context, addr domain.Address, lamports uint64) (*Receipt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if lamports == 0 {
		return nil, fmt.Errorf("Airdrop: %w: zero lamports", domain.ErrInvalidRequest)
	}
	loaded, err := r.store.Load(ctx, []domain.Address{addr})
	if err != nil {
		return nil, fmt.Errorf("Airdrop: %w", err)
	}
	acct, ok := loaded[addr]
	if !ok {
		acct = &domain.Account{Owner: domain.SystemFacility, Data: []byte{}}
	}
	acct = acct.Clone()
	sum, carry := bits.Add64(acct.Lamports, lamports, 0)
	if carry != 0 {
		return nil, fmt.Errorf("Airdrop: %w", domain.ErrArithmeticOverflow)
	}
	acct.Lamports = sum

	id := uuid.New()
	if err := r.store.Commit(ctx, id, map[domain.Address]*domain.Account{addr: acct}); err != nil {
		return nil, fmt.Errorf("Airdrop: %w", err)
	}
	return &Receipt{TxID: id, Changed: []domain.Address{addr}}, nil
}

type execution struct {
	rt       *Runtime
	ctx      context.Context
	tx       *Transaction
	logger   *slog.Logger
	keys     []domain.Address
	accounts map[domain.Address]*domain.Account
	original map[domain.Address]*domain.Account
	borrows  map[domain.Address]*borrow
	readonly map[domain.Address]bool
	stack    []domain.Address
}

func (r *Runtime) load(ctx context.Context, tx *Transaction, log *slog.Logger) (*execution, error) {
	e := &execution{
		rt:       r,
		ctx:      ctx,
		tx:       tx,
		logger:   log,
		accounts: make(map[domain.Address]*domain.Account),
		original: make(map[domain.Address]*domain.Account),
		borrows:  make(map[domain.Address]*borrow),
		readonly: make(map[domain.Address]bool),
	}

	seen := make(map[domain.Address]bool)
	for _, ix := range tx.Instructions {
		for _, m := range ix.Accounts {
			if seen[m.Address] {
				continue
			}
			seen[m.Address] = true
			e.borrows[m.Address] = &borrow{}
			switch _, registered := r.programs[m.Address]; {
			case m.Address == domain.InstructionsSysvar:
				e.readonly[m.Address] = true
				e.accounts[m.Address] = &domain.Account{Owner: domain.SysvarOwner, Lamports: 1, Data: []byte{}}
			case registered:
				e.readonly[m.Address] = true
				e.accounts[m.Address] = &domain.Account{Owner: LoaderOwner, Lamports: 1, Data: []byte{}, Executable: true}
			default:
				e.keys = append(e.keys, m.Address)
			}
		}
	}

	loaded, err := r.store.Load(ctx, e.keys)
	if err != nil {
		return nil, fmt.Errorf("load: %w", err)
	}
	for _, k := range e.keys {
		if acct, ok := loaded[k]; ok {
			e.original[k] = acct
			e.accounts[k] = acct.Clone()
			continue
		}
		e.accounts[k] = &domain.Account{Owner: domain.SystemFacility, Data: []byte{}}
	}
	return e, nil
}

func (e *execution) top(ix Instruction) error {
	prog, ok := e.rt.programs[ix.Facility]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrUnknownFacility, ix.Facility)
	}
	return e.run(ix.Facility, prog, ix.Data, e.handles(ix.Accounts))
}

func (e *execution) handles(metas []AccountMeta) []*Handle {
	out := make([]*Handle, len(metas))
	for i, m := range metas {
		out[i] = &Handle{
			key:      m.Address,
			signer:   m.IsSigner,
			writable: m.IsWritable && !e.readonly[m.Address],
			acct:     e.accounts[m.Address],
			borrow:   e.borrows[m.Address],
		}
	}
	return out
}

func (e *execution) run(id domain.Address, prog Program, data []byte, handles []*Handle) error {
	f := newFrame(id, handles)
	f.snapshot(e)

	e.stack = append(e.stack, id)
	defer func() { e.stack = e.stack[:len(e.stack)-1] }()

	ictx := &Context{ProgramID: id, Rent: e.rt.rent, TxID: e.tx.ID, exec: e, frame: f}
	if err := prog.Process(ictx, data, handles); err != nil {
		return err
	}
	return e.verify(f)
}

func (e *execution) invoke(caller *Context, ix Instruction, signerSeeds [][][]byte) error {
	if len(e.stack) > MaxInvokeDepth {
		return domain.ErrCallDepthExceeded
	}
	for _, id := range e.stack {
		if id == ix.Facility && id != caller.ProgramID {
			return domain.ErrReentrancy
		}
	}
	prog, ok := e.rt.programs[ix.Facility]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrUnknownFacility, ix.Facility)
	}

	signers := make(map[domain.Address]bool, len(signerSeeds))
	for _, seeds := range signerSeeds {
		addr, err := derive.CreateAddress(seeds, caller.ProgramID)
		if err != nil {
			return err
		}
		signers[addr] = true
	}

	f := caller.frame
	for _, m := range ix.Accounts {
		if _, ok := f.pre[m.Address]; !ok {
			return fmt.Errorf("%w: %s not available to caller", domain.ErrNotEnoughAccountKeys, m.Address)
		}
		if m.IsWritable && !f.writable[m.Address] && !e.readonly[m.Address] {
			return fmt.Errorf("%w: %s is not writable", domain.ErrPrivilegeEscalation, m.Address)
		}
		if m.IsSigner && !f.signer[m.Address] && !signers[m.Address] {
			return fmt.Errorf("%w: %s did not sign", domain.ErrPrivilegeEscalation, m.Address)
		}
		if e.borrows[m.Address].state != 0 {
			return fmt.Errorf("%w: %s", domain.ErrAccountBorrowFailed, m.Address)
		}
	}

	if err := e.verify(f); err != nil {
		return err
	}
	if err := e.run(ix.Facility, prog, ix.Data, e.handles(ix.Accounts)); err != nil {
		return err
	}
	f.snapshot(e)
	return nil
}

func (e *execution) verify(f *frame) error {
	var preHi, preLo, postHi, postLo uint64
	for _, k := range f.keys {
		pre, post := f.pre[k], e.accounts[k]
		if err := verifyAccount(f.programID, pre, post, f.writable[k]); err != nil {
			return fmt.Errorf("%s: %w", k, err)
		}
		var c uint64
		preLo, c = bits.Add64(preLo, pre.Lamports, 0)
		preHi += c
		postLo, c = bits.Add64(postLo, post.Lamports, 0)
		postHi += c
	}
	if preHi != postHi || preLo != postLo {
		return domain.ErrUnbalancedInstruction
	}
	return nil
}

func verifyAccount(programID domain.Address, pre, post *domain.Account, writable bool) error {
	if pre.Equal(post) {
		return nil
	}
	if !writable {
		return domain.ErrReadonlyAccountModified
	}
	if pre.Executable != post.Executable {
		return domain.ErrExternalAccountModified
	}
	owned := pre.Owner == programID
	if pre.Owner != post.Owner && (!owned || !isZeroed(post.Data)) {
		return domain.ErrExternalAccountModified
	}
	if post.Lamports < pre.Lamports && !owned {
		return domain.ErrExternalAccountModified
	}
	if !bytes.Equal(pre.Data, post.Data) && !owned {
		return domain.ErrExternalAccountModified
	}
	return nil
}

func (e *execution) changes(receipt *Receipt) map[domain.Address]*domain.Account {
	out := make(map[domain.Address]*domain.Account)
	for _, k := range e.keys {
		post := e.accounts[k]
		orig, existed := e.original[k]
		if post.Lamports == 0 {
			if existed {
				out[k] = nil
				receipt.Removed = append(receipt.Removed, k)
			}
			continue
		}
		if !existed || !orig.Equal(post) {
			out[k] = post
			receipt.Changed = append(receipt.Changed, k)
		}
	}
	sortAddresses(receipt.Changed)
	sortAddresses(receipt.Removed)
	return out
}

type frame struct {
	programID domain.Address
	keys      []domain.Address
	writable  map[domain.Address]bool
	signer    map[domain.Address]bool
	pre       map[domain.Address]*domain.Account
}

func newFrame(id domain.Address, handles []*Handle) *frame {
	f := &frame{
		programID: id,
		writable:  make(map[domain.Address]bool),
		signer:    make(map[domain.Address]bool),
		pre:       make(map[domain.Address]*domain.Account),
	}
	for _, h := range handles {
		if _, dup := f.writable[h.key]; !dup {
			f.keys = append(f.keys, h.key)
		}
		f.writable[h.key] = f.writable[h.key] || h.writable
		f.signer[h.key] = f.signer[h.key] || h.signer
	}
	return f
}

func (f *frame) snapshot(e *execution) {
	for _, k := range f.keys {
		f.pre[k] = e.accounts[k].Clone()
	}
}

func isZeroed(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}

func sortAddresses(addrs []domain.Address) {
	sort.Slice(addrs, func(i, j int) bool { return addrs[i].Compare(addrs[j]) < 0 })
}
