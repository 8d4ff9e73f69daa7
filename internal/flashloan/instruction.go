package flashloan

import (
	"encoding/binary"
	"fmt"
	"math/bits"

	"github.com/josh-kwaku/custody-ledger/internal/derive"
	"github.com/josh-kwaku/custody-ledger/internal/domain"
	"github.com/josh-kwaku/custody-ledger/internal/runtime"
)

const (
	SelectorIssue byte = 0
	SelectorRepay byte = 1

	MaxFeeBasisPoints = 10_000
	ProtocolSeed      = "protocol"

	// issueHeader is bump (1) and fee (2) after the selector.
	issueHeader = 3
)

// IssueArgs is the payload of an Issue instruction.
type IssueArgs struct {
	Bump    uint8
	Fee     uint16
	Amounts []uint64
}

func (a IssueArgs) Encode() []byte {
	out := make([]byte, 0, 1+issueHeader+8*len(a.Amounts))
	out = append(out, SelectorIssue, a.Bump)
	out = binary.LittleEndian.AppendUint16(out, a.Fee)
	for _, amt := range a.Amounts {
		out = binary.LittleEndian.AppendUint64(out, amt)
	}
	return out
}

// DecodeIssue parses the bytes following the selector.
func DecodeIssue(payload []byte) (IssueArgs, error) {
	if len(payload) < issueHeader+8 || (len(payload)-issueHeader)%8 != 0 {
		return IssueArgs{}, fmt.Errorf("DecodeIssue: %w: %d bytes", domain.ErrInvalidInstructionData, len(payload))
	}
	args := IssueArgs{
		Bump:    payload[0],
		Fee:     binary.LittleEndian.Uint16(payload[1:3]),
		Amounts: make([]uint64, (len(payload)-issueHeader)/8),
	}
	for i := range args.Amounts {
		off := issueHeader + 8*i
		args.Amounts[i] = binary.LittleEndian.Uint64(payload[off : off+8])
	}
	return args, nil
}

// ProtocolSeeds are the seeds of the pool authority for a fee tier, without
// the bump.
func ProtocolSeeds(fee uint16) [][]byte {
	return [][]byte{[]byte(ProtocolSeed), binary.LittleEndian.AppendUint16(nil, fee)}
}

// ProtocolAuthority derives the address that owns every pool of a fee tier.
func ProtocolAuthority(facility domain.Address, fee uint16) (domain.Address, uint8, error) {
	return derive.FindAddress(ProtocolSeeds(fee), facility)
}

// FeeFor is floor(requested * fee / 10000). A product that does not fit in
// 64 bits is an overflow.
func FeeFor(requested uint64, fee uint16) (uint64, error) {
	hi, lo := bits.Mul64(requested, uint64(fee))
	if hi != 0 {
		return 0, fmt.Errorf("FeeFor: %w: %d * %d", domain.ErrArithmeticOverflow, requested, fee)
	}
	return lo / MaxFeeBasisPoints, nil
}

// AmountOwed is the pool balance a Repay must find.
func AmountOwed(balanceBefore, requested uint64, fee uint16) (uint64, error) {
	f, err := FeeFor(requested, fee)
	if err != nil {
		return 0, err
	}
	owed, carry := bits.Add64(balanceBefore, f, 0)
	if carry != 0 {
		return 0, fmt.Errorf("AmountOwed: %w: %d + %d", domain.ErrArithmeticOverflow, balanceBefore, f)
	}
	return owed, nil
}

// Pair is one pool drawn from and the account that receives the draw.
type Pair struct {
	Pool        domain.Address
	Destination domain.Address
}

type IssueAccounts struct {
	Borrower domain.Address
	Protocol domain.Address
	Record   domain.Address
	Token    domain.Address
	Pairs    []Pair
}

// Issue builds an Issue instruction. The record must also sign the
// transaction since it is created by it.
func Issue(f domain.Facilities, accts IssueAccounts, args IssueArgs) runtime.Instruction {
	tokenFacility := accts.Token
	if tokenFacility.IsZero() {
		tokenFacility = f.Token
	}
	metas := []runtime.AccountMeta{
		runtime.Writable(accts.Borrower, true),
		runtime.Readonly(accts.Protocol, false),
		runtime.Writable(accts.Record, true),
		runtime.Readonly(domain.InstructionsSysvar, false),
		runtime.Readonly(tokenFacility, false),
		runtime.Readonly(f.System, false),
	}
	for _, p := range accts.Pairs {
		metas = append(metas, runtime.Writable(p.Pool, false), runtime.Writable(p.Destination, false))
	}
	return runtime.Instruction{Facility: f.FlashLoan, Accounts: metas, Data: args.Encode()}
}

// Repay builds the Repay instruction for a record. Pools follow record
// entry order.
func Repay(f domain.Facilities, borrower, record domain.Address, pools ...domain.Address) runtime.Instruction {
	metas := []runtime.AccountMeta{
		runtime.Writable(borrower, false),
		runtime.Writable(record, false),
	}
	for _, p := range pools {
		metas = append(metas, runtime.Readonly(p, false))
	}
	return runtime.Instruction{Facility: f.FlashLoan, Accounts: metas, Data: []byte{SelectorRepay}}
}
