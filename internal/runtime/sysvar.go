package runtime

import (
	"encoding/binary"
	"fmt"

	"github.com/josh-kwaku/custody-ledger/internal/domain"
)

// EncodeInstructions serializes a transaction's instruction list in the
// instructions-sysvar layout:
//
//	u16 count | u16 offset[count] | instruction... | u16 current
//	instruction = u16 nAccounts | (u8 flags, [32]address)... | [32]facility | u16 len | data
//
// Lists longer than MaxInstructionListLen cannot be addressed by u16 offsets
// and are refused.
func EncodeInstructions(ixs []Instruction, current int) ([]byte, error) {
	size := EncodedInstructionsLen(ixs)
	if size > MaxInstructionListLen {
		return nil, fmt.Errorf("EncodeInstructions: %w: %d bytes", domain.ErrTransactionTooLarge, size)
	}
	header := 2 + 2*len(ixs)
	buf := make([]byte, header, size)
	binary.LittleEndian.PutUint16(buf, uint16(len(ixs)))
	for i, ix := range ixs {
		binary.LittleEndian.PutUint16(buf[2+2*i:], uint16(len(buf)))
		buf = binary.LittleEndian.AppendUint16(buf, uint16(len(ix.Accounts)))
		for _, m := range ix.Accounts {
			buf = append(buf, metaFlags(m))
			buf = append(buf, m.Address[:]...)
		}
		buf = append(buf, ix.Facility[:]...)
		buf = binary.LittleEndian.AppendUint16(buf, uint16(len(ix.Data)))
		buf = append(buf, ix.Data...)
	}
	return binary.LittleEndian.AppendUint16(buf, uint16(current)), nil
}

// EncodedInstructionsLen is the number of bytes EncodeInstructions writes for ixs.
func EncodedInstructionsLen(ixs []Instruction) int {
	n := 2 + 2*len(ixs) + 2
	for _, ix := range ixs {
		n += 2 + len(ix.Accounts)*(1+domain.AddressLength) + domain.AddressLength + 2 + len(ix.Data)
	}
	return n
}

// InstructionsView is a read-only, bounds-checked reader over an encoded
// instruction list.
type InstructionsView struct {
	data []byte
	n    int
}

func ParseInstructions(data []byte) (*InstructionsView, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("ParseInstructions: %w: %d bytes", domain.ErrMalformedInstructionList, len(data))
	}
	n := int(binary.LittleEndian.Uint16(data))
	header := 2 + 2*n
	if header+2 > len(data) {
		return nil, fmt.Errorf("ParseInstructions: %w: offset table overruns buffer", domain.ErrMalformedInstructionList)
	}

	// Offsets start past the table and increase strictly, so no entry can
	// point into the table or into another instruction's bytes.
	body := len(data) - 2
	prev := header - 1
	for i := 0; i < n; i++ {
		off := int(binary.LittleEndian.Uint16(data[2+2*i:]))
		if off <= prev || off >= body {
			return nil, fmt.Errorf("ParseInstructions: %w: offset %d of instruction %d out of order", domain.ErrMalformedInstructionList, off, i)
		}
		prev = off
	}
	return &InstructionsView{data: data, n: n}, nil
}

func (v *InstructionsView) Len() int { return v.n }

// Current is the index of the executing top-level instruction.
func (v *InstructionsView) Current() int {
	return int(binary.LittleEndian.Uint16(v.data[len(v.data)-2:]))
}

func (v *InstructionsView) At(i int) (Instruction, error) {
	if i < 0 || i >= v.n {
		return Instruction{}, fmt.Errorf("InstructionsView.At(%d): %w", i, domain.ErrInstructionNotFound)
	}
	body := v.data[:len(v.data)-2]
	off := int(binary.LittleEndian.Uint16(v.data[2+2*i:]))

	r := reader{buf: body, off: off}
	nAccounts, err := r.u16()
	if err != nil {
		return Instruction{}, fmt.Errorf("InstructionsView.At(%d): %w", i, err)
	}
	ix := Instruction{Accounts: make([]AccountMeta, nAccounts)}
	for j := range ix.Accounts {
		flags, err := r.bytes(1)
		if err != nil {
			return Instruction{}, fmt.Errorf("InstructionsView.At(%d): %w", i, err)
		}
		key, err := r.bytes(domain.AddressLength)
		if err != nil {
			return Instruction{}, fmt.Errorf("InstructionsView.At(%d): %w", i, err)
		}
		ix.Accounts[j] = AccountMeta{IsSigner: flags[0]&1 != 0, IsWritable: flags[0]&2 != 0}
		copy(ix.Accounts[j].Address[:], key)
	}
	facility, err := r.bytes(domain.AddressLength)
	if err != nil {
		return Instruction{}, fmt.Errorf("InstructionsView.At(%d): %w", i, err)
	}
	copy(ix.Facility[:], facility)
	dataLen, err := r.u16()
	if err != nil {
		return Instruction{}, fmt.Errorf("InstructionsView.At(%d): %w", i, err)
	}
	data, err := r.bytes(int(dataLen))
	if err != nil {
		return Instruction{}, fmt.Errorf("InstructionsView.At(%d): %w", i, err)
	}
	if end := v.end(i); r.off != end {
		return Instruction{}, fmt.Errorf("InstructionsView.At(%d): %w: instruction ends at %d, next starts at %d", i, domain.ErrMalformedInstructionList, r.off, end)
	}
	ix.Data = append([]byte(nil), data...)
	return ix, nil
}

// end is where instruction i must stop: the next offset, or the trailing
// current index for the last one.
func (v *InstructionsView) end(i int) int {
	if i+1 < v.n {
		return int(binary.LittleEndian.Uint16(v.data[2+2*(i+1):]))
	}
	return len(v.data) - 2
}

type reader struct {
	buf []byte
	off int
}

func (r *reader) bytes(n int) ([]byte, error) {
	if r.off < 0 || n < 0 || r.off+n > len(r.buf) {
		return nil, domain.ErrMalformedInstructionList
	}
	out := r.buf[r.off : r.off+n]
	r.off += n
	return out, nil
}

func (r *reader) u16() (uint16, error) {
	b, err := r.bytes(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}
