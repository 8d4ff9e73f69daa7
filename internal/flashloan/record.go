package flashloan

import (
	"encoding/binary"
	"fmt"

	"github.com/josh-kwaku/custody-ledger/internal/domain"
)

const EntrySize = domain.AddressLength + 8

// Entry is one pool's obligation inside a loan record.
type Entry struct {
	Pool       domain.Address
	AmountOwed uint64
}

func RecordSize(n int) int { return EntrySize * n }

func putEntry(buf []byte, i int, e Entry) error {
	off := i * EntrySize
	if i < 0 || off+EntrySize > len(buf) {
		return fmt.Errorf("putEntry: %w: slot %d of %d-byte record", domain.ErrInvalidAccountData, i, len(buf))
	}
	copy(buf[off:off+domain.AddressLength], e.Pool[:])
	binary.LittleEndian.PutUint64(buf[off+domain.AddressLength:off+EntrySize], e.AmountOwed)
	return nil
}

// ReadEntries decodes a record buffer. The length must be a positive
// multiple of EntrySize.
func ReadEntries(buf []byte) ([]Entry, error) {
	if len(buf) == 0 || len(buf)%EntrySize != 0 {
		return nil, fmt.Errorf("ReadEntries: %w: %d bytes", domain.ErrInvalidAccountData, len(buf))
	}
	entries := make([]Entry, len(buf)/EntrySize)
	for i := range entries {
		off := i * EntrySize
		copy(entries[i].Pool[:], buf[off:off+domain.AddressLength])
		entries[i].AmountOwed = binary.LittleEndian.Uint64(buf[off+domain.AddressLength : off+EntrySize])
	}
	return entries, nil
}
