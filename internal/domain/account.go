package domain

import "bytes"

// Account is the stored state behind an address.
type Account struct {
	Owner      Address
	Lamports   uint64
	Data       []byte
	Executable bool
}

func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	c := *a
	c.Data = bytes.Clone(a.Data)
	if c.Data == nil {
		c.Data = []byte{}
	}
	return &c
}

func (a *Account) Equal(b *Account) bool {
	return a.Owner == b.Owner &&
		a.Lamports == b.Lamports &&
		a.Executable == b.Executable &&
		bytes.Equal(a.Data, b.Data)
}

// IsEmpty reports whether the account has never been allocated or has been
// fully deallocated.
func (a *Account) IsEmpty() bool {
	return a.Lamports == 0 && len(a.Data) == 0
}
