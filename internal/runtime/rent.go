package runtime

// accountStorageOverhead is charged on top of the buffer length for every
// account.
const accountStorageOverhead = 128

// Rent computes the minimum deposit that exempts an account from storage
// reclamation.
type Rent struct {
	LamportsPerByteYear uint64
	ExemptionYears      uint64
}

func DefaultRent() Rent {
	return Rent{LamportsPerByteYear: 3480, ExemptionYears: 2}
}

func (r Rent) MinimumBalance(dataLen int) uint64 {
	return (accountStorageOverhead + uint64(dataLen)) * r.LamportsPerByteYear * r.ExemptionYears
}

func (r Rent) IsExempt(lamports uint64, dataLen int) bool {
	return lamports >= r.MinimumBalance(dataLen)
}
