package types

// AccountStorageOverhead is the number of bytes charged for an account on top
// of its data, covering the envelope and index entry.
const AccountStorageOverhead = 128

// Rent describes the refundable deposit an account must hold to stay alive.
// Accounts created by the runtime are always funded to the exemption minimum;
// the deposit is returned when the account is closed.
type Rent struct {
	LamportsPerByteYear uint64 `toml:"LamportsPerByteYear"`
	ExemptionYears      uint64 `toml:"ExemptionYears"`
}

// DefaultRent returns the mainnet-like rent parameters.
func DefaultRent() Rent {
	return Rent{LamportsPerByteYear: 3480, ExemptionYears: 2}
}

// MinimumBalance returns the lamports needed for an account holding dataLen
// bytes to be rent exempt.
func (r Rent) MinimumBalance(dataLen int) uint64 {
	if dataLen < 0 {
		dataLen = 0
	}
	return (AccountStorageOverhead + uint64(dataLen)) * r.LamportsPerByteYear * r.ExemptionYears
}
