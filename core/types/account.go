package types

import (
	"bytes"

	"github.com/gagliardetto/solana-go"
)

// Account is the ledger-level envelope stored for every address. Program
// specific state lives in Data and is only interpreted by the owning program.
type Account struct {
	Lamports   uint64           `json:"lamports"`
	Owner      solana.PublicKey `json:"owner"`
	Executable bool             `json:"executable"`
	Data       []byte           `json:"data"`
}

// NewSystemAccount returns the implicit value of an address that holds no
// record: zero lamports, owned by the system program.
func NewSystemAccount() *Account {
	return &Account{Owner: solana.SystemProgramID}
}

// Clone returns a deep copy of the account so callers can mutate the copy
// without affecting the stored instance.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	clone := *a
	clone.Data = append([]byte(nil), a.Data...)
	return &clone
}

// IsEmpty reports whether the account carries neither lamports nor data. Empty
// accounts are not persisted; an address whose account was emptied ceases to
// exist.
func (a *Account) IsEmpty() bool {
	return a == nil || (a.Lamports == 0 && len(a.Data) == 0)
}

// Equal compares two accounts field by field.
func (a *Account) Equal(other *Account) bool {
	if a == nil || other == nil {
		return a == other
	}
	return a.Lamports == other.Lamports &&
		a.Owner.Equals(other.Owner) &&
		a.Executable == other.Executable &&
		bytes.Equal(a.Data, other.Data)
}
