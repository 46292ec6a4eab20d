package state

import (
	"errors"
	"fmt"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/gagliardetto/solana-go"

	"escrowvault/core/types"
	"escrowvault/storage"
)

var accountPrefix = []byte("account:")

type storedAccount struct {
	Lamports   uint64
	Owner      []byte
	Executable bool
	Data       []byte
}

func accountKey(addr solana.PublicKey) []byte {
	buf := make([]byte, len(accountPrefix)+len(addr))
	copy(buf, accountPrefix)
	copy(buf[len(accountPrefix):], addr[:])
	return ethcrypto.Keccak256(buf)
}

// GetAccount returns the account stored at addr, or nil when the address holds
// no record.
func (m *Manager) GetAccount(addr solana.PublicKey) (*types.Account, error) {
	data, err := m.kv.Get(accountKey(addr))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("state: load account %s: %w", addr, err)
	}
	var stored storedAccount
	if err := rlp.DecodeBytes(data, &stored); err != nil {
		return nil, fmt.Errorf("state: decode account %s: %w", addr, err)
	}
	if len(stored.Owner) != solana.PublicKeyLength {
		return nil, fmt.Errorf("state: account %s has malformed owner", addr)
	}
	return &types.Account{
		Lamports:   stored.Lamports,
		Owner:      solana.PublicKeyFromBytes(stored.Owner),
		Executable: stored.Executable,
		Data:       stored.Data,
	}, nil
}

// AccountExists reports whether addr currently holds a record.
func (m *Manager) AccountExists(addr solana.PublicKey) (bool, error) {
	return m.kv.Has(accountKey(addr))
}

// PutAccount stores the account at addr. Empty accounts (no lamports and no
// data) are deleted instead, which is how closing an account frees its
// address.
func (m *Manager) PutAccount(addr solana.PublicKey, account *types.Account) error {
	if account.IsEmpty() {
		return m.DeleteAccount(addr)
	}
	encoded, err := rlp.EncodeToBytes(&storedAccount{
		Lamports:   account.Lamports,
		Owner:      account.Owner.Bytes(),
		Executable: account.Executable,
		Data:       account.Data,
	})
	if err != nil {
		return fmt.Errorf("state: encode account %s: %w", addr, err)
	}
	return m.kv.Put(accountKey(addr), encoded)
}

// DeleteAccount removes any record stored at addr.
func (m *Manager) DeleteAccount(addr solana.PublicKey) error {
	return m.kv.Delete(accountKey(addr))
}
