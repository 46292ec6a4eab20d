package state

import (
	"github.com/gagliardetto/solana-go"

	"escrowvault/core/types"
	"escrowvault/storage"
)

// AccountReader is the read-only view of ledger accounts used by queries and
// by program helpers that decode account data.
type AccountReader interface {
	GetAccount(addr solana.PublicKey) (*types.Account, error)
}

// Manager provides typed access to ledger accounts stored in a key-value view.
// Handing it an open storage transaction makes every mutation part of that
// transaction's all-or-nothing commit.
type Manager struct {
	kv storage.KV
}

// NewManager creates a state manager operating on the provided key-value view.
func NewManager(kv storage.KV) *Manager {
	return &Manager{kv: kv}
}
