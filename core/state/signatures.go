package state

import (
	"fmt"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/gagliardetto/solana-go"

	coreerrors "escrowvault/core/errors"
)

var signaturePrefix = []byte("signature:")

func signatureKey(sig solana.Signature) []byte {
	buf := make([]byte, len(signaturePrefix)+len(sig))
	copy(buf, signaturePrefix)
	copy(buf[len(signaturePrefix):], sig[:])
	return ethcrypto.Keccak256(buf)
}

// HasSignature reports whether a transaction with fee payer signature sig was
// already applied.
func (m *Manager) HasSignature(sig solana.Signature) (bool, error) {
	return m.kv.Has(signatureKey(sig))
}

// RecordSignature marks sig as applied. Recording the same signature twice
// fails with ErrState.
func (m *Manager) RecordSignature(sig solana.Signature) error {
	seen, err := m.HasSignature(sig)
	if err != nil {
		return fmt.Errorf("state: lookup signature: %w", err)
	}
	if seen {
		return fmt.Errorf("state: transaction %s already processed: %w", sig, coreerrors.ErrState)
	}
	return m.kv.Put(signatureKey(sig), []byte{1})
}
