package crypto

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
)

// GenerateKey returns a fresh ed25519 keypair.
func GenerateKey() (solana.PrivateKey, error) {
	return solana.NewRandomPrivateKey()
}

// ParsePrivateKey accepts either the base58 encoding of a 64-byte keypair or
// the JSON byte array written by keygen tools.
func ParsePrivateKey(s string) (solana.PrivateKey, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return nil, errors.New("crypto: empty private key")
	}
	var raw []byte
	if strings.HasPrefix(trimmed, "[") {
		if err := json.Unmarshal([]byte(trimmed), &raw); err != nil {
			return nil, fmt.Errorf("crypto: decode key array: %w", err)
		}
	} else {
		decoded, err := base58.Decode(trimmed)
		if err != nil {
			return nil, fmt.Errorf("crypto: decode base58 key: %w", err)
		}
		raw = decoded
	}
	if _, err := solana.ValidatePrivateKey(raw); err != nil {
		return nil, fmt.Errorf("crypto: %w", err)
	}
	return solana.PrivateKey(raw), nil
}

// EncodePrivateKey returns the base58 form of key.
func EncodePrivateKey(key solana.PrivateKey) string {
	return base58.Encode(key)
}

// ParsePublicKey decodes a base58 address.
func ParsePublicKey(s string) (solana.PublicKey, error) {
	trimmed := strings.TrimSpace(s)
	decoded, err := base58.Decode(trimmed)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("crypto: decode address %q: %w", trimmed, err)
	}
	if len(decoded) != solana.PublicKeyLength {
		return solana.PublicKey{}, fmt.Errorf("crypto: address %q has %d bytes, want %d", trimmed, len(decoded), solana.PublicKeyLength)
	}
	return solana.PublicKeyFromBytes(decoded), nil
}
