// Package derive computes program-derived addresses: ledger addresses that are
// a pure function of a program ID and a seed tuple and that have no private
// key. A program exercises the authority of such an address by presenting the
// exact seeds, plus the bump that moved the hash off the ed25519 curve.
package derive

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/gagliardetto/solana-go"

	coreerrors "escrowvault/core/errors"
)

const (
	// MaxSeeds bounds the seed tuple including the trailing bump.
	MaxSeeds = solana.MaxSeeds
	// MaxSeedLength bounds each individual seed.
	MaxSeedLength = solana.MaxSeedLength
)

// ValidateSeeds enforces the addressing limits on a seed tuple that does not
// yet include the bump.
func ValidateSeeds(seeds [][]byte) error {
	if len(seeds) > MaxSeeds-1 {
		return fmt.Errorf("derive: %d seeds exceeds limit of %d: %w", len(seeds), MaxSeeds-1, coreerrors.ErrInvalidArgument)
	}
	for i, seed := range seeds {
		if len(seed) > MaxSeedLength {
			return fmt.Errorf("derive: seed %d is %d bytes, limit %d: %w", i, len(seed), MaxSeedLength, coreerrors.ErrInvalidArgument)
		}
	}
	return nil
}

// WithBump returns a copy of seeds with the bump appended, the form a program
// hands to the runtime when signing for the derived address.
func WithBump(bump uint8, seeds ...[]byte) [][]byte {
	out := make([][]byte, 0, len(seeds)+1)
	for _, seed := range seeds {
		out = append(out, append([]byte(nil), seed...))
	}
	return append(out, []byte{bump})
}

// CreateAddress derives the address for an exact bump. It fails with
// ErrAuthorization when the seeds and bump land on the curve, since such an
// address could have a private key.
func CreateAddress(programID solana.PublicKey, bump uint8, seeds ...[]byte) (solana.PublicKey, error) {
	if err := ValidateSeeds(seeds); err != nil {
		return solana.PublicKey{}, err
	}
	addr, err := solana.CreateProgramAddress(WithBump(bump, seeds...), programID)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("derive: bump %d: %v: %w", bump, err, coreerrors.ErrAuthorization)
	}
	return addr, nil
}

// FindAddress searches bumps from 255 down to 0 and returns the first
// off-curve address together with its bump. The result is deterministic for a
// given program and seed tuple.
func FindAddress(programID solana.PublicKey, seeds ...[]byte) (solana.PublicKey, uint8, error) {
	if err := ValidateSeeds(seeds); err != nil {
		return solana.PublicKey{}, 0, err
	}
	for bump := math.MaxUint8; bump >= 0; bump-- {
		addr, err := solana.CreateProgramAddress(WithBump(uint8(bump), seeds...), programID)
		if err == nil {
			return addr, uint8(bump), nil
		}
	}
	return solana.PublicKey{}, 0, fmt.Errorf("derive: program %s: %w", programID, coreerrors.ErrDerivationExhausted)
}

// Verify reports whether addr is the derived address for the seeds and bump.
func Verify(addr, programID solana.PublicKey, bump uint8, seeds ...[]byte) bool {
	derived, err := CreateAddress(programID, bump, seeds...)
	if err != nil {
		return false
	}
	return derived.Equals(addr)
}

// SignerAddress resolves a complete signer seed set, bump included, to the
// address it authorizes. The runtime uses it to decide which derived addresses
// a program may sign for during a cross-program call.
func SignerAddress(programID solana.PublicKey, signerSeeds [][]byte) (solana.PublicKey, error) {
	if len(signerSeeds) == 0 {
		return solana.PublicKey{}, fmt.Errorf("derive: empty signer seeds: %w", coreerrors.ErrAuthorization)
	}
	last := signerSeeds[len(signerSeeds)-1]
	if len(last) != 1 {
		return solana.PublicKey{}, fmt.Errorf("derive: signer seeds must end with a one-byte bump: %w", coreerrors.ErrAuthorization)
	}
	return CreateAddress(programID, last[0], signerSeeds[:len(signerSeeds)-1]...)
}

// Uint64Seed encodes v little-endian, matching how offer identifiers are
// folded into seed tuples.
func Uint64Seed(v uint64) []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, v)
	return buf
}
