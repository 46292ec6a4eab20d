package escrow

import (
	"fmt"

	"github.com/gagliardetto/solana-go"

	"escrowvault/core/derive"
	coreerrors "escrowvault/core/errors"
	"escrowvault/native/associatedtoken"
)

// ProgramID is the address the escrow program is registered under.
var ProgramID = solana.MustPublicKeyFromBase58("8yiQ6uaJMWM5aRS5uBD7hKTaPp9sRwBmgCR4GMNiLgxh")

// OfferSeedPrefix is the fixed tag of every offer seed tuple.
var OfferSeedPrefix = []byte("offer")

func offerSeeds(maker solana.PublicKey, id uint64) [][]byte {
	return [][]byte{OfferSeedPrefix, maker.Bytes(), derive.Uint64Seed(id)}
}

// OfferAddress derives the offer account of maker's offer id along with its
// bump. One address exists per (maker, id), so a second make with the same
// pair collides with the first.
func OfferAddress(maker solana.PublicKey, id uint64) (solana.PublicKey, uint8, error) {
	return derive.FindAddress(ProgramID, offerSeeds(maker, id)...)
}

// Address re-derives the offer account from the stored maker, id and bump.
func (o *Offer) Address() (solana.PublicKey, error) {
	return derive.CreateAddress(ProgramID, o.Bump, offerSeeds(o.Maker, o.ID)...)
}

// SignerSeeds returns the seed set, bump included, with which the escrow
// program signs for the offer address.
func (o *Offer) SignerSeeds() [][]byte {
	return derive.WithBump(o.Bump, offerSeeds(o.Maker, o.ID)...)
}

// VaultAddress returns the token account that custodies the offer's deposit:
// the associated account of the offer address for mint A.
func VaultAddress(offer, mintA solana.PublicKey) (solana.PublicKey, error) {
	return associatedtoken.Address(offer, mintA)
}

func expectKey(role string, got, want solana.PublicKey) error {
	if !got.Equals(want) {
		return fmt.Errorf("escrow: %s is %s, expected %s: %w", role, got, want, coreerrors.ErrAuthorization)
	}
	return nil
}

func expectAssociated(role string, got, wallet, mint solana.PublicKey) error {
	want, err := associatedtoken.Address(wallet, mint)
	if err != nil {
		return err
	}
	return expectKey(role, got, want)
}
