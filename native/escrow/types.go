package escrow

import (
	"bytes"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"

	coreerrors "escrowvault/core/errors"
	"escrowvault/core/state"
)

// OfferSize is the serialized size of an offer account: the discriminator
// followed by the fixed-width fields.
const OfferSize = 8 + 8 + 32 + 32 + 32 + 8 + 1

// offerDiscriminator tags offer account data.
var offerDiscriminator = bin.SighashTypeID(bin.SIGHASH_ACCOUNT_NAMESPACE, "Offer")

// Offer is a standing proposal to swap the tokens held in its vault for
// WantedAmountB of TokenMintB. Offers are immutable; changing terms means
// cancelling and making a new one.
type Offer struct {
	ID            uint64
	Maker         solana.PublicKey
	TokenMintA    solana.PublicKey
	TokenMintB    solana.PublicKey
	WantedAmountB uint64
	Bump          uint8
}

// Clone returns a copy of the offer.
func (o *Offer) Clone() *Offer {
	if o == nil {
		return nil
	}
	clone := *o
	return &clone
}

// Validate checks the invariants every stored offer satisfies.
func (o *Offer) Validate() error {
	if o == nil {
		return fmt.Errorf("escrow: nil offer: %w", coreerrors.ErrInvalidArgument)
	}
	if o.Maker.IsZero() {
		return fmt.Errorf("escrow: offer maker required: %w", coreerrors.ErrInvalidArgument)
	}
	if o.TokenMintA.Equals(o.TokenMintB) {
		return fmt.Errorf("escrow: offer mints must differ: %w", coreerrors.ErrInvalidArgument)
	}
	if o.WantedAmountB == 0 {
		return fmt.Errorf("escrow: wanted amount must be positive: %w", coreerrors.ErrInvalidArgument)
	}
	return nil
}

// Marshal encodes the offer as account data.
func (o *Offer) Marshal() ([]byte, error) {
	buf := bytes.NewBuffer(make([]byte, 0, OfferSize))
	buf.Write(offerDiscriminator[:])
	if err := bin.NewBorshEncoder(buf).Encode(o); err != nil {
		return nil, fmt.Errorf("escrow: encode offer: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeOffer parses offer account data.
func DecodeOffer(data []byte) (*Offer, error) {
	if len(data) != OfferSize {
		return nil, fmt.Errorf("escrow: offer data is %d bytes, want %d: %w", len(data), OfferSize, coreerrors.ErrState)
	}
	dec := bin.NewBorshDecoder(data)
	disc, err := dec.ReadTypeID()
	if err != nil {
		return nil, fmt.Errorf("escrow: read discriminator: %v: %w", err, coreerrors.ErrState)
	}
	if disc != offerDiscriminator {
		return nil, fmt.Errorf("escrow: account is not an offer: %w", coreerrors.ErrState)
	}
	var offer Offer
	if err := dec.Decode(&offer); err != nil {
		return nil, fmt.Errorf("escrow: decode offer: %v: %w", err, coreerrors.ErrState)
	}
	return &offer, nil
}

// LoadOffer reads the offer stored at addr. A missing account, or one not
// owned by the escrow program, is an ErrState.
func LoadOffer(reader state.AccountReader, addr solana.PublicKey) (*Offer, error) {
	acc, err := reader.GetAccount(addr)
	if err != nil {
		return nil, err
	}
	if acc == nil {
		return nil, fmt.Errorf("escrow: offer %s does not exist: %w", addr, coreerrors.ErrState)
	}
	if !acc.Owner.Equals(ProgramID) {
		return nil, fmt.Errorf("escrow: %s is owned by %s, not the escrow program: %w", addr, acc.Owner, coreerrors.ErrState)
	}
	return DecodeOffer(acc.Data)
}
