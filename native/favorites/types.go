package favorites

import (
	"bytes"
	"fmt"
	"unicode/utf8"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"

	coreerrors "escrowvault/core/errors"
	"escrowvault/core/state"
)

// MaxColorLength bounds the stored color in bytes.
const MaxColorLength = 50

// AccountSize is the allocated size of a favorites account: discriminator,
// number, the longest color and a present delegate.
const AccountSize = 8 + 8 + (4 + MaxColorLength) + (1 + 32)

var favoritesDiscriminator = bin.SighashTypeID(bin.SIGHASH_ACCOUNT_NAMESPACE, "Favorites")

// Favorites is a user's stored preferences. A delegate, when set, may update
// them on the owner's behalf.
type Favorites struct {
	Number   uint64
	Color    string
	Delegate *solana.PublicKey `bin:"optional"`
}

// Validate checks the stored limits.
func (f *Favorites) Validate() error {
	if len(f.Color) > MaxColorLength {
		return fmt.Errorf("favorites: color is %d bytes, limit %d: %w", len(f.Color), MaxColorLength, coreerrors.ErrInvalidArgument)
	}
	if !utf8.ValidString(f.Color) {
		return fmt.Errorf("favorites: color is not valid UTF-8: %w", coreerrors.ErrInvalidArgument)
	}
	return nil
}

// CanUpdate reports whether signer may change these favorites owned by owner.
func (f *Favorites) CanUpdate(owner, signer solana.PublicKey) bool {
	if signer.Equals(owner) {
		return true
	}
	return f.Delegate != nil && f.Delegate.Equals(signer)
}

// Marshal encodes the favorites padded to AccountSize.
func (f *Favorites) Marshal() ([]byte, error) {
	buf := bytes.NewBuffer(make([]byte, 0, AccountSize))
	buf.Write(favoritesDiscriminator[:])
	if err := bin.NewBorshEncoder(buf).Encode(f); err != nil {
		return nil, fmt.Errorf("favorites: encode: %w", err)
	}
	if buf.Len() > AccountSize {
		return nil, fmt.Errorf("favorites: encoded size %d exceeds %d: %w", buf.Len(), AccountSize, coreerrors.ErrInvalidArgument)
	}
	out := make([]byte, AccountSize)
	copy(out, buf.Bytes())
	return out, nil
}

// Decode parses favorites account data.
func Decode(data []byte) (*Favorites, error) {
	if len(data) != AccountSize {
		return nil, fmt.Errorf("favorites: data is %d bytes, want %d: %w", len(data), AccountSize, coreerrors.ErrState)
	}
	dec := bin.NewBorshDecoder(data)
	disc, err := dec.ReadTypeID()
	if err != nil || disc != favoritesDiscriminator {
		return nil, fmt.Errorf("favorites: account is not a favorites record: %w", coreerrors.ErrState)
	}
	var fav Favorites
	if err := dec.Decode(&fav); err != nil {
		return nil, fmt.Errorf("favorites: decode: %v: %w", err, coreerrors.ErrState)
	}
	return &fav, nil
}

// Load reads the favorites stored at addr.
func Load(reader state.AccountReader, addr solana.PublicKey) (*Favorites, error) {
	acc, err := reader.GetAccount(addr)
	if err != nil {
		return nil, err
	}
	if acc == nil {
		return nil, fmt.Errorf("favorites: %s does not exist: %w", addr, coreerrors.ErrState)
	}
	if !acc.Owner.Equals(ProgramID) {
		return nil, fmt.Errorf("favorites: %s is owned by %s: %w", addr, acc.Owner, coreerrors.ErrState)
	}
	return Decode(acc.Data)
}
