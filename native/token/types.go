package token

import (
	"bytes"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"

	coreerrors "escrowvault/core/errors"
	"escrowvault/core/state"
)

// Serialized sizes of the token program's account layouts.
const (
	MintSize    = 32 + 8 + 1 + 1
	AccountSize = 32 + 32 + 8 + 1
)

// AccountState tracks whether a token account has been initialised.
type AccountState uint8

const (
	AccountUninitialized AccountState = 0
	AccountInitialized   AccountState = 1
)

// Mint describes a token type.
type Mint struct {
	MintAuthority solana.PublicKey
	Supply        uint64
	Decimals      uint8
	IsInitialized bool
}

// Account is a balance of one mint held on behalf of Owner.
type Account struct {
	Mint   solana.PublicKey
	Owner  solana.PublicKey
	Amount uint64
	State  AccountState
}

func marshal(v any, size int) ([]byte, error) {
	buf := bytes.NewBuffer(make([]byte, 0, size))
	if err := bin.NewBorshEncoder(buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Marshal encodes the mint layout.
func (m *Mint) Marshal() ([]byte, error) { return marshal(m, MintSize) }

// Marshal encodes the token account layout.
func (a *Account) Marshal() ([]byte, error) { return marshal(a, AccountSize) }

// DecodeMint parses mint account data.
func DecodeMint(data []byte) (*Mint, error) {
	if len(data) != MintSize {
		return nil, fmt.Errorf("token: mint data is %d bytes, want %d: %w", len(data), MintSize, coreerrors.ErrState)
	}
	var mint Mint
	if err := bin.NewBorshDecoder(data).Decode(&mint); err != nil {
		return nil, fmt.Errorf("token: decode mint: %v: %w", err, coreerrors.ErrState)
	}
	return &mint, nil
}

// DecodeAccount parses token account data.
func DecodeAccount(data []byte) (*Account, error) {
	if len(data) != AccountSize {
		return nil, fmt.Errorf("token: account data is %d bytes, want %d: %w", len(data), AccountSize, coreerrors.ErrState)
	}
	var acc Account
	if err := bin.NewBorshDecoder(data).Decode(&acc); err != nil {
		return nil, fmt.Errorf("token: decode account: %v: %w", err, coreerrors.ErrState)
	}
	return &acc, nil
}

// LoadMint reads and decodes an initialised mint owned by the token program.
func LoadMint(reader state.AccountReader, addr solana.PublicKey) (*Mint, error) {
	acc, err := reader.GetAccount(addr)
	if err != nil {
		return nil, err
	}
	if acc == nil {
		return nil, fmt.Errorf("token: mint %s does not exist: %w", addr, coreerrors.ErrState)
	}
	if !acc.Owner.Equals(ProgramID) {
		return nil, fmt.Errorf("token: %s is not a mint: %w", addr, coreerrors.ErrState)
	}
	mint, err := DecodeMint(acc.Data)
	if err != nil {
		return nil, err
	}
	if !mint.IsInitialized {
		return nil, fmt.Errorf("token: mint %s is not initialized: %w", addr, coreerrors.ErrState)
	}
	return mint, nil
}

// LoadAccount reads and decodes an initialised token account.
func LoadAccount(reader state.AccountReader, addr solana.PublicKey) (*Account, error) {
	acc, err := reader.GetAccount(addr)
	if err != nil {
		return nil, err
	}
	if acc == nil {
		return nil, fmt.Errorf("token: account %s does not exist: %w", addr, coreerrors.ErrState)
	}
	if !acc.Owner.Equals(ProgramID) {
		return nil, fmt.Errorf("token: %s is not a token account: %w", addr, coreerrors.ErrState)
	}
	tokenAcc, err := DecodeAccount(acc.Data)
	if err != nil {
		return nil, err
	}
	if tokenAcc.State != AccountInitialized {
		return nil, fmt.Errorf("token: account %s is not initialized: %w", addr, coreerrors.ErrState)
	}
	return tokenAcc, nil
}

// BalanceOf returns the token amount held at addr.
func BalanceOf(reader state.AccountReader, addr solana.PublicKey) (uint64, error) {
	acc, err := LoadAccount(reader, addr)
	if err != nil {
		return 0, err
	}
	return acc.Amount, nil
}
