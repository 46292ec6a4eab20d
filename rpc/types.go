package rpc

import (
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"

	coreerrors "escrowvault/core/errors"
	"escrowvault/core/runtime"
	"escrowvault/core/types"
	"escrowvault/crypto"
	"escrowvault/native/escrow"
	"escrowvault/native/favorites"
	"escrowvault/native/token"
)

// AccountMetaJSON is the wire form of one instruction account.
type AccountMetaJSON struct {
	Pubkey     string `json:"pubkey"`
	IsSigner   bool   `json:"isSigner"`
	IsWritable bool   `json:"isWritable"`
}

// InstructionJSON is the wire form of an instruction. Data is base58.
type InstructionJSON struct {
	ProgramID string            `json:"programId"`
	Accounts  []AccountMetaJSON `json:"accounts"`
	Data      string            `json:"data"`
}

// TransactionJSON is the body of POST /v1/transactions. Keys and signatures
// are base58.
type TransactionJSON struct {
	FeePayer     string            `json:"feePayer"`
	Nonce        uint64            `json:"nonce"`
	Instructions []InstructionJSON `json:"instructions"`
	Signatures   []string          `json:"signatures"`
}

// EncodeTransaction converts a signed transaction to its wire form.
func EncodeTransaction(tx *types.Transaction) TransactionJSON {
	out := TransactionJSON{
		FeePayer:     tx.FeePayer.String(),
		Nonce:        tx.Nonce,
		Instructions: make([]InstructionJSON, 0, len(tx.Instructions)),
		Signatures:   make([]string, 0, len(tx.Signatures)),
	}
	for _, ix := range tx.Instructions {
		wire := InstructionJSON{
			ProgramID: ix.ProgramID.String(),
			Accounts:  make([]AccountMetaJSON, 0, len(ix.Accounts)),
			Data:      base58.Encode(ix.Data),
		}
		for _, meta := range ix.Accounts {
			wire.Accounts = append(wire.Accounts, AccountMetaJSON{
				Pubkey:     meta.PublicKey.String(),
				IsSigner:   meta.IsSigner,
				IsWritable: meta.IsWritable,
			})
		}
		out.Instructions = append(out.Instructions, wire)
	}
	for _, sig := range tx.Signatures {
		out.Signatures = append(out.Signatures, sig.String())
	}
	return out
}

// Decode converts the wire form back into a transaction. Malformed fields
// are reported as ErrInvalidArgument.
func (t TransactionJSON) Decode() (*types.Transaction, error) {
	feePayer, err := crypto.ParsePublicKey(t.FeePayer)
	if err != nil {
		return nil, fmt.Errorf("feePayer: %v: %w", err, coreerrors.ErrInvalidArgument)
	}
	tx := &types.Transaction{
		FeePayer:     feePayer,
		Nonce:        t.Nonce,
		Instructions: make([]types.Instruction, 0, len(t.Instructions)),
		Signatures:   make([]solana.Signature, 0, len(t.Signatures)),
	}
	for i, wire := range t.Instructions {
		programID, err := crypto.ParsePublicKey(wire.ProgramID)
		if err != nil {
			return nil, fmt.Errorf("instructions[%d].programId: %v: %w", i, err, coreerrors.ErrInvalidArgument)
		}
		data, err := base58.Decode(wire.Data)
		if err != nil && wire.Data != "" {
			return nil, fmt.Errorf("instructions[%d].data: %v: %w", i, err, coreerrors.ErrInvalidArgument)
		}
		accounts := make([]*solana.AccountMeta, 0, len(wire.Accounts))
		for j, meta := range wire.Accounts {
			key, err := crypto.ParsePublicKey(meta.Pubkey)
			if err != nil {
				return nil, fmt.Errorf("instructions[%d].accounts[%d]: %v: %w", i, j, err, coreerrors.ErrInvalidArgument)
			}
			accounts = append(accounts, solana.NewAccountMeta(key, meta.IsWritable, meta.IsSigner))
		}
		tx.Instructions = append(tx.Instructions, types.NewInstruction(programID, accounts, data))
	}
	for i, raw := range t.Signatures {
		sig, err := solana.SignatureFromBase58(raw)
		if err != nil {
			return nil, fmt.Errorf("signatures[%d]: %v: %w", i, err, coreerrors.ErrInvalidArgument)
		}
		tx.Signatures = append(tx.Signatures, sig)
	}
	return tx, nil
}

// ReceiptResult reflects a committed transaction.
type ReceiptResult struct {
	Signature  string        `json:"signature"`
	Logs       []string      `json:"logs"`
	Events     []EventResult `json:"events"`
	ExecutedAt time.Time     `json:"executedAt"`
}

// EventResult is an event emitted by a committed transaction.
type EventResult struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

func receiptResult(receipt *runtime.Receipt) ReceiptResult {
	out := ReceiptResult{
		Signature:  receipt.Signature,
		Logs:       append([]string{}, receipt.Logs...),
		Events:     make([]EventResult, 0, len(receipt.Events)),
		ExecutedAt: receipt.ExecutedAt.UTC(),
	}
	for _, evt := range receipt.Events {
		out.Events = append(out.Events, EventResult{Type: evt.Type, Attributes: evt.Attributes})
	}
	return out
}

// AccountResult is the ledger envelope of an address. Data is base58.
type AccountResult struct {
	Address    string `json:"address"`
	Lamports   uint64 `json:"lamports"`
	Owner      string `json:"owner"`
	Executable bool   `json:"executable"`
	Data       string `json:"data"`
}

func accountResult(addr solana.PublicKey, acc *types.Account) AccountResult {
	return AccountResult{
		Address:    addr.String(),
		Lamports:   acc.Lamports,
		Owner:      acc.Owner.String(),
		Executable: acc.Executable,
		Data:       base58.Encode(acc.Data),
	}
}

// OfferResult describes an open offer together with its vault.
type OfferResult struct {
	Address       string `json:"address"`
	ID            uint64 `json:"id"`
	Maker         string `json:"maker"`
	TokenMintA    string `json:"tokenMintA"`
	TokenMintB    string `json:"tokenMintB"`
	WantedAmountB uint64 `json:"wantedAmountB"`
	Bump          uint8  `json:"bump"`
	Vault         string `json:"vault"`
	Deposit       uint64 `json:"deposit"`
}

// Offer rebuilds the on-ledger record, e.g. to construct take or cancel
// instructions.
func (o OfferResult) Offer() (*escrow.Offer, error) {
	maker, err := crypto.ParsePublicKey(o.Maker)
	if err != nil {
		return nil, err
	}
	mintA, err := crypto.ParsePublicKey(o.TokenMintA)
	if err != nil {
		return nil, err
	}
	mintB, err := crypto.ParsePublicKey(o.TokenMintB)
	if err != nil {
		return nil, err
	}
	return &escrow.Offer{
		ID:            o.ID,
		Maker:         maker,
		TokenMintA:    mintA,
		TokenMintB:    mintB,
		WantedAmountB: o.WantedAmountB,
		Bump:          o.Bump,
	}, nil
}

// TokenAccountResult is a decoded token account.
type TokenAccountResult struct {
	Address string `json:"address"`
	Mint    string `json:"mint"`
	Owner   string `json:"owner"`
	Amount  uint64 `json:"amount"`
}

func tokenAccountResult(addr solana.PublicKey, acc *token.Account) TokenAccountResult {
	return TokenAccountResult{
		Address: addr.String(),
		Mint:    acc.Mint.String(),
		Owner:   acc.Owner.String(),
		Amount:  acc.Amount,
	}
}

// FavoritesResult is a user's stored preferences.
type FavoritesResult struct {
	Address  string `json:"address"`
	Owner    string `json:"owner"`
	Number   uint64 `json:"number"`
	Color    string `json:"color"`
	Delegate string `json:"delegate,omitempty"`
}

func favoritesResult(addr, owner solana.PublicKey, fav *favorites.Favorites) FavoritesResult {
	out := FavoritesResult{
		Address: addr.String(),
		Owner:   owner.String(),
		Number:  fav.Number,
		Color:   fav.Color,
	}
	if fav.Delegate != nil {
		out.Delegate = fav.Delegate.String()
	}
	return out
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error     string `json:"error"`
	Kind      string `json:"kind"`
	RequestID string `json:"requestId,omitempty"`
}
