package types

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/gagliardetto/solana-go"
)

// Instruction is a single program call: the program to run, the accounts it
// may touch (with their signer/writable privileges) and opaque input data.
type Instruction struct {
	ProgramID solana.PublicKey
	Accounts  []*solana.AccountMeta
	Data      []byte
}

// NewInstruction assembles an instruction from its parts.
func NewInstruction(programID solana.PublicKey, accounts []*solana.AccountMeta, data []byte) Instruction {
	return Instruction{ProgramID: programID, Accounts: accounts, Data: data}
}

// Clone returns a deep copy of the instruction.
func (ix Instruction) Clone() Instruction {
	accounts := make([]*solana.AccountMeta, len(ix.Accounts))
	for i, meta := range ix.Accounts {
		if meta == nil {
			continue
		}
		copied := *meta
		accounts[i] = &copied
	}
	return Instruction{
		ProgramID: ix.ProgramID,
		Accounts:  accounts,
		Data:      append([]byte(nil), ix.Data...),
	}
}

// Transaction bundles instructions that the ledger applies atomically. The
// fee payer always signs first; every account flagged as a signer in any
// instruction must provide a signature in Signers() order.
//
// The ledger accepts each fee payer signature once. Nonce is a client-chosen
// value that lets otherwise identical transactions be submitted again.
type Transaction struct {
	FeePayer     solana.PublicKey
	Nonce        uint64
	Instructions []Instruction
	Signatures   []solana.Signature
}

type txMessage struct {
	FeePayer     solana.PublicKey
	Nonce        uint64
	Instructions []Instruction
}

// NewTransaction creates an unsigned transaction.
func NewTransaction(feePayer solana.PublicKey, instructions ...Instruction) *Transaction {
	return &Transaction{FeePayer: feePayer, Instructions: instructions}
}

// Message returns the canonical byte encoding that signatures commit to.
func (tx *Transaction) Message() ([]byte, error) {
	if tx == nil {
		return nil, errors.New("types: nil transaction")
	}
	for i, ix := range tx.Instructions {
		for j, meta := range ix.Accounts {
			if meta == nil {
				return nil, fmt.Errorf("types: instruction %d account %d is nil", i, j)
			}
		}
	}
	return rlp.EncodeToBytes(&txMessage{FeePayer: tx.FeePayer, Nonce: tx.Nonce, Instructions: tx.Instructions})
}

// Signers lists the public keys that must sign the transaction: the fee payer
// followed by each signer account in order of first appearance.
func (tx *Transaction) Signers() []solana.PublicKey {
	if tx == nil {
		return nil
	}
	signers := solana.PublicKeySlice{tx.FeePayer}
	for _, ix := range tx.Instructions {
		for _, meta := range ix.Accounts {
			if meta != nil && meta.IsSigner {
				signers.UniqueAppend(meta.PublicKey)
			}
		}
	}
	return signers
}

// Sign computes signatures for every required signer using the supplied keys.
// Keys that are not required are ignored; a missing key is an error.
func (tx *Transaction) Sign(keys ...solana.PrivateKey) error {
	msg, err := tx.Message()
	if err != nil {
		return err
	}
	byPub := make(map[solana.PublicKey]solana.PrivateKey, len(keys))
	for _, key := range keys {
		byPub[key.PublicKey()] = key
	}
	signers := tx.Signers()
	sigs := make([]solana.Signature, len(signers))
	for i, signer := range signers {
		key, ok := byPub[signer]
		if !ok {
			return fmt.Errorf("types: missing private key for signer %s", signer)
		}
		sig, err := key.Sign(msg)
		if err != nil {
			return fmt.Errorf("types: sign for %s: %w", signer, err)
		}
		sigs[i] = sig
	}
	tx.Signatures = sigs
	return nil
}

// VerifySignatures checks that every required signer produced a valid
// signature over the message.
func (tx *Transaction) VerifySignatures() error {
	msg, err := tx.Message()
	if err != nil {
		return err
	}
	signers := tx.Signers()
	if len(tx.Signatures) != len(signers) {
		return fmt.Errorf("types: expected %d signatures, got %d", len(signers), len(tx.Signatures))
	}
	for i, signer := range signers {
		if !tx.Signatures[i].Verify(signer, msg) {
			return fmt.Errorf("types: invalid signature for %s", signer)
		}
	}
	return nil
}

// ID returns the transaction identifier, the base58 form of the fee payer's
// signature. Unsigned transactions have an empty ID.
func (tx *Transaction) ID() string {
	if tx == nil || len(tx.Signatures) == 0 {
		return ""
	}
	return tx.Signatures[0].String()
}
