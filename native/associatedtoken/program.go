// Package associatedtoken implements the program that allocates each
// wallet's canonical token account for a mint, at an address derived from
// the wallet and the mint.
package associatedtoken

import (
	"fmt"

	"github.com/gagliardetto/solana-go"

	coreerrors "escrowvault/core/errors"
	"escrowvault/core/runtime"
	"escrowvault/core/types"
	"escrowvault/native/system"
	"escrowvault/native/token"
)

// ProgramID is the address of the associated token program.
var ProgramID = solana.SPLAssociatedTokenAccountProgramID

const (
	InstructionCreate           uint8 = 0
	InstructionCreateIdempotent uint8 = 1
)

// Address returns the associated token account of wallet for mint.
func Address(wallet, mint solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := solana.FindAssociatedTokenAddress(wallet, mint)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("associatedtoken: derive for %s/%s: %v: %w", wallet, mint, err, coreerrors.ErrDerivationExhausted)
	}
	return addr, nil
}

// Program is the associated token program.
type Program struct{}

// New returns the associated token program.
func New() *Program { return &Program{} }

// Name implements runtime.Program.
func (*Program) Name() string { return "associated_token" }

// InstructionName implements runtime.InstructionNamer.
func (*Program) InstructionName(data []byte) string {
	if len(data) > 0 && data[0] == InstructionCreateIdempotent {
		return "create_idempotent"
	}
	return "create"
}

// Execute implements runtime.Program. Accounts: [payer (signer, writable),
// associated account (writable), wallet, mint, system program, token
// program]. Empty data is treated as Create.
func (p *Program) Execute(ctx *runtime.InvokeContext) error {
	idempotent := false
	if data := ctx.Data(); len(data) > 0 {
		switch data[0] {
		case InstructionCreate:
		case InstructionCreateIdempotent:
			idempotent = true
		default:
			return fmt.Errorf("associatedtoken: unknown instruction %d: %w", data[0], coreerrors.ErrInvalidArgument)
		}
	}
	if err := ctx.RequireAccounts(6); err != nil {
		return err
	}
	payer, _ := ctx.Key(0)
	ata, _ := ctx.Key(1)
	wallet, _ := ctx.Key(2)
	mint, _ := ctx.Key(3)

	expected, bump, err := solana.FindAssociatedTokenAddress(wallet, mint)
	if err != nil {
		return fmt.Errorf("associatedtoken: derive: %v: %w", err, coreerrors.ErrDerivationExhausted)
	}
	if !expected.Equals(ata) {
		return fmt.Errorf("associatedtoken: %s is not the associated account of %s for %s: %w", ata, wallet, mint, coreerrors.ErrAuthorization)
	}

	existing, err := ctx.Load(ata)
	if err != nil {
		return err
	}
	if existing.Owner.Equals(token.ProgramID) {
		if !idempotent {
			return fmt.Errorf("associatedtoken: %s already exists: %w", ata, coreerrors.ErrState)
		}
		acc, err := token.DecodeAccount(existing.Data)
		if err != nil {
			return err
		}
		if !acc.Owner.Equals(wallet) || !acc.Mint.Equals(mint) {
			return fmt.Errorf("associatedtoken: %s holds a foreign token account: %w", ata, coreerrors.ErrState)
		}
		return nil
	}

	ctx.Log("Create")
	seeds := [][]byte{wallet[:], token.ProgramID[:], mint[:], {bump}}
	if err := system.InitAccount(ctx, payer, ata, token.AccountSize, token.ProgramID, seeds); err != nil {
		return err
	}
	return ctx.Invoke(token.NewInitializeAccountInstruction(ata, mint, wallet))
}

func newInstruction(tag uint8, payer, wallet, mint solana.PublicKey) (types.Instruction, error) {
	ata, err := Address(wallet, mint)
	if err != nil {
		return types.Instruction{}, err
	}
	return types.NewInstruction(ProgramID, []*solana.AccountMeta{
		solana.NewAccountMeta(payer, true, true),
		solana.NewAccountMeta(ata, true, false),
		solana.NewAccountMeta(wallet, false, false),
		solana.NewAccountMeta(mint, false, false),
		solana.NewAccountMeta(system.ProgramID, false, false),
		solana.NewAccountMeta(token.ProgramID, false, false),
	}, []byte{tag}), nil
}

// NewCreateInstruction allocates the associated token account of wallet for
// mint, paid by payer. It fails if the account exists.
func NewCreateInstruction(payer, wallet, mint solana.PublicKey) (types.Instruction, error) {
	return newInstruction(InstructionCreate, payer, wallet, mint)
}

// NewCreateIdempotentInstruction is NewCreateInstruction that succeeds
// without effect when the account already exists.
func NewCreateIdempotentInstruction(payer, wallet, mint solana.PublicKey) (types.Instruction, error) {
	return newInstruction(InstructionCreateIdempotent, payer, wallet, mint)
}
