// Package system implements the built-in program that owns every wallet and
// every unallocated address. It moves lamports and allocates accounts on
// behalf of other programs.
package system

import (
	"bytes"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"

	coreerrors "escrowvault/core/errors"
	"escrowvault/core/runtime"
	"escrowvault/core/types"
)

// ProgramID is the address of the system program.
var ProgramID = solana.SystemProgramID

// Instruction tags, encoded as a little-endian u32 prefix.
const (
	InstructionCreateAccount uint32 = 0
	InstructionAssign        uint32 = 1
	InstructionTransfer      uint32 = 2
	InstructionAllocate      uint32 = 8
)

// MaxAccountSpace bounds the data allocated by CreateAccount.
const MaxAccountSpace = 10 * 1024 * 1024

type createAccountArgs struct {
	Lamports uint64
	Space    uint64
	Owner    solana.PublicKey
}

type assignArgs struct {
	Owner solana.PublicKey
}

type transferArgs struct {
	Lamports uint64
}

type allocateArgs struct {
	Space uint64
}

// Program is the system program.
type Program struct{}

// New returns the system program.
func New() *Program { return &Program{} }

// Name implements runtime.Program.
func (*Program) Name() string { return "system" }

// InstructionName implements runtime.InstructionNamer.
func (*Program) InstructionName(data []byte) string {
	tag, err := bin.NewBorshDecoder(data).ReadUint32(bin.LE)
	if err != nil {
		return ""
	}
	switch tag {
	case InstructionCreateAccount:
		return "create_account"
	case InstructionAssign:
		return "assign"
	case InstructionTransfer:
		return "transfer"
	case InstructionAllocate:
		return "allocate"
	default:
		return ""
	}
}

// Execute implements runtime.Program.
func (p *Program) Execute(ctx *runtime.InvokeContext) error {
	dec := bin.NewBorshDecoder(ctx.Data())
	tag, err := dec.ReadUint32(bin.LE)
	if err != nil {
		return fmt.Errorf("system: read tag: %v: %w", err, coreerrors.ErrInvalidArgument)
	}
	switch tag {
	case InstructionCreateAccount:
		var args createAccountArgs
		if err := dec.Decode(&args); err != nil {
			return fmt.Errorf("system: decode create_account: %v: %w", err, coreerrors.ErrInvalidArgument)
		}
		return p.createAccount(ctx, args)
	case InstructionAssign:
		var args assignArgs
		if err := dec.Decode(&args); err != nil {
			return fmt.Errorf("system: decode assign: %v: %w", err, coreerrors.ErrInvalidArgument)
		}
		return p.assign(ctx, args)
	case InstructionTransfer:
		var args transferArgs
		if err := dec.Decode(&args); err != nil {
			return fmt.Errorf("system: decode transfer: %v: %w", err, coreerrors.ErrInvalidArgument)
		}
		return p.transfer(ctx, args)
	case InstructionAllocate:
		var args allocateArgs
		if err := dec.Decode(&args); err != nil {
			return fmt.Errorf("system: decode allocate: %v: %w", err, coreerrors.ErrInvalidArgument)
		}
		return p.allocate(ctx, args)
	default:
		return fmt.Errorf("system: unknown instruction %d: %w", tag, coreerrors.ErrInvalidArgument)
	}
}

// createAccount accounts: [from (signer, writable), new (signer, writable)].
func (p *Program) createAccount(ctx *runtime.InvokeContext, args createAccountArgs) error {
	if err := ctx.RequireAccounts(2); err != nil {
		return err
	}
	from, _ := ctx.Key(0)
	newKey, _ := ctx.Key(1)
	if !ctx.IsSigner(from) {
		return fmt.Errorf("system: funding account %s must sign: %w", from, coreerrors.ErrAuthorization)
	}
	if !ctx.IsSigner(newKey) {
		return fmt.Errorf("system: new account %s must sign: %w", newKey, coreerrors.ErrAuthorization)
	}
	if args.Space > MaxAccountSpace {
		return fmt.Errorf("system: space %d exceeds limit %d: %w", args.Space, MaxAccountSpace, coreerrors.ErrInvalidArgument)
	}
	if from.Equals(newKey) {
		return fmt.Errorf("system: funding and new account are the same: %w", coreerrors.ErrInvalidArgument)
	}
	created, err := ctx.Load(newKey)
	if err != nil {
		return err
	}
	if created.Lamports > 0 || len(created.Data) > 0 || !created.Owner.Equals(ProgramID) {
		return fmt.Errorf("system: account %s already in use: %w", newKey, coreerrors.ErrState)
	}
	if err := debit(ctx, from, args.Lamports); err != nil {
		return err
	}
	created.Lamports = args.Lamports
	created.Data = make([]byte, args.Space)
	created.Owner = args.Owner
	return ctx.Store(newKey, created)
}

// assign accounts: [account (signer, writable)].
func (p *Program) assign(ctx *runtime.InvokeContext, args assignArgs) error {
	if err := ctx.RequireAccounts(1); err != nil {
		return err
	}
	key, _ := ctx.Key(0)
	if !ctx.IsSigner(key) {
		return fmt.Errorf("system: account %s must sign: %w", key, coreerrors.ErrAuthorization)
	}
	acc, err := ctx.Load(key)
	if err != nil {
		return err
	}
	if !acc.Owner.Equals(ProgramID) {
		return fmt.Errorf("system: account %s is owned by %s: %w", key, acc.Owner, coreerrors.ErrAuthorization)
	}
	if !bytes.Equal(acc.Data, make([]byte, len(acc.Data))) {
		return fmt.Errorf("system: account %s holds data: %w", key, coreerrors.ErrState)
	}
	acc.Owner = args.Owner
	return ctx.Store(key, acc)
}

// allocate accounts: [account (signer, writable)].
func (p *Program) allocate(ctx *runtime.InvokeContext, args allocateArgs) error {
	if err := ctx.RequireAccounts(1); err != nil {
		return err
	}
	key, _ := ctx.Key(0)
	if !ctx.IsSigner(key) {
		return fmt.Errorf("system: account %s must sign: %w", key, coreerrors.ErrAuthorization)
	}
	if args.Space > MaxAccountSpace {
		return fmt.Errorf("system: space %d exceeds limit %d: %w", args.Space, MaxAccountSpace, coreerrors.ErrInvalidArgument)
	}
	acc, err := ctx.Load(key)
	if err != nil {
		return err
	}
	if len(acc.Data) > 0 || !acc.Owner.Equals(ProgramID) {
		return fmt.Errorf("system: account %s already in use: %w", key, coreerrors.ErrState)
	}
	acc.Data = make([]byte, args.Space)
	return ctx.Store(key, acc)
}

// transfer accounts: [from (signer, writable), to (writable)].
func (p *Program) transfer(ctx *runtime.InvokeContext, args transferArgs) error {
	if err := ctx.RequireAccounts(2); err != nil {
		return err
	}
	from, _ := ctx.Key(0)
	to, _ := ctx.Key(1)
	if !ctx.IsSigner(from) {
		return fmt.Errorf("system: sender %s must sign: %w", from, coreerrors.ErrAuthorization)
	}
	if err := debit(ctx, from, args.Lamports); err != nil {
		return err
	}
	dst, err := ctx.Load(to)
	if err != nil {
		return err
	}
	next := dst.Lamports + args.Lamports
	if next < dst.Lamports {
		return fmt.Errorf("system: balance of %s overflows: %w", to, coreerrors.ErrInvalidArgument)
	}
	dst.Lamports = next
	return ctx.Store(to, dst)
}

func debit(ctx *runtime.InvokeContext, from solana.PublicKey, lamports uint64) error {
	src, err := ctx.Load(from)
	if err != nil {
		return err
	}
	if !src.Owner.Equals(ProgramID) {
		return fmt.Errorf("system: %s is owned by %s: %w", from, src.Owner, coreerrors.ErrAuthorization)
	}
	if len(src.Data) > 0 {
		return fmt.Errorf("system: %s carries data and cannot fund transfers: %w", from, coreerrors.ErrState)
	}
	if src.Lamports < lamports {
		return fmt.Errorf("system: %s holds %d lamports, needs %d: %w", from, src.Lamports, lamports, coreerrors.ErrInsufficientFunds)
	}
	src.Lamports -= lamports
	return ctx.Store(from, src)
}

func encode(tag uint32, args any) []byte {
	buf := new(bytes.Buffer)
	enc := bin.NewBorshEncoder(buf)
	if err := enc.WriteUint32(tag, bin.LE); err != nil {
		panic(err)
	}
	if err := enc.Encode(args); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// InitAccount allocates space bytes at addr for owner with a rent-exempt
// balance paid by payer. A derived addr signs through signerSeeds of the
// calling program. An address that only holds lamports is topped up, then
// allocated and assigned in place; one that holds data or belongs to another
// program fails with ErrState.
func InitAccount(ctx *runtime.InvokeContext, payer, addr solana.PublicKey, space uint64, owner solana.PublicKey, signerSeeds ...[][]byte) error {
	existing, err := ctx.Load(addr)
	if err != nil {
		return err
	}
	if len(existing.Data) > 0 || !existing.Owner.Equals(ProgramID) {
		return fmt.Errorf("system: account %s already in use: %w", addr, coreerrors.ErrState)
	}
	required := ctx.Rent().MinimumBalance(int(space))
	if existing.Lamports == 0 {
		return ctx.InvokeSigned(NewCreateAccountInstruction(payer, addr, required, space, owner), signerSeeds...)
	}
	if existing.Lamports < required {
		if err := ctx.Invoke(NewTransferInstruction(payer, addr, required-existing.Lamports)); err != nil {
			return err
		}
	}
	if err := ctx.InvokeSigned(NewAllocateInstruction(addr, space), signerSeeds...); err != nil {
		return err
	}
	return ctx.InvokeSigned(NewAssignInstruction(addr, owner), signerSeeds...)
}

// NewCreateAccountInstruction allocates space bytes at newAccount, funded by
// from with lamports and assigned to owner.
func NewCreateAccountInstruction(from, newAccount solana.PublicKey, lamports, space uint64, owner solana.PublicKey) types.Instruction {
	return types.NewInstruction(ProgramID, []*solana.AccountMeta{
		solana.NewAccountMeta(from, true, true),
		solana.NewAccountMeta(newAccount, true, true),
	}, encode(InstructionCreateAccount, createAccountArgs{Lamports: lamports, Space: space, Owner: owner}))
}

// NewAssignInstruction hands account to owner.
func NewAssignInstruction(account, owner solana.PublicKey) types.Instruction {
	return types.NewInstruction(ProgramID, []*solana.AccountMeta{
		solana.NewAccountMeta(account, true, true),
	}, encode(InstructionAssign, assignArgs{Owner: owner}))
}

// NewAllocateInstruction sizes the data of an unused system account.
func NewAllocateInstruction(account solana.PublicKey, space uint64) types.Instruction {
	return types.NewInstruction(ProgramID, []*solana.AccountMeta{
		solana.NewAccountMeta(account, true, true),
	}, encode(InstructionAllocate, allocateArgs{Space: space}))
}

// NewTransferInstruction moves lamports from one wallet to another.
func NewTransferInstruction(from, to solana.PublicKey, lamports uint64) types.Instruction {
	return types.NewInstruction(ProgramID, []*solana.AccountMeta{
		solana.NewAccountMeta(from, true, true),
		solana.NewAccountMeta(to, true, false),
	}, encode(InstructionTransfer, transferArgs{Lamports: lamports}))
}
