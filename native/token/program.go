// Package token implements the fungible token program: mints, token
// accounts and the transfer and close primitives other programs invoke.
package token

import (
	"bytes"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"

	coreerrors "escrowvault/core/errors"
	"escrowvault/core/runtime"
	"escrowvault/core/types"
	"escrowvault/native/system"
)

// ProgramID is the address of the token program.
var ProgramID = solana.TokenProgramID

// Instruction tags, encoded as a single leading byte.
const (
	InstructionInitializeMint    uint8 = 0
	InstructionInitializeAccount uint8 = 1
	InstructionTransfer          uint8 = 3
	InstructionMintTo            uint8 = 7
	InstructionCloseAccount      uint8 = 9
	InstructionTransferChecked   uint8 = 12
)

var instructionNames = map[uint8]string{
	InstructionInitializeMint:    "initialize_mint",
	InstructionInitializeAccount: "initialize_account",
	InstructionTransfer:          "transfer",
	InstructionMintTo:            "mint_to",
	InstructionCloseAccount:      "close_account",
	InstructionTransferChecked:   "transfer_checked",
}

type initializeMintArgs struct {
	Decimals      uint8
	MintAuthority solana.PublicKey
}

type amountArgs struct {
	Amount uint64
}

type checkedAmountArgs struct {
	Amount   uint64
	Decimals uint8
}

// Program is the token program.
type Program struct{}

// New returns the token program.
func New() *Program { return &Program{} }

// Name implements runtime.Program.
func (*Program) Name() string { return "token" }

// InstructionName implements runtime.InstructionNamer.
func (*Program) InstructionName(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	return instructionNames[data[0]]
}

// Execute implements runtime.Program.
func (p *Program) Execute(ctx *runtime.InvokeContext) error {
	dec := bin.NewBorshDecoder(ctx.Data())
	tag, err := dec.ReadUint8()
	if err != nil {
		return fmt.Errorf("token: read tag: %v: %w", err, coreerrors.ErrInvalidArgument)
	}
	switch tag {
	case InstructionInitializeMint:
		var args initializeMintArgs
		if err := dec.Decode(&args); err != nil {
			return fmt.Errorf("token: decode initialize_mint: %v: %w", err, coreerrors.ErrInvalidArgument)
		}
		return p.initializeMint(ctx, args)
	case InstructionInitializeAccount:
		return p.initializeAccount(ctx)
	case InstructionTransfer:
		var args amountArgs
		if err := dec.Decode(&args); err != nil {
			return fmt.Errorf("token: decode transfer: %v: %w", err, coreerrors.ErrInvalidArgument)
		}
		return p.transfer(ctx, args.Amount, nil)
	case InstructionMintTo:
		var args amountArgs
		if err := dec.Decode(&args); err != nil {
			return fmt.Errorf("token: decode mint_to: %v: %w", err, coreerrors.ErrInvalidArgument)
		}
		return p.mintTo(ctx, args.Amount)
	case InstructionCloseAccount:
		return p.closeAccount(ctx)
	case InstructionTransferChecked:
		var args checkedAmountArgs
		if err := dec.Decode(&args); err != nil {
			return fmt.Errorf("token: decode transfer_checked: %v: %w", err, coreerrors.ErrInvalidArgument)
		}
		return p.transfer(ctx, args.Amount, &args.Decimals)
	default:
		return fmt.Errorf("token: unknown instruction %d: %w", tag, coreerrors.ErrInvalidArgument)
	}
}

// loadOwned fetches an account that must already belong to the token
// program.
func loadOwned(ctx *runtime.InvokeContext, key solana.PublicKey) (*types.Account, error) {
	acc, err := ctx.Load(key)
	if err != nil {
		return nil, err
	}
	if !acc.Owner.Equals(ProgramID) {
		return nil, fmt.Errorf("token: %s is owned by %s: %w", key, acc.Owner, coreerrors.ErrState)
	}
	return acc, nil
}

func loadMint(ctx *runtime.InvokeContext, key solana.PublicKey) (*types.Account, *Mint, error) {
	acc, err := loadOwned(ctx, key)
	if err != nil {
		return nil, nil, err
	}
	mint, err := DecodeMint(acc.Data)
	if err != nil {
		return nil, nil, err
	}
	if !mint.IsInitialized {
		return nil, nil, fmt.Errorf("token: mint %s is not initialized: %w", key, coreerrors.ErrState)
	}
	return acc, mint, nil
}

func loadTokenAccount(ctx *runtime.InvokeContext, key solana.PublicKey) (*types.Account, *Account, error) {
	acc, err := loadOwned(ctx, key)
	if err != nil {
		return nil, nil, err
	}
	tokenAcc, err := DecodeAccount(acc.Data)
	if err != nil {
		return nil, nil, err
	}
	if tokenAcc.State != AccountInitialized {
		return nil, nil, fmt.Errorf("token: account %s is not initialized: %w", key, coreerrors.ErrState)
	}
	return acc, tokenAcc, nil
}

func storeLayout(ctx *runtime.InvokeContext, key solana.PublicKey, acc *types.Account, layout interface{ Marshal() ([]byte, error) }) error {
	data, err := layout.Marshal()
	if err != nil {
		return fmt.Errorf("token: encode %s: %w", key, err)
	}
	acc.Data = data
	return ctx.Store(key, acc)
}

func requireAuthority(ctx *runtime.InvokeContext, expected, presented solana.PublicKey) error {
	if !expected.Equals(presented) {
		return fmt.Errorf("token: %s is not the authority %s: %w", presented, expected, coreerrors.ErrAuthorization)
	}
	if !ctx.IsSigner(presented) {
		return fmt.Errorf("token: authority %s did not sign: %w", presented, coreerrors.ErrAuthorization)
	}
	return nil
}

// initializeMint accounts: [mint (writable)].
func (p *Program) initializeMint(ctx *runtime.InvokeContext, args initializeMintArgs) error {
	if err := ctx.RequireAccounts(1); err != nil {
		return err
	}
	key, _ := ctx.Key(0)
	acc, err := loadOwned(ctx, key)
	if err != nil {
		return err
	}
	if len(acc.Data) != MintSize {
		return fmt.Errorf("token: mint %s has %d bytes allocated, want %d: %w", key, len(acc.Data), MintSize, coreerrors.ErrState)
	}
	existing, err := DecodeMint(acc.Data)
	if err != nil {
		return err
	}
	if existing.IsInitialized {
		return fmt.Errorf("token: mint %s already initialized: %w", key, coreerrors.ErrState)
	}
	mint := &Mint{MintAuthority: args.MintAuthority, Decimals: args.Decimals, IsInitialized: true}
	ctx.Log("Instruction: InitializeMint")
	return storeLayout(ctx, key, acc, mint)
}

// initializeAccount accounts: [account (writable), mint, owner].
func (p *Program) initializeAccount(ctx *runtime.InvokeContext) error {
	if err := ctx.RequireAccounts(3); err != nil {
		return err
	}
	key, _ := ctx.Key(0)
	mintKey, _ := ctx.Key(1)
	owner, _ := ctx.Key(2)
	acc, err := loadOwned(ctx, key)
	if err != nil {
		return err
	}
	if len(acc.Data) != AccountSize {
		return fmt.Errorf("token: account %s has %d bytes allocated, want %d: %w", key, len(acc.Data), AccountSize, coreerrors.ErrState)
	}
	existing, err := DecodeAccount(acc.Data)
	if err != nil {
		return err
	}
	if existing.State != AccountUninitialized {
		return fmt.Errorf("token: account %s already initialized: %w", key, coreerrors.ErrState)
	}
	if _, _, err := loadMint(ctx, mintKey); err != nil {
		return err
	}
	ctx.Log("Instruction: InitializeAccount")
	return storeLayout(ctx, key, acc, &Account{Mint: mintKey, Owner: owner, State: AccountInitialized})
}

// transfer accounts: [source (writable), destination (writable), authority
// (signer)] or, when decimals is set, [source, mint, destination, authority].
func (p *Program) transfer(ctx *runtime.InvokeContext, amount uint64, decimals *uint8) error {
	srcIdx, dstIdx, authIdx := 0, 1, 2
	if decimals != nil {
		srcIdx, dstIdx, authIdx = 0, 2, 3
	}
	if err := ctx.RequireAccounts(authIdx + 1); err != nil {
		return err
	}
	srcKey, _ := ctx.Key(srcIdx)
	dstKey, _ := ctx.Key(dstIdx)
	authority, _ := ctx.Key(authIdx)

	srcRaw, src, err := loadTokenAccount(ctx, srcKey)
	if err != nil {
		return err
	}
	if decimals != nil {
		mintKey, _ := ctx.Key(1)
		if !src.Mint.Equals(mintKey) {
			return fmt.Errorf("token: source mint %s does not match %s: %w", src.Mint, mintKey, coreerrors.ErrState)
		}
		_, mint, err := loadMint(ctx, mintKey)
		if err != nil {
			return err
		}
		if mint.Decimals != *decimals {
			return fmt.Errorf("token: mint %s has %d decimals, got %d: %w", mintKey, mint.Decimals, *decimals, coreerrors.ErrInvalidArgument)
		}
	}
	if err := requireAuthority(ctx, src.Owner, authority); err != nil {
		return err
	}
	if src.Amount < amount {
		return fmt.Errorf("token: %s holds %d, needs %d: %w", srcKey, src.Amount, amount, coreerrors.ErrInsufficientFunds)
	}
	if srcKey.Equals(dstKey) {
		ctx.Log("Instruction: Transfer (self)")
		return nil
	}
	dstRaw, dst, err := loadTokenAccount(ctx, dstKey)
	if err != nil {
		return err
	}
	if !dst.Mint.Equals(src.Mint) {
		return fmt.Errorf("token: destination mint %s does not match %s: %w", dst.Mint, src.Mint, coreerrors.ErrState)
	}
	if dst.Amount+amount < dst.Amount {
		return fmt.Errorf("token: balance of %s overflows: %w", dstKey, coreerrors.ErrInvalidArgument)
	}
	src.Amount -= amount
	dst.Amount += amount
	ctx.Log("Instruction: Transfer %d", amount)
	if err := storeLayout(ctx, srcKey, srcRaw, src); err != nil {
		return err
	}
	return storeLayout(ctx, dstKey, dstRaw, dst)
}

// mintTo accounts: [mint (writable), destination (writable), authority
// (signer)].
func (p *Program) mintTo(ctx *runtime.InvokeContext, amount uint64) error {
	if err := ctx.RequireAccounts(3); err != nil {
		return err
	}
	mintKey, _ := ctx.Key(0)
	dstKey, _ := ctx.Key(1)
	authority, _ := ctx.Key(2)
	mintRaw, mint, err := loadMint(ctx, mintKey)
	if err != nil {
		return err
	}
	if err := requireAuthority(ctx, mint.MintAuthority, authority); err != nil {
		return err
	}
	dstRaw, dst, err := loadTokenAccount(ctx, dstKey)
	if err != nil {
		return err
	}
	if !dst.Mint.Equals(mintKey) {
		return fmt.Errorf("token: destination mint %s does not match %s: %w", dst.Mint, mintKey, coreerrors.ErrState)
	}
	if mint.Supply+amount < mint.Supply || dst.Amount+amount < dst.Amount {
		return fmt.Errorf("token: supply of %s overflows: %w", mintKey, coreerrors.ErrInvalidArgument)
	}
	mint.Supply += amount
	dst.Amount += amount
	ctx.Log("Instruction: MintTo %d", amount)
	if err := storeLayout(ctx, mintKey, mintRaw, mint); err != nil {
		return err
	}
	return storeLayout(ctx, dstKey, dstRaw, dst)
}

// closeAccount accounts: [account (writable), destination (writable),
// authority (signer)]. The token balance must be zero; the rent deposit
// moves to destination and the account ceases to exist.
func (p *Program) closeAccount(ctx *runtime.InvokeContext) error {
	if err := ctx.RequireAccounts(3); err != nil {
		return err
	}
	key, _ := ctx.Key(0)
	dstKey, _ := ctx.Key(1)
	authority, _ := ctx.Key(2)
	if key.Equals(dstKey) {
		return fmt.Errorf("token: cannot close %s into itself: %w", key, coreerrors.ErrInvalidArgument)
	}
	raw, acc, err := loadTokenAccount(ctx, key)
	if err != nil {
		return err
	}
	if err := requireAuthority(ctx, acc.Owner, authority); err != nil {
		return err
	}
	if acc.Amount != 0 {
		return fmt.Errorf("token: cannot close %s holding %d: %w", key, acc.Amount, coreerrors.ErrState)
	}
	dst, err := ctx.Load(dstKey)
	if err != nil {
		return err
	}
	if dst.Lamports+raw.Lamports < dst.Lamports {
		return fmt.Errorf("token: balance of %s overflows: %w", dstKey, coreerrors.ErrInvalidArgument)
	}
	dst.Lamports += raw.Lamports
	ctx.Log("Instruction: CloseAccount")

	raw.Lamports = 0
	raw.Data = nil
	raw.Owner = system.ProgramID
	if err := ctx.Store(key, raw); err != nil {
		return err
	}
	return ctx.Store(dstKey, dst)
}

func encode(tag uint8, args any) []byte {
	buf := new(bytes.Buffer)
	enc := bin.NewBorshEncoder(buf)
	if err := enc.WriteUint8(tag); err != nil {
		panic(err)
	}
	if args != nil {
		if err := enc.Encode(args); err != nil {
			panic(err)
		}
	}
	return buf.Bytes()
}

// NewInitializeMintInstruction initialises an allocated mint account.
func NewInitializeMintInstruction(mint solana.PublicKey, decimals uint8, mintAuthority solana.PublicKey) types.Instruction {
	return types.NewInstruction(ProgramID, []*solana.AccountMeta{
		solana.NewAccountMeta(mint, true, false),
	}, encode(InstructionInitializeMint, initializeMintArgs{Decimals: decimals, MintAuthority: mintAuthority}))
}

// NewInitializeAccountInstruction initialises an allocated token account of
// mint held by owner.
func NewInitializeAccountInstruction(account, mint, owner solana.PublicKey) types.Instruction {
	return types.NewInstruction(ProgramID, []*solana.AccountMeta{
		solana.NewAccountMeta(account, true, false),
		solana.NewAccountMeta(mint, false, false),
		solana.NewAccountMeta(owner, false, false),
	}, encode(InstructionInitializeAccount, nil))
}

// NewTransferInstruction moves amount between two accounts of the same mint.
func NewTransferInstruction(source, destination, authority solana.PublicKey, amount uint64) types.Instruction {
	return types.NewInstruction(ProgramID, []*solana.AccountMeta{
		solana.NewAccountMeta(source, true, false),
		solana.NewAccountMeta(destination, true, false),
		solana.NewAccountMeta(authority, false, true),
	}, encode(InstructionTransfer, amountArgs{Amount: amount}))
}

// NewTransferCheckedInstruction is NewTransferInstruction with the mint and
// its decimals asserted.
func NewTransferCheckedInstruction(source, mint, destination, authority solana.PublicKey, amount uint64, decimals uint8) types.Instruction {
	return types.NewInstruction(ProgramID, []*solana.AccountMeta{
		solana.NewAccountMeta(source, true, false),
		solana.NewAccountMeta(mint, false, false),
		solana.NewAccountMeta(destination, true, false),
		solana.NewAccountMeta(authority, false, true),
	}, encode(InstructionTransferChecked, checkedAmountArgs{Amount: amount, Decimals: decimals}))
}

// NewMintToInstruction issues amount new tokens into destination.
func NewMintToInstruction(mint, destination, authority solana.PublicKey, amount uint64) types.Instruction {
	return types.NewInstruction(ProgramID, []*solana.AccountMeta{
		solana.NewAccountMeta(mint, true, false),
		solana.NewAccountMeta(destination, true, false),
		solana.NewAccountMeta(authority, false, true),
	}, encode(InstructionMintTo, amountArgs{Amount: amount}))
}

// NewCloseAccountInstruction closes an empty token account, crediting its
// rent deposit to destination.
func NewCloseAccountInstruction(account, destination, authority solana.PublicKey) types.Instruction {
	return types.NewInstruction(ProgramID, []*solana.AccountMeta{
		solana.NewAccountMeta(account, true, false),
		solana.NewAccountMeta(destination, true, false),
		solana.NewAccountMeta(authority, false, true),
	}, encode(InstructionCloseAccount, nil))
}
