// Package favorites implements a per-user preference store. Each user's
// record lives at an address derived from the user, so only that user, or a
// delegate the user names, can change it.
package favorites

import (
	"bytes"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"

	"escrowvault/core/derive"
	coreerrors "escrowvault/core/errors"
	"escrowvault/core/runtime"
	"escrowvault/core/types"
	"escrowvault/native/system"
)

// ProgramID is the address the favorites program is registered under.
var ProgramID = solana.MustPublicKeyFromBase58("Cq3qUjMNF7NdjZy9kmCuhGUM5PnjcAfGHERB9pmTK9KD")

// SeedPrefix is the fixed tag of every favorites seed tuple.
var SeedPrefix = []byte("favorites")

var (
	setFavoritesDiscriminator             = bin.SighashTypeID(bin.SIGHASH_GLOBAL_NAMESPACE, "set_favorites")
	setAuthorityDiscriminator             = bin.SighashTypeID(bin.SIGHASH_GLOBAL_NAMESPACE, "set_authority")
	setFavoritesWithDelegateDiscriminator = bin.SighashTypeID(bin.SIGHASH_GLOBAL_NAMESPACE, "set_favorites_with_delegate")
	updateFavoritesDiscriminator          = bin.SighashTypeID(bin.SIGHASH_GLOBAL_NAMESPACE, "update_favorites")
)

type setFavoritesBaseArgs struct {
	Number uint64
	Color  string
}

type setFavoritesArgs struct {
	Number   uint64
	Color    string
	Delegate *solana.PublicKey `bin:"optional"`
}

type setAuthorityArgs struct {
	Delegate *solana.PublicKey `bin:"optional"`
}

type updateFavoritesArgs struct {
	Number *uint64 `bin:"optional"`
	Color  *string `bin:"optional"`
}

// Address derives the favorites account of owner.
func Address(owner solana.PublicKey) (solana.PublicKey, uint8, error) {
	return derive.FindAddress(ProgramID, SeedPrefix, owner.Bytes())
}

// Program is the favorites program.
type Program struct{}

// New returns the favorites program.
func New() *Program { return &Program{} }

// Name implements runtime.Program.
func (*Program) Name() string { return "favorites" }

// InstructionName implements runtime.InstructionNamer.
func (*Program) InstructionName(data []byte) string {
	if len(data) < 8 {
		return ""
	}
	switch bin.TypeIDFromBytes(data[:8]) {
	case setFavoritesDiscriminator:
		return "set_favorites"
	case setAuthorityDiscriminator:
		return "set_authority"
	case setFavoritesWithDelegateDiscriminator:
		return "set_favorites_with_delegate"
	case updateFavoritesDiscriminator:
		return "update_favorites"
	default:
		return ""
	}
}

// Execute implements runtime.Program.
func (p *Program) Execute(ctx *runtime.InvokeContext) error {
	dec := bin.NewBorshDecoder(ctx.Data())
	disc, err := dec.ReadTypeID()
	if err != nil {
		return fmt.Errorf("favorites: read discriminator: %v: %w", err, coreerrors.ErrInvalidArgument)
	}
	switch disc {
	case setFavoritesDiscriminator:
		var args setFavoritesBaseArgs
		if err := dec.Decode(&args); err != nil {
			return fmt.Errorf("favorites: decode set_favorites: %v: %w", err, coreerrors.ErrInvalidArgument)
		}
		return p.create(ctx, setFavoritesArgs{Number: args.Number, Color: args.Color})
	case setFavoritesWithDelegateDiscriminator:
		var args setFavoritesArgs
		if err := dec.Decode(&args); err != nil {
			return fmt.Errorf("favorites: decode set_favorites_with_delegate: %v: %w", err, coreerrors.ErrInvalidArgument)
		}
		return p.create(ctx, args)
	case setAuthorityDiscriminator:
		var args setAuthorityArgs
		if err := dec.Decode(&args); err != nil {
			return fmt.Errorf("favorites: decode set_authority: %v: %w", err, coreerrors.ErrInvalidArgument)
		}
		return p.setAuthority(ctx, args)
	case updateFavoritesDiscriminator:
		var args updateFavoritesArgs
		if err := dec.Decode(&args); err != nil {
			return fmt.Errorf("favorites: decode update_favorites: %v: %w", err, coreerrors.ErrInvalidArgument)
		}
		return p.update(ctx, args)
	default:
		return fmt.Errorf("favorites: unknown instruction %x: %w", disc[:], coreerrors.ErrInvalidArgument)
	}
}

// create accounts: [user (signer, writable), favorites (writable), system
// program].
func (p *Program) create(ctx *runtime.InvokeContext, args setFavoritesArgs) error {
	if err := ctx.RequireAccounts(3); err != nil {
		return err
	}
	user, _ := ctx.Key(0)
	addr, _ := ctx.Key(1)
	if !ctx.IsSigner(user) {
		return fmt.Errorf("favorites: user %s must sign: %w", user, coreerrors.ErrAuthorization)
	}
	expected, bump, err := Address(user)
	if err != nil {
		return err
	}
	if !addr.Equals(expected) {
		return fmt.Errorf("favorites: %s is not the favorites account of %s: %w", addr, user, coreerrors.ErrAuthorization)
	}
	exists, err := ctx.Exists(addr)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("favorites: %s already initialized: %w", addr, coreerrors.ErrState)
	}
	fav := &Favorites{Number: args.Number, Color: args.Color, Delegate: args.Delegate}
	if err := fav.Validate(); err != nil {
		return err
	}

	create := system.NewCreateAccountInstruction(user, addr, ctx.Rent().MinimumBalance(AccountSize), AccountSize, ctx.ProgramID())
	if err := ctx.InvokeSigned(create, derive.WithBump(bump, SeedPrefix, user.Bytes())); err != nil {
		return err
	}
	ctx.Log("Greetings from %s", ctx.ProgramID())
	ctx.Log("User %s's favorite number is %d and favorite color is: %s", user, fav.Number, fav.Color)
	if fav.Delegate != nil {
		ctx.Log("Delegate set to: %s", fav.Delegate)
	}
	return store(ctx, addr, fav)
}

// setAuthority accounts: [user (signer, writable), favorites (writable)].
func (p *Program) setAuthority(ctx *runtime.InvokeContext, args setAuthorityArgs) error {
	if err := ctx.RequireAccounts(2); err != nil {
		return err
	}
	user, _ := ctx.Key(0)
	addr, _ := ctx.Key(1)
	fav, err := loadFor(ctx, user, addr)
	if err != nil {
		return err
	}
	if !ctx.IsSigner(user) {
		return fmt.Errorf("favorites: user %s must sign: %w", user, coreerrors.ErrAuthorization)
	}
	fav.Delegate = args.Delegate
	if args.Delegate != nil {
		ctx.Log("Setting delegate for user %s to %s", user, args.Delegate)
	} else {
		ctx.Log("Removing delegate for user %s", user)
	}
	return store(ctx, addr, fav)
}

// update accounts: [user (signer, writable), favorites (writable), original
// owner]. The signer must be the owner or the stored delegate.
func (p *Program) update(ctx *runtime.InvokeContext, args updateFavoritesArgs) error {
	if err := ctx.RequireAccounts(3); err != nil {
		return err
	}
	user, _ := ctx.Key(0)
	addr, _ := ctx.Key(1)
	owner, _ := ctx.Key(2)
	fav, err := loadFor(ctx, owner, addr)
	if err != nil {
		return err
	}
	if !ctx.IsSigner(user) || !fav.CanUpdate(owner, user) {
		return fmt.Errorf("favorites: %s may not update favorites of %s: %w", user, owner, coreerrors.ErrAuthorization)
	}
	ctx.Log("Updating favorites for user %s", user)
	if args.Number != nil {
		fav.Number = *args.Number
		ctx.Log("Updated favorite number to %d", fav.Number)
	}
	if args.Color != nil {
		fav.Color = *args.Color
		ctx.Log("Updated favorite color to %s", fav.Color)
	}
	if err := fav.Validate(); err != nil {
		return err
	}
	return store(ctx, addr, fav)
}

func loadFor(ctx *runtime.InvokeContext, owner, addr solana.PublicKey) (*Favorites, error) {
	expected, _, err := Address(owner)
	if err != nil {
		return nil, err
	}
	if !addr.Equals(expected) {
		return nil, fmt.Errorf("favorites: %s is not the favorites account of %s: %w", addr, owner, coreerrors.ErrAuthorization)
	}
	return Load(ctx, addr)
}

func store(ctx *runtime.InvokeContext, addr solana.PublicKey, fav *Favorites) error {
	data, err := fav.Marshal()
	if err != nil {
		return err
	}
	acc, err := ctx.Load(addr)
	if err != nil {
		return err
	}
	acc.Data = data
	return ctx.Store(addr, acc)
}

func newInstruction(disc bin.TypeID, args any, accounts ...*solana.AccountMeta) (types.Instruction, error) {
	buf := new(bytes.Buffer)
	buf.Write(disc[:])
	if err := bin.NewBorshEncoder(buf).Encode(args); err != nil {
		return types.Instruction{}, fmt.Errorf("favorites: encode instruction: %w", err)
	}
	return types.NewInstruction(ProgramID, accounts, buf.Bytes()), nil
}

// NewSetFavoritesInstruction initialises user's favorites.
func NewSetFavoritesInstruction(user solana.PublicKey, number uint64, color string, delegate *solana.PublicKey) (types.Instruction, error) {
	addr, _, err := Address(user)
	if err != nil {
		return types.Instruction{}, err
	}
	accounts := []*solana.AccountMeta{
		solana.NewAccountMeta(user, true, true),
		solana.NewAccountMeta(addr, true, false),
		solana.NewAccountMeta(system.ProgramID, false, false),
	}
	if delegate == nil {
		return newInstruction(setFavoritesDiscriminator, setFavoritesBaseArgs{Number: number, Color: color}, accounts...)
	}
	return newInstruction(setFavoritesWithDelegateDiscriminator, setFavoritesArgs{Number: number, Color: color, Delegate: delegate}, accounts...)
}

// NewSetAuthorityInstruction sets or, with a nil delegate, clears the
// delegate of user's favorites.
func NewSetAuthorityInstruction(user solana.PublicKey, delegate *solana.PublicKey) (types.Instruction, error) {
	addr, _, err := Address(user)
	if err != nil {
		return types.Instruction{}, err
	}
	return newInstruction(setAuthorityDiscriminator, setAuthorityArgs{Delegate: delegate},
		solana.NewAccountMeta(user, true, true),
		solana.NewAccountMeta(addr, true, false),
	)
}

// NewUpdateFavoritesInstruction changes the given fields of owner's
// favorites, signed by signer.
func NewUpdateFavoritesInstruction(signer, owner solana.PublicKey, number *uint64, color *string) (types.Instruction, error) {
	addr, _, err := Address(owner)
	if err != nil {
		return types.Instruction{}, err
	}
	return newInstruction(updateFavoritesDiscriminator, updateFavoritesArgs{Number: number, Color: color},
		solana.NewAccountMeta(signer, true, true),
		solana.NewAccountMeta(addr, true, false),
		solana.NewAccountMeta(owner, false, false),
	)
}
