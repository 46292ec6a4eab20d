// Package escrow implements the token escrow program. A maker deposits
// tokens of mint A into a vault controlled by a program-derived offer
// address and names the amount of mint B wanted in return. A taker pays the
// maker and receives the vault's contents; until then the maker may cancel
// and recover the deposit. Each transition runs as one atomic instruction.
package escrow

import (
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"

	coreerrors "escrowvault/core/errors"
	"escrowvault/core/runtime"
	"escrowvault/native/associatedtoken"
	"escrowvault/native/system"
	"escrowvault/native/token"
)

// Program is the escrow program.
type Program struct{}

// New returns the escrow program.
func New() *Program { return &Program{} }

// Name implements runtime.Program.
func (*Program) Name() string { return "escrow" }

// InstructionName implements runtime.InstructionNamer.
func (*Program) InstructionName(data []byte) string {
	if len(data) < discriminatorSize {
		return ""
	}
	switch bin.TypeIDFromBytes(data[:discriminatorSize]) {
	case makeOfferDiscriminator:
		return "make_offer"
	case takeOfferDiscriminator:
		return "take_offer"
	case cancelOfferDiscriminator:
		return "cancel_offer"
	default:
		return ""
	}
}

// Execute implements runtime.Program.
func (p *Program) Execute(ctx *runtime.InvokeContext) error {
	dec := bin.NewBorshDecoder(ctx.Data())
	disc, err := dec.ReadTypeID()
	if err != nil {
		return fmt.Errorf("escrow: read discriminator: %v: %w", err, coreerrors.ErrInvalidArgument)
	}
	switch disc {
	case makeOfferDiscriminator:
		var args MakeArgs
		if err := dec.Decode(&args); err != nil {
			return fmt.Errorf("escrow: decode make: %v: %w", err, coreerrors.ErrInvalidArgument)
		}
		return p.makeOffer(ctx, args)
	case takeOfferDiscriminator:
		return p.takeOffer(ctx)
	case cancelOfferDiscriminator:
		return p.cancelOffer(ctx)
	default:
		return fmt.Errorf("escrow: unknown instruction %x: %w", disc[:], coreerrors.ErrInvalidArgument)
	}
}

func keys(ctx *runtime.InvokeContext, n int) ([]solana.PublicKey, error) {
	if err := ctx.RequireAccounts(n); err != nil {
		return nil, err
	}
	out := make([]solana.PublicKey, n)
	for i := range out {
		out[i], _ = ctx.Key(i)
	}
	return out, nil
}

func expectPrograms(associated, tokenProgram, systemProgram *solana.PublicKey) error {
	if associated != nil && !associated.Equals(associatedtoken.ProgramID) {
		return fmt.Errorf("escrow: %s is not the associated token program: %w", associated, coreerrors.ErrInvalidArgument)
	}
	if !tokenProgram.Equals(token.ProgramID) {
		return fmt.Errorf("escrow: %s is not the token program: %w", tokenProgram, coreerrors.ErrInvalidArgument)
	}
	if !systemProgram.Equals(system.ProgramID) {
		return fmt.Errorf("escrow: %s is not the system program: %w", systemProgram, coreerrors.ErrInvalidArgument)
	}
	return nil
}

func (p *Program) makeOffer(ctx *runtime.InvokeContext, args MakeArgs) error {
	k, err := keys(ctx, makeAccountCount)
	if err != nil {
		return err
	}
	maker, mintA, mintB := k[makeMaker], k[makeMintA], k[makeMintB]
	offerKey, vault, makerTokenA := k[makeOffer], k[makeVault], k[makeMakerTokenA]

	if !ctx.IsSigner(maker) {
		return fmt.Errorf("escrow: maker %s must sign: %w", maker, coreerrors.ErrAuthorization)
	}
	if args.DepositAmount == 0 {
		return fmt.Errorf("escrow: deposit must be positive: %w", coreerrors.ErrInvalidArgument)
	}
	if err := expectPrograms(&k[makeAssociatedTokenProgram], &k[makeTokenProgram], &k[makeSystemProgram]); err != nil {
		return err
	}
	expected, bump, err := OfferAddress(maker, args.ID)
	if err != nil {
		return err
	}
	if err := expectKey("offer", offerKey, expected); err != nil {
		return err
	}
	offer := &Offer{
		ID:            args.ID,
		Maker:         maker,
		TokenMintA:    mintA,
		TokenMintB:    mintB,
		WantedAmountB: args.WantedAmountB,
		Bump:          bump,
	}
	if err := offer.Validate(); err != nil {
		return err
	}
	existing, err := ctx.Load(offerKey)
	if err != nil {
		return err
	}
	if len(existing.Data) > 0 || !existing.Owner.Equals(system.ProgramID) {
		return fmt.Errorf("escrow: offer %d of %s already exists at %s: %w", args.ID, maker, offerKey, coreerrors.ErrState)
	}
	if err := expectAssociated("vault", vault, offerKey, mintA); err != nil {
		return err
	}
	if err := expectAssociated("maker token account A", makerTokenA, maker, mintA); err != nil {
		return err
	}
	mintAState, err := token.LoadMint(ctx, mintA)
	if err != nil {
		return err
	}
	if _, err := token.LoadMint(ctx, mintB); err != nil {
		return err
	}

	if err := system.InitAccount(ctx, maker, offerKey, OfferSize, ctx.ProgramID(), offer.SignerSeeds()); err != nil {
		return err
	}
	createVault, err := associatedtoken.NewCreateInstruction(maker, offerKey, mintA)
	if err != nil {
		return err
	}
	if err := ctx.Invoke(createVault); err != nil {
		return err
	}
	deposit := token.NewTransferCheckedInstruction(makerTokenA, mintA, vault, maker, args.DepositAmount, mintAState.Decimals)
	if err := ctx.Invoke(deposit); err != nil {
		return err
	}

	data, err := offer.Marshal()
	if err != nil {
		return err
	}
	acc, err := ctx.Load(offerKey)
	if err != nil {
		return err
	}
	acc.Data = data
	if err := ctx.Store(offerKey, acc); err != nil {
		return err
	}
	ctx.Log("Offer %d made by %s: %d of %s for %d of %s", args.ID, maker, args.DepositAmount, mintA, args.WantedAmountB, mintB)
	ctx.Emit(NewMadeEvent(offerKey, offer, args.DepositAmount))
	return nil
}

// loadActiveOffer reads the offer at offerKey and checks that its stored
// fields re-derive that address.
func loadActiveOffer(ctx *runtime.InvokeContext, offerKey solana.PublicKey) (*Offer, error) {
	offer, err := LoadOffer(ctx, offerKey)
	if err != nil {
		return nil, err
	}
	derived, err := offer.Address()
	if err != nil {
		return nil, err
	}
	if err := expectKey("offer", offerKey, derived); err != nil {
		return nil, err
	}
	return offer, nil
}

func (p *Program) takeOffer(ctx *runtime.InvokeContext) error {
	k, err := keys(ctx, takeAccountCount)
	if err != nil {
		return err
	}
	taker, maker, mintA, mintB := k[takeTaker], k[takeMaker], k[takeMintA], k[takeMintB]
	takerTokenA, takerTokenB, makerTokenB := k[takeTakerTokenA], k[takeTakerTokenB], k[takeMakerTokenB]
	offerKey, vault := k[takeOffer], k[takeVault]

	if !ctx.IsSigner(taker) {
		return fmt.Errorf("escrow: taker %s must sign: %w", taker, coreerrors.ErrAuthorization)
	}
	if err := expectPrograms(&k[takeAssociatedTokenProgram], &k[takeTokenProgram], &k[takeSystemProgram]); err != nil {
		return err
	}
	offer, err := loadActiveOffer(ctx, offerKey)
	if err != nil {
		return err
	}
	if err := expectKey("maker", maker, offer.Maker); err != nil {
		return err
	}
	if err := expectKey("token mint A", mintA, offer.TokenMintA); err != nil {
		return err
	}
	if err := expectKey("token mint B", mintB, offer.TokenMintB); err != nil {
		return err
	}
	if err := expectAssociated("vault", vault, offerKey, mintA); err != nil {
		return err
	}
	if err := expectAssociated("taker token account A", takerTokenA, taker, mintA); err != nil {
		return err
	}
	if err := expectAssociated("taker token account B", takerTokenB, taker, mintB); err != nil {
		return err
	}
	if err := expectAssociated("maker token account B", makerTokenB, maker, mintB); err != nil {
		return err
	}
	mintAState, err := token.LoadMint(ctx, mintA)
	if err != nil {
		return err
	}
	mintBState, err := token.LoadMint(ctx, mintB)
	if err != nil {
		return err
	}
	vaultState, err := token.LoadAccount(ctx, vault)
	if err != nil {
		return err
	}
	if err := requireBalance(ctx, takerTokenB, offer.WantedAmountB); err != nil {
		return err
	}

	for _, owner := range []struct{ wallet, mint solana.PublicKey }{{taker, mintA}, {maker, mintB}} {
		ix, err := associatedtoken.NewCreateIdempotentInstruction(taker, owner.wallet, owner.mint)
		if err != nil {
			return err
		}
		if err := ctx.Invoke(ix); err != nil {
			return err
		}
	}
	payment := token.NewTransferCheckedInstruction(takerTokenB, mintB, makerTokenB, taker, offer.WantedAmountB, mintBState.Decimals)
	if err := ctx.Invoke(payment); err != nil {
		return err
	}
	if err := release(ctx, offer, offerKey, vault, mintA, takerTokenA, vaultState.Amount, mintAState.Decimals); err != nil {
		return err
	}
	if err := closeVault(ctx, offer, offerKey, vault, maker); err != nil {
		return err
	}
	if err := closeOffer(ctx, offerKey, maker); err != nil {
		return err
	}
	ctx.Log("Offer %d of %s taken by %s", offer.ID, maker, taker)
	ctx.Emit(NewTakenEvent(offerKey, offer, taker, vaultState.Amount))
	return nil
}

// requireBalance fails with ErrInsufficientFunds unless the token account at
// addr exists and holds at least amount.
func requireBalance(ctx *runtime.InvokeContext, addr solana.PublicKey, amount uint64) error {
	exists, err := ctx.Exists(addr)
	if err != nil {
		return err
	}
	var held uint64
	if exists {
		acc, err := token.LoadAccount(ctx, addr)
		if err != nil {
			return err
		}
		held = acc.Amount
	}
	if held < amount {
		return fmt.Errorf("escrow: %s holds %d, offer wants %d: %w", addr, held, amount, coreerrors.ErrInsufficientFunds)
	}
	return nil
}

func (p *Program) cancelOffer(ctx *runtime.InvokeContext) error {
	k, err := keys(ctx, cancelAccountCount)
	if err != nil {
		return err
	}
	maker, offerKey, vault := k[cancelMaker], k[cancelOffer], k[cancelVault]
	mintA, mintB, makerTokenA := k[cancelMintA], k[cancelMintB], k[cancelMakerTokenA]

	if err := expectPrograms(nil, &k[cancelTokenProgram], &k[cancelSystemProgram]); err != nil {
		return err
	}
	offer, err := LoadOffer(ctx, offerKey)
	if err != nil {
		return err
	}
	if err := expectKey("maker", maker, offer.Maker); err != nil {
		return err
	}
	if !ctx.IsSigner(maker) {
		return fmt.Errorf("escrow: maker %s must sign: %w", maker, coreerrors.ErrAuthorization)
	}
	if err := expectKey("token mint A", mintA, offer.TokenMintA); err != nil {
		return err
	}
	if err := expectKey("token mint B", mintB, offer.TokenMintB); err != nil {
		return err
	}
	derived, err := offer.Address()
	if err != nil {
		return err
	}
	if err := expectKey("offer", offerKey, derived); err != nil {
		return err
	}
	if err := expectAssociated("vault", vault, offerKey, mintA); err != nil {
		return err
	}
	if err := expectAssociated("maker token account A", makerTokenA, maker, mintA); err != nil {
		return err
	}
	mintAState, err := token.LoadMint(ctx, mintA)
	if err != nil {
		return err
	}
	vaultState, err := token.LoadAccount(ctx, vault)
	if err != nil {
		return err
	}

	if err := release(ctx, offer, offerKey, vault, mintA, makerTokenA, vaultState.Amount, mintAState.Decimals); err != nil {
		return err
	}
	if err := closeVault(ctx, offer, offerKey, vault, maker); err != nil {
		return err
	}
	if err := closeOffer(ctx, offerKey, maker); err != nil {
		return err
	}
	ctx.Log("Offer %d of %s cancelled", offer.ID, maker)
	ctx.Emit(NewCancelledEvent(offerKey, offer, vaultState.Amount))
	return nil
}
