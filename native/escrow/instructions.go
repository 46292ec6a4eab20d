package escrow

import (
	"bytes"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"

	coreerrors "escrowvault/core/errors"
	"escrowvault/core/types"
	"escrowvault/native/associatedtoken"
	"escrowvault/native/system"
	"escrowvault/native/token"
)

const discriminatorSize = 8

// Instruction discriminators: the first eight bytes of each instruction's
// data.
var (
	makeOfferDiscriminator   = bin.SighashTypeID(bin.SIGHASH_GLOBAL_NAMESPACE, "make_offer")
	takeOfferDiscriminator   = bin.SighashTypeID(bin.SIGHASH_GLOBAL_NAMESPACE, "take_offer")
	cancelOfferDiscriminator = bin.SighashTypeID(bin.SIGHASH_GLOBAL_NAMESPACE, "close_offer")
)

// Account positions of the make instruction.
const (
	makeMaker = iota
	makeMintA
	makeMintB
	makeMakerTokenA
	makeOffer
	makeVault
	makeAssociatedTokenProgram
	makeTokenProgram
	makeSystemProgram
	makeAccountCount
)

// Account positions of the take instruction.
const (
	takeTaker = iota
	takeMaker
	takeMintA
	takeMintB
	takeTakerTokenA
	takeTakerTokenB
	takeMakerTokenB
	takeOffer
	takeVault
	takeAssociatedTokenProgram
	takeTokenProgram
	takeSystemProgram
	takeAccountCount
)

// Account positions of the cancel instruction.
const (
	cancelMaker = iota
	cancelOffer
	cancelVault
	cancelMintA
	cancelMintB
	cancelMakerTokenA
	cancelTokenProgram
	cancelSystemProgram
	cancelAccountCount
)

// MakeArgs is the data of a make instruction.
type MakeArgs struct {
	ID            uint64
	DepositAmount uint64
	WantedAmountB uint64
}

func encodeInstruction(disc bin.TypeID, args any) ([]byte, error) {
	buf := new(bytes.Buffer)
	buf.Write(disc[:])
	if args != nil {
		if err := bin.NewBorshEncoder(buf).Encode(args); err != nil {
			return nil, fmt.Errorf("escrow: encode instruction: %w", err)
		}
	}
	return buf.Bytes(), nil
}

// MakeParams describes a new offer from the maker's side.
type MakeParams struct {
	Maker         solana.PublicKey
	TokenMintA    solana.PublicKey
	TokenMintB    solana.PublicKey
	ID            uint64
	DepositAmount uint64
	WantedAmountB uint64
}

// NewMakeInstruction builds a make instruction with every derived account
// filled in.
func NewMakeInstruction(p MakeParams) (types.Instruction, error) {
	offer, _, err := OfferAddress(p.Maker, p.ID)
	if err != nil {
		return types.Instruction{}, err
	}
	vault, err := VaultAddress(offer, p.TokenMintA)
	if err != nil {
		return types.Instruction{}, err
	}
	makerTokenA, err := associatedtoken.Address(p.Maker, p.TokenMintA)
	if err != nil {
		return types.Instruction{}, err
	}
	data, err := encodeInstruction(makeOfferDiscriminator, MakeArgs{ID: p.ID, DepositAmount: p.DepositAmount, WantedAmountB: p.WantedAmountB})
	if err != nil {
		return types.Instruction{}, err
	}
	return types.NewInstruction(ProgramID, []*solana.AccountMeta{
		solana.NewAccountMeta(p.Maker, true, true),
		solana.NewAccountMeta(p.TokenMintA, false, false),
		solana.NewAccountMeta(p.TokenMintB, false, false),
		solana.NewAccountMeta(makerTokenA, true, false),
		solana.NewAccountMeta(offer, true, false),
		solana.NewAccountMeta(vault, true, false),
		solana.NewAccountMeta(associatedtoken.ProgramID, false, false),
		solana.NewAccountMeta(token.ProgramID, false, false),
		solana.NewAccountMeta(system.ProgramID, false, false),
	}, data), nil
}

// NewTakeInstruction builds a take of offer by taker. The offer is usually
// obtained from LoadOffer.
func NewTakeInstruction(taker solana.PublicKey, offer *Offer) (types.Instruction, error) {
	if offer == nil {
		return types.Instruction{}, fmt.Errorf("escrow: nil offer: %w", coreerrors.ErrInvalidArgument)
	}
	offerKey, err := offer.Address()
	if err != nil {
		return types.Instruction{}, err
	}
	vault, err := VaultAddress(offerKey, offer.TokenMintA)
	if err != nil {
		return types.Instruction{}, err
	}
	takerTokenA, err := associatedtoken.Address(taker, offer.TokenMintA)
	if err != nil {
		return types.Instruction{}, err
	}
	takerTokenB, err := associatedtoken.Address(taker, offer.TokenMintB)
	if err != nil {
		return types.Instruction{}, err
	}
	makerTokenB, err := associatedtoken.Address(offer.Maker, offer.TokenMintB)
	if err != nil {
		return types.Instruction{}, err
	}
	data, err := encodeInstruction(takeOfferDiscriminator, nil)
	if err != nil {
		return types.Instruction{}, err
	}
	return types.NewInstruction(ProgramID, []*solana.AccountMeta{
		solana.NewAccountMeta(taker, true, true),
		solana.NewAccountMeta(offer.Maker, true, false),
		solana.NewAccountMeta(offer.TokenMintA, false, false),
		solana.NewAccountMeta(offer.TokenMintB, false, false),
		solana.NewAccountMeta(takerTokenA, true, false),
		solana.NewAccountMeta(takerTokenB, true, false),
		solana.NewAccountMeta(makerTokenB, true, false),
		solana.NewAccountMeta(offerKey, true, false),
		solana.NewAccountMeta(vault, true, false),
		solana.NewAccountMeta(associatedtoken.ProgramID, false, false),
		solana.NewAccountMeta(token.ProgramID, false, false),
		solana.NewAccountMeta(system.ProgramID, false, false),
	}, data), nil
}

// NewCancelInstruction builds a cancel of offer signed by signer. Only the
// offer's maker can cancel successfully.
func NewCancelInstruction(signer solana.PublicKey, offer *Offer) (types.Instruction, error) {
	if offer == nil {
		return types.Instruction{}, fmt.Errorf("escrow: nil offer: %w", coreerrors.ErrInvalidArgument)
	}
	offerKey, err := offer.Address()
	if err != nil {
		return types.Instruction{}, err
	}
	vault, err := VaultAddress(offerKey, offer.TokenMintA)
	if err != nil {
		return types.Instruction{}, err
	}
	signerTokenA, err := associatedtoken.Address(signer, offer.TokenMintA)
	if err != nil {
		return types.Instruction{}, err
	}
	data, err := encodeInstruction(cancelOfferDiscriminator, nil)
	if err != nil {
		return types.Instruction{}, err
	}
	return types.NewInstruction(ProgramID, []*solana.AccountMeta{
		solana.NewAccountMeta(signer, true, true),
		solana.NewAccountMeta(offerKey, true, false),
		solana.NewAccountMeta(vault, true, false),
		solana.NewAccountMeta(offer.TokenMintA, false, false),
		solana.NewAccountMeta(offer.TokenMintB, false, false),
		solana.NewAccountMeta(signerTokenA, true, false),
		solana.NewAccountMeta(token.ProgramID, false, false),
		solana.NewAccountMeta(system.ProgramID, false, false),
	}, data), nil
}
