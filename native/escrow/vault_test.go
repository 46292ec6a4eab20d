package escrow

import (
	"bytes"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"

	coreerrors "escrowvault/core/errors"
	"escrowvault/core/runtime"
	"escrowvault/core/runtime/runtimetest"
	"escrowvault/core/types"
	"escrowvault/native/token"
)

var (
	closeEarlyOp  = []byte("test:close-vault-early")
	forgedSeedsOp = []byte("test:release-forged-seeds")
)

// custodyProbe stands in for the escrow program and adds operations that
// drive the vault primitives outside of the normal lifecycle.
type custodyProbe struct {
	*Program
}

func (p custodyProbe) Execute(ctx *runtime.InvokeContext) error {
	data := ctx.Data()
	if !bytes.Equal(data, closeEarlyOp) && !bytes.Equal(data, forgedSeedsOp) {
		return p.Program.Execute(ctx)
	}
	maker, _ := ctx.Key(0)
	offerKey, _ := ctx.Key(1)
	vault, _ := ctx.Key(2)
	mintA, _ := ctx.Key(3)
	makerTokenA, _ := ctx.Key(4)
	offer, err := LoadOffer(ctx, offerKey)
	if err != nil {
		return err
	}
	if bytes.Equal(data, closeEarlyOp) {
		return closeVault(ctx, offer, offerKey, vault, maker)
	}
	forged := offer.Clone()
	forged.ID++
	return release(ctx, forged, offerKey, vault, mintA, makerTokenA, 1, 6)
}

func TestVaultPrimitivesGuardCustody(t *testing.T) {
	h := runtimetest.New(t)
	h.Register(ProgramID, custodyProbe{Program: New()})
	authority := h.NewWallet()
	maker := h.NewWallet()
	mintA := h.NewMint(authority, 6)
	mintB := h.NewMint(authority, 6)
	makerTokenA := h.MintTo(authority, mintA, maker.PublicKey(), 100)

	ix, err := NewMakeInstruction(MakeParams{
		Maker: maker.PublicKey(), TokenMintA: mintA, TokenMintB: mintB,
		ID: 9, DepositAmount: 60, WantedAmountB: 5,
	})
	require.NoError(t, err)
	h.MustExecute([]solana.PrivateKey{maker}, ix)

	offerKey, _, err := OfferAddress(maker.PublicKey(), 9)
	require.NoError(t, err)
	vault, err := VaultAddress(offerKey, mintA)
	require.NoError(t, err)

	probe := func(op []byte) types.Instruction {
		return types.NewInstruction(ProgramID, []*solana.AccountMeta{
			solana.NewAccountMeta(maker.PublicKey(), true, true),
			solana.NewAccountMeta(offerKey, true, false),
			solana.NewAccountMeta(vault, true, false),
			solana.NewAccountMeta(mintA, false, false),
			solana.NewAccountMeta(makerTokenA, true, false),
			solana.NewAccountMeta(token.ProgramID, false, false),
		}, op)
	}

	_, err = h.Execute([]solana.PrivateKey{maker}, probe(closeEarlyOp))
	require.ErrorIs(t, err, coreerrors.ErrState)

	_, err = h.Execute([]solana.PrivateKey{maker}, probe(forgedSeedsOp))
	require.ErrorIs(t, err, coreerrors.ErrAuthorization)

	require.Equal(t, uint64(60), h.TokenBalance(vault))
	require.Equal(t, uint64(40), h.TokenBalance(makerTokenA))
}

func TestOfferEncodingRejectsForeignData(t *testing.T) {
	offer := &Offer{ID: 1, Maker: solana.NewWallet().PublicKey(), TokenMintA: solana.NewWallet().PublicKey(), TokenMintB: solana.NewWallet().PublicKey(), WantedAmountB: 5, Bump: 254}
	data, err := offer.Marshal()
	require.NoError(t, err)
	require.Len(t, data, OfferSize)

	decoded, err := DecodeOffer(data)
	require.NoError(t, err)
	require.Equal(t, offer, decoded)

	data[0] ^= 0xff
	_, err = DecodeOffer(data)
	require.ErrorIs(t, err, coreerrors.ErrState)
	_, err = DecodeOffer(data[:OfferSize-1])
	require.ErrorIs(t, err, coreerrors.ErrState)
}
