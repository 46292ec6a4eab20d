package escrow

import (
	"github.com/gagliardetto/solana-go"

	"escrowvault/core/runtime"
	"escrowvault/native/token"
)

// release moves amount out of the vault to destination. The offer address
// signs through its reproduced seeds.
func release(ctx *runtime.InvokeContext, offer *Offer, offerKey, vault, mint, destination solana.PublicKey, amount uint64, decimals uint8) error {
	ix := token.NewTransferCheckedInstruction(vault, mint, destination, offerKey, amount, decimals)
	return ctx.InvokeSigned(ix, offer.SignerSeeds())
}

// closeVault destroys the emptied vault and returns its rent deposit to
// rentDestination. The token program refuses while any balance remains.
func closeVault(ctx *runtime.InvokeContext, offer *Offer, offerKey, vault, rentDestination solana.PublicKey) error {
	ix := token.NewCloseAccountInstruction(vault, rentDestination, offerKey)
	return ctx.InvokeSigned(ix, offer.SignerSeeds())
}

// closeOffer wipes the offer record and hands its rent deposit to
// rentDestination, after which the offer address no longer exists.
func closeOffer(ctx *runtime.InvokeContext, offerKey, rentDestination solana.PublicKey) error {
	acc, err := ctx.Load(offerKey)
	if err != nil {
		return err
	}
	dst, err := ctx.Load(rentDestination)
	if err != nil {
		return err
	}
	dst.Lamports += acc.Lamports
	acc.Lamports = 0
	acc.Data = nil
	acc.Owner = solana.SystemProgramID
	if err := ctx.Store(offerKey, acc); err != nil {
		return err
	}
	return ctx.Store(rentDestination, dst)
}
