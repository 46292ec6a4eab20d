package system_test

import (
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"

	coreerrors "escrowvault/core/errors"
	"escrowvault/core/runtime/runtimetest"
	"escrowvault/native/system"
)

func TestAllocateSizesUnusedAccount(t *testing.T) {
	h := runtimetest.New(t)
	wallet := h.NewWallet()

	h.MustExecute([]solana.PrivateKey{wallet}, system.NewAllocateInstruction(wallet.PublicKey(), 16))
	acc := h.Account(wallet.PublicKey())
	require.Len(t, acc.Data, 16)
	require.Equal(t, system.ProgramID, acc.Owner)
	require.Equal(t, uint64(runtimetest.DefaultWalletLamports), acc.Lamports)

	_, err := h.Execute([]solana.PrivateKey{wallet}, system.NewAllocateInstruction(wallet.PublicKey(), 32))
	require.ErrorIs(t, err, coreerrors.ErrState)
	require.Len(t, h.Account(wallet.PublicKey()).Data, 16)
}

func TestAllocateRejectsOversizedSpace(t *testing.T) {
	h := runtimetest.New(t)
	wallet := h.NewWallet()

	_, err := h.Execute([]solana.PrivateKey{wallet}, system.NewAllocateInstruction(wallet.PublicKey(), system.MaxAccountSpace+1))
	require.ErrorIs(t, err, coreerrors.ErrInvalidArgument)
	require.Empty(t, h.Account(wallet.PublicKey()).Data)
}

func TestCreateAccountRejectsFundedAddress(t *testing.T) {
	h := runtimetest.New(t)
	payer := h.NewWallet()
	target := h.NewWallet()

	_, err := h.Execute([]solana.PrivateKey{payer, target},
		system.NewCreateAccountInstruction(payer.PublicKey(), target.PublicKey(), h.Runtime.Rent().MinimumBalance(8), 8, system.ProgramID))
	require.ErrorIs(t, err, coreerrors.ErrState)
}
