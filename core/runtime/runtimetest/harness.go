// Package runtimetest wires an in-memory runtime with the built-in programs
// for tests of programs and services built on top of it.
package runtimetest

import (
	"context"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"

	"escrowvault/core/events"
	"escrowvault/core/runtime"
	"escrowvault/core/state"
	"escrowvault/core/types"
	"escrowvault/native/associatedtoken"
	"escrowvault/native/system"
	"escrowvault/native/token"
	"escrowvault/storage"
)

// DefaultWalletLamports funds wallets created by NewWallet.
const DefaultWalletLamports = 10_000_000_000

// Harness is a runtime over an in-memory database with the system, token and
// associated token programs registered.
type Harness struct {
	t       testing.TB
	DB      *storage.LevelDB
	Runtime *runtime.Runtime
	Events  *events.Recorder

	nonce uint64
}

// New builds a harness. The database is closed when the test ends.
func New(t testing.TB) *Harness {
	t.Helper()
	db := storage.NewMemDB()
	t.Cleanup(db.Close)

	rt := runtime.New(db)
	recorder := &events.Recorder{}
	rt.SetEmitter(recorder)
	require.NoError(t, rt.Register(system.ProgramID, system.New()))
	require.NoError(t, rt.Register(token.ProgramID, token.New()))
	require.NoError(t, rt.Register(associatedtoken.ProgramID, associatedtoken.New()))
	return &Harness{t: t, DB: db, Runtime: rt, Events: recorder}
}

// Register installs an additional program.
func (h *Harness) Register(id solana.PublicKey, program runtime.Program) {
	h.t.Helper()
	require.NoError(h.t, h.Runtime.Register(id, program))
}

// Fund credits lamports to addr outside of any transaction.
func (h *Harness) Fund(addr solana.PublicKey, lamports uint64) {
	h.t.Helper()
	mgr := state.NewManager(h.DB)
	acc, err := mgr.GetAccount(addr)
	require.NoError(h.t, err)
	if acc == nil {
		acc = types.NewSystemAccount()
	}
	acc.Lamports += lamports
	require.NoError(h.t, mgr.PutAccount(addr, acc))
}

// NewWallet returns a fresh key funded with DefaultWalletLamports.
func (h *Harness) NewWallet() solana.PrivateKey {
	h.t.Helper()
	key, err := solana.NewRandomPrivateKey()
	require.NoError(h.t, err)
	h.Fund(key.PublicKey(), DefaultWalletLamports)
	return key
}

// Execute signs a transaction paid by the first signer and runs it.
func (h *Harness) Execute(signers []solana.PrivateKey, instructions ...types.Instruction) (*runtime.Receipt, error) {
	h.t.Helper()
	require.NotEmpty(h.t, signers, "a transaction needs a fee payer")
	tx := types.NewTransaction(signers[0].PublicKey(), instructions...)
	h.nonce++
	tx.Nonce = h.nonce
	require.NoError(h.t, tx.Sign(signers...))
	return h.Runtime.Execute(context.Background(), tx)
}

// MustExecute is Execute that fails the test on error.
func (h *Harness) MustExecute(signers []solana.PrivateKey, instructions ...types.Instruction) *runtime.Receipt {
	h.t.Helper()
	receipt, err := h.Execute(signers, instructions...)
	require.NoError(h.t, err)
	return receipt
}

// NewMint creates and initialises a mint whose authority is authority.
func (h *Harness) NewMint(authority solana.PrivateKey, decimals uint8) solana.PublicKey {
	h.t.Helper()
	mintKey, err := solana.NewRandomPrivateKey()
	require.NoError(h.t, err)
	mint := mintKey.PublicKey()
	lamports := h.Runtime.Rent().MinimumBalance(token.MintSize)
	h.MustExecute([]solana.PrivateKey{authority, mintKey},
		system.NewCreateAccountInstruction(authority.PublicKey(), mint, lamports, token.MintSize, token.ProgramID),
		token.NewInitializeMintInstruction(mint, decimals, authority.PublicKey()),
	)
	return mint
}

// TokenAccount returns the associated token account of wallet for mint,
// creating it with payer's lamports when missing.
func (h *Harness) TokenAccount(payer solana.PrivateKey, wallet, mint solana.PublicKey) solana.PublicKey {
	h.t.Helper()
	ix, err := associatedtoken.NewCreateIdempotentInstruction(payer.PublicKey(), wallet, mint)
	require.NoError(h.t, err)
	h.MustExecute([]solana.PrivateKey{payer}, ix)
	addr, err := associatedtoken.Address(wallet, mint)
	require.NoError(h.t, err)
	return addr
}

// MintTo issues amount of mint into wallet's associated token account.
func (h *Harness) MintTo(authority solana.PrivateKey, mint, wallet solana.PublicKey, amount uint64) solana.PublicKey {
	h.t.Helper()
	ata := h.TokenAccount(authority, wallet, mint)
	h.MustExecute([]solana.PrivateKey{authority}, token.NewMintToInstruction(mint, ata, authority.PublicKey(), amount))
	return ata
}

// Account returns the committed account at addr, or nil.
func (h *Harness) Account(addr solana.PublicKey) *types.Account {
	h.t.Helper()
	acc, err := h.Runtime.GetAccount(addr)
	require.NoError(h.t, err)
	return acc
}

// Exists reports whether addr holds a record.
func (h *Harness) Exists(addr solana.PublicKey) bool {
	h.t.Helper()
	return h.Account(addr) != nil
}

// Lamports returns the lamport balance of addr.
func (h *Harness) Lamports(addr solana.PublicKey) uint64 {
	h.t.Helper()
	acc := h.Account(addr)
	if acc == nil {
		return 0
	}
	return acc.Lamports
}

// TokenBalance returns the token amount held by the token account at addr.
func (h *Harness) TokenBalance(addr solana.PublicKey) uint64 {
	h.t.Helper()
	amount, err := token.BalanceOf(h.Runtime, addr)
	require.NoError(h.t, err)
	return amount
}

// WalletBalance returns wallet's balance of mint, zero when its associated
// token account does not exist.
func (h *Harness) WalletBalance(wallet, mint solana.PublicKey) uint64 {
	h.t.Helper()
	addr, err := associatedtoken.Address(wallet, mint)
	require.NoError(h.t, err)
	if !h.Exists(addr) {
		return 0
	}
	return h.TokenBalance(addr)
}
