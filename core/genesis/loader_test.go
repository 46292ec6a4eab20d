package genesis

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"

	"escrowvault/core/runtime"
	"escrowvault/core/state"
	"escrowvault/core/types"
	"escrowvault/native/associatedtoken"
	"escrowvault/native/system"
	"escrowvault/native/token"
	"escrowvault/storage"
)

type fixture struct {
	maker     solana.PrivateKey
	taker     solana.PrivateKey
	authority solana.PublicKey
	mintA     solana.PublicKey
	mintB     solana.PublicKey
	yaml      string
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	maker, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	taker, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	f := fixture{
		maker:     maker,
		taker:     taker,
		authority: solana.NewWallet().PublicKey(),
		mintA:     solana.NewWallet().PublicKey(),
		mintB:     solana.NewWallet().PublicKey(),
	}
	f.yaml = fmt.Sprintf(`genesisTime: "2024-01-01T00:00:00Z"
accounts:
  - address: %[1]s
    lamports: 5000000000
  - address: %[2]s
    lamports: 7000000000
mints:
  - name: A
    address: %[3]s
    decimals: 6
    mintAuthority: %[5]s
  - name: B
    address: %[4]s
    decimals: 9
    mintAuthority: %[5]s
balances:
  - owner: %[1]s
    mint: A
    amount: 1000
  - owner: %[2]s
    mint: B
    amount: 500
  - owner: %[2]s
    mint: A
    amount: 20
`, maker.PublicKey(), taker.PublicKey(), f.mintA, f.mintB, f.authority)
	return f
}

func TestLoadGenesisSpecAndApply(t *testing.T) {
	f := newFixture(t)
	path := filepath.Join(t.TempDir(), "genesis.yaml")
	require.NoError(t, os.WriteFile(path, []byte(f.yaml), 0o644))

	spec, err := LoadGenesisSpec(path)
	require.NoError(t, err)
	require.Equal(t, 2024, spec.GenesisTimestamp().Year())
	addr, ok := spec.MintAddress("A")
	require.True(t, ok)
	require.Equal(t, f.mintA, addr)

	db := storage.NewMemDB()
	t.Cleanup(db.Close)
	rent := types.DefaultRent()

	applied, err := Apply(db, spec, rent)
	require.NoError(t, err)
	require.True(t, applied)

	mgr := state.NewManager(db)
	wallet, err := mgr.GetAccount(f.maker.PublicKey())
	require.NoError(t, err)
	require.Equal(t, uint64(5_000_000_000), wallet.Lamports)
	require.Equal(t, solana.SystemProgramID, wallet.Owner)

	mintA, err := token.LoadMint(mgr, f.mintA)
	require.NoError(t, err)
	require.Equal(t, uint64(1020), mintA.Supply)
	require.Equal(t, uint8(6), mintA.Decimals)
	require.Equal(t, f.authority, mintA.MintAuthority)

	mintB, err := token.LoadMint(mgr, f.mintB)
	require.NoError(t, err)
	require.Equal(t, uint64(500), mintB.Supply)

	ata, err := associatedtoken.Address(f.maker.PublicKey(), f.mintA)
	require.NoError(t, err)
	balance, err := token.BalanceOf(mgr, ata)
	require.NoError(t, err)
	require.Equal(t, uint64(1000), balance)

	raw, err := mgr.GetAccount(ata)
	require.NoError(t, err)
	require.Equal(t, rent.MinimumBalance(token.AccountSize), raw.Lamports)
}

func TestApplyIsIdempotent(t *testing.T) {
	f := newFixture(t)
	spec, err := ParseGenesisSpec([]byte(f.yaml))
	require.NoError(t, err)

	db := storage.NewMemDB()
	t.Cleanup(db.Close)

	applied, err := Apply(db, spec, types.DefaultRent())
	require.NoError(t, err)
	require.True(t, applied)

	applied, err = Apply(db, spec, types.DefaultRent())
	require.NoError(t, err)
	require.False(t, applied)

	spec.GenesisTime = "2025-01-01T00:00:00Z"
	require.NoError(t, spec.validate())
	_, err = Apply(db, spec, types.DefaultRent())
	require.ErrorIs(t, err, ErrAlreadyApplied)
}

func TestGenesisBalancesAreSpendable(t *testing.T) {
	f := newFixture(t)
	spec, err := ParseGenesisSpec([]byte(f.yaml))
	require.NoError(t, err)

	db := storage.NewMemDB()
	t.Cleanup(db.Close)
	_, err = Apply(db, spec, types.DefaultRent())
	require.NoError(t, err)

	rt := runtime.New(db)
	require.NoError(t, rt.Register(system.ProgramID, system.New()))
	require.NoError(t, rt.Register(token.ProgramID, token.New()))
	require.NoError(t, rt.Register(associatedtoken.ProgramID, associatedtoken.New()))

	src, err := associatedtoken.Address(f.maker.PublicKey(), f.mintA)
	require.NoError(t, err)
	dst, err := associatedtoken.Address(f.taker.PublicKey(), f.mintA)
	require.NoError(t, err)

	tx := types.NewTransaction(f.maker.PublicKey(),
		token.NewTransferCheckedInstruction(src, f.mintA, dst, f.maker.PublicKey(), 250, 6))
	require.NoError(t, tx.Sign(f.maker))
	_, err = rt.Execute(context.Background(), tx)
	require.NoError(t, err)

	mgr := state.NewManager(db)
	balance, err := token.BalanceOf(mgr, dst)
	require.NoError(t, err)
	require.Equal(t, uint64(270), balance)
}

func TestParseGenesisSpecRejectsInvalid(t *testing.T) {
	wallet := solana.NewWallet().PublicKey()
	mint := solana.NewWallet().PublicKey()
	cases := map[string]string{
		"missing time": `accounts: []`,
		"bad time":     `genesisTime: "yesterday"`,
		"bad address": `genesisTime: "2024-01-01T00:00:00Z"
accounts:
  - address: not-base58!
    lamports: 1`,
		"zero lamports": fmt.Sprintf(`genesisTime: "2024-01-01T00:00:00Z"
accounts:
  - address: %s
    lamports: 0`, wallet),
		"duplicate wallet": fmt.Sprintf(`genesisTime: "2024-01-01T00:00:00Z"
accounts:
  - address: %[1]s
    lamports: 1
  - address: %[1]s
    lamports: 2`, wallet),
		"unknown mint": fmt.Sprintf(`genesisTime: "2024-01-01T00:00:00Z"
balances:
  - owner: %s
    mint: Z
    amount: 1`, wallet),
		"zero amount": fmt.Sprintf(`genesisTime: "2024-01-01T00:00:00Z"
mints:
  - name: A
    address: %[2]s
    decimals: 6
    mintAuthority: %[1]s
balances:
  - owner: %[1]s
    mint: A
    amount: 0`, wallet, mint),
		"mint is wallet": fmt.Sprintf(`genesisTime: "2024-01-01T00:00:00Z"
accounts:
  - address: %[1]s
    lamports: 1
mints:
  - name: A
    address: %[1]s
    decimals: 6
    mintAuthority: %[1]s`, wallet),
		"duplicate mint name": fmt.Sprintf(`genesisTime: "2024-01-01T00:00:00Z"
mints:
  - name: A
    address: %[2]s
    mintAuthority: %[1]s
  - name: A
    address: %[1]s
    mintAuthority: %[1]s`, wallet, mint),
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseGenesisSpec([]byte(doc))
			require.Error(t, err)
		})
	}
}
