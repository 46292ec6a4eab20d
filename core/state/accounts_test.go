package state

import (
	"bytes"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"

	"escrowvault/core/types"
	"escrowvault/storage"
)

func newTestManager(t *testing.T) (*Manager, *storage.LevelDB) {
	t.Helper()
	db := storage.NewMemDB()
	t.Cleanup(db.Close)
	return NewManager(db), db
}

func TestManagerAccountRoundTrip(t *testing.T) {
	mgr, _ := newTestManager(t)
	addr := solana.PublicKeyFromBytes(bytes.Repeat([]byte{0x01}, 32))

	missing, err := mgr.GetAccount(addr)
	require.NoError(t, err)
	require.Nil(t, missing)

	acc := &types.Account{
		Lamports: 1_000_000,
		Owner:    solana.TokenProgramID,
		Data:     []byte{1, 2, 3},
	}
	require.NoError(t, mgr.PutAccount(addr, acc))

	stored, err := mgr.GetAccount(addr)
	require.NoError(t, err)
	require.True(t, acc.Equal(stored), "account mutated during round trip: %+v", stored)

	exists, err := mgr.AccountExists(addr)
	require.NoError(t, err)
	require.True(t, exists)
}

func TestManagerEmptyAccountIsDeleted(t *testing.T) {
	mgr, _ := newTestManager(t)
	addr := solana.PublicKeyFromBytes(bytes.Repeat([]byte{0x02}, 32))

	require.NoError(t, mgr.PutAccount(addr, &types.Account{Lamports: 10, Owner: solana.SystemProgramID}))
	require.NoError(t, mgr.PutAccount(addr, &types.Account{Owner: solana.SystemProgramID}))

	exists, err := mgr.AccountExists(addr)
	require.NoError(t, err)
	require.False(t, exists)
}

func TestManagerWritesStayInsideTransaction(t *testing.T) {
	_, db := newTestManager(t)
	addr := solana.PublicKeyFromBytes(bytes.Repeat([]byte{0x03}, 32))

	txn, err := db.Begin()
	require.NoError(t, err)
	staged := NewManager(txn)
	require.NoError(t, staged.PutAccount(addr, &types.Account{Lamports: 5, Owner: solana.SystemProgramID}))
	txn.Discard()

	got, err := NewManager(db).GetAccount(addr)
	require.NoError(t, err)
	require.Nil(t, got)
}
