package rpc_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"

	coreerrors "escrowvault/core/errors"
	"escrowvault/core/runtime/runtimetest"
	"escrowvault/core/types"
	"escrowvault/gateway/middleware"
	"escrowvault/native/escrow"
	"escrowvault/native/favorites"
	"escrowvault/rpc"
)

type apiFixture struct {
	t      *testing.T
	h      *runtimetest.Harness
	client *rpc.Client
	base   string
	maker  solana.PrivateKey
	taker  solana.PrivateKey
	mintA  solana.PublicKey
	mintB  solana.PublicKey
	nonce  uint64
}

func newAPIFixture(t *testing.T, limit middleware.RateLimit) *apiFixture {
	t.Helper()
	h := runtimetest.New(t)
	h.Register(escrow.ProgramID, escrow.New())
	h.Register(favorites.ProgramID, favorites.New())

	srv := rpc.NewServer(h.Runtime, rpc.ServerConfig{RateLimit: limit}, nil)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	authority := h.NewWallet()
	f := &apiFixture{
		t:      t,
		h:      h,
		client: rpc.NewClient(ts.URL, ts.Client()),
		base:   ts.URL,
		maker:  h.NewWallet(),
		taker:  h.NewWallet(),
	}
	f.mintA = h.NewMint(authority, 6)
	f.mintB = h.NewMint(authority, 9)
	h.MintTo(authority, f.mintA, f.maker.PublicKey(), 1_000)
	h.MintTo(authority, f.mintB, f.taker.PublicKey(), 500)
	return f
}

func (f *apiFixture) submit(signers []solana.PrivateKey, ixs ...types.Instruction) (*rpc.ReceiptResult, error) {
	f.t.Helper()
	f.nonce++
	tx := types.NewTransaction(signers[0].PublicKey(), ixs...)
	tx.Nonce = f.nonce
	require.NoError(f.t, tx.Sign(signers...))
	return f.client.SubmitTransaction(context.Background(), tx)
}

func (f *apiFixture) makeOffer(id, deposit, wanted uint64) (*rpc.ReceiptResult, error) {
	f.t.Helper()
	ix, err := escrow.NewMakeInstruction(escrow.MakeParams{
		Maker:         f.maker.PublicKey(),
		TokenMintA:    f.mintA,
		TokenMintB:    f.mintB,
		ID:            id,
		DepositAmount: deposit,
		WantedAmountB: wanted,
	})
	require.NoError(f.t, err)
	return f.submit([]solana.PrivateKey{f.maker}, ix)
}

func TestOfferLifecycleOverHTTP(t *testing.T) {
	f := newAPIFixture(t, middleware.RateLimit{})
	ctx := context.Background()

	receipt, err := f.makeOffer(1, 100, 50)
	require.NoError(t, err)
	require.NotEmpty(t, receipt.Signature)
	require.Len(t, receipt.Events, 1)
	require.Equal(t, escrow.EventTypeOfferMade, receipt.Events[0].Type)

	offerView, err := f.client.GetMakerOffer(ctx, f.maker.PublicKey(), 1)
	require.NoError(t, err)
	require.Equal(t, uint64(100), offerView.Deposit)
	require.Equal(t, uint64(50), offerView.WantedAmountB)
	require.Equal(t, f.maker.PublicKey().String(), offerView.Maker)

	offerKey, _, err := escrow.OfferAddress(f.maker.PublicKey(), 1)
	require.NoError(t, err)
	byAddress, err := f.client.GetOffer(ctx, offerKey)
	require.NoError(t, err)
	require.Equal(t, *offerView, *byAddress)

	offer, err := offerView.Offer()
	require.NoError(t, err)

	stranger := f.h.NewWallet()
	cancel, err := escrow.NewCancelInstruction(stranger.PublicKey(), offer)
	require.NoError(t, err)
	_, err = f.submit([]solana.PrivateKey{stranger}, cancel)
	require.ErrorIs(t, err, coreerrors.ErrAuthorization)
	var apiErr *rpc.APIError
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, http.StatusForbidden, apiErr.Status)
	require.NotEmpty(t, apiErr.RequestID)

	take, err := escrow.NewTakeInstruction(f.taker.PublicKey(), offer)
	require.NoError(t, err)
	_, err = f.submit([]solana.PrivateKey{f.taker}, take)
	require.NoError(t, err)

	_, err = f.client.GetOffer(ctx, offerKey)
	require.True(t, errors.As(err, &apiErr))
	require.True(t, apiErr.NotFound())

	balance, err := f.client.GetWalletBalance(ctx, f.taker.PublicKey(), f.mintA)
	require.NoError(t, err)
	require.Equal(t, uint64(100), balance.Amount)
	balance, err = f.client.GetWalletBalance(ctx, f.maker.PublicKey(), f.mintB)
	require.NoError(t, err)
	require.Equal(t, uint64(50), balance.Amount)

	_, err = f.submit([]solana.PrivateKey{f.taker}, take)
	require.ErrorIs(t, err, coreerrors.ErrState)
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, http.StatusConflict, apiErr.Status)
}

func TestSubmitMapsInsufficientFunds(t *testing.T) {
	f := newAPIFixture(t, middleware.RateLimit{})

	_, err := f.makeOffer(3, 5_000, 50)
	require.ErrorIs(t, err, coreerrors.ErrInsufficientFunds)
	var apiErr *rpc.APIError
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, http.StatusPaymentRequired, apiErr.Status)
}

func TestSubmitRejectsMalformedBody(t *testing.T) {
	f := newAPIFixture(t, middleware.RateLimit{})

	for _, body := range []string{`{`, `{"feePayer":"???"}`, `{"unknown":1}`} {
		resp, err := http.Post(f.base+"/v1/transactions", "application/json", strings.NewReader(body))
		require.NoError(t, err)
		payload, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		require.Equal(t, http.StatusBadRequest, resp.StatusCode, string(payload))
		require.Contains(t, string(payload), `"kind":"invalid_argument"`)
	}
}

func TestAccountQueries(t *testing.T) {
	f := newAPIFixture(t, middleware.RateLimit{})
	ctx := context.Background()

	acc, err := f.client.GetAccount(ctx, f.maker.PublicKey())
	require.NoError(t, err)
	require.Equal(t, solana.SystemProgramID.String(), acc.Owner)
	require.Positive(t, acc.Lamports)

	_, err = f.client.GetAccount(ctx, solana.NewWallet().PublicKey())
	var apiErr *rpc.APIError
	require.True(t, errors.As(err, &apiErr))
	require.True(t, apiErr.NotFound())

	resp, err := http.Get(f.base + "/v1/accounts/not-an-address")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestFavoritesQuery(t *testing.T) {
	f := newAPIFixture(t, middleware.RateLimit{})
	ctx := context.Background()

	ix, err := favorites.NewSetFavoritesInstruction(f.maker.PublicKey(), 7, "teal", nil)
	require.NoError(t, err)
	_, err = f.submit([]solana.PrivateKey{f.maker}, ix)
	require.NoError(t, err)

	fav, err := f.client.GetFavorites(ctx, f.maker.PublicKey())
	require.NoError(t, err)
	require.Equal(t, uint64(7), fav.Number)
	require.Equal(t, "teal", fav.Color)
	require.Empty(t, fav.Delegate)
}

func TestTransactionsAreRateLimited(t *testing.T) {
	f := newAPIFixture(t, middleware.RateLimit{RequestsPerMinute: 1, Burst: 1})

	_, err := f.makeOffer(1, 10, 5)
	require.NoError(t, err)
	_, err = f.makeOffer(2, 10, 5)
	var apiErr *rpc.APIError
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, http.StatusTooManyRequests, apiErr.Status)
}

func TestHealthAndMetrics(t *testing.T) {
	f := newAPIFixture(t, middleware.RateLimit{})

	resp, err := http.Get(f.base + "/healthz")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "ok", string(body))

	resp, err = http.Get(f.base + "/metrics")
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, string(body), "escrowvault_runtime_transactions_total")
	require.Contains(t, string(body), "escrowvault_api_requests_total")
}

func TestTransactionWireRoundTrip(t *testing.T) {
	key, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	ix, err := favorites.NewSetFavoritesInstruction(key.PublicKey(), 1, "red", nil)
	require.NoError(t, err)
	tx := types.NewTransaction(key.PublicKey(), ix)
	tx.Nonce = 99
	require.NoError(t, tx.Sign(key))

	decoded, err := rpc.EncodeTransaction(tx).Decode()
	require.NoError(t, err)
	require.NoError(t, decoded.VerifySignatures())
	require.Equal(t, tx.ID(), decoded.ID())
	require.Equal(t, uint64(99), decoded.Nonce)
}
