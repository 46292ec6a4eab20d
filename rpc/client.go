package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"

	coreerrors "escrowvault/core/errors"
	"escrowvault/core/types"
)

// APIError is a non-2xx response. It unwraps to the matching error kind so
// callers can use errors.Is with the core sentinels.
type APIError struct {
	Status    int
	Kind      string
	Message   string
	RequestID string
}

func (e *APIError) Error() string {
	if e.RequestID != "" {
		return fmt.Sprintf("api: %d %s: %s (request %s)", e.Status, e.Kind, e.Message, e.RequestID)
	}
	return fmt.Sprintf("api: %d %s: %s", e.Status, e.Kind, e.Message)
}

func (e *APIError) Unwrap() error {
	switch e.Kind {
	case "authorization":
		return coreerrors.ErrAuthorization
	case "state":
		return coreerrors.ErrState
	case "insufficient_funds":
		return coreerrors.ErrInsufficientFunds
	case "derivation":
		return coreerrors.ErrDerivationExhausted
	case "invalid_argument":
		return coreerrors.ErrInvalidArgument
	default:
		return nil
	}
}

// NotFound reports whether the request addressed an absent record.
func (e *APIError) NotFound() bool { return e.Status == http.StatusNotFound }

// Client talks to a node's HTTP API.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient targets the node at baseURL. A nil httpClient uses a client with
// a 30 second timeout.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := &APIError{Status: resp.StatusCode, Kind: "internal", Message: http.StatusText(resp.StatusCode)}
		var payload ErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&payload); err == nil {
			apiErr.Kind = payload.Kind
			apiErr.Message = payload.Error
			apiErr.RequestID = payload.RequestID
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// SubmitTransaction sends a signed transaction and returns its receipt.
func (c *Client) SubmitTransaction(ctx context.Context, tx *types.Transaction) (*ReceiptResult, error) {
	var out ReceiptResult
	if err := c.do(ctx, http.MethodPost, "/v1/transactions", EncodeTransaction(tx), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetAccount returns the ledger envelope at addr.
func (c *Client) GetAccount(ctx context.Context, addr solana.PublicKey) (*AccountResult, error) {
	var out AccountResult
	if err := c.do(ctx, http.MethodGet, "/v1/accounts/"+url.PathEscape(addr.String()), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetOffer returns the offer stored at addr.
func (c *Client) GetOffer(ctx context.Context, addr solana.PublicKey) (*OfferResult, error) {
	var out OfferResult
	if err := c.do(ctx, http.MethodGet, "/v1/offers/"+url.PathEscape(addr.String()), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetMakerOffer returns maker's offer id.
func (c *Client) GetMakerOffer(ctx context.Context, maker solana.PublicKey, id uint64) (*OfferResult, error) {
	var out OfferResult
	path := "/v1/makers/" + url.PathEscape(maker.String()) + "/offers/" + strconv.FormatUint(id, 10)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetTokenAccount returns the token account at addr.
func (c *Client) GetTokenAccount(ctx context.Context, addr solana.PublicKey) (*TokenAccountResult, error) {
	var out TokenAccountResult
	if err := c.do(ctx, http.MethodGet, "/v1/tokens/"+url.PathEscape(addr.String()), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetWalletBalance returns wallet's associated token account for mint.
func (c *Client) GetWalletBalance(ctx context.Context, wallet, mint solana.PublicKey) (*TokenAccountResult, error) {
	var out TokenAccountResult
	path := "/v1/tokens/" + url.PathEscape(wallet.String()) + "/" + url.PathEscape(mint.String())
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetFavorites returns owner's stored preferences.
func (c *Client) GetFavorites(ctx context.Context, owner solana.PublicKey) (*FavoritesResult, error) {
	var out FavoritesResult
	if err := c.do(ctx, http.MethodGet, "/v1/favorites/"+url.PathEscape(owner.String()), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
