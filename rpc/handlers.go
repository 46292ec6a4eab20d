package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gagliardetto/solana-go"
	"github.com/go-chi/chi/v5"

	coreerrors "escrowvault/core/errors"
	"escrowvault/crypto"
	"escrowvault/gateway/middleware"
	"escrowvault/native/associatedtoken"
	"escrowvault/native/escrow"
	"escrowvault/native/favorites"
	"escrowvault/native/token"
)

var errNotFound = errors.New("not found")

// statusFor maps an error onto the HTTP status reported to clients.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errNotFound):
		return http.StatusNotFound
	case errors.Is(err, coreerrors.ErrAuthorization):
		return http.StatusForbidden
	case errors.Is(err, coreerrors.ErrState):
		return http.StatusConflict
	case errors.Is(err, coreerrors.ErrInsufficientFunds):
		return http.StatusPaymentRequired
	case errors.Is(err, coreerrors.ErrInvalidArgument), errors.Is(err, coreerrors.ErrDerivationExhausted):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func kindFor(err error) string {
	if errors.Is(err, errNotFound) {
		return "not_found"
	}
	return coreerrors.Kind(err)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	requestID := middleware.RequestIDFromContext(r.Context())
	message := err.Error()
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed",
			slog.String("path", r.URL.Path),
			slog.String("request_id", requestID),
			slog.String("error", err.Error()))
		message = http.StatusText(status)
	}
	writeJSON(w, status, ErrorResponse{Error: message, Kind: kindFor(err), RequestID: requestID})
}

func addressParam(r *http.Request, name string) (solana.PublicKey, error) {
	addr, err := crypto.ParsePublicKey(chi.URLParam(r, name))
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("%s: %v: %w", name, err, coreerrors.ErrInvalidArgument)
	}
	return addr, nil
}

func (s *Server) handleSubmitTransaction(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	var wire TransactionJSON
	if err := dec.Decode(&wire); err != nil {
		s.writeError(w, r, fmt.Errorf("decode transaction: %v: %w", err, coreerrors.ErrInvalidArgument))
		return
	}
	tx, err := wire.Decode()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	receipt, err := s.ledger.Execute(r.Context(), tx)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, receiptResult(receipt))
}

func (s *Server) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	addr, err := addressParam(r, "address")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	acc, err := s.ledger.GetAccount(addr)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if acc == nil {
		s.writeError(w, r, fmt.Errorf("account %s: %w", addr, errNotFound))
		return
	}
	writeJSON(w, http.StatusOK, accountResult(addr, acc))
}

// requireExisting turns an absent account into errNotFound so that queries
// report 404 rather than the ErrState the loaders return.
func (s *Server) requireExisting(addr solana.PublicKey) error {
	acc, err := s.ledger.GetAccount(addr)
	if err != nil {
		return err
	}
	if acc == nil {
		return fmt.Errorf("account %s: %w", addr, errNotFound)
	}
	return nil
}

func (s *Server) offerResult(addr solana.PublicKey) (OfferResult, error) {
	if err := s.requireExisting(addr); err != nil {
		return OfferResult{}, err
	}
	offer, err := escrow.LoadOffer(s.ledger, addr)
	if err != nil {
		return OfferResult{}, err
	}
	vault, err := escrow.VaultAddress(addr, offer.TokenMintA)
	if err != nil {
		return OfferResult{}, err
	}
	deposit, err := token.BalanceOf(s.ledger, vault)
	if err != nil {
		return OfferResult{}, err
	}
	return OfferResult{
		Address:       addr.String(),
		ID:            offer.ID,
		Maker:         offer.Maker.String(),
		TokenMintA:    offer.TokenMintA.String(),
		TokenMintB:    offer.TokenMintB.String(),
		WantedAmountB: offer.WantedAmountB,
		Bump:          offer.Bump,
		Vault:         vault.String(),
		Deposit:       deposit,
	}, nil
}

func (s *Server) handleGetOffer(w http.ResponseWriter, r *http.Request) {
	addr, err := addressParam(r, "address")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	result, err := s.offerResult(addr)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleGetOfferByMaker(w http.ResponseWriter, r *http.Request) {
	maker, err := addressParam(r, "maker")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		s.writeError(w, r, fmt.Errorf("id: %v: %w", err, coreerrors.ErrInvalidArgument))
		return
	}
	addr, _, err := escrow.OfferAddress(maker, id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	result, err := s.offerResult(addr)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleGetTokenAccount(w http.ResponseWriter, r *http.Request) {
	addr, err := addressParam(r, "address")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeTokenAccount(w, r, addr)
}

func (s *Server) handleGetWalletBalance(w http.ResponseWriter, r *http.Request) {
	wallet, err := addressParam(r, "wallet")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	mint, err := addressParam(r, "mint")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	addr, err := associatedtoken.Address(wallet, mint)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeTokenAccount(w, r, addr)
}

func (s *Server) writeTokenAccount(w http.ResponseWriter, r *http.Request, addr solana.PublicKey) {
	if err := s.requireExisting(addr); err != nil {
		s.writeError(w, r, err)
		return
	}
	acc, err := token.LoadAccount(s.ledger, addr)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tokenAccountResult(addr, acc))
}

func (s *Server) handleGetFavorites(w http.ResponseWriter, r *http.Request) {
	owner, err := addressParam(r, "owner")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	addr, _, err := favorites.Address(owner)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.requireExisting(addr); err != nil {
		s.writeError(w, r, err)
		return
	}
	fav, err := favorites.Load(s.ledger, addr)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, favoritesResult(addr, owner, fav))
}
